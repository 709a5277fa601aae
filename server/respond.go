package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"songcatalog/core/catalog"
	"songcatalog/core/player"
	"songcatalog/logger"
)

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("[HTTP] 编码响应失败", logger.ErrorField(err))
	}
}

// statusFor 领域错误到 HTTP 状态码
func statusFor(err error) int {
	switch {
	case errors.Is(err, catalog.ErrNotFound), errors.Is(err, player.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, catalog.ErrInvalidArgument), errors.Is(err, player.ErrInvalidVideoFilename):
		return http.StatusBadRequest
	case errors.Is(err, catalog.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, player.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, player.ErrRangeNotSatisfiable):
		return http.StatusRequestedRangeNotSatisfiable
	default:
		return http.StatusInternalServerError
	}
}

// writeError 4xx 返回错误原文，5xx 只记录日志
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		logger.Error("[HTTP] 内部错误",
			logger.String("method", r.Method),
			logger.String("path", r.URL.Path),
			logger.ErrorField(err))
		writeJSON(w, status, errorBody{Error: "Internal server error"})
		return
	}
	msg := err.Error()
	if errors.Is(err, player.ErrForbidden) {
		msg = player.ErrForbidden.Error()
	}
	writeJSON(w, status, errorBody{Error: msg})
}

// decodeJSON 解析请求体，optional 时允许空请求体
func decodeJSON(r *http.Request, v interface{}, optional bool) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) && optional {
			return nil
		}
		return fmt.Errorf("%w: invalid request body: %v", catalog.ErrInvalidArgument, err)
	}
	return nil
}

// queryInt 缺省或无法解析时使用默认值
func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}
