package server

import (
	"io"
	"net/http"
	"strconv"
	"strings"

	"songcatalog/core/player"
	"songcatalog/logger"

	"github.com/gorilla/mux"
)

// requestRegion 播放地区，优先 ?region=，其次 X-Region 头
func requestRegion(r *http.Request) string {
	if region := r.URL.Query().Get("region"); region != "" {
		return region
	}
	return r.Header.Get("X-Region")
}

// PlaySongHandler GET /api/player/play/{id}
func (h *APIHandler) PlaySongHandler(w http.ResponseWriter, r *http.Request) {
	details, err := h.player.SongStream(r.Context(), mux.Vars(r)["id"], r.Header.Get("Range"), requestRegion(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.writeStream(w, r, details, false)
}

// PlayVideoHandler GET /api/player/video/{id}/{filename}
func (h *APIHandler) PlayVideoHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	details, err := h.player.VideoStream(r.Context(), vars["id"], vars["filename"], r.Header.Get("Range"), requestRegion(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.writeStream(w, r, details, strings.HasSuffix(vars["filename"], ".m3u8"))
}

func (h *APIHandler) writeStream(w http.ResponseWriter, r *http.Request, d *player.StreamDetails, playlist bool) {
	defer d.Body.Close()

	w.Header().Set("Content-Type", d.ContentType)
	w.Header().Set("Content-Length", strconv.FormatInt(d.ContentLength, 10))
	w.Header().Set("Accept-Ranges", "bytes")
	if playlist {
		w.Header().Set("Cache-Control", "no-cache")
	} else {
		w.Header().Set("Cache-Control", "public, max-age=31536000") // 缓存一年
	}

	status := http.StatusOK
	if d.Partial {
		w.Header().Set("Content-Range", d.ContentRange)
		status = http.StatusPartialContent
	}
	w.WriteHeader(status)
	if r.Method == http.MethodHead {
		return
	}
	if _, err := io.Copy(w, d.Body); err != nil {
		logger.Debug("[Player] 客户端中断传输", logger.String("path", r.URL.Path), logger.ErrorField(err))
	}
}
