package server

import (
	"context"
	"fmt"
	"net/http"

	"songcatalog/core/catalog"
	"songcatalog/core/feed"
	"songcatalog/logger"

	"github.com/gorilla/mux"
)

// checkKind 目前只有歌曲条目可以修改
func checkKind(kind string) error {
	switch kind {
	case catalog.KindSong:
		return nil
	case catalog.KindCollection:
		return fmt.Errorf("%w: collections have no availability of their own", catalog.ErrNotFound)
	default:
		return fmt.Errorf("%w: unknown catalog kind %q", catalog.ErrInvalidArgument, kind)
	}
}

// ListCatalogHandler GET /api/admin/catalog
func (h *APIHandler) ListCatalogHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	result, err := h.catalog.ListCatalog(r.Context(), catalog.ListQuery{
		Q:        q.Get("q"),
		Type:     q.Get("type"),
		Status:   q.Get("status"),
		HasVideo: q.Get("hasVideo"),
		Region:   q.Get("region"),
		From:     q.Get("from"),
		To:       q.Get("to"),
		Sort:     q.Get("sort"),
		Page:     queryInt(r, "page", 0),
		PerPage:  queryInt(r, "perPage", 0),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// GetCatalogItemHandler GET /api/admin/catalog/{kind}/{id}
func (h *APIHandler) GetCatalogItemHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if err := checkKind(vars["kind"]); err != nil {
		writeError(w, r, err)
		return
	}
	detail, err := h.catalog.GetItem(r.Context(), vars["kind"], vars["id"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

// BlockHandler POST /api/admin/catalog/{kind}/{id}/block
func (h *APIHandler) BlockHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if err := checkKind(vars["kind"]); err != nil {
		writeError(w, r, err)
		return
	}
	var req catalog.BlockRequest
	if err := decodeJSON(r, &req, false); err != nil {
		writeError(w, r, err)
		return
	}
	req.Actor = ActorFromContext(r.Context())

	song, err := h.catalog.Block(r.Context(), vars["id"], req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, catalog.Project(song))
}

// UnblockHandler POST /api/admin/catalog/{kind}/{id}/unblock
func (h *APIHandler) UnblockHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if err := checkKind(vars["kind"]); err != nil {
		writeError(w, r, err)
		return
	}
	var req catalog.UnblockRequest
	if err := decodeJSON(r, &req, true); err != nil {
		writeError(w, r, err)
		return
	}
	req.Actor = ActorFromContext(r.Context())

	song, err := h.catalog.Unblock(r.Context(), vars["id"], req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, catalog.Project(song))
}

// UpdateAvailabilityHandler PATCH /api/admin/catalog/{kind}/{id}/availability
func (h *APIHandler) UpdateAvailabilityHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if err := checkKind(vars["kind"]); err != nil {
		writeError(w, r, err)
		return
	}
	var req catalog.AvailabilityRequest
	if err := decodeJSON(r, &req, false); err != nil {
		writeError(w, r, err)
		return
	}
	req.Actor = ActorFromContext(r.Context())

	song, err := h.catalog.UpdateAvailability(r.Context(), vars["id"], req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, catalog.Project(song))
}

// CatalogFeedHandler GET /api/admin/catalog/feed，升级为 websocket 推送变更
func (h *APIHandler) CatalogFeedHandler(w http.ResponseWriter, r *http.Request) {
	if h.feed == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "Feed is not enabled"})
		return
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("[Feed] websocket 升级失败", logger.ErrorField(err))
		return
	}

	client := feed.NewClient(h.feed, conn, ActorFromContext(r.Context()))
	h.feed.Register(client)
	go client.WritePump()
	// 请求 context 在 handler 返回后取消，读循环使用独立 context
	go client.ReadPump(context.Background())
}
