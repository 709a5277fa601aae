package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"songcatalog/core/auth"
	"songcatalog/core/catalog"
	"songcatalog/core/feed"
	"songcatalog/core/library"
	"songcatalog/core/player"
	"songcatalog/logger"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

// Deps 组装 HTTP 层需要的服务
type Deps struct {
	Catalog *catalog.Service
	Library *library.Service
	Player  *player.Service
	Tokens  *auth.TokenIssuer
	Feed    *feed.Hub
	Metrics *Metrics

	// 用户名 -> bcrypt hash
	Admins          map[string]string
	LoginRatePerMin int
	MaxUploadMB     int64
}

// APIHandler holds all the HTTP handlers.
type APIHandler struct {
	catalog   *catalog.Service
	library   *library.Service
	player    *player.Service
	tokens    *auth.TokenIssuer
	feed      *feed.Hub
	metrics   *Metrics
	admins    auth.Admins
	limiter   *loginLimiter
	maxUpload int64
	upgrader  websocket.Upgrader
}

// NewAPIHandler creates a new APIHandler.
func NewAPIHandler(d Deps) *APIHandler {
	maxUpload := d.MaxUploadMB
	if maxUpload <= 0 {
		maxUpload = 512
	}
	admins := d.Admins
	if admins == nil {
		admins = map[string]string{}
	}
	return &APIHandler{
		catalog:   d.Catalog,
		library:   d.Library,
		player:    d.Player,
		tokens:    d.Tokens,
		feed:      d.Feed,
		metrics:   d.Metrics,
		admins:    admins,
		limiter:   newLoginLimiter(d.LoginRatePerMin),
		maxUpload: maxUpload << 20,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Router 注册全部路由
func (h *APIHandler) Router() http.Handler {
	router := mux.NewRouter()
	router.Use(recoveryMiddleware, corsMiddleware, loggingMiddleware)
	if h.metrics != nil {
		router.Use(h.metrics.Middleware)
		router.Handle("/metrics", h.metrics.Handler()).Methods(http.MethodGet)
	}

	router.HandleFunc("/healthz", h.HealthHandler).Methods(http.MethodGet)

	// 公共接口
	router.HandleFunc("/api/auth/login", h.LoginHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/songs/search", h.SearchSongsHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/songs/random", h.RandomSongsHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/songs/upload", h.AuthMiddleware(h.UploadSongHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/songs/{id}", h.GetSongHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/songs/{id}", h.AuthMiddleware(h.UpdateSongHandler)).Methods(http.MethodPatch)
	router.HandleFunc("/api/songs/{id}/video", h.AuthMiddleware(h.AttachVideoHandler)).Methods(http.MethodPost)

	router.HandleFunc("/api/player/play/{id}", h.PlaySongHandler).Methods(http.MethodGet, http.MethodHead)
	router.HandleFunc("/api/player/video/{id}/{filename}", h.PlayVideoHandler).Methods(http.MethodGet, http.MethodHead)

	// 后台目录管理
	admin := router.PathPrefix("/api/admin/catalog").Subrouter()
	admin.HandleFunc("", h.AuthMiddleware(h.ListCatalogHandler)).Methods(http.MethodGet)
	admin.HandleFunc("/feed", h.AuthMiddleware(h.CatalogFeedHandler)).Methods(http.MethodGet)
	admin.HandleFunc("/{kind}/{id}", h.AuthMiddleware(h.GetCatalogItemHandler)).Methods(http.MethodGet)
	admin.HandleFunc("/{kind}/{id}/availability", h.AuthMiddleware(h.UpdateAvailabilityHandler)).Methods(http.MethodPatch)
	admin.HandleFunc("/{kind}/{id}/block", h.AuthMiddleware(h.BlockHandler)).Methods(http.MethodPost)
	admin.HandleFunc("/{kind}/{id}/unblock", h.AuthMiddleware(h.UnblockHandler)).Methods(http.MethodPost)

	// CORS 预检请求由 corsMiddleware 直接应答
	router.PathPrefix("/").Methods(http.MethodOptions).HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})

	return router
}

// HealthHandler 存活检查
func (h *APIHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Serve runs the HTTP server until ctx is cancelled, then shuts down gracefully.
func Serve(ctx context.Context, addr string, handler http.Handler) error {
	// 设置服务器超时，播放和上传需要较长的写超时
	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      10 * time.Minute,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("[Server] HTTP 服务启动", logger.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("[Server] 正在关闭服务...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	logger.Info("[Server] 服务已停止")
	return nil
}
