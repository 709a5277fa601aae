package server

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"songcatalog/logger"

	"golang.org/x/time/rate"
)

// LoginRequest represents the login request body
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// loginLimiter 按客户端 IP 限制登录频率
type loginLimiter struct {
	mu       sync.Mutex
	perMin   int
	limiters map[string]*rate.Limiter
}

func newLoginLimiter(perMin int) *loginLimiter {
	if perMin <= 0 {
		perMin = 5
	}
	return &loginLimiter{perMin: perMin, limiters: make(map[string]*rate.Limiter)}
}

func (l *loginLimiter) allow(key string) bool {
	l.mu.Lock()
	limiter, ok := l.limiters[key]
	if !ok {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(l.perMin)), l.perMin)
		l.limiters[key] = limiter
	}
	l.mu.Unlock()
	return limiter.Allow()
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// LoginHandler handles admin login requests
func (h *APIHandler) LoginHandler(w http.ResponseWriter, r *http.Request) {
	ip := clientIP(r)
	if !h.limiter.allow(ip) {
		logger.Warn("[Login] 登录过于频繁", logger.String("ip", ip))
		writeJSON(w, http.StatusTooManyRequests, errorBody{Error: "Too many login attempts"})
		return
	}

	var req LoginRequest
	if err := decodeJSON(r, &req, false); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Username == "" || req.Password == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "Username and password are required"})
		return
	}

	if !h.admins.Verify(req.Username, req.Password) {
		logger.Warn("[Login] 认证失败", logger.String("username", req.Username), logger.String("ip", ip))
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: "Invalid username or password"})
		return
	}

	token, expiresAt, err := h.tokens.GenerateToken(req.Username)
	if err != nil {
		writeError(w, r, err)
		return
	}

	logger.Info("[Login] 管理员登录", logger.String("username", req.Username))
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"token":     token,
		"expiresAt": expiresAt.UTC(),
		"user":      map[string]string{"username": req.Username},
	})
}
