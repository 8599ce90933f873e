package httpapi

import (
	"net/http"

	"github.com/ErkamTaha/smart-factory/internal/session"

	"go.uber.org/zap"
)

// SessionHandler 会话查询Handler
type SessionHandler struct {
	registry *session.Registry
	logger   *zap.Logger
}

func NewSessionHandler(registry *session.Registry, logger *zap.Logger) *SessionHandler {
	return &SessionHandler{registry: registry, logger: logger}
}

// ServeHTTP 实现 http.Handler 接口
func (h *SessionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/api/v1/sessions" || r.Method != http.MethodGet {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, Ok(h.registry.ListActiveSessions()))
}
