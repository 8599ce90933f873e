package httpapi

import (
	"net/http"

	"go.uber.org/zap"
)

// Router 使用标准库 http.ServeMux（避免引入第三方路由依赖）
type Router struct {
	mux    *http.ServeMux
	logger *zap.Logger
}

func NewRouter(logger *zap.Logger) *Router {
	return &Router{
		mux:    http.NewServeMux(),
		logger: logger,
	}
}

func (r *Router) Handle(pattern string, h http.HandlerFunc) {
	r.mux.HandleFunc(pattern, h)
}

// HandleHandler 支持 http.Handler 接口
func (r *Router) HandleHandler(pattern string, h http.Handler) {
	r.mux.Handle(pattern, h)
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// RegisterRoutes 注册全部API路由
func (r *Router) RegisterRoutes(
	acl *ACLHandler,
	sensors *SensorHandler,
	alerts *AlertHandler,
	sessions *SessionHandler,
	ws *WSHandler,
) {
	// ACL管理
	r.HandleHandler("/api/v1/acl/accounts", acl)
	r.HandleHandler("/api/v1/acl/accounts/", acl)
	r.HandleHandler("/api/v1/acl/roles", acl)
	r.HandleHandler("/api/v1/acl/roles/", acl)
	r.HandleHandler("/api/v1/acl/reload", acl)
	r.HandleHandler("/api/v1/acl/audit", acl)

	// 传感器与阈值配置
	r.HandleHandler("/api/v1/sensors", sensors)
	r.HandleHandler("/api/v1/sensors/", sensors)

	// 报警
	r.HandleHandler("/api/v1/alerts", alerts)
	r.HandleHandler("/api/v1/alerts/", alerts)

	// 会话
	r.HandleHandler("/api/v1/sessions", sessions)

	// WebSocket入口
	r.Handle("/ws", ws.HandleWS)

	// 健康检查
	r.Handle("/health", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
}
