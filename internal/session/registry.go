package session

import (
	"context"
	"sort"
	"sync"

	"github.com/ErkamTaha/smart-factory/internal/acl"
	"github.com/ErkamTaha/smart-factory/internal/alert"
	"github.com/ErkamTaha/smart-factory/internal/domain"

	"go.uber.org/zap"
)

// Registry 会话注册表：每个用户至多一个活跃会话
// 创建/移除由注册表级互斥锁串行化，避免同一用户并发建连
type Registry struct {
	engine    *acl.Engine
	evaluator *alert.Evaluator
	dialer    BrokerDialer
	cfg       ProxyConfig
	logger    *zap.Logger

	mu       sync.Mutex
	sessions map[string]*Proxy
}

// NewRegistry 创建会话注册表
func NewRegistry(
	engine *acl.Engine,
	evaluator *alert.Evaluator,
	cfg ProxyConfig,
	dialer BrokerDialer,
	logger *zap.Logger,
) *Registry {
	return &Registry{
		engine:    engine,
		evaluator: evaluator,
		dialer:    dialer,
		cfg:       cfg,
		logger:    logger,
		sessions:  map[string]*Proxy{},
	}
}

// CreateSession 为用户建立会话
// 已存在的会话先完整拆除再建新连接：任一时刻每个用户至多一条broker连接
func (r *Registry) CreateSession(ctx context.Context, userID string, sink Sink) (*Proxy, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if old, ok := r.sessions[userID]; ok {
		r.logger.Warn("replacing existing session",
			zap.String("user_id", userID),
		)
		old.Close()
		delete(r.sessions, userID)
	}

	proxy := NewProxy(userID, sink, r.engine, r.evaluator, r.cfg, r.dialer, r.logger)
	if err := proxy.Connect(); err != nil {
		proxy.Close()
		return nil, err
	}

	r.sessions[userID] = proxy
	r.logger.Info("session created",
		zap.String("user_id", userID),
		zap.Int("active_sessions", len(r.sessions)),
	)
	return proxy, nil
}

// GetSession 查找用户的活跃会话
func (r *Registry) GetSession(userID string) (*Proxy, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	proxy, ok := r.sessions[userID]
	return proxy, ok
}

// RemoveSession 拆除并移除用户会话（无会话时为no-op）
func (r *Registry) RemoveSession(userID string) {
	r.mu.Lock()
	proxy, ok := r.sessions[userID]
	if ok {
		delete(r.sessions, userID)
	}
	r.mu.Unlock()

	if ok {
		proxy.Close()
		r.logger.Info("session removed", zap.String("user_id", userID))
	}
}

// OnPolicyChanged 策略变更后对所有活跃会话重新校验订阅权限
// 已失权的订阅被撤销并通知各自的Sink
func (r *Registry) OnPolicyChanged(ctx context.Context) {
	r.mu.Lock()
	proxies := make([]*Proxy, 0, len(r.sessions))
	for _, proxy := range r.sessions {
		proxies = append(proxies, proxy)
	}
	r.mu.Unlock()

	r.logger.Info("revalidating sessions after policy change",
		zap.Int("sessions", len(proxies)),
	)
	for _, proxy := range proxies {
		proxy.Revalidate(ctx, false)
	}
}

// ListActiveSessions 所有活跃会话的快照（按用户排序）
func (r *Registry) ListActiveSessions() []domain.SessionInfo {
	r.mu.Lock()
	proxies := make([]*Proxy, 0, len(r.sessions))
	for _, proxy := range r.sessions {
		proxies = append(proxies, proxy)
	}
	r.mu.Unlock()

	infos := make([]domain.SessionInfo, 0, len(proxies))
	for _, proxy := range proxies {
		infos = append(infos, proxy.Info())
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].UserID < infos[j].UserID
	})
	return infos
}

// Count 活跃会话数
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// CloseAll 拆除所有会话（服务关停）
func (r *Registry) CloseAll() {
	r.mu.Lock()
	proxies := make([]*Proxy, 0, len(r.sessions))
	for _, proxy := range r.sessions {
		proxies = append(proxies, proxy)
	}
	r.sessions = map[string]*Proxy{}
	r.mu.Unlock()

	for _, proxy := range proxies {
		proxy.Close()
	}
	r.logger.Info("all sessions closed", zap.Int("count", len(proxies)))
}
