package repository

import (
	"context"
	"sync"

	"github.com/ErkamTaha/smart-factory/internal/domain"
)

// MemoryAuditRepository 内存审计日志Repository（环形保留最近maxEntries条）
type MemoryAuditRepository struct {
	mu         sync.RWMutex
	entries    []*domain.AuditEntry
	maxEntries int
}

// NewMemoryAuditRepository 创建内存审计日志Repository
func NewMemoryAuditRepository() *MemoryAuditRepository {
	return &MemoryAuditRepository{maxEntries: 1000}
}

var _ AuditRepository = (*MemoryAuditRepository)(nil)

func (r *MemoryAuditRepository) Append(_ context.Context, entry *domain.AuditEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c := *entry
	r.entries = append(r.entries, &c)
	if len(r.entries) > r.maxEntries {
		r.entries = r.entries[len(r.entries)-r.maxEntries:]
	}
	return nil
}

func (r *MemoryAuditRepository) ListRecent(_ context.Context, limit int) ([]*domain.AuditEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if limit <= 0 || limit > len(r.entries) {
		limit = len(r.entries)
	}

	// 最新的在前
	out := make([]*domain.AuditEntry, 0, limit)
	for i := len(r.entries) - 1; i >= len(r.entries)-limit; i-- {
		c := *r.entries[i]
		out = append(out, &c)
	}
	return out, nil
}
