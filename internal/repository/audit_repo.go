package repository

import (
	"context"

	"github.com/ErkamTaha/smart-factory/internal/domain"
)

// AuditRepository 审计日志Repository接口
// 写入是尽力而为的：调用方吞掉错误，绝不因审计失败改变权限决策
type AuditRepository interface {
	Append(ctx context.Context, entry *domain.AuditEntry) error
	ListRecent(ctx context.Context, limit int) ([]*domain.AuditEntry, error)
}
