package repository

import (
	"context"
	"time"

	"github.com/ErkamTaha/smart-factory/internal/domain"
)

// AccountsRepository ACL账号Repository接口
// 使用强类型领域模型，不使用map[string]any
// Repository层只负责数据访问和数据完整性验证，业务规则在上层验证
type AccountsRepository interface {
	// 查询
	GetAccount(ctx context.Context, username string) (*domain.Account, error)
	ListAccounts(ctx context.Context, activeOnly bool) ([]*domain.Account, error)

	// 创建
	CreateAccount(ctx context.Context, account *domain.Account) error

	// 更新（整体替换roles/custom_permissions/is_active，单语句提交避免半更新状态）
	UpdateAccount(ctx context.Context, account *domain.Account) error

	// 软删除（is_active = false）
	DeactivateAccount(ctx context.Context, username string) error

	// 更新最后登录时间（评估路径上的副作用，失败可忽略）
	TouchLastLogin(ctx context.Context, username string, at time.Time) error
}
