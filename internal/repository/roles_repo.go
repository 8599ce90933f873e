package repository

import (
	"context"

	"github.com/ErkamTaha/smart-factory/internal/domain"
)

// RolesRepository 角色Repository接口
type RolesRepository interface {
	GetRole(ctx context.Context, name string) (*domain.Role, error)
	ListRoles(ctx context.Context) ([]*domain.Role, error)

	// PutRole 创建或整体替换角色（权限规则按定义顺序保存）
	PutRole(ctx context.Context, role *domain.Role) error

	DeleteRole(ctx context.Context, name string) error
}
