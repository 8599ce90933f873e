package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/ErkamTaha/smart-factory/internal/domain"
)

// MemoryRolesRepository 内存角色Repository
type MemoryRolesRepository struct {
	mu    sync.RWMutex
	roles map[string]*domain.Role
}

// NewMemoryRolesRepository 创建内存角色Repository
func NewMemoryRolesRepository() *MemoryRolesRepository {
	return &MemoryRolesRepository{
		roles: map[string]*domain.Role{},
	}
}

var _ RolesRepository = (*MemoryRolesRepository)(nil)

func (r *MemoryRolesRepository) GetRole(_ context.Context, name string) (*domain.Role, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: role name is required", domain.ErrValidation)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	role, ok := r.roles[name]
	if !ok {
		return nil, fmt.Errorf("%w: role %s", domain.ErrNotFound, name)
	}
	return copyRole(role), nil
}

func (r *MemoryRolesRepository) ListRoles(_ context.Context) ([]*domain.Role, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var roles []*domain.Role
	for _, role := range r.roles {
		roles = append(roles, copyRole(role))
	}
	sort.Slice(roles, func(i, j int) bool {
		return roles[i].Name < roles[j].Name
	})
	return roles, nil
}

func (r *MemoryRolesRepository) PutRole(_ context.Context, role *domain.Role) error {
	if role.Name == "" {
		return fmt.Errorf("%w: role name is required", domain.ErrValidation)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.roles[role.Name] = copyRole(role)
	return nil
}

func (r *MemoryRolesRepository) DeleteRole(_ context.Context, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.roles[name]; !ok {
		return fmt.Errorf("%w: role %s", domain.ErrNotFound, name)
	}
	delete(r.roles, name)
	return nil
}

func copyRole(role *domain.Role) *domain.Role {
	c := *role
	c.Permissions = copyPermissions(role.Permissions)
	return &c
}
