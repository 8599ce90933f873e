package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/ErkamTaha/smart-factory/internal/domain"

	"go.uber.org/zap"
)

// PostgresRolesRepository 角色Repository实现
// permissions 以 JSONB 数组存储，保持定义顺序（评估顺序依赖它）
type PostgresRolesRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPostgresRolesRepository 创建角色Repository
func NewPostgresRolesRepository(db *sql.DB, logger *zap.Logger) *PostgresRolesRepository {
	return &PostgresRolesRepository{db: db, logger: logger}
}

var _ RolesRepository = (*PostgresRolesRepository)(nil)

// GetRole 根据名称查询角色
func (r *PostgresRolesRepository) GetRole(ctx context.Context, name string) (*domain.Role, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: role name is required", domain.ErrValidation)
	}

	query := `SELECT name, description, permissions FROM acl_roles WHERE name = $1`

	var role domain.Role
	var description sql.NullString
	var permissions []byte

	err := r.db.QueryRowContext(ctx, query, name).Scan(&role.Name, &description, &permissions)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%w: role %s", domain.ErrNotFound, name)
		}
		return nil, fmt.Errorf("failed to query role: %w", err)
	}

	if description.Valid {
		role.Description = description.String
	}
	if err := json.Unmarshal(permissions, &role.Permissions); err != nil {
		return nil, fmt.Errorf("failed to unmarshal permissions for role %s: %w", name, err)
	}

	return &role, nil
}

// ListRoles 查询全部角色
func (r *PostgresRolesRepository) ListRoles(ctx context.Context) ([]*domain.Role, error) {
	query := `SELECT name, description, permissions FROM acl_roles ORDER BY name`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list roles: %w", err)
	}
	defer rows.Close()

	var roles []*domain.Role
	for rows.Next() {
		var role domain.Role
		var description sql.NullString
		var permissions []byte

		if err := rows.Scan(&role.Name, &description, &permissions); err != nil {
			return nil, fmt.Errorf("failed to scan role: %w", err)
		}
		if description.Valid {
			role.Description = description.String
		}
		if err := json.Unmarshal(permissions, &role.Permissions); err != nil {
			return nil, fmt.Errorf("failed to unmarshal permissions: %w", err)
		}
		roles = append(roles, &role)
	}
	return roles, rows.Err()
}

// PutRole 创建或整体替换角色
func (r *PostgresRolesRepository) PutRole(ctx context.Context, role *domain.Role) error {
	if role.Name == "" {
		return fmt.Errorf("%w: role name is required", domain.ErrValidation)
	}

	permissions, err := json.Marshal(nonNilPermissions(role.Permissions))
	if err != nil {
		return fmt.Errorf("failed to marshal permissions: %w", err)
	}

	query := `
		INSERT INTO acl_roles (name, description, permissions)
		VALUES ($1, $2, $3)
		ON CONFLICT (name)
		DO UPDATE SET description = EXCLUDED.description,
		              permissions = EXCLUDED.permissions
	`
	if _, err := r.db.ExecContext(ctx, query, role.Name, nullString(role.Description), permissions); err != nil {
		return fmt.Errorf("failed to put role %s: %w", role.Name, err)
	}

	return nil
}

// DeleteRole 删除角色
func (r *PostgresRolesRepository) DeleteRole(ctx context.Context, name string) error {
	if name == "" {
		return fmt.Errorf("%w: role name is required", domain.ErrValidation)
	}

	result, err := r.db.ExecContext(ctx, `DELETE FROM acl_roles WHERE name = $1`, name)
	if err != nil {
		return fmt.Errorf("failed to delete role %s: %w", name, err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: role %s", domain.ErrNotFound, name)
	}

	return nil
}
