package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ErkamTaha/smart-factory/internal/domain"

	"go.uber.org/zap"
)

// PostgresAccountsRepository ACL账号Repository实现
// roles 与 custom_permissions 以 JSONB 存储，保持定义顺序
type PostgresAccountsRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPostgresAccountsRepository 创建ACL账号Repository
func NewPostgresAccountsRepository(db *sql.DB, logger *zap.Logger) *PostgresAccountsRepository {
	return &PostgresAccountsRepository{db: db, logger: logger}
}

// 确保实现了接口
var _ AccountsRepository = (*PostgresAccountsRepository)(nil)

// GetAccount 根据username查询账号
func (r *PostgresAccountsRepository) GetAccount(ctx context.Context, username string) (*domain.Account, error) {
	if username == "" {
		return nil, fmt.Errorf("%w: username is required", domain.ErrValidation)
	}

	query := `
		SELECT
			username,
			email,
			roles,
			custom_permissions,
			is_active,
			created_at,
			updated_at,
			last_login
		FROM acl_accounts
		WHERE username = $1
	`

	var account domain.Account
	var email sql.NullString
	var lastLogin sql.NullTime
	var roles, customPerms []byte

	err := r.db.QueryRowContext(ctx, query, username).Scan(
		&account.Username,
		&email,
		&roles,
		&customPerms,
		&account.IsActive,
		&account.CreatedAt,
		&account.UpdatedAt,
		&lastLogin,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%w: account %s", domain.ErrNotFound, username)
		}
		return nil, fmt.Errorf("failed to query account: %w", err)
	}

	if email.Valid {
		account.Email = email.String
	}
	if lastLogin.Valid {
		t := lastLogin.Time
		account.LastLogin = &t
	}
	if err := json.Unmarshal(roles, &account.Roles); err != nil {
		return nil, fmt.Errorf("failed to unmarshal roles for %s: %w", username, err)
	}
	if err := json.Unmarshal(customPerms, &account.CustomPermissions); err != nil {
		return nil, fmt.Errorf("failed to unmarshal custom_permissions for %s: %w", username, err)
	}

	return &account, nil
}

// ListAccounts 查询全部账号
func (r *PostgresAccountsRepository) ListAccounts(ctx context.Context, activeOnly bool) ([]*domain.Account, error) {
	query := `
		SELECT
			username,
			email,
			roles,
			custom_permissions,
			is_active,
			created_at,
			updated_at,
			last_login
		FROM acl_accounts
	`
	if activeOnly {
		query += ` WHERE is_active = true`
	}
	query += ` ORDER BY username`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*domain.Account
	for rows.Next() {
		var account domain.Account
		var email sql.NullString
		var lastLogin sql.NullTime
		var roles, customPerms []byte

		if err := rows.Scan(
			&account.Username,
			&email,
			&roles,
			&customPerms,
			&account.IsActive,
			&account.CreatedAt,
			&account.UpdatedAt,
			&lastLogin,
		); err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}

		if email.Valid {
			account.Email = email.String
		}
		if lastLogin.Valid {
			t := lastLogin.Time
			account.LastLogin = &t
		}
		if err := json.Unmarshal(roles, &account.Roles); err != nil {
			return nil, fmt.Errorf("failed to unmarshal roles: %w", err)
		}
		if err := json.Unmarshal(customPerms, &account.CustomPermissions); err != nil {
			return nil, fmt.Errorf("failed to unmarshal custom_permissions: %w", err)
		}

		accounts = append(accounts, &account)
	}
	return accounts, rows.Err()
}

// CreateAccount 创建账号
func (r *PostgresAccountsRepository) CreateAccount(ctx context.Context, account *domain.Account) error {
	if account.Username == "" {
		return fmt.Errorf("%w: username is required", domain.ErrValidation)
	}

	roles, err := json.Marshal(nonNilRoles(account.Roles))
	if err != nil {
		return fmt.Errorf("failed to marshal roles: %w", err)
	}
	customPerms, err := json.Marshal(nonNilPermissions(account.CustomPermissions))
	if err != nil {
		return fmt.Errorf("failed to marshal custom_permissions: %w", err)
	}

	query := `
		INSERT INTO acl_accounts (username, email, roles, custom_permissions, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
	`
	if _, err := r.db.ExecContext(ctx, query,
		account.Username,
		nullString(account.Email),
		roles,
		customPerms,
		account.IsActive,
	); err != nil {
		return fmt.Errorf("failed to insert account %s: %w", account.Username, err)
	}

	return nil
}

// UpdateAccount 整体替换账号的roles/custom_permissions/is_active
// 单语句UPDATE，并发读取方不会观察到半更新状态
func (r *PostgresAccountsRepository) UpdateAccount(ctx context.Context, account *domain.Account) error {
	if account.Username == "" {
		return fmt.Errorf("%w: username is required", domain.ErrValidation)
	}

	roles, err := json.Marshal(nonNilRoles(account.Roles))
	if err != nil {
		return fmt.Errorf("failed to marshal roles: %w", err)
	}
	customPerms, err := json.Marshal(nonNilPermissions(account.CustomPermissions))
	if err != nil {
		return fmt.Errorf("failed to marshal custom_permissions: %w", err)
	}

	query := `
		UPDATE acl_accounts
		SET roles = $2,
		    custom_permissions = $3,
		    is_active = $4,
		    updated_at = NOW()
		WHERE username = $1
	`
	result, err := r.db.ExecContext(ctx, query, account.Username, roles, customPerms, account.IsActive)
	if err != nil {
		return fmt.Errorf("failed to update account %s: %w", account.Username, err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: account %s", domain.ErrNotFound, account.Username)
	}

	return nil
}

// DeactivateAccount 软删除账号
func (r *PostgresAccountsRepository) DeactivateAccount(ctx context.Context, username string) error {
	if username == "" {
		return fmt.Errorf("%w: username is required", domain.ErrValidation)
	}

	query := `UPDATE acl_accounts SET is_active = false, updated_at = NOW() WHERE username = $1`
	result, err := r.db.ExecContext(ctx, query, username)
	if err != nil {
		return fmt.Errorf("failed to deactivate account %s: %w", username, err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: account %s", domain.ErrNotFound, username)
	}

	return nil
}

// TouchLastLogin 更新最后登录时间
func (r *PostgresAccountsRepository) TouchLastLogin(ctx context.Context, username string, at time.Time) error {
	query := `UPDATE acl_accounts SET last_login = $2 WHERE username = $1`
	if _, err := r.db.ExecContext(ctx, query, username, at); err != nil {
		return fmt.Errorf("failed to touch last_login for %s: %w", username, err)
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nonNilRoles(roles []string) []string {
	if roles == nil {
		return []string{}
	}
	return roles
}

func nonNilPermissions(perms []domain.Permission) []domain.Permission {
	if perms == nil {
		return []domain.Permission{}
	}
	return perms
}
