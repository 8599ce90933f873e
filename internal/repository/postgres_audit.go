package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ErkamTaha/smart-factory/internal/domain"

	"go.uber.org/zap"
)

// PostgresAuditRepository 审计日志Repository实现
type PostgresAuditRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPostgresAuditRepository 创建审计日志Repository
func NewPostgresAuditRepository(db *sql.DB, logger *zap.Logger) *PostgresAuditRepository {
	return &PostgresAuditRepository{db: db, logger: logger}
}

var _ AuditRepository = (*PostgresAuditRepository)(nil)

// Append 追加一条审计记录
func (r *PostgresAuditRepository) Append(ctx context.Context, entry *domain.AuditEntry) error {
	query := `
		INSERT INTO acl_audit_log (id, username, action, resource, result, reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	if _, err := r.db.ExecContext(ctx, query,
		entry.ID,
		entry.Username,
		entry.Action,
		entry.Resource,
		entry.Result,
		entry.Reason,
		entry.CreatedAt,
	); err != nil {
		return fmt.Errorf("failed to insert audit entry: %w", err)
	}
	return nil
}

// ListRecent 查询最近的审计记录
func (r *PostgresAuditRepository) ListRecent(ctx context.Context, limit int) ([]*domain.AuditEntry, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT id, username, action, resource, result, reason, created_at
		FROM acl_audit_log
		ORDER BY created_at DESC
		LIMIT $1
	`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	defer rows.Close()

	var entries []*domain.AuditEntry
	for rows.Next() {
		var entry domain.AuditEntry
		var reason sql.NullString
		if err := rows.Scan(
			&entry.ID,
			&entry.Username,
			&entry.Action,
			&entry.Resource,
			&entry.Result,
			&reason,
			&entry.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		if reason.Valid {
			entry.Reason = reason.String
		}
		entries = append(entries, &entry)
	}
	return entries, rows.Err()
}
