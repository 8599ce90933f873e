package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ErkamTaha/smart-factory/internal/domain"

	"go.uber.org/zap"
)

// PostgresAlertsRepository 报警Repository实现
type PostgresAlertsRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPostgresAlertsRepository 创建报警Repository
func NewPostgresAlertsRepository(db *sql.DB, logger *zap.Logger) *PostgresAlertsRepository {
	return &PostgresAlertsRepository{db: db, logger: logger}
}

var _ AlertsRepository = (*PostgresAlertsRepository)(nil)

// CreateAlert 写入报警记录
func (r *PostgresAlertsRepository) CreateAlert(ctx context.Context, alert *domain.Alert) error {
	if alert.AlertID == "" {
		return fmt.Errorf("%w: alert_id is required", domain.ErrValidation)
	}
	if alert.SensorID == "" {
		return fmt.Errorf("%w: sensor_id is required", domain.ErrValidation)
	}

	query := `
		INSERT INTO ss_alerts (
			alert_id, sensor_id, alert_type, triggered_value, limit_value,
			unit, message, mqtt_topic, is_resolved, triggered_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	if _, err := r.db.ExecContext(ctx, query,
		alert.AlertID,
		alert.SensorID,
		string(alert.Kind),
		alert.TriggeredValue,
		alert.LimitValue,
		alert.Unit,
		alert.Message,
		nullString(alert.Topic),
		alert.IsResolved,
		alert.TriggeredAt,
	); err != nil {
		return fmt.Errorf("failed to insert alert %s: %w", alert.AlertID, err)
	}

	return nil
}

// GetAlert 根据alert_id查询报警
func (r *PostgresAlertsRepository) GetAlert(ctx context.Context, alertID string) (*domain.Alert, error) {
	if alertID == "" {
		return nil, fmt.Errorf("%w: alert_id is required", domain.ErrValidation)
	}

	query := `
		SELECT alert_id, sensor_id, alert_type, triggered_value, limit_value,
		       unit, message, mqtt_topic, is_resolved, triggered_at, resolved_at
		FROM ss_alerts
		WHERE alert_id = $1
	`

	alert, err := scanAlert(r.db.QueryRowContext(ctx, query, alertID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%w: alert %s", domain.ErrNotFound, alertID)
		}
		return nil, fmt.Errorf("failed to query alert: %w", err)
	}

	return alert, nil
}

// ListAlerts 查询报警列表（按触发时间倒序）
func (r *PostgresAlertsRepository) ListAlerts(ctx context.Context, filter AlertsFilter) ([]*domain.Alert, error) {
	query := `
		SELECT alert_id, sensor_id, alert_type, triggered_value, limit_value,
		       unit, message, mqtt_topic, is_resolved, triggered_at, resolved_at
		FROM ss_alerts
		WHERE 1=1
	`
	args := []any{}
	argPos := 1

	if filter.SensorID != "" {
		query += fmt.Sprintf(" AND sensor_id = $%d", argPos)
		args = append(args, filter.SensorID)
		argPos++
	}
	if !filter.IncludeResolved {
		query += " AND is_resolved = false"
	}
	query += " ORDER BY triggered_at DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argPos)
		args = append(args, filter.Limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}
	defer rows.Close()

	var alerts []*domain.Alert
	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		alerts = append(alerts, alert)
	}
	return alerts, rows.Err()
}

// SetResolved 设置报警resolved状态
func (r *PostgresAlertsRepository) SetResolved(ctx context.Context, alertID string, resolved bool, resolvedAt *time.Time) error {
	if alertID == "" {
		return fmt.Errorf("%w: alert_id is required", domain.ErrValidation)
	}

	var at sql.NullTime
	if resolvedAt != nil {
		at = sql.NullTime{Time: *resolvedAt, Valid: true}
	}

	query := `UPDATE ss_alerts SET is_resolved = $2, resolved_at = $3 WHERE alert_id = $1`
	result, err := r.db.ExecContext(ctx, query, alertID, resolved, at)
	if err != nil {
		return fmt.Errorf("failed to update alert %s: %w", alertID, err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: alert %s", domain.ErrNotFound, alertID)
	}

	return nil
}

// rowScanner 兼容 *sql.Row 和 *sql.Rows
type rowScanner interface {
	Scan(dest ...any) error
}

func scanAlert(row rowScanner) (*domain.Alert, error) {
	var alert domain.Alert
	var kind string
	var topic sql.NullString
	var resolvedAt sql.NullTime

	if err := row.Scan(
		&alert.AlertID,
		&alert.SensorID,
		&kind,
		&alert.TriggeredValue,
		&alert.LimitValue,
		&alert.Unit,
		&alert.Message,
		&topic,
		&alert.IsResolved,
		&alert.TriggeredAt,
		&resolvedAt,
	); err != nil {
		return nil, err
	}

	alert.Kind = domain.AlertKind(kind)
	if topic.Valid {
		alert.Topic = topic.String
	}
	if resolvedAt.Valid {
		t := resolvedAt.Time
		alert.ResolvedAt = &t
	}

	return &alert, nil
}
