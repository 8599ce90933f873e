package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/ErkamTaha/smart-factory/internal/domain"

	"go.uber.org/zap"
)

// PostgresSensorsRepository 传感器Repository实现
// limits 以 JSONB 数组随传感器行整体读写
type PostgresSensorsRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPostgresSensorsRepository 创建传感器Repository
func NewPostgresSensorsRepository(db *sql.DB, logger *zap.Logger) *PostgresSensorsRepository {
	return &PostgresSensorsRepository{db: db, logger: logger}
}

var _ SensorsRepository = (*PostgresSensorsRepository)(nil)

// GetSensor 根据sensor_id查询传感器
func (r *PostgresSensorsRepository) GetSensor(ctx context.Context, sensorID string) (*domain.Sensor, error) {
	if sensorID == "" {
		return nil, fmt.Errorf("%w: sensor_id is required", domain.ErrValidation)
	}

	query := `
		SELECT sensor_id, pattern, sensor_type, is_active, limits, created_at, updated_at
		FROM ss_sensors
		WHERE sensor_id = $1
	`

	var sensor domain.Sensor
	var limits []byte

	err := r.db.QueryRowContext(ctx, query, sensorID).Scan(
		&sensor.SensorID,
		&sensor.Pattern,
		&sensor.Type,
		&sensor.IsActive,
		&limits,
		&sensor.CreatedAt,
		&sensor.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%w: sensor %s", domain.ErrNotFound, sensorID)
		}
		return nil, fmt.Errorf("failed to query sensor: %w", err)
	}

	if err := json.Unmarshal(limits, &sensor.Limits); err != nil {
		return nil, fmt.Errorf("failed to unmarshal limits for %s: %w", sensorID, err)
	}

	return &sensor, nil
}

// ListSensors 查询全部传感器
func (r *PostgresSensorsRepository) ListSensors(ctx context.Context, activeOnly bool) ([]*domain.Sensor, error) {
	query := `
		SELECT sensor_id, pattern, sensor_type, is_active, limits, created_at, updated_at
		FROM ss_sensors
	`
	if activeOnly {
		query += ` WHERE is_active = true`
	}
	query += ` ORDER BY sensor_id`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list sensors: %w", err)
	}
	defer rows.Close()

	var sensors []*domain.Sensor
	for rows.Next() {
		var sensor domain.Sensor
		var limits []byte

		if err := rows.Scan(
			&sensor.SensorID,
			&sensor.Pattern,
			&sensor.Type,
			&sensor.IsActive,
			&limits,
			&sensor.CreatedAt,
			&sensor.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan sensor: %w", err)
		}
		if err := json.Unmarshal(limits, &sensor.Limits); err != nil {
			return nil, fmt.Errorf("failed to unmarshal limits: %w", err)
		}
		sensors = append(sensors, &sensor)
	}
	return sensors, rows.Err()
}

// CreateSensor 创建传感器
func (r *PostgresSensorsRepository) CreateSensor(ctx context.Context, sensor *domain.Sensor) error {
	if sensor.SensorID == "" {
		return fmt.Errorf("%w: sensor_id is required", domain.ErrValidation)
	}

	limits, err := json.Marshal(nonNilLimits(sensor.Limits))
	if err != nil {
		return fmt.Errorf("failed to marshal limits: %w", err)
	}

	query := `
		INSERT INTO ss_sensors (sensor_id, pattern, sensor_type, is_active, limits, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
	`
	if _, err := r.db.ExecContext(ctx, query,
		sensor.SensorID,
		sensor.Pattern,
		sensor.Type,
		sensor.IsActive,
		limits,
	); err != nil {
		return fmt.Errorf("failed to insert sensor %s: %w", sensor.SensorID, err)
	}

	return nil
}

// UpdateSensor 整体替换传感器配置
func (r *PostgresSensorsRepository) UpdateSensor(ctx context.Context, sensor *domain.Sensor) error {
	if sensor.SensorID == "" {
		return fmt.Errorf("%w: sensor_id is required", domain.ErrValidation)
	}

	limits, err := json.Marshal(nonNilLimits(sensor.Limits))
	if err != nil {
		return fmt.Errorf("failed to marshal limits: %w", err)
	}

	query := `
		UPDATE ss_sensors
		SET pattern = $2,
		    sensor_type = $3,
		    is_active = $4,
		    limits = $5,
		    updated_at = NOW()
		WHERE sensor_id = $1
	`
	result, err := r.db.ExecContext(ctx, query,
		sensor.SensorID,
		sensor.Pattern,
		sensor.Type,
		sensor.IsActive,
		limits,
	)
	if err != nil {
		return fmt.Errorf("failed to update sensor %s: %w", sensor.SensorID, err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: sensor %s", domain.ErrNotFound, sensor.SensorID)
	}

	return nil
}

// DeactivateSensor 软删除传感器
func (r *PostgresSensorsRepository) DeactivateSensor(ctx context.Context, sensorID string) error {
	if sensorID == "" {
		return fmt.Errorf("%w: sensor_id is required", domain.ErrValidation)
	}

	query := `UPDATE ss_sensors SET is_active = false, updated_at = NOW() WHERE sensor_id = $1`
	result, err := r.db.ExecContext(ctx, query, sensorID)
	if err != nil {
		return fmt.Errorf("failed to deactivate sensor %s: %w", sensorID, err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: sensor %s", domain.ErrNotFound, sensorID)
	}

	return nil
}

func nonNilLimits(limits []domain.LimitConfig) []domain.LimitConfig {
	if limits == nil {
		return []domain.LimitConfig{}
	}
	return limits
}
