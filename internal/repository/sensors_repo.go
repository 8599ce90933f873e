package repository

import (
	"context"

	"github.com/ErkamTaha/smart-factory/internal/domain"
)

// SensorsRepository 传感器Repository接口
// 限值配置随传感器整体读写（任意时刻最多一个 Selected，由上层校验）
type SensorsRepository interface {
	GetSensor(ctx context.Context, sensorID string) (*domain.Sensor, error)
	ListSensors(ctx context.Context, activeOnly bool) ([]*domain.Sensor, error)

	CreateSensor(ctx context.Context, sensor *domain.Sensor) error

	// UpdateSensor 整体替换pattern/type/is_active/limits
	UpdateSensor(ctx context.Context, sensor *domain.Sensor) error

	// 软删除（is_active = false）
	DeactivateSensor(ctx context.Context, sensorID string) error
}
