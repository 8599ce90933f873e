package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ErkamTaha/smart-factory/internal/domain"
)

// MemorySensorsRepository 内存传感器Repository
type MemorySensorsRepository struct {
	mu      sync.RWMutex
	sensors map[string]*domain.Sensor
}

// NewMemorySensorsRepository 创建内存传感器Repository
func NewMemorySensorsRepository() *MemorySensorsRepository {
	return &MemorySensorsRepository{
		sensors: map[string]*domain.Sensor{},
	}
}

var _ SensorsRepository = (*MemorySensorsRepository)(nil)

func (r *MemorySensorsRepository) GetSensor(_ context.Context, sensorID string) (*domain.Sensor, error) {
	if sensorID == "" {
		return nil, fmt.Errorf("%w: sensor_id is required", domain.ErrValidation)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	sensor, ok := r.sensors[sensorID]
	if !ok {
		return nil, fmt.Errorf("%w: sensor %s", domain.ErrNotFound, sensorID)
	}
	return copySensor(sensor), nil
}

func (r *MemorySensorsRepository) ListSensors(_ context.Context, activeOnly bool) ([]*domain.Sensor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var sensors []*domain.Sensor
	for _, sensor := range r.sensors {
		if activeOnly && !sensor.IsActive {
			continue
		}
		sensors = append(sensors, copySensor(sensor))
	}
	sort.Slice(sensors, func(i, j int) bool {
		return sensors[i].SensorID < sensors[j].SensorID
	})
	return sensors, nil
}

func (r *MemorySensorsRepository) CreateSensor(_ context.Context, sensor *domain.Sensor) error {
	if sensor.SensorID == "" {
		return fmt.Errorf("%w: sensor_id is required", domain.ErrValidation)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sensors[sensor.SensorID]; exists {
		return fmt.Errorf("%w: sensor %s already exists", domain.ErrValidation, sensor.SensorID)
	}

	stored := copySensor(sensor)
	now := time.Now().UTC()
	stored.CreatedAt = now
	stored.UpdatedAt = now
	r.sensors[sensor.SensorID] = stored
	return nil
}

func (r *MemorySensorsRepository) UpdateSensor(_ context.Context, sensor *domain.Sensor) error {
	if sensor.SensorID == "" {
		return fmt.Errorf("%w: sensor_id is required", domain.ErrValidation)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.sensors[sensor.SensorID]
	if !ok {
		return fmt.Errorf("%w: sensor %s", domain.ErrNotFound, sensor.SensorID)
	}

	stored := copySensor(sensor)
	stored.CreatedAt = existing.CreatedAt
	stored.UpdatedAt = time.Now().UTC()
	r.sensors[sensor.SensorID] = stored
	return nil
}

func (r *MemorySensorsRepository) DeactivateSensor(_ context.Context, sensorID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	sensor, ok := r.sensors[sensorID]
	if !ok {
		return fmt.Errorf("%w: sensor %s", domain.ErrNotFound, sensorID)
	}
	sensor.IsActive = false
	sensor.UpdatedAt = time.Now().UTC()
	return nil
}

func copySensor(s *domain.Sensor) *domain.Sensor {
	c := *s
	c.Limits = append([]domain.LimitConfig(nil), s.Limits...)
	return &c
}
