package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ErkamTaha/smart-factory/internal/domain"
)

// MemoryAlertsRepository 内存报警Repository
type MemoryAlertsRepository struct {
	mu     sync.RWMutex
	alerts map[string]*domain.Alert
}

// NewMemoryAlertsRepository 创建内存报警Repository
func NewMemoryAlertsRepository() *MemoryAlertsRepository {
	return &MemoryAlertsRepository{
		alerts: map[string]*domain.Alert{},
	}
}

var _ AlertsRepository = (*MemoryAlertsRepository)(nil)

func (r *MemoryAlertsRepository) CreateAlert(_ context.Context, alert *domain.Alert) error {
	if alert.AlertID == "" {
		return fmt.Errorf("%w: alert_id is required", domain.ErrValidation)
	}
	if alert.SensorID == "" {
		return fmt.Errorf("%w: sensor_id is required", domain.ErrValidation)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	stored := *alert
	r.alerts[alert.AlertID] = &stored
	return nil
}

func (r *MemoryAlertsRepository) GetAlert(_ context.Context, alertID string) (*domain.Alert, error) {
	if alertID == "" {
		return nil, fmt.Errorf("%w: alert_id is required", domain.ErrValidation)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	alert, ok := r.alerts[alertID]
	if !ok {
		return nil, fmt.Errorf("%w: alert %s", domain.ErrNotFound, alertID)
	}
	c := *alert
	return &c, nil
}

func (r *MemoryAlertsRepository) ListAlerts(_ context.Context, filter AlertsFilter) ([]*domain.Alert, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var alerts []*domain.Alert
	for _, alert := range r.alerts {
		if filter.SensorID != "" && alert.SensorID != filter.SensorID {
			continue
		}
		if !filter.IncludeResolved && alert.IsResolved {
			continue
		}
		c := *alert
		alerts = append(alerts, &c)
	}
	sort.Slice(alerts, func(i, j int) bool {
		return alerts[i].TriggeredAt.After(alerts[j].TriggeredAt)
	})
	if filter.Limit > 0 && len(alerts) > filter.Limit {
		alerts = alerts[:filter.Limit]
	}
	return alerts, nil
}

func (r *MemoryAlertsRepository) SetResolved(_ context.Context, alertID string, resolved bool, resolvedAt *time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	alert, ok := r.alerts[alertID]
	if !ok {
		return fmt.Errorf("%w: alert %s", domain.ErrNotFound, alertID)
	}
	alert.IsResolved = resolved
	if resolvedAt != nil {
		t := *resolvedAt
		alert.ResolvedAt = &t
	} else {
		alert.ResolvedAt = nil
	}
	return nil
}
