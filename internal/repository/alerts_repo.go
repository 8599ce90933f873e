package repository

import (
	"context"
	"time"

	"github.com/ErkamTaha/smart-factory/internal/domain"
)

// AlertsFilter 报警查询过滤器
type AlertsFilter struct {
	SensorID        string // 可选，按传感器过滤
	IncludeResolved bool   // 是否包含已解决的报警
	Limit           int    // 0 表示不限制
}

// AlertsRepository 报警Repository接口
// 报警只创建和翻转resolved状态，不删除
type AlertsRepository interface {
	CreateAlert(ctx context.Context, alert *domain.Alert) error
	GetAlert(ctx context.Context, alertID string) (*domain.Alert, error)
	ListAlerts(ctx context.Context, filter AlertsFilter) ([]*domain.Alert, error)

	// SetResolved 设置resolved状态；resolved=false时resolvedAt传nil
	SetResolved(ctx context.Context, alertID string, resolved bool, resolvedAt *time.Time) error
}
