package alert

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ErkamTaha/smart-factory/internal/cache"
	"github.com/ErkamTaha/smart-factory/internal/domain"
	"github.com/ErkamTaha/smart-factory/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// limitEntry 缓存槽：传感器选中的限值配置快照
type limitEntry struct {
	active  bool
	pattern string
	// limit 为 nil 表示没有选中的限值配置
	limit *domain.LimitConfig
}

// Evaluator 阈值报警评估器
//
// 无限值配置、全局禁用或单位不匹配时返回 (false, none)，不报错。
// 报警每次越限都触发，没有冷却去抖。
// 评估器不感知投递通道，通知文案由调用方组装。
type Evaluator struct {
	sensorsRepo repository.SensorsRepository
	alertsRepo  repository.AlertsRepository

	// cacheManager 可为nil（Redis未启用时不做镜像）
	cacheManager *CacheManager

	limitCache *cache.TTLCache[limitEntry]
	enabled    bool
	logger     *zap.Logger
}

// NewEvaluator 创建阈值报警评估器
func NewEvaluator(
	sensorsRepo repository.SensorsRepository,
	alertsRepo repository.AlertsRepository,
	cacheManager *CacheManager,
	enabled bool,
	cacheTTL time.Duration,
	logger *zap.Logger,
) *Evaluator {
	return &Evaluator{
		sensorsRepo:  sensorsRepo,
		alertsRepo:   alertsRepo,
		cacheManager: cacheManager,
		limitCache:   cache.NewTTL[limitEntry](0, cacheTTL),
		enabled:      enabled,
		logger:       logger,
	}
}

// Evaluate 检查传感器读数是否越限，越限时持久化未解决报警并返回类型
func (e *Evaluator) Evaluate(ctx context.Context, sensorID string, value float64, unit string) (bool, domain.AlertKind) {
	if !e.enabled {
		return false, domain.AlertKindNone
	}

	entry, err := e.loadLimit(ctx, sensorID)
	if err != nil {
		e.logger.Warn("failed to load limit config",
			zap.String("sensor_id", sensorID),
			zap.Error(err),
		)
		return false, domain.AlertKindNone
	}
	if !entry.active || entry.limit == nil {
		return false, domain.AlertKindNone
	}

	limit := entry.limit
	if unit != limit.Unit {
		e.logger.Warn("sensor reading unit does not match limit config",
			zap.String("sensor_id", sensorID),
			zap.String("reading_unit", unit),
			zap.String("limit_unit", limit.Unit),
		)
		return false, domain.AlertKindNone
	}

	var kind domain.AlertKind
	var limitValue float64
	switch {
	case value > limit.Upper:
		kind = domain.AlertKindUpper
		limitValue = limit.Upper
	case value < limit.Lower:
		kind = domain.AlertKindLower
		limitValue = limit.Lower
	default:
		return false, domain.AlertKindNone
	}

	alert := &domain.Alert{
		AlertID:        uuid.New().String(),
		SensorID:       sensorID,
		Kind:           kind,
		TriggeredValue: value,
		LimitValue:     limitValue,
		Unit:           unit,
		Message:        alertMessage(sensorID, kind, value, limitValue, unit),
		Topic:          entry.pattern,
		IsResolved:     false,
		TriggeredAt:    time.Now().UTC(),
	}

	// 持久化和镜像都是报警侧的旁路，失败不改变评估结果
	if err := e.alertsRepo.CreateAlert(ctx, alert); err != nil {
		e.logger.Error("failed to persist alert",
			zap.String("sensor_id", sensorID),
			zap.String("alert_type", string(kind)),
			zap.Error(err),
		)
	} else {
		e.logger.Warn("Alert triggered",
			zap.String("alert_id", alert.AlertID),
			zap.String("sensor_id", sensorID),
			zap.String("alert_type", string(kind)),
			zap.Float64("value", value),
			zap.Float64("limit", limitValue),
		)
		e.mirrorAlerts(ctx, sensorID)
	}

	return true, kind
}

// Resolve 将报警标记为已解决；重复resolve是记录日志的no-op
func (e *Evaluator) Resolve(ctx context.Context, alertID string) error {
	alert, err := e.alertsRepo.GetAlert(ctx, alertID)
	if err != nil {
		return err
	}
	if alert.IsResolved {
		e.logger.Warn("alert is already resolved", zap.String("alert_id", alertID))
		return nil
	}

	now := time.Now().UTC()
	if err := e.alertsRepo.SetResolved(ctx, alertID, true, &now); err != nil {
		return err
	}

	e.logger.Info("Alert resolved", zap.String("alert_id", alertID))
	e.mirrorAlerts(ctx, alert.SensorID)
	return nil
}

// Revert 撤销报警的已解决状态；对未解决报警revert是记录日志的no-op
func (e *Evaluator) Revert(ctx context.Context, alertID string) error {
	alert, err := e.alertsRepo.GetAlert(ctx, alertID)
	if err != nil {
		return err
	}
	if !alert.IsResolved {
		e.logger.Warn("alert is already unresolved", zap.String("alert_id", alertID))
		return nil
	}

	if err := e.alertsRepo.SetResolved(ctx, alertID, false, nil); err != nil {
		return err
	}

	e.logger.Info("Alert reverted", zap.String("alert_id", alertID))
	e.mirrorAlerts(ctx, alert.SensorID)
	return nil
}

// Reload 清空限值缓存
func (e *Evaluator) Reload() {
	e.limitCache.Purge()
	e.logger.Info("limit config cache invalidated")
}

// InvalidateSensor 使单个传感器的限值缓存失效（传感器配置变更后调用）
func (e *Evaluator) InvalidateSensor(sensorID string) {
	e.limitCache.Delete(sensorID)
}

// loadLimit 读取限值缓存槽，miss时从存储构建
func (e *Evaluator) loadLimit(ctx context.Context, sensorID string) (limitEntry, error) {
	if entry, ok := e.limitCache.Get(sensorID); ok {
		return entry, nil
	}

	sensor, err := e.sensorsRepo.GetSensor(ctx, sensorID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			// 未知传感器也缓存，避免每条读数都打到存储
			entry := limitEntry{}
			e.limitCache.Set(sensorID, entry)
			return entry, nil
		}
		return limitEntry{}, err
	}

	entry := limitEntry{
		active:  sensor.IsActive,
		pattern: sensor.Pattern,
		limit:   sensor.SelectedLimit(),
	}
	e.limitCache.Set(sensorID, entry)
	return entry, nil
}

// mirrorAlerts 把该传感器最近的未解决报警镜像到Redis（尽力而为）
func (e *Evaluator) mirrorAlerts(ctx context.Context, sensorID string) {
	if e.cacheManager == nil {
		return
	}

	alerts, err := e.alertsRepo.ListAlerts(ctx, repository.AlertsFilter{
		SensorID: sensorID,
		Limit:    20,
	})
	if err != nil {
		e.logger.Debug("failed to list alerts for cache mirror", zap.Error(err))
		return
	}

	out := make([]domain.Alert, len(alerts))
	for i, a := range alerts {
		out[i] = *a
	}
	if err := e.cacheManager.UpdateAlertCache(ctx, sensorID, out); err != nil {
		e.logger.Debug("failed to update alert cache mirror", zap.Error(err))
	}
}

func alertMessage(sensorID string, kind domain.AlertKind, value, limitValue float64, unit string) string {
	if kind == domain.AlertKindUpper {
		return fmt.Sprintf("Sensor %s exceeded upper limit: %g%s > %g%s", sensorID, value, unit, limitValue, unit)
	}
	return fmt.Sprintf("Sensor %s below lower limit: %g%s < %g%s", sensorID, value, unit, limitValue, unit)
}
