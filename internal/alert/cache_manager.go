package alert

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ErkamTaha/smart-factory/internal/config"
	"github.com/ErkamTaha/smart-factory/internal/domain"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// CacheManager Redis 报警镜像缓存
// 评估器触发报警时把该传感器最近的未解决报警写入Redis（带TTL），
// 供看板类消费方直接读取，不参与评估决策
type CacheManager struct {
	config      *config.Config
	redisClient *redis.Client
	logger      *zap.Logger
}

// NewCacheManager 创建缓存管理器
func NewCacheManager(
	cfg *config.Config,
	redisClient *redis.Client,
	logger *zap.Logger,
) *CacheManager {
	return &CacheManager{
		config:      cfg,
		redisClient: redisClient,
		logger:      logger,
	}
}

// alertKey 构建缓存键
func (c *CacheManager) alertKey(sensorID string) string {
	return fmt.Sprintf("%s%s%s",
		c.config.Alert.Cache.KeyPrefix,
		sensorID,
		c.config.Alert.Cache.Suffix,
	)
}

// UpdateAlertCache 更新某传感器的报警镜像
func (c *CacheManager) UpdateAlertCache(ctx context.Context, sensorID string, alerts []domain.Alert) error {
	jsonData, err := json.Marshal(alerts)
	if err != nil {
		return fmt.Errorf("failed to marshal alert data: %w", err)
	}

	err = c.redisClient.Set(
		ctx,
		c.alertKey(sensorID),
		jsonData,
		time.Duration(c.config.Alert.Cache.TTL)*time.Second,
	).Err()
	if err != nil {
		return fmt.Errorf("failed to set alert cache: %w", err)
	}

	c.logger.Debug("Updated alert cache",
		zap.String("sensor_id", sensorID),
		zap.Int("alert_count", len(alerts)),
	)

	return nil
}

// GetCachedAlerts 读取某传感器的报警镜像
func (c *CacheManager) GetCachedAlerts(ctx context.Context, sensorID string) ([]domain.Alert, error) {
	val, err := c.redisClient.Get(ctx, c.alertKey(sensorID)).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, fmt.Errorf("%w: no cached alerts for sensor %s", domain.ErrNotFound, sensorID)
		}
		return nil, fmt.Errorf("failed to get alert cache: %w", err)
	}

	var alerts []domain.Alert
	if err := json.Unmarshal([]byte(val), &alerts); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached alerts: %w", err)
	}

	return alerts, nil
}
