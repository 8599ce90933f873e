package alert

import (
	"context"
	"testing"
	"time"

	"github.com/ErkamTaha/smart-factory/internal/config"
	"github.com/ErkamTaha/smart-factory/internal/domain"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *CacheManager) {
	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	cfg := &config.Config{}
	cfg.Alert.Cache.KeyPrefix = "sf:sensor:"
	cfg.Alert.Cache.Suffix = ":alerts"
	cfg.Alert.Cache.TTL = 30

	cacheManager := NewCacheManager(cfg, redisClient, zap.NewNop())
	return mr, cacheManager
}

func TestCacheManager_UpdateAndGet(t *testing.T) {
	_, cacheManager := setupTestRedis(t)
	ctx := context.Background()

	alerts := []domain.Alert{
		{
			AlertID:        "alert-1",
			SensorID:       "temp-room1",
			Kind:           domain.AlertKindUpper,
			TriggeredValue: 31,
			LimitValue:     30,
			Unit:           "C",
			TriggeredAt:    time.Now().UTC(),
		},
	}

	err := cacheManager.UpdateAlertCache(ctx, "temp-room1", alerts)
	require.NoError(t, err)

	cached, err := cacheManager.GetCachedAlerts(ctx, "temp-room1")
	require.NoError(t, err)
	require.Len(t, cached, 1)
	assert.Equal(t, "alert-1", cached[0].AlertID)
	assert.Equal(t, domain.AlertKindUpper, cached[0].Kind)
}

func TestCacheManager_GetMissing(t *testing.T) {
	_, cacheManager := setupTestRedis(t)

	_, err := cacheManager.GetCachedAlerts(context.Background(), "no-such-sensor")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCacheManager_EntryExpires(t *testing.T) {
	mr, cacheManager := setupTestRedis(t)
	ctx := context.Background()

	err := cacheManager.UpdateAlertCache(ctx, "temp-room1", []domain.Alert{{AlertID: "a"}})
	require.NoError(t, err)

	mr.FastForward(31 * time.Second)

	_, err = cacheManager.GetCachedAlerts(ctx, "temp-room1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
