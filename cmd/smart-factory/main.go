package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ErkamTaha/smart-factory/common/database"
	commonredis "github.com/ErkamTaha/smart-factory/common/redis"
	"github.com/ErkamTaha/smart-factory/internal/acl"
	"github.com/ErkamTaha/smart-factory/internal/alert"
	"github.com/ErkamTaha/smart-factory/internal/config"
	"github.com/ErkamTaha/smart-factory/internal/emqx"
	httpapi "github.com/ErkamTaha/smart-factory/internal/http"
	"github.com/ErkamTaha/smart-factory/internal/repository"
	"github.com/ErkamTaha/smart-factory/internal/service"
	"github.com/ErkamTaha/smart-factory/internal/session"

	commonlogger "github.com/ErkamTaha/smart-factory/common/logger"

	"go.uber.org/zap"
)

func main() {
	// 1. 加载配置
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	// 2. 初始化日志
	logger, err := commonlogger.NewLogger(cfg.Log.Level, cfg.Log.Format, "smart-factory")
	if err != nil {
		panic(fmt.Sprintf("Failed to init logger: %v", err))
	}
	defer logger.Sync()

	// 3. 存储层：PostgreSQL可用时用库表，否则回退到内存repo（便于联测）
	var db *sql.DB
	var (
		accountsRepo repository.AccountsRepository
		rolesRepo    repository.RolesRepository
		auditRepo    repository.AuditRepository
		sensorsRepo  repository.SensorsRepository
		alertsRepo   repository.AlertsRepository
	)
	if cfg.DBEnabled {
		if d, err := database.NewPostgresDB(&cfg.Database); err == nil {
			db = d
			logger.Info("PostgreSQL enabled")
		} else {
			logger.Warn("DB enabled but connection failed, falling back to memory repositories", zap.Error(err))
		}
	}
	if db != nil {
		accountsRepo = repository.NewPostgresAccountsRepository(db, logger)
		rolesRepo = repository.NewPostgresRolesRepository(db, logger)
		auditRepo = repository.NewPostgresAuditRepository(db, logger)
		sensorsRepo = repository.NewPostgresSensorsRepository(db, logger)
		alertsRepo = repository.NewPostgresAlertsRepository(db, logger)
	} else {
		accountsRepo = repository.NewMemoryAccountsRepository()
		rolesRepo = repository.NewMemoryRolesRepository()
		auditRepo = repository.NewMemoryAuditRepository()
		sensorsRepo = repository.NewMemorySensorsRepository()
		alertsRepo = repository.NewMemoryAlertsRepository()
		logger.Info("using in-memory repositories")
	}

	// 4. Redis报警镜像缓存（连不上时跳过镜像，评估仍然工作）
	var cacheManager *alert.CacheManager
	redisClient := commonredis.NewRedisClient(&cfg.Redis)
	if err := commonredis.Ping(context.Background(), redisClient); err != nil {
		logger.Warn("Redis unavailable, alert cache mirroring disabled", zap.Error(err))
		_ = redisClient.Close()
		redisClient = nil
	} else {
		cacheManager = alert.NewCacheManager(cfg, redisClient, logger)
	}

	// 5. 核心组件
	engine := acl.NewEngine(accountsRepo, rolesRepo, auditRepo, cfg.ACL.DefaultPolicy, cfg.ACL.CacheTTL, logger)
	evaluator := alert.NewEvaluator(sensorsRepo, alertsRepo, cacheManager, cfg.Alert.Enabled, cfg.Alert.CacheTTL, logger)
	registry := session.NewRegistry(engine, evaluator, session.ProxyConfig{
		Broker:      cfg.MQTT.Broker,
		Username:    cfg.MQTT.Username,
		Password:    cfg.MQTT.Password,
		TopicPrefix: cfg.MQTT.TopicPrefix,
		DefaultQoS:  cfg.MQTT.QoS,
	}, session.PahoDialer, logger)

	var provisioner *emqx.AuthProvisioner
	if cfg.EMQX.APIURL != "" {
		provisioner = emqx.NewAuthProvisioner(cfg.EMQX.APIURL, cfg.EMQX.APIKey, cfg.EMQX.APISecret, logger)
	}

	// 6. HTTP路由
	router := httpapi.NewRouter(logger)
	router.RegisterRoutes(
		httpapi.NewACLHandler(engine, registry, accountsRepo, rolesRepo, auditRepo, provisioner, logger),
		httpapi.NewSensorHandler(sensorsRepo, evaluator, logger),
		httpapi.NewAlertHandler(alertsRepo, evaluator, logger),
		httpapi.NewSessionHandler(registry, logger),
		httpapi.NewWSHandler(registry, logger),
	)

	srv := service.NewServer(cfg.HTTP.Addr, router, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("Received signal, shutting down", zap.String("signal", sig.String()))
	case err := <-errCh:
		logger.Error("HTTP server error", zap.Error(err))
	}

	// 7. 优雅关闭：先拆会话（发布retained离线状态），再停HTTP
	registry.CloseAll()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = srv.Stop(shutdownCtx)
	if redisClient != nil {
		_ = redisClient.Close()
	}
	if db != nil {
		_ = db.Close()
	}

	logger.Info("smart-factory stopped")
}
