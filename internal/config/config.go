package config

import (
	"os"
	"strconv"
	"time"

	"github.com/ErkamTaha/smart-factory/common/config"
)

// Config 服务配置
type Config struct {
	Database config.DatabaseConfig
	Redis    config.RedisConfig
	MQTT     config.MQTTConfig
	EMQX     config.EMQXConfig

	// 是否启用PostgreSQL（未启用时回退到内存repo，便于联测）
	DBEnabled bool

	HTTP struct {
		Addr string
	}

	ACL struct {
		DefaultPolicy string        // "allow" 或 "deny"，默认 deny
		CacheTTL      time.Duration // 账号缓存TTL，默认 5分钟
	}

	Alert struct {
		Enabled  bool
		CacheTTL time.Duration // 限值配置缓存TTL，默认 5分钟
		// Cooldown 配置面保留该值，评估路径不消费（报警每次越限都触发）
		Cooldown time.Duration
		// Redis报警镜像缓存
		Cache struct {
			KeyPrefix string // 如 "sf:sensor:"
			Suffix    string // 如 ":alerts"
			TTL       int    // 秒
		}
	}

	Log struct {
		Level  string
		Format string
	}
}

// Load 加载配置
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.Database.Host = getEnv("DB_HOST", "localhost")
	cfg.Database.Port = 5432
	cfg.Database.User = getEnv("DB_USER", "postgres")
	cfg.Database.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.Database.Database = getEnv("DB_NAME", "smartfactory")
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", "disable")
	cfg.Database.LoadFromEnv("DB")
	cfg.DBEnabled = getEnv("DB_ENABLED", "false") == "true"

	cfg.Redis.Addr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = 0

	cfg.MQTT.Broker = getEnv("MQTT_BROKER", "tcp://localhost:1883")
	cfg.MQTT.Username = getEnv("MQTT_USERNAME", "")
	cfg.MQTT.Password = getEnv("MQTT_PASSWORD", "")
	cfg.MQTT.QoS = 1
	cfg.MQTT.TopicPrefix = getEnv("MQTT_TOPIC_PREFIX", "sf")
	if qos := os.Getenv("MQTT_DEFAULT_QOS"); qos != "" {
		if q, err := strconv.Atoi(qos); err == nil && q >= 0 && q <= 2 {
			cfg.MQTT.QoS = byte(q)
		}
	}

	cfg.EMQX.APIURL = getEnv("EMQX_API_URL", "http://localhost:18083")
	cfg.EMQX.APIKey = getEnv("EMQX_API_KEY", "admin")
	cfg.EMQX.APISecret = getEnv("EMQX_API_SECRET", "")

	cfg.HTTP.Addr = getEnv("HTTP_ADDR", ":8000")

	cfg.ACL.DefaultPolicy = getEnv("ACL_DEFAULT_POLICY", "deny")
	cfg.ACL.CacheTTL = getDuration("ACL_CACHE_TTL", 5*time.Minute)

	cfg.Alert.Enabled = getEnv("ALERT_ENABLED", "true") == "true"
	cfg.Alert.CacheTTL = getDuration("ALERT_CACHE_TTL", 5*time.Minute)
	cfg.Alert.Cooldown = getDuration("ALERT_COOLDOWN", 60*time.Second)
	cfg.Alert.Cache.KeyPrefix = getEnv("ALERT_CACHE_PREFIX", "sf:sensor:")
	cfg.Alert.Cache.Suffix = ":alerts"
	cfg.Alert.Cache.TTL = 30 // 30秒

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
