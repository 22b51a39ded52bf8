// internal/pkg/bootstrap/config.go
package bootstrap

import (
	"context"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
	"stocksaga/internal/pkg/logger"
)

// Config 是所有服务共享的配置结构，各服务只读取自己关心的部分
type Config struct {
	App       AppConfig       `yaml:"app"`
	Infra     InfraConfig     `yaml:"infra"`
	Inventory InventoryConfig `yaml:"inventory"`
	Order     OrderConfig     `yaml:"order"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
}

type AppConfig struct {
	Env      string `yaml:"env"`
	LogLevel string `yaml:"logLevel"`
}

type InfraConfig struct {
	Jaeger    JaegerConfig    `yaml:"jaeger"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Zookeeper ZookeeperConfig `yaml:"zookeeper"`
	Nacos     NacosConfig     `yaml:"nacos"`
	Catalog   CatalogConfig   `yaml:"catalog"`
}

type JaegerConfig struct {
	Endpoint    string  `yaml:"endpoint"`
	SampleRatio float64 `yaml:"sampleRatio"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
}

type DatabaseConfig struct {
	Driver          string        `yaml:"driver"` // mysql | postgres | memory
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
	AutoMigrate     bool          `yaml:"autoMigrate"`
}

type RedisConfig struct {
	Addrs string `yaml:"addrs"` // 为空时不启用缓存
}

type ZookeeperConfig struct {
	Servers        []string      `yaml:"servers"` // 为空时只使用进程内锁
	SessionTimeout time.Duration `yaml:"sessionTimeout"`
}

type NacosConfig struct {
	ServerAddrs string `yaml:"serverAddrs"` // 为空时不注册服务、不拉取远程配置
	Namespace   string `yaml:"namespace"`
	Group       string `yaml:"group"`
	DataID      string `yaml:"dataId"`
}

type CatalogConfig struct {
	BaseURL string        `yaml:"baseURL"`
	Timeout time.Duration `yaml:"timeout"`
}

type AlertRuleConfig struct {
	Type string `yaml:"type"`
	Expr string `yaml:"expr"`
}

type InventoryConfig struct {
	Port              int               `yaml:"port"`
	MaxCommitAttempts int               `yaml:"maxCommitAttempts"`
	ScanInterval      time.Duration     `yaml:"scanInterval"`
	AlertCooldown     time.Duration     `yaml:"alertCooldown"`
	ReceiptCacheTTL   time.Duration     `yaml:"receiptCacheTTL"`
	AlertRules        []AlertRuleConfig `yaml:"alertRules"`
}

type OrderConfig struct {
	Port                   int    `yaml:"port"`
	TimeoutDelayTopic      string `yaml:"timeoutDelayTopic"`
	MaxReservationAttempts int    `yaml:"maxReservationAttempts"`
}

type SchedulerConfig struct {
	Port   int                      `yaml:"port"`
	Levels map[string]time.Duration `yaml:"levels"`
}

var current atomic.Pointer[Config]

// DefaultConfig 返回本地开发可直接运行的默认配置
func DefaultConfig() *Config {
	return &Config{
		App: AppConfig{Env: "dev", LogLevel: "info"},
		Infra: InfraConfig{
			Jaeger:    JaegerConfig{Endpoint: "http://localhost:14268/api/traces", SampleRatio: 1},
			Kafka:     KafkaConfig{Brokers: []string{"localhost:9092"}},
			Database:  DatabaseConfig{Driver: "mysql", DSN: "root:root@tcp(localhost:3306)/stocksaga?charset=utf8mb4&parseTime=True&loc=UTC", MaxOpenConns: 20, MaxIdleConns: 10, ConnMaxLifetime: time.Hour, AutoMigrate: true},
			Zookeeper: ZookeeperConfig{SessionTimeout: 10 * time.Second},
			Nacos:     NacosConfig{Group: "DEFAULT_GROUP"},
			Catalog:   CatalogConfig{Timeout: 3 * time.Second},
		},
		Inventory: InventoryConfig{
			Port:              8082,
			MaxCommitAttempts: 5,
			ScanInterval:      time.Minute,
			AlertCooldown:     time.Hour,
			ReceiptCacheTTL:   24 * time.Hour,
			AlertRules: []AlertRuleConfig{
				{Type: "OUT_OF_STOCK", Expr: "available <= 0"},
				{Type: "LOW_STOCK", Expr: "available <= minThreshold"},
			},
		},
		Order: OrderConfig{
			Port:                   8081,
			TimeoutDelayTopic:      "delay_topic_1m",
			MaxReservationAttempts: 3,
		},
		Scheduler: SchedulerConfig{
			Port: 8083,
			Levels: map[string]time.Duration{
				"delay_topic_5s":  5 * time.Second,
				"delay_topic_1m":  time.Minute,
				"delay_topic_10m": 10 * time.Minute,
			},
		},
	}
}

// ParseConfig 在默认配置之上解析 yaml
func ParseConfig(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrap(err, "parse config yaml")
	}
	return cfg, nil
}

// Init 加载配置: .env -> yaml 文件 -> 环境变量覆盖 -> (可选) nacos 配置中心
func Init() *Config {
	// .env 不存在是正常情况
	_ = godotenv.Load()

	cfg := DefaultConfig()
	path := getEnv("CONFIG_FILE", "configs/config.yaml")
	if data, err := os.ReadFile(path); err == nil {
		parsed, err := ParseConfig(data)
		if err != nil {
			logger.Ctx(context.Background()).Fatal().Err(err).Str("path", path).Msg("invalid config file")
		}
		cfg = parsed
	} else {
		logger.Ctx(context.Background()).Warn().Str("path", path).Msg("config file not found, using defaults")
	}
	applyEnvOverrides(cfg)

	if cfg.Infra.Nacos.ServerAddrs != "" && cfg.Infra.Nacos.DataID != "" {
		remote, err := loadFromNacos(cfg.Infra.Nacos)
		if err != nil {
			logger.Ctx(context.Background()).Error().Err(err).Msg("failed to load config from nacos, keeping local config")
		} else {
			applyEnvOverrides(remote)
			cfg = remote
		}
	}

	current.Store(cfg)
	return cfg
}

// GetCurrentConfig 返回当前生效的配置快照
func GetCurrentConfig() *Config {
	if cfg := current.Load(); cfg != nil {
		return cfg
	}
	return DefaultConfig()
}

func setCurrentConfig(cfg *Config) {
	current.Store(cfg)
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		cfg.Infra.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("DB_DRIVER"); v != "" {
		cfg.Infra.Database.Driver = v
	}
	if v := os.Getenv("DB_DSN"); v != "" {
		cfg.Infra.Database.DSN = v
	}
	if v, ok := os.LookupEnv("REDIS_ADDRS"); ok {
		cfg.Infra.Redis.Addrs = v
	}
	if v, ok := os.LookupEnv("JAEGER_ENDPOINT"); ok {
		cfg.Infra.Jaeger.Endpoint = v
	}
	if v, ok := os.LookupEnv("ZK_SERVERS"); ok {
		cfg.Infra.Zookeeper.Servers = splitNonEmpty(v)
	}
	if v, ok := os.LookupEnv("NACOS_SERVER_ADDRS"); ok {
		cfg.Infra.Nacos.ServerAddrs = v
	}
	if v := os.Getenv("NACOS_NAMESPACE"); v != "" {
		cfg.Infra.Nacos.Namespace = v
	}
	if v := os.Getenv("NACOS_GROUP"); v != "" {
		cfg.Infra.Nacos.Group = v
	}
	if v := os.Getenv("NACOS_DATA_ID"); v != "" {
		cfg.Infra.Nacos.DataID = v
	}
	if v, ok := os.LookupEnv("CATALOG_BASE_URL"); ok {
		cfg.Infra.Catalog.BaseURL = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.App.LogLevel = v
	}
	if v, err := strconv.Atoi(os.Getenv("PORT")); err == nil && v > 0 {
		cfg.Inventory.Port = v
		cfg.Order.Port = v
		cfg.Scheduler.Port = v
	}
}

func splitNonEmpty(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// getEnv 是一个内部辅助函数，从环境变量中读取配置。
func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}
