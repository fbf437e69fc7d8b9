package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	JWT       JWTConfig
	Storage   StorageConfig
	Tracing   TracingConfig `mapstructure:"tracing"`
	Redis     RedisConfig
	Log       LogConfig       `mapstructure:"log"`
	Exam      ExamConfig      `mapstructure:"exam"`
	CORS      CORSConfig      `mapstructure:"cors"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`

	// 运行时标志（非配置文件，通过命令行参数设置）
	MigrateOnly bool `mapstructure:"-"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// RateLimitConfig 两级限流：按 IP 的总量上限，以及身份解析后按考生的上限
type RateLimitConfig struct {
	MaxRequests   int `mapstructure:"max_requests"`
	IPMaxRequests int `mapstructure:"ip_max_requests"`
	WindowMinutes int `mapstructure:"window_minutes"`
}

func (r RateLimitConfig) Window() time.Duration {
	return time.Duration(r.WindowMinutes) * time.Minute
}

type ServerConfig struct {
	Port string
	Mode string
}

type DatabaseConfig struct {
	Host      string
	Port      int
	User      string
	Password  string
	DBName    string
	Charset   string
	ParseTime bool
	LogLevel  string `mapstructure:"log_level"`
}

// JWTConfig 令牌由登录服务签发，这里只负责校验
type JWTConfig struct {
	Secret string `mapstructure:"secret"`
}

type StorageConfig struct {
	Type          string `mapstructure:"type"`
	LocalPath     string `mapstructure:"local_path"`
	MinioEndpoint string `mapstructure:"minio_endpoint"`
	MinioAccessID string `mapstructure:"minio_access_key"`
	MinioSecret   string `mapstructure:"minio_secret_key"`
	MinioBucket   string `mapstructure:"minio_bucket"`
	MinioUseSSL   bool   `mapstructure:"minio_use_ssl"`
	OSSEndpoint   string `mapstructure:"oss_endpoint"`
	OSSAccessKey  string `mapstructure:"oss_access_key"`
	OSSSecretKey  string `mapstructure:"oss_secret_key"`
	OSSBucket     string `mapstructure:"oss_bucket"`
}

type TracingConfig struct {
	Enabled           bool   `mapstructure:"enabled"`
	CollectorEndpoint string `mapstructure:"collector_endpoint"`
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
	PoolSize int `mapstructure:"pool_size"`
}

// LogConfig 日志文件与轮转
type LogConfig struct {
	Level      string `mapstructure:"level"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// GradeBandConfig 成绩等级分档，百分比下限 -> 等级
type GradeBandConfig struct {
	MinPercent float64 `mapstructure:"min_percent" yaml:"min_percent"`
	Grade      string  `mapstructure:"grade" yaml:"grade"`
}

// ExamConfig 作答引擎的策略参数，支持热更新
type ExamConfig struct {
	ViolationThreshold         int               `mapstructure:"violation_threshold" yaml:"violation_threshold"`
	PracticeViolationThreshold int               `mapstructure:"practice_violation_threshold" yaml:"practice_violation_threshold"`
	TimeGraceSeconds           int               `mapstructure:"time_grace_seconds" yaml:"time_grace_seconds"`
	SweepIntervalSeconds       int               `mapstructure:"sweep_interval_seconds" yaml:"sweep_interval_seconds"`
	AbandonAfterMinutes        int               `mapstructure:"abandon_after_minutes" yaml:"abandon_after_minutes"`
	CatalogCacheTTLSeconds     int               `mapstructure:"catalog_cache_ttl_seconds" yaml:"catalog_cache_ttl_seconds"`
	ArchiveResults             bool              `mapstructure:"archive_results" yaml:"archive_results"`
	GradeTable                 []GradeBandConfig `mapstructure:"grade_table" yaml:"grade_table"`
}

func (e ExamConfig) TimeGrace() time.Duration {
	return time.Duration(e.TimeGraceSeconds) * time.Second
}

func (e ExamConfig) SweepInterval() time.Duration {
	if e.SweepIntervalSeconds <= 0 {
		return time.Minute
	}
	return time.Duration(e.SweepIntervalSeconds) * time.Second
}

func (e ExamConfig) AbandonAfter() time.Duration {
	return time.Duration(e.AbandonAfterMinutes) * time.Minute
}

func (e ExamConfig) CatalogCacheTTL() time.Duration {
	return time.Duration(e.CatalogCacheTTLSeconds) * time.Second
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "debug")
	v.SetDefault("database.charset", "utf8mb4")
	v.SetDefault("database.parsetime", true)
	v.SetDefault("redis.pool_size", 20)
	v.SetDefault("log.file", "logs/exam_engine.log")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age_days", 30)
	v.SetDefault("storage.type", "local")
	v.SetDefault("storage.local_path", "archive")
	v.SetDefault("rate_limit.max_requests", 600)
	v.SetDefault("rate_limit.ip_max_requests", 6000)
	v.SetDefault("rate_limit.window_minutes", 1)
	v.SetDefault("exam.violation_threshold", 1)
	v.SetDefault("exam.practice_violation_threshold", 0)
	v.SetDefault("exam.time_grace_seconds", 30)
	v.SetDefault("exam.sweep_interval_seconds", 60)
	v.SetDefault("exam.abandon_after_minutes", 120)
	v.SetDefault("exam.catalog_cache_ttl_seconds", 300)
}

func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.SetEnvPrefix("EXAM_COACH")
	v.AutomaticEnv()
	setDefaults(v)

	// Database
	v.BindEnv("database.host", "DATABASE_HOST")
	v.BindEnv("database.port", "DATABASE_PORT")
	v.BindEnv("database.user", "DATABASE_USER")
	v.BindEnv("database.password", "DATABASE_PASSWORD")
	v.BindEnv("database.dbname", "DATABASE_NAME")

	// JWT
	v.BindEnv("jwt.secret", "JWT_SECRET")

	// Redis
	v.BindEnv("redis.host", "REDIS_HOST")
	v.BindEnv("redis.port", "REDIS_PORT")
	v.BindEnv("redis.password", "REDIS_PASSWORD")

	// Server
	v.BindEnv("server.mode", "SERVER_MODE")
	v.BindEnv("log.level", "LOG_LEVEL")

	// Storage
	v.BindEnv("storage.type", "STORAGE_TYPE")
	v.BindEnv("storage.oss_endpoint", "OSS_ENDPOINT")
	v.BindEnv("storage.oss_access_key", "OSS_ACCESS_KEY")
	v.BindEnv("storage.oss_secret_key", "OSS_SECRET_KEY")
	v.BindEnv("storage.oss_bucket", "OSS_BUCKET")
	v.BindEnv("storage.minio_endpoint", "MINIO_ENDPOINT")
	v.BindEnv("storage.minio_access_key", "MINIO_ACCESS_KEY")
	v.BindEnv("storage.minio_secret_key", "MINIO_SECRET_KEY")
	v.BindEnv("storage.minio_bucket", "MINIO_BUCKET")

	// Tracing
	v.BindEnv("tracing.enabled", "TRACING_ENABLED")
	v.BindEnv("tracing.collector_endpoint", "TRACING_COLLECTOR_ENDPOINT")

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// 生产环境校验 JWT Secret 强度
	if cfg.Server.Mode == "release" && len(cfg.JWT.Secret) < 32 {
		return nil, fmt.Errorf("JWT secret is too short (%d chars), must be at least 32 characters in release mode", len(cfg.JWT.Secret))
	}

	if cfg.Exam.ViolationThreshold < 0 || cfg.Exam.PracticeViolationThreshold < 0 {
		return nil, fmt.Errorf("violation thresholds must not be negative")
	}

	if cfg.Storage.Type == "local" {
		if _, err := os.Stat(cfg.Storage.LocalPath); os.IsNotExist(err) {
			os.MkdirAll(cfg.Storage.LocalPath, 0755)
		}
	}

	return &cfg, nil
}
