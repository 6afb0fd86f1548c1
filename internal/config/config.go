// Package config 负责加载和管理应用程序的配置。
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// 全局配置变量，存储从配置文件加载的所有设置。
var Conf Config

// Config 是整个应用程序的配置结构体，与 config.yaml 文件结构对应。
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Log       LogConfig       `mapstructure:"log"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Upload    UploadConfig    `mapstructure:"upload"`
	Render    RenderConfig    `mapstructure:"render"`
	Ingestion IngestionConfig `mapstructure:"ingestion"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Analysis  AnalysisConfig  `mapstructure:"analysis"`
}

// ServerConfig 存储服务器相关的配置。
type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
	// MaxUploadMB 限制单个上传文件的大小。
	MaxUploadMB int64 `mapstructure:"max_upload_mb"`
}

// DatabaseConfig 存储所有数据库连接的配置。
type DatabaseConfig struct {
	MySQL MySQLConfig `mapstructure:"mysql"`
	Redis RedisConfig `mapstructure:"redis"`
}

// MySQLConfig 存储 MySQL 数据库的配置。
type MySQLConfig struct {
	DSN             string        `mapstructure:"dsn"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// RedisConfig 存储 Redis 的配置。
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// LogConfig 存储日志相关的配置。
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// KafkaConfig 存储 Kafka 相关的配置。
type KafkaConfig struct {
	Brokers     string `mapstructure:"brokers"`
	Topic       string `mapstructure:"topic"`
	GroupID     string `mapstructure:"group_id"`
	MaxAttempts int64  `mapstructure:"max_attempts"`
}

// StorageConfig 存储对象存储的配置，driver 取值 minio 或 gcs。
type StorageConfig struct {
	Driver           string      `mapstructure:"driver"`
	DocumentsBucket  string      `mapstructure:"documents_bucket"`
	ScreenshotBucket string      `mapstructure:"screenshot_bucket"`
	DocumentsPrefix  string      `mapstructure:"documents_prefix"`
	ScreenshotPrefix string      `mapstructure:"screenshot_prefix"`
	CacheControl     string      `mapstructure:"cache_control"`
	PublicBaseURL    string      `mapstructure:"public_base_url"`
	MinIO            MinIOConfig `mapstructure:"minio"`
	GCS              GCSConfig   `mapstructure:"gcs"`
}

// MinIOConfig 存储 MinIO 对象存储的配置。
type MinIOConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
}

// GCSConfig 存储 Google Cloud Storage 的配置，凭据走 ADC。
type GCSConfig struct {
	ProjectID string `mapstructure:"project_id"`
}

// UploadConfig 控制对象上传的重试策略。
type UploadConfig struct {
	MaxRetries int           `mapstructure:"max_retries"`
	Delay      time.Duration `mapstructure:"delay"`
}

// RenderConfig 控制页面截图的渲染参数。
type RenderConfig struct {
	Pdftoppm string        `mapstructure:"pdftoppm"`
	Scale    float64       `mapstructure:"scale"`
	Timeout  time.Duration `mapstructure:"timeout"`
	TempDir  string        `mapstructure:"temp_dir"`
}

// IngestionConfig 控制入库流程的并发度，0 表示所有页面同时处理。
type IngestionConfig struct {
	PageConcurrency int `mapstructure:"page_concurrency"`
}

// LLMConfig 存储大语言模型相关的配置。
type LLMConfig struct {
	Provider   string              `mapstructure:"provider"`
	APIKey     string              `mapstructure:"api_key"`
	BaseURL    string              `mapstructure:"base_url"`
	Model      string              `mapstructure:"model"`
	Timeout    time.Duration       `mapstructure:"timeout"`
	Generation LLMGenerationConfig `mapstructure:"generation"`
	Vertex     VertexConfig        `mapstructure:"vertex"`
}

// LLMGenerationConfig 配置生成相关参数（可选）。
type LLMGenerationConfig struct {
	Temperature float64 `mapstructure:"temperature"`
	TopP        float64 `mapstructure:"top_p"`
	MaxTokens   int     `mapstructure:"max_tokens"`
}

// VertexConfig 存储 Vertex AI (Gemini) 的配置。
type VertexConfig struct {
	ProjectID string `mapstructure:"project_id"`
	Region    string `mapstructure:"region"`
}

// AnalysisConfig 控制简历分析流程。
type AnalysisConfig struct {
	LockTTL         time.Duration `mapstructure:"lock_ttl"`
	Timeout         time.Duration `mapstructure:"timeout"`
	SkillsLimit     int           `mapstructure:"skills_limit"`
	ProgressTTL     time.Duration `mapstructure:"progress_ttl"`
	DistributedLock bool          `mapstructure:"distributed_lock"`
}

// defaultLockTTL 与 lock.RedisLocker 在 ttl 未配置时使用的租期一致。
const defaultLockTTL = 10 * time.Minute

// EffectiveTimeout 返回实际使用的单次分析超时。分布式锁没有续租，
// 开启时超时被限制在锁租期的 90% 以内，Timeout 为 0 也同样受限。
func (a AnalysisConfig) EffectiveTimeout() time.Duration {
	if !a.DistributedLock {
		return a.Timeout
	}
	ttl := a.LockTTL
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	limit := ttl * 9 / 10
	if a.Timeout <= 0 || a.Timeout > limit {
		return limit
	}
	return a.Timeout
}

// Default 返回一份完整的默认配置，既作为 viper 的默认值，也供测试使用。
func Default() Config {
	return Config{
		Server:   ServerConfig{Port: "8081", Mode: "debug", MaxUploadMB: 20},
		Database: DatabaseConfig{
			MySQL: MySQLConfig{MaxIdleConns: 10, MaxOpenConns: 100, ConnMaxLifetime: time.Hour},
			Redis: RedisConfig{Addr: "127.0.0.1:6379"},
		},
		Log:      LogConfig{Level: "info", Format: "console", MaxSizeMB: 100, MaxBackups: 7, MaxAgeDays: 30},
		Kafka:    KafkaConfig{Brokers: "127.0.0.1:9092", Topic: "cv-analysis", GroupID: "cv-smart-go-consumer", MaxAttempts: 3},
		Storage: StorageConfig{
			Driver:           "minio",
			DocumentsBucket:  "pdfs",
			ScreenshotBucket: "pdfs",
			DocumentsPrefix:  "documents",
			ScreenshotPrefix: "screenshots",
			CacheControl:     "max-age=3600",
		},
		Upload:    UploadConfig{MaxRetries: 3, Delay: time.Second},
		Render:    RenderConfig{Pdftoppm: "pdftoppm", Scale: 1.5, Timeout: 30 * time.Second},
		Ingestion: IngestionConfig{PageConcurrency: 0},
		LLM:       LLMConfig{Provider: "openai", Timeout: 2 * time.Minute},
		Analysis: AnalysisConfig{
			LockTTL:         10 * time.Minute,
			Timeout:         5 * time.Minute,
			SkillsLimit:     12,
			ProgressTTL:     time.Hour,
			DistributedLock: true,
		},
	}
}

// setDefaults 把 Default() 中的值注册为 viper 默认值。
func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.mode", d.Server.Mode)
	v.SetDefault("server.max_upload_mb", d.Server.MaxUploadMB)
	v.SetDefault("database.mysql.max_idle_conns", d.Database.MySQL.MaxIdleConns)
	v.SetDefault("database.mysql.max_open_conns", d.Database.MySQL.MaxOpenConns)
	v.SetDefault("database.mysql.conn_max_lifetime", d.Database.MySQL.ConnMaxLifetime)
	v.SetDefault("database.redis.addr", d.Database.Redis.Addr)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("log.max_size_mb", d.Log.MaxSizeMB)
	v.SetDefault("log.max_backups", d.Log.MaxBackups)
	v.SetDefault("log.max_age_days", d.Log.MaxAgeDays)
	v.SetDefault("kafka.brokers", d.Kafka.Brokers)
	v.SetDefault("kafka.topic", d.Kafka.Topic)
	v.SetDefault("kafka.group_id", d.Kafka.GroupID)
	v.SetDefault("kafka.max_attempts", d.Kafka.MaxAttempts)
	v.SetDefault("storage.driver", d.Storage.Driver)
	v.SetDefault("storage.documents_bucket", d.Storage.DocumentsBucket)
	v.SetDefault("storage.screenshot_bucket", d.Storage.ScreenshotBucket)
	v.SetDefault("storage.documents_prefix", d.Storage.DocumentsPrefix)
	v.SetDefault("storage.screenshot_prefix", d.Storage.ScreenshotPrefix)
	v.SetDefault("storage.cache_control", d.Storage.CacheControl)
	v.SetDefault("upload.max_retries", d.Upload.MaxRetries)
	v.SetDefault("upload.delay", d.Upload.Delay)
	v.SetDefault("render.pdftoppm", d.Render.Pdftoppm)
	v.SetDefault("render.scale", d.Render.Scale)
	v.SetDefault("render.timeout", d.Render.Timeout)
	v.SetDefault("ingestion.page_concurrency", d.Ingestion.PageConcurrency)
	v.SetDefault("llm.provider", d.LLM.Provider)
	v.SetDefault("llm.timeout", d.LLM.Timeout)
	// 凭据类的键需要先注册，环境变量才能在 Unmarshal 时生效
	v.SetDefault("llm.api_key", d.LLM.APIKey)
	v.SetDefault("database.mysql.dsn", d.Database.MySQL.DSN)
	v.SetDefault("database.redis.password", d.Database.Redis.Password)
	v.SetDefault("storage.minio.access_key_id", d.Storage.MinIO.AccessKeyID)
	v.SetDefault("storage.minio.secret_access_key", d.Storage.MinIO.SecretAccessKey)
	v.SetDefault("analysis.lock_ttl", d.Analysis.LockTTL)
	v.SetDefault("analysis.timeout", d.Analysis.Timeout)
	v.SetDefault("analysis.skills_limit", d.Analysis.SkillsLimit)
	v.SetDefault("analysis.progress_ttl", d.Analysis.ProgressTTL)
	v.SetDefault("analysis.distributed_lock", d.Analysis.DistributedLock)
}

// Load 从指定路径读取 YAML 文件，环境变量（如 LLM_API_KEY）可覆盖文件中的值。
func Load(configPath string) (Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("无法将配置解析到结构体中: %w", err)
	}
	return cfg, nil
}

// Init 初始化配置加载，并把结果写入全局 Conf，失败时直接 panic。
func Init(configPath string) {
	cfg, err := Load(configPath)
	if err != nil {
		panic(err)
	}
	Conf = cfg
}
