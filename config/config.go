package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Upload   UploadConfig   `mapstructure:"upload"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Fetch    FetchConfig    `mapstructure:"fetch"`
}

type ServerConfig struct {
	Port         string        `mapstructure:"port"`
	Mode         string        `mapstructure:"mode"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

type RedisConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

type UploadConfig struct {
	MaxSize      int64    `mapstructure:"max_size"`
	AllowedTypes []string `mapstructure:"allowed_types"`
}

// PipelineConfig 掩码处理参数
type PipelineConfig struct {
	RefineIterations  int     `mapstructure:"refine_iterations"`
	FeatherRadius     int     `mapstructure:"feather_radius"`
	MaxIterations     int     `mapstructure:"max_iterations"`
	MaxFeatherRadius  int     `mapstructure:"max_feather_radius"`
	MinArea           int     `mapstructure:"min_area"`
	Threshold         uint8   `mapstructure:"threshold"`
	MaxConcurrent     int     `mapstructure:"max_concurrent"`
	QueueTimeout      int     `mapstructure:"queue_timeout"`
	DefaultConfidence float64 `mapstructure:"default_confidence"`
	DefaultLabel      string  `mapstructure:"default_label"`
}

// FetchConfig 远程掩码图片下载参数
type FetchConfig struct {
	Timeout  time.Duration `mapstructure:"timeout"`
	MaxBytes int64         `mapstructure:"max_bytes"`
}

// Load 从 YAML 文件加载配置，环境变量 MASKKIT_* 可覆盖任意配置项
func Load(configPath string) (*Config, error) {
	// .env 不存在时忽略
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("MASKKIT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// 设置默认值
	setDefaults(v)

	// 读取配置文件
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// New 使用默认配置路径加载配置
func New() *Config {
	cfg, err := Load("config.yaml")
	if err != nil {
		// 如果加载失败，返回默认配置
		return getDefaultConfig()
	}
	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", ":8080")
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)

	v.SetDefault("redis.enabled", true)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ttl", 24*time.Hour)

	v.SetDefault("upload.max_size", 10*1024*1024)
	v.SetDefault("upload.allowed_types", []string{"image/jpeg", "image/png", "image/jpg", "image/webp"})

	v.SetDefault("pipeline.refine_iterations", 1)
	v.SetDefault("pipeline.feather_radius", 2)
	v.SetDefault("pipeline.max_iterations", 3)
	v.SetDefault("pipeline.max_feather_radius", 8)
	v.SetDefault("pipeline.min_area", 100)
	v.SetDefault("pipeline.threshold", 128)
	v.SetDefault("pipeline.max_concurrent", 4)
	v.SetDefault("pipeline.queue_timeout", 30)
	v.SetDefault("pipeline.default_confidence", 0.9)
	v.SetDefault("pipeline.default_label", "object")

	v.SetDefault("fetch.timeout", 15*time.Second)
	v.SetDefault("fetch.max_bytes", 20*1024*1024)
}

func getDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         ":8080",
			Mode:         "debug",
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Redis: RedisConfig{
			Enabled:  true,
			Addr:     "localhost:6379",
			Password: "",
			DB:       0,
			TTL:      24 * time.Hour,
		},
		Upload: UploadConfig{
			MaxSize:      10 * 1024 * 1024,
			AllowedTypes: []string{"image/jpeg", "image/png", "image/jpg", "image/webp"},
		},
		Pipeline: PipelineConfig{
			RefineIterations:  1,
			FeatherRadius:     2,
			MaxIterations:     3,
			MaxFeatherRadius:  8,
			MinArea:           100,
			Threshold:         128,
			MaxConcurrent:     4,
			QueueTimeout:      30,
			DefaultConfidence: 0.9,
			DefaultLabel:      "object",
		},
		Fetch: FetchConfig{
			Timeout:  15 * time.Second,
			MaxBytes: 20 * 1024 * 1024,
		},
	}
}

// Default 返回内置默认配置
func Default() *Config {
	return getDefaultConfig()
}
