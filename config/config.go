package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Store    StoreConfig    `mapstructure:"store"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	OSS      OSSConfig      `mapstructure:"oss"`
	CORS     CORSConfig     `mapstructure:"cors"`
	Upload   UploadConfig   `mapstructure:"upload"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Provider ProviderConfig `mapstructure:"provider"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

// StoreConfig selects the job store backend: "memory" (default) keeps job
// records in-process, "mysql" persists them through gorm.
type StoreConfig struct {
	Driver string `mapstructure:"driver"`
}

type DatabaseConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Username     string `mapstructure:"username"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

type OSSConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	AccessKeySecret string `mapstructure:"access_key_secret"`
	BucketName      string `mapstructure:"bucket_name"`
	CDNDomain       string `mapstructure:"cdn_domain"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
	AllowedHeaders []string `mapstructure:"allowed_headers"`
}

type UploadConfig struct {
	MaxSize     int64  `mapstructure:"max_size"`     // max upload size in bytes
	TempDir     string `mapstructure:"temp_dir"`     // audio temp dir
	ExpireHours int    `mapstructure:"expire_hours"` // job + audio retention
	SampleFile  string `mapstructure:"sample_file"`  // built-in sample audio
}

type PipelineConfig struct {
	MaxWorkers int `mapstructure:"max_workers"`
	QueueSize  int `mapstructure:"queue_size"`
}

type ProviderConfig struct {
	ElevenLabs ElevenLabsConfig `mapstructure:"elevenlabs"`
	Allosaurus AllosaurusConfig `mapstructure:"allosaurus"`
	Mistral    MistralConfig    `mapstructure:"mistral"`
}

type ElevenLabsConfig struct {
	APIKey         string `mapstructure:"api_key"`
	BaseURL        string `mapstructure:"base_url"`
	ModelID        string `mapstructure:"model_id"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

type AllosaurusConfig struct {
	Endpoint       string `mapstructure:"endpoint"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

type MistralConfig struct {
	APIKey         string `mapstructure:"api_key"`
	BaseURL        string `mapstructure:"base_url"`
	Model          string `mapstructure:"model"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

func Load(configPath string) (*Config, error) {
	// Prefer config.local.yaml when present (real keys, not committed).
	dir := filepath.Dir(configPath)
	localConfigPath := filepath.Join(dir, "config.local.yaml")

	if _, err := os.Stat(localConfigPath); err == nil {
		configPath = localConfigPath
	}

	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")

	// Environment variables override file values.
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	applyDefaults(&cfg)

	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Store.Driver == "" {
		cfg.Store.Driver = "memory"
	}
	if cfg.Upload.MaxSize <= 0 {
		cfg.Upload.MaxSize = 50 << 20
	}
	if cfg.Upload.TempDir == "" {
		cfg.Upload.TempDir = filepath.Join(os.TempDir(), "speech_uploads")
	}
	if cfg.Upload.ExpireHours <= 0 {
		cfg.Upload.ExpireHours = 24
	}
	if cfg.Pipeline.MaxWorkers <= 0 {
		cfg.Pipeline.MaxWorkers = 4
	}
	if cfg.Pipeline.QueueSize <= 0 {
		cfg.Pipeline.QueueSize = 64
	}
	if cfg.Provider.ElevenLabs.BaseURL == "" {
		cfg.Provider.ElevenLabs.BaseURL = "https://api.elevenlabs.io/v1"
	}
	if cfg.Provider.ElevenLabs.ModelID == "" {
		cfg.Provider.ElevenLabs.ModelID = "scribe_v1"
	}
	if cfg.Provider.ElevenLabs.TimeoutSeconds <= 0 {
		cfg.Provider.ElevenLabs.TimeoutSeconds = 120
	}
	if cfg.Provider.Allosaurus.TimeoutSeconds <= 0 {
		cfg.Provider.Allosaurus.TimeoutSeconds = 60
	}
	if cfg.Provider.Mistral.BaseURL == "" {
		cfg.Provider.Mistral.BaseURL = "https://api.mistral.ai/v1"
	}
	if cfg.Provider.Mistral.Model == "" {
		cfg.Provider.Mistral.Model = "mistral-large-latest"
	}
	if cfg.Provider.Mistral.TimeoutSeconds <= 0 {
		cfg.Provider.Mistral.TimeoutSeconds = 120
	}
}
