package config

import (
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Log        LogConfig        `yaml:"log"`
	HTTPClient HTTPClientConfig `yaml:"http_client"`
	Limiter    LimiterConfig    `yaml:"limiter"`
	Gemini     GeminiConfig     `yaml:"gemini"`
	ImageGen   ImageGenConfig   `yaml:"image_gen"`
	Queue      QueueConfig      `yaml:"queue"`
	Generation GenerationConfig `yaml:"generation"`
	History    HistoryConfig    `yaml:"history"`
	Storage    StorageConfig    `yaml:"storage"`
}

type ServerConfig struct {
	Addr                string `yaml:"addr"`
	ReadTimeoutSeconds  int    `yaml:"read_timeout_seconds"`
	WriteTimeoutSeconds int    `yaml:"write_timeout_seconds"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type HTTPClientConfig struct {
	TimeoutSeconds int `yaml:"timeout_seconds"`
	MaxRetries     int `yaml:"max_retries"`
}

// LimiterConfig bounds how many generation runs the server admits.
type LimiterConfig struct {
	MaxConcurrent int     `yaml:"max_concurrent"`
	RatePerSecond float64 `yaml:"rate_per_second"`
}

type GeminiConfig struct {
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url"`
}

type ImageGenConfig struct {
	APIKey      string `yaml:"api_key"`
	Model       string `yaml:"model"`
	BaseURL     string `yaml:"base_url"`
	Style       string `yaml:"style"`
	AspectRatio string `yaml:"aspect_ratio"`
}

// QueueConfig drives the image provider queue.
type QueueConfig struct {
	Spacing     time.Duration `yaml:"spacing"`
	MaxAttempts int           `yaml:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay"`
	Jitter      time.Duration `yaml:"jitter"`
}

type GenerationConfig struct {
	SlideCount      int `yaml:"slide_count"`
	MaxSlideCount   int `yaml:"max_slide_count"`
	SourcesPerSlide int `yaml:"sources_per_slide"`
}

type HistoryConfig struct {
	MaxEntries int `yaml:"max_entries"`
	ListLimit  int `yaml:"list_limit"`
}

type StorageConfig struct {
	Type string `yaml:"type"`
	Path string `yaml:"path"`
}

func Load() (*Config, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}
	return LoadFile(configPath)
}

// LoadFile reads path over the defaults. A missing file is not an error.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return applyEnvOverrides(cfg), nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return applyEnvOverrides(cfg), nil
}

func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:                ":8080",
			ReadTimeoutSeconds:  30,
			WriteTimeoutSeconds: 0,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		HTTPClient: HTTPClientConfig{
			TimeoutSeconds: 60,
			MaxRetries:     2,
		},
		Limiter: LimiterConfig{
			MaxConcurrent: 4,
			RatePerSecond: 1,
		},
		Gemini: GeminiConfig{
			Model: "gemini-2.5-flash",
		},
		ImageGen: ImageGenConfig{
			Model:       "gemini-2.5-flash-image",
			Style:       "Cinematic Photo",
			AspectRatio: "16:9",
		},
		Queue: QueueConfig{
			Spacing:     15 * time.Second,
			MaxAttempts: 3,
			BaseDelay:   5 * time.Second,
			Jitter:      time.Second,
		},
		Generation: GenerationConfig{
			SlideCount:      8,
			MaxSlideCount:   30,
			SourcesPerSlide: 12,
		},
		History: HistoryConfig{
			MaxEntries: 50,
			ListLimit:  50,
		},
		Storage: StorageConfig{
			Type: "sqlite",
			Path: "./data/deckstream.db",
		},
	}
}

func applyEnvOverrides(cfg *Config) *Config {
	if v := os.Getenv("SERVER_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		cfg.Gemini.APIKey = v
	}
	if v := os.Getenv("GEMINI_MODEL"); v != "" {
		cfg.Gemini.Model = v
	}
	if v := os.Getenv("IMAGEGEN_API_KEY"); v != "" {
		cfg.ImageGen.APIKey = v
	}
	if v := os.Getenv("IMAGEGEN_MODEL"); v != "" {
		cfg.ImageGen.Model = v
	}
	if v := os.Getenv("QUEUE_SPACING"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Queue.Spacing = d
		}
	}
	if v := os.Getenv("GENERATION_SLIDE_COUNT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Generation.SlideCount = n
		}
	}
	if v := os.Getenv("STORAGE_TYPE"); v != "" {
		cfg.Storage.Type = v
	}
	if v := os.Getenv("STORAGE_PATH"); v != "" {
		cfg.Storage.Path = v
	}
	// the image provider shares the model key unless given its own
	if cfg.ImageGen.APIKey == "" {
		cfg.ImageGen.APIKey = cfg.Gemini.APIKey
	}
	return cfg
}
