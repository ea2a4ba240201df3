// Package config holds the process configuration, loaded once at start.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

type Config struct {
	Addr       string `koanf:"addr" validate:"required"`
	LogLevel   string `koanf:"log_level" validate:"oneof=debug info warn error"`
	LogConsole bool   `koanf:"log_console"`
	LogSampleN int    `koanf:"log_sample_n" validate:"gte=0"`

	// PublicBaseURL is the origin the map client is served from; "*" when empty.
	PublicBaseURL string `koanf:"public_base_url"`

	SocrataAppToken  string        `koanf:"socrata_app_token"`
	PageSize         int           `koanf:"page_size" validate:"gte=1,lte=50000"`
	FetchRetries     uint64        `koanf:"fetch_retries" validate:"lte=10"`
	FetchRetryWait   time.Duration `koanf:"fetch_retry_wait"`
	HTTPTimeout      time.Duration `koanf:"http_timeout"`
	DatasetsFile     string        `koanf:"datasets_file"`
	Preload          []string      `koanf:"preload"`
	LayerStoreSize   int           `koanf:"layer_store_size" validate:"gte=1"`
	PreloadParallel  int           `koanf:"preload_parallel" validate:"gte=1"`
	HeatmapH3Res     int           `koanf:"heatmap_h3_res" validate:"gte=0,lte=15"`

	LLMProvider    string  `koanf:"llm_provider" validate:"oneof=groq openai gemini"`
	LLMAPIKey      string  `koanf:"llm_api_key"`
	LLMBaseURL     string  `koanf:"llm_base_url" validate:"omitempty,url"`
	// LLMModel overrides the provider's default model.
	LLMModel       string  `koanf:"llm_model"`
	LLMTemperature float64 `koanf:"llm_temperature" validate:"gte=0,lte=2"`
	LLMMaxTokens   int     `koanf:"llm_max_tokens" validate:"gte=1"`

	MapAccessToken string  `koanf:"map_access_token"`
	MapStyleURL    string  `koanf:"map_style_url"`
	MapCenterLng   float64 `koanf:"map_center_lng" validate:"gte=-180,lte=180"`
	MapCenterLat   float64 `koanf:"map_center_lat" validate:"gte=-90,lte=90"`
	MapZoom        float64 `koanf:"map_zoom" validate:"gte=0,lte=24"`

	CacheEnabled   bool          `koanf:"cache_enabled"`
	RedisAddr      string        `koanf:"redis_addr"`
	CacheTTL       time.Duration `koanf:"cache_ttl"`
	CacheOpTimeout time.Duration `koanf:"cache_op_timeout"`

	RefreshEnabled bool     `koanf:"refresh_enabled"`
	KafkaBrokers   []string `koanf:"kafka_brokers"`
	KafkaTopic     string   `koanf:"kafka_topic"`
	KafkaGroupID   string   `koanf:"kafka_group_id"`
}

// New returns a Config populated with defaults.
func New() *Config {
	return &Config{
		Addr:     ":8090",
		LogLevel: "info",

		PageSize:        1000,
		FetchRetries:    0,
		FetchRetryWait:  500 * time.Millisecond,
		HTTPTimeout:     30 * time.Second,
		Preload:         []string{"outages", "projects", "ev_stations"},
		LayerStoreSize:  16,
		PreloadParallel: 2,
		HeatmapH3Res:    9,

		LLMProvider:    "groq",
		LLMTemperature: 0.5,
		LLMMaxTokens:   4096,

		MapStyleURL:  "mapbox://styles/tanksalif/cm1c4amlx00o301qkd5racncv",
		MapCenterLng: -73.9919618,
		MapCenterLat: 40.7485519,
		MapZoom:      12.5,

		RedisAddr:      "localhost:6379",
		CacheTTL:       5 * time.Minute,
		CacheOpTimeout: 250 * time.Millisecond,

		KafkaBrokers: []string{"localhost:9092"},
		KafkaTopic:   "opendata-refresh",
		KafkaGroupID: "opendata-map",
	}
}

// Path names a code path whose credentials must be present before it runs.
type Path string

const (
	PathFetch     Path = "fetch"
	PathRecommend Path = "recommend"
	PathMap       Path = "map"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks ranges and enums. Credentials are checked by Require.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Require reports the first missing credential needed by any of paths.
func (c *Config) Require(paths ...Path) error {
	for _, p := range paths {
		switch p {
		case PathFetch:
			if err := requireVar(c.SocrataAppToken, "socrata_app_token", p); err != nil {
				return err
			}
		case PathRecommend:
			if err := requireVar(c.LLMAPIKey, "llm_api_key", p); err != nil {
				return err
			}
		case PathMap:
			if err := requireVar(c.MapAccessToken, "map_access_token", p); err != nil {
				return err
			}
		default:
			return fmt.Errorf("unknown config path %q", p)
		}
	}
	return nil
}

func requireVar(v, key string, p Path) error {
	if err := validate.Var(strings.TrimSpace(v), "required"); err != nil {
		return &ConfigurationError{Key: key, Path: p}
	}
	return nil
}

// LLMBase returns the chat completion base URL, defaulted per provider.
func (c *Config) LLMBase() string {
	if c.LLMBaseURL != "" {
		return strings.TrimRight(c.LLMBaseURL, "/")
	}
	switch c.LLMProvider {
	case "openai":
		return "https://api.openai.com/v1"
	case "gemini":
		return ""
	default:
		return "https://api.groq.com/openai/v1"
	}
}

// Model returns LLMModel, defaulted per provider.
func (c *Config) Model() string {
	if m := strings.TrimSpace(c.LLMModel); m != "" {
		return m
	}
	switch c.LLMProvider {
	case "openai":
		return "gpt-4o-mini"
	case "gemini":
		return "gemini-2.5-flash"
	default:
		return "llama-3.3-70b-versatile"
	}
}
