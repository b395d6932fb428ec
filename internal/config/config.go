package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

var singleConfig *Config = nil

type Config struct {
	Service *SvcConfig
	Payment *PaymentConfig
	Geodata *GeodataConfig
	Storage *StorageConfig
	Render  *RenderConfig
}

type SvcConfig struct {
	Address        string   `envconfig:"POSTER_API_ADDRESS" default:":8000"`
	MetricsAddress string   `envconfig:"POSTER_API_METRICS_ADDRESS" default:":8080"`
	LogLevel       string   `envconfig:"LOG_LEVEL" default:"info"`
	LogEncoding    string   `envconfig:"POSTER_API_LOG_ENCODING" default:"console"`
	DataDir        string   `envconfig:"DATA_DIR" default:"./data/posters"`
	CacheDir       string   `envconfig:"CACHE_DIR" default:"./cache"`
	ThemesDir      string   `envconfig:"THEMES_DIR" default:"./themes"`
	StaticDir      string   `envconfig:"STATIC_DIR" default:"./static"`
	CleanupHours   int      `envconfig:"CLEANUP_HOURS" default:"24"`
	Workers        int      `envconfig:"POSTER_API_WORKERS" default:"2"`
	AllowedOrigins []string `envconfig:"POSTER_API_ALLOWED_ORIGINS" default:"*"`
}

type PaymentConfig struct {
	PayToAddress   string        `envconfig:"PAY_TO_ADDRESS" default:"0x0000000000000000000000000000000000000000"`
	Network        string        `envconfig:"X402_NETWORK" default:"base-sepolia"`
	Price          float64       `envconfig:"POSTER_PRICE" default:"0.75"`
	FacilitatorURL string        `envconfig:"X402_FACILITATOR_URL" default:"https://x402.org/facilitator"`
	Timeout        time.Duration `envconfig:"X402_TIMEOUT" default:"30s"`
	MaxTimeout     int           `envconfig:"X402_MAX_TIMEOUT_SECONDS" default:"60"`
}

type GeodataConfig struct {
	OverpassURL  string        `envconfig:"OVERPASS_URL" default:"https://overpass-api.de/api/interpreter"`
	NominatimURL string        `envconfig:"NOMINATIM_URL" default:"https://nominatim.openstreetmap.org"`
	UserAgent    string        `envconfig:"GEODATA_USER_AGENT" default:"maptoposter-api/0.1"`
	Timeout      time.Duration `envconfig:"GEODATA_TIMEOUT" default:"180s"`
	RetryMax     int           `envconfig:"GEODATA_RETRY_MAX" default:"3"`
}

type StorageConfig struct {
	Backend        string `envconfig:"STORAGE_BACKEND" default:"local"`
	MinioEndpoint  string `envconfig:"MINIO_ENDPOINT" default:""`
	MinioBucket    string `envconfig:"MINIO_BUCKET" default:"posters"`
	MinioAccessKey string `envconfig:"MINIO_ACCESS_KEY" default:""`
	MinioSecretKey string `envconfig:"MINIO_SECRET_KEY" default:""`
	MinioUseSSL    bool   `envconfig:"MINIO_USE_SSL" default:"false"`
}

type RenderConfig struct {
	Width  int `envconfig:"POSTER_WIDTH" default:"1200"`
	Height int `envconfig:"POSTER_HEIGHT" default:"1600"`
}

// New returns the process configuration, read once from the environment.
// A .env file in the working directory is loaded first when present.
func New() (*Config, error) {
	if singleConfig == nil {
		cfg, err := Load()
		if err != nil {
			return nil, err
		}
		singleConfig = cfg
	}
	return singleConfig, nil
}

// Load reads a fresh configuration from the environment.
func Load() (*Config, error) {
	// a missing .env is fine, the environment may be set directly
	_ = godotenv.Load()

	cfg := new(Config)
	if err := envconfig.Process("", cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Service.Workers < 1 {
		return fmt.Errorf("POSTER_API_WORKERS must be at least 1, got %d", c.Service.Workers)
	}
	if c.Service.CleanupHours < 1 {
		return fmt.Errorf("CLEANUP_HOURS must be at least 1, got %d", c.Service.CleanupHours)
	}
	if c.Payment.Price <= 0 {
		return fmt.Errorf("POSTER_PRICE must be positive, got %v", c.Payment.Price)
	}
	switch strings.ToLower(c.Storage.Backend) {
	case "local":
	case "minio":
		if c.Storage.MinioEndpoint == "" {
			return fmt.Errorf("MINIO_ENDPOINT is required for the minio storage backend")
		}
	default:
		return fmt.Errorf("unknown STORAGE_BACKEND %q", c.Storage.Backend)
	}
	if c.Render.Width < 100 || c.Render.Height < 100 {
		return fmt.Errorf("poster size %dx%d is too small", c.Render.Width, c.Render.Height)
	}
	return nil
}

// CleanupAge is how long jobs and poster files are kept once finished.
func (c *SvcConfig) CleanupAge() time.Duration {
	return time.Duration(c.CleanupHours) * time.Hour
}

func (c *Config) String() string {
	return fmt.Sprintf("address=%s metrics=%s data_dir=%s cache_dir=%s storage=%s network=%s price=%v",
		c.Service.Address, c.Service.MetricsAddress, c.Service.DataDir, c.Service.CacheDir,
		c.Storage.Backend, c.Payment.Network, c.Payment.Price)
}
