// File: internal/config/config.go
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	StorageFile     = "file"
	StoragePostgres = "postgres"
)

type RuntimeConfig struct {
	Dev bool
}

type BotConfig struct {
	Token     string  `yaml:"token" env:"BOT_TOKEN"`
	Mode      string  `yaml:"mode"`    // polling | noop
	Workers   int     `yaml:"workers"` // polling workers
	AdminIDs  []int64 `yaml:"admin_ids" env:"ADMIN_ID" envSeparator:","`
	LogChatID int64   `yaml:"log_chat_id" env:"ADMIN_LOG_CHAT_ID"`
	Locale    string  `yaml:"locale" env:"BOT_LOCALE"`
	// Commands per user and command within RateWindow; 0 disables the limit.
	RateLimit  int           `yaml:"rate_limit"`
	RateWindow time.Duration `yaml:"rate_window"`
}

type LogConfig struct {
	Level    string `yaml:"level" env:"LOG_LEVEL"` // trace|debug|info|warn|error
	Format   string `yaml:"format"`                // json|console
	Sampling bool   `yaml:"sampling"`              // enable sampling in prod
}

type HTTPConfig struct {
	Port           int           `yaml:"port" env:"PORT"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

type StorageConfig struct {
	Driver         string `yaml:"driver" env:"STORAGE_DRIVER"` // file | postgres
	DataDir        string `yaml:"data_dir" env:"DATA_DIR"`
	BalancesFile   string `yaml:"balances_file" env:"BALANCES_FILE"`
	InvoicesFile   string `yaml:"invoices_file" env:"INVOICES_FILE"`
	OrdersFile     string `yaml:"orders_file" env:"ORDERS_FILE"`
	PromosFile     string `yaml:"promos_file" env:"PROMOS_FILE"`
	ServiceMapFile string `yaml:"service_map_file" env:"SERVICE_MAP_FILE"`
}

type DatabaseConfig struct {
	URL string `yaml:"url" env:"DATABASE_URL"`
}

type RedisConfig struct {
	URL      string `yaml:"url" env:"REDIS_URL"`
	Password string `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int    `yaml:"db"`
}

type ProviderConfig struct {
	Name        string        `yaml:"name"`
	BaseURL     string        `yaml:"base_url" env:"LOOKSMM_URL"`
	Key         string        `yaml:"key" env:"LOOKSMM_KEY"`
	Timeout     time.Duration `yaml:"timeout"`
	ServicesTTL time.Duration `yaml:"services_ttl"`
}

type PricingConfig struct {
	Multiplier  float64 `yaml:"multiplier" env:"PRICING_MULTIPLIER"`
	MinQuantity int64   `yaml:"min_quantity" env:"MIN_ORDER_QUANTITY"`
}

type PaymentConfig struct {
	CardDetails  string `yaml:"card_details" env:"CARD_DETAILS"`
	Instructions string `yaml:"instructions" env:"PAY_INSTRUCTIONS"`
}

type CatalogConfig struct {
	Path string `yaml:"path" env:"CATALOG_FILE"`
}

type SchedulerConfig struct {
	ReconcileInterval time.Duration `yaml:"reconcile_interval"`
}

type AdminConfig struct {
	APISecret string        `yaml:"api_secret" env:"ADMIN_API_SECRET"`
	JWTSecret string        `yaml:"jwt_secret" env:"ADMIN_JWT_SECRET"`
	TokenTTL  time.Duration `yaml:"token_ttl"`
}

type Config struct {
	Bot       BotConfig       `yaml:"bot"`
	Log       LogConfig       `yaml:"log"`
	HTTP      HTTPConfig      `yaml:"http"`
	Storage   StorageConfig   `yaml:"storage"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Provider  ProviderConfig  `yaml:"provider"`
	Pricing   PricingConfig   `yaml:"pricing"`
	Payment   PaymentConfig   `yaml:"payment"`
	Catalog   CatalogConfig   `yaml:"catalog"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Admin     AdminConfig     `yaml:"admin"`

	Runtime RuntimeConfig `yaml:"-"`
}

// LoadConfig reads -config, -env and -dev from the command line and delegates to Load.
// Variables from the optional dotenv file never override the real environment.
func LoadConfig() (*Config, error) {
	var configPath, envPath string
	var dev bool
	flag.StringVar(&configPath, "config", "config.yaml", "path to config yaml")
	flag.StringVar(&envPath, "env", ".env", "optional dotenv file")
	flag.BoolVar(&dev, "dev", false, "development mode")
	flag.Parse()

	if err := godotenv.Load(envPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load %s: %w", envPath, err)
	}
	return Load(configPath, dev)
}

// Load parses the yaml file at path (a missing file is allowed), applies
// environment overrides, then defaults, then validates.
func Load(path string, dev bool) (*Config, error) {
	var cfg Config
	b, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	case errors.Is(err, os.ErrNotExist):
		// env-only deployment
	default:
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	applyDefaults(&cfg)
	cfg.Runtime.Dev = dev

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Bot.Workers <= 0 {
		cfg.Bot.Workers = 8
	}
	if cfg.Bot.Mode == "" {
		cfg.Bot.Mode = "polling"
	}
	if cfg.Bot.Locale == "" {
		cfg.Bot.Locale = "ru"
	}
	if cfg.Bot.RateLimit == 0 {
		cfg.Bot.RateLimit = 20
	}
	if cfg.Bot.RateWindow <= 0 {
		cfg.Bot.RateWindow = time.Minute
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.HTTP.Port <= 0 {
		cfg.HTTP.Port = 8080
	}
	if cfg.HTTP.RequestTimeout <= 0 {
		cfg.HTTP.RequestTimeout = 15 * time.Second
	}

	cfg.Storage.Driver = strings.ToLower(strings.TrimSpace(cfg.Storage.Driver))
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = StorageFile
	}
	if cfg.Storage.DataDir == "" {
		cfg.Storage.DataDir = "data"
	}
	cfg.Storage.BalancesFile = inDataDir(cfg.Storage.DataDir, cfg.Storage.BalancesFile, "balances.json")
	cfg.Storage.InvoicesFile = inDataDir(cfg.Storage.DataDir, cfg.Storage.InvoicesFile, "invoices.json")
	cfg.Storage.OrdersFile = inDataDir(cfg.Storage.DataDir, cfg.Storage.OrdersFile, "orders.json")
	cfg.Storage.PromosFile = inDataDir(cfg.Storage.DataDir, cfg.Storage.PromosFile, "promos.json")
	cfg.Storage.ServiceMapFile = inDataDir(cfg.Storage.DataDir, cfg.Storage.ServiceMapFile, "service_map.json")

	if cfg.Provider.Name == "" {
		cfg.Provider.Name = "looksmm"
	}
	if cfg.Provider.BaseURL == "" {
		cfg.Provider.BaseURL = "https://looksmm.ru/api/v2"
	}
	if cfg.Provider.Timeout <= 0 {
		cfg.Provider.Timeout = 30 * time.Second
	}
	if cfg.Provider.ServicesTTL <= 0 {
		cfg.Provider.ServicesTTL = 10 * time.Minute
	}
	if cfg.Pricing.Multiplier == 0 {
		cfg.Pricing.Multiplier = 2.0
	}
	if cfg.Pricing.MinQuantity == 0 {
		cfg.Pricing.MinQuantity = 10
	}
	if cfg.Catalog.Path == "" {
		cfg.Catalog.Path = "catalog.yaml"
	}
	if cfg.Scheduler.ReconcileInterval <= 0 {
		cfg.Scheduler.ReconcileInterval = 5 * time.Minute
	}
	if cfg.Admin.TokenTTL <= 0 {
		cfg.Admin.TokenTTL = time.Hour
	}
}

// Validate reports the first configuration error.
func (c *Config) Validate() error {
	if c.Bot.Token == "" && c.Bot.Mode != "noop" {
		return errors.New("bot.token is required")
	}
	switch c.Storage.Driver {
	case StorageFile:
	case StoragePostgres:
		if c.Database.URL == "" {
			return errors.New("database.url is required for the postgres storage driver")
		}
	default:
		return fmt.Errorf("storage.driver %q is not supported", c.Storage.Driver)
	}
	if c.Pricing.Multiplier <= 0 {
		return errors.New("pricing.multiplier must be positive")
	}
	if c.Pricing.MinQuantity < 0 {
		return errors.New("pricing.min_quantity must not be negative")
	}
	if c.Admin.APISecret != "" && c.Admin.JWTSecret == "" {
		return errors.New("admin.jwt_secret is required when admin.api_secret is set")
	}
	return nil
}

// IsAdmin reports whether id is one of the configured admin chat ids.
func (c *Config) IsAdmin(id int64) bool {
	for _, a := range c.Bot.AdminIDs {
		if a == id {
			return true
		}
	}
	return false
}

func inDataDir(dir, name, fallback string) string {
	if name == "" {
		name = fallback
	}
	if filepath.IsAbs(name) || strings.ContainsRune(name, filepath.Separator) {
		return name
	}
	return filepath.Join(dir, name)
}
