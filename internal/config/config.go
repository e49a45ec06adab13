package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/Simplici0/levelworks/internal/pricing"
)

const (
	defaultDBPath = "./dev.db"
	defaultPort   = "8080"
	envDev        = "development"
)

// Config holds application configuration sourced from config.yaml and environment variables.
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Admin    AdminConfig    `mapstructure:"admin"`
	Session  SessionConfig  `mapstructure:"session"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Email    EmailConfig    `mapstructure:"email"`
	Business BusinessConfig `mapstructure:"business"`
	Pricing  PricingConfig  `mapstructure:"pricing"`

	// Warnings lists non-fatal problems found while loading.
	Warnings []string `mapstructure:"-"`
}

type AppConfig struct {
	Name string `mapstructure:"name"`
	Env  string `mapstructure:"env"`
}

type ServerConfig struct {
	Port         string        `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

type AdminConfig struct {
	Email    string `mapstructure:"email"`
	Password string `mapstructure:"password"`
}

type SessionConfig struct {
	Secret string        `mapstructure:"secret"`
	TTL    time.Duration `mapstructure:"ttl"`
}

type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// EmailConfig controls outbound document email. When disabled every send
// falls back to a mailto link and copy-ready text.
type EmailConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Region  string `mapstructure:"region"`
	From    string `mapstructure:"from"`
}

// BusinessConfig is printed on every document header.
type BusinessConfig struct {
	Name    string `mapstructure:"name"`
	Phone   string `mapstructure:"phone"`
	Email   string `mapstructure:"email"`
	Address string `mapstructure:"address"`
}

// PricingConfig seeds the rate tables on first start. Later edits happen
// through the admin API and live in the database.
type PricingConfig struct {
	ComplexityTiers int `mapstructure:"complexity_tiers"`
	// Overrides are pointers so an explicit 0 replaces the default.
	EnvironmentalMultiplier *float64           `mapstructure:"environmental_multiplier"`
	PerMileRate             *float64           `mapstructure:"per_mile_rate"`
	BaseFee                 *float64           `mapstructure:"base_fee"`
	LaborMultiplierLow      *float64           `mapstructure:"labor_multiplier_low"`
	LaborMultiplierHigh     *float64           `mapstructure:"labor_multiplier_high"`
	PricePerPoundLow        *float64           `mapstructure:"price_per_pound_low"`
	PricePerPoundHigh       *float64           `mapstructure:"price_per_pound_high"`
	FoamFactors             map[string]float64 `mapstructure:"foam_factors"`
	SoilMultipliers         map[string]float64 `mapstructure:"soil_multipliers"`
}

// IsDev reports whether the app runs in the development environment.
func (c Config) IsDev() bool {
	env := strings.ToLower(c.App.Env)
	return env == "" || env == envDev || env == "dev"
}

// Rates builds the seed rate table from the built-in defaults and any overrides.
func (p PricingConfig) Rates() (pricing.Rates, error) {
	rates := pricing.DefaultRates()

	switch p.ComplexityTiers {
	case 0, 3:
	case 4:
		rates.ComplexityFactors = pricing.ExtendedComplexity()
	default:
		return pricing.Rates{}, fmt.Errorf("pricing.complexity_tiers must be 3 or 4, got %d", p.ComplexityTiers)
	}

	overrideFloat(&rates.EnvironmentalMultiplier, p.EnvironmentalMultiplier)
	overrideFloat(&rates.PerMileRate, p.PerMileRate)
	overrideFloat(&rates.BaseFee, p.BaseFee)
	overrideFloat(&rates.LaborMultiplierLow, p.LaborMultiplierLow)
	overrideFloat(&rates.LaborMultiplierHigh, p.LaborMultiplierHigh)
	overrideFloat(&rates.PricePerPoundLow, p.PricePerPoundLow)
	overrideFloat(&rates.PricePerPoundHigh, p.PricePerPoundHigh)

	for k, v := range p.FoamFactors {
		rates.FoamFactors[strings.ToLower(k)] = v
	}
	for k, v := range p.SoilMultipliers {
		rates.SoilMultipliers[pricing.SoilType(strings.ToLower(k))] = v
	}

	if err := rates.Validate(); err != nil {
		return pricing.Rates{}, fmt.Errorf("pricing config: %w", err)
	}
	return rates, nil
}

// Load reads .env, config.yaml and environment variables and returns a populated Config.
func Load() (Config, error) {
	return load([]string{"./configs", "."})
}

func load(configPaths []string) (Config, error) {
	var warnings []string

	// Best-effort: load local dev environment variables.
	if _, err := loadDotEnv(".env"); err != nil {
		warnings = append(warnings, fmt.Sprintf("failed to load .env: %v", err))
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	for _, p := range configPaths {
		v.AddConfigPath(p)
	}
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	if err := bindLegacyEnv(v); err != nil {
		return Config{}, err
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	if err := validate(&cfg); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}

	if cfg.Admin.Email == "" {
		warnings = append(warnings, "ADMIN_EMAIL is not set")
	}
	if cfg.Admin.Password == "" {
		warnings = append(warnings, "ADMIN_PASSWORD is not set")
	}
	if cfg.Session.Secret == "" {
		warnings = append(warnings, "SESSION_SECRET is not set")
	}
	cfg.Warnings = warnings

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "levelworks")
	v.SetDefault("app.env", envDev)
	v.SetDefault("server.port", defaultPort)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("database.path", defaultDBPath)
	v.SetDefault("admin.email", "")
	v.SetDefault("admin.password", "")
	v.SetDefault("session.secret", "")
	v.SetDefault("session.ttl", "12h")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.file", "")
	v.SetDefault("logging.max_size_mb", 50)
	v.SetDefault("logging.max_backups", 5)
	v.SetDefault("logging.max_age_days", 30)
	v.SetDefault("email.enabled", false)
	v.SetDefault("email.region", "us-east-1")
	v.SetDefault("email.from", "")
	v.SetDefault("business.name", "")
	v.SetDefault("business.phone", "")
	v.SetDefault("business.email", "")
	v.SetDefault("business.address", "")
	v.SetDefault("pricing.complexity_tiers", 3)
}

// bindLegacyEnv keeps the flat variable names used by earlier deployments.
func bindLegacyEnv(v *viper.Viper) error {
	bindings := map[string][]string{
		"app.env":          {"APP_ENV", "APP_ENVIRONMENT"},
		"server.port":      {"SERVER_PORT", "PORT"},
		"database.path":    {"DATABASE_PATH", "DB_PATH"},
		"admin.email":      {"ADMIN_EMAIL"},
		"admin.password":   {"ADMIN_PASSWORD"},
		"session.secret":   {"SESSION_SECRET"},
		"logging.level":    {"LOGGING_LEVEL", "LOG_LEVEL"},
		"logging.format":   {"LOGGING_FORMAT", "LOG_FORMAT"},
		"email.enabled":    {"EMAIL_ENABLED"},
		"email.region":     {"EMAIL_REGION", "AWS_REGION"},
		"email.from":       {"EMAIL_FROM"},
		"business.name":    {"BUSINESS_NAME"},
		"business.phone":   {"BUSINESS_PHONE"},
		"business.email":   {"BUSINESS_EMAIL"},
		"business.address": {"BUSINESS_ADDRESS"},
	}
	for key, envs := range bindings {
		input := append([]string{key}, envs...)
		if err := v.BindEnv(input...); err != nil {
			return fmt.Errorf("bind env for %s: %w", key, err)
		}
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.Database.Path == "" {
		cfg.Database.Path = defaultDBPath
	}
	if cfg.Server.Port == "" {
		cfg.Server.Port = defaultPort
	}
	if cfg.Session.TTL <= 0 {
		cfg.Session.TTL = 12 * time.Hour
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Business.Name == "" {
		cfg.Business.Name = "Concrete Leveling & Masonry"
	}
}

func overrideFloat(dst *float64, v *float64) {
	if v != nil {
		*dst = *v
	}
}

func validate(cfg *Config) error {
	switch cfg.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logging.format must be json or console, got %q", cfg.Logging.Format)
	}
	if cfg.Email.Enabled && cfg.Email.From == "" {
		return fmt.Errorf("email.from is required when email.enabled is true")
	}
	if _, err := cfg.Pricing.Rates(); err != nil {
		return err
	}
	return nil
}
