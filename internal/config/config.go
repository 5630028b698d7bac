package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"premium-access/internal/domain/model"
)

type RuntimeConfig struct {
	Dev bool
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type AdminConfig struct {
	Port         int           `yaml:"port"`
	APIKey       string        `yaml:"api_key"`
	Password     string        `yaml:"password"`
	JWTSecret    string        `yaml:"jwt_secret"`
	SessionTTL   time.Duration `yaml:"session_ttl"`
	SecureCookie bool          `yaml:"secure_cookie"`
	CookieDomain string        `yaml:"cookie_domain"`
}

type DatabaseConfig struct {
	URL string `yaml:"url"`
}

type RedisConfig struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// PlanConfig is one entry of the tier catalog. MaxDevices -1 means no device
// cap for the tier; 0 is invalid (unknown tiers fail closed to 1 at lookup,
// configured tiers must be explicit).
type PlanConfig struct {
	Tier         string `yaml:"tier"`
	MaxDevices   int    `yaml:"max_devices"`
	DurationDays int    `yaml:"duration_days"`
	Flexible     bool   `yaml:"flexible"`
}

type SessionConfig struct {
	StaleAfter   time.Duration `yaml:"stale_after"`   // idle time after which a session stops counting
	ReapInterval time.Duration `yaml:"reap_interval"` // cadence of the background sweep
}

// AdmissionConfig holds the explicit product decision for non-premium users.
// FallbackPolicy must be "reject" or "allow"; there is no silent default.
type AdmissionConfig struct {
	FallbackPolicy     string `yaml:"fallback_policy"`
	FallbackMaxDevices int    `yaml:"fallback_max_devices"`
	RateLimitPerMinute int    `yaml:"rate_limit_per_minute"`
}

type Config struct {
	Log       LogConfig       `yaml:"log"`
	Admin     AdminConfig     `yaml:"admin"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Plans     []PlanConfig    `yaml:"plans"`
	Session   SessionConfig   `yaml:"session"`
	Admission AdmissionConfig `yaml:"admission"`

	Runtime RuntimeConfig `yaml:"-"`
}

func LoadConfig(path string, dev bool) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.Runtime.Dev = dev

	// Secrets may be supplied via environment instead of the file.
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Redis.URL = v
	}
	if v := os.Getenv("ADMIN_API_KEY"); v != "" {
		cfg.Admin.APIKey = v
	}
	if v := os.Getenv("ADMIN_JWT_SECRET"); v != "" {
		cfg.Admin.JWTSecret = v
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("database.url is required")
	}
	if len(c.Plans) == 0 {
		return fmt.Errorf("plans: at least one tier must be configured")
	}
	for _, p := range c.Plans {
		if p.Tier == "" || p.DurationDays <= 0 {
			return fmt.Errorf("plans: tier %q needs a name and a positive duration_days", p.Tier)
		}
		if p.MaxDevices == 0 || p.MaxDevices < model.UnlimitedDevices {
			return fmt.Errorf("plans: tier %q has invalid max_devices %d (use -1 for unlimited)", p.Tier, p.MaxDevices)
		}
	}
	switch c.Admission.FallbackPolicy {
	case "reject":
	case "allow":
		if c.Admission.FallbackMaxDevices == 0 || c.Admission.FallbackMaxDevices < model.UnlimitedDevices {
			return fmt.Errorf("admission.fallback_max_devices must be positive or -1 when fallback_policy is allow")
		}
	default:
		return fmt.Errorf("admission.fallback_policy must be \"reject\" or \"allow\"")
	}
	if c.Session.StaleAfter < 0 || c.Session.ReapInterval < 0 {
		return fmt.Errorf("session durations must not be negative")
	}
	return nil
}

// PlanCatalog builds the domain catalog from the configured tier entries.
func (c *Config) PlanCatalog() (*model.PlanCatalog, error) {
	plans := make([]model.Plan, 0, len(c.Plans))
	for _, p := range c.Plans {
		plans = append(plans, model.Plan{
			Tier:       p.Tier,
			MaxDevices: p.MaxDevices,
			Duration:   time.Duration(p.DurationDays) * 24 * time.Hour,
			Flexible:   p.Flexible,
		})
	}
	return model.NewPlanCatalog(plans)
}
