package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"cosmossdk.io/math"
	"gopkg.in/yaml.v3"

	fees "tranche-vault/internal/fees/domain"
	nav "tranche-vault/internal/nav/domain"
)

// Config is the service configuration.
type Config struct {
	DatabaseURL  string            `yaml:"database_url"`
	HTTPAddr     string            `yaml:"http_addr"`
	JWTSecret    string            `yaml:"jwt_secret"`
	LogLevel     string            `yaml:"log_level"`
	CORSOrigins  []string          `yaml:"cors_origins"`
	Fees         fees.Params       `yaml:"fees"`
	AssetClasses []AssetClass      `yaml:"asset_classes"`
	Keeper       KeeperConfig      `yaml:"keeper"`
	Treasury     TreasuryConfig    `yaml:"treasury"`
	Eligibility  EligibilityConfig `yaml:"eligibility"`
	Outbox       OutboxConfig      `yaml:"outbox"`
	NATS         NATSConfig        `yaml:"nats"`
}

// AssetClass configures one vault and its valuation record.
type AssetClass struct {
	Name               string        `yaml:"name"`
	LockDuration       time.Duration `yaml:"lock_duration"`
	ChangeThresholdBps uint32        `yaml:"change_threshold_bps"`
	Staleness          time.Duration `yaml:"staleness"`
	Updaters           []string      `yaml:"updaters"`
	InitialNav         string        `yaml:"initial_nav"`
	CustodyAccount     string        `yaml:"custody_account"`
	Fees               *fees.Params  `yaml:"fees"`
}

// KeeperConfig configures the settlement loop.
type KeeperConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
	Limit    int           `yaml:"limit"`
	Operator string        `yaml:"operator"`
}

// TreasuryConfig configures the treasury sink.
type TreasuryConfig struct {
	Account    string `yaml:"account"`
	WebhookURL string `yaml:"webhook_url"`
	Token      string `yaml:"token"`
}

// EligibilityConfig configures the eligibility gate.
type EligibilityConfig struct {
	// Mode is "allowlist" or "open".
	Mode    string             `yaml:"mode"`
	Entries []EligibilityEntry `yaml:"entries"`
}

// EligibilityEntry seeds the allow-list.
type EligibilityEntry struct {
	AssetClass string `yaml:"asset_class"`
	Address    string `yaml:"address"`
}

// OutboxConfig configures the outbox dispatcher.
type OutboxConfig struct {
	Interval    time.Duration `yaml:"interval"`
	Limit       int           `yaml:"limit"`
	MaxAttempts int           `yaml:"max_attempts"`
	Backoff     time.Duration `yaml:"backoff"`
}

// NATSConfig configures the optional event relay.
type NATSConfig struct {
	URL           string `yaml:"url"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

const (
	defaultLockDuration = 30 * 24 * time.Hour
	defaultStaleness    = 24 * time.Hour
	defaultThresholdBps = 1000
)

// Load reads env defaults, then the YAML file named by VAULT_CONFIG, then env fallbacks.
func Load() (Config, error) {
	cfg := Config{
		DatabaseURL: getenvDefault("DATABASE_URL", getenvDefault("PG_DSN", "")),
		HTTPAddr:    getenvDefault("HTTP_ADDR", ":8080"),
		JWTSecret:   getenvDefault("AUTH_JWT_SECRET", getenvDefault("JWT_SECRET", "")),
		LogLevel:    getenvDefault("LOG_LEVEL", "info"),
		Keeper: KeeperConfig{
			Enabled:  getenvBool("KEEPER_ENABLED", false),
			Interval: getenvDuration("KEEPER_INTERVAL", time.Minute),
			Limit:    getenvIntDefault("KEEPER_LIMIT", 100),
			Operator: getenvDefault("KEEPER_OPERATOR", "keeper"),
		},
		Treasury: TreasuryConfig{
			Account:    getenvDefault("TREASURY_ACCOUNT", "treasury"),
			WebhookURL: os.Getenv("TREASURY_WEBHOOK_URL"),
			Token:      os.Getenv("TREASURY_WEBHOOK_TOKEN"),
		},
		Eligibility: EligibilityConfig{Mode: getenvDefault("ELIGIBILITY_MODE", "allowlist")},
		Outbox: OutboxConfig{
			Interval:    getenvDuration("OUTBOX_INTERVAL", 2*time.Second),
			Limit:       getenvIntDefault("OUTBOX_LIMIT", 100),
			MaxAttempts: getenvIntDefault("OUTBOX_MAX_ATTEMPTS", 5),
			Backoff:     getenvDuration("OUTBOX_BACKOFF", 5*time.Second),
		},
		NATS: NATSConfig{
			URL:           os.Getenv("NATS_URL"),
			SubjectPrefix: getenvDefault("NATS_SUBJECT_PREFIX", "vault.events"),
		},
	}

	if path := os.Getenv("VAULT_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, err
		}
	}

	if len(cfg.CORSOrigins) == 0 {
		cfg.CORSOrigins = splitCSV(getenvDefault("CORS_ORIGINS", "*"))
	}
	if len(cfg.AssetClasses) == 0 {
		for _, name := range splitCSV(os.Getenv("ASSET_CLASSES")) {
			cfg.AssetClasses = append(cfg.AssetClasses, AssetClass{Name: name})
		}
	}
	cfg.applyDefaults()
	return cfg, cfg.Validate()
}

func (c *Config) applyDefaults() {
	for i := range c.AssetClasses {
		class := &c.AssetClasses[i]
		if class.LockDuration == 0 {
			class.LockDuration = defaultLockDuration
		}
		if class.Staleness == 0 {
			class.Staleness = defaultStaleness
		}
		if class.ChangeThresholdBps == 0 {
			class.ChangeThresholdBps = defaultThresholdBps
		}
		if class.CustodyAccount == "" {
			class.CustodyAccount = "vault:" + class.Name
		}
	}
	if c.Eligibility.Mode == "" {
		c.Eligibility.Mode = "allowlist"
	}
	recipients := &c.Fees.Recipients
	for _, field := range []*string{&recipients.Management, &recipients.Performance, &recipients.Penalty} {
		if *field == "" {
			*field = c.Treasury.Account
		}
	}
}

// Validate checks the configuration for values the domain would reject later.
func (c Config) Validate() error {
	if c.HTTPAddr == "" {
		return errors.New("config: http addr required")
	}
	if err := c.Fees.Rates.Validate(); err != nil {
		return fmt.Errorf("config: global fees: %w", err)
	}
	switch c.Eligibility.Mode {
	case "allowlist", "open":
	default:
		return fmt.Errorf("config: unknown eligibility mode %q", c.Eligibility.Mode)
	}
	seen := make(map[string]struct{}, len(c.AssetClasses))
	for _, class := range c.AssetClasses {
		if class.Name == "" {
			return errors.New("config: asset class name required")
		}
		if _, dup := seen[class.Name]; dup {
			return fmt.Errorf("config: duplicate asset class %q", class.Name)
		}
		seen[class.Name] = struct{}{}
		if class.LockDuration < 0 {
			return fmt.Errorf("config: asset class %q: negative lock duration", class.Name)
		}
		if class.ChangeThresholdBps > nav.MaxChangeThresholdBps {
			return fmt.Errorf("config: asset class %q: change threshold above %d bps", class.Name, nav.MaxChangeThresholdBps)
		}
		if class.InitialNav != "" {
			if _, err := class.ParseInitialNav(); err != nil {
				return fmt.Errorf("config: asset class %q: initial nav: %w", class.Name, err)
			}
		}
		if class.Fees != nil {
			if err := class.Fees.Rates.Validate(); err != nil {
				return fmt.Errorf("config: asset class %q fees: %w", class.Name, err)
			}
		}
	}
	if c.Keeper.Enabled && c.Keeper.Interval <= 0 {
		return errors.New("config: keeper interval must be positive")
	}
	return nil
}

// ParseInitialNav parses the configured starting NAV. An empty value is zero.
func (a AssetClass) ParseInitialNav() (math.Uint, error) {
	if strings.TrimSpace(a.InitialNav) == "" {
		return math.ZeroUint(), nil
	}
	return math.ParseUint(strings.TrimSpace(a.InitialNav))
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvIntDefault(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func splitCSV(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	var result []string
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part != "" {
			result = append(result, part)
		}
	}
	return result
}
