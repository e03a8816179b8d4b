package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Store   StoreConfig   `yaml:"store"`
	NATS    NATSConfig    `yaml:"nats"`
	Web     WebConfig     `yaml:"web"`
	Bus     BusConfig     `yaml:"bus"`
	Pending PendingConfig `yaml:"pending"`
	Ledger  LedgerConfig  `yaml:"ledger"`
	NLP     NLPConfig     `yaml:"nlp"`
}

type StoreConfig struct {
	Path string `yaml:"path"`
}

type NATSConfig struct {
	Port    int    `yaml:"port"`
	DataDir string `yaml:"data_dir"`
}

type WebConfig struct {
	Port int    `yaml:"port"`
	Auth string `yaml:"auth"`
}

type BusConfig struct {
	// WaitTimeout bounds WaitForResponse; callers degrade on expiry.
	WaitTimeout  time.Duration `yaml:"wait_timeout"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

type PendingConfig struct {
	// TTL of 0 disables expiry; stale drafts then persist until the
	// user cancels them explicitly.
	TTL           time.Duration `yaml:"ttl"`
	SweepSchedule string        `yaml:"sweep_schedule"`
}

type LedgerConfig struct {
	SuspenseAccountCode string `yaml:"suspense_account_code"`
	DefaultExpenseCode  string `yaml:"default_expense_code"`
}

type NLPConfig struct {
	Strategy string `yaml:"strategy"` // pattern, model or hybrid
	ModelURL string `yaml:"model_url"`
	APIKey   string `yaml:"api_key"`
}

func defaults() Config {
	return Config{
		Store: StoreConfig{
			Path: "data/ledgerdesk.db",
		},
		NATS: NATSConfig{
			Port:    4222,
			DataDir: "data/nats",
		},
		Web: WebConfig{
			Port: 8080,
		},
		Bus: BusConfig{
			WaitTimeout:  5 * time.Second,
			PollInterval: 250 * time.Millisecond,
		},
		Pending: PendingConfig{
			TTL:           0,
			SweepSchedule: "*/5 * * * *",
		},
		Ledger: LedgerConfig{
			SuspenseAccountCode: "9999",
			DefaultExpenseCode:  "6000",
		},
		NLP: NLPConfig{
			Strategy: "pattern",
		},
	}
}

func Load() (*Config, error) {
	cfg := defaults()

	path := os.Getenv("LEDGERDESK_CONFIG")
	if path == "" {
		path = "config/ledgerdesk.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		// Config file not found, use defaults + env
	} else {
		// Expand environment variables in YAML
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// Environment variable overrides
	applyEnv(&cfg)

	return &cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("LEDGERDESK_STORE_PATH"); v != "" {
		cfg.Store.Path = v
	}
	if v := os.Getenv("LEDGERDESK_WEB_AUTH"); v != "" {
		cfg.Web.Auth = v
	}
	if v := os.Getenv("LEDGERDESK_WEB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Web.Port = port
		}
	}
	if v := os.Getenv("LEDGERDESK_NATS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.NATS.Port = port
		}
	}
	if v := os.Getenv("LEDGERDESK_NLP_API_KEY"); v != "" {
		cfg.NLP.APIKey = v
	}
	if v := os.Getenv("LEDGERDESK_PENDING_TTL"); v != "" {
		if ttl, err := time.ParseDuration(v); err == nil {
			cfg.Pending.TTL = ttl
		}
	}
}
