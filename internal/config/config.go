package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/nexus-trading/screener/internal/scanner"
	"gopkg.in/yaml.v3"
)

// ErrConfiguration marks any problem with the config file. It is fatal at
// startup, before the first poll.
var ErrConfiguration = errors.New("configuration error")

// RequiredSections must appear as top-level keys, even if empty.
var RequiredSections = []string{
	"dexscreener", "rugcheck", "telegram", "database", "filters",
	"fake_volume", "bundle", "blacklist", "analysis",
}

// Config is the root configuration structure for the screener.
type Config struct {
	General     GeneralConfig            `yaml:"general"`
	DexScreener DexScreenerConfig        `yaml:"dexscreener"`
	Rugcheck    RugcheckConfig           `yaml:"rugcheck"`
	Telegram    TelegramConfig           `yaml:"telegram"`
	Trade       TradeConfig              `yaml:"trade"`
	Database    DatabaseConfig           `yaml:"database"`
	Filters     scanner.Thresholds       `yaml:"filters"`
	FakeVolume  scanner.FakeVolumeConfig `yaml:"fake_volume"`
	Bundle      scanner.BundleConfig     `yaml:"bundle"`
	Blacklist   BlacklistConfig          `yaml:"blacklist"`
	Analysis    AnalysisConfig           `yaml:"analysis"`
	Kafka       KafkaConfig              `yaml:"kafka"`
	ClickHouse  ClickHouseConfig         `yaml:"clickhouse"`
	Redis       RedisConfig              `yaml:"redis"`
	Metrics     MetricsConfig            `yaml:"metrics"`
}

type GeneralConfig struct {
	InstanceID  string `yaml:"instance_id" default:"screener-1"`
	Environment string `yaml:"environment" default:"development" validate:"oneof=production staging development"`
	LogLevel    string `yaml:"log_level" default:"info"`
	LogFormat   string `yaml:"log_format" default:"json" validate:"oneof=json text"`
}

type DexScreenerConfig struct {
	APIURL string `yaml:"api_url" validate:"required,url"`

	// Fake-volume verification endpoint; used when fake_volume.pocket_universe_enabled.
	PocketUniverseAPI string `yaml:"pocket_universe_api" validate:"omitempty,url"`

	TimeoutSeconds int `yaml:"timeout_seconds" default:"15" validate:"gte=1"`

	// Tokens screened in parallel per cycle.
	Workers int `yaml:"workers" default:"8" validate:"gte=1"`

	BreakerMaxFailures     uint32 `yaml:"breaker_max_failures" default:"5" validate:"gte=1"`
	BreakerCooldownSeconds int    `yaml:"breaker_cooldown_seconds" default:"60" validate:"gte=1"`
}

type RugcheckConfig struct {
	APIURL            string  `yaml:"api_url"`
	APIKey            string  `yaml:"api_key"`
	Chain             string  `yaml:"chain" default:"solana"`
	TimeoutSeconds    int     `yaml:"timeout_seconds" default:"10" validate:"gte=1"`
	RequestsPerSecond float64 `yaml:"requests_per_second" default:"5" validate:"gt=0"`
	Burst             int     `yaml:"burst" default:"5" validate:"gte=1"`
}

type TelegramConfig struct {
	BotToken string `yaml:"bot_token"`
	ChatID   string `yaml:"chat_id"`

	ToxiSolBot       string `yaml:"toxisol_bot" default:"@ToxiSolanaBot"`
	WalletAddress    string `yaml:"wallet_address"`
	WalletPrivateKey string `yaml:"wallet_private_key"`
}

type TradeConfig struct {
	Action string `yaml:"action" default:"buy" validate:"oneof=buy sell"`
	Amount string `yaml:"amount" default:"0.1" validate:"numeric"`
}

type DatabaseConfig struct {
	Type     string `yaml:"type" default:"sqlite" validate:"oneof=sqlite postgres memory"`
	Name     string `yaml:"name" default:"tokens.db"`
	DSN      string `yaml:"dsn" validate:"required_if=Type postgres"`
	MaxConns int32  `yaml:"max_conns" default:"10" validate:"gte=1"`
}

// BlacklistConfig mirrors the blacklist section. The blacklist store reads
// and rewrites this section of the file directly.
type BlacklistConfig struct {
	Coins []string `yaml:"coins"`
	Devs  []string `yaml:"devs"`
}

type AnalysisConfig struct {
	// Seconds between poll cycles.
	AnalyzeInterval int `yaml:"analyze_interval" default:"3600" validate:"gte=1"`

	// Cron spec for the standalone pattern report; empty disables it.
	ReportSchedule string `yaml:"report_schedule" default:"@every 6h"`

	TopN       int    `yaml:"top_n" default:"10" validate:"gte=1"`
	ReportPath string `yaml:"report_path"`
}

type KafkaConfig struct {
	Enabled  bool     `yaml:"enabled"`
	Brokers  []string `yaml:"brokers" default:"[\"localhost:9092\"]"`
	Topic    string   `yaml:"topic" default:"screener.patterns"`
	ClientID string   `yaml:"client_id" default:"nexus-screener"`
	LingerMs int      `yaml:"linger_ms" default:"5" validate:"gte=0"`
}

type ClickHouseConfig struct {
	Enabled         bool   `yaml:"enabled"`
	DSN             string `yaml:"dsn" default:"clickhouse://localhost:9000/screener"`
	Database        string `yaml:"database" default:"screener"`
	MaxOpenConns    int    `yaml:"max_open_conns" default:"10"`
	MaxIdleConns    int    `yaml:"max_idle_conns" default:"5"`
	BatchSize       int    `yaml:"batch_size" default:"500" validate:"gte=1"`
	FlushIntervalMs int    `yaml:"flush_interval_ms" default:"1000" validate:"gte=1"`
}

type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr" default:"localhost:6379"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Channel  string `yaml:"channel" default:"screener:notifications"`
}

type MetricsConfig struct {
	Enabled bool `yaml:"enabled" default:"true"`
	Port    int  `yaml:"port" default:"9090" validate:"gte=1,lte=65535"`
}

// PollInterval returns the cycle period.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Analysis.AnalyzeInterval) * time.Second
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read config file: %w", ErrConfiguration, err)
	}
	return Parse(data)
}

// Parse expands ${ENV} references, applies defaults and validates.
func Parse(data []byte) (*Config, error) {
	expanded := []byte(os.ExpandEnv(string(data)))

	var sections map[string]yaml.Node
	if err := yaml.Unmarshal(expanded, &sections); err != nil {
		return nil, fmt.Errorf("%w: parse config: %w", ErrConfiguration, err)
	}
	for _, name := range RequiredSections {
		if _, ok := sections[name]; !ok {
			return nil, fmt.Errorf("%w: missing required section %q", ErrConfiguration, name)
		}
	}

	cfg := &Config{}
	if err := defaults.Set(cfg); err != nil {
		return nil, fmt.Errorf("%w: apply defaults: %w", ErrConfiguration, err)
	}
	if err := yaml.Unmarshal(expanded, cfg); err != nil {
		return nil, fmt.Errorf("%w: parse config: %w", ErrConfiguration, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var validate = validator.New()

// Validate checks field constraints and the required filter thresholds.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	if err := c.Filters.Validate(); err != nil {
		return fmt.Errorf("%w: filters: %w", ErrConfiguration, err)
	}
	return nil
}
