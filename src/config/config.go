package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Config struct {
	Instruments []Instrument
	Log         LogConfig
	Server      ServerConfig
	Market      MarketConfig
	Publish     PublishConfig
	Journal     JournalConfig
	Feed        FeedConfig
}

type LogConfig struct {
	Level  string
	Format string // "json" or "pretty"
	File   string
}

type ServerConfig struct {
	Enabled               bool
	Port                  string
	ShutdownTimeout       time.Duration
	DefaultDepth          int
	MaxDepth              int
	RateLimitDisabled     bool
	RateLimitMax          int
	RateLimitWindow       time.Duration
	MaxConcurrentRequests int64
	MaintenanceMode       bool
	RequestLogging        bool
}

type MarketConfig struct {
	QueueSize int
}

type PublishConfig struct {
	Driver string // "log", "nats", "kafka" or "none"
	NATS   NATSConfig
	Kafka  KafkaConfig
}

type NATSConfig struct {
	URL           string
	SubjectPrefix string
}

type KafkaConfig struct {
	Brokers []string
	Topic   string
}

type JournalConfig struct {
	Enabled bool
	Dir     string
}

type FeedConfig struct {
	Path string
}

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return "invalid configuration: " + e.Field + ": " + e.Message
}

// FromEnvironment builds a Config from the flattened properties, applies
// environment variable overrides and validates the result.
func FromEnvironment(env *Environment) (*Config, error) {
	cfg := &Config{
		Log: LogConfig{
			Level:  env.GetString("log.level", "info"),
			Format: env.GetString("log.format", "json"),
			File:   env.GetString("log.file", ""),
		},
		Server: ServerConfig{
			Port: env.GetString("server.port", "8080"),
		},
		Publish: PublishConfig{
			Driver: env.GetString("publish.driver", "log"),
			NATS: NATSConfig{
				URL:           env.GetString("publish.nats.url", "nats://127.0.0.1:4222"),
				SubjectPrefix: env.GetString("publish.nats.subject_prefix", "matchcore.trades"),
			},
			Kafka: KafkaConfig{
				Brokers: env.GetList("publish.kafka.brokers"),
				Topic:   env.GetString("publish.kafka.topic", "matchcore.trades"),
			},
		},
		Journal: JournalConfig{
			Dir: env.GetString("journal.dir", "./data/journal"),
		},
		Feed: FeedConfig{
			Path: env.GetString("feed.path", ""),
		},
	}

	var err error
	ints := []struct {
		key string
		def int
		dst *int
	}{
		{"server.default_depth", 10, &cfg.Server.DefaultDepth},
		{"server.max_depth", 1000, &cfg.Server.MaxDepth},
		{"server.rate_limit.max", 100, &cfg.Server.RateLimitMax},
		{"market.queue_size", 1024, &cfg.Market.QueueSize},
	}
	for _, f := range ints {
		if *f.dst, err = env.GetInt(f.key, f.def); err != nil {
			return nil, err
		}
	}

	bools := []struct {
		key string
		def bool
		dst *bool
	}{
		{"server.enabled", true, &cfg.Server.Enabled},
		{"server.rate_limit.disabled", false, &cfg.Server.RateLimitDisabled},
		{"server.maintenance_mode", false, &cfg.Server.MaintenanceMode},
		{"server.request_logging", true, &cfg.Server.RequestLogging},
		{"journal.enabled", false, &cfg.Journal.Enabled},
	}
	for _, f := range bools {
		if *f.dst, err = env.GetBool(f.key, f.def); err != nil {
			return nil, err
		}
	}

	maxConcurrent, err := env.GetInt("server.max_concurrent_requests", 0)
	if err != nil {
		return nil, err
	}
	cfg.Server.MaxConcurrentRequests = int64(maxConcurrent)

	if cfg.Server.ShutdownTimeout, err = parseDuration(env, "server.shutdown_timeout", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.Server.RateLimitWindow, err = parseDuration(env, "server.rate_limit.window", time.Second); err != nil {
		return nil, err
	}

	if cfg.Instruments, err = parseInstruments(env); err != nil {
		return nil, err
	}

	overrideWithEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func parseDuration(env *Environment, key string, def time.Duration) (time.Duration, error) {
	v := env.GetString(key, "")
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def, &ValidationError{Field: key, Message: fmt.Sprintf("not a positive duration: %q", v)}
	}
	return d, nil
}

func parseInstruments(env *Environment) ([]Instrument, error) {
	var out []Instrument
	for i := 0; ; i++ {
		prefix := fmt.Sprintf("engine.instruments[%d]", i)
		code, ok := env.Get(prefix + ".code")
		if !ok {
			return out, nil
		}
		inst := Instrument{Code: code}
		var err error
		if inst.TickSize, err = parseIncrement(env, prefix+".tick_size"); err != nil {
			return nil, err
		}
		if inst.LotSize, err = parseIncrement(env, prefix+".lot_size"); err != nil {
			return nil, err
		}
		out = append(out, inst)
	}
}

func parseIncrement(env *Environment, key string) (decimal.Decimal, error) {
	v := env.GetString(key, "1")
	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Zero, &ValidationError{Field: key, Message: fmt.Sprintf("not a decimal: %q", v)}
	}
	return d, nil
}

// overrideWithEnv applies the process environment on top of file settings.
func overrideWithEnv(cfg *Config) {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("LOG_FILE"); v != "" {
		cfg.Log.File = v
	}
	if v := os.Getenv("PORT"); v != "" {
		cfg.Server.Port = v
	}
	if v := os.Getenv("SHUTDOWN_TIMEOUT"); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil && parsed > 0 {
			cfg.Server.ShutdownTimeout = parsed
		}
	}
	if os.Getenv("RATE_LIMIT_DISABLED") == "1" {
		cfg.Server.RateLimitDisabled = true
	}
	if v := os.Getenv("RATE_LIMIT_MAX"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			cfg.Server.RateLimitMax = parsed
		}
	}
	if v := os.Getenv("RATE_LIMIT_WINDOW"); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil && parsed > 0 {
			cfg.Server.RateLimitWindow = parsed
		}
	}
	if v := os.Getenv("MAX_CONCURRENT_REQUESTS"); v != "" {
		if parsed, err := strconv.ParseInt(v, 10, 64); err == nil && parsed > 0 {
			cfg.Server.MaxConcurrentRequests = parsed
		}
	}
	if os.Getenv("MAINTENANCE_MODE") == "1" {
		cfg.Server.MaintenanceMode = true
	}
	if os.Getenv("REQUEST_LOGGING_DISABLED") == "1" {
		cfg.Server.RequestLogging = false
	}
	if v := os.Getenv("ORDERBOOK_DEFAULT_DEPTH"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			cfg.Server.DefaultDepth = parsed
		}
	}
	if v := os.Getenv("ORDERBOOK_MAX_DEPTH"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			cfg.Server.MaxDepth = parsed
		}
	}
	if v := os.Getenv("PUBLISH_DRIVER"); v != "" {
		cfg.Publish.Driver = v
	}
	if v := os.Getenv("NATS_URL"); v != "" {
		cfg.Publish.NATS.URL = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		cfg.Publish.Kafka.Brokers = strings.Split(v, ",")
	}
}

func (c *Config) Validate() error {
	seen := make(map[string]bool, len(c.Instruments))
	for i, inst := range c.Instruments {
		field := fmt.Sprintf("engine.instruments[%d]", i)
		if inst.Code == "" {
			return &ValidationError{Field: field + ".code", Message: "must not be empty"}
		}
		if seen[inst.Code] {
			return &ValidationError{Field: field + ".code", Message: fmt.Sprintf("duplicate instrument %q", inst.Code)}
		}
		seen[inst.Code] = true
		if !inst.TickSize.IsPositive() {
			return &ValidationError{Field: field + ".tick_size", Message: "must be positive"}
		}
		if !inst.LotSize.IsPositive() {
			return &ValidationError{Field: field + ".lot_size", Message: "must be positive"}
		}
	}

	switch c.Publish.Driver {
	case "log", "none":
	case "nats":
		if c.Publish.NATS.URL == "" {
			return &ValidationError{Field: "publish.nats.url", Message: "required for the nats driver"}
		}
	case "kafka":
		if len(c.Publish.Kafka.Brokers) == 0 {
			return &ValidationError{Field: "publish.kafka.brokers", Message: "required for the kafka driver"}
		}
	default:
		return &ValidationError{Field: "publish.driver", Message: fmt.Sprintf("unknown driver %q", c.Publish.Driver)}
	}

	if c.Server.DefaultDepth <= 0 || c.Server.MaxDepth < c.Server.DefaultDepth {
		return &ValidationError{Field: "server.max_depth", Message: "must be at least server.default_depth, which must be positive"}
	}
	if c.Market.QueueSize <= 0 {
		return &ValidationError{Field: "market.queue_size", Message: "must be positive"}
	}
	if c.Journal.Enabled && c.Journal.Dir == "" {
		return &ValidationError{Field: "journal.dir", Message: "required when the journal is enabled"}
	}
	return nil
}

func (c *Config) Instrument(code string) (Instrument, bool) {
	for _, inst := range c.Instruments {
		if inst.Code == code {
			return inst, true
		}
	}
	return Instrument{}, false
}
