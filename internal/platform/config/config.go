package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"vcregistry/pkg/domain"
)

const devJWTSigningKey = "dev-secret-key-change-in-production"

// Server captures HTTP server level configuration.
type Server struct {
	Addr           string        `yaml:"addr"`
	Env            string        `yaml:"env"`
	LogLevel       string        `yaml:"log_level"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	MaxBodyBytes   int64         `yaml:"max_body_bytes"`
}

// Auth configures caller tokens.
type Auth struct {
	JWTSigningKey string        `yaml:"jwt_signing_key"`
	Issuer        string        `yaml:"issuer"`
	Audience      string        `yaml:"audience"`
	TokenTTL      time.Duration `yaml:"token_ttl"`
}

// Registry binds the deployment identity. Owner and VerifyingContract are
// filled from their hex forms by Validate.
type Registry struct {
	OwnerHex             string `yaml:"owner"`
	ChainID              uint64 `yaml:"chain_id"`
	VerifyingContractHex string `yaml:"verifying_contract"`

	Owner             domain.Address `yaml:"-"`
	VerifyingContract domain.Address `yaml:"-"`
}

// Database selects the postgres ledger when URL is set; otherwise the
// in-memory ledger is used.
type Database struct {
	URL             string        `yaml:"url"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// Kafka enables event publishing when Brokers is non-empty.
type Kafka struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// RedisConfig enables Redis backed rate limiting when URL is set.
type RedisConfig struct {
	URL          string        `yaml:"url"`
	PoolSize     int           `yaml:"pool_size"`
	MinIdleConns int           `yaml:"min_idle_conns"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// RateLimit caps mutating requests per caller per window. Zero disables it.
type RateLimit struct {
	Requests int           `yaml:"requests"`
	Window   time.Duration `yaml:"window"`
}

// Outbox tunes the event relay.
type Outbox struct {
	PollInterval time.Duration `yaml:"poll_interval"`
	BatchSize    int           `yaml:"batch_size"`
	Retention    time.Duration `yaml:"retention"`
}

// Config is the full service configuration.
type Config struct {
	Server    Server      `yaml:"server"`
	Auth      Auth        `yaml:"auth"`
	Registry  Registry    `yaml:"registry"`
	Database  Database    `yaml:"database"`
	Kafka     Kafka       `yaml:"kafka"`
	Redis     RedisConfig `yaml:"redis"`
	RateLimit RateLimit   `yaml:"rate_limit"`
	Outbox    Outbox      `yaml:"outbox"`
}

// Default returns the development defaults.
func Default() Config {
	return Config{
		Server: Server{
			Addr:           ":8080",
			Env:            "development",
			LogLevel:       "info",
			RequestTimeout: 10 * time.Second,
			MaxBodyBytes:   1 << 20,
		},
		Auth: Auth{
			JWTSigningKey: devJWTSigningKey,
			Issuer:        "vcregistry",
			Audience:      "vcregistry",
			TokenTTL:      15 * time.Minute,
		},
		Registry: Registry{
			ChainID:              1337,
			VerifyingContractHex: "0x0000000000000000000000000000000000000000",
		},
		Database: Database{
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
		},
		Kafka: Kafka{Topic: "vcregistry.events"},
		Redis: RedisConfig{
			PoolSize:     10,
			MinIdleConns: 2,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		RateLimit: RateLimit{Requests: 60, Window: time.Minute},
		Outbox: Outbox{
			PollInterval: time.Second,
			BatchSize:    100,
			Retention:    7 * 24 * time.Hour,
		},
	}
}

// FromEnv builds the config from defaults, the optional YAML file named by
// REGISTRY_CONFIG_FILE, then environment variables, in that order.
func FromEnv() (Config, error) {
	return Load(os.Getenv)
}

// Load is FromEnv with an injectable lookup, for tests.
func Load(getenv func(string) string) (Config, error) {
	cfg := Default()

	if path := getenv("REGISTRY_CONFIG_FILE"); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file: %w", err)
		}
	}

	env := envReader{getenv: getenv}
	env.str("REGISTRY_ADDR", &cfg.Server.Addr)
	env.str("REGISTRY_ENV", &cfg.Server.Env)
	env.str("LOG_LEVEL", &cfg.Server.LogLevel)
	env.duration("REQUEST_TIMEOUT", &cfg.Server.RequestTimeout)

	env.str("JWT_SIGNING_KEY", &cfg.Auth.JWTSigningKey)
	env.str("JWT_ISSUER", &cfg.Auth.Issuer)
	env.str("JWT_AUDIENCE", &cfg.Auth.Audience)
	env.duration("TOKEN_TTL", &cfg.Auth.TokenTTL)

	env.str("REGISTRY_OWNER", &cfg.Registry.OwnerHex)
	env.uint("CHAIN_ID", &cfg.Registry.ChainID)
	env.str("VERIFYING_CONTRACT", &cfg.Registry.VerifyingContractHex)

	env.str("DATABASE_URL", &cfg.Database.URL)
	env.list("KAFKA_BROKERS", &cfg.Kafka.Brokers)
	env.str("KAFKA_TOPIC", &cfg.Kafka.Topic)
	env.str("REDIS_URL", &cfg.Redis.URL)

	env.int("RATE_LIMIT_REQUESTS", &cfg.RateLimit.Requests)
	env.duration("RATE_LIMIT_WINDOW", &cfg.RateLimit.Window)
	env.duration("OUTBOX_POLL_INTERVAL", &cfg.Outbox.PollInterval)
	env.int("OUTBOX_BATCH_SIZE", &cfg.Outbox.BatchSize)

	if err := env.err(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks required settings and parses the registry addresses.
func (c *Config) Validate() error {
	if c.Registry.OwnerHex == "" {
		return errors.New("REGISTRY_OWNER is required")
	}
	owner, err := domain.ParseAddress(c.Registry.OwnerHex)
	if err != nil {
		return fmt.Errorf("registry owner: %w", err)
	}
	if owner.IsNil() {
		return errors.New("registry owner must not be the zero address")
	}
	contract, err := domain.ParseAddress(c.Registry.VerifyingContractHex)
	if err != nil {
		return fmt.Errorf("verifying contract: %w", err)
	}
	if c.Auth.JWTSigningKey == "" {
		return errors.New("JWT_SIGNING_KEY is required")
	}
	if c.IsProduction() && c.Auth.JWTSigningKey == devJWTSigningKey {
		return errors.New("JWT_SIGNING_KEY must be set in production")
	}
	if c.Auth.TokenTTL <= 0 {
		return errors.New("token ttl must be positive")
	}
	c.Registry.Owner = owner
	c.Registry.VerifyingContract = contract
	return nil
}

func (c Config) IsProduction() bool {
	return c.Server.Env == "production"
}

// envReader applies set variables and remembers the first parse failure.
type envReader struct {
	getenv  func(string) string
	failure error
}

func (e *envReader) fail(key string, err error) {
	if e.failure == nil {
		e.failure = fmt.Errorf("invalid %s: %w", key, err)
	}
}

func (e *envReader) err() error { return e.failure }

func (e *envReader) str(key string, dst *string) {
	if v := e.getenv(key); v != "" {
		*dst = v
	}
}

func (e *envReader) list(key string, dst *[]string) {
	v := e.getenv(key)
	if v == "" {
		return
	}
	var out []string
	for part := range strings.SplitSeq(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	*dst = out
}

func (e *envReader) duration(key string, dst *time.Duration) {
	if v := e.getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			e.fail(key, err)
			return
		}
		*dst = d
	}
}

func (e *envReader) int(key string, dst *int) {
	if v := e.getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			e.fail(key, err)
			return
		}
		*dst = n
	}
}

func (e *envReader) uint(key string, dst *uint64) {
	if v := e.getenv(key); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			e.fail(key, err)
			return
		}
		*dst = n
	}
}
