// Package config loads the gatekeeper configuration from a YAML file
// with environment variable overrides for deployment-supplied values.
// The file schema uses human-readable durations; Load translates it
// into the runtime configs the individual packages consume.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/transitops/gatekeeper/internal/auth"
	"github.com/transitops/gatekeeper/internal/authz"
	"github.com/transitops/gatekeeper/internal/cache"
	"github.com/transitops/gatekeeper/internal/observability"
	"github.com/transitops/gatekeeper/internal/ratelimit"
	"github.com/transitops/gatekeeper/internal/ratelimit/store"
)

// Environment variables recognized by Load. Secrets come only from the
// environment, never from the config file.
const (
	EnvListenAddr   = "GATEKEEPER_LISTEN_ADDR"
	EnvLogLevel     = "GATEKEEPER_LOG_LEVEL"
	EnvHMACSecret   = "GATEKEEPER_HMAC_SECRET"
	EnvRedisAddr    = "GATEKEEPER_REDIS_ADDR"
	EnvRedisPass    = "GATEKEEPER_REDIS_PASSWORD"
	EnvRedisDB      = "GATEKEEPER_REDIS_DB"
	EnvOTLPEndpoint = "GATEKEEPER_OTLP_ENDPOINT"
)

// ServerConfig holds the HTTP server settings.
type ServerConfig struct {
	ListenAddr      string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// Config is the root runtime configuration.
type Config struct {
	Server    ServerConfig
	Log       observability.LogConfig
	Tracing   observability.TracerConfig
	Auth      *auth.Config
	Rules     []authz.Rule
	RateLimit *ratelimit.Config
	Cache     *cache.Config
	Redis     *store.RedisConfig
}

// Default returns the configuration used when no file is supplied: the
// built-in rule table, default tiers and a memory cache.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr:      ":8080",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Log:       observability.DefaultLogConfig(),
		Tracing:   observability.DefaultTracerConfig(),
		Auth:      auth.DefaultConfig(),
		Rules:     DefaultRules(),
		RateLimit: ratelimit.DefaultConfig(),
		Cache:     cache.DefaultConfig(),
		Redis:     store.DefaultRedisConfig(),
	}
}

// DefaultRules returns the built-in ordered rule table. Order matters:
// the narrow position rule precedes the broad bus-write rule so it wins
// for position updates.
func DefaultRules() []authz.Rule {
	admin := []auth.Role{auth.RoleAdmin}
	operators := []auth.Role{auth.RoleAdmin, auth.RoleOperator}
	everyone := []auth.Role{auth.RoleAdmin, auth.RoleOperator, auth.RoleViewer}

	return []authz.Rule{
		{Method: "GET", Pattern: "/admin/routes", Roles: admin, Description: "route administration view"},
		{Method: "POST", Pattern: "/routes", Roles: admin, Description: "create route"},
		{Method: "DELETE", Pattern: "/routes/*", Roles: admin, Description: "delete route"},
		{Method: "GET", Pattern: "/routes", Roles: everyone, Description: "list routes"},
		{Method: "GET", Pattern: "/routes/*", Roles: everyone, Description: "get route"},
		{Method: "PUT", Pattern: "/buses/*/position", Roles: []auth.Role{auth.RoleOperator}, Description: "report bus position"},
		{Method: "POST", Pattern: "/buses", Roles: operators, Description: "create bus"},
		{Method: "PUT", Pattern: "/buses/**", Roles: operators, Description: "update bus"},
		{Method: "DELETE", Pattern: "/buses/*", Roles: operators, Description: "delete bus"},
		{Method: "GET", Pattern: "/buses", Roles: everyone, Description: "list buses"},
		{Method: "GET", Pattern: "/buses/**", Roles: everyone, Description: "read bus data"},
	}
}

// File schema. Duration-valued fields decode from strings like "30s".

type fileServer struct {
	ListenAddr      string   `yaml:"listenAddr"`
	ReadTimeout     Duration `yaml:"readTimeout"`
	WriteTimeout    Duration `yaml:"writeTimeout"`
	ShutdownTimeout Duration `yaml:"shutdownTimeout"`
}

type fileAuth struct {
	Algorithms       []string `yaml:"algorithms"`
	ClockSkew        Duration `yaml:"clockSkew"`
	AllowMissingRole *bool    `yaml:"allowMissingRole"`
	DefaultRole      string   `yaml:"defaultRole"`
}

type fileTier struct {
	Requests   int      `yaml:"requests"`
	Window     Duration `yaml:"window"`
	DailyQuota int      `yaml:"dailyQuota"`
}

type fileRateLimit struct {
	FailOpen *bool               `yaml:"failOpen"`
	Tiers    map[string]fileTier `yaml:"tiers"`
}

type fileCache struct {
	Type       string   `yaml:"type"`
	TTL        Duration `yaml:"ttl"`
	MaxEntries int      `yaml:"maxEntries"`
	KeyPrefix  string   `yaml:"keyPrefix"`
}

type fileRedis struct {
	Address      string   `yaml:"address"`
	Password     string   `yaml:"password"`
	DB           int      `yaml:"db"`
	Prefix       string   `yaml:"prefix"`
	PoolSize     int      `yaml:"poolSize"`
	MinIdleConns int      `yaml:"minIdleConns"`
	MaxRetries   int      `yaml:"maxRetries"`
	DialTimeout  Duration `yaml:"dialTimeout"`
	ReadTimeout  Duration `yaml:"readTimeout"`
	WriteTimeout Duration `yaml:"writeTimeout"`
}

type fileTracing struct {
	Enabled      *bool    `yaml:"enabled"`
	ServiceName  string   `yaml:"serviceName"`
	OTLPEndpoint string   `yaml:"otlpEndpoint"`
	SamplingRate *float64 `yaml:"samplingRate"`
}

type fileConfig struct {
	Server    *fileServer             `yaml:"server"`
	Log       observability.LogConfig `yaml:"log"`
	Tracing   *fileTracing            `yaml:"tracing"`
	Auth      *fileAuth               `yaml:"auth"`
	Rules     []authz.Rule            `yaml:"rules"`
	RateLimit *fileRateLimit          `yaml:"rateLimit"`
	Cache     *fileCache              `yaml:"cache"`
	Redis     *fileRedis              `yaml:"redis"`
}

// Load reads the configuration file at path, if any, and applies
// environment overrides. An empty path yields the defaults plus
// overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}

		var file fileConfig
		if err := yaml.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
		cfg.applyFile(&file)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyFile overlays the file schema onto the defaults. Absent sections
// and zero-valued fields keep their defaults.
func (c *Config) applyFile(file *fileConfig) {
	if file.Server != nil {
		if file.Server.ListenAddr != "" {
			c.Server.ListenAddr = file.Server.ListenAddr
		}
		if file.Server.ReadTimeout != 0 {
			c.Server.ReadTimeout = file.Server.ReadTimeout.Duration()
		}
		if file.Server.WriteTimeout != 0 {
			c.Server.WriteTimeout = file.Server.WriteTimeout.Duration()
		}
		if file.Server.ShutdownTimeout != 0 {
			c.Server.ShutdownTimeout = file.Server.ShutdownTimeout.Duration()
		}
	}

	if file.Log.Level != "" {
		c.Log.Level = file.Log.Level
	}
	if file.Log.Format != "" {
		c.Log.Format = file.Log.Format
	}
	if file.Log.Output != "" {
		c.Log.Output = file.Log.Output
	}

	if file.Tracing != nil {
		if file.Tracing.Enabled != nil {
			c.Tracing.Enabled = *file.Tracing.Enabled
		}
		if file.Tracing.ServiceName != "" {
			c.Tracing.ServiceName = file.Tracing.ServiceName
		}
		if file.Tracing.OTLPEndpoint != "" {
			c.Tracing.OTLPEndpoint = file.Tracing.OTLPEndpoint
		}
		if file.Tracing.SamplingRate != nil {
			c.Tracing.SamplingRate = *file.Tracing.SamplingRate
		}
	}

	if file.Auth != nil {
		if len(file.Auth.Algorithms) > 0 {
			c.Auth.Algorithms = file.Auth.Algorithms
		}
		if file.Auth.ClockSkew != 0 {
			c.Auth.ClockSkew = file.Auth.ClockSkew.Duration()
		}
		if file.Auth.AllowMissingRole != nil {
			c.Auth.AllowMissingRole = *file.Auth.AllowMissingRole
		}
		if file.Auth.DefaultRole != "" {
			c.Auth.DefaultRole = auth.Role(file.Auth.DefaultRole)
		}
	}

	if len(file.Rules) > 0 {
		c.Rules = file.Rules
	}

	if file.RateLimit != nil {
		if file.RateLimit.FailOpen != nil {
			c.RateLimit.FailOpen = *file.RateLimit.FailOpen
		}
		if len(file.RateLimit.Tiers) > 0 {
			tiers := make(map[string]ratelimit.Tier, len(file.RateLimit.Tiers))
			for name, tier := range file.RateLimit.Tiers {
				tiers[name] = ratelimit.Tier{
					Requests:   tier.Requests,
					Window:     tier.Window.Duration(),
					DailyQuota: tier.DailyQuota,
				}
			}
			c.RateLimit.Tiers = tiers
		}
	}

	if file.Cache != nil {
		if file.Cache.Type != "" {
			c.Cache.Type = file.Cache.Type
		}
		if file.Cache.TTL != 0 {
			c.Cache.TTL = file.Cache.TTL.Duration()
		}
		if file.Cache.MaxEntries != 0 {
			c.Cache.MaxEntries = file.Cache.MaxEntries
		}
		if file.Cache.KeyPrefix != "" {
			c.Cache.KeyPrefix = file.Cache.KeyPrefix
		}
	}

	if file.Redis != nil {
		if file.Redis.Address != "" {
			c.Redis.Address = file.Redis.Address
		}
		if file.Redis.Password != "" {
			c.Redis.Password = file.Redis.Password
		}
		if file.Redis.DB != 0 {
			c.Redis.DB = file.Redis.DB
		}
		if file.Redis.Prefix != "" {
			c.Redis.Prefix = file.Redis.Prefix
		}
		if file.Redis.PoolSize != 0 {
			c.Redis.PoolSize = file.Redis.PoolSize
		}
		if file.Redis.MinIdleConns != 0 {
			c.Redis.MinIdleConns = file.Redis.MinIdleConns
		}
		if file.Redis.MaxRetries != 0 {
			c.Redis.MaxRetries = file.Redis.MaxRetries
		}
		if file.Redis.DialTimeout != 0 {
			c.Redis.DialTimeout = file.Redis.DialTimeout.Duration()
		}
		if file.Redis.ReadTimeout != 0 {
			c.Redis.ReadTimeout = file.Redis.ReadTimeout.Duration()
		}
		if file.Redis.WriteTimeout != 0 {
			c.Redis.WriteTimeout = file.Redis.WriteTimeout.Duration()
		}
	}
}

// applyEnv applies environment variable overrides.
func (c *Config) applyEnv() error {
	if v := os.Getenv(EnvListenAddr); v != "" {
		c.Server.ListenAddr = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv(EnvHMACSecret); v != "" {
		c.Auth.HMACSecret = []byte(v)
	}
	if v := os.Getenv(EnvOTLPEndpoint); v != "" {
		c.Tracing.OTLPEndpoint = v
	}
	if v := os.Getenv(EnvRedisAddr); v != "" {
		c.Redis.Address = v
	}
	if v := os.Getenv(EnvRedisPass); v != "" {
		c.Redis.Password = v
	}
	if v := os.Getenv(EnvRedisDB); v != "" {
		db, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvRedisDB, err)
		}
		c.Redis.DB = db
	}
	return nil
}

// Validate checks the full configuration.
func (c *Config) Validate() error {
	if c.Server.ListenAddr == "" {
		return fmt.Errorf("server: listenAddr is required")
	}
	if c.Auth == nil {
		return fmt.Errorf("auth configuration is required")
	}
	if err := c.Auth.Validate(); err != nil {
		return fmt.Errorf("auth: %w", err)
	}
	if len(c.Rules) == 0 {
		return fmt.Errorf("at least one authorization rule is required")
	}
	for i := range c.Rules {
		if err := c.Rules[i].Validate(); err != nil {
			return fmt.Errorf("rule %d: %w", i, err)
		}
	}
	if c.RateLimit == nil {
		return fmt.Errorf("rate limit configuration is required")
	}
	if err := c.RateLimit.Validate(); err != nil {
		return fmt.Errorf("rateLimit: %w", err)
	}
	if c.Cache == nil {
		return fmt.Errorf("cache configuration is required")
	}
	if err := c.Cache.Validate(); err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	if c.Redis == nil || c.Redis.Address == "" {
		return fmt.Errorf("redis: address is required")
	}
	return nil
}
