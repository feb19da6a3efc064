package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/profiledir/directory-client/pkg/client"
	"github.com/profiledir/directory-client/pkg/directory"
	"github.com/profiledir/directory-client/pkg/logging"
	"github.com/profiledir/directory-client/pkg/request"
)

// Config is the proxy configuration, read from the environment.
type Config struct {
	Port       string `mapstructure:"PORT"`
	APIBaseURL string `mapstructure:"API_BASE_URL"`
	UserAgent  string `mapstructure:"USER_AGENT"`

	// RedisURL is either host:port or a redis:// URL. Empty keeps responses
	// in process memory.
	RedisURL string `mapstructure:"REDIS_URL"`

	LogLevel  string `mapstructure:"LOG_LEVEL"`
	LogPretty bool   `mapstructure:"LOG_PRETTY"`

	PageSize        int  `mapstructure:"PAGE_SIZE"`
	WindowSize      int  `mapstructure:"WINDOW_SIZE"`
	CacheMaxEntries int  `mapstructure:"CACHE_MAX_ENTRIES"`
	Prefetch        bool `mapstructure:"PREFETCH"`

	// StabilityHash pins the default ordering. Empty draws one at startup.
	StabilityHash string `mapstructure:"STABILITY_HASH"`

	// MaxSessions bounds the number of pinned hashes served at once.
	MaxSessions int `mapstructure:"MAX_SESSIONS"`
}

var configDefaults = map[string]any{
	"PORT":              "8080",
	"API_BASE_URL":      client.DefaultBaseURL,
	"USER_AGENT":        client.DefaultUserAgent,
	"REDIS_URL":         "",
	"LOG_LEVEL":         "info",
	"LOG_PRETTY":        false,
	"PAGE_SIZE":         directory.DefaultPageSize,
	"WINDOW_SIZE":       directory.DefaultWindowSize,
	"CACHE_MAX_ENTRIES": 1000,
	"PREFETCH":          false,
	"STABILITY_HASH":    "",
	"MAX_SESSIONS":      16,
}

// LoadConfig reads the configuration from the environment. Values in
// envFile, if it exists, apply where the environment has none.
func LoadConfig(envFile string) (*Config, error) {
	v := viper.New()
	for key, value := range configDefaults {
		v.SetDefault(key, value)
	}

	if envFile != "" {
		if _, err := os.Stat(envFile); err == nil {
			values, err := godotenv.Read(envFile)
			if err != nil {
				return nil, fmt.Errorf("read %s: %w", envFile, err)
			}
			for key, value := range values {
				if _, known := configDefaults[key]; known {
					v.SetDefault(key, value)
				}
			}
		}
	}

	v.AutomaticEnv()
	for key := range configDefaults {
		_ = v.BindEnv(key)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks value ranges and formats.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Port) == "" {
		errs = append(errs, errors.New("PORT is required"))
	}
	if c.PageSize < 1 {
		errs = append(errs, fmt.Errorf("PAGE_SIZE must be >= 1 (got %d)", c.PageSize))
	}
	if c.WindowSize < 1 {
		errs = append(errs, fmt.Errorf("WINDOW_SIZE must be >= 1 (got %d)", c.WindowSize))
	}
	if c.CacheMaxEntries < 0 {
		errs = append(errs, fmt.Errorf("CACHE_MAX_ENTRIES must be >= 0 (got %d)", c.CacheMaxEntries))
	}
	if c.MaxSessions < 1 {
		errs = append(errs, fmt.Errorf("MAX_SESSIONS must be >= 1 (got %d)", c.MaxSessions))
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("LOG_LEVEL: %w", err))
	}
	if _, _, err := c.Hash(); err != nil {
		errs = append(errs, fmt.Errorf("STABILITY_HASH: %w", err))
	}
	return errors.Join(errs...)
}

// Hash returns the pinned stability hash, if one is configured.
func (c *Config) Hash() (request.StabilityHash, bool, error) {
	if c.StabilityHash == "" {
		return 0, false, nil
	}
	h, err := request.ParseStabilityHash(c.StabilityHash)
	if err != nil {
		return 0, false, err
	}
	return h, true, nil
}

// String renders the configuration for the startup log.
func (c *Config) String() string {
	redisURL := c.RedisURL
	if redisURL == "" {
		redisURL = "(memory)"
	} else if i := strings.Index(redisURL, "@"); i >= 0 {
		redisURL = "redis://********" + redisURL[i:]
	}
	return fmt.Sprintf("port=%s api=%s redis=%s page_size=%d window_size=%d cache_max_entries=%d prefetch=%v",
		c.Port, c.APIBaseURL, redisURL, c.PageSize, c.WindowSize, c.CacheMaxEntries, c.Prefetch)
}
