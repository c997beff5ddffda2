package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/vertextoedge/asyncfetch/internal/domain"
)

// EnvPrefix is the prefix for environment overrides, e.g. ASYNCFETCH_HTTP_TIMEOUT
const EnvPrefix = "ASYNCFETCH"

// Config represents the entire application configuration
type Config struct {
	Extract  ExtractConfig  `mapstructure:"extract"`
	Mirror   MirrorConfig   `mapstructure:"mirror"`
	Status   StatusConfig   `mapstructure:"status"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Database DatabaseConfig `mapstructure:"database"`
	UFrame   UFrameConfig   `mapstructure:"uframe"`
	Workers  int            `mapstructure:"workers"`
}

// ExtractConfig contains URL extraction settings
type ExtractConfig struct {
	Marker string `mapstructure:"marker"`
}

// MirrorConfig contains directory mirror settings
type MirrorConfig struct {
	RootDir      string `mapstructure:"root_dir"` // empty means the working directory
	CutDirs      int    `mapstructure:"cut_dirs"`
	RejectPrefix string `mapstructure:"reject_prefix"`
}

// StatusConfig contains status poller settings
type StatusConfig struct {
	FileName string `mapstructure:"file_name"`
}

// HTTPConfig contains outbound HTTP client settings
type HTTPConfig struct {
	SkipTLSVerify      bool   `mapstructure:"skip_tls_verify"`
	Timeout            string `mapstructure:"timeout"`
	MinRequestInterval string `mapstructure:"min_request_interval"`
	UserAgent          string `mapstructure:"user_agent"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DatabaseConfig contains history database settings
type DatabaseConfig struct {
	Path string `mapstructure:"path"` // empty disables the history ledger
}

// UFrameConfig contains the data service used to build request URLs
type UFrameConfig struct {
	BaseURL string `mapstructure:"base_url"`
	User    string `mapstructure:"user"`
}

// Load loads configuration from the specified file path.
// An empty path uses defaults and environment overrides only.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file
	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate configuration
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("extract.marker", domain.DefaultMarker)
	v.SetDefault("mirror.root_dir", "")
	v.SetDefault("mirror.cut_dirs", 3)
	v.SetDefault("mirror.reject_prefix", "index")
	v.SetDefault("status.file_name", "status.txt")
	v.SetDefault("http.skip_tls_verify", true)
	v.SetDefault("http.timeout", "0s")
	v.SetDefault("http.min_request_interval", "0s")
	v.SetDefault("http.user_agent", "asyncfetch/"+Version)
	v.SetDefault("logging.level", "warn")
	v.SetDefault("logging.format", "text")
	v.SetDefault("database.path", "")
	v.SetDefault("uframe.base_url", "")
	v.SetDefault("uframe.user", "")
	v.SetDefault("workers", 1)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Extract.Marker) == "" {
		return fmt.Errorf("extract.marker is required")
	}
	if strings.Contains(c.Extract.Marker, "/") {
		return fmt.Errorf("extract.marker must be a single path segment")
	}

	if c.Mirror.CutDirs < 0 {
		return fmt.Errorf("mirror.cut_dirs must not be negative")
	}
	if c.Status.FileName == "" {
		return fmt.Errorf("status.file_name is required")
	}

	if c.UFrame.BaseURL != "" && !strings.HasPrefix(c.UFrame.BaseURL, "http") {
		return fmt.Errorf("uframe.base_url must start with http")
	}

	if c.Workers < 1 || c.Workers > 32 {
		return fmt.Errorf("workers must be between 1 and 32")
	}

	// Validate HTTP durations
	if _, err := time.ParseDuration(c.HTTP.Timeout); err != nil {
		return fmt.Errorf("invalid http.timeout: %w", err)
	}
	if _, err := time.ParseDuration(c.HTTP.MinRequestInterval); err != nil {
		return fmt.Errorf("invalid http.min_request_interval: %w", err)
	}

	// Validate logging config
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
		// Valid levels
	default:
		return fmt.Errorf("invalid logging.level: %s", c.Logging.Level)
	}

	switch c.Logging.Format {
	case "json", "text":
		// Valid formats
	default:
		return fmt.Errorf("invalid logging.format: %s", c.Logging.Format)
	}

	return nil
}

// GetTimeout returns the HTTP client timeout. Zero means no overall timeout.
func (c *HTTPConfig) GetTimeout() time.Duration {
	d, _ := time.ParseDuration(c.Timeout)
	return d
}

// GetMinRequestInterval returns the pacing interval between requests
func (c *HTTPConfig) GetMinRequestInterval() time.Duration {
	d, _ := time.ParseDuration(c.MinRequestInterval)
	return d
}
