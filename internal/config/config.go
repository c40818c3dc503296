// Package config loads spoof configuration from files and the environment.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for spoof environment variables.
const EnvPrefix = "SPOOF"

var (
	// ErrConfigurationMissing is returned when a required setting is absent.
	ErrConfigurationMissing = errors.New("configuration missing")
	// ErrInvalidDestination is returned when the destination is not an http(s) URL.
	ErrInvalidDestination = errors.New("invalid destination url")
)

// MissingError names a required setting that is not configured.
type MissingError struct {
	Key string
	Env string
}

func (e *MissingError) Error() string {
	return fmt.Sprintf("%s is not configured (set %s)", e.Key, e.Env)
}

// Is reports whether target is ErrConfigurationMissing.
func (e *MissingError) Is(target error) bool {
	return target == ErrConfigurationMissing
}

// Config is the spoof configuration.
type Config struct {
	DestinationURL string        `mapstructure:"destination_url"`
	Secret         string        `mapstructure:"secret"`
	Timeout        time.Duration `mapstructure:"timeout"`
	TemplatesDir   string        `mapstructure:"templates_dir"`
	Log            LogConfig     `mapstructure:"log"`
	Receive        ReceiveConfig `mapstructure:"receive"`
}

// LogConfig controls diagnostic logging.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// ReceiveConfig controls the local receiver started by `spoof receive`.
type ReceiveConfig struct {
	Listen string `mapstructure:"listen"`
	Path   string `mapstructure:"path"`
}

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() *Config {
	return &Config{
		Timeout: 10 * time.Second,
		Log: LogConfig{
			Level:  "warn",
			Format: "console",
		},
		Receive: ReceiveConfig{
			Listen: "127.0.0.1:8090",
			Path:   "/webhook",
		},
	}
}

// envFile is the dotenv file merged into the configuration when present.
var envFile = ".env"

// configSearchPathsFunc returns config files tried when no explicit path is given.
var configSearchPathsFunc = func() []string {
	paths := []string{"spoof.yaml"}
	if home, err := os.UserHomeDir(); err == nil && home != "" {
		paths = append(paths, filepath.Join(home, ".config", "spoof", "config.yaml"))
	}
	return paths
}

// Load reads configuration. When path is empty the default search paths are
// tried. A .env file in the working directory is merged on top, and
// environment variables override both.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, DefaultConfig())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("destination_url", EnvPrefix+"_DESTINATION_URL", "DESTINATION_URL"); err != nil {
		return nil, err
	}
	if err := v.BindEnv("secret", EnvPrefix+"_SECRET", "SECRET"); err != nil {
		return nil, err
	}

	if path == "" {
		path = firstExisting(configSearchPathsFunc())
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	if fileExists(envFile) {
		v.SetConfigFile(envFile)
		v.SetConfigType("env")
		if err := v.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("read env file %s: %w", envFile, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.DestinationURL = strings.TrimSpace(cfg.DestinationURL)
	cfg.Log.Level = strings.ToLower(strings.TrimSpace(cfg.Log.Level))
	cfg.Log.Format = strings.ToLower(strings.TrimSpace(cfg.Log.Format))

	return &cfg, nil
}

// Validate checks the settings needed to deliver a spoofed event.
func (c *Config) Validate() error {
	var errs []error
	if c.DestinationURL == "" {
		errs = append(errs, &MissingError{Key: "destination_url", Env: "DESTINATION_URL"})
	} else if err := validateDestination(c.DestinationURL); err != nil {
		errs = append(errs, err)
	}
	if err := c.RequireSecret(); err != nil {
		errs = append(errs, err)
	}
	if c.Timeout < 0 {
		errs = append(errs, fmt.Errorf("timeout must not be negative"))
	}
	return errors.Join(errs...)
}

// RequireSecret checks that a signing secret is configured.
func (c *Config) RequireSecret() error {
	if c.Secret == "" {
		return &MissingError{Key: "secret", Env: "SECRET"}
	}
	return nil
}

func validateDestination(raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDestination, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("%w: scheme must be http or https, got %q", ErrInvalidDestination, parsed.Scheme)
	}
	if parsed.Host == "" {
		return fmt.Errorf("%w: host is required", ErrInvalidDestination)
	}
	return nil
}

func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("destination_url", cfg.DestinationURL)
	v.SetDefault("secret", cfg.Secret)
	v.SetDefault("timeout", cfg.Timeout)
	v.SetDefault("templates_dir", cfg.TemplatesDir)
	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.format", cfg.Log.Format)
	v.SetDefault("receive.listen", cfg.Receive.Listen)
	v.SetDefault("receive.path", cfg.Receive.Path)
}

func firstExisting(paths []string) string {
	for _, path := range paths {
		if fileExists(path) {
			return path
		}
	}
	return ""
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
