package config

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rcarmo/go-dcl/internal/raster"
)

// globalConfig stores the configuration loaded with command-line overrides
// This allows other packages to access the same configuration that was loaded by the command
var (
	globalConfig *Config
	configMutex  sync.Mutex
)

// Config holds the application configuration
type Config struct {
	Convert ConvertConfig `json:"convert" yaml:"convert"`
	Server  ServerConfig  `json:"server" yaml:"server"`
	Logging LoggingConfig `json:"logging" yaml:"logging"`
}

// LoadOptions holds command-line override options
type LoadOptions struct {
	ConfigFile      string
	InputDir        string
	OutputDir       string
	Pattern         string
	Format          string
	Workers         int
	StrictStreamEnd bool
	Host            string
	Port            string
	LogLevel        string
}

// ConvertConfig holds batch conversion settings
type ConvertConfig struct {
	InputDir        string `json:"inputDir" yaml:"inputDir" env:"DCL_INPUT_DIR" default:""`
	OutputDir       string `json:"outputDir" yaml:"outputDir" env:"DCL_OUTPUT_DIR" default:""`
	Pattern         string `json:"pattern" yaml:"pattern" env:"DCL_PATTERN" default:"*.DCL"`
	Format          string `json:"format" yaml:"format" env:"DCL_OUTPUT_FORMAT" default:"bmp"`
	Workers         int    `json:"workers" yaml:"workers" env:"DCL_WORKERS" default:"NumCPU"`
	StrictStreamEnd bool   `json:"strictStreamEnd" yaml:"strictStreamEnd" env:"DCL_STRICT_STREAM_END" default:"false"`
}

// ServerConfig holds preview server configuration
type ServerConfig struct {
	Host           string        `json:"host" yaml:"host" env:"SERVER_HOST" default:"0.0.0.0"`
	Port           string        `json:"port" yaml:"port" env:"SERVER_PORT" default:"8080"`
	ReadTimeout    time.Duration `json:"readTimeout" yaml:"readTimeout" env:"SERVER_READ_TIMEOUT" default:"30s"`
	WriteTimeout   time.Duration `json:"writeTimeout" yaml:"writeTimeout" env:"SERVER_WRITE_TIMEOUT" default:"30s"`
	IdleTimeout    time.Duration `json:"idleTimeout" yaml:"idleTimeout" env:"SERVER_IDLE_TIMEOUT" default:"120s"`
	AllowedOrigins []string      `json:"allowedOrigins" yaml:"allowedOrigins" env:"ALLOWED_ORIGINS" default:""`
	MaxMessageSize int64         `json:"maxMessageSize" yaml:"maxMessageSize" env:"SERVER_MAX_MESSAGE_SIZE" default:"2097152"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `json:"level" yaml:"level" env:"LOG_LEVEL" default:"info"`
	Format string `json:"format" yaml:"format" env:"LOG_FORMAT" default:"text"`
	File   string `json:"file" yaml:"file" env:"LOG_FILE" default:""`
}

// Defaults returns the built-in configuration.
func Defaults() *Config {
	return &Config{
		Convert: ConvertConfig{
			Pattern: "*.DCL",
			Format:  string(raster.FormatBMP),
			Workers: runtime.NumCPU(),
		},
		Server: ServerConfig{
			Host:           "0.0.0.0",
			Port:           "8080",
			ReadTimeout:    30 * time.Second,
			WriteTimeout:   30 * time.Second,
			IdleTimeout:    120 * time.Second,
			AllowedOrigins: []string{},
			MaxMessageSize: 2 << 20,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load loads configuration from environment variables with defaults
func Load() (*Config, error) {
	return LoadWithOverrides(LoadOptions{})
}

// LoadWithOverrides loads configuration in layers: defaults, the YAML
// config file, environment variables, then command-line overrides.
func LoadWithOverrides(opts LoadOptions) (*Config, error) {
	config := Defaults()

	configFile := getOverrideOrEnv(opts.ConfigFile, "DCL_CONFIG_FILE", "")
	if configFile != "" {
		if err := config.loadFile(configFile); err != nil {
			return nil, err
		}
	}

	// Convert config
	config.Convert.InputDir = getOverrideOrEnv(opts.InputDir, "DCL_INPUT_DIR", config.Convert.InputDir)
	config.Convert.OutputDir = getOverrideOrEnv(opts.OutputDir, "DCL_OUTPUT_DIR", config.Convert.OutputDir)
	config.Convert.Pattern = getOverrideOrEnv(opts.Pattern, "DCL_PATTERN", config.Convert.Pattern)
	config.Convert.Format = strings.ToLower(getOverrideOrEnv(opts.Format, "DCL_OUTPUT_FORMAT", config.Convert.Format))
	config.Convert.Workers = getIntWithDefault("DCL_WORKERS", config.Convert.Workers)
	if opts.Workers > 0 {
		config.Convert.Workers = opts.Workers
	}
	config.Convert.StrictStreamEnd = getBoolWithDefault("DCL_STRICT_STREAM_END", config.Convert.StrictStreamEnd) || opts.StrictStreamEnd

	// Server config
	config.Server.Host = getOverrideOrEnv(opts.Host, "SERVER_HOST", config.Server.Host)
	config.Server.Port = getOverrideOrEnv(opts.Port, "SERVER_PORT", config.Server.Port)
	config.Server.ReadTimeout = getDurationWithDefault("SERVER_READ_TIMEOUT", config.Server.ReadTimeout)
	config.Server.WriteTimeout = getDurationWithDefault("SERVER_WRITE_TIMEOUT", config.Server.WriteTimeout)
	config.Server.IdleTimeout = getDurationWithDefault("SERVER_IDLE_TIMEOUT", config.Server.IdleTimeout)
	config.Server.AllowedOrigins = getStringSliceWithDefault("ALLOWED_ORIGINS", config.Server.AllowedOrigins)
	config.Server.MaxMessageSize = getInt64WithDefault("SERVER_MAX_MESSAGE_SIZE", config.Server.MaxMessageSize)

	// Logging config
	config.Logging.Level = strings.ToLower(getOverrideOrEnv(opts.LogLevel, "LOG_LEVEL", config.Logging.Level))
	config.Logging.Format = strings.ToLower(getEnvWithDefault("LOG_FORMAT", config.Logging.Format))
	config.Logging.File = getEnvWithDefault("LOG_FILE", config.Logging.File)

	// Validate configuration
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	// Store the configuration globally so other packages can access it
	configMutex.Lock()
	globalConfig = config
	configMutex.Unlock()

	return config, nil
}

// GetGlobalConfig returns the globally stored configuration
// This should be used by packages that need access to the configuration
// loaded by the command with command-line overrides
func GetGlobalConfig() *Config {
	configMutex.Lock()
	defer configMutex.Unlock()
	return globalConfig
}

// loadFile overlays the YAML file at path onto c. Keys missing from the
// file keep their current values.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path) // #nosec G304 -- operator-supplied config path
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	// Validate convert config
	if _, err := raster.ParseFormat(c.Convert.Format); err != nil {
		return fmt.Errorf("invalid output format: %s", c.Convert.Format)
	}

	if c.Convert.Workers <= 0 {
		return fmt.Errorf("workers must be positive")
	}

	if strings.TrimSpace(c.Convert.Pattern) == "" {
		return fmt.Errorf("file pattern cannot be empty")
	}

	// Validate server config
	if c.Server.Port == "" {
		return fmt.Errorf("server port cannot be empty")
	}

	if port, err := strconv.Atoi(c.Server.Port); err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("invalid server port: %s", c.Server.Port)
	}

	if c.Server.MaxMessageSize <= 0 {
		return fmt.Errorf("max message size must be positive")
	}

	// Validate logging config
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}

	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	validLogFormats := map[string]bool{
		"text": true,
		"json": true,
	}

	if !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("invalid log format: %s", c.Logging.Format)
	}

	return nil
}

// Helper functions for environment variable parsing
func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntWithDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getInt64WithDefault(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getBoolWithDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getDurationWithDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getStringSliceWithDefault(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return splitString(value, ",")
	}
	return defaultValue
}

// getOverrideOrEnv returns command-line override value, env value, or default
func getOverrideOrEnv(override, envKey, defaultValue string) string {
	if override != "" {
		return override
	}
	return getEnvWithDefault(envKey, defaultValue)
}

func splitString(s, sep string) []string {
	if s == "" {
		return []string{}
	}

	var result []string
	for _, part := range strings.Split(s, sep) {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
