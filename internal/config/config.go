// Package config loads and validates the wayfarer configuration from
// ~/.wayfarer/config.yaml, with environment variable overrides under the
// WAYFARER_ prefix.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	LLM     LLMConfig     `mapstructure:"llm" yaml:"llm"`
	Engine  EngineConfig  `mapstructure:"engine" yaml:"engine"`
	Tools   ToolsConfig   `mapstructure:"tools" yaml:"tools"`
	Safety  SafetyConfig  `mapstructure:"safety" yaml:"safety"`
	Session SessionConfig `mapstructure:"session" yaml:"session"`
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`
}

// LLMConfig configures the chat-completions provider used for
// classification, extraction, and generation.
type LLMConfig struct {
	// Endpoint is the OpenAI-compatible base URL.
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`
	// APIKey authenticates against the endpoint.
	APIKey string `mapstructure:"api_key" yaml:"api_key,omitempty"`
	// Model is the model identifier sent with every request.
	Model string `mapstructure:"model" yaml:"model"`
	// Temperature applies to generation; classification always runs cold.
	Temperature float64 `mapstructure:"temperature" yaml:"temperature"`
	// MaxTokens caps the completion length (0 = provider default).
	MaxTokens int `mapstructure:"max_tokens" yaml:"max_tokens,omitempty"`
	// TimeoutSec is the per-call HTTP timeout.
	TimeoutSec int `mapstructure:"timeout_sec" yaml:"timeout_sec"`
}

// Timeout returns the provider call timeout.
func (c LLMConfig) Timeout() time.Duration {
	if c.TimeoutSec <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.TimeoutSec) * time.Second
}

// EngineConfig tunes the turn pipeline.
type EngineConfig struct {
	// TurnTimeoutSec bounds one full conversation turn.
	TurnTimeoutSec int `mapstructure:"turn_timeout_sec" yaml:"turn_timeout_sec"`
	// ConfidenceThreshold is the minimum intent confidence before the
	// turn degrades to a clarification prompt.
	ConfidenceThreshold float64 `mapstructure:"confidence_threshold" yaml:"confidence_threshold"`
	// PresentThreshold is the extraction confidence above which a trip
	// attribute is marked firmly known.
	PresentThreshold float64 `mapstructure:"present_threshold" yaml:"present_threshold"`
}

// TurnTimeout returns the full-turn budget.
func (c EngineConfig) TurnTimeout() time.Duration {
	if c.TurnTimeoutSec <= 0 {
		return 60 * time.Second
	}
	return time.Duration(c.TurnTimeoutSec) * time.Second
}

// ToolsConfig configures the tool fan-out and the provider credentials.
type ToolsConfig struct {
	// MaxConcurrent bounds how many tools run at once.
	MaxConcurrent int `mapstructure:"max_concurrent" yaml:"max_concurrent"`
	// PerToolTimeoutSec is the budget for a single provider call.
	PerToolTimeoutSec int `mapstructure:"per_tool_timeout_sec" yaml:"per_tool_timeout_sec"`
	// CeilingSec is the overall budget for one fan-out.
	CeilingSec int `mapstructure:"ceiling_sec" yaml:"ceiling_sec"`
	// CacheSize is the number of entries the result cache holds.
	CacheSize int `mapstructure:"cache_size" yaml:"cache_size"`
	// CacheTTLMin maps tool categories to cache lifetimes in minutes.
	CacheTTLMin map[string]int `mapstructure:"cache_ttl_min" yaml:"cache_ttl_min,omitempty"`
	// HomeCurrency is the traveler's settlement currency.
	HomeCurrency string `mapstructure:"home_currency" yaml:"home_currency"`

	Flight   FlightProviderConfig   `mapstructure:"flight" yaml:"flight"`
	Weather  WeatherProviderConfig  `mapstructure:"weather" yaml:"weather"`
	Places   PlacesProviderConfig   `mapstructure:"places" yaml:"places"`
	Currency CurrencyProviderConfig `mapstructure:"currency" yaml:"currency"`
}

// PerToolTimeout returns the single-call budget.
func (c ToolsConfig) PerToolTimeout() time.Duration {
	if c.PerToolTimeoutSec <= 0 {
		return 8 * time.Second
	}
	return time.Duration(c.PerToolTimeoutSec) * time.Second
}

// Ceiling returns the fan-out budget.
func (c ToolsConfig) Ceiling() time.Duration {
	if c.CeilingSec <= 0 {
		return 20 * time.Second
	}
	return time.Duration(c.CeilingSec) * time.Second
}

// FlightProviderConfig configures the Amadeus-compatible flight API.
type FlightProviderConfig struct {
	Endpoint     string `mapstructure:"endpoint" yaml:"endpoint"`
	ClientID     string `mapstructure:"client_id" yaml:"client_id,omitempty"`
	ClientSecret string `mapstructure:"client_secret" yaml:"client_secret,omitempty"`
	MaxOffers    int    `mapstructure:"max_offers" yaml:"max_offers"`
}

// WeatherProviderConfig configures the Open-Meteo-compatible weather API.
type WeatherProviderConfig struct {
	GeocodeEndpoint  string `mapstructure:"geocode_endpoint" yaml:"geocode_endpoint"`
	ForecastEndpoint string `mapstructure:"forecast_endpoint" yaml:"forecast_endpoint"`
}

// PlacesProviderConfig configures the Geoapify-compatible places API.
type PlacesProviderConfig struct {
	Endpoint   string `mapstructure:"endpoint" yaml:"endpoint"`
	APIKey     string `mapstructure:"api_key" yaml:"api_key,omitempty"`
	RadiusM    int    `mapstructure:"radius_m" yaml:"radius_m"`
	MaxResults int    `mapstructure:"max_results" yaml:"max_results"`
}

// CurrencyProviderConfig configures the exchange-rate API.
type CurrencyProviderConfig struct {
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`
	APIKey   string `mapstructure:"api_key" yaml:"api_key,omitempty"`
}

// SafetyConfig tunes the two-stage safety gate.
type SafetyConfig struct {
	// TimeoutSec bounds one safety classification.
	TimeoutSec int `mapstructure:"timeout_sec" yaml:"timeout_sec"`
	// IncidentLog is the path of the JSONL incident log. Empty disables
	// incident recording.
	IncidentLog string `mapstructure:"incident_log" yaml:"incident_log,omitempty"`
}

// Timeout returns the safety check budget.
func (c SafetyConfig) Timeout() time.Duration {
	if c.TimeoutSec <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.TimeoutSec) * time.Second
}

// SessionConfig configures session persistence.
type SessionConfig struct {
	// Store selects the backend: "sqlite" or "memory".
	Store string `mapstructure:"store" yaml:"store"`
	// DBPath is the SQLite database path.
	DBPath string `mapstructure:"db_path" yaml:"db_path"`
	// InactivityMin is the idle window before a session expires.
	InactivityMin int `mapstructure:"inactivity_min" yaml:"inactivity_min"`
	// SweepIntervalMin is how often expired sessions are removed.
	SweepIntervalMin int `mapstructure:"sweep_interval_min" yaml:"sweep_interval_min"`
}

// Inactivity returns the session idle window.
func (c SessionConfig) Inactivity() time.Duration {
	if c.InactivityMin <= 0 {
		return 30 * time.Minute
	}
	return time.Duration(c.InactivityMin) * time.Minute
}

// SweepInterval returns the expiry sweep cadence.
func (c SessionConfig) SweepInterval() time.Duration {
	if c.SweepIntervalMin <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(c.SweepIntervalMin) * time.Minute
}

// LoggingConfig contains configuration for application logging.
type LoggingConfig struct {
	// Level is the log level ("debug", "info", "warn", "error")
	Level string `mapstructure:"level" yaml:"level"`
	// File is the path to the log file
	File string `mapstructure:"file" yaml:"file"`
}

// Default returns the configuration used when no file exists yet.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	dataDir := filepath.Join(homeDir, ".wayfarer")

	return &Config{
		LLM: LLMConfig{
			Endpoint:    "https://api.openai.com/v1",
			Model:       "gpt-4o-mini",
			Temperature: 0.7,
			TimeoutSec:  30,
		},
		Engine: EngineConfig{
			TurnTimeoutSec:      60,
			ConfidenceThreshold: 0.7,
			PresentThreshold:    0.7,
		},
		Tools: ToolsConfig{
			MaxConcurrent:     4,
			PerToolTimeoutSec: 8,
			CeilingSec:        20,
			CacheSize:         512,
			CacheTTLMin: map[string]int{
				"flight":   10,
				"weather":  30,
				"activity": 60,
				"budget":   60,
				"map":      60,
				"currency": 60,
			},
			HomeCurrency: "EUR",
			Flight: FlightProviderConfig{
				Endpoint:  "https://test.api.amadeus.com",
				MaxOffers: 5,
			},
			Weather: WeatherProviderConfig{
				GeocodeEndpoint:  "https://geocoding-api.open-meteo.com",
				ForecastEndpoint: "https://api.open-meteo.com",
			},
			Places: PlacesProviderConfig{
				Endpoint:   "https://api.geoapify.com",
				RadiusM:    5000,
				MaxResults: 8,
			},
			Currency: CurrencyProviderConfig{
				Endpoint: "https://api.exchangerate.host",
			},
		},
		Safety: SafetyConfig{
			TimeoutSec:  10,
			IncidentLog: filepath.Join(dataDir, "incidents.jsonl"),
		},
		Session: SessionConfig{
			Store:            "sqlite",
			DBPath:           filepath.Join(dataDir, "sessions.db"),
			InactivityMin:    30,
			SweepIntervalMin: 5,
		},
		Logging: LoggingConfig{
			Level: "info",
			File:  filepath.Join(dataDir, "logs", "wayfarer.log"),
		},
	}
}

// Load reads configuration from the default location (~/.wayfarer/config.yaml)
// and merges with environment variables. If no config file exists, it creates
// one with default values.
func Load() (*Config, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get home directory: %w", err)
	}
	return LoadFromPath(filepath.Join(homeDir, ".wayfarer", "config.yaml"))
}

// LoadFromPath reads configuration from a specific file path and merges with
// environment variables. If the file doesn't exist, it creates one with
// default values.
func LoadFromPath(path string) (*Config, error) {
	path = expandPath(path)

	configDir := filepath.Dir(path)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := Default()
		if err := writeConfigFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to write default config: %w", err)
		}
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	// Example: WAYFARER_LLM_API_KEY, WAYFARER_TOOLS_FLIGHT_CLIENT_ID
	v.SetEnvPrefix("WAYFARER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.Session.DBPath = expandPath(cfg.Session.DBPath)
	cfg.Safety.IncidentLog = expandPath(cfg.Safety.IncidentLog)
	cfg.Logging.File = expandPath(cfg.Logging.File)

	return &cfg, nil
}

// Save writes the current configuration to the default config file location.
func (c *Config) Save() error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}
	return c.SaveToPath(filepath.Join(homeDir, ".wayfarer", "config.yaml"))
}

// SaveToPath writes the current configuration to a specific file path.
func (c *Config) SaveToPath(path string) error {
	path = expandPath(path)

	configDir := filepath.Dir(path)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	return writeConfigFile(path, c)
}

// GetDataDir returns the wayfarer data directory path (~/.wayfarer).
func (c *Config) GetDataDir() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".wayfarer")
}

// GetConfigPath returns the full path to the config file.
func (c *Config) GetConfigPath() string {
	return filepath.Join(c.GetDataDir(), "config.yaml")
}

// EnsureDirectories creates all directories the application writes to.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		c.GetDataDir(),
		filepath.Dir(c.Logging.File),
		filepath.Dir(c.Session.DBPath),
	}
	if c.Safety.IncidentLog != "" {
		dirs = append(dirs, filepath.Dir(c.Safety.IncidentLog))
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}

// Validate checks the configuration for common errors and inconsistencies.
func (c *Config) Validate() error {
	if c.LLM.Endpoint == "" {
		return fmt.Errorf("llm.endpoint cannot be empty")
	}
	if c.LLM.Model == "" {
		return fmt.Errorf("llm.model cannot be empty")
	}

	if c.Engine.ConfidenceThreshold < 0 || c.Engine.ConfidenceThreshold > 1 {
		return fmt.Errorf("engine.confidence_threshold must be between 0 and 1")
	}
	if c.Engine.PresentThreshold < 0 || c.Engine.PresentThreshold > 1 {
		return fmt.Errorf("engine.present_threshold must be between 0 and 1")
	}

	if c.Tools.MaxConcurrent < 1 {
		return fmt.Errorf("tools.max_concurrent must be at least 1")
	}
	if c.Tools.CacheSize < 1 {
		return fmt.Errorf("tools.cache_size must be at least 1")
	}
	if len(c.Tools.HomeCurrency) != 3 {
		return fmt.Errorf("tools.home_currency must be a 3-letter code, got %q", c.Tools.HomeCurrency)
	}

	if c.Session.Store != "sqlite" && c.Session.Store != "memory" {
		return fmt.Errorf("invalid session store '%s', must be 'sqlite' or 'memory'", c.Session.Store)
	}
	if c.Session.Store == "sqlite" && c.Session.DBPath == "" {
		return fmt.Errorf("session.db_path cannot be empty for the sqlite store")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level '%s', must be one of: debug, info, warn, error", c.Logging.Level)
	}

	return nil
}

// writeConfigFile writes a Config struct to a YAML file.
// Uses gopkg.in/yaml.v3 directly to ensure proper tag-based serialization.
func writeConfigFile(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// expandPath expands ~ to the user's home directory in a path string.
func expandPath(path string) string {
	if strings.HasPrefix(path, "~") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(homeDir, path[1:])
	}
	return path
}
