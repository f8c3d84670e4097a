package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the anqer configuration
type Config struct {
	Me       MeConfig                 `yaml:"me"`
	Adapters map[string]AdapterConfig `yaml:"adapters"`
	WatchDir string                   `yaml:"watch_dir,omitempty"`
}

// MeConfig represents the local user's identity
type MeConfig struct {
	DisplayName string `yaml:"display_name"`
}

// AdapterConfig represents adapter configuration
type AdapterConfig struct {
	Type    string                 `yaml:"type"`
	Enabled bool                   `yaml:"enabled"`
	Options map[string]interface{} `yaml:"options,omitempty"`
}

// GetConfigDir returns the XDG-compliant config directory
func GetConfigDir() (string, error) {
	// Explicit override (useful for tests and portable installs)
	if override := os.Getenv("ANQER_CONFIG_DIR"); override != "" {
		return override, nil
	}

	var base string
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		base = xdg
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "anqer"), nil
}

// GetDataDir returns the platform-specific data directory
func GetDataDir() (string, error) {
	// Explicit override (useful for tests and portable installs)
	if override := os.Getenv("ANQER_DATA_DIR"); override != "" {
		return override, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}

	if runtime.GOOS == "darwin" {
		return filepath.Join(home, "Library", "Application Support", "Anqer"), nil
	}

	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "anqer"), nil
	}

	return filepath.Join(home, ".local", "share", "anqer"), nil
}

// Load loads config from the config file
func Load() (*Config, error) {
	configDir, err := GetConfigDir()
	if err != nil {
		return nil, err
	}

	// Credentials live in the environment; a .env next to the config is
	// honored for portable installs. Missing files are fine.
	_ = godotenv.Load(filepath.Join(configDir, ".env"))
	_ = godotenv.Load()

	configPath := filepath.Join(configDir, "config.yaml")

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			// Return default empty config
			return &Config{
				Adapters: make(map[string]AdapterConfig),
			}, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if cfg.Adapters == nil {
		cfg.Adapters = make(map[string]AdapterConfig)
	}

	return &cfg, nil
}

// Save saves the config to the config file
func (c *Config) Save() error {
	configDir, err := GetConfigDir()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	configPath := filepath.Join(configDir, "config.yaml")

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// GeminiAPIKey returns the configured Gemini API key, if any.
func GeminiAPIKey() string {
	return os.Getenv("GEMINI_API_KEY")
}

// GoogleAccessToken returns a previously obtained OAuth access token.
// Token acquisition (the browser consent flow) happens outside this
// process.
func GoogleAccessToken() string {
	return os.Getenv("GOOGLE_ACCESS_TOKEN")
}
