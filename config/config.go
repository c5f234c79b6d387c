package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"loadflare/log"
)

const ConfigFileName = "config.json"

// GetConfigDir returns the path to the application's configuration directory
func GetConfigDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get config home directory: %w", err)
	}
	return filepath.Join(homeDir, ".loadflare"), nil
}

// Config holds the persisted defaults for a run. Flags override these values;
// the merged result is copied into immutable per-run options, so nothing here
// mutates while a run is in flight.
type Config struct {
	// DefaultRequests is the repeat count used for commands without an embedded override.
	DefaultRequests int `json:"default_requests"`
	// DefaultConcurrency is the global worker ceiling. 0 means number of CPUs.
	DefaultConcurrency int `json:"default_concurrency"`
	// TimeoutSeconds is the per-invocation timeout. 0 means unbounded.
	TimeoutSeconds int `json:"timeout_seconds"`
	// GracePeriodSeconds is how long in-flight invocations may run after a cancellation.
	GracePeriodSeconds int `json:"grace_period_seconds"`
	// OutputCapBytes bounds the captured stdout/stderr per invocation.
	OutputCapBytes int `json:"output_cap_bytes"`
	// OKExitCodes lists the exit codes counted as success.
	OKExitCodes []int `json:"ok_exit_codes"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		DefaultRequests:    1,
		DefaultConcurrency: runtime.NumCPU(),
		TimeoutSeconds:     0,
		GracePeriodSeconds: 5,
		OutputCapBytes:     16 * 1024,
		OKExitCodes:        []int{0},
	}
}

// LoadConfig loads the configuration from disk. If it cannot be done, we return the default configuration.
func LoadConfig() *Config {
	configDir, err := GetConfigDir()
	if err != nil {
		log.ErrorLog.Printf("failed to get config directory: %v", err)
		return DefaultConfig()
	}

	configPath := filepath.Join(configDir, ConfigFileName)
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			// Create and save default config if file doesn't exist
			defaultCfg := DefaultConfig()
			if saveErr := saveConfig(defaultCfg); saveErr != nil {
				log.WarningLog.Printf("failed to save default config: %v", saveErr)
			}
			return defaultCfg
		}

		log.WarningLog.Printf("failed to get config file: %v", err)
		return DefaultConfig()
	}

	config := DefaultConfig()
	if err := json.Unmarshal(data, config); err != nil {
		log.ErrorLog.Printf("failed to parse config file: %v", err)
		return DefaultConfig()
	}
	if config.DefaultConcurrency <= 0 {
		config.DefaultConcurrency = runtime.NumCPU()
	}
	if len(config.OKExitCodes) == 0 {
		config.OKExitCodes = []int{0}
	}

	return config
}

// saveConfig saves the configuration to disk
func saveConfig(config *Config) error {
	configDir, err := GetConfigDir()
	if err != nil {
		return fmt.Errorf("failed to get config directory: %w", err)
	}

	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	configPath := filepath.Join(configDir, ConfigFileName)
	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	return os.WriteFile(configPath, data, 0644)
}

// SaveConfig exports the saveConfig function for use by other packages
func SaveConfig(config *Config) error {
	return saveConfig(config)
}
