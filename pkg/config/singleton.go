package config

import (
	"fmt"
	"sync"
)

var (
	// globalConfig is the process-wide configuration instance.
	globalConfig *Config

	// configMutex guards reads and writes of globalConfig.
	configMutex sync.RWMutex

	// initOnce makes Initialize a one-shot operation.
	initOnce sync.Once
)

// Initialize loads configuration from path, applies GUARDRAILS_* environment
// overrides, and installs the result as the process-wide configuration.
// Call it once during startup; later calls are no-ops.
//
// Returns an error when loading or validation fails.
func Initialize(path string) error {
	var initErr error

	initOnce.Do(func() {
		cfg, err := LoadConfigWithEnvOverrides(path)
		if err != nil {
			initErr = err
			return
		}

		configMutex.Lock()
		globalConfig = cfg
		configMutex.Unlock()
	})

	return initErr
}

// GetConfig returns the process-wide configuration, or nil when Initialize
// has not completed successfully. Safe for concurrent use.
//
// Tests should construct Config values directly and inject them instead of
// going through the singleton.
func GetConfig() *Config {
	configMutex.RLock()
	defer configMutex.RUnlock()
	return globalConfig
}

// SetConfig installs cfg as the process-wide configuration. Intended for
// tests; production code goes through Initialize.
func SetConfig(cfg *Config) {
	configMutex.Lock()
	defer configMutex.Unlock()
	globalConfig = cfg
}

// ReloadConfig re-reads the configuration from path and swaps it in. The
// existing configuration stays in place when loading or validation fails.
func ReloadConfig(path string) error {
	cfg, err := LoadConfigWithEnvOverrides(path)
	if err != nil {
		return fmt.Errorf("failed to reload configuration: %w", err)
	}

	configMutex.Lock()
	globalConfig = cfg
	configMutex.Unlock()

	return nil
}

// MustGetConfig returns the process-wide configuration and panics when it has
// not been initialized. Use only on paths that run after a successful
// Initialize; everywhere else prefer GetConfig.
func MustGetConfig() *Config {
	cfg := GetConfig()
	if cfg == nil {
		panic("configuration not initialized: call Initialize first")
	}
	return cfg
}
