package config

import (
	"log"
	"sync"
)

// ConfigManager provides thread-safe access to the application configuration
type ConfigManager struct {
	mu     sync.RWMutex
	config Config
	path   string
}

// NewConfigManager creates a new configuration manager with the provided initial config.
// path is the file Reload reads from; empty means defaults plus environment.
func NewConfigManager(initialConfig Config, path string) *ConfigManager {
	return &ConfigManager{
		config: initialConfig,
		path:   path,
	}
}

// GetConfig returns a copy of the current configuration
func (cm *ConfigManager) GetConfig() Config {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.config
}

// UpdateConfig updates the configuration with a new version
func (cm *ConfigManager) UpdateConfig(newConfig Config) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.config = newConfig
}

// Reload re-reads the configuration file. On failure the current
// configuration is kept and the error returned.
func (cm *ConfigManager) Reload() error {
	cfg, err := LoadConfig(cm.path)
	if err != nil {
		return err
	}
	if _, err := cfg.Location(); err != nil {
		return err
	}
	cm.UpdateConfig(cfg)
	log.Printf("[Config] Reloaded configuration from %q", cm.path)
	return nil
}
