package config

import "sync"

var (
	globalMu     sync.RWMutex
	globalConfig *Config
)

// GetConfig returns the configuration last installed with SetConfig, or nil.
func GetConfig() *Config {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalConfig
}

// SetConfig installs cfg as the process configuration. The CLI calls it
// after loading and after every applied reload.
func SetConfig(cfg *Config) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalConfig = cfg
}
