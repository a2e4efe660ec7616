package config

import (
	"runtime/debug"
	"sync"
)

// RuntimeConfig stores values set at startup via linker flags.
// These values are not persisted to config files.
type RuntimeConfig struct {
	mu      sync.RWMutex
	version string
}

var globalRuntime = &RuntimeConfig{}

// SetVersion records the build version, usually from -ldflags.
func SetVersion(v string) {
	globalRuntime.mu.Lock()
	defer globalRuntime.mu.Unlock()
	globalRuntime.version = v
}

// GetVersion returns the build version. Without one set, the module version
// from the embedded build info is used, then "dev".
func GetVersion() string {
	globalRuntime.mu.RLock()
	v := globalRuntime.version
	globalRuntime.mu.RUnlock()
	if v != "" {
		return v
	}
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}
	return "dev"
}
