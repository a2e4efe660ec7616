package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/devlearn/playground/internal/storage"
	"gopkg.in/yaml.v3"
)

// FileName is the configuration file looked up by LoadFromDir.
const FileName = "devlearn.yaml"

// Config represents the playground server configuration
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Editor      EditorConfig      `yaml:"editor"`
	Interpreter InterpreterConfig `yaml:"interpreter"`
	Storage     storage.Config    `yaml:"storage"`
	Catalog     CatalogConfig     `yaml:"catalog"`
	API         *APIConfig        `yaml:"api,omitempty"`
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port  int    `yaml:"port"`
	Host  string `yaml:"host"`
	Debug bool   `yaml:"debug"`
}

// Addr returns host:port.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// EditorConfig tunes the editing surfaces
type EditorConfig struct {
	Debounce   string `yaml:"debounce,omitempty"`    // Delay between the last edit and the preview refresh. Default: 1s
	PreviewTTL string `yaml:"preview_ttl,omitempty"` // How long "open in new window" snapshots live. Default: 10m
	SessionTTL string `yaml:"session_ttl,omitempty"` // How long a dropped page's buffers wait for it to reconnect. Default: 2m
}

// GetDebounce returns the preview debounce (default: 1s)
func (c EditorConfig) GetDebounce() time.Duration {
	return parseDuration(c.Debounce, time.Second)
}

// GetPreviewTTL returns the preview snapshot lifetime (default: 10m)
func (c EditorConfig) GetPreviewTTL() time.Duration {
	return parseDuration(c.PreviewTTL, 10*time.Minute)
}

// GetSessionTTL returns how long a disconnected workspace is kept (default: 2m)
func (c EditorConfig) GetSessionTTL() time.Duration {
	return parseDuration(c.SessionTTL, 2*time.Minute)
}

// InterpreterConfig configures the Python runtime
type InterpreterConfig struct {
	Runtime       string            `yaml:"runtime"`                  // URL or path of the CPython WASI module
	StdlibDir     string            `yaml:"stdlib_dir,omitempty"`     // Host directory with the python standard library
	GuestLibDir   string            `yaml:"guest_lib_dir,omitempty"`  // Where the stdlib is mounted inside the sandbox. Default: /usr/local/lib
	CacheDir      string            `yaml:"cache_dir,omitempty"`      // Compilation cache directory. Default: disabled
	LoadTimeout   string            `yaml:"load_timeout,omitempty"`   // Fetch and compile budget. Default: 2m
	RunTimeout    string            `yaml:"run_timeout,omitempty"`    // Per-run budget. Default: 10s
	MaxConcurrent int               `yaml:"max_concurrent,omitempty"` // Concurrent runs. Default: 4
	Env           map[string]string `yaml:"env,omitempty"`            // Extra environment for the interpreter (env vars expanded)
	Retry         *RetryConfig      `yaml:"retry,omitempty"`          // Download retry configuration
}

// RetryConfig configures retry behavior for runtime downloads
type RetryConfig struct {
	MaxRetries int    `yaml:"max_retries,omitempty"` // Maximum retry attempts (default: 3)
	BaseDelay  string `yaml:"base_delay,omitempty"`  // Initial delay (e.g., "100ms"). Default: 200ms
	MaxDelay   string `yaml:"max_delay,omitempty"`   // Maximum delay (e.g., "5s"). Default: 5s
}

// GetLoadTimeout returns the runtime load timeout (default: 2m)
func (c InterpreterConfig) GetLoadTimeout() time.Duration {
	return parseDuration(c.LoadTimeout, 2*time.Minute)
}

// GetRunTimeout returns the per-run timeout (default: 10s)
func (c InterpreterConfig) GetRunTimeout() time.Duration {
	return parseDuration(c.RunTimeout, 10*time.Second)
}

// GetMaxConcurrent returns the concurrent run limit (default: 4)
func (c InterpreterConfig) GetMaxConcurrent() int64 {
	if c.MaxConcurrent <= 0 {
		return 4
	}
	return int64(c.MaxConcurrent)
}

// GetEnv returns the interpreter environment with environment variable expansion
func (c InterpreterConfig) GetEnv() map[string]string {
	if len(c.Env) == 0 {
		return nil
	}
	env := make(map[string]string, len(c.Env))
	for k, v := range c.Env {
		env[k] = os.ExpandEnv(v)
	}
	return env
}

// GetRetryMaxRetries returns the max retries (default: 3, set to 0 to disable retries)
func (c InterpreterConfig) GetRetryMaxRetries() int {
	if c.Retry == nil || c.Retry.MaxRetries < 0 {
		return 3
	}
	return c.Retry.MaxRetries
}

// GetRetryBaseDelay returns the base delay (default: 200ms)
func (c InterpreterConfig) GetRetryBaseDelay() time.Duration {
	if c.Retry == nil {
		return 200 * time.Millisecond
	}
	return parseDuration(c.Retry.BaseDelay, 200*time.Millisecond)
}

// GetRetryMaxDelay returns the max delay (default: 5s)
func (c InterpreterConfig) GetRetryMaxDelay() time.Duration {
	if c.Retry == nil {
		return 5 * time.Second
	}
	return parseDuration(c.Retry.MaxDelay, 5*time.Second)
}

// CatalogConfig holds template catalog configuration
type CatalogConfig struct {
	Dir   string `yaml:"dir,omitempty"` // Override directory with templates.yaml, scenarios.yaml, ...
	Watch bool   `yaml:"watch"`         // Reload when files in Dir change
}

// APIConfig holds HTTP API configuration
type APIConfig struct {
	CORS      *CORSConfig      `yaml:"cors,omitempty"`
	RateLimit *RateLimitConfig `yaml:"rate_limit,omitempty"`
}

// CORSConfig holds CORS configuration for the API
type CORSConfig struct {
	Origins []string `yaml:"origins,omitempty"` // Allowed origins (e.g., ["http://localhost:3000", "*"])
}

// RateLimitConfig holds rate limiting configuration for the API
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second,omitempty"` // Rate limit in requests per second (default: 10)
	Burst             int     `yaml:"burst,omitempty"`               // Burst size (default: 20)
	MaxTrackedIPs     int     `yaml:"max_tracked_ips,omitempty"`     // Tracked client IPs, least recently used evicted first (default: 10000)
}

// GetCORSOrigins returns the configured CORS origins (default: ["*"]).
// Preview frames are sandboxed without same-origin, so their requests carry an opaque origin.
func (c *APIConfig) GetCORSOrigins() []string {
	if c == nil || c.CORS == nil || len(c.CORS.Origins) == 0 {
		return []string{"*"}
	}
	return c.CORS.Origins
}

// GetRateLimitRPS returns the rate limit in requests per second (default: 10)
func (c *APIConfig) GetRateLimitRPS() float64 {
	if c == nil || c.RateLimit == nil || c.RateLimit.RequestsPerSecond <= 0 {
		return 10
	}
	return c.RateLimit.RequestsPerSecond
}

// GetRateLimitBurst returns the burst size (default: 20)
func (c *APIConfig) GetRateLimitBurst() int {
	if c == nil || c.RateLimit == nil || c.RateLimit.Burst <= 0 {
		return 20
	}
	return c.RateLimit.Burst
}

// GetMaxTrackedIPs returns the number of tracked client IPs (default: 10000)
func (c *APIConfig) GetMaxTrackedIPs() int {
	if c == nil || c.RateLimit == nil || c.RateLimit.MaxTrackedIPs <= 0 {
		return 10000
	}
	return c.RateLimit.MaxTrackedIPs
}

func parseDuration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:  8080,
			Host:  "localhost",
			Debug: false,
		},
		Editor: EditorConfig{
			Debounce:   "1s",
			PreviewTTL: "10m",
			SessionTTL: "2m",
		},
		Interpreter: InterpreterConfig{
			GuestLibDir:   "/usr/local/lib",
			LoadTimeout:   "2m",
			RunTimeout:    "10s",
			MaxConcurrent: 4,
		},
		Storage: storage.Config{
			Backend: storage.BackendMemory,
		},
		Catalog: CatalogConfig{
			Watch: true,
		},
	}
}

// Validate checks values that have no sensible fallback.
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	switch c.Storage.Backend {
	case "", storage.BackendMemory, storage.BackendFile, storage.BackendSQLite, storage.BackendPostgres:
	default:
		return fmt.Errorf("storage.backend %q is not one of memory, file, sqlite, postgres", c.Storage.Backend)
	}
	return nil
}

// Load loads configuration from a YAML file
// If the file doesn't exist, returns the default configuration
func Load(configPath string) (*Config, error) {
	// If no config path provided, use default
	if configPath == "" {
		return DefaultConfig(), nil
	}

	// Check if file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return DefaultConfig(), nil
	}

	// Read the config file
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Parse YAML
	config := DefaultConfig() // Start with defaults
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", configPath, err)
	}

	return config, nil
}

// LoadFromDir looks for devlearn.yaml in the given directory
// If none is found, returns the default configuration
func LoadFromDir(dir string) (*Config, error) {
	return Load(filepath.Join(dir, FileName))
}

// Save writes the configuration to a YAML file
func (c *Config) Save(configPath string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
