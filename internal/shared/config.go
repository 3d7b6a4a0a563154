package shared

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

//go:embed config.example.toml
var exampleConf []byte

// ConfigEnv names the environment variable that overrides the default config path.
const ConfigEnv = "VBX_CONFIG"

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Engine   EngineConfig    `toml:"engine"`
	Poll     PollConfig      `toml:"poll"`
	Retry    RetryConfig     `toml:"retry"`
	Remote   RemoteConfig    `toml:"remote"`
	Database DatabaseConfig  `toml:"database"`
	Storage  StorageConfig   `toml:"storage"`
	Accounts []AccountConfig `toml:"accounts"`
}

// EngineConfig controls batch scheduling and generation parameters.
type EngineConfig struct {
	Concurrency      int    `toml:"concurrency"`
	OutputDir        string `toml:"output_dir"`
	TargetResolution string `toml:"target_resolution"`
	AspectRatio      string `toml:"aspect_ratio"`
	UpscaleQuality   string `toml:"upscale_quality"`
	TextModelKey     string `toml:"text_model_key"`
	AssetModelKey    string `toml:"asset_model_key"`
	ProjectID        string `toml:"project_id"`
	Seed             int    `toml:"seed"`
	Rotation         string `toml:"rotation"`
	StopGraceSeconds int    `toml:"stop_grace_seconds"`
}

// PollConfig contains poll loop timing.
type PollConfig struct {
	IntervalSeconds float64 `toml:"interval_seconds"`
	TimeoutSeconds  int     `toml:"timeout_seconds"`
}

// RetryConfig contains backoff settings applied to every remote step.
type RetryConfig struct {
	Enabled       bool    `toml:"enabled"`
	MaxRetries    int     `toml:"max_retries"`
	BaseDelay     float64 `toml:"base_delay"`
	MaxDelay      float64 `toml:"max_delay"`
	BackoffFactor float64 `toml:"backoff_factor"`
}

// RemoteConfig contains endpoints and transport settings for the generation service.
type RemoteConfig struct {
	BaseURL           string  `toml:"base_url"`
	SessionURL        string  `toml:"session_url"`
	DeleteURL         string  `toml:"delete_url"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
	TimeoutSeconds    int     `toml:"timeout_seconds"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// StorageConfig selects where finished artifacts are mirrored.
type StorageConfig struct {
	Backend         string `toml:"backend"`
	Bucket          string `toml:"bucket"`
	Prefix          string `toml:"prefix"`
	Region          string `toml:"region"`
	Endpoint        string `toml:"endpoint"`
	AccessKeyID     string `toml:"access_key_id"`
	SecretAccessKey string `toml:"secret_access_key"`
	CredentialsFile string `toml:"credentials_file"`
}

// AccountConfig describes one credential. Exactly one of Cookie, CookieFile, CurlFile or Token is expected.
type AccountConfig struct {
	Name       string `toml:"name"`
	Cookie     string `toml:"cookie"`
	CookieFile string `toml:"cookie_file"`
	CurlFile   string `toml:"curl_file"`
	Token      string `toml:"token"`
	Proxy      string `toml:"proxy"`
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
//
// Missing keys keep the values from [DefaultConfig].
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	base := filepath.Dir(path)
	for i := range config.Accounts {
		config.Accounts[i].CookieFile = resolvePath(base, config.Accounts[i].CookieFile)
		config.Accounts[i].CurlFile = resolvePath(base, config.Accounts[i].CurlFile)
	}
	return config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// ConfigPath returns the config path from [ConfigEnv], falling back to fallback.
func ConfigPath(fallback string) string {
	if p := os.Getenv(ConfigEnv); p != "" {
		return p
	}
	return fallback
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%w: config file already exists at %s", ErrInvalidArgument, path)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Validate checks enum values and numeric ranges.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Engine.TargetResolution) {
	case "standard", "upscaled":
	default:
		return fmt.Errorf("%w: engine.target_resolution must be standard or upscaled, got %q", ErrInvalidConfig, c.Engine.TargetResolution)
	}

	switch strings.ToLower(c.Engine.AspectRatio) {
	case "landscape", "portrait":
	default:
		return fmt.Errorf("%w: engine.aspect_ratio must be landscape or portrait, got %q", ErrInvalidConfig, c.Engine.AspectRatio)
	}

	switch c.Engine.UpscaleQuality {
	case "720p", "1080p":
	default:
		return fmt.Errorf("%w: engine.upscale_quality must be 720p or 1080p, got %q", ErrInvalidConfig, c.Engine.UpscaleQuality)
	}

	switch strings.ToLower(c.Engine.Rotation) {
	case "static", "round_robin":
	default:
		return fmt.Errorf("%w: engine.rotation must be static or round_robin, got %q", ErrInvalidConfig, c.Engine.Rotation)
	}

	if c.Engine.Concurrency < 1 || c.Engine.Concurrency > 20 {
		return fmt.Errorf("%w: engine.concurrency must be between 1 and 20", ErrInvalidConfig)
	}
	if c.Poll.IntervalSeconds <= 0 || c.Poll.TimeoutSeconds <= 0 {
		return fmt.Errorf("%w: poll interval and timeout must be positive", ErrInvalidConfig)
	}
	if c.Retry.MaxRetries < 0 || c.Retry.BaseDelay < 0 || c.Retry.MaxDelay < 0 || c.Retry.BackoffFactor < 1 {
		return fmt.Errorf("%w: retry settings out of range", ErrInvalidConfig)
	}

	switch c.Storage.Backend {
	case "", "local":
	case "s3", "gcs":
		if c.Storage.Bucket == "" {
			return fmt.Errorf("%w: storage.bucket is required for backend %s", ErrInvalidConfig, c.Storage.Backend)
		}
		if c.Storage.Backend == "s3" && (c.Storage.AccessKeyID == "" || c.Storage.SecretAccessKey == "") {
			return fmt.Errorf("%w: storage.access_key_id and storage.secret_access_key are required for s3", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown storage backend %q", ErrInvalidConfig, c.Storage.Backend)
	}

	seen := make(map[string]bool, len(c.Accounts))
	for i, a := range c.Accounts {
		if a.Name == "" {
			return fmt.Errorf("%w: accounts[%d] has no name", ErrInvalidConfig, i)
		}
		if seen[a.Name] {
			return fmt.Errorf("%w: duplicate account name %q", ErrInvalidConfig, a.Name)
		}
		seen[a.Name] = true
	}
	return nil
}

// PollInterval returns the poll interval as a [time.Duration].
func (c PollConfig) PollInterval() time.Duration {
	return time.Duration(c.IntervalSeconds * float64(time.Second))
}

// PollTimeout returns the poll deadline as a [time.Duration].
func (c PollConfig) PollTimeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// StopGrace returns how long a stop waits before cancelling in-flight calls.
func (c EngineConfig) StopGrace() time.Duration {
	if c.StopGraceSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.StopGraceSeconds) * time.Second
}

// Seconds converts fractional seconds to a [time.Duration].
func Seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// LoadSecret returns the cookie material for an account from its inline value, cookie file, or saved cURL command.
func (a AccountConfig) LoadSecret() (string, error) {
	switch {
	case a.Cookie != "":
		return strings.TrimSpace(a.Cookie), nil
	case a.CookieFile != "":
		data, err := os.ReadFile(a.CookieFile)
		if err != nil {
			return "", fmt.Errorf("failed to read cookie file for %s: %w", a.Name, err)
		}
		return strings.TrimSpace(string(data)), nil
	case a.CurlFile != "":
		parsed, err := ParseCurlFile(a.CurlFile)
		if err != nil {
			return "", fmt.Errorf("failed to parse curl file for %s: %w", a.Name, err)
		}
		if parsed.Cookie == "" {
			return "", fmt.Errorf("%w: no cookie in curl file for %s", ErrMissingCredentials, a.Name)
		}
		return parsed.Cookie, nil
	case a.Token != "":
		return "", nil
	default:
		return "", fmt.Errorf("%w: account %s has no cookie, cookie_file, curl_file or token", ErrMissingCredentials, a.Name)
	}
}

func resolvePath(base, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}
