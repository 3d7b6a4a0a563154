package shared

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestConfig(t *testing.T) {
	t.Run("DefaultConfig", func(t *testing.T) {
		config := DefaultConfig()

		if config.Engine.Concurrency != 5 {
			t.Errorf("expected concurrency 5, got %d", config.Engine.Concurrency)
		}
		if config.Poll.PollInterval() != 3*time.Second {
			t.Errorf("expected poll interval 3s, got %v", config.Poll.PollInterval())
		}
		if config.Poll.PollTimeout() != 1200*time.Second {
			t.Errorf("expected poll timeout 1200s, got %v", config.Poll.PollTimeout())
		}
		if config.Retry.MaxRetries != 3 || config.Retry.BaseDelay != 2.0 || config.Retry.MaxDelay != 30.0 || config.Retry.BackoffFactor != 2.0 {
			t.Errorf("unexpected retry defaults: %+v", config.Retry)
		}
		if config.Database.Path != "./vbx.db" {
			t.Errorf("expected database path ./vbx.db, got %s", config.Database.Path)
		}
		if err := config.Validate(); err != nil {
			t.Errorf("default config should validate: %v", err)
		}
	})

	t.Run("CreateConfigFile", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "config.toml")

		if err := CreateConfigFile(configPath); err != nil {
			t.Fatalf("failed to create config file: %v", err)
		}

		config, err := LoadConfig(configPath)
		if err != nil {
			t.Fatalf("failed to load created config: %v", err)
		}
		if config.Remote.BaseURL != DefaultConfig().Remote.BaseURL {
			t.Errorf("created config base url doesn't match default")
		}

		if err := CreateConfigFile(configPath); err == nil {
			t.Error("creating config file again should fail")
		}
	})

	t.Run("LoadConfig", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "config.toml")

		testConfig := `[engine]
concurrency = 2
target_resolution = "upscaled"

[retry]
max_retries = 5

[[accounts]]
name = "main"
cookie_file = "cookies/main.txt"
proxy = "http://127.0.0.1:3128"

[[accounts]]
name = "backup"
token = "ya29.token"
`
		if err := os.WriteFile(configPath, []byte(testConfig), 0644); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}

		config, err := LoadConfig(configPath)
		if err != nil {
			t.Fatalf("failed to load config: %v", err)
		}

		if config.Engine.Concurrency != 2 {
			t.Errorf("expected concurrency 2, got %d", config.Engine.Concurrency)
		}
		if config.Engine.AspectRatio != "landscape" {
			t.Errorf("expected default aspect ratio to survive, got %q", config.Engine.AspectRatio)
		}
		if config.Retry.MaxRetries != 5 || config.Retry.BaseDelay != 2.0 {
			t.Errorf("unexpected retry config: %+v", config.Retry)
		}
		if len(config.Accounts) != 2 {
			t.Fatalf("expected 2 accounts, got %d", len(config.Accounts))
		}
		if want := filepath.Join(tmpDir, "cookies/main.txt"); config.Accounts[0].CookieFile != want {
			t.Errorf("expected cookie file resolved to %s, got %s", want, config.Accounts[0].CookieFile)
		}
	})

	t.Run("ConfigPath", func(t *testing.T) {
		t.Setenv(ConfigEnv, "/etc/vbx/config.toml")
		if got := ConfigPath("config.toml"); got != "/etc/vbx/config.toml" {
			t.Errorf("expected env override, got %s", got)
		}
		t.Setenv(ConfigEnv, "")
		if got := ConfigPath("config.toml"); got != "config.toml" {
			t.Errorf("expected fallback, got %s", got)
		}
	})
}

func TestConfigValidate(t *testing.T) {
	tc := []struct {
		name   string
		mutate func(c *Config)
	}{
		{name: "bad resolution", mutate: func(c *Config) { c.Engine.TargetResolution = "4k" }},
		{name: "bad aspect", mutate: func(c *Config) { c.Engine.AspectRatio = "square" }},
		{name: "bad quality", mutate: func(c *Config) { c.Engine.UpscaleQuality = "4k" }},
		{name: "bad rotation", mutate: func(c *Config) { c.Engine.Rotation = "random" }},
		{name: "zero concurrency", mutate: func(c *Config) { c.Engine.Concurrency = 0 }},
		{name: "too much concurrency", mutate: func(c *Config) { c.Engine.Concurrency = 50 }},
		{name: "zero poll interval", mutate: func(c *Config) { c.Poll.IntervalSeconds = 0 }},
		{name: "shrinking backoff", mutate: func(c *Config) { c.Retry.BackoffFactor = 0.5 }},
		{name: "s3 without bucket", mutate: func(c *Config) { c.Storage.Backend = "s3" }},
		{name: "s3 without keys", mutate: func(c *Config) { c.Storage.Backend = "s3"; c.Storage.Bucket = "b" }},
		{name: "unknown backend", mutate: func(c *Config) { c.Storage.Backend = "ftp" }},
		{name: "unnamed account", mutate: func(c *Config) { c.Accounts = []AccountConfig{{Token: "t"}} }},
		{name: "duplicate account", mutate: func(c *Config) {
			c.Accounts = []AccountConfig{{Name: "a", Token: "t"}, {Name: "a", Token: "u"}}
		}},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			c := DefaultConfig()
			tt.mutate(c)
			if err := c.Validate(); !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}

func TestAccountConfigLoadSecret(t *testing.T) {
	dir := t.TempDir()
	cookiePath := filepath.Join(dir, "cookie.txt")
	if err := os.WriteFile(cookiePath, []byte("  sid=abc  \n"), 0600); err != nil {
		t.Fatal(err)
	}
	curlPath := filepath.Join(dir, "main.curl.sh")
	if err := os.WriteFile(curlPath, []byte(`curl 'https://labs.google/fx' -H 'cookie: sid=fromcurl'`), 0600); err != nil {
		t.Fatal(err)
	}

	tc := []struct {
		name    string
		account AccountConfig
		want    string
		wantErr error
	}{
		{name: "inline cookie", account: AccountConfig{Name: "a", Cookie: " sid=inline "}, want: "sid=inline"},
		{name: "cookie file", account: AccountConfig{Name: "a", CookieFile: cookiePath}, want: "sid=abc"},
		{name: "curl file", account: AccountConfig{Name: "a", CurlFile: curlPath}, want: "sid=fromcurl"},
		{name: "token only", account: AccountConfig{Name: "a", Token: "tok"}, want: ""},
		{name: "nothing", account: AccountConfig{Name: "a"}, wantErr: ErrMissingCredentials},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.account.LoadSecret()
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("LoadSecret() = %q, want %q", got, tt.want)
			}
		})
	}
}
