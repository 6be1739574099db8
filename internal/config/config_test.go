package config

import (
	"os"
	"testing"
)

func TestLoad(t *testing.T) {
	cleanup := setEnvs(t, map[string]string{
		"ZMETA_UDP_PORT": "5005",
	})
	defer cleanup()

	t.Run("defaults", func(t *testing.T) {
		cfg, err := Load(Overrides{EnvFile: "nonexistent.env"})
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if cfg.HTTPAddr != ":8000" {
			t.Errorf("HTTPAddr = %q, want :8000", cfg.HTTPAddr)
		}
		if cfg.LogLevel != "info" {
			t.Errorf("LogLevel = %q, want info", cfg.LogLevel)
		}
		if cfg.UDPQueueMax != 4096 {
			t.Errorf("UDPQueueMax = %d, want 4096", cfg.UDPQueueMax)
		}
		if cfg.WSQueue != 64 {
			t.Errorf("WSQueue = %d, want 64", cfg.WSQueue)
		}
		if cfg.AuthHeader != "x-zmeta-secret" {
			t.Errorf("AuthHeader = %q, want x-zmeta-secret", cfg.AuthHeader)
		}
		if cfg.AuthEnabled() {
			t.Error("AuthEnabled() = true with no shared secret configured")
		}
	})

	t.Run("cli_overrides_take_priority", func(t *testing.T) {
		cfg, err := Load(Overrides{
			EnvFile:   "nonexistent.env",
			HTTPAddr:  ":9090",
			LogLevel:  "debug",
			UDPHost:   "127.0.0.1",
			RulesFile: "/tmp/rules.yaml",
		})
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if cfg.HTTPAddr != ":9090" {
			t.Errorf("HTTPAddr = %q, want :9090", cfg.HTTPAddr)
		}
		if cfg.LogLevel != "debug" {
			t.Errorf("LogLevel = %q, want debug", cfg.LogLevel)
		}
		if cfg.UDPHost != "127.0.0.1" {
			t.Errorf("UDPHost = %q, want 127.0.0.1", cfg.UDPHost)
		}
		if cfg.RulesFile != "/tmp/rules.yaml" {
			t.Errorf("RulesFile = %q, want /tmp/rules.yaml", cfg.RulesFile)
		}
	})

	t.Run("shared_secret_enables_auth", func(t *testing.T) {
		cleanup := setEnvs(t, map[string]string{"ZMETA_SHARED_SECRET": "s3cr3t"})
		defer cleanup()
		cfg, err := Load(Overrides{EnvFile: "nonexistent.env"})
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if !cfg.AuthEnabled() {
			t.Error("AuthEnabled() = false with shared secret set")
		}
	})
}

func TestCORSOriginList(t *testing.T) {
	tests := []struct {
		name   string
		origins string
		want   []string
	}{
		{name: "star_means_allow_all", origins: "*", want: nil},
		{name: "empty_means_deny_all", origins: "", want: []string{}},
		{name: "single_origin", origins: "https://a.example", want: []string{"https://a.example"}},
		{name: "comma_separated", origins: "https://a.example, https://b.example", want: []string{"https://a.example", "https://b.example"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Config{CORSOrigins: tt.origins}
			got := c.CORSOriginList()
			if len(got) != len(tt.want) {
				t.Fatalf("CORSOriginList(%q) = %v, want %v", tt.origins, got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("CORSOriginList(%q)[%d] = %q, want %q", tt.origins, i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestRecorderRetention(t *testing.T) {
	t.Run("empty_disables_pruning", func(t *testing.T) {
		c := &Config{}
		_, ok, err := c.RecorderRetention()
		if err != nil || ok {
			t.Fatalf("RecorderRetention() = ok=%v err=%v, want ok=false err=nil", ok, err)
		}
	})

	t.Run("zero_is_config_error", func(t *testing.T) {
		c := &Config{RecorderRetentionHours: "0"}
		if _, _, err := c.RecorderRetention(); err == nil {
			t.Error("expected ConfigError for retention=0")
		}
	})

	t.Run("negative_is_config_error", func(t *testing.T) {
		c := &Config{RecorderRetentionHours: "-1"}
		if _, _, err := c.RecorderRetention(); err == nil {
			t.Error("expected ConfigError for negative retention")
		}
	})

	t.Run("valid_value", func(t *testing.T) {
		c := &Config{RecorderRetentionHours: "48"}
		d, ok, err := c.RecorderRetention()
		if err != nil || !ok {
			t.Fatalf("RecorderRetention() = ok=%v err=%v, want ok=true err=nil", ok, err)
		}
		if d.Hours() != 48 {
			t.Errorf("duration = %v, want 48h", d)
		}
	})
}

// setEnvs sets environment variables and returns a cleanup function.
func setEnvs(t *testing.T, envs map[string]string) func() {
	t.Helper()
	originals := make(map[string]string)
	unset := make([]string, 0)

	for k, v := range envs {
		if orig, ok := os.LookupEnv(k); ok {
			originals[k] = orig
		} else {
			unset = append(unset, k)
		}
		os.Setenv(k, v)
	}

	return func() {
		for k, v := range originals {
			os.Setenv(k, v)
		}
		for _, k := range unset {
			os.Unsetenv(k)
		}
	}
}
