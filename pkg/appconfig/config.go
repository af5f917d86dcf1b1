// Package appconfig loads the daemon's on-disk YAML configuration: the
// model-server binary/weights to drive, the loopback port it listens
// on, and the knobs that size LlmClient and RateLimiter. Flags override
// whatever the file sets, following the teacher's own
// flags-override-config layering.
package appconfig

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full set of daemon-level settings, as read from a YAML
// file on disk (or defaulted when no file is present).
type Config struct {
	ListenAddr string `yaml:"listen_addr"`
	BaseDir    string `yaml:"base_dir"`

	Model ModelConfig `yaml:"model"`

	RateLimitBudget int           `yaml:"rate_limit_budget"`
	RateLimitWindow time.Duration `yaml:"rate_limit_window"`
}

// ModelConfig configures the subprocess LlmClient drives.
type ModelConfig struct {
	BinaryPath      string        `yaml:"binary_path"`
	ModelPath       string        `yaml:"model_path"`
	EmbeddingModel  string        `yaml:"embedding_model"`
	Port            int           `yaml:"port"`
	ContextSize     int           `yaml:"context_size"`
	GPULayers       int           `yaml:"gpu_layers"`
	HealthTimeout   time.Duration `yaml:"health_timeout"`
	StartupTimeout  time.Duration `yaml:"startup_timeout"`
	IdleShutdown    time.Duration `yaml:"idle_shutdown"`
}

// Default returns the configuration used when no file is supplied: a
// loopback server on :8080, a single local model-server subprocess on
// port 8081, and a generous rate-limit budget suitable for one
// interactive user.
func Default() Config {
	return Config{
		ListenAddr: "127.0.0.1:8080",
		Model: ModelConfig{
			BinaryPath:     "llama-server",
			Port:           8081,
			ContextSize:    4096,
			GPULayers:      0,
			HealthTimeout:  5 * time.Second,
			StartupTimeout: 30 * time.Second,
			IdleShutdown:   5 * time.Minute,
		},
		RateLimitBudget: 20,
		RateLimitWindow: time.Minute,
	}
}

// Load reads a YAML config file at path, applying it on top of
// Default() so a partial file only overrides the fields it sets. A
// missing file is not an error: the caller gets Default() back
// unmodified, matching a fresh install with no config written yet.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("appconfig: reading %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("appconfig: parsing %s: %w", path, err)
	}

	return cfg, nil
}
