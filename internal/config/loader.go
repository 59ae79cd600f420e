package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Load reads and parses configuration from the given YAML file path, then
// applies defaults and environment overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}

	applyDefaults(&cfg)
	applyEnv(&cfg)
	return &cfg, nil
}

// LoadDefault searches standard locations and loads the first config found.
// Search order: ./siteforge.yaml, ~/.siteforge/config.yaml. When no file
// exists, a default config is returned so the service can run on env vars
// alone.
func LoadDefault() (*Config, error) {
	candidates := []string{"siteforge.yaml"}

	home, err := os.UserHomeDir()
	if err == nil {
		candidates = append(candidates, filepath.Join(home, ".siteforge", "config.yaml"))
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}

	var cfg Config
	applyDefaults(&cfg)
	applyEnv(&cfg)
	return &cfg, nil
}

// applyDefaults fills unset fields with working defaults.
func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8000
	}
	if cfg.GitHub.RepoPrefix == "" {
		cfg.GitHub.RepoPrefix = "llm-app"
	}
	if cfg.Attachments.MaxBytes == 0 {
		cfg.Attachments.MaxBytes = 5 << 20
	}
	if len(cfg.Generation.Backends) == 0 {
		cfg.Generation.Backends = []Backend{
			{Name: "claude", Command: "claude", Args: []string{"--print", "--model", "haiku"}},
		}
	}
	for i := range cfg.Generation.Backends {
		b := &cfg.Generation.Backends[i]
		if b.Name == "" {
			b.Name = b.Command
		}
	}
}

// applyEnv loads .env if present and pulls credentials from the
// environment. Env values always win for credentials; the listen address
// is overridable for container deployments.
func applyEnv(cfg *Config) {
	// Missing .env is fine.
	_ = godotenv.Load()

	if v := os.Getenv("SITEFORGE_SECRET"); v != "" {
		cfg.Secret = v
	}
	if v := os.Getenv("GITHUB_TOKEN"); v != "" {
		cfg.GitHubToken = v
	}
	if v := os.Getenv("GITHUB_OWNER"); v != "" {
		cfg.GitHub.Owner = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.EventsDSN = v
	}
	if v := os.Getenv("HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("PORT"); v != "" {
		var port int
		if _, err := fmt.Sscanf(v, "%d", &port); err == nil && port > 0 {
			cfg.Server.Port = port
		}
	}
}
