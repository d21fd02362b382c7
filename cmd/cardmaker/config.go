package main

import (
	"fmt"
	"os"
	"time"

	"github.com/alnah/go-cardmaker/internal/yamlutil"
)

// serverConfig is the resolved server configuration: defaults, overridden
// by the config file, overridden by flags.
type serverConfig struct {
	Addr         string        `yaml:"addr"`
	GamesDir     string        `yaml:"gamesDir"`
	TemplatesDir string        `yaml:"templatesDir"`
	OutputDir    string        `yaml:"outputDir"`
	PublicURL    string        `yaml:"publicUrl"`
	PoolSize     int           `yaml:"poolSize"`
	Timeout      time.Duration `yaml:"timeout"`
	WarmUp       bool          `yaml:"warmUp"`
}

func defaultConfig() serverConfig {
	return serverConfig{
		Addr:         "127.0.0.1:3000",
		GamesDir:     "games",
		TemplatesDir: "templates",
		OutputDir:    "output",
		Timeout:      30 * time.Second,
	}
}

// loadConfig reads a YAML config file, rejecting unknown fields so typos
// fail loudly instead of silently using defaults.
func loadConfig(path string) (serverConfig, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config: %w", err)
	}
	if err := yamlutil.UnmarshalStrict(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %q: %w", path, err)
	}
	return cfg, nil
}

// applyFlags overlays set flags onto the config.
func applyFlags(cfg serverConfig, f *serveFlags) (serverConfig, error) {
	if f.addr != "" {
		cfg.Addr = f.addr
	}
	if f.gamesDir != "" {
		cfg.GamesDir = f.gamesDir
	}
	if f.templatesDir != "" {
		cfg.TemplatesDir = f.templatesDir
	}
	if f.outputDir != "" {
		cfg.OutputDir = f.outputDir
	}
	if f.publicURL != "" {
		cfg.PublicURL = f.publicURL
	}
	if f.poolSize > 0 {
		cfg.PoolSize = f.poolSize
	}
	if f.timeout != "" {
		d, err := time.ParseDuration(f.timeout)
		if err != nil {
			return cfg, fmt.Errorf("invalid --timeout %q: %w", f.timeout, err)
		}
		cfg.Timeout = d
	}
	if f.warmUp {
		cfg.WarmUp = true
	}
	if cfg.PublicURL == "" {
		cfg.PublicURL = "http://" + cfg.Addr
	}
	return cfg, nil
}
