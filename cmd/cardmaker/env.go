package main

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Environment variable names. Precedence: defaults < config file < env <
// flags.
const (
	envConfig       = "CARDMAKER_CONFIG"
	envAddr         = "CARDMAKER_ADDR"
	envGamesDir     = "CARDMAKER_GAMES_DIR"
	envTemplatesDir = "CARDMAKER_TEMPLATES_DIR"
	envOutputDir    = "CARDMAKER_OUTPUT_DIR"
	envPublicURL    = "CARDMAKER_PUBLIC_URL"
	envPoolSize     = "CARDMAKER_POOL_SIZE"
	envTimeout      = "CARDMAKER_TIMEOUT"
)

// applyEnv overlays set environment variables onto the config.
func applyEnv(cfg serverConfig) (serverConfig, error) {
	if v := os.Getenv(envAddr); v != "" {
		cfg.Addr = v
	}
	if v := os.Getenv(envGamesDir); v != "" {
		cfg.GamesDir = v
	}
	if v := os.Getenv(envTemplatesDir); v != "" {
		cfg.TemplatesDir = v
	}
	if v := os.Getenv(envOutputDir); v != "" {
		cfg.OutputDir = v
	}
	if v := os.Getenv(envPublicURL); v != "" {
		cfg.PublicURL = v
	}
	if v := os.Getenv(envPoolSize); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return cfg, fmt.Errorf("invalid %s %q", envPoolSize, v)
		}
		cfg.PoolSize = n
	}
	if v := os.Getenv(envTimeout); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return cfg, fmt.Errorf("invalid %s %q: %w", envTimeout, v, err)
		}
		cfg.Timeout = d
	}
	return cfg, nil
}

// configPath resolves the config file location: the flag wins, then the
// environment, then none.
func configPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	return os.Getenv(envConfig)
}
