package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	_ "go.uber.org/automaxprocs"

	cardmaker "github.com/alnah/go-cardmaker"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	flags, _, err := parseFlags(args)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		Prefix:          "cardmaker",
	})
	switch {
	case flags.verbose:
		logger.SetLevel(log.DebugLevel)
	case flags.quiet:
		logger.SetLevel(log.ErrorLevel)
	}

	cfg, err := loadConfig(configPath(flags.config))
	if err != nil {
		logger.Error("loading config", "error", err)
		return 1
	}
	cfg, err = applyEnv(cfg)
	if err != nil {
		logger.Error("resolving config", "error", err)
		return 1
	}
	cfg, err = applyFlags(cfg, flags)
	if err != nil {
		logger.Error("resolving config", "error", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := serve(ctx, cfg, logger); err != nil {
		logger.Error("server stopped", "error", err)
		return 1
	}
	return 0
}

func serve(ctx context.Context, cfg serverConfig, logger *log.Logger) error {
	games := cardmaker.NewFSGameStore(cfg.GamesDir, cfg.PublicURL+"/games")
	rows := cardmaker.NewSheetsRowSource(nil)

	opts := []cardmaker.Option{
		cardmaker.WithLogger(logger),
		cardmaker.WithTimeout(cfg.Timeout),
		cardmaker.WithOutputDir(cfg.OutputDir),
		cardmaker.WithTemplateStore(cardmaker.NewFSTemplateStore(cfg.TemplatesDir)),
		cardmaker.WithArtworkStore(games),
		cardmaker.WithProjectStore(games),
		cardmaker.WithRowSource(rows),
	}
	if cfg.PoolSize > 0 {
		opts = append(opts, cardmaker.WithPoolSize(cfg.PoolSize))
	}
	svc := cardmaker.New(opts...)
	defer func() {
		if err := svc.Close(); err != nil {
			logger.Warn("closing browser", "error", err)
		}
	}()

	// Warm-up failure is not fatal: the pool launches lazily on the first
	// render.
	if cfg.WarmUp {
		logger.Info("warming up browser pool")
		if err := svc.WarmUp(ctx); err != nil {
			logger.Warn("pool warm-up failed, will retry lazily", "error", err)
		}
	}

	server := cardmaker.NewServer(svc, games, rows, logger, cardmaker.ServerConfig{
		Addr:      cfg.Addr,
		OutputDir: cfg.OutputDir,
	})

	logger.Info("listening", "addr", cfg.Addr, "games", cfg.GamesDir, "templates", cfg.TemplatesDir)
	if err := server.Run(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	logger.Info("shut down cleanly")
	return nil
}
