// Command drivepool serves temporary download links brokered across a fleet
// of drive accounts.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"

	"github.com/cecil-the-coder/drivepool/pkg/backend"
	"github.com/cecil-the-coder/drivepool/pkg/broker"
	"github.com/cecil-the-coder/drivepool/pkg/config"
	"github.com/cecil-the-coder/drivepool/pkg/drive"
	"github.com/cecil-the-coder/drivepool/pkg/pool"
	"github.com/cecil-the-coder/drivepool/pkg/urlcache"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		log.Fatal(err)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := log.StandardLogger()
	if err := cfg.Logging.Apply(logger); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	clients := make([]pool.Client, 0, len(cfg.Providers))
	for _, pc := range cfg.Providers {
		clients = append(clients, drive.NewClient(pc, drive.ClientOptions{Logger: logger}))
	}

	p, err := pool.New(ctx, clients, pool.Options{
		PauseDuration:   cfg.Pool.PauseDuration,
		ExcludeUnrooted: cfg.Pool.ExcludeUnrooted,
		FailOnUnrooted:  cfg.Pool.FailOnUnrooted,
		Logger:          logger,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize provider pool: %w", err)
	}

	b := broker.New(p, urlcache.New(urlcache.Config{Freshness: cfg.Pool.CacheFreshness}), broker.Options{
		RefreshEvery:     cfg.Pool.RefreshEvery,
		RetryInterval:    cfg.Pool.RetryInterval,
		MaxRefreshPasses: cfg.Pool.MaxRefreshPasses,
		Writer:           config.NewWriter(configPath),
		Logger:           logger,
	})

	// Initialization already rotated every refresh token once
	if err := b.Persist(ctx); err != nil {
		logger.Errorf("failed to persist rotated tokens: %v", err)
	}

	b.Start(ctx)
	defer b.Stop()

	server := backend.NewServer(*cfg, b, logger)
	return server.ListenAndServeWithGracefulShutdown(ctx.Done())
}
