package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/udisondev/bnetgo/internal/bncs"
	"github.com/udisondev/bnetgo/internal/config"
	"github.com/udisondev/bnetgo/internal/db"
)

const ConfigPath = "config/bncs.yaml"

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("shutting down", "signal", sig)
		cancel()
	}()

	if err := run(ctx); err != nil {
		slog.Error("fatal", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	slog.SetDefault(log)

	slog.Info("bnetgo chat server starting")

	cfgPath := ConfigPath
	if p := os.Getenv("BNETGO_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.LoadChatServer(cfgPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	slog.Info("config loaded", "bind", cfg.BindAddress, "port", cfg.Port,
		"auto_create", cfg.AutoCreateAccounts, "realm", cfg.Realm.Name)

	database, err := db.New(ctx, cfg.Database.DSN())
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer database.Close()
	slog.Info("database connected")

	if err := db.RunMigrations(ctx, cfg.Database.DSN()); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	slog.Info("database migrations applied")

	server := bncs.NewServer(log, cfg, database)
	if err := server.Run(ctx); err != nil {
		return fmt.Errorf("chat server: %w", err)
	}

	return nil
}
