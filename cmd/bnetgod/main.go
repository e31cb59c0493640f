// Command bnetgod runs the chat server and the realm server in one process,
// sharing a single database connection pool.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/udisondev/bnetgo/internal/bncs"
	"github.com/udisondev/bnetgo/internal/config"
	"github.com/udisondev/bnetgo/internal/db"
	"github.com/udisondev/bnetgo/internal/realm"
)

const (
	chatConfigPath  = "config/bncs.yaml"
	realmConfigPath = "config/realmd.yaml"
)

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

	slog.Info("bnetgo starting")

	chatCfg, err := config.LoadChatServer(chatConfigPath)
	if err != nil {
		return fmt.Errorf("loading chat config: %w", err)
	}
	realmCfg, err := config.LoadRealmServer(realmConfigPath)
	if err != nil {
		return fmt.Errorf("loading realm config: %w", err)
	}

	database, err := db.New(ctx, chatCfg.Database.DSN())
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer database.Close()
	slog.Info("database connected")

	if err := db.RunMigrations(ctx, chatCfg.Database.DSN()); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	slog.Info("database migrations applied")

	chatServer := bncs.NewServer(log, chatCfg, database)
	realmServer := realm.NewServer(log, realmCfg, database)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := chatServer.Run(gctx); err != nil {
			return fmt.Errorf("chat server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		if err := realmServer.Run(gctx); err != nil {
			return fmt.Errorf("realm server: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}
