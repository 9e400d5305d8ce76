// Command shelfd serves a shelf catalog over HTTP.
//
// Configuration comes from a JSON file (default config.json in the
// working directory):
//
//	{
//	  "address": "127.0.0.1",
//	  "port": 8080,
//	  "storage_root": "data",
//	  "database": "shelf.db",
//	  "log_level": "info",
//	  "owner_id": 1
//	}
//
// shelfd runs single-user: every request is attributed to owner_id.
// Multi-user deployments plug their own Authenticator into httpapi.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/meigma/shelf"
	"github.com/meigma/shelf/httpapi"
	"github.com/meigma/shelf/registry"
)

type config struct {
	Address     string `json:"address"`
	Port        int    `json:"port"`
	StorageRoot string `json:"storage_root"`
	Database    string `json:"database"`
	LogLevel    string `json:"log_level"`
	OwnerID     int64  `json:"owner_id"`
}

func loadConfig(path string) (config, error) {
	cfg := config{
		Address:     "127.0.0.1",
		Port:        8080,
		StorageRoot: "data",
		Database:    "shelf.db",
		LogLevel:    "info",
		OwnerID:     1,
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return config{}, fmt.Errorf("reading config: %w", err)
	}
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return config{}, fmt.Errorf("parsing config: %w", err)
	}
	return cfg, nil
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "shelfd:", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "config.json", "path to JSON configuration file")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		return fmt.Errorf("parsing log_level: %w", err)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg, err := registry.Open(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer reg.Close()

	if err := reg.EnsureUser(ctx, cfg.OwnerID); err != nil {
		return err
	}

	library, err := shelf.New(shelf.Config{StorageRoot: cfg.StorageRoot}, reg,
		shelf.WithLogger(logger))
	if err != nil {
		return err
	}

	api := httpapi.New(library, httpapi.StaticAuthenticator(cfg.OwnerID),
		httpapi.WithLogger(logger))

	srv := &http.Server{
		Addr:              net.JoinHostPort(cfg.Address, strconv.Itoa(cfg.Port)),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	logger.Info("listening", slog.String("addr", srv.Addr))

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		logger.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}
