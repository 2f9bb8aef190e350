package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	protocolconfig "floorvault/config"
	"floorvault/core/events"
	"floorvault/core/market"
	"floorvault/core/state"
	"floorvault/observability"
	"floorvault/observability/logging"
	telemetry "floorvault/observability/otel"
	"floorvault/services/marketd/config"
	"floorvault/services/marketd/server"
	"floorvault/storage"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "services/marketd/config.yaml", "path to marketd config")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Fatalf("load .env: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfgPath); err != nil {
		log.Fatalf("marketd: %v", err)
	}
}

func run(ctx context.Context, cfgPath string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	env := strings.TrimSpace(os.Getenv("FLOOR_ENV"))
	logger := logging.Setup("marketd", env, logging.Options{
		Level:      cfg.Logging.Level,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	})

	shutdownTelemetry, err := telemetry.Init(ctx, telemetry.ConfigFromEnv("marketd", env))
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown failed", slog.Any("error", err))
		}
	}()

	protocol, err := protocolconfig.Load(cfg.ProtocolConfig)
	if err != nil {
		return fmt.Errorf("load protocol config: %w", err)
	}
	modules, err := protocol.Modules.Addresses()
	if err != nil {
		return err
	}

	db, err := storage.NewLevelDB(filepath.Join(protocol.DataDir, "state"))
	if err != nil {
		return fmt.Errorf("open state: %w", err)
	}
	defer db.Close()

	feed := server.NewBroadcaster(cfg.Events.Buffer)
	m, err := market.New(db, market.Params{
		Vault:     modules.Vault,
		Listings:  modules.Listings,
		Protected: modules.Protected,
		FeeSink:   modules.FeeSink,
		Pauses:    protocol.Pauses,
		Now:       func() int64 { return time.Now().Unix() },
	}, state.WithSink(events.Fanout{feed, observability.Events()}))
	if err != nil {
		return fmt.Errorf("build market: %w", err)
	}
	if err := registerCollections(m, protocol.Collections, logger); err != nil {
		return err
	}

	srv, err := server.New(m, feed, server.Config{
		ServiceName: "marketd",
		Auth:        cfg.Auth,
		RateLimit:   cfg.RateLimit,
	}, logger)
	if err != nil {
		return fmt.Errorf("build server: %w", err)
	}
	httpServer := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("marketd listening", slog.String("address", cfg.ListenAddress))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("marketd shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// registerCollections registers every configured collection that the state
// does not know yet.
func registerCollections(m *market.Market, collections []protocolconfig.Collection, logger *slog.Logger) error {
	return m.Apply(func() error {
		for _, c := range collections {
			addr, err := c.ParsedAddress()
			if err != nil {
				return err
			}
			ok, err := m.Custody.IsCollectionInitialized(addr)
			if err != nil {
				return err
			}
			if ok {
				continue
			}
			if err := m.Custody.RegisterCollection(addr, c.Denomination); err != nil {
				return fmt.Errorf("register %s: %w", addr.Hex(), err)
			}
			logger.Info("collection registered", slog.String("collection", addr.Hex()), slog.Int("denomination", int(c.Denomination)))
		}
		return nil
	})
}
