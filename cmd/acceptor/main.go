package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/a783925458/phantom-acceptor/internal/config"
	"github.com/a783925458/phantom-acceptor/internal/dispatcher"
	"github.com/a783925458/phantom-acceptor/internal/gateway"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}
	logger.Info("phantom-acceptor starting",
		zap.String("listen", cfg.ListenAddr),
		zap.String("ws", cfg.WSAddr),
		zap.String("internalAPI", cfg.InternalAPIAddr),
		zap.String("dispatcherSource", cfg.DispatcherSource()),
		zap.Int("workers", cfg.RouterWorkers),
	)

	gw, err := gateway.New(cfg, logger)
	if err != nil {
		logger.Fatal("failed to create gateway", zap.Error(err))
	}

	src, closeSrc := dispatcherSource(cfg, logger)
	defer closeSrc()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return gw.RunDiscovery(ctx, src)
	})

	if cfg.ListenAddr != "" {
		ln, err := net.Listen("tcp", cfg.ListenAddr)
		if err != nil {
			logger.Fatal("listen failed", zap.String("addr", cfg.ListenAddr), zap.Error(err))
		}
		logger.Info("tcp listener ready", zap.String("addr", ln.Addr().String()))
		g.Go(func() error {
			return gw.ServeTCP(ctx, ln)
		})
	}

	servers := []*http.Server{{
		Addr:         cfg.InternalAPIAddr,
		Handler:      gw.InternalHandler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 20 * time.Second,
	}}
	if cfg.WSAddr != "" {
		mux := http.NewServeMux()
		mux.Handle(cfg.WSPath, gw.WebSocketHandler())
		servers = append(servers, &http.Server{
			Addr:              cfg.WSAddr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		})
	}
	for _, srv := range servers {
		srv := srv
		g.Go(func() error {
			logger.Info("http listening", zap.String("addr", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}

	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		for _, srv := range servers {
			srv.Shutdown(shutdownCtx)
		}
		return gw.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("acceptor stopped with error", zap.Error(err))
		os.Exit(1)
	}
}

func dispatcherSource(cfg *config.Config, logger *zap.Logger) (dispatcher.Source, func()) {
	logger = logger.Named("discovery")
	switch cfg.DispatcherSource() {
	case "file":
		return dispatcher.FileSource{Path: cfg.DispatchersFile, Logger: logger}, func() {}
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		return dispatcher.RedisSource{
			Client:   client,
			Key:      cfg.DispatcherRegistryKey,
			Interval: cfg.DispatcherRefreshInterval,
			Logger:   logger,
		}, func() { client.Close() }
	default:
		if len(cfg.DispatcherAddrs) == 0 {
			logger.Warn("no dispatchers configured")
		}
		return dispatcher.Static(cfg.DispatcherAddrs), func() {}
	}
}
