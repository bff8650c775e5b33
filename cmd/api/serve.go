package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"horizon.shop/internal/auth"
	"horizon.shop/internal/config"
	"horizon.shop/internal/httpapi"
	"horizon.shop/internal/obs"
	"horizon.shop/internal/payment"
	"horizon.shop/internal/shop"
	"horizon.shop/internal/stats"
	"horizon.shop/internal/store"
	"horizon.shop/internal/store/cache"
	"horizon.shop/internal/store/memory"
	"horizon.shop/internal/store/pg"
	"horizon.shop/internal/stream"
)

func serveCmd(configPath *string) *cobra.Command {
	var migrate bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the gRPC health service",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg, migrate)
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", false, "apply pending database migrations before serving")
	return cmd
}

func serve(parent context.Context, cfg *config.Config, migrate bool) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	obs.Configure(nil, cfg.LogLevel)
	obs.Init()
	build := obs.InitBuildInfo(version, commit)
	log := obs.Logger()

	st, err := openStore(cfg, migrate)
	if err != nil {
		return err
	}
	defer func() {
		if err := st.Close(); err != nil {
			log.WithError(err).Warn("store_close_failed")
		}
	}()

	tokens, err := auth.NewTokenService(cfg.TokenSecret, cfg.TokenTTL)
	if err != nil {
		return err
	}
	events := stream.New()
	svc := shop.New(st, tokens, newProcessor(cfg), events)

	proxies, err := httpapi.ParseTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		return err
	}
	api := httpapi.New(httpapi.Deps{
		Shop:         svc,
		Gate:         auth.NewGate(tokens, auth.NewResolver(st.Users)),
		Events:       events,
		Ready:        st,
		Version:      build.Version,
		RateBurst:    cfg.RateBurst,
		RatePerSec:   cfg.RatePerSec,
		MaxBodyBytes: cfg.MaxBodyBytes,
		CORSOrigins:  cfg.CORSOrigins,

		TrustedProxies: proxies,
	})

	job, err := stats.New(cfg.StatsSchedule, cfg.StoreTimeout, st.All()...)
	if err != nil {
		return fmt.Errorf("stats schedule: %w", err)
	}
	job.Start()

	health := httpapi.NewHealthService(st, 10*time.Second)
	go health.Run(ctx)

	grpcSrv := grpc.NewServer()
	healthpb.RegisterHealthServer(grpcSrv, health.Server())
	grpcLis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return fmt.Errorf("grpc listen: %w", err)
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		// no WriteTimeout: /orders/stream is long-lived
		IdleTimeout: 60 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		if err := grpcSrv.Serve(grpcLis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			errCh <- fmt.Errorf("grpc serve: %w", err)
		}
	}()
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http serve: %w", err)
		}
	}()
	log.WithFields(logrus.Fields{
		"version":   build.Version,
		"commit":    build.Commit,
		"http_addr": cfg.HTTPAddr,
		"grpc_addr": cfg.GRPCAddr,
	}).Info("horizon_api_started")

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
	}
	log.Info("shutting_down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("http_shutdown_failed")
	}
	grpcSrv.GracefulStop()
	job.Stop(shutdownCtx)
	log.Info("stopped")
	return runErr
}

// swapped in tests
var (
	openBackend   = pg.Open
	runMigrations = migrateUp
)

func openStore(cfg *config.Config, migrate bool) (*store.Store, error) {
	log := obs.Logger()
	var st *store.Store
	if cfg.DatabaseURL == "" {
		log.Warn("database_url not set, using in-memory store")
		st = memory.Open()
	} else {
		backend, err := openBackend(cfg.DatabaseURL, cfg.StoreTimeout)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		if migrate {
			if err := runMigrations(backend); err != nil {
				_ = backend.Close()
				return nil, err
			}
		}
		st = store.New(backend)
	}

	opts := cache.Options{TTL: cfg.CacheTTL, Capacity: cfg.CacheCapacity}
	if cfg.RedisURL != "" {
		client, err := cache.NewRedis(cfg.RedisURL)
		if err != nil {
			_ = st.Close()
			return nil, fmt.Errorf("redis url: %w", err)
		}
		opts.Redis = client
	}
	st.Products = cache.Wrap(st.Products, opts)
	return st, nil
}

func migrateUp(backend *pg.Backend) error {
	m, err := pg.NewMigrator(backend.DB())
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

func newProcessor(cfg *config.Config) payment.Processor {
	p, err := payment.NewStripe(payment.StripeConfig{
		SecretKey: cfg.PaymentSecretKey,
		BaseURL:   cfg.PaymentAPIURL,
		Currency:  cfg.PaymentCurrency,
		Timeout:   cfg.PaymentTimeout,
	})
	if err != nil {
		obs.Logger().WithError(err).Warn("payment processor disabled")
		return payment.Disabled{}
	}
	return p
}
