package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"imagegate/internal/cache"
	"imagegate/internal/compute"
	"imagegate/internal/config"
	"imagegate/internal/fallback"
	"imagegate/internal/handlers"
	"imagegate/internal/httpserver"
	"imagegate/internal/keys"
	"imagegate/internal/metrics"
	"imagegate/internal/origin"
	"imagegate/internal/signature"
	"imagegate/internal/storage"
	"imagegate/pkg/logging/logging"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		log.Fatalf("gateway exited with error: %v", err)
	}
}

func run(args []string) error {
	// ----- Flags -----
	var configPath string
	flagSet := pflag.NewFlagSet("gateway", pflag.ContinueOnError)
	flagSet.StringVarP(&configPath, "config", "c", os.Getenv("IMAGEGATE_CONFIG"), "path to YAML config file (env IMAGEGATE_CONFIG)")
	if err := flagSet.Parse(args); err != nil {
		return err
	}

	// ----- Logger -----
	logger := logging.DefaultLogger()
	defer logger.Sync()

	// ----- Metrics -----
	metrics.Register()

	// ----- Config -----
	cfg, err := config.Load(configPath, os.Getenv)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	policy, err := cfg.CachePolicy()
	if err != nil {
		return err
	}

	logger.Info("loaded config",
		zap.String("config_path", configPath),
		zap.String("port", cfg.Port),
		zap.String("version_id", cfg.Version),
		zap.Stringer("key_encoding", cfg.Strategy()),
		zap.String("cache_backend", cfg.Cache.Backend),
		zap.String("storage_backend", cfg.Storage.Backend),
		zap.String("compute_base_url", cfg.Compute.BaseURL),
		zap.Duration("compute_timeout", cfg.Compute.Timeout),
		zap.Bool("fallback_enabled", cfg.Fallback.Enabled),
		zap.Bool("signature_enabled", cfg.Signature.Enabled),
		zap.Bool("cors_enabled", cfg.CORS.Enabled),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ----- Redis client (only if needed) -----
	var redisClient *redis.Client
	if cfg.Cache.Backend == "redis" {
		redisClient = redis.NewClient(&redis.Options{
			Addr: cfg.Cache.RedisAddr,
		})
		defer redisClient.Close()

		// Fail fast if Redis is misconfigured
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Error("redis connection failed", zap.Error(err))
			return err
		}
		logger.Info("redis connection established",
			zap.String("addr", cfg.Cache.RedisAddr),
		)
	}

	// ----- Edge cache -----
	edgeCache := cache.NewEdgeCache(cache.Config{
		Backend:         cfg.Cache.Backend,
		Prefix:          cfg.Cache.Prefix,
		CleanupInterval: cfg.Cache.CleanupInterval,
		MaxBytes:        cfg.Cache.MaxBytes,
	}, redisClient)
	if closer, ok := edgeCache.(interface{ Close() error }); ok {
		defer closer.Close()
	}
	edgeCache = cache.NewLoggingEdgeCache(edgeCache)

	// ----- Object store + default image -----
	store, fallbackStore, err := newStores(cfg)
	if err != nil {
		return err
	}
	fb, err := fallback.New(cfg.Fallback.Enabled, fallback.Ref{
		Bucket: cfg.FallbackBucket(),
		Key:    cfg.Fallback.Image.Key,
	}, fallbackStore)
	if err != nil {
		return err
	}

	// ----- Compute origin -----
	engine, err := compute.NewClient(compute.Config{
		BaseURL: cfg.Compute.BaseURL,
		Timeout: cfg.Compute.Timeout,
	}, logger)
	if err != nil {
		return err
	}
	if closer, ok := engine.(interface{ Close() error }); ok {
		defer closer.Close()
	}

	resolver, err := origin.NewResolver(origin.Config{
		Store:            store,
		Engine:           engine,
		Fallback:         fb,
		WriteBackTimeout: cfg.Compute.Timeout,
		Logger:           logger,
	})
	if err != nil {
		return err
	}

	// ----- Signature verdict -----
	verifier, err := signature.NewVerifier(cfg.Signature.Enabled, signature.StaticSecret(cfg.Signature.Secret))
	if err != nil {
		return err
	}

	// ----- Handlers -----
	corsOrigin := ""
	if cfg.CORS.Enabled {
		corsOrigin = cfg.CORS.Origin
	}
	imageHandler := handlers.NewImageHandler(
		edgeCache,
		policy,
		cfg.Version,
		keys.NewEncoder(cfg.Strategy()),
		resolver,
		verifier,
		corsOrigin,
	)

	// ----- Router + middleware -----
	r := chi.NewRouter()
	// Storage lookup, compute and write-back each get up to the compute
	// timeout.
	requestTimeout := 3*cfg.Compute.Timeout + 5*time.Second
	httpserver.SetupRouter(r, logger, imageHandler, requestTimeout)

	// ----- HTTP server -----
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      requestTimeout + 5*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	logger.Info("starting gateway",
		zap.String("addr", srv.Addr),
		zap.Duration("request_timeout", requestTimeout),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		// ----- Graceful shutdown -----
		<-gctx.Done()
		logger.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("gateway stopped with error", zap.Error(err))
		return err
	}
	logger.Info("server shutdown complete")
	return nil
}

// newStores returns the storage origin and the store holding the default
// image. Both are MinIO buckets in production and one in-memory store in
// development.
func newStores(cfg *config.Config) (storage.Store, storage.Store, error) {
	if cfg.Storage.Backend != "minio" {
		mem := storage.NewMemoryStore()
		return mem, mem, nil
	}

	primary, err := storage.NewMinioStore(storage.MinioConfig{
		Endpoint:  cfg.Storage.Endpoint,
		Bucket:    cfg.Storage.Bucket,
		AccessKey: cfg.Storage.AccessKey,
		SecretKey: cfg.Storage.SecretKey,
		Region:    cfg.Storage.Region,
		UseSSL:    cfg.Storage.UseSSL,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("storage: %w", err)
	}
	return primary, primary.WithBucket(cfg.FallbackBucket()), nil
}
