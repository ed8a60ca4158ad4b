package main

import (
	"context"
	"database/sql"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/go-sql-driver/mysql"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/rl1809/flash-sale-gate/internal/adapter/handler"
	"github.com/rl1809/flash-sale-gate/internal/adapter/storage"
	"github.com/rl1809/flash-sale-gate/internal/config"
	"github.com/rl1809/flash-sale-gate/internal/core/service"
	"github.com/rl1809/flash-sale-gate/internal/metrics"
	"github.com/rl1809/flash-sale-gate/internal/tracing"
)

func main() {
	cfg, err := config.Load(os.Getenv(config.EnvConfigFile))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	logger := zerolog.New(os.Stdout).With().Timestamp().Str("service", cfg.ServiceName).Logger()
	log.Logger = logger

	if err := run(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("server exited")
	}
	logger.Info().Msg("server stopped")
}

func run(cfg config.Config, logger zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tp, err := tracing.InitTracerProvider(cfg.ServiceName, cfg.JaegerEndpoint)
	if err != nil {
		return errors.Wrap(err, "init tracer provider")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("failed to flush traces")
		}
	}()

	db, err := sql.Open("mysql", cfg.MySQL.DSN)
	if err != nil {
		return errors.Wrap(err, "open mysql")
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.MySQL.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MySQL.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.MySQL.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		return errors.Wrap(err, "ping mysql")
	}
	logger.Info().Msg("connected to mysql")

	if cfg.MySQL.AutoMigrate {
		if err := storage.MigrateDatabase(db); err != nil {
			return err
		}
		logger.Info().Msg("database migrated")
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	})
	defer rdb.Close()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return errors.Wrap(err, "ping redis")
	}
	logger.Info().Str("addr", cfg.Redis.Addr).Msg("connected to redis")

	m := metrics.New(prometheus.DefaultRegisterer)

	svc := service.NewPurchaseService(
		storage.NewRedisAdapter(rdb, cfg.Redis.KeyPrefix),
		storage.NewMySQLAdapter(db),
		service.WithLogger(logger),
		service.WithMetrics(m),
		service.WithPurchaseTimeout(cfg.PurchaseTimeout),
		service.WithCompensationTimeout(cfg.CompensationTimeout),
	)

	grpcServer := grpc.NewServer(grpc.UnaryInterceptor(handler.LoggingInterceptor(logger)))
	handler.RegisterStockGateServer(grpcServer, handler.NewGRPCHandler(svc))

	httpServer := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: handler.NewRouter(handler.NewHTTPHandler(svc), logger, promhttp.Handler()),
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			return errors.Wrapf(err, "listen on %s", cfg.GRPCAddr)
		}
		logger.Info().Str("addr", cfg.GRPCAddr).Msg("gRPC server listening")
		return grpcServer.Serve(lis)
	})

	g.Go(func() error {
		logger.Info().Str("addr", cfg.HTTPAddr).Msg("HTTP server listening")
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("HTTP shutdown failed")
		}
		grpcServer.GracefulStop()
		return nil
	})

	return g.Wait()
}
