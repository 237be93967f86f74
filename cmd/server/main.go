package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/rl1809/mini-storefront/internal/adapter/catalog"
	"github.com/rl1809/mini-storefront/internal/adapter/handler"
	"github.com/rl1809/mini-storefront/internal/adapter/storage"
	"github.com/rl1809/mini-storefront/internal/config"
	"github.com/rl1809/mini-storefront/internal/core/service"
	"github.com/rl1809/mini-storefront/internal/logging"
	"github.com/rl1809/mini-storefront/internal/port"
	"github.com/rl1809/mini-storefront/internal/shutdown"
)

func main() {
	configPath := flag.String("config", os.Getenv("STOREFRONT_CONFIG"), "path to storefront.yml")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.Env)
	if err != nil {
		os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, cancel := shutdown.WithSignals(context.Background())
	defer cancel()

	var (
		slot      port.CartSlot
		idem      port.IdempotencyStore
		publisher port.CartPublisher
		orders    port.OrderRepository
		closers   []func() error
	)
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
		logger.Info("connections closed")
	}()

	// Carts and idempotency: Redis when configured, SQLite otherwise
	if cfg.Storage.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Storage.RedisAddr,
			PoolSize: 100,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			return err
		}
		closers = append(closers, rdb.Close)
		logger.Info("connected to redis", zap.String("addr", cfg.Storage.RedisAddr))

		redisAdapter := storage.NewRedisAdapter(rdb)
		slot, idem, publisher = redisAdapter, redisAdapter, redisAdapter
	}

	var sqliteAdapter *storage.SQLiteAdapter
	if slot == nil || cfg.Storage.MySQLDSN == "" {
		var err error
		sqliteAdapter, err = storage.OpenSQLite(ctx, cfg.Storage.SQLitePath)
		if err != nil {
			return err
		}
		closers = append(closers, sqliteAdapter.Close)
		logger.Info("opened sqlite", zap.String("path", cfg.Storage.SQLitePath))
		if slot == nil {
			slot, idem = sqliteAdapter, sqliteAdapter
		}
		orders = sqliteAdapter
	}

	// Orders: MySQL when configured
	if cfg.Storage.MySQLDSN != "" {
		db, err := sql.Open("mysql", cfg.Storage.MySQLDSN)
		if err != nil {
			return err
		}
		db.SetMaxOpenConns(50)
		db.SetMaxIdleConns(25)
		db.SetConnMaxLifetime(5 * time.Minute)
		closers = append(closers, db.Close)

		if err := db.PingContext(ctx); err != nil {
			return err
		}
		mysqlAdapter := storage.NewMySQLAdapter(db)
		if err := mysqlAdapter.Migrate(ctx); err != nil {
			return err
		}
		orders = mysqlAdapter
		logger.Info("connected to mysql")
	}

	client := catalog.NewClient(catalog.Options{
		BaseURL: cfg.Catalog.BaseURL,
		Timeout: cfg.Catalog.Timeout,
		Logger:  logger,
	})

	cartOpts := []service.CartOption{service.WithCartLogger(logger)}
	if publisher != nil {
		cartOpts = append(cartOpts, service.WithCartPublisher(publisher))
	}
	carts := service.NewCartService(slot, cartOpts...)
	checkout := service.NewCheckoutService(carts, client, idem, orders, cfg.Checkout.QueueSize,
		service.WithCheckoutLogger(logger),
		service.WithQuoteConcurrency(cfg.Checkout.QuoteConcurrency))
	store := service.NewStorefront(client, carts, checkout)

	// Start worker pool
	var wg sync.WaitGroup
	for i := 0; i < cfg.Checkout.Workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			checkout.RunWorker(id)
		}(i)
	}
	logger.Info("started workers", zap.Int("count", cfg.Checkout.Workers))

	var grpcServer *grpc.Server
	if cfg.GRPCAddr != "" {
		grpcServer = grpc.NewServer(grpc.UnaryInterceptor(handler.LoggingInterceptor(logger)))
		handler.RegisterStorefrontServer(grpcServer, handler.NewGRPCHandler(store, logger))

		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			return err
		}
		go func() {
			logger.Info("gRPC server listening", zap.String("addr", cfg.GRPCAddr))
			if err := grpcServer.Serve(lis); err != nil {
				logger.Error("gRPC server error", zap.Error(err))
			}
		}()
	}

	var httpServer *http.Server
	if cfg.HTTPAddr != "" {
		httpHandler := handler.NewHTTPHandler(store, client.Busy().Busy, logger)
		httpServer = &http.Server{
			Addr:              cfg.HTTPAddr,
			Handler:           httpHandler.Routes(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			logger.Info("HTTP server listening", zap.String("addr", cfg.HTTPAddr))
			if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				logger.Error("HTTP server error", zap.Error(err))
				cancel()
			}
		}()
	}

	// Graceful shutdown
	<-ctx.Done()
	logger.Info("shutting down...")

	if httpServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		httpServer.Shutdown(shutdownCtx)
		logger.Info("HTTP server stopped")
	}

	if grpcServer != nil {
		grpcServer.GracefulStop()
		logger.Info("gRPC server stopped")
	}

	// Close order queue and wait for workers
	checkout.Close()
	wg.Wait()
	logger.Info("workers stopped")

	return nil
}
