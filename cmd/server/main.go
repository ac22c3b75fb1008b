package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/wzuhqa/flashstock/config"
	"github.com/wzuhqa/flashstock/internal/adapter/handler"
	"github.com/wzuhqa/flashstock/internal/adapter/storage"
	"github.com/wzuhqa/flashstock/internal/core/service"
	"github.com/wzuhqa/flashstock/internal/ratelimit"
	"github.com/wzuhqa/flashstock/pkg/logger"
	"github.com/wzuhqa/flashstock/pkg/metrics"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	zl, cleanup, err := logger.New(cfg.Prod)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer cleanup()

	metrics.MustRegister()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// MySQL
	db, err := sql.Open("mysql", cfg.MySQL.DSN)
	if err != nil {
		zl.Fatal("failed to open mysql", zap.Error(err))
	}
	db.SetMaxOpenConns(cfg.MySQL.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MySQL.MaxIdleConns)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		zl.Fatal("failed to ping mysql", zap.Error(err))
	}
	zl.Info("connected to mysql")

	// Redis
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		PoolSize: cfg.Redis.PoolSize,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		zl.Fatal("failed to connect redis", zap.Error(err))
	}
	zl.Info("connected to redis")

	store := storage.NewRedisStore(rdb)
	mysqlAdapter := storage.NewMySQLAdapter(db)

	reservations := service.NewReservationService(store, zl.Named("reservations"))
	orders := service.NewOrderService(store, reservations, cfg.Reservation.TTL, cfg.QueueSize, zl.Named("orders"))

	// Sync the sale's stock counter to Redis.
	if err := reservations.SetStock(ctx, cfg.Sale.ProductID, cfg.Sale.InitialStock); err != nil {
		zl.Fatal("failed to set initial stock", zap.Error(err))
	}
	zl.Info("initialized stock",
		zap.String("product_id", cfg.Sale.ProductID),
		zap.Int("stock", cfg.Sale.InitialStock))

	// Persistence workers
	var wg sync.WaitGroup
	for i := 0; i < cfg.Workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			orders.RunWorker(id, mysqlAdapter)
		}(i)
	}
	zl.Info("started workers", zap.Int("count", cfg.Workers))

	// Expired-reservation sweeper
	sweepDone := make(chan struct{})
	go func() {
		defer close(sweepDone)
		ticker := time.NewTicker(cfg.Reservation.SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				if n, err := reservations.SweepExpired(ctx, now); err != nil {
					zl.Warn("reservation sweep failed", zap.Error(err))
				} else if n > 0 {
					zl.Info("reservation sweep restored stock", zap.Int("count", n))
				}
			}
		}
	}()

	// HTTP server
	limiter := ratelimit.New(store, zl.Named("ratelimit"))
	h := handler.NewHandler(orders, reservations, limiter, cfg.RateLimit.Limit, cfg.RateLimit.Window, zl.Named("http"))
	httpServer := &http.Server{
		Addr:    cfg.HTTP.Addr,
		Handler: handler.NewRouter(h),
	}

	go func() {
		zl.Info("http server listening", zap.String("addr", cfg.HTTP.Addr))
		if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
			zl.Error("http server error", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zl.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	httpServer.Shutdown(shutdownCtx)
	zl.Info("http server stopped")

	cancel()
	<-sweepDone

	orders.Close()
	wg.Wait()
	zl.Info("workers stopped")

	rdb.Close()
	db.Close()
	zl.Info("connections closed")
}
