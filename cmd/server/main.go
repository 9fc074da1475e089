package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/rl1809/branch-delivery/internal/adapter/catalog"
	"github.com/rl1809/branch-delivery/internal/adapter/event"
	"github.com/rl1809/branch-delivery/internal/adapter/handler"
	"github.com/rl1809/branch-delivery/internal/config"
	"github.com/rl1809/branch-delivery/internal/core/service"
	"github.com/rl1809/branch-delivery/internal/logging"
	"github.com/rl1809/branch-delivery/internal/port"
	"github.com/rl1809/branch-delivery/internal/wire"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logger.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	res, err := wire.Open(ctx, wire.Options{
		Store:      cfg.StoreBackend,
		MySQLDSN:   cfg.MySQLDSN,
		RedisAddr:  cfg.RedisAddr,
		RedisLocks: cfg.LockBackend == config.LockRedis,
		LockExpiry: cfg.LockExpiry,
		Redis:      cfg.NeedsRedis(),
	}, logger)
	cancel()
	if err != nil {
		logger.Fatal("failed to open backend", zap.Error(err))
	}

	items, err := catalog.LoadStaticCatalog(cfg.CatalogFile)
	if err != nil {
		logger.Fatal("failed to load catalog", zap.Error(err))
	}

	var publisher port.EventPublisher = event.NewLogPublisher(logger)
	if cfg.EventBackend == config.EventsRedis {
		publisher = event.NewRedisPublisher(res.Redis, cfg.EventChannel)
	}
	dispatcher := service.NewEventDispatcher(publisher, cfg.EventQueueSize, logger)
	dispatcher.Start(cfg.EventWorkers)
	logger.Info("started event workers",
		zap.Int("workers", cfg.EventWorkers),
		zap.String("backend", cfg.EventBackend))

	svc := service.NewReconciliationService(res.Store, res.Store, res.Locker, dispatcher, logger)

	// Initialize gRPC server
	grpcServer := grpc.NewServer(handler.ServerCodec())
	handler.RegisterReconciliationServer(grpcServer, handler.NewGRPCHandler(svc, logger))

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		logger.Fatal("failed to listen", zap.String("addr", cfg.GRPCAddr), zap.Error(err))
	}

	go func() {
		logger.Info("gRPC server listening", zap.String("addr", cfg.GRPCAddr))
		if err := grpcServer.Serve(lis); err != nil {
			logger.Error("gRPC server error", zap.Error(err))
		}
	}()

	// Initialize HTTP server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	handler.NewHTTPHandler(svc, items, logger).RegisterRoutes(e)

	go func() {
		logger.Info("HTTP server listening", zap.String("addr", cfg.HTTPAddr))
		if err := e.Start(cfg.HTTPAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server error", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP shutdown", zap.Error(err))
	}
	logger.Info("HTTP server stopped")

	grpcServer.GracefulStop()
	logger.Info("gRPC server stopped")

	// Drain queued events before the publisher's connection goes away
	dispatcher.Close()
	logger.Info("event workers stopped")

	if err := res.Close(); err != nil {
		logger.Warn("closing connections", zap.Error(err))
	}
	logger.Info("connections closed")
}
