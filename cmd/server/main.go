// cmd/server/main.go
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coder/websocket"
	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"

	"github.com/arnavsood/ludoarena/internal/auth"
	"github.com/arnavsood/ludoarena/internal/cache"
	"github.com/arnavsood/ludoarena/internal/config"
	"github.com/arnavsood/ludoarena/internal/database"
	"github.com/arnavsood/ludoarena/internal/game"
	"github.com/arnavsood/ludoarena/internal/logging"
	"github.com/arnavsood/ludoarena/internal/middleware"
	"github.com/arnavsood/ludoarena/internal/presence"
	"github.com/arnavsood/ludoarena/internal/room"
	"github.com/arnavsood/ludoarena/internal/ws"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger := logging.New(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	validator, err := auth.NewValidator(ctx, cfg.AuthJWKSURL, cfg.AuthAudience)
	if err != nil {
		logger.WithError(err).Fatal("failed to build token validator")
	}

	repo, err := database.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.WithError(err).Fatal("failed to connect to database")
	}
	defer repo.Close()

	rdb, err := cache.New(cfg.RedisAddr, cfg.RedisDB)
	if err != nil {
		logger.WithError(err).Fatal("failed to connect to redis")
	}
	defer rdb.Close()

	presenceTracker := presence.New(rdb, logger)
	manager := ws.NewManager(logger)
	sessions := game.NewSessionManager()
	roomService := room.New(repo, rdb, manager, sessions, logger)

	serverID, err := os.Hostname()
	if err != nil || serverID == "" {
		serverID = "ludoarena-server"
	}

	registry := ws.BuildRegistry(ws.Deps{
		Validator: validator,
		Rooms:     roomService,
		Sessions:  sessions,
		Presence:  presenceTracker,
		Logger:    logger,
		ServerID:  serverID,
	})
	dispatcher := ws.NewDispatcher(registry)

	endpoint := &ws.Endpoint{
		Manager:        manager,
		Dispatcher:     dispatcher,
		Rooms:          roomService,
		Presence:       presenceTracker,
		Logger:         logger,
		AuthTimeout:    cfg.AuthTimeout,
		HeartbeatEvery: cfg.WSHeartbeatInterval,
	}

	mux := http.NewServeMux()
	mux.Handle("/api/v1/ws", endpoint)

	httpServer := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: middleware.Recover(logger)(mux),
	}

	go func() {
		logger.WithField("addr", httpServer.Addr).Info("listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("server exited unexpectedly")
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownGracefully(manager, presenceTracker, logger)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("http server shutdown error")
	}
}

// shutdownGracefully releases presence counters for every authenticated
// connection, then closes every live socket with 1001 (going away), per
// the handshake protocol's shutdown contract.
func shutdownGracefully(manager *ws.Manager, presenceTracker *presence.Tracker, logger *logrus.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for _, connID := range manager.AllConnectionIDs() {
		if conn, ok := manager.GetConnection(connID); ok && conn.Authenticated {
			presenceTracker.OnDisconnect(ctx, conn.UserID)
		}
	}
	manager.CloseAll(websocket.StatusGoingAway, "server shutting down")
	logger.Info("all connections closed for shutdown")
}
