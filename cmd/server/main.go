package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/soumenroys/imotaraapp-sub002/internal/config"
	"github.com/soumenroys/imotaraapp-sub002/internal/handler"
	"github.com/soumenroys/imotaraapp-sub002/internal/logging"
	"github.com/soumenroys/imotaraapp-sub002/internal/middleware"
	"github.com/soumenroys/imotaraapp-sub002/internal/repository"
	"github.com/soumenroys/imotaraapp-sub002/internal/service"
	"github.com/soumenroys/imotaraapp-sub002/internal/websocket"

	_ "github.com/go-kivik/kivik/v4/couchdb"

	"github.com/go-kivik/kivik/v4"
	"github.com/gorilla/mux"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logCloser := logging.Setup(cfg.Logging.File, cfg.Logging.MaxSizeMB, cfg.Logging.MaxBackups, cfg.Logging.MaxAgeDays)
	defer logCloser.Close()

	userRepo, historyRepo := openRepositories(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	wsManager := websocket.NewManager(
		cfg.WebSocket.MaxConnPerUser,
		cfg.WebSocket.WriteWait,
		cfg.WebSocket.PongWait,
		cfg.WebSocket.PingPeriod,
	)
	go wsManager.Run(ctx)

	authService := service.NewAuthService(userRepo, cfg.JWT.Secret, cfg.JWT.Expiration, cfg.JWT.RefreshTokenExpiration)
	historyService := service.NewHistoryService(historyRepo, wsManager)

	authHandler := handler.NewAuthHandler(authService)
	syncHandler := handler.NewSyncHandler(historyService)
	wsHandler := handler.NewWebSocketHandler(wsManager, cfg.JWT.Secret, cfg.WebSocket.ReadBufferSize, cfg.WebSocket.WriteBufferSize)

	r := mux.NewRouter()

	r.Use(middleware.LoggerMiddleware())
	r.Use(middleware.CORSMiddleware(
		cfg.CORS.AllowedOrigins,
		cfg.CORS.AllowedMethods,
		cfg.CORS.AllowedHeaders,
	))

	api := r.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/auth/register", authHandler.Register).Methods("POST", "OPTIONS")
	api.HandleFunc("/auth/login", authHandler.Login).Methods("POST", "OPTIONS")
	api.HandleFunc("/auth/refresh", authHandler.Refresh).Methods("POST", "OPTIONS")
	api.HandleFunc("/auth/logout", authHandler.Logout).Methods("POST", "OPTIONS")

	protected := api.PathPrefix("").Subrouter()
	protected.Use(middleware.AuthMiddleware(cfg.JWT.Secret))

	protected.HandleFunc("/auth/me", authHandler.Me).Methods("GET", "OPTIONS")
	protected.HandleFunc("/history/sync", syncHandler.ProcessSync).Methods("POST", "OPTIONS")
	protected.HandleFunc("/history", syncHandler.Snapshot).Methods("GET", "OPTIONS")
	protected.HandleFunc("/history", syncHandler.Append).Methods("POST", "OPTIONS")

	r.HandleFunc("/ws", wsHandler.HandleConnection)

	r.HandleFunc("/health", handler.Health).Methods("GET")
	r.HandleFunc("/", handler.Root).Methods("GET")

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)

	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Starting Imotara history server on %s (env: %s, store: %s)", addr, cfg.Server.Env, cfg.Database.Driver)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
		os.Exit(1)
	}

	log.Println("Server stopped gracefully")
}

func openRepositories(cfg *config.Config) (repository.UserRepository, repository.RemoteHistoryRepository) {
	if cfg.Database.Driver == config.DriverMemory {
		log.Printf("Using in-memory store; data is lost on restart")
		return repository.NewMemoryUserRepository(), repository.NewMemoryRemoteHistoryRepository()
	}

	client, err := kivik.New("couch", cfg.Database.URL())
	if err != nil {
		log.Fatalf("Failed to connect to CouchDB: %v", err)
	}

	exists, err := client.DBExists(context.Background(), cfg.Database.Name)
	if err != nil {
		log.Fatalf("Failed to check database existence: %v", err)
	}

	if !exists {
		if err := client.CreateDB(context.Background(), cfg.Database.Name); err != nil {
			log.Fatalf("Failed to create database: %v", err)
		}
		log.Printf("Created database: %s", cfg.Database.Name)
	}

	log.Printf("Connected to CouchDB at %s:%s", cfg.Database.Host, cfg.Database.Port)
	return repository.NewUserRepository(client, cfg.Database.Name),
		repository.NewRemoteHistoryRepository(client, cfg.Database.Name)
}
