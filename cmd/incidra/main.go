package main

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/incidra/incidra/internal/config"
	"github.com/incidra/incidra/internal/database"
	"github.com/incidra/incidra/internal/executor"
	"github.com/incidra/incidra/internal/handlers"
	"github.com/incidra/incidra/internal/jobs"
	"github.com/incidra/incidra/internal/middleware"
	"github.com/incidra/incidra/internal/notify"
	"github.com/incidra/incidra/internal/services"
	"github.com/incidra/incidra/internal/workflow"
	"github.com/joho/godotenv"
	"gorm.io/gorm/logger"
)

func main() {
	// Load .env file if it exists (ignore error if file doesn't exist)
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file found or error loading it (this is fine if using environment variables): %v", err)
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	log.Printf("Starting Incidra...")

	// Initialize JWT authentication middleware
	if cfg.AdminPassword == "" {
		log.Fatalf("ADMIN_PASSWORD is not set")
	}

	// Hash the admin password
	passwordHash, err := middleware.HashPassword(cfg.AdminPassword)
	if err != nil {
		log.Fatalf("Failed to hash admin password: %v", err)
	}

	jwtAuthMiddleware := middleware.NewJWTAuthMiddleware(&middleware.JWTAuthConfig{
		Enabled:           true,
		AdminUsername:     cfg.AdminUsername,
		AdminPasswordHash: passwordHash,
		JWTSecret:         cfg.JWTSecret,
		JWTExpiryHours:    cfg.JWTExpiryHours,
		SkipPaths: []string{
			"/health",
			"/api/auth/*",
		},
	})
	log.Printf("JWT authentication enabled for user: %s", cfg.AdminUsername)

	// Initialize database connection
	if err := database.Connect(cfg.DatabaseURL, logger.Warn); err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	log.Printf("Database connection established")

	// Run database migrations
	if err := database.AutoMigrate(); err != nil {
		log.Fatalf("Failed to run database migrations: %v", err)
	}

	db := database.GetDB()

	// Initialize Slack notifier (no-op when SLACK_BOT_TOKEN is unset)
	notifier := notify.New(db, cfg.SlackBotToken, cfg.SlackChannel)
	if cfg.SlackBotToken != "" {
		log.Printf("Slack notifications ENABLED (default channel: %s)", cfg.SlackChannel)
	} else {
		log.Printf("Slack notifications DISABLED (set SLACK_BOT_TOKEN to enable)")
	}

	// Initialize action registry and workflow engine
	registry := executor.NewRegistry()
	executor.RegisterDefaults(registry, cfg.ActionScriptDir, notifier)
	log.Printf("Action registry initialized with scripts dir: %s", cfg.ActionScriptDir)

	engine := workflow.NewEngine(db, registry)

	// Initialize incident service
	incidentService := services.NewIncidentService(db)
	log.Printf("Incident service initialized")

	// Initialize playbook service and load playbook definitions
	playbookService := services.NewPlaybookService()
	if err := playbookService.LoadDir(cfg.PlaybookDir); err != nil {
		log.Printf("Warning: Failed to load playbooks from %s: %v", cfg.PlaybookDir, err)
	} else {
		log.Printf("Playbooks loaded from %s", cfg.PlaybookDir)
	}

	// Initialize post-mortem service
	postMortemService := services.NewPostMortemService(db)

	// Initialize HTTP handlers
	httpHandler := handlers.NewHTTPHandler()
	apiHandler := handlers.NewAPIHandler(incidentService, playbookService, postMortemService, engine, notifier)
	authHandler := handlers.NewAuthHandler(jwtAuthMiddleware, cfg.JWTExpiryHours)

	// Set up HTTP server routes
	mux := http.NewServeMux()
	httpHandler.SetupRoutes(mux)
	apiHandler.SetupRoutes(mux)
	authHandler.SetupRoutes(mux)

	// Wrap all routes with CORS middleware first, then JWT authentication
	corsMiddleware := middleware.NewCORSMiddleware() // Allow all origins
	authenticatedHandler := middleware.RequestIDMiddleware(corsMiddleware.Wrap(jwtAuthMiddleware.Wrap(mux)))

	// Start the SLA monitor
	stopMonitor := make(chan struct{})
	slaMonitor := jobs.NewSLAMonitor(db, notifier)
	go slaMonitor.Start(cfg.SLACheckInterval, stopMonitor)
	log.Printf("SLA monitor started (check interval: %s)", cfg.SLACheckInterval)

	// Start HTTP server in goroutine
	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler: authenticatedHandler,
	}

	go func() {
		log.Printf("Starting HTTP server on port %d", cfg.HTTPPort)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server error: %v", err)
		}
	}()

	log.Printf("Incidra is running! Press Ctrl+C to exit.")
	log.Printf("Health check endpoint: http://localhost:%d/health", cfg.HTTPPort)
	log.Printf("API base URL: http://localhost:%d/api", cfg.HTTPPort)

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Println("Received shutdown signal, cleaning up...")

	close(stopMonitor)

	log.Println("Shutting down HTTP server...")
	if err := httpServer.Close(); err != nil {
		log.Printf("Error shutting down HTTP server: %v", err)
	}

	if err := database.Close(); err != nil {
		log.Printf("Error closing database: %v", err)
	}

	log.Println("Shutdown complete")
}
