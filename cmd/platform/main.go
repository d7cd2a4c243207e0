package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/safetrack/platform/internal/adapters/facilities"
	"github.com/safetrack/platform/internal/eventstore"
	incidentapi "github.com/safetrack/platform/internal/incident/api"
	"github.com/safetrack/platform/internal/incident/infrastructure"
	"github.com/safetrack/platform/internal/kurrentdb"
	"github.com/safetrack/platform/internal/navigation"
	"github.com/safetrack/platform/internal/notification"
	"github.com/safetrack/platform/internal/principal"
	"github.com/safetrack/platform/internal/role"
	"github.com/safetrack/platform/internal/sync"
	"github.com/safetrack/platform/internal/shared/auth"
	"github.com/safetrack/platform/internal/shared/config"
	"github.com/safetrack/platform/internal/shared/database"
	"github.com/safetrack/platform/internal/shared/metrics"
	secmiddleware "github.com/safetrack/platform/internal/shared/middleware"
)

// App holds all application dependencies
type App struct {
	Config     *config.Config
	DB         *database.DB
	Events     *kurrentdb.Client
	Facilities *facilities.Directory
}

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	app := &App{Config: cfg}

	db, err := database.New(ctx, cfg.Database)
	if err != nil {
		fmt.Fprintf(os.Stderr, "database not available: %v\n", err)
		os.Exit(1)
	}
	app.DB = db
	defer db.Close()

	if err := database.Migrate(ctx, db.Pool); err != nil {
		fmt.Fprintf(os.Stderr, "migration failed: %v\n", err)
		os.Exit(1)
	}

	// Event log + live feed. Without KurrentDB the process still runs:
	// the in-memory store keeps the conditional-append semantics but
	// loses history across restarts, so it is dev-only.
	var (
		eventLog eventstore.EventStore
		feed     eventstore.EventSubscriber
	)
	if events, err := kurrentdb.NewClient(cfg.KurrentDB); err != nil {
		fmt.Printf("Warning: KurrentDB not available, using in-memory event log: %v\n", err)
		memory := eventstore.NewMemoryStore()
		eventLog, feed = memory, memory
	} else {
		app.Events = events
		defer events.Close()
		eventLog = kurrentdb.NewEventStore(events)
		feed = kurrentdb.NewSubscriber(events)
		fmt.Println("KurrentDB event log initialized")
	}

	// Role catalog and principal resolution
	roleRepo := role.NewPostgresRepository(db.Pool)
	catalog := role.NewCatalog(roleRepo)

	profiles := principal.NewPostgresProfileRepository(db.Pool)
	resolver := principal.NewResolver(profiles, catalog)

	// Incident store: the event log is the source of truth, Postgres
	// holds the queryable projection.
	incidents := infrastructure.NewStore(eventLog, infrastructure.NewPostgresProjection(db.Pool))

	// Optional building directory for location checks
	var locations incidentapi.LocationValidator
	if cfg.Facilities.Enabled {
		directory, err := facilities.New(cfg.Facilities)
		if err != nil {
			fmt.Printf("Warning: facilities directory unavailable: %v\n", err)
		} else {
			app.Facilities = directory
			defer directory.Close()
			locations = directory
			fmt.Println("Facilities directory connected")
		}
	}

	// Notification fan-out over the incident feed
	inbox := notification.NewPostgresRepository(db.Pool)
	fanout := notification.NewFanout(inbox, incidents, profiles, feed, notification.ConsolePusher{})
	if stop, err := fanout.Start(ctx); err != nil {
		fmt.Printf("Warning: notification fan-out failed to start: %v\n", err)
	} else {
		defer stop()
		fmt.Println("Notification fan-out started")
	}

	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(secmiddleware.SecurityHeaders)
	r.Use(secmiddleware.RateLimiter(50, 100))
	r.Use(metrics.Middleware)
	r.Use(corsMiddleware)

	// Health checks (unauthenticated)
	r.Get("/health", healthHandler(app))
	r.Get("/ready", readyHandler(app))
	r.Handle("/metrics", metrics.Handler())

	r.Get("/", infoHandler)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(auth.Middleware(cfg.Auth))
		r.Use(principal.Middleware(resolver))

		profileHandler := principal.NewHandler(resolver, profiles)
		r.Mount("/me", profileHandler.MeRoutes())
		r.Mount("/users", profileHandler.UserRoutes())
		r.Mount("/roles", role.NewHandler(catalog, principal.PermissionsFromContext).Routes())
		r.Mount("/incidents", incidentapi.NewHandler(incidents, profiles, catalog, locations, cfg.Media).Routes())
		r.Mount("/stream", sync.NewHandler(sync.NewManager(incidents, feed)).Routes())
		r.Mount("/navigation", navigation.NewHandler(navigation.NewGate()).Routes())
		r.Mount("/notifications", notification.NewHandler(inbox).Routes())
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	done := make(chan bool)
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		fmt.Println("\nShutting down server...")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			fmt.Printf("Server shutdown error: %v\n", err)
		}
		close(done)
	}()

	fmt.Println("============================================")
	fmt.Println("SafeTrack Incident Workflow Platform")
	fmt.Println("============================================")
	fmt.Printf("Environment:  %s\n", cfg.Server.Env)
	fmt.Printf("Server:       http://localhost:%d\n", cfg.Server.Port)
	fmt.Printf("API:          http://localhost:%d/api/v1\n", cfg.Server.Port)
	fmt.Printf("Health:       http://localhost:%d/health\n", cfg.Server.Port)
	fmt.Printf("KurrentDB:    %s:%d\n", cfg.KurrentDB.Host, cfg.KurrentDB.Port)
	fmt.Printf("Facilities:   %v\n", cfg.Facilities.Enabled)
	fmt.Println("============================================")

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}

	<-done
	fmt.Println("Server stopped")
}

func infoHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"name":    "SafeTrack Incident Workflow Platform",
		"version": "0.1.0",
		"docs":    "/api/v1",
	})
}

func healthHandler(app *App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{
			"status": "healthy",
		})
	}
}

func readyHandler(app *App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"server": "ready",
		}

		if err := app.DB.Health(r.Context()); err != nil {
			checks["database"] = "not ready: " + err.Error()
		} else {
			checks["database"] = "ready"
		}

		if app.Events != nil {
			if err := app.Events.HealthCheck(r.Context()); err != nil {
				checks["kurrentdb"] = "not ready: " + err.Error()
			} else {
				checks["kurrentdb"] = "ready"
			}
		} else {
			checks["kurrentdb"] = "not configured"
		}

		if app.Facilities != nil {
			if err := app.Facilities.Health(r.Context()); err != nil {
				checks["facilities"] = "not ready: " + err.Error()
			} else {
				checks["facilities"] = "ready"
			}
		} else {
			checks["facilities"] = "not configured"
		}

		allReady := true
		for _, status := range checks {
			if status != "ready" && status != "not configured" {
				allReady = false
				break
			}
		}

		status := http.StatusOK
		if !allReady {
			status = http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(map[string]any{
			"status": map[bool]string{true: "ready", false: "not ready"}[allReady],
			"checks": checks,
		})
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type, X-Request-ID")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
