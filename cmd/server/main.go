package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/Simplici0/levelworks/internal/billing"
	"github.com/Simplici0/levelworks/internal/config"
	"github.com/Simplici0/levelworks/internal/db"
	"github.com/Simplici0/levelworks/internal/email"
	"github.com/Simplici0/levelworks/internal/logger"
	"github.com/Simplici0/levelworks/internal/metrics"
	"github.com/Simplici0/levelworks/internal/migrations"
	"github.com/Simplici0/levelworks/internal/pricing"
	"github.com/Simplici0/levelworks/internal/render"
	"github.com/Simplici0/levelworks/internal/seed"
	"github.com/Simplici0/levelworks/internal/store"
)

type rateStore interface {
	LoadRates(ctx context.Context) (pricing.Rates, error)
	SaveRates(ctx context.Context, r pricing.Rates) error
}

type pinger interface {
	Ping(ctx context.Context) error
}

type server struct {
	auth     *authService
	log      *zap.Logger
	metrics  *metrics.Metrics
	billing  *billing.Service
	rates    rateStore
	mailer   *email.Dispatcher
	business render.Business
	health   pinger
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "levelworks: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := logger.New(logger.Options{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	})
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	for _, w := range cfg.Warnings {
		log.Warn("configuration warning", zap.String("detail", w))
	}

	database, err := db.Open(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer database.Close()

	version, err := migrate(database)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	seedRates, err := cfg.Pricing.Rates()
	if err != nil {
		return err
	}
	stats, err := seed.Run(ctx, database, seed.Config{
		AdminEmail:    cfg.Admin.Email,
		AdminPassword: cfg.Admin.Password,
		Rates:         seedRates,
	})
	if err != nil {
		return fmt.Errorf("seed database: %w", err)
	}
	log.Info("database ready",
		zap.String("path", cfg.Database.Path),
		zap.Int64("schema_version", version),
		zap.Int("seed_inserts", stats.Inserts),
	)

	m := metrics.New()
	st := store.New(database)

	var sender email.Sender
	if cfg.Email.Enabled {
		ses, err := email.NewSESSender(ctx, cfg.Email.Region, cfg.Email.From)
		if err != nil {
			return fmt.Errorf("configure email: %w", err)
		}
		sender = ses
	}

	auth, err := newAuthService(st, cfg.Session.Secret, cfg.Session.TTL, !cfg.IsDev())
	if err != nil {
		return err
	}

	srv := &server{
		auth:    auth,
		log:     log,
		metrics: m,
		billing: billing.NewService(st, log.Named("billing"), billing.WithObserver(m)),
		rates:   st,
		mailer:  email.NewDispatcher(sender, log.Named("email"), m),
		business: render.Business{
			Name:    cfg.Business.Name,
			Phone:   cfg.Business.Phone,
			Email:   cfg.Business.Email,
			Address: cfg.Business.Address,
		},
		health: st,
	}

	httpServer := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           srv.routes(),
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", zap.String("addr", httpServer.Addr), zap.String("env", cfg.App.Env))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server stopped: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// migrate applies the embedded migrations and reports the resulting schema version.
func migrate(database *sql.DB) (int64, error) {
	if err := migrations.Up(database); err != nil {
		return 0, fmt.Errorf("run database migrations: %w", err)
	}
	version, err := migrations.Version(database)
	if err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return version, nil
}

func (s *server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(s.recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	r.Post("/login", s.handleLogin)
	r.Post("/logout", s.handleLogout)

	r.Route("/api", func(r chi.Router) {
		r.Use(s.authMiddleware)

		r.Post("/calculate", s.handleCalculate)
		r.Get("/admin/rates", s.handleGetRates)
		r.Put("/admin/rates", s.handlePutRates)

		r.Route("/documents", func(r chi.Router) {
			r.Get("/", s.handleListDocuments)
			r.Post("/", s.handleCreateDocument)
			r.Post("/import", s.handleImport)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetDocument)
				r.Put("/", s.handleUpdateDocument)
				r.Delete("/", s.handleDeleteDocument)
				r.Post("/items", s.handleAddItem)
				r.Post("/items/priced", s.handleAddPricedItem)
				r.Delete("/items/{itemID}", s.handleRemoveItem)
				r.Post("/signature", s.handleSign)
				r.Post("/status", s.handleTransition)
				r.Post("/convert", s.handleConvert)
				r.Get("/text", s.handleText)
				r.Get("/xlsx", s.handleXLSX)
				r.Post("/email", s.handleEmail)
			})
		})
	})

	return r
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.health.Ping(ctx); err != nil {
		s.log.Warn("health check failed", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "database unavailable", nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
