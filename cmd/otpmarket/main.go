package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"otpmarket/internal/config"
	"otpmarket/internal/coordinator"
	"otpmarket/internal/database"
	"otpmarket/internal/handler"
	"otpmarket/internal/ledger"
	"otpmarket/internal/logging"
	"otpmarket/internal/model"
	"otpmarket/internal/mw"
	"otpmarket/internal/provider"
	"otpmarket/internal/registry"
	"otpmarket/internal/service"
	"otpmarket/internal/store"
	"otpmarket/internal/worker"
)

const (
	registryGrace   = 5 * time.Minute
	janitorInterval = time.Minute
)

func main() {
	logger := logging.NewSugaredLogger()
	defer logger.Sync()

	cfg, err := config.New()
	if err != nil {
		logger.Fatalw("failed to load config", "error", err)
	}

	db, err := database.NewDB(cfg.DatabaseURI)
	if err != nil {
		logger.Fatalw("failed to connect to DB", "error", err)
	}
	defer database.CloseDB(context.Background(), db)

	if err := database.Migrate(db); err != nil {
		logger.Fatalw("failed to run migrations", "error", err)
	}

	// Services
	authSvc := service.NewAuthService(db)
	orders := store.NewOrderStore(db)
	lg := ledger.New(db)
	active := registry.New(registryGrace)

	providers := provider.NewRegistry()
	providers.Register(model.ProviderFiveSim, provider.NewFiveSim(cfg.FiveSimBaseURL, cfg.FiveSimAPIKey, cfg.ProviderTimeout))

	coord := coordinator.New(db, providers, orders, lg, active, logger)

	// Worker
	janitor := worker.NewJanitor(active, janitorInterval, logger)

	// Router
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Admin-Key"},
		ExposedHeaders:   []string{"Authorization"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Public routes
	r.Post("/api/user/register", handler.RegisterHandler(authSvc, cfg.JWTSecret))
	r.Post("/api/user/login", handler.LoginHandler(authSvc, cfg.JWTSecret))
	r.Get("/api/catalog/countries", handler.CountriesHandler(providers, logger))
	r.Get("/api/catalog/products", handler.ProductsHandler(providers, logger))

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(mw.AuthMiddleware(cfg.JWTSecret))

		r.Post("/api/numbers/buy", handler.BuyNumberHandler(coord, logger))
		r.Get("/api/numbers/check/{orderID}", handler.CheckSMSHandler(coord, logger))
		r.Post("/api/numbers/finish/{orderID}", handler.FinishOrderHandler(coord, logger))
		r.Post("/api/numbers/cancel/{orderID}", handler.CancelOrderHandler(coord, logger))

		r.Get("/api/orders", handler.ListOrdersHandler(orders))
		r.Get("/api/balance", handler.BalanceHandler(lg))
		r.Get("/api/balance/provider", handler.ProviderBalanceHandler(providers, logger))
		r.Get("/api/statistics", handler.StatisticsHandler(orders))
	})

	// Admin routes
	r.Group(func(r chi.Router) {
		r.Use(mw.AdminMiddleware(cfg.AdminKey))

		r.Post("/api/admin/users/{userID}/credit", handler.AdminCreditHandler(lg, logger))
		r.Post("/api/admin/users/{userID}/debit", handler.AdminDebitHandler(lg, logger))
		r.Get("/api/admin/users/{userID}/ledger/verify", handler.AdminVerifyHandler(lg, logger))
		r.Get("/api/admin/statistics", handler.AdminStatisticsHandler(orders))
		r.Get("/api/admin/active", handler.AdminActiveHandler(active))
	})

	srv := &http.Server{
		Addr:         cfg.RunAddress,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	go janitor.Start(ctx)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	logger.Infow("starting server", "addr", cfg.RunAddress)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Errorw("server failed", "error", err)
		}
	}()

	<-quit
	logger.Infow("shutting down...")

	cancel() // stop worker
	ctxShut, cancelShut := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShut()

	if err := srv.Shutdown(ctxShut); err != nil {
		logger.Errorw("server shutdown failed", "error", err)
	}

	logger.Infow("server stopped")
}
