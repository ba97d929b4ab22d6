package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mlquarizm/payment-gateway/internal"
	"github.com/mlquarizm/payment-gateway/internal/core/events"
	"github.com/mlquarizm/payment-gateway/internal/gateway"
	"github.com/mlquarizm/payment-gateway/internal/gateway/tabby"
	"github.com/mlquarizm/payment-gateway/internal/gateway/tamara"
	"github.com/mlquarizm/payment-gateway/internal/notifier"
	"github.com/mlquarizm/payment-gateway/internal/payment"
	paymentpostgres "github.com/mlquarizm/payment-gateway/internal/payment/postgres"
	"github.com/mlquarizm/payment-gateway/internal/transport"
	"github.com/mlquarizm/payment-gateway/internal/transport/rest"
	"github.com/mlquarizm/payment-gateway/pkg/logger"

	"github.com/go-chi/chi"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var httpServerCmd = &cobra.Command{
	Use:   "server",
	Short: "Start HTTP server",
	Long:  `Start the HTTP server handling checkout, webhook and callback traffic`,
	Run: func(cmd *cobra.Command, args []string) {
		startHTTPServer()
	},
}

type Dependencies struct {
	Config         *internal.Config
	DB             *sqlx.DB
	Router         *chi.Mux
	Logger         *slog.Logger
	PaymentHandler *payment.Handler
	WebhookHandler *payment.WebhookHandler
	Notifier       *notifier.Notifier
}

func startHTTPServer() {
	deps, err := initializeDependencies()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize dependencies: %v\n", err)
		os.Exit(1)
	}

	rest.RegisterAllRoutes(deps.Router, deps.DB.DB, deps.PaymentHandler, deps.WebhookHandler, deps.Logger)

	addr := fmt.Sprintf(":%d", deps.Config.Server.Port)
	deps.Logger.Info("starting HTTP server", "address", addr)

	server := &http.Server{
		Addr:         addr,
		Handler:      deps.Router,
		ReadTimeout:  deps.Config.Server.ReadTimeout,
		WriteTimeout: deps.Config.Server.WriteTimeout,
		IdleTimeout:  deps.Config.Server.IdleTimeout,
	}

	// Signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serverErrChan := make(chan error, 1)
	go func() {
		serverErrChan <- server.ListenAndServe()
	}()

	select {
	case sig := <-sigChan:
		deps.Logger.Info("received signal, shutting down", "signal", sig)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			deps.Logger.Error("server shutdown error", "error", err)
		}
		deps.Notifier.Shutdown()
		if err := deps.DB.Close(); err != nil {
			deps.Logger.Error("database close error", "error", err)
		}
	case err := <-serverErrChan:
		if err != nil && err != http.ErrServerClosed {
			deps.Logger.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}

	deps.Logger.Info("server stopped")
}

func initializeDependencies() (*Dependencies, error) {
	config, err := loadConfig(".")
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger.Init(os.Getenv("APP_ENV"))
	lg := logger.Default()

	db, err := initDB(config.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	gormDB, err := gorm.Open(gormpostgres.New(gormpostgres.Config{Conn: db.DB}), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize orm: %w", err)
	}

	repo := paymentpostgres.NewTransactionRepository(gormDB)

	bus := events.NewEventBus(lg)
	outcomeNotifier := notifier.New(notifier.Config{
		WebhookURL:      config.Notifier.WebhookURL,
		DeliveryTimeout: config.Notifier.DeliveryTimeout,
		MaxWorkers:      config.Notifier.MaxWorkers,
		JobQueueSize:    config.Notifier.JobQueueSize,
		WorkerPoolSize:  config.Notifier.WorkerPoolSize,
	}, lg)
	outcomeNotifier.SubscribeTo(bus)

	tabbyClient := tabby.NewClient(tabby.Config{
		BaseURL:      config.Tabby.BaseURL,
		SecretKey:    config.Tabby.SecretKey,
		PublicKey:    config.Tabby.PublicKey,
		MerchantCode: config.Tabby.MerchantCode,
		Currency:     config.Tabby.Currency,
		SuccessURL:   config.Tabby.SuccessURL,
		CancelURL:    config.Tabby.CancelURL,
		FailureURL:   config.Tabby.FailureURL,
	}, lg)

	tamaraClient := tamara.NewClient(tamara.Config{
		APIToken:          config.Tamara.APIToken,
		NotificationToken: config.Tamara.NotificationToken,
		Currency:          config.Tamara.Currency,
		CountryCode:       config.Tamara.CountryCode,
		SandboxMode:       config.Tamara.SandboxMode,
		SuccessURL:        config.Tamara.SuccessURL,
		CancelURL:         config.Tamara.CancelURL,
		FailureURL:        config.Tamara.FailureURL,
	}, lg)

	verifier := gateway.NewVerifier(gateway.VerifierConfig{
		TabbySecretKey:          config.Tabby.SecretKey,
		TabbyRequireSignature:   config.Tabby.RequireSignature,
		TamaraNotificationToken: config.Tamara.NotificationToken,
	}, lg)

	registry := gateway.NewRegistry()
	registry.Register(gateway.Tabby, tabby.NewNormalizer(tabbyClient, lg))
	registry.Register(gateway.Tamara, tamara.NewNormalizer(tamaraClient, repo, lg))

	engine := payment.NewEngine(repo, registry, verifier, bus, lg)

	service := payment.NewService(repo, config.Payment.DefaultGateway, lg)
	service.RegisterProvider(gateway.Tabby, payment.NewTabbyProvider(tabbyClient))
	service.RegisterProvider(gateway.Tamara, payment.NewTamaraProvider(tamaraClient, config.Tamara.CountryCode))

	paymentHandler := payment.NewHandler(service)
	webhookHandler := payment.NewWebhookHandler(transport.NewBaseHandler(lg), engine, payment.RedirectConfig{
		SuccessURL: config.Payment.RedirectSuccessURL,
		CancelURL:  config.Payment.RedirectCancelURL,
		ErrorURL:   config.Payment.RedirectErrorURL,
	}, lg)

	return &Dependencies{
		Config:         config,
		DB:             db,
		Router:         chi.NewRouter(),
		Logger:         lg,
		PaymentHandler: paymentHandler,
		WebhookHandler: webhookHandler,
		Notifier:       outcomeNotifier,
	}, nil
}

// initDB initializes the database connection
func initDB(cfg internal.DatabaseConfig) (*sqlx.DB, error) {
	const driver = "pgx"

	dbConn, err := sqlx.Connect(driver, cfg.Source)
	if err != nil {
		return nil, fmt.Errorf("failed to open db connection: %w", err)
	}

	dbConn.SetMaxIdleConns(cfg.MaxIdleConns)
	dbConn.SetMaxOpenConns(cfg.MaxOpenConns)
	dbConn.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	// verify connection; close underlying *sql.DB on failure
	if err := dbConn.Ping(); err != nil {
		_ = dbConn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return dbConn, nil
}
