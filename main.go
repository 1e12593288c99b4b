package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dds-registration/internal/analytics"
	"dds-registration/internal/api"
	"dds-registration/internal/auth"
	"dds-registration/internal/catalog"
	"dds-registration/internal/config"
	"dds-registration/internal/database"
	"dds-registration/internal/database/migrations"
	"dds-registration/internal/documents"
	"dds-registration/internal/identity"
	"dds-registration/internal/kafka"
	"dds-registration/internal/logger"
	"dds-registration/internal/membership"
	"dds-registration/internal/metrics"
	"dds-registration/internal/notify"
	"dds-registration/internal/payment"
	rediswrap "dds-registration/internal/payment/redis"
	"dds-registration/internal/registration"
	"dds-registration/internal/sse"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func newVerifier(ctx context.Context, cfg config.AuthConfig, logger *logger.Logger) auth.Verifier {
	if cfg.OIDCIssuer != "" {
		verifier, err := auth.NewOIDCVerifier(ctx, cfg.OIDCIssuer, cfg.OIDCClientID)
		if err != nil {
			logger.Fatal("AUTH", fmt.Sprintf("OIDC discovery failed for %s: %v", cfg.OIDCIssuer, err))
		}
		logger.Info("AUTH", fmt.Sprintf("Verifying tokens issued by %s", cfg.OIDCIssuer))
		return verifier
	}
	if cfg.JWTSecret == "" {
		logger.Fatal("CONFIG", "Neither OIDC_ISSUER nor JWT_SECRET is set")
	}
	logger.Warn("AUTH", "OIDC_ISSUER not set, accepting HS256 tokens signed with JWT_SECRET")
	return auth.NewHMACVerifier(cfg.JWTSecret)
}

func newPublisher(cfg config.KafkaConfig, logger *logger.Logger) (kafka.Publisher, func()) {
	if !cfg.Enabled {
		logger.Warn("KAFKA", "Kafka disabled, status events are only logged")
		return kafka.LogPublisher{Logger: logger}, func() {}
	}

	logger.Info("KAFKA", fmt.Sprintf("Using Kafka brokers %v", cfg.Brokers))
	producer := kafka.NewProducer(cfg.Brokers, logger)
	requiredTopics := []string{cfg.Topics.RegistrationStatus, cfg.Topics.PaymentStatus, cfg.Topics.MembershipStatus}
	if err := kafka.EnsureTopicsExist(cfg.Brokers, requiredTopics, logger); err != nil {
		logger.Warn("KAFKA", fmt.Sprintf("Topic creation might have failed: %v", err))
	} else {
		logger.Info("KAFKA", "Required topics ensured successfully")
	}
	return producer, func() {
		if err := producer.Close(); err != nil {
			logger.Error("KAFKA", fmt.Sprintf("Failed to close producer: %v", err))
		}
	}
}

func newDispatcher(cfg *config.Config, logger *logger.Logger, m *metrics.Metrics) *notify.Dispatcher {
	d := &notify.Dispatcher{
		Mailer:  notify.LogMailer{Logger: logger},
		Hook:    notify.LogHook{Logger: logger},
		Logger:  logger,
		Metrics: m,
		Site:    notify.Site{Name: cfg.Site.Name, SupportEmail: cfg.Site.SupportEmail},
	}
	if cfg.Email.SMTPHost != "" {
		d.Mailer = notify.NewSMTPMailer(cfg.Email)
		logger.Info("NOTIFY", fmt.Sprintf("Sending mail through %s:%d", cfg.Email.SMTPHost, cfg.Email.SMTPPort))
	} else {
		logger.Warn("NOTIFY", "SMTP_HOST not set, mails are only logged")
	}
	if cfg.Slack.WebhookURL != "" {
		d.Hook = notify.NewSlackHook(cfg.Slack.WebhookURL)
	} else {
		logger.Warn("NOTIFY", "SLACK_WEBHOOK not set, operator notices are only logged")
	}
	return d
}

func migrateSchema(ctx context.Context, dsn string, logger *logger.Logger) {
	runner, err := migrations.NewRunner(ctx, dsn, logger)
	if err != nil {
		logger.Fatal("MIGRATE", err.Error())
	}
	defer runner.Close()
	if err := runner.MigrateUp(); err != nil {
		logger.Fatal("MIGRATE", err.Error())
	}
}

func main() {
	logger := logger.NewLogger()
	defer logger.Close()

	logger.Info("APP", "Starting registration service initialization")

	if err := godotenv.Load(); err != nil {
		logger.Warn("CONFIG", ".env file not found, using environment variables")
	} else {
		logger.Info("CONFIG", "Loaded environment variables from .env file")
	}
	cfg := config.Load()
	ctx := context.Background()

	bunDB, err := database.Open(ctx, cfg.Database, logger)
	if err != nil {
		logger.Fatal("DATABASE", err.Error())
	}
	defer bunDB.Close()
	migrateSchema(ctx, cfg.Database.DSN, logger)
	repo := database.New(bunDB)

	m := metrics.New(prometheus.DefaultRegisterer)
	publisher, closePublisher := newPublisher(cfg.Kafka, logger)
	defer closePublisher()
	dispatcher := newDispatcher(cfg, logger, m)
	receipts := documents.NewQRGenerator(cfg.Billing.ReceiptSecret)
	renderer := documents.NewPDFRenderer(cfg.Site, cfg.Billing, receipts)

	// the live feed sees registration events from both services
	feed := sse.NewRegistrationFeed()
	events := kafka.Fanout{publisher, feed}

	payments := &payment.Service{
		Repo:    repo,
		Docs:    renderer,
		Notify:  dispatcher,
		Events:  events,
		Topics:  cfg.Kafka.Topics,
		Logger:  logger,
		Metrics: m,
		Stripe:  cfg.Stripe,
	}
	if stripeClient, err := payment.NewStripeClient(cfg.Stripe.SecretKey, logger); err == nil {
		payments.Charges = stripeClient

		redisClient, err := rediswrap.Connect(cfg.Redis.Addr, logger)
		if err != nil {
			logger.Fatal("REDIS", fmt.Sprintf("Redis connection error: %v", err))
		}
		defer redisClient.Close()
		payments.Locker = rediswrap.NewChargeLock(redisClient, cfg.Redis.LockTTL, logger)
	} else {
		logger.Warn("STRIPE", "Card payments disabled, only invoices can be issued")
	}

	users := &identity.Service{Repo: repo, Logger: logger, StaffEmails: cfg.Auth.StaffEmails}
	handler := &api.Handler{
		Identity: users,
		Catalog:  &catalog.Service{Repo: repo, Notify: dispatcher, Logger: logger},
		Registrations: &registration.Service{
			Repo:     repo,
			Payments: payments,
			Notify:   dispatcher,
			Events:   events,
			Topics:   cfg.Kafka.Topics,
			Logger:   logger,
			Metrics:  m,
		},
		Memberships: &membership.Service{Repo: repo, Payments: payments, Logger: logger, Metrics: m},
		Payments:    payments,
		Analytics:   &analytics.Service{Repo: repo, DB: analytics.NewDB(bunDB), Logger: logger},
		Feed:        feed,
		Receipts:    receipts,
		Logger:      logger,
	}

	logger.Info("HTTP", "Setting up router and middleware")
	authenticate := auth.Middleware(newVerifier(ctx, cfg.Auth, logger), users, logger)
	r := api.NewRouter(handler, authenticate, promhttp.Handler(), cfg.Server.AllowedOrigins)

	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info("HTTP", fmt.Sprintf("🚀 Registration service running on %s", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP", fmt.Sprintf("HTTP server error: %v", err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	logger.Info("APP", "Service started successfully, waiting for shutdown signal")
	<-stop

	logger.Info("APP", "Shutdown signal received, initiating graceful shutdown")
	ctxShutdown, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctxShutdown); err != nil {
		logger.Error("HTTP", fmt.Sprintf("Server Shutdown Failed: %v", err))
	} else {
		logger.Info("HTTP", "✅ Registration service shutdown complete")
	}
}
