package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/stripe/stripe-go/v79"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/bookpage-app/bookpage/internal/booking"
	"github.com/bookpage-app/bookpage/internal/handlers"
	"github.com/bookpage-app/bookpage/internal/identity"
	"github.com/bookpage-app/bookpage/internal/jobs"
	"github.com/bookpage-app/bookpage/internal/metrics"
	"github.com/bookpage-app/bookpage/internal/notify"
	"github.com/bookpage-app/bookpage/internal/outbox"
	"github.com/bookpage-app/bookpage/internal/payments"
	"github.com/bookpage-app/bookpage/internal/storage"
	"github.com/bookpage-app/bookpage/libs/config"
	"github.com/bookpage-app/bookpage/libs/db"
	"github.com/bookpage-app/bookpage/libs/httpx"
	"github.com/bookpage-app/bookpage/libs/kafkax"
	otelx "github.com/bookpage-app/bookpage/libs/otel"
	"github.com/bookpage-app/bookpage/libs/runtime"
)

const serviceName = "bookpage"

func main() {
	_ = godotenv.Load()

	log := runtime.NewLogger(serviceName)
	if err := run(log); err != nil {
		log.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(log *slog.Logger) error {
	ctx, stop := runtime.SignalContext()
	defer stop()

	port, err := config.Port("PORT", "8080")
	if err != nil {
		return err
	}
	databaseURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		return err
	}
	jwtSecret, err := config.RequiredString("JWT_SECRET")
	if err != nil {
		return err
	}

	shutdownTracing, err := otelx.Setup(ctx, otelx.ConfigFromEnv(serviceName))
	if err != nil {
		return fmt.Errorf("tracing setup: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(shutdownCtx)
	}()

	pool, err := db.Open(ctx, databaseURL)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer pool.Close()

	outboxRepo := outbox.NewRepository(pool)
	store := storage.New(pool, outboxRepo)
	readyChecks := []runtime.ReadyCheck{{Name: "postgres", Check: db.ReadyCheck(pool)}}

	// Payments.
	var (
		accounts payments.AccountStatusProvider = payments.StaticProvider{}
		intents  handlers.IntentCreator
		recorder handlers.IntentRecorder
	)
	if stripeKey := config.String("STRIPE_SECRET_KEY", ""); stripeKey != "" {
		stripe.Key = stripeKey
		provider := payments.NewStripeProvider(config.String("CURRENCY", "usd"))
		accounts = provider
		intents = provider
		recorder = store
	} else {
		log.Warn("STRIPE_SECRET_KEY not set, online payments disabled")
	}

	engine := booking.NewEngine(store, accounts, log)

	// Notifications.
	var emailSender notify.EmailSender
	if key := config.String("SENDGRID_API_KEY", ""); key != "" {
		emailSender = notify.NewSendGridSender(key,
			config.String("EMAIL_FROM_NAME", "BookPage"),
			config.String("EMAIL_FROM_ADDRESS", "bookings@bookpage.app"))
	}
	var smsSender notify.SMSSender = notify.NoopSMS{}
	if sid := config.String("TWILIO_ACCOUNT_SID", ""); sid != "" {
		smsSender = notify.NewTwilioSender(sid,
			config.String("TWILIO_AUTH_TOKEN", ""),
			config.String("TWILIO_FROM_NUMBER", ""))
	}
	notifier := notify.New(emailSender, smsSender, log)

	// Outbox publisher.
	if kafkaBrokers := config.String("KAFKA_BROKERS", ""); kafkaBrokers != "" {
		publisher := outbox.NewPublisher(outboxRepo, kafkax.SplitBrokers(kafkaBrokers), log)
		go publisher.Run(ctx)
		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(kafkaBrokers)})
	} else {
		log.Warn("KAFKA_BROKERS not set, outbox events stay queued")
	}

	// Abandoned-payment sweeper.
	sweeper := jobs.NewSweeper(store, log, config.Duration("PAYMENT_ABANDON_AFTER", 30*time.Minute))
	if err := sweeper.Start(ctx); err != nil {
		return fmt.Errorf("sweeper: %w", err)
	}

	// Rate limiting: Redis when configured, in-process otherwise.
	var rateLimit httpx.Middleware
	perMinute := config.Int("RATE_LIMIT_PER_MINUTE", 120)
	if redisAddr := config.String("REDIS_ADDR", ""); redisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: redisAddr, Password: config.String("REDIS_PASSWORD", "")})
		defer rdb.Close()
		rateLimit = httpx.NewRedisRateLimiter(rdb, perMinute, time.Minute, serviceName).Middleware(log, true)
		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "redis", Check: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})
	} else {
		rateLimit = httpx.NewRateLimiter(perMinute, time.Minute).Middleware()
	}

	// Handlers.
	bookingHandler := handlers.NewBookingHandler(engine, store, intents, recorder, notifier, log)
	ownerHandler := handlers.NewOwnerHandler(store, log)
	webhookHandler := handlers.NewStripeWebhookHandler(store, config.String("STRIPE_WEBHOOK_SECRET", ""), log)

	authCfg := identity.Config{
		JWTSecret:        jwtSecret,
		APIKeyHash:       config.String("OWNER_API_KEY_HASH", ""),
		APIKeyBusinessID: config.String("OWNER_API_KEY_BUSINESS_ID", ""),
	}

	r := mux.NewRouter()
	r.HandleFunc("/healthz", runtime.HealthzHandler()).Methods(http.MethodGet)
	r.HandleFunc("/readyz", runtime.ReadyzHandler(readyChecks...)).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	api := r.PathPrefix("/api/v1").Subrouter()
	route := func(method, path string, h http.Handler) {
		api.Handle(path, metrics.Instrument(path, h)).Methods(method)
	}
	route(http.MethodGet, "/businesses/{businessID}/availability", http.HandlerFunc(bookingHandler.Availability))
	route(http.MethodGet, "/businesses/{businessID}/services", http.HandlerFunc(bookingHandler.Services))
	route(http.MethodPost, "/bookings", http.HandlerFunc(bookingHandler.Create))
	route(http.MethodGet, "/bookings/{token}", http.HandlerFunc(bookingHandler.Get))
	route(http.MethodPost, "/bookings/{token}/reschedule", http.HandlerFunc(bookingHandler.Reschedule))
	route(http.MethodPost, "/bookings/{token}/cancel", http.HandlerFunc(bookingHandler.Cancel))
	route(http.MethodPost, "/stripe/webhook", webhookHandler)

	ownerRoute := func(method, path string, h http.HandlerFunc) {
		route(method, "/owner"+path, identity.RequireOwner(authCfg, h))
	}
	ownerRoute(http.MethodGet, "/schedule", ownerHandler.GetSchedule)
	ownerRoute(http.MethodPut, "/schedule", ownerHandler.UpdateSchedule)
	ownerRoute(http.MethodGet, "/services", ownerHandler.ListServices)
	ownerRoute(http.MethodPost, "/services", ownerHandler.CreateService)
	ownerRoute(http.MethodPut, "/services/{serviceID}", ownerHandler.UpdateService)
	ownerRoute(http.MethodDelete, "/services/{serviceID}", ownerHandler.DeleteService)
	ownerRoute(http.MethodGet, "/bookings", ownerHandler.ListBookings)
	ownerRoute(http.MethodGet, "/stats", ownerHandler.Stats)

	handler := otelhttp.NewHandler(httpx.Chain(r,
		httpx.WithRequestID,
		httpx.WithAccessLog(log),
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins: splitCSV(config.String("CORS_ALLOWED_ORIGINS", "")),
			AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Content-Type", "Authorization", "X-Api-Key"},
			MaxAge:         10 * time.Minute,
		}),
		httpx.WithBodyLimit(1<<20),
		rateLimit,
	), serviceName)

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", "port", port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func splitCSV(raw string) []string {
	var out []string
	for _, v := range strings.Split(raw, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
