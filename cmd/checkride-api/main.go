// README: Entry point; loads config, wires services, starts HTTP server and rotation loop.
package main

import (
	"context"
	"log"
	"net/http"
	"net/smtp"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"checkride/internal/config"
	"checkride/internal/geo"
	httptransport "checkride/internal/http"
	"checkride/internal/http/handlers"
	"checkride/internal/infra"
	"checkride/internal/modules/booking"
	"checkride/internal/modules/examiner"
	"checkride/internal/modules/matching"
	"checkride/internal/modules/pricing"
	"checkride/internal/modules/rotation"
	"checkride/internal/notify"
	"checkride/internal/payments"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	logger, err := infra.NewLogger(os.Getenv("CHECKRIDE_ENV"))
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbPool, err := infra.NewDB(ctx, cfg.DB.DSN)
	if err != nil {
		logger.Fatal("database init failed", zap.Error(err))
	}
	defer dbPool.Close()

	redisClient, err := infra.NewRedis(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		logger.Fatal("redis init failed", zap.Error(err))
	}

	// Geocoding: provider chain behind a Redis cache, deterministic fallback
	// when every provider misses.
	var providers []geo.Provider
	if cfg.Geocoding.OpenCageKey != "" {
		providers = append(providers, geo.NewOpenCage(cfg.Geocoding.OpenCageKey, nil))
	}
	if cfg.Geocoding.GoogleMapsKey != "" {
		gp, err := geo.NewGoogleMaps(cfg.Geocoding.GoogleMapsKey)
		if err != nil {
			logger.Fatal("google maps init failed", zap.Error(err))
		}
		providers = append(providers, gp)
	}
	if cfg.Geocoding.MapboxToken != "" {
		providers = append(providers, geo.NewMapbox(cfg.Geocoding.MapboxToken, nil))
	}
	geocoder := geo.NewCached(
		geo.NewChain(logger, providers...),
		geo.NewRedisCacheStore(redisClient, cfg.Geocoding.CacheTTL, logger),
		logger,
	)

	// Notifications.
	var slackNotifier notify.Notifier = notify.Noop{}
	if cfg.Notify.SlackWebhookURL != "" {
		slackNotifier = notify.NewSlackNotifier(cfg.Notify.SlackWebhookURL, cfg.Notify.SlackChannel)
	}
	ops := notify.Absorb(slackNotifier, logger, "slack")

	var emailNotifier notify.Notifier = notify.Func(func(_ context.Context, recipient, subject, _ string) error {
		logger.Info("email notification (smtp not configured)",
			zap.String("to", recipient), zap.String("subject", subject))
		return nil
	})
	if cfg.Notify.SMTPAddr != "" {
		emailNotifier = notify.NewEmailNotifier(cfg.Notify.SMTPAddr, cfg.Notify.SMTPFrom, smtp.Auth(nil))
	}
	students := notify.Absorb(emailNotifier, logger, "email")
	// Examiners get contacted on both channels; the SMS side is a stub
	// until a gateway is integrated.
	dpes := notify.Absorb(notify.Multi(emailNotifier, notify.NewSMSNotifier(logger)), logger, "examiner")

	// Module services.
	examinerStore := examiner.NewStore(dbPool)
	pricingSvc := pricing.NewService(pricing.NewStore(dbPool))
	matchingSvc := matching.NewService(examinerStore, geocoder, cfg.Matching, logger)

	bookingStore := booking.NewPostgresStore(dbPool)
	bookingSvc := booking.NewService(bookingStore, students, dpes, ops, logger)

	stripeClient := payments.NewStripeClient(cfg.Stripe, logger)
	pendingStore := payments.NewRedisPendingStore(redisClient)

	flow := handlers.NewFlow(bookingSvc, geocoder, matchingSvc, ops, logger)

	router := httptransport.NewRouter(httptransport.RouterDeps{
		Booking:     handlers.NewBookingHandler(bookingSvc, pricingSvc, flow),
		Payment:     handlers.NewPaymentHandler(stripeClient, pendingStore, bookingSvc, pricingSvc, flow, logger),
		Admin:       handlers.NewAdminHandler(bookingSvc, stripeClient, logger),
		AdminAPIKey: cfg.HTTP.AdminAPIKey,
		Log:         logger,
	})

	rotationSvc := rotation.NewService(bookingStore, matchingSvc, bookingSvc, ops, cfg.Rotation, logger)
	go rotationSvc.Run(ctx)

	server := &http.Server{Addr: cfg.HTTP.Addr, Handler: router}
	go func() {
		<-ctx.Done()
		_ = server.Shutdown(context.Background())
	}()

	logger.Info("checkride api listening", zap.String("addr", cfg.HTTP.Addr))
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal("server exited", zap.Error(err))
	}
}
