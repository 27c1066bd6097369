// README: Entry point; loads config, wires stores and services, serves the HTTP API until SIGINT/SIGTERM.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"potluck/internal/config"
	httptransport "potluck/internal/http"
	"potluck/internal/http/middleware"
	"potluck/internal/infra"
	"potluck/internal/logger"
	"potluck/internal/metrics"
	"potluck/internal/modules/catalog"
	"potluck/internal/modules/location"
	"potluck/internal/modules/matching"
	"potluck/internal/modules/notification"
	"potluck/internal/modules/order"
	"potluck/internal/modules/pricing"
	"potluck/internal/modules/settlement"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	log, err := logger.New(cfg.Log.Level, cfg.IsDevelopment())
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()
	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := run(cfg, log); err != nil {
		log.Fatal("potluck-api stopped", zap.Error(err))
	}
}

func run(cfg config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Firebase.ProjectID == "" {
		return errors.New("POTLUCK_FIREBASE_PROJECT_ID is required")
	}
	verifier, err := infra.NewFirebaseVerifier(ctx, cfg.Firebase.ProjectID, cfg.Firebase.CredentialsFile)
	if err != nil {
		return err
	}

	if cfg.DB.MigrationsEnabled {
		if err := infra.Migrate(cfg.DB.DSN, log); err != nil {
			return err
		}
	}
	db, err := infra.NewDB(ctx, cfg.DB.DSN)
	if err != nil {
		return err
	}
	defer db.Close()

	redisClient, err := infra.NewRedis(ctx, cfg.Redis.Addr)
	if err != nil {
		return err
	}
	defer func() { _ = redisClient.Close() }()

	newID, err := infra.NewIDGenerator(cfg.NodeID)
	if err != nil {
		return err
	}
	orderTZ, err := time.LoadLocation(cfg.Orders.Timezone)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewGoCollector(), prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	notificationSvc := notification.NewService(notification.NewStore(db), log, m)

	var oracle pricing.Oracle
	if cfg.Pricing.GeminiKey != "" {
		gemini, err := pricing.NewGeminiOracle(ctx, cfg.Pricing.GeminiKey)
		if err != nil {
			return err
		}
		defer gemini.Close()
		oracle = gemini
	} else {
		log.Warn("GEMINI_API_KEY not set; price suggestions use the rule-based fallback")
	}
	pricingSvc := pricing.NewService(oracle, pricing.NewQuotaStore(db, cfg.Pricing.MonthlyAICalls), cfg.Pricing.Timeout, log, m)
	catalogSvc := catalog.NewService(catalog.NewStore(db), pricingSvc, newID, log)

	geocoders := []location.Geocoder{}
	if cfg.Maps.APIKey != "" {
		maps, err := location.NewMapsGeocoder(cfg.Maps.APIKey)
		if err != nil {
			return err
		}
		geocoders = append(geocoders, maps)
	}
	geocoders = append(geocoders, location.StaticGeocoder{})
	locationSvc := location.NewService(
		location.NewStore(db, redisClient),
		location.NewFallbackGeocoder(log, geocoders...),
		cfg.Matching.RadiusKm,
		log,
	)

	orderStore := order.NewStore(db)
	settlementSvc := settlement.NewService(settlement.NewStore(db), orderStore, notificationSvc, log, m)
	orderSvc := order.NewService(order.Deps{
		Repo:     orderStore,
		Catalog:  catalogSvc,
		Settler:  settlementSvc,
		Notifier: notificationSvc,
		Location: orderTZ,
		NewID:    newID,
		Log:      log,
		Metrics:  m,
	})
	matchingSvc := matching.NewService(matching.NewStore(db), locationSvc, notificationSvc, cfg.Matching, log, m)

	router := httptransport.NewRouter(httptransport.RouterDeps{
		Orders:        orderSvc,
		Matching:      matchingSvc,
		Location:      locationSvc,
		Settlement:    settlementSvc,
		Notifications: notificationSvc,
		Catalog:       catalogSvc,
		Verifier:      verifier,
		Revocations:   middleware.NewRedisRevocations(redisClient),
		Counter:       middleware.NewRedisCounter(redisClient),
		RateLimit:     cfg.RateLimit,
		CORSOrigins:   cfg.HTTP.CORSOrigins,
		Log:           log,
		Metrics:       m,
		Gatherer:      reg,
	})

	return httptransport.NewServer(cfg.HTTP.Addr, router, log).Run(ctx)
}
