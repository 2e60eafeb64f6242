package main

import (
	"context"
	"flag"
	"log"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"availability-service/internal/app"
	"availability-service/internal/availability"
	"availability-service/internal/calendar"
	"availability-service/internal/config"
	"availability-service/internal/logger"
	"availability-service/internal/secrets"
	"availability-service/internal/server"
	"availability-service/internal/store"
	"availability-service/internal/telemetry"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	lg, err := logger.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer lg.Sync()

	if err := run(cfg, lg); err != nil {
		lg.Fatal("server exited", zap.Error(err))
	}
}

func run(cfg *config.Config, lg *zap.Logger) error {
	ctx := context.Background()

	shutdownTracing, err := telemetry.Setup(ctx, telemetry.Config{
		Enabled:     cfg.Telemetry.Enabled,
		ServiceName: cfg.Telemetry.ServiceName,
		Endpoint:    cfg.Telemetry.Endpoint,
		SampleRatio: cfg.Telemetry.SampleRatio,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			lg.Warn("tracer shutdown failed", zap.Error(err))
		}
	}()

	pool, err := store.Connect(ctx, cfg.Database.URL)
	if err != nil {
		return err
	}
	defer pool.Close()

	if cfg.Database.Migrate {
		if err := store.Migrate(pool, lg.Named("migrate")); err != nil {
			return err
		}
	}
	db := store.New(pool)

	box, err := secrets.NewBoxFromBase64(cfg.Secrets.Key)
	if err != nil {
		return err
	}

	httpClient := calendar.NewHTTPClient(cfg.Engine.ProviderTimeout)
	providers := map[availability.Provider]availability.EventLister{
		availability.ProviderGoogle: calendar.NewGoogleClient(calendar.GoogleConfig{
			ClientID:     cfg.Google.ClientID,
			ClientSecret: cfg.Google.ClientSecret,
		}, httpClient),
		availability.ProviderOutlook: calendar.NewOutlookClient(calendar.OutlookConfig{
			ClientID:     cfg.Outlook.ClientID,
			ClientSecret: cfg.Outlook.ClientSecret,
			Tenant:       cfg.Outlook.Tenant,
			BaseURL:      cfg.Outlook.BaseURL,
		}, httpClient),
		availability.ProviderICS: calendar.NewICSClient(httpClient, cfg.ICS.MaxBytes),
	}

	aggregator := availability.NewAggregator(db, box, providers, availability.AggregatorConfig{
		ProviderTimeout: cfg.Engine.ProviderTimeout,
		MaxConcurrent:   cfg.Engine.MaxConcurrentProviders,
	}, lg)

	loc, err := cfg.Engine.Location()
	if err != nil {
		return err
	}
	dayStart, dayEnd, err := cfg.Engine.BusinessHoursRange()
	if err != nil {
		return err
	}
	engine := availability.NewEngine(db, db, aggregator, availability.Config{
		DefaultLocation: loc,
		BusinessHours:   availability.BusinessHours{Start: dayStart, End: dayEnd},
		SuggestionStep:  cfg.Engine.SuggestionStep,
	}, lg)

	checks := map[string]app.ReadinessCheck{
		"postgres": db.Ping,
	}
	routerCfg := app.RouterConfig{
		JWTSecret:      cfg.Auth.JWTSecret,
		StaticTokens:   cfg.Auth.StaticTokens,
		RequestTimeout: cfg.Server.RequestTimeout,
	}

	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			lg.Warn("redis unreachable at startup, rate limiter fails open", zap.Error(err))
		}
		checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
		routerCfg.RateLimiter = app.RateLimit(app.NewRedisCounter(rdb), app.RateLimitConfig{
			Limit:    cfg.Redis.RateLimit,
			Window:   cfg.Redis.RateWindow,
			Prefix:   "availability:rl",
			FailOpen: true,
		}, lg.Named("ratelimit"))
	}

	a := app.New(engine, db, checks, lg)
	return server.Run(ctx, server.Config{
		Addr:            cfg.Server.Addr(),
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}, a.Router(routerCfg), lg)
}
