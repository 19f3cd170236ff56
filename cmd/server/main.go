package main // Entry point package

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/iliyamo/open-mic/internal/config"
	"github.com/iliyamo/open-mic/internal/database"
	"github.com/iliyamo/open-mic/internal/fanout"
	"github.com/iliyamo/open-mic/internal/handler"
	"github.com/iliyamo/open-mic/internal/live"
	"github.com/iliyamo/open-mic/internal/metrics"
	"github.com/iliyamo/open-mic/internal/middleware"
	"github.com/iliyamo/open-mic/internal/queue"
	"github.com/iliyamo/open-mic/internal/repository"
	"github.com/iliyamo/open-mic/internal/router"
	"github.com/iliyamo/open-mic/internal/service"
)

type stores struct {
	mics   repository.MicStore
	users  repository.UserStore
	tokens repository.TokenStore
	health handler.Pinger
	close  func()
}

func openStores(ctx context.Context, cfg config.Config) stores {
	if cfg.Store == config.StoreMemory {
		log.Warn().Str("module", "main").Msg("using in-memory store; data is lost on restart")
		return stores{
			mics:   repository.NewMemoryStore(),
			users:  repository.NewMemoryUsers(),
			tokens: repository.NewMemoryTokens(),
			close:  func() {},
		}
	}
	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatal().Err(err).Str("module", "main").Msg("database unavailable")
	}
	if cfg.DBMigrate {
		if err := database.Migrate(ctx, db); err != nil {
			log.Fatal().Err(err).Str("module", "main").Msg("schema migration failed")
		}
	}
	return stores{
		mics:   repository.NewMicRepo(db),
		users:  repository.NewUserRepo(db),
		tokens: repository.NewTokenRepo(db),
		health: db,
		close:  func() { _ = db.Close() },
	}
}

func setupLogging(env string) {
	zerolog.TimeFieldFormat = time.RFC3339
	if env == "dev" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
	level, err := zerolog.ParseLevel(os.Getenv("LOG_LEVEL"))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	config.LoadDotEnv()
	cfg := config.Load() // Load environment config
	setupLogging(cfg.Env)
	metrics.InitMetrics()

	st := openStores(ctx, cfg)
	defer st.close()

	// Redis backs rate limiting and the mic list cache; both switch off
	// when it is unreachable.
	rdb := config.NewRedisClient(config.LoadRedisConfig())
	if rdb != nil {
		defer rdb.Close()
	}
	cacheCfg := config.LoadCacheConfig()
	limit := middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb)
	cache := middleware.NewRedisCache(cacheCfg, rdb)

	hub := live.NewHub()
	brokers := config.LoadBrokerConfig()

	// Snapshots reach local subscribers directly, or through the relay
	// when other instances need them too.
	var fan service.Broadcaster = hub
	if brokers.NATSURL != "" {
		nc, err := fanout.Connect(brokers.NATSURL)
		if err != nil {
			log.Error().Err(err).Str("module", "main").Msg("nats unavailable; relay disabled")
		} else {
			relay := fanout.NewRelay(nc, brokers.SubjectPrefix, hub)
			if err := relay.Start(); err != nil {
				log.Error().Err(err).Str("module", "main").Msg("relay subscribe failed")
			} else {
				fan = relay
			}
			defer func() {
				if err := relay.Close(); err != nil {
					log.Warn().Err(err).Str("module", "main").Msg("nats drain failed")
				}
			}()
		}
	}
	broadcast := service.Broadcasters{fan}
	if inv := middleware.NewCacheInvalidator(cacheCfg, rdb); inv != nil {
		broadcast = append(broadcast, inv)
	}

	var activity service.ActivityPublisher
	if brokers.AMQPURL != "" {
		pub := queue.NewPublisher(brokers.AMQPURL)
		defer pub.Close()
		activity = pub
		if brokers.ActivityConsumer {
			go func() {
				if err := queue.StartActivityConsumer(ctx, brokers.AMQPURL, brokers.ActivityLog); err != nil && !errors.Is(err, context.Canceled) {
					log.Error().Err(err).Str("module", "main").Msg("activity consumer stopped")
				}
			}()
		}
	}

	svc := service.NewMicService(st.mics, st.users, broadcast, activity)

	e := echo.New() // Create Echo instance
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.RequestID())
	e.Use(middleware.RequestLogger())
	e.Use(echomw.Recover())

	mh, ph := handler.NewMicHandler(svc), handler.NewPerformerHandler(svc)
	router.RegisterRoutes(e, st.health)
	router.RegisterAuth(e, handler.NewAuthHandler(cfg, st.users, st.tokens), cfg.JWTSecret, limit)
	router.RegisterPerformer(e, mh, ph, cfg.JWTSecret, limit, cache)
	router.RegisterHost(e, mh, ph, cfg.JWTSecret, limit)
	router.RegisterLive(e, live.NewHandler(ctx, hub, svc, config.LoadLiveConfig()))

	addr := ":" + cfg.Port
	go func() {
		log.Info().Str("module", "main").Str("addr", addr).Str("env", cfg.Env).Str("store", cfg.Store).Msg("listening")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Str("module", "main").Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Str("module", "main").Msg("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Str("module", "main").Msg("forced shutdown")
	}
}
