package main // Entry point package

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/naavyaj-29/DormDash/internal/config"
	"github.com/naavyaj-29/DormDash/internal/database"
	"github.com/naavyaj-29/DormDash/internal/handler"
	"github.com/naavyaj-29/DormDash/internal/middleware"
	"github.com/naavyaj-29/DormDash/internal/queue"
	"github.com/naavyaj-29/DormDash/internal/repository"
	"github.com/naavyaj-29/DormDash/internal/router"
	"github.com/naavyaj-29/DormDash/internal/service"
)

func main() {
	cfg := config.Load()
	log := config.NewLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		log.WithError(err).Fatal("open meal store")
	}
	defer closeStore()

	events, closeEvents := openPublisher(cfg, log)
	defer closeEvents()

	if cfg.ReservationConsumer && cfg.EventsDriver == config.EventsRabbitMQ {
		go func() {
			err := queue.StartReservationConsumer(ctx, cfg.RabbitURL, cfg.ReservationLogPath, log)
			if err != nil && !errors.Is(err, context.Canceled) {
				log.WithError(err).Error("reservation consumer stopped")
			}
		}()
	}

	opts := service.StoreOptions{
		Timeout:      cfg.StoreTimeout,
		ReadRetries:  cfg.StoreReadRetries,
		RetryBackoff: cfg.StoreRetryBackoff,
	}
	h := handler.NewMealHandler(
		service.NewListingService(store, events, log, opts),
		service.NewReservationService(store, events, log, opts),
		log,
	)

	// Redis is optional; both middlewares pass through when it is nil.
	rdb := config.NewRedisClient(log)
	if rdb != nil {
		defer rdb.Close()
	}
	limiter := middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb, log)
	cache := middleware.NewRedisCache(config.LoadCacheConfig(), rdb, log)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = handler.ErrorHandler(log)
	// Pre runs before routing so every OPTIONS request is answered here.
	e.Pre(middleware.CORS(cfg.CORSOrigin), middleware.Preflight)
	e.Use(middleware.RequestLogger(log))
	router.RegisterRoutes(e, h, limiter, cache)

	addr := ":" + cfg.Port
	log.WithFields(logrus.Fields{"addr": addr, "env": cfg.Env, "store": cfg.StoreDriver, "events": cfg.EventsDriver}).Info("listening")
	// return instead of exiting so the deferred closers still run
	if err := serve(ctx, e, addr); err != nil {
		log.WithError(err).Error("server failed")
		return
	}
	log.Info("server stopped")
}

// serve runs e on addr until ctx is done, then shuts it down gracefully. A
// listener failure is returned as soon as it happens.
func serve(ctx context.Context, e *echo.Echo, addr string) error {
	serverErr := make(chan error, 1)
	go func() {
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}

// openStore selects the meal store backend and prepares its schema or
// indexes. The returned func releases the underlying connection.
func openStore(ctx context.Context, cfg config.Config) (service.MealStore, func(), error) {
	setupCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	switch cfg.StoreDriver {
	case config.StoreMongo:
		client, db, err := database.OpenMongo(cfg.MongoURI, cfg.MongoDB)
		if err != nil {
			return nil, nil, err
		}
		repo := repository.NewMealMongoRepo(db.Collection("meals"))
		if err := repo.EnsureIndexes(setupCtx); err != nil {
			_ = client.Disconnect(context.Background())
			return nil, nil, err
		}
		return repo, func() { _ = client.Disconnect(context.Background()) }, nil
	case config.StorePebble:
		db, err := database.OpenPebble(cfg.PebbleDir)
		if err != nil {
			return nil, nil, err
		}
		return repository.NewMealPebbleRepo(db), func() { _ = db.Close() }, nil
	default:
		db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
		if err != nil {
			return nil, nil, err
		}
		if err := database.EnsureSchema(setupCtx, db); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		return repository.NewMealRepo(db), func() { _ = db.Close() }, nil
	}
}

// openPublisher returns the event publisher for the configured broker, or
// a no-op publisher when events are disabled.
func openPublisher(cfg config.Config, log *logrus.Logger) (service.EventPublisher, func()) {
	switch cfg.EventsDriver {
	case config.EventsRabbitMQ:
		return queue.NewRabbitPublisher(cfg.RabbitURL, log), func() {}
	case config.EventsKafka:
		p := queue.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		return p, closer(p, log)
	default:
		return queue.NopPublisher{}, func() {}
	}
}

func closer(c io.Closer, log *logrus.Logger) func() {
	return func() {
		if err := c.Close(); err != nil {
			log.WithError(err).Warn("close publisher")
		}
	}
}
