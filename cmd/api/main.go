package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/flicky/storefront-api/internal/config"
	"github.com/flicky/storefront-api/internal/events"
	"github.com/flicky/storefront-api/internal/handler"
	"github.com/flicky/storefront-api/internal/middleware"
	"github.com/flicky/storefront-api/internal/redisx"
	"github.com/flicky/storefront-api/internal/repository"
	"github.com/flicky/storefront-api/internal/repository/memory"
	"github.com/flicky/storefront-api/internal/repository/mongostore"
	"github.com/flicky/storefront-api/internal/service"
	"github.com/flicky/storefront-api/internal/session"
	"github.com/flicky/storefront-api/internal/worker"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("load .env", "error", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Error("load config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Storage
	store, err := openStore(ctx, cfg, log)
	if err != nil {
		log.Error("open store", "driver", cfg.Store.Driver, "error", err)
		os.Exit(1)
	}
	defer store.Close()
	checks := map[string]handler.Check{cfg.Store.Driver: store.Ping}

	// Redis
	var (
		revoker service.TokenRevoker
		idem    service.IdempotencyStore
		dedup   worker.Deduper
	)
	if cfg.Redis.Enabled {
		rdb := redisx.New(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		defer rdb.Close()

		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Error("connect to Redis", "error", err)
			os.Exit(1)
		}
		log.Info("connected to Redis")

		revoker = redisx.NewTokenDenylist(rdb)
		idem = redisx.NewIdempotency(rdb)
		dedup = redisx.NewDedup(rdb, "sales")
		checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}

	// Events
	salesWorker := worker.NewSalesWorker(store.Products, dedup, log)
	publisher, consumer, err := openEvents(cfg, salesWorker, checks, log)
	if err != nil {
		log.Error("open events", "driver", cfg.Events.Driver, "error", err)
		os.Exit(1)
	}
	defer publisher.Close()

	// Services
	authSvc := service.NewAuthService(store.Users, revoker, cfg.Auth.JWTSecret, cfg.Auth.TokenTTL())
	userSvc := service.NewUserService(store.Users, store.Products)
	productSvc := service.NewProductService(store.Products)
	cartSvc := service.NewCartService(store.Carts, store.Products)
	orderSvc := service.NewOrderService(store.Orders, store.Carts, store.Products, publisher, idem, cfg.Events.Producer, log)

	// HTTP
	cookies := session.NewCookies(cfg.Auth.CookieName, cfg.Auth.CookieSecret, cfg.Auth.TokenTTL(), cfg.Server.Production())
	limiter := middleware.NewRateLimiter(cfg.RateLimit.AuthRPS, cfg.RateLimit.AuthBurst, log)
	limiter.StartCleanup(ctx, time.Minute, 10*time.Minute)

	router := handler.NewRouter(handler.RouterConfig{
		Production:                cfg.Server.Production(),
		FrontEndURL:               cfg.CORS.FrontEndURL,
		ProductCreateRequiresAuth: cfg.Policy.ProductCreateRequiresAuth,
	}, handler.Handlers{
		Products: handler.NewProductHandler(productSvc),
		Users:    handler.NewUserHandler(authSvc, userSvc, cookies),
		Carts:    handler.NewCartHandler(cartSvc),
		Orders:   handler.NewOrderHandler(orderSvc),
		Health:   handler.NewHealthHandler(checks),
	}, middleware.NewAuth(authSvc, cookies, log), limiter, log)

	var wg sync.WaitGroup
	if consumer != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := salesWorker.Run(ctx, consumer); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("sales worker", "error", err)
			}
		}()
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info("starting HTTP server", "port", cfg.Server.Port, "env", cfg.Server.Env,
			"store", cfg.Store.Driver, "events", cfg.Events.Driver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown", "error", err)
	}
	if consumer != nil {
		_ = consumer.Close()
	}
	wg.Wait()
	log.Info("server stopped")
}

func openStore(ctx context.Context, cfg *config.Config, log *slog.Logger) (*repository.Store, error) {
	switch cfg.Store.Driver {
	case config.StoreDriverMemory:
		log.Warn("using in-memory store; data is lost on restart")
		return memory.NewStore(), nil

	case config.StoreDriverMongo:
		client, err := mongostore.Connect(ctx, cfg.Mongo.URL)
		if err != nil {
			return nil, err
		}
		db := client.Database(cfg.Mongo.Database)
		if err := mongostore.EnsureIndexes(ctx, db); err != nil {
			_ = client.Disconnect(context.Background())
			return nil, err
		}
		log.Info("connected to MongoDB", "database", cfg.Mongo.Database)
		return mongostore.NewStore(client, db), nil
	}

	pool, err := repository.Connect(ctx, cfg.DB.DSN(), cfg.DB.MaxConns)
	if err != nil {
		return nil, err
	}
	if err := repository.Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	log.Info("connected to PostgreSQL")
	return repository.NewPostgresStore(pool), nil
}

// openEvents returns the publisher for order events and, when a broker is
// configured, the consumer feeding the sales worker. Without a broker the
// worker is called inline by the publisher.
func openEvents(cfg *config.Config, sales *worker.SalesWorker, checks map[string]handler.Check, log *slog.Logger) (events.Publisher, events.Consumer, error) {
	switch cfg.Events.Driver {
	case config.EventsDriverAMQP:
		conn, err := amqp.Dial(cfg.RabbitMQ.URL)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to RabbitMQ: %w", err)
		}
		pubCh, err := conn.Channel()
		if err != nil {
			conn.Close()
			return nil, nil, fmt.Errorf("open publish channel: %w", err)
		}
		if err := events.SetupAMQP(pubCh); err != nil {
			conn.Close()
			return nil, nil, err
		}
		subCh, err := conn.Channel()
		if err != nil {
			conn.Close()
			return nil, nil, fmt.Errorf("open consume channel: %w", err)
		}
		checks["rabbitmq"] = func(context.Context) error {
			if conn.IsClosed() {
				return amqp.ErrClosed
			}
			return nil
		}
		log.Info("connected to RabbitMQ")
		return &closingPublisher{Publisher: events.NewAMQPPublisher(pubCh), close: conn.Close},
			events.NewAMQPConsumer(subCh, events.SalesQueue, log), nil

	case config.EventsDriverKafka:
		log.Info("using Kafka", "brokers", cfg.Kafka.Brokers)
		return events.NewKafkaPublisher(cfg.Kafka.Brokers),
			events.NewKafkaConsumer(cfg.Kafka.Brokers, cfg.Kafka.GroupID, events.TypeOrderCreated, log), nil
	}

	return events.NewLocalPublisher(sales.Handle), nil, nil
}

// closingPublisher also closes the AMQP connection that owns the channel.
type closingPublisher struct {
	events.Publisher
	close func() error
}

func (p *closingPublisher) Close() error {
	return errors.Join(p.Publisher.Close(), p.close())
}
