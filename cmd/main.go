/**
 * @description
 * This is the main entry point for the wallet-service. It is responsible for
 * initializing all components of the service, including configuration, database
 * connection, the airtime aggregator client, message brokers, repositories, the
 * core application service, and the HTTP server. It wires everything together
 * and starts the service.
 *
 * @dependencies
 * - log, net/http: Standard Go libraries for logging and HTTP server functionality.
 * - github.com/go-chi/chi/v5: For HTTP routing.
 * - github.com/jackc/pgx/v5: PostgreSQL driver.
 * - github.com/joho/godotenv: Loads the optional local .env file.
 * - internal/api, internal/app, internal/config, internal/store: Internal packages for the service.
 * - pkg/topupclient: Client for the airtime aggregator API.
 * - pkg/rabbitmq: Client for RabbitMQ.
 */

package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/sikapay/wallet-service/internal/api"
	"github.com/sikapay/wallet-service/internal/app"
	"github.com/sikapay/wallet-service/internal/config"
	"github.com/sikapay/wallet-service/internal/store"
	rmrabbit "github.com/sikapay/wallet-service/pkg/rabbitmq"
	"github.com/sikapay/wallet-service/pkg/topupclient"
)

func main() {
	// Load the optional local .env file before reading the environment.
	_ = godotenv.Load()

	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"config load failed\" err=%v", err)
	}

	log.Printf("level=info component=bootstrap msg=\"starting wallet-service\" port=%s", cfg.ServerPort)

	// Establish a connection pool to the PostgreSQL database.
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database url parse failed\" err=%v", err)
	}

	// Configure connection pool for high-traffic scenarios
	poolConfig.MaxConns = 100
	poolConfig.MinConns = 20
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.MaxConnIdleTime = 5 * time.Minute

	// Disable prepared statement caching to prevent conflicts
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	dbpool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database connection failed\" err=%v", err)
	}
	defer dbpool.Close()
	log.Println("level=info component=bootstrap msg=\"database connected\"")

	// Initialize the RabbitMQ producer to publish completion events. The
	// broker being down must not block transaction processing, so a failed
	// connection degrades to the no-op fallback.
	var producer rmrabbit.Publisher
	if eventProducer, prodErr := rmrabbit.NewEventProducer(cfg.RabbitMQURL); prodErr != nil {
		log.Printf("level=warn component=bootstrap msg=\"rabbitmq producer unavailable; using fallback\" err=%v", prodErr)
		producer = &rmrabbit.EventProducerFallback{}
	} else {
		producer = eventProducer
		log.Println("level=info component=bootstrap msg=\"rabbitmq producer connected\"")
	}
	defer producer.Close()

	// Initialize the client for the airtime aggregator API. Missing aggregator
	// config should not prevent the service from booting; airtime runs degrade.
	var topupClient *topupclient.Client
	if strings.TrimSpace(cfg.TopupAPIBaseURL) == "" || strings.TrimSpace(cfg.TopupAPIKey) == "" {
		log.Printf("level=warn component=bootstrap msg=\"topup client not configured; airtime flow disabled\" base_url_set=%t api_key_set=%t",
			strings.TrimSpace(cfg.TopupAPIBaseURL) != "",
			strings.TrimSpace(cfg.TopupAPIKey) != "",
		)
	} else {
		topupClient = topupclient.NewClient(cfg.TopupAPIBaseURL, cfg.TopupAPIKey, cfg.TopupProxyURL)
	}

	var redisClient *redis.Client
	if cfg.EligibilityRateLimitPerMinute > 0 {
		if strings.TrimSpace(cfg.RedisURL) == "" {
			log.Println("level=warn component=bootstrap msg=\"redis url missing; eligibility rate limiting disabled\" env=REDIS_URL")
		} else {
			redisOptions, parseErr := redis.ParseURL(cfg.RedisURL)
			if parseErr != nil {
				log.Printf("level=warn component=bootstrap msg=\"redis url parse failed; eligibility rate limiting disabled\" err=%v", parseErr)
			} else {
				redisClient = redis.NewClient(redisOptions)
				pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancelPing()
				if pingErr := redisClient.Ping(pingCtx).Err(); pingErr != nil {
					log.Printf("level=warn component=bootstrap msg=\"redis ping failed; eligibility rate limiting disabled\" err=%v", pingErr)
					redisClient.Close()
					redisClient = nil
				} else {
					defer redisClient.Close()
					log.Println("level=info component=bootstrap msg=\"redis connected\"")
				}
			}
		}
	}

	// Initialize the data access layer (repository).
	repository := store.NewPostgresRepository(dbpool)

	// Initialize the core application service with its dependencies.
	walletService := app.NewService(
		repository,
		topupClient,
		producer,
		cfg.TransactionExchange,
		app.Rates{
			Transfer:     cfg.TransferCommissionPercent,
			Subscription: cfg.SubscriptionCommissionPercent,
			Airtime:      cfg.AirtimeCommissionPercent,
		},
		time.Duration(cfg.ProcessingDelayMs)*time.Millisecond,
		time.Duration(cfg.RunTTLMinutes)*time.Minute,
	)
	if redisClient != nil {
		walletService.SetEligibilityRateLimiter(
			app.NewRedisRateLimiter(redisClient, cfg.RedisRateLimitPrefix),
			cfg.EligibilityRateLimitPerMinute,
		)
	}

	// Start the janitor that reclaims abandoned runs.
	scheduler := app.NewScheduler(walletService, cfg.RunJanitorSchedule)
	scheduler.Start()
	defer func() { <-scheduler.Stop().Done() }()

	// Initialize the API handlers and router.
	walletHandlers := api.NewWalletHandlers(walletService)
	router := chi.NewRouter()
	router.Mount("/", api.WalletRoutes(walletHandlers, cfg.JWKSURL, cfg.InternalAPIKey))

	serverAddr := fmt.Sprintf(":%s", cfg.ServerPort)
	log.Printf("level=info component=http msg=\"server listening\" addr=%s", serverAddr)

	server := &http.Server{
		Addr:    serverAddr,
		Handler: router,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("level=fatal component=http msg=\"server stopped unexpectedly\" err=%v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Println("level=info component=http msg=\"shutdown started\"")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("level=error component=http msg=\"shutdown failed\" err=%v", err)
	}

	log.Println("level=info component=http msg=\"shutdown complete\"")
}
