package cmd

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/core"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	pubnub "github.com/pubnub/go"
	"github.com/redis/go-redis/v9"

	"queueline/config"
	"queueline/internal/feed"
	"queueline/internal/handlers"
	"queueline/internal/push"
	"queueline/internal/services"
	"queueline/internal/store"
	"queueline/monitoring"
	"queueline/security"
	"queueline/utils"
)

func Start() error {
	app := pocketbase.New()

	// Load configuration
	cfg := config.LoadConfig()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize Redis; without it the change feed stays in-process and
	// rate limiting is disabled.
	var redisClient *redis.Client
	var notifier feed.Notifier = feed.NewLocalNotifier()
	if cfg.RedisURL != "" {
		redisClient = utils.NewRedisClient(cfg.RedisURL, cfg.RedisPassword, cfg.RedisDB)
		defer redisClient.Close()
		notifier = feed.NewRedisNotifier(redisClient)
	}

	// Initialize PubNub
	var publisher push.Publisher = push.NopPublisher{}
	if cfg.PubNubPublishKey != "" {
		pnConfig := pubnub.NewConfig()
		pnConfig.PublishKey = cfg.PubNubPublishKey
		pnConfig.SubscribeKey = cfg.PubNubSubscribeKey
		pnConfig.SecretKey = cfg.PubNubSecretKey
		publisher = push.NewPubNubPublisher(pubnub.NewPubNub(pnConfig))
	}

	// Open the queue store
	db, err := store.Open(cfg.StoreDSN)
	if err != nil {
		return err
	}
	defer db.Close()

	st := store.New(db, notifier, cfg.StrictJoin)
	if err := st.Migrate(ctx); err != nil {
		return err
	}

	// Initialize services
	engine := services.NewSyncEngine(st, notifier, publisher, cfg.RefreshDebounce)
	queueService := services.NewQueueService(st, engine, cfg.CodeLength, cfg.CodeAttempts)
	locationService := services.NewLocationService(cfg.LookupBaseURL, cfg.LookupTimeout, cfg.LookupMinChars, cfg.LookupLimit)

	// Initialize handlers
	queueHandler := handlers.NewQueueHandler(app, queueService, engine)
	viewerHandler := handlers.NewViewerHandler(app, engine)
	locationHandler := handlers.NewLocationHandler(app, locationService)

	// Start background tasks
	go engine.Run(ctx)
	if cfg.EnableMetrics {
		monitor := monitoring.NewMonitor(engine, locationService.Breaker(), cfg.MetricsInterval)
		go monitor.Run(ctx)
	}

	// Setup graceful shutdown
	go handleShutdown(cancel)

	app.OnServe().BindFunc(func(e *core.ServeEvent) error {
		// Queue lifecycle
		createRoute := e.Router.POST("/api/v1/queues", queueHandler.CreateQueue)
		joinRoute := e.Router.POST("/api/v1/queues/{queueId}/join", queueHandler.JoinQueue)
		e.Router.PATCH("/api/v1/queues/{queueId}", queueHandler.UpdateQueue)
		e.Router.DELETE("/api/v1/queues/{queueId}", queueHandler.EndQueue)

		// Roster operations
		e.Router.POST("/api/v1/queues/{queueId}/call-next", queueHandler.CallNext)
		e.Router.DELETE("/api/v1/queues/{queueId}/members/{memberId}", queueHandler.RemovePerson)
		e.Router.POST("/api/v1/queues/{queueId}/leave", queueHandler.LeaveQueue)
		e.Router.POST("/api/v1/queue/leave-current", queueHandler.LeaveCurrentQueue)

		// Read side
		e.Router.GET("/api/v1/queues", viewerHandler.ListQueues)
		e.Router.GET("/api/v1/queues/{queueId}", viewerHandler.GetQueue)
		e.Router.GET("/api/v1/queues/{queueId}/stats", queueHandler.GetStats)
		e.Router.GET("/api/v1/me/queue", viewerHandler.GetViewerState)

		// Address lookup
		e.Router.GET("/api/v1/locations/search", locationHandler.Search)

		// Rate limit the write-heavy entry points
		if redisClient != nil {
			limiter := security.NewRateLimiter(redisClient)
			createRoute.Bind(limiter.Limit("create", cfg.JoinRateLimit, cfg.JoinRateWindow))
			joinRoute.Bind(limiter.Limit("join", cfg.JoinRateLimit, cfg.JoinRateWindow))
		}

		// Metrics
		if cfg.EnableMetrics {
			e.Router.GET("/metrics", func(e *core.RequestEvent) error {
				promhttp.Handler().ServeHTTP(e.Response, e.Request)
				return nil
			})
		}

		// Health check
		e.Router.GET("/health", func(e *core.RequestEvent) error {
			if err := st.Health(e.Request.Context()); err != nil {
				return e.JSON(http.StatusServiceUnavailable, map[string]string{
					"status": "unhealthy",
					"error":  err.Error(),
				})
			}
			if redisClient != nil {
				if err := utils.RedisHealthCheck(redisClient); err != nil {
					return e.JSON(http.StatusServiceUnavailable, map[string]string{
						"status": "unhealthy",
						"error":  err.Error(),
					})
				}
			}
			return e.JSON(http.StatusOK, map[string]string{"status": "healthy"})
		})

		log.Println("Server routes registered")

		return e.Next()
	})

	// Start server
	return app.Start()
}

// handleShutdown handles graceful shutdown
func handleShutdown(cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan
	log.Println("Shutdown signal received, cleaning up...")
	cancel()
}
