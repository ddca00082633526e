package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"social-service/internal/config"
	"social-service/internal/db"
	grpcsvc "social-service/internal/grpc"
	"social-service/internal/handlers"
	"social-service/internal/live"
	"social-service/internal/logging"
	"social-service/internal/metrics"
	"social-service/internal/middleware"
	"social-service/internal/observability"
	"social-service/internal/rabbitmq"
	"social-service/internal/repositories"
	"social-service/internal/services"
	"social-service/internal/telemetry"
)

func main() {
	cfgPath := os.Getenv("CONFIG_PATH")
	if len(os.Args) > 1 {
		cfgPath = os.Args[1]
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config: %v", err)
	}

	logger, err := logging.New(cfg.Server.Debug, cfg.Server.LogLevel)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ---- Store ----
	var store repositories.Store
	switch cfg.Store.Mode {
	case config.StoreModeMemory:
		logger.Warn("using in-memory store; data is lost on restart")
		store = repositories.NewMemoryStore()
	default:
		database, err := db.Connect(ctx, cfg.Store.DSN)
		if err != nil {
			logger.Fatal("failed to connect to database", zap.Error(err))
		}
		defer database.Close()
		store = repositories.NewPostgresStore(database)
		logger.Info("DB initialized")
	}

	// ---- Change feed ----
	var feed live.Feed = live.NewLocalFeed()
	if cfg.Redis.Addr != "" {
		redisFeed, err := live.NewRedisFeed(ctx, live.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Channel:  cfg.Redis.Channel,
		}, logger)
		if err != nil {
			logger.Fatal("failed to connect to redis", zap.Error(err))
		}
		feed = redisFeed
		logger.Info("redis change feed initialized", zap.String("channel", cfg.Redis.Channel))
	}
	defer feed.Close()

	// ---- Publishers ----
	events := newPublisher(cfg.AMQP.URL, cfg.AMQP.EventsExchange, "event", logger)
	defer events.Close()
	auditPublisher := newPublisher(cfg.AMQP.URL, cfg.AMQP.LogsExchange, "audit", logger)
	defer auditPublisher.Close()

	observability.InitMetrics(prometheus.DefaultRegisterer)
	metrics.RegisterSocialMetrics()

	// ---- Services ----
	deps := services.Deps{Store: store, Feed: feed, Events: events, Logger: logger}
	userService := services.NewUserService(deps, cfg.Security.BcryptCost)
	friendService := services.NewFriendService(deps)
	messageService := services.NewMessageService(deps)
	directoryService := services.NewDirectoryService(deps)

	registry, err := live.NewRegistry(ctx, store, feed, logger)
	if err != nil {
		logger.Fatal("failed to start live query registry", zap.Error(err))
	}
	defer registry.Close()

	auditEmitter := telemetry.NewAuditEmitter(auditPublisher, cfg.Server.ServiceName, cfg.Server.Environment, logger)
	userHandler := handlers.NewUserHandler(userService, directoryService, auditEmitter, cfg.Security.JWTSecret, cfg.Security.JWTTTL)
	friendHandler := handlers.NewFriendHandler(friendService, auditEmitter)
	messageHandler := handlers.NewMessageHandler(messageService, auditEmitter)
	liveHandler := handlers.NewLiveHandler(registry, handlers.LiveQueries{
		Users:     userService,
		Friends:   friendService,
		Messages:  messageService,
		Directory: directoryService,
	}, cfg.Security.AllowedOrigins, logger)

	grpcServer := grpcsvc.NewSocialGRPCServer(userService, friendService, messageService)
	if _, err := grpcsvc.StartGRPCServer(ctx, cfg.Server.GRPCAddr, grpcServer, logger); err != nil {
		logger.Fatal("failed to start gRPC server", zap.Error(err))
	}

	// ---- HTTP ----
	if !cfg.Server.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(middleware.TraceID(), middleware.Logger(logger), middleware.Recovery(logger), middleware.Metrics())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.POST("/users", userHandler.Signup)
	r.POST("/auth/login", userHandler.Login)
	r.GET("/users/:id", userHandler.GetUserByID)

	auth := r.Group("", middleware.JWTAuth(cfg.Security.JWTSecret))
	auth.GET("/users/me", userHandler.GetMe)
	auth.GET("/users/search", userHandler.Search)
	auth.POST("/users/me/blocks", userHandler.Block)
	auth.DELETE("/users/me/blocks/:target_id", userHandler.Unblock)
	auth.DELETE("/users/me", userHandler.DeleteAccount)
	auth.POST("/friends/request", friendHandler.SendRequest)
	auth.GET("/friends/requests/incoming", friendHandler.ListIncoming)
	auth.POST("/friends/requests/:id/accept", friendHandler.AcceptRequest)
	auth.POST("/friends/requests/:id/reject", friendHandler.RejectRequest)
	auth.GET("/friends", friendHandler.ListFriends)
	auth.POST("/messages", messageHandler.Send)
	auth.GET("/messages/:user_id", messageHandler.List)
	auth.GET("/ws/live", liveHandler.Serve)

	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: r,
	}

	go func() {
		logger.Info("HTTP server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP server shutdown error", zap.Error(err))
	}
}

// newPublisher falls back to a no-op publisher when RabbitMQ is not configured
// or unreachable; events are then dropped with a debug log.
func newPublisher(amqpURL, exchange, kind string, logger *zap.Logger) rabbitmq.Publisher {
	if amqpURL == "" {
		logger.Warn("AMQP_URL not set; publishing disabled", zap.String("kind", kind))
		return rabbitmq.NewNoopPublisher(logger)
	}
	pub, err := rabbitmq.NewPublisher(amqpURL, exchange, logger)
	if err != nil {
		logger.Warn("failed to initialize RabbitMQ publisher", zap.String("kind", kind), zap.Error(err))
		return rabbitmq.NewNoopPublisher(logger)
	}
	return pub
}
