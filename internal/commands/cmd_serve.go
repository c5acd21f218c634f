package commands

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"marketplace-chat/internal/auth"
	"marketplace-chat/internal/chat"
	"marketplace-chat/internal/config"
	"marketplace-chat/internal/db"
	"marketplace-chat/internal/fabric"
	"marketplace-chat/internal/grpcserver"
	"marketplace-chat/internal/handlers"
	"marketplace-chat/internal/middleware"
	"marketplace-chat/internal/moderation"
	"marketplace-chat/internal/observability"
	"marketplace-chat/internal/rabbitmq"
	"marketplace-chat/internal/repositories"
	"marketplace-chat/internal/storage"
	"marketplace-chat/internal/telemetry"
	"marketplace-chat/internal/ws"
)

type ServeCmd struct {
	flags *Flags
}

func NewServeCmd(flags *Flags) *ServeCmd {
	return &ServeCmd{flags: flags}
}

// Register adds the serve command to the application
func (cmd *ServeCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:        "serve",
		Usage:       "Run the HTTP, WebSocket and gRPC health servers",
		UsageText:   "marketplace-chat serve",
		Description: "Serves /ws/chat, /ws/notifications, the /chat REST API, /metrics and gRPC health until SIGINT or SIGTERM.",
		Action:      cmd.run,
	})
	return app
}

func (cmd *ServeCmd) run(ctx context.Context, _ *cli.Command) error {
	cfg := cmd.flags.Config
	logger := log.With().Str("component", "serve").Logger()

	shutdownTracing, err := telemetry.SetupTracing(ctx, cfg.OTLPEndpoint, cfg.ServiceName, cfg.Environment)
	if err != nil {
		return err
	}

	database, err := db.Connect(ctx, cfg.DBDSN)
	if err != nil {
		return fmt.Errorf("connect db: %w", err)
	}
	if err := db.Migrate(ctx, database); err != nil {
		_ = database.Close()
		return fmt.Errorf("migrate: %w", err)
	}

	publisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange)
	observability.SetPublisher(publisher)
	audit := telemetry.NewAuditEmitter(publisher, cfg.AuditRoutingKey, cfg.ServiceName, cfg.Environment,
		log.With().Str("component", "audit").Logger())

	fab, closeFabric, err := buildFabric(ctx, cfg)
	if err != nil {
		_ = database.Close()
		return err
	}

	censor, err := buildCensor(cfg)
	if err != nil {
		_ = database.Close()
		return err
	}

	blobs, err := storage.NewDiskStore(cfg.MediaDir, cfg.MediaBaseURL)
	if err != nil {
		_ = database.Close()
		return err
	}

	service := chat.NewService(
		repositories.NewRoomRepo(database),
		repositories.NewMessageRepo(database),
		repositories.NewNotificationRepo(database),
		repositories.NewUserRepo(database),
		fab,
		chat.Options{AutoEnroll: cfg.AutoEnroll, Censor: censor},
		log.With().Str("component", "chat").Logger(),
	)

	registry := ws.NewRegistry()
	router := buildRouter(cfg, service, fab, registry, blobs, audit)

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		event := logger.Info().Str("addr", httpServer.Addr).Str("fabric", cfg.FabricBackend).
			Str("amqp", rabbitmq.PublisherMode(publisher))
		if reason := rabbitmq.PublisherNoopReason(publisher); reason != "" {
			event = event.Str("amqp_noop_reason", reason)
		}
		event.Msg("http listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	lis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
	if err != nil {
		return fmt.Errorf("listen grpc: %w", err)
	}
	grpcServer := grpcserver.New(cfg.ServiceName, log.With().Str("component", "grpc").Logger())
	go func() {
		if err := grpcServer.Serve(lis); err != nil {
			logger.Fatal().Err(err).Msg("grpc server failed")
		}
	}()

	// Operations run concurrently; "sessions" orders its own teardown so
	// WebSocket clients are told to go away before the stores disappear.
	wait := gfshutdown.GracefulShutdown(ctx, cfg.ShutdownTimeout, map[string]gfshutdown.Operation{
		"http": func(ctx context.Context) error {
			return httpServer.Shutdown(ctx)
		},
		"grpc": func(ctx context.Context) error {
			return grpcServer.Shutdown(ctx)
		},
		"sessions": func(ctx context.Context) error {
			return closeSessions(ctx, registry, closeFabric, publisher, database)
		},
		"tracing": func(ctx context.Context) error {
			return shutdownTracing(ctx)
		},
	})

	if code := <-wait; code != 0 {
		return cli.Exit("shutdown did not complete cleanly", code)
	}
	logger.Info().Msg("shutdown complete")
	return nil
}

func buildRouter(cfg config.Config, service *chat.Service, fab fabric.Fabric, registry *ws.Registry, blobs *storage.DiskStore, audit *telemetry.AuditEmitter) *gin.Engine {
	logger := log.With().Str("component", "http").Logger()
	authn := auth.NewAuthenticator(cfg.JWTSecret, cfg.JWTIssuer)

	router := gin.New()
	router.Use(
		gin.Recovery(),
		otelgin.Middleware(cfg.ServiceName),
		middleware.RequestID(),
		observability.HTTPMetricsMiddleware(),
	)

	router.GET("/metrics", observability.MetricsHandler())
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if strings.HasPrefix(cfg.MediaBaseURL, "/") {
		router.Static(cfg.MediaBaseURL, blobs.Dir())
	}

	chatWS := ws.NewChatWebSocketHandler(service, fab, registry, log.With().Str("component", "ws.chat").Logger())
	notificationWS := ws.NewNotificationWebSocketHandler(service, fab, registry, log.With().Str("component", "ws.notifications").Logger())

	wsGroup := router.Group("/ws", middleware.WebSocketIdentity(authn))
	wsGroup.GET("/chat", chatWS.Handle)
	wsGroup.GET("/chat/:room_name", chatWS.Handle)
	wsGroup.GET("/notifications", notificationWS.Handle)

	api := router.Group("/chat", middleware.AuthMiddleware(authn), handlers.TouchCaller(service, logger))
	handlers.NewChatHandler(service, blobs, cfg.MaxUploadBytes, audit, logger).Register(api)
	handlers.NewNotificationHandler(service, logger).Register(api)

	handlers.RegisterDebugRoutes(router, audit, registry, cfg.DebugRoutes)
	return router
}

func buildFabric(ctx context.Context, cfg config.Config) (fabric.Fabric, func() error, error) {
	logger := log.With().Str("component", "fabric").Logger()
	hub := fabric.NewHub(logger, cfg.FabricMailboxSize)
	if cfg.FabricBackend != config.FabricRedis {
		return hub, hub.Close, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("redis ping %s: %w", cfg.RedisAddr, err)
	}

	rf, err := fabric.NewRedisFabric(ctx, client, cfg.FabricChannelPrefix, hub, logger)
	if err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	closeAll := func() error {
		return errors.Join(rf.Close(), client.Close())
	}
	return rf, closeAll, nil
}

func buildCensor(cfg config.Config) (moderation.Censor, error) {
	words := cfg.Words()
	if len(words) == 0 {
		return nil, nil
	}
	replacement, err := cfg.ReplacementRune()
	if err != nil {
		return nil, err
	}
	m, err := moderation.New(words, replacement)
	if err != nil {
		return nil, fmt.Errorf("moderation: %w", err)
	}
	log.Info().Int("words", len(words)).Msg("content moderation enabled")
	return m, nil
}

func closeSessions(ctx context.Context, registry *ws.Registry, closeFabric func() error, publisher rabbitmq.Publisher, database *sqlx.DB) error {
	var errs []error
	if err := registry.CloseAll(ctx); err != nil {
		errs = append(errs, fmt.Errorf("close websockets: %w", err))
	}
	// Give sessions a moment to run their disconnect path.
	drain(ctx, registry)
	if err := closeFabric(); err != nil {
		errs = append(errs, fmt.Errorf("close fabric: %w", err))
	}
	if err := publisher.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close publisher: %w", err))
	}
	if err := database.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close db: %w", err))
	}
	return errors.Join(errs...)
}

func drain(ctx context.Context, registry *ws.Registry) {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for registry.Len() > 0 {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
