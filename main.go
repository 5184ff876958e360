package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"chat-sync/internal/cache"
	"chat-sync/internal/config"
	"chat-sync/internal/db"
	"chat-sync/internal/handlers"
	"chat-sync/internal/healthgrpc"
	"chat-sync/internal/identity"
	"chat-sync/internal/logging"
	"chat-sync/internal/media"
	"chat-sync/internal/middleware"
	"chat-sync/internal/observability"
	"chat-sync/internal/rabbitmq"
	"chat-sync/internal/registry"
	"chat-sync/internal/relay"
	"chat-sync/internal/repositories"
	"chat-sync/internal/service"
	"chat-sync/internal/telemetry"
	"chat-sync/internal/timefmt"
	"chat-sync/internal/ws"
)

const serviceName = "chat-sync"

func main() {
	cfg := config.Load()
	logger := logging.New(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfig{
		Enabled:     cfg.OTelEnabled,
		Exporter:    cfg.OTelExporter,
		Endpoint:    cfg.OTelEndpoint,
		ServiceName: serviceName,
		Environment: cfg.Environment,
	}, logger)
	if err != nil {
		logger.WithError(err).Fatal("failed to init tracing")
	}

	database, err := db.Connect(cfg.DBDriver, cfg.DBDSN, logger)
	if err != nil {
		logger.WithError(err).Fatal("failed to connect to db")
	}
	defer database.Close()

	rdb, err := cache.NewClient(cache.Config{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
		PoolSize: cfg.RedisPoolSize,
	})
	if err != nil {
		logger.WithError(err).Fatal("failed to connect to redis")
	}
	defer rdb.Close()

	messageRepo := repositories.NewMessageRepo(database)
	groupRepo := repositories.NewGroupRepo(database)
	profileRepo := repositories.NewProfileRepo(database)

	connections := cache.NewConnectionStore(rdb, cfg.ConnectionTTL)
	pointers := cache.NewPointerStore(rdb)
	exchanger := identity.NewClient(cfg.IdentityExchangeURL, cfg.IdentityAppID, cfg.IdentityAppSecret, cfg.OpTimeout)
	resolver := media.NewSignedURLResolver(cfg.MediaBaseURL, cfg.MediaSigningKey, cfg.MediaURLTTL)
	formatter := timefmt.New(cfg.Location(), timefmt.LabelsFor(cfg.DisplayLocale))

	reg := registry.New(exchanger, connections, profileRepo, cfg.OpTimeout, logger)

	publisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange, logger)
	defer publisher.Close()
	audit := telemetry.NewAuditEmitter(publisher, "audit.chat", serviceName, cfg.Environment, logger)
	events := telemetry.NewEventEmitter(publisher, serviceName, cfg.Environment, cfg.NodeID, logger)

	hub := ws.NewHub(logger)
	var (
		pusher   service.Pusher         = hub
		channels service.ChannelRevoker = hub
		kicker   ws.Kicker              = hub
	)
	if cfg.NATSURL != "" {
		nc, err := nats.Connect(cfg.NATSURL, nats.Name(serviceName+"-"+cfg.NodeID))
		if err != nil {
			logger.WithError(err).Fatal("failed to connect to nats")
		}
		defer nc.Drain()

		rel := relay.New(hub, nc, cfg.NodeID, logger)
		if err := rel.Start(); err != nil {
			logger.WithError(err).Fatal("failed to start relay")
		}
		defer rel.Stop()
		pusher, channels, kicker = rel, rel, rel
		logger.WithField("node", cfg.NodeID).Info("cross-node relay enabled")
	}

	delivery := service.NewDeliveryService(service.DeliveryDeps{
		Messages:    messageRepo,
		Profiles:    profileRepo,
		Pointers:    pointers,
		Connections: reg,
		Media:       resolver,
		Pusher:      pusher,
		Events:      events,
		Timeout:     cfg.OpTimeout,
		Logger:      logger,
	})
	conversations := service.NewConversationService(service.ConversationDeps{
		Messages:  messageRepo,
		Groups:    groupRepo,
		Profiles:  profileRepo,
		Pointers:  pointers,
		Media:     resolver,
		Formatter: formatter,
		Timeout:   cfg.OpTimeout,
		Logger:    logger,
	})
	groups := service.NewGroupService(service.GroupDeps{
		Messages:  messageRepo,
		Groups:    groupRepo,
		Profiles:  profileRepo,
		Media:     resolver,
		Formatter: formatter,
		Channels:  channels,
		Timeout:   cfg.OpTimeout,
		Logger:    logger,
	})

	wsHandler := ws.NewHandler(ws.HandlerDeps{
		Hub:        hub,
		Kicker:     kicker,
		Registry:   reg,
		Delivery:   delivery,
		Membership: groups,
		Events:     events,
		OpTimeout:  cfg.OpTimeout,
		WriteWait:  cfg.PushTimeout,
		Logger:     logger,
	})
	chatHandler := handlers.NewChatHandler(conversations, delivery, audit)
	groupHandler := handlers.NewGroupHandler(groups, delivery, audit)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(serviceName))
	router.Use(observability.HTTPMetricsMiddleware())
	router.Use(middleware.RequestID())

	router.GET("/metrics", gin.WrapH(observability.MetricsHandler()))
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "node": cfg.NodeID})
	})
	router.GET("/ws", wsHandler.Handle)

	authMiddleware := middleware.AuthMiddleware(reg)
	api := router.Group("/", authMiddleware)
	api.GET("/conversations", chatHandler.ListConversations)
	api.GET("/chats/:counterpart/messages", chatHandler.GetChatMessages)
	api.POST("/chats/:counterpart/messages", chatHandler.PostChatMessage)
	api.POST("/chats/:counterpart/read", chatHandler.MarkChatRead)
	api.POST("/messages/:message_id/read", chatHandler.MarkMessageRead)

	api.GET("/groups", groupHandler.ListGroups)
	api.POST("/groups", groupHandler.CreateGroup)
	api.GET("/groups/:group_id/messages", groupHandler.GetGroupMessages)
	api.POST("/groups/:group_id/messages", groupHandler.PostGroupMessage)
	api.POST("/groups/:group_id/watermark", groupHandler.UpdateWatermark)
	api.GET("/groups/:group_id/unread", groupHandler.GetUnread)
	api.POST("/groups/:group_id/leave", groupHandler.LeaveGroup)

	handlers.RegisterDebugRoutes(router, audit, hub, cfg.DebugRoutes)

	health := healthgrpc.New(map[string]healthgrpc.Check{
		"db":    func(ctx context.Context) error { return database.PingContext(ctx) },
		"redis": func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
	}, 2*time.Second, logger)
	go health.Run(ctx, 15*time.Second)

	lis, err := net.Listen("tcp", ":"+cfg.GRPCHealthPort)
	if err != nil {
		logger.WithError(err).Fatal("failed to listen for grpc health")
	}
	go func() {
		if err := health.Serve(lis); err != nil {
			logger.WithError(err).Error("grpc health server stopped")
		}
	}()

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: router}
	go func() {
		logger.WithFields(logrus.Fields{"port": cfg.Port, "grpc_health_port": cfg.GRPCHealthPort}).Info("chat-sync listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("server error")
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("http shutdown")
	}
	health.Stop()
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.WithError(err).Warn("tracing shutdown")
	}
}
