package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/lumivid/messaging/internal/client"
	"github.com/lumivid/messaging/internal/config"
	"github.com/lumivid/messaging/internal/delivery"
	"github.com/lumivid/messaging/internal/domain"
	"github.com/lumivid/messaging/internal/events"
	"github.com/lumivid/messaging/internal/gateway"
	"github.com/lumivid/messaging/internal/handler"
	"github.com/lumivid/messaging/internal/hub"
	"github.com/lumivid/messaging/internal/presence"
	"github.com/lumivid/messaging/internal/repository"
	"github.com/lumivid/messaging/internal/service"
	"github.com/lumivid/messaging/pkg/database"
	"github.com/lumivid/messaging/pkg/jwt"
	"github.com/lumivid/messaging/pkg/log"
	"github.com/lumivid/messaging/pkg/pubsub"
	"github.com/lumivid/messaging/pkg/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	log.Init(log.Config{Level: cfg.Log.Level, ServiceName: "messaging"})
	logger := log.L()

	db, err := database.New(&database.Config{
		Driver:          cfg.Database.Driver,
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		DBName:          cfg.Database.DBName,
		SSLMode:         cfg.Database.SSLMode,
		FilePath:        cfg.Database.FilePath,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("database connection failed")
	}

	if err := database.AutoMigrate(db,
		&domain.ConversationModel{},
		&domain.ParticipantModel{},
		&domain.MessageModel{},
	); err != nil {
		logger.Fatal().Err(err).Msg("database migration failed")
	}

	remote, err := pubsub.NewRedisPubSub(cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis connection failed")
	}
	defer remote.Close()

	var recorder delivery.NotificationRecorder
	if cfg.Kafka.Enabled {
		kafkaRecorder, err := client.NewKafkaNotificationRecorder(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		if err != nil {
			logger.Fatal().Err(err).Msg("kafka producer failed")
		}
		defer kafkaRecorder.Close()
		recorder = kafkaRecorder
	}

	blobStore, err := newBlobStore(cfg.Storage)
	if err != nil {
		logger.Fatal().Err(err).Msg("storage init failed")
	}
	attachments := client.NewAttachmentStore(blobStore, cfg.Chat.MaxAttachmentSize)

	bus := events.NewBus()

	wsHub := hub.NewHub(cfg.WebSocket)
	go wsHub.Run()

	deliveryBus := delivery.NewBus(wsHub, remote, recorder)
	tracker := presence.NewTracker(cfg.Presence, deliveryBus)

	jwtManager := jwt.NewManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL, cfg.Auth.Issuer)
	resolver := client.NewJWTIdentityResolver(jwtManager)
	gw := gateway.New(cfg.Gateway, resolver, bus)
	gw.OnEvict(wsHub.CloseSession)

	conversations := repository.NewGormConversationStore(db)
	messages := repository.NewGormMessageStore(db)
	chat := service.NewChatService(conversations, messages, deliveryBus, bus, cfg.Chat)

	// Presence follows gateway session lifecycle through the event bus.
	bus.Subscribe(events.UserConnected{}.Name(), func(e events.Event) {
		if evt, ok := e.(events.UserConnected); ok {
			tracker.UserOnline(evt.UserID, evt.SessionID)
			tracker.BroadcastOnlineCount()
		}
	})
	bus.Subscribe(events.UserDisconnected{}.Name(), func(e events.Event) {
		if evt, ok := e.(events.UserDisconnected); ok {
			tracker.UserOffline(evt.UserID, evt.SessionID)
			tracker.BroadcastOnlineCount()
		}
	})
	client.NewAchievementHook().Register(bus)

	wsHandler := handler.NewWSHandler(wsHub, gw, tracker, chat, cfg.WebSocket)
	httpHandler := handler.NewHTTPHandler(chat, gw, tracker, attachments)

	router := gin.New()
	router.Use(log.GinMiddleware(logger, "/health"), gin.Recovery())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/ws", wsHandler.HandleWS)

	api := router.Group("/api/v1", handler.AuthRequired(jwtManager))
	httpHandler.RegisterRoutes(api)

	server := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: router,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info().Str("addr", server.Addr).Msg("messaging service listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		gw.Run(ctx)
		return nil
	})
	g.Go(func() error {
		tracker.Run(ctx)
		return nil
	})
	g.Go(func() error {
		return deliveryBus.Run(ctx)
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Fatal().Err(err).Msg("service exited with error")
	}
	logger.Info().Msg("service stopped")
}

func newBlobStore(cfg config.StorageConfig) (storage.Storage, error) {
	switch cfg.Driver {
	case "s3":
		return storage.NewS3Storage(context.Background(), cfg.S3)
	default:
		return storage.NewLocalStorage(cfg.Local)
	}
}
