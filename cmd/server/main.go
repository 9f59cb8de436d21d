package main

import (
	"context"
	"time"

	availabilityhandler "darna/internal/availability/handler"
	availabilityrepository "darna/internal/availability/repository"
	availabilityservice "darna/internal/availability/service"
	bookinghandler "darna/internal/bookings/handler"
	bookingrepository "darna/internal/bookings/repository"
	bookingservice "darna/internal/bookings/service"
	bookingvalidator "darna/internal/bookings/validator"
	conversationhandler "darna/internal/conversations/handler"
	conversationrepository "darna/internal/conversations/repository"
	conversationservice "darna/internal/conversations/service"
	"darna/internal/directory"
	livehandler "darna/internal/live/handler"
	liveservice "darna/internal/live/service"
	messagehandler "darna/internal/messages/handler"
	messagerepository "darna/internal/messages/repository"
	messageservice "darna/internal/messages/service"
	messagevalidator "darna/internal/messages/validator"
	"darna/pkg/app"
	"darna/pkg/config"
	"darna/pkg/contracts"
	mongodb "darna/pkg/db/mongo"
	"darna/pkg/identity"
	"darna/pkg/kafka"
	kafka_config "darna/pkg/kafka/config"
	kafka_middleware "darna/pkg/kafka/middleware"
	"darna/pkg/notify"
	"darna/pkg/realtime"
	"darna/pkg/realtime/mongofeed"
)

const (
	ServiceName   = "darna-server"
	statsInterval = time.Minute
)

type services struct {
	calendars     availabilityservice.CalendarService
	bookings      bookingservice.BookingRequestService
	conversations conversationservice.ConversationService
	messages      messageservice.MessageService
}

func main() {
	cfg := config.Load(ServiceName)
	if cfg.JWTSecret == "" {
		cfg.Log.Fatal("JWT_SECRET is required to verify access tokens")
	}
	cfg.SetMongo()
	cfg.SetRedis()

	cfg.Log.Info("Starting Darna server")
	verifier := identity.NewVerifier(cfg.JWTSecret, cfg.JWTIssuer)
	serverApp := app.NewApplication(cfg, verifier)

	notifier := initNotifier(cfg, serverApp)
	svc := initServices(cfg, notifier)

	hub := realtime.NewHub(cfg.HubBufferSize, cfg.Log)
	serverApp.OnShutdown("realtime hub", func() error {
		hub.Close()
		return nil
	})
	initChangeFeed(cfg, serverApp, hub)

	factory := liveservice.NewFactory(hub, svc.conversations, svc.messages, svc.bookings, cfg.Log)
	serverApp.SetApp(
		livehandler.NewLiveHandler(factory, cfg.LiveHeartbeat, cfg.Log),
		[]contracts.Handler{
			bookinghandler.NewBookingRequestHandler(svc.bookings, cfg.Log),
			availabilityhandler.NewCalendarHandler(svc.calendars, cfg.Log),
			conversationhandler.NewConversationHandler(svc.conversations, cfg.Log),
			messagehandler.NewMessageHandler(svc.messages, cfg.Log),
		}...,
	)
	serverApp.Run()
}

func initServices(cfg *config.Config, notifier notify.Notifier) *services {
	profiles := directory.NewMongoProfiles(cfg)
	properties := directory.NewMongoProperties(cfg)
	txManager := mongodb.NewTransactionManager(cfg.Client.Mongo)

	calendarService := availabilityservice.NewCalendarService(
		availabilityrepository.NewMongoCalendarRepository(cfg),
		properties,
		cfg,
	)

	bookingService := bookingservice.NewBookingRequestService(
		bookingrepository.NewMongoBookingRequestRepository(cfg),
		calendarService,
		bookingvalidator.NewBookingRequestValidator(cfg.Log),
		profiles,
		properties,
		notifier,
		cfg,
	)

	messageRepo := messagerepository.NewMongoMessageRepository(cfg)
	conversationService := conversationservice.NewConversationService(
		conversationrepository.NewMongoConversationRepository(cfg),
		messageRepo,
		profiles,
		cfg,
	)

	messageService := messageservice.NewMessageService(
		messageRepo,
		conversationService,
		messagevalidator.NewMessageValidator(cfg.Log),
		profiles,
		txManager,
		notifier,
		cfg,
	)

	cfg.Log.Info("Services initialized", "database", cfg.MongoDatabaseName)
	return &services{
		calendars:     calendarService,
		bookings:      bookingService,
		conversations: conversationService,
		messages:      messageService,
	}
}

func initNotifier(cfg *config.Config, serverApp *app.Application) notify.Notifier {
	if cfg.RabbitMQURL == "" {
		cfg.Log.Info("RabbitMQ not configured, notifications are logged only")
		return notify.NewLogNotifier(cfg.Log)
	}

	notifier := notify.NewRabbitNotifier(cfg.RabbitMQURL, cfg.NotificationQueue, cfg.Log)
	serverApp.OnShutdown("notifier", notifier.Close)
	cfg.Log.Info("Notifications published to RabbitMQ", "queue", cfg.NotificationQueue)
	return notifier
}

// initChangeFeed feeds the hub either straight from Mongo change streams or
// from the change topic the relay writes to.
func initChangeFeed(cfg *config.Config, serverApp *app.Application, hub *realtime.Hub) {
	if cfg.ChangeFeedSource == config.ChangeFeedMongo {
		watcher := mongofeed.NewWatcher(
			cfg.Client.Mongo.Database(cfg.MongoDatabaseName),
			hub,
			mongofeed.DefaultDecoders(),
			cfg.Log,
		)
		serverApp.AddWorker("mongo change feed", watcher.Run)
		return
	}

	kafkaCfg, err := kafka_config.Load()
	if err != nil {
		cfg.Log.Fatal("Invalid Kafka configuration", "error", err)
	}
	kafkaCfg.LogConfiguration(cfg.Log)

	consumer, err := kafka.NewConsumer(kafkaCfg, cfg.ChangeTopic, cfg.ChangeGroupID, cfg.ChangeDLQTopic, kafka.HubHandler(hub), cfg.Log)
	if err != nil {
		cfg.Log.Fatal("Failed to create change consumer", "error", err)
	}

	metrics := &kafka_middleware.Metrics{}
	consumer.Use(metrics.Consumer())
	if kafkaCfg.EnableLogging {
		consumer.Use(kafka_middleware.LoggingConsumerMiddleware(cfg.Log))
	}

	serverApp.AddWorker("kafka change consumer", consumer.Start)
	serverApp.AddWorker("kafka consumer stats", func(ctx context.Context) error {
		metrics.Report(ctx, statsInterval, cfg.Log)
		return nil
	})
	serverApp.OnShutdown("kafka change consumer", consumer.Close)
}
