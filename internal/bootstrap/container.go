package bootstrap

import (
	"context"
	"log"

	"novelsync-be/internal/config"
	"novelsync-be/internal/controller"
	"novelsync-be/internal/handler"
	"novelsync-be/internal/pkg/logger"
	"novelsync-be/internal/pkg/mailer"
	"novelsync-be/internal/pkg/serverutils"
	"novelsync-be/internal/repository/contract"
	"novelsync-be/internal/repository/implementation"
	"novelsync-be/internal/repository/memory"
	"novelsync-be/internal/repository/redisstore"
	"novelsync-be/internal/repository/unitofwork"
	"novelsync-be/internal/service"
	"novelsync-be/internal/websocket"
	pktNats "novelsync-be/pkg/nats"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Infra carries the external connections. Any of them may be nil: the relay
// then runs on a single instance with in-memory state.
type Infra struct {
	DB    *gorm.DB
	Redis *redis.Client
	Bus   *pktNats.Bus
}

type Container struct {
	// Controllers
	CollabController controller.ICollabController
	CollabHandler    *handler.CollabHandler
	JwtMiddleware    fiber.Handler

	// Background services (exposed for main.go to run)
	ActivityService     service.IActivityService
	NotificationService *service.NotificationService
	WebSocketHub        *websocket.Hub

	Logger logger.ILogger
}

// ConnectInfra dials Redis and NATS the way the relay expects. Failures are
// logged and leave the field nil.
func ConnectInfra(db *gorm.DB, cfg *config.Config) Infra {
	infra := Infra{DB: db}

	bus, err := pktNats.Connect(cfg.App.NatsURL)
	if err != nil {
		log.Printf("[WARN] Failed to connect to NATS: %v", err)
	} else {
		infra.Bus = bus
	}

	opt, err := redis.ParseURL(cfg.App.RedisURL)
	if err != nil {
		log.Printf("[WARN] Failed to parse Redis URL: %v. Using direct Addr", err)
		opt = &redis.Options{
			Addr: cfg.App.RedisURL,
		}
	}
	rdb := redis.NewClient(opt)
	if _, err := rdb.Ping(context.Background()).Result(); err != nil {
		log.Printf("[WARN] Failed to connect to Redis: %v", err)
		_ = rdb.Close()
	} else {
		infra.Redis = rdb
	}

	return infra
}

func NewContainer(infra Infra, cfg *config.Config, sysLogger logger.ILogger, collabLogger logger.ILogger) *Container {
	// 1. Storage
	var uowFactory unitofwork.RepositoryFactory
	var activityRepo contract.ActivityRepository
	if infra.DB != nil {
		uowFactory = unitofwork.NewRepositoryFactory(infra.DB)
		activityRepo = implementation.NewActivityRepository(infra.DB)
	} else {
		sysLogger.Warn("Bootstrap", "No database configured, comments and activities are kept in memory", nil)
		activityRepo = memory.NewActivityRepository()
		uowFactory = unitofwork.NewStaticRepositoryFactory(memory.NewCommentRepository(), activityRepo)
	}

	var lockStore contract.LockStore
	if cfg.Collab.LockBackend == "redis" && infra.Redis != nil {
		lockStore = redisstore.NewLockStore(infra.Redis)
	} else {
		lockStore = memory.NewLockStore()
	}
	sectionStore := memory.NewSectionStore()

	// 2. Event bus
	pubSub := gochannel.NewGoChannel(
		gochannel.Config{},
		watermill.NewStdLogger(false, false),
	)

	// 3. Transport
	hub := websocket.NewHub(infra.Redis, collabLogger)

	// 4. Services
	presenceService := service.NewPresenceService()
	lockService := service.NewLockService(lockStore, cfg.Collab.LockTTL, collabLogger)
	sectionService := service.NewSectionService(sectionStore, collabLogger)
	activityService := service.NewActivityService(
		activityRepo,
		pubSub,
		cfg.Collab.ActivityTopic,
		cfg.Collab.ActivityCapacity,
		hub,
		sysLogger,
	)

	var emailService mailer.IEmailService
	if cfg.SMTP.Enabled() {
		emailService = mailer.NewEmailService(
			cfg.SMTP.Host,
			cfg.SMTP.Port,
			cfg.SMTP.Email,
			cfg.SMTP.Password,
			cfg.SMTP.Email,
			cfg.SMTP.SenderName,
			cfg.App.ClientURL,
		)
	}
	// Mentions go through NATS when it is up, otherwise straight to the
	// notification service.
	var subscriber service.EventSubscriber
	if infra.Bus != nil {
		subscriber = infra.Bus
	}
	notificationService := service.NewNotificationService(subscriber, presenceService, hub, emailService, sysLogger)

	var publisher service.EventPublisher = notificationService
	if infra.Bus != nil {
		publisher = infra.Bus
	}

	commentService := service.NewCommentService(uowFactory, presenceService, activityService, publisher, hub, sysLogger)
	collabService := service.NewCollabService(
		presenceService,
		lockService,
		sectionService,
		commentService,
		activityService,
		hub,
		collabLogger,
	)
	hub.SetHandler(collabService)

	return &Container{
		CollabController: controller.NewCollabController(commentService, activityService, lockService),
		CollabHandler:    handler.NewCollabHandler(hub, cfg.Auth.JWTSecret, collabLogger),
		JwtMiddleware:    serverutils.NewJwtMiddleware(cfg.Auth.JWTSecret),

		ActivityService:     activityService,
		NotificationService: notificationService,
		WebSocketHub:        hub,
		Logger:              sysLogger,
	}
}

// Start launches the background workers. They stop with ctx.
func (c *Container) Start(ctx context.Context) {
	go c.WebSocketHub.Run(ctx)

	go func() {
		log.Println("Background: Starting Activity Consumer...")
		if err := c.ActivityService.Consume(ctx); err != nil {
			log.Printf("Background Consumer Error: %v", err)
		}
	}()

	if c.NotificationService.HasSubscriber() {
		if err := c.NotificationService.Start(ctx); err != nil {
			log.Printf("Mention worker not started: %v", err)
		}
	}
}
