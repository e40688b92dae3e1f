package bootstrap

import (
	"context"
	"log"

	"insight-assistant-be/internal/config"
	"insight-assistant-be/internal/controller"
	"insight-assistant-be/internal/handler"
	"insight-assistant-be/internal/pkg/logger"
	"insight-assistant-be/internal/repository/contract"
	"insight-assistant-be/internal/repository/memory"
	redisRepo "insight-assistant-be/internal/repository/redis"
	"insight-assistant-be/internal/repository/unitofwork"
	"insight-assistant-be/internal/service"
	"insight-assistant-be/internal/websocket"
	"insight-assistant-be/pkg/assistant/openai"
	"insight-assistant-be/pkg/citation"
	"insight-assistant-be/pkg/dataset"
	pktNats "insight-assistant-be/pkg/nats"
	"insight-assistant-be/pkg/run"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type Container struct {
	AssistantController controller.IAssistantController
	RunStreamHandler    *handler.RunStreamHandler

	// Background services, started by main
	ConsumerService  service.IConsumerService
	AssistantService service.IAssistantService
	WebSocketHub     *websocket.Hub

	closers []func()
}

// NewContainer wires every dependency. db may be nil, in which case the
// ledger lives in process memory.
func NewContainer(db *gorm.DB, cfg *config.Config) *Container {
	// 1. Core Facades
	sysLogger := logger.NewZapLogger(cfg.App.LogFilePath, cfg.App.Environment == "production")

	var uowFactory unitofwork.RepositoryFactory
	if db != nil {
		uowFactory = unitofwork.NewRepositoryFactory(db)
	} else {
		log.Printf("[WARN] No database configured, run and context ledger is in memory")
		uowFactory = memory.NewLedger()
	}

	// 2. Event Bus
	watermillLogger := watermill.NewStdLogger(false, false)
	pubSub := gochannel.NewGoChannel(
		gochannel.Config{OutputChannelBuffer: 256},
		watermillLogger,
	)

	// 3. Infrastructure
	natsPub, err := pktNats.NewPublisher(cfg.App.NatsURL)
	if err != nil {
		log.Printf("[WARN] Failed to connect to NATS Publisher: %v", err)
	}

	opt, err := redis.ParseURL(cfg.App.RedisURL)
	if err != nil {
		log.Printf("[WARN] Failed to parse Redis URL: %v. Using direct Addr", err)
		opt = &redis.Options{Addr: cfg.App.RedisURL}
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		log.Printf("[WARN] Failed to connect to Redis: %v", err)
		rdb = nil
	}

	var sessionRepo contract.SessionRepository
	var sessionLocker contract.SessionLocker
	if cfg.App.SessionStore == "redis" && rdb != nil {
		sessionRepo = redisRepo.NewSessionRepository(rdb, cfg.App.SessionTTL)
		sessionLocker = redisRepo.NewSessionLocker(rdb, cfg.App.SessionLockLease)
		log.Printf("[INFO] Using Session Store: REDIS")
	} else {
		sessionRepo = memory.NewSessionRepository(cfg.App.SessionTTL)
		sessionLocker = memory.NewSessionLocker()
		log.Printf("[INFO] Using Session Store: MEMORY")
	}

	wsLogger := logger.NewIsolatedLogger(cfg.App.EventLogFilePath)
	wsHub := websocket.NewHub(rdb, wsLogger)

	// 4. Domain
	client := openai.NewAssistantsClient(
		cfg.Assistant.BaseURL,
		cfg.Assistant.APIKey,
		cfg.Assistant.AttachmentTool,
		cfg.Assistant.Timeout,
	)
	resolver := citation.NewCachedResolver(client, cfg.Assistant.FilenameTTL)
	renderer := citation.NewRenderer(resolver, sysLogger)
	normalizer := dataset.NewNormalizer(client, sysLogger)
	orchestrator := run.NewOrchestrator(client, renderer, sysLogger, run.Config{
		AssistantID: cfg.Assistant.AssistantID,
		RetryBudget: cfg.Run.RetryBudget,
		PollUnit:    cfg.Run.PollUnit,
	})

	// 5. Services
	publisherService := service.NewPublisherService(pubSub, cfg.App.EventTopic)

	var eventPublisher service.EventPublisher
	if natsPub != nil {
		eventPublisher = natsPub
	}
	consumerService := service.NewConsumerService(
		pubSub,
		cfg.App.EventTopic,
		uowFactory,
		wsHub, // Hub implements RunEventDelivery
		eventPublisher,
	)

	assistantService := service.NewAssistantService(
		sessionRepo,
		sessionLocker,
		uowFactory,
		client,
		normalizer,
		orchestrator,
		renderer,
		resolver,
		publisherService,
		run.Sleep,
		sysLogger,
	)

	c := &Container{
		AssistantController: controller.NewAssistantController(assistantService),
		RunStreamHandler:    handler.NewRunStreamHandler(assistantService, wsHub, wsLogger),
		ConsumerService:     consumerService,
		AssistantService:    assistantService,
		WebSocketHub:        wsHub,
	}

	c.closers = append(c.closers, assistantService.Shutdown, func() { pubSub.Close() })
	if natsPub != nil {
		c.closers = append(c.closers, natsPub.Close)
	}
	if rdb != nil {
		c.closers = append(c.closers, func() { rdb.Close() })
	}
	c.closers = append(c.closers, func() {
		sysLogger.Sync()
		wsLogger.Sync()
	})
	return c
}

// Close stops background drives and releases connections in order.
func (c *Container) Close() {
	for _, closeFn := range c.closers {
		closeFn()
	}
}
