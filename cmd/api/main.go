package main

import (
	"context"
	"crypto/tls"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/orquestrai/sells-broker/internal/api/router"
	"github.com/orquestrai/sells-broker/internal/brokers"
	appconfig "github.com/orquestrai/sells-broker/internal/config"
	"github.com/orquestrai/sells-broker/internal/conversation"
	"github.com/orquestrai/sells-broker/internal/dashboard"
	"github.com/orquestrai/sells-broker/internal/leads"
	"github.com/orquestrai/sells-broker/internal/listings"
	"github.com/orquestrai/sells-broker/internal/observability/metrics"
	"github.com/orquestrai/sells-broker/internal/timers"
	"github.com/orquestrai/sells-broker/internal/visits"
	"github.com/orquestrai/sells-broker/internal/waha"
	"github.com/orquestrai/sells-broker/internal/webhook"
	"github.com/orquestrai/sells-broker/pkg/logging"
)

func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting sells-broker API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx := context.Background()

	rdb := redis.NewClient(redisOptions(cfg))
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Error("redis unreachable", "addr", cfg.RedisAddr, "error", err)
		os.Exit(1)
	}
	defer func() { _ = rdb.Close() }()

	var pool *pgxpool.Pool
	if cfg.DatabaseURL != "" {
		var err error
		pool, err = pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("postgres pool init failed", "error", err)
			os.Exit(1)
		}
		defer pool.Close()
	} else {
		logger.Warn("DATABASE_URL not set, running with in-memory storage")
	}

	sched := timers.NewScheduler(logger)
	defer sched.Shutdown()

	wahaClient := waha.NewClient(cfg.WahaBaseURL, cfg.WahaAPIKey)
	listingsClient := listings.NewClient(cfg.ListingsBaseURL)
	llm := conversation.NewOpenRouterClient(cfg.OpenRouterAPIKey, cfg.OpenRouterBaseURL)
	msgMetrics := metrics.NewMessagingMetrics(nil)

	var visitRepo visits.Repository = visits.NewInMemoryRepository()
	if pool != nil {
		visitRepo = visits.NewPostgresRepository(pool)
	}
	visitMgr := visits.NewManager(visitRepo, sched, wahaClient.SendText, cfg.BrokerNumber, logger)
	if restored, err := visitMgr.Restore(ctx); err != nil {
		logger.Error("visit restore failed", "error", err)
	} else if restored > 0 {
		logger.Info("restored open visits from storage", "count", restored)
	}

	var msgRepo conversation.MessageRepository = conversation.NewInMemoryMessageRepository()
	if pool != nil {
		pgMessages := conversation.NewPostgresMessageRepository(pool)
		msgRepo = pgMessages
		go pruneConversations(ctx, pgMessages, logger)
	}

	sendToLead := func(ctx context.Context, chatID, text string) error {
		return wahaClient.SendText(ctx, cfg.WahaSession, chatID, text)
	}

	// The cold-lead scheduler and the orchestrator reference each other, so
	// the scheduler's history callback captures the service variable.
	var svc *conversation.Service
	coldLeads := conversation.NewColdLeadScheduler(sched, sendToLead,
		func(ctx context.Context, conversationID, role, content string) error {
			return svc.RecordAssistantMessage(ctx, conversationID, content)
		}, logger)

	var leadsRepo leads.Repository = leads.NewInMemoryRepository()
	if pool != nil {
		leadsRepo = leads.NewPostgresRepository(pool)
	}
	leadsSvc := leads.NewService(leadsRepo, sched, sendToLead,
		func(ctx context.Context, l *leads.Lead) {
			convID := conversation.ConversationID(l.Phone + "@c.us")
			if err := svc.SaveLandingContext(ctx, convID, landingContextFor(l)); err != nil {
				logger.Error("landing context seed failed", "lead_id", l.ID, "error", err)
			}
		}, logger)
	leadsSvc.SetFollowUpDelay(cfg.LandingFollowUpDelay)

	svc = conversation.NewService(conversation.ServiceConfig{
		Redis:           rdb,
		Messages:        msgRepo,
		LLM:             llm,
		ChatModel:       cfg.ChatModel,
		ExtractionModel: cfg.ExtractionModel,
		Messenger:       wahaClient,
		Listings:        listingsClient,
		Visits:          visitMgr,
		ColdLeads:       coldLeads,
		Landing:         &landingResolver{svc: leadsSvc},
		Metrics:         msgMetrics,
		Logger:          logger,
	})

	buffer := conversation.NewBuffer(cfg.BufferDelay, sched, func(turn conversation.Turn) error {
		turnCtx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		return svc.Process(turnCtx, turn)
	}, logger)

	routerCfg := &router.Config{
		Logger:         logger,
		Webhook:        webhook.NewHandler(buffer, cfg.BufferDelay, msgMetrics, logger),
		LeadsHandler:   leads.NewHandler(leadsSvc, logger),
		Visits:         visitMgr,
		Scheduler:      sched,
		MetricsHandler: promhttp.Handler(),
		StartedAt:      time.Now(),
	}
	if pool != nil {
		routerCfg.DashboardHandler = dashboard.NewHandler(dashboard.NewRepository(pool), logger)
		routerCfg.BrokersHandler = brokers.NewHandler(brokers.NewPostgresRepository(pool), logger)
	} else {
		routerCfg.BrokersHandler = brokers.NewHandler(brokers.NewInMemoryRepository(), logger)
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router.New(routerCfg),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", "error", err)
	}
	logger.Info("server stopped")
}

const (
	messageRetention   = 30 * 24 * time.Hour
	messagePruneEvery  = 24 * time.Hour
	messagePruneBudget = time.Minute
)

// pruneConversations drops WhatsApp history past the retention window once a
// day, so the conversation_messages table does not grow without bound.
func pruneConversations(ctx context.Context, repo *conversation.PostgresMessageRepository, logger *logging.Logger) {
	ticker := time.NewTicker(messagePruneEvery)
	defer ticker.Stop()
	for range ticker.C {
		pruneCtx, cancel := context.WithTimeout(ctx, messagePruneBudget)
		removed, err := repo.PruneOlderThan(pruneCtx, messageRetention)
		cancel()
		if err != nil {
			logger.Error("conversation prune failed", "error", err)
			continue
		}
		if removed > 0 {
			logger.Info("pruned old conversation messages", "removed", removed)
		}
	}
}

func redisOptions(cfg *appconfig.Config) *redis.Options {
	opts := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return opts
}

// landingResolver bridges the landing-lead service into the conversation
// orchestrator: a lead's first WhatsApp message claims the open lead and
// carries its property context into the chat.
type landingResolver struct {
	svc *leads.Service
}

func (a *landingResolver) ClaimPending(ctx context.Context, phone string) (*conversation.LandingContext, error) {
	lead, err := a.svc.ClaimPending(ctx, phone)
	if err != nil || lead == nil {
		return nil, err
	}
	return landingContextFor(lead), nil
}

func landingContextFor(l *leads.Lead) *conversation.LandingContext {
	return &conversation.LandingContext{
		Name:         l.Name,
		Neighborhood: l.Property.Neighborhood,
		Bedrooms:     strconv.Itoa(l.Property.Bedrooms),
		Source:       l.SourceURL,
		Property:     l.ListingProperty(),
	}
}
