package bootstrap

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/whatsapp-booking-agent/internal/api/router"
	"github.com/wolfman30/whatsapp-booking-agent/internal/booking"
	"github.com/wolfman30/whatsapp-booking-agent/internal/catalog"
	appconfig "github.com/wolfman30/whatsapp-booking-agent/internal/config"
	"github.com/wolfman30/whatsapp-booking-agent/internal/conversation"
	"github.com/wolfman30/whatsapp-booking-agent/internal/ghl"
	"github.com/wolfman30/whatsapp-booking-agent/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/whatsapp-booking-agent/internal/http/middleware"
	"github.com/wolfman30/whatsapp-booking-agent/internal/messaging/compliance"
	"github.com/wolfman30/whatsapp-booking-agent/internal/observability/metrics"
	"github.com/wolfman30/whatsapp-booking-agent/pkg/logging"
)

// Version is reported by /health.
var Version = "dev"

// App is the fully wired HTTP service.
type App struct {
	Handler      http.Handler
	Orchestrator *conversation.Orchestrator
	Close        func()
}

// BuildApp wires every component from cfg. reg receives the service
// metrics; a nil reg uses a fresh registry.
func BuildApp(ctx context.Context, cfg *appconfig.Config, awsCfg aws.Config, reg *prometheus.Registry, logger *logging.Logger) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	cat := catalog.Default()
	if cfg.CatalogPath != "" {
		loaded, err := catalog.Load(cfg.CatalogPath)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: %w", err)
		}
		cat = loaded
	}
	logger.Info("template catalog loaded", "version", cat.Version())

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: timezone: %w", err)
	}
	crm, err := ghl.New(ghl.Config{
		APIKey:              cfg.GHLAPIKey,
		LocationID:          cfg.GHLLocationID,
		CalendarID:          cfg.GHLCalendarID,
		BaseURL:             cfg.GHLBaseURL,
		Location:            loc,
		AppointmentDuration: cfg.AppointmentDuration,
		FieldIDs:            cfg.GHLFieldIDs,
		RetryAttempts:       cfg.RetryAttempts,
		RetryBaseDelay:      cfg.RetryBaseDelay,
		Logger:              logger,
	})
	if err != nil {
		return nil, fmt.Errorf("bootstrap: %w", err)
	}

	redisClient := BuildRedisClient(ctx, cfg, logger, true)
	profiles, err := BuildProfileStore(ctx, cfg, redisClient, awsCfg, logger)
	if err != nil {
		if redisClient != nil {
			_ = redisClient.Close()
		}
		return nil, err
	}
	closeAll := func() {
		profiles.Close()
		if redisClient != nil {
			_ = redisClient.Close()
		}
	}

	extractor, err := BuildExtractor(ctx, cfg, cat, awsCfg, logger)
	if err != nil {
		closeAll()
		return nil, err
	}
	sender, err := BuildSender(cfg, crm, logger)
	if err != nil {
		closeAll()
		return nil, fmt.Errorf("bootstrap: %w", err)
	}
	history := BuildHistoryStore(cfg, redisClient)
	m := metrics.NewConversationMetrics(reg)

	finalizerCfg := booking.Config{
		Contacts:      crm,
		Calendar:      crm,
		Catalog:       cat,
		MinimumBudget: cfg.MinimumBudget,
		Timeout:       cfg.CollaboratorTimeout,
		Logger:        logger,
	}
	if notifier := BuildNotifier(cfg, awsCfg, logger); notifier != nil {
		finalizerCfg.Notifier = notifier
	}
	finalizer := booking.NewFinalizer(finalizerCfg)

	detector := conversation.NewLanguageDetector(cat)
	machine := conversation.NewMachine(conversation.MachineConfig{
		Catalog:       cat,
		Extractor:     extractor,
		Detector:      detector,
		Slots:         crm,
		Finalizer:     finalizer,
		MinimumBudget: cfg.MinimumBudget,
		BookableDays:  cfg.Weekdays(),
		BusinessName:  cfg.BusinessName,
		Logger:        logger,
	})
	orch := conversation.NewOrchestrator(conversation.OrchestratorConfig{
		Machine:           machine,
		Triage:            conversation.NewTriage(compliance.NewSpamDetector(cat.SpamTerms()), cat, detector),
		Catalog:           cat,
		Profiles:          profiles,
		Contacts:          crm,
		Sender:            sender,
		History:           history,
		Locker:            BuildLocker(cfg, redisClient),
		Metrics:           m,
		Logger:            logger,
		Timeout:           cfg.CollaboratorTimeout,
		SyncContactFields: len(cfg.GHLFieldIDs) > 0,
	})

	checks := map[string]handlers.HealthCheck{"profiles": profiles.Ping}
	if redisClient != nil {
		checks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}

	h := router.New(&router.Config{
		Logger: logger,
		Webhook: handlers.NewWebhookHandler(handlers.WebhookConfig{
			Handler:    orch,
			Secret:     cfg.GHLWebhookSecret,
			Region:     cfg.PhoneRegion,
			LocationID: cfg.GHLLocationID,
			Timeout:    cfg.WebhookTimeout,
			Metrics:    m,
			Logger:     logger,
		}),
		Health:          handlers.NewHealthHandler(Version, checks, logger),
		AdminProfiles:   handlers.NewAdminProfilesHandler(profiles, history, logger),
		AdminAuthSecret: cfg.AdminJWTSecret,
		MetricsHandler:  promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		RateLimiter:     httpmiddleware.NewRateLimiter(cfg.RateLimitPerMinute),
		RateObserver:    m,
	})

	logger.Info("service wired",
		"profile_store", profiles.Backend,
		"extractor", cfg.ExtractorMode,
		"messaging", cfg.MessagingProvider,
		"redis", redisClient != nil,
	)
	return &App{Handler: h, Orchestrator: orch, Close: closeAll}, nil
}
