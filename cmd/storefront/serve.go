package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fillesume/storefront/internal/cart"
	"github.com/fillesume/storefront/internal/catalog"
	"github.com/fillesume/storefront/internal/commerce"
	"github.com/fillesume/storefront/internal/content"
	"github.com/fillesume/storefront/internal/handlers"
	"github.com/fillesume/storefront/internal/interactive"
	"github.com/fillesume/storefront/internal/narrative"
	"github.com/fillesume/storefront/internal/platform/assets"
	"github.com/fillesume/storefront/internal/platform/config"
	pfirestore "github.com/fillesume/storefront/internal/platform/firestore"
	"github.com/fillesume/storefront/internal/platform/idempotency"
	"github.com/fillesume/storefront/internal/platform/jobs"
	"github.com/fillesume/storefront/internal/platform/observability"
	"github.com/fillesume/storefront/internal/platform/secrets"
	"github.com/fillesume/storefront/internal/platform/session"
	"github.com/fillesume/storefront/internal/services"
)

const (
	shutdownGrace       = 10 * time.Second
	maintenanceInterval = time.Minute
	pubsubEmulatorEnv   = "PUBSUB_EMULATOR_HOST"
)

func serveCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the storefront HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, flags)
		},
	}
}

func serve(ctx context.Context, flags *globalFlags) error {
	startedAt := time.Now().UTC()

	baseLogger, err := observability.NewLoggerWithLevel(flags.logLevel)
	if err != nil {
		return fmt.Errorf("initialise logger: %w", err)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()
	logger := baseLogger.Named("storefront")
	ctx = observability.WithLogger(ctx, logger)
	eventLog := observability.EventLogger(logger)

	cfg, fetcher, err := loadConfig(ctx, logger, flags)
	if err != nil {
		return err
	}
	defer func() {
		if err := fetcher.Close(); err != nil {
			logger.Warn("secret fetcher close error", zap.Error(err))
		}
	}()

	resolver, err := newAssetResolver(cfg.Assets)
	if err != nil {
		return err
	}
	assetURL := resolver.MustURL

	events, stopEvents, eventsCheck, err := newPublisher(ctx, cfg.Events, logger)
	if err != nil {
		return err
	}
	defer stopEvents()

	var firestoreProvider *pfirestore.Provider
	if cfg.Cart.Backend == config.CartBackendFirestore {
		firestoreProvider = pfirestore.NewProvider(cfg.Firestore)
		defer func() {
			if err := firestoreProvider.Close(); err != nil {
				logger.Warn("firestore close error", zap.Error(err))
			}
		}()
	}

	persistence, err := newCartPersistence(ctx, cfg.Cart, firestoreProvider, eventLog)
	if err != nil {
		return err
	}
	registry, err := cart.NewRegistry(persistence,
		cart.WithBaseKey(cfg.Cart.Key),
		cart.WithIdleTTL(cfg.Cart.IdleTTL),
		cart.WithRegistryLogger(eventLog),
	)
	if err != nil {
		_ = persistence.Close()
		return fmt.Errorf("initialise cart registry: %w", err)
	}
	defer func() {
		if err := registry.Close(); err != nil {
			logger.Warn("cart registry close error", zap.Error(err))
		}
	}()
	if err := registry.Start(ctx); err != nil {
		return fmt.Errorf("start cart change feed: %w", err)
	}

	commerceClient := commerce.NewClient(cfg.Commerce,
		commerce.WithLogger(eventLog),
		commerce.WithAssetURL(assetURL),
	)
	if !commerceClient.Configured() {
		logger.Warn("commerce backend not configured; serving the demo catalog")
	}
	catalogService, err := catalog.NewService(catalog.ServiceDeps{
		Source:      commerceClient,
		ShopSize:    cfg.Commerce.ShopSize,
		GallerySize: cfg.Commerce.GallerySize,
		CacheTTL:    cfg.Commerce.CacheTTL,
		Logger:      eventLog,
	})
	if err != nil {
		return fmt.Errorf("initialise catalog service: %w", err)
	}

	cartService, err := services.NewCartService(services.CartServiceDeps{
		Carts:    registry,
		Products: commerceClient,
		Logger:   eventLog,
	})
	if err != nil {
		return fmt.Errorf("initialise cart service: %w", err)
	}
	checkoutService, err := services.NewCheckoutService(services.CheckoutServiceDeps{
		Carts:     registry,
		Checkouts: commerceClient,
		Events:    events,
		Logger:    eventLog,
	})
	if err != nil {
		return fmt.Errorf("initialise checkout service: %w", err)
	}
	contactService, err := services.NewContactService(services.ContactServiceDeps{
		Events: events,
		Logger: eventLog,
	})
	if err != nil {
		return fmt.Errorf("initialise contact service: %w", err)
	}

	schedule, err := loadSchedule(cfg.Narrative)
	if err != nil {
		return err
	}
	experienceService, err := services.NewExperienceService(services.ExperienceServiceDeps{
		Schedule:   schedule,
		Viewer:     cfg.Viewer,
		Mixing:     cfg.Mixing,
		IdleTTL:    cfg.Experience.IdleTTL,
		TimeSource: interactive.SystemClock(),
		Events:     events,
		AssetURL:   assetURL,
		Logger:     eventLog,
	})
	if err != nil {
		return fmt.Errorf("initialise experience service: %w", err)
	}
	defer experienceService.Close()

	pages := content.NewStore(content.WithDir(cfg.Content.Dir))

	sessions, err := session.NewManager(cfg.Session.Secret,
		session.WithCookieName(cfg.Session.CookieName),
		session.WithTTL(cfg.Session.TTL),
		session.WithSecure(cfg.Session.Secure),
	)
	if err != nil {
		return fmt.Errorf("initialise session manager: %w", err)
	}

	idempotencyStore := idempotency.NewMemoryStore()
	idempotencyMiddleware := idempotency.Middleware(idempotencyStore,
		idempotency.WithHeader(cfg.Idempotency.Header),
		idempotency.WithTTL(cfg.Idempotency.TTL),
	)

	healthOpts := []handlers.HealthOption{
		handlers.WithHealthBuildInfo(handlers.BuildInfo{
			Version:     version,
			CommitSHA:   commitSHA,
			Environment: cfg.Environment,
			StartedAt:   startedAt,
		}),
	}
	if eventsCheck != nil {
		healthOpts = append(healthOpts, handlers.WithHealthCheck("events", eventsCheck))
	}
	if firestoreProvider != nil {
		healthOpts = append(healthOpts, handlers.WithHealthCheck("firestore", func(ctx context.Context) error {
			return firestoreProvider.Ping(ctx, cfg.Cart.FirestoreCollection)
		}))
	}

	projectID := firstNonEmpty(cfg.Firestore.ProjectID, cfg.Events.ProjectID, cfg.Secrets.ProjectID)
	cartHandlers := handlers.NewCartHandlers(cartService)
	router := handlers.NewRouter(
		handlers.WithMiddlewares(
			observability.InjectLoggerMiddleware(logger),
			observability.TraceMiddleware(projectID),
			sessions.Middleware(),
			observability.RequestLoggerMiddleware(projectID),
			observability.RecoveryMiddleware(logger),
		),
		handlers.WithHealthHandlers(handlers.NewHealthHandlers(healthOpts...)),
		handlers.WithIdempotency(idempotencyMiddleware),
		handlers.WithCatalogRoutes(handlers.NewCatalogHandlers(catalogService).Routes),
		handlers.WithCartRoutes(cartHandlers.Routes),
		handlers.WithCheckoutRoutes(handlers.NewCheckoutHandlers(checkoutService).Routes),
		handlers.WithContactRoutes(handlers.NewContactHandlers(contactService).Routes),
		handlers.WithContentRoutes(handlers.NewContentHandlers(pages, assetURL).Routes),
		handlers.WithNavRoutes(handlers.NewNavHandlers(cartService).Routes),
		handlers.WithExperienceRoutes(handlers.NewExperienceHandlers(experienceService).Routes),
	)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
		BaseContext:  func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}
	server.RegisterOnShutdown(cartHandlers.CloseStreams)

	reload := make(chan os.Signal, 1)
	signal.Notify(reload, syscall.SIGHUP)
	defer signal.Stop(reload)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		serverLogger := logger.Named("http").With(zap.String("addr", server.Addr))
		serverLogger.Info("fillesume storefront listening", zap.String("environment", cfg.Environment))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		runMaintenance(groupCtx, logger.Named("maintenance"), cfg.Idempotency.CleanupInterval, maintenanceTargets{
			carts:       registry,
			experiences: experienceService,
			idempotency: idempotencyStore,
			catalog:     catalogService,
			reload:      reload,
		})
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		logger.Info("shutdown signal received; draining requests")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(groupCtx), shutdownGrace)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", zap.Error(err))
		}
		return nil
	})
	return group.Wait()
}

func loadConfig(ctx context.Context, logger *zap.Logger, flags *globalFlags) (config.Config, *secrets.Fetcher, error) {
	envOpt := config.WithEnvFile(flags.envFile)
	fetcher, err := secrets.NewFetcher(ctx,
		secrets.WithLogger(logger.Named("secrets")),
		secrets.WithProject(config.Lookup("SECRETS_PROJECT_ID", envOpt)),
		secrets.WithFallbackFile(firstNonEmpty(config.Lookup("SECRETS_FALLBACK_FILE", envOpt), ".secrets.local")),
	)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("initialise secret fetcher: %w", err)
	}
	cfg, err := config.Load(ctx, envOpt, config.WithSecretResolver(config.SecretResolverFunc(fetcher.Resolve)))
	if err != nil {
		_ = fetcher.Close()
		var invalid *config.ValidationError
		if errors.As(err, &invalid) {
			logger.Error("invalid configuration", zap.Strings("fields", invalid.Fields()))
		}
		return config.Config{}, nil, fmt.Errorf("load configuration: %w", err)
	}
	return cfg, fetcher, nil
}

func newAssetResolver(cfg config.AssetsConfig) (*assets.Resolver, error) {
	opts := []assets.Option{assets.WithTTL(cfg.URLTTL)}
	if bucket := strings.TrimSpace(cfg.Bucket); bucket != "" {
		var signer *assets.ServiceAccountSigner
		if keyFile := strings.TrimSpace(cfg.SignerKeyFile); keyFile != "" {
			s, err := assets.NewServiceAccountSignerFromFile(keyFile)
			if err != nil {
				return nil, fmt.Errorf("load asset signer key: %w", err)
			}
			signer = s
		}
		opts = append(opts, assets.WithBucket(bucket, signer))
	}
	return assets.NewResolver(cfg.BaseURL, opts...), nil
}

// newPublisher connects the Pub/Sub topic. Without a project id events are dropped.
func newPublisher(ctx context.Context, cfg config.EventsConfig, logger *zap.Logger) (jobs.Publisher, func(), handlers.HealthCheck, error) {
	projectID := strings.TrimSpace(cfg.ProjectID)
	if projectID == "" {
		logger.Warn("events project not configured; events will not be published")
		return jobs.NopPublisher{}, func() {}, nil, nil
	}
	if host := strings.TrimSpace(cfg.EmulatorHost); host != "" && os.Getenv(pubsubEmulatorEnv) == "" {
		_ = os.Setenv(pubsubEmulatorEnv, host)
	}
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("initialise pubsub client: %w", err)
	}
	topic := client.Topic(cfg.Topic)
	publisher, err := jobs.NewPubSubPublisher(topic)
	if err != nil {
		_ = client.Close()
		return nil, nil, nil, err
	}
	stop := func() {
		publisher.Stop()
		if err := client.Close(); err != nil {
			logger.Warn("pubsub close error", zap.Error(err))
		}
	}
	check := func(ctx context.Context) error {
		ok, err := topic.Exists(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("topic %s does not exist", cfg.Topic)
		}
		return nil
	}
	return publisher, stop, check, nil
}

func newCartPersistence(ctx context.Context, cfg config.CartConfig, provider *pfirestore.Provider, eventLog func(context.Context, string, map[string]any)) (cart.Persistence, error) {
	switch cfg.Backend {
	case config.CartBackendFile:
		p, err := cart.NewFilePersistence(cfg.Dir)
		if err != nil {
			return nil, fmt.Errorf("initialise file cart store: %w", err)
		}
		return p, nil
	case config.CartBackendSQLite:
		p, err := cart.NewSQLitePersistence(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("initialise sqlite cart store: %w", err)
		}
		return p, nil
	case config.CartBackendFirestore:
		p, err := cart.NewFirestorePersistence(provider, cfg.FirestoreCollection, cart.WithFirestoreLogger(eventLog))
		if err != nil {
			return nil, fmt.Errorf("initialise firestore cart store: %w", err)
		}
		return p, nil
	default:
		return cart.NewMemoryPersistence(), nil
	}
}

func loadSchedule(cfg config.NarrativeConfig) (narrative.Schedule, error) {
	path := strings.TrimSpace(cfg.ScheduleFile)
	if path == "" {
		return narrative.DefaultSchedule(), nil
	}
	schedule, err := narrative.LoadSchedule(path)
	if err != nil {
		return narrative.Schedule{}, fmt.Errorf("load narrative schedule: %w", err)
	}
	return schedule, nil
}

type maintenanceTargets struct {
	carts       *cart.Registry
	experiences services.ExperienceService
	idempotency *idempotency.MemoryStore
	catalog     *catalog.Service
	reload      <-chan os.Signal
}

// runMaintenance drops idle carts and experience sessions every minute, purges
// expired idempotency records on their own interval and empties the catalog
// cache on SIGHUP, until ctx is done.
func runMaintenance(ctx context.Context, logger *zap.Logger, cleanupEvery time.Duration, t maintenanceTargets) {
	reap := time.NewTicker(maintenanceInterval)
	defer reap.Stop()
	cleanup := time.NewTicker(cleanupEvery)
	defer cleanup.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-reap.C:
			carts := t.carts.CloseIdle(now)
			experiences := t.experiences.Reap(now)
			if carts > 0 || experiences > 0 {
				logger.Debug("idle state released", zap.Int("carts", carts), zap.Int("experiences", experiences))
			}
		case now := <-cleanup.C:
			removed, err := t.idempotency.CleanupExpired(ctx, now.UTC())
			if err != nil {
				logger.Error("idempotency cleanup error", zap.Error(err))
				continue
			}
			if removed > 0 {
				logger.Info("idempotency cleanup removed records", zap.Int("count", removed))
			}
		case <-t.reload:
			t.catalog.Invalidate()
			logger.Info("catalog cache invalidated")
		}
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
