package cli

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/linhnh2711/examen-civique-app-sub000/internal/app"
	"github.com/linhnh2711/examen-civique-app-sub000/internal/config"
	"github.com/linhnh2711/examen-civique-app-sub000/internal/domain"
	"github.com/linhnh2711/examen-civique-app-sub000/internal/infra/memory"
	infrapg "github.com/linhnh2711/examen-civique-app-sub000/internal/infra/postgres"
	infraredis "github.com/linhnh2711/examen-civique-app-sub000/internal/infra/redis"
	transport "github.com/linhnh2711/examen-civique-app-sub000/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the progress and entitlement server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := logrus.New()

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var redisClient *goredis.Client
	if cfg.Redis.Addr != "" {
		redisClient = goredis.NewClient(&goredis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
	}

	var loader memory.CatalogLoader = memory.NewStaticCatalogLoader(sampleCatalog())
	if pool != nil {
		loader = infrapg.NewCatalogLoader(pool)
	}

	catalogTTL := config.TTLDuration(cfg.Catalog.TTL, 10*time.Minute)
	var catalog app.QuestionCatalog
	if redisClient != nil {
		catalog = infraredis.NewCatalog(redisClient, loader, catalogTTL)
	} else {
		catalog = memory.NewCatalog(loader, catalogTTL)
	}

	namespace := cfg.Redis.Namespace
	if namespace == "" {
		namespace = "default"
	}
	var kv app.KeyValueStore
	if redisClient != nil {
		kv = infraredis.NewKVStore(redisClient, namespace)
	} else {
		kv = memory.NewKVStore()
	}

	history := app.NewHistoryLog(kv, logger)
	ledger := app.NewProgressLedger(kv, catalog, history, logger)
	entitlements := app.NewEntitlementStore(kv, cfg.Premium.Salt, logger)

	var cloud app.CloudStore = memory.NewCloudStore()
	if pool != nil {
		cloud = infrapg.NewCloudStore(pool)
	}
	auth := memory.NewAuthProvider(cfg.Auth.UserID, cfg.Auth.Email)
	syncService := app.NewSyncService(cloud, auth, ledger, history, entitlements, logger)

	purchaseTimeout := config.TTLDuration(cfg.Purchase.Timeout, app.DefaultPurchaseTimeout)
	purchaseClient := memory.NewPurchaseClient()
	purchases := app.NewPurchaseFlow(purchaseClient, entitlements, "demo-store", purchaseTimeout, logger)
	defer purchases.Close()
	if err := purchases.Initialize(ctx); err != nil {
		return err
	}

	wsHandler := transport.NewWSHandler(ledger, history, entitlements, logger)
	apiHandler := transport.NewAPIHandler(ledger, history, entitlements, syncService, purchases, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ws", wsHandler.ServeWS)
	apiHandler.Register(mux)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		logger.WithField("port", finalPort).Info("starting civique service")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("failed to start server")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		logger.Info("shutting down server...")
	case <-ctx.Done():
		logger.Info("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// sampleCatalog provides a minimal question pool; the Postgres loader
// replaces this in production.
func sampleCatalog() []domain.Question {
	return []domain.Question{
		{ID: 1, Tags: []domain.Track{domain.TrackCSP}},
		{ID: 2, Tags: []domain.Track{domain.TrackCSP}},
		{ID: 3, Tags: []domain.Track{domain.TrackCR}},
		{ID: 4, Tags: []domain.Track{domain.TrackCSP, domain.TrackCR}},
		{ID: 5, Tags: []domain.Track{domain.TrackCR}},
	}
}
