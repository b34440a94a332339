package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cosmossdk.io/math"
	"github.com/gorilla/mux"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"tranche-vault/internal/access"
	apihttp "tranche-vault/internal/api/http"
	"tranche-vault/internal/audit"
	"tranche-vault/internal/auth"
	"tranche-vault/internal/config"
	custody "tranche-vault/internal/custody/domain"
	custodymem "tranche-vault/internal/custody/infrastructure/memory"
	custodypg "tranche-vault/internal/custody/infrastructure/postgres"
	eligibility "tranche-vault/internal/eligibility/domain"
	eligibilitymem "tranche-vault/internal/eligibility/infrastructure/memory"
	eligibilitypg "tranche-vault/internal/eligibility/infrastructure/postgres"
	eligibilityhttp "tranche-vault/internal/eligibility/interfaces/http"
	"tranche-vault/internal/eventing"
	eventingmem "tranche-vault/internal/eventing/infrastructure/memory"
	eventingrepo "tranche-vault/internal/eventing/infrastructure/postgres"
	"tranche-vault/internal/eventing/relay"
	"tranche-vault/internal/eventing/stream"
	fees "tranche-vault/internal/fees/domain"
	feesrepo "tranche-vault/internal/fees/infrastructure/postgres"
	feeshttp "tranche-vault/internal/fees/interfaces/http"
	nav "tranche-vault/internal/nav/domain"
	navrepo "tranche-vault/internal/nav/infrastructure/postgres"
	navhttp "tranche-vault/internal/nav/interfaces/http"
	"tranche-vault/internal/observability/metrics"
	"tranche-vault/internal/treasury"
	"tranche-vault/internal/vault/application"
	vault "tranche-vault/internal/vault/domain"
	vaultmem "tranche-vault/internal/vault/infrastructure/memory"
	vaultrepo "tranche-vault/internal/vault/infrastructure/postgres"
	vaulthttp "tranche-vault/internal/vault/interfaces/http"
)

type outboxStore interface {
	eventing.OutboxWriter
	eventing.OutboxStore
}

// stores groups the persistence backends selected at startup.
type stores struct {
	vaults      vault.Repository
	ledger      custody.Ledger
	allowList   eligibility.Store
	navRepo     nav.Repository
	feeRepo     fees.Repository
	audit       audit.Logger
	outbox      outboxStore
	processed   eventing.ProcessedStore
	dlq         eventing.DLQStore
	databaseURL string
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		zap.NewExample().Fatal("config error", zap.Error(err))
	}
	logger := newLogger(cfg.LogLevel)
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, backends := openStores(cfg, logger)
	if db != nil {
		defer db.Close()
	}
	metrics.Init(db, logger)

	bus := eventing.NewInMemoryBus()
	registry := eventing.NewRegistry()
	registry.Register(application.EventSamples()...)
	dispatcher := eventing.NewDispatcher(bus, backends.outbox, registry, backends.dlq, logger,
		eventing.WithRetry(cfg.Outbox.MaxAttempts, cfg.Outbox.Backoff))
	publisher := eventing.NewPublisher(backends.outbox, nil, "vault", logger)
	go dispatcher.Run(ctx, cfg.Outbox.Interval, cfg.Outbox.Limit)

	eventing.Subscribe(bus, eventing.EventTypeOf[application.RedemptionProcessed](), "vault.log", func(_ context.Context, event any) error {
		evt, ok := event.(application.RedemptionProcessed)
		if !ok {
			return eventing.ErrInvalidEventType
		}
		logger.Info("redemption settled",
			zap.String("asset_class", evt.AssetClass),
			zap.Uint64("request_id", evt.RequestID),
			zap.String("receiver", evt.Receiver),
		)
		return nil
	}, backends.processed)

	broker := stream.NewBroker()
	broker.Attach(bus, registry.Types()...)

	if cfg.NATS.URL != "" {
		conn, err := relay.Connect(cfg.NATS.URL, "tranche-vault", logger)
		if err != nil {
			logger.Fatal("nats connect error", zap.Error(err))
		}
		defer conn.Close()
		natsRelay, err := relay.NewNATSRelay(conn, cfg.NATS.SubjectPrefix, logger)
		if err != nil {
			logger.Fatal("nats relay error", zap.Error(err))
		}
		natsRelay.Attach(bus, registry.Types()...)
	}

	admin := access.NewCaller("bootstrap", auth.RoleAdmin.Capabilities()...)

	oracle := nav.NewOracle(backends.navRepo, nav.WithListener(application.NewNavFeed(publisher, logger)))
	if err := oracle.Restore(ctx); err != nil {
		logger.Fatal("nav restore error", zap.Error(err))
	}
	schedule, err := fees.NewSchedule(cfg.Fees, backends.feeRepo)
	if err != nil {
		logger.Fatal("fee schedule error", zap.Error(err))
	}
	if err := schedule.Restore(ctx); err != nil {
		logger.Fatal("fee restore error", zap.Error(err))
	}

	var gate application.EligibilityGate = backends.allowList
	if cfg.Eligibility.Mode == "open" {
		gate = eligibility.AllowAll{}
	}
	for _, entry := range cfg.Eligibility.Entries {
		if err := backends.allowList.Allow(ctx, eligibility.Entry{AssetClass: entry.AssetClass, Address: entry.Address}); err != nil {
			logger.Fatal("eligibility seed error", zap.String("asset_class", entry.AssetClass), zap.Error(err))
		}
	}

	var sink application.TreasurySink = treasury.NewLogSink(cfg.Treasury.Account, logger)
	if cfg.Treasury.WebhookURL != "" {
		sink = treasury.NewWebhookSink(cfg.Treasury.Account, cfg.Treasury.WebhookURL, treasury.WithBearerToken(cfg.Treasury.Token))
	}

	engines := make([]*application.Engine, 0, len(cfg.AssetClasses))
	for _, class := range cfg.AssetClasses {
		if err := bootstrapClass(ctx, oracle, schedule, admin, class); err != nil {
			logger.Fatal("asset class bootstrap error", zap.String("asset_class", class.Name), zap.Error(err))
		}
		account, err := custody.NewVaultAccount(backends.ledger, class.CustodyAccount)
		if err != nil {
			logger.Fatal("custody account error", zap.String("asset_class", class.Name), zap.Error(err))
		}
		engine, err := application.NewEngine(ctx, class.Name, class.LockDuration, application.Dependencies{
			Repository:  backends.vaults,
			Custody:     account,
			Eligibility: gate,
			Nav:         oracle,
			Fees:        schedule,
			Treasury:    sink,
			Publisher:   publisher,
			Logger:      logger,
		})
		if err != nil {
			logger.Fatal("vault engine error", zap.String("asset_class", class.Name), zap.Error(err))
		}
		engines = append(engines, engine)
	}

	if cfg.Keeper.Enabled && len(engines) > 0 {
		processors := make([]application.BatchProcessor, 0, len(engines))
		for _, engine := range engines {
			processors = append(processors, engine)
		}
		operator := access.NewCaller(cfg.Keeper.Operator, auth.RoleOperator.Capabilities()...)
		keeper := application.NewKeeper(processors, operator, cfg.Keeper.Interval, cfg.Keeper.Limit, logger)
		go keeper.Start(ctx)
	}

	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case tick := <-ticker.C:
				application.RecordNavAge(oracle.List(), tick.UTC())
			}
		}
	}()

	auditor := apihttp.NewAuditor(backends.audit, logger)
	router := mux.NewRouter()
	if len(engines) > 0 {
		vaultHandler, err := vaulthttp.NewHandler(engines, backends.audit, logger)
		if err != nil {
			logger.Fatal("vault handler error", zap.Error(err))
		}
		vaultHandler.Register(router)
		sources := make([]apihttp.RequestSource, 0, len(engines))
		for _, engine := range engines {
			sources = append(sources, engine)
		}
		router.Handle("/api/v1/exports/requests.csv", apihttp.NewExportRequestsCSVHandler(sources...)).Methods(http.MethodGet)
	}
	navHandler, err := navhttp.NewHandler(oracle, auditor)
	if err != nil {
		logger.Fatal("nav handler error", zap.Error(err))
	}
	navHandler.Register(router)
	feesHandler, err := feeshttp.NewHandler(schedule, auditor)
	if err != nil {
		logger.Fatal("fees handler error", zap.Error(err))
	}
	feesHandler.Register(router)
	eligibilityHandler, err := eligibilityhttp.NewHandler(backends.allowList, auditor)
	if err != nil {
		logger.Fatal("eligibility handler error", zap.Error(err))
	}
	eligibilityHandler.Register(router)
	router.Handle("/api/v1/events/stream", stream.NewHandler(broker)).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.Handler())
	router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	policy := auth.NewDefaultPolicy([]string{"/healthz", "/metrics"}, nil)
	authMiddleware := auth.NewMiddleware([]byte(cfg.JWTSecret), policy)
	corsMiddleware := cors.New(cors.Options{
		AllowedOrigins: cfg.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
	})

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           loggingMiddleware(corsMiddleware.Handler(authMiddleware.Wrap(router)), logger),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	logger.Info("http listening",
		zap.String("addr", cfg.HTTPAddr),
		zap.Int("asset_classes", len(engines)),
		zap.Bool("postgres", backends.databaseURL != ""),
	)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal("http server error", zap.Error(err))
	}
}

func openStores(cfg config.Config, logger *zap.Logger) (*sql.DB, stores) {
	if cfg.DatabaseURL == "" {
		allowList, err := eligibilitymem.NewAllowList()
		if err != nil {
			logger.Fatal("allow-list error", zap.Error(err))
		}
		events := eventingmem.NewStore()
		logger.Warn("DATABASE_URL not set, using in-memory stores")
		return nil, stores{
			vaults:    vaultmem.NewRepository(),
			ledger:    custodymem.NewLedger(),
			allowList: allowList,
			audit:     &audit.MemoryLog{},
			outbox:    events,
			processed: events,
			dlq:       events,
		}
	}

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("db open error", zap.Error(err))
	}
	if err := db.Ping(); err != nil {
		logger.Fatal("db ping error", zap.Error(err))
	}
	return db, stores{
		vaults:      vaultrepo.NewVaultRepository(db),
		ledger:      custodypg.NewLedger(db),
		allowList:   eligibilitypg.NewAllowList(db),
		navRepo:     navrepo.NewNavRepository(db),
		feeRepo:     feesrepo.NewFeeRepository(db),
		audit:       audit.NewRepository(db),
		outbox:      eventingrepo.NewOutboxStore(db),
		processed:   eventingrepo.NewProcessedStore(db),
		dlq:         eventingrepo.NewDLQStore(db),
		databaseURL: cfg.DatabaseURL,
	}
}

// bootstrapClass registers the NAV record and fee override of a configured asset class.
// Records restored from storage keep their stored thresholds and valuation.
func bootstrapClass(ctx context.Context, oracle *nav.Oracle, schedule *fees.Schedule, admin access.Caller, class config.AssetClass) error {
	record, ok := oracle.Get(class.Name)
	if !ok {
		registered, err := oracle.Register(ctx, admin, nav.RegisterParams{
			AssetClass:         class.Name,
			ChangeThresholdBps: class.ChangeThresholdBps,
			StalenessThreshold: class.Staleness,
			Updaters:           class.Updaters,
		})
		if err != nil {
			return err
		}
		record = registered
	}
	initial, err := class.ParseInitialNav()
	if err != nil {
		return err
	}
	if (record.Nav == (math.Uint{}) || record.Nav.IsZero()) && !initial.IsZero() {
		if _, err := oracle.UpdateNav(ctx, admin, class.Name, initial); err != nil {
			return err
		}
	}
	if class.Fees != nil {
		if _, overridden := schedule.AssetClass(class.Name); !overridden {
			if err := schedule.SetAssetClass(ctx, admin, class.Name, *class.Fees); err != nil {
				return err
			}
		}
	}
	return nil
}

func newLogger(level string) *zap.Logger {
	cfg := zap.NewProductionConfig()
	var parsed zapcore.Level
	if err := parsed.UnmarshalText([]byte(level)); err == nil {
		cfg.Level = zap.NewAtomicLevelAt(parsed)
	}
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, err := cfg.Build()
	if err != nil {
		return zap.NewExample()
	}
	return logger
}

func loggingMiddleware(next http.Handler, logger *zap.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		resp := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(resp, r)
		logger.Info("http",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", resp.status),
			zap.Duration("duration", time.Since(start)),
			zap.String("client_ip", audit.ClientIP(r)),
		)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusWriter) Flush() {
	if flusher, ok := w.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}
