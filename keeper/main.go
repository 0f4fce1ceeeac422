package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/indexr-labs/indexr-go/internal/catalog"
	"github.com/indexr-labs/indexr-go/internal/chain"
	"github.com/indexr-labs/indexr-go/internal/engine"
	"github.com/indexr-labs/indexr-go/internal/platform/auditlog"
	"github.com/indexr-labs/indexr-go/internal/platform/auth"
	"github.com/indexr-labs/indexr-go/internal/platform/env"
	"github.com/indexr-labs/indexr-go/internal/platform/httpserver"
	"github.com/indexr-labs/indexr-go/internal/platform/objectstore"
	"github.com/indexr-labs/indexr-go/internal/platform/postgres"
	"github.com/indexr-labs/indexr-go/internal/relayer"
	"github.com/indexr-labs/indexr-go/internal/repo"
	repopg "github.com/indexr-labs/indexr-go/internal/repo/postgres"
	"github.com/indexr-labs/indexr-go/internal/reports"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	ctx := context.Background()
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	addr := env.String("KEEPER_HTTP_ADDR", ":8084")
	shutdownTimeout, err := env.Duration("KEEPER_SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		logger.Error("invalid env", "error", err)
		os.Exit(2)
	}

	dbCfg, err := postgres.ConfigFromEnv()
	if err != nil {
		logger.Error("invalid database config", "error", err)
		os.Exit(2)
	}
	db, err := postgres.Open(ctx, dbCfg)
	if err != nil {
		logger.Error("database unavailable", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	cronSecret := env.String("CRON_SECRET", "")
	cronVerifier, err := auth.NewCronVerifier(cronSecret)
	if err != nil {
		logger.Error("invalid cron config", "error", err)
		os.Exit(2)
	}

	plans := repopg.NewPlanStore(db)
	notifications := repopg.NewNotificationStore(db)

	baskets, err := basketSource(db)
	if err != nil {
		logger.Error("invalid basket source config", "error", err)
		os.Exit(2)
	}

	runner, err := buildRunner(ctx, logger, db, plans, notifications)
	if err != nil {
		logger.Error("invalid execution config", "error", err)
		os.Exit(2)
	}

	archiver, err := buildArchiver(ctx, logger)
	if err != nil {
		logger.Error("invalid report archive config", "error", err)
		os.Exit(2)
	}

	operatorAuth, err := buildOperatorAuth(ctx, logger)
	if err != nil {
		logger.Error("invalid auth config", "error", err)
		os.Exit(2)
	}

	api := newKeeperAPI(
		logger,
		plans,
		notifications,
		baskets,
		runner,
		cronVerifier,
		operatorAuth,
		archiver,
		&dbAuditor{db: db},
	)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", httpserver.Healthz("keeper"))
	mux.HandleFunc("GET /readyz", httpserver.ReadyzWithChecks(
		"keeper",
		httpserver.ReadinessCheck{
			Name: "postgres",
			Check: func(checkCtx context.Context) error {
				pingCtx, cancel := context.WithTimeout(checkCtx, 2*time.Second)
				defer cancel()
				return db.PingContext(pingCtx)
			},
		},
	))
	api.register(mux)

	handler := httpserver.Wrap(logger, "keeper", mux)
	err = httpserver.Run(ctx, logger, httpserver.Config{
		Service:         "keeper",
		Addr:            addr,
		ShutdownTimeout: shutdownTimeout,
	}, handler)
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("http server failed", "error", err)
		os.Exit(1)
	}
}

// basketSource picks the catalog backend once at startup. There is no
// runtime fallback between the two.
func basketSource(db *sql.DB) (repo.BasketRepository, error) {
	source := strings.ToLower(strings.TrimSpace(env.String("BASKET_SOURCE", "db")))
	switch source {
	case "db":
		return repopg.NewBasketStore(db), nil
	case "file":
		path := strings.TrimSpace(env.String("BASKET_CATALOG_PATH", ""))
		if path == "" {
			return nil, errors.New("BASKET_CATALOG_PATH is required when BASKET_SOURCE=file")
		}
		return catalog.Load(path)
	default:
		return nil, errors.New("BASKET_SOURCE must be one of: db, file")
	}
}

// buildRunner selects the execution strategy once at startup:
// onchain (rpc ledger + relayer settlement), dryrun (simulated), or
// disabled (trigger endpoint answers 503).
func buildRunner(ctx context.Context, logger *slog.Logger, db *sql.DB, plans repo.PlanRepository, notifications repo.NotificationRepository) (tickRunner, error) {
	mode := strings.ToLower(strings.TrimSpace(env.String("KEEPER_EXECUTION_MODE", "disabled")))

	var (
		ledger     engine.Ledger
		settlement engine.Settlement
		spender    string
	)
	switch mode {
	case "", "disabled":
		return nil, nil
	case "dryrun":
		ledger = engine.DryRunLedger{}
		settlement = engine.DryRunSettlement{Logger: logger}
		spender = env.String("CHAIN_SPENDER_ADDRESS", "0x0000000000000000000000000000000000000000")
	case "onchain":
		rpcTimeout, err := env.Duration("CHAIN_RPC_TIMEOUT", 10*time.Second)
		if err != nil {
			return nil, err
		}
		rpcClient, err := chain.NewClient(env.String("CHAIN_RPC_URL", ""), rpcTimeout)
		if err != nil {
			return nil, err
		}
		ledger, err = chain.NewERC20Ledger(rpcClient, env.String("CHAIN_USDC_ADDRESS", ""))
		if err != nil {
			return nil, err
		}
		spender = strings.TrimSpace(env.String("CHAIN_SPENDER_ADDRESS", ""))
		if spender == "" {
			return nil, errors.New("CHAIN_SPENDER_ADDRESS is required in onchain mode")
		}

		relayerTimeout, err := env.Duration("RELAYER_TIMEOUT", 30*time.Second)
		if err != nil {
			return nil, err
		}
		pollInterval, err := env.Duration("RELAYER_POLL_INTERVAL", 3*time.Second)
		if err != nil {
			return nil, err
		}
		settlement, err = relayer.NewClient(relayer.Config{
			BaseURL:      env.String("RELAYER_BASE_URL", ""),
			APIKey:       env.String("RELAYER_API_KEY", ""),
			Timeout:      relayerTimeout,
			PollInterval: pollInterval,
		})
		if err != nil {
			return nil, err
		}
	default:
		return nil, errors.New("KEEPER_EXECUTION_MODE must be one of: onchain, dryrun, disabled")
	}

	validator, err := engine.NewValidator(ledger, spender)
	if err != nil {
		return nil, err
	}

	awaitTimeout, err := env.Duration("KEEPER_AWAIT_TIMEOUT", 2*time.Minute)
	if err != nil {
		return nil, err
	}
	claimLease, err := env.Duration("KEEPER_CLAIM_LEASE", 5*time.Minute)
	if err != nil {
		return nil, err
	}
	concurrency, err := env.Int("KEEPER_CONCURRENCY", 4)
	if err != nil {
		return nil, err
	}

	coordinator, err := engine.NewCoordinator(
		plans,
		validator,
		settlement,
		notifications,
		&dbAuditor{db: db},
		logger,
		engine.CoordinatorConfig{
			AwaitTimeout: awaitTimeout,
			ClaimLease:   claimLease,
		},
	)
	if err != nil {
		return nil, err
	}

	scanner, err := engine.NewScanner(plans, logger)
	if err != nil {
		return nil, err
	}
	return engine.NewRunner(scanner, coordinator, logger, concurrency)
}

func buildArchiver(ctx context.Context, logger *slog.Logger) (*reports.Archiver, error) {
	mode := strings.ToLower(strings.TrimSpace(env.String("KEEPER_REPORT_ARCHIVE", "disabled")))
	switch mode {
	case "", "disabled":
		return nil, nil
	case "minio":
		cfg, err := objectstore.ConfigFromEnv()
		if err != nil {
			return nil, err
		}
		client, err := objectstore.NewMinIOClient(cfg)
		if err != nil {
			return nil, err
		}
		startupCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := objectstore.EnsureReportsBucket(startupCtx, client, cfg); err != nil {
			return nil, err
		}
		logger.Info("tick report archive enabled", "bucket", cfg.BucketReports)
		return reports.NewArchiver(client, cfg.BucketReports)
	default:
		return nil, errors.New("KEEPER_REPORT_ARCHIVE must be one of: minio, disabled")
	}
}

func buildOperatorAuth(ctx context.Context, logger *slog.Logger) (auth.Middleware, error) {
	cfg, err := auth.ConfigFromEnv()
	if err != nil {
		return auth.Middleware{}, err
	}
	middleware := auth.Middleware{Logger: logger}
	switch cfg.Mode {
	case auth.ModeOIDC:
		authenticator, err := auth.NewOIDCAuthenticator(ctx, cfg.OIDCIssuerURL, cfg.OIDCClientID)
		if err != nil {
			return auth.Middleware{}, err
		}
		middleware.Authenticator = authenticator
	case auth.ModeDev:
		middleware.Authenticator = auth.DevAuthenticator{Subject: cfg.DevSubject, Email: cfg.DevEmail}
	case auth.ModeDisabled:
		// nil authenticator: operator endpoints stay closed.
	}
	return middleware, nil
}

// dbAuditor appends engine plan events to the audit log.
type dbAuditor struct {
	db *sql.DB
}

func (a *dbAuditor) AppendPlanEvent(ctx context.Context, action, planID string, payload map[string]any) error {
	if a == nil || a.db == nil {
		return errors.New("auditor not initialized")
	}
	actor := "keeper"
	if v, ok := payload["actor"].(string); ok && strings.TrimSpace(v) != "" {
		actor = v
	}
	_, err := auditlog.Insert(ctx, a.db, auditlog.Event{
		Actor:        actor,
		Action:       action,
		ResourceType: "plan",
		ResourceID:   planID,
		Payload:      payload,
	})
	return err
}
