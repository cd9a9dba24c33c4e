package main

import (
	"context"
	"github.com/alexedwards/scs/sqlite3store"
	"github.com/alexedwards/scs/v2"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/myrjola/vera/internal/broker"
	"github.com/myrjola/vera/internal/config"
	"github.com/myrjola/vera/internal/errors"
	"github.com/myrjola/vera/internal/investigation"
	"github.com/myrjola/vera/internal/logging"
	"github.com/myrjola/vera/internal/pipeline"
	"github.com/myrjola/vera/internal/pprofserver"
	"github.com/myrjola/vera/internal/repositories"
	"github.com/myrjola/vera/internal/setup"
	"github.com/myrjola/vera/internal/sqlite"
	"github.com/myrjola/vera/internal/telemetry"
	"golang.org/x/sync/errgroup"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
)

const serviceName = "vera"

type application struct {
	logger         *slog.Logger
	investigations *investigation.Service
	sessionManager *scs.SessionManager
}

func run(ctx context.Context, logger *slog.Logger, lookupEnv func(string) (string, bool)) error {
	env, cfg, err := config.LoadAll(lookupEnv, "")
	if err != nil {
		return errors.Wrap(err, "load configuration")
	}

	db, err := sqlite.NewDatabase(ctx, env.SqliteURL, logger)
	if err != nil {
		return errors.Wrap(err, "open database", slog.String("url", env.SqliteURL))
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			logger.LogAttrs(ctx, slog.LevelError, "failed to close database", errors.SlogError(closeErr))
		}
	}()
	logger.LogAttrs(ctx, slog.LevelInfo, "connected to db")

	investigations := repositories.NewInvestigationRepository(db, logger)
	var interrupted int64
	if interrupted, err = investigations.MarkInterrupted(ctx, time.Now()); err != nil {
		return errors.Wrap(err, "mark interrupted investigations")
	}
	if interrupted > 0 {
		logger.LogAttrs(ctx, slog.LevelWarn, "failed investigations interrupted by a restart",
			slog.Int64("count", interrupted))
	}

	gen, err := setup.Generator(ctx, env, cfg, logger)
	if err != nil {
		return errors.Wrap(err, "new generator")
	}
	orchestrator := setup.Orchestrator(gen, cfg, logger,
		pipeline.NewLogObserver(logger), telemetry.NewSpanObserver(nil))

	events := broker.NewChannelBroker[uuid.UUID, pipeline.Event]()
	brokerCtx, stopBroker := context.WithCancel(context.WithoutCancel(ctx))
	go events.Run(brokerCtx)
	defer stopBroker()

	svc := investigation.NewService(investigation.Options{
		Extractor:    setup.Extractor(cfg, logger),
		Orchestrator: orchestrator,
		Stages:       setup.Stages(cfg),
		Repository:   investigations,
		Broker:       events,
		Logger:       logger,
		Now:          time.Now,
	})

	store := sqlite3store.NewWithCleanupInterval(db.ReadWrite.DB, time.Hour)
	defer store.StopCleanup()
	sessionManager := scs.New()
	sessionManager.Store = store
	sessionManager.Lifetime = 30 * 24 * time.Hour //nolint:mnd // visitors come back to their reports for a month
	sessionManager.Cookie.Name = "vera_visitor"
	sessionManager.Cookie.HttpOnly = true
	sessionManager.Cookie.Secure = true
	sessionManager.Cookie.SameSite = http.SameSiteLaxMode

	app := application{
		logger:         logger,
		investigations: svc,
		sessionManager: sessionManager,
	}

	// URL extraction happens while the submitting request waits.
	requestTimeout := cfg.Extractor.Timeout + 5*time.Second //nolint:mnd // headroom for persistence and encoding

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return app.configureAndStartServer(gctx, env.Addr, requestTimeout)
	})
	if env.PprofAddr != "" {
		g.Go(func() error {
			return pprofserver.Serve(gctx, env.PprofAddr, logger)
		})
	}
	g.Go(func() error {
		db.RunMaintenance(gctx, time.Hour)
		return nil
	})
	err = g.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), requestTimeout)
	defer cancel()
	if shutdownErr := svc.Shutdown(shutdownCtx); shutdownErr != nil {
		err = errors.Join(err, errors.Wrap(shutdownErr, "shutdown investigations"))
	}
	return err
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// The .env file is optional; deployments set the environment directly.
	_ = godotenv.Load()

	env, err := config.LoadEnv(os.LookupEnv)
	if err != nil {
		slog.Default().LogAttrs(ctx, slog.LevelError, "failed to read environment", errors.SlogError(err))
		os.Exit(1)
	}
	tel, err := telemetry.Setup(ctx, telemetry.Options{
		Endpoint:       env.OTLPEndpoint,
		ServiceName:    serviceName,
		ServiceVersion: "",
		Headers:        env.OTLPHeaders,
	})
	if err != nil {
		slog.Default().LogAttrs(ctx, slog.LevelError, "failed to set up telemetry", errors.SlogError(err))
		os.Exit(1)
	}
	logger, err := logging.NewLogger(os.Stdout, logging.Options{
		Level:          env.LogLevel,
		Format:         env.LogFormat,
		AddSource:      true,
		LoggerProvider: tel.LoggerProvider(),
		ServiceName:    serviceName,
	})
	if err != nil {
		slog.Default().LogAttrs(ctx, slog.LevelError, "failed to create logger", errors.SlogError(err))
		os.Exit(1)
	}

	exitCode := 0
	if err = run(ctx, logger, os.LookupEnv); err != nil {
		logger.LogAttrs(ctx, slog.LevelError, "failure starting application", errors.SlogError(err))
		exitCode = 1
	}
	if err = tel.Shutdown(context.WithoutCancel(ctx)); err != nil {
		logger.LogAttrs(ctx, slog.LevelError, "failed to flush telemetry", errors.SlogError(err))
		exitCode = 1
	}
	stop()
	os.Exit(exitCode)
}
