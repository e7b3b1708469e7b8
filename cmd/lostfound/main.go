// lostfound serves the campus lost-and-found messaging API: REST endpoints
// for conversations and messages plus a websocket endpoint for real-time
// delivery.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"campus-lostfound/internal/config"
	"campus-lostfound/internal/database"
	"campus-lostfound/internal/handlers"
	"campus-lostfound/internal/messaging"
	"campus-lostfound/internal/middleware"
	"campus-lostfound/internal/moderation"
	"campus-lostfound/internal/notify"
	"campus-lostfound/internal/storage"
	"campus-lostfound/internal/utils"
	"campus-lostfound/internal/websocket"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/google/uuid"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 15 * time.Second

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

type options struct {
	envFile         string
	moderationTerms string
	addr            string
	issueToken      string
}

func parseFlags(args []string) (*options, error) {
	var opts options
	flagSet := pflag.NewFlagSet("lostfound", pflag.ContinueOnError)
	flagSet.StringVar(&opts.envFile, "env-file", "", "load environment from this file instead of .env")
	flagSet.StringVar(&opts.moderationTerms, "moderation-terms", "", "YAML or TOML file with blocked_terms and safe_phrases (overrides MODERATION_TERMS_FILE)")
	flagSet.StringVar(&opts.addr, "addr", "", "listen address (overrides HOST and PORT)")
	flagSet.StringVar(&opts.issueToken, "issue-token", "", "print a signed token for this user id and exit")
	if err := flagSet.Parse(args); err != nil {
		return nil, err
	}
	if rest := flagSet.Args(); len(rest) > 0 {
		return nil, fmt.Errorf("unexpected argument: %s", rest[0])
	}
	return &opts, nil
}

func run(args []string) error {
	opts, err := parseFlags(args)
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	cfg, err := config.LoadConfig(opts.envFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if opts.moderationTerms != "" {
		cfg.Messaging.ModerationTermsFile = opts.moderationTerms
	}

	gateway := middleware.NewJWTGateway(cfg.JWTSecret)
	if opts.issueToken != "" {
		userID, err := uuid.Parse(opts.issueToken)
		if err != nil {
			return fmt.Errorf("invalid user id %q: %w", opts.issueToken, err)
		}
		token, err := gateway.GenerateToken(userID)
		if err != nil {
			return err
		}
		fmt.Println(token)
		return nil
	}

	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := newApp(ctx, cfg, gateway, logger)
	if err != nil {
		return err
	}
	defer app.close()

	addr := cfg.Server.Addr()
	if opts.addr != "" {
		addr = opts.addr
	}
	return app.serve(ctx, addr)
}

// app is the wired process: store, real-time hub, notification actor and
// HTTP server.
type app struct {
	store      database.Store
	hub        *websocket.Hub
	dispatcher *notify.Dispatcher
	handler    http.Handler
	logger     *zap.Logger
}

func newApp(ctx context.Context, cfg *config.Config, gateway middleware.IdentityGateway, logger *zap.Logger) (*app, error) {
	terms, err := config.LoadModerationTerms(cfg.Messaging.ModerationTermsFile)
	if err != nil {
		return nil, err
	}
	filter, err := moderation.NewFilter(terms)
	if err != nil {
		return nil, fmt.Errorf("building moderation filter: %w", err)
	}

	store, err := openStore(ctx, cfg.Database, logger)
	if err != nil {
		return nil, err
	}

	images, err := storage.NewLocalImageStore(cfg.Messaging.UploadDir, logger)
	if err != nil {
		store.Close(ctx)
		return nil, err
	}

	metrics := utils.NewMetricsCollector()
	hub := websocket.NewHub(logger, metrics)

	// Initialize actor system
	system := actor.NewActorSystem()
	dispatcher := notify.NewDispatcher(system, store, hub, logger)

	service := messaging.NewService(store, filter, logger,
		messaging.WithPublisher(hub),
		messaging.WithNotifier(dispatcher),
		messaging.WithImageStore(images),
		messaging.WithMetrics(metrics),
		messaging.WithRecallWindow(cfg.Messaging.RecallWindow),
		messaging.WithMaxImageBytes(cfg.Messaging.MaxImageBytes),
	)

	server := handlers.NewServer(service, store, hub, gateway,
		middleware.DefaultCORSConfig(cfg.AllowedOrigins), metrics, logger)
	server.MetricsEnabled = cfg.Server.MetricsEnabled
	server.MaxImageBytes = cfg.Messaging.MaxImageBytes

	return &app{
		store:      store,
		hub:        hub,
		dispatcher: dispatcher,
		handler:    server.Routes(),
		logger:     logger,
	}, nil
}

// openStore connects the configured backend and makes sure its schema
// exists.
func openStore(ctx context.Context, cfg *config.DatabaseConfig, logger *zap.Logger) (database.Store, error) {
	var (
		db  *database.SQLDB
		err error
	)
	switch cfg.Type {
	case config.DBMemory:
		logger.Warn("using in-memory store, data is lost on restart")
		return database.NewMemoryDB(), nil
	case config.DBSQLite:
		db, err = database.NewSQLiteDB(cfg.SQLitePath, logger)
	case config.DBPostgres:
		db, err = database.NewPostgresDB(cfg.URI, logger)
	default:
		return nil, fmt.Errorf("unsupported database type %q", cfg.Type)
	}
	if err != nil {
		return nil, err
	}

	if err := db.InitializeTables(ctx); err != nil {
		db.Close(ctx)
		return nil, fmt.Errorf("initializing tables: %w", err)
	}
	return db, nil
}

// serve runs the HTTP server until ctx is cancelled, then shuts down
// gracefully.
func (a *app) serve(ctx context.Context, addr string) error {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.logger.Info("starting server", zap.String("addr", addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		// Hijacked websocket connections are not tracked by Shutdown.
		a.hub.Close()
		return httpServer.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// close releases everything newApp acquired. Queued notifications are
// written before the store goes away.
func (a *app) close() {
	a.hub.Close()
	a.dispatcher.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.store.Close(ctx); err != nil {
		a.logger.Warn("failed to close store", zap.Error(err))
	}
}
