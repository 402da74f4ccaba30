package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/planboard/project/internal/app/calendarapi"
	"github.com/planboard/project/internal/app/identity"
	"github.com/planboard/project/internal/calendar"
	"github.com/planboard/project/internal/logging"
	platformauth "github.com/planboard/project/internal/platform/auth"
	"github.com/planboard/project/internal/platform/config"
	"github.com/planboard/project/internal/platform/dbpool"
	"github.com/planboard/project/internal/platform/metrics"
	"github.com/planboard/project/internal/platform/natsutil"
	"github.com/planboard/project/internal/realtime"
	"github.com/urfave/cli/v2"
)

func main() {
	// A missing .env is fine.
	_ = godotenv.Load()

	app := &cli.App{
		Name:  "calendar-api",
		Usage: "Serve the calendar HTTP API.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", EnvVars: []string{"CALENDAR_CONFIG"}, Usage: "Path to a YAML config file."},
		},
		Commands: []*cli.Command{
			serveCommand(),
			migrateCommand(),
		},
		DefaultCommand: "serve",
	}

	if err := app.Run(os.Args); err != nil {
		slog.Error("calendar-api failed", "error", err)
		os.Exit(1)
	}
}

func loadConfig(c *cli.Context) (config.Config, *slog.Logger, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return config.Config{}, nil, err
	}
	logger := logging.New(os.Stderr, cfg.LogLevel)
	slog.SetDefault(logger)
	return cfg, logger, nil
}

func migrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Create the users, refresh_tokens and events tables.",
		Action: func(c *cli.Context) error {
			cfg, logger, err := loadConfig(c)
			if err != nil {
				return err
			}
			pool, err := dbpool.New(c.Context, cfg.DatabaseURL)
			if err != nil {
				return fmt.Errorf("connect postgres: %w", err)
			}
			defer pool.Close()

			if err := identity.NewPostgresRepository(pool).EnsureSchema(c.Context); err != nil {
				return fmt.Errorf("identity schema: %w", err)
			}
			if err := calendar.NewPostgresStore(pool).EnsureSchema(c.Context); err != nil {
				return fmt.Errorf("events schema: %w", err)
			}
			logger.Info("schema is up to date")
			return nil
		},
	}
}

// backend is what serve wires the services onto: Postgres and JetStream, or
// process memory.
type backend struct {
	store    calendar.Store
	users    identity.Repository
	publish  realtime.PublishFunc
	changes  realtime.Subscriber
	ready    func(ctx context.Context) error
	shutdown func()
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the HTTP server.",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "memory-store", Usage: "Keep users and events in memory; no Postgres or NATS."},
		},
		Action: func(c *cli.Context) error {
			cfg, logger, err := loadConfig(c)
			if err != nil {
				return err
			}
			loc, err := cfg.Location()
			if err != nil {
				return err
			}

			runCtx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			var be backend
			if c.Bool("memory-store") {
				logger.Warn("using in-memory storage; data is lost on exit")
				be = memoryBackend()
			} else if be, err = externalBackend(runCtx, cfg, logger); err != nil {
				return err
			}
			defer be.shutdown()

			store := calendar.WithChangeFeed(be.store, realtime.NewPublisher(be.publish), logger)
			calendarSvc := calendar.NewService(store, platformauth.ContextAuthenticator{})
			calendarSvc.Logger = logger
			calendarSvc.Location = loc
			calendarSvc.CategoryScope = calendar.CategoryScope(cfg.CategoryScope)

			identitySvc := identity.NewService(be.users, identity.NewTokenManager(cfg.JWTSecret, cfg.AccessTokenTTL))
			identitySvc.Logger = logger

			handler := calendarapi.NewHandler(calendarSvc, identitySvc, realtime.NewChannel(be.changes, logger), cfg.UIOrigin)
			handler.Logger = logger

			mux := http.NewServeMux()
			mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "text/plain; charset=utf-8")
				w.WriteHeader(http.StatusOK)
				_, _ = w.Write([]byte("ok"))
			})
			mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
				if err := be.ready(r.Context()); err != nil {
					http.Error(w, err.Error(), http.StatusServiceUnavailable)
					return
				}
				w.Header().Set("Content-Type", "text/plain; charset=utf-8")
				w.WriteHeader(http.StatusOK)
				_, _ = w.Write([]byte("ok"))
			})
			mux.Handle("/metrics", metrics.DefaultHandler())
			mux.Handle("/", handler.Router())

			// No WriteTimeout: the change stream holds responses open.
			server := &http.Server{
				Addr:              cfg.Listen,
				Handler:           mux,
				ReadHeaderTimeout: 5 * time.Second,
				ReadTimeout:       15 * time.Second,
				IdleTimeout:       60 * time.Second,
			}

			logger.Info("calendar API listening", "addr", cfg.Listen, "timezone", loc.String(), "category_scope", cfg.CategoryScope)
			serverErr := make(chan error, 1)
			go func() {
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					serverErr <- err
				}
			}()

			select {
			case err := <-serverErr:
				return err
			case <-runCtx.Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				logger.Error("graceful shutdown failed", "error", err)
			}
			return nil
		},
	}
}

func memoryBackend() backend {
	bus := realtime.NewLocalBus()
	return backend{
		store:    calendar.NewMemoryStore(),
		users:    identity.NewMemoryRepository(),
		publish:  bus.Publish,
		changes:  bus,
		ready:    func(context.Context) error { return nil },
		shutdown: func() {},
	}
}

func externalBackend(ctx context.Context, cfg config.Config, logger *slog.Logger) (backend, error) {
	pool, err := dbpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return backend{}, fmt.Errorf("connect postgres: %w", err)
	}

	users := identity.NewPostgresRepository(pool)
	events := calendar.NewPostgresStore(pool)
	for name, repo := range map[string]schemaEnsurer{"identity": users, "events": events} {
		if err := waitForSchema(ctx, name, repo, 30*time.Second, logger); err != nil {
			pool.Close()
			return backend{}, err
		}
	}

	client, err := natsutil.ConnectJetStreamWithRetry(ctx, cfg.NATSURL, 20*time.Second, logger)
	if err != nil {
		pool.Close()
		return backend{}, err
	}

	return backend{
		store:   events,
		users:   users,
		publish: client.Publish,
		changes: client,
		ready: func(ctx context.Context) error {
			return checkReadiness(ctx, pool, client)
		},
		shutdown: func() {
			client.Close()
			pool.Close()
		},
	}, nil
}

type schemaEnsurer interface {
	EnsureSchema(ctx context.Context) error
}

func waitForSchema(ctx context.Context, name string, repo schemaEnsurer, timeout time.Duration, logger *slog.Logger) error {
	deadline := time.Now().Add(timeout)
	var lastErr error
	for time.Now().Before(deadline) {
		attemptCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		lastErr = repo.EnsureSchema(attemptCtx)
		cancel()
		if lastErr == nil {
			return nil
		}
		logger.Warn("waiting for schema readiness", "schema", name, "error", lastErr)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(500 * time.Millisecond):
		}
	}
	return fmt.Errorf("%s schema: %w", name, lastErr)
}

func checkReadiness(ctx context.Context, pool *pgxpool.Pool, client *natsutil.Client) error {
	if err := client.Ready(); err != nil {
		return err
	}
	checkCtx, cancel := context.WithTimeout(ctx, 1500*time.Millisecond)
	defer cancel()
	if err := pool.Ping(checkCtx); err != nil {
		return fmt.Errorf("postgres ping failed: %w", err)
	}
	return nil
}
