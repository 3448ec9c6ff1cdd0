package cli

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

	"trivia-night-service/internal/app"
	"trivia-night-service/internal/config"
	"trivia-night-service/internal/domain"
	"trivia-night-service/internal/infra/broker"
	"trivia-night-service/internal/infra/memory"
	"trivia-night-service/internal/infra/postgres"
	rediscache "trivia-night-service/internal/infra/redis"
	transport "trivia-night-service/internal/transport/http"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	var demo bool
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the trivia server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port, demo)
		},
	}
	cmd.Flags().BoolVar(&demo, "demo", false, "seed a sample game when the store is empty")
	return cmd
}

func runServer(ctx context.Context, configPath, portFlag string, demo bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger := newLogger(os.Stderr, cfg)

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	service, cleanup, err := buildService(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	if demo {
		if err := seedDemo(ctx, service); err != nil {
			return fmt.Errorf("seed demo data: %w", err)
		}
	}

	server := &http.Server{
		Addr:              ":" + finalPort,
		Handler:           transport.NewRouter(service, logger),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
	}

	go func() {
		logger.Info("starting trivia service", "addr", server.Addr, "store", cfg.Store.Driver)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server stopped", "err", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		logger.Info("shutting down server")
	case <-ctx.Done():
		logger.Info("context canceled, shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// buildService wires the configured store, snapshot reader, scoreboard cache
// and event publisher into a TriviaService. cleanup releases them in reverse.
func buildService(ctx context.Context, cfg config.Config, logger *slog.Logger) (*app.TriviaService, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	opts := app.Options{
		Logger:            logger,
		QuestionsPerRound: cfg.Rounds.QuestionsPerRound,
	}

	var store app.Store
	switch cfg.Store.Driver {
	case config.StorePostgres, config.StoreSQLite:
		sqlStore, err := openSQLStore(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		closers = append(closers, func() { _ = sqlStore.Close() })
		if err := runMigrations(ctx, sqlStore, logger); err != nil {
			cleanup()
			return nil, nil, err
		}
		store = sqlStore
		opts.Snapshots = sqlStore
	default:
		store = memory.NewStore()
	}

	if cfg.Store.Driver == config.StorePostgres {
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("connect snapshot pool: %w", err)
		}
		closers = append(closers, pool.Close)
		opts.Snapshots = postgres.NewSnapshotReader(pool)
	}

	scoreboardTTL := config.TTLDuration(cfg.Scoreboard.TTL, 30*time.Second)
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		closers = append(closers, func() { _ = client.Close() })
		opts.Cache = rediscache.NewScoreboardCache(client, config.TTLDuration(cfg.Redis.TTL, scoreboardTTL))
	} else if scoreboardTTL > 0 {
		opts.Cache = memory.NewScoreboardCache(scoreboardTTL)
	}

	publishers := app.FanoutPublisher{eventLogger(logger)}
	if cfg.AMQP.URL != "" {
		publisher, err := broker.Dial(cfg.AMQP.URL, cfg.AMQP.Exchange)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		closers = append(closers, func() { _ = publisher.Close() })
		publishers = append(publishers, publisher)
		logger.Info("publishing events", "exchange", cfg.AMQP.Exchange)
	}
	opts.Publisher = publishers

	service := app.NewTriviaService(store, opts)
	closers = append(closers, service.Close)
	return service, cleanup, nil
}

func eventLogger(logger *slog.Logger) app.EventPublisher {
	return app.PublisherFunc(func(ctx context.Context, event domain.Event) error {
		logger.DebugContext(ctx, "event", "type", event.Type, "game_id", event.GameID, "round_id", event.RoundID, "team_id", event.TeamID)
		return nil
	})
}
