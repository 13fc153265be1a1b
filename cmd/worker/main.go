package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/siprems/backend-go/internal/config"
	"github.com/siprems/backend-go/internal/forecast"
	"github.com/siprems/backend-go/internal/modelstore"
	"github.com/siprems/backend-go/internal/repository/postgres"
	"github.com/siprems/backend-go/internal/tasks"
	"github.com/siprems/backend-go/pkg/logger"
	"github.com/siprems/backend-go/pkg/router"
)

func main() {
	_ = godotenv.Load()

	app := &cli.App{
		Name:  "worker",
		Usage: "runs the background training workers and the batch schedule",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "db-url",
				Usage:   "PostgreSQL connection URL",
				EnvVars: []string{"DATABASE_URL"},
			},
			&cli.StringFlag{
				Name:  "health-addr",
				Usage: "listen address for the health endpoint",
				Value: ":8081",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "log level (debug, info, warn, error)",
				Value: "info",
			},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal().Err(err).Msg("worker exited")
	}
}

func run(c *cli.Context) error {
	logger.SetLevel(c.String("log-level"))
	log.Logger = logger.Component("worker")

	cfg := config.Load()

	db, err := openDB(c.String("db-url"), cfg)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	salesRepo := postgres.NewSalesRepository(db)
	holidayRepo := postgres.NewHolidayRepository(db)
	productRepo := postgres.NewProductRepository(db)

	store, err := newModelStore(cfg.ModelStore)
	if err != nil {
		return fmt.Errorf("failed to initialize model store: %w", err)
	}

	taskStore, err := newTaskStore(cfg.Redis)
	if err != nil {
		return fmt.Errorf("failed to initialize task store: %w", err)
	}

	trainer := forecast.NewTrainer(salesRepo, holidayRepo, store, forecast.NewSarimaForecaster())
	batch := tasks.NewBatchTrainer(productRepo, trainer, cfg.Orchestrator.BatchConcurrency)

	orchestrator := tasks.NewOrchestrator(taskStore, tasks.Options{
		Workers:       cfg.Orchestrator.Workers,
		Retry:         tasks.DefaultRetryPolicy(cfg.Orchestrator.RetryAttempts),
		SoftTimeLimit: cfg.Orchestrator.SoftTimeLimit,
		HardTimeLimit: cfg.Orchestrator.HardTimeLimit,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	orchestrator.Start(ctx)
	defer orchestrator.Stop()

	go serveHealth(ctx, c.String("health-addr"))

	scheduler := tasks.NewScheduler(orchestrator, batch, cfg.Orchestrator.TrainAllInterval)
	scheduler.Start(ctx)

	log.Info().Msg("worker shutting down")
	return nil
}

// openDB prefers an explicit URL over the config's discrete settings. The
// URL path uses the pgx stdlib driver.
func openDB(url string, cfg *config.Config) (*postgres.DB, error) {
	if url != "" {
		db, err := sqlx.Connect("pgx", url)
		if err != nil {
			return nil, err
		}
		return postgres.WrapDB(db), nil
	}
	return postgres.NewDB(&cfg.Database)
}

func serveHealth(ctx context.Context, addr string) {
	srv := &http.Server{Addr: addr, Handler: router.NewHealthRouter()}

	go func() {
		<-ctx.Done()
		_ = srv.Close()
	}()

	log.Info().Str("addr", addr).Msg("health endpoint listening")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error().Err(err).Msg("health endpoint failed")
	}
}

func newModelStore(cfg config.ModelStoreConfig) (modelstore.Store, error) {
	if cfg.Backend == "s3" {
		return modelstore.NewObjectStore(cfg)
	}
	return modelstore.NewLocalStore(cfg.Dir)
}

func newTaskStore(cfg config.RedisConfig) (tasks.Store, error) {
	if cfg.Enabled {
		return tasks.NewRedisStore(cfg)
	}
	return tasks.NewMemoryStore(), nil
}
