package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/siprems/backend-go/internal/api"
	"github.com/siprems/backend-go/internal/config"
	"github.com/siprems/backend-go/internal/forecast"
	"github.com/siprems/backend-go/internal/modelstore"
	"github.com/siprems/backend-go/internal/repository/postgres"
	"github.com/siprems/backend-go/internal/service"
	"github.com/siprems/backend-go/internal/tasks"
	"github.com/siprems/backend-go/pkg/logger"
)

func main() {
	// Load environment variables from .env file if it exists
	_ = godotenv.Load()

	cfg := config.Load()

	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
		logger.SetLevel("info")
	} else {
		logger.SetLevel("debug")
	}
	log.Logger = logger.Component("api")

	db, err := postgres.NewDB(&cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize database")
	}

	salesRepo := postgres.NewSalesRepository(db)
	holidayRepo := postgres.NewHolidayRepository(db)
	productRepo := postgres.NewProductRepository(db)

	store, err := newModelStore(cfg.ModelStore)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize model store")
	}

	forecaster := forecast.NewSarimaForecaster()
	trainer := forecast.NewTrainer(salesRepo, holidayRepo, store, forecaster)
	server := forecast.NewServer(salesRepo, store, trainer, forecaster, forecast.ServerOptions{
		MaxHorizonDays: cfg.Forecast.MaxHorizonDays,
		StaleAfterDays: cfg.Forecast.StaleAfterDays,
	})

	taskStore, err := newTaskStore(cfg.Redis)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize task store")
	}

	orchestrator := tasks.NewOrchestrator(taskStore, tasks.Options{
		Workers:       cfg.Orchestrator.Workers,
		Retry:         tasks.DefaultRetryPolicy(cfg.Orchestrator.RetryAttempts),
		SoftTimeLimit: cfg.Orchestrator.SoftTimeLimit,
		HardTimeLimit: cfg.Orchestrator.HardTimeLimit,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	orchestrator.Start(ctx)

	batch := tasks.NewBatchTrainer(productRepo, trainer, cfg.Orchestrator.BatchConcurrency)
	predictionService := service.NewPredictionService(productRepo, server, cfg.Forecast.DefaultHorizonDays)
	taskService := service.NewTaskService(orchestrator, trainer, predictionService, batch)

	router := api.NewRouter(&api.Services{
		PredictionService: predictionService,
		TaskService:       taskService,
	}, cfg.Server.AllowedOrigins)

	addr := fmt.Sprintf(":%s", cfg.Server.Port)
	log.Info().Str("addr", addr).Msg("API server starting")
	if err := router.Run(addr); err != nil {
		log.Fatal().Err(err).Msg("server exited")
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
