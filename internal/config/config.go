package config

import (
	"log"
	"os"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server       ServerConfig
	Database     DatabaseConfig
	Redis        RedisConfig
	ModelStore   ModelStoreConfig
	Forecast     ForecastConfig
	Orchestrator OrchestratorConfig
}

type ServerConfig struct {
	Port           string
	Mode           string
	AllowedOrigins []string
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// RedisConfig configures the task result backend.
type RedisConfig struct {
	Enabled  bool
	URL      string
	Host     string
	Port     string
	Password string
	DB       int
	TaskTTL  time.Duration
}

// ModelStoreConfig selects and configures the model artifact backend.
type ModelStoreConfig struct {
	Backend   string // "local" or "s3"
	Dir       string // local backend
	Endpoint  string // s3 backend
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

type ForecastConfig struct {
	DefaultHorizonDays int
	MaxHorizonDays     int
	StaleAfterDays     int
}

type OrchestratorConfig struct {
	Workers          int
	RetryAttempts    int
	SoftTimeLimit    time.Duration
	HardTimeLimit    time.Duration
	TrainAllInterval time.Duration
	BatchConcurrency int
}

var (
	once     sync.Once
	instance *Config
)

func Load() *Config {
	once.Do(func() {
		// Load .env file if it exists
		_ = godotenv.Load()

		viper.SetDefault("SERVER_PORT", "8080")
		viper.SetDefault("SERVER_MODE", "debug")
		viper.SetDefault("SERVER_ALLOWED_ORIGINS", []string{"*"})
		viper.SetDefault("DB_HOST", "localhost")
		viper.SetDefault("DB_PORT", "5432")
		viper.SetDefault("DB_USER", "postgres")
		viper.SetDefault("DB_PASSWORD", "postgres")
		viper.SetDefault("DB_NAME", "siprems")
		viper.SetDefault("DB_SSLMODE", "disable")
		viper.SetDefault("REDIS_ENABLED", false)
		viper.SetDefault("REDIS_URL", "")
		viper.SetDefault("REDIS_HOST", "127.0.0.1")
		viper.SetDefault("REDIS_PORT", "6379")
		viper.SetDefault("REDIS_PASSWORD", "")
		viper.SetDefault("REDIS_DB", 1)
		viper.SetDefault("TASK_RESULT_TTL_SECONDS", 86400)
		viper.SetDefault("MODEL_STORE_BACKEND", "local")
		viper.SetDefault("MODEL_STORE_DIR", "./data/models")
		viper.SetDefault("MODEL_STORE_ENDPOINT", "")
		viper.SetDefault("MODEL_STORE_ACCESS_KEY", "")
		viper.SetDefault("MODEL_STORE_SECRET_KEY", "")
		viper.SetDefault("MODEL_STORE_BUCKET", "models")
		viper.SetDefault("MODEL_STORE_USE_SSL", true)
		viper.SetDefault("FORECAST_DEFAULT_HORIZON_DAYS", 7)
		viper.SetDefault("FORECAST_MAX_HORIZON_DAYS", 365)
		viper.SetDefault("FORECAST_STALE_AFTER_DAYS", 7)
		viper.SetDefault("ORCH_WORKERS", 4)
		viper.SetDefault("ORCH_RETRY_ATTEMPTS", 3)
		viper.SetDefault("ORCH_SOFT_TIME_LIMIT_SECONDS", 25*60)
		viper.SetDefault("ORCH_HARD_TIME_LIMIT_SECONDS", 30*60)
		viper.SetDefault("ORCH_TRAIN_ALL_INTERVAL_HOURS", 24)
		viper.SetDefault("ORCH_BATCH_CONCURRENCY", 4)

		viper.AutomaticEnv()

		if viper.GetString("MODEL_STORE_BACKEND") == "local" {
			ensureDir(viper.GetString("MODEL_STORE_DIR"))
		}

		instance = &Config{
			Server: ServerConfig{
				Port:           viper.GetString("SERVER_PORT"),
				Mode:           viper.GetString("SERVER_MODE"),
				AllowedOrigins: viper.GetStringSlice("SERVER_ALLOWED_ORIGINS"),
			},
			Database: DatabaseConfig{
				Host:     viper.GetString("DB_HOST"),
				Port:     viper.GetString("DB_PORT"),
				User:     viper.GetString("DB_USER"),
				Password: viper.GetString("DB_PASSWORD"),
				DBName:   viper.GetString("DB_NAME"),
				SSLMode:  viper.GetString("DB_SSLMODE"),
			},
			Redis: RedisConfig{
				Enabled:  viper.GetBool("REDIS_ENABLED"),
				URL:      viper.GetString("REDIS_URL"),
				Host:     viper.GetString("REDIS_HOST"),
				Port:     viper.GetString("REDIS_PORT"),
				Password: viper.GetString("REDIS_PASSWORD"),
				DB:       viper.GetInt("REDIS_DB"),
				TaskTTL:  time.Duration(viper.GetInt("TASK_RESULT_TTL_SECONDS")) * time.Second,
			},
			ModelStore: ModelStoreConfig{
				Backend:   viper.GetString("MODEL_STORE_BACKEND"),
				Dir:       viper.GetString("MODEL_STORE_DIR"),
				Endpoint:  viper.GetString("MODEL_STORE_ENDPOINT"),
				AccessKey: viper.GetString("MODEL_STORE_ACCESS_KEY"),
				SecretKey: viper.GetString("MODEL_STORE_SECRET_KEY"),
				Bucket:    viper.GetString("MODEL_STORE_BUCKET"),
				UseSSL:    viper.GetBool("MODEL_STORE_USE_SSL"),
			},
			Forecast: ForecastConfig{
				DefaultHorizonDays: viper.GetInt("FORECAST_DEFAULT_HORIZON_DAYS"),
				MaxHorizonDays:     viper.GetInt("FORECAST_MAX_HORIZON_DAYS"),
				StaleAfterDays:     viper.GetInt("FORECAST_STALE_AFTER_DAYS"),
			},
			Orchestrator: OrchestratorConfig{
				Workers:          viper.GetInt("ORCH_WORKERS"),
				RetryAttempts:    viper.GetInt("ORCH_RETRY_ATTEMPTS"),
				SoftTimeLimit:    time.Duration(viper.GetInt("ORCH_SOFT_TIME_LIMIT_SECONDS")) * time.Second,
				HardTimeLimit:    time.Duration(viper.GetInt("ORCH_HARD_TIME_LIMIT_SECONDS")) * time.Second,
				TrainAllInterval: time.Duration(viper.GetInt("ORCH_TRAIN_ALL_INTERVAL_HOURS")) * time.Hour,
				BatchConcurrency: viper.GetInt("ORCH_BATCH_CONCURRENCY"),
			},
		}
	})

	return instance
}

func ensureDir(dir string) {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if err := os.MkdirAll(dir, 0755); err != nil {
			log.Fatalf("Failed to create directory %s: %v", dir, err)
		}
	}
}
