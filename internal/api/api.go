package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/siprems/backend-go/internal/api/handlers"
	"github.com/siprems/backend-go/internal/service"
)

type Services struct {
	PredictionService *service.PredictionService
	TaskService       *service.TaskService
}

func NewRouter(services *Services, allowedOrigins []string) *gin.Engine {
	router := gin.New()

	router.Use(gin.Logger())
	router.Use(gin.Recovery())

	defaultOrigins := []string{"http://localhost:3000", "http://127.0.0.1:3000"}
	corsConfig := cors.Config{
		AllowOrigins:     defaultOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(allowedOrigins) > 0 {
		normalized, allowAll := normalizeAllowedOrigins(allowedOrigins)
		if allowAll {
			corsConfig.AllowOrigins = nil
			corsConfig.AllowOriginFunc = func(origin string) bool { return true }
		} else if len(normalized) > 0 {
			corsConfig.AllowOrigins = normalized
		}
	}
	router.Use(cors.New(corsConfig))

	router.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})

	apiGroup := router.Group("/api/v1")

	if services != nil {
		if services.PredictionService != nil {
			predictionHandler := handlers.NewPredictionHandler(services.PredictionService)
			apiGroup.POST("/predict", predictionHandler.PredictStock)
		}

		if services.TaskService != nil {
			taskHandler := handlers.NewTaskHandler(services.TaskService)
			taskGroup := apiGroup.Group("/tasks")
			{
				taskGroup.POST("/training/product/:sku", taskHandler.TrainProduct)
				taskGroup.POST("/training/all", taskHandler.TrainAll)
				taskGroup.POST("/predict/:sku", taskHandler.PredictStock)
				taskGroup.GET("/:id", taskHandler.GetStatus)
				taskGroup.POST("/:id/cancel", taskHandler.Cancel)
			}
		}
	}

	return router
}

func normalizeAllowedOrigins(origins []string) ([]string, bool) {
	normalized := make([]string, 0, len(origins))
	for _, origin := range origins {
		origin = strings.TrimSpace(origin)
		if origin == "" {
			continue
		}
		if origin == "*" {
			return nil, true
		}
		normalized = append(normalized, strings.TrimSuffix(origin, "/"))
	}
	return normalized, false
}
