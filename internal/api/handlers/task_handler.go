package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/siprems/backend-go/internal/domain"
	"github.com/siprems/backend-go/internal/service"
)

type TaskHandler struct {
	service *service.TaskService
}

func NewTaskHandler(service *service.TaskService) *TaskHandler {
	return &TaskHandler{service: service}
}

func (h *TaskHandler) TrainProduct(c *gin.Context) {
	sku := c.Param("sku")

	taskID, err := h.service.SubmitTraining(c.Request.Context(), sku)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"task_id":     taskID,
		"status":      "submitted",
		"product_sku": sku,
	})
}

func (h *TaskHandler) TrainAll(c *gin.Context) {
	taskID, err := h.service.SubmitTrainingAll(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"task_id": taskID,
		"status":  "submitted",
	})
}

func (h *TaskHandler) PredictStock(c *gin.Context) {
	sku := c.Param("sku")
	days, _ := strconv.Atoi(c.DefaultQuery("days", "0"))

	taskID, err := h.service.SubmitPrediction(c.Request.Context(), sku, days)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"task_id":     taskID,
		"status":      "submitted",
		"product_sku": sku,
	})
}

func (h *TaskHandler) GetStatus(c *gin.Context) {
	task, err := h.service.GetStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, domain.ErrTaskNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	status := http.StatusOK
	if task.Status == domain.TaskPending {
		status = http.StatusAccepted
	}

	c.JSON(status, task)
}

func (h *TaskHandler) Cancel(c *gin.Context) {
	id := c.Param("id")
	if err := h.service.Cancel(c.Request.Context(), id); err != nil {
		if errors.Is(err, domain.ErrTaskNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"task_id": id,
		"status":  "cancelled",
	})
}
