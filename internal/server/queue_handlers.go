package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	ridinglookup "github.com/wra-sol/ridingLookup-sub000"
)

type queueHandlers struct {
	queue *ridinglookup.JobQueueCoordinator
}

type submitRequest struct {
	Items json.RawMessage `json:"items"`
}

type retryRequest struct {
	JobIDs []string `json:"jobIds"`
}

func (h *queueHandlers) health(c *gin.Context) {
	health, err := h.queue.HealthCheck(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, health)
}

func (h *queueHandlers) submitBatch(c *gin.Context) {
	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, fmt.Errorf("%w: %v", ridinglookup.ErrInvalidInput, err))
		return
	}

	items, err := ridinglookup.DecodeItems(req.Items)
	if err != nil {
		fail(c, err)
		return
	}

	batchID, err := h.queue.SubmitBatch(c.Request.Context(), items)
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"batchId": batchID, "totalJobs": len(items)})
}

func (h *queueHandlers) status(c *gin.Context) {
	status, err := h.queue.GetStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

func (h *queueHandlers) retryFailed(c *gin.Context) {
	var req retryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, fmt.Errorf("%w: %v", ridinglookup.ErrInvalidInput, err))
		return
	}

	retried, err := h.queue.RetryFailed(c.Request.Context(), req.JobIDs)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"retriedCount": retried})
}

func (h *queueHandlers) processNext(c *gin.Context) {
	limit := 10
	if raw := c.Query("max"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			fail(c, fmt.Errorf("%w: max must be an integer", ridinglookup.ErrInvalidInput))
			return
		}
		limit = n
	}

	outcomes, err := h.queue.ProcessNext(c.Request.Context(), limit)
	if err != nil {
		fail(c, err)
		return
	}
	if outcomes == nil {
		outcomes = []ridinglookup.JobOutcome{}
	}
	c.JSON(http.StatusOK, gin.H{"processed": len(outcomes), "results": outcomes})
}

func (h *queueHandlers) stats(c *gin.Context) {
	stats, err := h.queue.GetStats(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *queueHandlers) deadLetters(c *gin.Context) {
	ids, err := h.queue.DeadLetters(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"jobIds": ids})
}
