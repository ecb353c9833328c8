package server

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	ridinglookup "github.com/wra-sol/ridingLookup-sub000"
)

// breakerHandlers serve the routes RemoteBreakerBackend calls.
type breakerHandlers struct {
	backend ridinglookup.BreakerBackend
}

func (h *breakerHandlers) check(c *gin.Context) {
	decision, err := h.backend.Check(c.Request.Context(), c.Param("key"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, decision)
}

func (h *breakerHandlers) success(c *gin.Context) {
	st, err := h.backend.ReportSuccess(c.Request.Context(), c.Param("key"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (h *breakerHandlers) failure(c *gin.Context) {
	st, err := h.backend.ReportFailure(c.Request.Context(), c.Param("key"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (h *breakerHandlers) state(c *gin.Context) {
	st, err := h.backend.State(c.Request.Context(), c.Param("key"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (h *breakerHandlers) states(c *gin.Context) {
	states, err := h.backend.States(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	if states == nil {
		states = []ridinglookup.BreakerState{}
	}
	c.JSON(http.StatusOK, states)
}

// reset serves both DELETE /breakers and DELETE /breakers/:key.
func (h *breakerHandlers) reset(c *gin.Context) {
	if err := h.backend.Reset(c.Request.Context(), c.Param("key")); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *breakerHandlers) updateConfig(c *gin.Context) {
	var req ridinglookup.BreakerConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, fmt.Errorf("%w: %v", ridinglookup.ErrInvalidInput, err))
		return
	}

	config, err := h.backend.UpdateConfig(c.Request.Context(), ridinglookup.BreakerConfigFromRequest(req))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, ridinglookup.BreakerConfigToRequest(config))
}
