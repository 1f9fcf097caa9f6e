package handler

import (
	"net/http"

	"closeout/internal/apierror"
	"closeout/internal/dto"
	"closeout/internal/service"
	"closeout/internal/worker"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type RegenerateHandler struct {
	svc        service.RegenerationService
	dispatcher *worker.Dispatcher
}

func NewRegenerateHandler(svc service.RegenerationService, dispatcher *worker.Dispatcher) *RegenerateHandler {
	return &RegenerateHandler{svc: svc, dispatcher: dispatcher}
}

// Batch godoc
// @Summary Reconciles and regenerates reports for a batch of closed sessions
// @Tags reports
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body dto.RegenerateRequest true "Batch filters"
// @Success 200 {object} dto.RegenerateStats
// @Failure 400 {object} apierror.APIError
// @Router /v1/reports/regenerate [post]
func (h *RegenerateHandler) Batch(c *gin.Context) {
	var req dto.RegenerateRequest
	if !bindAndValidate(c, &req) {
		return
	}
	opts, err := req.Options()
	if err != nil {
		c.JSON(http.StatusBadRequest, apierror.New(err.Error()))
		return
	}
	stats, err := h.svc.RegenerateBatch(c.Request.Context(), opts)
	if err != nil {
		c.JSON(http.StatusInternalServerError, apierror.New(err.Error()))
		return
	}
	c.JSON(http.StatusOK, stats)
}

// BatchAsync godoc
// @Summary Queues a batch regeneration for background processing
// @Tags reports
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body dto.RegenerateRequest true "Batch filters"
// @Success 202 {object} map[string]string
// @Failure 400 {object} apierror.APIError
// @Router /v1/reports/regenerate/async [post]
func (h *RegenerateHandler) BatchAsync(c *gin.Context) {
	var req dto.RegenerateRequest
	if !bindAndValidate(c, &req) {
		return
	}
	opts, err := req.Options()
	if err != nil {
		c.JSON(http.StatusBadRequest, apierror.New(err.Error()))
		return
	}
	if err := h.dispatcher.EnqueueRegeneration(c.Request.Context(), opts); err != nil {
		c.JSON(http.StatusInternalServerError, apierror.New("failed to queue regeneration"))
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "queued"})
}

// Session godoc
// @Summary Reconciles and regenerates the report of a single closed session
// @Tags reports
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Session ID"
// @Param body body dto.RegenerateSessionRequest false "Options"
// @Success 200 {object} dto.RegenerateSessionResult
// @Failure 400 {object} apierror.APIError
// @Router /v1/sessions/{id}/regenerate [post]
func (h *RegenerateHandler) Session(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, apierror.New("invalid session ID"))
		return
	}
	// Body is optional: defaults apply when absent.
	var req dto.RegenerateSessionRequest
	if c.Request.ContentLength > 0 {
		if !bindAndValidate(c, &req) {
			return
		}
	}
	findMissing := true
	if req.FindMissingData != nil {
		findMissing = *req.FindMissingData
	}

	res := h.svc.RegenerateSession(c.Request.Context(), id, findMissing, req.Reason)
	if !res.Success {
		c.JSON(http.StatusBadRequest, res)
		return
	}
	c.JSON(http.StatusOK, res)
}
