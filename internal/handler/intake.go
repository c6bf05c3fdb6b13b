package handler

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"arbtrack/internal/service"
)

type IntakeHandler struct {
	Intake *service.IntakeService
}

type observationRequest struct {
	Marketplace string            `json:"marketplace"`
	Payloads    []json.RawMessage `json:"payloads"`
}

func (h *IntakeHandler) Register(r *gin.Engine) {
	r.POST("/api/v1/observations", h.ingestObservations)
}

// @Summary Ingest an observation batch
// @Tags intake
// @Accept json
// @Param request body observationRequest true "marketplace code and raw payloads"
// @Success 200 {object} apiResponse
// @Router /api/v1/observations [post]
func (h *IntakeHandler) ingestObservations(c *gin.Context) {
	if h.Intake == nil {
		Error(c, http.StatusInternalServerError, "service unavailable", nil)
		return
	}
	var req observationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid request body", nil)
		return
	}
	if strings.TrimSpace(req.Marketplace) == "" {
		Error(c, http.StatusBadRequest, "marketplace is required", nil)
		return
	}
	if len(req.Payloads) == 0 {
		Error(c, http.StatusBadRequest, "payloads must not be empty", nil)
		return
	}
	result, err := h.Intake.IngestBatch(c.Request.Context(), req.Marketplace, req.Payloads)
	if err != nil {
		Error(c, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	Ok(c, result, nil)
}
