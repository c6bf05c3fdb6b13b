package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"arbtrack/internal/repository"
	"arbtrack/internal/service"
)

type RunHandler struct {
	Repo      repository.Repository
	Detection *service.DetectionService
	Logger    *zap.Logger
}

func (h *RunHandler) Register(r *gin.Engine) {
	group := r.Group("/api/v1/runs")
	group.GET("", h.listRuns)
	group.POST("", h.triggerRun)
}

// @Summary List detection runs
// @Tags runs
// @Param status query string false "completed|budget_exceeded|failed|rates_stale"
// @Param limit query int false "page size"
// @Param offset query int false "page offset"
// @Success 200 {object} apiResponse
// @Router /api/v1/runs [get]
func (h *RunHandler) listRuns(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	items, err := h.Repo.ListDetectionRuns(c.Request.Context(), repository.ListDetectionRunsParams{
		Limit:  intQuery(c, "limit", 50),
		Offset: intQuery(c, "offset", 0),
		Status: strQueryPtr(c, "status"),
	})
	if err != nil {
		Error(c, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	Ok(c, items, nil)
}

// @Summary Trigger a detection pass
// @Tags runs
// @Success 200 {object} apiResponse
// @Router /api/v1/runs [post]
func (h *RunHandler) triggerRun(c *gin.Context) {
	if h.Detection == nil {
		Error(c, http.StatusInternalServerError, "service unavailable", nil)
		return
	}
	run, err := h.Detection.RunPass(c.Request.Context())
	if err != nil {
		if h.Logger != nil {
			h.Logger.Warn("manual detection pass failed", zap.Error(err))
		}
		Error(c, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	Ok(c, run, nil)
}
