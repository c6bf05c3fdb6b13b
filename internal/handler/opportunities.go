package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"arbtrack/internal/opportunity"
	"arbtrack/internal/repository"
)

type OpportunityHandler struct {
	Repo   repository.Repository
	Store  *opportunity.Store
	Logger *zap.Logger
}

func (h *OpportunityHandler) Register(r *gin.Engine) {
	group := r.Group("/api/v1/opportunities")
	group.GET("", h.listOpportunities)
	group.GET("/:id", h.getOpportunity)
	group.POST("/:id/reject", h.rejectOpportunity)
	group.POST("/:id/reactivate", h.reactivateOpportunity)
}

// @Summary List opportunities
// @Tags opportunities
// @Param status query string false "candidate|active|expired|rejected"
// @Param source query string false "source marketplace"
// @Param target query string false "target marketplace"
// @Param min_net_margin query string false "net margin floor"
// @Param min_confidence query number false "confidence floor"
// @Param sort_by query string false "net_margin|confidence|created_at|updated_at"
// @Param order query string false "asc|desc"
// @Param limit query int false "page size"
// @Param offset query int false "page offset"
// @Success 200 {object} apiResponse
// @Router /api/v1/opportunities [get]
func (h *OpportunityHandler) listOpportunities(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	limit := intQuery(c, "limit", 50)
	offset := intQuery(c, "offset", 0)

	orderBy := parseOrder(c.Query("sort_by"), map[string]string{
		"net_margin": "net_margin",
		"confidence": "confidence",
		"created_at": "created_at",
		"updated_at": "updated_at",
	})
	if orderBy == "" {
		orderBy = "net_margin"
	}
	asc := strings.EqualFold(strings.TrimSpace(c.Query("order")), "asc")

	params := repository.ListOpportunitiesParams{
		Limit:             limit,
		Offset:            offset,
		Status:            strQueryPtr(c, "status"),
		SourceMarketplace: strQueryPtr(c, "source"),
		TargetMarketplace: strQueryPtr(c, "target"),
		MinNetMargin:      decimalQueryPtr(c, "min_net_margin"),
		MinConfidence:     floatQueryPtr(c, "min_confidence"),
		OrderBy:           orderBy,
		Asc:               boolPtr(asc),
	}

	items, err := h.Repo.ListOpportunities(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	total, err := h.Repo.CountOpportunities(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	Ok(c, items, paginationMeta(limit, offset, total))
}

// @Summary Get one opportunity
// @Tags opportunities
// @Param id path int true "opportunity id"
// @Success 200 {object} apiResponse
// @Router /api/v1/opportunities/{id} [get]
func (h *OpportunityHandler) getOpportunity(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		Error(c, http.StatusBadRequest, "invalid id", nil)
		return
	}
	item, err := h.Repo.GetOpportunityByID(c.Request.Context(), id)
	if err != nil {
		Error(c, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	if item == nil {
		Error(c, http.StatusNotFound, "opportunity not found", nil)
		return
	}
	Ok(c, item, nil)
}

// @Summary Reject an opportunity
// @Tags opportunities
// @Param id path int true "opportunity id"
// @Success 200 {object} apiResponse
// @Router /api/v1/opportunities/{id}/reject [post]
func (h *OpportunityHandler) rejectOpportunity(c *gin.Context) {
	h.transition(c, func(id uint64) (any, error) {
		return h.Store.Reject(c.Request.Context(), id)
	})
}

// @Summary Reactivate a rejected or expired opportunity
// @Tags opportunities
// @Param id path int true "opportunity id"
// @Success 200 {object} apiResponse
// @Router /api/v1/opportunities/{id}/reactivate [post]
func (h *OpportunityHandler) reactivateOpportunity(c *gin.Context) {
	h.transition(c, func(id uint64) (any, error) {
		return h.Store.Reactivate(c.Request.Context(), id)
	})
}

func (h *OpportunityHandler) transition(c *gin.Context, apply func(id uint64) (any, error)) {
	if h.Store == nil {
		Error(c, http.StatusInternalServerError, "store unavailable", nil)
		return
	}
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		Error(c, http.StatusBadRequest, "invalid id", nil)
		return
	}
	item, err := apply(id)
	if err != nil {
		var notFound *opportunity.NotFoundError
		var invalid *opportunity.InvalidTransitionError
		switch {
		case errors.As(err, &notFound):
			Error(c, http.StatusNotFound, err.Error(), nil)
		case errors.As(err, &invalid):
			Error(c, http.StatusConflict, err.Error(), nil)
		default:
			if h.Logger != nil {
				h.Logger.Warn("opportunity transition failed", zap.Uint64("id", id), zap.Error(err))
			}
			Error(c, http.StatusInternalServerError, err.Error(), nil)
		}
		return
	}
	Ok(c, item, nil)
}
