package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"arbtrack/internal/repository"
)

type ListingHandler struct {
	Repo repository.Repository
}

func (h *ListingHandler) Register(r *gin.Engine) {
	group := r.Group("/api/v1")
	group.GET("/listings", h.listListings)
	group.GET("/listings/history", h.listHistory)
	group.GET("/drift-events", h.listDriftEvents)
}

// @Summary List latest listings
// @Tags listings
// @Param marketplace query string false "marketplace code"
// @Param sort_by query string false "observed_at|price|updated_at"
// @Param order query string false "asc|desc"
// @Param limit query int false "page size"
// @Param offset query int false "page offset"
// @Success 200 {object} apiResponse
// @Router /api/v1/listings [get]
func (h *ListingHandler) listListings(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	limit := intQuery(c, "limit", 50)
	offset := intQuery(c, "offset", 0)
	orderBy := parseOrder(c.Query("sort_by"), map[string]string{
		"observed_at": "observed_at",
		"price":       "price",
		"updated_at":  "updated_at",
	})
	asc := strings.EqualFold(strings.TrimSpace(c.Query("order")), "asc")

	params := repository.ListListingsParams{
		Limit:       limit,
		Offset:      offset,
		Marketplace: strQueryPtr(c, "marketplace"),
		OrderBy:     orderBy,
		Asc:         boolPtr(asc),
	}
	items, err := h.Repo.ListListings(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	total, err := h.Repo.CountListings(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	Ok(c, items, paginationMeta(limit, offset, total))
}

// @Summary Price history for one listing
// @Tags listings
// @Param marketplace query string true "marketplace code"
// @Param external_id query string true "listing external id"
// @Param since query string false "RFC3339 lower bound"
// @Param limit query int false "page size"
// @Param offset query int false "page offset"
// @Success 200 {object} apiResponse
// @Router /api/v1/listings/history [get]
func (h *ListingHandler) listHistory(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	marketplace := strings.TrimSpace(c.Query("marketplace"))
	externalID := strings.TrimSpace(c.Query("external_id"))
	if marketplace == "" || externalID == "" {
		Error(c, http.StatusBadRequest, "marketplace and external_id are required", nil)
		return
	}
	items, err := h.Repo.ListPriceHistory(c.Request.Context(), repository.ListHistoryParams{
		Marketplace: marketplace,
		ExternalID:  externalID,
		Since:       timeQueryPtr(c, "since"),
		Limit:       intQuery(c, "limit", 100),
		Offset:      intQuery(c, "offset", 0),
	})
	if err != nil {
		Error(c, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	Ok(c, items, nil)
}

// @Summary List drift events
// @Tags listings
// @Param kind query string false "price_drop|price_rise|stock_depleted|restocked"
// @Param marketplace query string false "marketplace code"
// @Param since query string false "RFC3339 lower bound"
// @Param limit query int false "page size"
// @Param offset query int false "page offset"
// @Success 200 {object} apiResponse
// @Router /api/v1/drift-events [get]
func (h *ListingHandler) listDriftEvents(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	items, err := h.Repo.ListDriftEvents(c.Request.Context(), repository.ListDriftEventsParams{
		Limit:       intQuery(c, "limit", 100),
		Offset:      intQuery(c, "offset", 0),
		Kind:        strQueryPtr(c, "kind"),
		Marketplace: strQueryPtr(c, "marketplace"),
		Since:       timeQueryPtr(c, "since"),
	})
	if err != nil {
		Error(c, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	Ok(c, items, nil)
}
