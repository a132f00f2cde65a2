package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Shrinet82/ai-sre-agent/internal/db"
	"github.com/Shrinet82/ai-sre-agent/internal/model"
	"github.com/Shrinet82/ai-sre-agent/internal/service"
)

type IncidentHandler struct {
	svc *service.QueryService
}

func NewIncidentHandler(svc *service.QueryService) *IncidentHandler {
	return &IncidentHandler{svc: svc}
}

// GetIncidents godoc
// @Summary List incidents
// @Description Lists ledger records, newest first. Filterable by namespace, status and time.
// @Tags incidents
// @Produce json
// @Security BearerAuth
// @Param namespace query string false "Filter by namespace"
// @Param status query string false "Filter by status (new, pending_approval, resolved)"
// @Param since query string false "RFC3339 lower bound on creation time"
// @Param limit query int false "Maximum rows to return (default 50)"
// @Success 200 {array} model.IncidentRecord
// @Failure 400 {object} model.ErrorResponse
// @Failure 500 {object} model.ErrorResponse
// @Router /api/v1/incidents [get]
func (h *IncidentHandler) GetIncidents(c *gin.Context) {
	filter := model.IncidentFilter{
		Namespace: c.Query("namespace"),
		Status:    c.Query("status"),
	}

	if raw := c.Query("since"); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "since must be RFC3339"})
			return
		}
		filter.Since = since
	}
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		filter.Limit = limit
	}

	records, err := h.svc.Incidents(c.Request.Context(), filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, records)
}

// GetIncidentDetail godoc
// @Summary Get incident detail
// @Tags incidents
// @Produce json
// @Security BearerAuth
// @Param id path string true "Incident ID"
// @Success 200 {object} model.IncidentEnvelope
// @Failure 404 {object} model.ErrorResponse
// @Failure 500 {object} model.ErrorResponse
// @Router /api/v1/incidents/{id} [get]
func (h *IncidentHandler) GetIncidentDetail(c *gin.Context) {
	id := c.Param("id")

	rec, err := h.svc.Incident(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, db.ErrIncidentNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "incident not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, model.IncidentEnvelope{
		Status: "success",
		Data:   rec,
	})
}
