package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Shrinet82/ai-sre-agent/internal/model"
	"github.com/Shrinet82/ai-sre-agent/internal/service"
)

type ConfigHandler struct {
	settings *service.Settings
}

func NewConfigHandler(settings *service.Settings) *ConfigHandler {
	return &ConfigHandler{settings: settings}
}

// GetConfig godoc
// @Summary Get runtime configuration
// @Tags config
// @Produce json
// @Security BearerAuth
// @Success 200 {object} model.RuntimeConfigResponse
// @Router /api/v1/config [get]
func (h *ConfigHandler) GetConfig(c *gin.Context) {
	threshold, autoAction := h.settings.Snapshot()
	c.JSON(http.StatusOK, model.RuntimeConfigResponse{
		ConfidenceThreshold: threshold,
		AutoActionEnabled:   autoAction,
	})
}

// UpdateConfig godoc
// @Summary Update runtime configuration
// @Description Adjusts the confidence threshold and the auto-action switch without a restart. Omitted fields keep their current value.
// @Tags config
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body model.RuntimeConfigRequest true "Runtime knobs"
// @Success 200 {object} model.RuntimeConfigResponse
// @Failure 400 {object} model.ErrorResponse
// @Router /api/v1/config [put]
func (h *ConfigHandler) UpdateConfig(c *gin.Context) {
	var req model.RuntimeConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	threshold, autoAction := h.settings.Snapshot()
	if req.ConfidenceThreshold != nil {
		threshold = *req.ConfidenceThreshold
	}
	if req.AutoActionEnabled != nil {
		autoAction = *req.AutoActionEnabled
	}

	if err := h.settings.Update(threshold, autoAction); err != nil {
		if errors.Is(err, service.ErrInvalidInput) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, model.RuntimeConfigResponse{
		ConfidenceThreshold: threshold,
		AutoActionEnabled:   autoAction,
	})
}
