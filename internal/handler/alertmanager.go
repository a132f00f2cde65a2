package handler

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Shrinet82/ai-sre-agent/internal/model"
	"github.com/Shrinet82/ai-sre-agent/internal/service"
)

type WebhookHandler struct {
	pipeline *service.PipelineService
}

func NewWebhookHandler(pipeline *service.PipelineService) *WebhookHandler {
	return &WebhookHandler{pipeline: pipeline}
}

// AlertmanagerWebhook godoc
// @Summary Receive an Alertmanager webhook delivery
// @Description Runs every firing alert in the delivery through the remediation pipeline.
// @Tags webhook
// @Accept json
// @Produce json
// @Param request body model.AlertmanagerWebhook true "Alertmanager webhook payload"
// @Success 200 {object} model.WebhookResponse
// @Failure 400 {object} model.ErrorResponse
// @Failure 500 {object} model.ErrorResponse
// @Router /webhook/alertmanager [post]
func (h *WebhookHandler) AlertmanagerWebhook(c *gin.Context) {
	var webhook model.AlertmanagerWebhook
	if err := c.ShouldBindJSON(&webhook); err != nil {
		log.Printf("Failed to parse webhook: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	log.Printf("Received alert webhook: status=%s, alertCount=%d, receiver=%s",
		webhook.Status, len(webhook.Alerts), webhook.Receiver)

	result, err := h.pipeline.ProcessWebhook(c.Request.Context(), webhook)
	if err != nil {
		log.Printf("Webhook processing failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to record incident"})
		return
	}

	c.JSON(http.StatusOK, result)
}
