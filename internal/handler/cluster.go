package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Shrinet82/ai-sre-agent/internal/service"
)

type ClusterHandler struct {
	svc *service.QueryService
}

func NewClusterHandler(svc *service.QueryService) *ClusterHandler {
	return &ClusterHandler{svc: svc}
}

// GetClusterSummary godoc
// @Summary Get cluster summary
// @Description Read-only snapshot of node and workload health.
// @Tags cluster
// @Produce json
// @Security BearerAuth
// @Success 200 {object} client.ClusterSummary
// @Failure 500 {object} model.ErrorResponse
// @Router /api/v1/cluster/summary [get]
func (h *ClusterHandler) GetClusterSummary(c *gin.Context) {
	summary, err := h.svc.ClusterSummary(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, summary)
}

// GetNamespacePods godoc
// @Summary List pods in a namespace
// @Tags cluster
// @Produce json
// @Security BearerAuth
// @Param namespace path string true "Namespace"
// @Success 200 {array} client.PodInfo
// @Failure 500 {object} model.ErrorResponse
// @Router /api/v1/cluster/namespaces/{namespace}/pods [get]
func (h *ClusterHandler) GetNamespacePods(c *gin.Context) {
	pods, err := h.svc.NamespacePods(c.Request.Context(), c.Param("namespace"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, pods)
}
