package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Shrinet82/ai-sre-agent/internal/db"
	"github.com/Shrinet82/ai-sre-agent/internal/model"
	"github.com/Shrinet82/ai-sre-agent/internal/service"
)

type ApprovalHandler struct {
	svc *service.ApprovalService
}

func NewApprovalHandler(svc *service.ApprovalService) *ApprovalHandler {
	return &ApprovalHandler{svc: svc}
}

// GetPendingApprovals godoc
// @Summary List pending approvals
// @Tags approvals
// @Produce json
// @Security BearerAuth
// @Success 200 {array} model.PendingApproval
// @Failure 500 {object} model.ErrorResponse
// @Router /api/v1/approvals/pending [get]
func (h *ApprovalHandler) GetPendingApprovals(c *gin.Context) {
	pending, err := h.svc.Pending(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, pending)
}

// GetApproval godoc
// @Summary Get approval detail
// @Tags approvals
// @Produce json
// @Security BearerAuth
// @Param id path string true "Approval ID"
// @Success 200 {object} model.ApprovalEnvelope
// @Failure 404 {object} model.ErrorResponse
// @Failure 500 {object} model.ErrorResponse
// @Router /api/v1/approvals/{id} [get]
func (h *ApprovalHandler) GetApproval(c *gin.Context) {
	ap, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeApprovalError(c, err)
		return
	}
	c.JSON(http.StatusOK, model.ApprovalEnvelope{
		Status: "success",
		Data:   ap,
	})
}

// ApproveAction godoc
// @Summary Approve a gated action
// @Description Claims the pending approval and resumes execution of the parked action. A second verdict returns 409.
// @Tags approvals
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Approval ID"
// @Param request body model.ApprovalVerdict false "Operator verdict"
// @Success 200 {object} model.ApprovalResultResponse
// @Failure 404 {object} model.ErrorResponse
// @Failure 409 {object} model.ErrorResponse
// @Failure 500 {object} model.ErrorResponse
// @Router /api/v1/approvals/{id}/approve [post]
func (h *ApprovalHandler) ApproveAction(c *gin.Context) {
	id := c.Param("id")
	verdict := h.bindVerdict(c)

	rec, err := h.svc.Approve(c.Request.Context(), id, verdict)
	if err != nil {
		writeApprovalError(c, err)
		return
	}

	c.JSON(http.StatusOK, model.ApprovalResultResponse{
		Status:        "success",
		Message:       "action approved and executed",
		ApprovalID:    id,
		IncidentID:    rec.ID,
		VerifyOutcome: rec.VerifyOutcome,
	})
}

// RejectAction godoc
// @Summary Reject a gated action
// @Description Claims the pending approval and resolves the incident without executing. A second verdict returns 409.
// @Tags approvals
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Approval ID"
// @Param request body model.ApprovalVerdict false "Operator verdict"
// @Success 200 {object} model.ApprovalResultResponse
// @Failure 404 {object} model.ErrorResponse
// @Failure 409 {object} model.ErrorResponse
// @Failure 500 {object} model.ErrorResponse
// @Router /api/v1/approvals/{id}/reject [post]
func (h *ApprovalHandler) RejectAction(c *gin.Context) {
	id := c.Param("id")
	verdict := h.bindVerdict(c)

	rec, err := h.svc.Reject(c.Request.Context(), id, verdict)
	if err != nil {
		writeApprovalError(c, err)
		return
	}

	c.JSON(http.StatusOK, model.ApprovalResultResponse{
		Status:     "success",
		Message:    "action rejected",
		ApprovalID: id,
		IncidentID: rec.ID,
	})
}

// bindVerdict reads the optional verdict body and fills decided_by from the
// authenticated user when the caller left it empty.
func (h *ApprovalHandler) bindVerdict(c *gin.Context) model.ApprovalVerdict {
	var verdict model.ApprovalVerdict
	_ = c.ShouldBindJSON(&verdict)
	if verdict.DecidedBy == "" {
		if user := GetAuthUser(c); user != nil {
			verdict.DecidedBy = user.LoginID
		}
	}
	return verdict
}

func writeApprovalError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, db.ErrApprovalNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "approval not found"})
	case errors.Is(err, db.ErrAlreadyProcessed):
		c.JSON(http.StatusConflict, gin.H{"error": "approval already processed"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
