package handler

import (
	"net/http"

	"asklegal/internal/middleware"
	"asklegal/internal/model"
	"asklegal/internal/service"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

type UsageHandler struct {
	credits *service.CreditService
}

func NewUsageHandler(credits *service.CreditService) *UsageHandler {
	return &UsageHandler{credits: credits}
}

func (h *UsageHandler) Get(c *gin.Context) {
	summary, err := h.credits.GetUsage(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// Consume takes one credit. Running out answers 402 with the ledger's
// message.
func (h *UsageHandler) Consume(c *gin.Context) {
	result, err := h.credits.ConsumeCredit(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	if !result.OK {
		c.JSON(http.StatusPaymentRequired, gin.H{"error": result.Message, "credit": result})
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *UsageHandler) Verify(c *gin.Context) {
	h.verify(c, middleware.GetUserID(c))
}

// VerifyUser lets an admin reconcile any account.
func (h *UsageHandler) VerifyUser(c *gin.Context) {
	h.verify(c, c.Param("id"))
}

func (h *UsageHandler) verify(c *gin.Context, userID string) {
	ctx := c.Request.Context()
	changes, err := h.credits.VerifyAndCorrectUsage(ctx, userID)
	if err != nil {
		respondError(c, err)
		return
	}
	summary, err := h.credits.GetUsage(ctx, userID)
	if err != nil {
		respondError(c, err)
		return
	}
	if changes == nil {
		changes = []string{}
	}
	c.JSON(http.StatusOK, model.VerifyUsageResponse{Changes: changes, Usage: summary.Usage})
}

// Grant credits one-time purchases to a user without payment.
func (h *UsageHandler) Grant(c *gin.Context) {
	var req model.GrantCreditsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "details": err.Error()})
		return
	}

	userID := c.Param("id")
	if err := h.credits.GrantPurchases(c.Request.Context(), userID, req.Purchases); err != nil {
		respondError(c, err)
		return
	}
	log.WithFields(log.Fields{
		"userId":    userID,
		"purchases": req.Purchases,
		"reason":    req.Reason,
		"grantedBy": middleware.GetUsername(c),
	}).Info("usage: credits granted by admin")

	summary, err := h.credits.GetUsage(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}
