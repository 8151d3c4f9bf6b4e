package handler

import (
	"errors"
	"io"
	"net/http"

	"asklegal/internal/middleware"
	"asklegal/internal/model"
	"asklegal/internal/service"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

const maxWebhookBodyBytes = int64(65536)

type StripeHandler struct {
	stripe *service.StripeService
}

func NewStripeHandler(stripe *service.StripeService) *StripeHandler {
	return &StripeHandler{stripe: stripe}
}

func (h *StripeHandler) Checkout(c *gin.Context) {
	var req model.CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "details": err.Error()})
		return
	}

	url, err := h.stripe.CreateCheckout(c.Request.Context(), middleware.GetUserID(c), req.Kind)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, model.CheckoutResponse{URL: url})
}

// Webhook verifies and applies a Stripe event. Processing errors answer 500
// so Stripe redelivers; payload errors answer 400 so it does not.
func (h *StripeHandler) Webhook(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBodyBytes))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	event, err := h.stripe.ParseWebhook(body, c.GetHeader("Stripe-Signature"))
	if err != nil {
		if errors.Is(err, service.ErrBillingNotConfigured) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "webhook not configured"})
			return
		}
		log.WithError(err).Warn("stripe: webhook signature verification failed")
		c.JSON(http.StatusBadRequest, gin.H{"error": "signature verification failed"})
		return
	}

	if err := h.stripe.HandleEvent(c.Request.Context(), event); err != nil {
		logger := log.WithError(err).WithFields(log.Fields{"eventId": event.ID, "type": event.Type})
		if errors.Is(err, service.ErrInvalidPayload) || errors.Is(err, service.ErrUnknownCustomer) {
			logger.Warn("stripe: webhook rejected")
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		logger.Error("stripe: webhook processing failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "processing failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
