package handler

import (
	"errors"
	"net/http"

	"asklegal/internal/repository"
	"asklegal/internal/service"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

const tryAgainMessage = "Something went wrong. Please try again."

// respondError maps service errors to a status and a {"error": ...} body.
// Anything unrecognised is logged and reported as a generic 500.
func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	msg := tryAgainMessage

	switch {
	case errors.Is(err, service.ErrEmptyMessage),
		errors.Is(err, service.ErrWrongPassword):
		status, msg = http.StatusBadRequest, err.Error()
	case errors.Is(err, service.ErrInvalidCredentials):
		status, msg = http.StatusUnauthorized, err.Error()
	case errors.Is(err, service.ErrUsernameExists):
		status, msg = http.StatusConflict, err.Error()
	case errors.Is(err, service.ErrSessionNotFound),
		errors.Is(err, repository.ErrDocumentNotFound),
		errors.Is(err, repository.ErrUserNotFound):
		status, msg = http.StatusNotFound, err.Error()
	case errors.Is(err, service.ErrInterviewDone),
		errors.Is(err, service.ErrInterviewPending),
		errors.Is(err, service.ErrGenerationInProgress):
		status, msg = http.StatusConflict, err.Error()
	case errors.Is(err, service.ErrInsufficientCredits):
		status, msg = http.StatusPaymentRequired, service.InsufficientCreditsMessage
	case errors.Is(err, service.ErrGenerationFailed):
		status, msg = http.StatusBadGateway, err.Error()
	case errors.Is(err, service.ErrInvalidUnits),
		errors.Is(err, service.ErrInvalidRetryConfig):
		status, msg = http.StatusBadRequest, err.Error()
	case errors.Is(err, service.ErrBillingNotConfigured):
		status, msg = http.StatusServiceUnavailable, err.Error()
	default:
		log.WithError(err).WithField("path", c.FullPath()).Error("request failed")
	}

	c.JSON(status, gin.H{"error": msg})
}
