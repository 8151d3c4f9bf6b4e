package handler

import (
	"net/http"

	"asklegal/internal/middleware"
	"asklegal/internal/model"
	"asklegal/internal/service"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// AccountHandler serves sign-up, sign-in and the caller's own profile.
type AccountHandler struct {
	users   *service.UserService
	tokens  *service.JWTService
	credits *service.CreditService
}

func NewAccountHandler(users *service.UserService, tokens *service.JWTService, credits *service.CreditService) *AccountHandler {
	return &AccountHandler{users: users, tokens: tokens, credits: credits}
}

func bindJSON(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "details": err.Error()})
		return false
	}
	return true
}

// Register creates the account and its zeroed credit ledger, then signs the
// caller in.
func (h *AccountHandler) Register(c *gin.Context) {
	var req model.RegisterRequest
	if !bindJSON(c, &req) {
		return
	}

	ctx := c.Request.Context()
	user, err := h.users.Register(ctx, &req)
	if err != nil {
		respondError(c, err)
		return
	}

	// The ledger is created lazily on first use as well.
	if _, err := h.credits.EnsureUsageRecord(ctx, user.ID); err != nil {
		log.WithError(err).WithField("userId", user.ID).Warn("account: usage ledger not created at sign-up")
	}

	resp := model.AuthResponse{ID: user.ID, Username: user.Username, IsAdmin: user.IsAdmin}
	token, err := h.tokens.GenerateToken(user.ID, user.Username)
	if err != nil {
		log.WithError(err).WithField("userId", user.ID).Error("account: sign-in token not issued")
		resp.Message = "account created, please sign in"
		c.JSON(http.StatusCreated, resp)
		return
	}
	resp.Token = token
	resp.Message = "account created"
	c.JSON(http.StatusCreated, resp)
}

func (h *AccountHandler) Login(c *gin.Context) {
	var req model.LoginRequest
	if !bindJSON(c, &req) {
		return
	}

	user, token, err := h.users.Login(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, model.AuthResponse{
		ID:       user.ID,
		Username: user.Username,
		Token:    token,
		IsAdmin:  user.IsAdmin,
		Message:  "signed in",
	})
}

// Me returns the profile together with the credit summary the drafting UI
// shows next to the generate button.
func (h *AccountHandler) Me(c *gin.Context) {
	ctx := c.Request.Context()
	userID := middleware.GetUserID(c)

	user, err := h.users.GetByID(ctx, userID)
	if err != nil {
		respondError(c, err)
		return
	}

	resp := model.AccountResponse{User: user}
	if summary, err := h.credits.GetUsage(ctx, userID); err != nil {
		log.WithError(err).WithField("userId", userID).Warn("account: usage summary unavailable")
	} else {
		resp.Usage = summary
	}
	c.JSON(http.StatusOK, resp)
}

func (h *AccountHandler) ChangePassword(c *gin.Context) {
	var req model.ChangePasswordRequest
	if !bindJSON(c, &req) {
		return
	}

	if err := h.users.ChangePassword(c.Request.Context(), middleware.GetUserID(c), req.OldPassword, req.NewPassword); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "password changed"})
}
