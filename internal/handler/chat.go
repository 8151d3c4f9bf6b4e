package handler

import (
	"net/http"

	"asklegal/internal/middleware"
	"asklegal/internal/model"
	"asklegal/internal/service"

	"github.com/gin-gonic/gin"
)

type ChatHandler struct {
	intake *service.IntakeService
}

func NewChatHandler(intake *service.IntakeService) *ChatHandler {
	return &ChatHandler{intake: intake}
}

type startSessionRequest struct {
	DocumentContext []model.DocumentContext `json:"documentContext"`
}

// Start opens a new interview and returns the opening question.
func (h *ChatHandler) Start(c *gin.Context) {
	var req startSessionRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "details": err.Error()})
			return
		}
	}

	turn, err := h.intake.StartSession(c.Request.Context(), middleware.GetUserID(c), req.DocumentContext)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, turn)
}

// Turn handles one user message of the step-one interview.
func (h *ChatHandler) Turn(c *gin.Context) {
	var req model.ChatTurnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "details": err.Error()})
		return
	}

	turn, err := h.intake.HandleTurn(c.Request.Context(), middleware.GetUserID(c), req.SessionID, req.Message, req.DocumentContext)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, turn)
}

func (h *ChatHandler) Get(c *gin.Context) {
	turn, history, err := h.intake.GetSession(c.Request.Context(), middleware.GetUserID(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": turn, "history": history})
}

func (h *ChatHandler) Delete(c *gin.Context) {
	if err := h.intake.DeleteSession(c.Request.Context(), middleware.GetUserID(c), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "session deleted"})
}
