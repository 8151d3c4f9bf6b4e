package handler

import (
	"net/http"

	"asklegal/internal/middleware"
	"asklegal/internal/model"
	"asklegal/internal/service"

	"github.com/gin-gonic/gin"
)

type SuggestHandler struct {
	suggestions *service.SuggestionService
}

func NewSuggestHandler(suggestions *service.SuggestionService) *SuggestHandler {
	return &SuggestHandler{suggestions: suggestions}
}

func (h *SuggestHandler) Suggest(c *gin.Context) {
	var req model.SuggestedRepliesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "details": err.Error()})
		return
	}

	out, err := h.suggestions.Suggest(c.Request.Context(), middleware.GetUserID(c), req.SessionID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, model.SuggestedRepliesResponse{Suggestions: out})
}
