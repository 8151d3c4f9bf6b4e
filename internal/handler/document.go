package handler

import (
	"errors"
	"net/http"
	"strconv"

	"asklegal/internal/middleware"
	"asklegal/internal/model"
	"asklegal/internal/service"

	"github.com/gin-gonic/gin"
)

type DocumentHandler struct {
	documents *service.DocumentService
}

func NewDocumentHandler(documents *service.DocumentService) *DocumentHandler {
	return &DocumentHandler{documents: documents}
}

func (h *DocumentHandler) Generate(c *gin.Context) {
	var req model.GenerateDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "details": err.Error()})
		return
	}

	resp, err := h.documents.Generate(c.Request.Context(), middleware.GetUserID(c), req.SessionID)
	if errors.Is(err, service.ErrInsufficientCredits) {
		c.JSON(http.StatusPaymentRequired, gin.H{"error": resp.Credit.Message, "credit": resp.Credit})
		return
	}
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

func (h *DocumentHandler) List(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	docs, err := h.documents.List(c.Request.Context(), middleware.GetUserID(c), limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}
	if docs == nil {
		docs = []*model.Document{}
	}
	c.JSON(http.StatusOK, gin.H{"documents": docs})
}

func (h *DocumentHandler) Get(c *gin.Context) {
	doc, err := h.documents.Get(c.Request.Context(), middleware.GetUserID(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, doc)
}
