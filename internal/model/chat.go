package model

import "time"

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type ChatMessage struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

// DocumentContext is what the upload pipeline extracted from one file.
type DocumentContext struct {
	FileName        string            `json:"fileName"`
	Summary         string            `json:"summary"`
	ExtractedFields map[string]string `json:"extractedFields,omitempty"`
}

type ChatTurnRequest struct {
	SessionID       string            `json:"sessionId"`
	Message         string            `json:"message"`
	DocumentContext []DocumentContext `json:"documentContext"`
}

type SuggestedRepliesRequest struct {
	SessionID string `json:"sessionId" binding:"required"`
}

type SuggestedRepliesResponse struct {
	Suggestions []string `json:"suggestions"`
}
