package model

import "time"

// DocumentStatus tracks a document row through generation. A reserved row is
// written together with the credit it consumes and becomes ready once the
// draft is stored.
type DocumentStatus string

const (
	DocumentStatusReserved DocumentStatus = "reserved"
	DocumentStatusReady    DocumentStatus = "ready"
)

type Document struct {
	ID           string         `json:"id"`
	UserID       string         `json:"userId"`
	SessionID    string         `json:"sessionId"`
	DocumentType string         `json:"documentType"`
	Title        string         `json:"title"`
	Content      string         `json:"content"`
	CreditSource CreditSource   `json:"creditSource,omitempty"`
	Status       DocumentStatus `json:"status"`
	CreatedAt    time.Time      `json:"createdAt"`
}

type GenerateDocumentRequest struct {
	SessionID string `json:"sessionId" binding:"required"`
}

type GenerateDocumentResponse struct {
	Document *Document     `json:"document"`
	Credit   ConsumeResult `json:"credit"`
}
