package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"asklegal/internal/database"
	"asklegal/internal/model"

	"github.com/google/uuid"
)

var ErrDocumentNotFound = errors.New("document not found")

type DocumentRepositoryInterface interface {
	Create(ctx context.Context, doc *model.Document) error
	// Finalize turns a reserved row into a ready document.
	Finalize(ctx context.Context, doc *model.Document) error
	GetByID(ctx context.Context, userID, id string) (*model.Document, error)
	ListByUserID(ctx context.Context, userID string, limit, offset int) ([]*model.Document, error)
	// CountBySource counts documents paid from source, reserved rows
	// included. A nil bound is open.
	CountBySource(ctx context.Context, userID string, source model.CreditSource, start, end *time.Time) (int, error)
}

var _ DocumentRepositoryInterface = (*DocumentRepository)(nil)

type DocumentRepository struct {
	db *database.DB
}

func NewDocumentRepository(db *database.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

const documentColumns = `id, user_id, session_id, document_type, title, content, credit_source, status, created_at`

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertDocument(ctx context.Context, db *database.DB, ex execer, doc *model.Document) error {
	if doc.ID == "" {
		doc.ID = uuid.New().String()
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now().UTC()
	}
	if doc.Status == "" {
		doc.Status = model.DocumentStatusReady
	}
	_, err := ex.ExecContext(ctx,
		db.Rebind(`INSERT INTO documents (`+documentColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		doc.ID, doc.UserID, doc.SessionID, doc.DocumentType, doc.Title, doc.Content, doc.CreditSource, doc.Status, doc.CreatedAt.UTC(),
	)
	return err
}

func (r *DocumentRepository) Create(ctx context.Context, doc *model.Document) error {
	return insertDocument(ctx, r.db, r.db, doc)
}

func (r *DocumentRepository) Finalize(ctx context.Context, doc *model.Document) error {
	result, err := r.db.ExecContext(ctx,
		r.db.Rebind(`UPDATE documents
		 SET session_id = ?, document_type = ?, title = ?, content = ?, status = ?
		 WHERE id = ? AND user_id = ? AND status = ?`),
		doc.SessionID, doc.DocumentType, doc.Title, doc.Content, model.DocumentStatusReady,
		doc.ID, doc.UserID, model.DocumentStatusReserved,
	)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrDocumentNotFound
	}
	doc.Status = model.DocumentStatusReady
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*model.Document, error) {
	d := &model.Document{}
	err := row.Scan(&d.ID, &d.UserID, &d.SessionID, &d.DocumentType, &d.Title, &d.Content, &d.CreditSource, &d.Status, &d.CreatedAt)
	return d, err
}

func (r *DocumentRepository) GetByID(ctx context.Context, userID, id string) (*model.Document, error) {
	doc, err := scanDocument(r.db.QueryRowContext(ctx,
		r.db.Rebind(`SELECT `+documentColumns+` FROM documents WHERE user_id = ? AND id = ? AND status = ?`),
		userID, id, model.DocumentStatusReady,
	))
	if err == sql.ErrNoRows {
		return nil, ErrDocumentNotFound
	}
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func (r *DocumentRepository) ListByUserID(ctx context.Context, userID string, limit, offset int) ([]*model.Document, error) {
	rows, err := r.db.QueryContext(ctx,
		r.db.Rebind(`SELECT `+documentColumns+` FROM documents WHERE user_id = ? AND status = ? ORDER BY created_at DESC LIMIT ? OFFSET ?`),
		userID, model.DocumentStatusReady, limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []*model.Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

func (r *DocumentRepository) CountBySource(ctx context.Context, userID string, source model.CreditSource, start, end *time.Time) (int, error) {
	query := `SELECT COUNT(*) FROM documents WHERE user_id = ? AND credit_source = ?`
	args := []any{userID, source}
	if start != nil {
		query += ` AND created_at >= ?`
		args = append(args, start.UTC())
	}
	if end != nil {
		query += ` AND created_at < ?`
		args = append(args, end.UTC())
	}

	var count int
	err := r.db.QueryRowContext(ctx, r.db.Rebind(query), args...).Scan(&count)
	return count, err
}
