package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"asklegal/internal/crypto"
	"asklegal/internal/database"
	"asklegal/internal/intake"
	"asklegal/internal/model"
	"asklegal/internal/repository"

	log "github.com/sirupsen/logrus"
)

var ErrNotFound = errors.New("session not found")

const (
	KindMemory = "memory"
	KindSQL    = "sql"
)

// Session is one user's intake conversation.
type Session struct {
	ID              string                  `json:"id"`
	UserID          string                  `json:"userId"`
	State           *intake.State           `json:"state"`
	History         []model.ChatMessage     `json:"history"`
	DocumentContext []model.DocumentContext `json:"documentContext,omitempty"`
	CreatedAt       time.Time               `json:"createdAt"`
	UpdatedAt       time.Time               `json:"updatedAt"`
}

// Store persists sessions keyed by (user, session id).
type Store interface {
	Load(ctx context.Context, userID, id string) (*Session, error)
	Save(ctx context.Context, s *Session) error
	Delete(ctx context.Context, userID, id string) error
	// Take removes the session and returns it. Of several concurrent callers
	// exactly one gets the session; the others get ErrNotFound.
	Take(ctx context.Context, userID, id string) (*Session, error)
}

// NewStore returns the store named by kind. encryptionKey is only used by the
// sql store; an empty key stores plain JSON.
func NewStore(kind string, db *database.DB, encryptionKey string) (Store, error) {
	switch strings.ToLower(kind) {
	case KindMemory:
		return NewMemoryStore(), nil
	case KindSQL, "":
		if db == nil {
			return nil, fmt.Errorf("session: sql store needs a database")
		}
		var sealer *crypto.Sealer
		if encryptionKey != "" {
			key, err := crypto.ParseKey(encryptionKey)
			if err != nil {
				return nil, fmt.Errorf("session: %w", err)
			}
			if sealer, err = crypto.NewSealer(key); err != nil {
				return nil, fmt.Errorf("session: %w", err)
			}
		} else {
			log.Warn("session: SESSION_ENCRYPTION_KEY not set, intake state is stored unencrypted")
		}
		return NewSQLStore(repository.NewIntakeSessionRepository(db), sealer), nil
	default:
		return nil, fmt.Errorf("session: unknown store %q", kind)
	}
}

func key(userID, id string) string {
	return userID + "/" + id
}

// MemoryStore keeps sessions in process memory. Values are stored as JSON so
// callers never share mutable state with the store.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

func (m *MemoryStore) Load(_ context.Context, userID, id string) (*Session, error) {
	m.mu.RLock()
	raw, ok := m.data[key(userID, id)]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	var s Session
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (m *MemoryStore) Save(_ context.Context, s *Session) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.data[key(s.UserID, s.ID)] = raw
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, userID, id string) error {
	m.mu.Lock()
	delete(m.data, key(userID, id))
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Take(_ context.Context, userID, id string) (*Session, error) {
	m.mu.Lock()
	raw, ok := m.data[key(userID, id)]
	delete(m.data, key(userID, id))
	m.mu.Unlock()
	if !ok {
		return nil, ErrNotFound
	}
	var s Session
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// SQLStore keeps sessions in the intake_sessions table, sealed with AES-GCM
// when a sealer is configured.
type SQLStore struct {
	repo   repository.IntakeSessionRepositoryInterface
	sealer *crypto.Sealer
}

var _ Store = (*SQLStore)(nil)

func NewSQLStore(repo repository.IntakeSessionRepositoryInterface, sealer *crypto.Sealer) *SQLStore {
	return &SQLStore{repo: repo, sealer: sealer}
}

func (s *SQLStore) Load(ctx context.Context, userID, id string) (*Session, error) {
	value, found, err := s.repo.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrNotFound
	}
	return s.decode(userID, id, value)
}

func (s *SQLStore) decode(userID, id, value string) (*Session, error) {
	raw := []byte(value)
	var err error
	if crypto.IsSealed(value) {
		if s.sealer == nil {
			return nil, fmt.Errorf("session: %s is encrypted but no key is configured", id)
		}
		if raw, err = s.sealer.Open(value, []byte(key(userID, id))); err != nil {
			return nil, fmt.Errorf("session: decrypt %s: %w", id, err)
		}
	}

	var sess Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return nil, fmt.Errorf("session: decode %s: %w", id, err)
	}
	return &sess, nil
}

func (s *SQLStore) Save(ctx context.Context, sess *Session) error {
	raw, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	value := string(raw)
	if s.sealer != nil {
		if value, err = s.sealer.Seal(raw, []byte(key(sess.UserID, sess.ID))); err != nil {
			return fmt.Errorf("session: encrypt %s: %w", sess.ID, err)
		}
	}
	return s.repo.Upsert(ctx, sess.UserID, sess.ID, value)
}

func (s *SQLStore) Delete(ctx context.Context, userID, id string) error {
	return s.repo.Delete(ctx, userID, id)
}

func (s *SQLStore) Take(ctx context.Context, userID, id string) (*Session, error) {
	value, found, err := s.repo.Take(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrNotFound
	}
	return s.decode(userID, id, value)
}
