package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"asklegal/internal/config"
	"asklegal/internal/database"
	"asklegal/internal/intake"
	"asklegal/internal/llm"
	"asklegal/internal/model"
	"asklegal/internal/prompt"
	"asklegal/internal/session"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

var (
	ErrEmptyMessage     = errors.New("message is required")
	ErrSessionNotFound  = errors.New("intake session not found")
	ErrInterviewDone    = errors.New("the interview is already complete")
	ErrInterviewPending = errors.New("the interview is not complete yet")
)

type Session = session.Session

// IntakeTurn is what the chat endpoint returns after each message.
type IntakeTurn struct {
	SessionID           string          `json:"sessionId"`
	Reply               string          `json:"reply"`
	QuestionID          string          `json:"questionId"`
	Question            string          `json:"question"`
	Progress            intake.Progress `json:"progress"`
	Fields              intake.Fields   `json:"fields"`
	IsComplete          bool            `json:"isComplete"`
	CanGenerateDocument bool            `json:"canGenerateDocument"`
}

// IntakeService runs the phased interview. The scripted engine decides what
// to ask next; the model only phrases the reply.
type IntakeService struct {
	engine   *intake.Engine
	composer *prompt.Composer
	policy   *prompt.Policy
	store    session.Store
	llm      llm.Completer
	now      func() time.Time
}

func NewIntakeService(store session.Store) *IntakeService {
	return NewIntakeServiceWithDeps(
		intake.NewEngine(),
		store,
		llm.NewClient(config.Get().Chat, llm.DefaultChatTimeout, nil),
	)
}

func NewIntakeServiceWithDeps(engine *intake.Engine, store session.Store, completer llm.Completer) *IntakeService {
	return &IntakeService{
		engine:   engine,
		composer: prompt.NewComposer(),
		policy:   prompt.DefaultPolicy,
		store:    store,
		llm:      completer,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// NewSessionStore builds the store selected by SESSION_STORE.
func NewSessionStore() (session.Store, error) {
	cfg := config.Get()
	return session.NewStore(cfg.SessionStore, database.GetDB(), cfg.SessionEncryptionKey)
}

func (s *IntakeService) Engine() *intake.Engine {
	return s.engine
}

// StartSession opens a new interview and returns the first question without
// calling the model.
func (s *IntakeService) StartSession(ctx context.Context, userID string, docs []model.DocumentContext) (*IntakeTurn, error) {
	sess := s.newSession(userID)
	sess.DocumentContext = mergeDocumentContext(nil, docs)

	q, err := s.engine.Current(sess.State)
	if err != nil {
		return nil, err
	}
	sess.History = append(sess.History, model.ChatMessage{Role: model.RoleAssistant, Content: q.Text, CreatedAt: s.now()})
	if err := s.store.Save(ctx, sess); err != nil {
		return nil, fmt.Errorf("intake: save session: %w", err)
	}
	return s.turn(sess, q, q.Text), nil
}

// HandleTurn treats message as the answer to the active question. An empty
// sessionID starts a new interview with message answering the opening
// question.
func (s *IntakeService) HandleTurn(ctx context.Context, userID, sessionID, message string, docs []model.DocumentContext) (*IntakeTurn, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, ErrEmptyMessage
	}

	var sess *Session
	if sessionID == "" {
		sess = s.newSession(userID)
	} else {
		var err error
		if sess, err = s.load(ctx, userID, sessionID); err != nil {
			return nil, err
		}
	}
	sess.DocumentContext = mergeDocumentContext(sess.DocumentContext, docs)

	next, err := s.engine.Answer(sess.State, message)
	if errors.Is(err, intake.ErrInterviewComplete) {
		return nil, ErrInterviewDone
	}
	if err != nil {
		return nil, err
	}
	sess.History = append(sess.History, model.ChatMessage{Role: model.RoleUser, Content: message, CreatedAt: s.now()})

	reply := s.reply(ctx, sess, next)
	sess.History = append(sess.History, model.ChatMessage{Role: model.RoleAssistant, Content: reply, CreatedAt: s.now()})
	sess.UpdatedAt = s.now()

	if err := s.store.Save(ctx, sess); err != nil {
		return nil, fmt.Errorf("intake: save session: %w", err)
	}

	log.WithFields(log.Fields{
		"userId":    userID,
		"sessionId": sess.ID,
		"question":  next.ID,
		"phase":     sess.State.CurrentPhase,
		"complete":  sess.State.IsComplete,
	}).Debug("intake: turn handled")

	return s.turn(sess, next, reply), nil
}

// reply asks the model to phrase the next step. Any model failure falls back
// to the scripted question so the interview never stalls.
func (s *IntakeService) reply(ctx context.Context, sess *Session, next *intake.Question) string {
	fallback := next.Text
	if sess.State.IsComplete {
		fallback = prompt.ClosingMessage
	}

	system := s.composer.ComposeIntake(prompt.IntakeInput{
		State:           sess.State,
		Question:        next,
		Progress:        s.engine.Progress(sess.State),
		History:         sess.History,
		DocumentContext: sess.DocumentContext,
	})
	if err := s.policy.Validate(system); err != nil {
		log.WithError(err).WithField("sessionId", sess.ID).Warn("intake: prompt failed content policy")
	}

	if s.llm == nil {
		return fallback
	}
	resp, err := s.llm.Chat(ctx, llm.ChatRequest{
		Messages: []llm.Message{
			{Role: model.RoleSystem, Content: system},
			{Role: model.RoleUser, Content: lastUserMessage(sess.History)},
		},
	})
	if err != nil {
		class := llm.ClassifyError(err)
		log.WithError(err).WithFields(log.Fields{
			"sessionId": sess.ID,
			"class":     class,
		}).Warn("intake: model call failed, using scripted question")
		switch class {
		case llm.ErrorClassTimeout, llm.ErrorClassRateLimited:
			return llm.UserMessage(err) + "\n\n" + fallback
		}
		return fallback
	}
	if sess.State.IsComplete {
		return prompt.ClosingMessage
	}
	return strings.TrimSpace(resp.Content)
}

func (s *IntakeService) GetSession(ctx context.Context, userID, sessionID string) (*IntakeTurn, []model.ChatMessage, error) {
	sess, err := s.load(ctx, userID, sessionID)
	if err != nil {
		return nil, nil, err
	}
	q, err := s.engine.Current(sess.State)
	if err != nil {
		return nil, nil, err
	}
	reply := ""
	if n := len(sess.History); n > 0 {
		reply = sess.History[n-1].Content
	}
	return s.turn(sess, q, reply), sess.History, nil
}

func (s *IntakeService) DeleteSession(ctx context.Context, userID, sessionID string) error {
	return s.store.Delete(ctx, userID, sessionID)
}

// ClaimSession removes the session from the store and hands it to the caller.
// Only one concurrent claim succeeds; the rest get ErrSessionNotFound.
func (s *IntakeService) ClaimSession(ctx context.Context, userID, sessionID string) (*Session, error) {
	sess, err := s.store.Take(ctx, userID, sessionID)
	if errors.Is(err, session.ErrNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("intake: claim session: %w", err)
	}
	return sess, nil
}

// RestoreSession puts a claimed session back, e.g. after a failed draft.
func (s *IntakeService) RestoreSession(ctx context.Context, sess *Session) error {
	return s.store.Save(ctx, sess)
}

// LoadSession returns the raw session for other services.
func (s *IntakeService) LoadSession(ctx context.Context, userID, sessionID string) (*Session, error) {
	return s.load(ctx, userID, sessionID)
}

func (s *IntakeService) load(ctx context.Context, userID, sessionID string) (*Session, error) {
	sess, err := s.store.Load(ctx, userID, sessionID)
	if errors.Is(err, session.ErrNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("intake: load session: %w", err)
	}
	if sess.State == nil {
		sess.State = s.engine.Start()
	}
	return sess, nil
}

func (s *IntakeService) newSession(userID string) *Session {
	now := s.now()
	return &Session{
		ID:        uuid.New().String(),
		UserID:    userID,
		State:     s.engine.Start(),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (s *IntakeService) turn(sess *Session, q *intake.Question, reply string) *IntakeTurn {
	return &IntakeTurn{
		SessionID:           sess.ID,
		Reply:               reply,
		QuestionID:          q.ID,
		Question:            q.Text,
		Progress:            s.engine.Progress(sess.State),
		Fields:              sess.State.Fields,
		IsComplete:          sess.State.IsComplete,
		CanGenerateDocument: sess.State.CanGenerateDocument,
	}
}

func lastUserMessage(history []model.ChatMessage) string {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == model.RoleUser {
			return history[i].Content
		}
	}
	return ""
}

// mergeDocumentContext appends newly uploaded files, replacing earlier entries
// with the same file name.
func mergeDocumentContext(existing, incoming []model.DocumentContext) []model.DocumentContext {
	for _, d := range incoming {
		if strings.TrimSpace(d.FileName) == "" && strings.TrimSpace(d.Summary) == "" {
			continue
		}
		replaced := false
		for i := range existing {
			if existing[i].FileName == d.FileName {
				existing[i] = d
				replaced = true
				break
			}
		}
		if !replaced {
			existing = append(existing, d)
		}
	}
	return existing
}
