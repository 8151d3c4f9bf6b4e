package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"asklegal/internal/config"
	"asklegal/internal/database"
	"asklegal/internal/intake"
	"asklegal/internal/llm"
	"asklegal/internal/model"
	"asklegal/internal/prompt"
	"asklegal/internal/repository"

	log "github.com/sirupsen/logrus"
)

var (
	ErrInsufficientCredits = errors.New(InsufficientCreditsMessage)
	ErrGenerationFailed    = errors.New("document generation failed")
)

// ErrGenerationInProgress is returned to the second of two concurrent
// requests for the same interview.
var ErrGenerationInProgress = errors.New("a document is already being generated for this session")

// DocumentService drafts the final filing from a completed interview. The
// session is claimed first so one interview is charged once, then a credit is
// reserved before the model is called and given back if drafting fails.
type DocumentService struct {
	intake   *IntakeService
	credits  *CreditService
	docRepo  repository.DocumentRepositoryInterface
	composer *prompt.Composer
	policy   *prompt.Policy
	llm      llm.Completer
	research llm.Completer

	// generating holds "user/session" keys of drafts running in this process.
	generating sync.Map
}

func NewDocumentService(intakeSvc *IntakeService, credits *CreditService) *DocumentService {
	cfg := config.Get()
	var research llm.Completer
	if cfg.Research.APIKey != "" {
		research = llm.NewClient(cfg.Research, llm.DefaultResearchTimeout, nil)
	}
	return NewDocumentServiceWithDeps(
		intakeSvc,
		credits,
		repository.NewDocumentRepository(database.GetDB()),
		llm.NewClient(cfg.Chat, llm.DefaultChatTimeout, nil),
		research,
	)
}

// NewDocumentServiceWithDeps wires explicit dependencies. research may be nil.
func NewDocumentServiceWithDeps(
	intakeSvc *IntakeService,
	credits *CreditService,
	docRepo repository.DocumentRepositoryInterface,
	completer, research llm.Completer,
) *DocumentService {
	return &DocumentService{
		intake:   intakeSvc,
		credits:  credits,
		docRepo:  docRepo,
		composer: prompt.NewComposer(),
		policy:   prompt.DefaultPolicy,
		llm:      completer,
		research: research,
	}
}

// Generate drafts the document for a completed session, stores it and
// removes the session. On insufficient credits the returned result carries
// the ledger's message alongside ErrInsufficientCredits. Any failure after
// the session was claimed puts it back so the user can retry.
func (s *DocumentService) Generate(ctx context.Context, userID, sessionID string) (*model.GenerateDocumentResponse, error) {
	key := userID + "/" + sessionID
	if _, busy := s.generating.LoadOrStore(key, struct{}{}); busy {
		return nil, ErrGenerationInProgress
	}
	defer s.generating.Delete(key)

	sess, err := s.intake.LoadSession(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	if !sess.State.IsComplete {
		return nil, ErrInterviewPending
	}

	sess, err = s.intake.ClaimSession(ctx, userID, sessionID)
	if errors.Is(err, ErrSessionNotFound) {
		return nil, ErrGenerationInProgress
	}
	if err != nil {
		return nil, err
	}

	credit, err := s.credits.ConsumeCredit(ctx, userID)
	if err != nil {
		s.restore(ctx, sess)
		return nil, err
	}
	if !credit.OK {
		s.restore(ctx, sess)
		return &model.GenerateDocumentResponse{Credit: *credit}, ErrInsufficientCredits
	}

	doc, err := s.draft(ctx, sess)
	if err != nil {
		s.refund(ctx, userID, credit.ReservationID)
		s.restore(ctx, sess)
		return nil, err
	}
	doc.ID = credit.ReservationID
	doc.CreditSource = credit.Source

	if err := s.docRepo.Finalize(ctx, doc); err != nil {
		s.refund(ctx, userID, credit.ReservationID)
		s.restore(ctx, sess)
		return nil, fmt.Errorf("document: store: %w", err)
	}

	log.WithFields(log.Fields{
		"userId":     userID,
		"documentId": doc.ID,
		"type":       doc.DocumentType,
		"source":     credit.Source,
	}).Info("document: generated")

	return &model.GenerateDocumentResponse{Document: doc, Credit: *credit}, nil
}

func (s *DocumentService) draft(ctx context.Context, sess *Session) (*model.Document, error) {
	st := sess.State
	p, err := s.composer.ComposeDocument(prompt.DocumentInput{
		State:           st,
		DocumentContext: sess.DocumentContext,
		Research:        s.lookupRules(ctx, st),
	})
	if err != nil {
		return nil, err
	}
	if err := s.policy.Validate(p); err != nil {
		log.WithError(err).WithField("sessionId", sess.ID).Warn("document: prompt failed content policy")
	}

	resp, err := s.llm.Chat(ctx, llm.ChatRequest{
		Messages: []llm.Message{
			{Role: model.RoleSystem, Content: p},
			{Role: model.RoleUser, Content: "Draft the document now."},
		},
		MaxTokens: 4096,
	})
	if err != nil {
		log.WithError(err).WithFields(log.Fields{
			"sessionId": sess.ID,
			"class":     llm.ClassifyError(err),
		}).Error("document: model call failed")
		return nil, fmt.Errorf("%w: %s", ErrGenerationFailed, llm.UserMessage(err))
	}

	docType := st.Fields.Get(intake.FieldDocumentType)
	if docType == "" {
		docType = "Court Filing"
	}
	title := docType
	if cn := st.Fields.Get(intake.FieldCaseNumber); cn != "" {
		title += " - " + cn
	}
	return &model.Document{
		UserID:       sess.UserID,
		SessionID:    sess.ID,
		DocumentType: docType,
		Title:        title,
		Content:      strings.TrimSpace(resp.Content),
	}, nil
}

// lookupRules asks the research endpoint for the local rules behind the
// document. It is best effort: any failure yields no research.
func (s *DocumentService) lookupRules(ctx context.Context, st *intake.State) string {
	if s.research == nil {
		return ""
	}
	where := strings.TrimSpace(strings.Join(nonEmpty(
		countyLabel(st.Fields.Get(intake.FieldCounty)),
		st.Fields.Get(intake.FieldState),
	), ", "))
	if where == "" {
		return ""
	}
	docType := st.Fields.Get(intake.FieldDocumentType)
	if docType == "" {
		docType = "court filing"
	}

	resp, err := s.research.Chat(ctx, llm.ChatRequest{
		Messages: []llm.Message{{
			Role:    model.RoleUser,
			Content: fmt.Sprintf("Summarize the court rules, statutes and formatting requirements for filing a %s in %s. Be brief and cite rule numbers.", docType, where),
		}},
		MaxTokens: 800,
	})
	if err != nil {
		log.WithError(err).WithField("class", llm.ClassifyError(err)).Warn("document: research lookup failed, drafting without it")
		return ""
	}
	return resp.Content
}

func (s *DocumentService) refund(ctx context.Context, userID, reservationID string) {
	if err := s.credits.RefundCredit(context.WithoutCancel(ctx), userID, reservationID); err != nil {
		log.WithError(err).WithFields(log.Fields{"userId": userID, "reservationId": reservationID}).Error("document: refund failed")
	}
}

func (s *DocumentService) restore(ctx context.Context, sess *Session) {
	if err := s.intake.RestoreSession(context.WithoutCancel(ctx), sess); err != nil {
		log.WithError(err).WithField("sessionId", sess.ID).Error("document: failed to restore intake session")
	}
}

func (s *DocumentService) Get(ctx context.Context, userID, id string) (*model.Document, error) {
	doc, err := s.docRepo.GetByID(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, repository.ErrDocumentNotFound
	}
	return doc, nil
}

func (s *DocumentService) List(ctx context.Context, userID string, limit, offset int) ([]*model.Document, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.docRepo.ListByUserID(ctx, userID, limit, offset)
}

func countyLabel(county string) string {
	if county == "" {
		return ""
	}
	return county + " County"
}

func nonEmpty(values ...string) []string {
	out := values[:0]
	for _, v := range values {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}
