package service

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"asklegal/internal/database"
	"asklegal/internal/intake"
	"asklegal/internal/llm"
	"asklegal/internal/model"
	"asklegal/internal/repository"
	"asklegal/internal/session"
)

type ledgerFixture struct {
	db      *database.DB
	usage   *repository.UsageRepository
	subs    *repository.SubscriptionRepository
	txs     *repository.TransactionRepository
	docs    *repository.DocumentRepository
	credits *CreditService
}

func openTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.Open(database.DriverSQLite, filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func newLedgerFixture(t *testing.T) *ledgerFixture {
	t.Helper()
	db := openTestDB(t)
	f := &ledgerFixture{
		db:    db,
		usage: repository.NewUsageRepository(db),
		subs:  repository.NewSubscriptionRepository(db),
		txs:   repository.NewTransactionRepository(db),
		docs:  repository.NewDocumentRepository(db),
	}
	f.credits = NewCreditServiceWithRepo(f.usage, f.subs, f.txs, f.docs, 10, 1)
	return f
}

// The test billing period is the current calendar month, so rows stamped
// with the wall clock fall inside it.
var (
	periodStart = monthStart(time.Now().UTC())
	periodEnd   = periodStart.AddDate(0, 1, 0)
)

func monthStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// subscribe creates an active subscription and aligns the ledger with its
// period, leaving monthlyRemaining credits in the monthly pool.
func (f *ledgerFixture) subscribe(t *testing.T, userID string, monthlyRemaining int) {
	t.Helper()
	ctx := context.Background()
	start, end := periodStart, periodEnd
	if err := f.subs.Create(ctx, &model.Subscription{
		UserID:             userID,
		Status:             model.SubscriptionStatusActive,
		PlanID:             "monthly",
		CurrentPeriodStart: &start,
		CurrentPeriodEnd:   &end,
	}); err != nil {
		t.Fatalf("create subscription: %v", err)
	}
	if err := f.credits.ResetMonthly(ctx, userID, 10, start, end); err != nil {
		t.Fatalf("reset monthly: %v", err)
	}
	f.setBalances(t, userID, monthlyRemaining, -1)
}

// setBalances overwrites the pools; a negative value leaves a pool as is.
func (f *ledgerFixture) setBalances(t *testing.T, userID string, monthly, oneTime int) {
	t.Helper()
	ctx := context.Background()
	rec, err := f.credits.EnsureUsageRecord(ctx, userID)
	if err != nil {
		t.Fatalf("ensure usage: %v", err)
	}
	want := *rec
	if monthly >= 0 {
		want.MonthlyRemaining = monthly
	}
	if oneTime >= 0 {
		want.OneTimeRemaining = oneTime
	}
	if ok, err := f.usage.Patch(ctx, &want, rec); err != nil || !ok {
		t.Fatalf("patch usage: %v %v", ok, err)
	}
}

func (f *ledgerFixture) record(t *testing.T, userID string) *model.UsageRecord {
	t.Helper()
	rec, err := f.usage.GetByUserID(context.Background(), userID)
	if err != nil || rec == nil {
		t.Fatalf("load usage: %v", err)
	}
	return rec
}

// fakeCompleter records requests and answers with a fixed reply or error.
type fakeCompleter struct {
	mu    sync.Mutex
	reqs  []llm.ChatRequest
	reply func(req llm.ChatRequest) (*llm.ChatResponse, error)
}

func replyWith(content string) *fakeCompleter {
	return &fakeCompleter{reply: func(llm.ChatRequest) (*llm.ChatResponse, error) {
		return &llm.ChatResponse{Content: content, FinishReason: "stop"}, nil
	}}
}

func failWith(err error) *fakeCompleter {
	return &fakeCompleter{reply: func(llm.ChatRequest) (*llm.ChatResponse, error) {
		return nil, err
	}}
}

func (f *fakeCompleter) Chat(_ context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	f.mu.Lock()
	f.reqs = append(f.reqs, req)
	f.mu.Unlock()
	return f.reply(req)
}

func (f *fakeCompleter) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.reqs)
}

func (f *fakeCompleter) last(t *testing.T) llm.ChatRequest {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.reqs) == 0 {
		t.Fatal("model was never called")
	}
	return f.reqs[len(f.reqs)-1]
}

func newTestIntake(completer llm.Completer) *IntakeService {
	return NewIntakeServiceWithDeps(intake.NewEngine(), session.NewMemoryStore(), completer)
}

// completeInterview opens a session for userID and answers until the
// interview is complete, returning the session id.
func completeInterview(t *testing.T, svc *IntakeService, userID string) string {
	t.Helper()
	ctx := context.Background()
	turn, err := svc.HandleTurn(ctx, userID, "", "I need a motion to dismiss in King County, Washington, case number 23-2-01234-5", nil)
	if err != nil {
		t.Fatalf("first turn: %v", err)
	}
	for i := 0; !turn.IsComplete; i++ {
		if i > len(svc.Engine().Questions()) {
			t.Fatal("interview did not terminate")
		}
		if turn, err = svc.HandleTurn(ctx, userID, turn.SessionID, "none", nil); err != nil {
			t.Fatalf("turn %d: %v", i, err)
		}
	}
	return turn.SessionID
}
