package service

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"asklegal/internal/llm"
)

func toolReply(args string) *fakeCompleter {
	return &fakeCompleter{reply: func(llm.ChatRequest) (*llm.ChatResponse, error) {
		return &llm.ChatResponse{ToolCalls: []llm.ToolCall{{ID: "call_1", Name: suggestToolName, Arguments: args}}}, nil
	}}
}

func TestSuggestionService_ParsesToolCall(t *testing.T) {
	intakeSvc := newTestIntake(nil)
	ctx := context.Background()
	turn, err := intakeSvc.StartSession(ctx, "u1", nil)
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	long := strings.Repeat("x", maxSuggestLen+1)
	fake := toolReply(`{"suggestions":["  My landlord is evicting me ", "", "` + long + `", "I was served papers", "I want custody", "extra"]}`)
	svc := NewSuggestionServiceWithDeps(intakeSvc, fake)

	got, err := svc.Suggest(ctx, "u1", turn.SessionID)
	if err != nil {
		t.Fatalf("suggest: %v", err)
	}
	want := []string{"My landlord is evicting me", "I was served papers", "I want custody"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v want %v", got, want)
	}

	req := fake.last(t)
	if req.ToolChoice != suggestToolName || len(req.Tools) != 1 {
		t.Errorf("expected a forced tool call, got %+v", req)
	}
	if req.Temperature == nil || *req.Temperature != 0.7 {
		t.Errorf("temperature: got %v", req.Temperature)
	}
	if !strings.Contains(req.Messages[0].Content, turn.Question) {
		t.Error("prompt should include the current question")
	}
}

func TestSuggestionService_FallsBack(t *testing.T) {
	tests := []struct {
		name string
		llm  llm.Completer
	}{
		{"no model", nil},
		{"model error", failWith(errors.New("boom"))},
		{"invalid json", toolReply(`{"suggestions": [`)},
		{"empty list", toolReply(`{"suggestions": []}`)},
		{"plain text", replyWith("Try saying yes")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			intakeSvc := newTestIntake(nil)
			ctx := context.Background()
			turn, err := intakeSvc.StartSession(ctx, "u1", nil)
			if err != nil {
				t.Fatalf("start: %v", err)
			}
			svc := NewSuggestionServiceWithDeps(intakeSvc, tt.llm)

			got, err := svc.Suggest(ctx, "u1", turn.SessionID)
			if err != nil {
				t.Fatalf("fallbacks never fail: %v", err)
			}
			if !reflect.DeepEqual(got, genericSuggestions) {
				t.Fatalf("expected generic suggestions, got %v", got)
			}
		})
	}
}

func TestSuggestionService_QuestionSpecificFallback(t *testing.T) {
	intakeSvc := newTestIntake(nil)
	ctx := context.Background()
	turn, err := intakeSvc.HandleTurn(ctx, "u1", "", "I am filing in King County, Washington, case number 23-2-01234-5", nil)
	if err != nil {
		t.Fatalf("turn: %v", err)
	}
	if turn, err = intakeSvc.HandleTurn(ctx, "u1", turn.SessionID, "Jane Doe", nil); err != nil {
		t.Fatalf("turn: %v", err)
	}
	if turn.QuestionID != "user_role" {
		t.Fatalf("expected user_role next, got %q", turn.QuestionID)
	}

	svc := NewSuggestionServiceWithDeps(intakeSvc, failWith(errors.New("boom")))
	got, err := svc.Suggest(ctx, "u1", turn.SessionID)
	if err != nil {
		t.Fatalf("suggest: %v", err)
	}
	if !reflect.DeepEqual(got, staticSuggestions["user_role"]) {
		t.Fatalf("got %v", got)
	}

	// Callers may modify the returned slice.
	got[0] = "changed"
	if staticSuggestions["user_role"][0] == "changed" {
		t.Fatal("fallback must return a copy")
	}
}

func TestSuggestionService_UnknownSession(t *testing.T) {
	svc := NewSuggestionServiceWithDeps(newTestIntake(nil), nil)
	if _, err := svc.Suggest(context.Background(), "u1", "missing"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}
