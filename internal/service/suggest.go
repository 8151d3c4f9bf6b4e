package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"asklegal/internal/config"
	"asklegal/internal/intake"
	"asklegal/internal/llm"
	"asklegal/internal/model"

	log "github.com/sirupsen/logrus"
)

const (
	suggestToolName = "suggest_replies"
	maxSuggestions  = 3
	maxSuggestLen   = 120
)

var suggestToolSchema = json.RawMessage(`{
  "type": "object",
  "properties": {
    "suggestions": {
      "type": "array",
      "items": {"type": "string"},
      "minItems": 1,
      "maxItems": 3
    }
  },
  "required": ["suggestions"]
}`)

var genericSuggestions = []string{
	"I'm not sure",
	"Can you explain what you mean?",
	"I don't have that information right now",
}

var staticSuggestions = map[string][]string{
	"user_role":       {"I am the petitioner", "I am the respondent", "I am the defendant"},
	"case_type":       {"Protection order", "Family law / custody", "Landlord-tenant"},
	"urgency":         {"There is a hearing coming up soon", "It is urgent but no hearing yet", "No immediate deadline"},
	"document_type":   {"Motion to dismiss", "Declaration", "Response to a petition"},
	"evidence":        {"Text messages and emails", "Photos", "I don't have evidence yet"},
	"witnesses":       {"No witnesses", "A family member saw what happened", "A neighbor"},
	"case_number":     {"I don't have a case number yet", "I will check my paperwork", "It is on the court summons"},
	"additional_info": {"No, that's everything", "Yes, I have more details", "Can you summarize what you have?"},
}

// SuggestionService proposes short replies the user can tap instead of
// typing.
type SuggestionService struct {
	intake *IntakeService
	llm    llm.Completer
}

func NewSuggestionService(intakeSvc *IntakeService) *SuggestionService {
	return NewSuggestionServiceWithDeps(intakeSvc, llm.NewClient(config.Get().Chat, llm.DefaultChatTimeout, nil))
}

func NewSuggestionServiceWithDeps(intakeSvc *IntakeService, completer llm.Completer) *SuggestionService {
	return &SuggestionService{intake: intakeSvc, llm: completer}
}

// Suggest returns up to three replies for the session's current question.
// Model or parse failures fall back to a fixed list.
func (s *SuggestionService) Suggest(ctx context.Context, userID, sessionID string) ([]string, error) {
	sess, err := s.intake.LoadSession(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	q, err := s.intake.Engine().Current(sess.State)
	if err != nil {
		return nil, err
	}
	fallback := fallbackSuggestions(q.ID)
	if s.llm == nil || sess.State.IsComplete {
		return fallback, nil
	}

	temp := 0.7
	resp, err := s.llm.Chat(ctx, llm.ChatRequest{
		Messages: []llm.Message{
			{Role: model.RoleSystem, Content: suggestPrompt(sess.State, q)},
			{Role: model.RoleUser, Content: q.Text},
		},
		Temperature: &temp,
		MaxTokens:   300,
		Tools: []llm.Tool{{
			Name:        suggestToolName,
			Description: "Return short replies the user could send to answer the question.",
			Parameters:  suggestToolSchema,
		}},
		ToolChoice: suggestToolName,
	})
	if err != nil {
		log.WithError(err).WithField("class", llm.ClassifyError(err)).Warn("suggest: model call failed")
		return fallback, nil
	}

	args, ok := resp.ToolArguments(suggestToolName)
	if !ok {
		log.WithField("sessionId", sessionID).Warn("suggest: no usable tool call in reply")
		return fallback, nil
	}
	var out []string
	for _, v := range args.Get("suggestions").Array() {
		text := strings.TrimSpace(v.String())
		if text == "" || len(text) > maxSuggestLen {
			continue
		}
		out = append(out, text)
		if len(out) == maxSuggestions {
			break
		}
	}
	if len(out) == 0 {
		return fallback, nil
	}
	return out, nil
}

func suggestPrompt(st *intake.State, q *intake.Question) string {
	var sb strings.Builder
	sb.WriteString("You help a self-represented litigant answer an interview question quickly. ")
	sb.WriteString("Propose up to three short replies, written in the first person, that the user might send. ")
	sb.WriteString("Do not invent names, dates or case numbers.\n")
	fmt.Fprintf(&sb, "Interview phase: %s.\n", st.CurrentPhase.Name())
	if ct := st.Fields.Get(intake.FieldCaseType); ct != "" {
		fmt.Fprintf(&sb, "Case type: %s.\n", ct)
	}
	fmt.Fprintf(&sb, "Question: %s", q.Text)
	return sb.String()
}

func fallbackSuggestions(questionID string) []string {
	if s, ok := staticSuggestions[questionID]; ok {
		return append([]string(nil), s...)
	}
	return append([]string(nil), genericSuggestions...)
}
