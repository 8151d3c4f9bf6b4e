package prompt

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"asklegal/internal/intake"
	"asklegal/internal/model"
)

// Section names in the order ComposeIntake emits them.
const (
	SectionBase            = "base"
	SectionDocumentContext = "document_context"
	SectionProgress        = "progress"
	SectionCaseInfo        = "case_info"
	SectionHistory         = "history"
	SectionPhaseFocus      = "phase_focus"
	SectionCompletion      = "completion"

	SectionInterviewData = "interview_data"
	SectionRequirements  = "requirements"
)

// ClosingMessage must be reproduced word for word by the model once the
// interview is complete.
const ClosingMessage = `Thank you. I have all the information I need to prepare your document. Click "Generate Document" when you are ready, and I will draft it for your review.`

const DefaultHistoryLimit = 10

const baseInstructions = `You are Ask AI Legal, an assistant that helps self-represented litigants prepare court filings.

Interview approach:
- Ask exactly one question at a time and wait for the answer.
- Keep replies short, plain and warm. Avoid legal jargon unless the user uses it first.
- Never ask for information the user has already given. Use the case information below.
- If an answer is unclear, ask one brief follow-up before moving on.
- Do not draft the document during the interview.

Formatting:
- Write in plain sentences. Never use markdown bold, headings, tables or numbered section titles.
- Do not add disclaimers or suggest that the user hire someone else. The user has chosen to represent themselves.

Phases:
1. Case Information: parties, court, county, state and case number.
2. Facts and Evidence: what happened, when, and what proof exists.
3. Legal Issues: what the court must decide and what the other side argues.
4. Goals and Relief: what the user wants the court to order.
5. Document Preparation: the type of document and any final details.`

const generationRequirements = `Requirements:
- Produce a complete, court-ready document in plain text using the caption format of the court named above.
- Include the caption with court name, parties and case number; a title; numbered paragraphs; a request for relief; and a signature block for the user as a self-represented party.
- State facts in the first person from the user's point of view, in chronological order.
- Cite only statutes or court rules the user mentioned or that are standard for this document type in this state. Do not invent case law.
- Leave a bracketed placeholder such as [DATE] for anything that is missing.
- Do not use markdown formatting of any kind.`

var caseInfoLabels = []struct {
	field intake.Field
	label string
}{
	{intake.FieldUserName, "Name"},
	{intake.FieldUserRole, "Role"},
	{intake.FieldOpposingParty, "Opposing party"},
	{intake.FieldCaseType, "Case type"},
	{intake.FieldCourtName, "Court"},
	{intake.FieldCounty, "County"},
	{intake.FieldState, "State"},
	{intake.FieldCaseNumber, "Case number"},
	{intake.FieldHearingDate, "Hearing date"},
	{intake.FieldFilingDeadline, "Filing deadline"},
	{intake.FieldDocumentType, "Document type"},
}

// IntakeInput is everything needed to build the interview system prompt.
type IntakeInput struct {
	State           *intake.State
	Question        *intake.Question
	Progress        intake.Progress
	History         []model.ChatMessage
	DocumentContext []model.DocumentContext
}

// DocumentInput is everything needed to build the drafting prompt.
type DocumentInput struct {
	State           *intake.State
	DocumentContext []model.DocumentContext
	Research        string
}

type Composer struct {
	HistoryLimit int
}

func NewComposer() *Composer {
	return &Composer{HistoryLimit: DefaultHistoryLimit}
}

// IntakeBuilder returns the interview prompt as named sections so callers can
// inspect or adjust them before rendering.
func (c *Composer) IntakeBuilder(in IntakeInput) *Builder {
	b := NewBuilder()
	b.Set(SectionBase, baseInstructions)
	if block := documentContextBlock(in.DocumentContext); block != "" {
		b.Set(SectionDocumentContext, block)
	}
	b.Set(SectionProgress, progressBlock(in.Progress))
	b.Set(SectionCaseInfo, caseInfoBlock(in.State))
	if block := historyBlock(in.History, c.historyLimit()); block != "" {
		b.Set(SectionHistory, block)
	}
	b.Set(SectionPhaseFocus, phaseFocusBlock(in.Progress.Phase, in.Question))
	b.Set(SectionCompletion, completionBlock(in.Progress.IsComplete))
	return b
}

func (c *Composer) ComposeIntake(in IntakeInput) string {
	return c.IntakeBuilder(in).String()
}

func (c *Composer) ComposeDocument(in DocumentInput) (string, error) {
	if in.State == nil {
		return "", fmt.Errorf("prompt: no interview state")
	}
	data, err := json.MarshalIndent(struct {
		Fields    intake.Fields     `json:"fields"`
		Responses []intake.Response `json:"responses"`
	}{in.State.Fields, in.State.Responses}, "", "  ")
	if err != nil {
		return "", fmt.Errorf("prompt: marshal interview: %w", err)
	}

	docType := in.State.Fields.Get(intake.FieldDocumentType)
	if docType == "" {
		docType = "court filing"
	}

	b := NewBuilder()
	b.Set(SectionBase, fmt.Sprintf("Draft a %s for a self-represented litigant using the interview below.", docType))
	b.Set(SectionInterviewData, "Interview data (JSON):\n"+string(data))
	if block := documentContextBlock(in.DocumentContext); block != "" {
		b.Set(SectionDocumentContext, block)
	}
	if r := strings.TrimSpace(in.Research); r != "" {
		b.Set("research", "Background research on the applicable rules:\n"+r)
	}
	b.Set(SectionRequirements, generationRequirements)
	return b.String(), nil
}

func (c *Composer) historyLimit() int {
	if c.HistoryLimit <= 0 {
		return DefaultHistoryLimit
	}
	return c.HistoryLimit
}

func documentContextBlock(docs []model.DocumentContext) string {
	if len(docs) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("Uploaded documents:")
	for _, d := range docs {
		fmt.Fprintf(&sb, "\n- %s", d.FileName)
		if s := strings.TrimSpace(d.Summary); s != "" {
			fmt.Fprintf(&sb, ": %s", s)
		}
		keys := make([]string, 0, len(d.ExtractedFields))
		for k := range d.ExtractedFields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&sb, "\n  %s: %s", k, d.ExtractedFields[k])
		}
	}
	return sb.String()
}

func progressBlock(p intake.Progress) string {
	status := "in progress"
	if p.IsComplete {
		status = "complete"
	}
	return fmt.Sprintf("Interview progress:\n- Current phase: %d of %d (%s)\n- Questions answered: %d of %d\n- Status: %s",
		p.Phase, p.TotalPhases, p.Phase.Name(), p.Answered, p.TotalQuestions, status)
}

func caseInfoBlock(st *intake.State) string {
	var lines []string
	if st != nil {
		for _, l := range caseInfoLabels {
			if v := st.Fields.Get(l.field); v != "" {
				lines = append(lines, fmt.Sprintf("- %s: %s", l.label, v))
			}
		}
	}
	if len(lines) == 0 {
		return "Case information: nothing collected yet."
	}
	return "Case information collected so far:\n" + strings.Join(lines, "\n")
}

func historyBlock(history []model.ChatMessage, limit int) string {
	if len(history) == 0 {
		return ""
	}
	if len(history) > limit {
		history = history[len(history)-limit:]
	}
	var sb strings.Builder
	sb.WriteString("Recent conversation:")
	for _, m := range history {
		role := "User"
		if m.Role == model.RoleAssistant {
			role = "Assistant"
		}
		fmt.Fprintf(&sb, "\n%s: %s", role, strings.TrimSpace(m.Content))
	}
	return sb.String()
}

func phaseFocusBlock(phase intake.Phase, q *intake.Question) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Current focus (%s): %s", phase.Name(), phase.Focus())
	if q != nil && !q.Terminal() {
		fmt.Fprintf(&sb, "\nNext question to ask: %s", q.Text)
	}
	return sb.String()
}

func completionBlock(complete bool) string {
	if complete {
		return "The interview is complete. Reply with exactly this message and nothing else:\n" + ClosingMessage
	}
	return "The interview is complete only when every phase has been covered. Until then, keep asking one question at a time. When it is complete, reply with exactly this message:\n" + ClosingMessage
}
