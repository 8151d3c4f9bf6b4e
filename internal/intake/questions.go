package intake

import (
	"regexp"
	"strings"
)

// Phase is one stage of the interview. Phases only move forward.
type Phase int

const (
	PhaseCaseInfo Phase = iota + 1
	PhaseFacts
	PhaseLegalAnalysis
	PhaseGoals
	PhaseDocumentPrep
)

var phaseNames = map[Phase]string{
	PhaseCaseInfo:      "Case Information",
	PhaseFacts:         "Facts and Evidence",
	PhaseLegalAnalysis: "Legal Issues",
	PhaseGoals:         "Goals and Relief",
	PhaseDocumentPrep:  "Document Preparation",
}

var phaseFocus = map[Phase]string{
	PhaseCaseInfo:      "Identify the parties, the court, the jurisdiction and the case number. Confirm the user's role in the case.",
	PhaseFacts:         "Collect the key facts in chronological order, the evidence the user has, any witnesses, prior court orders and upcoming hearing dates.",
	PhaseLegalAnalysis: "Understand the legal issues in dispute, what the other side is arguing, which statutes or court rules the user knows of, and any filing deadline.",
	PhaseGoals:         "Clarify what outcome the user wants from the court and how urgent it is.",
	PhaseDocumentPrep:  "Confirm the type of document to draft and collect any remaining details needed for drafting.",
}

func (p Phase) Name() string {
	if n, ok := phaseNames[p]; ok {
		return n
	}
	return "Unknown"
}

// Focus describes what the assistant should concentrate on during the phase.
func (p Phase) Focus() string {
	return phaseFocus[p]
}

// Question is one node of the interview.
type Question struct {
	ID        string
	Phase     Phase
	Text      string
	ShouldAsk func(st *State) bool
	Extract   Extractor
}

// Terminal reports whether the question ends the interview.
func (q *Question) Terminal() bool {
	return q.ID == QuestionReadyToDraft
}

const QuestionReadyToDraft = "ready_to_draft"

func always(*State) bool { return true }

func askUnless(f Field) func(*State) bool {
	return func(st *State) bool { return !st.Fields.Has(f) }
}

func raw(f Field) Extractor { return FieldExtractor{Field: f} }

// DefaultQuestions is the interview script in the order it is asked.
var DefaultQuestions = []Question{
	{
		ID:        "case_overview",
		Phase:     PhaseCaseInfo,
		Text:      "Tell me briefly what your case is about and where it is filed.",
		ShouldAsk: always,
	},
	{
		ID:        "user_name",
		Phase:     PhaseCaseInfo,
		Text:      "What is your full legal name as it appears on court papers?",
		ShouldAsk: askUnless(FieldUserName),
		Extract:   FirstOf{NameExtractor{}, ExtractorFunc(nameAnswerExtractor)},
	},
	{
		ID:        "user_role",
		Phase:     PhaseCaseInfo,
		Text:      "Are you the petitioner, respondent, plaintiff or defendant in this case?",
		ShouldAsk: askUnless(FieldUserRole),
		Extract:   FirstOf{ExtractorFunc(roleAnswerExtractor), raw(FieldUserRole)},
	},
	{
		ID:        "opposing_party",
		Phase:     PhaseCaseInfo,
		Text:      "What is the name of the other party in the case?",
		ShouldAsk: askUnless(FieldOpposingParty),
		Extract:   raw(FieldOpposingParty),
	},
	{
		ID:        "state",
		Phase:     PhaseCaseInfo,
		Text:      "Which state is your case in?",
		ShouldAsk: askUnless(FieldState),
		Extract:   StateExtractor{},
	},
	{
		ID:        "county",
		Phase:     PhaseCaseInfo,
		Text:      "Which county is the case filed in?",
		ShouldAsk: askUnless(FieldCounty),
		Extract:   ExtractorFunc(countyAnswerExtractor),
	},
	{
		ID:        "court_name",
		Phase:     PhaseCaseInfo,
		Text:      "What is the full name of the court handling your case?",
		ShouldAsk: askUnless(FieldCourtName),
		Extract:   FirstOf{CourtExtractor{}, raw(FieldCourtName)},
	},
	{
		ID:        "case_number",
		Phase:     PhaseCaseInfo,
		Text:      "What is the case number? It is usually printed at the top right of the first page of your court papers.",
		ShouldAsk: askUnless(FieldCaseNumber),
		Extract:   FirstOf{CaseNumberExtractor{}, ExtractorFunc(caseNumberAnswerExtractor)},
	},
	{
		ID:        "case_type",
		Phase:     PhaseCaseInfo,
		Text:      "What kind of case is this, for example family, landlord-tenant, small claims or a protection order?",
		ShouldAsk: askUnless(FieldCaseType),
		Extract:   FirstOf{CaseTypeExtractor{}, raw(FieldCaseType)},
	},

	{
		ID:        "key_facts",
		Phase:     PhaseFacts,
		Text:      "What are the most important facts the judge needs to know?",
		ShouldAsk: askUnless(FieldKeyFacts),
		Extract:   raw(FieldKeyFacts),
	},
	{
		ID:        "timeline",
		Phase:     PhaseFacts,
		Text:      "Walk me through what happened in order, with approximate dates.",
		ShouldAsk: askUnless(FieldTimeline),
		Extract:   raw(FieldTimeline),
	},
	{
		ID:        "evidence",
		Phase:     PhaseFacts,
		Text:      "What evidence do you have, such as documents, messages, photos or records?",
		ShouldAsk: askUnless(FieldEvidence),
		Extract:   raw(FieldEvidence),
	},
	{
		ID:        "witnesses",
		Phase:     PhaseFacts,
		Text:      "Is there anyone who saw what happened or can support your side?",
		ShouldAsk: askUnless(FieldWitnesses),
		Extract:   raw(FieldWitnesses),
	},
	{
		ID:        "prior_orders",
		Phase:     PhaseFacts,
		Text:      "Has the court already made any orders in this case?",
		ShouldAsk: askUnless(FieldPriorOrders),
		Extract:   raw(FieldPriorOrders),
	},
	{
		ID:        "hearing_date",
		Phase:     PhaseFacts,
		Text:      "Do you have a hearing scheduled? If so, when?",
		ShouldAsk: askUnless(FieldHearingDate),
		Extract:   FirstOf{DateExtractor{Field: FieldHearingDate}, raw(FieldHearingDate)},
	},

	{
		ID:        "legal_issues",
		Phase:     PhaseLegalAnalysis,
		Text:      "What do you see as the main issues the court has to decide?",
		ShouldAsk: askUnless(FieldLegalIssues),
		Extract:   raw(FieldLegalIssues),
	},
	{
		ID:        "opposing_arguments",
		Phase:     PhaseLegalAnalysis,
		Text:      "What is the other side arguing or asking the court for?",
		ShouldAsk: askUnless(FieldOpposingArguments),
		Extract:   raw(FieldOpposingArguments),
	},
	{
		ID:        "applicable_rules",
		Phase:     PhaseLegalAnalysis,
		Text:      "Are you aware of any laws, court rules or local rules that apply to your situation?",
		ShouldAsk: askUnless(FieldApplicableLaw),
		Extract:   raw(FieldApplicableLaw),
	},
	{
		ID:        "filing_deadline",
		Phase:     PhaseLegalAnalysis,
		Text:      "Is there a deadline for filing your document?",
		ShouldAsk: askUnless(FieldFilingDeadline),
		Extract:   FirstOf{DateExtractor{Field: FieldFilingDeadline}, raw(FieldFilingDeadline)},
	},

	{
		ID:        "goals",
		Phase:     PhaseGoals,
		Text:      "What outcome are you hoping for?",
		ShouldAsk: askUnless(FieldGoals),
		Extract:   raw(FieldGoals),
	},
	{
		ID:        "relief_requested",
		Phase:     PhaseGoals,
		Text:      "What exactly do you want the judge to order?",
		ShouldAsk: askUnless(FieldReliefRequested),
		Extract:   raw(FieldReliefRequested),
	},
	{
		ID:        "urgency",
		Phase:     PhaseGoals,
		Text:      "How urgent is this? Is anyone at risk of harm, or is there an imminent deadline?",
		ShouldAsk: askUnless(FieldUrgency),
		Extract:   raw(FieldUrgency),
	},

	{
		ID:        "document_type",
		Phase:     PhaseDocumentPrep,
		Text:      "What type of document do you need, for example a motion, declaration or response?",
		ShouldAsk: askUnless(FieldDocumentType),
		Extract:   FirstOf{DocumentTypeExtractor{}, raw(FieldDocumentType)},
	},
	{
		ID:        "additional_info",
		Phase:     PhaseDocumentPrep,
		Text:      "Is there anything else the document should include?",
		ShouldAsk: always,
		Extract:   raw(FieldAdditionalInfo),
	},
	{
		ID:        QuestionReadyToDraft,
		Phase:     PhaseDocumentPrep,
		Text:      "I have everything I need. When you are ready, generate your document.",
		ShouldAsk: always,
	},
}

// nameAnswerExtractor accepts a short direct reply like "Jane Doe".
func nameAnswerExtractor(answer string, _ *State) Update {
	a := strings.TrimSpace(strings.Trim(answer, "."))
	words := strings.Fields(a)
	if len(words) < 1 || len(words) > 5 || isNegative(a) {
		return Update{}
	}
	return Update{FieldUserName: titleCase(a)}
}

var bareCaseNumber = regexp.MustCompile(`^[A-Za-z0-9:-]*\d[A-Za-z0-9:-]*$`)

// caseNumberAnswerExtractor accepts a single token containing a digit as the
// case number when the dedicated question is answered.
func caseNumberAnswerExtractor(answer string, _ *State) Update {
	a := strings.TrimSpace(strings.Trim(strings.TrimSpace(answer), "."))
	if !bareCaseNumber.MatchString(a) {
		return Update{}
	}
	return Update{FieldCaseNumber: strings.ToUpper(a)}
}
