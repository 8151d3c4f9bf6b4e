package intake

import (
	"regexp"
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Extractor pulls structured values out of a free-text answer. Extractors
// never fail: finding nothing returns an empty Update.
type Extractor interface {
	Extract(answer string, st *State) Update
}

// ExtractorFunc adapts a function to Extractor.
type ExtractorFunc func(answer string, st *State) Update

func (f ExtractorFunc) Extract(answer string, st *State) Update {
	return f(answer, st)
}

// Chain runs every extractor and keeps the first value found for each field.
type Chain []Extractor

func (c Chain) Extract(answer string, st *State) Update {
	out := Update{}
	for _, e := range c {
		out.Merge(e.Extract(answer, st))
	}
	return out
}

// FirstOf returns the first non-empty Update.
type FirstOf []Extractor

func (c FirstOf) Extract(answer string, st *State) Update {
	for _, e := range c {
		if u := e.Extract(answer, st); len(u) > 0 {
			return u
		}
	}
	return Update{}
}

// DefaultExtractor is run on every answer after the question's own
// extractor, so details mentioned early pre-fill later questions.
var DefaultExtractor Extractor = Chain{
	CaseNumberExtractor{},
	CountyExtractor{},
	StateExtractor{},
	CourtExtractor{},
	NameExtractor{},
	RoleExtractor{},
	CaseTypeExtractor{},
	DocumentTypeExtractor{},
}

// FieldExtractor stores the whole trimmed answer in Field.
type FieldExtractor struct {
	Field Field
}

func (e FieldExtractor) Extract(answer string, _ *State) Update {
	answer = strings.TrimSpace(answer)
	if answer == "" || isNegative(answer) {
		return Update{}
	}
	return Update{e.Field: answer}
}

var negativeAnswers = map[string]bool{
	"no": true, "none": true, "n/a": true, "na": true, "nope": true,
	"not yet": true, "i don't know": true, "i dont know": true, "unknown": true, "skip": true,
}

func isNegative(answer string) bool {
	a := strings.ToLower(strings.Trim(strings.TrimSpace(answer), ".!"))
	return negativeAnswers[a]
}

var caseNumberPatterns = []*regexp.Regexp{
	// Washington superior court: 23-2-01234-5
	regexp.MustCompile(`\b(\d{2}-\d-\d{5}-\d{1,2})\b`),
	// Federal district: 2:23-cv-01234
	regexp.MustCompile(`\b(\d:\d{2}-[a-zA-Z]{2,3}-\d{3,6})\b`),
	// Generic docket numbers with a 4-digit year: 2023-CV-001234, CV-2024-0012
	regexp.MustCompile(`\b((?:[A-Z]{1,4}-)?\d{4}-[A-Z]{1,4}-\d{2,8}|[A-Z]{1,4}-\d{4}-\d{2,8})\b`),
	// "case number ABC123", "case no. 12345"
	regexp.MustCompile(`(?i)\bcase\s*(?:number|no\.?|#)\s*(?:is\s*)?:?\s*([A-Z0-9][A-Z0-9:-]*\d[A-Z0-9:-]*)`),
}

type CaseNumberExtractor struct{}

func (CaseNumberExtractor) Extract(answer string, _ *State) Update {
	for _, re := range caseNumberPatterns {
		if m := re.FindStringSubmatch(answer); m != nil {
			return Update{FieldCaseNumber: strings.ToUpper(m[1])}
		}
	}
	return Update{}
}

var countyPattern = regexp.MustCompile(`\b([A-Z][a-zA-Z.'-]+(?:\s+[A-Z][a-zA-Z.'-]+)?)\s+County\b`)

type CountyExtractor struct{}

func (CountyExtractor) Extract(answer string, _ *State) Update {
	m := countyPattern.FindStringSubmatch(answer)
	if m == nil {
		return Update{}
	}
	name := m[1]
	// "In King County" or "Filed King County" should not keep the leading word.
	if parts := strings.Fields(name); len(parts) == 2 && countyLeadWords[strings.ToLower(parts[0])] {
		name = parts[1]
	}
	return Update{FieldCounty: name}
}

var countyLeadWords = map[string]bool{
	"in": true, "the": true, "filed": true, "filing": true, "from": true, "at": true, "of": true, "for": true,
}

// countyAnswerExtractor handles a direct reply to the county question such as
// "King" or "king county".
func countyAnswerExtractor(answer string, st *State) Update {
	if u := (CountyExtractor{}).Extract(answer, st); len(u) > 0 {
		return u
	}
	a := strings.TrimSpace(strings.Trim(answer, "."))
	a = strings.TrimSpace(strings.TrimSuffix(strings.TrimSuffix(a, " County"), " county"))
	if a == "" || isNegative(a) || len(strings.Fields(a)) > 3 {
		return Update{}
	}
	return Update{FieldCounty: titleCase(a)}
}

var usStates = []string{
	"Alabama", "Alaska", "Arizona", "Arkansas", "California", "Colorado", "Connecticut", "Delaware",
	"District of Columbia", "Florida", "Georgia", "Hawaii", "Idaho", "Illinois", "Indiana", "Iowa",
	"Kansas", "Kentucky", "Louisiana", "Maine", "Maryland", "Massachusetts", "Michigan", "Minnesota",
	"Mississippi", "Missouri", "Montana", "Nebraska", "Nevada", "New Hampshire", "New Jersey",
	"New Mexico", "New York", "North Carolina", "North Dakota", "Ohio", "Oklahoma", "Oregon",
	"Pennsylvania", "Rhode Island", "South Carolina", "South Dakota", "Tennessee", "Texas", "Utah",
	"Vermont", "Virginia", "Washington", "West Virginia", "Wisconsin", "Wyoming",
}

var statePattern = func() *regexp.Regexp {
	names := append([]string(nil), usStates...)
	// Longest first so "West Virginia" wins over "Virginia".
	sort.Slice(names, func(i, j int) bool { return len(names[i]) > len(names[j]) })
	for i, n := range names {
		names[i] = strings.ReplaceAll(regexp.QuoteMeta(n), " ", `\s+`)
	}
	return regexp.MustCompile(`(?i)\b(` + strings.Join(names, "|") + `)\b`)
}()

// StateExtractor matches full state names anywhere in the answer.
//
// Known limitation: there is no disambiguation, so "George Washington" or
// "Washington County, Oregon" both yield Washington.
type StateExtractor struct{}

func (StateExtractor) Extract(answer string, _ *State) Update {
	m := statePattern.FindStringSubmatch(answer)
	if m == nil {
		return Update{}
	}
	return Update{FieldState: canonicalState(m[1])}
}

func canonicalState(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	for _, name := range usStates {
		if strings.EqualFold(name, s) {
			return name
		}
	}
	return s
}

var courtPattern = regexp.MustCompile(`\b((?:[A-Z][a-zA-Z.'-]+\s+){0,4}(?:Superior|District|Circuit|Family|Municipal|Probate|Juvenile|Small Claims|Supreme|Justice|County|Housing|Bankruptcy)\s+Court(?:\s+(?:of|for)\s+(?:the\s+)?[A-Z][a-zA-Z]+(?:\s+(?:of\s+)?[A-Z][a-zA-Z]+){0,3})?)`)

type CourtExtractor struct{}

func (CourtExtractor) Extract(answer string, _ *State) Update {
	m := courtPattern.FindStringSubmatch(answer)
	if m == nil {
		return Update{}
	}
	name := strings.TrimSpace(m[1])
	if parts := strings.Fields(name); len(parts) > 2 && countyLeadWords[strings.ToLower(parts[0])] {
		name = strings.Join(parts[1:], " ")
	}
	return Update{FieldCourtName: name}
}

var (
	myNamePattern = regexp.MustCompile(`(?i:\bmy\s+(?:full\s+)?name\s+is)\s+([A-Z][a-zA-Z'.-]+(?:\s+[A-Z][a-zA-Z'.-]+){0,3})`)
	iAmPattern    = regexp.MustCompile(`\bI(?:'m|\s+am)\s+([A-Z][a-z'-]+\s+(?:[A-Z]\.\s+)?[A-Z][a-z'-]+(?:\s+[A-Z][a-z'-]+)?)`)
)

type NameExtractor struct{}

func (NameExtractor) Extract(answer string, _ *State) Update {
	if m := myNamePattern.FindStringSubmatch(answer); m != nil {
		return Update{FieldUserName: strings.TrimRight(m[1], ".")}
	}
	if m := iAmPattern.FindStringSubmatch(answer); m != nil && !statePattern.MatchString(m[1]) {
		return Update{FieldUserName: m[1]}
	}
	return Update{}
}

var rolePatterns = []struct {
	re   *regexp.Regexp
	role string
}{
	{regexp.MustCompile(`(?i)\b(?:i\s+am|i'm)\s+(?:the\s+)?petitioner\b`), "petitioner"},
	{regexp.MustCompile(`(?i)\b(?:i\s+am|i'm)\s+(?:the\s+)?respondent\b`), "respondent"},
	{regexp.MustCompile(`(?i)\b(?:i\s+am|i'm)\s+(?:the\s+)?plaintiff\b`), "plaintiff"},
	{regexp.MustCompile(`(?i)\b(?:i\s+am|i'm)\s+(?:the\s+)?defendant\b`), "defendant"},
	{regexp.MustCompile(`(?i)\b(?:i\s+am|i'm)\s+(?:being\s+)?(?:sued|evicted)\b|\bsued\s+me\b|\bsuing\s+me\b`), "defendant"},
	{regexp.MustCompile(`(?i)\b(?:i\s+am|i'm|i\s+want\s+to\s+be)\s+suing\b|\bi\s+(?:filed|want\s+to\s+file)\s+(?:a\s+)?(?:lawsuit|complaint)\b`), "plaintiff"},
}

type RoleExtractor struct{}

func (RoleExtractor) Extract(answer string, _ *State) Update {
	for _, p := range rolePatterns {
		if p.re.MatchString(answer) {
			return Update{FieldUserRole: p.role}
		}
	}
	return Update{}
}

// roleAnswerExtractor accepts a bare role word as a direct reply.
func roleAnswerExtractor(answer string, st *State) Update {
	if u := (RoleExtractor{}).Extract(answer, st); len(u) > 0 {
		return u
	}
	a := strings.ToLower(answer)
	for _, role := range []string{"petitioner", "respondent", "plaintiff", "defendant"} {
		if strings.Contains(a, role) {
			return Update{FieldUserRole: role}
		}
	}
	return Update{}
}

var caseTypeKeywords = []struct {
	re       *regexp.Regexp
	caseType string
}{
	{regexp.MustCompile(`(?i)\b(?:protection|restraining|anti-harassment|no[- ]contact)\s+order\b`), "protection order"},
	{regexp.MustCompile(`(?i)\b(?:divorce|dissolution|custody|parenting\s+plan|child\s+support|visitation)\b`), "family"},
	{regexp.MustCompile(`(?i)\b(?:evict\w*|landlord|tenant|unlawful\s+detainer|security\s+deposit)\b`), "landlord-tenant"},
	{regexp.MustCompile(`(?i)\bsmall\s+claims\b`), "small claims"},
	{regexp.MustCompile(`(?i)\b(?:debt\s+collect\w*|collection\s+agency|credit\s+card\s+debt)\b`), "debt collection"},
	{regexp.MustCompile(`(?i)\b(?:wrongful(?:ly)?\s+(?:termination|terminated|fired)|employer|wage\s+theft)\b`), "employment"},
}

type CaseTypeExtractor struct{}

func (CaseTypeExtractor) Extract(answer string, _ *State) Update {
	for _, k := range caseTypeKeywords {
		if k.re.MatchString(answer) {
			return Update{FieldCaseType: k.caseType}
		}
	}
	return Update{}
}

var documentTypeKeywords = []struct {
	re      *regexp.Regexp
	docType string
}{
	{regexp.MustCompile(`(?i)\bmotion\s+to\s+dismiss\b`), "motion to dismiss"},
	{regexp.MustCompile(`(?i)\bmotion\s+(?:for|to)\s+reconsider\w*\b`), "motion for reconsideration"},
	{regexp.MustCompile(`(?i)\bmotion\s+to\s+(?:modify|change)\b`), "motion to modify"},
	{regexp.MustCompile(`(?i)\bmotion\s+for\s+continuance\b|\bcontinue\s+the\s+hearing\b`), "motion for continuance"},
	{regexp.MustCompile(`(?i)\bdeclaration\b`), "declaration"},
	{regexp.MustCompile(`(?i)\b(?:response|opposition)\s+to\b`), "response"},
	{regexp.MustCompile(`(?i)\banswer\s+(?:to\s+)?(?:the\s+)?complaint\b`), "answer"},
	{regexp.MustCompile(`(?i)\bpetition\b`), "petition"},
	{regexp.MustCompile(`(?i)\bcomplaint\b`), "complaint"},
	{regexp.MustCompile(`(?i)\bmotion\b`), "motion"},
}

type DocumentTypeExtractor struct{}

func (DocumentTypeExtractor) Extract(answer string, _ *State) Update {
	for _, k := range documentTypeKeywords {
		if k.re.MatchString(answer) {
			return Update{FieldDocumentType: k.docType}
		}
	}
	return Update{}
}

var datePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b((?:jan|feb|mar|apr|may|jun|jul|aug|sep|sept|oct|nov|dec)[a-z]*\.?\s+\d{1,2}(?:st|nd|rd|th)?(?:,?\s+\d{4})?)\b`),
	regexp.MustCompile(`\b(\d{1,2}/\d{1,2}/\d{2,4})\b`),
	regexp.MustCompile(`\b(\d{4}-\d{2}-\d{2})\b`),
}

// DateExtractor stores the first date-looking phrase in Field.
type DateExtractor struct {
	Field Field
}

func (e DateExtractor) Extract(answer string, _ *State) Update {
	for _, re := range datePatterns {
		if m := re.FindStringSubmatch(answer); m != nil {
			return Update{e.Field: m[1]}
		}
	}
	return Update{}
}

// titleCase collapses whitespace and capitalizes each word. A Caser is not
// safe for concurrent use, so one is built per call.
func titleCase(s string) string {
	return cases.Title(language.Und).String(strings.Join(strings.Fields(s), " "))
}
