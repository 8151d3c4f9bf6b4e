package intake

import "sort"

// Field names one piece of case information gathered during the interview.
type Field string

const (
	FieldCaseNumber        Field = "caseNumber"
	FieldCounty            Field = "county"
	FieldState             Field = "state"
	FieldCourtName         Field = "courtName"
	FieldUserName          Field = "userName"
	FieldUserRole          Field = "userRole"
	FieldOpposingParty     Field = "opposingParty"
	FieldCaseType          Field = "caseType"
	FieldKeyFacts          Field = "keyFacts"
	FieldTimeline          Field = "timeline"
	FieldEvidence          Field = "evidence"
	FieldWitnesses         Field = "witnesses"
	FieldPriorOrders       Field = "priorOrders"
	FieldHearingDate       Field = "hearingDate"
	FieldLegalIssues       Field = "legalIssues"
	FieldOpposingArguments Field = "opposingArguments"
	FieldApplicableLaw     Field = "applicableLaw"
	FieldFilingDeadline    Field = "filingDeadline"
	FieldGoals             Field = "goals"
	FieldReliefRequested   Field = "reliefRequested"
	FieldUrgency           Field = "urgency"
	FieldDocumentType      Field = "documentType"
	FieldAdditionalInfo    Field = "additionalInfo"
)

// Fields accumulates extracted values. A field is written at most once.
type Fields map[Field]string

func (f Fields) Has(key Field) bool {
	return f[key] != ""
}

func (f Fields) Get(key Field) string {
	return f[key]
}

// Set stores value only when key is still empty. It reports whether the
// value was stored.
func (f Fields) Set(key Field, value string) bool {
	if value == "" || f.Has(key) {
		return false
	}
	f[key] = value
	return true
}

// Keys returns the populated field names in a stable order.
func (f Fields) Keys() []Field {
	keys := make([]Field, 0, len(f))
	for k, v := range f {
		if v != "" {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// Update is the set of values an extractor found in one answer.
type Update map[Field]string

// Merge copies entries from other that are not already present.
func (u Update) Merge(other Update) {
	for k, v := range other {
		if _, ok := u[k]; !ok && v != "" {
			u[k] = v
		}
	}
}
