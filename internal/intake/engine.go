package intake

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrEmptyAnswer       = errors.New("intake: answer is empty")
	ErrInterviewComplete = errors.New("intake: interview already complete")
	ErrUnknownQuestion   = errors.New("intake: unknown question")
)

// Response records one answer and the fields it filled.
type Response struct {
	QuestionID      string    `json:"questionId"`
	Answer          string    `json:"answer"`
	ExtractedFields Update    `json:"extractedFields,omitempty"`
	AnsweredAt      time.Time `json:"answeredAt"`
}

// State is the full interview state. It is plain data so it can be persisted
// as JSON by a session store.
type State struct {
	CurrentPhase        Phase      `json:"currentPhase"`
	CurrentQuestion     string     `json:"currentQuestion"`
	CompletedQuestions  []string   `json:"completedQuestions"`
	Responses           []Response `json:"responses"`
	Fields              Fields     `json:"fields"`
	IsComplete          bool       `json:"isComplete"`
	CanGenerateDocument bool       `json:"canGenerateDocument"`
	StartedAt           time.Time  `json:"startedAt"`
	UpdatedAt           time.Time  `json:"updatedAt"`
}

func (st *State) completed(id string) bool {
	for _, c := range st.CompletedQuestions {
		if c == id {
			return true
		}
	}
	return false
}

// Progress summarises where an interview stands.
type Progress struct {
	Phase          Phase  `json:"phase"`
	PhaseName      string `json:"phaseName"`
	TotalPhases    int    `json:"totalPhases"`
	Answered       int    `json:"answered"`
	TotalQuestions int    `json:"totalQuestions"`
	Percent        int    `json:"percent"`
	IsComplete     bool   `json:"isComplete"`
}

// Engine drives a fixed question list. It holds no per-session data and is
// safe for concurrent use.
type Engine struct {
	questions []Question
	index     map[string]int
	fallback  Extractor
	now       func() time.Time
}

func NewEngine() *Engine {
	return NewEngineWithQuestions(DefaultQuestions, DefaultExtractor)
}

// NewEngineWithQuestions builds an engine over a custom script. The last
// question is the terminal one and is always asked.
func NewEngineWithQuestions(questions []Question, fallback Extractor) *Engine {
	if len(questions) == 0 {
		panic("intake: empty question list")
	}
	index := make(map[string]int, len(questions))
	for i, q := range questions {
		if _, dup := index[q.ID]; dup {
			panic(fmt.Sprintf("intake: duplicate question id %q", q.ID))
		}
		index[q.ID] = i
	}
	if fallback == nil {
		fallback = Chain{}
	}
	return &Engine{
		questions: questions,
		index:     index,
		fallback:  fallback,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (e *Engine) Questions() []Question {
	return e.questions
}

func (e *Engine) Question(id string) (*Question, bool) {
	i, ok := e.index[id]
	if !ok {
		return nil, false
	}
	return &e.questions[i], true
}

// Current returns the active question of st.
func (e *Engine) Current(st *State) (*Question, error) {
	q, ok := e.Question(st.CurrentQuestion)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownQuestion, st.CurrentQuestion)
	}
	return q, nil
}

// Start returns a fresh state positioned on the first askable question.
func (e *Engine) Start() *State {
	now := e.now()
	st := &State{
		Fields:    Fields{},
		StartedAt: now,
		UpdatedAt: now,
	}
	e.moveTo(st, e.nextFrom(st, 0))
	return st
}

// Answer applies answer to the active question and advances st to the next
// question whose ShouldAsk is true. Fields already set are never overwritten.
func (e *Engine) Answer(st *State, answer string) (*Question, error) {
	if st.IsComplete {
		return nil, ErrInterviewComplete
	}
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return nil, ErrEmptyAnswer
	}
	if st.Fields == nil {
		st.Fields = Fields{}
	}

	idx, ok := e.index[st.CurrentQuestion]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownQuestion, st.CurrentQuestion)
	}
	q := &e.questions[idx]

	found := Update{}
	if q.Extract != nil {
		found.Merge(q.Extract.Extract(answer, st))
	}
	found.Merge(e.fallback.Extract(answer, st))

	applied := Update{}
	for k, v := range found {
		if st.Fields.Set(k, v) {
			applied[k] = v
		}
	}

	st.Responses = append(st.Responses, Response{
		QuestionID:      q.ID,
		Answer:          answer,
		ExtractedFields: applied,
		AnsweredAt:      e.now(),
	})
	if !st.completed(q.ID) {
		st.CompletedQuestions = append(st.CompletedQuestions, q.ID)
	}

	next := e.nextFrom(st, idx+1)
	e.moveTo(st, next)
	return &e.questions[next], nil
}

// nextFrom returns the index of the first askable question at or after from.
// The terminal question is always a candidate.
func (e *Engine) nextFrom(st *State, from int) int {
	last := len(e.questions) - 1
	for i := from; i < last; i++ {
		q := &e.questions[i]
		if q.ShouldAsk == nil || q.ShouldAsk(st) {
			return i
		}
	}
	return last
}

func (e *Engine) moveTo(st *State, idx int) {
	q := &e.questions[idx]
	st.CurrentQuestion = q.ID
	if q.Phase > st.CurrentPhase {
		st.CurrentPhase = q.Phase
	}
	if idx == len(e.questions)-1 {
		st.IsComplete = true
	}
	st.CanGenerateDocument = st.IsComplete && st.Fields.Has(FieldDocumentType)
	st.UpdatedAt = e.now()
}

func (e *Engine) Progress(st *State) Progress {
	total := len(e.questions)
	p := Progress{
		Phase:          st.CurrentPhase,
		PhaseName:      st.CurrentPhase.Name(),
		TotalPhases:    int(PhaseDocumentPrep),
		Answered:       len(st.CompletedQuestions),
		TotalQuestions: total,
		IsComplete:     st.IsComplete,
	}
	if st.IsComplete {
		p.Percent = 100
	} else if idx, ok := e.index[st.CurrentQuestion]; ok && total > 1 {
		p.Percent = idx * 100 / (total - 1)
	}
	return p
}
