package evaluations

// StreamEvent is one unit of the ordered, tagged event sequence delivered to
// a live consumer. Events exist only on the wire; they are never persisted.
type StreamEvent struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

const (
	EventSummary       = "summary"
	EventQuestion      = "question"
	EventPhase         = "phase"
	EventPhaseComplete = "phase_complete"
	EventComplete      = "complete"
	EventError         = "error"
	EventInfo          = "info"
)

// SummaryPayload carries the incremental pre-analysis summary.
type SummaryPayload struct {
	Text     string `json:"text"`
	Complete bool   `json:"complete"`
}

// QuestionPayload carries one answer increment or its final state, keyed by
// question id so consumers can patch in place instead of appending.
type QuestionPayload struct {
	QuestionID string `json:"questionId"`
	Phase      int    `json:"phase"`
	Category   string `json:"category"`
	Question   string `json:"question"`
	Answer     string `json:"answer"`
	Complete   bool   `json:"complete"`
	Score      *int   `json:"score,omitempty"`
}

// PhasePayload announces a phase beginning.
type PhasePayload struct {
	Phase     int `json:"phase"`
	Questions int `json:"questions"`
}

// PhaseCompletePayload carries a sealed phase result.
type PhaseCompletePayload struct {
	Phase  int         `json:"phase"`
	Result PhaseResult `json:"result"`
}

// CompletePayload is the successful terminal event. GeneratedWords doubles
// as the billing signal for the metering collaborator.
type CompletePayload struct {
	EvaluationID   string   `json:"evaluationId"`
	FinalScore     *float64 `json:"finalScore,omitempty"`
	GeneratedWords int      `json:"generatedWords"`
}

// ErrorPayload is the failing terminal event.
type ErrorPayload struct {
	EvaluationID string `json:"evaluationId,omitempty"`
	Kind         string `json:"kind"`
	Message      string `json:"message"`
}

// InfoPayload carries advisory, non-structural notices.
type InfoPayload struct {
	EvaluationID string `json:"evaluationId,omitempty"`
	Message      string `json:"message"`
}
