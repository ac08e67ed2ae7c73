package evaluations

import (
	"errors"
	"strings"
	"time"

	"insight-backend/internal/llm"
	"insight-backend/internal/questions"
)

const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Mode defines the supported evaluation modes.
type Mode string

const (
	ModeSinglePhase Mode = "single-phase"
	ModeMultiPhase  Mode = "multi-phase"
)

// ParseMode normalizes and validates a mode string.
func ParseMode(raw string) (Mode, error) {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	if normalized == "" {
		return "", errors.New("evaluation mode is required")
	}
	switch Mode(normalized) {
	case ModeSinglePhase:
		return ModeSinglePhase, nil
	case ModeMultiPhase:
		return ModeMultiPhase, nil
	default:
		return "", errors.New("evaluation mode is invalid")
	}
}

// QuestionAnswer is one question's accumulated answer within a phase.
// It is mutated only by the running engine while its answer streams in and
// becomes immutable once Complete is set.
type QuestionAnswer struct {
	QuestionID string `json:"questionId"`
	Category   string `json:"category"`
	Question   string `json:"question"`
	Answer     string `json:"answer"`
	Complete   bool   `json:"complete"`
	// Score is nil until scoring ran. Extracted reports whether the value
	// came from the answer text; false means the neutral fallback was
	// applied because no pattern matched.
	Score     *int `json:"score,omitempty"`
	Extracted bool `json:"extracted"`
}

// PhaseResult is one sealed round of question answers.
type PhaseResult struct {
	Phase          int              `json:"phase"`
	Answers        []QuestionAnswer `json:"answers"`
	AggregateScore *float64         `json:"aggregateScore,omitempty"`
	StartedAt      time.Time        `json:"startedAt"`
	CompletedAt    time.Time        `json:"completedAt"`
	Sealed         bool             `json:"sealed"`
}

// Evaluation is one analysis job. The running engine owns it exclusively
// until it reaches a terminal status, at which point an immutable snapshot
// is handed to the repository.
type Evaluation struct {
	ID          string           `json:"id"`
	PrincipalID string           `json:"principalId"`
	Domain      questions.Domain `json:"domain"`
	Mode        Mode             `json:"mode"`
	Backend     llm.Backend      `json:"backend"`
	Model       string           `json:"model"`
	Status      string           `json:"status"`

	// Input text and context are transient run inputs, not persisted.
	InputText string `json:"-"`
	Context   string `json:"-"`
	// Summarize is set when the input was chunked; the engine then runs
	// the leading summary step over the selected chunks.
	Summarize bool `json:"-"`

	InputWords     int           `json:"inputWords"`
	GeneratedWords int           `json:"generatedWords"`
	FinalScore     *float64      `json:"finalScore,omitempty"`
	Phases         []PhaseResult `json:"phases,omitempty"`

	ErrorCode    string `json:"errorCode,omitempty"`
	ErrorMessage string `json:"errorMessage,omitempty"`

	CreatedAt   time.Time  `json:"createdAt"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}
