package evaluations

import (
	"encoding/json"
	"io"
	"net/http"
	"sync"

	"insight-backend/internal/questions"
	"insight-backend/internal/shared/telemetry"
)

// EventSink receives the engine's lifecycle callbacks.
type EventSink interface {
	SummaryDelta(text string)
	SummaryComplete(text string)
	PhaseStarted(phase, questionCount int)
	QuestionDelta(phase int, q questions.Question, answerSoFar string)
	QuestionComplete(phase int, q questions.Question, answer string, score *int)
	PhaseSealed(result PhaseResult)
	Info(message string)
	Completed(ev *Evaluation)
	Failed(evaluationID, kind, message string)
}

// EventWriter delivers encoded events to the consumer.
type EventWriter interface {
	Write(event StreamEvent) error
}

// Aggregator turns engine callbacks into the ordered StreamEvent sequence
// for exactly one consumer. It guarantees exactly one terminal event and
// silence afterwards. A failing writer (consumer gone) mutes the feed
// without disturbing the run: delivery is best-effort by design.
type Aggregator struct {
	mu       sync.Mutex
	writer   EventWriter
	terminal bool
	muted    bool
}

// NewAggregator wraps an EventWriter.
func NewAggregator(writer EventWriter) *Aggregator {
	return &Aggregator{writer: writer}
}

func (a *Aggregator) emit(event StreamEvent, isTerminal bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.terminal {
		return
	}
	if isTerminal {
		a.terminal = true
	}
	if a.muted {
		return
	}
	if err := a.writer.Write(event); err != nil {
		a.muted = true
		telemetry.Warn("stream.consumer_lost", map[string]any{
			"event_type": event.Type,
			"error":      err.Error(),
		})
	}
}

func (a *Aggregator) SummaryDelta(text string) {
	a.emit(StreamEvent{Type: EventSummary, Data: SummaryPayload{Text: text}}, false)
}

func (a *Aggregator) SummaryComplete(text string) {
	a.emit(StreamEvent{Type: EventSummary, Data: SummaryPayload{Text: text, Complete: true}}, false)
}

func (a *Aggregator) PhaseStarted(phase, questionCount int) {
	a.emit(StreamEvent{Type: EventPhase, Data: PhasePayload{Phase: phase, Questions: questionCount}}, false)
}

func (a *Aggregator) QuestionDelta(phase int, q questions.Question, answerSoFar string) {
	a.emit(StreamEvent{Type: EventQuestion, Data: QuestionPayload{
		QuestionID: q.ID,
		Phase:      phase,
		Category:   q.Category,
		Question:   q.Prompt,
		Answer:     answerSoFar,
	}}, false)
}

func (a *Aggregator) QuestionComplete(phase int, q questions.Question, answer string, score *int) {
	a.emit(StreamEvent{Type: EventQuestion, Data: QuestionPayload{
		QuestionID: q.ID,
		Phase:      phase,
		Category:   q.Category,
		Question:   q.Prompt,
		Answer:     answer,
		Complete:   true,
		Score:      score,
	}}, false)
}

func (a *Aggregator) PhaseSealed(result PhaseResult) {
	a.emit(StreamEvent{Type: EventPhaseComplete, Data: PhaseCompletePayload{
		Phase:  result.Phase,
		Result: result,
	}}, false)
}

func (a *Aggregator) Info(message string) {
	a.emit(StreamEvent{Type: EventInfo, Data: InfoPayload{Message: message}}, false)
}

// Started announces the evaluation id as the first event on the wire so the
// consumer can address cancel and fetch calls.
func (a *Aggregator) Started(evaluationID string) {
	a.emit(StreamEvent{Type: EventInfo, Data: InfoPayload{
		EvaluationID: evaluationID,
		Message:      "evaluation started",
	}}, false)
}

func (a *Aggregator) Completed(ev *Evaluation) {
	a.emit(StreamEvent{Type: EventComplete, Data: CompletePayload{
		EvaluationID:   ev.ID,
		FinalScore:     ev.FinalScore,
		GeneratedWords: ev.GeneratedWords,
	}}, true)
}

func (a *Aggregator) Failed(evaluationID, kind, message string) {
	a.emit(StreamEvent{Type: EventError, Data: ErrorPayload{
		EvaluationID: evaluationID,
		Kind:         kind,
		Message:      message,
	}}, true)
}

var _ EventSink = (*Aggregator)(nil)

// LineWriter encodes each event as one self-describing JSON line and
// flushes after every write so consumers see increments immediately.
type LineWriter struct {
	mu      sync.Mutex
	w       io.Writer
	flusher http.Flusher
}

// NewLineWriter wraps an io.Writer; if it also implements http.Flusher the
// writer flushes per event.
func NewLineWriter(w io.Writer) *LineWriter {
	flusher, _ := w.(http.Flusher)
	return &LineWriter{w: w, flusher: flusher}
}

// Write encodes one event as a JSON line.
func (lw *LineWriter) Write(event StreamEvent) error {
	lw.mu.Lock()
	defer lw.mu.Unlock()
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	if _, err := lw.w.Write(append(data, '\n')); err != nil {
		return err
	}
	if lw.flusher != nil {
		lw.flusher.Flush()
	}
	return nil
}
