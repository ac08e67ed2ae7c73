package evaluations

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"insight-backend/internal/questions"
)

type captureWriter struct {
	events  []StreamEvent
	failAt  int
	written int
}

func (w *captureWriter) Write(event StreamEvent) error {
	w.written++
	if w.failAt > 0 && w.written >= w.failAt {
		return errors.New("consumer gone")
	}
	w.events = append(w.events, event)
	return nil
}

func TestAggregatorSingleTerminalEvent(t *testing.T) {
	w := &captureWriter{}
	agg := NewAggregator(w)

	q := questions.Question{ID: "q1", Category: "reasoning", Prompt: "Assess."}
	agg.PhaseStarted(1, 1)
	agg.QuestionDelta(1, q, "partial")
	score := 88
	agg.QuestionComplete(1, q, "partial answer", &score)
	agg.PhaseSealed(PhaseResult{Phase: 1, Sealed: true})
	agg.Completed(&Evaluation{ID: "ev-1", GeneratedWords: 2})

	// Everything after the terminal event must be dropped.
	agg.Failed("ev-1", ErrorCodeBackendUnavailable, "late failure")
	agg.Info("late info")

	types := make([]string, 0, len(w.events))
	for _, e := range w.events {
		types = append(types, e.Type)
	}
	want := []string{EventPhase, EventQuestion, EventQuestion, EventPhaseComplete, EventComplete}
	if len(types) != len(want) {
		t.Fatalf("event types %v, want %v", types, want)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Fatalf("event types %v, want %v", types, want)
		}
	}
}

func TestAggregatorErrorIsTerminal(t *testing.T) {
	w := &captureWriter{}
	agg := NewAggregator(w)

	agg.Failed("ev-1", ErrorCodeCancelled, "cancelled by caller")
	agg.Completed(&Evaluation{ID: "ev-1"})

	if len(w.events) != 1 || w.events[0].Type != EventError {
		t.Fatalf("expected a single error event, got %v", w.events)
	}
	payload, ok := w.events[0].Data.(ErrorPayload)
	if !ok || payload.Kind != ErrorCodeCancelled {
		t.Fatalf("unexpected error payload %+v", w.events[0].Data)
	}
}

func TestAggregatorMutesOnWriteFailure(t *testing.T) {
	w := &captureWriter{failAt: 2}
	agg := NewAggregator(w)

	agg.PhaseStarted(1, 2)
	agg.Info("this write fails")
	agg.Info("already muted")
	agg.Completed(&Evaluation{ID: "ev-1"})

	if len(w.events) != 1 {
		t.Fatalf("expected delivery to stop after the failed write, got %v", w.events)
	}
	// Only the failing write reaches the writer; once muted nothing does.
	if w.written != 2 {
		t.Fatalf("expected 2 write attempts, got %d", w.written)
	}
}

func TestLineWriterEncoding(t *testing.T) {
	var buf bytes.Buffer
	lw := NewLineWriter(&buf)

	if err := lw.Write(StreamEvent{Type: EventInfo, Data: InfoPayload{Message: "hello"}}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := lw.Write(StreamEvent{Type: EventComplete, Data: CompletePayload{EvaluationID: "ev-1", GeneratedWords: 7}}); err != nil {
		t.Fatalf("Write: %v", err)
	}

	scanner := bufio.NewScanner(&buf)
	var lines []map[string]any
	for scanner.Scan() {
		var decoded map[string]any
		if err := json.Unmarshal(scanner.Bytes(), &decoded); err != nil {
			t.Fatalf("line is not valid JSON: %v", err)
		}
		lines = append(lines, decoded)
	}
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	if lines[0]["type"] != EventInfo || lines[1]["type"] != EventComplete {
		t.Fatalf("unexpected line types: %v", lines)
	}
	data, ok := lines[1]["data"].(map[string]any)
	if !ok || data["evaluationId"] != "ev-1" {
		t.Fatalf("unexpected complete payload: %v", lines[1])
	}
}
