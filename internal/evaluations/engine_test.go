package evaluations

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"insight-backend/internal/llm"
	"insight-backend/internal/questions"
)

type scriptedStream struct {
	chunks []string
	pos    int
}

func (s *scriptedStream) Recv() (string, error) {
	if s.pos >= len(s.chunks) {
		return "", io.EOF
	}
	chunk := s.chunks[s.pos]
	s.pos++
	return chunk, nil
}

func (s *scriptedStream) Close() error { return nil }

// scriptedClient returns canned answers in call order and records every
// prompt it saw.
type scriptedClient struct {
	answers []string
	errs    map[int]error
	onCall  func(call int)

	prompts []string
}

func (c *scriptedClient) take(ctx context.Context, in llm.GenerateInput) (string, error) {
	call := len(c.prompts)
	c.prompts = append(c.prompts, in.Prompt)
	if c.onCall != nil {
		c.onCall(call)
	}
	if err, ok := c.errs[call]; ok {
		return "", err
	}
	if call >= len(c.answers) {
		return "", fmt.Errorf("scripted client exhausted at call %d", call)
	}
	return c.answers[call], nil
}

func (c *scriptedClient) Generate(ctx context.Context, in llm.GenerateInput) (string, error) {
	return c.take(ctx, in)
}

func (c *scriptedClient) StreamGenerate(ctx context.Context, in llm.GenerateInput) (llm.Stream, error) {
	answer, err := c.take(ctx, in)
	if err != nil {
		return nil, err
	}
	// Split in two so deltas actually accumulate.
	mid := len(answer) / 2
	return &scriptedStream{chunks: []string{answer[:mid], answer[mid:]}}, nil
}

// recordingSink captures the callback sequence as compact tags.
type recordingSink struct {
	events []string
}

func (r *recordingSink) SummaryDelta(string) { r.events = append(r.events, "summary_delta") }
func (r *recordingSink) SummaryComplete(string) {
	r.events = append(r.events, "summary_complete")
}
func (r *recordingSink) PhaseStarted(phase, n int) {
	r.events = append(r.events, fmt.Sprintf("phase:%d:%d", phase, n))
}
func (r *recordingSink) QuestionDelta(phase int, q questions.Question, _ string) {
	r.events = append(r.events, fmt.Sprintf("delta:%d:%s", phase, q.ID))
}
func (r *recordingSink) QuestionComplete(phase int, q questions.Question, _ string, _ *int) {
	r.events = append(r.events, fmt.Sprintf("question:%d:%s", phase, q.ID))
}
func (r *recordingSink) PhaseSealed(result PhaseResult) {
	r.events = append(r.events, fmt.Sprintf("phase_complete:%d", result.Phase))
}
func (r *recordingSink) Info(string)               { r.events = append(r.events, "info") }
func (r *recordingSink) Completed(*Evaluation)     { r.events = append(r.events, "complete") }
func (r *recordingSink) Failed(_, _, _ string)     { r.events = append(r.events, "error") }

func (r *recordingSink) filter(prefix string) []string {
	var out []string
	for _, e := range r.events {
		if strings.HasPrefix(e, prefix) {
			out = append(out, e)
		}
	}
	return out
}

func testSet() questions.Set {
	return questions.Set{
		Domain:   questions.DomainCognitive,
		Preamble: "You are a rigorous evaluator.",
		Questions: []questions.Question{
			{ID: "q1", Category: "reasoning", Prompt: "Assess the reasoning.", Ordinal: 0},
			{ID: "q2", Category: "originality", Prompt: "Assess the originality.", Ordinal: 1},
		},
	}
}

func newTestEvaluation(mode Mode) *Evaluation {
	return &Evaluation{
		ID:        "ev-1",
		Domain:    questions.DomainCognitive,
		Mode:      mode,
		InputText: "The cat sat. It was happy.",
	}
}

func TestEngineSinglePhase(t *testing.T) {
	client := &scriptedClient{answers: []string{
		"Solid reasoning throughout. Score: 88/100",
		"Modest originality. Score: 90/100",
	}}
	sink := &recordingSink{}
	eng := &Engine{Gateway: client, Set: testSet(), Sink: sink}

	ev := newTestEvaluation(ModeSinglePhase)
	if err := eng.Run(context.Background(), ev); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(client.prompts) != 2 {
		t.Fatalf("expected 2 backend calls, got %d", len(client.prompts))
	}
	if len(ev.Phases) != 1 || !ev.Phases[0].Sealed {
		t.Fatalf("expected one sealed phase, got %+v", ev.Phases)
	}
	if ev.FinalScore == nil || *ev.FinalScore != 89 {
		t.Fatalf("expected final score 89, got %v", ev.FinalScore)
	}
	if ev.GeneratedWords == 0 {
		t.Fatal("expected generated word count to accumulate")
	}

	want := []string{
		"phase:1:2",
		"delta:1:q1", "delta:1:q1", "question:1:q1",
		"delta:1:q2", "delta:1:q2", "question:1:q2",
		"phase_complete:1",
	}
	if got := strings.Join(sink.events, ","); got != strings.Join(want, ",") {
		t.Fatalf("event order mismatch:\n got %v\nwant %v", sink.events, want)
	}
}

func TestEngineMultiPhaseAllAboveBar(t *testing.T) {
	client := &scriptedClient{answers: []string{
		"Exceptional. Score: 97/100",
		"Exceptional. Score: 96/100",
	}}
	sink := &recordingSink{}
	eng := &Engine{Gateway: client, Set: testSet(), Sink: sink}

	ev := newTestEvaluation(ModeMultiPhase)
	if err := eng.Run(context.Background(), ev); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(ev.Phases) != 1 {
		t.Fatalf("expected escalation to be skipped, got %d phases", len(ev.Phases))
	}
	if len(client.prompts) != 2 {
		t.Fatalf("expected 2 backend calls, got %d", len(client.prompts))
	}
}

func TestEngineMultiPhaseEscalation(t *testing.T) {
	client := &scriptedClient{answers: []string{
		// Phase 1: q1 clears the bar, q2 does not.
		"Score: 96/100",
		"Score: 80/100",
		// Phase 2 re-asks the full set.
		"Score: 96/100",
		"On reflection. Score: 85/100",
		// Phase 3 targets only q2.
		"I cannot name three. Revised. Score: 90/100",
		// Phase 4 re-asks the full set.
		"Confirmed. Score: 97/100",
		"Final. Score: 96/100",
	}}
	sink := &recordingSink{}
	eng := &Engine{Gateway: client, Set: testSet(), Sink: sink}

	ev := newTestEvaluation(ModeMultiPhase)
	if err := eng.Run(context.Background(), ev); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(ev.Phases) != 4 {
		t.Fatalf("expected 4 phases, got %d", len(ev.Phases))
	}
	if len(client.prompts) != 7 {
		t.Fatalf("expected 7 backend calls, got %d", len(client.prompts))
	}
	if got := len(ev.Phases[2].Answers); got != 1 {
		t.Fatalf("enforcement should only re-ask low scorers, got %d answers", got)
	}
	if ev.Phases[2].Answers[0].QuestionID != "q2" {
		t.Fatalf("enforcement targeted %s, want q2", ev.Phases[2].Answers[0].QuestionID)
	}
	// Final aggregate averages each question's latest score (phase 4).
	if ev.FinalScore == nil || *ev.FinalScore != 96.5 {
		t.Fatalf("expected final score 96.5, got %v", ev.FinalScore)
	}

	// Pushback framing: q2's phase 2 prompt restates the low score as a
	// population claim; q1's does not.
	p2q1, p2q2 := client.prompts[2], client.prompts[3]
	if !strings.Contains(p2q2, "20 out of 100 people") {
		t.Fatalf("pushback prompt missing population framing: %q", p2q2)
	}
	if strings.Contains(p2q1, "out of 100 people are claimed") {
		t.Fatal("above-bar question should not receive the pushback demand")
	}
	if !strings.Contains(client.prompts[4], "Name 3 specific people") {
		t.Fatalf("enforcement prompt missing comparative demand: %q", client.prompts[4])
	}
	if !strings.Contains(client.prompts[5], "audit question") {
		t.Fatalf("validation prompt missing checklist preface: %q", client.prompts[5])
	}

	phases := sink.filter("phase:")
	want := []string{"phase:1:2", "phase:2:2", "phase:3:1", "phase:4:2"}
	if strings.Join(phases, ",") != strings.Join(want, ",") {
		t.Fatalf("phase sequence %v, want %v", phases, want)
	}
}

func TestEngineEnforcementSealsEmpty(t *testing.T) {
	client := &scriptedClient{answers: []string{
		// Phase 1: one low score pulls the job into escalation.
		"Score: 96/100",
		"Score: 80/100",
		// Phase 2 clears everything.
		"Score: 97/100",
		"Revised upward. Score: 95/100",
		// Phase 4.
		"Score: 97/100",
		"Score: 95/100",
	}}
	sink := &recordingSink{}
	eng := &Engine{Gateway: client, Set: testSet(), Sink: sink}

	ev := newTestEvaluation(ModeMultiPhase)
	if err := eng.Run(context.Background(), ev); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(ev.Phases) != 4 {
		t.Fatalf("expected 4 phases, got %d", len(ev.Phases))
	}
	p3 := ev.Phases[2]
	if p3.Phase != PhaseEnforcement || !p3.Sealed || len(p3.Answers) != 0 {
		t.Fatalf("expected empty sealed enforcement phase, got %+v", p3)
	}
	if p3.AggregateScore != nil {
		t.Fatal("empty phase must not carry an aggregate score")
	}
	if len(sink.filter("info")) == 0 {
		t.Fatal("expected an info event announcing the empty enforcement round")
	}
	if len(client.prompts) != 6 {
		t.Fatalf("expected 6 backend calls, got %d", len(client.prompts))
	}
}

func TestEngineExtractionFallback(t *testing.T) {
	client := &scriptedClient{answers: []string{
		"A long answer without any usable number in it.",
		"Score: 97/100",
	}}
	sink := &recordingSink{}
	eng := &Engine{Gateway: client, Set: testSet(), Sink: sink}

	ev := newTestEvaluation(ModeSinglePhase)
	if err := eng.Run(context.Background(), ev); err != nil {
		t.Fatalf("Run: %v", err)
	}
	qa := ev.Phases[0].Answers[0]
	if qa.Score == nil || *qa.Score != 50 {
		t.Fatalf("expected neutral fallback 50, got %v", qa.Score)
	}
	if qa.Extracted {
		t.Fatal("fallback score must be flagged as not extracted")
	}
	other := ev.Phases[0].Answers[1]
	if !other.Extracted {
		t.Fatal("extracted score lost its flag")
	}
}

func TestEngineBackendFailureMidPhase(t *testing.T) {
	wrapped := fmt.Errorf("openai: %w", llm.ErrBackendUnavailable)
	client := &scriptedClient{
		answers: []string{"Score: 90/100"},
		errs:    map[int]error{1: wrapped},
	}
	sink := &recordingSink{}
	eng := &Engine{Gateway: client, Set: testSet(), Sink: sink}

	ev := newTestEvaluation(ModeSinglePhase)
	err := eng.Run(context.Background(), ev)
	if !errors.Is(err, llm.ErrBackendUnavailable) {
		t.Fatalf("expected backend unavailable, got %v", err)
	}
	// The failing phase never sealed; nothing partial leaks into Phases.
	if len(ev.Phases) != 0 {
		t.Fatalf("expected no sealed phases, got %d", len(ev.Phases))
	}
	if len(sink.filter("question:")) != 1 {
		t.Fatal("the completed answer before the failure should have streamed")
	}
}

func TestEngineCancellationStopsCalls(t *testing.T) {
	ctx, cancel := context.WithCancelCause(context.Background())
	client := &scriptedClient{answers: []string{"Score: 90/100", "Score: 91/100"}}
	client.onCall = func(call int) {
		if call == 0 {
			cancel(ErrCancelled)
		}
	}
	sink := &recordingSink{}
	eng := &Engine{Gateway: client, Set: testSet(), Sink: sink}

	ev := newTestEvaluation(ModeSinglePhase)
	err := eng.Run(ctx, ev)
	if !errors.Is(err, ErrCancelled) {
		t.Fatalf("expected ErrCancelled, got %v", err)
	}
	if len(client.prompts) != 1 {
		t.Fatalf("no backend calls may follow cancellation, got %d", len(client.prompts))
	}
}

func TestEngineBatchCooldown(t *testing.T) {
	client := &scriptedClient{answers: []string{"Score: 90/100", "Score: 91/100"}}
	sink := &recordingSink{}
	eng := &Engine{
		Gateway:   client,
		Set:       testSet(),
		Sink:      sink,
		BatchSize: 1,
		Cooldown:  20 * time.Millisecond,
	}

	ev := newTestEvaluation(ModeSinglePhase)
	start := time.Now()
	if err := eng.Run(context.Background(), ev); err != nil {
		t.Fatalf("Run: %v", err)
	}
	// Two batches of one question, so exactly one cooldown pause.
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Fatalf("expected a cooldown pause, run took %v", elapsed)
	}
}

func TestEngineSummaryStep(t *testing.T) {
	client := &scriptedClient{answers: []string{
		"A compact summary of the sample.",
		"Score: 88/100",
		"Score: 90/100",
	}}
	sink := &recordingSink{}
	eng := &Engine{Gateway: client, Set: testSet(), Sink: sink}

	ev := newTestEvaluation(ModeSinglePhase)
	ev.Summarize = true
	if err := eng.Run(context.Background(), ev); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(client.prompts) != 3 {
		t.Fatalf("expected summary call plus 2 questions, got %d", len(client.prompts))
	}
	if !strings.Contains(client.prompts[0], "only summarize") {
		t.Fatalf("first call should be the summary prompt: %q", client.prompts[0])
	}
	if len(sink.filter("summary_complete")) != 1 {
		t.Fatal("expected exactly one summary_complete callback")
	}
	if sink.events[len(sink.events)-1] != "phase_complete:1" {
		t.Fatalf("summary must precede the phase, got tail %v", sink.events)
	}
}
