package evaluations

import (
	"context"
	"errors"
	"strings"
	"testing"

	"insight-backend/internal/llm"
	"insight-backend/internal/questions"
	"insight-backend/internal/usage"
)

func newTestService(client llm.Client) *Service {
	registry := llm.NewRegistry()
	registry.Register(llm.BackendOpenAI, "gpt-4o-mini", client)
	svc := NewService(NewMemoryRepo(), usage.NewService(), registry)
	svc.DefaultBackend = llm.BackendOpenAI
	// The built-in domain sets carry many questions; the compact test set
	// keeps scripted answers manageable.
	svc.Sets = func(questions.Domain) (questions.Set, error) {
		return testSet(), nil
	}
	return svc
}

func TestServiceCreateValidation(t *testing.T) {
	svc := newTestService(&scriptedClient{})

	cases := []struct {
		name string
		in   CreateInput
	}{
		{"empty text", CreateInput{Domain: "cognitive", Mode: "single-phase", Text: "   "}},
		{"unknown domain", CreateInput{Domain: "astrological", Mode: "single-phase", Text: "hello"}},
		{"unknown mode", CreateInput{Domain: "cognitive", Mode: "triple-phase", Text: "hello"}},
		{"unknown backend", CreateInput{Domain: "cognitive", Mode: "single-phase", Text: "hello", Backend: "alexa"}},
		{"unconfigured backend", CreateInput{Domain: "cognitive", Mode: "single-phase", Text: "hello", Backend: "gemini"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.Create(context.Background(), tc.in); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestServiceCreateDefaultsBackendAndChunks(t *testing.T) {
	svc := newTestService(&scriptedClient{})
	svc.ChunkMaxWords = 5

	text := strings.Repeat("one two three four five. ", 3)
	ev, err := svc.Create(context.Background(), CreateInput{
		PrincipalID: "principal-1",
		Domain:      "cognitive",
		Mode:        "multi-phase",
		Text:        text,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if ev.Backend != llm.BackendOpenAI || ev.Model != "gpt-4o-mini" {
		t.Fatalf("default backend not applied: %+v", ev)
	}
	if !ev.Summarize {
		t.Fatal("multi-chunk input should request the summary step")
	}
	if ev.Status != StatusPending {
		t.Fatalf("expected pending, got %s", ev.Status)
	}

	stored, err := svc.Get(context.Background(), ev.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if stored.PrincipalID != "principal-1" {
		t.Fatalf("stored row mismatch: %+v", stored)
	}
}

func TestServiceCreateChunkSelection(t *testing.T) {
	svc := newTestService(&scriptedClient{})
	svc.ChunkMaxWords = 5

	text := "alpha beta gamma delta epsilon. zeta eta theta iota kappa. lambda mu nu xi omicron."
	ev, err := svc.Create(context.Background(), CreateInput{
		Domain:         "cognitive",
		Mode:           "single-phase",
		Text:           text,
		SelectedChunks: []int{0, 2},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if strings.Contains(ev.InputText, "zeta") {
		t.Fatalf("deselected chunk leaked into input: %q", ev.InputText)
	}
	if !strings.Contains(ev.InputText, "alpha") || !strings.Contains(ev.InputText, "lambda") {
		t.Fatalf("selected chunks missing: %q", ev.InputText)
	}
	if ev.InputWords != 10 {
		t.Fatalf("input words should count selected text only, got %d", ev.InputWords)
	}
}

func TestServiceRunCompletesAndRecords(t *testing.T) {
	client := &scriptedClient{answers: []string{
		"Score: 88/100",
		"Score: 90/100",
	}}
	svc := newTestService(client)

	ev, err := svc.Create(context.Background(), CreateInput{
		PrincipalID: "principal-1",
		Domain:      "cognitive",
		Mode:        "single-phase",
		Text:        "The cat sat. It was happy.",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	sink := &recordingSink{}
	svc.Run(ev, sink)

	if ev.Status != StatusCompleted {
		t.Fatalf("expected completed, got %s (%s)", ev.Status, ev.ErrorMessage)
	}
	if sink.events[len(sink.events)-1] != "complete" {
		t.Fatalf("expected terminal complete event, got %v", sink.events)
	}

	stored, err := svc.Get(context.Background(), ev.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if stored.Status != StatusCompleted || stored.FinalScore == nil || *stored.FinalScore != 89 {
		t.Fatalf("terminal snapshot not persisted: %+v", stored)
	}

	meter, err := svc.Usage.Get(context.Background(), "principal-1")
	if err != nil {
		t.Fatalf("usage Get: %v", err)
	}
	if meter.Evaluations != 1 || meter.GeneratedWords != ev.GeneratedWords {
		t.Fatalf("usage not recorded: %+v", meter)
	}
}

func TestServiceRunBackendFailurePersistsPartial(t *testing.T) {
	client := &scriptedClient{
		answers: []string{"Score: 90/100"},
		errs:    map[int]error{1: llm.ErrBackendUnavailable},
	}
	svc := newTestService(client)

	ev, err := svc.Create(context.Background(), CreateInput{
		Domain: "cognitive",
		Mode:   "single-phase",
		Text:   "The cat sat.",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	sink := &recordingSink{}
	svc.Run(ev, sink)

	if ev.Status != StatusFailed || ev.ErrorCode != ErrorCodeBackendUnavailable {
		t.Fatalf("expected backend failure, got %+v", ev)
	}
	if sink.events[len(sink.events)-1] != "error" {
		t.Fatalf("expected terminal error event, got %v", sink.events)
	}
	stored, _ := svc.Get(context.Background(), ev.ID)
	if stored.Status != StatusFailed {
		t.Fatalf("failure not persisted: %+v", stored)
	}
}

func TestServiceCancelNotRunning(t *testing.T) {
	svc := newTestService(&scriptedClient{})
	if err := svc.Cancel("missing"); !errors.Is(err, ErrNotRunning) {
		t.Fatalf("expected ErrNotRunning, got %v", err)
	}
}

func TestServiceCancelMidRun(t *testing.T) {
	client := &scriptedClient{answers: []string{"Score: 90/100", "Score: 91/100"}}
	svc := newTestService(client)

	ev, err := svc.Create(context.Background(), CreateInput{
		Domain: "cognitive",
		Mode:   "single-phase",
		Text:   "The cat sat.",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	client.onCall = func(call int) {
		if call == 0 {
			if err := svc.Cancel(ev.ID); err != nil {
				t.Errorf("Cancel: %v", err)
			}
		}
	}

	sink := &recordingSink{}
	svc.Run(ev, sink)

	if ev.Status != StatusFailed || ev.ErrorCode != ErrorCodeCancelled {
		t.Fatalf("expected cancelled terminal state, got %+v", ev)
	}
	if len(client.prompts) != 1 {
		t.Fatalf("no calls may follow cancellation, got %d", len(client.prompts))
	}
	if err := svc.Cancel(ev.ID); !errors.Is(err, ErrNotRunning) {
		t.Fatalf("finished run should not be cancellable, got %v", err)
	}
}
