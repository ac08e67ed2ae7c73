package evaluations

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"insight-backend/internal/chunking"
	"insight-backend/internal/llm"
	"insight-backend/internal/questions"
	"insight-backend/internal/shared/metrics"
	"insight-backend/internal/shared/telemetry"
	"insight-backend/internal/shared/util"
	"insight-backend/internal/usage"
)

// Service owns the evaluation lifecycle: chunking and validation at intake,
// running the engine, and handing terminal snapshots to storage and the
// usage meter.
type Service struct {
	Repo     Repo
	Usage    *usage.Service
	Registry *llm.Registry

	DefaultBackend llm.Backend
	ChunkMaxWords  int
	BatchSize      int
	Cooldown       time.Duration

	// Sets resolves the question set for a domain.
	Sets func(questions.Domain) (questions.Set, error)

	running sync.Map // evaluation id -> context.CancelCauseFunc
}

// NewService constructs a Service.
func NewService(repo Repo, usageSvc *usage.Service, registry *llm.Registry) *Service {
	return &Service{
		Repo:          repo,
		Usage:         usageSvc,
		Registry:      registry,
		ChunkMaxWords: chunking.DefaultMaxWords,
		Sets:          questions.ForDomain,
	}
}

// CreateInput carries a new evaluation request after transport decoding.
type CreateInput struct {
	PrincipalID    string
	Domain         string
	Mode           string
	Backend        string
	Text           string
	Context        string
	SelectedChunks []int
}

// PreviewChunks runs the chunking step only, so a caller can inspect and
// select chunks before starting a job.
func (s *Service) PreviewChunks(text string) ([]chunking.TextChunk, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyInput
	}
	return chunking.Chunk(text, s.ChunkMaxWords), nil
}

// Create validates the request, chunks the input and persists a pending
// evaluation. The returned evaluation is ready to hand to Run.
func (s *Service) Create(ctx context.Context, in CreateInput) (*Evaluation, error) {
	if strings.TrimSpace(in.Text) == "" {
		return nil, ErrEmptyInput
	}
	domain, err := questions.ParseDomain(in.Domain)
	if err != nil {
		return nil, err
	}
	mode, err := ParseMode(in.Mode)
	if err != nil {
		return nil, err
	}
	raw := strings.TrimSpace(in.Backend)
	if raw == "" {
		raw = string(s.DefaultBackend)
	}
	backend, err := llm.ParseBackend(raw)
	if err != nil {
		return nil, err
	}
	if _, err := s.Registry.Get(backend); err != nil {
		return nil, err
	}

	chunks := chunking.Chunk(in.Text, s.ChunkMaxWords)
	chunks = chunking.ApplySelection(chunks, in.SelectedChunks)
	selected := chunking.SelectedText(chunks)
	if strings.TrimSpace(selected) == "" {
		return nil, ErrEmptyInput
	}

	ev := &Evaluation{
		ID:          uuid.NewString(),
		PrincipalID: in.PrincipalID,
		Domain:      domain,
		Mode:        mode,
		Backend:     backend,
		Model:       s.Registry.Model(backend),
		Status:      StatusPending,
		InputText:   selected,
		Context:     in.Context,
		Summarize:   len(chunks) > 1,
		InputWords:  util.CountWords(selected),
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.Repo.Create(ctx, *ev); err != nil {
		return nil, err
	}
	return ev, nil
}

// Run executes the evaluation to its terminal state, reporting progress
// through sink. The run deliberately detaches from the caller's request
// context: a consumer who stops reading does not abort the job, only the
// explicit Cancel does.
func (s *Service) Run(ev *Evaluation, sink EventSink) {
	runCtx, cancel := context.WithCancelCause(context.Background())
	s.running.Store(ev.ID, cancel)
	defer func() {
		s.running.Delete(ev.ID)
		cancel(nil)
	}()

	start := time.Now()
	startedAt := start.UTC()
	ev.Status = StatusRunning
	ev.StartedAt = &startedAt
	if err := s.Repo.MarkRunning(runCtx, ev.ID, startedAt); err != nil {
		s.finishFailed(ev, sink, err)
		return
	}
	metrics.IncEvaluationStarted()
	telemetry.Info("evaluation.started", map[string]any{
		"evaluation_id": ev.ID,
		"principal_id":  ev.PrincipalID,
		"domain":        string(ev.Domain),
		"mode":          string(ev.Mode),
		"backend":       string(ev.Backend),
		"input_words":   ev.InputWords,
	})

	client, err := s.Registry.Get(ev.Backend)
	if err != nil {
		s.finishFailed(ev, sink, err)
		return
	}
	set, err := s.Sets(ev.Domain)
	if err != nil {
		s.finishFailed(ev, sink, err)
		return
	}

	engine := &Engine{
		Gateway:   client,
		Set:       set,
		Sink:      sink,
		BatchSize: s.BatchSize,
		Cooldown:  s.Cooldown,
	}
	if err := engine.Run(runCtx, ev); err != nil {
		s.finishFailed(ev, sink, err)
		metrics.ObserveEvaluationDurationMs(float64(time.Since(start).Milliseconds()))
		return
	}

	ev.Status = StatusCompleted
	now := time.Now().UTC()
	ev.CompletedAt = &now
	s.persistTerminal(ev)
	if _, err := s.Usage.Record(context.Background(), ev.PrincipalID, ev.GeneratedWords); err != nil {
		telemetry.Error("evaluation.usage_record_failed", map[string]any{
			"evaluation_id": ev.ID,
			"error":         err.Error(),
		})
	}
	metrics.IncEvaluationCompleted()
	metrics.AddGeneratedWords(ev.GeneratedWords)
	metrics.ObserveEvaluationDurationMs(float64(time.Since(start).Milliseconds()))
	sink.Completed(ev)
	telemetry.Info("evaluation.completed", map[string]any{
		"evaluation_id":   ev.ID,
		"generated_words": ev.GeneratedWords,
		"final_score":     ev.FinalScore,
		"phases":          len(ev.Phases),
	})
}

// Cancel aborts a running evaluation. Sealed phases survive; the run ends
// with a Cancelled terminal event.
func (s *Service) Cancel(evaluationID string) error {
	value, ok := s.running.Load(evaluationID)
	if !ok {
		return ErrNotRunning
	}
	cancel := value.(context.CancelCauseFunc)
	cancel(ErrCancelled)
	return nil
}

// Get returns a persisted evaluation snapshot.
func (s *Service) Get(ctx context.Context, evaluationID string) (Evaluation, error) {
	return s.Repo.GetByID(ctx, evaluationID)
}

// List returns a principal's evaluations, newest first.
func (s *Service) List(ctx context.Context, principalID string, limit, offset int) ([]Evaluation, error) {
	return s.Repo.ListByPrincipal(ctx, principalID, limit, offset)
}

func (s *Service) finishFailed(ev *Evaluation, sink EventSink, cause error) {
	code := classifyFailure(cause)
	ev.Status = StatusFailed
	ev.ErrorCode = code
	ev.ErrorMessage = sanitizeError(cause)
	now := time.Now().UTC()
	ev.CompletedAt = &now
	s.persistTerminal(ev)
	if code == ErrorCodeCancelled {
		metrics.IncEvaluationCancelled()
	} else {
		metrics.IncEvaluationFailed()
	}
	metrics.AddGeneratedWords(ev.GeneratedWords)
	sink.Failed(ev.ID, code, ev.ErrorMessage)
	telemetry.Error("evaluation.failed", map[string]any{
		"evaluation_id": ev.ID,
		"error_code":    code,
		"error":         ev.ErrorMessage,
		"phases_sealed": len(ev.Phases),
	})
}

// persistTerminal writes the snapshot on a fresh context so a cancelled run
// still lands in storage.
func (s *Service) persistTerminal(ev *Evaluation) {
	ctx, cancelFn := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelFn()
	if err := s.Repo.SaveTerminal(ctx, *ev); err != nil {
		telemetry.Error("evaluation.persist_failed", map[string]any{
			"evaluation_id": ev.ID,
			"error":         err.Error(),
		})
	}
}
