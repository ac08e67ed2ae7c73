package evaluations

import (
	"context"
	"fmt"
	"io"
	"time"

	"insight-backend/internal/llm"
	"insight-backend/internal/questions"
	"insight-backend/internal/score"
	"insight-backend/internal/shared/metrics"
	"insight-backend/internal/shared/telemetry"
	"insight-backend/internal/shared/util"
)

// ScoreBar is the per-question confidence threshold. A question whose latest
// score reaches the bar is settled; one below it keeps the escalation going.
const ScoreBar = 95

const (
	PhaseInitial     = 1
	PhasePushback    = 2
	PhaseEnforcement = 3
	PhaseValidation  = 4
)

// Engine runs the phase protocol for a single evaluation. It owns the
// Evaluation value for the duration of Run and reports progress through the
// sink; it never touches storage.
type Engine struct {
	Gateway llm.Client
	Set     questions.Set
	Sink    EventSink

	// BatchSize questions are generated back to back, then the engine
	// sleeps Cooldown before the next batch. Zero values disable batching.
	BatchSize int
	Cooldown  time.Duration
}

// promptFunc builds the prompt for one question given its latest score.
type promptFunc func(q questions.Question, prior int) string

// Run executes the protocol: a summary step when requested, then phase 1
// over the full question set, then (in multi-phase mode) pushback,
// enforcement and validation rounds gated on the score bar. On error the
// evaluation is returned mid-flight with whatever phases sealed so far.
func (e *Engine) Run(ctx context.Context, ev *Evaluation) error {
	if ev.Summarize {
		if err := e.runSummary(ctx, ev); err != nil {
			return err
		}
	}

	// Latest score per question id, across phases. Later phases overwrite
	// earlier ones; the final score averages these.
	latestScore := make(map[string]int, len(e.Set.Questions))

	record := func(qa QuestionAnswer) {
		if qa.Score != nil {
			latestScore[qa.QuestionID] = *qa.Score
		}
	}

	if _, err := e.runPhase(ctx, ev, PhaseInitial, e.Set.Questions, func(q questions.Question, _ int) string {
		return buildQuestionPrompt(e.Set, q, ev.InputText, ev.Context)
	}, record); err != nil {
		return err
	}

	if ev.Mode == ModeMultiPhase && anyBelowBar(latestScore) {
		if _, err := e.runPhase(ctx, ev, PhasePushback, e.Set.Questions, func(q questions.Question, prior int) string {
			return buildPushbackPrompt(e.Set, q, ev.InputText, ev.Context, prior, prior < ScoreBar)
		}, record); err != nil {
			return err
		}

		// Enforcement only targets questions still below the bar. The
		// phase is visited regardless so the phase sequence stays fixed;
		// with nothing left to enforce it seals empty.
		low := questionsBelowBar(e.Set.Questions, latestScore)
		if len(low) == 0 {
			e.Sink.Info("all scores cleared the confidence bar after pushback; nothing to enforce")
			telemetry.Info("engine.enforcement_empty", map[string]any{"evaluation_id": ev.ID})
		}
		if _, err := e.runPhase(ctx, ev, PhaseEnforcement, low, func(q questions.Question, prior int) string {
			return buildEnforcementPrompt(e.Set, q, ev.InputText, ev.Context, prior)
		}, record); err != nil {
			return err
		}

		if _, err := e.runPhase(ctx, ev, PhaseValidation, e.Set.Questions, func(q questions.Question, prior int) string {
			return buildValidationPrompt(e.Set, q, ev.InputText, ev.Context, prior)
		}, record); err != nil {
			return err
		}
	}

	final := meanScore(latestScore)
	ev.FinalScore = &final
	return nil
}

func (e *Engine) runSummary(ctx context.Context, ev *Evaluation) error {
	text, err := e.generate(ctx, buildSummaryPrompt(ev.InputText), func(soFar string) {
		e.Sink.SummaryDelta(soFar)
	})
	if err != nil {
		return fmt.Errorf("summary step: %w", err)
	}
	ev.GeneratedWords += util.CountWords(text)
	e.Sink.SummaryComplete(text)
	return nil
}

// runPhase asks each question in qs, extracts a score from each answer and
// seals the round into ev.Phases. prompt receives the question's latest
// score from earlier phases (zero in phase 1).
func (e *Engine) runPhase(ctx context.Context, ev *Evaluation, phase int, qs []questions.Question, prompt promptFunc, record func(QuestionAnswer)) (PhaseResult, error) {
	result := PhaseResult{
		Phase:     phase,
		StartedAt: time.Now().UTC(),
		Answers:   make([]QuestionAnswer, 0, len(qs)),
	}
	e.Sink.PhaseStarted(phase, len(qs))

	prior := latestScores(ev)
	for i, q := range qs {
		if err := e.cooldownBeforeBatch(ctx, i); err != nil {
			return result, err
		}

		answer, err := e.generate(ctx, prompt(q, prior[q.ID]), func(soFar string) {
			e.Sink.QuestionDelta(phase, q, soFar)
		})
		if err != nil {
			return result, fmt.Errorf("phase %d question %s: %w", phase, q.ID, err)
		}

		qa := QuestionAnswer{
			QuestionID: q.ID,
			Category:   q.Category,
			Question:   q.Prompt,
			Answer:     answer,
			Complete:   true,
		}
		value, extracted := score.Extract(answer)
		if !extracted {
			value = score.NeutralFallback
			metrics.IncExtractionAmbiguous()
			telemetry.Warn("engine.extraction_ambiguous", map[string]any{
				"evaluation_id": ev.ID,
				"phase":         phase,
				"question_id":   q.ID,
			})
		}
		qa.Score = &value
		qa.Extracted = extracted

		ev.GeneratedWords += util.CountWords(answer)
		result.Answers = append(result.Answers, qa)
		record(qa)
		e.Sink.QuestionComplete(phase, q, answer, qa.Score)
	}

	result.CompletedAt = time.Now().UTC()
	result.Sealed = true
	if len(result.Answers) > 0 {
		aggregate := phaseMean(result.Answers)
		result.AggregateScore = &aggregate
	}
	ev.Phases = append(ev.Phases, result)
	e.Sink.PhaseSealed(result)
	return result, nil
}

// cooldownBeforeBatch pauses between batches; index is the question's
// position within the phase.
func (e *Engine) cooldownBeforeBatch(ctx context.Context, index int) error {
	if ctx.Err() != nil {
		return context.Cause(ctx)
	}
	if e.BatchSize <= 0 || e.Cooldown <= 0 || index == 0 || index%e.BatchSize != 0 {
		return nil
	}
	select {
	case <-time.After(e.Cooldown):
		return nil
	case <-ctx.Done():
		return context.Cause(ctx)
	}
}

// generate streams one completion, invoking onDelta with the accumulated
// text after each increment, and returns the full text.
func (e *Engine) generate(ctx context.Context, prompt string, onDelta func(soFar string)) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", context.Cause(ctx)
	}
	stream, err := e.Gateway.StreamGenerate(ctx, llm.GenerateInput{
		Prompt:       prompt,
		SystemPrompt: e.Set.Preamble,
	})
	if err != nil {
		return "", err
	}
	defer stream.Close()

	var full string
	for {
		delta, err := stream.Recv()
		if err == io.EOF {
			return full, nil
		}
		if err != nil {
			if cause := context.Cause(ctx); cause != nil && ctx.Err() != nil {
				return full, cause
			}
			return full, err
		}
		full += delta
		onDelta(full)
	}
}

func anyBelowBar(scores map[string]int) bool {
	for _, v := range scores {
		if v < ScoreBar {
			return true
		}
	}
	return false
}

func questionsBelowBar(qs []questions.Question, scores map[string]int) []questions.Question {
	var low []questions.Question
	for _, q := range qs {
		if scores[q.ID] < ScoreBar {
			low = append(low, q)
		}
	}
	return low
}

// latestScores reads each question's most recent score out of the sealed
// phases, later phases winning.
func latestScores(ev *Evaluation) map[string]int {
	out := make(map[string]int)
	for _, p := range ev.Phases {
		for _, qa := range p.Answers {
			if qa.Score != nil {
				out[qa.QuestionID] = *qa.Score
			}
		}
	}
	return out
}

func meanScore(scores map[string]int) float64 {
	if len(scores) == 0 {
		return 0
	}
	sum := 0
	for _, v := range scores {
		sum += v
	}
	return float64(sum) / float64(len(scores))
}

func phaseMean(answers []QuestionAnswer) float64 {
	sum, n := 0, 0
	for _, qa := range answers {
		if qa.Score != nil {
			sum += *qa.Score
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return float64(sum) / float64(n)
}
