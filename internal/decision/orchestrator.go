// Package decision composes screening, scoring, explanation and external
// scoring into one decision per application.
package decision

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/opensource-finance/merlin/internal/domain"
	"github.com/opensource-finance/merlin/internal/explain"
	"github.com/opensource-finance/merlin/internal/metrics"
	"github.com/opensource-finance/merlin/internal/riskscore"
	"github.com/opensource-finance/merlin/internal/score"
)

var tracer = otel.Tracer("merlin-decision")

// Fallback summaries.
const (
	SummaryNotConfigured = "Explanation service is not configured."
	SummaryUnavailable   = "Explanation unavailable at this time."
)

// RuleEvaluator screens a profile.
type RuleEvaluator interface {
	Evaluate(profile domain.Profile) domain.Verdict
}

// ScoreComputer computes the credit score of a profile.
type ScoreComputer interface {
	Compute(profile domain.Profile) (*score.Result, error)
}

// RiskScorer asks an external collaborator for its opinion on a record.
type RiskScorer interface {
	Score(ctx context.Context, record map[string]string) (*riskscore.Result, error)
}

// VelocityCounter records an application and returns the recent count.
type VelocityCounter interface {
	Record(ctx context.Context, applicant string) (int64, error)
}

// Deps are the collaborators of an Orchestrator. Rules and Scorer are
// required; everything else is optional.
type Deps struct {
	Rules     RuleEvaluator
	Scorer    ScoreComputer
	Explainer explain.Explainer
	Risk      RiskScorer
	Velocity  VelocityCounter
	Sink      Sink
	Bus       domain.EventBus
}

// Config tunes the orchestrator.
type Config struct {
	ContinueOnFlag bool
	Hints          domain.HintConfig

	MaxTokens   int
	Temperature *float64

	// PersistTimeout bounds the sink call. Zero means no bound.
	PersistTimeout time.Duration
}

// Orchestrator runs the decision pipeline. It is safe for concurrent use.
type Orchestrator struct {
	deps  Deps
	cfg   Config
	now   func() time.Time
	newID func() string
}

// New creates an orchestrator.
func New(deps Deps, cfg Config) (*Orchestrator, error) {
	if deps.Rules == nil {
		return nil, errors.New("rule evaluator is required")
	}
	if deps.Scorer == nil {
		return nil, errors.New("score computer is required")
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 200
	}
	return &Orchestrator{
		deps:  deps,
		cfg:   cfg,
		now:   time.Now,
		newID: func() string { return uuid.New().String() },
	}, nil
}

// Decide screens, scores and explains one profile.
//
// A rejection ends the pipeline without scoring. A flagged profile ends it
// too unless ContinueOnFlag is set. The only error returned is an input
// validation failure wrapping domain.ErrInvalidInput; every other failure
// degrades the decision instead.
func (o *Orchestrator) Decide(ctx context.Context, profile domain.Profile) (*domain.Decision, error) {
	start := o.now()
	id := o.newID()

	ctx, span := tracer.Start(ctx, "decision.decide",
		trace.WithAttributes(attribute.String("application.id", id)),
	)
	defer span.End()

	applicant := profile.Applicant()
	profile = o.withVelocity(ctx, profile, applicant)

	verdict := o.deps.Rules.Evaluate(profile)
	span.SetAttributes(attribute.Int("rules.evaluated", verdict.RulesEvaluated))

	if verdict.Rejected {
		metrics.RuleMatches.WithLabelValues(verdict.Rule, string(domain.ActionReject)).Inc()
		d := &domain.Decision{
			ID:          id,
			Status:      domain.StatusRejected,
			Reason:      verdict.Rule,
			Description: verdict.Description,
		}
		o.finish(ctx, span, d, start)
		slog.Info("application rejected",
			"application_id", id,
			"rule", verdict.Rule,
		)
		return d, nil
	}

	for _, f := range verdict.Flags {
		metrics.RuleMatches.WithLabelValues(f.Rule, string(domain.ActionFlag)).Inc()
	}

	if verdict.Flagged() && !o.cfg.ContinueOnFlag {
		d := &domain.Decision{
			ID:     id,
			Status: domain.StatusFlagged,
			Flags:  verdict.Flags,
		}
		d.ProcessMs = o.now().Sub(start).Milliseconds()
		o.persist(ctx, id, applicant, profile, d)
		o.finish(ctx, span, d, start)
		return d, nil
	}

	res, err := o.deps.Scorer.Compute(profile)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid input")
		if !errors.Is(err, domain.ErrInvalidInput) {
			err = fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
		}
		return nil, err
	}

	d := &domain.Decision{
		ID:          id,
		Status:      domain.StatusOK,
		Flags:       verdict.Flags,
		CreditScore: intPtr(res.Final),
		Repayment:   intPtr(res.Repayment),
		Utilization: intPtr(res.Utilization),
		Outstanding: intPtr(res.Outstanding),
		Inquiries:   intPtr(res.Inquiries),
	}
	if verdict.Flagged() {
		d.Status = domain.StatusFlagged
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		o.explain(ctx, profile, d)
	}()
	go func() {
		defer wg.Done()
		o.externalScore(ctx, profile, res, d)
	}()
	wg.Wait()

	d.Recommendations = Hints(profile, o.cfg.Hints)
	d.ProcessMs = o.now().Sub(start).Milliseconds()

	o.persist(ctx, id, applicant, profile, d)
	o.finish(ctx, span, d, start)

	slog.Info("application scored",
		"application_id", id,
		"status", d.Status,
		"credit_score", res.Final,
		"summary_status", d.SummaryStatus,
		"duration_ms", d.ProcessMs,
	)
	return d, nil
}

// withVelocity adds the recent application count to the profile.
func (o *Orchestrator) withVelocity(ctx context.Context, profile domain.Profile, applicant string) domain.Profile {
	if o.deps.Velocity == nil || applicant == "" {
		return profile
	}
	n, err := o.deps.Velocity.Record(ctx, applicant)
	if err != nil {
		slog.Warn("velocity unavailable", "applicant", applicant, "error", err)
		return profile
	}
	return profile.With(domain.FieldRecentApplications, strconv.FormatInt(n, 10))
}

func (o *Orchestrator) explain(ctx context.Context, profile domain.Profile, d *domain.Decision) {
	if o.deps.Explainer == nil {
		d.Summary, d.SummaryStatus = SummaryNotConfigured, domain.SummaryUnconfigured
		metrics.Explanations.WithLabelValues(domain.SummaryUnconfigured).Inc()
		return
	}

	ctx, span := tracer.Start(ctx, "decision.explain")
	defer span.End()

	text, err := o.deps.Explainer.Explain(ctx, explain.Request{
		Prompt:      explain.ProfilePrompt(profile),
		System:      explain.SystemPrompt,
		MaxTokens:   o.cfg.MaxTokens,
		Temperature: o.cfg.Temperature,
	})
	switch {
	case err == nil:
		d.Summary, d.SummaryStatus = text, domain.SummaryGenerated
	case errors.Is(err, explain.ErrNotConfigured):
		d.Summary, d.SummaryStatus = SummaryNotConfigured, domain.SummaryUnconfigured
	default:
		span.RecordError(err)
		slog.Warn("explanation failed", "application_id", d.ID, "error", err)
		d.Summary, d.SummaryStatus = SummaryUnavailable, domain.SummaryUnavailable
	}
	metrics.Explanations.WithLabelValues(d.SummaryStatus).Inc()
}

func (o *Orchestrator) externalScore(ctx context.Context, profile domain.Profile, res *score.Result, d *domain.Decision) {
	if o.deps.Risk == nil {
		return
	}

	ctx, span := tracer.Start(ctx, "decision.external_score")
	defer span.End()

	record := make(map[string]string, len(profile)+5)
	for k, v := range profile {
		record[k] = v
	}
	record["credit_score_estimate"] = strconv.Itoa(res.Final)
	record["repayment"] = strconv.Itoa(res.Repayment)
	record["utilization"] = strconv.Itoa(res.Utilization)
	record["outstanding"] = strconv.Itoa(res.Outstanding)
	record["inquiries"] = strconv.Itoa(res.Inquiries)

	out, err := o.deps.Risk.Score(ctx, record)
	if err != nil {
		span.RecordError(err)
		d.ExternalScoringError = err.Error()
		metrics.ExternalScoring.WithLabelValues("failed").Inc()
		return
	}
	d.AnomalyScore = out.AnomalyScore
	d.ExternalRecommendation = out.Recommendation
	metrics.ExternalScoring.WithLabelValues("ok").Inc()
}

// persist hands the application to the sink. Failures are logged only.
func (o *Orchestrator) persist(ctx context.Context, id, applicant string, profile domain.Profile, d *domain.Decision) {
	if o.deps.Sink == nil {
		return
	}

	ctx = context.WithoutCancel(ctx)
	if o.cfg.PersistTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.cfg.PersistTimeout)
		defer cancel()
	}

	app := &domain.Application{
		ID:        id,
		Applicant: applicant,
		Profile:   profile,
		Decision:  d,
		CreatedAt: o.now().UTC(),
	}
	if err := o.deps.Sink.Store(ctx, app); err != nil {
		metrics.PersistenceFailures.WithLabelValues(o.deps.Sink.Name()).Inc()
		slog.Error("failed to persist application",
			"application_id", id,
			"sink", o.deps.Sink.Name(),
			"error", err,
		)
	}
}

// finish publishes the decision event and records metrics.
func (o *Orchestrator) finish(ctx context.Context, span trace.Span, d *domain.Decision, start time.Time) {
	span.SetAttributes(attribute.String("decision.status", d.Status))

	elapsed := o.now().Sub(start)
	metrics.DecisionsTotal.WithLabelValues(d.Status).Inc()
	metrics.DecisionDuration.WithLabelValues(d.Status).Observe(elapsed.Seconds())

	if o.deps.Bus == nil {
		return
	}
	payload, err := json.Marshal(d)
	if err != nil {
		return
	}
	if err := o.deps.Bus.Publish(ctx, domain.TopicDecision, payload); err != nil {
		slog.Warn("failed to publish decision", "application_id", d.ID, "error", err)
	}
}

func intPtr(v int) *int { return &v }
