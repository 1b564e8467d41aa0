// Package worker consumes application events from the EventBus.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/opensource-finance/merlin/internal/bus"
	"github.com/opensource-finance/merlin/internal/cache"
	"github.com/opensource-finance/merlin/internal/domain"
	"github.com/opensource-finance/merlin/internal/metrics"
)

// Decider decides one applicant profile.
type Decider interface {
	Decide(ctx context.Context, profile domain.Profile) (*domain.Decision, error)
}

// Worker stores completed applications and, when given a Decider, answers
// scoring requests published on the bus.
type Worker struct {
	bus      domain.EventBus
	repo     domain.Repository
	cache    domain.Cache
	decider  Decider
	cacheTTL time.Duration

	stored  atomic.Int64
	failed  atomic.Int64
	decided atomic.Int64

	mu            sync.Mutex
	subscriptions []domain.Subscription
	ctx           context.Context
	cancel        context.CancelFunc
}

// Config holds worker configuration.
type Config struct {
	// Persist subscribes to completed applications and stores them.
	Persist bool

	// ServeDecisions answers requests on the submitted topic. Requires a Decider.
	ServeDecisions bool

	// CacheTTL is how long stored applications stay in the cache.
	CacheTTL time.Duration
}

// NewWorker creates a new async worker. cache and decider may be nil.
func NewWorker(b domain.EventBus, repo domain.Repository, c domain.Cache, decider Decider) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:     b,
		repo:    repo,
		cache:   c,
		decider: decider,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start subscribes to the topics enabled in cfg.
func (w *Worker) Start(cfg Config) error {
	w.cacheTTL = cfg.CacheTTL

	if cfg.Persist {
		if w.repo == nil {
			return errors.New("persisting worker requires a repository")
		}
		if err := w.subscribe(domain.TopicApplicationCompleted, w.handleCompleted); err != nil {
			return err
		}
	}

	if cfg.ServeDecisions {
		if w.decider == nil {
			return errors.New("decision worker requires a decider")
		}
		if err := w.subscribe(domain.TopicApplicationSubmitted, w.handleSubmitted); err != nil {
			return err
		}
	}

	slog.Info("worker started",
		"persist", cfg.Persist,
		"serve_decisions", cfg.ServeDecisions,
	)
	return nil
}

func (w *Worker) subscribe(topic string, handler domain.MessageHandler) error {
	sub, err := w.bus.Subscribe(w.ctx, topic, handler)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", topic, err)
	}
	w.mu.Lock()
	w.subscriptions = append(w.subscriptions, sub)
	w.mu.Unlock()
	return nil
}

// handleCompleted stores one completed application.
func (w *Worker) handleCompleted(ctx context.Context, msg *domain.Message) error {
	var app domain.Application
	if err := json.Unmarshal(msg.Payload, &app); err != nil {
		w.failed.Add(1)
		slog.Error("failed to parse application message",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	if err := w.repo.SaveApplication(ctx, &app); err != nil {
		w.failed.Add(1)
		metrics.PersistenceFailures.WithLabelValues("worker").Inc()
		slog.Error("failed to save application",
			"application_id", app.ID,
			"error", err,
		)
		return err
	}

	if w.cache != nil {
		if err := cache.SetApplication(ctx, w.cache, &app, w.cacheTTL); err != nil {
			slog.Warn("failed to cache application",
				"application_id", app.ID,
				"error", err,
			)
		}
	}

	w.stored.Add(1)

	slog.Debug("application stored",
		"application_id", app.ID,
		"status", app.Decision.Status,
	)
	return nil
}

// Reply is the payload answered on the submitted topic.
type Reply struct {
	Decision *domain.Decision `json:"decision,omitempty"`
	Error    string           `json:"error,omitempty"`
}

// handleSubmitted decides a raw profile and replies with the decision.
func (w *Worker) handleSubmitted(ctx context.Context, msg *domain.Message) error {
	var reply Reply

	var raw map[string]any
	if err := json.Unmarshal(msg.Payload, &raw); err != nil {
		reply.Error = fmt.Sprintf("%v: %v", domain.ErrInvalidInput, err)
	} else if profile, err := domain.NewProfile(raw); err != nil {
		reply.Error = err.Error()
	} else if decision, err := w.decider.Decide(ctx, profile); err != nil {
		reply.Error = err.Error()
	} else {
		reply.Decision = decision
		w.decided.Add(1)
	}

	payload, err := json.Marshal(reply)
	if err != nil {
		return err
	}
	return bus.Reply(ctx, w.bus, msg, payload)
}

// Stop unsubscribes and cancels in-flight handlers.
func (w *Worker) Stop() error {
	w.cancel()

	w.mu.Lock()
	defer w.mu.Unlock()
	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	slog.Info("worker stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
	Stored            int64    `json:"stored"`
	Failed            int64    `json:"failed"`
	Decided           int64    `json:"decided"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()

	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
		Stored:            w.stored.Load(),
		Failed:            w.failed.Load(),
		Decided:           w.decided.Load(),
	}
}

// Submit sends a raw profile to whichever worker serves decisions on the bus
// and waits for its reply.
func Submit(ctx context.Context, b domain.EventBus, profile json.RawMessage) (*domain.Decision, error) {
	raw, err := b.Request(ctx, domain.TopicApplicationSubmitted, profile)
	if err != nil {
		return nil, fmt.Errorf("submit application: %w", err)
	}
	var reply Reply
	if err := json.Unmarshal(raw, &reply); err != nil {
		return nil, fmt.Errorf("decode reply: %w", err)
	}
	if reply.Error != "" {
		return nil, errors.New(reply.Error)
	}
	if reply.Decision == nil {
		return nil, errors.New("empty reply")
	}
	return reply.Decision, nil
}
