package decision

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/opensource-finance/merlin/internal/cache"
	"github.com/opensource-finance/merlin/internal/domain"
)

// Persistence modes.
const (
	ModeDirect = "direct"
	ModeAsync  = "async"
)

// Sink receives completed applications.
type Sink interface {
	Store(ctx context.Context, app *domain.Application) error
	Name() string
}

// DirectSink writes applications to the repository within the request.
type DirectSink struct {
	repo  domain.Repository
	cache domain.Cache
	ttl   time.Duration
}

// NewDirectSink creates a sink over repo. cache may be nil.
func NewDirectSink(repo domain.Repository, c domain.Cache, ttl time.Duration) *DirectSink {
	return &DirectSink{repo: repo, cache: c, ttl: ttl}
}

// Store saves app and caches it for reads.
func (s *DirectSink) Store(ctx context.Context, app *domain.Application) error {
	if err := s.repo.SaveApplication(ctx, app); err != nil {
		return err
	}
	if s.cache != nil {
		if err := cache.SetApplication(ctx, s.cache, app, s.ttl); err != nil {
			slog.Warn("failed to cache application", "application_id", app.ID, "error", err)
		}
	}
	return nil
}

// Name implements Sink.
func (s *DirectSink) Name() string { return ModeDirect }

// BusSink publishes applications for the worker to store.
type BusSink struct {
	bus domain.EventBus
}

// NewBusSink creates a sink publishing on b.
func NewBusSink(b domain.EventBus) *BusSink {
	return &BusSink{bus: b}
}

// Store publishes app on the completed topic.
func (s *BusSink) Store(ctx context.Context, app *domain.Application) error {
	payload, err := json.Marshal(app)
	if err != nil {
		return fmt.Errorf("failed to marshal application: %w", err)
	}
	return s.bus.Publish(ctx, domain.TopicApplicationCompleted, payload)
}

// Name implements Sink.
func (s *BusSink) Name() string { return ModeAsync }

// NewSink selects a sink for mode.
func NewSink(mode string, repo domain.Repository, b domain.EventBus, c domain.Cache, ttl time.Duration) (Sink, error) {
	switch mode {
	case "", ModeDirect:
		if repo == nil {
			return nil, fmt.Errorf("direct persistence requires a repository")
		}
		return NewDirectSink(repo, c, ttl), nil
	case ModeAsync:
		if b == nil {
			return nil, fmt.Errorf("async persistence requires an event bus")
		}
		return NewBusSink(b), nil
	default:
		return nil, fmt.Errorf("unsupported persistence mode: %s", mode)
	}
}
