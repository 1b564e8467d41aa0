// Package velocity counts recent credit applications per applicant.
package velocity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/opensource-finance/merlin/internal/domain"
)

// DefaultWindow is the look-back used when none is configured.
const DefaultWindow = 24 * time.Hour

// ErrNoSource is returned when neither a cache nor a repository is available.
var ErrNoSource = errors.New("no velocity data source available")

// Service counts how many applications an applicant submitted in a window.
type Service struct {
	repo   domain.Repository
	cache  domain.Cache
	window time.Duration
	now    func() time.Time
}

// NewService creates a new velocity service. Either repo or cache may be nil.
func NewService(repo domain.Repository, cache domain.Cache, window time.Duration) *Service {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Service{
		repo:   repo,
		cache:  cache,
		window: window,
		now:    time.Now,
	}
}

// Window returns the counting window.
func (s *Service) Window() time.Duration { return s.window }

// Record registers one application for applicant and returns the number of
// applications inside the window, this one included.
//
// The cache counter is authoritative when present. The repository is the
// fallback and only sees applications that have already been persisted.
func (s *Service) Record(ctx context.Context, applicant string) (int64, error) {
	if applicant == "" {
		return 0, fmt.Errorf("%w: applicant is required", domain.ErrInvalidInput)
	}

	if s.cache != nil {
		n, err := s.cache.IncrementCounter(ctx, "velocity:"+applicant, s.window)
		if err == nil {
			return n, nil
		}
		slog.Warn("velocity counter unavailable, falling back to repository",
			"applicant", applicant,
			"error", err,
		)
	}

	if s.repo != nil {
		n, err := s.repo.CountApplicationsSince(ctx, applicant, s.now().Add(-s.window))
		if err != nil {
			return 0, fmt.Errorf("failed to count applications: %w", err)
		}
		return n + 1, nil
	}

	return 0, ErrNoSource
}
