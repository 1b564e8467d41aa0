package velocity

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/opensource-finance/merlin/internal/cache"
	"github.com/opensource-finance/merlin/internal/domain"
	"github.com/opensource-finance/merlin/internal/repository"
)

func newRepo(t *testing.T) domain.Repository {
	t.Helper()
	repo, err := repository.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "velocity-test.db"),
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestRecordWithCache(t *testing.T) {
	lru := cache.NewLRUCache(100)
	defer lru.Close()

	svc := NewService(nil, lru, time.Hour)
	ctx := context.Background()

	for i := int64(1); i <= 3; i++ {
		n, err := svc.Record(ctx, "CUS_0x1")
		if err != nil {
			t.Fatalf("Record failed: %v", err)
		}
		if n != i {
			t.Errorf("expected %d, got %d", i, n)
		}
	}

	n, _ := svc.Record(ctx, "CUS_0x2")
	if n != 1 {
		t.Errorf("expected applicants to be counted independently, got %d", n)
	}
}

func TestRecordFallsBackToRepository(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()
	now := time.Now().UTC()

	for i := 0; i < 3; i++ {
		app := &domain.Application{
			ID:        fmt.Sprintf("app-%d", i),
			Applicant: "CUS_0x1",
			Profile:   domain.Profile{"customer_id": "CUS_0x1"},
			Decision:  &domain.Decision{ID: fmt.Sprintf("app-%d", i), Status: domain.StatusOK},
			CreatedAt: now.Add(-time.Duration(i) * 20 * time.Minute),
		}
		if err := repo.SaveApplication(ctx, app); err != nil {
			t.Fatalf("SaveApplication failed: %v", err)
		}
	}

	svc := NewService(repo, nil, 30*time.Minute)

	n, err := svc.Record(ctx, "CUS_0x1")
	if err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	// Two stored applications fall inside the window, plus this one.
	if n != 3 {
		t.Errorf("expected 3, got %d", n)
	}

	n, _ = svc.Record(ctx, "CUS_0x9")
	if n != 1 {
		t.Errorf("expected first application to count as 1, got %d", n)
	}
}

type brokenCache struct{ domain.Cache }

func (brokenCache) IncrementCounter(context.Context, string, time.Duration) (int64, error) {
	return 0, errors.New("connection refused")
}

func TestRecordCacheFailure(t *testing.T) {
	svc := NewService(newRepo(t), brokenCache{}, time.Hour)

	n, err := svc.Record(context.Background(), "CUS_0x1")
	if err != nil {
		t.Fatalf("expected repository fallback, got %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1, got %d", n)
	}
}

func TestRecordErrors(t *testing.T) {
	ctx := context.Background()

	if _, err := NewService(nil, nil, time.Hour).Record(ctx, "CUS_0x1"); !errors.Is(err, ErrNoSource) {
		t.Errorf("expected ErrNoSource, got %v", err)
	}

	svc := NewService(nil, cache.NewLRUCache(10), time.Hour)
	if _, err := svc.Record(ctx, ""); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

func TestDefaultWindow(t *testing.T) {
	if w := NewService(nil, nil, 0).Window(); w != DefaultWindow {
		t.Errorf("expected default window, got %v", w)
	}
}
