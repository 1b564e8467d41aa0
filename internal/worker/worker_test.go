package worker

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/opensource-finance/merlin/internal/bus"
	"github.com/opensource-finance/merlin/internal/cache"
	"github.com/opensource-finance/merlin/internal/domain"
	"github.com/opensource-finance/merlin/internal/repository"
)

func newRepo(t *testing.T) domain.Repository {
	t.Helper()
	repo, err := repository.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "worker-test.db"),
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

type stubDecider struct {
	decision *domain.Decision
	err      error
	got      domain.Profile
}

func (s *stubDecider) Decide(_ context.Context, profile domain.Profile) (*domain.Decision, error) {
	s.got = profile
	return s.decision, s.err
}

func TestWorkerStartAndStop(t *testing.T) {
	eventBus := bus.NewChannelBus(100)
	defer eventBus.Close()

	w := NewWorker(eventBus, newRepo(t), nil, &stubDecider{})

	if err := w.Start(Config{Persist: true, ServeDecisions: true}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	stats := w.GetStats()
	if stats.SubscriptionCount != 2 {
		t.Errorf("expected 2 subscriptions, got %d", stats.SubscriptionCount)
	}

	if err := w.Stop(); err != nil {
		t.Errorf("Stop failed: %v", err)
	}
	if stats := w.GetStats(); stats.SubscriptionCount != 0 {
		t.Errorf("expected 0 subscriptions after stop, got %d", stats.SubscriptionCount)
	}
}

func TestWorkerStartRequirements(t *testing.T) {
	eventBus := bus.NewChannelBus(10)
	defer eventBus.Close()

	if err := NewWorker(eventBus, nil, nil, nil).Start(Config{Persist: true}); err == nil {
		t.Error("expected error without repository")
	}
	if err := NewWorker(eventBus, nil, nil, nil).Start(Config{ServeDecisions: true}); err == nil {
		t.Error("expected error without decider")
	}
}

func TestWorkerStoresCompletedApplications(t *testing.T) {
	eventBus := bus.NewChannelBus(100)
	defer eventBus.Close()

	repo := newRepo(t)
	lru := cache.NewLRUCache(10)
	w := NewWorker(eventBus, repo, lru, nil)
	if err := w.Start(Config{Persist: true, CacheTTL: time.Minute}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer w.Stop()

	ctx := context.Background()
	score := 609
	app := domain.Application{
		ID:        "app-async-1",
		Applicant: "CUS_0x1",
		Profile:   domain.Profile{"customer_id": "CUS_0x1"},
		Decision:  &domain.Decision{ID: "app-async-1", Status: domain.StatusOK, CreditScore: &score},
		CreatedAt: time.Now().UTC(),
	}
	payload, _ := json.Marshal(app)
	if err := eventBus.Publish(ctx, domain.TopicApplicationCompleted, payload); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for w.GetStats().Stored == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	got, err := repo.GetApplication(ctx, "app-async-1")
	if err != nil {
		t.Fatalf("expected application to be stored: %v", err)
	}
	if got.Decision.CreditScore == nil || *got.Decision.CreditScore != 609 {
		t.Errorf("unexpected stored decision: %+v", got.Decision)
	}

	cached, _ := cache.GetApplication(ctx, lru, "app-async-1")
	if cached == nil {
		t.Error("expected application to be cached")
	}
}

func TestWorkerCountsFailures(t *testing.T) {
	eventBus := bus.NewChannelBus(100)
	defer eventBus.Close()

	w := NewWorker(eventBus, newRepo(t), nil, nil)
	if err := w.Start(Config{Persist: true}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer w.Stop()

	ctx := context.Background()
	eventBus.Publish(ctx, domain.TopicApplicationCompleted, []byte("not json"))
	eventBus.Publish(ctx, domain.TopicApplicationCompleted, []byte(`{"id": "no-decision"}`))

	deadline := time.Now().Add(2 * time.Second)
	for w.GetStats().Failed < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if stats := w.GetStats(); stats.Failed != 2 || stats.Stored != 0 {
		t.Errorf("expected 2 failures and nothing stored, got %+v", stats)
	}
}

func TestWorkerServesDecisions(t *testing.T) {
	eventBus := bus.NewChannelBus(100)
	defer eventBus.Close()

	decider := &stubDecider{decision: &domain.Decision{ID: "d-1", Status: domain.StatusOK}}
	w := NewWorker(eventBus, nil, nil, decider)
	if err := w.Start(Config{ServeDecisions: true}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer w.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	raw, err := eventBus.Request(ctx, domain.TopicApplicationSubmitted, []byte(`{"age": 34}`))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	var reply Reply
	if err := json.Unmarshal(raw, &reply); err != nil {
		t.Fatalf("failed to decode reply: %v", err)
	}
	if reply.Decision == nil || reply.Decision.ID != "d-1" {
		t.Errorf("unexpected reply: %+v", reply)
	}
	if decider.got["age"] != "34" {
		t.Errorf("expected raw profile to reach the decider, got %v", decider.got)
	}

	decider.err = errors.New("boom")
	raw, err = eventBus.Request(ctx, domain.TopicApplicationSubmitted, []byte(`{}`))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	reply = Reply{}
	json.Unmarshal(raw, &reply)
	if reply.Error != "boom" || reply.Decision != nil {
		t.Errorf("expected error reply, got %+v", reply)
	}

	raw, err = eventBus.Request(ctx, domain.TopicApplicationSubmitted, []byte(`{"nested": {"a": 1}}`))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	reply = Reply{}
	json.Unmarshal(raw, &reply)
	if reply.Error == "" {
		t.Error("expected invalid profile to be reported")
	}
}

func TestSubmit(t *testing.T) {
	eventBus := bus.NewChannelBus(100)
	defer eventBus.Close()

	decider := &stubDecider{decision: &domain.Decision{ID: "d-2", Status: domain.StatusFlagged}}
	w := NewWorker(eventBus, nil, nil, decider)
	if err := w.Start(Config{ServeDecisions: true}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer w.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	d, err := Submit(ctx, eventBus, json.RawMessage(`{"customer_id": "c-9"}`))
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if d.ID != "d-2" || d.Status != domain.StatusFlagged {
		t.Errorf("unexpected decision: %+v", d)
	}

	if _, err := Submit(ctx, eventBus, json.RawMessage(`[1, 2]`)); err == nil {
		t.Error("expected a non-object profile to fail")
	}

	if got := w.GetStats().Decided; got != 1 {
		t.Errorf("expected 1 decided, got %d", got)
	}
}

func TestSubmitWithoutWorker(t *testing.T) {
	eventBus := bus.NewChannelBus(10)
	defer eventBus.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if _, err := Submit(ctx, eventBus, json.RawMessage(`{}`)); err == nil {
		t.Error("expected a timeout with nobody serving decisions")
	}
}
