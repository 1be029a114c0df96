package plan

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nutriday/nutribot/internal/messaging"
	"github.com/nutriday/nutribot/internal/models"
	"github.com/nutriday/nutribot/internal/store"
)

type fakeGenerator struct {
	mu      sync.Mutex
	calls   int
	text    string
	err     error
	started chan struct{} // optional: closed on first call
	release chan struct{} // optional: call blocks until closed
}

func (g *fakeGenerator) GenerateMealPlan(_ context.Context, calories int, _, _ []string) (string, error) {
	g.mu.Lock()
	g.calls++
	first := g.calls == 1
	g.mu.Unlock()
	if first && g.started != nil {
		close(g.started)
	}
	if g.release != nil {
		<-g.release
	}
	if g.err != nil {
		return "", g.err
	}
	return g.text, nil
}

func (g *fakeGenerator) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

type sentRecord struct {
	chatID int64
	text   string
}

type editRecord struct {
	chatID    int64
	messageID int
	text      string
}

type fakeMessenger struct {
	mu     sync.Mutex
	sent   []sentRecord
	edits  []editRecord
	nextID int
}

func (f *fakeMessenger) Start(context.Context) error { return nil }
func (f *fakeMessenger) Stop() error                 { return nil }
func (f *fakeMessenger) Events() <-chan models.Event { return nil }

func (f *fakeMessenger) SendMessage(_ context.Context, chatID int64, text string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.sent = append(f.sent, sentRecord{chatID: chatID, text: text})
	return f.nextID, nil
}

func (f *fakeMessenger) SendKeyboard(ctx context.Context, chatID int64, text string, _ [][]messaging.Button) (int, error) {
	return f.SendMessage(ctx, chatID, text)
}

func (f *fakeMessenger) EditMessage(_ context.Context, chatID int64, messageID int, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edits = append(f.edits, editRecord{chatID: chatID, messageID: messageID, text: text})
	return nil
}

func (f *fakeMessenger) AnswerCallback(context.Context, string, string) error { return nil }

func (f *fakeMessenger) lastSent() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		return ""
	}
	return f.sent[len(f.sent)-1].text
}

func (f *fakeMessenger) lastEdit() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.edits) == 0 {
		return ""
	}
	return f.edits[len(f.edits)-1].text
}

func seedComplete(t *testing.T, s store.Store, chatID int64) {
	t.Helper()
	w, h, a := 70.0, 175.0, 30
	sex, act, goal := true, 1.55, models.GoalMaintain
	_, err := s.CreateOrUpdate(context.Background(), chatID, models.ProfileUpdate{
		Weight: &w, Height: &h, Age: &a, Sex: &sex,
		ActivityFactor: &act, Goal: &goal,
	})
	if err != nil {
		t.Fatalf("CreateOrUpdate failed: %v", err)
	}
}

func newTestService(t *testing.T, gen *fakeGenerator) (*Service, *fakeMessenger, store.Store) {
	t.Helper()
	profiles := store.NewInMemoryStore()
	msg := &fakeMessenger{}
	svc := NewService(profiles, msg, gen, time.UTC)
	svc.now = func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) }
	return svc, msg, profiles
}

func TestRequestPlanSuccess(t *testing.T) {
	ctx := context.Background()
	gen := &fakeGenerator{text: "Breakfast: oatmeal"}
	svc, msg, profiles := newTestService(t, gen)
	seedComplete(t, profiles, 42)

	if err := svc.RequestPlan(ctx, 42); err != nil {
		t.Fatalf("RequestPlan failed: %v", err)
	}

	if got := msg.lastSent(); !strings.Contains(got, "Preparing") {
		t.Errorf("placeholder message = %q", got)
	}
	if got := msg.lastEdit(); got != "Breakfast: oatmeal" {
		t.Errorf("final edit = %q", got)
	}

	profile, _ := profiles.FindByChatID(ctx, 42)
	if profile.GenerationsTotal != 1 || profile.GenerationsToday != 1 {
		t.Errorf("counters = %d/%d, want 1/1", profile.GenerationsTotal, profile.GenerationsToday)
	}
	if profile.FirstInit == nil {
		t.Error("FirstInit should be set on the first generation")
	}
	if profile.LastGeneration == nil {
		t.Error("LastGeneration should be set")
	}
}

func TestRequestPlanFirstInitSetOnce(t *testing.T) {
	ctx := context.Background()
	gen := &fakeGenerator{text: "menu"}
	svc, _, profiles := newTestService(t, gen)
	seedComplete(t, profiles, 42)

	if err := svc.RequestPlan(ctx, 42); err != nil {
		t.Fatalf("first RequestPlan failed: %v", err)
	}
	first, _ := profiles.FindByChatID(ctx, 42)

	svc.now = func() time.Time { return time.Date(2025, 6, 1, 13, 0, 0, 0, time.UTC) }
	if err := svc.RequestPlan(ctx, 42); err != nil {
		t.Fatalf("second RequestPlan failed: %v", err)
	}
	second, _ := profiles.FindByChatID(ctx, 42)

	if !second.FirstInit.Equal(*first.FirstInit) {
		t.Errorf("FirstInit changed from %v to %v", first.FirstInit, second.FirstInit)
	}
	if second.GenerationsTotal != 2 || second.GenerationsToday != 2 {
		t.Errorf("counters = %d/%d, want 2/2", second.GenerationsTotal, second.GenerationsToday)
	}
}

func TestRequestPlanIncompleteProfile(t *testing.T) {
	ctx := context.Background()
	gen := &fakeGenerator{text: "menu"}
	svc, msg, profiles := newTestService(t, gen)
	if _, err := profiles.CreateOrUpdate(ctx, 42, models.ProfileUpdate{}); err != nil {
		t.Fatalf("CreateOrUpdate failed: %v", err)
	}

	err := svc.RequestPlan(ctx, 42)
	if !errors.Is(err, models.ErrProfileNotFound) {
		t.Fatalf("err = %v, want ErrProfileNotFound", err)
	}
	if !strings.Contains(msg.lastSent(), "/start") {
		t.Errorf("expected restart hint, got %q", msg.lastSent())
	}
	if gen.callCount() != 0 {
		t.Error("generator should not run for an incomplete profile")
	}
}

func TestRequestPlanMissingProfile(t *testing.T) {
	ctx := context.Background()
	svc, msg, _ := newTestService(t, &fakeGenerator{text: "menu"})

	err := svc.RequestPlan(ctx, 99)
	if !errors.Is(err, models.ErrProfileNotFound) {
		t.Fatalf("err = %v, want ErrProfileNotFound", err)
	}
	if !strings.Contains(msg.lastSent(), "/start") {
		t.Errorf("expected restart hint, got %q", msg.lastSent())
	}
}

func TestRequestPlanQuotaExceeded(t *testing.T) {
	ctx := context.Background()
	gen := &fakeGenerator{text: "menu"}
	svc, msg, profiles := newTestService(t, gen)
	seedComplete(t, profiles, 42)

	last := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	today := DailyQuota
	if _, err := profiles.SetFields(ctx, 42, models.ProfileUpdate{
		GenerationsToday: &today,
		LastGeneration:   &last,
	}); err != nil {
		t.Fatalf("SetFields failed: %v", err)
	}

	err := svc.RequestPlan(ctx, 42)
	if !errors.Is(err, models.ErrQuotaExceeded) {
		t.Fatalf("err = %v, want ErrQuotaExceeded", err)
	}
	if !strings.Contains(msg.lastSent(), "limit") {
		t.Errorf("expected quota notice, got %q", msg.lastSent())
	}
	if gen.callCount() != 0 {
		t.Error("generator should not run past the quota")
	}
}

func TestRequestPlanQuotaResetsNextDay(t *testing.T) {
	ctx := context.Background()
	gen := &fakeGenerator{text: "menu"}
	svc, _, profiles := newTestService(t, gen)
	seedComplete(t, profiles, 42)

	// Counter exhausted yesterday; today it no longer applies.
	last := time.Date(2025, 5, 31, 23, 0, 0, 0, time.UTC)
	today := DailyQuota
	if _, err := profiles.SetFields(ctx, 42, models.ProfileUpdate{
		GenerationsToday: &today,
		LastGeneration:   &last,
	}); err != nil {
		t.Fatalf("SetFields failed: %v", err)
	}

	if err := svc.RequestPlan(ctx, 42); err != nil {
		t.Fatalf("RequestPlan failed: %v", err)
	}
	profile, _ := profiles.FindByChatID(ctx, 42)
	if profile.GenerationsToday != 1 {
		t.Errorf("GenerationsToday = %d, want 1 after rollover", profile.GenerationsToday)
	}
}

func TestRequestPlanGeneratorError(t *testing.T) {
	ctx := context.Background()
	gen := &fakeGenerator{err: errors.New("upstream unavailable")}
	svc, msg, profiles := newTestService(t, gen)
	seedComplete(t, profiles, 42)

	if err := svc.RequestPlan(ctx, 42); err == nil {
		t.Fatal("expected error from failed generation")
	}
	if !strings.Contains(msg.lastEdit(), "try again") {
		t.Errorf("expected failure notice edit, got %q", msg.lastEdit())
	}
	profile, _ := profiles.FindByChatID(ctx, 42)
	if profile.GenerationsTotal != 0 || profile.GenerationsToday != 0 {
		t.Errorf("counters = %d/%d, want 0/0 after failure", profile.GenerationsTotal, profile.GenerationsToday)
	}
	if profile.FirstInit != nil {
		t.Error("FirstInit should not be set after failure")
	}
}

func TestRequestPlanConcurrentGuard(t *testing.T) {
	ctx := context.Background()
	gen := &fakeGenerator{
		text:    "menu",
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	svc, msg, profiles := newTestService(t, gen)
	seedComplete(t, profiles, 42)

	done := make(chan error, 1)
	go func() { done <- svc.RequestPlan(ctx, 42) }()
	<-gen.started

	err := svc.RequestPlan(ctx, 42)
	if !errors.Is(err, models.ErrAlreadyProcessing) {
		t.Fatalf("err = %v, want ErrAlreadyProcessing", err)
	}
	if !strings.Contains(msg.lastSent(), "already") {
		t.Errorf("expected busy notice, got %q", msg.lastSent())
	}

	close(gen.release)
	if err := <-done; err != nil {
		t.Fatalf("in-flight request failed: %v", err)
	}
	if gen.callCount() != 1 {
		t.Errorf("generator calls = %d, want 1", gen.callCount())
	}

	// Guard released: a later request succeeds.
	svc.now = func() time.Time { return time.Date(2025, 6, 1, 14, 0, 0, 0, time.UTC) }
	if err := svc.RequestPlan(ctx, 42); err != nil {
		t.Fatalf("post-release request failed: %v", err)
	}
}
