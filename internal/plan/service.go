// Package plan generates daily meal plans, enforcing the per-chat
// concurrency guard and the daily generation quota.
package plan

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nutriday/nutribot/internal/messaging"
	"github.com/nutriday/nutribot/internal/models"
	"github.com/nutriday/nutribot/internal/store"
)

// DailyQuota is the number of generations allowed per chat per calendar day.
// Days roll over at local midnight in the service's reference timezone.
const DailyQuota = 15

const (
	restartHint   = "Your data was not found. Press /start to begin."
	busyNotice    = "⏳ Your menu is already being prepared, please wait."
	quotaNotice   = "You have reached today's limit of %d menus. Come back tomorrow!"
	preparingText = "⏳ Preparing your menu…"
	failureNotice = "Something went wrong while preparing your menu. Please try again later."
)

// Generator produces a meal plan for the given calorie target and food
// preferences.
type Generator interface {
	GenerateMealPlan(ctx context.Context, calories int, favorite, disliked []string) (string, error)
}

// Service owns plan generation policy. At most one generation per chat runs
// at a time, and each chat is limited to DailyQuota generations per day.
type Service struct {
	mu         sync.Mutex
	processing map[int64]struct{}

	profiles store.Store
	msg      messaging.Service
	gen      Generator
	loc      *time.Location

	quota int
	now   func() time.Time
}

// NewService creates a plan service. loc fixes the calendar used for the
// daily quota rollover.
func NewService(profiles store.Store, msg messaging.Service, gen Generator, loc *time.Location) *Service {
	return &Service{
		processing: make(map[int64]struct{}),
		profiles:   profiles,
		msg:        msg,
		gen:        gen,
		loc:        loc,
		quota:      DailyQuota,
		now:        time.Now,
	}
}

// RequestPlan runs one generation for the chat. Policy refusals (a plan
// already in flight, quota exhausted, missing or incomplete profile) notify
// the user and return a sentinel error; counters are only advanced on
// successful generation.
func (s *Service) RequestPlan(ctx context.Context, chatID int64) error {
	if !s.acquire(chatID) {
		slog.Debug("Plan request rejected, generation in flight", "chatID", chatID)
		if _, err := s.msg.SendMessage(ctx, chatID, busyNotice); err != nil {
			slog.Error("Plan busy notice failed", "error", err, "chatID", chatID)
		}
		return models.ErrAlreadyProcessing
	}
	defer s.release(chatID)

	profile, err := s.profiles.FindByChatID(ctx, chatID)
	if err != nil {
		return fmt.Errorf("failed to load profile: %w", err)
	}
	if profile == nil || !profile.Complete() {
		if _, err := s.msg.SendMessage(ctx, chatID, restartHint); err != nil {
			slog.Error("Plan restart hint failed", "error", err, "chatID", chatID)
		}
		return models.ErrProfileNotFound
	}

	now := s.now()
	usedToday := s.generationsToday(profile, now)
	if usedToday >= s.quota {
		slog.Info("Plan request rejected, daily quota exhausted", "chatID", chatID, "used", usedToday)
		if _, err := s.msg.SendMessage(ctx, chatID, fmt.Sprintf(quotaNotice, s.quota)); err != nil {
			slog.Error("Plan quota notice failed", "error", err, "chatID", chatID)
		}
		return models.ErrQuotaExceeded
	}

	messageID, err := s.msg.SendMessage(ctx, chatID, preparingText)
	if err != nil {
		return fmt.Errorf("failed to send placeholder message: %w", err)
	}

	calories := profile.DailyCalories()
	text, err := s.gen.GenerateMealPlan(ctx, calories, profile.FavoriteFoods, profile.DislikedFoods)
	if err != nil {
		slog.Error("Plan generation failed", "error", err, "chatID", chatID)
		if editErr := s.msg.EditMessage(ctx, chatID, messageID, failureNotice); editErr != nil {
			slog.Error("Plan failure notice failed", "error", editErr, "chatID", chatID)
		}
		return fmt.Errorf("failed to generate meal plan: %w", err)
	}

	if err := s.msg.EditMessage(ctx, chatID, messageID, text); err != nil {
		return fmt.Errorf("failed to deliver meal plan: %w", err)
	}

	total := profile.GenerationsTotal + 1
	today := usedToday + 1
	update := models.ProfileUpdate{
		GenerationsTotal: &total,
		GenerationsToday: &today,
		LastGeneration:   &now,
	}
	if profile.FirstInit == nil {
		update.FirstInit = &now
	}
	if _, err := s.profiles.SetFields(ctx, chatID, update); err != nil {
		return fmt.Errorf("failed to record generation: %w", err)
	}

	slog.Info("Plan generated", "chatID", chatID, "calories", calories, "usedToday", today)
	return nil
}

// generationsToday returns the quota-relevant count, treating a counter from
// a previous calendar day as zero.
func (s *Service) generationsToday(profile *models.UserProfile, now time.Time) int {
	if profile.LastGeneration == nil {
		return 0
	}
	if !sameDay(*profile.LastGeneration, now, s.loc) {
		return 0
	}
	return profile.GenerationsToday
}

func (s *Service) acquire(chatID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.processing[chatID]; busy {
		return false
	}
	s.processing[chatID] = struct{}{}
	return true
}

func (s *Service) release(chatID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.processing, chatID)
}

func sameDay(a, b time.Time, loc *time.Location) bool {
	ay, am, ad := a.In(loc).Date()
	by, bm, bd := b.In(loc).Date()
	return ay == by && am == bm && ad == bd
}
