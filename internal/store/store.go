// Package store provides storage backends for NutriBot user profiles.
//
// It includes an in-memory store for tests and development, and persistent
// SQLite and PostgreSQL implementations behind the same interface.
package store

import (
	"context"
	"time"

	"github.com/nutriday/nutribot/internal/models"
)

// Store defines profile persistence operations. Lookups for unknown chat ids
// return (nil, nil); mutations on unknown chat ids return
// models.ErrProfileNotFound unless the operation is an upsert.
type Store interface {
	// FindByChatID returns the profile for a chat id, or nil if none exists.
	FindByChatID(ctx context.Context, chatID int64) (*models.UserProfile, error)

	// CreateOrUpdate upserts a profile, filling defaults on insert, and
	// returns the resulting profile.
	CreateOrUpdate(ctx context.Context, chatID int64, update models.ProfileUpdate) (*models.UserProfile, error)

	// SetFields applies a partial update to an existing profile and returns
	// the updated profile.
	SetFields(ctx context.Context, chatID int64, update models.ProfileUpdate) (*models.UserProfile, error)

	// AddToList unions items into one of the food lists, preserving set
	// semantics (duplicates are dropped).
	AddToList(ctx context.Context, chatID int64, kind models.FoodKind, items []string) (*models.UserProfile, error)

	// RemoveFromList removes a single item from one of the food lists.
	RemoveFromList(ctx context.Context, chatID int64, kind models.FoodKind, item string) (*models.UserProfile, error)

	// SetSurveyCompleted records the completion flag for a survey id.
	SetSurveyCompleted(ctx context.Context, chatID int64, surveyID string, completed bool) error

	// SurveyCandidates returns profiles with FirstInit set whose completion
	// flag for the survey id is not true.
	SurveyCandidates(ctx context.Context, surveyID string) ([]*models.UserProfile, error)

	// List returns a page of profiles and the total profile count.
	List(ctx context.Context, page, limit int) ([]*models.UserProfile, int, error)

	// Delete removes a profile.
	Delete(ctx context.Context, chatID int64) error

	// Close releases underlying resources.
	Close() error
}

// applyUpdate copies the non-nil fields of update into p and bumps UpdatedAt.
func applyUpdate(p *models.UserProfile, update models.ProfileUpdate, now time.Time) {
	if update.Username != nil {
		p.Username = *update.Username
	}
	if update.Weight != nil {
		p.Weight = *update.Weight
	}
	if update.Height != nil {
		p.Height = *update.Height
	}
	if update.Age != nil {
		p.Age = *update.Age
	}
	if update.Sex != nil {
		p.Sex = *update.Sex
	}
	if update.ActivityFactor != nil {
		p.ActivityFactor = *update.ActivityFactor
	}
	if update.Goal != nil {
		p.Goal = *update.Goal
	}
	if update.FirstInit != nil {
		p.FirstInit = update.FirstInit
	}
	if update.GenerationsTotal != nil {
		p.GenerationsTotal = *update.GenerationsTotal
	}
	if update.GenerationsToday != nil {
		p.GenerationsToday = *update.GenerationsToday
	}
	if update.LastGeneration != nil {
		p.LastGeneration = update.LastGeneration
	}
	p.UpdatedAt = now
}

// unionList appends the items missing from list, preserving insertion order.
func unionList(list, items []string) []string {
	seen := make(map[string]struct{}, len(list))
	for _, v := range list {
		seen[v] = struct{}{}
	}
	for _, v := range items {
		if _, ok := seen[v]; !ok {
			seen[v] = struct{}{}
			list = append(list, v)
		}
	}
	return list
}

// removeItem drops the first occurrence of item from list.
func removeItem(list []string, item string) []string {
	for i, v := range list {
		if v == item {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}

// foodList returns a pointer to the addressed list inside p.
func foodList(p *models.UserProfile, kind models.FoodKind) *[]string {
	if kind == models.FoodDisliked {
		return &p.DislikedFoods
	}
	return &p.FavoriteFoods
}
