// Package models defines the core data structures for NutriBot.
//
// It includes the persisted user profile, dialogue flow steps, and the
// transport-agnostic inbound event type shared across modules.
package models

import (
	"errors"
	"math"
	"time"
)

// Goal values selectable during onboarding.
const (
	GoalLoseWeight = "lose_weight"
	GoalGainWeight = "gain_weight"
	GoalMaintain   = "maintain"
)

// ActivityFactors is the fixed set of selectable activity multipliers.
var ActivityFactors = []float64{1.2, 1.375, 1.55, 1.725}

// SurveyID is the identifier of the current satisfaction survey.
// Completion flags in UserProfile.SurveyCompleted are keyed by it.
const SurveyID = "survey1"

// Error variables for policy outcomes and lookup failures.
var (
	ErrProfileNotFound   = errors.New("profile not found")
	ErrQuotaExceeded     = errors.New("daily generation quota exceeded")
	ErrAlreadyProcessing = errors.New("generation already in progress")
)

// UserProfile is the persisted record for a single chat.
// Food lists carry set semantics: no duplicates, insertion order irrelevant.
type UserProfile struct {
	ChatID           int64           `json:"chat_id"`
	Username         string          `json:"username,omitempty"`
	Weight           float64         `json:"weight,omitempty"`
	Height           float64         `json:"height,omitempty"`
	Age              int             `json:"age,omitempty"`
	Sex              bool            `json:"sex"` // true = male
	ActivityFactor   float64         `json:"activity_factor,omitempty"`
	Goal             string          `json:"goal,omitempty"`
	FavoriteFoods    []string        `json:"favorite_foods,omitempty"`
	DislikedFoods    []string        `json:"disliked_foods,omitempty"`
	FirstInit        *time.Time      `json:"first_init,omitempty"`
	GenerationsTotal int             `json:"generations_total"`
	GenerationsToday int             `json:"generations_today"`
	LastGeneration   *time.Time      `json:"last_generation,omitempty"`
	SurveyCompleted  map[string]bool `json:"survey_completed,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// Complete reports whether the profile holds a full set of valid
// onboarding measurements.
func (p *UserProfile) Complete() bool {
	return p != nil && ValidWeight(p.Weight) && ValidHeight(p.Height) &&
		ValidAge(float64(p.Age)) && ValidActivityFactor(p.ActivityFactor) && ValidGoal(p.Goal)
}

// DailyCalories computes the daily calorie target from the profile using
// the Mifflin-St Jeor equation, adjusted by activity factor and goal.
func (p *UserProfile) DailyCalories() int {
	base := 10*p.Weight + 6.25*p.Height - 5*float64(p.Age)
	if p.Sex {
		base += 5
	} else {
		base -= 161
	}
	daily := base * p.ActivityFactor
	switch p.Goal {
	case GoalLoseWeight:
		daily *= 0.85
	case GoalGainWeight:
		daily *= 1.15
	}
	return int(math.Round(daily))
}

// SurveyDone reports whether the given survey has been completed.
func (p *UserProfile) SurveyDone(surveyID string) bool {
	return p.SurveyCompleted != nil && p.SurveyCompleted[surveyID]
}

// ProfileUpdate carries a partial profile update. Nil fields are left
// untouched by Store.SetFields.
type ProfileUpdate struct {
	Username         *string    `json:"username,omitempty"`
	Weight           *float64   `json:"weight,omitempty"`
	Height           *float64   `json:"height,omitempty"`
	Age              *int       `json:"age,omitempty"`
	Sex              *bool      `json:"sex,omitempty"`
	ActivityFactor   *float64   `json:"activity_factor,omitempty"`
	Goal             *string    `json:"goal,omitempty"`
	FirstInit        *time.Time `json:"first_init,omitempty"`
	GenerationsTotal *int       `json:"generations_total,omitempty"`
	GenerationsToday *int       `json:"generations_today,omitempty"`
	LastGeneration   *time.Time `json:"last_generation,omitempty"`
}

// FoodKind selects one of the two food preference lists.
type FoodKind string

const (
	FoodFavorite FoodKind = "favorite"
	FoodDisliked FoodKind = "disliked"
)

// Step identifies the current position of a chat in a multi-turn dialogue.
// StepNone means no flow is active.
type Step string

const (
	StepNone           Step = ""
	StepWeight         Step = "waiting_for_weight"
	StepHeight         Step = "waiting_for_height"
	StepAge            Step = "waiting_for_age"
	StepSex            Step = "waiting_for_sex"
	StepActivity       Step = "waiting_for_activity"
	StepGoal           Step = "waiting_for_goal"
	StepAddingFavorite Step = "adding_favorite_foods"
	StepAddingDisliked Step = "adding_disliked_foods"
)

// EventKind distinguishes inbound transport event types.
type EventKind string

const (
	// EventMessage is a plain text message from the user.
	EventMessage EventKind = "message"
	// EventCallback is an inline button press.
	EventCallback EventKind = "callback"
)

// Event represents a single inbound dialogue event tagged with its chat id.
type Event struct {
	ChatID       int64     `json:"chat_id"`
	Kind         EventKind `json:"kind"`
	Text         string    `json:"text,omitempty"`
	Command      string    `json:"command,omitempty"`
	Username     string    `json:"username,omitempty"`
	MessageID    int       `json:"message_id,omitempty"`
	CallbackID   string    `json:"callback_id,omitempty"`
	CallbackData string    `json:"callback_data,omitempty"`
	Time         int64     `json:"time"`
}
