package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/nutriday/nutribot/internal/messaging"
	"github.com/nutriday/nutribot/internal/models"
	"github.com/nutriday/nutribot/internal/store"
)

// Callback payloads for the food preference keyboards.
const (
	CallbackAddFavorite    = "add_fav"
	CallbackAddDisliked    = "add_dis"
	CallbackRemoveFavorite = "remove_fav:"
	CallbackRemoveDisliked = "remove_dis:"
)

// Label layout constants for removable list entries.
const (
	labelWidth        = 50
	labelPaddingLeft  = 2
	labelPaddingRight = 2
)

// Food implements the favorite/disliked food editing flow: a list view with
// per-entry removal buttons, and an "adding" step that parses comma-separated
// input.
type Food struct {
	states   StateStore
	profiles store.Store
	msg      messaging.Service
}

// NewFood creates the food preference flow.
func NewFood(states StateStore, profiles store.Store, msg messaging.Service) *Food {
	return &Food{states: states, profiles: profiles, msg: msg}
}

// ShowList renders the stored entries of one list, each as a removable
// button row, with a trailing "add new" row.
func (f *Food) ShowList(ctx context.Context, chatID int64, kind models.FoodKind) error {
	profile, err := f.profiles.FindByChatID(ctx, chatID)
	if err != nil {
		return fmt.Errorf("failed to load profile: %w", err)
	}
	if profile == nil {
		_, err := f.msg.SendMessage(ctx, chatID, restartHint)
		return err
	}

	foods := profile.FavoriteFoods
	title := "Your favorite foods:"
	if kind == models.FoodDisliked {
		foods = profile.DislikedFoods
		title = "Your disliked foods:"
	}

	rows := make([][]messaging.Button, 0, len(foods)+1)
	for _, food := range foods {
		rows = append(rows, messaging.Row(messaging.Button{
			Text: removalLabel(food),
			Data: removePrefix(kind) + food,
		}))
	}
	rows = append(rows, messaging.Row(messaging.Button{Text: "➕ Add new", Data: addData(kind)}))

	_, err = f.msg.SendKeyboard(ctx, chatID, title, rows)
	return err
}

// PromptAdd asks for comma-separated entries and marks the chat as adding.
func (f *Food) PromptAdd(ctx context.Context, chatID int64, kind models.FoodKind) error {
	label := "favorite"
	step := models.StepAddingFavorite
	if kind == models.FoodDisliked {
		label = "disliked"
		step = models.StepAddingDisliked
	}
	f.states.Set(chatID, step)
	_, err := f.msg.SendMessage(ctx, chatID,
		fmt.Sprintf("Enter your %s foods separated by commas (up to %d characters each):",
			label, models.MaxFoodEntryLength))
	return err
}

// HandleInput parses comma-separated entries, drops invalid ones, and unions
// the survivors into the target list. An empty survivor set re-prompts
// without mutating state or the profile.
func (f *Food) HandleInput(ctx context.Context, chatID int64, kind models.FoodKind, text string) error {
	prefix := removePrefix(kind)
	var foods []string
	for _, part := range strings.Split(text, ",") {
		entry := strings.TrimSpace(part)
		if entry == "" {
			continue
		}
		if !models.ValidFoodEntry(prefix, entry) {
			continue
		}
		foods = append(foods, entry)
	}

	if len(foods) == 0 {
		_, err := f.msg.SendMessage(ctx, chatID, "Please enter a valid name.")
		return err
	}

	if _, err := f.profiles.AddToList(ctx, chatID, kind, foods); err != nil {
		if errors.Is(err, models.ErrProfileNotFound) {
			f.states.Clear(chatID)
			_, sendErr := f.msg.SendMessage(ctx, chatID, restartHint)
			return sendErr
		}
		slog.Error("Food AddToList failed", "error", err, "chatID", chatID, "kind", kind)
		return fmt.Errorf("failed to update food list: %w", err)
	}
	f.states.Set(chatID, models.StepNone)

	label := "Favorite"
	if kind == models.FoodDisliked {
		label = "Disliked"
	}
	_, err := f.msg.SendMessage(ctx, chatID, label+" foods updated.")
	if err != nil {
		return err
	}
	slog.Info("Food list updated", "chatID", chatID, "kind", kind, "added", len(foods))
	return nil
}

// Remove deletes one entry and re-renders the shorter list.
func (f *Food) Remove(ctx context.Context, chatID int64, kind models.FoodKind, item string) error {
	if _, err := f.profiles.RemoveFromList(ctx, chatID, kind, item); err != nil {
		if errors.Is(err, models.ErrProfileNotFound) {
			_, sendErr := f.msg.SendMessage(ctx, chatID, restartHint)
			return sendErr
		}
		return fmt.Errorf("failed to remove food entry: %w", err)
	}
	return f.ShowList(ctx, chatID, kind)
}

func removePrefix(kind models.FoodKind) string {
	if kind == models.FoodDisliked {
		return CallbackRemoveDisliked
	}
	return CallbackRemoveFavorite
}

func addData(kind models.FoodKind) string {
	if kind == models.FoodDisliked {
		return CallbackAddDisliked
	}
	return CallbackAddFavorite
}

// removalLabel pads the entry so the ❌ marker lines up at the right edge of
// the button.
func removalLabel(text string) string {
	padded := strings.Repeat(" ", labelPaddingLeft) + text
	spaces := labelWidth - utf8.RuneCountInString(padded) - labelPaddingRight - 1
	if spaces < 0 {
		spaces = 0
	}
	return padded + strings.Repeat(" ", spaces) + "❌" + strings.Repeat(" ", labelPaddingRight)
}
