package flow

import (
	"context"
	"strings"
	"testing"

	"github.com/nutriday/nutribot/internal/models"
	"github.com/nutriday/nutribot/internal/store"
)

func newFoodFixture(t *testing.T) (*Food, *InMemoryStateStore, *store.InMemoryStore, *mockMessenger) {
	t.Helper()
	states := NewInMemoryStateStore()
	profiles := store.NewInMemoryStore()
	msg := newMockMessenger()
	return NewFood(states, profiles, msg), states, profiles, msg
}

func TestFoodHandleInputParsesAndStores(t *testing.T) {
	ctx := context.Background()
	food, states, profiles, _ := newFoodFixture(t)
	mustCreateProfile(t, profiles, 1)
	states.Set(1, models.StepAddingFavorite)

	if err := food.HandleInput(ctx, 1, models.FoodFavorite, " apples, oats ,, salmon , apples"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	p, _ := profiles.FindByChatID(ctx, 1)
	if len(p.FavoriteFoods) != 3 {
		t.Errorf("expected 3 entries, got %v", p.FavoriteFoods)
	}
	if states.Get(1) != models.StepNone {
		t.Error("successful input should clear flow state")
	}
}

func TestFoodHandleInputDropsOversizedEntries(t *testing.T) {
	ctx := context.Background()
	food, states, profiles, _ := newFoodFixture(t)
	mustCreateProfile(t, profiles, 1)
	states.Set(1, models.StepAddingFavorite)

	thirty := strings.Repeat("a", 30)
	thirtyOne := strings.Repeat("b", 31)
	if err := food.HandleInput(ctx, 1, models.FoodFavorite, thirty+","+thirtyOne); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	p, _ := profiles.FindByChatID(ctx, 1)
	if len(p.FavoriteFoods) != 1 || p.FavoriteFoods[0] != thirty {
		t.Errorf("expected only the 30-char entry, got %v", p.FavoriteFoods)
	}
}

func TestFoodHandleInputDropsEntriesOverCallbackBudget(t *testing.T) {
	ctx := context.Background()
	food, states, profiles, _ := newFoodFixture(t)
	mustCreateProfile(t, profiles, 1)
	states.Set(1, models.StepAddingDisliked)

	// 27 two-byte runes: within 30 characters, but 11 + 54 = 65 bytes of
	// callback payload, one over the 64-byte budget.
	overBudget := strings.Repeat("щ", 27)
	if err := food.HandleInput(ctx, 1, models.FoodDisliked, overBudget+",celery"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	p, _ := profiles.FindByChatID(ctx, 1)
	if len(p.DislikedFoods) != 1 || p.DislikedFoods[0] != "celery" {
		t.Errorf("expected only 'celery', got %v", p.DislikedFoods)
	}
}

func TestFoodHandleInputEmptyResultReprompts(t *testing.T) {
	ctx := context.Background()
	food, states, profiles, msg := newFoodFixture(t)
	mustCreateProfile(t, profiles, 1)
	states.Set(1, models.StepAddingFavorite)

	if err := food.HandleInput(ctx, 1, models.FoodFavorite, " , "+strings.Repeat("x", 31)+" ,"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if states.Get(1) != models.StepAddingFavorite {
		t.Error("state must stay on the adding step after a rejected input")
	}
	p, _ := profiles.FindByChatID(ctx, 1)
	if len(p.FavoriteFoods) != 0 {
		t.Errorf("profile must not be mutated, got %v", p.FavoriteFoods)
	}
	last := msg.lastMessage()
	if last == nil || !strings.Contains(last.text, "valid name") {
		t.Errorf("expected error re-prompt, got %+v", last)
	}
}

func TestFoodAddingSameEntryTwiceStoresOnce(t *testing.T) {
	ctx := context.Background()
	food, states, profiles, _ := newFoodFixture(t)
	mustCreateProfile(t, profiles, 1)

	states.Set(1, models.StepAddingFavorite)
	if err := food.HandleInput(ctx, 1, models.FoodFavorite, "apples"); err != nil {
		t.Fatal(err)
	}
	states.Set(1, models.StepAddingFavorite)
	if err := food.HandleInput(ctx, 1, models.FoodFavorite, "apples"); err != nil {
		t.Fatal(err)
	}
	p, _ := profiles.FindByChatID(ctx, 1)
	if len(p.FavoriteFoods) != 1 {
		t.Errorf("duplicate add should store one entry, got %v", p.FavoriteFoods)
	}
}

func TestFoodShowListRendersRemovableRows(t *testing.T) {
	ctx := context.Background()
	food, _, profiles, msg := newFoodFixture(t)
	mustCreateProfile(t, profiles, 1)
	if _, err := profiles.AddToList(ctx, 1, models.FoodFavorite, []string{"apples", "oats"}); err != nil {
		t.Fatal(err)
	}

	if err := food.ShowList(ctx, 1, models.FoodFavorite); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	last := msg.lastMessage()
	if last == nil {
		t.Fatal("expected a keyboard message")
	}
	// Two entry rows plus the add row.
	if len(last.rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(last.rows))
	}
	if last.rows[0][0].Data != "remove_fav:apples" {
		t.Errorf("unexpected callback payload %q", last.rows[0][0].Data)
	}
	if last.rows[2][0].Data != CallbackAddFavorite {
		t.Errorf("last row should be the add action, got %q", last.rows[2][0].Data)
	}
}

func TestFoodRemoveRerendersShorterList(t *testing.T) {
	ctx := context.Background()
	food, _, profiles, msg := newFoodFixture(t)
	mustCreateProfile(t, profiles, 1)
	if _, err := profiles.AddToList(ctx, 1, models.FoodDisliked, []string{"celery", "liver"}); err != nil {
		t.Fatal(err)
	}

	if err := food.Remove(ctx, 1, models.FoodDisliked, "celery"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	p, _ := profiles.FindByChatID(ctx, 1)
	if len(p.DislikedFoods) != 1 || p.DislikedFoods[0] != "liver" {
		t.Errorf("expected only 'liver' left, got %v", p.DislikedFoods)
	}
	last := msg.lastMessage()
	if last == nil || len(last.rows) != 2 {
		t.Errorf("expected re-rendered list with 2 rows, got %+v", last)
	}
}
