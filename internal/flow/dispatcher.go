package flow

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/nutriday/nutribot/internal/messaging"
	"github.com/nutriday/nutribot/internal/models"
	"github.com/nutriday/nutribot/internal/store"
)

const defaultHint = "I did not understand that. Press /help to see what I can do."

const helpText = `I am your AI nutritionist.

/start — set up your profile
/edit — change your data
/menu — get a daily menu
/add_favorite — manage favorite foods
/del_food — manage disliked foods`

// SurveyRouter routes inbound events to an active survey session, if any.
// Implemented by the survey session manager.
type SurveyRouter interface {
	HandleMessage(ctx context.Context, chatID int64, text string) (bool, error)
	HandleCallback(ctx context.Context, ev models.Event) (bool, error)
}

// PlanRequester starts a meal plan generation for a chat. Implemented by the
// plan service, which owns the concurrency guard and quota.
type PlanRequester interface {
	RequestPlan(ctx context.Context, chatID int64) error
}

// Dispatcher is the composition point: it consumes transport events and
// routes each to the active flow based on the chat's current step, or to the
// handler selected by the callback payload prefix.
type Dispatcher struct {
	states     StateStore
	profiles   store.Store
	msg        messaging.Service
	onboarding *Onboarding
	food       *Food
	survey     SurveyRouter
	plans      PlanRequester
	wg         sync.WaitGroup
}

// NewDispatcher wires the dispatcher with all flows.
func NewDispatcher(states StateStore, profiles store.Store, msg messaging.Service,
	onboarding *Onboarding, food *Food, survey SurveyRouter, plans PlanRequester) *Dispatcher {
	return &Dispatcher{
		states:     states,
		profiles:   profiles,
		msg:        msg,
		onboarding: onboarding,
		food:       food,
		survey:     survey,
		plans:      plans,
	}
}

// Run consumes transport events until the channel closes or ctx is done.
// Events are processed one at a time in arrival order; only plan generation
// is handed off, guarded by the plan service's processing set.
func (d *Dispatcher) Run(ctx context.Context) {
	slog.Info("Dispatcher started")
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-d.msg.Events():
			if !ok {
				return
			}
			d.Dispatch(ctx, ev)
		}
	}
}

// Wait blocks until all in-flight plan generations finish.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Dispatch routes a single inbound event.
func (d *Dispatcher) Dispatch(ctx context.Context, ev models.Event) {
	switch ev.Kind {
	case models.EventCallback:
		d.dispatchCallback(ctx, ev)
	case models.EventMessage:
		if ev.Command != "" {
			d.dispatchCommand(ctx, ev)
		} else {
			d.dispatchMessage(ctx, ev)
		}
	}
}

// dispatchCommand handles top-level commands. Any command unconditionally
// clears the chat's flow state before acting.
func (d *Dispatcher) dispatchCommand(ctx context.Context, ev models.Event) {
	slog.Debug("Dispatcher command", "chatID", ev.ChatID, "command", ev.Command)
	d.states.Clear(ev.ChatID)

	var err error
	switch ev.Command {
	case "start":
		err = d.handleStart(ctx, ev)
	case "edit":
		err = d.onboarding.Start(ctx, ev.ChatID)
	case "menu":
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			if err := d.plans.RequestPlan(ctx, ev.ChatID); err != nil {
				slog.Debug("Dispatcher plan request finished with policy outcome", "chatID", ev.ChatID, "reason", err)
			}
		}()
	case "add_favorite":
		err = d.food.ShowList(ctx, ev.ChatID, models.FoodFavorite)
	case "del_food":
		err = d.food.ShowList(ctx, ev.ChatID, models.FoodDisliked)
	case "help":
		_, err = d.msg.SendMessage(ctx, ev.ChatID, helpText)
	default:
		_, err = d.msg.SendMessage(ctx, ev.ChatID, defaultHint)
	}
	if err != nil {
		slog.Error("Dispatcher command handling failed", "error", err, "chatID", ev.ChatID, "command", ev.Command)
	}
}

func (d *Dispatcher) handleStart(ctx context.Context, ev models.Event) error {
	update := models.ProfileUpdate{}
	if ev.Username != "" {
		update.Username = &ev.Username
	}
	if _, err := d.profiles.CreateOrUpdate(ctx, ev.ChatID, update); err != nil {
		return err
	}
	if _, err := d.msg.SendMessage(ctx, ev.ChatID,
		"Hi! I am your AI nutritionist. Let's set up your profile."); err != nil {
		return err
	}
	return d.onboarding.Start(ctx, ev.ChatID)
}

// dispatchMessage routes free text by the chat's current step, falling back
// to an active survey session and finally to the default hint.
func (d *Dispatcher) dispatchMessage(ctx context.Context, ev models.Event) {
	if handled, err := d.onboarding.HandleMessage(ctx, ev.ChatID, ev.Text); handled {
		if err != nil {
			slog.Error("Dispatcher onboarding input failed", "error", err, "chatID", ev.ChatID)
		}
		return
	}

	switch d.states.Get(ev.ChatID) {
	case models.StepAddingFavorite:
		if err := d.food.HandleInput(ctx, ev.ChatID, models.FoodFavorite, ev.Text); err != nil {
			slog.Error("Dispatcher food input failed", "error", err, "chatID", ev.ChatID)
		}
		return
	case models.StepAddingDisliked:
		if err := d.food.HandleInput(ctx, ev.ChatID, models.FoodDisliked, ev.Text); err != nil {
			slog.Error("Dispatcher food input failed", "error", err, "chatID", ev.ChatID)
		}
		return
	}

	if handled, err := d.survey.HandleMessage(ctx, ev.ChatID, ev.Text); handled {
		if err != nil {
			slog.Error("Dispatcher survey input failed", "error", err, "chatID", ev.ChatID)
		}
		return
	}

	if _, err := d.msg.SendMessage(ctx, ev.ChatID, defaultHint); err != nil {
		slog.Error("Dispatcher default hint failed", "error", err, "chatID", ev.ChatID)
	}
}

// dispatchCallback routes button presses by payload prefix.
func (d *Dispatcher) dispatchCallback(ctx context.Context, ev models.Event) {
	data := ev.CallbackData
	slog.Debug("Dispatcher callback", "chatID", ev.ChatID, "data", data)

	if handled, err := d.onboarding.HandleCallback(ctx, ev); handled {
		if err != nil {
			slog.Error("Dispatcher onboarding callback failed", "error", err, "chatID", ev.ChatID)
		}
		return
	}

	var err error
	switch {
	case strings.HasPrefix(data, "survey:"):
		if _, serr := d.survey.HandleCallback(ctx, ev); serr != nil {
			slog.Error("Dispatcher survey callback failed", "error", serr, "chatID", ev.ChatID)
		}
		return
	case data == CallbackAddFavorite:
		d.ack(ctx, ev.CallbackID)
		err = d.food.PromptAdd(ctx, ev.ChatID, models.FoodFavorite)
	case data == CallbackAddDisliked:
		d.ack(ctx, ev.CallbackID)
		err = d.food.PromptAdd(ctx, ev.ChatID, models.FoodDisliked)
	case strings.HasPrefix(data, CallbackRemoveFavorite):
		d.ack(ctx, ev.CallbackID)
		err = d.food.Remove(ctx, ev.ChatID, models.FoodFavorite, strings.TrimPrefix(data, CallbackRemoveFavorite))
	case strings.HasPrefix(data, CallbackRemoveDisliked):
		d.ack(ctx, ev.CallbackID)
		err = d.food.Remove(ctx, ev.ChatID, models.FoodDisliked, strings.TrimPrefix(data, CallbackRemoveDisliked))
	default:
		// Stale or unknown payload; just stop the client spinner.
		d.ack(ctx, ev.CallbackID)
	}
	if err != nil {
		slog.Error("Dispatcher callback handling failed", "error", err, "chatID", ev.ChatID, "data", data)
	}
}

func (d *Dispatcher) ack(ctx context.Context, callbackID string) {
	if callbackID == "" {
		return
	}
	if err := d.msg.AnswerCallback(ctx, callbackID, ""); err != nil {
		slog.Debug("Dispatcher callback ack failed", "error", err)
	}
}
