package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/nutriday/nutribot/internal/messaging"
	"github.com/nutriday/nutribot/internal/models"
	"github.com/nutriday/nutribot/internal/store"
)

// Callback payload prefixes for the onboarding choice steps.
const (
	callbackSex      = "sex:"
	callbackActivity = "activity:"
	callbackGoal     = "goal:"
)

const restartHint = "Your data was not found. Press /start to begin."

// Onboarding runs the sequential questionnaire collecting weight, height,
// age, sex, activity factor, and goal. Out-of-range numeric input re-prompts
// the same step; choice steps only accept values from the offered buttons.
type Onboarding struct {
	states   StateStore
	profiles store.Store
	msg      messaging.Service
}

// NewOnboarding creates the onboarding flow.
func NewOnboarding(states StateStore, profiles store.Store, msg messaging.Service) *Onboarding {
	return &Onboarding{states: states, profiles: profiles, msg: msg}
}

// Start begins the questionnaire from the weight step.
func (o *Onboarding) Start(ctx context.Context, chatID int64) error {
	slog.Debug("Onboarding start", "chatID", chatID)
	return o.askWeight(ctx, chatID)
}

// HandleMessage consumes free-text input for the numeric steps. It returns
// false when the chat is not in an onboarding step that expects text.
func (o *Onboarding) HandleMessage(ctx context.Context, chatID int64, text string) (bool, error) {
	switch o.states.Get(chatID) {
	case models.StepWeight:
		return true, o.handleNumeric(ctx, chatID, text, models.ValidWeight,
			"Please enter a number between 40 and 150.",
			func(v float64) models.ProfileUpdate { return models.ProfileUpdate{Weight: &v} },
			o.askHeight)
	case models.StepHeight:
		return true, o.handleNumeric(ctx, chatID, text, models.ValidHeight,
			"Please enter a number between 100 and 220.",
			func(v float64) models.ProfileUpdate { return models.ProfileUpdate{Height: &v} },
			o.askAge)
	case models.StepAge:
		return true, o.handleNumeric(ctx, chatID, text, models.ValidAge,
			"Please enter a number between 14 and 130.",
			func(v float64) models.ProfileUpdate {
				age := int(v)
				return models.ProfileUpdate{Age: &age}
			},
			o.askSex)
	default:
		return false, nil
	}
}

// HandleCallback consumes button presses for the choice steps. Values outside
// the offered set, and presses arriving in the wrong step, are acknowledged
// but otherwise ignored: the UI only offers valid buttons, so anything else
// is a stale press.
func (o *Onboarding) HandleCallback(ctx context.Context, ev models.Event) (bool, error) {
	data := ev.CallbackData
	step := o.states.Get(ev.ChatID)

	switch {
	case strings.HasPrefix(data, callbackSex):
		if step != models.StepSex {
			o.ack(ctx, ev.CallbackID)
			return true, nil
		}
		value := strings.TrimPrefix(data, callbackSex)
		if value != "true" && value != "false" {
			o.ack(ctx, ev.CallbackID)
			return true, nil
		}
		sex := value == "true"
		if err := o.saveField(ctx, ev.ChatID, models.ProfileUpdate{Sex: &sex}); err != nil {
			if errors.Is(err, models.ErrProfileNotFound) {
				o.ack(ctx, ev.CallbackID)
				return true, nil
			}
			return true, err
		}
		o.ack(ctx, ev.CallbackID)
		return true, o.askActivity(ctx, ev.ChatID)

	case strings.HasPrefix(data, callbackActivity):
		if step != models.StepActivity {
			o.ack(ctx, ev.CallbackID)
			return true, nil
		}
		factor, err := strconv.ParseFloat(strings.TrimPrefix(data, callbackActivity), 64)
		if err != nil || !models.ValidActivityFactor(factor) {
			o.ack(ctx, ev.CallbackID)
			return true, nil
		}
		if err := o.saveField(ctx, ev.ChatID, models.ProfileUpdate{ActivityFactor: &factor}); err != nil {
			if errors.Is(err, models.ErrProfileNotFound) {
				o.ack(ctx, ev.CallbackID)
				return true, nil
			}
			return true, err
		}
		o.ack(ctx, ev.CallbackID)
		return true, o.askGoal(ctx, ev.ChatID)

	case strings.HasPrefix(data, callbackGoal):
		if step != models.StepGoal {
			o.ack(ctx, ev.CallbackID)
			return true, nil
		}
		goal := strings.TrimPrefix(data, callbackGoal)
		if !models.ValidGoal(goal) {
			o.ack(ctx, ev.CallbackID)
			return true, nil
		}
		if err := o.saveField(ctx, ev.ChatID, models.ProfileUpdate{Goal: &goal}); err != nil {
			if errors.Is(err, models.ErrProfileNotFound) {
				o.ack(ctx, ev.CallbackID)
				return true, nil
			}
			return true, err
		}
		o.ack(ctx, ev.CallbackID)
		o.states.Set(ev.ChatID, models.StepNone)
		return true, o.Confirm(ctx, ev.ChatID)

	default:
		return false, nil
	}
}

// Confirm sends the profile summary with the computed calorie target.
func (o *Onboarding) Confirm(ctx context.Context, chatID int64) error {
	profile, err := o.profiles.FindByChatID(ctx, chatID)
	if err != nil {
		return fmt.Errorf("failed to load profile: %w", err)
	}
	if profile == nil {
		_, err := o.msg.SendMessage(ctx, chatID, restartHint)
		return err
	}

	sexLabel := "Female"
	if profile.Sex {
		sexLabel = "Male"
	}
	summary := fmt.Sprintf(`Your data:
Weight: %.0f kg
Height: %.0f cm
Age: %d years
Sex: %s
Goal: %s
Daily calorie target: %d

To change your data, press /edit
To get a menu, press /menu
To add favorite foods, press /add_favorite
To exclude foods, press /del_food`,
		profile.Weight, profile.Height, profile.Age, sexLabel,
		goalLabel(profile.Goal), profile.DailyCalories())

	_, err = o.msg.SendMessage(ctx, chatID, summary)
	if err != nil {
		return err
	}
	slog.Info("Onboarding completed", "chatID", chatID, "calories", profile.DailyCalories())
	return nil
}

func (o *Onboarding) handleNumeric(ctx context.Context, chatID int64, text string,
	valid func(float64) bool, rangeMsg string,
	makeUpdate func(float64) models.ProfileUpdate,
	next func(context.Context, int64) error) error {

	value, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
	if err != nil || !valid(value) {
		// Re-prompt the same step; state stays put.
		_, sendErr := o.msg.SendMessage(ctx, chatID, rangeMsg)
		return sendErr
	}
	if err := o.saveField(ctx, chatID, makeUpdate(value)); err != nil {
		if errors.Is(err, models.ErrProfileNotFound) {
			// Already handled: state cleared, restart hint sent.
			return nil
		}
		return err
	}
	return next(ctx, chatID)
}

// saveField writes one answer to the profile. When the profile is gone it
// clears flow state, tells the user to /start, and reports ErrProfileNotFound
// so the caller stops instead of advancing to the next step.
func (o *Onboarding) saveField(ctx context.Context, chatID int64, update models.ProfileUpdate) error {
	if _, err := o.profiles.SetFields(ctx, chatID, update); err != nil {
		if errors.Is(err, models.ErrProfileNotFound) {
			o.states.Clear(chatID)
			if _, sendErr := o.msg.SendMessage(ctx, chatID, restartHint); sendErr != nil {
				slog.Error("Onboarding restart hint failed", "error", sendErr, "chatID", chatID)
			}
			return models.ErrProfileNotFound
		}
		slog.Error("Onboarding profile update failed", "error", err, "chatID", chatID)
		return fmt.Errorf("failed to update profile: %w", err)
	}
	return nil
}

func (o *Onboarding) askWeight(ctx context.Context, chatID int64) error {
	o.states.Set(chatID, models.StepWeight)
	_, err := o.msg.SendMessage(ctx, chatID, "Enter your weight (kg):")
	return err
}

func (o *Onboarding) askHeight(ctx context.Context, chatID int64) error {
	o.states.Set(chatID, models.StepHeight)
	_, err := o.msg.SendMessage(ctx, chatID, "Enter your height (cm):")
	return err
}

func (o *Onboarding) askAge(ctx context.Context, chatID int64) error {
	o.states.Set(chatID, models.StepAge)
	_, err := o.msg.SendMessage(ctx, chatID, "Enter your age:")
	return err
}

func (o *Onboarding) askSex(ctx context.Context, chatID int64) error {
	o.states.Set(chatID, models.StepSex)
	_, err := o.msg.SendKeyboard(ctx, chatID, "Select your sex:", [][]messaging.Button{
		messaging.Row(messaging.Button{Text: "Male", Data: "sex:true"}),
		messaging.Row(messaging.Button{Text: "Female", Data: "sex:false"}),
	})
	return err
}

func (o *Onboarding) askActivity(ctx context.Context, chatID int64) error {
	o.states.Set(chatID, models.StepActivity)
	_, err := o.msg.SendKeyboard(ctx, chatID, "Select your activity level:", [][]messaging.Button{
		messaging.Row(messaging.Button{Text: "Sedentary", Data: "activity:1.2"}),
		messaging.Row(messaging.Button{Text: "Light activity", Data: "activity:1.375"}),
		messaging.Row(messaging.Button{Text: "Moderate activity", Data: "activity:1.55"}),
		messaging.Row(messaging.Button{Text: "High activity", Data: "activity:1.725"}),
	})
	return err
}

func (o *Onboarding) askGoal(ctx context.Context, chatID int64) error {
	o.states.Set(chatID, models.StepGoal)
	_, err := o.msg.SendKeyboard(ctx, chatID, "What is your goal?", [][]messaging.Button{
		messaging.Row(messaging.Button{Text: "Lose weight", Data: "goal:lose_weight"}),
		messaging.Row(messaging.Button{Text: "Gain weight", Data: "goal:gain_weight"}),
		messaging.Row(messaging.Button{Text: "Stay in shape", Data: "goal:maintain"}),
	})
	return err
}

func (o *Onboarding) ack(ctx context.Context, callbackID string) {
	if callbackID == "" {
		return
	}
	if err := o.msg.AnswerCallback(ctx, callbackID, ""); err != nil {
		slog.Debug("Onboarding callback ack failed", "error", err)
	}
}

func goalLabel(goal string) string {
	switch goal {
	case models.GoalLoseWeight:
		return "Lose weight"
	case models.GoalGainWeight:
		return "Gain weight"
	default:
		return "Stay in shape"
	}
}
