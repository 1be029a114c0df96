// Package messaging provides the dialogue transport abstraction for NutriBot.
//
// It defines a pluggable Service interface for delivering outbound text and
// inline keyboards and for receiving inbound message / button-press events,
// plus the Telegram implementation used in production.
package messaging

import (
	"context"

	"github.com/nutriday/nutribot/internal/models"
)

// Button is a single inline keyboard button with its callback payload.
type Button struct {
	Text string
	Data string
}

// Row builds one keyboard row from buttons.
func Row(buttons ...Button) []Button {
	return buttons
}

// Service defines a pluggable dialogue transport.
// SendMessage and SendKeyboard return the transport message id so callers can
// later edit the sent message (the "preparing…" → final-plan pattern).
type Service interface {
	// Start begins background event delivery (e.g., long polling).
	Start(ctx context.Context) error

	// Stop stops background processing and closes the event channel.
	Stop() error

	// Events returns the channel of inbound dialogue events.
	Events() <-chan models.Event

	// SendMessage sends plain text to a chat.
	SendMessage(ctx context.Context, chatID int64, text string) (int, error)

	// SendKeyboard sends text with an inline keyboard.
	SendKeyboard(ctx context.Context, chatID int64, text string, rows [][]Button) (int, error)

	// EditMessage replaces the text of a previously sent message.
	EditMessage(ctx context.Context, chatID int64, messageID int, text string) error

	// AnswerCallback acknowledges a button press with optional notice text.
	AnswerCallback(ctx context.Context, callbackID, text string) error
}
