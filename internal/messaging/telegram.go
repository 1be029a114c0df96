package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/nutriday/nutribot/internal/models"
)

// eventBuffer bounds the inbound event channel.
const eventBuffer = 100

// TelegramService implements Service over the Telegram Bot API using long
// polling.
type TelegramService struct {
	api      *tgbotapi.BotAPI
	events   chan models.Event
	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewTelegramService creates a Telegram transport with the given bot token.
func NewTelegramService(token string) (*TelegramService, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	slog.Info("Telegram bot authorized", "username", api.Self.UserName)
	return &TelegramService{
		api:    api,
		events: make(chan models.Event, eventBuffer),
		stopCh: make(chan struct{}),
	}, nil
}

// Start begins long polling and converting updates to events.
func (s *TelegramService) Start(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := s.api.GetUpdatesChan(u)

	go func() {
		defer close(s.events)
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopCh:
				return
			case update, ok := <-updates:
				if !ok {
					return
				}
				if ev, ok := convertUpdate(update); ok {
					s.events <- ev
				}
			}
		}
	}()

	slog.Info("TelegramService started long polling")
	return nil
}

// Stop halts polling; the event channel closes once the pump drains.
func (s *TelegramService) Stop() error {
	s.stopOnce.Do(func() {
		close(s.stopCh)
		s.api.StopReceivingUpdates()
	})
	slog.Debug("TelegramService stopped")
	return nil
}

// Events returns the inbound event channel.
func (s *TelegramService) Events() <-chan models.Event {
	return s.events
}

// SendMessage sends plain text and returns the sent message id.
func (s *TelegramService) SendMessage(ctx context.Context, chatID int64, text string) (int, error) {
	msg := tgbotapi.NewMessage(chatID, text)
	sent, err := s.api.Send(msg)
	if err != nil {
		slog.Error("TelegramService SendMessage failed", "error", err, "chatID", chatID)
		return 0, fmt.Errorf("failed to send message to %d: %w", chatID, err)
	}
	return sent.MessageID, nil
}

// SendKeyboard sends text with the given inline keyboard rows.
func (s *TelegramService) SendKeyboard(ctx context.Context, chatID int64, text string, rows [][]Button) (int, error) {
	keyboard := make([][]tgbotapi.InlineKeyboardButton, 0, len(rows))
	for _, row := range rows {
		btns := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, b := range row {
			btns = append(btns, tgbotapi.NewInlineKeyboardButtonData(b.Text, b.Data))
		}
		keyboard = append(keyboard, btns)
	}
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(keyboard...)
	sent, err := s.api.Send(msg)
	if err != nil {
		slog.Error("TelegramService SendKeyboard failed", "error", err, "chatID", chatID)
		return 0, fmt.Errorf("failed to send keyboard to %d: %w", chatID, err)
	}
	return sent.MessageID, nil
}

// EditMessage replaces the text of a previously sent message.
func (s *TelegramService) EditMessage(ctx context.Context, chatID int64, messageID int, text string) error {
	edit := tgbotapi.NewEditMessageText(chatID, messageID, text)
	if _, err := s.api.Send(edit); err != nil {
		slog.Error("TelegramService EditMessage failed", "error", err, "chatID", chatID, "messageID", messageID)
		return fmt.Errorf("failed to edit message %d in %d: %w", messageID, chatID, err)
	}
	return nil
}

// AnswerCallback acknowledges a button press so the client stops its spinner.
func (s *TelegramService) AnswerCallback(ctx context.Context, callbackID, text string) error {
	cb := tgbotapi.NewCallback(callbackID, text)
	if _, err := s.api.Request(cb); err != nil {
		slog.Error("TelegramService AnswerCallback failed", "error", err, "callbackID", callbackID)
		return fmt.Errorf("failed to answer callback: %w", err)
	}
	return nil
}

// convertUpdate maps a Telegram update to a transport-agnostic event.
// Updates that are neither text messages nor button presses are dropped.
func convertUpdate(update tgbotapi.Update) (models.Event, bool) {
	if update.CallbackQuery != nil && update.CallbackQuery.Message != nil {
		cb := update.CallbackQuery
		return models.Event{
			ChatID:       cb.Message.Chat.ID,
			Kind:         models.EventCallback,
			MessageID:    cb.Message.MessageID,
			CallbackID:   cb.ID,
			CallbackData: cb.Data,
			Username:     cb.From.UserName,
		}, true
	}
	if update.Message != nil && update.Message.Text != "" {
		msg := update.Message
		ev := models.Event{
			ChatID:    msg.Chat.ID,
			Kind:      models.EventMessage,
			Text:      msg.Text,
			MessageID: msg.MessageID,
			Time:      int64(msg.Date),
		}
		if msg.From != nil {
			ev.Username = msg.From.UserName
		}
		if msg.IsCommand() {
			ev.Command = msg.Command()
		}
		return ev, true
	}
	return models.Event{}, false
}
