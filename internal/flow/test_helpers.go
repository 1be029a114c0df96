package flow

import (
	"context"
	"sync"

	"github.com/nutriday/nutribot/internal/messaging"
	"github.com/nutriday/nutribot/internal/models"
)

// mockMessenger records outbound traffic for assertions in flow tests.
type mockMessenger struct {
	mu     sync.Mutex
	sent   []sentMessage
	edits  []sentMessage
	acks   []string
	nextID int
}

type sentMessage struct {
	chatID    int64
	messageID int
	text      string
	rows      [][]messaging.Button
}

func newMockMessenger() *mockMessenger {
	return &mockMessenger{}
}

func (m *mockMessenger) Start(ctx context.Context) error { return nil }
func (m *mockMessenger) Stop() error                     { return nil }
func (m *mockMessenger) Events() <-chan models.Event     { return nil }

func (m *mockMessenger) SendMessage(ctx context.Context, chatID int64, text string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	m.sent = append(m.sent, sentMessage{chatID: chatID, messageID: m.nextID, text: text})
	return m.nextID, nil
}

func (m *mockMessenger) SendKeyboard(ctx context.Context, chatID int64, text string, rows [][]messaging.Button) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	m.sent = append(m.sent, sentMessage{chatID: chatID, messageID: m.nextID, text: text, rows: rows})
	return m.nextID, nil
}

func (m *mockMessenger) EditMessage(ctx context.Context, chatID int64, messageID int, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.edits = append(m.edits, sentMessage{chatID: chatID, messageID: messageID, text: text})
	return nil
}

func (m *mockMessenger) AnswerCallback(ctx context.Context, callbackID, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.acks = append(m.acks, callbackID)
	return nil
}

// lastMessage returns the most recently sent message, or nil.
func (m *mockMessenger) lastMessage() *sentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		return nil
	}
	last := m.sent[len(m.sent)-1]
	return &last
}

func (m *mockMessenger) sentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

func (m *mockMessenger) ackCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.acks)
}
