// Package flow implements the per-chat conversational flows: the flow state
// store, the onboarding questionnaire, the food preference editor, and the
// dispatcher that routes inbound events to the active flow.
package flow

import (
	"log/slog"
	"sync"

	"github.com/nutriday/nutribot/internal/models"
)

// StateStore tracks the current dialogue step per chat. At most one non-none
// step exists per chat at any time.
type StateStore interface {
	// Get returns the current step for a chat, or StepNone.
	Get(chatID int64) models.Step

	// Set records the current step. Setting StepNone removes the entry.
	Set(chatID int64, step models.Step)

	// Clear removes the entry for a chat.
	Clear(chatID int64)
}

// InMemoryStateStore is the map-backed StateStore. Flow state is ephemeral
// and lost on restart; entries are deleted when a flow finishes so users who
// never start a flow cost nothing.
type InMemoryStateStore struct {
	mu    sync.RWMutex
	steps map[int64]models.Step
}

// NewInMemoryStateStore creates an empty state store.
func NewInMemoryStateStore() *InMemoryStateStore {
	return &InMemoryStateStore{steps: make(map[int64]models.Step)}
}

func (s *InMemoryStateStore) Get(chatID int64) models.Step {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.steps[chatID]
}

func (s *InMemoryStateStore) Set(chatID int64, step models.Step) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if step == models.StepNone {
		delete(s.steps, chatID)
	} else {
		s.steps[chatID] = step
	}
	slog.Debug("StateStore set", "chatID", chatID, "step", step)
}

func (s *InMemoryStateStore) Clear(chatID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.steps, chatID)
}

// Len reports the number of chats with an active step (used in tests).
func (s *InMemoryStateStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.steps)
}
