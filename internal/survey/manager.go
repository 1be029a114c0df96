package survey

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/elliotchance/orderedmap/v3"

	"github.com/nutriday/nutribot/internal/flow"
	"github.com/nutriday/nutribot/internal/messaging"
	"github.com/nutriday/nutribot/internal/models"
	"github.com/nutriday/nutribot/internal/store"
)

// Session table and scheduling policy.
const (
	// MaxSessions is the hard cap on concurrent survey sessions. Inserting
	// beyond it evicts the oldest-inserted session.
	MaxSessions = 1000
	// SessionTimeout forces teardown of a session that never completes.
	SessionTimeout = 40 * time.Minute
	// EligibilityDelay is how long after a user's first generation the
	// survey is offered.
	EligibilityDelay = 48 * time.Hour
	// Sweeps outside this local-hour window are skipped to avoid
	// off-hours messaging.
	windowOpenHour  = 8
	windowCloseHour = 20
)

// callbackPrefix tags survey button payloads: survey:<chatID>:<step>:<value>.
const callbackPrefix = "survey:"

// Sink receives completed (or timed-out) answer rows.
type Sink interface {
	AppendSurveyRow(ctx context.Context, profile *models.UserProfile, answers []string) error
}

// session tracks one chat's progress through the questionnaire. The profile
// is read at creation and not re-fetched.
type session struct {
	chatID    int64
	stepIndex int
	answers   []string
	collected map[string][]string
	profile   *models.UserProfile
	createdAt time.Time
	timerID   string
}

// Manager owns the session table. Insertion order is tracked so a full table
// evicts its oldest session, not an arbitrary or least-recently-used one.
type Manager struct {
	mu       sync.Mutex
	sessions *orderedmap.OrderedMap[int64, *session]

	profiles store.Store
	msg      messaging.Service
	sink     Sink
	timer    flow.Timer
	loc      *time.Location

	maxSessions int
	timeout     time.Duration
	now         func() time.Time
}

// NewManager creates a survey session manager. loc is the reference timezone
// for the eligibility window.
func NewManager(profiles store.Store, msg messaging.Service, sink Sink, timer flow.Timer, loc *time.Location) *Manager {
	return &Manager{
		sessions:    orderedmap.NewOrderedMap[int64, *session](),
		profiles:    profiles,
		msg:         msg,
		sink:        sink,
		timer:       timer,
		loc:         loc,
		maxSessions: MaxSessions,
		timeout:     SessionTimeout,
		now:         time.Now,
	}
}

// HasSession reports whether a session exists for the chat id.
func (m *Manager) HasSession(chatID int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.sessions.Get(chatID)
	return ok
}

// Len reports the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions.Len()
}

// Start creates a session for the profile's chat and sends the first
// question. Starting while a session already exists is a no-op, which makes
// the eligibility sweep idempotent.
func (m *Manager) Start(ctx context.Context, profile *models.UserProfile) error {
	chatID := profile.ChatID

	m.mu.Lock()
	if _, exists := m.sessions.Get(chatID); exists {
		m.mu.Unlock()
		slog.Debug("Survey session already active", "chatID", chatID)
		return nil
	}
	m.evictOldestLocked()

	sess := &session{
		chatID:    chatID,
		collected: make(map[string][]string),
		profile:   profile,
		createdAt: m.now(),
	}
	timerID, err := m.timer.ScheduleAfter(m.timeout, func() {
		m.forceFinish(chatID)
	})
	if err != nil {
		m.mu.Unlock()
		return fmt.Errorf("failed to schedule session timeout: %w", err)
	}
	sess.timerID = timerID
	m.sessions.Set(chatID, sess)
	m.mu.Unlock()

	slog.Info("Survey session started", "chatID", chatID)
	return m.sendStep(ctx, sess)
}

// HandleCallback consumes survey button presses. Payloads whose embedded
// chat id or step index do not match the session are ignored; they are stale
// presses from an already-advanced step.
func (m *Manager) HandleCallback(ctx context.Context, ev models.Event) (bool, error) {
	data := ev.CallbackData
	if !strings.HasPrefix(data, callbackPrefix) {
		return false, nil
	}

	parts := strings.SplitN(data, ":", 4)
	if len(parts) != 4 {
		return true, nil
	}
	payloadChat, err1 := strconv.ParseInt(parts[1], 10, 64)
	payloadStep, err2 := strconv.Atoi(parts[2])
	value := parts[3]
	if err1 != nil || err2 != nil {
		return true, nil
	}

	m.mu.Lock()
	sess, ok := m.sessions.Get(ev.ChatID)
	if !ok || payloadChat != ev.ChatID || payloadStep != sess.stepIndex {
		m.mu.Unlock()
		slog.Debug("Survey callback ignored", "chatID", ev.ChatID, "data", data)
		return true, nil
	}

	step := Steps[sess.stepIndex]
	if step.Open {
		m.mu.Unlock()
		return true, nil
	}

	if step.Multiple {
		if value == doneValue {
			sess.answers = append(sess.answers, strings.Join(sess.collected[step.Key], ", "))
			sess.stepIndex++
			m.mu.Unlock()
			m.ack(ctx, ev.CallbackID, "")
			return true, m.advance(ctx, sess)
		}
		if !validOption(step, value) {
			m.mu.Unlock()
			return true, nil
		}
		if !contains(sess.collected[step.Key], value) {
			sess.collected[step.Key] = append(sess.collected[step.Key], value)
			m.mu.Unlock()
			m.ack(ctx, ev.CallbackID, "✅ Selected")
			return true, nil
		}
		m.mu.Unlock()
		return true, nil
	}

	if !validOption(step, value) {
		m.mu.Unlock()
		return true, nil
	}
	sess.answers = append(sess.answers, value)
	sess.stepIndex++
	m.mu.Unlock()
	m.ack(ctx, ev.CallbackID, "✅ Accepted")
	return true, m.advance(ctx, sess)
}

// HandleMessage consumes free text for the open step of an active session.
// Text arriving for a choice step is swallowed; without a session it is not
// claimed at all.
func (m *Manager) HandleMessage(ctx context.Context, chatID int64, text string) (bool, error) {
	m.mu.Lock()
	sess, ok := m.sessions.Get(chatID)
	if !ok {
		m.mu.Unlock()
		return false, nil
	}
	if sess.stepIndex >= len(Steps) || !Steps[sess.stepIndex].Open {
		m.mu.Unlock()
		return true, nil
	}
	sess.answers = append(sess.answers, text)
	sess.stepIndex++
	m.mu.Unlock()
	return true, m.advance(ctx, sess)
}

// Sweep starts sessions for users who became survey-eligible: first
// generation at least EligibilityDelay ago and the survey not completed.
// It is a no-op outside the local messaging window, and re-running it never
// duplicates an active session.
func (m *Manager) Sweep(ctx context.Context) {
	hour := m.now().In(m.loc).Hour()
	if hour < windowOpenHour || hour >= windowCloseHour {
		slog.Debug("Survey sweep skipped outside messaging window", "hour", hour)
		return
	}

	candidates, err := m.profiles.SurveyCandidates(ctx, models.SurveyID)
	if err != nil {
		slog.Error("Survey sweep candidate query failed", "error", err)
		return
	}

	started := 0
	for _, profile := range candidates {
		if profile.FirstInit == nil {
			continue
		}
		if m.now().Sub(*profile.FirstInit) < EligibilityDelay {
			continue
		}
		if m.HasSession(profile.ChatID) {
			continue
		}
		if err := m.Start(ctx, profile); err != nil {
			slog.Error("Survey sweep failed to start session", "error", err, "chatID", profile.ChatID)
			continue
		}
		started++
	}
	slog.Info("Survey sweep finished", "candidates", len(candidates), "started", started)
}

// Stop cancels all session timeouts and clears the table.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for el := m.sessions.Front(); el != nil; el = el.Next() {
		if err := m.timer.Cancel(el.Value.timerID); err != nil {
			slog.Debug("Survey Stop timer cancel failed", "error", err)
		}
	}
	m.sessions = orderedmap.NewOrderedMap[int64, *session]()
}

// advance sends the next question, or finishes when the questionnaire is
// exhausted.
func (m *Manager) advance(ctx context.Context, sess *session) error {
	if sess.stepIndex >= len(Steps) {
		return m.finish(ctx, sess.chatID, true)
	}
	return m.sendStep(ctx, sess)
}

// finish tears a session down on natural completion, forwards the answers,
// and records the completion flag.
func (m *Manager) finish(ctx context.Context, chatID int64, completed bool) error {
	sess := m.detach(chatID, true)
	if sess == nil {
		return nil
	}
	return m.teardown(ctx, sess, completed,
		"✅ Thank you! The survey is complete.")
}

// forceFinish is the timeout path: same teardown, but the completion flag is
// recorded false and the user is told time ran out. Whatever answers were
// collected are still forwarded.
func (m *Manager) forceFinish(chatID int64) {
	// Fired from the timer goroutine; the timer is already spent.
	sess := m.detach(chatID, false)
	if sess == nil {
		return
	}
	slog.Info("Survey session timed out", "chatID", chatID, "answers", len(sess.answers))
	ctx := context.Background()
	if err := m.teardown(ctx, sess, false,
		"⌛ Time for the survey ran out. Your answers have been saved."); err != nil {
		slog.Error("Survey timeout teardown failed", "error", err, "chatID", chatID)
	}
}

// detach removes and returns a session, optionally cancelling its timeout so
// a late timer cannot fire after teardown.
func (m *Manager) detach(chatID int64, cancelTimer bool) *session {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions.Get(chatID)
	if !ok {
		return nil
	}
	m.sessions.Delete(chatID)
	if cancelTimer {
		if err := m.timer.Cancel(sess.timerID); err != nil {
			slog.Debug("Survey timer cancel failed", "error", err, "chatID", chatID)
		}
	}
	return sess
}

func (m *Manager) teardown(ctx context.Context, sess *session, completed bool, notice string) error {
	if err := m.sink.AppendSurveyRow(ctx, sess.profile, sess.answers); err != nil {
		slog.Error("Survey sink append failed", "error", err, "chatID", sess.chatID)
	}
	if err := m.profiles.SetSurveyCompleted(ctx, sess.chatID, models.SurveyID, completed); err != nil {
		slog.Error("Survey completion flag update failed", "error", err, "chatID", sess.chatID)
	}
	if _, err := m.msg.SendMessage(ctx, sess.chatID, notice); err != nil {
		return fmt.Errorf("failed to notify user: %w", err)
	}
	slog.Info("Survey session finished", "chatID", sess.chatID, "completed", completed, "answers", len(sess.answers))
	return nil
}

// evictOldestLocked makes room for one more session when the table is full.
// Caller holds m.mu.
func (m *Manager) evictOldestLocked() {
	if m.sessions.Len() < m.maxSessions {
		return
	}
	oldest := m.sessions.Front()
	if oldest == nil {
		return
	}
	if err := m.timer.Cancel(oldest.Value.timerID); err != nil {
		slog.Debug("Survey eviction timer cancel failed", "error", err)
	}
	m.sessions.Delete(oldest.Key)
	slog.Warn("Survey session table full, evicted oldest session", "chatID", oldest.Key)
}

func (m *Manager) sendStep(ctx context.Context, sess *session) error {
	m.mu.Lock()
	idx := sess.stepIndex
	m.mu.Unlock()
	if idx >= len(Steps) {
		return nil
	}
	step := Steps[idx]

	if step.Open {
		_, err := m.msg.SendMessage(ctx, sess.chatID, step.Question)
		return err
	}

	rows := make([][]messaging.Button, 0, len(step.Options)+1)
	for _, opt := range step.Options {
		rows = append(rows, messaging.Row(messaging.Button{
			Text: opt.Label,
			Data: fmt.Sprintf("%s%d:%d:%s", callbackPrefix, sess.chatID, idx, opt.Value),
		}))
	}
	if step.Multiple {
		rows = append(rows, messaging.Row(messaging.Button{
			Text: "✅ Done",
			Data: fmt.Sprintf("%s%d:%d:%s", callbackPrefix, sess.chatID, idx, doneValue),
		}))
	}
	_, err := m.msg.SendKeyboard(ctx, sess.chatID, step.Question, rows)
	return err
}

func (m *Manager) ack(ctx context.Context, callbackID, text string) {
	if callbackID == "" {
		return
	}
	if err := m.msg.AnswerCallback(ctx, callbackID, text); err != nil {
		slog.Debug("Survey callback ack failed", "error", err)
	}
}

func validOption(step Step, value string) bool {
	for _, opt := range step.Options {
		if opt.Value == value {
			return true
		}
	}
	return false
}

func contains(list []string, value string) bool {
	for _, v := range list {
		if v == value {
			return true
		}
	}
	return false
}
