package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/nutriday/nutribot/internal/models"
)

// InMemoryStore is a map-backed Store used in tests and local development.
type InMemoryStore struct {
	mu       sync.RWMutex
	profiles map[int64]*models.UserProfile
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{profiles: make(map[int64]*models.UserProfile)}
}

func (s *InMemoryStore) FindByChatID(ctx context.Context, chatID int64) (*models.UserProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[chatID]
	if !ok {
		return nil, nil
	}
	return cloneProfile(p), nil
}

func (s *InMemoryStore) CreateOrUpdate(ctx context.Context, chatID int64, update models.ProfileUpdate) (*models.UserProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	p, ok := s.profiles[chatID]
	if !ok {
		p = &models.UserProfile{ChatID: chatID, CreatedAt: now}
		s.profiles[chatID] = p
	}
	applyUpdate(p, update, now)
	return cloneProfile(p), nil
}

func (s *InMemoryStore) SetFields(ctx context.Context, chatID int64, update models.ProfileUpdate) (*models.UserProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[chatID]
	if !ok {
		return nil, models.ErrProfileNotFound
	}
	applyUpdate(p, update, time.Now())
	return cloneProfile(p), nil
}

func (s *InMemoryStore) AddToList(ctx context.Context, chatID int64, kind models.FoodKind, items []string) (*models.UserProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[chatID]
	if !ok {
		return nil, models.ErrProfileNotFound
	}
	list := foodList(p, kind)
	*list = unionList(*list, items)
	p.UpdatedAt = time.Now()
	return cloneProfile(p), nil
}

func (s *InMemoryStore) RemoveFromList(ctx context.Context, chatID int64, kind models.FoodKind, item string) (*models.UserProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[chatID]
	if !ok {
		return nil, models.ErrProfileNotFound
	}
	list := foodList(p, kind)
	*list = removeItem(*list, item)
	p.UpdatedAt = time.Now()
	return cloneProfile(p), nil
}

func (s *InMemoryStore) SetSurveyCompleted(ctx context.Context, chatID int64, surveyID string, completed bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[chatID]
	if !ok {
		return models.ErrProfileNotFound
	}
	if p.SurveyCompleted == nil {
		p.SurveyCompleted = make(map[string]bool)
	}
	p.SurveyCompleted[surveyID] = completed
	p.UpdatedAt = time.Now()
	return nil
}

func (s *InMemoryStore) SurveyCandidates(ctx context.Context, surveyID string) ([]*models.UserProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.UserProfile
	for _, p := range s.profiles {
		if p.FirstInit != nil && !p.SurveyDone(surveyID) {
			out = append(out, cloneProfile(p))
		}
	}
	return out, nil
}

func (s *InMemoryStore) List(ctx context.Context, page, limit int) ([]*models.UserProfile, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]int64, 0, len(s.profiles))
	for id := range s.profiles {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 10
	}
	start := (page - 1) * limit
	var out []*models.UserProfile
	for i := start; i < len(ids) && i < start+limit; i++ {
		out = append(out, cloneProfile(s.profiles[ids[i]]))
	}
	return out, len(ids), nil
}

func (s *InMemoryStore) Delete(ctx context.Context, chatID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.profiles[chatID]; !ok {
		return models.ErrProfileNotFound
	}
	delete(s.profiles, chatID)
	return nil
}

func (s *InMemoryStore) Close() error { return nil }

func cloneProfile(p *models.UserProfile) *models.UserProfile {
	c := *p
	c.FavoriteFoods = append([]string(nil), p.FavoriteFoods...)
	c.DislikedFoods = append([]string(nil), p.DislikedFoods...)
	if p.SurveyCompleted != nil {
		c.SurveyCompleted = make(map[string]bool, len(p.SurveyCompleted))
		for k, v := range p.SurveyCompleted {
			c.SurveyCompleted[k] = v
		}
	}
	return &c
}
