package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/nutriday/nutribot/internal/models"
	"github.com/nutriday/nutribot/internal/store"
)

func newTestServer(t *testing.T) (*Server, store.Store) {
	t.Helper()
	profiles := store.NewInMemoryStore()
	return NewServer("127.0.0.1:0", profiles), profiles
}

func doRequest(t *testing.T, s *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	s.httpSrv.Handler.ServeHTTP(rec, req)
	return rec
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) models.APIResponse {
	t.Helper()
	var resp models.APIResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return resp
}

func seedUser(t *testing.T, profiles store.Store, chatID int64) {
	t.Helper()
	w, h, a := 70.0, 175.0, 30
	sex, act, goal := true, 1.55, models.GoalMaintain
	_, err := profiles.CreateOrUpdate(context.Background(), chatID, models.ProfileUpdate{
		Weight: &w, Height: &h, Age: &a, Sex: &sex,
		ActivityFactor: &act, Goal: &goal,
	})
	if err != nil {
		t.Fatalf("CreateOrUpdate failed: %v", err)
	}
}

func TestGetUser(t *testing.T) {
	s, profiles := newTestServer(t)
	seedUser(t, profiles, 42)

	rec := doRequest(t, s, http.MethodGet, "/users/42", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	resp := decodeResponse(t, rec)
	if resp.Status != models.APIStatusOK {
		t.Errorf("status field = %q", resp.Status)
	}
}

func TestGetUserNotFound(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doRequest(t, s, http.MethodGet, "/users/99", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	resp := decodeResponse(t, rec)
	if resp.Status != models.APIStatusError {
		t.Errorf("status field = %q", resp.Status)
	}
}

func TestGetUserInvalidID(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doRequest(t, s, http.MethodGet, "/users/abc", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestUpsertUser(t *testing.T) {
	s, profiles := newTestServer(t)

	body := map[string]interface{}{
		"weight": 80.0, "height": 180.0, "age": 25, "sex": true,
		"activity_factor": 1.375, "goal": models.GoalLoseWeight,
	}
	rec := doRequest(t, s, http.MethodPut, "/users/7", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	profile, err := profiles.FindByChatID(context.Background(), 7)
	if err != nil || profile == nil {
		t.Fatalf("profile not stored: %v", err)
	}
	if profile.Weight != 80 || profile.Goal != models.GoalLoseWeight {
		t.Errorf("stored profile = %+v", profile)
	}
}

func TestUpsertUserRejectsOutOfRange(t *testing.T) {
	s, _ := newTestServer(t)

	body := map[string]interface{}{"weight": 500.0}
	rec := doRequest(t, s, http.MethodPut, "/users/7", body)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestPatchUser(t *testing.T) {
	s, profiles := newTestServer(t)
	seedUser(t, profiles, 42)

	rec := doRequest(t, s, http.MethodPatch, "/users/42", map[string]interface{}{"weight": 72.5})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	profile, _ := profiles.FindByChatID(context.Background(), 42)
	if profile.Weight != 72.5 {
		t.Errorf("weight = %v, want 72.5", profile.Weight)
	}
	if profile.Height != 175 {
		t.Errorf("untouched field changed: height = %v", profile.Height)
	}
}

func TestPatchUserNotFound(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doRequest(t, s, http.MethodPatch, "/users/99", map[string]interface{}{"weight": 72.5})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestDeleteUser(t *testing.T) {
	s, profiles := newTestServer(t)
	seedUser(t, profiles, 42)

	rec := doRequest(t, s, http.MethodDelete, "/users/42", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	profile, _ := profiles.FindByChatID(context.Background(), 42)
	if profile != nil {
		t.Error("profile should be deleted")
	}

	rec = doRequest(t, s, http.MethodDelete, "/users/42", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("second delete status = %d, want 404", rec.Code)
	}
}

func TestListUsers(t *testing.T) {
	s, profiles := newTestServer(t)
	for i := int64(1); i <= 15; i++ {
		seedUser(t, profiles, i)
	}

	rec := doRequest(t, s, http.MethodGet, "/users?page=2&limit=10", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Status string `json:"status"`
		Result struct {
			Users []json.RawMessage `json:"users"`
			Total int               `json:"total"`
			Page  int               `json:"page"`
		} `json:"result"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Result.Total != 15 || len(resp.Result.Users) != 5 || resp.Result.Page != 2 {
		t.Errorf("total=%d users=%d page=%d", resp.Result.Total, len(resp.Result.Users), resp.Result.Page)
	}
}

func TestAddAndRemoveFoods(t *testing.T) {
	s, profiles := newTestServer(t)
	seedUser(t, profiles, 42)

	rec := doRequest(t, s, http.MethodPost, "/users/42/foods/favorite",
		map[string]interface{}{"items": []string{"salmon", "rice"}})
	if rec.Code != http.StatusOK {
		t.Fatalf("add status = %d, body = %s", rec.Code, rec.Body.String())
	}
	profile, _ := profiles.FindByChatID(context.Background(), 42)
	if len(profile.FavoriteFoods) != 2 {
		t.Fatalf("favorites = %v", profile.FavoriteFoods)
	}

	rec = doRequest(t, s, http.MethodDelete, "/users/42/foods/favorite",
		map[string]interface{}{"item": "salmon"})
	if rec.Code != http.StatusOK {
		t.Fatalf("remove status = %d, body = %s", rec.Code, rec.Body.String())
	}
	profile, _ = profiles.FindByChatID(context.Background(), 42)
	if len(profile.FavoriteFoods) != 1 || profile.FavoriteFoods[0] != "rice" {
		t.Errorf("favorites = %v", profile.FavoriteFoods)
	}
}

func TestAddFoodsRejectsLongEntry(t *testing.T) {
	s, profiles := newTestServer(t)
	seedUser(t, profiles, 42)

	long := ""
	for i := 0; i < models.MaxFoodEntryLength+1; i++ {
		long += "a"
	}
	rec := doRequest(t, s, http.MethodPost, "/users/42/foods/disliked",
		map[string]interface{}{"items": []string{long}})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestAddFoodsUnknownKind(t *testing.T) {
	s, profiles := newTestServer(t)
	seedUser(t, profiles, 42)

	rec := doRequest(t, s, http.MethodPost, "/users/42/foods/spicy",
		map[string]interface{}{"items": []string{"pepper"}})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestAddFoodsUserNotFound(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doRequest(t, s, http.MethodPost, fmt.Sprintf("/users/%d/foods/favorite", 99),
		map[string]interface{}{"items": []string{"salmon"}})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}
