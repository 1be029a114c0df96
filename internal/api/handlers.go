package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/nutriday/nutribot/internal/flow"
	"github.com/nutriday/nutribot/internal/models"
)

// listResult is the paginated payload of the user list endpoint.
type listResult struct {
	Users []*models.UserProfile `json:"users"`
	Total int                   `json:"total"`
	Page  int                   `json:"page"`
	Limit int                   `json:"limit"`
}

// foodsRequest carries food list mutations. Items is used by POST, Item by
// DELETE.
type foodsRequest struct {
	Items []string `json:"items,omitempty"`
	Item  string   `json:"item,omitempty"`
}

func (s *Server) listUsersHandler(w http.ResponseWriter, r *http.Request) {
	page := queryInt(r, "page", 1)
	limit := queryInt(r, "limit", 10)
	slog.Debug("Server.listUsersHandler: listing users", "page", page, "limit", limit)

	users, total, err := s.profiles.List(r.Context(), page, limit)
	if err != nil {
		slog.Error("Server.listUsersHandler: list failed", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to list users"))
		return
	}
	if users == nil {
		users = []*models.UserProfile{}
	}
	writeJSONResponse(w, http.StatusOK, models.Success(listResult{
		Users: users, Total: total, Page: page, Limit: limit,
	}))
}

func (s *Server) getUserHandler(w http.ResponseWriter, r *http.Request) {
	chatID, ok := pathChatID(w, r)
	if !ok {
		return
	}
	profile, err := s.profiles.FindByChatID(r.Context(), chatID)
	if err != nil {
		slog.Error("Server.getUserHandler: lookup failed", "error", err, "chatID", chatID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to load user"))
		return
	}
	if profile == nil {
		writeJSONResponse(w, http.StatusNotFound, models.Error("User not found"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(profile))
}

func (s *Server) upsertUserHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	chatID, ok := pathChatID(w, r)
	if !ok {
		return
	}
	var update models.ProfileUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		slog.Warn("Server.upsertUserHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if msg, ok := validateUpdate(update); !ok {
		writeJSONResponse(w, http.StatusBadRequest, models.Error(msg))
		return
	}
	profile, err := s.profiles.CreateOrUpdate(r.Context(), chatID, update)
	if err != nil {
		slog.Error("Server.upsertUserHandler: upsert failed", "error", err, "chatID", chatID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to save user"))
		return
	}
	slog.Info("Server.upsertUserHandler: user saved", "chatID", chatID)
	writeJSONResponse(w, http.StatusOK, models.Success(profile))
}

func (s *Server) updateUserHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	chatID, ok := pathChatID(w, r)
	if !ok {
		return
	}
	var update models.ProfileUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		slog.Warn("Server.updateUserHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if msg, ok := validateUpdate(update); !ok {
		writeJSONResponse(w, http.StatusBadRequest, models.Error(msg))
		return
	}
	profile, err := s.profiles.SetFields(r.Context(), chatID, update)
	if err != nil {
		if errors.Is(err, models.ErrProfileNotFound) {
			writeJSONResponse(w, http.StatusNotFound, models.Error("User not found"))
			return
		}
		slog.Error("Server.updateUserHandler: update failed", "error", err, "chatID", chatID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to update user"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(profile))
}

func (s *Server) deleteUserHandler(w http.ResponseWriter, r *http.Request) {
	chatID, ok := pathChatID(w, r)
	if !ok {
		return
	}
	if err := s.profiles.Delete(r.Context(), chatID); err != nil {
		if errors.Is(err, models.ErrProfileNotFound) {
			writeJSONResponse(w, http.StatusNotFound, models.Error("User not found"))
			return
		}
		slog.Error("Server.deleteUserHandler: delete failed", "error", err, "chatID", chatID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to delete user"))
		return
	}
	slog.Info("Server.deleteUserHandler: user deleted", "chatID", chatID)
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("User deleted", nil))
}

func (s *Server) addFoodsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	chatID, ok := pathChatID(w, r)
	if !ok {
		return
	}
	kind, ok := pathFoodKind(w, r)
	if !ok {
		return
	}
	var req foodsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.addFoodsHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if len(req.Items) == 0 {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("No items provided"))
		return
	}
	for _, item := range req.Items {
		if !models.ValidFoodEntry(removePrefixFor(kind), item) {
			writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid food entry: "+item))
			return
		}
	}
	profile, err := s.profiles.AddToList(r.Context(), chatID, kind, req.Items)
	if err != nil {
		if errors.Is(err, models.ErrProfileNotFound) {
			writeJSONResponse(w, http.StatusNotFound, models.Error("User not found"))
			return
		}
		slog.Error("Server.addFoodsHandler: add failed", "error", err, "chatID", chatID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to add foods"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(profile))
}

func (s *Server) removeFoodHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	chatID, ok := pathChatID(w, r)
	if !ok {
		return
	}
	kind, ok := pathFoodKind(w, r)
	if !ok {
		return
	}
	var req foodsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.removeFoodHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if req.Item == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("No item provided"))
		return
	}
	profile, err := s.profiles.RemoveFromList(r.Context(), chatID, kind, req.Item)
	if err != nil {
		if errors.Is(err, models.ErrProfileNotFound) {
			writeJSONResponse(w, http.StatusNotFound, models.Error("User not found"))
			return
		}
		slog.Error("Server.removeFoodHandler: remove failed", "error", err, "chatID", chatID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to remove food"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(profile))
}

// validateUpdate range-checks the fields present in a partial update.
func validateUpdate(update models.ProfileUpdate) (string, bool) {
	if update.Weight != nil && !models.ValidWeight(*update.Weight) {
		return "Weight out of range", false
	}
	if update.Height != nil && !models.ValidHeight(*update.Height) {
		return "Height out of range", false
	}
	if update.Age != nil && !models.ValidAge(float64(*update.Age)) {
		return "Age out of range", false
	}
	if update.ActivityFactor != nil && !models.ValidActivityFactor(*update.ActivityFactor) {
		return "Unknown activity factor", false
	}
	if update.Goal != nil && !models.ValidGoal(*update.Goal) {
		return "Unknown goal", false
	}
	return "", true
}

// removePrefixFor returns the callback prefix a list entry must later fit
// behind, so the byte budget is checked at admission time.
func removePrefixFor(kind models.FoodKind) string {
	if kind == models.FoodDisliked {
		return flow.CallbackRemoveDisliked
	}
	return flow.CallbackRemoveFavorite
}

func pathChatID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	chatID, err := strconv.ParseInt(r.PathValue("chatID"), 10, 64)
	if err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid chat id"))
		return 0, false
	}
	return chatID, true
}

func pathFoodKind(w http.ResponseWriter, r *http.Request) (models.FoodKind, bool) {
	switch r.PathValue("kind") {
	case "favorite":
		return models.FoodFavorite, true
	case "disliked":
		return models.FoodDisliked, true
	default:
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Unknown food list"))
		return "", false
	}
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 1 {
		return fallback
	}
	return v
}
