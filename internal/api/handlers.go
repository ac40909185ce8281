package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/julianstephens/habittrack/internal/constants"
	apperrors "github.com/julianstephens/habittrack/internal/errors"
	"github.com/julianstephens/habittrack/internal/models"
	"github.com/julianstephens/habittrack/internal/tracker"
)

type registerRequest struct {
	Username string `json:"username" validate:"required,max=64"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6,max=72"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type updateUserRequest struct {
	Username *string `json:"username" validate:"omitempty,max=64"`
	Email    *string `json:"email" validate:"omitempty,email"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"required,min=6,max=72"`
}

type userResponse struct {
	User models.User `json:"user"`
}

type createHabitRequest struct {
	UserID      string `json:"userId" validate:"required"`
	Name        string `json:"name" validate:"required,max=100"`
	Category    string `json:"category" validate:"max=50"`
	Note        string `json:"note" validate:"max=500"`
	RepeatCount *int   `json:"repeatCount" validate:"omitempty,min=1,max=100"`
}

type updateHabitRequest struct {
	UserID      string  `json:"userId"`
	Name        *string `json:"name" validate:"omitempty,max=100"`
	Category    *string `json:"category" validate:"omitempty,max=50"`
	Note        *string `json:"note" validate:"omitempty,max=500"`
	RepeatCount *int    `json:"repeatCount" validate:"omitempty,min=1,max=100"`
}

type habitResponse struct {
	Habit any `json:"habit"`
}

type habitsResponse struct {
	Habits []tracker.HabitSummary `json:"habits"`
}

type completionsResponse struct {
	Completions []models.Completion `json:"completions"`
}

type uncompleteResponse struct {
	NewStreak int `json:"newStreak"`
	Balance   int `json:"balance"`
}

// requireUserID reads the acting user from the userId query parameter
func requireUserID(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := strings.TrimSpace(r.URL.Query().Get("userId"))
	if userID == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: apiError{
			Code:    codeValidation,
			Message: "Request validation failed",
			Details: []apperrors.FieldError{{Field: "userId", Message: "is required"}},
		}})
		return "", false
	}
	return userID, true
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	if a.Ping != nil {
		if err := a.Ping(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status":  "unavailable",
				"version": constants.Version,
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": constants.Version})
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !a.decodeJSON(w, r, &req) {
		return
	}
	user, err := a.Service.Register(r.Context(), tracker.RegisterInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, userResponse{User: user})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !a.decodeJSON(w, r, &req) {
		return
	}
	user, err := a.Service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, userResponse{User: user})
}

func (a *API) handleGetUser(w http.ResponseWriter, r *http.Request) {
	user, err := a.Service.GetUser(r.Context(), chi.URLParam(r, "userId"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, userResponse{User: user})
}

func (a *API) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	var req updateUserRequest
	if !a.decodeJSON(w, r, &req) {
		return
	}
	user, err := a.Service.UpdateUser(r.Context(), chi.URLParam(r, "userId"), tracker.UserPatch{
		Username: req.Username,
		Email:    req.Email,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, userResponse{User: user})
}

func (a *API) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	var req changePasswordRequest
	if !a.decodeJSON(w, r, &req) {
		return
	}
	err := a.Service.ChangePassword(r.Context(), chi.URLParam(r, "userId"), req.CurrentPassword, req.NewPassword)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleListHabits(archived bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		habits, err := a.Service.ListHabits(r.Context(), chi.URLParam(r, "userId"), archived)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, habitsResponse{Habits: habits})
	}
}

func (a *API) handleCreateHabit(w http.ResponseWriter, r *http.Request) {
	var req createHabitRequest
	if !a.decodeJSON(w, r, &req) {
		return
	}
	repeat := constants.DefaultRepeatCount
	if req.RepeatCount != nil {
		repeat = *req.RepeatCount
	}
	habit, err := a.Service.CreateHabit(r.Context(), tracker.CreateHabitInput{
		UserID:      req.UserID,
		Name:        req.Name,
		Category:    req.Category,
		Note:        req.Note,
		RepeatCount: repeat,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, habitResponse{Habit: habit})
}

// handleGetHabit checks ownership only when userId is given
func (a *API) handleGetHabit(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(r.URL.Query().Get("userId"))
	detail, err := a.Service.GetHabit(r.Context(), userID, chi.URLParam(r, "habitId"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, habitResponse{Habit: detail})
}

func (a *API) handleUpdateHabit(w http.ResponseWriter, r *http.Request) {
	var req updateHabitRequest
	if !a.decodeJSON(w, r, &req) {
		return
	}
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		var ok bool
		if userID, ok = requireUserID(w, r); !ok {
			return
		}
	}

	habit, err := a.Service.UpdateHabit(r.Context(), userID, chi.URLParam(r, "habitId"), tracker.HabitPatch{
		Name:        req.Name,
		Category:    req.Category,
		Note:        req.Note,
		RepeatCount: req.RepeatCount,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, habitResponse{Habit: habit})
}

func (a *API) handleDeleteHabit(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	if err := a.Service.DeleteHabit(r.Context(), userID, chi.URLParam(r, "habitId")); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleSetArchived(archived bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := requireUserID(w, r)
		if !ok {
			return
		}
		habit, err := a.Service.SetArchived(r.Context(), userID, chi.URLParam(r, "habitId"), archived)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, habitResponse{Habit: habit})
	}
}

func (a *API) handleListCompletions(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	completions, err := a.Service.ListCompletions(r.Context(), userID, chi.URLParam(r, "habitId"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if completions == nil {
		completions = []models.Completion{}
	}
	writeJSON(w, http.StatusOK, completionsResponse{Completions: completions})
}

func (a *API) handleComplete(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	result, err := a.Service.Complete(r.Context(), userID, chi.URLParam(r, "habitId"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *API) handleUncomplete(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	result, err := a.Service.Uncomplete(r.Context(), userID, chi.URLParam(r, "habitId"), chi.URLParam(r, "completionId"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, uncompleteResponse{NewStreak: result.NewStreak, Balance: result.Balance})
}
