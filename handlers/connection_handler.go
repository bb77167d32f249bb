package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"socialflow/middleware"
	"socialflow/models"
	"socialflow/utils"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

type SaveConnectionRequest struct {
	Platform        string     `json:"platform" validate:"required,oneof=twitter instagram linkedin tiktok"`
	AccountID       string     `json:"account_id" validate:"required"`
	AccountName     string     `json:"account_name"`
	AccountUsername string     `json:"account_username"`
	AccountImage    string     `json:"account_image"`
	AccessToken     string     `json:"access_token" validate:"required"`
	RefreshToken    string     `json:"refresh_token"`
	ExpiresAt       *time.Time `json:"expires_at"`
	FollowersCount  int        `json:"followers_count"`
	FollowingCount  int        `json:"following_count"`
	PostsCount      int        `json:"posts_count"`
}

// SaveConnection stores the credential produced by the OAuth collaborator.
// Reconnecting the same remote account updates the existing row.
func (h *Handler) SaveConnection(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r)

	var req SaveConnectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	conn := &models.SocialConnection{
		ID:              uuid.New().String(),
		UserID:          userID,
		Platform:        models.Platform(req.Platform),
		AccountID:       req.AccountID,
		AccountName:     req.AccountName,
		AccountUsername: req.AccountUsername,
		AccountImage:    req.AccountImage,
		AccessToken:     req.AccessToken,
		RefreshToken:    req.RefreshToken,
		ExpiresAt:       req.ExpiresAt,
		FollowersCount:  req.FollowersCount,
		FollowingCount:  req.FollowingCount,
		PostsCount:      req.PostsCount,
	}

	if err := h.db.SaveConnection(conn); err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Error saving connection")
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, map[string]string{"message": "Account connected"})
}

func (h *Handler) GetConnections(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r)

	connections, err := h.db.GetUserConnections(userID)
	if err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Error fetching accounts")
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, map[string]interface{}{"accounts": connections})
}

func (h *Handler) DisconnectAccount(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r)
	connectionID := mux.Vars(r)["id"]

	deleted, err := h.db.DeleteConnection(connectionID, userID)
	if err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Error disconnecting account")
		return
	}
	if !deleted {
		utils.RespondWithError(w, http.StatusNotFound, "Account not found")
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, map[string]string{
		"message": fmt.Sprintf("Account %s disconnected", connectionID),
	})
}
