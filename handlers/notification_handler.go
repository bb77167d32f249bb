package handlers

import (
	"net/http"
	"strconv"

	"socialflow/middleware"
	"socialflow/utils"

	"github.com/gorilla/mux"
)

func (h *Handler) GetNotifications(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r)
	q := r.URL.Query()

	unreadOnly := q.Get("unread") == "true"
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	notifications, err := h.db.GetNotifications(userID, unreadOnly, limit, offset)
	if err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Error fetching notifications")
		return
	}

	unreadCount, err := h.db.UnreadNotificationCount(userID)
	if err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Error fetching notifications")
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, map[string]interface{}{
		"notifications": notifications,
		"unread_count":  unreadCount,
	})
}

func (h *Handler) GetUnreadCount(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r)

	count, err := h.db.UnreadNotificationCount(userID)
	if err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Error fetching count")
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, map[string]int{"count": count})
}

func (h *Handler) MarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r)
	notificationID := mux.Vars(r)["id"]

	if err := h.db.MarkNotificationRead(notificationID, userID); err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Error marking notification read")
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, map[string]string{"message": "Notification marked as read"})
}

func (h *Handler) MarkAllNotificationsRead(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r)

	if err := h.db.MarkAllNotificationsRead(userID); err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Error marking notifications read")
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, map[string]string{"message": "All notifications marked as read"})
}

func (h *Handler) DeleteNotification(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r)
	notificationID := mux.Vars(r)["id"]

	deleted, err := h.db.DeleteNotification(notificationID, userID)
	if err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Error deleting notification")
		return
	}
	if !deleted {
		utils.RespondWithError(w, http.StatusNotFound, "Notification not found")
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, map[string]string{"message": "Notification deleted"})
}
