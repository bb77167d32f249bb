package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"socialflow/database"
	"socialflow/middleware"
	"socialflow/models"
	"socialflow/services"
	"socialflow/utils"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

type ThreadPostRequest struct {
	Content   string   `json:"content" validate:"required,max=10000"`
	MediaURLs []string `json:"media_urls" validate:"dive,url"`
}

type CreatePostRequest struct {
	Content     string              `json:"content" validate:"required,max=10000"`
	MediaURLs   []string            `json:"media_urls" validate:"dive,url"`
	Platforms   []string            `json:"platforms" validate:"required,min=1,dive,oneof=twitter instagram linkedin tiktok"`
	ScheduledAt *time.Time          `json:"scheduled_at"`
	ThreadPosts []ThreadPostRequest `json:"thread_posts" validate:"dive"`
}

type UpdatePostRequest struct {
	Content     *string    `json:"content" validate:"omitempty,max=10000"`
	MediaURLs   *[]string  `json:"media_urls" validate:"omitempty,dive,url"`
	Platforms   *[]string  `json:"platforms" validate:"omitempty,min=1,dive,oneof=twitter instagram linkedin tiktok"`
	ScheduledAt *time.Time `json:"scheduled_at"`
}

// CreatePost creates a draft, or a pending post when a future scheduled time
// is given. Thread children are stored alongside the parent and share its
// lifecycle.
func (h *Handler) CreatePost(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r)

	var req CreatePostRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	now := time.Now()
	post := &models.Post{
		ID:        uuid.New().String(),
		UserID:    userID,
		Content:   req.Content,
		MediaURLs: req.MediaURLs,
		Status:    models.StatusDraft,
		CreatedAt: now,
		UpdatedAt: now,
	}
	for _, p := range req.Platforms {
		post.Platforms = append(post.Platforms, models.Platform(p))
	}

	if req.ScheduledAt != nil {
		post.Status = models.StatusPending
		post.ScheduledAt = req.ScheduledAt
	}

	if err := h.db.CreatePost(post); err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Error creating post")
		return
	}

	for i, tp := range req.ThreadPosts {
		err := h.db.CreateThreadPost(&models.ThreadPost{
			ID:           uuid.New().String(),
			ParentPostID: post.ID,
			Sequence:     i + 1,
			Content:      tp.Content,
			MediaURLs:    tp.MediaURLs,
			Status:       post.Status,
			CreatedAt:    now,
		})
		if err != nil {
			utils.RespondWithError(w, http.StatusInternalServerError, "Error creating thread posts")
			return
		}
	}

	utils.RespondWithJSON(w, http.StatusCreated, post)
}

func (h *Handler) GetPosts(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r)
	q := r.URL.Query()

	filter := database.PostFilter{
		Status:   models.PostStatus(q.Get("status")),
		Platform: models.Platform(q.Get("platform")),
	}
	if v := q.Get("start_date"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			filter.StartDate = &t
		}
	}
	if v := q.Get("end_date"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			filter.EndDate = &t
		}
	}
	if n, err := strconv.Atoi(q.Get("limit")); err == nil {
		filter.Limit = n
	}
	if n, err := strconv.Atoi(q.Get("offset")); err == nil {
		filter.Offset = n
	}

	posts, err := h.db.GetUserPosts(userID, filter)
	if err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Error fetching posts")
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, map[string]interface{}{"posts": posts})
}

// GetCalendarPosts serves the dashboard calendar view for a date range.
func (h *Handler) GetCalendarPosts(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r)

	start, err1 := time.Parse(time.RFC3339, r.URL.Query().Get("start"))
	end, err2 := time.Parse(time.RFC3339, r.URL.Query().Get("end"))
	if err1 != nil || err2 != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Start and end dates required")
		return
	}

	posts, err := h.db.GetCalendarPosts(userID, start, end)
	if err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Error fetching calendar posts")
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, map[string]interface{}{"posts": posts})
}

func (h *Handler) GetPost(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r)
	postID := mux.Vars(r)["id"]

	post, err := h.db.GetPost(postID)
	if err != nil {
		utils.RespondWithError(w, http.StatusNotFound, "Post not found")
		return
	}
	if post.UserID != userID {
		utils.RespondWithError(w, http.StatusForbidden, "Access denied")
		return
	}

	threadPosts, err := h.db.GetThreadPosts(postID)
	if err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Error fetching thread posts")
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, map[string]interface{}{
		"post":         post,
		"thread_posts": threadPosts,
	})
}

// UpdatePost edits a post. Content, media, and platform edits are accepted
// only in draft and pending; published posts are immutable and publishing
// posts are in flight. Rescheduling a failed post moves it back to pending.
func (h *Handler) UpdatePost(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r)
	postID := mux.Vars(r)["id"]

	var req UpdatePostRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	post, err := h.db.GetPost(postID)
	if err != nil {
		utils.RespondWithError(w, http.StatusNotFound, "Post not found")
		return
	}
	if post.UserID != userID {
		utils.RespondWithError(w, http.StatusForbidden, "Access denied")
		return
	}

	if post.Status == models.StatusPublished {
		utils.RespondWithError(w, http.StatusBadRequest, "Cannot edit published posts")
		return
	}
	if post.Status == models.StatusPublishing {
		utils.RespondWithError(w, http.StatusConflict, "Post is currently being published")
		return
	}

	contentEdit := req.Content != nil || req.MediaURLs != nil || req.Platforms != nil
	if contentEdit && !post.Status.Editable() {
		utils.RespondWithError(w, http.StatusBadRequest, "Only draft and scheduled posts can be edited; reschedule to retry")
		return
	}

	if req.Content != nil {
		post.Content = *req.Content
	}
	if req.MediaURLs != nil {
		post.MediaURLs = *req.MediaURLs
	}
	if req.Platforms != nil {
		post.Platforms = post.Platforms[:0]
		for _, p := range *req.Platforms {
			post.Platforms = append(post.Platforms, models.Platform(p))
		}
	}
	if req.ScheduledAt != nil {
		post.ScheduledAt = req.ScheduledAt
		post.Status = models.StatusPending
	}

	if err := h.db.UpdatePost(post); err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Error updating post")
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, post)
}

func (h *Handler) DeletePost(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r)
	postID := mux.Vars(r)["id"]

	deleted, err := h.db.DeletePost(postID, userID)
	if err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Error deleting post")
		return
	}
	if !deleted {
		utils.RespondWithError(w, http.StatusNotFound, "Post not found")
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, map[string]string{"message": "Post deleted"})
}

type RescheduleRequest struct {
	IDs         []string  `json:"ids" validate:"required,min=1"`
	ScheduledAt time.Time `json:"scheduled_at" validate:"required"`
}

// BulkReschedule moves posts to a new scheduled time. Published and
// publishing posts are skipped rather than failing the whole request.
func (h *Handler) BulkReschedule(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r)

	var req RescheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	updated, err := h.db.ReschedulePosts(userID, req.IDs, req.ScheduledAt)
	if err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Error rescheduling posts")
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, map[string]interface{}{
		"message":     "Posts rescheduled",
		"rescheduled": updated,
	})
}

// PublishNow dispatches a single post immediately on the user's behalf.
func (h *Handler) PublishNow(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r)
	postID := mux.Vars(r)["id"]

	post, err := h.db.GetPost(postID)
	if err != nil {
		utils.RespondWithError(w, http.StatusNotFound, "Post not found")
		return
	}
	if post.UserID != userID {
		utils.RespondWithError(w, http.StatusForbidden, "Access denied")
		return
	}

	outcome, err := h.dispatcher.PublishNow(r.Context(), postID)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrAlreadyPublished):
			utils.RespondWithError(w, http.StatusBadRequest, "Post already published")
		case errors.Is(err, services.ErrPublishInFlight):
			utils.RespondWithError(w, http.StatusConflict, "Post is already being published")
		default:
			utils.RespondWithError(w, http.StatusInternalServerError, "Failed to publish post")
		}
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, outcome)
}
