package handlers

import (
	"net/http"
	"time"

	"socialflow/utils"
)

// DispatchScheduled is the cron trigger endpoint. It may fire while a
// previous cycle is still running; per-post claiming keeps that safe.
func (h *Handler) DispatchScheduled(w http.ResponseWriter, r *http.Request) {
	if h.cronSecret != "" && r.Header.Get("X-Cron-Secret") != h.cronSecret {
		utils.RespondWithError(w, http.StatusUnauthorized, "Invalid cron secret")
		return
	}

	if _, err := h.dispatcher.ReleaseStuckPosts(); err != nil {
		utils.Errorf("error releasing stuck posts: %v", err)
	}

	report, err := h.dispatcher.DispatchDuePosts(r.Context(), time.Now())
	if err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Dispatch cycle failed")
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, report)
}
