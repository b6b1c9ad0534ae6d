package handler

import (
	"net/http"

	"github.com/edvin/panel/internal/activity"
	"github.com/edvin/panel/internal/api/request"
	"github.com/edvin/panel/internal/api/response"
)

type Activity struct {
	feed *activity.Feed
}

func NewActivity(feed *activity.Feed) *Activity {
	return &Activity{feed: feed}
}

// List godoc
//
//	@Summary		List recent activity
//	@Description	Returns the newest activities first.
//	@Tags			Activity
//	@Security		ApiKeyAuth
//	@Param			limit query int false "Maximum entries"
//	@Success		200 {array} model.Activity
//	@Failure		400 {object} response.ErrorResponse
//	@Failure		500 {object} response.ErrorResponse
//	@Router			/activity [get]
func (h *Activity) List(w http.ResponseWriter, r *http.Request) {
	limit, err := request.Int(r, "limit", activity.DefaultLimit)
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}
	list, err := h.feed.List(r.Context(), limit)
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, list)
}
