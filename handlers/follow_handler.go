package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"passport-server/middleware"
	"passport-server/services"
	"passport-server/utils/errors"
)

type FollowHandler struct {
	followService *services.FollowService
}

func NewFollowHandler(followService *services.FollowService) *FollowHandler {
	return &FollowHandler{followService: followService}
}

func targetUserID(r *http.Request) (string, error) {
	id := mux.Vars(r)["userId"]
	if id == "" {
		return "", errors.ErrInvalidInput
	}
	return id, nil
}

func writeMessage(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"message": message})
}

func (h *FollowHandler) Search(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	limit, _ := strconv.ParseInt(r.URL.Query().Get("limit"), 10, 64)

	results, err := h.followService.Search(r.Context(), query, limit)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"results": results,
		"count":   len(results),
	})
}

func (h *FollowHandler) SendRequest(w http.ResponseWriter, r *http.Request) {
	targetID, err := targetUserID(r)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	if err := h.followService.SendFollowRequest(r.Context(), targetID); err != nil {
		middleware.WriteError(w, err)
		return
	}
	writeMessage(w, "Follow request sent")
}

func (h *FollowHandler) AcceptRequest(w http.ResponseWriter, r *http.Request) {
	requesterID, err := targetUserID(r)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	if err := h.followService.AcceptFollowRequest(r.Context(), requesterID); err != nil {
		middleware.WriteError(w, err)
		return
	}
	writeMessage(w, "Follow request accepted")
}

func (h *FollowHandler) RejectRequest(w http.ResponseWriter, r *http.Request) {
	requesterID, err := targetUserID(r)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	if err := h.followService.RejectFollowRequest(r.Context(), requesterID); err != nil {
		middleware.WriteError(w, err)
		return
	}
	writeMessage(w, "Follow request rejected")
}

func (h *FollowHandler) CancelRequest(w http.ResponseWriter, r *http.Request) {
	targetID, err := targetUserID(r)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	if err := h.followService.CancelFollowRequest(r.Context(), targetID); err != nil {
		middleware.WriteError(w, err)
		return
	}
	writeMessage(w, "Follow request cancelled")
}

func (h *FollowHandler) Unfollow(w http.ResponseWriter, r *http.Request) {
	targetID, err := targetUserID(r)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	if err := h.followService.Unfollow(r.Context(), targetID); err != nil {
		middleware.WriteError(w, err)
		return
	}
	writeMessage(w, "Unfollowed")
}

func (h *FollowHandler) RemoveFollower(w http.ResponseWriter, r *http.Request) {
	followerID, err := targetUserID(r)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	if err := h.followService.RemoveFollower(r.Context(), followerID); err != nil {
		middleware.WriteError(w, err)
		return
	}
	writeMessage(w, "Follower removed")
}

func (h *FollowHandler) Block(w http.ResponseWriter, r *http.Request) {
	targetID, err := targetUserID(r)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	if err := h.followService.Block(r.Context(), targetID); err != nil {
		middleware.WriteError(w, err)
		return
	}
	writeMessage(w, "User blocked")
}

func (h *FollowHandler) Unblock(w http.ResponseWriter, r *http.Request) {
	targetID, err := targetUserID(r)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	if err := h.followService.Unblock(r.Context(), targetID); err != nil {
		middleware.WriteError(w, err)
		return
	}
	writeMessage(w, "User unblocked")
}

func (h *FollowHandler) listHandler(list services.RelationshipList) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		related, err := h.followService.ListRelationships(r.Context(), list)
		if err != nil {
			middleware.WriteError(w, err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"users": related,
			"count": len(related),
		})
	}
}

func (h *FollowHandler) Followers(w http.ResponseWriter, r *http.Request) {
	h.listHandler(services.ListFollowers)(w, r)
}

func (h *FollowHandler) Following(w http.ResponseWriter, r *http.Request) {
	h.listHandler(services.ListFollowing)(w, r)
}

func (h *FollowHandler) PendingRequests(w http.ResponseWriter, r *http.Request) {
	h.listHandler(services.ListPendingRequests)(w, r)
}

func (h *FollowHandler) SentRequests(w http.ResponseWriter, r *http.Request) {
	h.listHandler(services.ListSentRequests)(w, r)
}

func (h *FollowHandler) BlockedUsers(w http.ResponseWriter, r *http.Request) {
	h.listHandler(services.ListBlocked)(w, r)
}
