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

type NotificationHandler struct {
	notificationService *services.NotificationService
}

func NewNotificationHandler(notificationService *services.NotificationService) *NotificationHandler {
	return &NotificationHandler{notificationService: notificationService}
}

func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.ParseInt(r.URL.Query().Get("page"), 10, 64)
	limit, _ := strconv.ParseInt(r.URL.Query().Get("limit"), 10, 64)
	typeFilter := r.URL.Query().Get("type")
	unreadOnly := r.URL.Query().Get("unreadOnly") == "true"

	result, err := h.notificationService.List(r.Context(), page, limit, typeFilter, unreadOnly)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

func (h *NotificationHandler) Counts(w http.ResponseWriter, r *http.Request) {
	counts, err := h.notificationService.Counts(r.Context())
	if err != nil {
		middleware.WriteError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(counts)
}

func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if id == "" {
		middleware.WriteError(w, errors.ErrInvalidInput)
		return
	}
	if err := h.notificationService.MarkRead(r.Context(), id); err != nil {
		middleware.WriteError(w, err)
		return
	}
	writeMessage(w, "Notification marked read")
}

func (h *NotificationHandler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	updated, err := h.notificationService.MarkAllRead(r.Context())
	if err != nil {
		middleware.WriteError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"message": "All notifications marked read",
		"updated": updated,
	})
}

func (h *NotificationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if id == "" {
		middleware.WriteError(w, errors.ErrInvalidInput)
		return
	}
	if err := h.notificationService.Delete(r.Context(), id); err != nil {
		middleware.WriteError(w, err)
		return
	}
	writeMessage(w, "Notification deleted")
}

func (h *NotificationHandler) HideSender(w http.ResponseWriter, r *http.Request) {
	senderID := mux.Vars(r)["userId"]
	if err := h.notificationService.HideSender(r.Context(), senderID); err != nil {
		middleware.WriteError(w, err)
		return
	}
	writeMessage(w, "Sender notifications hidden")
}

func (h *NotificationHandler) UnhideSender(w http.ResponseWriter, r *http.Request) {
	senderID := mux.Vars(r)["userId"]
	if err := h.notificationService.UnhideSender(r.Context(), senderID); err != nil {
		middleware.WriteError(w, err)
		return
	}
	writeMessage(w, "Sender notifications unhidden")
}
