package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"passport-server/middleware"
	"passport-server/models"
	"passport-server/services"
	"passport-server/utils/errors"
)

type PassportHandler struct {
	passportService *services.PassportService
}

func NewPassportHandler(passportService *services.PassportService) *PassportHandler {
	return &PassportHandler{passportService: passportService}
}

func (h *PassportHandler) GetPassport(w http.ResponseWriter, r *http.Request) {
	passport, err := h.passportService.GetPassport(r.Context())
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	if passport == nil {
		middleware.WriteError(w, errors.ErrNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(passport)
}

func (h *PassportHandler) UpdatePassport(w http.ResponseWriter, r *http.Request) {
	var input models.Passport
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		middleware.WriteError(w, errors.ErrInvalidInput)
		return
	}

	passport, changes, err := h.passportService.UpdatePassport(r.Context(), input)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"passport": passport,
		"changes":  changes,
	})
}

// ViewPassport serves the public passcode lookup; no auth required.
func (h *PassportHandler) ViewPassport(w http.ResponseWriter, r *http.Request) {
	passcode := mux.Vars(r)["passcode"]

	passport, err := h.passportService.LookupByPasscode(r.Context(), passcode)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(passport)
}
