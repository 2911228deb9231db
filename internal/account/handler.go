package account

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/custodia-pay/custodia/internal/middleware"
	"github.com/custodia-pay/custodia/pkg/types"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

var validate = validator.New()

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := middleware.GetLogger(ctx)

	var req types.RegisterAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}
	if err := validate.Struct(&req); err != nil {
		http.Error(w, "Validation error: "+err.Error(), http.StatusBadRequest)
		return
	}

	a, err := h.service.Register(ctx, &req)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to register payout account")
		http.Error(w, "Failed to register payout account", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(a)
}

func (h *Handler) GetBySeller(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := middleware.GetLogger(ctx)

	sellerID, err := uuid.Parse(chi.URLParam(r, "sellerID"))
	if err != nil {
		http.Error(w, "Invalid seller id", http.StatusBadRequest)
		return
	}

	a, err := h.service.GetBySeller(ctx, sellerID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			http.Error(w, "Payout account not found", http.StatusNotFound)
			return
		}
		logger.Error().Err(err).Msg("Failed to fetch payout account")
		http.Error(w, "Failed to fetch payout account", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(a)
}
