package escrow

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/custodia-pay/custodia/internal/gateway"
	"github.com/custodia-pay/custodia/internal/middleware"
	"github.com/custodia-pay/custodia/pkg/types"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

var validate = validator.New()

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := middleware.GetLogger(ctx)

	var req types.CreateTransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Error().Err(err).Msg("Failed to decode create transaction request")
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}
	if err := validate.Struct(&req); err != nil {
		http.Error(w, "Validation error: "+err.Error(), http.StatusBadRequest)
		return
	}

	t, err := h.service.Create(ctx, &req)
	if err != nil {
		writeServiceError(w, logger, err, "Failed to create transaction")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(t)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := middleware.GetLogger(ctx)

	id, ok := pathID(w, r)
	if !ok {
		return
	}
	t, err := h.service.Get(ctx, id)
	if err != nil {
		writeServiceError(w, logger, err, "Failed to fetch transaction")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(t)
}

func (h *Handler) Join(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := middleware.GetLogger(ctx)

	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req types.JoinTransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}
	if err := validate.Struct(&req); err != nil {
		http.Error(w, "Validation error: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.service.Join(ctx, id, &req); err != nil {
		writeServiceError(w, logger, err, "Failed to join transaction")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) PaymentMethods(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := middleware.GetLogger(ctx)

	id, ok := pathID(w, r)
	if !ok {
		return
	}
	resp, err := h.service.PaymentMethods(ctx, id)
	if err != nil {
		writeServiceError(w, logger, err, "Failed to list payment methods")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := middleware.GetLogger(ctx)

	if r.Header.Get("Idempotency-Key") == "" {
		http.Error(w, "Idempotency-Key header is required", http.StatusBadRequest)
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req types.CheckoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}
	if err := validate.Struct(&req); err != nil {
		http.Error(w, "Validation error: "+err.Error(), http.StatusBadRequest)
		return
	}
	resp, err := h.service.Checkout(ctx, id, &req)
	if err != nil {
		writeServiceError(w, logger, err, "Checkout failed")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func (h *Handler) MarkDelivered(w http.ResponseWriter, r *http.Request) {
	h.actorAction(w, r, func(id, actor uuid.UUID, r *http.Request) error {
		return h.service.MarkDelivered(r.Context(), id, actor)
	})
}

func (h *Handler) Validate(w http.ResponseWriter, r *http.Request) {
	h.actorAction(w, r, func(id, actor uuid.UUID, r *http.Request) error {
		return h.service.Validate(r.Context(), id, actor)
	})
}

func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.actorAction(w, r, func(id, actor uuid.UUID, r *http.Request) error {
		return h.service.Cancel(r.Context(), id, actor)
	})
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := middleware.GetLogger(ctx)

	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.service.Delete(ctx, id); err != nil {
		writeServiceError(w, logger, err, "Failed to delete transaction")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) actorAction(w http.ResponseWriter, r *http.Request, fn func(id, actor uuid.UUID, r *http.Request) error) {
	ctx := r.Context()
	logger := middleware.GetLogger(ctx)

	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req types.ActorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}
	if err := validate.Struct(&req); err != nil {
		http.Error(w, "Validation error: "+err.Error(), http.StatusBadRequest)
		return
	}
	actor, err := uuid.Parse(req.ActorID)
	if err != nil {
		http.Error(w, "Invalid actor_id", http.StatusBadRequest)
		return
	}
	if err := fn(id, actor, r); err != nil {
		writeServiceError(w, logger, err, "Operation failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "Invalid transaction id", http.StatusBadRequest)
		return uuid.Nil, false
	}
	return id, true
}

// writeServiceError maps domain errors to HTTP responses. An invalid
// transition is reported as a conflict no-op; gateway errors are translated
// to plain language so processor codes never leak to clients.
func writeServiceError(w http.ResponseWriter, logger *zerolog.Logger, err error, msg string) {
	var vErr *ValidationError
	var gwErr *gateway.GatewayError
	switch {
	case errors.Is(err, ErrNotFound):
		http.Error(w, "Transaction not found", http.StatusNotFound)
	case errors.Is(err, ErrInvalidTransition):
		logger.Warn().Err(err).Msg(msg)
		http.Error(w, "Operation not applicable in the current state", http.StatusConflict)
	case errors.Is(err, ErrReleaseInProgress):
		http.Error(w, "Operation already in progress, please retry shortly", http.StatusConflict)
	case errors.As(err, &vErr):
		http.Error(w, vErr.Message, http.StatusBadRequest)
	case errors.As(err, &gwErr):
		logger.Error().Err(err).Msg(msg)
		http.Error(w, gwErr.UserMessage(), http.StatusBadGateway)
	default:
		logger.Error().Err(err).Msg(msg)
		http.Error(w, msg, http.StatusInternalServerError)
	}
}
