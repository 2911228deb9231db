package dispute

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/custodia-pay/custodia/internal/escrow"
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

func (h *Handler) Open(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := middleware.GetLogger(ctx)

	var req types.OpenDisputeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Error().Err(err).Msg("Failed to decode open dispute request")
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}
	if err := validate.Struct(&req); err != nil {
		http.Error(w, "Validation error: "+err.Error(), http.StatusBadRequest)
		return
	}

	d, err := h.service.Open(ctx, &req)
	if err != nil {
		writeDisputeError(w, logger, err, "Failed to open dispute")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(d)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := middleware.GetLogger(ctx)

	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	d, err := h.service.Get(ctx, id)
	if err != nil {
		writeDisputeError(w, logger, err, "Failed to fetch dispute")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(d)
}

func (h *Handler) Proposals(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := middleware.GetLogger(ctx)

	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	proposals, err := h.service.Proposals(ctx, id)
	if err != nil {
		writeDisputeError(w, logger, err, "Failed to list proposals")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(proposals)
}

func (h *Handler) Propose(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := middleware.GetLogger(ctx)

	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req types.CreateProposalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}
	if err := validate.Struct(&req); err != nil {
		http.Error(w, "Validation error: "+err.Error(), http.StatusBadRequest)
		return
	}
	p, err := h.service.Propose(ctx, id, &req)
	if err != nil {
		writeDisputeError(w, logger, err, "Failed to create proposal")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(p)
}

func (h *Handler) Accept(w http.ResponseWriter, r *http.Request) {
	h.proposalAction(w, r, func(disputeID, proposalID, actor uuid.UUID, r *http.Request) (any, error) {
		return h.service.Accept(r.Context(), disputeID, proposalID, actor)
	})
}

func (h *Handler) Reject(w http.ResponseWriter, r *http.Request) {
	h.proposalAction(w, r, func(disputeID, proposalID, actor uuid.UUID, r *http.Request) (any, error) {
		return nil, h.service.Reject(r.Context(), disputeID, proposalID, actor)
	})
}

func (h *Handler) Escalate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := middleware.GetLogger(ctx)

	id, ok := pathID(w, r, "id")
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
	if err := h.service.Escalate(ctx, id, actor); err != nil {
		writeDisputeError(w, logger, err, "Failed to escalate dispute")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Resolve(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := middleware.GetLogger(ctx)

	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req types.ResolveDisputeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}
	if err := validate.Struct(&req); err != nil {
		http.Error(w, "Validation error: "+err.Error(), http.StatusBadRequest)
		return
	}
	outcome, err := h.service.Resolve(ctx, id, &req)
	if err != nil {
		writeDisputeError(w, logger, err, "Failed to resolve dispute")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(outcome)
}

func (h *Handler) proposalAction(w http.ResponseWriter, r *http.Request, fn func(disputeID, proposalID, actor uuid.UUID, r *http.Request) (any, error)) {
	ctx := r.Context()
	logger := middleware.GetLogger(ctx)

	disputeID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	proposalID, ok := pathID(w, r, "proposalID")
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
	result, err := fn(disputeID, proposalID, actor, r)
	if err != nil {
		writeDisputeError(w, logger, err, "Operation failed")
		return
	}
	if result == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

func pathID(w http.ResponseWriter, r *http.Request, param string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, param))
	if err != nil {
		http.Error(w, "Invalid "+param, http.StatusBadRequest)
		return uuid.Nil, false
	}
	return id, true
}

func writeDisputeError(w http.ResponseWriter, logger *zerolog.Logger, err error, msg string) {
	var vErr *ValidationError
	var escrowVErr *escrow.ValidationError
	var gwErr *gateway.GatewayError
	switch {
	case errors.Is(err, ErrNotFound):
		http.Error(w, "Dispute not found", http.StatusNotFound)
	case errors.Is(err, escrow.ErrNotFound):
		http.Error(w, "Transaction not found", http.StatusNotFound)
	case errors.Is(err, ErrActiveDispute):
		http.Error(w, "Transaction already has an active dispute", http.StatusConflict)
	case errors.Is(err, ErrInvalidState), errors.Is(err, escrow.ErrInvalidTransition):
		logger.Warn().Err(err).Msg(msg)
		http.Error(w, "Operation not applicable in the current state", http.StatusConflict)
	case errors.Is(err, escrow.ErrReleaseInProgress):
		http.Error(w, "Operation already in progress, please retry shortly", http.StatusConflict)
	case errors.As(err, &vErr):
		http.Error(w, vErr.Message, http.StatusBadRequest)
	case errors.As(err, &escrowVErr):
		http.Error(w, escrowVErr.Message, http.StatusBadRequest)
	case errors.As(err, &gwErr):
		logger.Error().Err(err).Msg(msg)
		http.Error(w, gwErr.UserMessage(), http.StatusBadGateway)
	default:
		logger.Error().Err(err).Msg(msg)
		http.Error(w, msg, http.StatusInternalServerError)
	}
}
