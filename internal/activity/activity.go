package activity

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/custodia-pay/custodia/internal/middleware"
	"github.com/custodia-pay/custodia/internal/model"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repo reads the append-only audit trail. Writes happen exclusively inside
// the escrow repository's guarded transitions.
type Repo struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) *Repo {
	return &Repo{db: db}
}

func (r *Repo) ListByTransaction(ctx context.Context, transactionID uuid.UUID) ([]*model.ActivityLog, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, transaction_id, actor_id, event, amount_minor, reference, detail, created_at, updated_at
		FROM activity_logs
		WHERE transaction_id = $1
		ORDER BY id ASC`,
		transactionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.ActivityLog
	for rows.Next() {
		var e model.ActivityLog
		if err := rows.Scan(&e.ID, &e.TransactionID, &e.ActorID, &e.Event, &e.AmountMinor,
			&e.Reference, &e.Detail, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

type Handler struct {
	repo *Repo
}

func NewHandler(repo *Repo) *Handler {
	return &Handler{repo: repo}
}

// List serves the transaction's audit trail.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := middleware.GetLogger(ctx)

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "Invalid transaction id", http.StatusBadRequest)
		return
	}

	entries, err := h.repo.ListByTransaction(ctx, id)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to list activity")
		http.Error(w, "Failed to list activity", http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []*model.ActivityLog{}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(entries)
}
