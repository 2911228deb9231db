package dispute

import (
	"context"
	"errors"

	"github.com/custodia-pay/custodia/internal/model"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Finalization carries the terminal outcome committed for a dispute.
type Finalization struct {
	DisputeID  uuid.UUID
	ProposalID uuid.UUID
	Status     string
	Resolution string
}

type Repository interface {
	CreateDispute(ctx context.Context, d *model.Dispute) error
	GetDispute(ctx context.Context, id uuid.UUID) (*model.Dispute, error)
	DeleteDispute(ctx context.Context, id uuid.UUID) error
	CreateProposal(ctx context.Context, p *model.DisputeProposal) error
	GetProposal(ctx context.Context, id uuid.UUID) (*model.DisputeProposal, error)
	ListProposals(ctx context.Context, disputeID uuid.UUID) ([]*model.DisputeProposal, error)
	RejectProposal(ctx context.Context, proposalID uuid.UUID) error
	Escalate(ctx context.Context, disputeID uuid.UUID) error
	Finalize(ctx context.Context, fin Finalization) error
}

type Repo struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) *Repo {
	return &Repo{db: db}
}

const disputeColumns = `id, transaction_id, reporter_id, dispute_type, reason, description,
	status, resolution, escalated_at, resolved_at, created_at, updated_at`

const proposalColumns = `id, dispute_id, proposed_by, proposal_type, refund_percentage,
	status, is_admin_created, created_at, updated_at`

func scanDispute(row pgx.Row) (*model.Dispute, error) {
	var d model.Dispute
	err := row.Scan(&d.ID, &d.TransactionID, &d.ReporterID, &d.DisputeType, &d.Reason,
		&d.Description, &d.Status, &d.Resolution, &d.EscalatedAt, &d.ResolvedAt,
		&d.CreatedAt, &d.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func scanProposal(row pgx.Row) (*model.DisputeProposal, error) {
	var p model.DisputeProposal
	err := row.Scan(&p.ID, &p.DisputeID, &p.ProposedBy, &p.ProposalType, &p.RefundPercentage,
		&p.Status, &p.IsAdminCreated, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// CreateDispute inserts the dispute only if no active one exists for the
// transaction. The insert-select races are closed by the partial unique
// index on (transaction_id) WHERE status NOT LIKE 'resolved_%'.
func (r *Repo) CreateDispute(ctx context.Context, d *model.Dispute) error {
	res, err := r.db.Exec(ctx, `
		INSERT INTO disputes (id, transaction_id, reporter_id, dispute_type, reason, description, status)
		SELECT $1, $2, $3, $4, $5, $6, 'open'
		WHERE NOT EXISTS (
			SELECT 1 FROM disputes
			WHERE transaction_id = $2 AND status NOT IN ('resolved_refund', 'resolved_release')
		)`,
		d.ID, d.TransactionID, d.ReporterID, d.DisputeType, d.Reason, d.Description)
	if err != nil {
		return err
	}
	if res.RowsAffected() == 0 {
		return ErrActiveDispute
	}
	return nil
}

func (r *Repo) GetDispute(ctx context.Context, id uuid.UUID) (*model.Dispute, error) {
	row := r.db.QueryRow(ctx, `SELECT `+disputeColumns+` FROM disputes WHERE id = $1`, id)
	return scanDispute(row)
}

// DeleteDispute compensates a failed open: only a just-created open dispute
// with no proposals is ever removed.
func (r *Repo) DeleteDispute(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.Exec(ctx, `
		DELETE FROM disputes
		WHERE id = $1 AND status = 'open'
		  AND NOT EXISTS (SELECT 1 FROM dispute_proposals WHERE dispute_id = $1)`,
		id)
	return err
}

// CreateProposal supersedes any still-pending proposal and moves the dispute
// into negotiating, all in one DB transaction.
func (r *Repo) CreateProposal(ctx context.Context, p *model.DisputeProposal) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	res, err := tx.Exec(ctx, `
		UPDATE disputes
		SET status = 'negotiating', updated_at = NOW()
		WHERE id = $1 AND status IN ('open', 'negotiating', 'escalated')`,
		p.DisputeID)
	if err != nil {
		return err
	}
	if res.RowsAffected() == 0 {
		return ErrInvalidState
	}

	if _, err := tx.Exec(ctx, `
		UPDATE dispute_proposals
		SET status = 'superseded', updated_at = NOW()
		WHERE dispute_id = $1 AND status = 'pending'`,
		p.DisputeID); err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO dispute_proposals (id, dispute_id, proposed_by, proposal_type, refund_percentage, status, is_admin_created)
		VALUES ($1, $2, $3, $4, $5, 'pending', $6)`,
		p.ID, p.DisputeID, p.ProposedBy, p.ProposalType, p.RefundPercentage, p.IsAdminCreated); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *Repo) GetProposal(ctx context.Context, id uuid.UUID) (*model.DisputeProposal, error) {
	row := r.db.QueryRow(ctx, `SELECT `+proposalColumns+` FROM dispute_proposals WHERE id = $1`, id)
	return scanProposal(row)
}

func (r *Repo) ListProposals(ctx context.Context, disputeID uuid.UUID) ([]*model.DisputeProposal, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+proposalColumns+` FROM dispute_proposals
		WHERE dispute_id = $1
		ORDER BY created_at ASC`, disputeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.DisputeProposal
	for rows.Next() {
		p, err := scanProposal(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *Repo) RejectProposal(ctx context.Context, proposalID uuid.UUID) error {
	res, err := r.db.Exec(ctx, `
		UPDATE dispute_proposals
		SET status = 'rejected', updated_at = NOW()
		WHERE id = $1 AND status = 'pending'`,
		proposalID)
	if err != nil {
		return err
	}
	if res.RowsAffected() == 0 {
		return ErrInvalidState
	}
	return nil
}

func (r *Repo) Escalate(ctx context.Context, disputeID uuid.UUID) error {
	res, err := r.db.Exec(ctx, `
		UPDATE disputes
		SET status = 'escalated', escalated_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status IN ('open', 'negotiating')`,
		disputeID)
	if err != nil {
		return err
	}
	if res.RowsAffected() == 0 {
		return ErrInvalidState
	}
	return nil
}

// Finalize commits the terminal outcome: the dispute becomes resolved and the
// winning proposal (if any) accepted. Zero rows on the dispute update means
// another path resolved it first.
func (r *Repo) Finalize(ctx context.Context, fin Finalization) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	res, err := tx.Exec(ctx, `
		UPDATE disputes
		SET status = $2, resolution = $3, resolved_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status IN ('open', 'negotiating', 'escalated')`,
		fin.DisputeID, fin.Status, fin.Resolution)
	if err != nil {
		return err
	}
	if res.RowsAffected() == 0 {
		return ErrInvalidState
	}

	if fin.ProposalID != uuid.Nil {
		if _, err := tx.Exec(ctx, `
			UPDATE dispute_proposals
			SET status = 'accepted', updated_at = NOW()
			WHERE id = $1 AND status = 'pending'`,
			fin.ProposalID); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}
