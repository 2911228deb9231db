package reconcile

import (
	"context"
	"encoding/json"
	"time"

	"github.com/custodia-pay/custodia/internal/kafka"
	"github.com/custodia-pay/custodia/internal/model"
	"github.com/custodia-pay/custodia/internal/settlement"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// ProcessorRecords fetches the processor's view of settled charges. The mock
// processor and the real gateway both expose this read model.
type ProcessorRecords interface {
	SettledAmount(ctx context.Context, transactionID string) (int64, bool, error)
}

// Publisher announces filed discrepancies to downstream consumers.
type Publisher interface {
	PublishAsync(ctx context.Context, topic string, key, payload []byte)
}

// Reconciler compares the engine's released transactions against the
// processor's records and files a discrepancy for every mismatch. It never
// mutates transactions; humans resolve discrepancies.
type Reconciler struct {
	db        *pgxpool.Pool
	records   ProcessorRecords
	publisher Publisher
	logger    *zerolog.Logger
}

func New(db *pgxpool.Pool, records ProcessorRecords, publisher Publisher, logger *zerolog.Logger) *Reconciler {
	return &Reconciler{db: db, records: records, publisher: publisher, logger: logger}
}

// Run reconciles all transactions released in the 24h before runDate.
func (r *Reconciler) Run(ctx context.Context, runDate time.Time) error {
	runID := uuid.New()

	rows, err := r.db.Query(ctx, `
		SELECT id, price, charge_ref
		FROM transactions
		WHERE funds_released = true
		  AND funds_released_at >= $1 AND funds_released_at < $2`,
		runDate.Add(-24*time.Hour), runDate)
	if err != nil {
		return err
	}

	type candidate struct {
		id        uuid.UUID
		price     string
		chargeRef string
	}
	var candidates []candidate
	for rows.Next() {
		var c candidate
		if err := rows.Scan(&c.id, &c.price, &c.chargeRef); err != nil {
			rows.Close()
			return err
		}
		candidates = append(candidates, c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	var discrepancies []model.Discrepancy
	for _, c := range candidates {
		expected, err := settlement.MinorUnits(c.price)
		if err != nil {
			r.logger.Error().Err(err).Str("transaction_id", c.id.String()).Msg("Unparseable price during reconciliation")
			continue
		}
		actual, found, err := r.records.SettledAmount(ctx, c.id.String())
		if err != nil {
			r.logger.Error().Err(err).Str("transaction_id", c.id.String()).Msg("Failed to fetch processor record")
			continue
		}
		if found && actual == expected {
			continue
		}
		reason := "amount mismatch"
		confidence := 0.9
		if !found {
			reason = "missing processor record"
			confidence = 0.6
		}
		discrepancies = append(discrepancies, model.Discrepancy{
			ID:                  uuid.New(),
			ReconciliationRunID: runID,
			TransactionID:       c.id,
			ExpectedAmount:      expected,
			ActualAmount:        actual,
			Confidence:          confidence,
			Reason:              reason,
			Status:              "unresolved",
		})
	}

	status := "matched"
	if len(discrepancies) > 0 {
		status = "discrepancy"
	}
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		INSERT INTO reconciliation_runs (id, run_date, status)
		VALUES ($1, $2, $3)`,
		runID, runDate, status); err != nil {
		return err
	}
	for _, d := range discrepancies {
		if _, err := tx.Exec(ctx, `
			INSERT INTO discrepancies
				(id, reconciliation_run_id, transaction_id, expected_amount, actual_amount, confidence, reason, status)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			d.ID, d.ReconciliationRunID, d.TransactionID, d.ExpectedAmount, d.ActualAmount,
			d.Confidence, d.Reason, d.Status); err != nil {
			return err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}

	if r.publisher != nil {
		for _, d := range discrepancies {
			payload, err := json.Marshal(d)
			if err != nil {
				r.logger.Error().Err(err).Str("discrepancy_id", d.ID.String()).Msg("Failed to encode discrepancy event")
				continue
			}
			r.publisher.PublishAsync(ctx, kafka.TopicDiscrepancyDetected, []byte(d.TransactionID.String()), payload)
		}
	}

	r.logger.Info().
		Str("run_id", runID.String()).
		Int("checked", len(candidates)).
		Int("discrepancies", len(discrepancies)).
		Msg("Reconciliation run complete")
	return nil
}
