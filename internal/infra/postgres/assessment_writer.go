package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"spelling-assessment-service/internal/domain"
	"github.com/jackc/pgx/v4/pgxpool"
)

// AssessmentWriter is the durable write sink: one upsert per mutated record,
// keyed on (student_id, word_id, test_round_id) exactly like the in-memory
// store's composite identity.
type AssessmentWriter struct {
	pool *pgxpool.Pool
}

func NewAssessmentWriter(pool *pgxpool.Pool) *AssessmentWriter {
	return &AssessmentWriter{pool: pool}
}

func (w *AssessmentWriter) UpsertAssessment(ctx context.Context, record domain.AssessmentRecord) error {
	results, err := json.Marshal(record.RuleResults)
	if err != nil {
		return fmt.Errorf("marshal rule results: %w", err)
	}

	// The record already carries the merged state, so the upsert replaces the
	// stored fields wholesale rather than merging in SQL.
	_, err = w.pool.Exec(ctx,
		`INSERT INTO assessments (student_id, word_id, test_round_id, rule_results, is_attempted, notes)
		 VALUES ($1, $2, $3, $4::jsonb, $5, $6)
		 ON CONFLICT (student_id, word_id, test_round_id)
		 DO UPDATE SET rule_results=EXCLUDED.rule_results,
		               is_attempted=EXCLUDED.is_attempted,
		               notes=EXCLUDED.notes`,
		record.StudentID, record.WordID, record.TestRoundID, results, record.IsAttempted, record.Notes)
	if err != nil {
		return fmt.Errorf("upsert assessment: %w", err)
	}
	return nil
}
