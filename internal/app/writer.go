package app

import (
	"context"

	"spelling-assessment-service/internal/domain"
)

// MultiWriter fans an upsert out to several sinks (e.g., Postgres plus a
// Redis mirror). Every sink is attempted; the first error is reported.
type MultiWriter []AssessmentWriter

func (w MultiWriter) UpsertAssessment(ctx context.Context, record domain.AssessmentRecord) error {
	var first error
	for _, sink := range w {
		if err := sink.UpsertAssessment(ctx, record); err != nil && first == nil {
			first = err
		}
	}
	return first
}
