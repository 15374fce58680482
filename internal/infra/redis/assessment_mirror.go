package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"spelling-assessment-service/internal/domain"
	"github.com/redis/go-redis/v9"
)

// AssessmentMirror is a Redis-backed implementation of app.AssessmentWriter.
// Records are stored as: HSET round:{roundID}:assessments {studentID}:{wordID} {json}.
// It serves as the durable sink in deployments without Postgres, or as a hot
// mirror in front of one (see app.MultiWriter).
type AssessmentMirror struct {
	client *redis.Client
	ttl    time.Duration
}

func NewAssessmentMirror(client *redis.Client, ttl time.Duration) *AssessmentMirror {
	return &AssessmentMirror{client: client, ttl: ttl}
}

func (m *AssessmentMirror) UpsertAssessment(ctx context.Context, record domain.AssessmentRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal assessment: %w", err)
	}
	key := m.key(record.TestRoundID)
	pipe := m.client.Pipeline()
	pipe.HSet(ctx, key, record.StudentID+":"+record.WordID, data)
	if m.ttl > 0 {
		pipe.Expire(ctx, key, m.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("mirror assessment: %w", err)
	}
	return nil
}

// LoadAssessments reads every mirrored record for a round, in unspecified
// order. Entries that fail to decode are skipped rather than failing the read.
func (m *AssessmentMirror) LoadAssessments(ctx context.Context, roundID string) ([]domain.AssessmentRecord, error) {
	raw, err := m.client.HGetAll(ctx, m.key(roundID)).Result()
	if err != nil {
		return nil, fmt.Errorf("load mirrored assessments: %w", err)
	}
	records := make([]domain.AssessmentRecord, 0, len(raw))
	for _, payload := range raw {
		var record domain.AssessmentRecord
		if err := json.Unmarshal([]byte(payload), &record); err != nil {
			continue
		}
		records = append(records, record)
	}
	return records, nil
}

func (m *AssessmentMirror) key(roundID string) string {
	return "round:" + roundID + ":assessments"
}
