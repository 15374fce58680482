package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"spelling-assessment-service/internal/domain"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

// RosterLoader loads the round-scoped entity snapshot from Postgres: the
// round row, its students and words, the tenant's rules, and any persisted
// assessment records.
type RosterLoader struct {
	pool *pgxpool.Pool
}

func NewRosterLoader(pool *pgxpool.Pool) *RosterLoader {
	return &RosterLoader{pool: pool}
}

func (l *RosterLoader) LoadRoster(ctx context.Context, roundID string) (domain.Roster, error) {
	var roster domain.Roster

	err := l.pool.QueryRow(ctx,
		`SELECT id, tenant_id, name, created_at FROM test_rounds WHERE id=$1`, roundID).
		Scan(&roster.Round.ID, &roster.Round.TenantID, &roster.Round.Name, &roster.Round.CreatedAt)
	if err == pgx.ErrNoRows {
		return domain.Roster{}, domain.ErrRoundNotFound
	}
	if err != nil {
		return domain.Roster{}, fmt.Errorf("load round: %w", err)
	}

	if roster.Students, err = l.loadStudents(ctx, roundID); err != nil {
		return domain.Roster{}, err
	}
	if roster.Words, err = l.loadWords(ctx, roundID); err != nil {
		return domain.Roster{}, err
	}
	if roster.Rules, err = l.loadRules(ctx, roster.Round.TenantID); err != nil {
		return domain.Roster{}, err
	}
	if roster.Assessments, err = l.loadAssessments(ctx, roundID); err != nil {
		return domain.Roster{}, err
	}
	return roster, nil
}

func (l *RosterLoader) loadStudents(ctx context.Context, roundID string) ([]domain.Student, error) {
	rows, err := l.pool.Query(ctx,
		`SELECT id, name FROM students WHERE test_round_id=$1 ORDER BY name`, roundID)
	if err != nil {
		return nil, fmt.Errorf("load students: %w", err)
	}
	defer rows.Close()

	var students []domain.Student
	for rows.Next() {
		student := domain.Student{TestRoundID: roundID}
		if err := rows.Scan(&student.ID, &student.Name); err != nil {
			return nil, fmt.Errorf("scan student: %w", err)
		}
		students = append(students, student)
	}
	return students, rows.Err()
}

func (l *RosterLoader) loadWords(ctx context.Context, roundID string) ([]domain.Word, error) {
	rows, err := l.pool.Query(ctx,
		`SELECT id, text, rule_ids FROM words WHERE test_round_id=$1 ORDER BY text`, roundID)
	if err != nil {
		return nil, fmt.Errorf("load words: %w", err)
	}
	defer rows.Close()

	var words []domain.Word
	for rows.Next() {
		word := domain.Word{TestRoundID: roundID}
		var ruleIDs []byte
		if err := rows.Scan(&word.ID, &word.Text, &ruleIDs); err != nil {
			return nil, fmt.Errorf("scan word: %w", err)
		}
		if err := json.Unmarshal(ruleIDs, &word.RuleIDs); err != nil {
			return nil, fmt.Errorf("unmarshal word rule ids: %w", err)
		}
		words = append(words, word)
	}
	return words, rows.Err()
}

func (l *RosterLoader) loadRules(ctx context.Context, tenantID string) ([]domain.SpellingRule, error) {
	rows, err := l.pool.Query(ctx,
		`SELECT id, code, description FROM rules WHERE tenant_id=$1 ORDER BY code`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("load rules: %w", err)
	}
	defer rows.Close()

	var rules []domain.SpellingRule
	for rows.Next() {
		var rule domain.SpellingRule
		if err := rows.Scan(&rule.ID, &rule.Code, &rule.Description); err != nil {
			return nil, fmt.Errorf("scan rule: %w", err)
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

func (l *RosterLoader) loadAssessments(ctx context.Context, roundID string) ([]domain.AssessmentRecord, error) {
	rows, err := l.pool.Query(ctx,
		`SELECT student_id, word_id, rule_results, is_attempted, notes
		 FROM assessments WHERE test_round_id=$1 ORDER BY created_at`, roundID)
	if err != nil {
		return nil, fmt.Errorf("load assessments: %w", err)
	}
	defer rows.Close()

	var records []domain.AssessmentRecord
	for rows.Next() {
		record := domain.AssessmentRecord{TestRoundID: roundID}
		var results []byte
		if err := rows.Scan(&record.StudentID, &record.WordID, &results, &record.IsAttempted, &record.Notes); err != nil {
			return nil, fmt.Errorf("scan assessment: %w", err)
		}
		if err := json.Unmarshal(results, &record.RuleResults); err != nil {
			return nil, fmt.Errorf("unmarshal rule results: %w", err)
		}
		record.SyncStatus = domain.SyncSynced
		records = append(records, record)
	}
	return records, rows.Err()
}
