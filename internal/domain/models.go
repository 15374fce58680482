package domain

import "time"

// SpellingRule is a tenant-global rule that words can reference.
// Deleting a rule does not cascade: words keep dangling rule ids, which
// aggregation tolerates by skipping them.
type SpellingRule struct {
	ID          string `json:"id"`
	Code        string `json:"code"`
	Description string `json:"description"`
}

// TestRound scopes students, words, and assessments. The core never treats
// any round as "active"; it only ever receives round-scoped collections.
type TestRound struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenantId"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

// Word is one spelling word in a round. RuleIDs keeps the evaluator's display
// order; aggregation treats it as a set. An empty RuleIDs is legal and simply
// produces no rule-level statistics.
type Word struct {
	ID          string   `json:"id"`
	Text        string   `json:"text"`
	RuleIDs     []string `json:"ruleIds"`
	TestRoundID string   `json:"testRoundId"`
}

// Student belongs to exactly one test round. Names are not unique.
type Student struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	TestRoundID string `json:"testRoundId"`
}

// AssessmentRecord holds the judged rule outcomes for one (student, word)
// pair, unique within a round. SyncStatus is local bookkeeping for the
// optimistic write path and never leaves the process.
type AssessmentRecord struct {
	StudentID   string      `json:"studentId"`
	WordID      string      `json:"wordId"`
	TestRoundID string      `json:"testRoundId"`
	RuleResults RuleResults `json:"ruleResults"`
	IsAttempted bool        `json:"isAttempted"`
	Notes       string      `json:"notes,omitempty"`
	SyncStatus  SyncStatus  `json:"-"`
}

// Clone returns a deep copy so aggregation snapshots never alias live state.
func (a AssessmentRecord) Clone() AssessmentRecord {
	out := a
	out.RuleResults = a.RuleResults.Clone()
	return out
}

// Roster is the round-scoped snapshot delivered by the storage collaborator,
// already filtered by tenant and round.
type Roster struct {
	Round       TestRound          `json:"round"`
	Students    []Student          `json:"students"`
	Words       []Word             `json:"words"`
	Rules       []SpellingRule     `json:"rules"`
	Assessments []AssessmentRecord `json:"assessments"`
}

// RuleErrorStat is one entry of a student's sparse per-rule error breakdown.
// ErrorWords keeps record-scan order, not sorted.
type RuleErrorStat struct {
	RuleID          string   `json:"ruleId"`
	RuleCode        string   `json:"ruleCode"`
	RuleDescription string   `json:"ruleDescription"`
	ErrorCount      int      `json:"errorCount"`
	ErrorWords      []string `json:"errorWords"`
}

// StudentReport is the individual aggregation result for one student.
// Completion is intentionally not capped at 100: more records than words is
// a data anomaly the report surfaces rather than hides.
type StudentReport struct {
	Student          Student         `json:"student"`
	ErrorStatsByRule []RuleErrorStat `json:"errorStatsByRule"`
	TotalErrors      int             `json:"totalErrors"`
	TotalCorrect     int             `json:"totalCorrect"`
	Completion       int             `json:"completion"`
}

// RuleStat is the cohort-wide failure rate for one rule. Rules with zero
// attempts stay in the list at rate 0.
type RuleStat struct {
	Rule                SpellingRule `json:"rule"`
	TotalAttempts       int          `json:"totalAttempts"`
	TotalErrors         int          `json:"totalErrors"`
	ErrorRate           float64      `json:"errorRate"`
	FailingStudentNames []string     `json:"failingStudentNames"`
}

// WordStat is the cohort-wide failure rate for one word.
type WordStat struct {
	Word          Word    `json:"word"`
	TotalAttempts int     `json:"totalAttempts"`
	TotalErrors   int     `json:"totalErrors"`
	ErrorRate     float64 `json:"errorRate"`
}

// CohortSummary carries the derived grand figures: rank 0 of each ranking and
// the mean student score. OverallScore is 0, never NaN, with no students.
type CohortSummary struct {
	StudentCount int       `json:"studentCount"`
	WordCount    int       `json:"wordCount"`
	RecordCount  int       `json:"recordCount"`
	OverallScore int       `json:"overallScore"`
	HardestRule  *RuleStat `json:"hardestRule,omitempty"`
	HardestWord  *WordStat `json:"hardestWord,omitempty"`
}

// ExportRow is one flat line of the tabular export: one (student, word, rule)
// triple driven by the word's rule list.
type ExportRow struct {
	StudentName     string `json:"studentName"`
	WordText        string `json:"wordText"`
	RuleCode        string `json:"ruleCode"`
	RuleDescription string `json:"ruleDescription"`
	Result          string `json:"result"`
	Notes           string `json:"notes"`
}

// ProgressEntry is one student's line in the live scoring feed.
type ProgressEntry struct {
	StudentID  string `json:"studentId"`
	Name       string `json:"name"`
	Judged     int    `json:"judged"`
	Correct    int    `json:"correct"`
	Errors     int    `json:"errors"`
	Completion int    `json:"completion"`
}

// RoundProgress is the snapshot broadcast to scoring subscribers after every
// mutation.
type RoundProgress struct {
	RoundID   string          `json:"roundId"`
	Entries   []ProgressEntry `json:"entries"`
	UpdatedAt time.Time       `json:"updatedAt"`
}
