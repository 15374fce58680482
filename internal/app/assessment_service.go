package app

import (
	"context"
	"log"
	"sort"
	"sync"
	"time"

	"spelling-assessment-service/internal/domain"
)

// RoundRepository abstracts how live round sessions are stored (in-memory, Redis, etc).
type RoundRepository interface {
	GetOrCreate(roundID string) *Round
	Get(roundID string) (*Round, bool)
	DeleteIfEmpty(roundID string)
}

// RosterRepository loads round-scoped entity snapshots (from cache/backing store).
type RosterRepository interface {
	GetRoster(ctx context.Context, roundID string) (domain.Roster, error)
}

// AssessmentWriter is the durable write sink for upserted records. Writes are
// fire-and-forget from the service's perspective: a failure flips the
// record's SyncStatus and is logged, but the in-memory state stands.
type AssessmentWriter interface {
	UpsertAssessment(ctx context.Context, record domain.AssessmentRecord) error
}

// AssessmentService contains the scoring and reporting use cases.
type AssessmentService struct {
	rounds  RoundRepository
	rosters RosterRepository
	writer  AssessmentWriter
}

func NewAssessmentService(rounds RoundRepository, rosters RosterRepository, writer AssessmentWriter) *AssessmentService {
	return &AssessmentService{rounds: rounds, rosters: rosters, writer: writer}
}

// NewRound is exported for infrastructure layers that need to seed sessions.
func NewRound(id string) *Round {
	return newRound(id)
}

// NewRoundWithClock is test-only for deterministic timestamps.
func NewRoundWithClock(id string, now func() time.Time) *Round {
	return newRoundWithClock(id, now)
}

// Open loads the round's roster, creates or reuses its session, and hydrates
// the in-memory store with persisted records on first use.
func (s *AssessmentService) Open(ctx context.Context, roundID string) (domain.RoundProgress, error) {
	roster, err := s.rosters.GetRoster(ctx, roundID)
	if err != nil {
		return domain.RoundProgress{}, err
	}
	round := s.rounds.GetOrCreate(roundID)
	round.hydrate(roster)
	return round.progress(), nil
}

// JudgeRule records a single rule outcome for a (student, word) pair,
// merging at the key level: other rules already judged on the word survive.
func (s *AssessmentService) JudgeRule(ctx context.Context, roundID, studentID, wordID, ruleID string, correct bool) (domain.RoundProgress, error) {
	round, roster, err := s.openRound(ctx, roundID)
	if err != nil {
		return domain.RoundProgress{}, err
	}
	word, err := validateTarget(roster, studentID, wordID)
	if err != nil {
		return domain.RoundProgress{}, err
	}
	if !containsID(word.RuleIDs, ruleID) {
		return domain.RoundProgress{}, domain.ErrRuleNotOnWord
	}

	record, progress := round.judge(studentID, wordID, ruleID, correct)
	s.persist(round, record)
	return progress, nil
}

// SetNote attaches a free-text note to a (student, word) pair, creating a
// record with no judged rules when none exists yet: a note alone already
// signals the evaluator engaged with the word.
func (s *AssessmentService) SetNote(ctx context.Context, roundID, studentID, wordID, text string) (domain.RoundProgress, error) {
	round, roster, err := s.openRound(ctx, roundID)
	if err != nil {
		return domain.RoundProgress{}, err
	}
	if _, err := validateTarget(roster, studentID, wordID); err != nil {
		return domain.RoundProgress{}, err
	}

	record, progress := round.setNote(studentID, wordID, text)
	s.persist(round, record)
	return progress, nil
}

// MarkAllCorrect is the quick-pass shortcut: every rule on the word is set
// correct in one atomic overwrite. Prior per-rule outcomes for the word are
// discarded; notes are preserved.
func (s *AssessmentService) MarkAllCorrect(ctx context.Context, roundID, studentID, wordID string) (domain.RoundProgress, error) {
	round, roster, err := s.openRound(ctx, roundID)
	if err != nil {
		return domain.RoundProgress{}, err
	}
	word, err := validateTarget(roster, studentID, wordID)
	if err != nil {
		return domain.RoundProgress{}, err
	}

	record, progress := round.markAllCorrect(word, studentID)
	s.persist(round, record)
	return progress, nil
}

// Record returns the current record for a (student, word) pair, if any.
func (s *AssessmentService) Record(ctx context.Context, roundID, studentID, wordID string) (domain.AssessmentRecord, bool, error) {
	round, _, err := s.openRound(ctx, roundID)
	if err != nil {
		return domain.AssessmentRecord{}, false, err
	}
	record, ok := round.find(studentID, wordID)
	return record, ok, nil
}

// IndividualReports recomputes the per-student breakdowns from the current snapshot.
func (s *AssessmentService) IndividualReports(ctx context.Context, roundID string) ([]domain.StudentReport, error) {
	roster, records, err := s.snapshot(ctx, roundID)
	if err != nil {
		return nil, err
	}
	return IndividualReports(roster.Students, roster.Words, roster.Rules, records), nil
}

// GroupRuleStats recomputes the cohort rule ranking from the current snapshot.
func (s *AssessmentService) GroupRuleStats(ctx context.Context, roundID string) ([]domain.RuleStat, error) {
	roster, records, err := s.snapshot(ctx, roundID)
	if err != nil {
		return nil, err
	}
	return GroupRuleStats(roster.Students, roster.Words, roster.Rules, records), nil
}

// GroupWordStats recomputes the cohort word ranking from the current snapshot.
func (s *AssessmentService) GroupWordStats(ctx context.Context, roundID string) ([]domain.WordStat, error) {
	roster, records, err := s.snapshot(ctx, roundID)
	if err != nil {
		return nil, err
	}
	return GroupWordStats(roster.Words, records), nil
}

// CohortSummary recomputes the grand figures from the current snapshot.
func (s *AssessmentService) CohortSummary(ctx context.Context, roundID string) (domain.CohortSummary, error) {
	roster, records, err := s.snapshot(ctx, roundID)
	if err != nil {
		return domain.CohortSummary{}, err
	}
	return CohortSummary(roster.Students, roster.Words, roster.Rules, records), nil
}

// ExportRows flattens the current snapshot for tabular export.
func (s *AssessmentService) ExportRows(ctx context.Context, roundID string) ([]domain.ExportRow, error) {
	roster, records, err := s.snapshot(ctx, roundID)
	if err != nil {
		return nil, err
	}
	return ExportRows(roster.Students, roster.Words, roster.Rules, records)
}

// Subscribe returns a channel receiving progress updates for a round.
// The caller must invoke the returned cancel function to avoid leaks.
func (s *AssessmentService) Subscribe(_ context.Context, roundID string) (<-chan domain.RoundProgress, func(), error) {
	round, ok := s.rounds.Get(roundID)
	if !ok {
		return nil, nil, domain.ErrRoundNotFound
	}
	ch, cancel := round.subscribe()
	return ch, cancel, nil
}

// Leave drops the round session once the last subscriber is gone. Records
// already live durably through the write sink; the session is only the hot
// working copy.
func (s *AssessmentService) Leave(_ context.Context, roundID string) {
	round, ok := s.rounds.Get(roundID)
	if !ok {
		return
	}
	if round.isIdle() {
		s.rounds.DeleteIfEmpty(roundID)
	}
}

func (s *AssessmentService) openRound(ctx context.Context, roundID string) (*Round, domain.Roster, error) {
	roster, err := s.rosters.GetRoster(ctx, roundID)
	if err != nil {
		return nil, domain.Roster{}, err
	}
	round := s.rounds.GetOrCreate(roundID)
	round.hydrate(roster)
	return round, roster, nil
}

// snapshot prefers the live in-memory records (optimistic state) and falls
// back to the persisted collection when no session exists.
func (s *AssessmentService) snapshot(ctx context.Context, roundID string) (domain.Roster, []domain.AssessmentRecord, error) {
	roster, err := s.rosters.GetRoster(ctx, roundID)
	if err != nil {
		return domain.Roster{}, nil, err
	}
	if round, ok := s.rounds.Get(roundID); ok {
		return roster, round.snapshotRecords(), nil
	}
	return roster, roster.Assessments, nil
}

// persist pushes the mutated record to the write sink without blocking the
// caller. The in-memory record is not rolled back on failure; the failure is
// logged and surfaced through SyncStatus for an external retry policy.
func (s *AssessmentService) persist(round *Round, record domain.AssessmentRecord) {
	if s.writer == nil {
		round.setSyncStatus(record.StudentID, record.WordID, domain.SyncSynced)
		return
	}
	go func() {
		if err := s.writer.UpsertAssessment(context.Background(), record); err != nil {
			log.Printf("assessment upsert failed for student=%s word=%s: %v", record.StudentID, record.WordID, err)
			round.setSyncStatus(record.StudentID, record.WordID, domain.SyncFailed)
			return
		}
		round.setSyncStatus(record.StudentID, record.WordID, domain.SyncSynced)
	}()
}

func validateTarget(roster domain.Roster, studentID, wordID string) (domain.Word, error) {
	found := false
	for _, student := range roster.Students {
		if student.ID == studentID {
			found = true
			break
		}
	}
	if !found {
		return domain.Word{}, domain.ErrStudentNotFound
	}
	for _, word := range roster.Words {
		if word.ID == wordID {
			return word, nil
		}
	}
	return domain.Word{}, domain.ErrWordNotFound
}

type recordKey struct {
	studentID string
	wordID    string
}

// Round is the in-memory assessment store for one test round. One lock
// serializes mutations and the snapshots aggregation reads, so a report
// never observes a record mid-update.
type Round struct {
	id        string
	createdAt time.Time
	now       func() time.Time

	mu          sync.RWMutex
	hydrated    bool
	students    []domain.Student
	wordCount   int
	records     map[recordKey]*domain.AssessmentRecord
	order       []recordKey
	subscribers map[chan domain.RoundProgress]struct{}
}

func newRound(id string) *Round {
	return newRoundWithClock(id, time.Now)
}

// newRoundWithClock allows deterministic timestamps in tests.
func newRoundWithClock(id string, now func() time.Time) *Round {
	return &Round{
		id:          id,
		createdAt:   now(),
		now:         now,
		records:     make(map[recordKey]*domain.AssessmentRecord),
		subscribers: make(map[chan domain.RoundProgress]struct{}),
	}
}

// hydrate installs the roster context and seeds persisted records on first
// use. Later calls only refresh the roster view; live records stand.
func (r *Round) hydrate(roster domain.Roster) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.students = roster.Students
	r.wordCount = len(roster.Words)
	if r.hydrated {
		return
	}
	r.hydrated = true
	for _, record := range roster.Assessments {
		key := recordKey{studentID: record.StudentID, wordID: record.WordID}
		if _, exists := r.records[key]; exists {
			continue
		}
		seeded := record.Clone()
		seeded.SyncStatus = domain.SyncSynced
		r.records[key] = &seeded
		r.order = append(r.order, key)
	}
}

func (r *Round) find(studentID, wordID string) (domain.AssessmentRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	record, ok := r.records[recordKey{studentID: studentID, wordID: wordID}]
	if !ok {
		return domain.AssessmentRecord{}, false
	}
	return record.Clone(), true
}

func (r *Round) judge(studentID, wordID, ruleID string, correct bool) (domain.AssessmentRecord, domain.RoundProgress) {
	r.mu.Lock()
	defer r.mu.Unlock()

	record := r.getOrCreateLocked(studentID, wordID)
	if record.RuleResults == nil {
		record.RuleResults = make(domain.RuleResults)
	}
	if correct {
		record.RuleResults[ruleID] = domain.OutcomeCorrect
	} else {
		record.RuleResults[ruleID] = domain.OutcomeIncorrect
	}
	record.IsAttempted = true
	record.SyncStatus = domain.SyncPending
	return record.Clone(), r.broadcastLocked()
}

func (r *Round) setNote(studentID, wordID, text string) (domain.AssessmentRecord, domain.RoundProgress) {
	r.mu.Lock()
	defer r.mu.Unlock()

	record := r.getOrCreateLocked(studentID, wordID)
	record.Notes = text
	record.IsAttempted = true
	record.SyncStatus = domain.SyncPending
	return record.Clone(), r.broadcastLocked()
}

func (r *Round) markAllCorrect(word domain.Word, studentID string) (domain.AssessmentRecord, domain.RoundProgress) {
	r.mu.Lock()
	defer r.mu.Unlock()

	record := r.getOrCreateLocked(studentID, word.ID)
	results := make(domain.RuleResults, len(word.RuleIDs))
	for _, ruleID := range word.RuleIDs {
		results[ruleID] = domain.OutcomeCorrect
	}
	// full overwrite, not a merge: the quick pass discards prior outcomes
	record.RuleResults = results
	record.IsAttempted = true
	record.SyncStatus = domain.SyncPending
	return record.Clone(), r.broadcastLocked()
}

func (r *Round) setSyncStatus(studentID, wordID string, status domain.SyncStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if record, ok := r.records[recordKey{studentID: studentID, wordID: wordID}]; ok {
		record.SyncStatus = status
	}
}

// snapshotRecords copies the records in insertion order; aggregation scan
// order, and with it ErrorWords ordering, stays stable across runs.
func (r *Round) snapshotRecords() []domain.AssessmentRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.AssessmentRecord, 0, len(r.order))
	for _, key := range r.order {
		out = append(out, r.records[key].Clone())
	}
	return out
}

func (r *Round) progress() domain.RoundProgress {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.progressLocked()
}

func (r *Round) isIdle() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subscribers) == 0
}

// IsIdle reports whether the round has no live subscribers.
func (r *Round) IsIdle() bool {
	return r.isIdle()
}

func (r *Round) subscribe() (<-chan domain.RoundProgress, func()) {
	ch := make(chan domain.RoundProgress, 8)

	r.mu.Lock()
	r.subscribers[ch] = struct{}{}
	initial := r.progressLocked()
	r.mu.Unlock()

	ch <- initial

	cancel := func() {
		r.mu.Lock()
		if _, ok := r.subscribers[ch]; ok {
			delete(r.subscribers, ch)
			close(ch)
		}
		r.mu.Unlock()
	}
	return ch, cancel
}

func (r *Round) getOrCreateLocked(studentID, wordID string) *domain.AssessmentRecord {
	key := recordKey{studentID: studentID, wordID: wordID}
	if record, ok := r.records[key]; ok {
		return record
	}
	record := &domain.AssessmentRecord{
		StudentID:   studentID,
		WordID:      wordID,
		TestRoundID: r.id,
		RuleResults: make(domain.RuleResults),
	}
	r.records[key] = record
	r.order = append(r.order, key)
	return record
}

func (r *Round) broadcastLocked() domain.RoundProgress {
	progress := r.progressLocked()
	for ch := range r.subscribers {
		select {
		case ch <- progress:
		default:
			// drop the stale update so a slow client never blocks scoring
			select {
			case <-ch:
			default:
			}
			ch <- progress
		}
	}
	return progress
}

func (r *Round) progressLocked() domain.RoundProgress {
	entries := make([]domain.ProgressEntry, 0, len(r.students))
	for _, student := range r.students {
		entry := domain.ProgressEntry{StudentID: student.ID, Name: student.Name}
		for _, key := range r.order {
			if key.studentID != student.ID {
				continue
			}
			record := r.records[key]
			entry.Judged++
			if anyIncorrect(record.RuleResults) {
				entry.Errors++
			} else if len(record.RuleResults) > 0 {
				entry.Correct++
			}
		}
		entry.Completion = roundPercent(entry.Judged, r.wordCount)
		entries = append(entries, entry)
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Judged != entries[j].Judged {
			return entries[i].Judged > entries[j].Judged
		}
		return entries[i].Name < entries[j].Name
	})

	return domain.RoundProgress{
		RoundID:   r.id,
		Entries:   entries,
		UpdatedAt: r.now(),
	}
}
