package app

import (
	"math"
	"sort"

	"spelling-assessment-service/internal/domain"
)

// The aggregators in this file are pure: they read the round-scoped
// collections they are handed and never mutate them. Malformed or dangling
// references (a deleted rule still listed on a word, a record whose word or
// student is gone) are skipped, never fatal.

// IndividualReports derives per-student rule-failure breakdowns from the
// round snapshot. ErrorStatsByRule is sparse: rules with zero failures for a
// student are omitted. ErrorWords keeps the order records were scanned in.
func IndividualReports(students []domain.Student, words []domain.Word, rules []domain.SpellingRule, assessments []domain.AssessmentRecord) []domain.StudentReport {
	wordsByID := indexWords(words)

	reports := make([]domain.StudentReport, 0, len(students))
	for _, student := range students {
		var own []domain.AssessmentRecord
		for _, record := range assessments {
			if record.StudentID == student.ID {
				own = append(own, record)
			}
		}

		var errorStats []domain.RuleErrorStat
		for _, rule := range rules {
			var failedWords []string
			for _, record := range own {
				if record.RuleResults.Outcome(rule.ID) != domain.OutcomeIncorrect {
					continue
				}
				if word, ok := wordsByID[record.WordID]; ok {
					failedWords = append(failedWords, word.Text)
				}
			}
			if len(failedWords) == 0 {
				continue
			}
			errorStats = append(errorStats, domain.RuleErrorStat{
				RuleID:          rule.ID,
				RuleCode:        rule.Code,
				RuleDescription: rule.Description,
				ErrorCount:      len(failedWords),
				ErrorWords:      failedWords,
			})
		}

		totalErrors := 0
		totalCorrect := 0
		for _, record := range own {
			if anyIncorrect(record.RuleResults) {
				totalErrors++
			} else if len(record.RuleResults) > 0 {
				// every present outcome is correct
				totalCorrect++
			}
		}

		reports = append(reports, domain.StudentReport{
			Student:          student,
			ErrorStatsByRule: errorStats,
			TotalErrors:      totalErrors,
			TotalCorrect:     totalCorrect,
			Completion:       roundPercent(len(own), len(words)),
		})
	}
	return reports
}

// GroupRuleStats ranks rules by failure rate across the cohort, hardest
// first. A record counts as an attempt for a rule only when the owning word
// lists that rule. Rules with zero attempts stay in the list at rate 0.
// The sort is stable: ties keep the tenant's rule ordering.
func GroupRuleStats(students []domain.Student, words []domain.Word, rules []domain.SpellingRule, assessments []domain.AssessmentRecord) []domain.RuleStat {
	wordsByID := indexWords(words)
	studentsByID := make(map[string]domain.Student, len(students))
	for _, s := range students {
		studentsByID[s.ID] = s
	}

	stats := make([]domain.RuleStat, 0, len(rules))
	for _, rule := range rules {
		stat := domain.RuleStat{Rule: rule}
		seenNames := make(map[string]struct{})
		for _, record := range assessments {
			word, ok := wordsByID[record.WordID]
			if !ok || !containsID(word.RuleIDs, rule.ID) {
				continue
			}
			stat.TotalAttempts++
			if record.RuleResults.Outcome(rule.ID) != domain.OutcomeIncorrect {
				continue
			}
			stat.TotalErrors++
			student, ok := studentsByID[record.StudentID]
			if !ok {
				continue
			}
			if _, dup := seenNames[student.Name]; !dup {
				seenNames[student.Name] = struct{}{}
				stat.FailingStudentNames = append(stat.FailingStudentNames, student.Name)
			}
		}
		stat.ErrorRate = errorRate(stat.TotalErrors, stat.TotalAttempts)
		stats = append(stats, stat)
	}

	sort.SliceStable(stats, func(i, j int) bool {
		return stats[i].ErrorRate > stats[j].ErrorRate
	})
	return stats
}

// GroupWordStats ranks words by failure rate, hardest first. A record is an
// error when any judged rule on it is incorrect. Stable on ties.
func GroupWordStats(words []domain.Word, assessments []domain.AssessmentRecord) []domain.WordStat {
	stats := make([]domain.WordStat, 0, len(words))
	for _, word := range words {
		stat := domain.WordStat{Word: word}
		for _, record := range assessments {
			if record.WordID != word.ID {
				continue
			}
			stat.TotalAttempts++
			if anyIncorrect(record.RuleResults) {
				stat.TotalErrors++
			}
		}
		stat.ErrorRate = errorRate(stat.TotalErrors, stat.TotalAttempts)
		stats = append(stats, stat)
	}

	sort.SliceStable(stats, func(i, j int) bool {
		return stats[i].ErrorRate > stats[j].ErrorRate
	})
	return stats
}

// CohortSummary derives the grand figures: the single hardest rule and word
// (rank 0 of each ranking) and the mean student score. With no students the
// score is 0, never NaN.
func CohortSummary(students []domain.Student, words []domain.Word, rules []domain.SpellingRule, assessments []domain.AssessmentRecord) domain.CohortSummary {
	summary := domain.CohortSummary{
		StudentCount: len(students),
		WordCount:    len(words),
		RecordCount:  len(assessments),
	}

	if ruleStats := GroupRuleStats(students, words, rules, assessments); len(ruleStats) > 0 {
		summary.HardestRule = &ruleStats[0]
	}
	if wordStats := GroupWordStats(words, assessments); len(wordStats) > 0 {
		summary.HardestWord = &wordStats[0]
	}

	if len(students) > 0 {
		total := 0.0
		for _, report := range IndividualReports(students, words, rules, assessments) {
			total += float64(report.TotalCorrect) / math.Max(1, float64(len(words))) * 100
		}
		summary.OverallScore = int(math.Round(total / float64(len(students))))
	}
	return summary
}

// ExportRows flattens every (student, word, applicable rule) triple into one
// row. Iteration is driven by the word's rule list, so a rule that was never
// judged still emits a "not judged" row. Dangling rule ids are skipped.
// Returns domain.ErrNothingToExport when no row can be produced.
func ExportRows(students []domain.Student, words []domain.Word, rules []domain.SpellingRule, assessments []domain.AssessmentRecord) ([]domain.ExportRow, error) {
	rulesByID := make(map[string]domain.SpellingRule, len(rules))
	for _, r := range rules {
		rulesByID[r.ID] = r
	}

	recordsByKey := make(map[string]domain.AssessmentRecord, len(assessments))
	for _, record := range assessments {
		recordsByKey[record.StudentID+"\x00"+record.WordID] = record
	}

	var rows []domain.ExportRow
	for _, student := range students {
		for _, word := range words {
			record, hasRecord := recordsByKey[student.ID+"\x00"+word.ID]
			for _, ruleID := range word.RuleIDs {
				rule, ok := rulesByID[ruleID]
				if !ok {
					continue
				}
				outcome := domain.OutcomeNotJudged
				notes := ""
				if hasRecord {
					outcome = record.RuleResults.Outcome(ruleID)
					notes = record.Notes
				}
				rows = append(rows, domain.ExportRow{
					StudentName:     student.Name,
					WordText:        word.Text,
					RuleCode:        rule.Code,
					RuleDescription: rule.Description,
					Result:          outcome.Label(),
					Notes:           notes,
				})
			}
		}
	}

	if len(rows) == 0 {
		return nil, domain.ErrNothingToExport
	}
	return rows, nil
}

func anyIncorrect(results domain.RuleResults) bool {
	for _, outcome := range results {
		if outcome == domain.OutcomeIncorrect {
			return true
		}
	}
	return false
}

func errorRate(errors, attempts int) float64 {
	if attempts == 0 {
		return 0
	}
	return float64(errors) / float64(attempts) * 100
}

// roundPercent computes round(100*count/max(1,total)); the max guards the
// zero-word round.
func roundPercent(count, total int) int {
	return int(math.Round(float64(count) / math.Max(1, float64(total)) * 100))
}

func indexWords(words []domain.Word) map[string]domain.Word {
	out := make(map[string]domain.Word, len(words))
	for _, w := range words {
		out[w.ID] = w
	}
	return out
}

func containsID(ids []string, id string) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}
