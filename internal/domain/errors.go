package domain

import "errors"

var (
	// ErrRoundNotFound is returned when a test round's roster could not be loaded.
	ErrRoundNotFound = errors.New("test round not found")
	// ErrStudentNotFound is returned when a judgment targets a student outside the round.
	ErrStudentNotFound = errors.New("student not found in round")
	// ErrWordNotFound is returned when a judgment targets a word outside the round.
	ErrWordNotFound = errors.New("word not found in round")
	// ErrRuleNotOnWord is returned when a judged rule is not in the word's rule list.
	ErrRuleNotOnWord = errors.New("rule does not apply to word")
	// ErrNothingToExport signals an empty dataset instead of a malformed empty file.
	ErrNothingToExport = errors.New("nothing to export")
)
