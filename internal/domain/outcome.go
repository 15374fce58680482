package domain

import (
	"encoding/json"
	"fmt"
)

// RuleOutcome is the tri-state judgment for one rule on one word. NotJudged
// is only ever the absence of a key in RuleResults; it is never stored.
type RuleOutcome uint8

const (
	OutcomeNotJudged RuleOutcome = iota
	OutcomeCorrect
	OutcomeIncorrect
)

// Label returns the export-facing result text.
func (o RuleOutcome) Label() string {
	switch o {
	case OutcomeCorrect:
		return "correct"
	case OutcomeIncorrect:
		return "incorrect"
	default:
		return "not judged"
	}
}

// RuleResults maps rule ids to judged outcomes. Keys are expected to be a
// subset of the owning word's RuleIDs, but external writers are not
// validated; aggregation ignores keys it cannot gate on a word.
type RuleResults map[string]RuleOutcome

// Outcome looks up a rule, treating absence as NotJudged.
func (r RuleResults) Outcome(ruleID string) RuleOutcome {
	if r == nil {
		return OutcomeNotJudged
	}
	return r[ruleID]
}

// Clone copies the map; a nil receiver stays nil.
func (r RuleResults) Clone() RuleResults {
	if r == nil {
		return nil
	}
	out := make(RuleResults, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// MarshalJSON writes the `{"ruleId": bool}` wire shape used by the storage
// schema; NotJudged entries are dropped rather than encoded.
func (r RuleResults) MarshalJSON() ([]byte, error) {
	out := make(map[string]bool, len(r))
	for ruleID, outcome := range r {
		switch outcome {
		case OutcomeCorrect:
			out[ruleID] = true
		case OutcomeIncorrect:
			out[ruleID] = false
		}
	}
	return json.Marshal(out)
}

// UnmarshalJSON reads the boolean wire shape back into the tri-state map.
func (r *RuleResults) UnmarshalJSON(data []byte) error {
	var raw map[string]bool
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("unmarshal rule results: %w", err)
	}
	out := make(RuleResults, len(raw))
	for ruleID, correct := range raw {
		if correct {
			out[ruleID] = OutcomeCorrect
		} else {
			out[ruleID] = OutcomeIncorrect
		}
	}
	*r = out
	return nil
}

// SyncStatus tracks whether the durable write for a record has settled. The
// in-memory record is never rolled back on failure; this field is the
// observable hook for retry policy.
type SyncStatus string

const (
	SyncPending SyncStatus = "pending"
	SyncSynced  SyncStatus = "synced"
	SyncFailed  SyncStatus = "failed"
)
