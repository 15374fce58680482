// Package export writes the flat assessment rows to tabular sinks. The
// aggregation core owns the row structure; this package only encodes it.
package export

import (
	"encoding/csv"
	"io"

	"spelling-assessment-service/internal/domain"
)

// Columns is the fixed header contract of the tabular export.
var Columns = []string{"Student", "Word", "Rule Code", "Rule Description", "Result", "Notes"}

// WriteCSV encodes the rows with the fixed column contract. Callers are
// expected to have handled the empty-dataset case already; an empty slice
// here still produces the header line.
func WriteCSV(w io.Writer, rows []domain.ExportRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns); err != nil {
		return err
	}
	for _, row := range rows {
		record := []string{row.StudentName, row.WordText, row.RuleCode, row.RuleDescription, row.Result, row.Notes}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
