// Package export re-shapes ledger data for external serializers. It does no
// aggregation of its own: summaries come in already computed.
package export

import (
	"kharcha/internal/core"
	"kharcha/internal/report"
)

// Row is the flat spreadsheet shape of one expense.
type Row struct {
	Date     string  `json:"date"`
	Category string  `json:"category"`
	Amount   float64 `json:"amount"`
	Notes    string  `json:"notes"`
}

// Document is the paginated-document shape: the same rows plus the budget
// summary header.
type Document struct {
	Summary report.BudgetSummary `json:"summary"`
	Rows    []Row                `json:"rows"`
}

// Rows flattens records in their snapshot order.
func Rows(records core.Snapshot) []Row {
	rows := make([]Row, len(records))
	for i, e := range records {
		rows[i] = Row{
			Date:     e.OccurredOn.String(),
			Category: e.Category,
			Amount:   e.Amount.Units(),
			Notes:    e.Notes,
		}
	}
	return rows
}

// NewDocument pairs the rows with a precomputed budget summary.
func NewDocument(records core.Snapshot, summary report.BudgetSummary) Document {
	return Document{
		Summary: summary,
		Rows:    Rows(records),
	}
}
