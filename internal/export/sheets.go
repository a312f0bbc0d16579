package export

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

// SheetsWriter mirrors exported rows into a Google Sheet. Each write
// replaces the sheet's contents wholesale, matching the ledger's
// snapshot-replacement model.
type SheetsWriter struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetName     string
}

// NewSheetsWriterFromEnv builds a writer from environment configuration.
// Required: GOOGLE_SPREADSHEET_ID. Auth comes from GOOGLE_SERVICE_ACCOUNT_JSON,
// GOOGLE_SERVICE_ACCOUNT_FILE or application default credentials.
func NewSheetsWriterFromEnv(ctx context.Context, sheetName string) (*SheetsWriter, error) {
	spreadsheetID := strings.TrimSpace(os.Getenv("GOOGLE_SPREADSHEET_ID"))
	if spreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	if sheetName == "" {
		sheetName = "Expenses"
	}

	svc, err := newSheetsService(ctx)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}

	return &SheetsWriter{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		sheetName:     sheetName,
	}, nil
}

func newSheetsService(ctx context.Context) (*gsheet.Service, error) {
	serviceAccountJSON := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON"))
	serviceAccountFile := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"))

	switch {
	case serviceAccountJSON != "":
		return gsheet.NewService(ctx,
			goption.WithCredentialsJSON([]byte(serviceAccountJSON)),
			goption.WithScopes(gsheet.SpreadsheetsScope))
	case serviceAccountFile != "":
		return gsheet.NewService(ctx,
			goption.WithCredentialsFile(serviceAccountFile),
			goption.WithScopes(gsheet.SpreadsheetsScope))
	default:
		// Fall back to application default credentials.
		return gsheet.NewService(ctx, goption.WithScopes(gsheet.SpreadsheetsScope))
	}
}

// WriteRows clears the sheet and writes a header plus the given rows.
func (w *SheetsWriter) WriteRows(ctx context.Context, rows []Row) error {
	clearRange := fmt.Sprintf("%s!A:D", w.sheetName)
	if _, err := w.svc.Spreadsheets.Values.Clear(w.spreadsheetID, clearRange, &gsheet.ClearValuesRequest{}).
		Context(ctx).Do(); err != nil {
		return fmt.Errorf("clear sheet: %w", err)
	}

	values := make([][]any, 0, len(rows)+1)
	values = append(values, []any{"Date", "Category", "Amount", "Notes"})
	for _, r := range rows {
		values = append(values, []any{r.Date, r.Category, r.Amount, r.Notes})
	}

	vr := &gsheet.ValueRange{Values: values}
	_, err := w.svc.Spreadsheets.Values.
		Update(w.spreadsheetID, fmt.Sprintf("%s!A1", w.sheetName), vr).
		ValueInputOption("USER_ENTERED").
		Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("write rows: %w", err)
	}

	slog.InfoContext(ctx, "Exported rows to sheet",
		"sheet", w.sheetName,
		"rows", len(rows))
	return nil
}
