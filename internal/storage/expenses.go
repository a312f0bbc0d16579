package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"kharcha/internal/core"
)

// timeLayout keeps created_at lexicographically sortable in SQLite so the
// snapshot ORDER BY works on the stored text directly.
const (
	dateLayout = "2006-01-02"
	timeLayout = "2006-01-02 15:04:05.000000000"
)

const snapshotQuery = `
SELECT id, amount_cents, category, notes, occurred_on, created_at
FROM expenses
WHERE user_id = ?
ORDER BY occurred_on DESC, created_at DESC`

// InsertExpense stores a new record for the user, assigning its id and the
// repository clock's created_at. The category must already be resolved.
func (r *Repository) InsertExpense(ctx context.Context, userID, category string, d core.Draft) (core.Expense, error) {
	e := core.Expense{
		ID:         uuid.NewString(),
		Amount:     d.Amount,
		Category:   category,
		Notes:      d.Notes,
		OccurredOn: d.OccurredOn,
		CreatedAt:  r.now(),
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO expenses (id, user_id, amount_cents, category, notes, occurred_on, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, userID, e.Amount.Cents, e.Category, e.Notes,
		e.OccurredOn.Format(dateLayout), e.CreatedAt.Format(timeLayout))
	if err != nil {
		return core.Expense{}, fmt.Errorf("insert expense: %w", err)
	}

	slog.InfoContext(ctx, "Expense saved",
		"id", e.ID,
		"category", e.Category,
		"amount_cents", e.Amount.Cents,
		"occurred_on", e.OccurredOn.String())

	return e, nil
}

// ListExpenses returns the user's complete ledger ordered by occurred_on
// descending, created_at descending on ties.
func (r *Repository) ListExpenses(ctx context.Context, userID string) (core.Snapshot, error) {
	rows, err := r.db.QueryContext(ctx, snapshotQuery, userID)
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	defer rows.Close()

	var snap core.Snapshot
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, err
		}
		snap = append(snap, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	return snap, nil
}

// ListAllExpenses returns every record across users in snapshot order. The
// export worker uses it to mirror the whole database into the spreadsheet.
func (r *Repository) ListAllExpenses(ctx context.Context) (core.Snapshot, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, amount_cents, category, notes, occurred_on, created_at
		FROM expenses
		ORDER BY occurred_on DESC, created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list all expenses: %w", err)
	}
	defer rows.Close()

	var snap core.Snapshot
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, err
		}
		snap = append(snap, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list all expenses: %w", err)
	}
	return snap, nil
}

// GetExpense returns a single record or core.ErrNotFound.
func (r *Repository) GetExpense(ctx context.Context, userID, id string) (core.Expense, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, amount_cents, category, notes, occurred_on, created_at
		FROM expenses
		WHERE user_id = ? AND id = ?`, userID, id)

	e, err := scanExpense(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Expense{}, core.ErrNotFound
	}
	if err != nil {
		return core.Expense{}, err
	}
	return e, nil
}

// UpdateExpense merges the patch onto the stored record inside a transaction
// and returns the updated row. occurred_on and created_at never change.
func (r *Repository) UpdateExpense(ctx context.Context, userID, id string, p core.Patch) (core.Expense, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return core.Expense{}, fmt.Errorf("begin update: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `
		SELECT id, amount_cents, category, notes, occurred_on, created_at
		FROM expenses
		WHERE user_id = ? AND id = ?`, userID, id)

	e, err := scanExpense(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Expense{}, core.ErrNotFound
	}
	if err != nil {
		return core.Expense{}, err
	}

	if p.Amount != nil {
		e.Amount = *p.Amount
	}
	if p.Category != nil {
		e.Category = *p.Category
	}
	if p.Notes != nil {
		e.Notes = *p.Notes
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE expenses SET amount_cents = ?, category = ?, notes = ?
		WHERE user_id = ? AND id = ?`,
		e.Amount.Cents, e.Category, e.Notes, userID, id)
	if err != nil {
		return core.Expense{}, fmt.Errorf("update expense: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return core.Expense{}, fmt.Errorf("commit update: %w", err)
	}

	slog.InfoContext(ctx, "Expense updated", "id", id, "category", e.Category, "amount_cents", e.Amount.Cents)
	return e, nil
}

// DeleteExpense removes the record, or reports core.ErrNotFound if it was
// already gone (for example deleted remotely since the caller's last snapshot).
func (r *Repository) DeleteExpense(ctx context.Context, userID, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM expenses WHERE user_id = ? AND id = ?`, userID, id)
	if err != nil {
		return fmt.Errorf("delete expense: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete expense: %w", err)
	}
	if n == 0 {
		return core.ErrNotFound
	}

	slog.InfoContext(ctx, "Expense deleted", "id", id)
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

// scanExpense coerces a stored row into the strict Expense schema. Rows with
// unparseable dates are rejected here rather than propagated into aggregation.
func scanExpense(row rowScanner) (core.Expense, error) {
	var (
		e          core.Expense
		occurredOn string
		createdAt  string
	)
	if err := row.Scan(&e.ID, &e.Amount.Cents, &e.Category, &e.Notes, &occurredOn, &createdAt); err != nil {
		return core.Expense{}, err
	}

	d, err := time.Parse(dateLayout, occurredOn)
	if err != nil {
		return core.Expense{}, fmt.Errorf("malformed occurred_on %q for expense %s: %w", occurredOn, e.ID, err)
	}
	e.OccurredOn = core.Date{Time: d}

	c, err := time.Parse(timeLayout, createdAt)
	if err != nil {
		return core.Expense{}, fmt.Errorf("malformed created_at %q for expense %s: %w", createdAt, e.ID, err)
	}
	e.CreatedAt = c

	return e, nil
}
