package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"kharcha/internal/core"
)

// GetProfile loads the user's budget profile. The second return value is
// false when the user has never saved one.
func (r *Repository) GetProfile(ctx context.Context, userID string) (core.BudgetProfile, bool, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT monthly_budget_cents, currency, updated_at
		FROM budget_profiles
		WHERE user_id = ?`, userID)

	var (
		p         core.BudgetProfile
		updatedAt string
	)
	err := row.Scan(&p.MonthlyBudget.Cents, &p.Currency, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return core.BudgetProfile{}, false, nil
	}
	if err != nil {
		return core.BudgetProfile{}, false, fmt.Errorf("get profile: %w", err)
	}

	t, err := time.Parse(timeLayout, updatedAt)
	if err != nil {
		return core.BudgetProfile{}, false, fmt.Errorf("malformed updated_at %q for user profile: %w", updatedAt, err)
	}
	p.UpdatedAt = t

	return p, true, nil
}

// SaveProfile merge-writes the supplied fields onto the stored profile and
// stamps updated_at. Fields omitted from the patch keep their stored values;
// a first save starts from the defaults.
func (r *Repository) SaveProfile(ctx context.Context, userID string, patch core.ProfilePatch) (core.BudgetProfile, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return core.BudgetProfile{}, fmt.Errorf("begin profile save: %w", err)
	}
	defer tx.Rollback()

	p := core.BudgetProfile{Currency: core.DefaultCurrency}

	row := tx.QueryRowContext(ctx, `
		SELECT monthly_budget_cents, currency
		FROM budget_profiles
		WHERE user_id = ?`, userID)
	err = row.Scan(&p.MonthlyBudget.Cents, &p.Currency)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return core.BudgetProfile{}, fmt.Errorf("read profile: %w", err)
	}

	if patch.MonthlyBudget != nil {
		p.MonthlyBudget = *patch.MonthlyBudget
	}
	if patch.Currency != nil {
		p.Currency = *patch.Currency
	}
	p.UpdatedAt = r.now()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO budget_profiles (user_id, monthly_budget_cents, currency, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			monthly_budget_cents = excluded.monthly_budget_cents,
			currency = excluded.currency,
			updated_at = excluded.updated_at`,
		userID, p.MonthlyBudget.Cents, p.Currency, p.UpdatedAt.Format(timeLayout))
	if err != nil {
		return core.BudgetProfile{}, fmt.Errorf("save profile: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return core.BudgetProfile{}, fmt.Errorf("commit profile save: %w", err)
	}

	slog.InfoContext(ctx, "Budget profile saved",
		"monthly_budget_cents", p.MonthlyBudget.Cents,
		"currency", p.Currency)

	return p, nil
}
