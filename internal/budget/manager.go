// Package budget persists per-user budget settings with merge-save
// semantics: a save only touches the fields it carries.
package budget

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"kharcha/internal/core"
	"kharcha/internal/storage"
)

type Manager struct {
	repo *storage.Repository
}

func NewManager(repo *storage.Repository) *Manager {
	return &Manager{repo: repo}
}

// Load returns the user's profile, or the defaults (zero budget, PKR) when
// none has ever been saved.
func (m *Manager) Load(ctx context.Context, userID string) (core.BudgetProfile, error) {
	if userID == "" {
		return core.BudgetProfile{}, core.ErrNotAuthenticated
	}

	p, ok, err := m.repo.GetProfile(ctx, userID)
	if err != nil {
		return core.BudgetProfile{}, fmt.Errorf("load profile: %w", err)
	}
	if !ok {
		return core.BudgetProfile{Currency: core.DefaultCurrency}, nil
	}
	return p, nil
}

// Save merge-writes the supplied fields and stamps updated_at. The first
// save creates the profile implicitly. A negative budget or a blank currency
// is rejected before anything is written.
func (m *Manager) Save(ctx context.Context, userID string, patch core.ProfilePatch) (core.BudgetProfile, error) {
	if userID == "" {
		return core.BudgetProfile{}, core.ErrNotAuthenticated
	}
	if patch.MonthlyBudget != nil && patch.MonthlyBudget.Cents < 0 {
		return core.BudgetProfile{}, core.ErrInvalidAmount
	}
	if patch.Currency != nil && strings.TrimSpace(*patch.Currency) == "" {
		return core.BudgetProfile{}, core.ErrInvalidCurrency
	}

	p, err := m.repo.SaveProfile(ctx, userID, patch)
	if err != nil {
		return core.BudgetProfile{}, fmt.Errorf("save profile: %w", err)
	}

	slog.InfoContext(ctx, "Budget profile updated",
		"monthly_budget_cents", p.MonthlyBudget.Cents,
		"currency", p.Currency)
	return p, nil
}
