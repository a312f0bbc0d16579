package core

import (
	"errors"
	"strings"
	"time"
)

// DefaultCurrency is used when a user has never saved a budget profile.
const DefaultCurrency = "PKR"

type (
	// Date is a calendar date without a time-of-day component.
	Date struct {
		time.Time
	}

	Money struct {
		Cents int64
	}

	// Expense is one recorded transaction, owned by exactly one user.
	Expense struct {
		ID         string
		Amount     Money
		Category   string
		Notes      string
		OccurredOn Date
		CreatedAt  time.Time // assigned by the store, immutable
	}

	// Snapshot is a complete view of one user's ledger at a point in time,
	// ordered by OccurredOn descending with CreatedAt descending tie-breaks.
	Snapshot []Expense

	// Draft carries user input for a new expense before it is validated
	// and submitted to the ledger.
	Draft struct {
		Amount      Money
		Category    string
		CustomLabel string
		Notes       string
		OccurredOn  Date
	}

	// Patch describes a partial edit of an existing expense. Nil fields are
	// left untouched. OccurredOn and CreatedAt are immutable after creation.
	Patch struct {
		Amount   *Money
		Category *string
		Notes    *string
	}

	// BudgetProfile holds per-user budget settings.
	BudgetProfile struct {
		MonthlyBudget Money
		Currency      string
		UpdatedAt     time.Time
	}

	// ProfilePatch merge-writes only the supplied fields on save.
	ProfilePatch struct {
		MonthlyBudget *Money
		Currency      *string
	}
)

var (
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrInvalidCurrency    = errors.New("invalid currency")
	ErrEmptyCategory      = errors.New("empty category")
	ErrInvalidDate        = errors.New("invalid date")
	ErrNotAuthenticated   = errors.New("not authenticated")
	ErrNotFound           = errors.New("expense not found")
	ErrDeleteNotConfirmed = errors.New("delete not confirmed")
	ErrSyncUnavailable    = errors.New("sync unavailable")
)

// NewDate creates a Date from year, month, day in UTC.
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its calendar date in UTC.
func DateOf(t time.Time) Date {
	return NewDate(t.Year(), int(t.Month()), t.Day())
}

func (d Date) Validate() error {
	if d.IsZero() {
		return ErrInvalidDate
	}
	return nil
}

// In reports whether the date falls in the given month of the given year.
func (d Date) In(year int, month time.Month) bool {
	return d.Year() == year && d.Time.Month() == month
}

func (d Date) String() string {
	return d.Format("2006-01-02")
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse("2006-01-02", strings.TrimSpace(s))
	if err != nil {
		return Date{}, ErrInvalidDate
	}
	return Date{Time: t}, nil
}

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

// Validate checks a draft before submission. The category check runs against
// the resolved category so a custom label entered under Other counts.
func (d Draft) Validate() error {
	if err := d.Amount.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(ResolveCategory(d.Category, d.CustomLabel)) == "" {
		return ErrEmptyCategory
	}
	if err := d.OccurredOn.Validate(); err != nil {
		return err
	}
	return nil
}

// Validate rejects patches that would corrupt a stored record.
func (p Patch) Validate() error {
	if p.Amount != nil {
		if err := p.Amount.Validate(); err != nil {
			return err
		}
	}
	if p.Category != nil && strings.TrimSpace(*p.Category) == "" {
		return ErrEmptyCategory
	}
	return nil
}

// IsEmpty reports whether the patch changes nothing.
func (p Patch) IsEmpty() bool {
	return p.Amount == nil && p.Category == nil && p.Notes == nil
}
