package httpapi

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"kharcha/internal/core"
	"kharcha/internal/export"
	"kharcha/internal/filter"
	"kharcha/internal/report"
)

type expenseJSON struct {
	ID         string  `json:"id"`
	Amount     float64 `json:"amount"`
	Category   string  `json:"category"`
	Notes      string  `json:"notes,omitempty"`
	OccurredOn string  `json:"occurredOn"`
	CreatedAt  string  `json:"createdAt"`
}

func toExpenseJSON(e core.Expense) expenseJSON {
	return expenseJSON{
		ID:         e.ID,
		Amount:     e.Amount.Units(),
		Category:   e.Category,
		Notes:      e.Notes,
		OccurredOn: e.OccurredOn.String(),
		CreatedAt:  e.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

type createExpenseRequest struct {
	Amount      string `json:"amount"`
	Category    string `json:"category"`
	CustomLabel string `json:"customLabel,omitempty"`
	Notes       string `json:"notes,omitempty"`
	OccurredOn  string `json:"occurredOn"`
}

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	var req createExpenseRequest
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body"})
		return
	}

	cents, err := core.ParseDecimalToCents(req.Amount)
	if err != nil {
		writeError(w, r, err)
		return
	}
	occurredOn, err := core.ParseDate(req.OccurredOn)
	if err != nil {
		writeError(w, r, err)
		return
	}

	draft := core.Draft{
		Amount:      core.Money{Cents: cents},
		Category:    req.Category,
		CustomLabel: req.CustomLabel,
		Notes:       req.Notes,
		OccurredOn:  occurredOn,
	}

	id, err := s.store.Create(r.Context(), UserID(r.Context()), draft)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	snap, err := s.store.Snapshot(r.Context(), UserID(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}

	st := filter.State{Category: filter.CategoryAll}
	if v := r.URL.Query().Get("category"); v != "" {
		st.Category = v
	}
	if v := r.URL.Query().Get("start"); v != "" {
		d, err := core.ParseDate(v)
		if err != nil {
			writeError(w, r, err)
			return
		}
		st.Start = &d
	}
	if v := r.URL.Query().Get("end"); v != "" {
		d, err := core.ParseDate(v)
		if err != nil {
			writeError(w, r, err)
			return
		}
		st.End = &d
	}

	filtered := filter.Apply(snap, st)
	items := make([]expenseJSON, 0, len(filtered))
	for _, e := range filtered {
		items = append(items, toExpenseJSON(e))
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"expenses":     items,
		"customLabels": core.CustomLabels(snap),
	})
}

type updateExpenseRequest struct {
	Amount      *string `json:"amount,omitempty"`
	Category    *string `json:"category,omitempty"`
	CustomLabel *string `json:"customLabel,omitempty"`
	Notes       *string `json:"notes,omitempty"`
}

func (s *Server) handleUpdateExpense(w http.ResponseWriter, r *http.Request) {
	var req updateExpenseRequest
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body"})
		return
	}

	var patch core.Patch
	if req.Amount != nil {
		cents, err := core.ParseDecimalToCents(*req.Amount)
		if err != nil {
			writeError(w, r, err)
			return
		}
		patch.Amount = &core.Money{Cents: cents}
	}
	if req.Category != nil {
		label := ""
		if req.CustomLabel != nil {
			label = *req.CustomLabel
		}
		resolved := core.ResolveCategory(*req.Category, label)
		patch.Category = &resolved
	}
	patch.Notes = req.Notes

	updated, err := s.store.Update(r.Context(), UserID(r.Context()), r.PathValue("id"), patch)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toExpenseJSON(updated))
}

func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	confirmed := r.URL.Query().Get("confirm") == "true"
	err := s.store.Delete(r.Context(), UserID(r.Context()), r.PathValue("id"), confirmed)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCategoryReport(w http.ResponseWriter, r *http.Request) {
	snap, err := s.store.Snapshot(r.Context(), UserID(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}

	totals := make(map[string]float64)
	for cat, amount := range report.CategoryTotals(snap) {
		totals[cat] = amount.Units()
	}
	writeJSON(w, http.StatusOK, map[string]any{"totals": totals})
}

type pointJSON struct {
	Label string  `json:"label"`
	Total float64 `json:"total"`
}

func toPointsJSON(points []report.Point) []pointJSON {
	out := make([]pointJSON, 0, len(points))
	for _, p := range points {
		out = append(out, pointJSON{Label: p.Label, Total: p.Total.Units()})
	}
	return out
}

// yearMonth reads year/month query params, defaulting to the current month.
func yearMonth(r *http.Request) (int, time.Month, bool) {
	now := time.Now()
	year, month := now.Year(), now.Month()
	if v := r.URL.Query().Get("year"); v != "" {
		y, err := strconv.Atoi(v)
		if err != nil {
			return 0, 0, false
		}
		year = y
	}
	if v := r.URL.Query().Get("month"); v != "" {
		m, err := strconv.Atoi(v)
		if err != nil || m < 1 || m > 12 {
			return 0, 0, false
		}
		month = time.Month(m)
	}
	return year, month, true
}

func (s *Server) handleDailyReport(w http.ResponseWriter, r *http.Request) {
	year, month, ok := yearMonth(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid year or month"})
		return
	}

	snap, err := s.store.Snapshot(r.Context(), UserID(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"year":   year,
		"month":  int(month),
		"points": toPointsJSON(report.DailyTotals(snap, year, month)),
	})
}

func (s *Server) handleMonthlyReport(w http.ResponseWriter, r *http.Request) {
	snap, err := s.store.Snapshot(r.Context(), UserID(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"points": toPointsJSON(report.MonthlyTotals(snap, time.Now())),
	})
}

type budgetSummaryJSON struct {
	Budget     float64 `json:"budget"`
	Spent      float64 `json:"spent"`
	Remaining  float64 `json:"remaining"`
	Percentage float64 `json:"percentage"`
	Currency   string  `json:"currency"`
}

func (s *Server) budgetSummary(r *http.Request, year int, month time.Month) (report.BudgetSummary, error) {
	userID := UserID(r.Context())
	snap, err := s.store.Snapshot(r.Context(), userID)
	if err != nil {
		return report.BudgetSummary{}, err
	}
	profile, err := s.budgets.Load(r.Context(), userID)
	if err != nil {
		return report.BudgetSummary{}, err
	}
	return report.Summary(snap, year, month, profile), nil
}

func (s *Server) handleBudgetReport(w http.ResponseWriter, r *http.Request) {
	year, month, ok := yearMonth(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid year or month"})
		return
	}

	summary, err := s.budgetSummary(r, year, month)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, budgetSummaryJSON{
		Budget:     summary.Budget.Units(),
		Spent:      summary.Spent.Units(),
		Remaining:  summary.Remaining.Units(),
		Percentage: summary.Percentage,
		Currency:   summary.Currency,
	})
}

type profileJSON struct {
	MonthlyBudget float64 `json:"monthlyBudget"`
	Currency      string  `json:"currency"`
	UpdatedAt     string  `json:"updatedAt,omitempty"`
}

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	profile, err := s.budgets.Load(r.Context(), UserID(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toProfileJSON(profile))
}

func toProfileJSON(p core.BudgetProfile) profileJSON {
	out := profileJSON{
		MonthlyBudget: p.MonthlyBudget.Units(),
		Currency:      p.Currency,
	}
	if !p.UpdatedAt.IsZero() {
		out.UpdatedAt = p.UpdatedAt.UTC().Format(time.RFC3339Nano)
	}
	return out
}

type saveProfileRequest struct {
	MonthlyBudget *float64 `json:"monthlyBudget,omitempty"`
	Currency      *string  `json:"currency,omitempty"`
}

func (s *Server) handleSaveProfile(w http.ResponseWriter, r *http.Request) {
	var req saveProfileRequest
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body"})
		return
	}

	var patch core.ProfilePatch
	if req.MonthlyBudget != nil {
		patch.MonthlyBudget = &core.Money{Cents: int64(math.Round(*req.MonthlyBudget * 100))}
	}
	patch.Currency = req.Currency

	saved, err := s.budgets.Save(r.Context(), UserID(r.Context()), patch)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toProfileJSON(saved))
}

// handleExportRows serves the ledger in spreadsheet-row shape. With
// push=true it also writes the rows to the configured spreadsheet.
func (s *Server) handleExportRows(w http.ResponseWriter, r *http.Request) {
	now := time.Now()
	summary, err := s.budgetSummary(r, now.Year(), now.Month())
	if err != nil {
		writeError(w, r, err)
		return
	}
	snap, err := s.store.Snapshot(r.Context(), UserID(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}

	doc := export.NewDocument(snap, summary)

	if r.URL.Query().Get("push") == "true" {
		if s.sheets == nil {
			writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "spreadsheet export not configured"})
			return
		}
		if err := s.sheets.WriteRows(r.Context(), doc.Rows); err != nil {
			writeError(w, r, err)
			return
		}
	}

	writeJSON(w, http.StatusOK, doc)
}
