package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/golang-jwt/jwt/v5"

	"kharcha/internal/budget"
	"kharcha/internal/ledger"
	"kharcha/internal/storage"
)

var testSecret = []byte("test-secret")

func newTestServer(t *testing.T) *Server {
	t.Helper()

	repo, err := storage.NewRepository(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewRepository() error = %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })

	store := ledger.NewStore(repo, nil)
	budgets := budget.NewManager(repo)

	s := NewServer(":0", testSecret, store, budgets, nil)
	t.Cleanup(func() { s.rateLimiter.stop() })
	return s
}

func signToken(t *testing.T, sub string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": sub})
	signed, err := token.SignedString(testSecret)
	if err != nil {
		t.Fatalf("SignedString() error = %v", err)
	}
	return signed
}

func doRequest(t *testing.T, s *Server, method, target, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, target, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.Handler.ServeHTTP(rec, req)
	return rec
}

func TestMissingTokenRejected(t *testing.T) {
	s := newTestServer(t)

	rec := doRequest(t, s, http.MethodGet, "/api/expenses", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestTokenSignedWithWrongSecretRejected(t *testing.T) {
	s := newTestServer(t)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "user-1"})
	signed, err := token.SignedString([]byte("some-other-secret"))
	if err != nil {
		t.Fatalf("SignedString() error = %v", err)
	}

	rec := doRequest(t, s, http.MethodGet, "/api/expenses", signed, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestCreateAndListExpenses(t *testing.T) {
	s := newTestServer(t)
	token := signToken(t, "user-1")

	rec := doRequest(t, s, http.MethodPost, "/api/expenses", token, createExpenseRequest{
		Amount:      "450.00",
		Category:    "Other",
		CustomLabel: " Chai ",
		Notes:       "morning round",
		OccurredOn:  "2026-01-15",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var created map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode create response: %v", err)
	}
	if created["id"] == "" {
		t.Fatal("expected non-empty id")
	}

	rec = doRequest(t, s, http.MethodGet, "/api/expenses", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var listed struct {
		Expenses     []expenseJSON `json:"expenses"`
		CustomLabels []string      `json:"customLabels"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &listed); err != nil {
		t.Fatalf("decode list response: %v", err)
	}
	if len(listed.Expenses) != 1 {
		t.Fatalf("len(expenses) = %d, want 1", len(listed.Expenses))
	}
	got := listed.Expenses[0]
	if got.Category != "Chai" {
		t.Errorf("Category = %q, want custom label %q", got.Category, "Chai")
	}
	if got.Amount != 450.00 {
		t.Errorf("Amount = %v, want 450.00", got.Amount)
	}
	if len(listed.CustomLabels) != 1 || listed.CustomLabels[0] != "Chai" {
		t.Errorf("CustomLabels = %v, want [Chai]", listed.CustomLabels)
	}
}

func TestListFiltersByCategoryAndDates(t *testing.T) {
	s := newTestServer(t)
	token := signToken(t, "user-1")

	for _, e := range []createExpenseRequest{
		{Amount: "100", Category: "Food", OccurredOn: "2026-01-10"},
		{Amount: "200", Category: "Transport", OccurredOn: "2026-01-20"},
		{Amount: "300", Category: "Food", OccurredOn: "2026-02-05"},
	} {
		if rec := doRequest(t, s, http.MethodPost, "/api/expenses", token, e); rec.Code != http.StatusCreated {
			t.Fatalf("create status = %d", rec.Code)
		}
	}

	rec := doRequest(t, s, http.MethodGet, "/api/expenses?category=Food&start=2026-01-01&end=2026-01-31", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d", rec.Code)
	}
	var listed struct {
		Expenses []expenseJSON `json:"expenses"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &listed); err != nil {
		t.Fatalf("decode list response: %v", err)
	}
	if len(listed.Expenses) != 1 {
		t.Fatalf("len(expenses) = %d, want 1", len(listed.Expenses))
	}
	if listed.Expenses[0].OccurredOn != "2026-01-10" {
		t.Errorf("OccurredOn = %q, want 2026-01-10", listed.Expenses[0].OccurredOn)
	}
}

func TestInvalidAmountRejected(t *testing.T) {
	s := newTestServer(t)
	token := signToken(t, "user-1")

	rec := doRequest(t, s, http.MethodPost, "/api/expenses", token, createExpenseRequest{
		Amount:     "-5",
		Category:   "Food",
		OccurredOn: "2026-01-15",
	})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnprocessableEntity)
	}
}

func TestUpdateExpense(t *testing.T) {
	s := newTestServer(t)
	token := signToken(t, "user-1")

	rec := doRequest(t, s, http.MethodPost, "/api/expenses", token, createExpenseRequest{
		Amount: "100", Category: "Food", OccurredOn: "2026-01-15",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d", rec.Code)
	}
	var created map[string]string
	_ = json.Unmarshal(rec.Body.Bytes(), &created)

	amount := "250.50"
	notes := "updated"
	rec = doRequest(t, s, http.MethodPatch, "/api/expenses/"+created["id"], token, updateExpenseRequest{
		Amount: &amount,
		Notes:  &notes,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("update status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var updated expenseJSON
	if err := json.Unmarshal(rec.Body.Bytes(), &updated); err != nil {
		t.Fatalf("decode update response: %v", err)
	}
	if updated.Amount != 250.50 {
		t.Errorf("Amount = %v, want 250.50", updated.Amount)
	}
	if updated.Notes != "updated" {
		t.Errorf("Notes = %q, want %q", updated.Notes, "updated")
	}
	if updated.Category != "Food" {
		t.Errorf("Category = %q, want unchanged Food", updated.Category)
	}
	if updated.OccurredOn != "2026-01-15" {
		t.Errorf("OccurredOn = %q, want immutable 2026-01-15", updated.OccurredOn)
	}
}

func TestUpdateMissingExpenseReturns404(t *testing.T) {
	s := newTestServer(t)
	token := signToken(t, "user-1")

	notes := "x"
	rec := doRequest(t, s, http.MethodPatch, "/api/expenses/no-such-id", token, updateExpenseRequest{Notes: &notes})
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestDeleteRequiresConfirmation(t *testing.T) {
	s := newTestServer(t)
	token := signToken(t, "user-1")

	rec := doRequest(t, s, http.MethodPost, "/api/expenses", token, createExpenseRequest{
		Amount: "100", Category: "Food", OccurredOn: "2026-01-15",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d", rec.Code)
	}
	var created map[string]string
	_ = json.Unmarshal(rec.Body.Bytes(), &created)

	rec = doRequest(t, s, http.MethodDelete, "/api/expenses/"+created["id"], token, nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("unconfirmed delete status = %d, want %d", rec.Code, http.StatusConflict)
	}

	rec = doRequest(t, s, http.MethodDelete, "/api/expenses/"+created["id"]+"?confirm=true", token, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("confirmed delete status = %d, want %d", rec.Code, http.StatusNoContent)
	}

	rec = doRequest(t, s, http.MethodGet, "/api/expenses", token, nil)
	var listed struct {
		Expenses []expenseJSON `json:"expenses"`
	}
	_ = json.Unmarshal(rec.Body.Bytes(), &listed)
	if len(listed.Expenses) != 0 {
		t.Errorf("len(expenses) = %d after delete, want 0", len(listed.Expenses))
	}
}

func TestUsersCannotSeeEachOther(t *testing.T) {
	s := newTestServer(t)
	alice := signToken(t, "alice")
	bob := signToken(t, "bob")

	rec := doRequest(t, s, http.MethodPost, "/api/expenses", alice, createExpenseRequest{
		Amount: "100", Category: "Food", OccurredOn: "2026-01-15",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d", rec.Code)
	}

	rec = doRequest(t, s, http.MethodGet, "/api/expenses", bob, nil)
	var listed struct {
		Expenses []expenseJSON `json:"expenses"`
	}
	_ = json.Unmarshal(rec.Body.Bytes(), &listed)
	if len(listed.Expenses) != 0 {
		t.Errorf("bob sees %d of alice's expenses, want 0", len(listed.Expenses))
	}
}

func TestProfileRoundTripAndBudgetReport(t *testing.T) {
	s := newTestServer(t)
	token := signToken(t, "user-1")

	rec := doRequest(t, s, http.MethodGet, "/api/profile", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get profile status = %d", rec.Code)
	}
	var profile profileJSON
	_ = json.Unmarshal(rec.Body.Bytes(), &profile)
	if profile.MonthlyBudget != 0 || profile.Currency != "PKR" {
		t.Errorf("default profile = %+v, want zero budget and PKR", profile)
	}

	monthly := 1200.00
	rec = doRequest(t, s, http.MethodPut, "/api/profile", token, saveProfileRequest{MonthlyBudget: &monthly})
	if rec.Code != http.StatusOK {
		t.Fatalf("save profile status = %d, body = %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, s, http.MethodPost, "/api/expenses", token, createExpenseRequest{
		Amount: "1000", Category: "Bills", OccurredOn: "2026-01-15",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d", rec.Code)
	}

	rec = doRequest(t, s, http.MethodGet, "/api/reports/budget?year=2026&month=1", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("budget report status = %d", rec.Code)
	}
	var summary budgetSummaryJSON
	if err := json.Unmarshal(rec.Body.Bytes(), &summary); err != nil {
		t.Fatalf("decode summary: %v", err)
	}
	if summary.Budget != 1200.00 {
		t.Errorf("Budget = %v, want 1200.00", summary.Budget)
	}
	if summary.Spent != 1000.00 {
		t.Errorf("Spent = %v, want 1000.00", summary.Spent)
	}
	if summary.Remaining != 200.00 {
		t.Errorf("Remaining = %v, want 200.00", summary.Remaining)
	}
}

func TestNegativeBudgetRejected(t *testing.T) {
	s := newTestServer(t)
	token := signToken(t, "user-1")

	monthly := -50.0
	rec := doRequest(t, s, http.MethodPut, "/api/profile", token, saveProfileRequest{MonthlyBudget: &monthly})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnprocessableEntity)
	}
}

func TestBlankCurrencyRejected(t *testing.T) {
	s := newTestServer(t)
	token := signToken(t, "user-1")

	currency := ""
	rec := doRequest(t, s, http.MethodPut, "/api/profile", token, saveProfileRequest{Currency: &currency})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnprocessableEntity)
	}

	rec = doRequest(t, s, http.MethodGet, "/api/profile", token, nil)
	var profile profileJSON
	_ = json.Unmarshal(rec.Body.Bytes(), &profile)
	if profile.Currency != "PKR" {
		t.Errorf("Currency = %q after rejected save, want default PKR", profile.Currency)
	}
}

func TestExportRows(t *testing.T) {
	s := newTestServer(t)
	token := signToken(t, "user-1")

	rec := doRequest(t, s, http.MethodPost, "/api/expenses", token, createExpenseRequest{
		Amount: "75.25", Category: "Shopping", Notes: "socks", OccurredOn: "2026-01-15",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d", rec.Code)
	}

	rec = doRequest(t, s, http.MethodGet, "/api/export/rows", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("export status = %d", rec.Code)
	}
	var doc struct {
		Rows []struct {
			Date     string  `json:"date"`
			Category string  `json:"category"`
			Amount   float64 `json:"amount"`
			Notes    string  `json:"notes"`
		} `json:"rows"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &doc); err != nil {
		t.Fatalf("decode document: %v", err)
	}
	if len(doc.Rows) != 1 {
		t.Fatalf("len(rows) = %d, want 1", len(doc.Rows))
	}
	if doc.Rows[0].Amount != 75.25 || doc.Rows[0].Category != "Shopping" {
		t.Errorf("row = %+v", doc.Rows[0])
	}
}

func TestExportPushWithoutWriterReturns503(t *testing.T) {
	s := newTestServer(t)
	token := signToken(t, "user-1")

	rec := doRequest(t, s, http.MethodGet, "/api/export/rows?push=true", token, nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
}

func TestHealthEndpointsOpen(t *testing.T) {
	s := newTestServer(t)

	for _, target := range []string{"/healthz", "/readyz"} {
		rec := doRequest(t, s, http.MethodGet, target, "", nil)
		if rec.Code != http.StatusOK {
			t.Errorf("%s status = %d, want 200", target, rec.Code)
		}
	}
}
