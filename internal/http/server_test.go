package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"kakeibo/internal/cloud/memory"
	"kakeibo/internal/core"
	"kakeibo/internal/services"
	"kakeibo/internal/storage"
)

type testEnv struct {
	server *Server
	repo   *storage.SQLiteRepository
	object *memory.ObjectStore
	doc    *memory.DocumentStore
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "test.db"), 1<<20)
	if err != nil {
		t.Fatalf("NewSQLiteRepository() error = %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	object := memory.NewObjectStore()
	doc := memory.NewDocumentStore()

	saver := services.NewHybridSaver(repo, object)
	txService := services.NewTransactionService(repo, saver, object, nil)
	budgetService := services.NewBudgetService(repo, doc, nil)

	server := NewServer(":0", txService, budgetService, repo, 64, time.Minute)
	t.Cleanup(func() { _ = server.Shutdown(context.Background()) })

	return &testEnv{server: server, repo: repo, object: object, doc: doc}
}

func (e *testEnv) do(t *testing.T, method, target string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	e.server.Handler.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) doJSON(t *testing.T, method, target string, v any) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal request body: %v", err)
	}
	return e.do(t, method, target, bytes.NewReader(data), "application/json")
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return v
}

// multipartTransaction builds a multipart create request body.
func multipartTransaction(t *testing.T, fields map[string]string, images, documents map[string][]byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("write field %s: %v", k, err)
		}
	}

	writeFile := func(field, name, contentType string, data []byte) {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, field, name))
		h.Set("Content-Type", contentType)
		part, err := mw.CreatePart(h)
		if err != nil {
			t.Fatalf("create part %s: %v", name, err)
		}
		if _, err := part.Write(data); err != nil {
			t.Fatalf("write part %s: %v", name, err)
		}
	}

	for name, data := range images {
		writeFile("images", name, "image/jpeg", data)
	}
	for name, data := range documents {
		writeFile("documents", name, "application/pdf", data)
	}

	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}
	return &buf, mw.FormDataContentType()
}

func defaultFields() map[string]string {
	return map[string]string{
		"type":     "expense",
		"amount":   "1500",
		"category": "food",
		"content":  "昼食",
		"date":     "2024-06-15",
	}
}

func TestHealthEndpoints(t *testing.T) {
	env := newTestEnv(t)

	if rec := env.do(t, http.MethodGet, "/healthz", nil, ""); rec.Code != http.StatusOK {
		t.Errorf("GET /healthz = %d, want 200", rec.Code)
	}
	if rec := env.do(t, http.MethodGet, "/readyz", nil, ""); rec.Code != http.StatusOK {
		t.Errorf("GET /readyz = %d, want 200", rec.Code)
	}
}

func TestCreateTransactionWithAttachments(t *testing.T) {
	env := newTestEnv(t)
	env.object.FailUploads("receipt2.jpg")

	body, contentType := multipartTransaction(t, defaultFields(),
		map[string][]byte{
			"receipt1.jpg": []byte("jpeg-1"),
			"receipt2.jpg": []byte("jpeg-2"),
		}, nil)

	rec := env.do(t, http.MethodPost, "/api/transactions", body, contentType)
	if rec.Code != http.StatusCreated {
		t.Fatalf("POST /api/transactions = %d, body %s", rec.Code, rec.Body.String())
	}

	resp := decodeBody[createTransactionResponse](t, rec)
	if resp.Transaction == nil || resp.Transaction.ID == "" {
		t.Fatal("response should carry the persisted transaction")
	}
	if resp.Images == nil || resp.Images.CloudCount != 1 || resp.Images.LocalCount != 1 {
		t.Errorf("image report = %+v, want 1 cloud and 1 local", resp.Images)
	}
	if !strings.Contains(resp.Summary, "クラウド保存: 1件") || !strings.Contains(resp.Summary, "ローカル保存: 1件") {
		t.Errorf("summary = %q, want both cloud and local counts", resp.Summary)
	}
	if resp.SaveError != "" {
		t.Errorf("partial fallback should not set saveError, got %q", resp.SaveError)
	}

	for _, out := range resp.Images.Outcomes {
		switch out.FileName {
		case "receipt1.jpg":
			if out.Method != services.SaveMethodCloud || out.URL == "" {
				t.Errorf("receipt1 outcome = %+v, want firebase with URL", out)
			}
		case "receipt2.jpg":
			if out.Method != services.SaveMethodLocal || out.AttachmentID == "" {
				t.Errorf("receipt2 outcome = %+v, want local with id", out)
			}
		}
	}

	got, err := env.repo.GetTransaction(context.Background(), resp.Transaction.ID)
	if err != nil {
		t.Fatalf("GetTransaction() error = %v", err)
	}
	if len(got.Images) != 2 {
		t.Errorf("stored transaction has %d image refs, want 2", len(got.Images))
	}
}

func TestCreateTransactionValidation(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name   string
		mutate func(map[string]string)
		want   int
	}{
		{"bad amount", func(f map[string]string) { f["amount"] = "abc" }, http.StatusUnprocessableEntity},
		{"negative amount", func(f map[string]string) { f["amount"] = "-5" }, http.StatusUnprocessableEntity},
		{"bad category", func(f map[string]string) { f["category"] = "gambling" }, http.StatusUnprocessableEntity},
		{"bad date", func(f map[string]string) { f["date"] = "2024-13-40" }, http.StatusUnprocessableEntity},
		{"bad type", func(f map[string]string) { f["type"] = "transfer" }, http.StatusUnprocessableEntity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fields := defaultFields()
			tt.mutate(fields)
			body, contentType := multipartTransaction(t, fields, nil, nil)

			rec := env.do(t, http.MethodPost, "/api/transactions", body, contentType)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d (body %s)", rec.Code, tt.want, rec.Body.String())
			}
		})
	}
}

func TestTransactionLifecycle(t *testing.T) {
	env := newTestEnv(t)

	body, contentType := multipartTransaction(t, defaultFields(), nil, nil)
	created := decodeBody[createTransactionResponse](t, env.do(t, http.MethodPost, "/api/transactions", body, contentType))
	id := created.Transaction.ID

	rec := env.do(t, http.MethodGet, "/api/transactions/"+id, nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET transaction = %d", rec.Code)
	}

	amount := int64(2800)
	rec = env.doJSON(t, http.MethodPatch, "/api/transactions/"+id, map[string]any{"amount": amount})
	if rec.Code != http.StatusOK {
		t.Fatalf("PATCH transaction = %d, body %s", rec.Code, rec.Body.String())
	}
	updated := decodeBody[core.Transaction](t, rec)
	if updated.Amount != core.Money(amount) {
		t.Errorf("updated amount = %d, want %d", updated.Amount, amount)
	}
	if updated.Category != "food" {
		t.Errorf("unpatched category = %q, want food", updated.Category)
	}

	if rec := env.do(t, http.MethodDelete, "/api/transactions/"+id, nil, ""); rec.Code != http.StatusNoContent {
		t.Fatalf("DELETE transaction = %d", rec.Code)
	}
	if rec := env.do(t, http.MethodGet, "/api/transactions/"+id, nil, ""); rec.Code != http.StatusNotFound {
		t.Errorf("GET deleted transaction = %d, want 404", rec.Code)
	}
}

func TestUpdateTransactionMultipart(t *testing.T) {
	env := newTestEnv(t)

	body, contentType := multipartTransaction(t, defaultFields(),
		map[string][]byte{"a.jpg": []byte("jpeg-a")}, nil)
	created := decodeBody[createTransactionResponse](t, env.do(t, http.MethodPost, "/api/transactions", body, contentType))
	id := created.Transaction.ID

	patch, patchType := multipartTransaction(t, map[string]string{"amount": "9800"},
		map[string][]byte{"b.jpg": []byte("jpeg-b")}, nil)

	rec := env.do(t, http.MethodPatch, "/api/transactions/"+id, patch, patchType)
	if rec.Code != http.StatusOK {
		t.Fatalf("multipart PATCH = %d, body %s", rec.Code, rec.Body.String())
	}
	updated := decodeBody[core.Transaction](t, rec)
	if updated.Amount != 9800 {
		t.Errorf("amount = %d, want 9800", updated.Amount)
	}
	if len(updated.Images) != 2 {
		t.Errorf("images = %d, want 2 after adding one", len(updated.Images))
	}
	if updated.Category != "food" {
		t.Errorf("unpatched category = %q, want food", updated.Category)
	}
}

func TestListTransactions(t *testing.T) {
	env := newTestEnv(t)

	for _, date := range []string{"2024-06-01", "2024-06-15", "2024-07-01"} {
		fields := defaultFields()
		fields["date"] = date
		body, contentType := multipartTransaction(t, fields, nil, nil)
		if rec := env.do(t, http.MethodPost, "/api/transactions", body, contentType); rec.Code != http.StatusCreated {
			t.Fatalf("seed create = %d", rec.Code)
		}
	}

	rec := env.do(t, http.MethodGet, "/api/transactions?year=2024&month=6", nil, "")
	if got := len(decodeBody[[]core.Transaction](t, rec)); got != 2 {
		t.Errorf("June list has %d entries, want 2", got)
	}

	rec = env.do(t, http.MethodGet, "/api/transactions?date=2024-06-15", nil, "")
	if got := len(decodeBody[[]core.Transaction](t, rec)); got != 1 {
		t.Errorf("date list has %d entries, want 1", got)
	}

	if rec := env.do(t, http.MethodGet, "/api/transactions?date=nonsense", nil, ""); rec.Code != http.StatusBadRequest {
		t.Errorf("invalid date = %d, want 400", rec.Code)
	}
}

func TestAttachmentEndpoints(t *testing.T) {
	env := newTestEnv(t)
	env.object.SetUnavailable(true) // force local fallback so payloads are fetchable

	body, contentType := multipartTransaction(t, defaultFields(),
		map[string][]byte{"receipt.jpg": []byte("jpeg-data")}, nil)
	created := decodeBody[createTransactionResponse](t, env.do(t, http.MethodPost, "/api/transactions", body, contentType))
	id := created.Transaction.ID

	rec := env.do(t, http.MethodGet, "/api/transactions/"+id+"/attachments", nil, "")
	metas := decodeBody[[]attachmentMeta](t, rec)
	if len(metas) != 1 {
		t.Fatalf("attachment list has %d entries, want 1", len(metas))
	}
	if metas[0].FileName != "receipt.jpg" || metas[0].Source != "local" {
		t.Errorf("meta = %+v, want receipt.jpg from local store", metas[0])
	}

	rec = env.do(t, http.MethodGet, "/api/transactions/"+id+"/attachments/"+metas[0].ID, nil, "")
	payload := decodeBody[attachmentPayload](t, rec)
	if payload.Data != "anBlZy1kYXRh" { // base64("jpeg-data")
		t.Errorf("payload data = %q, want base64 of jpeg-data", payload.Data)
	}

	rec = env.do(t, http.MethodGet, "/api/transactions/"+id+"/attachments/"+metas[0].ID+"?raw=1", nil, "")
	if rec.Body.String() != "jpeg-data" {
		t.Errorf("raw body = %q, want jpeg-data", rec.Body.String())
	}
	if got := rec.Header().Get("Content-Type"); got != "image/jpeg" {
		t.Errorf("raw content type = %q, want image/jpeg", got)
	}

	if rec := env.do(t, http.MethodGet, "/api/transactions/"+id+"/attachments/missing", nil, ""); rec.Code != http.StatusNotFound {
		t.Errorf("missing attachment = %d, want 404", rec.Code)
	}
}

func TestBudgetEndpoints(t *testing.T) {
	env := newTestEnv(t)

	setting := core.BudgetSetting{SiteID: "shibuya", Year: 2024, Month: 6, MonthlyBudget: 500000, SavingsGoal: 50000}
	rec := env.doJSON(t, http.MethodPut, "/api/budgets", setting)
	if rec.Code != http.StatusOK {
		t.Fatalf("PUT /api/budgets = %d, body %s", rec.Code, rec.Body.String())
	}
	updated := decodeBody[updateBudgetResponse](t, rec)
	if updated.Sync.Local != core.SyncOK || updated.Sync.Remote != core.SyncOK {
		t.Errorf("sync = %+v, want both ok", updated.Sync)
	}

	rec = env.do(t, http.MethodGet, "/api/budgets?year=2024&month=6&site=shibuya", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /api/budgets = %d", rec.Code)
	}
	got := decodeBody[core.BudgetSetting](t, rec)
	if got.MonthlyBudget != 500000 {
		t.Errorf("MonthlyBudget = %d, want 500000", got.MonthlyBudget)
	}

	if rec := env.do(t, http.MethodGet, "/api/budgets?year=2024&month=7&site=shibuya", nil, ""); rec.Code != http.StatusNotFound {
		t.Errorf("absent budget = %d, want 404", rec.Code)
	}

	rec = env.do(t, http.MethodGet, "/api/budgets/all", nil, "")
	all := decodeBody[allBudgetsResponse](t, rec)
	if len(all.Budgets) != 1 {
		t.Errorf("all budgets has %d entries, want 1", len(all.Budgets))
	}

	rec = env.do(t, http.MethodGet, "/api/budgets/site/shibuya", nil, "")
	bySite := decodeBody[map[string]core.BudgetSetting](t, rec)
	if len(bySite) != 1 {
		t.Errorf("site budgets has %d entries, want 1", len(bySite))
	}

	if rec := env.do(t, http.MethodPost, "/api/budgets/resync", nil, ""); rec.Code != http.StatusOK {
		t.Errorf("POST /api/budgets/resync = %d", rec.Code)
	}

	env.doc.SetOffline(true)
	if rec := env.do(t, http.MethodPost, "/api/budgets/resync", nil, ""); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("resync while offline = %d, want 503", rec.Code)
	}
}

func seedTransaction(t *testing.T, env *testEnv, txType, amount, category, date string) {
	t.Helper()
	fields := map[string]string{
		"type":     txType,
		"amount":   amount,
		"category": category,
		"date":     date,
	}
	body, contentType := multipartTransaction(t, fields, nil, nil)
	if rec := env.do(t, http.MethodPost, "/api/transactions", body, contentType); rec.Code != http.StatusCreated {
		t.Fatalf("seed create = %d, body %s", rec.Code, rec.Body.String())
	}
}

func TestReportEndpoints(t *testing.T) {
	env := newTestEnv(t)

	seedTransaction(t, env, "income", "300000", "salary", "2024-06-01")
	seedTransaction(t, env, "expense", "1500", "food", "2024-06-15")
	seedTransaction(t, env, "expense", "4500", "materials", "2024-06-15")

	rec := env.do(t, http.MethodGet, "/api/reports/monthly?year=2024&month=6", nil, "")
	monthly := decodeBody[monthlyReportResponse](t, rec)
	if monthly.Totals.Income != 300000 || monthly.Totals.Expense != 6000 || monthly.Totals.Balance != 294000 {
		t.Errorf("monthly totals = %+v, want 300000/6000/294000", monthly.Totals)
	}

	rec = env.do(t, http.MethodGet, "/api/reports/daily?date=2024-06-15", nil, "")
	daily := decodeBody[dailyReportResponse](t, rec)
	if daily.Totals.Expense != 6000 {
		t.Errorf("daily expense = %d, want 6000", daily.Totals.Expense)
	}

	rec = env.do(t, http.MethodGet, "/api/reports/categories?year=2024&month=6&type=expense", nil, "")
	breakdown := decodeBody[map[string]core.Money](t, rec)
	if breakdown["food"] != 1500 || breakdown["materials"] != 4500 {
		t.Errorf("breakdown = %v, want food 1500 and materials 4500", breakdown)
	}

	rec = env.do(t, http.MethodGet, "/api/reports/daily-series?year=2024&month=6", nil, "")
	series := decodeBody[[]map[string]any](t, rec)
	if len(series) != 30 {
		t.Errorf("June series has %d points, want 30", len(series))
	}

	if rec := env.do(t, http.MethodGet, "/api/reports/categories?year=2024&month=6&type=other", nil, ""); rec.Code != http.StatusBadRequest {
		t.Errorf("bad type = %d, want 400", rec.Code)
	}
}

func TestBudgetComparisonRounding(t *testing.T) {
	env := newTestEnv(t)

	seedTransaction(t, env, "expense", "100", "food", "2024-06-10")

	rec := env.doJSON(t, http.MethodPost, "/api/reports/budget-comparison", budgetComparisonRequest{
		Year:    2024,
		Month:   6,
		Budgets: map[string]core.Money{"food": 300},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("POST budget-comparison = %d, body %s", rec.Code, rec.Body.String())
	}

	comparisons := decodeBody[map[string]struct {
		UsageRate  float64 `json:"usageRate"`
		Unbudgeted bool    `json:"unbudgeted"`
	}](t, rec)

	food, ok := comparisons["food"]
	if !ok {
		t.Fatal("comparison should include food")
	}
	if food.UsageRate != 33.3 {
		t.Errorf("usageRate = %v, want 33.3 (rounded to one decimal)", food.UsageRate)
	}
	if food.Unbudgeted {
		t.Error("budgeted category should not be unbudgeted")
	}
}

func TestReportCacheInvalidation(t *testing.T) {
	env := newTestEnv(t)

	seedTransaction(t, env, "expense", "1000", "food", "2024-06-10")

	rec := env.do(t, http.MethodGet, "/api/reports/monthly?year=2024&month=6", nil, "")
	first := decodeBody[monthlyReportResponse](t, rec)
	if first.Totals.Expense != 1000 {
		t.Fatalf("first expense = %d, want 1000", first.Totals.Expense)
	}

	// A write to the same month must drop the cached report.
	seedTransaction(t, env, "expense", "500", "food", "2024-06-20")

	rec = env.do(t, http.MethodGet, "/api/reports/monthly?year=2024&month=6", nil, "")
	second := decodeBody[monthlyReportResponse](t, rec)
	if second.Totals.Expense != 1500 {
		t.Errorf("post-write expense = %d, want 1500", second.Totals.Expense)
	}
}

func TestCategoriesEndpoint(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/categories?type=expense", nil, "")
	cats := decodeBody[[]string](t, rec)
	if len(cats) == 0 {
		t.Fatal("expense categories should not be empty")
	}
	found := false
	for _, c := range cats {
		if c == "materials" {
			found = true
		}
	}
	if !found {
		t.Errorf("categories = %v, want materials included", cats)
	}

	if rec := env.do(t, http.MethodGet, "/api/categories?type=loans", nil, ""); rec.Code != http.StatusBadRequest {
		t.Errorf("bad type = %d, want 400", rec.Code)
	}
}
