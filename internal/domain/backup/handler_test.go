package backup

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/wardtrack/wardtrack/internal/platform/store"
)

func newTestHandler(t *testing.T) (*Handler, *Service, *store.MemoryStore, *int) {
	t.Helper()
	svc, mem := newTestService()
	refreshed := 0
	h := NewHandler(svc, RefreshFunc(func(context.Context) error {
		refreshed++
		return nil
	}))
	return h, svc, mem, &refreshed
}

func do(t *testing.T, h echo.HandlerFunc, method, target string, params map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	for k, v := range params {
		c.SetParamNames(k)
		c.SetParamValues(v)
	}
	if err := h(c); err != nil {
		e.HTTPErrorHandler(err, c)
	}
	return rec
}

func TestListBackupsHandler(t *testing.T) {
	h, svc, _, _ := newTestHandler(t)
	svc.Append(context.Background(), []byte(`{"patients":[{"id":"p1"}],"wardNotes":[]}`), "anna")

	rec := do(t, h.ListBackups, http.MethodGet, "/api/v1/backups", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp struct {
		Backups []Meta `json:"backups"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Backups) != 1 || resp.Backups[0].User != "anna" || resp.Backups[0].PatientCount != 1 {
		t.Errorf("backups = %+v", resp.Backups)
	}
}

func TestRestoreBackupHandler(t *testing.T) {
	h, svc, mem, refreshed := newTestHandler(t)
	ctx := context.Background()
	svc.Append(ctx, []byte(`{"patients":[{"id":"p1"}],"wardNotes":[]}`), "anna")
	metas, err := svc.List(ctx)
	if err != nil || len(metas) != 1 {
		t.Fatalf("List: %v, %d entries", err, len(metas))
	}

	ts := strconv.FormatInt(metas[0].Timestamp, 10)
	rec := do(t, h.RestoreBackup, http.MethodPost, "/api/v1/backups/"+ts+"/restore", map[string]string{"timestamp": ts})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if *refreshed != 1 {
		t.Errorf("ward refreshed %d times, want 1", *refreshed)
	}
	if _, found, _ := mem.Load(ctx, store.WardDBKey); !found {
		t.Error("document not written by restore")
	}
}

func TestRestoreBackupHandlerUnknown(t *testing.T) {
	h, _, _, refreshed := newTestHandler(t)

	rec := do(t, h.RestoreBackup, http.MethodPost, "/api/v1/backups/42/restore", map[string]string{"timestamp": "42"})
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
	if *refreshed != 0 {
		t.Error("ward refreshed on failed restore")
	}

	rec = do(t, h.RestoreBackup, http.MethodPost, "/api/v1/backups/abc/restore", map[string]string{"timestamp": "abc"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("non-numeric timestamp status = %d, want 400", rec.Code)
	}
}

func TestClearBackupsHandler(t *testing.T) {
	h, svc, _, _ := newTestHandler(t)
	ctx := context.Background()
	svc.Append(ctx, []byte(`{"patients":[],"wardNotes":[]}`), "anna")

	rec := do(t, h.ClearBackups, http.MethodDelete, "/api/v1/backups", nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d", rec.Code)
	}
	metas, err := svc.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(metas) != 0 {
		t.Errorf("log not empty: %d entries", len(metas))
	}
}
