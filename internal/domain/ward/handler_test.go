package ward

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/wardtrack/wardtrack/internal/platform/auth"
)

// request runs a handler against an echo context pre-filled with an
// authenticated user, path params, and a JSON body.
func request(t *testing.T, h echo.HandlerFunc, method, target, body string, params map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	ctx := context.WithValue(req.Context(), auth.UserKey, "anna")
	req = req.WithContext(ctx)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	names := make([]string, 0, len(params))
	values := make([]string, 0, len(params))
	for k, v := range params {
		names = append(names, k)
		values = append(values, v)
	}
	c.SetParamNames(names...)
	c.SetParamValues(values...)
	if err := h(c); err != nil {
		e.HTTPErrorHandler(err, c)
	}
	return rec
}

func TestCreatePatientHandler(t *testing.T) {
	svc, _, _ := newTestService()
	h := NewHandler(svc)

	rec := request(t, h.CreatePatient, http.MethodPost, "/api/v1/patients",
		`{"firstName":"maria","lastName":"rossi","bed":"4","gender":"F"}`, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var p Patient
	if err := json.Unmarshal(rec.Body.Bytes(), &p); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if p.FirstName != "Maria" || p.LastName != "Rossi" || p.Bed != "4" {
		t.Errorf("patient = %+v", p)
	}
	if p.ID == "" || p.CreatedAt == 0 {
		t.Errorf("identity fields not set: %+v", p)
	}
}

func TestCreatePatientHandlerValidation(t *testing.T) {
	svc, _, _ := newTestService()
	h := NewHandler(svc)

	rec := request(t, h.CreatePatient, http.MethodPost, "/api/v1/patients",
		`{"firstName":"maria"}`, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestCreatePatientHandlerBedConflict(t *testing.T) {
	svc, _, _ := newTestService()
	h := NewHandler(svc)
	mustAddPatient(t, svc, "Maria", "Rossi", "4")

	rec := request(t, h.CreatePatient, http.MethodPost, "/api/v1/patients",
		`{"firstName":"Luca","lastName":"Verdi","bed":"4"}`, nil)
	if rec.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", rec.Code)
	}
}

func TestListPatientsHandler(t *testing.T) {
	svc, _, _ := newTestService()
	h := NewHandler(svc)
	mustAddPatient(t, svc, "Maria", "Rossi", "1")
	p2 := mustAddPatient(t, svc, "Luca", "Verdi", "2")
	if _, err := svc.DischargePatient(context.Background(), "anna", p2.ID, DischargeHome); err != nil {
		t.Fatalf("discharge: %v", err)
	}

	rec := request(t, h.ListPatients, http.MethodGet, "/api/v1/patients", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp struct {
		Data  []Patient `json:"data"`
		Total int       `json:"total"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Total != 1 || len(resp.Data) != 1 || resp.Data[0].LastName != "Rossi" {
		t.Errorf("active list = %+v", resp)
	}

	rec = request(t, h.ListPatients, http.MethodGet, "/api/v1/patients?status=discharged", "", nil)
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Total != 1 || resp.Data[0].LastName != "Verdi" {
		t.Errorf("discharged list = %+v", resp)
	}

	rec = request(t, h.ListPatients, http.MethodGet, "/api/v1/patients?status=bogus", "", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bogus filter status = %d, want 400", rec.Code)
	}
}

func TestGetPatientHandlerNotFound(t *testing.T) {
	svc, _, _ := newTestService()
	h := NewHandler(svc)

	rec := request(t, h.GetPatient, http.MethodGet, "/api/v1/patients/ghost", "", map[string]string{"id": "ghost"})
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestUpdatePatientHandlerBedSwap(t *testing.T) {
	svc, _, _ := newTestService()
	h := NewHandler(svc)
	p1 := mustAddPatient(t, svc, "Maria", "Rossi", "1")
	mustAddPatient(t, svc, "Luca", "Verdi", "2")

	rec := request(t, h.UpdatePatient, http.MethodPut, "/api/v1/patients/"+p1.ID,
		`{"bed":"2"}`, map[string]string{"id": p1.ID})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var updated Patient
	if err := json.Unmarshal(rec.Body.Bytes(), &updated); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if updated.Bed != "2" {
		t.Errorf("bed = %q, want 2", updated.Bed)
	}
	other, _ := svc.PatientByBed("1")
	if other.LastName != "Verdi" {
		t.Errorf("bed 1 now held by %q, want Verdi", other.LastName)
	}
}

func TestDischargePatientHandler(t *testing.T) {
	svc, _, _ := newTestService()
	h := NewHandler(svc)
	p := mustAddPatient(t, svc, "Maria", "Rossi", "1")

	rec := request(t, h.DischargePatient, http.MethodPost, "/api/v1/patients/"+p.ID+"/discharge",
		`{"dischargeType":"domicilio"}`, map[string]string{"id": p.ID})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var out Patient
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Status != StatusDischarged || out.Bed != "" {
		t.Errorf("discharged patient = %+v", out)
	}
}

func TestHandoverHandlers(t *testing.T) {
	svc, _, _ := newTestService()
	h := NewHandler(svc)
	p := mustAddPatient(t, svc, "Maria", "Rossi", "1")

	rec := request(t, h.AddHandover, http.MethodPost, "/api/v1/patients/"+p.ID+"/handovers",
		`{"text":"Controllo pressione"}`, map[string]string{"id": p.ID})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var hand Handover
	if err := json.Unmarshal(rec.Body.Bytes(), &hand); err != nil {
		t.Fatalf("decode: %v", err)
	}

	rec = request(t, h.UpdateHandover, http.MethodPatch, "/",
		`{"isCompleted":true}`, map[string]string{"id": p.ID, "handoverId": hand.ID})
	if rec.Code != http.StatusOK {
		t.Fatalf("update status = %d, body %s", rec.Code, rec.Body.String())
	}
	var updated Handover
	if err := json.Unmarshal(rec.Body.Bytes(), &updated); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !updated.IsCompleted {
		t.Error("handover not marked completed")
	}

	rec = request(t, h.UpdateHandover, http.MethodPatch, "/",
		`{"isCompleted":true}`, map[string]string{"id": p.ID, "handoverId": "ghost"})
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown handover status = %d, want 404", rec.Code)
	}
}

func TestExamHandlers(t *testing.T) {
	svc, _, _ := newTestService()
	h := NewHandler(svc)
	p := mustAddPatient(t, svc, "Maria", "Rossi", "1")

	rec := request(t, h.AddExam, http.MethodPost, "/",
		`{"category":"radiologia","description":"TC torace"}`, map[string]string{"id": p.ID})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var exam ExternalExam
	if err := json.Unmarshal(rec.Body.Bytes(), &exam); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if exam.Status != ExamToRequest {
		t.Errorf("default status = %q", exam.Status)
	}

	rec = request(t, h.UpdateExam, http.MethodPatch, "/",
		`{"status":"prenotato"}`, map[string]string{"id": p.ID, "examId": exam.ID})
	if rec.Code != http.StatusOK {
		t.Fatalf("update status = %d, body %s", rec.Code, rec.Body.String())
	}

	rec = request(t, h.DeleteExam, http.MethodDelete, "/", "", map[string]string{"id": p.ID, "examId": exam.ID})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", rec.Code)
	}
	rec = request(t, h.DeleteExam, http.MethodDelete, "/", "", map[string]string{"id": p.ID, "examId": exam.ID})
	if rec.Code != http.StatusNotFound {
		t.Errorf("second delete status = %d, want 404", rec.Code)
	}
}

func TestWardNoteHandlers(t *testing.T) {
	svc, _, _ := newTestService()
	h := NewHandler(svc)

	rec := request(t, h.AddWardNote, http.MethodPost, "/api/v1/ward-notes",
		`{"text":"Riunione alle 14"}`, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var note WardNote
	if err := json.Unmarshal(rec.Body.Bytes(), &note); err != nil {
		t.Fatalf("decode: %v", err)
	}

	rec = request(t, h.AddWardNote, http.MethodPost, "/api/v1/ward-notes", `{"text":"   "}`, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("blank note status = %d, want 400", rec.Code)
	}

	rec = request(t, h.ListWardNotes, http.MethodGet, "/api/v1/ward-notes", "", nil)
	var resp struct {
		WardNotes []WardNote `json:"wardNotes"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.WardNotes) != 1 || resp.WardNotes[0].ID != note.ID {
		t.Errorf("notes = %+v", resp.WardNotes)
	}

	rec = request(t, h.DeleteWardNote, http.MethodDelete, "/", "", map[string]string{"id": note.ID})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", rec.Code)
	}
}

func TestExportHandler(t *testing.T) {
	svc, _, _ := newTestService()
	h := NewHandler(svc)
	mustAddPatient(t, svc, "Maria", "Rossi", "1")

	rec := request(t, h.Export, http.MethodGet, "/api/v1/export", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	disp := rec.Header().Get(echo.HeaderContentDisposition)
	if !strings.Contains(disp, "attachment") || !strings.Contains(disp, "backup_registro_medicina_") {
		t.Errorf("content disposition = %q", disp)
	}
	var db Database
	if err := json.Unmarshal(rec.Body.Bytes(), &db); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(db.Patients) != 1 {
		t.Errorf("exported %d patients, want 1", len(db.Patients))
	}
}

func TestImportHandler(t *testing.T) {
	svc, _, _ := newTestService()
	h := NewHandler(svc)

	body := `{"patients":[{"id":"px","firstName":"Maria","lastName":"Rossi","bed":"1","status":"active","createdAt":10,"lastUpdated":10,"handovers":[],"externalExams":[]}],"wardNotes":[]}`
	rec := request(t, h.Import, http.MethodPost, "/api/v1/import", body, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var stats ImportStats
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if stats.PatientsAdded != 1 {
		t.Errorf("stats = %+v", stats)
	}

	rec = request(t, h.Import, http.MethodPost, "/api/v1/import", "not json", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("malformed import status = %d, want 400", rec.Code)
	}
}

func TestResetAndSaveInfoHandlers(t *testing.T) {
	svc, _, _ := newTestService()
	h := NewHandler(svc)
	mustAddPatient(t, svc, "Maria", "Rossi", "1")

	rec := request(t, h.Reset, http.MethodPost, "/api/v1/reset", "", nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("reset status = %d", rec.Code)
	}
	if got := svc.ActivePatients(); len(got) != 0 {
		t.Errorf("patients after reset = %d", len(got))
	}

	rec = request(t, h.SaveInfo, http.MethodGet, "/api/v1/save-info", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("save-info status = %d", rec.Code)
	}
	var info SaveInfo
	if err := json.Unmarshal(rec.Body.Bytes(), &info); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if info.User != "anna" || !info.Persisted {
		t.Errorf("save info = %+v", info)
	}
}
