package ward

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/wardtrack/wardtrack/internal/platform/store"
)

// ErrNotFound reports a mutation against a patient, handover, exam, or note
// id that does not exist. Callers decide whether that is fatal; the legacy
// dashboard treats it as a stale-id no-op.
var ErrNotFound = errors.New("not found")

// ErrBedOccupied reports an admission to a bed already held by an active
// patient. Bed moves between existing patients swap instead (see
// UpdatePatient).
var ErrBedOccupied = errors.New("bed occupied")

// BackupSink receives the serialized document after every save. Appends are
// best-effort: implementations must never fail the primary write.
type BackupSink interface {
	Append(ctx context.Context, data []byte, user string)
}

// SaveInfo describes the most recent commit. Persisted=false means the
// underlying store write failed and only the in-memory state advanced.
type SaveInfo struct {
	At        time.Time `json:"at"`
	User      string    `json:"user"`
	Persisted bool      `json:"persisted"`
}

// Service owns the live in-memory mirror of the ward document and is the only
// component that writes it. Every mutation is a lock / read / compute / commit
// sequence, so operations never interleave their read-modify-write windows.
type Service struct {
	docs    store.DocumentStore
	backups BackupSink
	log     zerolog.Logger

	mu       sync.Mutex
	db       *Database
	lastSave SaveInfo

	now func() time.Time
}

func NewService(docs store.DocumentStore, backups BackupSink, logger zerolog.Logger) *Service {
	return &Service{
		docs:    docs,
		backups: backups,
		log:     logger,
		db:      NewDatabase(),
		now:     time.Now,
	}
}

func (s *Service) nowMillis() int64 { return s.now().UnixMilli() }

// Refresh re-reads the document from the store into memory, used at startup
// and after import/restore/reset. A missing key or a document that does not
// parse falls back to the initial empty document instead of failing.
func (s *Service) Refresh(ctx context.Context) (*Database, error) {
	data, ok, err := s.docs.Load(ctx, store.WardDBKey)
	if err != nil {
		return nil, fmt.Errorf("load ward document: %w", err)
	}

	db := NewDatabase()
	if ok {
		if err := json.Unmarshal(data, db); err != nil {
			s.log.Warn().Err(err).Msg("stored ward document is corrupt, starting from empty")
			db = NewDatabase()
		}
	}
	db.normalize()

	s.mu.Lock()
	s.db = db
	cp := s.db.Clone()
	s.mu.Unlock()
	return cp, nil
}

// commit is the single write path: serialize, save, append a backup entry,
// swap the mirror. A failed save is logged and recorded in last-save info but
// does not roll back the in-memory mutation; a failed backup never blocks the
// save. Callers must hold s.mu.
func (s *Service) commit(ctx context.Context, next *Database, user string) {
	data, err := json.Marshal(next)
	if err != nil {
		s.log.Error().Err(err).Msg("marshal ward document")
		return
	}

	persisted := true
	if err := s.docs.Save(ctx, store.WardDBKey, data); err != nil {
		persisted = false
		s.log.Error().Err(err).Str("user", user).Msg("save ward document failed, in-memory state kept")
	}
	if s.backups != nil {
		s.backups.Append(ctx, data, user)
	}

	s.db = next
	s.lastSave = SaveInfo{At: s.now(), User: user, Persisted: persisted}
}

// LastSaveInfo reports when the document was last committed, by whom, and
// whether the write actually reached the store.
func (s *Service) LastSaveInfo() SaveInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSave
}

// Snapshot returns a deep copy of the current document.
func (s *Service) Snapshot() *Database {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Clone()
}

// Reset replaces the live document with the initial empty one. The backup log
// is left alone: history must survive a reset, and the reset itself is backed
// up like any other commit.
func (s *Service) Reset(ctx context.Context, user string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commit(ctx, NewDatabase(), user)
}

// -- Patients --

// PatientInput carries the caller-supplied fields for an admission.
type PatientInput struct {
	FirstName     string `json:"firstName"`
	LastName      string `json:"lastName"`
	DateOfBirth   string `json:"dateOfBirth"`
	AdmissionDate string `json:"admissionDate"`
	Gender        string `json:"gender"`
	Bed           string `json:"bed"`
	AdmissionType string `json:"admissionType"`
	MainDiagnosis string `json:"mainDiagnosis"`
	History       string `json:"history"`
	ClinicalNotes string `json:"clinicalNotes"`
	Severity      string `json:"severity"`
}

// PatientPatch carries a partial update; nil fields are left untouched.
type PatientPatch struct {
	FirstName     *string `json:"firstName"`
	LastName      *string `json:"lastName"`
	DateOfBirth   *string `json:"dateOfBirth"`
	AdmissionDate *string `json:"admissionDate"`
	Gender        *string `json:"gender"`
	Bed           *string `json:"bed"`
	AdmissionType *string `json:"admissionType"`
	MainDiagnosis *string `json:"mainDiagnosis"`
	History       *string `json:"history"`
	ClinicalNotes *string `json:"clinicalNotes"`
	Severity      *string `json:"severity"`
}

func (in *PatientInput) validate() error {
	if strings.TrimSpace(in.FirstName) == "" {
		return fmt.Errorf("firstName is required")
	}
	if strings.TrimSpace(in.LastName) == "" {
		return fmt.Errorf("lastName is required")
	}
	if strings.TrimSpace(in.Bed) == "" {
		return fmt.Errorf("bed is required")
	}
	if in.Gender != "" && !validGenders[in.Gender] {
		return fmt.Errorf("invalid gender: %s", in.Gender)
	}
	if in.AdmissionType != "" && !validAdmissionTypes[in.AdmissionType] {
		return fmt.Errorf("invalid admissionType: %s", in.AdmissionType)
	}
	if in.Severity != "" && !validSeverities[in.Severity] {
		return fmt.Errorf("invalid severity: %s", in.Severity)
	}
	return nil
}

// AddPatient admits a new patient: canonicalized names, active status,
// createdAt == lastUpdated, empty handover and exam lists. The target bed must
// not be held by another active patient.
func (s *Service) AddPatient(ctx context.Context, user string, in PatientInput) (Patient, error) {
	if err := in.validate(); err != nil {
		return Patient{}, err
	}
	if in.Severity == "" {
		in.Severity = SeverityGreen
	}
	if in.AdmissionType == "" {
		in.AdmissionType = AdmissionOrdinary
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	bed := strings.TrimSpace(in.Bed)
	if occ := findActiveByBed(s.db.Patients, bed); occ >= 0 {
		return Patient{}, fmt.Errorf("bed %s: %w", bed, ErrBedOccupied)
	}

	now := s.nowMillis()
	p := Patient{
		ID:            uuid.NewString(),
		FirstName:     CanonicalName(in.FirstName),
		LastName:      CanonicalName(in.LastName),
		DateOfBirth:   in.DateOfBirth,
		AdmissionDate: in.AdmissionDate,
		Gender:        in.Gender,
		Bed:           bed,
		AdmissionType: in.AdmissionType,
		MainDiagnosis: in.MainDiagnosis,
		History:       in.History,
		ClinicalNotes: in.ClinicalNotes,
		Severity:      in.Severity,
		Status:        StatusActive,
		CreatedAt:     now,
		LastUpdated:   now,
		Handovers:     []Handover{},
		ExternalExams: []ExternalExam{},
	}

	next := s.db.Clone()
	next.Patients = append(next.Patients, p)
	s.commit(ctx, next, user)
	return p, nil
}

// UpdatePatient applies a partial update. Moving a patient onto a bed held by
// another active patient swaps the two beds in the same commit, so no
// intermediate state ever has two active patients on one bed.
func (s *Service) UpdatePatient(ctx context.Context, user, id string, patch PatientPatch) (Patient, error) {
	if patch.Gender != nil && *patch.Gender != "" && !validGenders[*patch.Gender] {
		return Patient{}, fmt.Errorf("invalid gender: %s", *patch.Gender)
	}
	if patch.AdmissionType != nil && *patch.AdmissionType != "" && !validAdmissionTypes[*patch.AdmissionType] {
		return Patient{}, fmt.Errorf("invalid admissionType: %s", *patch.AdmissionType)
	}
	if patch.Severity != nil && *patch.Severity != "" && !validSeverities[*patch.Severity] {
		return Patient{}, fmt.Errorf("invalid severity: %s", *patch.Severity)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.db.Clone()
	idx := findByID(next.Patients, id)
	if idx < 0 {
		return Patient{}, fmt.Errorf("patient %s: %w", id, ErrNotFound)
	}

	now := s.nowMillis()
	p := &next.Patients[idx]
	oldBed := p.Bed

	if patch.FirstName != nil {
		if strings.TrimSpace(*patch.FirstName) == "" {
			return Patient{}, fmt.Errorf("firstName cannot be blank")
		}
		p.FirstName = CanonicalName(*patch.FirstName)
	}
	if patch.LastName != nil {
		if strings.TrimSpace(*patch.LastName) == "" {
			return Patient{}, fmt.Errorf("lastName cannot be blank")
		}
		p.LastName = CanonicalName(*patch.LastName)
	}
	if patch.DateOfBirth != nil {
		p.DateOfBirth = *patch.DateOfBirth
	}
	if patch.AdmissionDate != nil {
		p.AdmissionDate = *patch.AdmissionDate
	}
	if patch.Gender != nil {
		p.Gender = *patch.Gender
	}
	if patch.AdmissionType != nil {
		p.AdmissionType = *patch.AdmissionType
	}
	if patch.MainDiagnosis != nil {
		p.MainDiagnosis = *patch.MainDiagnosis
	}
	if patch.History != nil {
		p.History = *patch.History
	}
	if patch.ClinicalNotes != nil {
		p.ClinicalNotes = *patch.ClinicalNotes
	}
	if patch.Severity != nil {
		p.Severity = *patch.Severity
	}

	if patch.Bed != nil {
		newBed := strings.TrimSpace(*patch.Bed)
		if newBed != oldBed {
			if occ := findActiveByBed(next.Patients, newBed); occ >= 0 && occ != idx {
				// Bed swap: the previous occupant takes this patient's old bed.
				next.Patients[occ].Bed = oldBed
				next.Patients[occ].LastUpdated = now
			}
			p.Bed = newBed
		}
	}

	p.LastUpdated = now
	s.commit(ctx, next, user)
	return *p, nil
}

// DischargePatient ends the active lifecycle: status discharged, bed freed,
// discharge type recorded. The record stays in the archive.
func (s *Service) DischargePatient(ctx context.Context, user, id, dischargeType string) (Patient, error) {
	if !validDischargeTypes[dischargeType] {
		return Patient{}, fmt.Errorf("invalid dischargeType: %s", dischargeType)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.db.Clone()
	idx := findByID(next.Patients, id)
	if idx < 0 {
		return Patient{}, fmt.Errorf("patient %s: %w", id, ErrNotFound)
	}

	p := &next.Patients[idx]
	p.Status = StatusDischarged
	p.Bed = ""
	p.DischargeType = dischargeType
	p.LastUpdated = s.nowMillis()

	s.commit(ctx, next, user)
	return *p, nil
}

// -- Handovers --

// HandoverPatch carries a partial handover update; nil fields are untouched.
type HandoverPatch struct {
	Text        *string `json:"text"`
	ScheduledAt *int64  `json:"scheduledAt"`
	IsCompleted *bool   `json:"isCompleted"`
}

// AddHandover appends a new handover to the patient and re-sorts the list
// newest-first by creation time (ties keep insertion order).
func (s *Service) AddHandover(ctx context.Context, user, patientID, text string, scheduledAt *int64) (Handover, error) {
	if strings.TrimSpace(text) == "" {
		return Handover{}, fmt.Errorf("handover text is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.db.Clone()
	idx := findByID(next.Patients, patientID)
	if idx < 0 {
		return Handover{}, fmt.Errorf("patient %s: %w", patientID, ErrNotFound)
	}

	now := s.nowMillis()
	h := Handover{
		ID:          uuid.NewString(),
		Text:        text,
		CreatedAt:   now,
		ScheduledAt: scheduledAt,
		IsCompleted: false,
	}

	p := &next.Patients[idx]
	p.Handovers = append(p.Handovers, h)
	sort.SliceStable(p.Handovers, func(i, j int) bool {
		return p.Handovers[i].CreatedAt > p.Handovers[j].CreatedAt
	})
	p.LastUpdated = now

	s.commit(ctx, next, user)
	return h, nil
}

// UpdateHandover merges the patch into the matching handover, typically to
// toggle completion.
func (s *Service) UpdateHandover(ctx context.Context, user, patientID, handoverID string, patch HandoverPatch) (Handover, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.db.Clone()
	idx := findByID(next.Patients, patientID)
	if idx < 0 {
		return Handover{}, fmt.Errorf("patient %s: %w", patientID, ErrNotFound)
	}

	p := &next.Patients[idx]
	hi := -1
	for i := range p.Handovers {
		if p.Handovers[i].ID == handoverID {
			hi = i
			break
		}
	}
	if hi < 0 {
		return Handover{}, fmt.Errorf("handover %s: %w", handoverID, ErrNotFound)
	}

	h := &p.Handovers[hi]
	if patch.Text != nil {
		h.Text = *patch.Text
	}
	if patch.ScheduledAt != nil {
		v := *patch.ScheduledAt
		h.ScheduledAt = &v
	}
	if patch.IsCompleted != nil {
		h.IsCompleted = *patch.IsCompleted
	}
	p.LastUpdated = s.nowMillis()

	s.commit(ctx, next, user)
	return *h, nil
}

// -- External exams --

// ExamInput carries the caller-supplied fields for a new exam request.
type ExamInput struct {
	Category        string `json:"category"`
	Description     string `json:"description"`
	Status          string `json:"status"`
	ReminderDate    string `json:"reminderDate"`
	AppointmentDate string `json:"appointmentDate"`
	Notes           string `json:"notes"`
}

// ExamPatch carries a partial exam update; nil fields are untouched.
type ExamPatch struct {
	Category        *string `json:"category"`
	Description     *string `json:"description"`
	Status          *string `json:"status"`
	ReminderDate    *string `json:"reminderDate"`
	AppointmentDate *string `json:"appointmentDate"`
	Notes           *string `json:"notes"`
}

func (s *Service) AddExternalExam(ctx context.Context, user, patientID string, in ExamInput) (ExternalExam, error) {
	if !validExamCategories[in.Category] {
		return ExternalExam{}, fmt.Errorf("invalid exam category: %s", in.Category)
	}
	if in.Status == "" {
		in.Status = ExamToRequest
	}
	if !validExamStatuses[in.Status] {
		return ExternalExam{}, fmt.Errorf("invalid exam status: %s", in.Status)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.db.Clone()
	idx := findByID(next.Patients, patientID)
	if idx < 0 {
		return ExternalExam{}, fmt.Errorf("patient %s: %w", patientID, ErrNotFound)
	}

	now := s.nowMillis()
	ex := ExternalExam{
		ID:              uuid.NewString(),
		Category:        in.Category,
		Description:     in.Description,
		Status:          in.Status,
		ReminderDate:    in.ReminderDate,
		AppointmentDate: in.AppointmentDate,
		Notes:           in.Notes,
		CreatedAt:       now,
	}

	p := &next.Patients[idx]
	p.ExternalExams = append(p.ExternalExams, ex)
	p.LastUpdated = now

	s.commit(ctx, next, user)
	return ex, nil
}

func (s *Service) UpdateExternalExam(ctx context.Context, user, patientID, examID string, patch ExamPatch) (ExternalExam, error) {
	if patch.Category != nil && !validExamCategories[*patch.Category] {
		return ExternalExam{}, fmt.Errorf("invalid exam category: %s", *patch.Category)
	}
	if patch.Status != nil && !validExamStatuses[*patch.Status] {
		return ExternalExam{}, fmt.Errorf("invalid exam status: %s", *patch.Status)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.db.Clone()
	idx := findByID(next.Patients, patientID)
	if idx < 0 {
		return ExternalExam{}, fmt.Errorf("patient %s: %w", patientID, ErrNotFound)
	}

	p := &next.Patients[idx]
	ei := -1
	for i := range p.ExternalExams {
		if p.ExternalExams[i].ID == examID {
			ei = i
			break
		}
	}
	if ei < 0 {
		return ExternalExam{}, fmt.Errorf("exam %s: %w", examID, ErrNotFound)
	}

	now := s.nowMillis()
	ex := &p.ExternalExams[ei]
	if patch.Category != nil {
		ex.Category = *patch.Category
	}
	if patch.Description != nil {
		ex.Description = *patch.Description
	}
	if patch.Status != nil {
		ex.Status = *patch.Status
	}
	if patch.ReminderDate != nil {
		ex.ReminderDate = *patch.ReminderDate
	}
	if patch.AppointmentDate != nil {
		ex.AppointmentDate = *patch.AppointmentDate
	}
	if patch.Notes != nil {
		ex.Notes = *patch.Notes
	}
	ex.UpdatedAt = now
	p.LastUpdated = now

	s.commit(ctx, next, user)
	return *ex, nil
}

func (s *Service) DeleteExternalExam(ctx context.Context, user, patientID, examID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.db.Clone()
	idx := findByID(next.Patients, patientID)
	if idx < 0 {
		return fmt.Errorf("patient %s: %w", patientID, ErrNotFound)
	}

	p := &next.Patients[idx]
	kept := p.ExternalExams[:0]
	found := false
	for _, ex := range p.ExternalExams {
		if ex.ID == examID {
			found = true
			continue
		}
		kept = append(kept, ex)
	}
	if !found {
		return fmt.Errorf("exam %s: %w", examID, ErrNotFound)
	}
	p.ExternalExams = kept
	p.LastUpdated = s.nowMillis()

	s.commit(ctx, next, user)
	return nil
}

// -- Ward notes --

// AddWardNote prepends a new ward-wide note. Whitespace-only text is a silent
// no-op: nothing is committed and no error is returned.
func (s *Service) AddWardNote(ctx context.Context, user, text string) (WardNote, bool) {
	if strings.TrimSpace(text) == "" {
		return WardNote{}, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	n := WardNote{
		ID:        uuid.NewString(),
		Text:      text,
		CreatedAt: s.nowMillis(),
	}

	next := s.db.Clone()
	next.WardNotes = append([]WardNote{n}, next.WardNotes...)
	s.commit(ctx, next, user)
	return n, true
}

func (s *Service) DeleteWardNote(ctx context.Context, user, noteID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.db.Clone()
	kept := next.WardNotes[:0]
	found := false
	for _, n := range next.WardNotes {
		if n.ID == noteID {
			found = true
			continue
		}
		kept = append(kept, n)
	}
	if !found {
		return fmt.Errorf("ward note %s: %w", noteID, ErrNotFound)
	}
	next.WardNotes = kept

	s.commit(ctx, next, user)
	return nil
}

// -- Derived views --

func (s *Service) ActivePatients() []Patient {
	return s.filterPatients(StatusActive)
}

func (s *Service) DischargedPatients() []Patient {
	return s.filterPatients(StatusDischarged)
}

func (s *Service) filterPatients(status string) []Patient {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []Patient{}
	for _, p := range s.db.Patients {
		if p.Status == status {
			out = append(out, p)
		}
	}
	return out
}

func (s *Service) PatientByID(id string) (Patient, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if idx := findByID(s.db.Patients, id); idx >= 0 {
		return s.db.Patients[idx], true
	}
	return Patient{}, false
}

// PatientByBed resolves the active occupant of a bed, for the bed map.
func (s *Service) PatientByBed(bed string) (Patient, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if idx := findActiveByBed(s.db.Patients, bed); idx >= 0 {
		return s.db.Patients[idx], true
	}
	return Patient{}, false
}

func (s *Service) WardNotes() []WardNote {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]WardNote, len(s.db.WardNotes))
	copy(out, s.db.WardNotes)
	return out
}

func findByID(patients []Patient, id string) int {
	for i := range patients {
		if patients[i].ID == id {
			return i
		}
	}
	return -1
}

func findActiveByBed(patients []Patient, bed string) int {
	if bed == "" {
		return -1
	}
	for i := range patients {
		if patients[i].Status == StatusActive && patients[i].Bed == bed {
			return i
		}
	}
	return -1
}
