// Package ward owns the patient/ward aggregate: the persisted document with
// its patients and ward notes, every mutation on it, and the import/export
// merge. All writes funnel through one commit path so each state transition
// is saved and backed up as a unit.
package ward

import (
	"strings"
	"unicode"
)

// Patient severity bands (traffic-light scheme used on the bed map).
const (
	SeverityGreen  = "verde"
	SeverityYellow = "giallo"
	SeverityRed    = "rosso"
)

// Admission types.
const (
	AdmissionOrdinary = "ordinario"
	AdmissionLongStay = "lungodegenza"
)

// Patient lifecycle states.
const (
	StatusActive     = "active"
	StatusDischarged = "discharged"
)

// Discharge types.
const (
	DischargeHome      = "domicilio"
	DischargeProtected = "protetta"
	DischargeTransfer  = "trasferimento"
	DischargeDeceased  = "decesso"
)

// External exam categories and states.
const (
	ExamLaboratory = "laboratorio"
	ExamRadiology  = "radiologia"
	ExamConsult    = "consulenze"
	ExamToRequest  = "da_richiedere"
	ExamBooked     = "prenotato"
	ExamDone       = "effettuato"
)

var validGenders = map[string]bool{"M": true, "F": true}

var validSeverities = map[string]bool{
	SeverityGreen:  true,
	SeverityYellow: true,
	SeverityRed:    true,
}

var validAdmissionTypes = map[string]bool{
	AdmissionOrdinary: true,
	AdmissionLongStay: true,
}

var validDischargeTypes = map[string]bool{
	DischargeHome:      true,
	DischargeProtected: true,
	DischargeTransfer:  true,
	DischargeDeceased:  true,
}

var validExamCategories = map[string]bool{
	ExamLaboratory: true,
	ExamRadiology:  true,
	ExamConsult:    true,
}

var validExamStatuses = map[string]bool{
	ExamToRequest: true,
	ExamBooked:    true,
	ExamDone:      true,
}

// SeverityNames maps severity codes to their display names.
var SeverityNames = map[string]string{
	SeverityGreen:  "Stabile",
	SeverityYellow: "Condizioni Moderate",
	SeverityRed:    "Condizioni Critiche",
}

// ExamStatusNames maps exam states to their display names.
var ExamStatusNames = map[string]string{
	ExamToRequest: "Da Richiedere",
	ExamBooked:    "Prenotato",
	ExamDone:      "Effettuato",
}

// ExamCategoryNames maps exam categories to their display names.
var ExamCategoryNames = map[string]string{
	ExamLaboratory: "Laboratorio",
	ExamRadiology:  "Radiologia",
	ExamConsult:    "Consulenze",
}

// Ward bed plan: beds 1-10 men, 11-20 women, plus four long-stay beds. Bed
// codes on patients are free strings; the plan drives the bed map and the
// census ordering, not validation.
var (
	BedsMen      = []string{"1", "2", "3", "4", "5", "6", "7", "8", "9", "10"}
	BedsWomen    = []string{"11", "12", "13", "14", "15", "16", "17", "18", "19", "20"}
	BedsLongStay = []string{"LDU1", "LDU2", "LDD1", "LDD2"}
)

// AllBeds is the full bed plan in census order.
var AllBeds = func() []string {
	out := make([]string, 0, len(BedsMen)+len(BedsWomen)+len(BedsLongStay))
	out = append(out, BedsMen...)
	out = append(out, BedsWomen...)
	out = append(out, BedsLongStay...)
	return out
}()

// Handover is a clinical to-do tied to a patient. Handovers are never deleted
// directly, only completed; they go away when their patient is removed.
type Handover struct {
	ID          string `json:"id"`
	Text        string `json:"text"`
	CreatedAt   int64  `json:"createdAt"`
	ScheduledAt *int64 `json:"scheduledAt,omitempty"`
	IsCompleted bool   `json:"isCompleted"`
}

// ExternalExam is an exam or consult request tied to a patient.
type ExternalExam struct {
	ID              string `json:"id"`
	Category        string `json:"category"`
	Description     string `json:"description"`
	Status          string `json:"status"`
	ReminderDate    string `json:"reminderDate"`
	AppointmentDate string `json:"appointmentDate"`
	Notes           string `json:"notes,omitempty"`
	CreatedAt       int64  `json:"createdAt"`
	UpdatedAt       int64  `json:"updatedAt,omitempty"`
}

// Patient is one bed occupant or discharged record. Timestamps are epoch
// milliseconds; dates are "YYYY-MM-DD" strings as in the exchange format.
type Patient struct {
	ID            string         `json:"id"`
	FirstName     string         `json:"firstName"`
	LastName      string         `json:"lastName"`
	DateOfBirth   string         `json:"dateOfBirth"`
	AdmissionDate string         `json:"admissionDate"`
	Gender        string         `json:"gender"`
	Bed           string         `json:"bed"`
	AdmissionType string         `json:"admissionType"`
	MainDiagnosis string         `json:"mainDiagnosis"`
	History       string         `json:"history"`
	ClinicalNotes string         `json:"clinicalNotes"`
	Severity      string         `json:"severity"`
	Status        string         `json:"status"`
	DischargeType string         `json:"dischargeType,omitempty"`
	CreatedAt     int64          `json:"createdAt"`
	LastUpdated   int64          `json:"lastUpdated"`
	Handovers     []Handover     `json:"handovers"`
	ExternalExams []ExternalExam `json:"externalExams"`
}

// WardNote is a ward-wide announcement, not tied to any patient.
type WardNote struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	CreatedAt int64  `json:"createdAt"`
}

// Database is the persisted document: the single unit of durability, backup,
// restore, and import/export.
type Database struct {
	Patients  []Patient  `json:"patients"`
	WardNotes []WardNote `json:"wardNotes"`
}

// NewDatabase returns the initial empty document.
func NewDatabase() *Database {
	return &Database{Patients: []Patient{}, WardNotes: []WardNote{}}
}

// normalize repairs shape drift after unmarshalling: nil collections become
// empty so the document always round-trips as {"patients":[],"wardNotes":[]}.
func (db *Database) normalize() {
	if db.Patients == nil {
		db.Patients = []Patient{}
	}
	if db.WardNotes == nil {
		db.WardNotes = []WardNote{}
	}
	for i := range db.Patients {
		if db.Patients[i].Handovers == nil {
			db.Patients[i].Handovers = []Handover{}
		}
		if db.Patients[i].ExternalExams == nil {
			db.Patients[i].ExternalExams = []ExternalExam{}
		}
	}
}

// Clone deep-copies the document so callers can read a snapshot without
// holding the service lock.
func (db *Database) Clone() *Database {
	cp := &Database{
		Patients:  make([]Patient, len(db.Patients)),
		WardNotes: make([]WardNote, len(db.WardNotes)),
	}
	copy(cp.WardNotes, db.WardNotes)
	for i, p := range db.Patients {
		q := p
		q.Handovers = make([]Handover, len(p.Handovers))
		copy(q.Handovers, p.Handovers)
		for j, h := range p.Handovers {
			if h.ScheduledAt != nil {
				v := *h.ScheduledAt
				q.Handovers[j].ScheduledAt = &v
			}
		}
		q.ExternalExams = make([]ExternalExam, len(p.ExternalExams))
		copy(q.ExternalExams, p.ExternalExams)
		cp.Patients[i] = q
	}
	return cp
}

// CanonicalName trims the name and capitalizes only the first letter, the
// form used on the bed map and in print layouts.
func CanonicalName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	runes := []rune(strings.ToLower(name))
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
