package ward

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// ImportStats summarizes what a merge did, for the operator's confirmation
// message.
type ImportStats struct {
	PatientsAdded   int `json:"patientsAdded"`
	PatientsUpdated int `json:"patientsUpdated"`
	PatientsSkipped int `json:"patientsSkipped"`
	NotesAdded      int `json:"notesAdded"`
	NotesReplaced   int `json:"notesReplaced"`
	NotesSkipped    int `json:"notesSkipped"`
}

// Merge folds an imported document into the current one, last-write-wins.
//
// Patients are keyed by id: unknown ids are appended in input order; a known
// id is replaced only when the imported lastUpdated is strictly greater, so
// merging a document with itself changes nothing. Imported patients without an
// id or without a lastUpdated are skipped.
//
// Ward notes carry no lastUpdated, so an imported note with a known id
// overwrites the local one unconditionally. That asymmetry is inherited
// behavior, kept as-is.
//
// Merge is pure; neither argument is mutated.
func Merge(current, imported *Database) (*Database, ImportStats) {
	merged := current.Clone()
	var stats ImportStats

	byID := make(map[string]int, len(merged.Patients))
	for i, p := range merged.Patients {
		byID[p.ID] = i
	}
	for _, imp := range imported.Patients {
		if imp.ID == "" || imp.LastUpdated == 0 {
			stats.PatientsSkipped++
			continue
		}
		p := imp
		if p.Handovers == nil {
			p.Handovers = []Handover{}
		}
		if p.ExternalExams == nil {
			p.ExternalExams = []ExternalExam{}
		}
		if i, ok := byID[p.ID]; ok {
			if p.LastUpdated > merged.Patients[i].LastUpdated {
				merged.Patients[i] = p
				stats.PatientsUpdated++
			}
			continue
		}
		byID[p.ID] = len(merged.Patients)
		merged.Patients = append(merged.Patients, p)
		stats.PatientsAdded++
	}

	noteByID := make(map[string]int, len(merged.WardNotes))
	for i, n := range merged.WardNotes {
		noteByID[n.ID] = i
	}
	for _, n := range imported.WardNotes {
		if n.ID == "" {
			stats.NotesSkipped++
			continue
		}
		if i, ok := noteByID[n.ID]; ok {
			merged.WardNotes[i] = n
			stats.NotesReplaced++
			continue
		}
		noteByID[n.ID] = len(merged.WardNotes)
		merged.WardNotes = append(merged.WardNotes, n)
		stats.NotesAdded++
	}

	return merged, stats
}

// Import parses an exported document and merges it into the live one. A body
// that does not parse aborts the whole import with no commit; within a parsed
// document the merge is best-effort per entity.
func (s *Service) Import(ctx context.Context, user string, raw []byte) (ImportStats, error) {
	imported := &Database{}
	if err := json.Unmarshal(raw, imported); err != nil {
		return ImportStats{}, fmt.Errorf("parse import file: %w", err)
	}
	imported.normalize()

	s.mu.Lock()
	defer s.mu.Unlock()

	merged, stats := Merge(s.db, imported)
	s.commit(ctx, merged, user)
	return stats, nil
}

// ExportJSON renders the document in the exchange format used for download
// and import.
func ExportJSON(db *Database) ([]byte, error) {
	return json.MarshalIndent(db, "", "  ")
}

// ExportFilename names an export file for the given day.
func ExportFilename(t time.Time) string {
	return "backup_registro_medicina_" + t.Format("2006-01-02") + ".json"
}
