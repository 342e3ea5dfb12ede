// Package reporting renders printable ward reports.
package reporting

import (
	"fmt"
	"sort"

	"github.com/xuri/excelize/v2"

	"github.com/wardtrack/wardtrack/internal/domain/ward"
)

const censusSheet = "Reparto"

var censusHeader = []string{
	"Letto",
	"Cognome",
	"Nome",
	"Nascita",
	"Ricovero",
	"Gravità",
	"Diagnosi",
	"Consegne aperte",
	"Esami in corso",
}

// CensusWorkbook renders the active patients of a ward document as a
// spreadsheet, one row per active patient. Rows follow the bed plan order;
// patients on bed codes outside the plan come last, sorted by code.
func CensusWorkbook(db *ward.Database) ([]byte, error) {
	f := excelize.NewFile()

	index, err := f.NewSheet(censusSheet)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("create sheet: %w", err)
	}
	f.DeleteSheet("Sheet1")
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6F3FF"}, Pattern: 1},
	})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("create header style: %w", err)
	}

	for i, h := range censusHeader {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(censusSheet, cell, h)
		f.SetCellStyle(censusSheet, cell, cell, headerStyle)
	}

	row := 2
	for _, p := range activeByBedRank(db) {
		values := []interface{}{
			p.Bed,
			p.LastName,
			p.FirstName,
			p.DateOfBirth,
			p.AdmissionDate,
			ward.SeverityNames[p.Severity],
			p.MainDiagnosis,
			openHandovers(p),
			pendingExams(p),
		}
		for i, v := range values {
			cell, _ := excelize.CoordinatesToCellName(i+1, row)
			f.SetCellValue(censusSheet, cell, v)
		}
		row++
	}

	// Widen the free-text columns.
	f.SetColWidth(censusSheet, "G", "I", 40)

	buf, err := f.WriteToBuffer()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("close workbook: %w", err)
	}
	return buf.Bytes(), nil
}

// CensusFilename returns the download name for a census rendered on the
// given date in YYYY-MM-DD form.
func CensusFilename(date string) string {
	return fmt.Sprintf("censimento_reparto_%s.xlsx", date)
}

// activeByBedRank returns the active patients sorted by bed plan position.
// Bed codes are free strings, so codes outside the plan sort after it,
// ordered by code.
func activeByBedRank(db *ward.Database) []*ward.Patient {
	rank := make(map[string]int, len(ward.AllBeds))
	for i, bed := range ward.AllBeds {
		rank[bed] = i
	}
	offPlan := len(ward.AllBeds)

	out := []*ward.Patient{}
	for i := range db.Patients {
		if db.Patients[i].Status == ward.StatusActive {
			out = append(out, &db.Patients[i])
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		ri, ok := rank[out[i].Bed]
		if !ok {
			ri = offPlan
		}
		rj, ok := rank[out[j].Bed]
		if !ok {
			rj = offPlan
		}
		if ri != rj {
			return ri < rj
		}
		return out[i].Bed < out[j].Bed
	})
	return out
}

func openHandovers(p *ward.Patient) string {
	out := ""
	for _, h := range p.Handovers {
		if h.IsCompleted {
			continue
		}
		if out != "" {
			out += "\n"
		}
		out += h.Text
	}
	return out
}

func pendingExams(p *ward.Patient) string {
	out := ""
	for _, e := range p.ExternalExams {
		if e.Status == ward.ExamDone {
			continue
		}
		if out != "" {
			out += "\n"
		}
		out += fmt.Sprintf("%s: %s (%s)", ward.ExamCategoryNames[e.Category], e.Description, ward.ExamStatusNames[e.Status])
	}
	return out
}
