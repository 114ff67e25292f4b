package visit

import (
	"strings"
	"time"

	"github.com/golang-sql/civil"
	"github.com/google/uuid"

	"github.com/dentalclinic/records/internal/domain/diagnosis"
)

// Visit maps to the visit table: one clinical encounter and its ordered
// diagnoses.
type Visit struct {
	ID             uuid.UUID     `db:"id" json:"id"`
	PatientName    string        `db:"patient_name" json:"name"`
	PatientSurname string        `db:"patient_surname" json:"surname"`
	DentalNumber   string        `db:"dental_number" json:"dental_number"`
	VisitType      string        `db:"visit_type" json:"type_of_visit"`
	VisitDate      civil.Date    `db:"visit_date" json:"date"`
	CreatedBy      *string       `db:"created_by" json:"created_by,omitempty"`
	Diagnoses      diagnosis.Set `json:"diagnoses"`
	CreatedAt      time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time     `db:"updated_at" json:"updated_at"`
}

// EncodedDiagnoses returns the comma-joined text and code blobs.
func (v *Visit) EncodedDiagnoses() (string, string) {
	return diagnosis.Encode(v.Diagnoses)
}

// Normalize trims the scalar fields in place.
func (v *Visit) Normalize() {
	v.PatientName = strings.TrimSpace(v.PatientName)
	v.PatientSurname = strings.TrimSpace(v.PatientSurname)
	v.DentalNumber = strings.TrimSpace(v.DentalNumber)
	v.VisitType = strings.TrimSpace(v.VisitType)
	if v.CreatedBy != nil && strings.TrimSpace(*v.CreatedBy) == "" {
		v.CreatedBy = nil
	}
}

// Validate reports the missing required fields, keyed by JSON name.
func (v *Visit) Validate() map[string]string {
	problems := map[string]string{}
	if v.PatientName == "" {
		problems["name"] = "is required"
	}
	if v.PatientSurname == "" {
		problems["surname"] = "is required"
	}
	if v.DentalNumber == "" {
		problems["dental_number"] = "is required"
	}
	if v.VisitType == "" {
		problems["type_of_visit"] = "is required"
	}
	if !v.VisitDate.IsValid() {
		problems["date"] = "must be a valid YYYY-MM-DD date"
	}
	return problems
}

// HistoryEntry is one diagnosis of a patient's visit, joined with the
// visit's date and type for the history view.
type HistoryEntry struct {
	VisitID   uuid.UUID      `json:"visit_id"`
	VisitDate civil.Date     `json:"date"`
	VisitType string         `json:"type_of_visit"`
	Diagnosis diagnosis.Pair `json:"diagnosis"`
}

// historyFor flattens visits into history entries. A visit without
// diagnoses contributes the placeholder pair.
func historyFor(visits []*Visit) []*HistoryEntry {
	var out []*HistoryEntry
	for _, v := range visits {
		for _, p := range v.Diagnoses.OrPlaceholder() {
			out = append(out, &HistoryEntry{
				VisitID:   v.ID,
				VisitDate: v.VisitDate,
				VisitType: v.VisitType,
				Diagnosis: p,
			})
		}
	}
	return out
}

func strPtrVal(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
