package search

import (
	"strings"

	"github.com/golang-sql/civil"
	"github.com/google/uuid"

	"github.com/dentalclinic/records/internal/platform/apperr"
	"github.com/dentalclinic/records/internal/platform/export"
)

// Selector names the visit field a search matches against.
type Selector string

const (
	SelectorName         Selector = "name"
	SelectorSurname      Selector = "surname"
	SelectorDentalNumber Selector = "dental_number"
	SelectorDiagnosis    Selector = "diagnosis"
	SelectorICD10        Selector = "icd_10"
	SelectorVisitType    Selector = "type_of_visit"
	SelectorDate         Selector = "date"
)

var selectorAliases = map[string]Selector{
	"name":          SelectorName,
	"surname":       SelectorSurname,
	"dental_number": SelectorDentalNumber,
	"dental-number": SelectorDentalNumber,
	"dental_num":    SelectorDentalNumber,
	"diagnosis":     SelectorDiagnosis,
	"icd_10":        SelectorICD10,
	"icd10":         SelectorICD10,
	"type_of_visit": SelectorVisitType,
	"visit-type":    SelectorVisitType,
	"visit_type":    SelectorVisitType,
	"date":          SelectorDate,
}

// ParseSelector resolves a selector name, accepting the spellings used by
// older clients.
func ParseSelector(s string) (Selector, error) {
	sel, ok := selectorAliases[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return "", apperr.Validation("unknown search field", map[string]string{
			"filterType": "must be one of name, surname, dental_number, diagnosis, icd_10, type_of_visit, date",
		})
	}
	return sel, nil
}

// Mode is the presentation of visits carrying several diagnoses.
type Mode string

const (
	// ModeCollapsed yields one row per visit with the diagnoses joined by
	// LineBreak.
	ModeCollapsed Mode = "collapsed"
	// ModeExploded yields one row per diagnosis pair.
	ModeExploded Mode = "exploded"
)

// LineBreak joins diagnoses inside a collapsed cell.
const LineBreak = "<br>"

// ParseMode resolves a mode name. An empty string yields "" so the caller's
// default applies.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "":
		return "", nil
	case ModeCollapsed:
		return ModeCollapsed, nil
	case ModeExploded:
		return ModeExploded, nil
	}
	return "", apperr.Validation("unknown search mode", map[string]string{
		"mode": "must be collapsed or exploded",
	})
}

// Row is one search result line.
type Row struct {
	VisitID      uuid.UUID  `json:"id"`
	Name         string     `json:"name"`
	Surname      string     `json:"surname"`
	DentalNumber string     `json:"dental_number"`
	Diagnosis    string     `json:"diagnosis"`
	ICD10        string     `json:"icd_10"`
	VisitType    string     `json:"type_of_visit"`
	Date         civil.Date `json:"date"`
	CreatedBy    string     `json:"created_by,omitempty"`
}

// Fields returns the row keyed by the JSON field names, the shape the export
// builder consumes.
func (r Row) Fields() map[string]any {
	return map[string]any{
		"id":            r.VisitID.String(),
		"name":          r.Name,
		"surname":       r.Surname,
		"dental_number": r.DentalNumber,
		"diagnosis":     r.Diagnosis,
		"icd_10":        r.ICD10,
		"type_of_visit": r.VisitType,
		"date":          r.Date,
		"created_by":    r.CreatedBy,
	}
}

// ExportColumns is the default spreadsheet layout for search results.
var ExportColumns = []export.Column{
	{Field: "name", Header: "Name", Width: 18},
	{Field: "surname", Header: "Surname", Width: 18},
	{Field: "dental_number", Header: "Dental Number", Width: 16},
	{Field: "diagnosis", Header: "Diagnosis", Width: 40},
	{Field: "icd_10", Header: "ICD-10", Width: 16},
	{Field: "type_of_visit", Header: "Type of Visit", Width: 16},
	{Field: "date", Header: "Date", Width: 12},
}
