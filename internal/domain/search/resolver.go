// Package search resolves field/value filters over the visit store and
// shapes the matches into result rows.
package search

import (
	"context"
	"fmt"
	"strings"

	"github.com/golang-sql/civil"
	"github.com/rs/zerolog"

	"github.com/dentalclinic/records/internal/domain/diagnosis"
	"github.com/dentalclinic/records/internal/domain/visit"
	"github.com/dentalclinic/records/internal/platform/export"
	"github.com/dentalclinic/records/internal/platform/telemetry"
)

// Source yields every visit in store order.
type Source interface {
	ListAll(ctx context.Context) ([]*visit.Visit, error)
}

type Resolver struct {
	src         Source
	defaultMode Mode
	logger      zerolog.Logger
	metrics     *telemetry.Provider
}

func NewResolver(src Source, defaultMode Mode, logger zerolog.Logger, metrics *telemetry.Provider) *Resolver {
	if defaultMode == "" {
		defaultMode = ModeCollapsed
	}
	return &Resolver{
		src:         src,
		defaultMode: defaultMode,
		logger:      logger.With().Str("component", "search").Logger(),
		metrics:     metrics,
	}
}

// DefaultMode is the mode used when a caller passes none.
func (r *Resolver) DefaultMode() Mode { return r.defaultMode }

// Search returns the rows of every visit whose selected field matches value.
// Text fields match on case-insensitive containment; the date selector
// requires an exact YYYY-MM-DD date and yields no rows when value does not
// parse. An empty mode falls back to the resolver default; an unknown one
// is a validation error.
func (r *Resolver) Search(ctx context.Context, sel Selector, value string, mode Mode) ([]Row, error) {
	sel, err := ParseSelector(string(sel))
	if err != nil {
		return nil, err
	}
	mode, err = ParseMode(string(mode))
	if err != nil {
		return nil, err
	}
	if mode == "" {
		mode = r.defaultMode
	}

	var date civil.Date
	if sel == SelectorDate {
		d, err := civil.ParseDate(strings.TrimSpace(value))
		if err != nil {
			r.logger.Debug().Str("value", value).Msg("unparsable search date")
			r.metrics.SearchPerformed(string(sel), string(mode), 0)
			return []Row{}, nil
		}
		date = d
	}

	visits, err := r.src.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("list visits: %w", err)
	}

	q := strings.ToLower(value)
	rows := []Row{}
	for _, v := range visits {
		var matched []int
		switch sel {
		case SelectorName:
			if !contains(v.PatientName, q) {
				continue
			}
		case SelectorSurname:
			if !contains(v.PatientSurname, q) {
				continue
			}
		case SelectorDentalNumber:
			if !contains(v.DentalNumber, q) {
				continue
			}
		case SelectorVisitType:
			if !contains(v.VisitType, q) {
				continue
			}
		case SelectorDate:
			if v.VisitDate != date {
				continue
			}
		case SelectorDiagnosis:
			if matched = v.Diagnoses.MatchText(q); len(matched) == 0 {
				continue
			}
		case SelectorICD10:
			if matched = v.Diagnoses.MatchCode(q); len(matched) == 0 {
				continue
			}
		}

		if mode == ModeExploded {
			rows = append(rows, explode(v, matched)...)
		} else {
			rows = append(rows, collapse(v))
		}
	}

	r.logger.Debug().
		Str("selector", string(sel)).
		Str("mode", string(mode)).
		Int("rows", len(rows)).
		Msg("search resolved")
	r.metrics.SearchPerformed(string(sel), string(mode), len(rows))
	return rows, nil
}

// Export runs a search and lays the rows out with cols, or with
// ExportColumns when cols is empty. Exports are collapsed unless mode says
// otherwise, whatever the resolver default.
func (r *Resolver) Export(ctx context.Context, sel Selector, value string, mode Mode, cols []export.Column) (export.Table, error) {
	if mode == "" {
		mode = ModeCollapsed
	}
	rows, err := r.Search(ctx, sel, value, mode)
	if err != nil {
		return export.Table{}, err
	}
	if len(cols) == 0 {
		cols = ExportColumns
	}
	fields := make([]map[string]any, len(rows))
	for i, row := range rows {
		fields[i] = row.Fields()
	}
	table := export.Build(fields, cols)
	r.logger.Debug().Int("rows", table.Len()).Msg("export built")
	r.metrics.ExportBuilt()
	return table, nil
}

func contains(field, lowerQuery string) bool {
	return strings.Contains(strings.ToLower(field), lowerQuery)
}

func baseRow(v *visit.Visit) Row {
	row := Row{
		VisitID:      v.ID,
		Name:         v.PatientName,
		Surname:      v.PatientSurname,
		DentalNumber: v.DentalNumber,
		VisitType:    v.VisitType,
		Date:         v.VisitDate,
	}
	if v.CreatedBy != nil {
		row.CreatedBy = *v.CreatedBy
	}
	return row
}

// display decodes the stored diagnoses through the codec, so an empty text
// field renders as the ("-", "-") sentinel and empty codes as "-".
func display(v *visit.Visit) diagnosis.Set {
	return diagnosis.Decode(diagnosis.Encode(v.Diagnoses))
}

func collapse(v *visit.Visit) Row {
	set := display(v)
	row := baseRow(v)
	row.Diagnosis = strings.Join(set.Texts(), LineBreak)
	row.ICD10 = strings.Join(set.Codes(), LineBreak)
	return row
}

// explode emits one row per decoded pair. When only is non-empty, just
// those indexes are emitted.
func explode(v *visit.Visit, only []int) []Row {
	set := display(v)
	pairs := []diagnosis.Pair(set)
	if len(only) > 0 {
		pairs = make([]diagnosis.Pair, 0, len(only))
		for _, i := range only {
			if i < len(set) {
				pairs = append(pairs, set[i])
			}
		}
	}
	rows := make([]Row, 0, len(pairs))
	for _, p := range pairs {
		row := baseRow(v)
		row.Diagnosis = p.Text
		row.ICD10 = p.Code
		rows = append(rows, row)
	}
	return rows
}
