package visit

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dentalclinic/records/internal/domain/diagnosis"
	"github.com/dentalclinic/records/internal/platform/apperr"
	"github.com/dentalclinic/records/internal/platform/telemetry"
)

// Service holds the visit business rules on top of a Repository.
type Service struct {
	repo    Repository
	shape   Shape
	logger  zerolog.Logger
	metrics *telemetry.Provider
}

// NewService wires a Service. metrics may be nil.
func NewService(repo Repository, shape Shape, logger zerolog.Logger, metrics *telemetry.Provider) *Service {
	return &Service{
		repo:    repo,
		shape:   shape,
		logger:  logger.With().Str("component", "visit").Logger(),
		metrics: metrics,
	}
}

// Intake records a new visit with its initial diagnoses. Blank pairs are
// skipped. createdBy is the authenticated user, empty when unknown.
func (s *Service) Intake(ctx context.Context, v *Visit, pairs []diagnosis.Pair, createdBy string) (*Visit, error) {
	if v == nil {
		return nil, apperr.Validation("visit is required", nil)
	}
	v.Normalize()
	if problems := v.Validate(); len(problems) > 0 {
		return nil, apperr.Validation("visit is missing required fields", problems)
	}
	v.Diagnoses = diagnosis.Clean(pairs)
	if createdBy = strings.TrimSpace(createdBy); createdBy != "" {
		v.CreatedBy = &createdBy
	} else {
		v.CreatedBy = nil
	}

	if err := s.repo.Create(ctx, v); err != nil {
		return nil, err
	}
	s.metrics.VisitCreated(string(s.shape))
	s.logger.Info().
		Str("visit_id", v.ID.String()).
		Int("diagnoses", len(v.Diagnoses)).
		Msg("visit recorded")
	return v, nil
}

// AppendDiagnosis adds one diagnosis to an existing visit. A pair that is
// blank on both sides is accepted and changes nothing.
func (s *Service) AppendDiagnosis(ctx context.Context, id uuid.UUID, text, code string) (*Visit, error) {
	p := diagnosis.Pair{Text: text, Code: code}
	v, err := s.repo.AppendDiagnosis(ctx, id, p)
	if err != nil {
		return nil, err
	}
	if !p.IsBlank() {
		s.metrics.DiagnosisAppended()
		s.logger.Info().
			Str("visit_id", id.String()).
			Int("diagnoses", len(v.Diagnoses)).
			Msg("diagnosis appended")
	}
	return v, nil
}

// Edit replaces every field of the visit, diagnoses included. The creator
// recorded at intake is kept.
func (s *Service) Edit(ctx context.Context, id uuid.UUID, v *Visit) (*Visit, error) {
	if v == nil {
		return nil, apperr.Validation("visit is required", nil)
	}
	v.ID = id
	v.Normalize()
	if problems := v.Validate(); len(problems) > 0 {
		return nil, apperr.Validation("visit is missing required fields", problems)
	}
	v.Diagnoses = diagnosis.Clean(v.Diagnoses)

	if err := s.repo.Update(ctx, v); err != nil {
		return nil, err
	}
	s.logger.Info().Str("visit_id", id.String()).Msg("visit updated")
	return v, nil
}

// Delete removes a visit; false means nothing was stored under id.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	deleted, err := s.repo.Delete(ctx, id)
	if err != nil {
		return false, err
	}
	s.logger.Info().Str("visit_id", id.String()).Bool("deleted", deleted).Msg("visit delete")
	return deleted, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Visit, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context, limit, offset int) ([]*Visit, int, error) {
	return s.repo.List(ctx, limit, offset)
}

// ListAll returns every visit in store order. The search resolver reads
// through it.
func (s *Service) ListAll(ctx context.Context) ([]*Visit, error) {
	return s.repo.ListAll(ctx)
}

// History returns the diagnosis history of one patient.
func (s *Service) History(ctx context.Context, name, surname string) ([]*HistoryEntry, error) {
	name, surname = strings.TrimSpace(name), strings.TrimSpace(surname)
	if name == "" || surname == "" {
		return nil, apperr.Validation("name and surname are required", map[string]string{
			"name":    "is required",
			"surname": "is required",
		})
	}
	return s.repo.DiagnosesByPatient(ctx, name, surname)
}
