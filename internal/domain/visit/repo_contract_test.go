package visit

import (
	"context"
	"testing"
	"time"

	"github.com/golang-sql/civil"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dentalclinic/records/internal/domain/diagnosis"
	"github.com/dentalclinic/records/internal/platform/apperr"
)

// Repository checks shared by the gorm and Postgres suites. Each one starts
// from an empty store.

func newVisit(name, surname, dental string, date civil.Date, pairs ...diagnosis.Pair) *Visit {
	return &Visit{
		PatientName:    name,
		PatientSurname: surname,
		DentalNumber:   dental,
		VisitType:      "checkup",
		VisitDate:      date,
		Diagnoses:      diagnosis.Clean(pairs),
	}
}

var jan10 = civil.Date{Year: 2024, Month: time.January, Day: 10}

func checkCreateAndGet(t *testing.T, repo Repository) {
	ctx := context.Background()
	creator := "dr.adams"
	v := newVisit("Jane", "Doe", "D-100", jan10,
		diagnosis.Pair{Text: "Caries", Code: "K02"},
		diagnosis.Pair{Text: "", Code: "K05"},
	)
	v.CreatedBy = &creator
	require.NoError(t, repo.Create(ctx, v))
	require.NotEqual(t, uuid.Nil, v.ID)
	assert.False(t, v.CreatedAt.IsZero())

	got, err := repo.GetByID(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, "Jane", got.PatientName)
	assert.Equal(t, jan10, got.VisitDate)
	require.NotNil(t, got.CreatedBy)
	assert.Equal(t, "dr.adams", *got.CreatedBy)
	assert.Equal(t, diagnosis.Set{{Text: "Caries", Code: "K02"}, {Text: "", Code: "K05"}}, got.Diagnoses)
}

func checkGetMissing(t *testing.T, repo Repository) {
	_, err := repo.GetByID(context.Background(), uuid.New())
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func checkNoDiagnoses(t *testing.T, repo Repository) {
	ctx := context.Background()
	v := newVisit("Jane", "Doe", "D-100", jan10)
	require.NoError(t, repo.Create(ctx, v))

	got, err := repo.GetByID(ctx, v.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Diagnoses)
}

func checkAppendDiagnosis(t *testing.T, repo Repository) {
	ctx := context.Background()
	v := newVisit("Jane", "Doe", "D-100", jan10, diagnosis.Pair{Text: "Caries", Code: "K02"})
	require.NoError(t, repo.Create(ctx, v))

	got, err := repo.AppendDiagnosis(ctx, v.ID, diagnosis.Pair{Text: " Gingivitis ", Code: "K05"})
	require.NoError(t, err)
	assert.Equal(t, diagnosis.Set{{Text: "Caries", Code: "K02"}, {Text: "Gingivitis", Code: "K05"}}, got.Diagnoses)

	got, err = repo.AppendDiagnosis(ctx, v.ID, diagnosis.Pair{Text: "", Code: "K08"})
	require.NoError(t, err)
	require.Len(t, got.Diagnoses, 3)
	assert.Equal(t, diagnosis.Pair{Text: "", Code: "K08"}, got.Diagnoses[2])

	got, err = repo.AppendDiagnosis(ctx, v.ID, diagnosis.Pair{Text: " ", Code: ""})
	require.NoError(t, err)
	assert.Len(t, got.Diagnoses, 3, "blank append must be a no-op")
}

func checkAppendToEmptyVisit(t *testing.T, repo Repository) {
	ctx := context.Background()
	v := newVisit("Jane", "Doe", "D-100", jan10)
	require.NoError(t, repo.Create(ctx, v))

	got, err := repo.AppendDiagnosis(ctx, v.ID, diagnosis.Pair{Text: "Caries", Code: "K02"})
	require.NoError(t, err)
	assert.Equal(t, diagnosis.Set{{Text: "Caries", Code: "K02"}}, got.Diagnoses)
}

func checkAppendMissing(t *testing.T, repo Repository) {
	_, err := repo.AppendDiagnosis(context.Background(), uuid.New(), diagnosis.Pair{Text: "Caries"})
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func checkUpdateReplacesDiagnoses(t *testing.T, repo Repository) {
	ctx := context.Background()
	creator := "dr.adams"
	v := newVisit("Jane", "Doe", "D-100", jan10,
		diagnosis.Pair{Text: "Caries", Code: "K02"},
		diagnosis.Pair{Text: "Gingivitis", Code: "K05"},
	)
	v.CreatedBy = &creator
	require.NoError(t, repo.Create(ctx, v))

	edit := newVisit("Jane", "Doe-Smith", "D-100", civil.Date{Year: 2024, Month: time.February, Day: 1},
		diagnosis.Pair{Text: "Pulpitis", Code: "K04.0"})
	edit.ID = v.ID
	require.NoError(t, repo.Update(ctx, edit))
	require.NotNil(t, edit.CreatedBy)
	assert.Equal(t, "dr.adams", *edit.CreatedBy)

	got, err := repo.GetByID(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, "Doe-Smith", got.PatientSurname)
	assert.Equal(t, "2024-02-01", got.VisitDate.String())
	assert.Equal(t, diagnosis.Set{{Text: "Pulpitis", Code: "K04.0"}}, got.Diagnoses)

	// A later append continues after the replaced list, not the old one.
	got, err = repo.AppendDiagnosis(ctx, v.ID, diagnosis.Pair{Text: "Abscess", Code: "K04.7"})
	require.NoError(t, err)
	assert.Equal(t, diagnosis.Set{{Text: "Pulpitis", Code: "K04.0"}, {Text: "Abscess", Code: "K04.7"}}, got.Diagnoses)
}

func checkUpdateMissing(t *testing.T, repo Repository) {
	v := newVisit("Jane", "Doe", "D-100", jan10)
	v.ID = uuid.New()
	assert.ErrorIs(t, repo.Update(context.Background(), v), apperr.ErrNotFound)
}

func checkDelete(t *testing.T, repo Repository) {
	ctx := context.Background()
	v := newVisit("Jane", "Doe", "D-100", jan10, diagnosis.Pair{Text: "Caries", Code: "K02"})
	require.NoError(t, repo.Create(ctx, v))

	deleted, err := repo.Delete(ctx, v.ID)
	require.NoError(t, err)
	assert.True(t, deleted)

	_, err = repo.GetByID(ctx, v.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	deleted, err = repo.Delete(ctx, v.ID)
	require.NoError(t, err)
	assert.False(t, deleted)

	history, err := repo.DiagnosesByPatient(ctx, "Jane", "Doe")
	require.NoError(t, err)
	assert.Empty(t, history)
}

func checkListOrderAndPaging(t *testing.T, repo Repository) {
	ctx := context.Background()
	var ids []uuid.UUID
	for _, dental := range []string{"D-1", "D-2", "D-3"} {
		v := newVisit("Jane", "Doe", dental, jan10, diagnosis.Pair{Text: "Caries " + dental, Code: "K02"})
		require.NoError(t, repo.Create(ctx, v))
		ids = append(ids, v.ID)
		time.Sleep(2 * time.Millisecond)
	}

	all, err := repo.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	for i, v := range all {
		assert.Equal(t, ids[i], v.ID, "store order must follow creation")
		assert.Len(t, v.Diagnoses, 1)
	}

	page, total, err := repo.List(ctx, 2, 1)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, page, 2)
	assert.Equal(t, ids[1], page[0].ID)
	assert.Equal(t, ids[2], page[1].ID)
}

func checkDiagnosesByPatient(t *testing.T, repo Repository) {
	ctx := context.Background()
	later := newVisit("Jane", "Doe", "D-100", civil.Date{Year: 2024, Month: time.March, Day: 5},
		diagnosis.Pair{Text: "Pulpitis", Code: "K04.0"})
	earlier := newVisit("Jane", "Doe", "D-100", jan10,
		diagnosis.Pair{Text: "Caries", Code: "K02"},
		diagnosis.Pair{Text: "Gingivitis", Code: "K05"})
	empty := newVisit("Jane", "Doe", "D-100", civil.Date{Year: 2024, Month: time.April, Day: 1})
	other := newVisit("John", "Doe", "D-200", jan10, diagnosis.Pair{Text: "Abscess", Code: "K04.7"})
	for _, v := range []*Visit{later, earlier, empty, other} {
		require.NoError(t, repo.Create(ctx, v))
	}

	entries, err := repo.DiagnosesByPatient(ctx, "Jane", "Doe")
	require.NoError(t, err)
	require.Len(t, entries, 4)
	assert.Equal(t, earlier.ID, entries[0].VisitID)
	assert.Equal(t, "Caries", entries[0].Diagnosis.Text)
	assert.Equal(t, "Gingivitis", entries[1].Diagnosis.Text)
	assert.Equal(t, later.ID, entries[2].VisitID)
	assert.Equal(t, empty.ID, entries[3].VisitID)
	assert.True(t, entries[3].Diagnosis.IsPlaceholder())
	assert.Equal(t, "checkup", entries[3].VisitType)
}

func checkIntakeAppendScenario(t *testing.T, repo Repository) {
	ctx := context.Background()
	svc := NewService(repo, ShapeEmbedded, zerolog.Nop(), nil)

	v := &Visit{
		PatientName:    "Jane",
		PatientSurname: "Doe",
		DentalNumber:   "D-100",
		VisitType:      "New",
		VisitDate:      jan10,
	}
	created, err := svc.Intake(ctx, v, []diagnosis.Pair{{Text: "Caries", Code: "K02"}}, "")
	require.NoError(t, err)

	_, err = svc.AppendDiagnosis(ctx, created.ID, "Gingivitis", "K05")
	require.NoError(t, err)

	all, err := svc.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "D-100", all[0].DentalNumber)
	assert.Equal(t, diagnosis.Set{{Text: "Caries", Code: "K02"}, {Text: "Gingivitis", Code: "K05"}}, all[0].Diagnoses)
}
