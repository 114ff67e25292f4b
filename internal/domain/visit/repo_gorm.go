package visit

import (
	"context"
	"time"

	"github.com/golang-sql/civil"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/dentalclinic/records/internal/domain/diagnosis"
	"github.com/dentalclinic/records/internal/platform/db"
)

// visitRow is the gorm mapping of the visit table. Dates are kept as
// YYYY-MM-DD text so sqlite never applies a zone to them.
type visitRow struct {
	ID             string    `gorm:"column:id;primaryKey;type:text"`
	PatientName    string    `gorm:"column:patient_name;not null;index:idx_visit_patient"`
	PatientSurname string    `gorm:"column:patient_surname;not null;index:idx_visit_patient"`
	DentalNumber   string    `gorm:"column:dental_number;not null"`
	VisitType      string    `gorm:"column:visit_type;not null"`
	VisitDate      string    `gorm:"column:visit_date;type:text;not null;index"`
	CreatedBy      *string   `gorm:"column:created_by"`
	Diagnosis      *string   `gorm:"column:diagnosis"`
	ICD10          *string   `gorm:"column:icd10"`
	CreatedAt      time.Time `gorm:"column:created_at;index:idx_visit_created"`
	UpdatedAt      time.Time `gorm:"column:updated_at"`

	Diagnoses []diagnosisRow `gorm:"foreignKey:VisitID;references:ID;constraint:OnDelete:CASCADE"`
}

func (visitRow) TableName() string { return "visit" }

type diagnosisRow struct {
	ID        string    `gorm:"column:id;primaryKey;type:text"`
	VisitID   string    `gorm:"column:visit_id;type:text;not null;uniqueIndex:idx_visit_diagnosis_position"`
	Position  int       `gorm:"column:position;not null;uniqueIndex:idx_visit_diagnosis_position"`
	Diagnosis string    `gorm:"column:diagnosis;not null"`
	ICD10     string    `gorm:"column:icd10;not null"`
	CreatedAt time.Time `gorm:"column:created_at"`
}

func (diagnosisRow) TableName() string { return "visit_diagnosis" }

// repoGorm serves both shapes on top of gorm, normally against sqlite.
type repoGorm struct {
	db    *gorm.DB
	shape Shape
}

// NewGormRepo returns a Repository backed by gdb for the given shape.
func NewGormRepo(gdb *gorm.DB, shape Shape) Repository {
	if shape != ShapeNormalized {
		shape = ShapeEmbedded
	}
	return &repoGorm{db: gdb, shape: shape}
}

// AutoMigrate creates the visit and visit_diagnosis tables. It plays the
// role the embedded SQL migrations play for Postgres.
func AutoMigrate(gdb *gorm.DB) error {
	return gdb.AutoMigrate(&visitRow{}, &diagnosisRow{})
}

func (r *repoGorm) normalized() bool { return r.shape == ShapeNormalized }

func (r *repoGorm) Create(ctx context.Context, v *Visit) error {
	v.ID = uuid.New()
	row := r.toRow(v)
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(row).Error; err != nil {
			return err
		}
		if r.normalized() {
			return insertDiagnosisRows(tx, row.ID, 1, v.Diagnoses)
		}
		return nil
	})
	if err != nil {
		return db.MapError(err, "visit", v.ID.String())
	}
	v.CreatedAt, v.UpdatedAt = row.CreatedAt, row.UpdatedAt
	return nil
}

func (r *repoGorm) GetByID(ctx context.Context, id uuid.UUID) (*Visit, error) {
	var row visitRow
	if err := r.query(r.db.WithContext(ctx)).First(&row, "id = ?", id.String()).Error; err != nil {
		return nil, db.MapError(err, "visit", id.String())
	}
	return r.fromRow(&row)
}

func (r *repoGorm) Update(ctx context.Context, v *Visit) error {
	text, codes := v.EncodedDiagnoses()
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing visitRow
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&existing, "id = ?", v.ID.String()).Error; err != nil {
			return err
		}

		updates := map[string]interface{}{
			"patient_name":    v.PatientName,
			"patient_surname": v.PatientSurname,
			"dental_number":   v.DentalNumber,
			"visit_type":      v.VisitType,
			"visit_date":      v.VisitDate.String(),
		}
		if !r.normalized() {
			updates["diagnosis"] = nullIfEmpty(text)
			updates["icd10"] = nullIfEmpty(codes)
		}
		if err := tx.Model(&existing).Updates(updates).Error; err != nil {
			return err
		}

		if r.normalized() {
			if err := tx.Where("visit_id = ?", existing.ID).Delete(&diagnosisRow{}).Error; err != nil {
				return err
			}
			if err := insertDiagnosisRows(tx, existing.ID, 1, v.Diagnoses); err != nil {
				return err
			}
		}

		v.CreatedBy = existing.CreatedBy
		v.CreatedAt = existing.CreatedAt
		v.UpdatedAt = existing.UpdatedAt
		return nil
	})
	return db.MapError(err, "visit", v.ID.String())
}

func (r *repoGorm) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	var deleted bool
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("visit_id = ?", id.String()).Delete(&diagnosisRow{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", id.String()).Delete(&visitRow{})
		deleted = res.RowsAffected > 0
		return res.Error
	})
	if err != nil {
		return false, db.MapError(err, "visit", id.String())
	}
	return deleted, nil
}

func (r *repoGorm) AppendDiagnosis(ctx context.Context, id uuid.UUID, p diagnosis.Pair) (*Visit, error) {
	var out *Visit
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row visitRow
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&row, "id = ?", id.String()).Error; err != nil {
			return err
		}

		if !p.IsBlank() {
			if r.normalized() {
				var next int
				if err := tx.Model(&diagnosisRow{}).
					Where("visit_id = ?", row.ID).
					Select("COALESCE(MAX(position), 0) + 1").
					Scan(&next).Error; err != nil {
					return err
				}
				if err := insertDiagnosisRows(tx, row.ID, next, diagnosis.Set{p.Trimmed()}); err != nil {
					return err
				}
				if err := tx.Model(&row).Update("updated_at", tx.NowFunc()).Error; err != nil {
					return err
				}
			} else {
				text, codes := diagnosis.Append(strPtrVal(row.Diagnosis), strPtrVal(row.ICD10), p.Text, p.Code)
				if err := tx.Model(&row).Updates(map[string]interface{}{
					"diagnosis": nullIfEmpty(text),
					"icd10":     nullIfEmpty(codes),
				}).Error; err != nil {
					return err
				}
			}
		}

		var fresh visitRow
		if err := r.query(tx).First(&fresh, "id = ?", row.ID).Error; err != nil {
			return err
		}
		v, err := r.fromRow(&fresh)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	if err != nil {
		return nil, db.MapError(err, "visit", id.String())
	}
	return out, nil
}

func (r *repoGorm) List(ctx context.Context, limit, offset int) ([]*Visit, int, error) {
	var total int64
	if err := r.db.WithContext(ctx).Model(&visitRow{}).Count(&total).Error; err != nil {
		return nil, 0, db.MapError(err, "visit", "")
	}
	var rows []visitRow
	if err := r.query(r.db.WithContext(ctx)).
		Order("created_at, id").Limit(limit).Offset(offset).
		Find(&rows).Error; err != nil {
		return nil, 0, db.MapError(err, "visit", "")
	}
	visits, err := r.fromRows(rows)
	if err != nil {
		return nil, 0, err
	}
	return visits, int(total), nil
}

func (r *repoGorm) ListAll(ctx context.Context) ([]*Visit, error) {
	var rows []visitRow
	if err := r.query(r.db.WithContext(ctx)).Order("created_at, id").Find(&rows).Error; err != nil {
		return nil, db.MapError(err, "visit", "")
	}
	return r.fromRows(rows)
}

func (r *repoGorm) DiagnosesByPatient(ctx context.Context, name, surname string) ([]*HistoryEntry, error) {
	var rows []visitRow
	if err := r.query(r.db.WithContext(ctx)).
		Where("patient_name = ? AND patient_surname = ?", name, surname).
		Order("visit_date, created_at, id").
		Find(&rows).Error; err != nil {
		return nil, db.MapError(err, "visit", "")
	}
	visits, err := r.fromRows(rows)
	if err != nil {
		return nil, err
	}
	return historyFor(visits), nil
}

// query preloads diagnosis rows in position order for the normalized shape.
func (r *repoGorm) query(q *gorm.DB) *gorm.DB {
	if r.normalized() {
		return q.Preload("Diagnoses", func(d *gorm.DB) *gorm.DB {
			return d.Order("position")
		})
	}
	return q
}

func (r *repoGorm) toRow(v *Visit) *visitRow {
	row := &visitRow{
		ID:             v.ID.String(),
		PatientName:    v.PatientName,
		PatientSurname: v.PatientSurname,
		DentalNumber:   v.DentalNumber,
		VisitType:      v.VisitType,
		VisitDate:      v.VisitDate.String(),
		CreatedBy:      v.CreatedBy,
	}
	if !r.normalized() {
		text, codes := v.EncodedDiagnoses()
		row.Diagnosis, row.ICD10 = nullIfEmpty(text), nullIfEmpty(codes)
	}
	return row
}

func (r *repoGorm) fromRow(row *visitRow) (*Visit, error) {
	id, err := uuid.Parse(row.ID)
	if err != nil {
		return nil, db.MapError(err, "visit", row.ID)
	}
	date, err := civil.ParseDate(row.VisitDate)
	if err != nil {
		return nil, db.MapError(err, "visit", row.ID)
	}
	v := &Visit{
		ID:             id,
		PatientName:    row.PatientName,
		PatientSurname: row.PatientSurname,
		DentalNumber:   row.DentalNumber,
		VisitType:      row.VisitType,
		VisitDate:      date,
		CreatedBy:      row.CreatedBy,
		CreatedAt:      row.CreatedAt,
		UpdatedAt:      row.UpdatedAt,
	}
	if r.normalized() {
		for _, d := range row.Diagnoses {
			v.Diagnoses = append(v.Diagnoses, diagnosis.Pair{Text: d.Diagnosis, Code: d.ICD10})
		}
	} else {
		v.Diagnoses = diagnosis.Parse(strPtrVal(row.Diagnosis), strPtrVal(row.ICD10))
	}
	return v, nil
}

func (r *repoGorm) fromRows(rows []visitRow) ([]*Visit, error) {
	visits := make([]*Visit, 0, len(rows))
	for i := range rows {
		v, err := r.fromRow(&rows[i])
		if err != nil {
			return nil, err
		}
		visits = append(visits, v)
	}
	return visits, nil
}

func insertDiagnosisRows(tx *gorm.DB, visitID string, start int, set diagnosis.Set) error {
	if len(set) == 0 {
		return nil
	}
	rows := make([]diagnosisRow, len(set))
	for i, p := range set {
		rows[i] = diagnosisRow{
			ID:        uuid.NewString(),
			VisitID:   visitID,
			Position:  start + i,
			Diagnosis: p.Text,
			ICD10:     p.Code,
		}
	}
	return tx.Create(&rows).Error
}
