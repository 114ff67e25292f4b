package visit

import (
	"context"
	"time"

	"github.com/golang-sql/civil"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dentalclinic/records/internal/domain/diagnosis"
	"github.com/dentalclinic/records/internal/platform/db"
)

// normalizedRepoPG keeps diagnoses in visit_diagnosis rows keyed by visit_id.
// The visit row's diagnosis/icd10 columns stay NULL in this shape.
type normalizedRepoPG struct {
	pool *pgxpool.Pool
}

func (r *normalizedRepoPG) Create(ctx context.Context, v *Visit) error {
	v.ID = uuid.New()
	err := db.InTx(ctx, r.pool, func(ctx context.Context) error {
		if err := conn(ctx, r.pool).QueryRow(ctx, `
			INSERT INTO visit (
				id, patient_name, patient_surname, dental_number, visit_type,
				visit_date, created_by
			) VALUES ($1,$2,$3,$4,$5,$6,$7)
			RETURNING created_at, updated_at`,
			v.ID, v.PatientName, v.PatientSurname, v.DentalNumber, v.VisitType,
			dateArg(v.VisitDate), v.CreatedBy,
		).Scan(&v.CreatedAt, &v.UpdatedAt); err != nil {
			return err
		}
		return r.insertDiagnoses(ctx, v.ID, 1, v.Diagnoses)
	})
	return db.MapError(err, "visit", v.ID.String())
}

func (r *normalizedRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Visit, error) {
	v, err := scanVisit(conn(ctx, r.pool).QueryRow(ctx, `SELECT `+visitCols+` FROM visit WHERE id = $1`, id))
	if err != nil {
		return nil, db.MapError(err, "visit", id.String())
	}
	if err := r.attach(ctx, []*Visit{v}); err != nil {
		return nil, db.MapError(err, "visit diagnosis", id.String())
	}
	return v, nil
}

// Update rewrites the visit row and replaces the diagnosis rows wholesale.
func (r *normalizedRepoPG) Update(ctx context.Context, v *Visit) error {
	err := db.InTx(ctx, r.pool, func(ctx context.Context) error {
		q := conn(ctx, r.pool)
		if err := q.QueryRow(ctx, `
			UPDATE visit SET
				patient_name=$2, patient_surname=$3, dental_number=$4, visit_type=$5,
				visit_date=$6, updated_at=NOW()
			WHERE id = $1
			RETURNING created_by, created_at, updated_at`,
			v.ID, v.PatientName, v.PatientSurname, v.DentalNumber, v.VisitType,
			dateArg(v.VisitDate),
		).Scan(&v.CreatedBy, &v.CreatedAt, &v.UpdatedAt); err != nil {
			return err
		}
		if _, err := q.Exec(ctx, `DELETE FROM visit_diagnosis WHERE visit_id = $1`, v.ID); err != nil {
			return err
		}
		return r.insertDiagnoses(ctx, v.ID, 1, v.Diagnoses)
	})
	return db.MapError(err, "visit", v.ID.String())
}

// Delete relies on ON DELETE CASCADE to drop the diagnosis rows.
func (r *normalizedRepoPG) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	var deleted bool
	err := db.InTx(ctx, r.pool, func(ctx context.Context) error {
		tag, err := conn(ctx, r.pool).Exec(ctx, `DELETE FROM visit WHERE id = $1`, id)
		deleted = tag.RowsAffected() > 0
		return err
	})
	if err != nil {
		return false, db.MapError(err, "visit", id.String())
	}
	return deleted, nil
}

func (r *normalizedRepoPG) AppendDiagnosis(ctx context.Context, id uuid.UUID, p diagnosis.Pair) (*Visit, error) {
	var out *Visit
	err := db.InTx(ctx, r.pool, func(ctx context.Context) error {
		q := conn(ctx, r.pool)
		// Lock the owning visit so two appends cannot pick the same position.
		v, err := scanVisit(q.QueryRow(ctx, `SELECT `+visitCols+` FROM visit WHERE id = $1 FOR UPDATE`, id))
		if err != nil {
			return err
		}

		if !p.IsBlank() {
			var next int
			if err := q.QueryRow(ctx,
				`SELECT COALESCE(MAX(position), 0) + 1 FROM visit_diagnosis WHERE visit_id = $1`, id,
			).Scan(&next); err != nil {
				return err
			}
			if err := r.insertDiagnoses(ctx, id, next, diagnosis.Set{p.Trimmed()}); err != nil {
				return err
			}
			if err := q.QueryRow(ctx,
				`UPDATE visit SET updated_at = NOW() WHERE id = $1 RETURNING updated_at`, id,
			).Scan(&v.UpdatedAt); err != nil {
				return err
			}
		}

		if err := r.attach(ctx, []*Visit{v}); err != nil {
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

func (r *normalizedRepoPG) List(ctx context.Context, limit, offset int) ([]*Visit, int, error) {
	var total int
	if err := conn(ctx, r.pool).QueryRow(ctx, `SELECT COUNT(*) FROM visit`).Scan(&total); err != nil {
		return nil, 0, db.MapError(err, "visit", "")
	}
	visits, err := r.queryVisits(ctx,
		`SELECT `+visitCols+` FROM visit ORDER BY created_at, id LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	return visits, total, nil
}

func (r *normalizedRepoPG) ListAll(ctx context.Context) ([]*Visit, error) {
	return r.queryVisits(ctx, `SELECT `+visitCols+` FROM visit ORDER BY created_at, id`)
}

// DiagnosesByPatient joins diagnosis rows to their visits through the
// visit_id foreign key; the name pair only selects which visits to show.
func (r *normalizedRepoPG) DiagnosesByPatient(ctx context.Context, name, surname string) ([]*HistoryEntry, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, `
		SELECT v.id, v.visit_date, v.visit_type, d.diagnosis, d.icd10
		FROM visit v
		LEFT JOIN visit_diagnosis d ON d.visit_id = v.id
		WHERE v.patient_name = $1 AND v.patient_surname = $2
		ORDER BY v.visit_date, v.created_at, v.id, d.position`, name, surname)
	if err != nil {
		return nil, db.MapError(err, "visit diagnosis", "")
	}
	defer rows.Close()

	var entries []*HistoryEntry
	for rows.Next() {
		var e HistoryEntry
		var date time.Time
		var text, code *string
		if err := rows.Scan(&e.VisitID, &date, &e.VisitType, &text, &code); err != nil {
			return nil, db.MapError(err, "visit diagnosis", "")
		}
		e.VisitDate = civil.DateOf(date)
		if text == nil && code == nil {
			e.Diagnosis = diagnosis.Pair{Text: diagnosis.Placeholder, Code: diagnosis.Placeholder}
		} else {
			e.Diagnosis = diagnosis.Pair{Text: strPtrVal(text), Code: strPtrVal(code)}
		}
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, db.MapError(err, "visit diagnosis", "")
	}
	return entries, nil
}

func (r *normalizedRepoPG) queryVisits(ctx context.Context, sql string, args ...interface{}) ([]*Visit, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, sql, args...)
	if err != nil {
		return nil, db.MapError(err, "visit", "")
	}
	var visits []*Visit
	for rows.Next() {
		v, err := scanVisit(rows)
		if err != nil {
			rows.Close()
			return nil, db.MapError(err, "visit", "")
		}
		visits = append(visits, v)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, db.MapError(err, "visit", "")
	}
	if err := r.attach(ctx, visits); err != nil {
		return nil, db.MapError(err, "visit diagnosis", "")
	}
	return visits, nil
}

// attach loads the diagnosis rows of visits in one query, ordered by position.
func (r *normalizedRepoPG) attach(ctx context.Context, visits []*Visit) error {
	if len(visits) == 0 {
		return nil
	}
	byID := make(map[uuid.UUID]*Visit, len(visits))
	ids := make([]uuid.UUID, len(visits))
	for i, v := range visits {
		byID[v.ID] = v
		ids[i] = v.ID
	}

	rows, err := conn(ctx, r.pool).Query(ctx, `
		SELECT visit_id, diagnosis, icd10 FROM visit_diagnosis
		WHERE visit_id = ANY($1) ORDER BY visit_id, position`, ids)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var visitID uuid.UUID
		var p diagnosis.Pair
		if err := rows.Scan(&visitID, &p.Text, &p.Code); err != nil {
			return err
		}
		if v, ok := byID[visitID]; ok {
			v.Diagnoses = append(v.Diagnoses, p)
		}
	}
	return rows.Err()
}

func (r *normalizedRepoPG) insertDiagnoses(ctx context.Context, visitID uuid.UUID, start int, set diagnosis.Set) error {
	if len(set) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for i, p := range set {
		batch.Queue(`
			INSERT INTO visit_diagnosis (id, visit_id, position, diagnosis, icd10)
			VALUES ($1,$2,$3,$4,$5)`,
			uuid.New(), visitID, start+i, p.Text, p.Code,
		)
	}
	tx := db.TxFromContext(ctx)
	br := tx.SendBatch(ctx, batch)
	for range set {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return err
		}
	}
	return br.Close()
}

func scanVisit(row pgx.Row) (*Visit, error) {
	var v Visit
	var date time.Time
	if err := row.Scan(
		&v.ID, &v.PatientName, &v.PatientSurname, &v.DentalNumber, &v.VisitType,
		&date, &v.CreatedBy, &v.CreatedAt, &v.UpdatedAt,
	); err != nil {
		return nil, err
	}
	v.VisitDate = civil.DateOf(date)
	return &v, nil
}
