package visit

import (
	"context"
	"time"

	"github.com/golang-sql/civil"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dentalclinic/records/internal/domain/diagnosis"
	"github.com/dentalclinic/records/internal/platform/db"
)

// repoPG stores diagnoses inline on the visit row (embedded shape).
type repoPG struct {
	pool *pgxpool.Pool
}

// NewRepo returns the Postgres repository for the requested shape.
func NewRepo(pool *pgxpool.Pool, shape Shape) Repository {
	if shape == ShapeNormalized {
		return &normalizedRepoPG{pool: pool}
	}
	return &repoPG{pool: pool}
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

func conn(ctx context.Context, pool *pgxpool.Pool) querier {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return pool
}

const visitCols = `id, patient_name, patient_surname, dental_number, visit_type,
	visit_date, created_by, created_at, updated_at`

const embeddedCols = visitCols + `, COALESCE(diagnosis, ''), COALESCE(icd10, '')`

func (r *repoPG) Create(ctx context.Context, v *Visit) error {
	v.ID = uuid.New()
	text, codes := v.EncodedDiagnoses()
	err := db.InTx(ctx, r.pool, func(ctx context.Context) error {
		return conn(ctx, r.pool).QueryRow(ctx, `
			INSERT INTO visit (
				id, patient_name, patient_surname, dental_number, visit_type,
				visit_date, created_by, diagnosis, icd10
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
			RETURNING created_at, updated_at`,
			v.ID, v.PatientName, v.PatientSurname, v.DentalNumber, v.VisitType,
			dateArg(v.VisitDate), v.CreatedBy, nullIfEmpty(text), nullIfEmpty(codes),
		).Scan(&v.CreatedAt, &v.UpdatedAt)
	})
	return db.MapError(err, "visit", v.ID.String())
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Visit, error) {
	v, err := scanEmbedded(conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+embeddedCols+` FROM visit WHERE id = $1`, id))
	if err != nil {
		return nil, db.MapError(err, "visit", id.String())
	}
	return v, nil
}

func (r *repoPG) Update(ctx context.Context, v *Visit) error {
	text, codes := v.EncodedDiagnoses()
	err := db.InTx(ctx, r.pool, func(ctx context.Context) error {
		return conn(ctx, r.pool).QueryRow(ctx, `
			UPDATE visit SET
				patient_name=$2, patient_surname=$3, dental_number=$4, visit_type=$5,
				visit_date=$6, diagnosis=$7, icd10=$8, updated_at=NOW()
			WHERE id = $1
			RETURNING created_by, created_at, updated_at`,
			v.ID, v.PatientName, v.PatientSurname, v.DentalNumber, v.VisitType,
			dateArg(v.VisitDate), nullIfEmpty(text), nullIfEmpty(codes),
		).Scan(&v.CreatedBy, &v.CreatedAt, &v.UpdatedAt)
	})
	return db.MapError(err, "visit", v.ID.String())
}

func (r *repoPG) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
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

// AppendDiagnosis locks the row, re-encodes the blobs through the codec and
// writes them back in the same transaction, so concurrent appends queue
// instead of overwriting each other.
func (r *repoPG) AppendDiagnosis(ctx context.Context, id uuid.UUID, p diagnosis.Pair) (*Visit, error) {
	var out *Visit
	err := db.InTx(ctx, r.pool, func(ctx context.Context) error {
		q := conn(ctx, r.pool)
		var text, codes string
		if err := q.QueryRow(ctx,
			`SELECT COALESCE(diagnosis, ''), COALESCE(icd10, '') FROM visit WHERE id = $1 FOR UPDATE`, id,
		).Scan(&text, &codes); err != nil {
			return err
		}

		newText, newCodes := diagnosis.Append(text, codes, p.Text, p.Code)
		if newText != text || newCodes != codes {
			if _, err := q.Exec(ctx,
				`UPDATE visit SET diagnosis=$2, icd10=$3, updated_at=NOW() WHERE id = $1`,
				id, nullIfEmpty(newText), nullIfEmpty(newCodes),
			); err != nil {
				return err
			}
		}

		v, err := scanEmbedded(q.QueryRow(ctx, `SELECT `+embeddedCols+` FROM visit WHERE id = $1`, id))
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

func (r *repoPG) List(ctx context.Context, limit, offset int) ([]*Visit, int, error) {
	var total int
	if err := conn(ctx, r.pool).QueryRow(ctx, `SELECT COUNT(*) FROM visit`).Scan(&total); err != nil {
		return nil, 0, db.MapError(err, "visit", "")
	}
	rows, err := conn(ctx, r.pool).Query(ctx,
		`SELECT `+embeddedCols+` FROM visit ORDER BY created_at, id LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, db.MapError(err, "visit", "")
	}
	defer rows.Close()
	visits, err := collectEmbedded(rows)
	if err != nil {
		return nil, 0, db.MapError(err, "visit", "")
	}
	return visits, total, nil
}

func (r *repoPG) ListAll(ctx context.Context) ([]*Visit, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, `SELECT `+embeddedCols+` FROM visit ORDER BY created_at, id`)
	if err != nil {
		return nil, db.MapError(err, "visit", "")
	}
	defer rows.Close()
	visits, err := collectEmbedded(rows)
	return visits, db.MapError(err, "visit", "")
}

func (r *repoPG) DiagnosesByPatient(ctx context.Context, name, surname string) ([]*HistoryEntry, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, `
		SELECT `+embeddedCols+` FROM visit
		WHERE patient_name = $1 AND patient_surname = $2
		ORDER BY visit_date, created_at, id`, name, surname)
	if err != nil {
		return nil, db.MapError(err, "visit", "")
	}
	defer rows.Close()
	visits, err := collectEmbedded(rows)
	if err != nil {
		return nil, db.MapError(err, "visit", "")
	}
	return historyFor(visits), nil
}

func scanEmbedded(row pgx.Row) (*Visit, error) {
	var v Visit
	var date time.Time
	var text, codes string
	if err := row.Scan(
		&v.ID, &v.PatientName, &v.PatientSurname, &v.DentalNumber, &v.VisitType,
		&date, &v.CreatedBy, &v.CreatedAt, &v.UpdatedAt, &text, &codes,
	); err != nil {
		return nil, err
	}
	v.VisitDate = civil.DateOf(date)
	v.Diagnoses = diagnosis.Parse(text, codes)
	return &v, nil
}

func collectEmbedded(rows pgx.Rows) ([]*Visit, error) {
	var visits []*Visit
	for rows.Next() {
		v, err := scanEmbedded(rows)
		if err != nil {
			return nil, err
		}
		visits = append(visits, v)
	}
	return visits, rows.Err()
}

// dateArg binds a calendar date as midnight UTC so Postgres DATE columns
// never shift across zones.
func dateArg(d civil.Date) time.Time {
	return d.In(time.UTC)
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
