package medication

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ehr/records/internal/platform/apperr"
	"github.com/ehr/records/internal/platform/db"
	"github.com/ehr/records/internal/platform/records"
)

type medicationRepoPG struct {
	pool *pgxpool.Pool
}

func NewMedicationRepo(pool *pgxpool.Pool) MedicationRepository {
	return &medicationRepoPG{pool: pool}
}

func (r *medicationRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const medCols = `id, patient_id, name, dosage, frequency, start_date, end_date,
	prescribed_by, notes, created_at, updated_at`

func (r *medicationRepoPG) scanMedication(row pgx.Row) (*Medication, error) {
	var m Medication
	err := row.Scan(&m.ID, &m.PatientID, &m.Name, &m.Dosage, &m.Frequency, &m.StartDate, &m.EndDate,
		&m.PrescribedBy, &m.Notes, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *medicationRepoPG) Create(ctx context.Context, m *Medication) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	now := time.Now().UTC()
	m.CreatedAt, m.UpdatedAt = now, now

	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO medications (id, patient_id, name, dosage, frequency, start_date, end_date,
			prescribed_by, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		m.ID, m.PatientID, m.Name, m.Dosage, m.Frequency, m.StartDate, m.EndDate,
		m.PrescribedBy, m.Notes, m.CreatedAt, m.UpdatedAt)
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			return apperr.NotFound("patient", m.PatientID.String())
		}
		return fmt.Errorf("insert medication: %w", err)
	}
	return nil
}

func (r *medicationRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Medication, error) {
	m, err := r.scanMedication(r.conn(ctx).QueryRow(ctx, `SELECT `+medCols+` FROM medications WHERE id = $1`, id))
	if err != nil {
		if db.IsNoRows(err) {
			return nil, apperr.NotFound("medication", id.String())
		}
		return nil, fmt.Errorf("get medication: %w", err)
	}
	return m, nil
}

func (r *medicationRepoPG) Update(ctx context.Context, m *Medication) error {
	m.UpdatedAt = time.Now().UTC()
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE medications SET
			patient_id = $2, name = $3, dosage = $4, frequency = $5,
			start_date = $6, end_date = $7, notes = $8, updated_at = $9
		WHERE id = $1`,
		m.ID, m.PatientID, m.Name, m.Dosage, m.Frequency,
		m.StartDate, m.EndDate, m.Notes, m.UpdatedAt)
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			return apperr.NotFound("patient", m.PatientID.String())
		}
		return fmt.Errorf("update medication: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("medication", m.ID.String())
	}
	return nil
}

func (r *medicationRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM medications WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete medication: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("medication", id.String())
	}
	return nil
}

func (r *medicationRepoPG) List(ctx context.Context, q records.Query) ([]*Medication, int, error) {
	lq := db.NewListQuery("medications", medCols)
	if q.OwnerID != "" {
		lq.Eq("prescribed_by", q.OwnerID)
	}
	if p := q.Filters.Get("patientId"); p != "" {
		lq.Eq("patient_id", p)
	}
	lq.OrderBy("start_date DESC, id ASC")

	var total int
	if err := r.conn(ctx).QueryRow(ctx, lq.CountSQL(), lq.CountArgs()...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count medications: %w", err)
	}

	rows, err := r.conn(ctx).Query(ctx, lq.DataSQL(), lq.DataArgs(q.Limit, q.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list medications: %w", err)
	}
	defer rows.Close()

	var items []*Medication
	for rows.Next() {
		m, err := r.scanMedication(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan medication: %w", err)
		}
		items = append(items, m)
	}
	return items, total, rows.Err()
}
