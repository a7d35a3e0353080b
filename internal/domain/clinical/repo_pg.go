package clinical

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

type medicalRecordRepoPG struct {
	pool *pgxpool.Pool
}

func NewMedicalRecordRepo(pool *pgxpool.Pool) MedicalRecordRepository {
	return &medicalRecordRepoPG{pool: pool}
}

func (r *medicalRecordRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const mrCols = `id, patient_id, doctor_id, visit_date, chief_complaint, diagnosis,
	treatment_plan, follow_up_needed, notes, created_at, updated_at`

func (r *medicalRecordRepoPG) scanRecord(row pgx.Row) (*MedicalRecord, error) {
	var m MedicalRecord
	err := row.Scan(&m.ID, &m.PatientID, &m.DoctorID, &m.VisitDate, &m.ChiefComplaint, &m.Diagnosis,
		&m.TreatmentPlan, &m.FollowUpNeeded, &m.Notes, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *medicalRecordRepoPG) Create(ctx context.Context, m *MedicalRecord) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	now := time.Now().UTC()
	m.CreatedAt, m.UpdatedAt = now, now

	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO medical_records (id, patient_id, doctor_id, visit_date, chief_complaint, diagnosis,
			treatment_plan, follow_up_needed, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		m.ID, m.PatientID, m.DoctorID, m.VisitDate, m.ChiefComplaint, m.Diagnosis,
		m.TreatmentPlan, m.FollowUpNeeded, m.Notes, m.CreatedAt, m.UpdatedAt)
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			return apperr.NotFound("patient", m.PatientID.String())
		}
		return fmt.Errorf("insert medical record: %w", err)
	}
	return nil
}

func (r *medicalRecordRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*MedicalRecord, error) {
	m, err := r.scanRecord(r.conn(ctx).QueryRow(ctx, `SELECT `+mrCols+` FROM medical_records WHERE id = $1`, id))
	if err != nil {
		if db.IsNoRows(err) {
			return nil, apperr.NotFound("medical record", id.String())
		}
		return nil, fmt.Errorf("get medical record: %w", err)
	}
	return m, nil
}

func (r *medicalRecordRepoPG) Update(ctx context.Context, m *MedicalRecord) error {
	m.UpdatedAt = time.Now().UTC()
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE medical_records SET
			patient_id = $2, visit_date = $3, chief_complaint = $4, diagnosis = $5,
			treatment_plan = $6, follow_up_needed = $7, notes = $8, updated_at = $9
		WHERE id = $1`,
		m.ID, m.PatientID, m.VisitDate, m.ChiefComplaint, m.Diagnosis,
		m.TreatmentPlan, m.FollowUpNeeded, m.Notes, m.UpdatedAt)
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			return apperr.NotFound("patient", m.PatientID.String())
		}
		return fmt.Errorf("update medical record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("medical record", m.ID.String())
	}
	return nil
}

func (r *medicalRecordRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM medical_records WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete medical record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("medical record", id.String())
	}
	return nil
}

func (r *medicalRecordRepoPG) DeleteByPatient(ctx context.Context, patientID uuid.UUID) error {
	if _, err := r.conn(ctx).Exec(ctx, `DELETE FROM medical_records WHERE patient_id = $1`, patientID); err != nil {
		return fmt.Errorf("delete medical records for patient: %w", err)
	}
	return nil
}

func (r *medicalRecordRepoPG) List(ctx context.Context, q records.Query) ([]*MedicalRecord, int, error) {
	lq := db.NewListQuery("medical_records", mrCols)
	if q.OwnerID != "" {
		lq.Eq("doctor_id", q.OwnerID)
	}
	if p := q.Filters.Get("patientId"); p != "" {
		lq.Eq("patient_id", p)
	}
	lq.OrderBy("visit_date DESC, id ASC")

	var total int
	if err := r.conn(ctx).QueryRow(ctx, lq.CountSQL(), lq.CountArgs()...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count medical records: %w", err)
	}

	rows, err := r.conn(ctx).Query(ctx, lq.DataSQL(), lq.DataArgs(q.Limit, q.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list medical records: %w", err)
	}
	defer rows.Close()

	var items []*MedicalRecord
	for rows.Next() {
		m, err := r.scanRecord(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan medical record: %w", err)
		}
		items = append(items, m)
	}
	return items, total, rows.Err()
}
