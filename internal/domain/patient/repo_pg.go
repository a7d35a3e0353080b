package patient

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

const emailConstraint = "patients_email_key"

// -- Patient Repository --

type patientRepoPG struct {
	pool *pgxpool.Pool
}

func NewPatientRepo(pool *pgxpool.Pool) PatientRepository {
	return &patientRepoPG{pool: pool}
}

func (r *patientRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const patientCols = `id, first_name, last_name, date_of_birth, gender, email, phone, address,
	insurance_id, medical_conditions, allergies, notes, profile_image_url,
	created_by, created_at, updated_at`

func (r *patientRepoPG) scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(&p.ID, &p.FirstName, &p.LastName, &p.DateOfBirth, &p.Gender,
		&p.Email, &p.Phone, &p.Address,
		&p.InsuranceID, &p.MedicalConditions, &p.Allergies, &p.Notes, &p.ProfileImageURL,
		&p.CreatedBy, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func emailConflict(err error) error {
	if constraint, ok := db.IsUniqueViolation(err); ok && constraint == emailConstraint {
		return apperr.Conflict("a patient with this email already exists", err)
	}
	return nil
}

func (r *patientRepoPG) Create(ctx context.Context, p *Patient) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now

	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO patients (
			id, first_name, last_name, date_of_birth, gender, email, phone, address,
			insurance_id, medical_conditions, allergies, notes, profile_image_url,
			created_by, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`,
		p.ID, p.FirstName, p.LastName, p.DateOfBirth, p.Gender, p.Email, p.Phone, p.Address,
		p.InsuranceID, nonNil(p.MedicalConditions), nonNil(p.Allergies), p.Notes, p.ProfileImageURL,
		p.CreatedBy, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		if cerr := emailConflict(err); cerr != nil {
			return cerr
		}
		return fmt.Errorf("insert patient: %w", err)
	}
	return nil
}

func (r *patientRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	p, err := r.scanPatient(r.conn(ctx).QueryRow(ctx, `SELECT `+patientCols+` FROM patients WHERE id = $1`, id))
	if err != nil {
		if db.IsNoRows(err) {
			return nil, apperr.NotFound("patient", id.String())
		}
		return nil, fmt.Errorf("get patient: %w", err)
	}
	return p, nil
}

// Update writes every mutable column. created_by is not among them.
func (r *patientRepoPG) Update(ctx context.Context, p *Patient) error {
	p.UpdatedAt = time.Now().UTC()
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE patients SET
			first_name = $2, last_name = $3, date_of_birth = $4, gender = $5, email = $6,
			phone = $7, address = $8, insurance_id = $9, medical_conditions = $10,
			allergies = $11, notes = $12, profile_image_url = $13, updated_at = $14
		WHERE id = $1`,
		p.ID, p.FirstName, p.LastName, p.DateOfBirth, p.Gender, p.Email,
		p.Phone, p.Address, p.InsuranceID, nonNil(p.MedicalConditions),
		nonNil(p.Allergies), p.Notes, p.ProfileImageURL, p.UpdatedAt)
	if err != nil {
		if cerr := emailConflict(err); cerr != nil {
			return cerr
		}
		return fmt.Errorf("update patient: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("patient", p.ID.String())
	}
	return nil
}

func (r *patientRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM patients WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete patient: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("patient", id.String())
	}
	return nil
}

func (r *patientRepoPG) List(ctx context.Context, q records.Query) ([]*Patient, int, error) {
	lq := buildPatientQuery(q)

	var total int
	if err := r.conn(ctx).QueryRow(ctx, lq.CountSQL(), lq.CountArgs()...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count patients: %w", err)
	}

	rows, err := r.conn(ctx).Query(ctx, lq.DataSQL(), lq.DataArgs(q.Limit, q.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list patients: %w", err)
	}
	defer rows.Close()

	var items []*Patient
	for rows.Next() {
		p, err := r.scanPatient(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan patient: %w", err)
		}
		items = append(items, p)
	}
	return items, total, rows.Err()
}

func buildPatientQuery(q records.Query) *db.ListQuery {
	lq := db.NewListQuery("patients", patientCols)
	if q.OwnerID != "" {
		lq.Eq("created_by", q.OwnerID)
	}
	if s := q.Filters.Get("search"); s != "" {
		lq.Contains(s, "first_name", "last_name", "email")
	}
	lq.OrderBy("last_name ASC, first_name ASC, id ASC")
	return lq
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// -- Medical Image Repository --

type imageRepoPG struct {
	pool *pgxpool.Pool
}

func NewImageRepo(pool *pgxpool.Pool) ImageRepository {
	return &imageRepoPG{pool: pool}
}

func (r *imageRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const imageCols = `id, patient_id, image_url, image_type, description, uploaded_by, uploaded_at`

func (r *imageRepoPG) Create(ctx context.Context, img *MedicalImage) error {
	if img.ID == uuid.Nil {
		img.ID = uuid.New()
	}
	img.UploadedAt = time.Now().UTC()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO medical_images (id, patient_id, image_url, image_type, description, uploaded_by, uploaded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		img.ID, img.PatientID, img.ImageURL, img.ImageType, img.Description, img.UploadedBy, img.UploadedAt)
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			return apperr.NotFound("patient", img.PatientID.String())
		}
		return fmt.Errorf("insert medical image: %w", err)
	}
	return nil
}

func (r *imageRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*MedicalImage, int, error) {
	lq := db.NewListQuery("medical_images", imageCols)
	lq.Eq("patient_id", patientID)
	lq.OrderBy("uploaded_at DESC, id ASC")

	var total int
	if err := r.conn(ctx).QueryRow(ctx, lq.CountSQL(), lq.CountArgs()...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count medical images: %w", err)
	}

	rows, err := r.conn(ctx).Query(ctx, lq.DataSQL(), lq.DataArgs(limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list medical images: %w", err)
	}
	defer rows.Close()

	var items []*MedicalImage
	for rows.Next() {
		var img MedicalImage
		if err := rows.Scan(&img.ID, &img.PatientID, &img.ImageURL, &img.ImageType,
			&img.Description, &img.UploadedBy, &img.UploadedAt); err != nil {
			return nil, 0, fmt.Errorf("scan medical image: %w", err)
		}
		items = append(items, &img)
	}
	return items, total, rows.Err()
}
