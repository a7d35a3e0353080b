package clinical

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/records/internal/platform/auth"
	"github.com/ehr/records/internal/platform/db"
	"github.com/ehr/records/internal/platform/records"
	"github.com/ehr/records/internal/platform/validation"
	"github.com/ehr/records/pkg/pagination"
)

type Service struct {
	records  *records.Service[*MedicalRecord]
	validate *validation.Validator
}

func NewService(repo MedicalRecordRepository, tx db.Transactor, logger zerolog.Logger) *Service {
	return &Service{
		records:  records.NewService[*MedicalRecord]("medical record", repo, tx, logger),
		validate: validation.New(),
	}
}

func (s *Service) ListMedicalRecords(ctx context.Context, p *auth.Principal, patientID string, page pagination.Request) (*pagination.Page[*MedicalRecord], error) {
	var q validation.Query
	filters := records.Filters{}.Set("patientId", q.UUID("patientId", patientID))
	if err := q.Err(); err != nil {
		return nil, err
	}
	return s.records.List(ctx, p, filters, page)
}

func (s *Service) GetMedicalRecord(ctx context.Context, p *auth.Principal, id uuid.UUID) (*MedicalRecord, error) {
	return s.records.Get(ctx, p, id)
}

func (s *Service) CreateMedicalRecord(ctx context.Context, p *auth.Principal, req CreateRequest) (*MedicalRecord, error) {
	if err := auth.Authorize(p, auth.PermWrite).Err(); err != nil {
		return nil, err
	}
	req.trim()
	if err := s.validate.Struct(req); err != nil {
		return nil, err
	}

	rec := &MedicalRecord{
		PatientID:      uuid.MustParse(req.PatientID),
		DoctorID:       p.ID,
		VisitDate:      req.VisitDate,
		ChiefComplaint: req.ChiefComplaint,
		Diagnosis:      req.Diagnosis,
		TreatmentPlan:  req.TreatmentPlan,
		FollowUpNeeded: req.FollowUpNeeded,
		Notes:          req.Notes,
	}
	if p.Seeding && req.DoctorID != "" {
		rec.DoctorID = req.DoctorID
	}

	if err := s.records.Create(ctx, p, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *Service) UpdateMedicalRecord(ctx context.Context, p *auth.Principal, id uuid.UUID, req UpdateRequest) (*MedicalRecord, error) {
	return s.records.Update(ctx, p, id, req.Required(), func(rec *MedicalRecord) error {
		var patch validation.Patch
		if req.PatientID.Set {
			pid, err := uuid.Parse(strings.TrimSpace(req.PatientID.Value))
			if err != nil {
				patch.Add("patientId", "must be a valid UUID")
			} else {
				rec.PatientID = pid
			}
		}
		patch.Required("visitDate", req.VisitDate, &rec.VisitDate, validation.Date)
		patch.Required("chiefComplaint", req.ChiefComplaint, &rec.ChiefComplaint, validation.MaxLen(200))
		patch.Required("diagnosis", req.Diagnosis, &rec.Diagnosis)
		patch.Required("treatmentPlan", req.TreatmentPlan, &rec.TreatmentPlan)
		if req.FollowUpNeeded.Set && req.FollowUpNeeded.Null {
			patch.Add("followUpNeeded", "must be a boolean")
		}
		if err := patch.Err(); err != nil {
			return err
		}
		req.FollowUpNeeded.Apply(&rec.FollowUpNeeded)
		req.Notes.Apply(&rec.Notes)
		req.DoctorID.Apply(&rec.DoctorID)
		return nil
	})
}

func (s *Service) DeleteMedicalRecord(ctx context.Context, p *auth.Principal, id uuid.UUID) error {
	return s.records.Delete(ctx, p, id)
}
