package medication

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/records/internal/platform/apperr"
	"github.com/ehr/records/internal/platform/auth"
	"github.com/ehr/records/internal/platform/db"
	"github.com/ehr/records/internal/platform/records"
	"github.com/ehr/records/internal/platform/validation"
	"github.com/ehr/records/pkg/pagination"
)

type Service struct {
	records  *records.Service[*Medication]
	validate *validation.Validator
}

func NewService(repo MedicationRepository, tx db.Transactor, logger zerolog.Logger) *Service {
	return &Service{
		records:  records.NewService[*Medication]("medication", repo, tx, logger),
		validate: validation.New(),
	}
}

func (s *Service) ListMedications(ctx context.Context, p *auth.Principal, patientID string, page pagination.Request) (*pagination.Page[*Medication], error) {
	var q validation.Query
	filters := records.Filters{}.Set("patientId", q.UUID("patientId", patientID))
	if err := q.Err(); err != nil {
		return nil, err
	}
	return s.records.List(ctx, p, filters, page)
}

func (s *Service) GetMedication(ctx context.Context, p *auth.Principal, id uuid.UUID) (*Medication, error) {
	return s.records.Get(ctx, p, id)
}

func (s *Service) CreateMedication(ctx context.Context, p *auth.Principal, req CreateRequest) (*Medication, error) {
	if err := auth.Authorize(p, auth.PermWrite).Err(); err != nil {
		return nil, err
	}
	req.trim()
	if err := s.validate.Struct(req); err != nil {
		return nil, err
	}

	m := &Medication{
		PatientID:    uuid.MustParse(req.PatientID),
		Name:         req.Name,
		Dosage:       req.Dosage,
		Frequency:    req.Frequency,
		StartDate:    req.StartDate,
		EndDate:      req.EndDate,
		PrescribedBy: p.ID,
		Notes:        req.Notes,
	}
	if m.endsBeforeStart() {
		return nil, apperr.Invalid("endDate", "must not be before startDate")
	}
	if p.Seeding && req.PrescribedBy != "" {
		m.PrescribedBy = req.PrescribedBy
	}

	if err := s.records.Create(ctx, p, m); err != nil {
		return nil, err
	}
	return m, nil
}

func (s *Service) UpdateMedication(ctx context.Context, p *auth.Principal, id uuid.UUID, req UpdateRequest) (*Medication, error) {
	return s.records.Update(ctx, p, id, req.Required(), func(m *Medication) error {
		var patch validation.Patch
		if req.PatientID.Set {
			pid, err := uuid.Parse(strings.TrimSpace(req.PatientID.Value))
			if err != nil {
				patch.Add("patientId", "must be a valid UUID")
			} else {
				m.PatientID = pid
			}
		}
		patch.Required("name", req.Name, &m.Name, validation.MaxLen(100))
		patch.Required("dosage", req.Dosage, &m.Dosage, validation.MaxLen(50))
		patch.Required("frequency", req.Frequency, &m.Frequency, validation.MaxLen(100))
		patch.Required("startDate", req.StartDate, &m.StartDate, validation.Date)
		patch.Nullable("endDate", req.EndDate, &m.EndDate, validation.Date)
		if m.endsBeforeStart() {
			patch.Add("endDate", "must not be before startDate")
		}
		if err := patch.Err(); err != nil {
			return err
		}
		req.Notes.Apply(&m.Notes)
		req.PrescribedBy.Apply(&m.PrescribedBy)
		return nil
	})
}

func (s *Service) DeleteMedication(ctx context.Context, p *auth.Principal, id uuid.UUID) error {
	return s.records.Delete(ctx, p, id)
}
