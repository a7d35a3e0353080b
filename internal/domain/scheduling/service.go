package scheduling

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
	records  *records.Service[*Appointment]
	validate *validation.Validator
}

func NewService(repo AppointmentRepository, tx db.Transactor, logger zerolog.Logger) *Service {
	return &Service{
		records:  records.NewService[*Appointment]("appointment", repo, tx, logger),
		validate: validation.New(),
	}
}

// ListFilter narrows an appointment listing.
type ListFilter struct {
	Date      string
	PatientID string
}

func (s *Service) ListAppointments(ctx context.Context, p *auth.Principal, f ListFilter, page pagination.Request) (*pagination.Page[*Appointment], error) {
	var q validation.Query
	filters := records.Filters{}.
		Set("date", q.Date("date", f.Date)).
		Set("patientId", q.UUID("patientId", f.PatientID))
	if err := q.Err(); err != nil {
		return nil, err
	}
	return s.records.List(ctx, p, filters, page)
}

func (s *Service) GetAppointment(ctx context.Context, p *auth.Principal, id uuid.UUID) (*Appointment, error) {
	return s.records.Get(ctx, p, id)
}

func (s *Service) CreateAppointment(ctx context.Context, p *auth.Principal, req CreateRequest) (*Appointment, error) {
	if err := auth.Authorize(p, auth.PermWrite).Err(); err != nil {
		return nil, err
	}
	req.trim()
	if err := s.validate.Struct(req); err != nil {
		return nil, err
	}
	if timeKey(req.EndTime) <= timeKey(req.StartTime) {
		return nil, apperr.Invalid("endTime", "must be after startTime")
	}

	a := &Appointment{
		PatientID:       uuid.MustParse(req.PatientID),
		DoctorID:        p.ID,
		AppointmentDate: req.AppointmentDate,
		StartTime:       req.StartTime,
		EndTime:         req.EndTime,
		Status:          req.Status,
		Reason:          req.Reason,
		Notes:           req.Notes,
	}
	if a.Status == "" {
		a.Status = StatusScheduled
	}
	if p.Seeding && req.DoctorID != "" {
		a.DoctorID = req.DoctorID
	}

	if err := s.records.Create(ctx, p, a); err != nil {
		return nil, err
	}
	return a, nil
}

// UpdateAppointment applies only the keys present in req. Status and notes
// changes need limited write access, anything else needs write.
func (s *Service) UpdateAppointment(ctx context.Context, p *auth.Principal, id uuid.UUID, req UpdateRequest) (*Appointment, error) {
	return s.records.Update(ctx, p, id, req.Required(), func(a *Appointment) error {
		var patch validation.Patch
		if req.PatientID.Set {
			pid, err := uuid.Parse(strings.TrimSpace(req.PatientID.Value))
			if err != nil {
				patch.Add("patientId", "must be a valid UUID")
			} else {
				a.PatientID = pid
			}
		}
		patch.Required("appointmentDate", req.AppointmentDate, &a.AppointmentDate, validation.Date)
		patch.Required("startTime", req.StartTime, &a.StartTime, validation.Time)
		patch.Required("endTime", req.EndTime, &a.EndTime, validation.Time)
		patch.Required("status", req.Status, &a.Status, validation.OneOf(statuses...))
		patch.Required("reason", req.Reason, &a.Reason, validation.MaxLen(200))
		if (req.StartTime.Set || req.EndTime.Set) && timeKey(a.EndTime) <= timeKey(a.StartTime) {
			patch.Add("endTime", "must be after startTime")
		}
		if err := patch.Err(); err != nil {
			return err
		}
		req.Notes.Apply(&a.Notes)
		req.DoctorID.Apply(&a.DoctorID)
		return nil
	})
}

func (s *Service) DeleteAppointment(ctx context.Context, p *auth.Principal, id uuid.UUID) error {
	return s.records.Delete(ctx, p, id)
}
