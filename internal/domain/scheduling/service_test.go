package scheduling

import (
	"context"
	"sort"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/records/internal/platform/apperr"
	"github.com/ehr/records/internal/platform/auth"
	"github.com/ehr/records/internal/platform/records"
	"github.com/ehr/records/pkg/fields"
	"github.com/ehr/records/pkg/pagination"
)

type mockAppointmentRepo struct {
	appts     map[uuid.UUID]*Appointment
	lastQuery records.Query
}

func newMockAppointmentRepo() *mockAppointmentRepo {
	return &mockAppointmentRepo{appts: make(map[uuid.UUID]*Appointment)}
}

func (m *mockAppointmentRepo) Create(_ context.Context, a *Appointment) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	cp := *a
	m.appts[a.ID] = &cp
	return nil
}

func (m *mockAppointmentRepo) GetByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	a, ok := m.appts[id]
	if !ok {
		return nil, apperr.NotFound("appointment", id.String())
	}
	cp := *a
	return &cp, nil
}

func (m *mockAppointmentRepo) Update(_ context.Context, a *Appointment) error {
	cp := *a
	m.appts[a.ID] = &cp
	return nil
}

func (m *mockAppointmentRepo) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := m.appts[id]; !ok {
		return apperr.NotFound("appointment", id.String())
	}
	delete(m.appts, id)
	return nil
}

func (m *mockAppointmentRepo) List(_ context.Context, q records.Query) ([]*Appointment, int, error) {
	m.lastQuery = q
	var all []*Appointment
	for _, a := range m.appts {
		if q.OwnerID != "" && a.DoctorID != q.OwnerID {
			continue
		}
		if d := q.Filters.Get("date"); d != "" && a.AppointmentDate != d {
			continue
		}
		if p := q.Filters.Get("patientId"); p != "" && a.PatientID.String() != p {
			continue
		}
		all = append(all, a)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].AppointmentDate != all[j].AppointmentDate {
			return all[i].AppointmentDate < all[j].AppointmentDate
		}
		return timeKey(all[i].StartTime) < timeKey(all[j].StartTime)
	})
	total := len(all)
	if q.Offset >= total {
		return nil, total, nil
	}
	end := q.Offset + q.Limit
	if end > total {
		end = total
	}
	return all[q.Offset:end], total, nil
}

type passTx struct{}

func (passTx) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

var (
	admin        = auth.NewPrincipal("admin-1", auth.RoleAdmin)
	doctorA      = auth.NewPrincipal("doc-a", auth.RoleDoctor)
	doctorB      = auth.NewPrincipal("doc-b", auth.RoleDoctor)
	receptionist = auth.NewPrincipal("desk-1", auth.RoleReceptionist)
	patientID    = uuid.New()
)

func newTestService() (*Service, *mockAppointmentRepo) {
	repo := newMockAppointmentRepo()
	return NewService(repo, passTx{}, zerolog.Nop()), repo
}

func validRequest() CreateRequest {
	return CreateRequest{
		PatientID:       patientID.String(),
		AppointmentDate: "2024-06-01",
		StartTime:       "09:00",
		EndTime:         "09:30",
		Reason:          "Annual checkup",
	}
}

func create(t *testing.T, svc *Service, p *auth.Principal, mutate func(*CreateRequest)) *Appointment {
	t.Helper()
	req := validRequest()
	if mutate != nil {
		mutate(&req)
	}
	a, err := svc.CreateAppointment(context.Background(), p, req)
	if err != nil {
		t.Fatalf("create appointment: %v", err)
	}
	return a
}

func TestCreateAppointment_Defaults(t *testing.T) {
	svc, _ := newTestService()
	a := create(t, svc, doctorA, func(r *CreateRequest) { r.DoctorID = doctorB.ID })
	if a.DoctorID != doctorA.ID {
		t.Errorf("expected doctor stamped from principal, got %s", a.DoctorID)
	}
	if a.Status != StatusScheduled {
		t.Errorf("expected default status Scheduled, got %s", a.Status)
	}
}

func TestCreateAppointment_SeedingNamesDoctor(t *testing.T) {
	svc, _ := newTestService()
	a := create(t, svc, auth.SeedingPrincipal("seed"), func(r *CreateRequest) { r.DoctorID = doctorB.ID })
	if a.DoctorID != doctorB.ID {
		t.Errorf("expected seeded doctor %s, got %s", doctorB.ID, a.DoctorID)
	}
}

func TestCreateAppointment_Validation(t *testing.T) {
	svc, _ := newTestService()
	_, err := svc.CreateAppointment(context.Background(), doctorA, CreateRequest{
		PatientID: "nope", AppointmentDate: "June 1", StartTime: "9am", Status: "Pending",
	})
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if n := len(err.(*apperr.Error).Fields); n != 6 {
		t.Errorf("expected 6 field errors, got %d: %+v", n, err.(*apperr.Error).Fields)
	}

	_, err = svc.CreateAppointment(context.Background(), doctorA, func() CreateRequest {
		r := validRequest()
		r.EndTime = "08:59:59"
		return r
	}())
	if !apperr.Is(err, apperr.KindValidation) {
		t.Errorf("expected end before start rejected, got %v", err)
	}
}

func TestCreateAppointment_ReceptionistDenied(t *testing.T) {
	svc, _ := newTestService()
	_, err := svc.CreateAppointment(context.Background(), receptionist, validRequest())
	if !apperr.Is(err, apperr.KindForbidden) {
		t.Errorf("expected forbidden, got %v", err)
	}
}

func TestListAppointments_ScopedFilteredOrdered(t *testing.T) {
	svc, repo := newTestService()
	create(t, svc, doctorA, func(r *CreateRequest) { r.StartTime, r.EndTime = "14:00", "14:30" })
	create(t, svc, doctorA, func(r *CreateRequest) { r.StartTime, r.EndTime = "08:00", "08:30" })
	create(t, svc, doctorA, func(r *CreateRequest) { r.AppointmentDate = "2024-06-02" })
	create(t, svc, doctorB, nil)

	page, err := svc.ListAppointments(context.Background(), doctorA, ListFilter{Date: "2024-06-01"}, pagination.Request{Page: 1, PerPage: 10})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if repo.lastQuery.OwnerID != doctorA.ID {
		t.Errorf("expected owner pre-filter, got %q", repo.lastQuery.OwnerID)
	}
	if len(page.Items) != 2 || page.Items[0].StartTime != "08:00" {
		t.Errorf("expected two same-day appointments ordered by start time")
	}

	page, _ = svc.ListAppointments(context.Background(), admin, ListFilter{PatientID: patientID.String()}, pagination.Request{Page: 1, PerPage: 10})
	if page.Meta.Total != 4 {
		t.Errorf("expected admin to see all 4, got %d", page.Meta.Total)
	}
}

func TestListAppointments_BadFilters(t *testing.T) {
	svc, _ := newTestService()
	_, err := svc.ListAppointments(context.Background(), doctorA, ListFilter{Date: "01/06/2024", PatientID: "x"}, pagination.Request{Page: 1, PerPage: 10})
	if !apperr.Is(err, apperr.KindValidation) || len(err.(*apperr.Error).Fields) != 2 {
		t.Errorf("expected two filter errors, got %v", err)
	}
}

func TestGetAppointment_ForbiddenForOtherDoctor(t *testing.T) {
	svc, _ := newTestService()
	a := create(t, svc, doctorB, nil)
	if _, err := svc.GetAppointment(context.Background(), doctorA, a.ID); !apperr.Is(err, apperr.KindForbidden) {
		t.Errorf("expected forbidden, got %v", err)
	}
}

func TestUpdateAppointment_StatusIsLimitedField(t *testing.T) {
	svc, _ := newTestService()
	a := create(t, svc, auth.SeedingPrincipal("seed"), func(r *CreateRequest) { r.DoctorID = receptionist.ID })

	got, err := svc.UpdateAppointment(context.Background(), receptionist, a.ID, UpdateRequest{
		Status: fields.Some(StatusCompleted), Notes: fields.Some("arrived late"),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Status != StatusCompleted || got.Notes != "arrived late" || got.Reason != "Annual checkup" {
		t.Errorf("unexpected appointment: %+v", got)
	}

	_, err = svc.UpdateAppointment(context.Background(), receptionist, a.ID, UpdateRequest{StartTime: fields.Some("10:00")})
	if !apperr.Is(err, apperr.KindForbidden) {
		t.Errorf("expected forbidden reschedule, got %v", err)
	}
}

func TestUpdateAppointment_Validation(t *testing.T) {
	svc, _ := newTestService()
	a := create(t, svc, doctorA, nil)

	_, err := svc.UpdateAppointment(context.Background(), doctorA, a.ID, UpdateRequest{
		Status:  fields.Some("Pending"),
		EndTime: fields.Some("08:00"),
	})
	if !apperr.Is(err, apperr.KindValidation) || len(err.(*apperr.Error).Fields) != 2 {
		t.Errorf("expected status and endTime errors, got %v", err)
	}

	got, err := svc.UpdateAppointment(context.Background(), doctorA, a.ID, UpdateRequest{
		StartTime: fields.Some("10:00"), EndTime: fields.Some("10:45:00"),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.StartTime != "10:00" || got.EndTime != "10:45:00" {
		t.Errorf("unexpected times: %s-%s", got.StartTime, got.EndTime)
	}
}

func TestUpdateAppointment_ReasonTooLong(t *testing.T) {
	svc, _ := newTestService()
	a := create(t, svc, doctorA, nil)

	_, err := svc.UpdateAppointment(context.Background(), doctorA, a.ID, UpdateRequest{
		Reason: fields.Some(strings.Repeat("r", 201)),
	})
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	fe := err.(*apperr.Error).Fields
	if len(fe) != 1 || fe[0].Field != "reason" || fe[0].Message != "must be at most 200 characters" {
		t.Errorf("unexpected field errors %+v", fe)
	}

	if _, err := svc.UpdateAppointment(context.Background(), doctorA, a.ID, UpdateRequest{
		Reason: fields.Some(strings.Repeat("r", 200)),
	}); err != nil {
		t.Errorf("expected 200 characters accepted, got %v", err)
	}
}

func TestDeleteAppointment(t *testing.T) {
	svc, repo := newTestService()
	a := create(t, svc, doctorA, nil)

	if err := svc.DeleteAppointment(context.Background(), doctorA, a.ID); !apperr.Is(err, apperr.KindForbidden) {
		t.Errorf("expected forbidden for doctor, got %v", err)
	}
	if err := svc.DeleteAppointment(context.Background(), admin, a.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(repo.appts) != 0 {
		t.Error("expected appointment removed")
	}
}
