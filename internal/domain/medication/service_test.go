package medication

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

type mockMedicationRepo struct {
	meds map[uuid.UUID]*Medication
}

func newMockMedicationRepo() *mockMedicationRepo {
	return &mockMedicationRepo{meds: make(map[uuid.UUID]*Medication)}
}

func (m *mockMedicationRepo) Create(_ context.Context, med *Medication) error {
	if med.ID == uuid.Nil {
		med.ID = uuid.New()
	}
	cp := *med
	m.meds[med.ID] = &cp
	return nil
}

func (m *mockMedicationRepo) GetByID(_ context.Context, id uuid.UUID) (*Medication, error) {
	med, ok := m.meds[id]
	if !ok {
		return nil, apperr.NotFound("medication", id.String())
	}
	cp := *med
	return &cp, nil
}

func (m *mockMedicationRepo) Update(_ context.Context, med *Medication) error {
	cp := *med
	m.meds[med.ID] = &cp
	return nil
}

func (m *mockMedicationRepo) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := m.meds[id]; !ok {
		return apperr.NotFound("medication", id.String())
	}
	delete(m.meds, id)
	return nil
}

func (m *mockMedicationRepo) List(_ context.Context, q records.Query) ([]*Medication, int, error) {
	var all []*Medication
	for _, med := range m.meds {
		if q.OwnerID != "" && med.PrescribedBy != q.OwnerID {
			continue
		}
		if p := q.Filters.Get("patientId"); p != "" && med.PatientID.String() != p {
			continue
		}
		all = append(all, med)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].StartDate > all[j].StartDate })
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
	admin     = auth.NewPrincipal("admin-1", auth.RoleAdmin)
	doctorA   = auth.NewPrincipal("doc-a", auth.RoleDoctor)
	doctorB   = auth.NewPrincipal("doc-b", auth.RoleDoctor)
	nurse     = auth.NewPrincipal("nurse-1", auth.RoleNurse)
	patientID = uuid.New()
)

func newTestService() *Service {
	return NewService(newMockMedicationRepo(), passTx{}, zerolog.Nop())
}

func validRequest() CreateRequest {
	return CreateRequest{
		PatientID: patientID.String(),
		Name:      "Lisinopril",
		Dosage:    "10mg",
		Frequency: "Once daily",
		StartDate: "2024-01-15",
	}
}

func create(t *testing.T, svc *Service, p *auth.Principal, mutate func(*CreateRequest)) *Medication {
	t.Helper()
	req := validRequest()
	if mutate != nil {
		mutate(&req)
	}
	m, err := svc.CreateMedication(context.Background(), p, req)
	if err != nil {
		t.Fatalf("create medication: %v", err)
	}
	return m
}

func ptr(s string) *string { return &s }

func hasField(err error, field string) bool {
	ae, ok := err.(*apperr.Error)
	if !ok {
		return false
	}
	for _, f := range ae.Fields {
		if f.Field == field {
			return true
		}
	}
	return false
}

func TestCreateMedication_StampsPrescriber(t *testing.T) {
	svc := newTestService()
	m := create(t, svc, doctorA, func(r *CreateRequest) { r.PrescribedBy = doctorB.ID })
	if m.PrescribedBy != doctorA.ID {
		t.Errorf("expected prescriber %s, got %s", doctorA.ID, m.PrescribedBy)
	}
	if m.EndDate != nil {
		t.Errorf("expected nil end date, got %v", *m.EndDate)
	}
}

func TestCreateMedication_BlankEndDateIsNull(t *testing.T) {
	svc := newTestService()
	m := create(t, svc, doctorA, func(r *CreateRequest) { r.EndDate = ptr("  ") })
	if m.EndDate != nil {
		t.Errorf("expected blank end date to be dropped, got %q", *m.EndDate)
	}
}

func TestCreateMedication_Validation(t *testing.T) {
	svc := newTestService()
	tests := []struct {
		name   string
		mutate func(*CreateRequest)
		field  string
	}{
		{"missing name", func(r *CreateRequest) { r.Name = " " }, "name"},
		{"bad patient", func(r *CreateRequest) { r.PatientID = "nope" }, "patientId"},
		{"bad start", func(r *CreateRequest) { r.StartDate = "15/01/2024" }, "startDate"},
		{"bad end", func(r *CreateRequest) { r.EndDate = ptr("soon") }, "endDate"},
		{"end before start", func(r *CreateRequest) { r.EndDate = ptr("2024-01-01") }, "endDate"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validRequest()
			tt.mutate(&req)
			_, err := svc.CreateMedication(context.Background(), doctorA, req)
			if !apperr.Is(err, apperr.KindValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
			if !hasField(err, tt.field) {
				t.Errorf("expected error on %s, got %v", tt.field, err)
			}
		})
	}
}

func TestCreateMedication_NurseForbidden(t *testing.T) {
	svc := newTestService()
	_, err := svc.CreateMedication(context.Background(), nurse, validRequest())
	if !apperr.Is(err, apperr.KindForbidden) {
		t.Errorf("expected forbidden, got %v", err)
	}
}

func TestListMedications_ScopedToPrescriber(t *testing.T) {
	svc := newTestService()
	create(t, svc, doctorA, nil)
	create(t, svc, doctorA, func(r *CreateRequest) { r.StartDate = "2024-03-01" })
	create(t, svc, doctorB, nil)

	page, err := svc.ListMedications(context.Background(), doctorA, "", pagination.Request{Page: 1, PerPage: 10})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if page.Meta.Total != 2 {
		t.Fatalf("expected 2 medications, got %d", page.Meta.Total)
	}
	if page.Items[0].StartDate != "2024-03-01" {
		t.Errorf("expected newest first, got %s", page.Items[0].StartDate)
	}

	page, err = svc.ListMedications(context.Background(), admin, "", pagination.Request{Page: 1, PerPage: 10})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if page.Meta.Total != 3 {
		t.Errorf("expected admin to see 3, got %d", page.Meta.Total)
	}
}

func TestListMedications_BadPatientFilter(t *testing.T) {
	svc := newTestService()
	_, err := svc.ListMedications(context.Background(), doctorA, "xyz", pagination.Request{Page: 1, PerPage: 10})
	if !apperr.Is(err, apperr.KindValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestUpdateMedication(t *testing.T) {
	svc := newTestService()
	m := create(t, svc, doctorA, func(r *CreateRequest) { r.EndDate = ptr("2024-06-01") })

	t.Run("clears end date", func(t *testing.T) {
		req := UpdateRequest{EndDate: fields.Optional[string]{Set: true, Null: true}}
		got, err := svc.UpdateMedication(context.Background(), doctorA, m.ID, req)
		if err != nil {
			t.Fatalf("update: %v", err)
		}
		if got.EndDate != nil {
			t.Errorf("expected end date cleared, got %v", *got.EndDate)
		}
	})

	t.Run("end before start", func(t *testing.T) {
		req := UpdateRequest{EndDate: fields.Some("2023-12-31")}
		_, err := svc.UpdateMedication(context.Background(), doctorA, m.ID, req)
		if !apperr.Is(err, apperr.KindValidation) {
			t.Errorf("expected validation error, got %v", err)
		}
	})

	t.Run("other doctor", func(t *testing.T) {
		req := UpdateRequest{Dosage: fields.Some("20mg")}
		_, err := svc.UpdateMedication(context.Background(), doctorB, m.ID, req)
		if !apperr.Is(err, apperr.KindForbidden) {
			t.Errorf("expected forbidden, got %v", err)
		}
	})

	t.Run("nurse changes dosage", func(t *testing.T) {
		req := UpdateRequest{Dosage: fields.Some("20mg")}
		_, err := svc.UpdateMedication(context.Background(), nurse, m.ID, req)
		if !apperr.Is(err, apperr.KindForbidden) {
			t.Errorf("expected forbidden, got %v", err)
		}
	})
}

func TestUpdateMedication_LengthLimits(t *testing.T) {
	svc := newTestService()
	m := create(t, svc, doctorA, nil)

	_, err := svc.UpdateMedication(context.Background(), doctorA, m.ID, UpdateRequest{
		Name:      fields.Some(strings.Repeat("n", 101)),
		Dosage:    fields.Some(strings.Repeat("d", 51)),
		Frequency: fields.Some(strings.Repeat("f", 101)),
	})
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	for _, f := range []string{"name", "dosage", "frequency"} {
		if !hasField(err, f) {
			t.Errorf("expected %s in %v", f, err)
		}
	}

	got, err := svc.GetMedication(context.Background(), doctorA, m.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Name != m.Name || got.Dosage != m.Dosage {
		t.Errorf("rejected update was stored: %+v", got)
	}
}

func TestDeleteMedication_RequiresDelete(t *testing.T) {
	svc := newTestService()
	m := create(t, svc, doctorA, nil)

	if err := svc.DeleteMedication(context.Background(), doctorA, m.ID); !apperr.Is(err, apperr.KindForbidden) {
		t.Errorf("expected forbidden for doctor, got %v", err)
	}
	if err := svc.DeleteMedication(context.Background(), admin, m.ID); err != nil {
		t.Fatalf("admin delete: %v", err)
	}
	if _, err := svc.GetMedication(context.Background(), admin, m.ID); !apperr.Is(err, apperr.KindNotFound) {
		t.Errorf("expected not found after delete, got %v", err)
	}
}
