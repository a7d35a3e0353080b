package clinical

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

type mockRecordRepo struct {
	recs map[uuid.UUID]*MedicalRecord
}

func newMockRecordRepo() *mockRecordRepo {
	return &mockRecordRepo{recs: make(map[uuid.UUID]*MedicalRecord)}
}

func (m *mockRecordRepo) Create(_ context.Context, r *MedicalRecord) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	cp := *r
	m.recs[r.ID] = &cp
	return nil
}

func (m *mockRecordRepo) GetByID(_ context.Context, id uuid.UUID) (*MedicalRecord, error) {
	r, ok := m.recs[id]
	if !ok {
		return nil, apperr.NotFound("medical record", id.String())
	}
	cp := *r
	return &cp, nil
}

func (m *mockRecordRepo) Update(_ context.Context, r *MedicalRecord) error {
	cp := *r
	m.recs[r.ID] = &cp
	return nil
}

func (m *mockRecordRepo) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := m.recs[id]; !ok {
		return apperr.NotFound("medical record", id.String())
	}
	delete(m.recs, id)
	return nil
}

func (m *mockRecordRepo) DeleteByPatient(_ context.Context, patientID uuid.UUID) error {
	for id, r := range m.recs {
		if r.PatientID == patientID {
			delete(m.recs, id)
		}
	}
	return nil
}

func (m *mockRecordRepo) List(_ context.Context, q records.Query) ([]*MedicalRecord, int, error) {
	var all []*MedicalRecord
	for _, r := range m.recs {
		if q.OwnerID != "" && r.DoctorID != q.OwnerID {
			continue
		}
		if p := q.Filters.Get("patientId"); p != "" && r.PatientID.String() != p {
			continue
		}
		all = append(all, r)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].VisitDate > all[j].VisitDate })
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

func newTestService() (*Service, *mockRecordRepo) {
	repo := newMockRecordRepo()
	return NewService(repo, passTx{}, zerolog.Nop()), repo
}

func validRequest() CreateRequest {
	return CreateRequest{
		PatientID:      patientID.String(),
		VisitDate:      "2024-04-10",
		ChiefComplaint: "Persistent cough",
		Diagnosis:      "Acute bronchitis",
		TreatmentPlan:  "Rest and fluids",
	}
}

func create(t *testing.T, svc *Service, p *auth.Principal, mutate func(*CreateRequest)) *MedicalRecord {
	t.Helper()
	req := validRequest()
	if mutate != nil {
		mutate(&req)
	}
	rec, err := svc.CreateMedicalRecord(context.Background(), p, req)
	if err != nil {
		t.Fatalf("create medical record: %v", err)
	}
	return rec
}

func TestCreateMedicalRecord(t *testing.T) {
	svc, _ := newTestService()
	rec := create(t, svc, doctorA, func(r *CreateRequest) {
		r.FollowUpNeeded = true
		r.DoctorID = doctorB.ID
	})
	if rec.DoctorID != doctorA.ID {
		t.Errorf("expected doctor %s, got %s", doctorA.ID, rec.DoctorID)
	}
	if !rec.FollowUpNeeded {
		t.Error("expected follow-up flag to be kept")
	}
}

func TestCreateMedicalRecord_Validation(t *testing.T) {
	svc, _ := newTestService()
	req := CreateRequest{PatientID: "x", VisitDate: "April"}
	_, err := svc.CreateMedicalRecord(context.Background(), doctorA, req)
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if n := len(err.(*apperr.Error).Fields); n != 5 {
		t.Errorf("expected 5 field errors, got %d: %v", n, err)
	}
}

func TestCreateMedicalRecord_ReceptionistForbidden(t *testing.T) {
	svc, _ := newTestService()
	_, err := svc.CreateMedicalRecord(context.Background(), auth.NewPrincipal("desk", auth.RoleReceptionist), validRequest())
	if !apperr.Is(err, apperr.KindForbidden) {
		t.Errorf("expected forbidden, got %v", err)
	}
}

func TestListMedicalRecords_NewestFirstAndScoped(t *testing.T) {
	svc, _ := newTestService()
	create(t, svc, doctorA, func(r *CreateRequest) { r.VisitDate = "2024-01-01" })
	create(t, svc, doctorA, func(r *CreateRequest) { r.VisitDate = "2024-05-01" })
	create(t, svc, doctorB, nil)

	page, err := svc.ListMedicalRecords(context.Background(), doctorA, patientID.String(), pagination.Request{Page: 1, PerPage: 10})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if page.Meta.Total != 2 || page.Items[0].VisitDate != "2024-05-01" {
		t.Errorf("unexpected page: total=%d first=%+v", page.Meta.Total, page.Items[0])
	}

	page, err = svc.ListMedicalRecords(context.Background(), auth.NewPrincipal("pat", auth.RolePatient), "", pagination.Request{Page: 1, PerPage: 10})
	if err != nil {
		t.Fatalf("list as patient: %v", err)
	}
	if page.Meta.Total != 0 || page.Meta.TotalPages != 1 {
		t.Errorf("expected empty single page, got %+v", page.Meta)
	}
}

func TestUpdateMedicalRecord(t *testing.T) {
	svc, _ := newTestService()
	rec := create(t, svc, doctorA, nil)

	got, err := svc.UpdateMedicalRecord(context.Background(), doctorA, rec.ID, UpdateRequest{
		FollowUpNeeded: fields.Some(true),
		Diagnosis:      fields.Some("Pneumonia"),
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if !got.FollowUpNeeded || got.Diagnosis != "Pneumonia" {
		t.Errorf("update not applied: %+v", got)
	}

	_, err = svc.UpdateMedicalRecord(context.Background(), doctorA, rec.ID, UpdateRequest{
		FollowUpNeeded: fields.Optional[bool]{Set: true, Null: true},
		VisitDate:      fields.Some("yesterday"),
	})
	if !apperr.Is(err, apperr.KindValidation) || len(err.(*apperr.Error).Fields) != 2 {
		t.Errorf("expected 2 field errors, got %v", err)
	}

	_, err = svc.UpdateMedicalRecord(context.Background(), doctorA, rec.ID, UpdateRequest{DoctorID: fields.Some(doctorB.ID)})
	if !apperr.Is(err, apperr.KindValidation) {
		t.Errorf("expected owner change to be rejected, got %v", err)
	}
}

func TestUpdateMedicalRecord_ChiefComplaintTooLong(t *testing.T) {
	svc, _ := newTestService()
	rec := create(t, svc, doctorA, nil)

	_, err := svc.UpdateMedicalRecord(context.Background(), doctorA, rec.ID, UpdateRequest{
		ChiefComplaint: fields.Some(strings.Repeat("c", 250)),
	})
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	fe := err.(*apperr.Error).Fields
	if len(fe) != 1 || fe[0].Field != "chiefComplaint" || fe[0].Message != "must be at most 200 characters" {
		t.Errorf("unexpected field errors %+v", fe)
	}
}

func TestUpdateMedicalRecord_NurseNeedsOwnership(t *testing.T) {
	svc, _ := newTestService()
	rec := create(t, svc, doctorA, nil)

	_, err := svc.UpdateMedicalRecord(context.Background(), nurse, rec.ID, UpdateRequest{Notes: fields.Some("checked vitals")})
	if !apperr.Is(err, apperr.KindForbidden) {
		t.Errorf("expected forbidden, got %v", err)
	}

	_, err = svc.UpdateMedicalRecord(context.Background(), nurse, rec.ID, UpdateRequest{Diagnosis: fields.Some("x")})
	if !apperr.Is(err, apperr.KindForbidden) {
		t.Errorf("expected forbidden for diagnosis change, got %v", err)
	}
}

func TestDeleteByPatient_AsCascade(t *testing.T) {
	svc, repo := newTestService()
	create(t, svc, doctorA, nil)
	create(t, svc, doctorB, nil)
	other := create(t, svc, doctorA, func(r *CreateRequest) { r.PatientID = uuid.NewString() })

	if err := repo.DeleteByPatient(context.Background(), patientID); err != nil {
		t.Fatalf("delete by patient: %v", err)
	}
	if len(repo.recs) != 1 {
		t.Fatalf("expected 1 remaining record, got %d", len(repo.recs))
	}
	if _, ok := repo.recs[other.ID]; !ok {
		t.Error("expected other patient's record to survive")
	}
}
