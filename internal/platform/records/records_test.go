package records

import (
	"bytes"
	"context"
	"errors"
	"sort"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/records/internal/platform/apperr"
	"github.com/ehr/records/internal/platform/auth"
	"github.com/ehr/records/pkg/pagination"
)

type note struct {
	ID     uuid.UUID
	Owner  string
	Title  string
	Body   string
	Parent uuid.UUID
}

func (n *note) RecordID() uuid.UUID { return n.ID }
func (n *note) OwnerRef() string    { return n.Owner }

// mockNoteStore mirrors the behaviour of the SQL stores: owner pre-filter,
// title search, ordering by title.
type mockNoteStore struct {
	notes     map[uuid.UUID]*note
	lastQuery Query
	listErr   error
	updateErr error
}

func newMockNoteStore() *mockNoteStore {
	return &mockNoteStore{notes: make(map[uuid.UUID]*note)}
}

func (m *mockNoteStore) Create(_ context.Context, n *note) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	cp := *n
	m.notes[n.ID] = &cp
	return nil
}

func (m *mockNoteStore) GetByID(_ context.Context, id uuid.UUID) (*note, error) {
	n, ok := m.notes[id]
	if !ok {
		return nil, apperr.NotFound("note", id.String())
	}
	cp := *n
	return &cp, nil
}

func (m *mockNoteStore) Update(_ context.Context, n *note) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	cp := *n
	m.notes[n.ID] = &cp
	return nil
}

func (m *mockNoteStore) Delete(_ context.Context, id uuid.UUID) error {
	delete(m.notes, id)
	return nil
}

func (m *mockNoteStore) List(_ context.Context, q Query) ([]*note, int, error) {
	m.lastQuery = q
	if m.listErr != nil {
		return nil, 0, m.listErr
	}
	var all []*note
	for _, n := range m.notes {
		if q.OwnerID != "" && n.Owner != q.OwnerID {
			continue
		}
		if s := q.Filters.Get("search"); s != "" && !strings.Contains(strings.ToLower(n.Title), strings.ToLower(s)) {
			continue
		}
		all = append(all, n)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Title < all[j].Title })
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

type mockTx struct {
	depth    int
	maxDepth int
}

func (m *mockTx) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	m.depth++
	if m.depth > m.maxDepth {
		m.maxDepth = m.depth
	}
	defer func() { m.depth-- }()
	return fn(ctx)
}

var (
	admin   = auth.NewPrincipal("admin-1", auth.RoleAdmin)
	doctorA = auth.NewPrincipal("doc-a", auth.RoleDoctor)
	doctorB = auth.NewPrincipal("doc-b", auth.RoleDoctor)
	nurse   = auth.NewPrincipal("nurse-1", auth.RoleNurse)
	patient = auth.NewPrincipal("pat-1", auth.RolePatient)
)

func newTestService(opts ...Option[*note]) (*Service[*note], *mockNoteStore, *mockTx) {
	store := newMockNoteStore()
	tx := &mockTx{}
	return NewService[*note]("note", store, tx, zerolog.Nop(), opts...), store, tx
}

func seed(t *testing.T, store *mockNoteStore, owner, title string) *note {
	t.Helper()
	n := &note{ID: uuid.New(), Owner: owner, Title: title}
	if err := store.Create(context.Background(), n); err != nil {
		t.Fatalf("seed: %v", err)
	}
	return n
}

func firstPage(size int) pagination.Request {
	return pagination.Request{Page: 1, PerPage: size}
}

func TestGet_ForbiddenForOtherOwner(t *testing.T) {
	svc, store, _ := newTestService()
	n := seed(t, store, doctorB.ID, "b's note")

	for _, p := range []*auth.Principal{doctorA, nurse, patient} {
		_, err := svc.Get(context.Background(), p, n.ID)
		if !apperr.Is(err, apperr.KindForbidden) {
			t.Errorf("%s: expected forbidden, got %v", p.Role, err)
		}
	}
}

func TestGet_OwnerAndAdmin(t *testing.T) {
	svc, store, _ := newTestService()
	n := seed(t, store, doctorA.ID, "a's note")

	if _, err := svc.Get(context.Background(), doctorA, n.ID); err != nil {
		t.Errorf("owner: unexpected error: %v", err)
	}
	if _, err := svc.Get(context.Background(), admin, n.ID); err != nil {
		t.Errorf("admin: unexpected error: %v", err)
	}
}

func TestGet_NotFound(t *testing.T) {
	svc, _, _ := newTestService()
	_, err := svc.Get(context.Background(), doctorA, uuid.New())
	if !apperr.Is(err, apperr.KindNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestGet_NilPrincipalDenied(t *testing.T) {
	svc, store, _ := newTestService()
	n := seed(t, store, doctorA.ID, "x")
	_, err := svc.Get(context.Background(), nil, n.ID)
	if !apperr.Is(err, apperr.KindForbidden) {
		t.Errorf("expected forbidden for nil principal, got %v", err)
	}
}

func TestList_ScopedCallerPreFiltered(t *testing.T) {
	svc, store, _ := newTestService()
	seed(t, store, doctorA.ID, "a1")
	seed(t, store, doctorA.ID, "a2")
	seed(t, store, doctorB.ID, "b1")

	page, err := svc.List(context.Background(), doctorA, nil, firstPage(10))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.lastQuery.OwnerID != doctorA.ID {
		t.Errorf("expected owner pre-filter %s, got %q", doctorA.ID, store.lastQuery.OwnerID)
	}
	if page.Meta.Total != 2 || len(page.Items) != 2 {
		t.Errorf("expected 2 own notes, got total=%d items=%d", page.Meta.Total, len(page.Items))
	}
	for _, n := range page.Items {
		if n.Owner != doctorA.ID {
			t.Errorf("leaked note owned by %s", n.Owner)
		}
	}
}

func TestList_PatientSeesOnlyOwnRecord(t *testing.T) {
	svc, store, _ := newTestService()
	seed(t, store, patient.ID, "mine")
	seed(t, store, "pat-2", "theirs")
	seed(t, store, doctorA.ID, "doctor's")

	page, err := svc.List(context.Background(), patient, nil, firstPage(10))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(page.Items) != 1 || page.Items[0].Owner != patient.ID {
		t.Errorf("expected exactly the patient's own record, got %+v", page.Items)
	}
}

func TestList_AdminUnscoped(t *testing.T) {
	svc, store, _ := newTestService()
	seed(t, store, doctorA.ID, "a")
	seed(t, store, doctorB.ID, "b")

	page, err := svc.List(context.Background(), admin, Filters{}, firstPage(10))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.lastQuery.OwnerID != "" {
		t.Errorf("expected no owner filter for admin, got %q", store.lastQuery.OwnerID)
	}
	if page.Meta.Total != 2 {
		t.Errorf("expected 2, got %d", page.Meta.Total)
	}
}

func TestList_PaginationMeta(t *testing.T) {
	svc, store, _ := newTestService()
	for _, title := range []string{"a", "b", "c", "d", "e"} {
		seed(t, store, doctorA.ID, title)
	}

	page, err := svc.List(context.Background(), doctorA, nil, pagination.Request{Page: 2, PerPage: 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.lastQuery.Limit != 2 || store.lastQuery.Offset != 2 {
		t.Errorf("unexpected window: %+v", store.lastQuery)
	}
	if page.Items[0].Title != "c" || page.Items[1].Title != "d" {
		t.Errorf("unexpected page contents: %s, %s", page.Items[0].Title, page.Items[1].Title)
	}
	if page.Meta.TotalPages != 3 || !page.Meta.HasNext || !page.Meta.HasPrev {
		t.Errorf("unexpected meta: %+v", page.Meta)
	}
}

func TestList_FiltersPassedThrough(t *testing.T) {
	svc, store, _ := newTestService()
	seed(t, store, doctorA.ID, "Blood panel")
	seed(t, store, doctorA.ID, "X-ray")

	page, err := svc.List(context.Background(), doctorA, Filters{}.Set("search", "blood").Set("empty", ""), firstPage(10))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(page.Items) != 1 {
		t.Errorf("expected 1 match, got %d", len(page.Items))
	}
	if _, ok := store.lastQuery.Filters["empty"]; ok {
		t.Error("expected empty filter values to be dropped")
	}
}

func TestList_StorageFailure(t *testing.T) {
	svc, store, _ := newTestService()
	store.listErr = errors.New("connection reset")

	_, err := svc.List(context.Background(), admin, nil, firstPage(10))
	if !apperr.Is(err, apperr.KindStorage) {
		t.Errorf("expected storage error, got %v", err)
	}
}

func TestCreate(t *testing.T) {
	svc, store, tx := newTestService()

	n := &note{Owner: doctorA.ID, Title: "new"}
	if err := svc.Create(context.Background(), doctorA, n); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(store.notes) != 1 {
		t.Errorf("expected note stored")
	}
	if tx.maxDepth != 1 {
		t.Errorf("expected create inside a transaction")
	}
}

func TestCreate_Denied(t *testing.T) {
	svc, _, _ := newTestService()

	if err := svc.Create(context.Background(), nurse, &note{Owner: nurse.ID}); !apperr.Is(err, apperr.KindForbidden) {
		t.Errorf("nurse: expected forbidden, got %v", err)
	}
	if err := svc.Create(context.Background(), doctorA, &note{Owner: doctorB.ID}); !apperr.Is(err, apperr.KindForbidden) {
		t.Errorf("foreign owner: expected forbidden, got %v", err)
	}
	if err := svc.Create(context.Background(), admin, &note{}); !apperr.Is(err, apperr.KindValidation) {
		t.Errorf("missing owner: expected validation, got %v", err)
	}
}

func TestUpdate_OnlyMutatedFieldsChange(t *testing.T) {
	svc, store, _ := newTestService()
	n := seed(t, store, doctorA.ID, "title")
	store.notes[n.ID].Body = "body"

	got, err := svc.Update(context.Background(), doctorA, n.ID, auth.PermWrite, func(rec *note) error {
		rec.Body = "x"
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Body != "x" || got.Title != "title" || got.Owner != doctorA.ID {
		t.Errorf("unexpected result: %+v", got)
	}
	if store.notes[n.ID].Title != "title" {
		t.Error("expected untouched fields to be preserved in storage")
	}
}

func TestUpdate_OwnerImmutable(t *testing.T) {
	svc, store, _ := newTestService()
	n := seed(t, store, doctorA.ID, "title")

	_, err := svc.Update(context.Background(), admin, n.ID, auth.PermWrite, func(rec *note) error {
		rec.Owner = doctorB.ID
		return nil
	})
	if !apperr.Is(err, apperr.KindValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
	if store.notes[n.ID].Owner != doctorA.ID {
		t.Error("owner must not change")
	}
}

func TestUpdate_ScopeAndPermission(t *testing.T) {
	svc, store, _ := newTestService()
	n := seed(t, store, doctorB.ID, "title")
	own := seed(t, store, nurse.ID, "nurse note")

	noop := func(*note) error { return nil }
	if _, err := svc.Update(context.Background(), doctorA, n.ID, auth.PermWrite, noop); !apperr.Is(err, apperr.KindForbidden) {
		t.Errorf("other owner: expected forbidden, got %v", err)
	}
	if _, err := svc.Update(context.Background(), nurse, own.ID, auth.PermWrite, noop); !apperr.Is(err, apperr.KindForbidden) {
		t.Errorf("nurse full write: expected forbidden, got %v", err)
	}
	if _, err := svc.Update(context.Background(), nurse, own.ID, auth.PermLimitedWrite, noop); err != nil {
		t.Errorf("nurse limited write: unexpected error %v", err)
	}
}

func TestUpdate_StorageFailure(t *testing.T) {
	svc, store, _ := newTestService()
	n := seed(t, store, doctorA.ID, "title")
	store.updateErr = errors.New("disk full")

	_, err := svc.Update(context.Background(), doctorA, n.ID, auth.PermWrite, func(*note) error { return nil })
	if !apperr.Is(err, apperr.KindStorage) {
		t.Errorf("expected storage error, got %v", err)
	}
}

func TestDelete_RequiresDeletePermission(t *testing.T) {
	svc, store, _ := newTestService()
	n := seed(t, store, doctorA.ID, "title")

	if err := svc.Delete(context.Background(), doctorA, n.ID); !apperr.Is(err, apperr.KindForbidden) {
		t.Errorf("expected forbidden, got %v", err)
	}
	if err := svc.Delete(context.Background(), admin, n.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(store.notes) != 0 {
		t.Error("expected note deleted")
	}
}

func TestDelete_CascadeRunsInSavepoint(t *testing.T) {
	children := map[uuid.UUID][]string{}
	svc, store, tx := newTestService(WithCascade[*note]("children", func(_ context.Context, id uuid.UUID) error {
		delete(children, id)
		return nil
	}))
	n := seed(t, store, doctorA.ID, "parent")
	children[n.ID] = []string{"c1", "c2"}

	if err := svc.Delete(context.Background(), admin, n.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(children[n.ID]) != 0 {
		t.Error("expected dependents removed")
	}
	if tx.maxDepth != 2 {
		t.Errorf("expected cascade nested in the delete transaction, depth %d", tx.maxDepth)
	}
}

func TestDelete_CascadeFailureToleratedAndLogged(t *testing.T) {
	var buf bytes.Buffer
	store := newMockNoteStore()
	svc := NewService[*note]("note", store, &mockTx{}, zerolog.New(&buf),
		WithCascade[*note]("children", func(context.Context, uuid.UUID) error {
			return errors.New("constraint timeout")
		}))
	n := seed(t, store, doctorA.ID, "parent")

	if err := svc.Delete(context.Background(), admin, n.ID); err != nil {
		t.Fatalf("cascade failure must not fail the delete: %v", err)
	}
	if len(store.notes) != 0 {
		t.Error("expected parent deleted")
	}
	if !strings.Contains(buf.String(), "cascade delete failed") || !strings.Contains(buf.String(), `"level":"warn"`) {
		t.Errorf("expected warning log, got %s", buf.String())
	}
}

func TestGetFor_UsesRequiredPermission(t *testing.T) {
	svc, store, _ := newTestService()
	n := seed(t, store, nurse.ID, "nurse note")

	if _, err := svc.GetFor(context.Background(), nurse, n.ID, auth.PermLimitedWrite); err != nil {
		t.Errorf("expected limited write on own record, got %v", err)
	}
	if _, err := svc.GetFor(context.Background(), nurse, n.ID, auth.PermWrite); !apperr.Is(err, apperr.KindForbidden) {
		t.Errorf("expected forbidden for write, got %v", err)
	}
}
