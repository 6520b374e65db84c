package staff

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jashmhta/HMSSSS-sub000/internal/platform/apperr"
	"github.com/jashmhta/HMSSSS-sub000/internal/platform/cache"
	"github.com/jashmhta/HMSSSS-sub000/internal/platform/queue"
	"github.com/jashmhta/HMSSSS-sub000/internal/platform/queue/queuetest"
)

// -- Mock Repositories --

type mockDepartmentRepo struct {
	items map[uuid.UUID]*Department
}

func newMockDepartmentRepo() *mockDepartmentRepo {
	return &mockDepartmentRepo{items: make(map[uuid.UUID]*Department)}
}

func (m *mockDepartmentRepo) Create(_ context.Context, d *Department) error {
	for _, existing := range m.items {
		if existing.Name == d.Name {
			return apperr.Conflict("department %q already exists", d.Name)
		}
		if existing.Code == d.Code {
			return apperr.Conflict("department code %q already exists", d.Code)
		}
	}
	d.ID = uuid.New()
	m.items[d.ID] = d
	return nil
}

func (m *mockDepartmentRepo) GetByID(_ context.Context, id uuid.UUID) (*Department, error) {
	d, ok := m.items[id]
	if !ok {
		return nil, apperr.NotFound("department not found")
	}
	return d, nil
}

func (m *mockDepartmentRepo) Update(_ context.Context, d *Department) error {
	m.items[d.ID] = d
	return nil
}

func (m *mockDepartmentRepo) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := m.items[id]; !ok {
		return apperr.NotFound("department not found")
	}
	delete(m.items, id)
	return nil
}

func (m *mockDepartmentRepo) List(_ context.Context, _, _ int) ([]*Department, int, error) {
	var out []*Department
	for _, d := range m.items {
		out = append(out, d)
	}
	return out, len(out), nil
}

type mockMemberRepo struct {
	items map[uuid.UUID]*Member
	gets  int
}

func newMockMemberRepo() *mockMemberRepo {
	return &mockMemberRepo{items: make(map[uuid.UUID]*Member)}
}

func (m *mockMemberRepo) Create(_ context.Context, s *Member) error {
	for _, existing := range m.items {
		if existing.Email == s.Email {
			return apperr.Conflict("a staff member with this email already exists")
		}
		if s.LicenseNumber != nil && existing.LicenseNumber != nil && *existing.LicenseNumber == *s.LicenseNumber {
			return apperr.Conflict("license number is already registered")
		}
	}
	s.ID = uuid.New()
	cp := *s
	m.items[s.ID] = &cp
	return nil
}

func (m *mockMemberRepo) GetByID(_ context.Context, id uuid.UUID) (*Member, error) {
	m.gets++
	s, ok := m.items[id]
	if !ok {
		return nil, apperr.NotFound("staff member not found")
	}
	cp := *s
	return &cp, nil
}

func (m *mockMemberRepo) Update(_ context.Context, s *Member) error {
	cp := *s
	m.items[s.ID] = &cp
	return nil
}

func (m *mockMemberRepo) List(_ context.Context, f MemberFilter, _, _ int) ([]*Member, int, error) {
	var out []*Member
	for _, s := range m.items {
		if f.Role != "" && s.Role != f.Role {
			continue
		}
		out = append(out, s)
	}
	return out, len(out), nil
}

func (m *mockMemberRepo) ListLicensesExpiring(_ context.Context, before time.Time) ([]*Member, error) {
	var out []*Member
	for _, s := range m.items {
		if s.Status != StatusTerminated && s.LicenseExpiry != nil && !s.LicenseExpiry.After(before) {
			out = append(out, s)
		}
	}
	return out, nil
}

var testNow = time.Date(2024, 6, 15, 9, 0, 0, 0, time.UTC)

type fixture struct {
	svc     *Service
	depts   *mockDepartmentRepo
	members *mockMemberRepo
	events  *queuetest.Recorder
}

func newFixture() *fixture {
	f := &fixture{
		depts:   newMockDepartmentRepo(),
		members: newMockMemberRepo(),
		events:  &queuetest.Recorder{},
	}
	f.svc = NewService(f.depts, f.members, cache.NewMemory(), time.Minute, f.events, zerolog.Nop())
	f.svc.now = func() time.Time { return testNow }
	return f
}

func strPtr(s string) *string { return &s }

func doctorRequest() MemberRequest {
	return MemberRequest{
		FirstName:     "Gregory",
		LastName:      "House",
		Email:         "house@example.com",
		Role:          "doctor",
		LicenseNumber: strPtr("MD-1001"),
		LicenseExpiry: strPtr("2026-01-01"),
		HireDate:      "2020-02-01",
	}
}

func TestGenerateEmployeeID(t *testing.T) {
	id, err := GenerateEmployeeID()
	require.NoError(t, err)
	assert.Regexp(t, `^EMP\d{6}$`, id)
}

func TestCreateMember(t *testing.T) {
	f := newFixture()
	m, err := f.svc.CreateMember(context.Background(), doctorRequest())
	require.NoError(t, err)
	assert.Regexp(t, `^EMP\d{6}$`, m.EmployeeID)
	assert.Equal(t, StatusActive, m.Status)
}

func TestCreateMember_ClinicalLicenseRules(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(r *MemberRequest)
		wantErr string
	}{
		{"missing license", func(r *MemberRequest) { r.LicenseNumber = nil }, "license_number is required for role doctor"},
		{"blank license", func(r *MemberRequest) { r.LicenseNumber = strPtr("  ") }, "license_number is required for role doctor"},
		{"missing expiry", func(r *MemberRequest) { r.LicenseExpiry = nil }, "license_expiry is required for role doctor"},
		{"expired", func(r *MemberRequest) { r.LicenseExpiry = strPtr("2024-01-01") }, "license_expiry must be in the future"},
		{"future hire", func(r *MemberRequest) { r.HireDate = "2025-01-01" }, "hire_date cannot be in the future"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			req := doctorRequest()
			tt.mutate(&req)
			_, err := f.svc.CreateMember(context.Background(), req)
			assert.EqualError(t, err, tt.wantErr)
			assert.Equal(t, apperr.KindInvalid, apperr.KindOf(err))
		})
	}
}

func TestCreateMember_NonClinicalNeedsNoLicense(t *testing.T) {
	f := newFixture()
	req := doctorRequest()
	req.Role = "receptionist"
	req.LicenseNumber = nil
	req.LicenseExpiry = nil

	_, err := f.svc.CreateMember(context.Background(), req)
	assert.NoError(t, err)
}

func TestCreateMember_DuplicateLicense(t *testing.T) {
	f := newFixture()
	_, err := f.svc.CreateMember(context.Background(), doctorRequest())
	require.NoError(t, err)

	req := doctorRequest()
	req.Email = "other@example.com"
	_, err = f.svc.CreateMember(context.Background(), req)
	assert.EqualError(t, err, "license number is already registered")
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
}

func TestCreateMember_UnknownDepartment(t *testing.T) {
	f := newFixture()
	req := doctorRequest()
	id := uuid.New()
	req.DepartmentID = &id

	_, err := f.svc.CreateMember(context.Background(), req)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestCreateDepartment_Duplicate(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	d, err := f.svc.CreateDepartment(ctx, DepartmentRequest{Name: "Cardiology", Code: "card"})
	require.NoError(t, err)
	assert.Equal(t, "CARD", d.Code)
	assert.True(t, d.IsActive)

	_, err = f.svc.CreateDepartment(ctx, DepartmentRequest{Name: "Cardiology", Code: "CARD2"})
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
}

func TestUpdateMember_Terminated(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	m, err := f.svc.CreateMember(ctx, doctorRequest())
	require.NoError(t, err)
	_, err = f.svc.SetStatus(ctx, m.ID, StatusTerminated)
	require.NoError(t, err)

	_, err = f.svc.UpdateMember(ctx, m.ID, doctorRequest())
	assert.EqualError(t, err, "terminated staff members cannot be updated")
}

func TestSetStatus_Transitions(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	m, err := f.svc.CreateMember(ctx, doctorRequest())
	require.NoError(t, err)

	_, err = f.svc.SetStatus(ctx, m.ID, StatusOnLeave)
	require.NoError(t, err)
	_, err = f.svc.SetStatus(ctx, m.ID, StatusActive)
	require.NoError(t, err)
	_, err = f.svc.SetStatus(ctx, m.ID, StatusTerminated)
	require.NoError(t, err)

	_, err = f.svc.SetStatus(ctx, m.ID, StatusActive)
	assert.EqualError(t, err, "invalid status transition from terminated to active")
}

func TestGetMember_CachedAndInvalidated(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	m, err := f.svc.CreateMember(ctx, doctorRequest())
	require.NoError(t, err)

	_, err = f.svc.GetMember(ctx, m.ID)
	require.NoError(t, err)
	_, err = f.svc.GetMember(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, f.members.gets)

	_, err = f.svc.SetStatus(ctx, m.ID, StatusOnLeave)
	require.NoError(t, err)
	got, err := f.svc.GetMember(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusOnLeave, got.Status)
}

func TestNotifyExpiringLicenses(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	soon := doctorRequest()
	soon.LicenseExpiry = strPtr("2024-07-01")
	_, err := f.svc.CreateMember(ctx, soon)
	require.NoError(t, err)

	later := doctorRequest()
	later.Email = "wilson@example.com"
	later.LicenseNumber = strPtr("MD-2002")
	_, err = f.svc.CreateMember(ctx, later)
	require.NoError(t, err)

	require.NoError(t, f.svc.NotifyExpiringLicenses(ctx))
	events := f.events.Topic(queue.TopicStaffLicenseExpiring)
	require.Len(t, events, 1)
	ev := events[0].(queue.LicenseExpiring)
	assert.Equal(t, "MD-1001", ev.LicenseNumber)
	assert.Equal(t, "Gregory House", ev.Name)
}

func TestExpiringLicenses_DaysRange(t *testing.T) {
	f := newFixture()
	_, err := f.svc.ExpiringLicenses(context.Background(), 0)
	assert.Equal(t, apperr.KindInvalid, apperr.KindOf(err))
}
