package bloodbank

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jashmhta/HMSSSS-sub000/internal/platform/apperr"
	"github.com/jashmhta/HMSSSS-sub000/internal/platform/db"
	"github.com/jashmhta/HMSSSS-sub000/internal/platform/queue"
	"github.com/jashmhta/HMSSSS-sub000/internal/platform/queue/queuetest"
)

var testNow = time.Date(2024, 6, 15, 9, 0, 0, 0, time.UTC)

type mockDonorRepo struct{ items map[uuid.UUID]*Donor }

func (m *mockDonorRepo) Create(_ context.Context, d *Donor) error {
	d.ID = uuid.New()
	cp := *d
	m.items[d.ID] = &cp
	return nil
}

func (m *mockDonorRepo) GetByID(_ context.Context, id uuid.UUID) (*Donor, error) {
	d, ok := m.items[id]
	if !ok {
		return nil, apperr.NotFound("donor not found")
	}
	cp := *d
	return &cp, nil
}

func (m *mockDonorRepo) Update(_ context.Context, d *Donor) error {
	cp := *d
	m.items[d.ID] = &cp
	return nil
}

func (m *mockDonorRepo) List(_ context.Context, f DonorFilter, _, _ int) ([]*Donor, int, error) {
	var out []*Donor
	for _, d := range m.items {
		if f.BloodType != "" && d.BloodType != f.BloodType {
			continue
		}
		out = append(out, d)
	}
	return out, len(out), nil
}

type mockDonationRepo struct{ items map[uuid.UUID]*Donation }

func (m *mockDonationRepo) Create(_ context.Context, d *Donation) error {
	d.ID = uuid.New()
	cp := *d
	m.items[d.ID] = &cp
	return nil
}

func (m *mockDonationRepo) GetByID(_ context.Context, id uuid.UUID) (*Donation, error) {
	d, ok := m.items[id]
	if !ok {
		return nil, apperr.NotFound("donation not found")
	}
	cp := *d
	return &cp, nil
}

func (m *mockDonationRepo) Update(_ context.Context, d *Donation) error {
	cp := *d
	m.items[d.ID] = &cp
	return nil
}

func (m *mockDonationRepo) ListByDonor(_ context.Context, donorID uuid.UUID, _, _ int) ([]*Donation, int, error) {
	var out []*Donation
	for _, d := range m.items {
		if d.DonorID == donorID {
			out = append(out, d)
		}
	}
	return out, len(out), nil
}

type mockUnitRepo struct {
	items      map[uuid.UUID]*Unit
	collisions int
	onLock     func(*Unit)
}

func (m *mockUnitRepo) Create(_ context.Context, u *Unit) error {
	if m.collisions > 0 {
		m.collisions--
		return errDuplicateUnitNumber
	}
	u.ID = uuid.New()
	cp := *u
	m.items[u.ID] = &cp
	return nil
}

func (m *mockUnitRepo) GetByID(_ context.Context, id uuid.UUID) (*Unit, error) {
	u, ok := m.items[id]
	if !ok {
		return nil, apperr.NotFound("blood unit not found")
	}
	cp := *u
	return &cp, nil
}

func (m *mockUnitRepo) GetForUpdate(ctx context.Context, id uuid.UUID) (*Unit, error) {
	u, err := m.GetByID(ctx, id)
	if err == nil && m.onLock != nil {
		m.onLock(u)
	}
	return u, err
}

func (m *mockUnitRepo) GetByDonation(_ context.Context, donationID uuid.UUID) (*Unit, error) {
	for _, u := range m.items {
		if u.DonationID != nil && *u.DonationID == donationID && u.ParentUnitID == nil {
			cp := *u
			return &cp, nil
		}
	}
	return nil, apperr.NotFound("blood unit not found")
}

func (m *mockUnitRepo) Update(_ context.Context, u *Unit) error {
	cp := *u
	m.items[u.ID] = &cp
	return nil
}

func (m *mockUnitRepo) List(_ context.Context, f UnitFilter, _, _ int) ([]*Unit, int, error) {
	var out []*Unit
	for _, u := range m.items {
		if f.Status != "" && u.Status != f.Status {
			continue
		}
		if f.Component != "" && u.Component != f.Component {
			continue
		}
		out = append(out, u)
	}
	return out, len(out), nil
}

func (m *mockUnitRepo) Inventory(_ context.Context, now time.Time) ([]InventoryLine, error) {
	counts := map[[2]string]int{}
	for _, u := range m.items {
		if u.Status == UnitAvailable && u.ExpiresAt.After(now) {
			counts[[2]string{u.BloodType, u.Component}]++
		}
	}
	var lines []InventoryLine
	for k, n := range counts {
		lines = append(lines, InventoryLine{BloodType: k[0], Component: k[1], Units: n})
	}
	sort.Slice(lines, func(i, j int) bool {
		if lines[i].BloodType != lines[j].BloodType {
			return lines[i].BloodType < lines[j].BloodType
		}
		return lines[i].Component < lines[j].Component
	})
	return lines, nil
}

func (m *mockUnitRepo) ExpireDue(_ context.Context, now time.Time) (int, error) {
	n := 0
	for _, u := range m.items {
		if (u.Status == UnitAvailable || u.Status == UnitReserved) && !u.ExpiresAt.After(now) {
			u.Status = UnitExpired
			n++
		}
	}
	return n, nil
}

type mockRequestRepo struct{ items map[uuid.UUID]*Request }

func (m *mockRequestRepo) Create(_ context.Context, r *Request) error {
	r.ID = uuid.New()
	cp := *r
	m.items[r.ID] = &cp
	return nil
}

func (m *mockRequestRepo) GetByID(_ context.Context, id uuid.UUID) (*Request, error) {
	r, ok := m.items[id]
	if !ok {
		return nil, apperr.NotFound("blood request not found")
	}
	cp := *r
	return &cp, nil
}

func (m *mockRequestRepo) GetForUpdate(ctx context.Context, id uuid.UUID) (*Request, error) {
	return m.GetByID(ctx, id)
}

func (m *mockRequestRepo) Update(_ context.Context, r *Request) error {
	cp := *r
	m.items[r.ID] = &cp
	return nil
}

func (m *mockRequestRepo) List(_ context.Context, _ RequestFilter, _, _ int) ([]*Request, int, error) {
	var out []*Request
	for _, r := range m.items {
		out = append(out, r)
	}
	return out, len(out), nil
}

// stubPatients maps patient ids to their recorded blood type ("" = unknown).
type stubPatients map[uuid.UUID]string

func (p stubPatients) Exists(_ context.Context, id uuid.UUID) error {
	if _, ok := p[id]; !ok {
		return apperr.NotFound("patient not found")
	}
	return nil
}

func (p stubPatients) BloodType(_ context.Context, id uuid.UUID) (string, error) {
	bt, ok := p[id]
	if !ok {
		return "", apperr.NotFound("patient not found")
	}
	return bt, nil
}

type fixture struct {
	svc       *Service
	donors    *mockDonorRepo
	donations *mockDonationRepo
	units     *mockUnitRepo
	requests  *mockRequestRepo
	events    *queuetest.Recorder
	patients  stubPatients
	// patients with a known type
	aPos, oNeg, unknown uuid.UUID
}

func newFixture() *fixture {
	f := &fixture{
		donors:    &mockDonorRepo{items: make(map[uuid.UUID]*Donor)},
		donations: &mockDonationRepo{items: make(map[uuid.UUID]*Donation)},
		units:     &mockUnitRepo{items: make(map[uuid.UUID]*Unit)},
		requests:  &mockRequestRepo{items: make(map[uuid.UUID]*Request)},
		events:    &queuetest.Recorder{},
		aPos:      uuid.New(),
		oNeg:      uuid.New(),
		unknown:   uuid.New(),
	}
	f.patients = stubPatients{f.aPos: "A+", f.oNeg: "O-", f.unknown: ""}
	f.svc = NewService(f.donors, f.donations, f.units, f.requests, f.patients, db.NoTx{}, f.events, zerolog.Nop())
	f.svc.now = func() time.Time { return testNow }
	return f
}

func (f *fixture) donor(t *testing.T, bloodType string) *Donor {
	t.Helper()
	d, err := f.svc.CreateDonor(context.Background(), DonorRequest{
		FirstName: "Sam", LastName: "Donor", DateOfBirth: "1990-03-01", Gender: "other",
		BloodType: bloodType, WeightKg: 70,
	})
	require.NoError(t, err)
	return d
}

func (f *fixture) unit(t *testing.T, bloodType, component string, expires time.Time) *Unit {
	t.Helper()
	u := &Unit{
		UnitNumber: "BU" + uuid.NewString()[:8], BloodType: bloodType, Component: component,
		VolumeML: 300, CollectedAt: testNow.AddDate(0, 0, -1), ExpiresAt: expires, Status: UnitAvailable,
	}
	require.NoError(t, f.units.Create(context.Background(), u))
	return u
}

func TestRecordDonation(t *testing.T) {
	f := newFixture()
	d := f.donor(t, "O-")
	f.units.collisions = 1

	donation, unit, err := f.svc.RecordDonation(context.Background(), DonationRequest{DonorID: d.ID, HemoglobinGDL: 13.8})
	require.NoError(t, err)

	assert.Equal(t, DonationCollected, donation.Status)
	assert.Equal(t, 450, donation.VolumeML)
	require.NotNil(t, donation.UnitID)
	assert.Equal(t, unit.ID, *donation.UnitID)

	assert.Regexp(t, `^BU240615\d{7}$`, unit.UnitNumber)
	assert.Equal(t, ComponentWholeBlood, unit.Component)
	assert.Equal(t, "O-", unit.BloodType)
	assert.Equal(t, testNow.AddDate(0, 0, 35), unit.ExpiresAt)

	stored, err := f.donors.GetByID(context.Background(), d.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.LastDonationAt)
	assert.Equal(t, testNow, *stored.LastDonationAt)
}

func TestRecordDonation_Ineligible(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	d := f.donor(t, "A+")

	_, _, err := f.svc.RecordDonation(ctx, DonationRequest{DonorID: d.ID, HemoglobinGDL: 11.9})
	assert.EqualError(t, err, "donor is not eligible: hemoglobin 11.9 g/dL is below 12.5 g/dL")

	_, _, err = f.svc.RecordDonation(ctx, DonationRequest{DonorID: d.ID, HemoglobinGDL: 13})
	require.NoError(t, err)
	_, _, err = f.svc.RecordDonation(ctx, DonationRequest{DonorID: d.ID, HemoglobinGDL: 13})
	assert.EqualError(t, err, "donor is not eligible: last donation was less than 56 days ago; next eligible on 2024-08-10")

	res, err := f.svc.Eligibility(ctx, d.ID)
	require.NoError(t, err)
	assert.False(t, res.Eligible)
	assert.Equal(t, "2024-08-10", res.NextEligibleDate.Format("2006-01-02"))
}

func TestSetDonationStatus_RejectDiscardsUnit(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	d := f.donor(t, "B+")
	donation, unit, err := f.svc.RecordDonation(ctx, DonationRequest{DonorID: d.ID, HemoglobinGDL: 14})
	require.NoError(t, err)

	_, err = f.svc.SetDonationStatus(ctx, donation.ID, DonationApproved)
	assert.EqualError(t, err, "invalid status transition from collected to approved")

	_, err = f.svc.SetDonationStatus(ctx, donation.ID, DonationTested)
	require.NoError(t, err)
	got, err := f.svc.SetDonationStatus(ctx, donation.ID, DonationRejected)
	require.NoError(t, err)
	assert.Equal(t, DonationRejected, got.Status)

	u, err := f.units.GetByID(ctx, unit.ID)
	require.NoError(t, err)
	assert.Equal(t, UnitDiscarded, u.Status)
}

func TestSeparateComponents(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	parent := f.unit(t, "A+", ComponentWholeBlood, testNow.AddDate(0, 0, 30))

	units, err := f.svc.SeparateComponents(ctx, parent.ID, []string{ComponentPackedRBC, ComponentPlatelets, ComponentPlasma})
	require.NoError(t, err)
	require.Len(t, units, 3)
	assert.Equal(t, parent.CollectedAt.AddDate(0, 0, 42), units[0].ExpiresAt)
	assert.Equal(t, parent.CollectedAt.AddDate(0, 0, 5), units[1].ExpiresAt)
	assert.Equal(t, parent.CollectedAt.AddDate(0, 0, 365), units[2].ExpiresAt)
	assert.Equal(t, parent.ID, *units[0].ParentUnitID)

	stored, _ := f.units.GetByID(ctx, parent.ID)
	assert.Equal(t, UnitDiscarded, stored.Status)

	_, err = f.svc.SeparateComponents(ctx, parent.ID, []string{ComponentPlasma})
	assert.EqualError(t, err, "unit "+parent.UnitNumber+" is discarded")
	_, err = f.svc.SeparateComponents(ctx, units[0].ID, []string{ComponentPlasma})
	assert.EqualError(t, err, "only whole blood units can be separated")
	_, err = f.svc.SeparateComponents(ctx, units[0].ID, []string{ComponentPlasma, ComponentPlasma})
	assert.EqualError(t, err, "component plasma listed twice")
}

func TestSetUnitStatus(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	u := f.unit(t, "O+", ComponentPackedRBC, testNow.AddDate(0, 0, 10))

	got, err := f.svc.SetUnitStatus(ctx, u.ID, UnitReserved)
	require.NoError(t, err)
	assert.Equal(t, UnitReserved, got.Status)

	_, err = f.svc.SetUnitStatus(ctx, u.ID, UnitIssued)
	assert.EqualError(t, err, "use the issue endpoint to issue a unit")

	_, err = f.svc.SetUnitStatus(ctx, u.ID, UnitDiscarded)
	require.NoError(t, err)
	_, err = f.svc.SetUnitStatus(ctx, u.ID, UnitAvailable)
	assert.EqualError(t, err, "invalid status transition from discarded to available")
}

func TestIssue(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	u := f.unit(t, "O-", ComponentPackedRBC, testNow.AddDate(0, 0, 10))

	req, err := f.svc.CreateRequest(ctx, uuid.New(), BloodRequestRequest{
		PatientID: f.aPos, BloodType: "A+", Component: ComponentPackedRBC, UnitsRequested: 2,
	})
	require.NoError(t, err)
	assert.Equal(t, "routine", req.Urgency)

	issued, err := f.svc.Issue(ctx, u.ID, IssueRequest{PatientID: f.aPos, RequestID: &req.ID})
	require.NoError(t, err)
	assert.Equal(t, UnitIssued, issued.Status)
	assert.Equal(t, f.aPos, *issued.IssuedToPatientID)
	assert.Equal(t, req.ID, *issued.RequestID)

	stored, err := f.svc.GetRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.UnitsIssued)
	assert.Equal(t, RequestPartiallyFulfilled, stored.Status)

	second := f.unit(t, "A+", ComponentPackedRBC, testNow.AddDate(0, 0, 10))
	_, err = f.svc.Issue(ctx, second.ID, IssueRequest{PatientID: f.aPos, RequestID: &req.ID})
	require.NoError(t, err)
	stored, _ = f.svc.GetRequest(ctx, req.ID)
	assert.Equal(t, RequestFulfilled, stored.Status)

	third := f.unit(t, "A+", ComponentPackedRBC, testNow.AddDate(0, 0, 10))
	_, err = f.svc.Issue(ctx, third.ID, IssueRequest{PatientID: f.aPos, RequestID: &req.ID})
	assert.EqualError(t, err, "blood request is fulfilled")

	require.Len(t, f.events.Topic(queue.TopicBloodUnitIssued), 2)
	charges := f.events.Topic(queue.TopicBillingCharge)
	require.Len(t, charges, 2)
	assert.Equal(t, "blood_bank", charges[0].(queue.Charge).Category)
	assert.Equal(t, 220.00, charges[0].(queue.Charge).UnitPrice)

	_, err = f.svc.Issue(ctx, u.ID, IssueRequest{PatientID: f.aPos})
	assert.EqualError(t, err, "blood unit is issued")
}

func TestIssue_Incompatible(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	u := f.unit(t, "A+", ComponentWholeBlood, testNow.AddDate(0, 0, 10))

	_, err := f.svc.Issue(ctx, u.ID, IssueRequest{PatientID: f.oNeg})
	assert.EqualError(t, err, "A+ whole_blood is not compatible with recipient blood type O-")

	_, err = f.svc.Issue(ctx, u.ID, IssueRequest{PatientID: f.unknown})
	assert.EqualError(t, err, "recipient blood type is unknown")

	platelets := f.unit(t, "AB+", ComponentPlatelets, testNow.AddDate(0, 0, 2))
	_, err = f.svc.Issue(ctx, platelets.ID, IssueRequest{PatientID: f.oNeg})
	require.NoError(t, err)
}

func TestIssue_Expired(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	u := f.unit(t, "O-", ComponentPackedRBC, testNow.Add(-time.Minute))

	_, err := f.svc.Issue(ctx, u.ID, IssueRequest{PatientID: f.aPos})
	assert.EqualError(t, err, "blood unit has expired")

	stored, _ := f.units.GetByID(ctx, u.ID)
	assert.Equal(t, UnitExpired, stored.Status)
	assert.Empty(t, f.events.Events())
}

func TestIssue_ExpiredOnLockedRow(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	u := f.unit(t, "O-", ComponentPackedRBC, testNow.AddDate(0, 0, 10))
	f.units.onLock = func(locked *Unit) { locked.ExpiresAt = testNow }

	_, err := f.svc.Issue(ctx, u.ID, IssueRequest{PatientID: f.aPos})
	assert.EqualError(t, err, "blood unit has expired")
	assert.True(t, apperr.Is(err, apperr.KindInvalid))

	stored, _ := f.units.GetByID(ctx, u.ID)
	assert.Equal(t, UnitAvailable, stored.Status)
	assert.Empty(t, f.events.Events())
}

func TestIssue_RequestMismatch(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	u := f.unit(t, "O-", ComponentPlasma, testNow.AddDate(0, 0, 100))
	req, err := f.svc.CreateRequest(ctx, uuid.New(), BloodRequestRequest{
		PatientID: f.oNeg, BloodType: "O-", Component: ComponentPackedRBC, UnitsRequested: 1,
	})
	require.NoError(t, err)

	_, err = f.svc.Issue(ctx, u.ID, IssueRequest{PatientID: f.aPos, RequestID: &req.ID})
	assert.EqualError(t, err, "blood request belongs to another patient")

	_, err = f.svc.Issue(ctx, u.ID, IssueRequest{PatientID: f.oNeg, RequestID: &req.ID})
	assert.EqualError(t, err, "blood request is for packed_rbc, unit is plasma")

	_, err = f.svc.CancelRequest(ctx, req.ID)
	require.NoError(t, err)
	_, err = f.svc.CancelRequest(ctx, req.ID)
	assert.EqualError(t, err, "cannot cancel a cancelled request")
}

func TestInventoryAndExpiry(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.unit(t, "O-", ComponentPackedRBC, testNow.AddDate(0, 0, 5))
	f.unit(t, "O-", ComponentPackedRBC, testNow.AddDate(0, 0, 6))
	f.unit(t, "A+", ComponentPlasma, testNow.AddDate(0, 0, 100))
	stale := f.unit(t, "B+", ComponentPlatelets, testNow.Add(-time.Hour))

	lines, err := f.svc.Inventory(ctx)
	require.NoError(t, err)
	assert.Equal(t, []InventoryLine{
		{BloodType: "A+", Component: ComponentPlasma, Units: 1},
		{BloodType: "O-", Component: ComponentPackedRBC, Units: 2},
	}, lines)

	require.NoError(t, f.svc.ExpireUnits(ctx))
	stored, _ := f.units.GetByID(ctx, stale.ID)
	assert.Equal(t, UnitExpired, stored.Status)
}
