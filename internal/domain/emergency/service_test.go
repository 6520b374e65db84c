package emergency

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
)

var testNow = time.Date(2024, 6, 15, 9, 0, 0, 0, time.UTC)

type mockCaseRepo struct {
	items   map[uuid.UUID]*EmergencyCase
	history []*StatusHistory
}

func (m *mockCaseRepo) Create(_ context.Context, c *EmergencyCase) error {
	c.ID = uuid.New()
	cp := *c
	m.items[c.ID] = &cp
	return nil
}

func (m *mockCaseRepo) GetByID(_ context.Context, id uuid.UUID) (*EmergencyCase, error) {
	c, ok := m.items[id]
	if !ok {
		return nil, apperr.NotFound("emergency case not found")
	}
	cp := *c
	return &cp, nil
}

func (m *mockCaseRepo) GetForUpdate(ctx context.Context, id uuid.UUID) (*EmergencyCase, error) {
	return m.GetByID(ctx, id)
}

func (m *mockCaseRepo) Update(_ context.Context, c *EmergencyCase) error {
	cp := *c
	m.items[c.ID] = &cp
	return nil
}

func (m *mockCaseRepo) List(_ context.Context, f CaseFilter, _, _ int) ([]*EmergencyCase, int, error) {
	var out []*EmergencyCase
	for _, c := range m.items {
		if f.Status != "" && c.Status != f.Status {
			continue
		}
		if f.PatientID != nil && c.PatientID != *f.PatientID {
			continue
		}
		out = append(out, c)
	}
	return out, len(out), nil
}

func (m *mockCaseRepo) Board(_ context.Context) ([]*EmergencyCase, error) {
	var out []*EmergencyCase
	for _, c := range m.items {
		if c.Open() {
			out = append(out, c)
		}
	}
	level := func(c *EmergencyCase) int {
		if c.TriageLevel == nil {
			return 99
		}
		return *c.TriageLevel
	}
	sort.Slice(out, func(i, j int) bool {
		if level(out[i]) != level(out[j]) {
			return level(out[i]) < level(out[j])
		}
		return out[i].ArrivalAt.Before(out[j].ArrivalAt)
	})
	return out, nil
}

func (m *mockCaseRepo) AddStatusHistory(_ context.Context, h *StatusHistory) error {
	h.ID = uuid.New()
	cp := *h
	m.history = append(m.history, &cp)
	return nil
}

func (m *mockCaseRepo) GetStatusHistory(_ context.Context, caseID uuid.UUID) ([]*StatusHistory, error) {
	var out []*StatusHistory
	for _, h := range m.history {
		if h.CaseID == caseID {
			out = append(out, h)
		}
	}
	return out, nil
}

type stubPatients map[uuid.UUID]bool

func (p stubPatients) Exists(_ context.Context, id uuid.UUID) error {
	if !p[id] {
		return apperr.NotFound("patient not found")
	}
	return nil
}

type stubClinicians map[uuid.UUID]bool

func (s stubClinicians) ActiveClinician(_ context.Context, id uuid.UUID) error {
	if !s[id] {
		return apperr.NotFound("clinician not found")
	}
	return nil
}

type fixture struct {
	svc       *Service
	cases     *mockCaseRepo
	clock     time.Time
	patientID uuid.UUID
	doctorID  uuid.UUID
	nurseID   uuid.UUID
}

func newFixture() *fixture {
	f := &fixture{
		cases:     &mockCaseRepo{items: make(map[uuid.UUID]*EmergencyCase)},
		clock:     testNow,
		patientID: uuid.New(),
		doctorID:  uuid.New(),
		nurseID:   uuid.New(),
	}
	f.svc = NewService(f.cases, stubPatients{f.patientID: true}, stubClinicians{f.doctorID: true},
		db.NoTx{}, zerolog.Nop())
	f.svc.now = func() time.Time { return f.clock }
	return f
}

func (f *fixture) advance(d time.Duration) { f.clock = f.clock.Add(d) }

func (f *fixture) register(t *testing.T) *EmergencyCase {
	t.Helper()
	c, err := f.svc.Register(context.Background(), f.nurseID, RegisterRequest{
		PatientID: f.patientID, ArrivalMode: "ambulance", ChiefComplaint: "chest pain",
	})
	require.NoError(t, err)
	return c
}

func (f *fixture) triage(t *testing.T, id uuid.UUID, level int) *EmergencyCase {
	t.Helper()
	hr, spo2 := 110, 94
	c, err := f.svc.Triage(context.Background(), id, f.nurseID, TriageRequest{
		TriageLevel: level, HeartRate: &hr, OxygenSaturation: &spo2,
	})
	require.NoError(t, err)
	return c
}

func intPtr(v int) *int { return &v }

func TestRegister(t *testing.T) {
	f := newFixture()
	c := f.register(t)
	assert.Equal(t, StatusWaiting, c.Status)
	assert.Equal(t, testNow, c.ArrivalAt)
	require.Len(t, f.cases.history, 1)
	assert.Nil(t, f.cases.history[0].FromStatus)
	assert.Equal(t, StatusWaiting, f.cases.history[0].Status)

	_, err := f.svc.Register(context.Background(), f.nurseID, RegisterRequest{
		PatientID: uuid.New(), ArrivalMode: "walk_in", ChiefComplaint: "fever",
	})
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	_, err = f.svc.Register(context.Background(), f.nurseID, RegisterRequest{
		PatientID: f.patientID, ArrivalMode: "walk_in", ChiefComplaint: "   ",
	})
	assert.True(t, apperr.Is(err, apperr.KindInvalid))
}

func TestTriage_Validation(t *testing.T) {
	f := newFixture()
	c := f.register(t)

	tests := []struct {
		name string
		req  TriageRequest
		msg  string
	}{
		{"level too high", TriageRequest{TriageLevel: 6}, "triage_level must be between 1 and 5"},
		{"level missing", TriageRequest{}, "triage_level must be between 1 and 5"},
		{"heart rate", TriageRequest{TriageLevel: 2, HeartRate: intPtr(300)}, "heart_rate must be between 20 and 250"},
		{"spo2", TriageRequest{TriageLevel: 2, OxygenSaturation: intPtr(40)}, "oxygen_saturation must be between 50 and 100"},
		{"pain", TriageRequest{TriageLevel: 2, PainScale: intPtr(11)}, "pain_scale must be between 0 and 10"},
		{"pressure inverted", TriageRequest{TriageLevel: 2, BloodPressureSys: intPtr(80), BloodPressureDia: intPtr(90)},
			"blood_pressure_sys must be greater than blood_pressure_dia"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Triage(context.Background(), c.ID, f.nurseID, tt.req)
			require.Error(t, err)
			assert.True(t, apperr.Is(err, apperr.KindInvalid))
			assert.Equal(t, tt.msg, err.Error())
		})
	}
	got, err := f.svc.GetCase(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusWaiting, got.Status)
}

func TestCaseLifecycle(t *testing.T) {
	f := newFixture()
	c := f.register(t)

	f.advance(10 * time.Minute)
	c = f.triage(t, c.ID, 2)
	assert.Equal(t, StatusTriaged, c.Status)
	assert.Equal(t, 2, *c.TriageLevel)
	assert.Equal(t, 110, *c.HeartRate)
	assert.Equal(t, f.nurseID, *c.TriagedBy)

	_, err := f.svc.StartTreatment(context.Background(), c.ID, f.nurseID, TreatRequest{AttendingID: uuid.New()})
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	bed := "ED-4"
	f.advance(20 * time.Minute)
	c, err = f.svc.StartTreatment(context.Background(), c.ID, f.doctorID, TreatRequest{AttendingID: f.doctorID, Bed: &bed})
	require.NoError(t, err)
	assert.Equal(t, StatusInTreatment, c.Status)
	assert.Equal(t, "ED-4", *c.Bed)

	f.advance(90 * time.Minute)
	c, err = f.svc.Dispose(context.Background(), c.ID, f.doctorID, DispositionRequest{
		Status: StatusAdmitted, Disposition: "admitted to cardiology",
	})
	require.NoError(t, err)
	assert.Equal(t, StatusAdmitted, c.Status)
	assert.Equal(t, 120, *c.LengthOfStayMins)
	assert.False(t, c.Open())

	history, err := f.svc.History(context.Background(), c.ID)
	require.NoError(t, err)
	require.Len(t, history, 4)
	assert.Equal(t, StatusTriaged, *history[2].FromStatus)
	assert.Equal(t, StatusInTreatment, *history[3].FromStatus)
	assert.Equal(t, "admitted to cardiology", *history[3].Note)

	_, err = f.svc.LeftWithoutBeingSeen(context.Background(), c.ID, f.nurseID, LeftRequest{})
	require.Error(t, err)
	assert.Equal(t, "invalid status transition from admitted to left_without_being_seen", err.Error())
}

func TestInvalidTransitions(t *testing.T) {
	f := newFixture()
	c := f.register(t)

	_, err := f.svc.StartTreatment(context.Background(), c.ID, f.doctorID, TreatRequest{AttendingID: f.doctorID})
	require.Error(t, err)
	assert.Equal(t, "invalid status transition from waiting to in_treatment", err.Error())

	_, err = f.svc.Dispose(context.Background(), c.ID, f.doctorID, DispositionRequest{
		Status: StatusDischarged, Disposition: "home",
	})
	require.Error(t, err)
	assert.Equal(t, "invalid status transition from waiting to discharged", err.Error())

	f.triage(t, c.ID, 3)
	_, err = f.svc.Triage(context.Background(), c.ID, f.nurseID, TriageRequest{TriageLevel: 2})
	require.Error(t, err)
	assert.Equal(t, "invalid status transition from triaged to triaged", err.Error())
}

func TestLeftWithoutBeingSeen(t *testing.T) {
	f := newFixture()
	c := f.register(t)
	f.advance(45 * time.Minute)

	note := "left before triage"
	c, err := f.svc.LeftWithoutBeingSeen(context.Background(), c.ID, f.nurseID, LeftRequest{Note: &note})
	require.NoError(t, err)
	assert.Equal(t, StatusLeftWithoutBeingSeen, c.Status)
	assert.Equal(t, 45, *c.LengthOfStayMins)
	assert.Equal(t, testNow.Add(45*time.Minute), *c.DischargedAt)
}

func TestBoard_OrdersByTriageLevelThenArrival(t *testing.T) {
	f := newFixture()
	first := f.register(t)
	f.advance(time.Minute)
	second := f.register(t)
	f.advance(time.Minute)
	third := f.register(t)
	f.advance(time.Minute)
	gone := f.register(t)

	f.triage(t, first.ID, 3)
	f.triage(t, second.ID, 1)
	_, err := f.svc.LeftWithoutBeingSeen(context.Background(), gone.ID, f.nurseID, LeftRequest{})
	require.NoError(t, err)

	board, err := f.svc.Board(context.Background())
	require.NoError(t, err)
	require.Len(t, board, 3)
	assert.Equal(t, second.ID, board[0].ID)
	assert.Equal(t, first.ID, board[1].ID)
	assert.Equal(t, third.ID, board[2].ID)
}

func TestBoard_Empty(t *testing.T) {
	f := newFixture()
	board, err := f.svc.Board(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, board)
	assert.Empty(t, board)
}

func TestHistory_UnknownCase(t *testing.T) {
	f := newFixture()
	_, err := f.svc.History(context.Background(), uuid.New())
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}
