package radiology

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jashmhta/HMSSSS-sub000/internal/platform/apperr"
	"github.com/jashmhta/HMSSSS-sub000/internal/platform/queue"
	"github.com/jashmhta/HMSSSS-sub000/internal/platform/queue/queuetest"
)

type mockRepo struct {
	items      map[uuid.UUID]*RadiologyTest
	collisions int
}

func newMockRepo() *mockRepo {
	return &mockRepo{items: make(map[uuid.UUID]*RadiologyTest)}
}

func (m *mockRepo) Create(_ context.Context, t *RadiologyTest) error {
	t.ID = uuid.New()
	t.CreatedAt = testNow
	cp := *t
	m.items[t.ID] = &cp
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*RadiologyTest, error) {
	t, ok := m.items[id]
	if !ok {
		return nil, apperr.NotFound("radiology test not found")
	}
	cp := *t
	return &cp, nil
}

func (m *mockRepo) Update(_ context.Context, t *RadiologyTest) error {
	if t.AccessionNumber != nil && m.collisions > 0 {
		m.collisions--
		return errDuplicateAccession
	}
	cp := *t
	m.items[t.ID] = &cp
	return nil
}

func (m *mockRepo) List(_ context.Context, f ListFilter, _, _ int) ([]*RadiologyTest, int, error) {
	var out []*RadiologyTest
	for _, t := range m.items {
		if f.Modality != "" && t.Modality != f.Modality {
			continue
		}
		if f.Status != "" && t.Status != f.Status {
			continue
		}
		cp := *t
		out = append(out, &cp)
	}
	return out, len(out), nil
}

type stubPatients map[uuid.UUID]*PatientInfo

func (p stubPatients) Exists(_ context.Context, id uuid.UUID) error {
	if _, ok := p[id]; !ok {
		return apperr.NotFound("patient not found")
	}
	return nil
}

func (p stubPatients) Info(_ context.Context, id uuid.UUID) (*PatientInfo, error) {
	info, ok := p[id]
	if !ok {
		return nil, apperr.NotFound("patient not found")
	}
	return info, nil
}

var testNow = time.Date(2024, 6, 15, 9, 0, 0, 0, time.UTC)

type fixture struct {
	svc       *Service
	repo      *mockRepo
	events    *queuetest.Recorder
	patientID uuid.UUID
}

func newFixture() *fixture {
	f := &fixture{repo: newMockRepo(), events: &queuetest.Recorder{}, patientID: uuid.New()}
	patients := stubPatients{f.patientID: {
		MRN:         "MRN20240101ABC123",
		FirstName:   "Ada",
		LastName:    "Lovelace",
		DateOfBirth: time.Date(1985, 12, 10, 0, 0, 0, 0, time.UTC),
		Gender:      "female",
	}}
	f.svc = NewService(f.repo, patients, f.events, zerolog.Nop())
	f.svc.now = func() time.Time { return testNow }
	return f
}

func (f *fixture) order(t *testing.T, modality string) *RadiologyTest {
	t.Helper()
	rt, err := f.svc.Order(context.Background(), uuid.New(),
		OrderRequest{PatientID: f.patientID, Modality: modality, BodyPart: "Chest"})
	require.NoError(t, err)
	return rt
}

func (f *fixture) started(t *testing.T, modality string, contrast bool) *RadiologyTest {
	t.Helper()
	ctx := context.Background()
	rt := f.order(t, modality)
	_, err := f.svc.Schedule(ctx, rt.ID, testNow.Add(time.Hour))
	require.NoError(t, err)
	rt, err = f.svc.Start(ctx, rt.ID, uuid.New(), contrast)
	require.NoError(t, err)
	return rt
}

func TestOrder(t *testing.T) {
	f := newFixture()
	rt := f.order(t, ModalityCT)
	assert.Equal(t, StatusOrdered, rt.Status)
	assert.Equal(t, "routine", rt.Priority)

	_, err := f.svc.Order(context.Background(), uuid.New(),
		OrderRequest{PatientID: uuid.New(), Modality: ModalityCT, BodyPart: "Head"})
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestSchedule(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	rt := f.order(t, ModalityXRay)

	_, err := f.svc.Schedule(ctx, rt.ID, testNow.Add(-time.Minute))
	assert.EqualError(t, err, "scheduled_at must be in the future")

	got, err := f.svc.Schedule(ctx, rt.ID, testNow.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, StatusScheduled, got.Status)
	assert.Equal(t, testNow.Add(2*time.Hour), *got.ScheduledAt)

	_, err = f.svc.Schedule(ctx, rt.ID, testNow.Add(3*time.Hour))
	assert.EqualError(t, err, "invalid status transition from SCHEDULED to SCHEDULED")
}

func TestStart(t *testing.T) {
	f := newFixture()
	f.repo.collisions = 1
	rt := f.started(t, ModalityMRI, true)

	assert.Equal(t, StatusInProgress, rt.Status)
	assert.True(t, rt.ContrastUsed)
	require.NotNil(t, rt.AccessionNumber)
	assert.Regexp(t, `^ACC20240615\d{6}$`, *rt.AccessionNumber)
	require.NotNil(t, rt.StudyInstanceUID)
	assert.Regexp(t, `^2\.25\.\d+$`, *rt.StudyInstanceUID)
	assert.LessOrEqual(t, len(*rt.StudyInstanceUID), 64)
}

func TestStart_ContrastRules(t *testing.T) {
	for _, modality := range []string{ModalityXRay, ModalityUltrasound, ModalityMammography, ModalityPET} {
		f := newFixture()
		rt := f.order(t, modality)
		_, err := f.svc.Schedule(context.Background(), rt.ID, testNow.Add(time.Hour))
		require.NoError(t, err)
		_, err = f.svc.Start(context.Background(), rt.ID, uuid.New(), true)
		assert.EqualError(t, err, "contrast is not allowed for "+modality+" studies")
	}
	for _, modality := range []string{ModalityCT, ModalityMRI, ModalityFluoroscopy} {
		f := newFixture()
		assert.True(t, f.started(t, modality, true).ContrastUsed)
	}
}

func TestStart_RequiresSchedule(t *testing.T) {
	f := newFixture()
	rt := f.order(t, ModalityCT)
	_, err := f.svc.Start(context.Background(), rt.ID, uuid.New(), false)
	assert.EqualError(t, err, "invalid status transition from ORDERED to IN_PROGRESS")
}

func TestComplete(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	rt := f.started(t, ModalityCT, true)

	_, err := f.svc.Complete(ctx, rt.ID, uuid.New(), ReportRequest{Findings: "  ", Impression: "Normal"})
	assert.EqualError(t, err, "findings and impression are required")

	got, err := f.svc.Complete(ctx, rt.ID, uuid.New(), ReportRequest{
		Findings:   "No acute intracranial abnormality.",
		Impression: "Normal study.",
	})
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, got.Status)
	assert.Equal(t, testNow, *got.ReportedAt)

	reports := f.events.Topic(queue.TopicRadiologyReportCompleted)
	require.Len(t, reports, 1)
	assert.Equal(t, *got.AccessionNumber, reports[0].(queue.RadiologyReport).AccessionNumber)

	charges := f.events.Topic(queue.TopicBillingCharge)
	require.Len(t, charges, 1)
	charge := charges[0].(queue.Charge)
	assert.Equal(t, "radiology", charge.Category)
	assert.Equal(t, 320.00, charge.UnitPrice)
	assert.Equal(t, "CT Chest with contrast", charge.Description)
}

func TestCancel(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	rt := f.order(t, ModalityXRay)
	got, err := f.svc.Cancel(ctx, rt.ID, "patient declined")
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, got.Status)

	running := f.started(t, ModalityXRay, false)
	_, err = f.svc.Cancel(ctx, running.ID, "too late")
	assert.EqualError(t, err, "invalid status transition from IN_PROGRESS to CANCELLED")
}

func TestDICOM(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	ordered := f.order(t, ModalityCT)
	_, err := f.svc.DICOM(ctx, ordered.ID)
	assert.Equal(t, apperr.KindInvalid, apperr.KindOf(err))

	rt := f.started(t, ModalityCT, false)
	study, err := f.svc.DICOM(ctx, rt.ID)
	require.NoError(t, err)
	assert.Equal(t, *rt.StudyInstanceUID, study["StudyInstanceUID"])
	assert.Equal(t, "CT", study["Modality"])
	assert.Equal(t, "MRN20240101ABC123", study["PatientID"])
	assert.Equal(t, "LOVELACE^ADA", study["PatientName"])
	assert.Equal(t, "19851210", study["PatientBirthDate"])
	assert.Equal(t, "20240615", study["StudyDate"])
	assert.Equal(t, "090000", study["StudyTime"])
	assert.Equal(t, "CHEST", study["BodyPartExamined"])
	assert.Equal(t, 3, study["NumberOfStudyRelatedSeries"])
	assert.Equal(t, 72, study["NumberOfStudyRelatedInstances"])
	series, ok := study["SeriesInstanceUID"].([]string)
	require.True(t, ok)
	assert.Equal(t, *rt.StudyInstanceUID+".1", series[0])
}

func TestUIDFromUUID(t *testing.T) {
	u := uuid.MustParse("00000000-0000-0000-0000-0000000000ff")
	assert.Equal(t, "2.25.255", uidFromUUID(u))
}
