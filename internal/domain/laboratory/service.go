package laboratory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jashmhta/HMSSSS-sub000/internal/platform/apperr"
	"github.com/jashmhta/HMSSSS-sub000/internal/platform/cache"
	"github.com/jashmhta/HMSSSS-sub000/internal/platform/queue"
	"github.com/jashmhta/HMSSSS-sub000/pkg/barcode"
)

const barcodeAttempts = 5

type Service struct {
	catalog  CatalogRepository
	tests    TestRepository
	qc       QCRepository
	patients Patients
	lis      *LISClient
	cache    cache.Cache
	cacheTTL time.Duration
	events   queue.Publisher
	logger   zerolog.Logger
	now      func() time.Time
}

func NewService(catalog CatalogRepository, tests TestRepository, qc QCRepository, patients Patients,
	lis *LISClient, c cache.Cache, cacheTTL time.Duration, events queue.Publisher, logger zerolog.Logger) *Service {
	return &Service{
		catalog:  catalog,
		tests:    tests,
		qc:       qc,
		patients: patients,
		lis:      lis,
		cache:    c,
		cacheTTL: cacheTTL,
		events:   events,
		logger:   logger,
		now:      time.Now,
	}
}

func canTransition(from, to string) bool {
	for _, next := range statusTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func transition(t *LabTest, to string) error {
	if !canTransition(t.Status, to) {
		return apperr.Invalid("invalid status transition from %s to %s", t.Status, to)
	}
	t.Status = to
	return nil
}

func (s *Service) publish(ctx context.Context, topic string, v any) {
	if err := s.events.Publish(ctx, topic, v); err != nil {
		s.logger.Error().Err(err).Str("topic", topic).Msg("publish failed")
	}
}

// -- Catalog --

func checkRanges(req CatalogRequest) error {
	if req.ReferenceLow != nil && req.ReferenceHigh != nil && *req.ReferenceLow > *req.ReferenceHigh {
		return apperr.Invalid("reference_low must not exceed reference_high")
	}
	if req.CriticalLow != nil && req.CriticalHigh != nil && *req.CriticalLow > *req.CriticalHigh {
		return apperr.Invalid("critical_low must not exceed critical_high")
	}
	if req.CriticalLow != nil && req.ReferenceLow != nil && *req.CriticalLow > *req.ReferenceLow {
		return apperr.Invalid("critical_low must not exceed reference_low")
	}
	if req.CriticalHigh != nil && req.ReferenceHigh != nil && *req.CriticalHigh < *req.ReferenceHigh {
		return apperr.Invalid("critical_high must not be below reference_high")
	}
	return nil
}

func applyCatalog(c *CatalogEntry, req CatalogRequest) {
	c.Code = strings.ToUpper(strings.TrimSpace(req.Code))
	c.Name = req.Name
	c.Category = req.Category
	c.SpecimenType = req.SpecimenType
	c.Unit = req.Unit
	c.ReferenceLow = req.ReferenceLow
	c.ReferenceHigh = req.ReferenceHigh
	c.CriticalLow = req.CriticalLow
	c.CriticalHigh = req.CriticalHigh
	c.Price = req.Price
	c.TurnaroundHours = req.TurnaroundHours
	if c.TurnaroundHours == 0 {
		c.TurnaroundHours = 24
	}
	if req.IsActive != nil {
		c.IsActive = *req.IsActive
	}
}

func (s *Service) CreateCatalogEntry(ctx context.Context, req CatalogRequest) (*CatalogEntry, error) {
	if err := checkRanges(req); err != nil {
		return nil, err
	}
	c := &CatalogEntry{IsActive: true}
	applyCatalog(c, req)
	if err := s.catalog.Create(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func catalogKey(id uuid.UUID) string { return cache.Key("lab-catalog", id.String()) }

func (s *Service) GetCatalogEntry(ctx context.Context, id uuid.UUID) (*CatalogEntry, error) {
	key := catalogKey(id)
	var cached CatalogEntry
	if ok, err := s.cache.Get(ctx, key, &cached); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("cache read failed")
	} else if ok {
		return &cached, nil
	}
	c, err := s.catalog.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.cache.Set(ctx, key, c, s.cacheTTL); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("cache write failed")
	}
	return c, nil
}

func (s *Service) UpdateCatalogEntry(ctx context.Context, id uuid.UUID, req CatalogRequest) (*CatalogEntry, error) {
	if err := checkRanges(req); err != nil {
		return nil, err
	}
	c, err := s.catalog.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	applyCatalog(c, req)
	if err := s.catalog.Update(ctx, c); err != nil {
		return nil, err
	}
	if err := s.cache.Delete(ctx, catalogKey(id)); err != nil {
		s.logger.Warn().Err(err).Str("catalog_id", id.String()).Msg("cache invalidation failed")
	}
	return c, nil
}

func (s *Service) ListCatalog(ctx context.Context, activeOnly bool, limit, offset int) ([]*CatalogEntry, int, error) {
	return s.catalog.List(ctx, activeOnly, limit, offset)
}

// -- Orders --

func (s *Service) Order(ctx context.Context, orderedBy uuid.UUID, req OrderRequest) (*LabTest, error) {
	if err := s.patients.Exists(ctx, req.PatientID); err != nil {
		return nil, err
	}
	entry, err := s.GetCatalogEntry(ctx, req.CatalogID)
	if err != nil {
		return nil, err
	}
	if !entry.IsActive {
		return nil, apperr.Invalid("lab test %s is not currently offered", entry.Code)
	}

	t := &LabTest{
		PatientID:      req.PatientID,
		CatalogID:      entry.ID,
		TestCode:       entry.Code,
		TestName:       entry.Name,
		OrderedBy:      orderedBy,
		Priority:       req.Priority,
		Status:         StatusOrdered,
		ClinicalNotes:  req.ClinicalNotes,
		Unit:           entry.Unit,
		ReferenceRange: entry.ReferenceRange(),
	}
	if t.Priority == "" {
		t.Priority = "routine"
	}
	if err := s.tests.Create(ctx, t); err != nil {
		return nil, err
	}

	s.publish(ctx, queue.TopicLabOrderCreated, queue.LabOrderCreated{
		TestID:    t.ID,
		PatientID: t.PatientID,
		TestCode:  t.TestCode,
		Priority:  t.Priority,
		OrderedAt: t.CreatedAt,
	})
	s.publish(ctx, queue.TopicBillingCharge, queue.Charge{
		PatientID:   t.PatientID,
		Category:    "laboratory",
		Description: fmt.Sprintf("Lab test %s - %s", entry.Code, entry.Name),
		Quantity:    1,
		UnitPrice:   entry.Price,
		SourceRef:   "lab_test:" + t.ID.String(),
	})
	return t, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*LabTest, error) {
	return s.tests.GetByID(ctx, id)
}

func (s *Service) GetBySample(ctx context.Context, code string) (*LabTest, error) {
	if !barcode.Valid(SampleBarcodePrefix, code) {
		return nil, apperr.Invalid("invalid sample barcode %q", code)
	}
	return s.tests.GetByBarcode(ctx, code)
}

func (s *Service) List(ctx context.Context, f TestFilter, limit, offset int) ([]*LabTest, int, error) {
	if f.Status != "" {
		if _, ok := statusTransitions[f.Status]; !ok {
			return nil, 0, apperr.Invalid("unknown status %q", f.Status)
		}
	}
	return s.tests.List(ctx, f, limit, offset)
}

// CollectSample labels the specimen and moves the test to SAMPLE_COLLECTED.
func (s *Service) CollectSample(ctx context.Context, id, collectorID uuid.UUID) (*LabTest, error) {
	t, err := s.tests.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := transition(t, StatusSampleCollected); err != nil {
		return nil, err
	}
	now := s.now().UTC()
	t.SampleCollectedAt = &now
	t.CollectedBy = &collectorID

	for attempt := 0; attempt < barcodeAttempts; attempt++ {
		code, err := barcode.Generate(SampleBarcodePrefix, now)
		if err != nil {
			return nil, err
		}
		t.SampleBarcode = &code
		err = s.tests.Update(ctx, t)
		if err == nil {
			return t, nil
		}
		if !isDuplicateBarcode(err) {
			return nil, err
		}
	}
	return nil, apperr.Conflict("could not allocate a unique sample barcode")
}

func (s *Service) StartProcessing(ctx context.Context, id uuid.UUID) (*LabTest, error) {
	t, err := s.tests.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := transition(t, StatusInProgress); err != nil {
		return nil, err
	}
	now := s.now().UTC()
	t.StartedAt = &now
	if err := s.tests.Update(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// RecordResult stores the result of an IN_PROGRESS test, flags it against
// the catalog ranges and completes it.
func (s *Service) RecordResult(ctx context.Context, id, verifiedBy uuid.UUID, req ResultRequest) (*LabTest, error) {
	if req.Value == nil && (req.Text == nil || strings.TrimSpace(*req.Text) == "") {
		return nil, apperr.Invalid("value or text is required")
	}
	t, err := s.tests.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.Status != StatusInProgress {
		return nil, apperr.Invalid("invalid status transition from %s to %s", t.Status, StatusCompleted)
	}
	entry, err := s.GetCatalogEntry(ctx, t.CatalogID)
	if err != nil {
		return nil, err
	}

	flag := FlagNormal
	switch {
	case req.Value != nil:
		flag = FlagValue(*req.Value, entry)
	case req.IsAbnormal:
		flag = FlagAbnormal
	}

	now := s.now().UTC()
	t.Status = StatusCompleted
	t.ResultValue = req.Value
	t.ResultText = req.Text
	t.Flag = &flag
	t.CompletedAt = &now
	t.VerifiedBy = &verifiedBy
	if req.Notes != nil {
		t.Notes = req.Notes
	}
	if err := s.tests.Update(ctx, t); err != nil {
		return nil, err
	}

	ev := queue.LabResult{
		TestID:    t.ID,
		PatientID: t.PatientID,
		TestCode:  t.TestCode,
		TestName:  t.TestName,
		Value:     t.ResultValue,
		Flag:      flag,
		OrderedBy: t.OrderedBy,
	}
	if t.Unit != nil {
		ev.Unit = *t.Unit
	}
	s.publish(ctx, queue.TopicLabResultCompleted, ev)
	if IsCritical(flag) {
		s.logger.Warn().Str("test_id", t.ID.String()).Str("flag", flag).Msg("critical lab result")
		s.publish(ctx, queue.TopicLabResultCritical, ev)
	}
	return t, nil
}

func (s *Service) Cancel(ctx context.Context, id uuid.UUID, reason string) (*LabTest, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, apperr.Invalid("cancellation reason is required")
	}
	t, err := s.tests.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := transition(t, StatusCancelled); err != nil {
		return nil, err
	}
	t.CancelReason = &reason
	if err := s.tests.Update(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// SyncFromLIS pulls the LIS result of a submitted test and records it once
// the LIS reports it final.
func (s *Service) SyncFromLIS(ctx context.Context, id, actorID uuid.UUID) (*LabTest, error) {
	if !s.lis.Enabled() {
		return nil, apperr.Invalid("LIS integration is disabled")
	}
	t, err := s.tests.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.LISOrderID == nil {
		return nil, apperr.Invalid("lab test has not been submitted to the LIS")
	}
	res, err := s.lis.FetchResult(ctx, *t.LISOrderID)
	if err != nil {
		s.logger.Error().Err(err).Str("test_id", id.String()).Msg("LIS fetch failed")
		return nil, apperr.Wrap(apperr.KindInternal, err, "could not reach the LIS")
	}
	if res.Status != LISStatusFinal {
		return nil, apperr.Conflict("LIS result is not final (status %s)", res.Status)
	}
	if t.Status == StatusSampleCollected {
		if t, err = s.StartProcessing(ctx, id); err != nil {
			return nil, err
		}
	}
	return s.RecordResult(ctx, t.ID, actorID, ResultRequest{Value: res.Value, Text: res.Text})
}

// -- Quality control --

func (s *Service) RecordQC(ctx context.Context, performedBy uuid.UUID, req QCRequest) (*QCRecord, error) {
	if req.TargetSD <= 0 {
		return nil, apperr.Invalid("target_sd must be greater than 0")
	}
	z, status, rule := EvaluateQC(req.MeasuredValue, req.TargetMean, req.TargetSD)
	q := &QCRecord{
		InstrumentID:  req.InstrumentID,
		TestCode:      strings.ToUpper(req.TestCode),
		ControlLevel:  req.ControlLevel,
		MeasuredValue: req.MeasuredValue,
		TargetMean:    req.TargetMean,
		TargetSD:      req.TargetSD,
		ZScore:        z,
		Status:        status,
		PerformedBy:   performedBy,
		PerformedAt:   s.now().UTC(),
	}
	if rule != "" {
		q.Rule = &rule
	}
	if err := s.qc.Create(ctx, q); err != nil {
		return nil, err
	}
	if status == QCFail {
		s.logger.Warn().Str("instrument_id", q.InstrumentID).Str("test_code", q.TestCode).
			Float64("z_score", z).Msg("QC run rejected")
	}
	return q, nil
}

func (s *Service) ListQC(ctx context.Context, f QCFilter, limit, offset int) ([]*QCRecord, int, error) {
	f.TestCode = strings.ToUpper(f.TestCode)
	return s.qc.List(ctx, f, limit, offset)
}
