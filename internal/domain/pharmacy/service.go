package pharmacy

import (
	"bytes"
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jashmhta/HMSSSS-sub000/internal/platform/apperr"
	"github.com/jashmhta/HMSSSS-sub000/internal/platform/db"
	"github.com/jashmhta/HMSSSS-sub000/internal/platform/queue"
)

type Service struct {
	meds          MedicationRepository
	prescriptions PrescriptionRepository
	patients      Patients
	tx            db.TxRunner
	events        queue.Publisher
	logger        zerolog.Logger
	now           func() time.Time
}

func NewService(meds MedicationRepository, prescriptions PrescriptionRepository, patients Patients,
	tx db.TxRunner, events queue.Publisher, logger zerolog.Logger) *Service {
	return &Service{
		meds:          meds,
		prescriptions: prescriptions,
		patients:      patients,
		tx:            tx,
		events:        events,
		logger:        logger,
		now:           time.Now,
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

func transition(p *Prescription, to string) error {
	if !canTransition(p.Status, to) {
		return apperr.Invalid("invalid status transition from %s to %s", p.Status, to)
	}
	p.Status = to
	return nil
}

// -- Medications --

func applyMedication(m *Medication, req MedicationRequest) error {
	m.Name = strings.TrimSpace(req.Name)
	m.GenericName = req.GenericName
	m.Form = req.Form
	m.Strength = strings.TrimSpace(req.Strength)
	m.Manufacturer = req.Manufacturer
	m.Category = req.Category
	m.UnitPrice = req.UnitPrice
	m.ReorderLevel = req.ReorderLevel
	m.BatchNumber = req.BatchNumber
	m.IsControlled = req.IsControlled
	m.ExpiryDate = nil
	if req.ExpiryDate != nil {
		d, err := time.Parse("2006-01-02", *req.ExpiryDate)
		if err != nil {
			return apperr.Invalid("expiry_date must be a date in YYYY-MM-DD format")
		}
		m.ExpiryDate = &d
	}
	if req.RequiresPrescription != nil {
		m.RequiresPrescription = *req.RequiresPrescription
	}
	if req.IsActive != nil {
		m.IsActive = *req.IsActive
	}
	return nil
}

func (s *Service) CreateMedication(ctx context.Context, req MedicationRequest) (*Medication, error) {
	m := &Medication{RequiresPrescription: true, IsActive: true, StockQuantity: req.StockQuantity}
	if err := applyMedication(m, req); err != nil {
		return nil, err
	}
	if err := s.meds.Create(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

func (s *Service) GetMedication(ctx context.Context, id uuid.UUID) (*Medication, error) {
	return s.meds.GetByID(ctx, id)
}

// UpdateMedication changes catalog fields. Stock only moves through
// AdjustStock and Dispense, so stock_quantity in req is ignored.
func (s *Service) UpdateMedication(ctx context.Context, id uuid.UUID, req MedicationRequest) (*Medication, error) {
	m, err := s.meds.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := applyMedication(m, req); err != nil {
		return nil, err
	}
	if err := s.meds.Update(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

func (s *Service) ListMedications(ctx context.Context, f MedicationFilter, limit, offset int) ([]*Medication, int, error) {
	return s.meds.List(ctx, f, limit, offset)
}

func (s *Service) LowStock(ctx context.Context) ([]*Medication, error) {
	items, err := s.meds.LowStock(ctx)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []*Medication{}
	}
	return items, nil
}

func (s *Service) ListMovements(ctx context.Context, id uuid.UUID, limit, offset int) ([]*StockMovement, int, error) {
	if _, err := s.meds.GetByID(ctx, id); err != nil {
		return nil, 0, err
	}
	return s.meds.ListMovements(ctx, id, limit, offset)
}

// AdjustStock applies a manual stock correction (delivery, wastage, count).
func (s *Service) AdjustStock(ctx context.Context, id, actor uuid.UUID, req StockRequest) (*Medication, error) {
	if req.Delta == 0 {
		return nil, apperr.Invalid("delta must not be zero")
	}
	var m *Medication
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		var err error
		if m, err = s.meds.GetForUpdate(ctx, id); err != nil {
			return err
		}
		next := m.StockQuantity + req.Delta
		if next < 0 {
			return apperr.Invalid("stock for %s cannot go below zero (current %d)", m.Label(), m.StockQuantity)
		}
		m.StockQuantity = next
		if err := s.meds.Update(ctx, m); err != nil {
			return err
		}
		return s.meds.RecordMovement(ctx, &StockMovement{
			MedicationID: m.ID,
			Delta:        req.Delta,
			Balance:      next,
			Reason:       strings.TrimSpace(req.Reason),
			CreatedBy:    &actor,
		})
	})
	if err != nil {
		return nil, err
	}
	if req.Delta < 0 && m.LowOnStock() {
		s.publishLowStock(ctx, m)
	}
	return m, nil
}

func (s *Service) publishLowStock(ctx context.Context, m *Medication) {
	ev := queue.LowStock{
		MedicationID:  m.ID,
		Name:          m.Name,
		Strength:      m.Strength,
		StockQuantity: m.StockQuantity,
		ReorderLevel:  m.ReorderLevel,
	}
	if err := s.events.Publish(ctx, queue.TopicPharmacyLowStock, ev); err != nil {
		s.logger.Error().Err(err).Str("medication_id", m.ID.String()).Msg("publish low stock failed")
	}
}

// CheckLowStock backs the pharmacy.low-stock job.
func (s *Service) CheckLowStock(ctx context.Context) error {
	items, err := s.meds.LowStock(ctx)
	if err != nil {
		return err
	}
	for _, m := range items {
		s.publishLowStock(ctx, m)
	}
	if len(items) > 0 {
		s.logger.Warn().Int("count", len(items)).Msg("medications at or below reorder level")
	}
	return nil
}

// -- Prescriptions --

func (s *Service) CreatePrescription(ctx context.Context, prescribedBy uuid.UUID, req PrescriptionRequest) (*Prescription, error) {
	if len(req.Items) == 0 {
		return nil, apperr.Invalid("at least one item is required")
	}
	if err := s.patients.Exists(ctx, req.PatientID); err != nil {
		return nil, err
	}
	p := &Prescription{
		PatientID:    req.PatientID,
		PrescribedBy: prescribedBy,
		Status:       StatusPending,
		Notes:        req.Notes,
	}
	for _, it := range req.Items {
		m, err := s.meds.GetByID(ctx, it.MedicationID)
		if err != nil {
			return nil, err
		}
		if !m.IsActive {
			return nil, apperr.Invalid("medication %s is not active", m.Label())
		}
		p.Items = append(p.Items, &PrescriptionItem{
			MedicationID: it.MedicationID,
			Dosage:       it.Dosage,
			Frequency:    it.Frequency,
			DurationDays: it.DurationDays,
			Quantity:     it.Quantity,
			Instructions: it.Instructions,
		})
	}
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		return s.prescriptions.Create(ctx, p)
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) GetPrescription(ctx context.Context, id uuid.UUID) (*Prescription, error) {
	return s.prescriptions.GetByID(ctx, id)
}

func (s *Service) ListPrescriptions(ctx context.Context, f PrescriptionFilter, limit, offset int) ([]*Prescription, int, error) {
	return s.prescriptions.List(ctx, f, limit, offset)
}

// Dispense checks stock and expiry for every item, decrements stock and
// marks the prescription dispensed in one transaction. Billing and low-stock
// events are published after commit.
func (s *Service) Dispense(ctx context.Context, id, actor uuid.UUID) (*Prescription, error) {
	now := s.now().UTC()
	var (
		p    *Prescription
		meds = map[uuid.UUID]*Medication{}
	)
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		var err error
		if p, err = s.prescriptions.GetForUpdate(ctx, id); err != nil {
			return err
		}
		if err := transition(p, StatusDispensed); err != nil {
			return err
		}

		// Lock each medication once, in id order, and check the summed quantity.
		var order []uuid.UUID
		need := map[uuid.UUID]int{}
		for _, it := range p.Items {
			if _, ok := need[it.MedicationID]; !ok {
				order = append(order, it.MedicationID)
			}
			need[it.MedicationID] += it.Quantity
		}
		slices.SortFunc(order, func(a, b uuid.UUID) int { return bytes.Compare(a[:], b[:]) })
		for _, medID := range order {
			m, err := s.meds.GetForUpdate(ctx, medID)
			if err != nil {
				return err
			}
			if m.Expired(now) {
				return apperr.Invalid("%s is expired", m.Label())
			}
			if m.StockQuantity < need[medID] {
				return apperr.Invalid("insufficient stock for %s", m.Label())
			}
			meds[medID] = m
		}
		for _, medID := range order {
			m := meds[medID]
			m.StockQuantity -= need[medID]
			if err := s.meds.Update(ctx, m); err != nil {
				return err
			}
			err := s.meds.RecordMovement(ctx, &StockMovement{
				MedicationID: m.ID,
				Delta:        -need[medID],
				Balance:      m.StockQuantity,
				Reason:       "dispensed prescription " + p.ID.String(),
				CreatedBy:    &actor,
			})
			if err != nil {
				return err
			}
		}

		p.DispensedBy = &actor
		p.DispensedAt = &now
		return s.prescriptions.Update(ctx, p)
	})
	if err != nil {
		return nil, err
	}

	dispensed := queue.Dispensed{
		PrescriptionID: p.ID,
		PatientID:      p.PatientID,
		DispensedBy:    actor.String(),
		Items:          len(p.Items),
	}
	if err := s.events.Publish(ctx, queue.TopicPharmacyDispensed, dispensed); err != nil {
		s.logger.Error().Err(err).Str("prescription_id", p.ID.String()).Msg("publish dispensed failed")
	}
	for _, it := range p.Items {
		m := meds[it.MedicationID]
		charge := queue.Charge{
			PatientID:   p.PatientID,
			Category:    "pharmacy",
			Description: fmt.Sprintf("%s x%d", m.Label(), it.Quantity),
			Quantity:    it.Quantity,
			UnitPrice:   m.UnitPrice,
			SourceRef:   "prescription_item:" + it.ID.String(),
		}
		if err := s.events.Publish(ctx, queue.TopicBillingCharge, charge); err != nil {
			s.logger.Error().Err(err).Str("prescription_id", p.ID.String()).Msg("publish pharmacy charge failed")
		}
	}
	for _, m := range meds {
		if m.LowOnStock() {
			s.publishLowStock(ctx, m)
		}
	}
	s.logger.Info().Str("prescription_id", p.ID.String()).Int("items", len(p.Items)).Msg("prescription dispensed")
	return p, nil
}

func (s *Service) Cancel(ctx context.Context, id uuid.UUID, req CancelRequest) (*Prescription, error) {
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		return nil, apperr.Invalid("reason is required")
	}
	p, err := s.prescriptions.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := transition(p, StatusCancelled); err != nil {
		return nil, err
	}
	p.CancelReason = &reason
	if err := s.prescriptions.Update(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}
