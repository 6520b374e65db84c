package billing

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jashmhta/HMSSSS-sub000/internal/platform/apperr"
	"github.com/jashmhta/HMSSSS-sub000/internal/platform/db"
	"github.com/jashmhta/HMSSSS-sub000/internal/platform/queue"
)

const invoiceNumberAttempts = 5

// NewInvoiceNumber returns INV + YYYYMM + six random digits.
func NewInvoiceNumber(now time.Time) (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", fmt.Errorf("generate invoice number: %w", err)
	}
	return fmt.Sprintf("%s%s%06d", InvoicePrefix, now.UTC().Format("200601"), n.Int64()), nil
}

type Service struct {
	invoices InvoiceRepository
	patients Patients
	tx       db.TxRunner
	logger   zerolog.Logger
	now      func() time.Time
}

func NewService(invoices InvoiceRepository, patients Patients, tx db.TxRunner, logger zerolog.Logger) *Service {
	return &Service{
		invoices: invoices,
		patients: patients,
		tx:       tx,
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

func transition(inv *Invoice, to string) error {
	if !canTransition(inv.Status, to) {
		return apperr.Invalid("invalid status transition from %s to %s", inv.Status, to)
	}
	inv.Status = to
	return nil
}

func requireDraft(inv *Invoice) error {
	if inv.Status != StatusDraft {
		return apperr.Invalid("only draft invoices can be modified (status %s)", inv.Status)
	}
	return nil
}

func newItem(invoiceID uuid.UUID, req ItemRequest) *InvoiceItem {
	return &InvoiceItem{
		InvoiceID:   invoiceID,
		Description: strings.TrimSpace(req.Description),
		Category:    req.Category,
		Quantity:    req.Quantity,
		UnitPrice:   round2(req.UnitPrice),
		Amount:      round2(float64(req.Quantity) * req.UnitPrice),
		SourceRef:   req.SourceRef,
	}
}

// create allocates an invoice number for inv and stores it.
func (s *Service) create(ctx context.Context, inv *Invoice) error {
	for attempt := 0; attempt < invoiceNumberAttempts; attempt++ {
		number, err := NewInvoiceNumber(s.now())
		if err != nil {
			return err
		}
		inv.InvoiceNumber = number
		err = s.invoices.Create(ctx, inv)
		if err == nil {
			return nil
		}
		if !errors.Is(err, errDuplicateInvoiceNumber) {
			return err
		}
	}
	return apperr.Conflict("could not allocate a unique invoice number")
}

func (s *Service) CreateInvoice(ctx context.Context, createdBy uuid.UUID, req InvoiceRequest) (*Invoice, error) {
	if err := s.patients.Exists(ctx, req.PatientID); err != nil {
		return nil, err
	}
	inv := &Invoice{
		PatientID: req.PatientID,
		Status:    StatusDraft,
		TaxRate:   req.TaxRate,
		Discount:  req.Discount,
		Notes:     req.Notes,
		CreatedBy: &createdBy,
		Items:     []*InvoiceItem{},
		Payments:  []*Payment{},
	}
	for _, it := range req.Items {
		inv.Items = append(inv.Items, newItem(uuid.Nil, it))
	}
	if err := recalculate(inv); err != nil {
		return nil, err
	}
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := s.create(ctx, inv); err != nil {
			return err
		}
		for _, it := range inv.Items {
			it.InvoiceID = inv.ID
			if err := s.invoices.AddItem(ctx, it); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return inv, nil
}

func (s *Service) GetInvoice(ctx context.Context, id uuid.UUID) (*Invoice, error) {
	return s.invoices.GetByID(ctx, id)
}

func (s *Service) ListInvoices(ctx context.Context, f InvoiceFilter, limit, offset int) ([]*Invoice, int, error) {
	return s.invoices.List(ctx, f, limit, offset)
}

// modify runs fn on the locked invoice, recalculates it and saves it.
func (s *Service) modify(ctx context.Context, id uuid.UUID, fn func(ctx context.Context, inv *Invoice) error) (*Invoice, error) {
	var inv *Invoice
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		var err error
		if inv, err = s.invoices.GetForUpdate(ctx, id); err != nil {
			return err
		}
		if err := fn(ctx, inv); err != nil {
			return err
		}
		if err := recalculate(inv); err != nil {
			return err
		}
		return s.invoices.Update(ctx, inv)
	})
	if err != nil {
		return nil, err
	}
	return inv, nil
}

func (s *Service) AddItem(ctx context.Context, id uuid.UUID, req ItemRequest) (*Invoice, error) {
	return s.modify(ctx, id, func(ctx context.Context, inv *Invoice) error {
		if err := requireDraft(inv); err != nil {
			return err
		}
		it := newItem(inv.ID, req)
		if err := s.invoices.AddItem(ctx, it); err != nil {
			return err
		}
		inv.Items = append(inv.Items, it)
		return nil
	})
}

func (s *Service) RemoveItem(ctx context.Context, id, itemID uuid.UUID) (*Invoice, error) {
	return s.modify(ctx, id, func(ctx context.Context, inv *Invoice) error {
		if err := requireDraft(inv); err != nil {
			return err
		}
		if err := s.invoices.RemoveItem(ctx, inv.ID, itemID); err != nil {
			return err
		}
		kept := inv.Items[:0]
		for _, it := range inv.Items {
			if it.ID != itemID {
				kept = append(kept, it)
			}
		}
		inv.Items = kept
		return nil
	})
}

// Adjust changes the tax rate, discount or notes of a draft.
func (s *Service) Adjust(ctx context.Context, id uuid.UUID, req AdjustRequest) (*Invoice, error) {
	return s.modify(ctx, id, func(_ context.Context, inv *Invoice) error {
		if err := requireDraft(inv); err != nil {
			return err
		}
		if req.TaxRate != nil {
			inv.TaxRate = *req.TaxRate
		}
		if req.Discount != nil {
			inv.Discount = *req.Discount
		}
		if req.Notes != nil {
			inv.Notes = req.Notes
		}
		return nil
	})
}

// Issue finalizes a draft. An invoice whose total is fully discounted is
// paid on issue.
func (s *Service) Issue(ctx context.Context, id uuid.UUID, req IssueRequest) (*Invoice, error) {
	now := s.now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	due := today.AddDate(0, 0, DefaultDueDays)
	if req.DueDate != nil {
		d, err := time.Parse("2006-01-02", *req.DueDate)
		if err != nil {
			return nil, apperr.Invalid("due_date must be a date in YYYY-MM-DD format")
		}
		if d.Before(today) {
			return nil, apperr.Invalid("due_date cannot be in the past")
		}
		due = d
	}
	return s.modify(ctx, id, func(_ context.Context, inv *Invoice) error {
		if inv.Status == StatusDraft && len(inv.Items) == 0 {
			return apperr.Invalid("cannot issue an invoice without items")
		}
		if err := transition(inv, StatusIssued); err != nil {
			return err
		}
		inv.DueDate = &due
		inv.IssuedAt = &now
		if inv.Total == 0 {
			return transition(inv, StatusPaid)
		}
		return nil
	})
}

func (s *Service) RecordPayment(ctx context.Context, id, receivedBy uuid.UUID, req PaymentRequest) (*Invoice, error) {
	amount := round2(req.Amount)
	if amount <= 0 {
		return nil, apperr.Invalid("amount must be greater than 0")
	}
	return s.modify(ctx, id, func(ctx context.Context, inv *Invoice) error {
		if inv.Status != StatusIssued && inv.Status != StatusPartiallyPaid {
			return apperr.Invalid("payments can only be recorded against issued invoices (status %s)", inv.Status)
		}
		if amount > inv.Balance {
			return apperr.Invalid("payment of %.2f exceeds balance %.2f", amount, inv.Balance)
		}
		p := &Payment{
			InvoiceID:  inv.ID,
			Amount:     amount,
			Method:     req.Method,
			Reference:  req.Reference,
			PaidAt:     s.now().UTC(),
			ReceivedBy: &receivedBy,
		}
		if err := s.invoices.AddPayment(ctx, p); err != nil {
			return err
		}
		inv.Payments = append(inv.Payments, p)
		inv.AmountPaid = round2(inv.AmountPaid + amount)
		next := StatusPartiallyPaid
		if round2(inv.Balance-amount) == 0 {
			next = StatusPaid
		}
		return transition(inv, next)
	})
}

func (s *Service) Cancel(ctx context.Context, id uuid.UUID, req CancelRequest) (*Invoice, error) {
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		return nil, apperr.Invalid("reason is required")
	}
	return s.modify(ctx, id, func(_ context.Context, inv *Invoice) error {
		if inv.AmountPaid > 0 || len(inv.Payments) > 0 {
			return apperr.Invalid("cannot cancel an invoice with payments")
		}
		if err := transition(inv, StatusCancelled); err != nil {
			return err
		}
		inv.CancelReason = &reason
		return nil
	})
}

// ApplyCharge adds a charge raised by another module to the patient's open
// draft, creating the draft when there is none. A charge whose source was
// already billed is ignored.
func (s *Service) ApplyCharge(ctx context.Context, ch queue.Charge) (*Invoice, error) {
	if ch.PatientID == uuid.Nil {
		return nil, apperr.Invalid("patient_id is required")
	}
	if ch.UnitPrice < 0 {
		return nil, apperr.Invalid("unit_price must be at least 0")
	}
	req := ItemRequest{
		Description: ch.Description,
		Category:    ch.Category,
		Quantity:    ch.Quantity,
		UnitPrice:   ch.UnitPrice,
	}
	if req.Quantity < 1 {
		req.Quantity = 1
	}
	if !validCategory(req.Category) {
		req.Category = "other"
	}
	if ch.SourceRef != "" {
		ref := ch.SourceRef
		req.SourceRef = &ref
	}

	var inv *Invoice
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		var err error
		inv, err = s.invoices.FindOpenDraft(ctx, ch.PatientID)
		switch {
		case apperr.Is(err, apperr.KindNotFound):
			inv = &Invoice{
				PatientID: ch.PatientID,
				Status:    StatusDraft,
				Items:     []*InvoiceItem{},
				Payments:  []*Payment{},
			}
			if err := s.create(ctx, inv); err != nil {
				return err
			}
		case err != nil:
			return err
		}
		it := newItem(inv.ID, req)
		if err := s.invoices.AddItem(ctx, it); err != nil {
			return err
		}
		inv.Items = append(inv.Items, it)
		if err := recalculate(inv); err != nil {
			return err
		}
		return s.invoices.Update(ctx, inv)
	})
	if errors.Is(err, errDuplicateSource) {
		s.logger.Debug().Str("source_ref", ch.SourceRef).Msg("charge already billed")
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	s.logger.Info().
		Str("invoice_number", inv.InvoiceNumber).
		Str("category", req.Category).
		Float64("amount", round2(float64(req.Quantity)*req.UnitPrice)).
		Msg("charge added to invoice")
	return inv, nil
}

func validCategory(c string) bool {
	for _, v := range Categories {
		if v == c {
			return true
		}
	}
	return false
}

func (s *Service) Summary(ctx context.Context, from, to time.Time) (*Summary, error) {
	if !to.After(from) {
		return nil, apperr.Invalid("to must be after from")
	}
	sum, err := s.invoices.Summary(ctx, from, to)
	if err != nil {
		return nil, err
	}
	sum.Invoiced = round2(sum.Invoiced)
	sum.Collected = round2(sum.Collected)
	sum.Outstanding = round2(sum.Outstanding)
	return sum, nil
}
