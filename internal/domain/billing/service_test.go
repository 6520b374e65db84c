package billing

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jashmhta/HMSSSS-sub000/internal/platform/apperr"
	"github.com/jashmhta/HMSSSS-sub000/internal/platform/db"
	"github.com/jashmhta/HMSSSS-sub000/internal/platform/queue"
)

var testNow = time.Date(2024, 6, 15, 9, 0, 0, 0, time.UTC)

type mockInvoiceRepo struct {
	invoices   map[uuid.UUID]*Invoice
	items      map[uuid.UUID][]*InvoiceItem
	payments   map[uuid.UUID][]*Payment
	sources    map[string]bool
	collisions int
	summary    *Summary
}

func newMockInvoiceRepo() *mockInvoiceRepo {
	return &mockInvoiceRepo{
		invoices: make(map[uuid.UUID]*Invoice),
		items:    make(map[uuid.UUID][]*InvoiceItem),
		payments: make(map[uuid.UUID][]*Payment),
		sources:  make(map[string]bool),
	}
}

func (m *mockInvoiceRepo) Create(_ context.Context, inv *Invoice) error {
	if m.collisions > 0 {
		m.collisions--
		return errDuplicateInvoiceNumber
	}
	inv.ID = uuid.New()
	inv.CreatedAt = testNow
	cp := *inv
	m.invoices[inv.ID] = &cp
	return nil
}

func (m *mockInvoiceRepo) GetByID(_ context.Context, id uuid.UUID) (*Invoice, error) {
	inv, ok := m.invoices[id]
	if !ok {
		return nil, apperr.NotFound("invoice not found")
	}
	cp := *inv
	cp.Items = append([]*InvoiceItem{}, m.items[id]...)
	cp.Payments = append([]*Payment{}, m.payments[id]...)
	return &cp, nil
}

func (m *mockInvoiceRepo) GetForUpdate(ctx context.Context, id uuid.UUID) (*Invoice, error) {
	return m.GetByID(ctx, id)
}

func (m *mockInvoiceRepo) FindOpenDraft(ctx context.Context, patientID uuid.UUID) (*Invoice, error) {
	for _, inv := range m.invoices {
		if inv.PatientID == patientID && inv.Status == StatusDraft {
			return m.GetByID(ctx, inv.ID)
		}
	}
	return nil, apperr.NotFound("invoice not found")
}

func (m *mockInvoiceRepo) Update(_ context.Context, inv *Invoice) error {
	cp := *inv
	cp.Items, cp.Payments = nil, nil
	m.invoices[inv.ID] = &cp
	return nil
}

func (m *mockInvoiceRepo) List(_ context.Context, f InvoiceFilter, _, _ int) ([]*Invoice, int, error) {
	var out []*Invoice
	for _, inv := range m.invoices {
		if f.Status != "" && inv.Status != f.Status {
			continue
		}
		out = append(out, inv)
	}
	return out, len(out), nil
}

func (m *mockInvoiceRepo) AddItem(_ context.Context, it *InvoiceItem) error {
	if it.SourceRef != nil {
		if m.sources[*it.SourceRef] {
			return errDuplicateSource
		}
		m.sources[*it.SourceRef] = true
	}
	it.ID = uuid.New()
	m.items[it.InvoiceID] = append(m.items[it.InvoiceID], it)
	return nil
}

func (m *mockInvoiceRepo) RemoveItem(_ context.Context, invoiceID, itemID uuid.UUID) error {
	rows := m.items[invoiceID]
	for i, it := range rows {
		if it.ID == itemID {
			m.items[invoiceID] = append(rows[:i:i], rows[i+1:]...)
			return nil
		}
	}
	return apperr.NotFound("invoice item not found")
}

func (m *mockInvoiceRepo) AddPayment(_ context.Context, p *Payment) error {
	p.ID = uuid.New()
	m.payments[p.InvoiceID] = append(m.payments[p.InvoiceID], p)
	return nil
}

func (m *mockInvoiceRepo) Summary(_ context.Context, from, to time.Time) (*Summary, error) {
	s := *m.summary
	s.From, s.To = from, to
	return &s, nil
}

type stubPatients map[uuid.UUID]bool

func (p stubPatients) Exists(_ context.Context, id uuid.UUID) error {
	if !p[id] {
		return apperr.NotFound("patient not found")
	}
	return nil
}

type fixture struct {
	svc       *Service
	repo      *mockInvoiceRepo
	patientID uuid.UUID
	clerk     uuid.UUID
}

func newFixture() *fixture {
	f := &fixture{repo: newMockInvoiceRepo(), patientID: uuid.New(), clerk: uuid.New()}
	f.svc = NewService(f.repo, stubPatients{f.patientID: true}, db.NoTx{}, zerolog.Nop())
	f.svc.now = func() time.Time { return testNow }
	return f
}

func (f *fixture) draft(t *testing.T, items ...ItemRequest) *Invoice {
	t.Helper()
	inv, err := f.svc.CreateInvoice(context.Background(), f.clerk, InvoiceRequest{PatientID: f.patientID, Items: items})
	require.NoError(t, err)
	return inv
}

func (f *fixture) issued(t *testing.T, items ...ItemRequest) *Invoice {
	t.Helper()
	inv := f.draft(t, items...)
	inv, err := f.svc.Issue(context.Background(), inv.ID, IssueRequest{})
	require.NoError(t, err)
	return inv
}

func consult(price float64) ItemRequest {
	return ItemRequest{Description: "Consultation", Category: "consultation", Quantity: 1, UnitPrice: price}
}

func TestCreateInvoice(t *testing.T) {
	f := newFixture()
	f.repo.collisions = 2

	inv, err := f.svc.CreateInvoice(context.Background(), f.clerk, InvoiceRequest{
		PatientID: f.patientID,
		TaxRate:   0.1,
		Discount:  10,
		Items: []ItemRequest{
			{Description: "Syringe", Category: "procedure", Quantity: 3, UnitPrice: 19.99},
			consult(120),
		},
	})
	require.NoError(t, err)
	assert.Regexp(t, `^INV202406\d{6}$`, inv.InvoiceNumber)
	assert.Equal(t, StatusDraft, inv.Status)
	assert.Equal(t, 179.97, inv.Subtotal)
	assert.Equal(t, 18.00, inv.TaxAmount)
	assert.Equal(t, 187.97, inv.Total)
	assert.Equal(t, 187.97, inv.Balance)
	assert.Len(t, f.repo.items[inv.ID], 2)

	_, err = f.svc.CreateInvoice(context.Background(), f.clerk, InvoiceRequest{PatientID: uuid.New()})
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestCreateInvoice_DiscountTooLarge(t *testing.T) {
	f := newFixture()
	_, err := f.svc.CreateInvoice(context.Background(), f.clerk, InvoiceRequest{
		PatientID: f.patientID, Discount: 50.01, Items: []ItemRequest{consult(50)},
	})
	assert.EqualError(t, err, "discount cannot exceed subtotal plus tax")
}

func TestDraftEditing(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	inv := f.draft(t, consult(80))

	inv, err := f.svc.AddItem(ctx, inv.ID, ItemRequest{Description: "Ward bed", Category: "room", Quantity: 2, UnitPrice: 150})
	require.NoError(t, err)
	assert.Equal(t, 380.0, inv.Total)
	require.Len(t, inv.Items, 2)

	inv, err = f.svc.RemoveItem(ctx, inv.ID, inv.Items[0].ID)
	require.NoError(t, err)
	assert.Equal(t, 300.0, inv.Subtotal)

	rate := 0.05
	inv, err = f.svc.Adjust(ctx, inv.ID, AdjustRequest{TaxRate: &rate})
	require.NoError(t, err)
	assert.Equal(t, 15.0, inv.TaxAmount)
	assert.Equal(t, 315.0, inv.Total)

	_, err = f.svc.RemoveItem(ctx, inv.ID, uuid.New())
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	_, err = f.svc.Issue(ctx, inv.ID, IssueRequest{})
	require.NoError(t, err)
	_, err = f.svc.AddItem(ctx, inv.ID, consult(10))
	assert.EqualError(t, err, "only draft invoices can be modified (status issued)")
}

func TestIssue(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	empty := f.draft(t)
	_, err := f.svc.Issue(ctx, empty.ID, IssueRequest{})
	assert.EqualError(t, err, "cannot issue an invoice without items")

	inv := f.issued(t, consult(100))
	assert.Equal(t, StatusIssued, inv.Status)
	assert.Equal(t, time.Date(2024, 7, 15, 0, 0, 0, 0, time.UTC), *inv.DueDate)
	assert.Equal(t, testNow, *inv.IssuedAt)

	_, err = f.svc.Issue(ctx, inv.ID, IssueRequest{})
	assert.EqualError(t, err, "invalid status transition from issued to issued")

	past := "2024-06-01"
	other := f.draft(t, consult(1))
	_, err = f.svc.Issue(ctx, other.ID, IssueRequest{DueDate: &past})
	assert.EqualError(t, err, "due_date cannot be in the past")
}

func TestIssue_FullyDiscountedIsPaid(t *testing.T) {
	f := newFixture()
	inv, err := f.svc.CreateInvoice(context.Background(), f.clerk, InvoiceRequest{
		PatientID: f.patientID, Discount: 40, Items: []ItemRequest{consult(40)},
	})
	require.NoError(t, err)

	inv, err = f.svc.Issue(context.Background(), inv.ID, IssueRequest{})
	require.NoError(t, err)
	assert.Equal(t, StatusPaid, inv.Status)
}

func TestRecordPayment(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	inv := f.issued(t, consult(100))

	inv, err := f.svc.RecordPayment(ctx, inv.ID, f.clerk, PaymentRequest{Amount: 40.004, Method: "cash"})
	require.NoError(t, err)
	assert.Equal(t, StatusPartiallyPaid, inv.Status)
	assert.Equal(t, 40.0, inv.AmountPaid)
	assert.Equal(t, 60.0, inv.Balance)

	_, err = f.svc.RecordPayment(ctx, inv.ID, f.clerk, PaymentRequest{Amount: 60.01, Method: "card"})
	assert.EqualError(t, err, "payment of 60.01 exceeds balance 60.00")

	inv, err = f.svc.RecordPayment(ctx, inv.ID, f.clerk, PaymentRequest{Amount: 60, Method: "card"})
	require.NoError(t, err)
	assert.Equal(t, StatusPaid, inv.Status)
	assert.Equal(t, 0.0, inv.Balance)
	assert.Len(t, inv.Payments, 2)

	_, err = f.svc.RecordPayment(ctx, inv.ID, f.clerk, PaymentRequest{Amount: 1, Method: "cash"})
	assert.EqualError(t, err, "payments can only be recorded against issued invoices (status paid)")

	draft := f.draft(t, consult(5))
	_, err = f.svc.RecordPayment(ctx, draft.ID, f.clerk, PaymentRequest{Amount: 5, Method: "cash"})
	assert.True(t, apperr.Is(err, apperr.KindInvalid))
}

func TestCancel(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	_, err := f.svc.Cancel(ctx, uuid.New(), CancelRequest{Reason: ""})
	assert.EqualError(t, err, "reason is required")

	draft := f.draft(t, consult(5))
	got, err := f.svc.Cancel(ctx, draft.ID, CancelRequest{Reason: "duplicate"})
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, got.Status)

	paid := f.issued(t, consult(50))
	_, err = f.svc.RecordPayment(ctx, paid.ID, f.clerk, PaymentRequest{Amount: 10, Method: "cash"})
	require.NoError(t, err)
	_, err = f.svc.Cancel(ctx, paid.ID, CancelRequest{Reason: "error"})
	assert.EqualError(t, err, "cannot cancel an invoice with payments")
}

func TestApplyCharge(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	inv, err := f.svc.ApplyCharge(ctx, queue.Charge{
		PatientID: f.patientID, Category: "laboratory", Description: "Potassium", Quantity: 1,
		UnitPrice: 12.5, SourceRef: "lab_test:1",
	})
	require.NoError(t, err)
	assert.Equal(t, StatusDraft, inv.Status)
	assert.Equal(t, 12.5, inv.Total)

	again, err := f.svc.ApplyCharge(ctx, queue.Charge{
		PatientID: f.patientID, Category: "gift_shop", Description: "Flowers", UnitPrice: 20, SourceRef: "misc:1",
	})
	require.NoError(t, err)
	assert.Equal(t, inv.ID, again.ID)
	assert.Equal(t, 32.5, again.Total)
	assert.Equal(t, "other", again.Items[1].Category)
	assert.Equal(t, 1, again.Items[1].Quantity)

	dup, err := f.svc.ApplyCharge(ctx, queue.Charge{
		PatientID: f.patientID, Category: "laboratory", Quantity: 1, UnitPrice: 12.5, SourceRef: "lab_test:1",
	})
	require.NoError(t, err)
	assert.Nil(t, dup)
	stored, _ := f.repo.GetByID(ctx, inv.ID)
	assert.Len(t, stored.Items, 2)
	assert.Equal(t, 32.5, stored.Total)

	_, err = f.svc.Issue(ctx, inv.ID, IssueRequest{})
	require.NoError(t, err)
	next, err := f.svc.ApplyCharge(ctx, queue.Charge{PatientID: f.patientID, Category: "pharmacy", Quantity: 2, UnitPrice: 0.35})
	require.NoError(t, err)
	assert.NotEqual(t, inv.ID, next.ID)
	assert.Equal(t, 0.7, next.Total)
}

func TestConsumer_DropsInvalidCharge(t *testing.T) {
	f := newFixture()
	c := NewConsumer(f.svc, zerolog.Nop())

	payload, err := json.Marshal(queue.Charge{Category: "pharmacy", Quantity: 1, UnitPrice: 1})
	require.NoError(t, err)
	require.NoError(t, c.HandleCharge(context.Background(), payload))
	assert.Empty(t, f.repo.invoices)

	payload, err = json.Marshal(queue.Charge{PatientID: f.patientID, Category: "radiology", Quantity: 1, UnitPrice: 320})
	require.NoError(t, err)
	require.NoError(t, c.HandleCharge(context.Background(), payload))
	assert.Len(t, f.repo.invoices, 1)

	assert.Error(t, c.HandleCharge(context.Background(), []byte(`{not json`)))
}

func TestSummary(t *testing.T) {
	f := newFixture()
	f.repo.summary = &Summary{InvoiceCount: 3, Invoiced: 100.004, Collected: 40.5, Outstanding: 59.496,
		CountByStatus: map[string]int{StatusPaid: 1, StatusIssued: 2}}
	from := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	sum, err := f.svc.Summary(context.Background(), from, from.AddDate(0, 1, 0))
	require.NoError(t, err)
	assert.Equal(t, 100.0, sum.Invoiced)
	assert.Equal(t, 59.5, sum.Outstanding)
	assert.Equal(t, from, sum.From)

	_, err = f.svc.Summary(context.Background(), from, from)
	assert.EqualError(t, err, "to must be after from")
}
