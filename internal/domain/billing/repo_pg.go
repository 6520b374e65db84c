package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jashmhta/HMSSSS-sub000/internal/platform/apperr"
	"github.com/jashmhta/HMSSSS-sub000/internal/platform/db"
)

var (
	// errDuplicateInvoiceNumber is returned when a generated number collides.
	errDuplicateInvoiceNumber = apperr.Conflict("invoice number already exists")
	// errDuplicateSource is returned when an order has already been charged.
	errDuplicateSource = apperr.Conflict("charge already recorded")
)

type invoiceRepoPG struct{ pool *pgxpool.Pool }

func NewInvoiceRepoPG(pool *pgxpool.Pool) InvoiceRepository { return &invoiceRepoPG{pool: pool} }

const invoiceCols = `id, invoice_number, patient_id, status, subtotal, tax_rate, tax_amount, discount,
	total, amount_paid, balance, due_date, issued_at, cancel_reason, notes, created_by, created_at, updated_at`

func scanInvoice(row pgx.Row) (*Invoice, error) {
	var inv Invoice
	err := row.Scan(&inv.ID, &inv.InvoiceNumber, &inv.PatientID, &inv.Status, &inv.Subtotal, &inv.TaxRate,
		&inv.TaxAmount, &inv.Discount, &inv.Total, &inv.AmountPaid, &inv.Balance, &inv.DueDate,
		&inv.IssuedAt, &inv.CancelReason, &inv.Notes, &inv.CreatedBy, &inv.CreatedAt, &inv.UpdatedAt)
	if db.IsNoRows(err) {
		return nil, apperr.NotFound("invoice not found")
	}
	return &inv, err
}

func (r *invoiceRepoPG) Create(ctx context.Context, inv *Invoice) error {
	inv.ID = uuid.New()
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO invoices (id, invoice_number, patient_id, status, subtotal, tax_rate, tax_amount,
			discount, total, amount_paid, balance, notes, created_by)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		ON CONFLICT ON CONSTRAINT invoices_invoice_number_key DO NOTHING
		RETURNING created_at, updated_at`,
		inv.ID, inv.InvoiceNumber, inv.PatientID, inv.Status, inv.Subtotal, inv.TaxRate, inv.TaxAmount,
		inv.Discount, inv.Total, inv.AmountPaid, inv.Balance, inv.Notes, inv.CreatedBy,
	).Scan(&inv.CreatedAt, &inv.UpdatedAt)
	switch {
	case db.IsNoRows(err):
		return errDuplicateInvoiceNumber
	case db.IsForeignKeyViolation(err):
		return apperr.NotFound("patient not found")
	}
	return err
}

func (r *invoiceRepoPG) load(ctx context.Context, inv *Invoice) error {
	conn := db.Conn(ctx, r.pool)
	rows, err := conn.Query(ctx, `
		SELECT id, invoice_id, description, category, quantity, unit_price, amount, source_ref, created_at
		FROM invoice_items WHERE invoice_id = $1 ORDER BY created_at, id`, inv.ID)
	if err != nil {
		return err
	}
	inv.Items = []*InvoiceItem{}
	for rows.Next() {
		var it InvoiceItem
		if err := rows.Scan(&it.ID, &it.InvoiceID, &it.Description, &it.Category, &it.Quantity,
			&it.UnitPrice, &it.Amount, &it.SourceRef, &it.CreatedAt); err != nil {
			rows.Close()
			return err
		}
		inv.Items = append(inv.Items, &it)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	rows, err = conn.Query(ctx, `
		SELECT id, invoice_id, amount, method, reference, paid_at, received_by
		FROM payments WHERE invoice_id = $1 ORDER BY paid_at, id`, inv.ID)
	if err != nil {
		return err
	}
	defer rows.Close()
	inv.Payments = []*Payment{}
	for rows.Next() {
		var p Payment
		if err := rows.Scan(&p.ID, &p.InvoiceID, &p.Amount, &p.Method, &p.Reference, &p.PaidAt,
			&p.ReceivedBy); err != nil {
			return err
		}
		inv.Payments = append(inv.Payments, &p)
	}
	return rows.Err()
}

func (r *invoiceRepoPG) get(ctx context.Context, query string, arg any) (*Invoice, error) {
	inv, err := scanInvoice(db.Conn(ctx, r.pool).QueryRow(ctx, query, arg))
	if err != nil {
		return nil, err
	}
	if err := r.load(ctx, inv); err != nil {
		return nil, err
	}
	return inv, nil
}

func (r *invoiceRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Invoice, error) {
	return r.get(ctx, `SELECT `+invoiceCols+` FROM invoices WHERE id = $1`, id)
}

func (r *invoiceRepoPG) GetForUpdate(ctx context.Context, id uuid.UUID) (*Invoice, error) {
	return r.get(ctx, `SELECT `+invoiceCols+` FROM invoices WHERE id = $1 FOR UPDATE`, id)
}

func (r *invoiceRepoPG) FindOpenDraft(ctx context.Context, patientID uuid.UUID) (*Invoice, error) {
	return r.get(ctx, `SELECT `+invoiceCols+` FROM invoices
		WHERE patient_id = $1 AND status = 'draft'
		ORDER BY created_at DESC LIMIT 1 FOR UPDATE`, patientID)
}

func (r *invoiceRepoPG) Update(ctx context.Context, inv *Invoice) error {
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE invoices SET status=$2, subtotal=$3, tax_rate=$4, tax_amount=$5, discount=$6, total=$7,
			amount_paid=$8, balance=$9, due_date=$10, issued_at=$11, cancel_reason=$12, notes=$13,
			updated_at=NOW()
		WHERE id = $1
		RETURNING updated_at`,
		inv.ID, inv.Status, inv.Subtotal, inv.TaxRate, inv.TaxAmount, inv.Discount, inv.Total,
		inv.AmountPaid, inv.Balance, inv.DueDate, inv.IssuedAt, inv.CancelReason, inv.Notes,
	).Scan(&inv.UpdatedAt)
	if db.IsNoRows(err) {
		return apperr.NotFound("invoice not found")
	}
	return err
}

func (r *invoiceRepoPG) List(ctx context.Context, f InvoiceFilter, limit, offset int) ([]*Invoice, int, error) {
	where := ` WHERE 1=1`
	args := []any{}
	idx := 1
	if f.PatientID != nil {
		where += fmt.Sprintf(" AND patient_id = $%d", idx)
		args = append(args, *f.PatientID)
		idx++
	}
	if f.Status != "" {
		where += fmt.Sprintf(" AND status = $%d", idx)
		args = append(args, f.Status)
		idx++
	}
	if f.From != nil {
		where += fmt.Sprintf(" AND created_at >= $%d", idx)
		args = append(args, *f.From)
		idx++
	}
	if f.To != nil {
		where += fmt.Sprintf(" AND created_at < $%d", idx)
		args = append(args, *f.To)
		idx++
	}

	conn := db.Conn(ctx, r.pool)
	var total int
	if err := conn.QueryRow(ctx, `SELECT COUNT(*) FROM invoices`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	query := `SELECT ` + invoiceCols + ` FROM invoices` + where +
		fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", idx, idx+1)
	args = append(args, limit, offset)
	rows, err := conn.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, inv)
	}
	return items, total, rows.Err()
}

func (r *invoiceRepoPG) AddItem(ctx context.Context, it *InvoiceItem) error {
	it.ID = uuid.New()
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO invoice_items (id, invoice_id, description, category, quantity, unit_price, amount, source_ref)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (source_ref) WHERE source_ref IS NOT NULL DO NOTHING
		RETURNING created_at`,
		it.ID, it.InvoiceID, it.Description, it.Category, it.Quantity, it.UnitPrice, it.Amount, it.SourceRef,
	).Scan(&it.CreatedAt)
	if db.IsNoRows(err) {
		return errDuplicateSource
	}
	return err
}

func (r *invoiceRepoPG) RemoveItem(ctx context.Context, invoiceID, itemID uuid.UUID) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx,
		`DELETE FROM invoice_items WHERE id = $1 AND invoice_id = $2`, itemID, invoiceID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("invoice item not found")
	}
	return nil
}

func (r *invoiceRepoPG) AddPayment(ctx context.Context, p *Payment) error {
	p.ID = uuid.New()
	_, err := db.Conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO payments (id, invoice_id, amount, method, reference, paid_at, received_by)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		p.ID, p.InvoiceID, p.Amount, p.Method, p.Reference, p.PaidAt, p.ReceivedBy)
	return err
}

func (r *invoiceRepoPG) Summary(ctx context.Context, from, to time.Time) (*Summary, error) {
	conn := db.Conn(ctx, r.pool)
	s := &Summary{From: from, To: to, CountByStatus: map[string]int{}}

	rows, err := conn.Query(ctx, `
		SELECT status, COUNT(*) FROM invoices
		WHERE created_at >= $1 AND created_at < $2
		GROUP BY status`, from, to)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			rows.Close()
			return nil, err
		}
		s.CountByStatus[status] = n
		s.InvoiceCount += n
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := conn.QueryRow(ctx, `
		SELECT COALESCE(SUM(total), 0), COALESCE(SUM(balance), 0) FROM invoices
		WHERE issued_at >= $1 AND issued_at < $2 AND status <> 'cancelled'`, from, to,
	).Scan(&s.Invoiced, &s.Outstanding); err != nil {
		return nil, err
	}
	if err := conn.QueryRow(ctx, `
		SELECT COALESCE(SUM(amount), 0) FROM payments WHERE paid_at >= $1 AND paid_at < $2`, from, to,
	).Scan(&s.Collected); err != nil {
		return nil, err
	}
	return s, nil
}
