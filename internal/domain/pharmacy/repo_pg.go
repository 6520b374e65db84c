package pharmacy

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jashmhta/HMSSSS-sub000/internal/platform/apperr"
	"github.com/jashmhta/HMSSSS-sub000/internal/platform/db"
)

const medicationNameStrengthKey = "medications_name_strength_key"

// -- Medications --

type medicationRepoPG struct{ pool *pgxpool.Pool }

func NewMedicationRepoPG(pool *pgxpool.Pool) MedicationRepository {
	return &medicationRepoPG{pool: pool}
}

const medicationCols = `id, name, generic_name, form, strength, manufacturer, category, unit_price,
	stock_quantity, reorder_level, batch_number, expiry_date, requires_prescription, is_controlled,
	is_active, created_at, updated_at`

func scanMedication(row pgx.Row) (*Medication, error) {
	var m Medication
	err := row.Scan(&m.ID, &m.Name, &m.GenericName, &m.Form, &m.Strength, &m.Manufacturer, &m.Category,
		&m.UnitPrice, &m.StockQuantity, &m.ReorderLevel, &m.BatchNumber, &m.ExpiryDate,
		&m.RequiresPrescription, &m.IsControlled, &m.IsActive, &m.CreatedAt, &m.UpdatedAt)
	if db.IsNoRows(err) {
		return nil, apperr.NotFound("medication not found")
	}
	return &m, err
}

func (r *medicationRepoPG) Create(ctx context.Context, m *Medication) error {
	m.ID = uuid.New()
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO medications (id, name, generic_name, form, strength, manufacturer, category,
			unit_price, stock_quantity, reorder_level, batch_number, expiry_date, requires_prescription,
			is_controlled, is_active)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
		RETURNING created_at, updated_at`,
		m.ID, m.Name, m.GenericName, m.Form, m.Strength, m.Manufacturer, m.Category, m.UnitPrice,
		m.StockQuantity, m.ReorderLevel, m.BatchNumber, m.ExpiryDate, m.RequiresPrescription,
		m.IsControlled, m.IsActive,
	).Scan(&m.CreatedAt, &m.UpdatedAt)
	if db.IsUniqueViolation(err, medicationNameStrengthKey) {
		return apperr.Conflict("medication %s already exists", m.Label())
	}
	return err
}

func (r *medicationRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Medication, error) {
	return scanMedication(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+medicationCols+` FROM medications WHERE id = $1`, id))
}

func (r *medicationRepoPG) GetForUpdate(ctx context.Context, id uuid.UUID) (*Medication, error) {
	return scanMedication(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+medicationCols+` FROM medications WHERE id = $1 FOR UPDATE`, id))
}

func (r *medicationRepoPG) Update(ctx context.Context, m *Medication) error {
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE medications SET name=$2, generic_name=$3, form=$4, strength=$5, manufacturer=$6,
			category=$7, unit_price=$8, stock_quantity=$9, reorder_level=$10, batch_number=$11,
			expiry_date=$12, requires_prescription=$13, is_controlled=$14, is_active=$15, updated_at=NOW()
		WHERE id = $1
		RETURNING updated_at`,
		m.ID, m.Name, m.GenericName, m.Form, m.Strength, m.Manufacturer, m.Category, m.UnitPrice,
		m.StockQuantity, m.ReorderLevel, m.BatchNumber, m.ExpiryDate, m.RequiresPrescription,
		m.IsControlled, m.IsActive,
	).Scan(&m.UpdatedAt)
	switch {
	case db.IsNoRows(err):
		return apperr.NotFound("medication not found")
	case db.IsUniqueViolation(err, medicationNameStrengthKey):
		return apperr.Conflict("medication %s already exists", m.Label())
	}
	return err
}

func (r *medicationRepoPG) List(ctx context.Context, f MedicationFilter, limit, offset int) ([]*Medication, int, error) {
	where := ` WHERE 1=1`
	args := []any{}
	idx := 1
	if f.Query != "" {
		where += fmt.Sprintf(" AND (name ILIKE $%d OR generic_name ILIKE $%d)", idx, idx)
		args = append(args, "%"+f.Query+"%")
		idx++
	}
	if f.Category != "" {
		where += fmt.Sprintf(" AND category = $%d", idx)
		args = append(args, f.Category)
		idx++
	}
	if f.ActiveOnly {
		where += " AND is_active"
	}

	conn := db.Conn(ctx, r.pool)
	var total int
	if err := conn.QueryRow(ctx, `SELECT COUNT(*) FROM medications`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	query := `SELECT ` + medicationCols + ` FROM medications` + where +
		fmt.Sprintf(" ORDER BY name, strength LIMIT $%d OFFSET $%d", idx, idx+1)
	args = append(args, limit, offset)
	rows, err := conn.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	return collectMedications(rows, total)
}

func (r *medicationRepoPG) LowStock(ctx context.Context) ([]*Medication, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `SELECT `+medicationCols+` FROM medications
		WHERE is_active AND stock_quantity <= reorder_level
		ORDER BY stock_quantity - reorder_level, name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items, _, err := collectMedications(rows, 0)
	return items, err
}

func collectMedications(rows pgx.Rows, total int) ([]*Medication, int, error) {
	var items []*Medication
	for rows.Next() {
		m, err := scanMedication(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, m)
	}
	return items, total, rows.Err()
}

func (r *medicationRepoPG) RecordMovement(ctx context.Context, mv *StockMovement) error {
	mv.ID = uuid.New()
	return db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO stock_movements (id, medication_id, delta, balance, reason, created_by)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING created_at`,
		mv.ID, mv.MedicationID, mv.Delta, mv.Balance, mv.Reason, mv.CreatedBy,
	).Scan(&mv.CreatedAt)
}

func (r *medicationRepoPG) ListMovements(ctx context.Context, medicationID uuid.UUID, limit, offset int) ([]*StockMovement, int, error) {
	conn := db.Conn(ctx, r.pool)
	var total int
	if err := conn.QueryRow(ctx, `SELECT COUNT(*) FROM stock_movements WHERE medication_id = $1`,
		medicationID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := conn.Query(ctx, `
		SELECT id, medication_id, delta, balance, reason, created_by, created_at
		FROM stock_movements WHERE medication_id = $1
		ORDER BY created_at DESC LIMIT $2 OFFSET $3`, medicationID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*StockMovement
	for rows.Next() {
		var mv StockMovement
		if err := rows.Scan(&mv.ID, &mv.MedicationID, &mv.Delta, &mv.Balance, &mv.Reason,
			&mv.CreatedBy, &mv.CreatedAt); err != nil {
			return nil, 0, err
		}
		items = append(items, &mv)
	}
	return items, total, rows.Err()
}

// -- Prescriptions --

type prescriptionRepoPG struct{ pool *pgxpool.Pool }

func NewPrescriptionRepoPG(pool *pgxpool.Pool) PrescriptionRepository {
	return &prescriptionRepoPG{pool: pool}
}

const prescriptionCols = `id, patient_id, prescribed_by, status, notes, dispensed_by, dispensed_at,
	cancel_reason, created_at, updated_at`

func scanPrescription(row pgx.Row) (*Prescription, error) {
	var p Prescription
	err := row.Scan(&p.ID, &p.PatientID, &p.PrescribedBy, &p.Status, &p.Notes, &p.DispensedBy,
		&p.DispensedAt, &p.CancelReason, &p.CreatedAt, &p.UpdatedAt)
	if db.IsNoRows(err) {
		return nil, apperr.NotFound("prescription not found")
	}
	return &p, err
}

func (r *prescriptionRepoPG) Create(ctx context.Context, p *Prescription) error {
	p.ID = uuid.New()
	conn := db.Conn(ctx, r.pool)
	err := conn.QueryRow(ctx, `
		INSERT INTO prescriptions (id, patient_id, prescribed_by, status, notes)
		VALUES ($1,$2,$3,$4,$5)
		RETURNING created_at, updated_at`,
		p.ID, p.PatientID, p.PrescribedBy, p.Status, p.Notes,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if db.IsForeignKeyViolation(err) {
		return apperr.NotFound("patient not found")
	}
	if err != nil {
		return err
	}
	for _, it := range p.Items {
		it.ID = uuid.New()
		it.PrescriptionID = p.ID
		_, err := conn.Exec(ctx, `
			INSERT INTO prescription_items (id, prescription_id, medication_id, dosage, frequency,
				duration_days, quantity, instructions)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
			it.ID, it.PrescriptionID, it.MedicationID, it.Dosage, it.Frequency, it.DurationDays,
			it.Quantity, it.Instructions)
		if db.IsForeignKeyViolation(err) {
			return apperr.NotFound("medication %s not found", it.MedicationID)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *prescriptionRepoPG) loadItems(ctx context.Context, p *Prescription) error {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `
		SELECT id, prescription_id, medication_id, dosage, frequency, duration_days, quantity, instructions
		FROM prescription_items WHERE prescription_id = $1 ORDER BY id`, p.ID)
	if err != nil {
		return err
	}
	defer rows.Close()
	p.Items = []*PrescriptionItem{}
	for rows.Next() {
		var it PrescriptionItem
		if err := rows.Scan(&it.ID, &it.PrescriptionID, &it.MedicationID, &it.Dosage, &it.Frequency,
			&it.DurationDays, &it.Quantity, &it.Instructions); err != nil {
			return err
		}
		p.Items = append(p.Items, &it)
	}
	return rows.Err()
}

func (r *prescriptionRepoPG) get(ctx context.Context, query string, id uuid.UUID) (*Prescription, error) {
	p, err := scanPrescription(db.Conn(ctx, r.pool).QueryRow(ctx, query, id))
	if err != nil {
		return nil, err
	}
	if err := r.loadItems(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (r *prescriptionRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Prescription, error) {
	return r.get(ctx, `SELECT `+prescriptionCols+` FROM prescriptions WHERE id = $1`, id)
}

func (r *prescriptionRepoPG) GetForUpdate(ctx context.Context, id uuid.UUID) (*Prescription, error) {
	return r.get(ctx, `SELECT `+prescriptionCols+` FROM prescriptions WHERE id = $1 FOR UPDATE`, id)
}

func (r *prescriptionRepoPG) Update(ctx context.Context, p *Prescription) error {
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE prescriptions SET status=$2, notes=$3, dispensed_by=$4, dispensed_at=$5,
			cancel_reason=$6, updated_at=NOW()
		WHERE id = $1
		RETURNING updated_at`,
		p.ID, p.Status, p.Notes, p.DispensedBy, p.DispensedAt, p.CancelReason,
	).Scan(&p.UpdatedAt)
	if db.IsNoRows(err) {
		return apperr.NotFound("prescription not found")
	}
	return err
}

func (r *prescriptionRepoPG) List(ctx context.Context, f PrescriptionFilter, limit, offset int) ([]*Prescription, int, error) {
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

	conn := db.Conn(ctx, r.pool)
	var total int
	if err := conn.QueryRow(ctx, `SELECT COUNT(*) FROM prescriptions`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	query := `SELECT ` + prescriptionCols + ` FROM prescriptions` + where +
		fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", idx, idx+1)
	args = append(args, limit, offset)
	rows, err := conn.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	var items []*Prescription
	for rows.Next() {
		p, err := scanPrescription(rows)
		if err != nil {
			rows.Close()
			return nil, 0, err
		}
		items = append(items, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	for _, p := range items {
		if err := r.loadItems(ctx, p); err != nil {
			return nil, 0, err
		}
	}
	return items, total, nil
}
