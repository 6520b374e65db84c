package laboratory

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jashmhta/HMSSSS-sub000/internal/platform/apperr"
	"github.com/jashmhta/HMSSSS-sub000/internal/platform/db"
)

// errDuplicateBarcode is returned when a generated sample barcode collides.
var errDuplicateBarcode = apperr.Conflict("sample barcode already exists")

// -- Catalog --

type catalogRepoPG struct{ pool *pgxpool.Pool }

func NewCatalogRepoPG(pool *pgxpool.Pool) CatalogRepository { return &catalogRepoPG{pool: pool} }

const catalogCols = `id, code, name, category, specimen_type, unit, reference_low, reference_high,
	critical_low, critical_high, price, turnaround_hours, is_active, created_at, updated_at`

func scanCatalog(row pgx.Row) (*CatalogEntry, error) {
	var c CatalogEntry
	err := row.Scan(&c.ID, &c.Code, &c.Name, &c.Category, &c.SpecimenType, &c.Unit, &c.ReferenceLow,
		&c.ReferenceHigh, &c.CriticalLow, &c.CriticalHigh, &c.Price, &c.TurnaroundHours, &c.IsActive,
		&c.CreatedAt, &c.UpdatedAt)
	if db.IsNoRows(err) {
		return nil, apperr.NotFound("lab test not found in catalog")
	}
	return &c, err
}

func (r *catalogRepoPG) Create(ctx context.Context, c *CatalogEntry) error {
	c.ID = uuid.New()
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO lab_test_catalog (id, code, name, category, specimen_type, unit, reference_low,
			reference_high, critical_low, critical_high, price, turnaround_hours, is_active)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		RETURNING created_at, updated_at`,
		c.ID, c.Code, c.Name, c.Category, c.SpecimenType, c.Unit, c.ReferenceLow, c.ReferenceHigh,
		c.CriticalLow, c.CriticalHigh, c.Price, c.TurnaroundHours, c.IsActive,
	).Scan(&c.CreatedAt, &c.UpdatedAt)
	if db.IsUniqueViolation(err, "lab_test_catalog_code_key") {
		return apperr.Conflict("lab test code %s already exists", c.Code)
	}
	return err
}

func (r *catalogRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*CatalogEntry, error) {
	return scanCatalog(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+catalogCols+` FROM lab_test_catalog WHERE id = $1`, id))
}

func (r *catalogRepoPG) Update(ctx context.Context, c *CatalogEntry) error {
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE lab_test_catalog SET code=$2, name=$3, category=$4, specimen_type=$5, unit=$6,
			reference_low=$7, reference_high=$8, critical_low=$9, critical_high=$10, price=$11,
			turnaround_hours=$12, is_active=$13, updated_at=NOW()
		WHERE id = $1
		RETURNING updated_at`,
		c.ID, c.Code, c.Name, c.Category, c.SpecimenType, c.Unit, c.ReferenceLow, c.ReferenceHigh,
		c.CriticalLow, c.CriticalHigh, c.Price, c.TurnaroundHours, c.IsActive,
	).Scan(&c.UpdatedAt)
	switch {
	case db.IsNoRows(err):
		return apperr.NotFound("lab test not found in catalog")
	case db.IsUniqueViolation(err, "lab_test_catalog_code_key"):
		return apperr.Conflict("lab test code %s already exists", c.Code)
	}
	return err
}

func (r *catalogRepoPG) List(ctx context.Context, activeOnly bool, limit, offset int) ([]*CatalogEntry, int, error) {
	where := ""
	if activeOnly {
		where = ` WHERE is_active`
	}
	conn := db.Conn(ctx, r.pool)
	var total int
	if err := conn.QueryRow(ctx, `SELECT COUNT(*) FROM lab_test_catalog`+where).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := conn.Query(ctx, `SELECT `+catalogCols+` FROM lab_test_catalog`+where+
		` ORDER BY code LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*CatalogEntry
	for rows.Next() {
		c, err := scanCatalog(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, c)
	}
	return items, total, rows.Err()
}

// -- Tests --

type testRepoPG struct{ pool *pgxpool.Pool }

func NewTestRepoPG(pool *pgxpool.Pool) TestRepository { return &testRepoPG{pool: pool} }

const testCols = `id, patient_id, catalog_id, test_code, test_name, ordered_by, priority, status,
	clinical_notes, sample_barcode, sample_collected_at, collected_by, started_at, completed_at,
	result_value, result_text, unit, reference_range, flag, verified_by, notes, lis_order_id,
	cancel_reason, created_at, updated_at`

func scanTest(row pgx.Row) (*LabTest, error) {
	var t LabTest
	err := row.Scan(&t.ID, &t.PatientID, &t.CatalogID, &t.TestCode, &t.TestName, &t.OrderedBy,
		&t.Priority, &t.Status, &t.ClinicalNotes, &t.SampleBarcode, &t.SampleCollectedAt, &t.CollectedBy,
		&t.StartedAt, &t.CompletedAt, &t.ResultValue, &t.ResultText, &t.Unit, &t.ReferenceRange, &t.Flag,
		&t.VerifiedBy, &t.Notes, &t.LISOrderID, &t.CancelReason, &t.CreatedAt, &t.UpdatedAt)
	if db.IsNoRows(err) {
		return nil, apperr.NotFound("lab test not found")
	}
	return &t, err
}

func (r *testRepoPG) Create(ctx context.Context, t *LabTest) error {
	t.ID = uuid.New()
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO lab_tests (id, patient_id, catalog_id, test_code, test_name, ordered_by, priority,
			status, clinical_notes, unit, reference_range)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		RETURNING created_at, updated_at`,
		t.ID, t.PatientID, t.CatalogID, t.TestCode, t.TestName, t.OrderedBy, t.Priority, t.Status,
		t.ClinicalNotes, t.Unit, t.ReferenceRange,
	).Scan(&t.CreatedAt, &t.UpdatedAt)
	if db.IsForeignKeyViolation(err) {
		return apperr.NotFound("referenced patient or catalog entry not found")
	}
	return err
}

func (r *testRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*LabTest, error) {
	return scanTest(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+testCols+` FROM lab_tests WHERE id = $1`, id))
}

func (r *testRepoPG) GetByBarcode(ctx context.Context, barcode string) (*LabTest, error) {
	return scanTest(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+testCols+` FROM lab_tests WHERE sample_barcode = $1`, barcode))
}

func (r *testRepoPG) Update(ctx context.Context, t *LabTest) error {
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE lab_tests SET status=$2, sample_barcode=$3, sample_collected_at=$4, collected_by=$5,
			started_at=$6, completed_at=$7, result_value=$8, result_text=$9, flag=$10, verified_by=$11,
			notes=$12, cancel_reason=$13, updated_at=NOW()
		WHERE id = $1
		RETURNING updated_at`,
		t.ID, t.Status, t.SampleBarcode, t.SampleCollectedAt, t.CollectedBy, t.StartedAt, t.CompletedAt,
		t.ResultValue, t.ResultText, t.Flag, t.VerifiedBy, t.Notes, t.CancelReason,
	).Scan(&t.UpdatedAt)
	switch {
	case db.IsNoRows(err):
		return apperr.NotFound("lab test not found")
	case db.IsUniqueViolation(err, "lab_tests_sample_barcode_key"):
		return errDuplicateBarcode
	}
	return err
}

func (r *testRepoPG) List(ctx context.Context, f TestFilter, limit, offset int) ([]*LabTest, int, error) {
	where := ` WHERE 1=1`
	var args []any
	idx := 1
	if f.PatientID != nil {
		where += fmt.Sprintf(` AND patient_id = $%d`, idx)
		args = append(args, *f.PatientID)
		idx++
	}
	if f.Status != "" {
		where += fmt.Sprintf(` AND status = $%d`, idx)
		args = append(args, f.Status)
		idx++
	}
	if f.Priority != "" {
		where += fmt.Sprintf(` AND priority = $%d`, idx)
		args = append(args, f.Priority)
		idx++
	}

	conn := db.Conn(ctx, r.pool)
	var total int
	if err := conn.QueryRow(ctx, `SELECT COUNT(*) FROM lab_tests`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	query := `SELECT ` + testCols + ` FROM lab_tests` + where +
		fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, idx, idx+1)
	rows, err := conn.Query(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*LabTest
	for rows.Next() {
		t, err := scanTest(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, t)
	}
	return items, total, rows.Err()
}

func (r *testRepoPG) SetLISOrderID(ctx context.Context, id uuid.UUID, orderID string) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx,
		`UPDATE lab_tests SET lis_order_id = $2, updated_at = NOW() WHERE id = $1`, id, orderID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("lab test not found")
	}
	return nil
}

// -- QC --

type qcRepoPG struct{ pool *pgxpool.Pool }

func NewQCRepoPG(pool *pgxpool.Pool) QCRepository { return &qcRepoPG{pool: pool} }

func (r *qcRepoPG) Create(ctx context.Context, q *QCRecord) error {
	q.ID = uuid.New()
	_, err := db.Conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO lab_qc_records (id, instrument_id, test_code, control_level, measured_value,
			target_mean, target_sd, z_score, status, rule, performed_by, performed_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		q.ID, q.InstrumentID, q.TestCode, q.ControlLevel, q.MeasuredValue, q.TargetMean, q.TargetSD,
		q.ZScore, q.Status, q.Rule, q.PerformedBy, q.PerformedAt)
	return err
}

func (r *qcRepoPG) List(ctx context.Context, f QCFilter, limit, offset int) ([]*QCRecord, int, error) {
	where := ` WHERE 1=1`
	var args []any
	idx := 1
	if f.InstrumentID != "" {
		where += fmt.Sprintf(` AND instrument_id = $%d`, idx)
		args = append(args, f.InstrumentID)
		idx++
	}
	if f.TestCode != "" {
		where += fmt.Sprintf(` AND test_code = $%d`, idx)
		args = append(args, f.TestCode)
		idx++
	}
	conn := db.Conn(ctx, r.pool)
	var total int
	if err := conn.QueryRow(ctx, `SELECT COUNT(*) FROM lab_qc_records`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	query := `SELECT id, instrument_id, test_code, control_level, measured_value, target_mean, target_sd,
		z_score, status, rule, performed_by, performed_at FROM lab_qc_records` + where +
		fmt.Sprintf(` ORDER BY performed_at DESC LIMIT $%d OFFSET $%d`, idx, idx+1)
	rows, err := conn.Query(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*QCRecord
	for rows.Next() {
		var q QCRecord
		if err := rows.Scan(&q.ID, &q.InstrumentID, &q.TestCode, &q.ControlLevel, &q.MeasuredValue,
			&q.TargetMean, &q.TargetSD, &q.ZScore, &q.Status, &q.Rule, &q.PerformedBy, &q.PerformedAt); err != nil {
			return nil, 0, err
		}
		items = append(items, &q)
	}
	return items, total, rows.Err()
}

func isDuplicateBarcode(err error) bool { return errors.Is(err, errDuplicateBarcode) }
