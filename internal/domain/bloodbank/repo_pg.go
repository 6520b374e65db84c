package bloodbank

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

var errDuplicateUnitNumber = apperr.Conflict("blood unit number already exists")

// -- Donors --

type donorRepoPG struct{ pool *pgxpool.Pool }

func NewDonorRepoPG(pool *pgxpool.Pool) DonorRepository { return &donorRepoPG{pool: pool} }

const donorCols = `id, first_name, last_name, date_of_birth, gender, blood_type, phone, email, weight_kg,
	last_donation_at, deferred_until, status, created_at, updated_at`

func scanDonor(row pgx.Row) (*Donor, error) {
	var d Donor
	err := row.Scan(&d.ID, &d.FirstName, &d.LastName, &d.DateOfBirth, &d.Gender, &d.BloodType, &d.Phone,
		&d.Email, &d.WeightKg, &d.LastDonationAt, &d.DeferredUntil, &d.Status, &d.CreatedAt, &d.UpdatedAt)
	if db.IsNoRows(err) {
		return nil, apperr.NotFound("donor not found")
	}
	return &d, err
}

func (r *donorRepoPG) Create(ctx context.Context, d *Donor) error {
	d.ID = uuid.New()
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO blood_donors (id, first_name, last_name, date_of_birth, gender, blood_type, phone,
			email, weight_kg, deferred_until, status)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		RETURNING created_at, updated_at`,
		d.ID, d.FirstName, d.LastName, d.DateOfBirth, d.Gender, d.BloodType, d.Phone, d.Email, d.WeightKg,
		d.DeferredUntil, d.Status,
	).Scan(&d.CreatedAt, &d.UpdatedAt)
	if db.IsUniqueViolation(err, "blood_donors_email_key") {
		return apperr.Conflict("a donor with this email already exists")
	}
	return err
}

func (r *donorRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Donor, error) {
	return scanDonor(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+donorCols+` FROM blood_donors WHERE id = $1`, id))
}

func (r *donorRepoPG) Update(ctx context.Context, d *Donor) error {
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE blood_donors SET first_name=$2, last_name=$3, date_of_birth=$4, gender=$5, blood_type=$6,
			phone=$7, email=$8, weight_kg=$9, last_donation_at=$10, deferred_until=$11, status=$12,
			updated_at=NOW()
		WHERE id = $1
		RETURNING updated_at`,
		d.ID, d.FirstName, d.LastName, d.DateOfBirth, d.Gender, d.BloodType, d.Phone, d.Email, d.WeightKg,
		d.LastDonationAt, d.DeferredUntil, d.Status,
	).Scan(&d.UpdatedAt)
	switch {
	case db.IsNoRows(err):
		return apperr.NotFound("donor not found")
	case db.IsUniqueViolation(err, "blood_donors_email_key"):
		return apperr.Conflict("a donor with this email already exists")
	}
	return err
}

func (r *donorRepoPG) List(ctx context.Context, f DonorFilter, limit, offset int) ([]*Donor, int, error) {
	where := ` WHERE 1=1`
	var args []any
	idx := 1
	if f.BloodType != "" {
		where += fmt.Sprintf(` AND blood_type = $%d`, idx)
		args = append(args, f.BloodType)
		idx++
	}
	if f.Status != "" {
		where += fmt.Sprintf(` AND status = $%d`, idx)
		args = append(args, f.Status)
		idx++
	}
	if f.Query != "" {
		where += fmt.Sprintf(` AND (first_name ILIKE $%d OR last_name ILIKE $%d)`, idx, idx)
		args = append(args, "%"+f.Query+"%")
		idx++
	}

	conn := db.Conn(ctx, r.pool)
	var total int
	if err := conn.QueryRow(ctx, `SELECT COUNT(*) FROM blood_donors`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	query := `SELECT ` + donorCols + ` FROM blood_donors` + where +
		fmt.Sprintf(` ORDER BY last_name, first_name LIMIT $%d OFFSET $%d`, idx, idx+1)
	rows, err := conn.Query(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Donor
	for rows.Next() {
		d, err := scanDonor(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, d)
	}
	return items, total, rows.Err()
}

// -- Donations --

type donationRepoPG struct{ pool *pgxpool.Pool }

func NewDonationRepoPG(pool *pgxpool.Pool) DonationRepository { return &donationRepoPG{pool: pool} }

const donationCols = `id, donor_id, donated_at, volume_ml, hemoglobin_gdl, status, unit_id, notes, created_at`

func scanDonation(row pgx.Row) (*Donation, error) {
	var d Donation
	err := row.Scan(&d.ID, &d.DonorID, &d.DonatedAt, &d.VolumeML, &d.HemoglobinGDL, &d.Status, &d.UnitID,
		&d.Notes, &d.CreatedAt)
	if db.IsNoRows(err) {
		return nil, apperr.NotFound("donation not found")
	}
	return &d, err
}

func (r *donationRepoPG) Create(ctx context.Context, d *Donation) error {
	d.ID = uuid.New()
	return db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO blood_donations (id, donor_id, donated_at, volume_ml, hemoglobin_gdl, status, notes)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING created_at`,
		d.ID, d.DonorID, d.DonatedAt, d.VolumeML, d.HemoglobinGDL, d.Status, d.Notes,
	).Scan(&d.CreatedAt)
}

func (r *donationRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Donation, error) {
	return scanDonation(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+donationCols+` FROM blood_donations WHERE id = $1`, id))
}

func (r *donationRepoPG) Update(ctx context.Context, d *Donation) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx,
		`UPDATE blood_donations SET status = $2, unit_id = $3, notes = $4 WHERE id = $1`,
		d.ID, d.Status, d.UnitID, d.Notes)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("donation not found")
	}
	return nil
}

func (r *donationRepoPG) ListByDonor(ctx context.Context, donorID uuid.UUID, limit, offset int) ([]*Donation, int, error) {
	conn := db.Conn(ctx, r.pool)
	var total int
	if err := conn.QueryRow(ctx, `SELECT COUNT(*) FROM blood_donations WHERE donor_id = $1`, donorID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := conn.Query(ctx, `SELECT `+donationCols+` FROM blood_donations WHERE donor_id = $1
		ORDER BY donated_at DESC LIMIT $2 OFFSET $3`, donorID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Donation
	for rows.Next() {
		d, err := scanDonation(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, d)
	}
	return items, total, rows.Err()
}

// -- Units --

type unitRepoPG struct{ pool *pgxpool.Pool }

func NewUnitRepoPG(pool *pgxpool.Pool) UnitRepository { return &unitRepoPG{pool: pool} }

const unitCols = `id, unit_number, donation_id, parent_unit_id, blood_type, component, volume_ml,
	collected_at, expires_at, status, issued_to_patient_id, issued_at, request_id, created_at, updated_at`

func scanUnit(row pgx.Row) (*Unit, error) {
	var u Unit
	err := row.Scan(&u.ID, &u.UnitNumber, &u.DonationID, &u.ParentUnitID, &u.BloodType, &u.Component,
		&u.VolumeML, &u.CollectedAt, &u.ExpiresAt, &u.Status, &u.IssuedToPatientID, &u.IssuedAt,
		&u.RequestID, &u.CreatedAt, &u.UpdatedAt)
	if db.IsNoRows(err) {
		return nil, apperr.NotFound("blood unit not found")
	}
	return &u, err
}

func (r *unitRepoPG) Create(ctx context.Context, u *Unit) error {
	u.ID = uuid.New()
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO blood_units (id, unit_number, donation_id, parent_unit_id, blood_type, component,
			volume_ml, collected_at, expires_at, status)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT ON CONSTRAINT blood_units_unit_number_key DO NOTHING
		RETURNING created_at, updated_at`,
		u.ID, u.UnitNumber, u.DonationID, u.ParentUnitID, u.BloodType, u.Component, u.VolumeML,
		u.CollectedAt, u.ExpiresAt, u.Status,
	).Scan(&u.CreatedAt, &u.UpdatedAt)
	// A number collision returns no row and leaves the enclosing transaction usable.
	if db.IsNoRows(err) {
		return errDuplicateUnitNumber
	}
	return err
}

func (r *unitRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Unit, error) {
	return scanUnit(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+unitCols+` FROM blood_units WHERE id = $1`, id))
}

func (r *unitRepoPG) GetForUpdate(ctx context.Context, id uuid.UUID) (*Unit, error) {
	return scanUnit(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+unitCols+` FROM blood_units WHERE id = $1 FOR UPDATE`, id))
}

func (r *unitRepoPG) GetByDonation(ctx context.Context, donationID uuid.UUID) (*Unit, error) {
	return scanUnit(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+unitCols+` FROM blood_units WHERE donation_id = $1 AND parent_unit_id IS NULL`, donationID))
}

func (r *unitRepoPG) Update(ctx context.Context, u *Unit) error {
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE blood_units SET status=$2, issued_to_patient_id=$3, issued_at=$4, request_id=$5,
			updated_at=NOW()
		WHERE id = $1
		RETURNING updated_at`,
		u.ID, u.Status, u.IssuedToPatientID, u.IssuedAt, u.RequestID,
	).Scan(&u.UpdatedAt)
	if db.IsNoRows(err) {
		return apperr.NotFound("blood unit not found")
	}
	return err
}

func (r *unitRepoPG) List(ctx context.Context, f UnitFilter, limit, offset int) ([]*Unit, int, error) {
	where := ` WHERE 1=1`
	var args []any
	idx := 1
	for _, c := range []struct{ col, val string }{
		{"blood_type", f.BloodType}, {"component", f.Component}, {"status", f.Status},
	} {
		if c.val == "" {
			continue
		}
		where += fmt.Sprintf(` AND %s = $%d`, c.col, idx)
		args = append(args, c.val)
		idx++
	}

	conn := db.Conn(ctx, r.pool)
	var total int
	if err := conn.QueryRow(ctx, `SELECT COUNT(*) FROM blood_units`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	query := `SELECT ` + unitCols + ` FROM blood_units` + where +
		fmt.Sprintf(` ORDER BY expires_at LIMIT $%d OFFSET $%d`, idx, idx+1)
	rows, err := conn.Query(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Unit
	for rows.Next() {
		u, err := scanUnit(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, u)
	}
	return items, total, rows.Err()
}

func (r *unitRepoPG) Inventory(ctx context.Context, now time.Time) ([]InventoryLine, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `
		SELECT blood_type, component, COUNT(*)
		FROM blood_units
		WHERE status = 'available' AND expires_at > $1
		GROUP BY blood_type, component
		ORDER BY blood_type, component`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var lines []InventoryLine
	for rows.Next() {
		var l InventoryLine
		if err := rows.Scan(&l.BloodType, &l.Component, &l.Units); err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

func (r *unitRepoPG) ExpireDue(ctx context.Context, now time.Time) (int, error) {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `
		UPDATE blood_units SET status = 'expired', updated_at = NOW()
		WHERE status IN ('available', 'reserved') AND expires_at <= $1`, now)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

// -- Requests --

type requestRepoPG struct{ pool *pgxpool.Pool }

func NewRequestRepoPG(pool *pgxpool.Pool) RequestRepository { return &requestRepoPG{pool: pool} }

const requestCols = `id, patient_id, blood_type, component, units_requested, units_issued, urgency, status,
	requested_by, reason, created_at, updated_at`

func scanRequest(row pgx.Row) (*Request, error) {
	var r Request
	err := row.Scan(&r.ID, &r.PatientID, &r.BloodType, &r.Component, &r.UnitsRequested, &r.UnitsIssued,
		&r.Urgency, &r.Status, &r.RequestedBy, &r.Reason, &r.CreatedAt, &r.UpdatedAt)
	if db.IsNoRows(err) {
		return nil, apperr.NotFound("blood request not found")
	}
	return &r, err
}

func (r *requestRepoPG) Create(ctx context.Context, req *Request) error {
	req.ID = uuid.New()
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO blood_requests (id, patient_id, blood_type, component, units_requested, units_issued,
			urgency, status, requested_by, reason)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		RETURNING created_at, updated_at`,
		req.ID, req.PatientID, req.BloodType, req.Component, req.UnitsRequested, req.UnitsIssued,
		req.Urgency, req.Status, req.RequestedBy, req.Reason,
	).Scan(&req.CreatedAt, &req.UpdatedAt)
	if db.IsForeignKeyViolation(err) {
		return apperr.NotFound("patient not found")
	}
	return err
}

func (r *requestRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Request, error) {
	return scanRequest(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+requestCols+` FROM blood_requests WHERE id = $1`, id))
}

func (r *requestRepoPG) GetForUpdate(ctx context.Context, id uuid.UUID) (*Request, error) {
	return scanRequest(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+requestCols+` FROM blood_requests WHERE id = $1 FOR UPDATE`, id))
}

func (r *requestRepoPG) Update(ctx context.Context, req *Request) error {
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE blood_requests SET units_issued=$2, status=$3, updated_at=NOW()
		WHERE id = $1
		RETURNING updated_at`,
		req.ID, req.UnitsIssued, req.Status,
	).Scan(&req.UpdatedAt)
	if db.IsNoRows(err) {
		return apperr.NotFound("blood request not found")
	}
	return err
}

func (r *requestRepoPG) List(ctx context.Context, f RequestFilter, limit, offset int) ([]*Request, int, error) {
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

	conn := db.Conn(ctx, r.pool)
	var total int
	if err := conn.QueryRow(ctx, `SELECT COUNT(*) FROM blood_requests`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	query := `SELECT ` + requestCols + ` FROM blood_requests` + where +
		fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, idx, idx+1)
	rows, err := conn.Query(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Request
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, req)
	}
	return items, total, rows.Err()
}
