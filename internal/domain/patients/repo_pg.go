package patients

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jashmhta/HMSSSS-sub000/internal/platform/apperr"
	"github.com/jashmhta/HMSSSS-sub000/internal/platform/db"
	"github.com/jashmhta/HMSSSS-sub000/internal/platform/hipaa"
)

type repoPG struct {
	pool   *pgxpool.Pool
	cipher hipaa.FieldCipher
}

// NewRepoPG returns a Postgres repository. national_id is stored through
// cipher; pass hipaa.PlainText{} to store it unencrypted.
func NewRepoPG(pool *pgxpool.Pool, cipher hipaa.FieldCipher) Repository {
	return &repoPG{pool: pool, cipher: cipher}
}

const patientCols = `id, mrn, first_name, last_name, date_of_birth, gender, blood_type, phone, email,
	address, emergency_contact_name, emergency_contact_phone, national_id, allergies,
	insurance_provider, insurance_number, status, created_at, updated_at`

func (r *repoPG) scan(row pgx.Row) (*Patient, error) {
	var p Patient
	var nationalID string
	err := row.Scan(&p.ID, &p.MRN, &p.FirstName, &p.LastName, &p.DateOfBirth, &p.Gender, &p.BloodType,
		&p.Phone, &p.Email, &p.Address, &p.EmergencyContactName, &p.EmergencyContactPhone, &nationalID,
		&p.Allergies, &p.InsuranceProvider, &p.InsuranceNumber, &p.Status, &p.CreatedAt, &p.UpdatedAt)
	if db.IsNoRows(err) {
		return nil, apperr.NotFound("patient not found")
	}
	if err != nil {
		return nil, err
	}
	if p.NationalID, err = r.cipher.Decrypt(nationalID); err != nil {
		return nil, fmt.Errorf("decrypt national_id: %w", err)
	}
	return &p, nil
}

func (r *repoPG) translate(err error) error {
	switch {
	case db.IsUniqueViolation(err, "patients_mrn_key"):
		return errDuplicateMRN
	case db.IsUniqueViolation(err, "patients_email_key"):
		return apperr.Conflict("email is already registered to another patient")
	}
	return err
}

func (r *repoPG) Create(ctx context.Context, p *Patient) error {
	enc, err := r.cipher.Encrypt(p.NationalID)
	if err != nil {
		return fmt.Errorf("encrypt national_id: %w", err)
	}
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	err = db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO patients (id, mrn, first_name, last_name, date_of_birth, gender, blood_type, phone, email,
			address, emergency_contact_name, emergency_contact_phone, national_id, allergies,
			insurance_provider, insurance_number, status)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
		RETURNING created_at, updated_at`,
		p.ID, p.MRN, p.FirstName, p.LastName, p.DateOfBirth, p.Gender, p.BloodType, p.Phone, p.Email,
		p.Address, p.EmergencyContactName, p.EmergencyContactPhone, enc, p.Allergies,
		p.InsuranceProvider, p.InsuranceNumber, p.Status,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	return r.translate(err)
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return r.scan(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+patientCols+` FROM patients WHERE id = $1`, id))
}

func (r *repoPG) GetByMRN(ctx context.Context, mrn string) (*Patient, error) {
	return r.scan(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+patientCols+` FROM patients WHERE mrn = $1`, mrn))
}

func (r *repoPG) Update(ctx context.Context, p *Patient) error {
	enc, err := r.cipher.Encrypt(p.NationalID)
	if err != nil {
		return fmt.Errorf("encrypt national_id: %w", err)
	}
	err = db.Conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE patients SET first_name=$2, last_name=$3, date_of_birth=$4, gender=$5, blood_type=$6,
			phone=$7, email=$8, address=$9, emergency_contact_name=$10, emergency_contact_phone=$11,
			national_id=$12, allergies=$13, insurance_provider=$14, insurance_number=$15, status=$16,
			updated_at=NOW()
		WHERE id = $1
		RETURNING updated_at`,
		p.ID, p.FirstName, p.LastName, p.DateOfBirth, p.Gender, p.BloodType,
		p.Phone, p.Email, p.Address, p.EmergencyContactName, p.EmergencyContactPhone,
		enc, p.Allergies, p.InsuranceProvider, p.InsuranceNumber, p.Status,
	).Scan(&p.UpdatedAt)
	if db.IsNoRows(err) {
		return apperr.NotFound("patient not found")
	}
	return r.translate(err)
}

func (r *repoPG) Search(ctx context.Context, f SearchFilter, limit, offset int) ([]*Patient, int, error) {
	where := ` WHERE 1=1`
	var args []any
	idx := 1
	if f.Query != "" {
		where += fmt.Sprintf(` AND (first_name ILIKE $%d OR last_name ILIKE $%d OR mrn ILIKE $%d OR phone ILIKE $%d)`, idx, idx, idx, idx)
		args = append(args, "%"+f.Query+"%")
		idx++
	}
	if f.Status != "" {
		where += fmt.Sprintf(` AND status = $%d`, idx)
		args = append(args, f.Status)
		idx++
	}
	if f.Gender != "" {
		where += fmt.Sprintf(` AND gender = $%d`, idx)
		args = append(args, f.Gender)
		idx++
	}

	conn := db.Conn(ctx, r.pool)
	var total int
	if err := conn.QueryRow(ctx, `SELECT COUNT(*) FROM patients`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	query := `SELECT ` + patientCols + ` FROM patients` + where +
		fmt.Sprintf(` ORDER BY last_name, first_name LIMIT $%d OFFSET $%d`, idx, idx+1)
	rows, err := conn.Query(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Patient
	for rows.Next() {
		p, err := r.scan(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, p)
	}
	return items, total, rows.Err()
}
