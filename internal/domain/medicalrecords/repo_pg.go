package medicalrecords

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jashmhta/HMSSSS-sub000/internal/platform/apperr"
	"github.com/jashmhta/HMSSSS-sub000/internal/platform/db"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

const recordCols = `id, patient_id, doctor_id, appointment_id, visit_date, chief_complaint, diagnosis,
	icd10_code, treatment_plan, vitals, follow_up_date, is_confidential, notes, created_by,
	created_at, updated_at`

func scanRecord(row pgx.Row) (*MedicalRecord, error) {
	var r MedicalRecord
	err := row.Scan(&r.ID, &r.PatientID, &r.DoctorID, &r.AppointmentID, &r.VisitDate, &r.ChiefComplaint,
		&r.Diagnosis, &r.ICD10Code, &r.TreatmentPlan, &r.Vitals, &r.FollowUpDate, &r.IsConfidential,
		&r.Notes, &r.CreatedBy, &r.CreatedAt, &r.UpdatedAt)
	if db.IsNoRows(err) {
		return nil, apperr.NotFound("medical record not found")
	}
	return &r, err
}

func (p *repoPG) Create(ctx context.Context, r *MedicalRecord) error {
	r.ID = uuid.New()
	err := db.Conn(ctx, p.pool).QueryRow(ctx, `
		INSERT INTO medical_records (id, patient_id, doctor_id, appointment_id, visit_date,
			chief_complaint, diagnosis, icd10_code, treatment_plan, vitals, follow_up_date,
			is_confidential, notes, created_by)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
		RETURNING created_at, updated_at`,
		r.ID, r.PatientID, r.DoctorID, r.AppointmentID, r.VisitDate, r.ChiefComplaint, r.Diagnosis,
		r.ICD10Code, r.TreatmentPlan, r.Vitals, r.FollowUpDate, r.IsConfidential, r.Notes, r.CreatedBy,
	).Scan(&r.CreatedAt, &r.UpdatedAt)
	if db.IsForeignKeyViolation(err) {
		return apperr.NotFound("patient or doctor not found")
	}
	return err
}

func (p *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*MedicalRecord, error) {
	return scanRecord(db.Conn(ctx, p.pool).QueryRow(ctx,
		`SELECT `+recordCols+` FROM medical_records WHERE id = $1`, id))
}

func (p *repoPG) Update(ctx context.Context, r *MedicalRecord) error {
	err := db.Conn(ctx, p.pool).QueryRow(ctx, `
		UPDATE medical_records SET doctor_id=$2, appointment_id=$3, visit_date=$4, chief_complaint=$5,
			diagnosis=$6, icd10_code=$7, treatment_plan=$8, vitals=$9, follow_up_date=$10,
			is_confidential=$11, notes=$12, updated_at=NOW()
		WHERE id = $1
		RETURNING updated_at`,
		r.ID, r.DoctorID, r.AppointmentID, r.VisitDate, r.ChiefComplaint, r.Diagnosis, r.ICD10Code,
		r.TreatmentPlan, r.Vitals, r.FollowUpDate, r.IsConfidential, r.Notes,
	).Scan(&r.UpdatedAt)
	if db.IsNoRows(err) {
		return apperr.NotFound("medical record not found")
	}
	return err
}

func (p *repoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := db.Conn(ctx, p.pool).Exec(ctx, `DELETE FROM medical_records WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("medical record not found")
	}
	return nil
}

func (p *repoPG) List(ctx context.Context, f ListFilter, limit, offset int) ([]*MedicalRecord, int, error) {
	where := ` WHERE 1=1`
	args := []any{}
	idx := 1
	if f.PatientID != nil {
		where += fmt.Sprintf(" AND patient_id = $%d", idx)
		args = append(args, *f.PatientID)
		idx++
	}
	if f.DoctorID != nil {
		where += fmt.Sprintf(" AND doctor_id = $%d", idx)
		args = append(args, *f.DoctorID)
		idx++
	}
	if !f.IncludeConfidential {
		where += " AND NOT is_confidential"
	}
	if f.From != nil {
		where += fmt.Sprintf(" AND visit_date >= $%d", idx)
		args = append(args, *f.From)
		idx++
	}
	if f.To != nil {
		where += fmt.Sprintf(" AND visit_date <= $%d", idx)
		args = append(args, *f.To)
		idx++
	}

	conn := db.Conn(ctx, p.pool)
	var total int
	if err := conn.QueryRow(ctx, `SELECT COUNT(*) FROM medical_records`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	query := `SELECT ` + recordCols + ` FROM medical_records` + where +
		fmt.Sprintf(" ORDER BY visit_date DESC, created_at DESC LIMIT $%d OFFSET $%d", idx, idx+1)
	args = append(args, limit, offset)
	rows, err := conn.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*MedicalRecord
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, r)
	}
	return items, total, rows.Err()
}
