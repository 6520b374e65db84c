package radiology

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jashmhta/HMSSSS-sub000/internal/platform/apperr"
	"github.com/jashmhta/HMSSSS-sub000/internal/platform/db"
)

var errDuplicateAccession = apperr.Conflict("accession number already exists")

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

const cols = `id, patient_id, ordered_by, modality, body_part, clinical_indication, priority, status,
	scheduled_at, performed_by, started_at, completed_at, accession_number, study_instance_uid,
	contrast_used, findings, impression, reported_by, reported_at, cancel_reason, created_at, updated_at`

func scanTest(row pgx.Row) (*RadiologyTest, error) {
	var t RadiologyTest
	err := row.Scan(&t.ID, &t.PatientID, &t.OrderedBy, &t.Modality, &t.BodyPart, &t.ClinicalIndication,
		&t.Priority, &t.Status, &t.ScheduledAt, &t.PerformedBy, &t.StartedAt, &t.CompletedAt,
		&t.AccessionNumber, &t.StudyInstanceUID, &t.ContrastUsed, &t.Findings, &t.Impression,
		&t.ReportedBy, &t.ReportedAt, &t.CancelReason, &t.CreatedAt, &t.UpdatedAt)
	if db.IsNoRows(err) {
		return nil, apperr.NotFound("radiology test not found")
	}
	return &t, err
}

func (r *repoPG) Create(ctx context.Context, t *RadiologyTest) error {
	t.ID = uuid.New()
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO radiology_tests (id, patient_id, ordered_by, modality, body_part, clinical_indication,
			priority, status)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING created_at, updated_at`,
		t.ID, t.PatientID, t.OrderedBy, t.Modality, t.BodyPart, t.ClinicalIndication, t.Priority, t.Status,
	).Scan(&t.CreatedAt, &t.UpdatedAt)
	if db.IsForeignKeyViolation(err) {
		return apperr.NotFound("patient not found")
	}
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*RadiologyTest, error) {
	return scanTest(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+cols+` FROM radiology_tests WHERE id = $1`, id))
}

func (r *repoPG) Update(ctx context.Context, t *RadiologyTest) error {
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE radiology_tests SET status=$2, scheduled_at=$3, performed_by=$4, started_at=$5,
			completed_at=$6, accession_number=$7, study_instance_uid=$8, contrast_used=$9, findings=$10,
			impression=$11, reported_by=$12, reported_at=$13, cancel_reason=$14, updated_at=NOW()
		WHERE id = $1
		RETURNING updated_at`,
		t.ID, t.Status, t.ScheduledAt, t.PerformedBy, t.StartedAt, t.CompletedAt, t.AccessionNumber,
		t.StudyInstanceUID, t.ContrastUsed, t.Findings, t.Impression, t.ReportedBy, t.ReportedAt,
		t.CancelReason,
	).Scan(&t.UpdatedAt)
	switch {
	case db.IsNoRows(err):
		return apperr.NotFound("radiology test not found")
	case db.IsUniqueViolation(err, "radiology_tests_accession_number_key"):
		return errDuplicateAccession
	}
	return err
}

func (r *repoPG) List(ctx context.Context, f ListFilter, limit, offset int) ([]*RadiologyTest, int, error) {
	where := ` WHERE 1=1`
	var args []any
	idx := 1
	if f.PatientID != nil {
		where += fmt.Sprintf(` AND patient_id = $%d`, idx)
		args = append(args, *f.PatientID)
		idx++
	}
	if f.Modality != "" {
		where += fmt.Sprintf(` AND modality = $%d`, idx)
		args = append(args, f.Modality)
		idx++
	}
	if f.Status != "" {
		where += fmt.Sprintf(` AND status = $%d`, idx)
		args = append(args, f.Status)
		idx++
	}

	conn := db.Conn(ctx, r.pool)
	var total int
	if err := conn.QueryRow(ctx, `SELECT COUNT(*) FROM radiology_tests`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	query := `SELECT ` + cols + ` FROM radiology_tests` + where +
		fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, idx, idx+1)
	rows, err := conn.Query(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*RadiologyTest
	for rows.Next() {
		t, err := scanTest(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, t)
	}
	return items, total, rows.Err()
}
