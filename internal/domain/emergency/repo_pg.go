package emergency

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jashmhta/HMSSSS-sub000/internal/platform/apperr"
	"github.com/jashmhta/HMSSSS-sub000/internal/platform/db"
)

type caseRepoPG struct{ pool *pgxpool.Pool }

func NewCaseRepoPG(pool *pgxpool.Pool) CaseRepository { return &caseRepoPG{pool: pool} }

const caseCols = `id, patient_id, arrival_at, arrival_mode, chief_complaint, triage_level, triaged_at,
	triaged_by, heart_rate, blood_pressure_sys, blood_pressure_dia, temperature, respiratory_rate,
	oxygen_saturation, pain_scale, status, attending_id, bed, disposition, discharged_at,
	length_of_stay_mins, notes, created_by, created_at, updated_at`

func scanCase(row pgx.Row) (*EmergencyCase, error) {
	var c EmergencyCase
	err := row.Scan(&c.ID, &c.PatientID, &c.ArrivalAt, &c.ArrivalMode, &c.ChiefComplaint, &c.TriageLevel,
		&c.TriagedAt, &c.TriagedBy, &c.HeartRate, &c.BloodPressureSys, &c.BloodPressureDia, &c.Temperature,
		&c.RespiratoryRate, &c.OxygenSaturation, &c.PainScale, &c.Status, &c.AttendingID, &c.Bed,
		&c.Disposition, &c.DischargedAt, &c.LengthOfStayMins, &c.Notes, &c.CreatedBy, &c.CreatedAt,
		&c.UpdatedAt)
	if db.IsNoRows(err) {
		return nil, apperr.NotFound("emergency case not found")
	}
	return &c, err
}

func (r *caseRepoPG) Create(ctx context.Context, c *EmergencyCase) error {
	c.ID = uuid.New()
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO emergency_cases (id, patient_id, arrival_at, arrival_mode, chief_complaint, status,
			notes, created_by)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING created_at, updated_at`,
		c.ID, c.PatientID, c.ArrivalAt, c.ArrivalMode, c.ChiefComplaint, c.Status, c.Notes, c.CreatedBy,
	).Scan(&c.CreatedAt, &c.UpdatedAt)
	if db.IsForeignKeyViolation(err) {
		return apperr.NotFound("patient not found")
	}
	return err
}

func (r *caseRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*EmergencyCase, error) {
	return scanCase(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+caseCols+` FROM emergency_cases WHERE id = $1`, id))
}

func (r *caseRepoPG) GetForUpdate(ctx context.Context, id uuid.UUID) (*EmergencyCase, error) {
	return scanCase(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+caseCols+` FROM emergency_cases WHERE id = $1 FOR UPDATE`, id))
}

func (r *caseRepoPG) Update(ctx context.Context, c *EmergencyCase) error {
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE emergency_cases SET triage_level=$2, triaged_at=$3, triaged_by=$4, heart_rate=$5,
			blood_pressure_sys=$6, blood_pressure_dia=$7, temperature=$8, respiratory_rate=$9,
			oxygen_saturation=$10, pain_scale=$11, status=$12, attending_id=$13, bed=$14,
			disposition=$15, discharged_at=$16, length_of_stay_mins=$17, notes=$18, updated_at=NOW()
		WHERE id = $1
		RETURNING updated_at`,
		c.ID, c.TriageLevel, c.TriagedAt, c.TriagedBy, c.HeartRate, c.BloodPressureSys,
		c.BloodPressureDia, c.Temperature, c.RespiratoryRate, c.OxygenSaturation, c.PainScale,
		c.Status, c.AttendingID, c.Bed, c.Disposition, c.DischargedAt, c.LengthOfStayMins, c.Notes,
	).Scan(&c.UpdatedAt)
	if db.IsNoRows(err) {
		return apperr.NotFound("emergency case not found")
	}
	return err
}

func (r *caseRepoPG) List(ctx context.Context, f CaseFilter, limit, offset int) ([]*EmergencyCase, int, error) {
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
	if err := conn.QueryRow(ctx, `SELECT COUNT(*) FROM emergency_cases`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	query := `SELECT ` + caseCols + ` FROM emergency_cases` + where +
		fmt.Sprintf(" ORDER BY arrival_at DESC LIMIT $%d OFFSET $%d", idx, idx+1)
	args = append(args, limit, offset)
	rows, err := conn.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	return collectCases(rows, total)
}

func (r *caseRepoPG) Board(ctx context.Context) ([]*EmergencyCase, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `SELECT `+caseCols+` FROM emergency_cases
		WHERE status = ANY($1)
		ORDER BY triage_level ASC NULLS LAST, arrival_at ASC`, OpenStatuses)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items, _, err := collectCases(rows, 0)
	return items, err
}

func collectCases(rows pgx.Rows, total int) ([]*EmergencyCase, int, error) {
	var items []*EmergencyCase
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, c)
	}
	return items, total, rows.Err()
}

func (r *caseRepoPG) AddStatusHistory(ctx context.Context, h *StatusHistory) error {
	h.ID = uuid.New()
	_, err := db.Conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO emergency_status_history (id, case_id, from_status, status, changed_at, changed_by, note)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		h.ID, h.CaseID, h.FromStatus, h.Status, h.ChangedAt, h.ChangedBy, h.Note)
	return err
}

func (r *caseRepoPG) GetStatusHistory(ctx context.Context, caseID uuid.UUID) ([]*StatusHistory, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `
		SELECT id, case_id, from_status, status, changed_at, changed_by, note
		FROM emergency_status_history WHERE case_id = $1 ORDER BY changed_at`, caseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*StatusHistory
	for rows.Next() {
		var h StatusHistory
		if err := rows.Scan(&h.ID, &h.CaseID, &h.FromStatus, &h.Status, &h.ChangedAt, &h.ChangedBy, &h.Note); err != nil {
			return nil, err
		}
		items = append(items, &h)
	}
	return items, rows.Err()
}
