package compliance

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jashmhta/HMSSSS-sub000/internal/platform/apperr"
	"github.com/jashmhta/HMSSSS-sub000/internal/platform/db"
)

// -- Audit logs --

type auditRepoPG struct{ pool *pgxpool.Pool }

func NewAuditRepoPG(pool *pgxpool.Pool) AuditRepository { return &auditRepoPG{pool: pool} }

const auditCols = `id, user_id, user_roles, action, resource_type, resource_id, patient_id, method, path,
	status_code, ip_address, user_agent, request_id, occurred_at`

func (r *auditRepoPG) Create(ctx context.Context, l *AuditLog) error {
	l.ID = uuid.New()
	_, err := db.Conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO audit_logs (id, user_id, user_roles, action, resource_type, resource_id, patient_id,
			method, path, status_code, ip_address, user_agent, request_id, occurred_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		l.ID, l.UserID, l.UserRoles, l.Action, l.ResourceType, l.ResourceID, l.PatientID, l.Method,
		l.Path, l.StatusCode, l.IPAddress, l.UserAgent, l.RequestID, l.OccurredAt)
	return err
}

func auditWhere(f AuditFilter) (string, []any) {
	where := ` WHERE 1=1`
	args := []any{}
	idx := 1
	if f.UserID != nil {
		where += fmt.Sprintf(" AND user_id = $%d", idx)
		args = append(args, *f.UserID)
		idx++
	}
	if f.PatientID != nil {
		where += fmt.Sprintf(" AND patient_id = $%d", idx)
		args = append(args, *f.PatientID)
		idx++
	}
	if f.ResourceType != "" {
		where += fmt.Sprintf(" AND resource_type = $%d", idx)
		args = append(args, f.ResourceType)
		idx++
	}
	if f.Action != "" {
		where += fmt.Sprintf(" AND action = $%d", idx)
		args = append(args, f.Action)
		idx++
	}
	if f.From != nil {
		where += fmt.Sprintf(" AND occurred_at >= $%d", idx)
		args = append(args, *f.From)
		idx++
	}
	if f.To != nil {
		where += fmt.Sprintf(" AND occurred_at < $%d", idx)
		args = append(args, *f.To)
	}
	return where, args
}

func (r *auditRepoPG) List(ctx context.Context, f AuditFilter, limit, offset int) ([]*AuditLog, int, error) {
	where, args := auditWhere(f)
	conn := db.Conn(ctx, r.pool)
	var total int
	if err := conn.QueryRow(ctx, `SELECT COUNT(*) FROM audit_logs`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	idx := len(args) + 1
	query := `SELECT ` + auditCols + ` FROM audit_logs` + where +
		fmt.Sprintf(" ORDER BY occurred_at DESC LIMIT $%d OFFSET $%d", idx, idx+1)
	args = append(args, limit, offset)
	rows, err := conn.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*AuditLog
	for rows.Next() {
		var l AuditLog
		if err := rows.Scan(&l.ID, &l.UserID, &l.UserRoles, &l.Action, &l.ResourceType, &l.ResourceID,
			&l.PatientID, &l.Method, &l.Path, &l.StatusCode, &l.IPAddress, &l.UserAgent, &l.RequestID,
			&l.OccurredAt); err != nil {
			return nil, 0, err
		}
		items = append(items, &l)
	}
	return items, total, rows.Err()
}

func (r *auditRepoPG) PHIAccess(ctx context.Context, patientID uuid.UUID, from, to *time.Time) ([]PHIAccessor, error) {
	where, args := auditWhere(AuditFilter{PatientID: &patientID, From: from, To: to})
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `
		SELECT user_id,
			COALESCE(string_agg(DISTINCT array_to_string(user_roles, ','), ','), ''),
			array_agg(DISTINCT action ORDER BY action),
			COUNT(*), MIN(occurred_at), MAX(occurred_at)
		FROM audit_logs`+where+`
		GROUP BY user_id
		ORDER BY MAX(occurred_at) DESC`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []PHIAccessor{}
	for rows.Next() {
		var a PHIAccessor
		var roles string
		if err := rows.Scan(&a.UserID, &roles, &a.Actions, &a.AccessCount, &a.FirstAccess,
			&a.LastAccess); err != nil {
			return nil, err
		}
		a.Roles = splitRoles(roles)
		out = append(out, a)
	}
	return out, rows.Err()
}

// splitRoles turns a comma-joined role list into a sorted set.
func splitRoles(joined string) []string {
	seen := map[string]bool{}
	roles := []string{}
	for _, r := range strings.Split(joined, ",") {
		if r != "" && !seen[r] {
			seen[r] = true
			roles = append(roles, r)
		}
	}
	sort.Strings(roles)
	return roles
}

func (r *auditRepoPG) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `DELETE FROM audit_logs WHERE occurred_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// -- Consents --

type consentRepoPG struct{ pool *pgxpool.Pool }

func NewConsentRepoPG(pool *pgxpool.Pool) ConsentRepository { return &consentRepoPG{pool: pool} }

const consentCols = `id, patient_id, consent_type, status, granted_at, revoked_at, expires_at, granted_by,
	revoked_by, revoke_reason, notes, created_at, updated_at`

func scanConsent(row pgx.Row) (*Consent, error) {
	var c Consent
	err := row.Scan(&c.ID, &c.PatientID, &c.ConsentType, &c.Status, &c.GrantedAt, &c.RevokedAt,
		&c.ExpiresAt, &c.GrantedBy, &c.RevokedBy, &c.RevokeReason, &c.Notes, &c.CreatedAt, &c.UpdatedAt)
	if db.IsNoRows(err) {
		return nil, apperr.NotFound("consent not found")
	}
	return &c, err
}

func (r *consentRepoPG) Create(ctx context.Context, c *Consent) error {
	c.ID = uuid.New()
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO consents (id, patient_id, consent_type, status, granted_at, expires_at, granted_by, notes)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING created_at, updated_at`,
		c.ID, c.PatientID, c.ConsentType, c.Status, c.GrantedAt, c.ExpiresAt, c.GrantedBy, c.Notes,
	).Scan(&c.CreatedAt, &c.UpdatedAt)
	switch {
	case db.IsUniqueViolation(err, "consents_one_granted_per_type"):
		return apperr.Conflict("patient already has an active %s consent", c.ConsentType)
	case db.IsForeignKeyViolation(err):
		return apperr.NotFound("patient not found")
	}
	return err
}

func (r *consentRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Consent, error) {
	return scanConsent(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+consentCols+` FROM consents WHERE id = $1`, id))
}

func (r *consentRepoPG) FindGranted(ctx context.Context, patientID uuid.UUID, consentType string) (*Consent, error) {
	return scanConsent(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+consentCols+` FROM consents
		WHERE patient_id = $1 AND consent_type = $2 AND status = 'granted'
		FOR UPDATE`, patientID, consentType))
}

func (r *consentRepoPG) Update(ctx context.Context, c *Consent) error {
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE consents SET status=$2, revoked_at=$3, revoked_by=$4, revoke_reason=$5, notes=$6,
			updated_at=NOW()
		WHERE id = $1
		RETURNING updated_at`,
		c.ID, c.Status, c.RevokedAt, c.RevokedBy, c.RevokeReason, c.Notes,
	).Scan(&c.UpdatedAt)
	if db.IsNoRows(err) {
		return apperr.NotFound("consent not found")
	}
	return err
}

func (r *consentRepoPG) List(ctx context.Context, f ConsentFilter, limit, offset int) ([]*Consent, int, error) {
	where := ` WHERE 1=1`
	args := []any{}
	idx := 1
	if f.PatientID != nil {
		where += fmt.Sprintf(" AND patient_id = $%d", idx)
		args = append(args, *f.PatientID)
		idx++
	}
	if f.ConsentType != "" {
		where += fmt.Sprintf(" AND consent_type = $%d", idx)
		args = append(args, f.ConsentType)
		idx++
	}
	if f.Status != "" {
		where += fmt.Sprintf(" AND status = $%d", idx)
		args = append(args, f.Status)
		idx++
	}

	conn := db.Conn(ctx, r.pool)
	var total int
	if err := conn.QueryRow(ctx, `SELECT COUNT(*) FROM consents`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	query := `SELECT ` + consentCols + ` FROM consents` + where +
		fmt.Sprintf(" ORDER BY granted_at DESC LIMIT $%d OFFSET $%d", idx, idx+1)
	args = append(args, limit, offset)
	rows, err := conn.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Consent
	for rows.Next() {
		c, err := scanConsent(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, c)
	}
	return items, total, rows.Err()
}
