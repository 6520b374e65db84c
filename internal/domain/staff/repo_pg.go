package staff

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

// =========== Department Repository ===========

type departmentRepoPG struct{ pool *pgxpool.Pool }

func NewDepartmentRepoPG(pool *pgxpool.Pool) DepartmentRepository {
	return &departmentRepoPG{pool: pool}
}

const deptCols = `id, name, code, description, head_staff_id, is_active, created_at, updated_at`

func scanDepartment(row pgx.Row) (*Department, error) {
	var d Department
	err := row.Scan(&d.ID, &d.Name, &d.Code, &d.Description, &d.HeadStaffID, &d.IsActive, &d.CreatedAt, &d.UpdatedAt)
	if db.IsNoRows(err) {
		return nil, apperr.NotFound("department not found")
	}
	return &d, err
}

func translateDepartment(err error, d *Department) error {
	switch {
	case db.IsUniqueViolation(err, "departments_name_key"):
		return apperr.Conflict("department %q already exists", d.Name)
	case db.IsUniqueViolation(err, "departments_code_key"):
		return apperr.Conflict("department code %q already exists", d.Code)
	}
	return err
}

func (r *departmentRepoPG) Create(ctx context.Context, d *Department) error {
	d.ID = uuid.New()
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO departments (id, name, code, description, head_staff_id, is_active)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at`,
		d.ID, d.Name, d.Code, d.Description, d.HeadStaffID, d.IsActive,
	).Scan(&d.CreatedAt, &d.UpdatedAt)
	return translateDepartment(err, d)
}

func (r *departmentRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Department, error) {
	return scanDepartment(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+deptCols+` FROM departments WHERE id = $1`, id))
}

func (r *departmentRepoPG) Update(ctx context.Context, d *Department) error {
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE departments SET name=$2, code=$3, description=$4, head_staff_id=$5, is_active=$6, updated_at=NOW()
		WHERE id = $1
		RETURNING updated_at`,
		d.ID, d.Name, d.Code, d.Description, d.HeadStaffID, d.IsActive,
	).Scan(&d.UpdatedAt)
	if db.IsNoRows(err) {
		return apperr.NotFound("department not found")
	}
	return translateDepartment(err, d)
}

func (r *departmentRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `DELETE FROM departments WHERE id = $1`, id)
	if db.IsForeignKeyViolation(err) {
		return apperr.Conflict("department still has staff members")
	}
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("department not found")
	}
	return nil
}

func (r *departmentRepoPG) List(ctx context.Context, limit, offset int) ([]*Department, int, error) {
	conn := db.Conn(ctx, r.pool)
	var total int
	if err := conn.QueryRow(ctx, `SELECT COUNT(*) FROM departments`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := conn.Query(ctx, `SELECT `+deptCols+` FROM departments ORDER BY name LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Department
	for rows.Next() {
		d, err := scanDepartment(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, d)
	}
	return items, total, rows.Err()
}

// =========== Member Repository ===========

type memberRepoPG struct{ pool *pgxpool.Pool }

func NewMemberRepoPG(pool *pgxpool.Pool) MemberRepository {
	return &memberRepoPG{pool: pool}
}

const memberCols = `id, employee_id, user_id, first_name, last_name, email, phone, role, department_id,
	specialization, license_number, license_expiry, hire_date, status, created_at, updated_at`

func scanMember(row pgx.Row) (*Member, error) {
	var m Member
	err := row.Scan(&m.ID, &m.EmployeeID, &m.UserID, &m.FirstName, &m.LastName, &m.Email, &m.Phone, &m.Role,
		&m.DepartmentID, &m.Specialization, &m.LicenseNumber, &m.LicenseExpiry, &m.HireDate, &m.Status,
		&m.CreatedAt, &m.UpdatedAt)
	if db.IsNoRows(err) {
		return nil, apperr.NotFound("staff member not found")
	}
	return &m, err
}

func translateMember(err error) error {
	switch {
	case db.IsUniqueViolation(err, "staff_members_employee_id_key"):
		return errDuplicateEmployeeID
	case db.IsUniqueViolation(err, "staff_members_email_key"):
		return apperr.Conflict("a staff member with this email already exists")
	case db.IsUniqueViolation(err, "staff_members_license_number_key"):
		return apperr.Conflict("license number is already registered")
	case db.IsForeignKeyViolation(err):
		return apperr.NotFound("referenced department or user not found")
	}
	return err
}

func (r *memberRepoPG) Create(ctx context.Context, m *Member) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO staff_members (id, employee_id, user_id, first_name, last_name, email, phone, role,
			department_id, specialization, license_number, license_expiry, hire_date, status)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
		RETURNING created_at, updated_at`,
		m.ID, m.EmployeeID, m.UserID, m.FirstName, m.LastName, m.Email, m.Phone, m.Role,
		m.DepartmentID, m.Specialization, m.LicenseNumber, m.LicenseExpiry, m.HireDate, m.Status,
	).Scan(&m.CreatedAt, &m.UpdatedAt)
	return translateMember(err)
}

func (r *memberRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Member, error) {
	return scanMember(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+memberCols+` FROM staff_members WHERE id = $1`, id))
}

func (r *memberRepoPG) Update(ctx context.Context, m *Member) error {
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE staff_members SET user_id=$2, first_name=$3, last_name=$4, email=$5, phone=$6, role=$7,
			department_id=$8, specialization=$9, license_number=$10, license_expiry=$11, hire_date=$12,
			status=$13, updated_at=NOW()
		WHERE id = $1
		RETURNING updated_at`,
		m.ID, m.UserID, m.FirstName, m.LastName, m.Email, m.Phone, m.Role,
		m.DepartmentID, m.Specialization, m.LicenseNumber, m.LicenseExpiry, m.HireDate, m.Status,
	).Scan(&m.UpdatedAt)
	if db.IsNoRows(err) {
		return apperr.NotFound("staff member not found")
	}
	return translateMember(err)
}

func (r *memberRepoPG) List(ctx context.Context, f MemberFilter, limit, offset int) ([]*Member, int, error) {
	where := ` WHERE 1=1`
	var args []any
	idx := 1
	if f.DepartmentID != nil {
		where += fmt.Sprintf(` AND department_id = $%d`, idx)
		args = append(args, *f.DepartmentID)
		idx++
	}
	if f.Role != "" {
		where += fmt.Sprintf(` AND role = $%d`, idx)
		args = append(args, f.Role)
		idx++
	}
	if f.Status != "" {
		where += fmt.Sprintf(` AND status = $%d`, idx)
		args = append(args, f.Status)
		idx++
	}
	if f.Query != "" {
		where += fmt.Sprintf(` AND (first_name ILIKE $%d OR last_name ILIKE $%d OR employee_id ILIKE $%d)`, idx, idx, idx)
		args = append(args, "%"+f.Query+"%")
		idx++
	}

	conn := db.Conn(ctx, r.pool)
	var total int
	if err := conn.QueryRow(ctx, `SELECT COUNT(*) FROM staff_members`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	query := `SELECT ` + memberCols + ` FROM staff_members` + where +
		fmt.Sprintf(` ORDER BY last_name, first_name LIMIT $%d OFFSET $%d`, idx, idx+1)
	rows, err := conn.Query(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	return collectMembers(rows, total)
}

func (r *memberRepoPG) ListLicensesExpiring(ctx context.Context, before time.Time) ([]*Member, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `
		SELECT `+memberCols+` FROM staff_members
		WHERE status <> 'terminated' AND license_expiry IS NOT NULL AND license_expiry <= $1
		ORDER BY license_expiry`, before)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items, _, err := collectMembers(rows, 0)
	return items, err
}

func collectMembers(rows pgx.Rows, total int) ([]*Member, int, error) {
	var items []*Member
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, m)
	}
	return items, total, rows.Err()
}
