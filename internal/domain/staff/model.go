package staff

import (
	"time"

	"github.com/google/uuid"
)

const (
	StatusActive     = "active"
	StatusOnLeave    = "on_leave"
	StatusTerminated = "terminated"
)

// statusTransitions lists the allowed next statuses for a staff member.
var statusTransitions = map[string][]string{
	StatusActive:     {StatusOnLeave, StatusTerminated},
	StatusOnLeave:    {StatusActive, StatusTerminated},
	StatusTerminated: {},
}

// Department maps to the departments table.
type Department struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	Name        string     `db:"name" json:"name"`
	Code        string     `db:"code" json:"code"`
	Description *string    `db:"description" json:"description,omitempty"`
	HeadStaffID *uuid.UUID `db:"head_staff_id" json:"head_staff_id,omitempty"`
	IsActive    bool       `db:"is_active" json:"is_active"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`
}

// Member maps to the staff_members table.
type Member struct {
	ID             uuid.UUID  `db:"id" json:"id"`
	EmployeeID     string     `db:"employee_id" json:"employee_id"`
	UserID         *uuid.UUID `db:"user_id" json:"user_id,omitempty"`
	FirstName      string     `db:"first_name" json:"first_name"`
	LastName       string     `db:"last_name" json:"last_name"`
	Email          string     `db:"email" json:"email"`
	Phone          *string    `db:"phone" json:"phone,omitempty"`
	Role           string     `db:"role" json:"role"`
	DepartmentID   *uuid.UUID `db:"department_id" json:"department_id,omitempty"`
	Specialization *string    `db:"specialization" json:"specialization,omitempty"`
	LicenseNumber  *string    `db:"license_number" json:"license_number,omitempty"`
	LicenseExpiry  *time.Time `db:"license_expiry" json:"license_expiry,omitempty"`
	HireDate       time.Time  `db:"hire_date" json:"hire_date"`
	Status         string     `db:"status" json:"status"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`
}

func (m *Member) FullName() string {
	return m.FirstName + " " + m.LastName
}

type DepartmentRequest struct {
	Name        string     `json:"name" validate:"required,max=100"`
	Code        string     `json:"code" validate:"required,max=20"`
	Description *string    `json:"description" validate:"omitempty,max=500"`
	HeadStaffID *uuid.UUID `json:"head_staff_id"`
	IsActive    *bool      `json:"is_active"`
}

type MemberRequest struct {
	UserID         *uuid.UUID `json:"user_id"`
	FirstName      string     `json:"first_name" validate:"required,max=100"`
	LastName       string     `json:"last_name" validate:"required,max=100"`
	Email          string     `json:"email" validate:"required,email"`
	Phone          *string    `json:"phone" validate:"omitempty,max=30"`
	Role           string     `json:"role" validate:"required,oneof=admin doctor nurse lab_technician radiologist pharmacist receptionist accountant compliance_officer"`
	DepartmentID   *uuid.UUID `json:"department_id"`
	Specialization *string    `json:"specialization" validate:"omitempty,max=100"`
	LicenseNumber  *string    `json:"license_number" validate:"omitempty,max=50"`
	LicenseExpiry  *string    `json:"license_expiry" validate:"omitempty,datetime=2006-01-02"`
	HireDate       string     `json:"hire_date" validate:"required,datetime=2006-01-02"`
}

type StatusRequest struct {
	Status string `json:"status" validate:"required,oneof=active on_leave terminated"`
}

type MemberFilter struct {
	DepartmentID *uuid.UUID
	Role         string
	Status       string
	Query        string
}
