package compliance

import (
	"time"

	"github.com/google/uuid"
)

const (
	ConsentGranted = "granted"
	ConsentRevoked = "revoked"
)

var ConsentTypes = []string{"treatment", "data_sharing", "research", "marketing"}

// AuditLog maps to the audit_logs table. One row per /api/v1 request.
type AuditLog struct {
	ID           uuid.UUID  `db:"id" json:"id"`
	UserID       *uuid.UUID `db:"user_id" json:"user_id,omitempty"`
	UserRoles    []string   `db:"user_roles" json:"user_roles"`
	Action       string     `db:"action" json:"action"`
	ResourceType string     `db:"resource_type" json:"resource_type"`
	ResourceID   *string    `db:"resource_id" json:"resource_id,omitempty"`
	PatientID    *uuid.UUID `db:"patient_id" json:"patient_id,omitempty"`
	Method       string     `db:"method" json:"method"`
	Path         string     `db:"path" json:"path"`
	StatusCode   int        `db:"status_code" json:"status_code"`
	IPAddress    string     `db:"ip_address" json:"ip_address"`
	UserAgent    string     `db:"user_agent" json:"user_agent"`
	RequestID    string     `db:"request_id" json:"request_id"`
	OccurredAt   time.Time  `db:"occurred_at" json:"occurred_at"`
}

// PHIAccessor summarizes one user's access to a patient's records.
type PHIAccessor struct {
	UserID      *uuid.UUID `json:"user_id,omitempty"`
	Roles       []string   `json:"roles"`
	Actions     []string   `json:"actions"`
	AccessCount int        `json:"access_count"`
	FirstAccess time.Time  `json:"first_access"`
	LastAccess  time.Time  `json:"last_access"`
}

type PHIAccessReport struct {
	PatientID     uuid.UUID     `json:"patient_id"`
	From          *time.Time    `json:"from,omitempty"`
	To            *time.Time    `json:"to,omitempty"`
	TotalAccesses int           `json:"total_accesses"`
	Accessors     []PHIAccessor `json:"accessors"`
}

// Consent maps to the consents table.
type Consent struct {
	ID           uuid.UUID  `db:"id" json:"id"`
	PatientID    uuid.UUID  `db:"patient_id" json:"patient_id"`
	ConsentType  string     `db:"consent_type" json:"consent_type"`
	Status       string     `db:"status" json:"status"`
	GrantedAt    time.Time  `db:"granted_at" json:"granted_at"`
	RevokedAt    *time.Time `db:"revoked_at" json:"revoked_at,omitempty"`
	ExpiresAt    *time.Time `db:"expires_at" json:"expires_at,omitempty"`
	GrantedBy    uuid.UUID  `db:"granted_by" json:"granted_by"`
	RevokedBy    *uuid.UUID `db:"revoked_by" json:"revoked_by,omitempty"`
	RevokeReason *string    `db:"revoke_reason" json:"revoke_reason,omitempty"`
	Notes        *string    `db:"notes" json:"notes,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// Active reports whether the consent is granted and not yet expired.
func (c *Consent) Active(now time.Time) bool {
	return c.Status == ConsentGranted && (c.ExpiresAt == nil || c.ExpiresAt.After(now))
}

type ConsentRequest struct {
	PatientID   uuid.UUID `json:"patient_id" validate:"required"`
	ConsentType string    `json:"consent_type" validate:"required,oneof=treatment data_sharing research marketing"`
	ExpiresAt   *string   `json:"expires_at" validate:"omitempty,datetime=2006-01-02"`
	Notes       *string   `json:"notes" validate:"omitempty,max=2000"`
}

type RevokeRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

type ConsentCheck struct {
	PatientID   uuid.UUID `json:"patient_id"`
	ConsentType string    `json:"consent_type"`
	Active      bool      `json:"active"`
	Consent     *Consent  `json:"consent,omitempty"`
}

type AuditFilter struct {
	UserID       *uuid.UUID
	PatientID    *uuid.UUID
	ResourceType string
	Action       string
	From         *time.Time
	To           *time.Time
}

type ConsentFilter struct {
	PatientID   *uuid.UUID
	ConsentType string
	Status      string
}
