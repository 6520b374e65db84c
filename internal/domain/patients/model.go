package patients

import (
	"time"

	"github.com/google/uuid"
)

const (
	StatusActive   = "active"
	StatusInactive = "inactive"
	StatusDeceased = "deceased"
)

// Patient maps to the patients table. NationalID holds the plaintext value
// inside the process; it is encrypted by the repository and only the masked
// form is serialized.
type Patient struct {
	ID                    uuid.UUID `db:"id" json:"id"`
	MRN                   string    `db:"mrn" json:"mrn"`
	FirstName             string    `db:"first_name" json:"first_name"`
	LastName              string    `db:"last_name" json:"last_name"`
	DateOfBirth           time.Time `db:"date_of_birth" json:"date_of_birth"`
	Gender                string    `db:"gender" json:"gender"`
	BloodType             *string   `db:"blood_type" json:"blood_type,omitempty"`
	Phone                 *string   `db:"phone" json:"phone,omitempty"`
	Email                 *string   `db:"email" json:"email,omitempty"`
	Address               *string   `db:"address" json:"address,omitempty"`
	EmergencyContactName  *string   `db:"emergency_contact_name" json:"emergency_contact_name,omitempty"`
	EmergencyContactPhone *string   `db:"emergency_contact_phone" json:"emergency_contact_phone,omitempty"`
	NationalID            string    `db:"national_id" json:"-"`
	NationalIDMasked      string    `db:"-" json:"national_id,omitempty"`
	Allergies             *string   `db:"allergies" json:"allergies,omitempty"`
	InsuranceProvider     *string   `db:"insurance_provider" json:"insurance_provider,omitempty"`
	InsuranceNumber       *string   `db:"insurance_number" json:"insurance_number,omitempty"`
	Status                string    `db:"status" json:"status"`
	CreatedAt             time.Time `db:"created_at" json:"created_at"`
	UpdatedAt             time.Time `db:"updated_at" json:"updated_at"`
}

func (p *Patient) FullName() string {
	return p.FirstName + " " + p.LastName
}

type CreateRequest struct {
	FirstName             string  `json:"first_name" validate:"required,max=100"`
	LastName              string  `json:"last_name" validate:"required,max=100"`
	DateOfBirth           string  `json:"date_of_birth" validate:"required,datetime=2006-01-02"`
	Gender                string  `json:"gender" validate:"required,oneof=male female other unknown"`
	BloodType             *string `json:"blood_type" validate:"omitempty,bloodtype"`
	Phone                 *string `json:"phone" validate:"omitempty,max=30"`
	Email                 *string `json:"email" validate:"omitempty,email"`
	Address               *string `json:"address" validate:"omitempty,max=500"`
	EmergencyContactName  *string `json:"emergency_contact_name" validate:"omitempty,max=200"`
	EmergencyContactPhone *string `json:"emergency_contact_phone" validate:"omitempty,max=30"`
	NationalID            string  `json:"national_id" validate:"omitempty,max=50"`
	Allergies             *string `json:"allergies"`
	InsuranceProvider     *string `json:"insurance_provider" validate:"omitempty,max=200"`
	InsuranceNumber       *string `json:"insurance_number" validate:"omitempty,max=100"`
}

// UpdateRequest is a partial update; nil fields are left unchanged.
type UpdateRequest struct {
	FirstName             *string `json:"first_name" validate:"omitempty,min=1,max=100"`
	LastName              *string `json:"last_name" validate:"omitempty,min=1,max=100"`
	DateOfBirth           *string `json:"date_of_birth" validate:"omitempty,datetime=2006-01-02"`
	Gender                *string `json:"gender" validate:"omitempty,oneof=male female other unknown"`
	BloodType             *string `json:"blood_type" validate:"omitempty,bloodtype"`
	Phone                 *string `json:"phone" validate:"omitempty,max=30"`
	Email                 *string `json:"email" validate:"omitempty,email"`
	Address               *string `json:"address" validate:"omitempty,max=500"`
	EmergencyContactName  *string `json:"emergency_contact_name" validate:"omitempty,max=200"`
	EmergencyContactPhone *string `json:"emergency_contact_phone" validate:"omitempty,max=30"`
	NationalID            *string `json:"national_id" validate:"omitempty,max=50"`
	Allergies             *string `json:"allergies"`
	InsuranceProvider     *string `json:"insurance_provider" validate:"omitempty,max=200"`
	InsuranceNumber       *string `json:"insurance_number" validate:"omitempty,max=100"`
	Status                *string `json:"status" validate:"omitempty,oneof=active inactive deceased"`
}

type SearchFilter struct {
	Query  string
	Status string
	Gender string
}
