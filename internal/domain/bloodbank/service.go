package bloodbank

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jashmhta/HMSSSS-sub000/internal/platform/apperr"
	"github.com/jashmhta/HMSSSS-sub000/internal/platform/db"
	"github.com/jashmhta/HMSSSS-sub000/internal/platform/queue"
	"github.com/jashmhta/HMSSSS-sub000/pkg/barcode"
)

const (
	defaultDonationVolumeML = 450
	unitNumberAttempts      = 5
)

type Service struct {
	donors    DonorRepository
	donations DonationRepository
	units     UnitRepository
	requests  RequestRepository
	patients  Patients
	tx        db.TxRunner
	events    queue.Publisher
	logger    zerolog.Logger
	now       func() time.Time
}

func NewService(donors DonorRepository, donations DonationRepository, units UnitRepository,
	requests RequestRepository, patients Patients, tx db.TxRunner, events queue.Publisher,
	logger zerolog.Logger) *Service {
	return &Service{
		donors:    donors,
		donations: donations,
		units:     units,
		requests:  requests,
		patients:  patients,
		tx:        tx,
		events:    events,
		logger:    logger,
		now:       time.Now,
	}
}

func allowed(table map[string][]string, from, to string) bool {
	for _, next := range table[from] {
		if next == to {
			return true
		}
	}
	return false
}

func parseDate(field, v string) (time.Time, error) {
	t, err := time.Parse("2006-01-02", v)
	if err != nil {
		return time.Time{}, apperr.Invalid("%s must be a date in YYYY-MM-DD format", field)
	}
	return t, nil
}

// -- Donors --

func (s *Service) applyDonor(d *Donor, req DonorRequest) error {
	dob, err := parseDate("date_of_birth", req.DateOfBirth)
	if err != nil {
		return err
	}
	if dob.After(s.now()) {
		return apperr.Invalid("date_of_birth cannot be in the future")
	}
	d.FirstName = strings.TrimSpace(req.FirstName)
	d.LastName = strings.TrimSpace(req.LastName)
	d.DateOfBirth = dob
	d.Gender = req.Gender
	d.BloodType = req.BloodType
	d.Phone = req.Phone
	d.Email = req.Email
	d.WeightKg = req.WeightKg
	d.DeferredUntil = nil
	if req.DeferredUntil != nil {
		until, err := parseDate("deferred_until", *req.DeferredUntil)
		if err != nil {
			return err
		}
		d.DeferredUntil = &until
	}
	if req.Status != nil {
		d.Status = *req.Status
	}
	return nil
}

func (s *Service) CreateDonor(ctx context.Context, req DonorRequest) (*Donor, error) {
	d := &Donor{Status: DonorActive}
	if err := s.applyDonor(d, req); err != nil {
		return nil, err
	}
	if err := s.donors.Create(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

func (s *Service) GetDonor(ctx context.Context, id uuid.UUID) (*Donor, error) {
	return s.donors.GetByID(ctx, id)
}

func (s *Service) UpdateDonor(ctx context.Context, id uuid.UUID, req DonorRequest) (*Donor, error) {
	d, err := s.donors.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.applyDonor(d, req); err != nil {
		return nil, err
	}
	if err := s.donors.Update(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

func (s *Service) ListDonors(ctx context.Context, f DonorFilter, limit, offset int) ([]*Donor, int, error) {
	return s.donors.List(ctx, f, limit, offset)
}

func (s *Service) Eligibility(ctx context.Context, donorID uuid.UUID) (*Eligibility, error) {
	d, err := s.donors.GetByID(ctx, donorID)
	if err != nil {
		return nil, err
	}
	res := CheckEligibility(d, 0, s.now())
	return &res, nil
}

// -- Donations and units --

// newUnit allocates a unit number for u and stores it.
func (s *Service) newUnit(ctx context.Context, u *Unit) error {
	for attempt := 0; attempt < unitNumberAttempts; attempt++ {
		number, err := barcode.Generate(UnitBarcodePrefix, u.CollectedAt)
		if err != nil {
			return err
		}
		u.UnitNumber = number
		err = s.units.Create(ctx, u)
		if err == nil {
			return nil
		}
		if !errors.Is(err, errDuplicateUnitNumber) {
			return err
		}
	}
	return apperr.Conflict("could not allocate a unique unit number")
}

// RecordDonation screens the donor, stores the donation and its whole-blood
// unit, and moves the donor's last donation date in one transaction.
func (s *Service) RecordDonation(ctx context.Context, req DonationRequest) (*Donation, *Unit, error) {
	d, err := s.donors.GetByID(ctx, req.DonorID)
	if err != nil {
		return nil, nil, err
	}
	if req.WeightKg != nil {
		d.WeightKg = *req.WeightKg
	}
	now := s.now().UTC()
	if res := CheckEligibility(d, req.HemoglobinGDL, now); !res.Eligible {
		return nil, nil, apperr.Invalid("donor is not eligible: %s", strings.Join(res.Reasons, "; "))
	}

	donation := &Donation{
		DonorID:       d.ID,
		DonatedAt:     now,
		VolumeML:      req.VolumeML,
		HemoglobinGDL: req.HemoglobinGDL,
		Status:        DonationCollected,
		Notes:         req.Notes,
	}
	if donation.VolumeML == 0 {
		donation.VolumeML = defaultDonationVolumeML
	}
	unit := &Unit{
		BloodType:   d.BloodType,
		Component:   ComponentWholeBlood,
		VolumeML:    donation.VolumeML,
		CollectedAt: now,
		ExpiresAt:   now.Add(ShelfLife[ComponentWholeBlood]),
		Status:      UnitAvailable,
	}

	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := s.donations.Create(ctx, donation); err != nil {
			return err
		}
		unit.DonationID = &donation.ID
		if err := s.newUnit(ctx, unit); err != nil {
			return err
		}
		donation.UnitID = &unit.ID
		if err := s.donations.Update(ctx, donation); err != nil {
			return err
		}
		d.LastDonationAt = &now
		return s.donors.Update(ctx, d)
	})
	if err != nil {
		return nil, nil, err
	}
	s.logger.Info().Str("donor_id", d.ID.String()).Str("unit_number", unit.UnitNumber).Msg("donation recorded")
	return donation, unit, nil
}

func (s *Service) GetDonation(ctx context.Context, id uuid.UUID) (*Donation, error) {
	return s.donations.GetByID(ctx, id)
}

func (s *Service) ListDonations(ctx context.Context, donorID uuid.UUID, limit, offset int) ([]*Donation, int, error) {
	if _, err := s.donors.GetByID(ctx, donorID); err != nil {
		return nil, 0, err
	}
	return s.donations.ListByDonor(ctx, donorID, limit, offset)
}

// SetDonationStatus records screening results. A rejected donation discards
// its unit.
func (s *Service) SetDonationStatus(ctx context.Context, id uuid.UUID, status string) (*Donation, error) {
	var donation *Donation
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		var err error
		if donation, err = s.donations.GetByID(ctx, id); err != nil {
			return err
		}
		if !allowed(donationTransitions, donation.Status, status) {
			return apperr.Invalid("invalid status transition from %s to %s", donation.Status, status)
		}
		donation.Status = status
		if err := s.donations.Update(ctx, donation); err != nil {
			return err
		}
		if status != DonationRejected || donation.UnitID == nil {
			return nil
		}
		u, err := s.units.GetForUpdate(ctx, *donation.UnitID)
		if err != nil {
			return err
		}
		if !allowed(unitTransitions, u.Status, UnitDiscarded) {
			return apperr.Invalid("unit %s is already %s", u.UnitNumber, u.Status)
		}
		u.Status = UnitDiscarded
		return s.units.Update(ctx, u)
	})
	if err != nil {
		return nil, err
	}
	return donation, nil
}

// SeparateComponents splits an available whole-blood unit into components.
// Each component expires after its own shelf life from the original
// collection time; the parent unit is discarded.
func (s *Service) SeparateComponents(ctx context.Context, unitID uuid.UUID, components []string) ([]*Unit, error) {
	seen := make(map[string]bool, len(components))
	for _, c := range components {
		if _, ok := componentVolumeML[c]; !ok {
			return nil, apperr.Invalid("%s cannot be separated from whole blood", c)
		}
		if seen[c] {
			return nil, apperr.Invalid("component %s listed twice", c)
		}
		seen[c] = true
	}

	var out []*Unit
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		parent, err := s.units.GetForUpdate(ctx, unitID)
		if err != nil {
			return err
		}
		if parent.Component != ComponentWholeBlood {
			return apperr.Invalid("only whole blood units can be separated")
		}
		if parent.Status != UnitAvailable {
			return apperr.Invalid("unit %s is %s", parent.UnitNumber, parent.Status)
		}
		if !parent.ExpiresAt.After(s.now()) {
			return apperr.Invalid("blood unit has expired")
		}
		for _, c := range components {
			u := &Unit{
				DonationID:   parent.DonationID,
				ParentUnitID: &parent.ID,
				BloodType:    parent.BloodType,
				Component:    c,
				VolumeML:     componentVolumeML[c],
				CollectedAt:  parent.CollectedAt,
				ExpiresAt:    parent.CollectedAt.Add(ShelfLife[c]),
				Status:       UnitAvailable,
			}
			if err := s.newUnit(ctx, u); err != nil {
				return err
			}
			out = append(out, u)
		}
		parent.Status = UnitDiscarded
		return s.units.Update(ctx, parent)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Service) GetUnit(ctx context.Context, id uuid.UUID) (*Unit, error) {
	return s.units.GetByID(ctx, id)
}

func (s *Service) ListUnits(ctx context.Context, f UnitFilter, limit, offset int) ([]*Unit, int, error) {
	return s.units.List(ctx, f, limit, offset)
}

// SetUnitStatus applies a manual status change. Issuing goes through Issue.
func (s *Service) SetUnitStatus(ctx context.Context, id uuid.UUID, status string) (*Unit, error) {
	if status == UnitIssued {
		return nil, apperr.Invalid("use the issue endpoint to issue a unit")
	}
	u, err := s.units.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !allowed(unitTransitions, u.Status, status) {
		return nil, apperr.Invalid("invalid status transition from %s to %s", u.Status, status)
	}
	if status == UnitAvailable && !u.ExpiresAt.After(s.now()) {
		return nil, apperr.Invalid("blood unit has expired")
	}
	u.Status = status
	if err := s.units.Update(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

func (s *Service) Inventory(ctx context.Context) ([]InventoryLine, error) {
	lines, err := s.units.Inventory(ctx, s.now())
	if err != nil {
		return nil, err
	}
	if lines == nil {
		lines = []InventoryLine{}
	}
	return lines, nil
}

// ExpireUnits backs the bloodbank.expire-units job.
func (s *Service) ExpireUnits(ctx context.Context) error {
	n, err := s.units.ExpireDue(ctx, s.now())
	if err != nil {
		return err
	}
	if n > 0 {
		s.logger.Info().Int("count", n).Msg("blood units expired")
	}
	return nil
}

// -- Requests and issue --

func (s *Service) CreateRequest(ctx context.Context, requestedBy uuid.UUID, req BloodRequestRequest) (*Request, error) {
	if err := s.patients.Exists(ctx, req.PatientID); err != nil {
		return nil, err
	}
	r := &Request{
		PatientID:      req.PatientID,
		BloodType:      req.BloodType,
		Component:      req.Component,
		UnitsRequested: req.UnitsRequested,
		Urgency:        req.Urgency,
		Status:         RequestPending,
		RequestedBy:    requestedBy,
		Reason:         req.Reason,
	}
	if r.Urgency == "" {
		r.Urgency = "routine"
	}
	if err := s.requests.Create(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

func (s *Service) GetRequest(ctx context.Context, id uuid.UUID) (*Request, error) {
	return s.requests.GetByID(ctx, id)
}

func (s *Service) ListRequests(ctx context.Context, f RequestFilter, limit, offset int) ([]*Request, int, error) {
	return s.requests.List(ctx, f, limit, offset)
}

func (s *Service) CancelRequest(ctx context.Context, id uuid.UUID) (*Request, error) {
	r, err := s.requests.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !r.Open() {
		return nil, apperr.Invalid("cannot cancel a %s request", r.Status)
	}
	r.Status = RequestCancelled
	if err := s.requests.Update(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

// recipientType prefers the patient's recorded blood type over the one
// stated on the request.
func (s *Service) recipientType(ctx context.Context, patientID uuid.UUID, r *Request) (string, error) {
	bt, err := s.patients.BloodType(ctx, patientID)
	if err != nil {
		return "", err
	}
	if bt == "" && r != nil {
		bt = r.BloodType
	}
	if bt == "" {
		return "", apperr.Invalid("recipient blood type is unknown")
	}
	return bt, nil
}

// Issue hands a unit to a patient, optionally against a request.
func (s *Service) Issue(ctx context.Context, unitID uuid.UUID, req IssueRequest) (*Unit, error) {
	now := s.now().UTC()

	u, err := s.units.GetByID(ctx, unitID)
	if err != nil {
		return nil, err
	}
	if (u.Status == UnitAvailable || u.Status == UnitReserved) && !u.ExpiresAt.After(now) {
		u.Status = UnitExpired
		if err := s.units.Update(ctx, u); err != nil {
			s.logger.Error().Err(err).Str("unit_id", u.ID.String()).Msg("mark unit expired failed")
		}
		return nil, apperr.Invalid("blood unit has expired")
	}

	var request *Request
	if req.RequestID != nil {
		if request, err = s.requests.GetByID(ctx, *req.RequestID); err != nil {
			return nil, err
		}
		if request.PatientID != req.PatientID {
			return nil, apperr.Invalid("blood request belongs to another patient")
		}
	}
	recipient, err := s.recipientType(ctx, req.PatientID, request)
	if err != nil {
		return nil, err
	}

	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		if u, err = s.units.GetForUpdate(ctx, unitID); err != nil {
			return err
		}
		if u.Status != UnitAvailable && u.Status != UnitReserved {
			return apperr.Invalid("blood unit is %s", u.Status)
		}
		if !u.ExpiresAt.After(now) {
			return apperr.Invalid("blood unit has expired")
		}
		if !Compatible(u.Component, u.BloodType, recipient) {
			return apperr.Invalid("%s %s is not compatible with recipient blood type %s",
				u.BloodType, u.Component, recipient)
		}
		if request != nil {
			if request, err = s.requests.GetForUpdate(ctx, request.ID); err != nil {
				return err
			}
			if !request.Open() {
				return apperr.Invalid("blood request is %s", request.Status)
			}
			if request.Component != u.Component {
				return apperr.Invalid("blood request is for %s, unit is %s", request.Component, u.Component)
			}
			request.UnitsIssued++
			request.Status = RequestPartiallyFulfilled
			if request.UnitsIssued >= request.UnitsRequested {
				request.Status = RequestFulfilled
			}
			if err := s.requests.Update(ctx, request); err != nil {
				return err
			}
			u.RequestID = &request.ID
		}
		u.Status = UnitIssued
		u.IssuedToPatientID = &req.PatientID
		u.IssuedAt = &now
		return s.units.Update(ctx, u)
	})
	if err != nil {
		return nil, err
	}

	issued := queue.UnitIssued{
		UnitID:     u.ID,
		UnitNumber: u.UnitNumber,
		PatientID:  req.PatientID,
		BloodType:  u.BloodType,
		Component:  u.Component,
	}
	if err := s.events.Publish(ctx, queue.TopicBloodUnitIssued, issued); err != nil {
		s.logger.Error().Err(err).Str("unit_id", u.ID.String()).Msg("publish unit issued failed")
	}
	charge := queue.Charge{
		PatientID:   req.PatientID,
		Category:    "blood_bank",
		Description: fmt.Sprintf("%s %s unit %s", u.BloodType, strings.ReplaceAll(u.Component, "_", " "), u.UnitNumber),
		Quantity:    1,
		UnitPrice:   componentPrices[u.Component],
		SourceRef:   "blood_unit:" + u.ID.String(),
	}
	if err := s.events.Publish(ctx, queue.TopicBillingCharge, charge); err != nil {
		s.logger.Error().Err(err).Str("unit_id", u.ID.String()).Msg("publish blood charge failed")
	}
	return u, nil
}
