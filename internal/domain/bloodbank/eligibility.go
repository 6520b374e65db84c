package bloodbank

import (
	"fmt"
	"time"
)

// Donation screening thresholds.
const (
	MinDonorAge          = 18
	MaxDonorAge          = 65
	MinDonorWeightKg     = 50.0
	MinHemoglobinGDL     = 12.5
	DonationIntervalDays = 56
)

// ageOn returns completed years between dob and now.
func ageOn(dob, now time.Time) int {
	years := now.Year() - dob.Year()
	if now.Month() < dob.Month() || (now.Month() == dob.Month() && now.Day() < dob.Day()) {
		years--
	}
	return years
}

// CheckEligibility screens d for a donation at now. hemoglobin is only
// checked when positive.
func CheckEligibility(d *Donor, hemoglobin float64, now time.Time) Eligibility {
	res := Eligibility{Reasons: []string{}}
	var next time.Time

	if d.Status == DonorInactive {
		res.Reasons = append(res.Reasons, "donor is inactive")
	}
	if age := ageOn(d.DateOfBirth, now); age < MinDonorAge || age > MaxDonorAge {
		res.Reasons = append(res.Reasons,
			fmt.Sprintf("donor age %d is outside %d-%d", age, MinDonorAge, MaxDonorAge))
		if age < MinDonorAge {
			next = d.DateOfBirth.AddDate(MinDonorAge, 0, 0)
		}
	}
	if d.WeightKg < MinDonorWeightKg {
		res.Reasons = append(res.Reasons,
			fmt.Sprintf("donor weight %.1f kg is below %.0f kg", d.WeightKg, MinDonorWeightKg))
	}
	if hemoglobin > 0 && hemoglobin < MinHemoglobinGDL {
		res.Reasons = append(res.Reasons,
			fmt.Sprintf("hemoglobin %.1f g/dL is below %.1f g/dL", hemoglobin, MinHemoglobinGDL))
	}
	if d.DeferredUntil != nil && d.DeferredUntil.After(now) {
		res.Reasons = append(res.Reasons,
			fmt.Sprintf("donor is deferred until %s", d.DeferredUntil.Format("2006-01-02")))
		if d.DeferredUntil.After(next) {
			next = *d.DeferredUntil
		}
	}
	if d.LastDonationAt != nil {
		due := d.LastDonationAt.AddDate(0, 0, DonationIntervalDays)
		if due.After(now) {
			res.Reasons = append(res.Reasons, fmt.Sprintf(
				"last donation was less than %d days ago; next eligible on %s",
				DonationIntervalDays, due.Format("2006-01-02")))
			if due.After(next) {
				next = due
			}
		}
	}

	res.Eligible = len(res.Reasons) == 0
	if !res.Eligible && !next.IsZero() {
		res.NextEligibleDate = &next
	}
	return res
}
