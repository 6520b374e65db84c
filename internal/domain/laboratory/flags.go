package laboratory

import (
	"math"
	"strconv"
)

// FlagValue classifies a numeric result against the catalog ranges. Critical
// bounds are checked before reference bounds.
func FlagValue(v float64, c *CatalogEntry) string {
	switch {
	case c.CriticalLow != nil && v < *c.CriticalLow:
		return FlagCriticalLow
	case c.CriticalHigh != nil && v > *c.CriticalHigh:
		return FlagCriticalHigh
	case c.ReferenceLow != nil && v < *c.ReferenceLow:
		return FlagLow
	case c.ReferenceHigh != nil && v > *c.ReferenceHigh:
		return FlagHigh
	}
	return FlagNormal
}

func IsCritical(flag string) bool {
	return flag == FlagCriticalLow || flag == FlagCriticalHigh
}

// QC rule names (Westgard).
const (
	RuleOneThreeS = "1-3s"
	RuleOneTwoS   = "1-2s"
)

const (
	QCPass    = "pass"
	QCWarning = "warning"
	QCFail    = "fail"
)

// EvaluateQC computes the z-score of a control measurement and applies the
// 1-3s (reject) and 1-2s (warning) rules. sd must be positive.
func EvaluateQC(measured, mean, sd float64) (z float64, status string, rule string) {
	raw := (measured - mean) / sd
	z = math.Round(raw*1000) / 1000
	switch abs := math.Abs(raw); {
	case abs > 3:
		return z, QCFail, RuleOneThreeS
	case abs > 2:
		return z, QCWarning, RuleOneTwoS
	}
	return z, QCPass, ""
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
