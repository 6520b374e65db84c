package hipaa

import (
	"sort"
	"time"
)

// RetentionPolicy defines how long data of a specific type is retained.
type RetentionPolicy struct {
	ResourceType  string `json:"resource_type"`
	RetentionDays int    `json:"retention_days"`
	ArchiveAfter  int    `json:"archive_after_days,omitempty"`
	PurgeAfter    int    `json:"purge_after_days,omitempty"` // 0 = never
	Description   string `json:"description"`
}

type RetentionStatus struct {
	State      string    `json:"state"`
	ExpiresAt  time.Time `json:"expires_at"`
	PolicyName string    `json:"policy_name"`
}

const (
	RetentionStateActive          = "active"
	RetentionStateArchiveEligible = "archive_eligible"
	RetentionStatePurgeEligible   = "purge_eligible"
)

// DefaultRetentionPolicies returns the hospital's retention schedule. Records
// must be kept at least six years; some never expire.
func DefaultRetentionPolicies() []RetentionPolicy {
	return []RetentionPolicy{
		{
			ResourceType:  "medical_record",
			RetentionDays: 2190,
			ArchiveAfter:  1825,
			Description:   "Medical records: 6 years from last date of service",
		},
		{
			ResourceType:  "audit_log",
			RetentionDays: 2190,
			ArchiveAfter:  1095,
			PurgeAfter:    2555,
			Description:   "Audit logs: 6 years minimum, purged after 7",
		},
		{
			ResourceType:  "billing_record",
			RetentionDays: 2555,
			ArchiveAfter:  1825,
			PurgeAfter:    2920,
			Description:   "Invoices and payments: 7 years",
		},
		{
			ResourceType:  "consent_record",
			RetentionDays: 3650,
			ArchiveAfter:  2555,
			Description:   "Consents: 10 years, never purged",
		},
		{
			ResourceType:  "lab_result",
			RetentionDays: 2190,
			ArchiveAfter:  1825,
			Description:   "Laboratory results: 6 years",
		},
		{
			ResourceType:  "radiology_report",
			RetentionDays: 2555,
			ArchiveAfter:  1825,
			Description:   "Imaging reports: 7 years",
		},
	}
}

// RetentionService answers lifecycle questions from a fixed policy set.
type RetentionService struct {
	policies map[string]RetentionPolicy
}

func NewRetentionService(policies []RetentionPolicy) *RetentionService {
	m := make(map[string]RetentionPolicy, len(policies))
	for _, p := range policies {
		m[p.ResourceType] = p
	}
	return &RetentionService{policies: m}
}

// GetPolicy returns the retention policy for a resource type, or nil if not found.
func (s *RetentionService) GetPolicy(resourceType string) *RetentionPolicy {
	p, ok := s.policies[resourceType]
	if !ok {
		return nil
	}
	return &p
}

// GetAllPolicies returns all policies sorted by resource type.
func (s *RetentionService) GetAllPolicies() []RetentionPolicy {
	out := make([]RetentionPolicy, 0, len(s.policies))
	for _, p := range s.policies {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ResourceType < out[j].ResourceType })
	return out
}

// PurgeCutoff returns the instant before which records of resourceType may be
// purged. ok is false when the type is never purged.
func (s *RetentionService) PurgeCutoff(resourceType string, now time.Time) (cutoff time.Time, ok bool) {
	p, found := s.policies[resourceType]
	if !found || p.PurgeAfter <= 0 {
		return time.Time{}, false
	}
	return now.AddDate(0, 0, -p.PurgeAfter), true
}

// CheckRetention reports whether a record created at createdAt is active,
// archivable or purgeable at now.
func (s *RetentionService) CheckRetention(resourceType string, createdAt, now time.Time) RetentionStatus {
	policy, ok := s.policies[resourceType]
	if !ok {
		return RetentionStatus{State: RetentionStateActive, PolicyName: "unknown"}
	}

	ageDays := int(now.Sub(createdAt).Hours() / 24)

	if policy.PurgeAfter > 0 && ageDays >= policy.PurgeAfter {
		return RetentionStatus{
			State:      RetentionStatePurgeEligible,
			ExpiresAt:  createdAt.AddDate(0, 0, policy.PurgeAfter),
			PolicyName: policy.ResourceType,
		}
	}

	if policy.ArchiveAfter > 0 && ageDays >= policy.ArchiveAfter {
		expiresAt := createdAt.AddDate(0, 0, policy.RetentionDays)
		if policy.PurgeAfter > 0 {
			expiresAt = createdAt.AddDate(0, 0, policy.PurgeAfter)
		}
		return RetentionStatus{
			State:      RetentionStateArchiveEligible,
			ExpiresAt:  expiresAt,
			PolicyName: policy.ResourceType,
		}
	}

	expiresAt := createdAt.AddDate(0, 0, policy.RetentionDays)
	if policy.ArchiveAfter > 0 {
		expiresAt = createdAt.AddDate(0, 0, policy.ArchiveAfter)
	}
	return RetentionStatus{
		State:      RetentionStateActive,
		ExpiresAt:  expiresAt,
		PolicyName: policy.ResourceType,
	}
}
