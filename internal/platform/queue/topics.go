package queue

// Domain event topics.
const (
	TopicLabOrderCreated          = "lab.order.created"
	TopicLabResultCompleted       = "lab.result.completed"
	TopicLabResultCritical        = "lab.result.critical"
	TopicRadiologyReportCompleted = "radiology.report.completed"
	TopicPharmacyDispensed        = "pharmacy.dispensed"
	TopicPharmacyLowStock         = "pharmacy.low_stock"
	TopicBillingCharge            = "billing.charge"
	TopicBloodUnitIssued          = "bloodbank.unit.issued"
	TopicStaffLicenseExpiring     = "staff.license.expiring"
	TopicComplianceAudit          = "compliance.audit"
	TopicAppointmentBooked        = "appointment.booked"
)

// ExportedTopics are copied to Kafka when a broker is configured. Audit
// traffic stays internal.
var ExportedTopics = []string{
	TopicLabOrderCreated,
	TopicLabResultCompleted,
	TopicLabResultCritical,
	TopicRadiologyReportCompleted,
	TopicPharmacyDispensed,
	TopicPharmacyLowStock,
	TopicBillingCharge,
	TopicBloodUnitIssued,
	TopicStaffLicenseExpiring,
	TopicAppointmentBooked,
}
