package auth

const (
	RoleAdmin             = "admin"
	RoleDoctor            = "doctor"
	RoleNurse             = "nurse"
	RoleLabTechnician     = "lab_technician"
	RoleRadiologist       = "radiologist"
	RolePharmacist        = "pharmacist"
	RoleReceptionist      = "receptionist"
	RoleAccountant        = "accountant"
	RoleComplianceOfficer = "compliance_officer"
)

// AllRoles lists every role a user account may hold.
var AllRoles = []string{
	RoleAdmin, RoleDoctor, RoleNurse, RoleLabTechnician, RoleRadiologist,
	RolePharmacist, RoleReceptionist, RoleAccountant, RoleComplianceOfficer,
}

// ClinicalRoles are the roles that need a professional license.
var ClinicalRoles = []string{
	RoleDoctor, RoleNurse, RolePharmacist, RoleRadiologist, RoleLabTechnician,
}

func ValidRole(role string) bool {
	return contains(AllRoles, role)
}

func IsClinicalRole(role string) bool {
	return contains(ClinicalRoles, role)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
