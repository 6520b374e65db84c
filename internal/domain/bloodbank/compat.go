package bloodbank

import "strings"

// abo returns the ABO antigens of a blood type ("A", "B", "AB" or "") and
// whether it is Rh positive.
func abo(bloodType string) (antigens string, rhPositive bool) {
	group := strings.TrimRight(bloodType, "+-")
	if group == "O" {
		group = ""
	}
	return group, strings.HasSuffix(bloodType, "+")
}

// subset reports whether every antigen in a is also in b.
func subset(a, b string) bool {
	for _, r := range a {
		if !strings.ContainsRune(b, r) {
			return false
		}
	}
	return true
}

// RedCellCompatible applies to whole blood and packed red cells: donor cells
// must carry no ABO antigen the recipient lacks, and Rh positive cells only
// go to Rh positive recipients.
func RedCellCompatible(donor, recipient string) bool {
	dAg, dRh := abo(donor)
	rAg, rRh := abo(recipient)
	return subset(dAg, rAg) && (!dRh || rRh)
}

// PlasmaCompatible applies to plasma and cryoprecipitate: donor plasma must
// carry no antibody against the recipient's antigens. Rh does not matter.
func PlasmaCompatible(donor, recipient string) bool {
	dAg, _ := abo(donor)
	rAg, _ := abo(recipient)
	return subset(rAg, dAg)
}

// Compatible checks a unit of component and donor type against a recipient.
// Platelets are issued regardless of type.
func Compatible(component, donor, recipient string) bool {
	switch component {
	case ComponentWholeBlood, ComponentPackedRBC:
		return RedCellCompatible(donor, recipient)
	case ComponentPlasma, ComponentCryoprecipitate:
		return PlasmaCompatible(donor, recipient)
	}
	return true
}
