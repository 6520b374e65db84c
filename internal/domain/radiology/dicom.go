package radiology

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
)

// StudyUIDRoot is the UUID-derived DICOM UID root (ISO/IEC 9834-8).
const StudyUIDRoot = "2.25."

// NewStudyInstanceUID returns "2.25." followed by the decimal value of a
// random UUID.
func NewStudyInstanceUID() string {
	return uidFromUUID(uuid.New())
}

func uidFromUUID(u uuid.UUID) string {
	return StudyUIDRoot + new(big.Int).SetBytes(u[:]).String()
}

// NewAccessionNumber returns "ACC" + YYYYMMDD + six random digits.
func NewAccessionNumber(now time.Time) (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", fmt.Errorf("generate accession number: %w", err)
	}
	return fmt.Sprintf("ACC%s%06d", now.UTC().Format("20060102"), n.Int64()), nil
}

// Study is mocked DICOM study metadata keyed by DICOM attribute keyword.
type Study map[string]any

// seriesPerModality is how many series the mock study reports.
var seriesPerModality = map[string]int{
	ModalityXRay:        1,
	ModalityCT:          3,
	ModalityMRI:         4,
	ModalityUltrasound:  2,
	ModalityMammography: 2,
	ModalityFluoroscopy: 1,
	ModalityPET:         2,
}

const instancesPerSeries = 24

// BuildStudy assembles DICOM study-level metadata for t.
func BuildStudy(t *RadiologyTest, p *PatientInfo) Study {
	series := seriesPerModality[t.Modality]
	if series == 0 {
		series = 1
	}
	seriesUIDs := make([]string, series)
	for i := range seriesUIDs {
		seriesUIDs[i] = fmt.Sprintf("%s.%d", *t.StudyInstanceUID, i+1)
	}
	started := t.CreatedAt
	if t.StartedAt != nil {
		started = *t.StartedAt
	}
	s := Study{
		"StudyInstanceUID":              *t.StudyInstanceUID,
		"SeriesInstanceUID":             seriesUIDs,
		"AccessionNumber":               deref(t.AccessionNumber),
		"Modality":                      dicomModality[t.Modality],
		"StudyDate":                     started.UTC().Format("20060102"),
		"StudyTime":                     started.UTC().Format("150405"),
		"BodyPartExamined":              strings.ToUpper(t.BodyPart),
		"NumberOfStudyRelatedSeries":    series,
		"NumberOfStudyRelatedInstances": series * instancesPerSeries,
	}
	if p != nil {
		s["PatientID"] = p.MRN
		s["PatientName"] = strings.ToUpper(p.LastName) + "^" + strings.ToUpper(p.FirstName)
		s["PatientBirthDate"] = p.DateOfBirth.Format("20060102")
		s["PatientSex"] = dicomSex(p.Gender)
	}
	if t.ContrastUsed {
		agent := "IODINATED"
		if t.Modality == ModalityMRI {
			agent = "GADOLINIUM"
		}
		s["ContrastBolusAgent"] = agent
	}
	return s
}

func dicomSex(gender string) string {
	switch gender {
	case "male":
		return "M"
	case "female":
		return "F"
	}
	return "O"
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
