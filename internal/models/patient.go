package models

import "time"

// TreatmentVisit is one dated encounter nested under a patient.
type TreatmentVisit struct {
	ID                    string    `json:"id"`
	Date                  time.Time `json:"date"`
	MedicinePrescriptions string    `json:"medicine_prescriptions"`
	Advisories            string    `json:"advisories,omitempty"`
	Notes                 string    `json:"notes,omitempty"`
	Weight                string    `json:"weight,omitempty"`
	BP                    string    `json:"bp,omitempty"`
	RBS                   string    `json:"rbs,omitempty"`
}

type Patient struct {
	ID               int64            `json:"id"`
	DoctorID         int              `json:"doctor"`
	Prefix           string           `json:"prefix"`
	PatientName      string           `json:"patient_name"`
	Age              string           `json:"age"`
	Gender           string           `json:"gender"`
	Weight           string           `json:"weight"`
	Height           string           `json:"height"`
	BP               string           `json:"bp"`
	RBS              string           `json:"rbs"`
	Address          string           `json:"address"`
	ReferenceNumber  string           `json:"reference_number"`
	ReferencePerson  string           `json:"reference_person"`
	ContactNumber    string           `json:"contact_number"`
	PatientProblem   string           `json:"patient_problem"`
	TreatmentEntries []TreatmentVisit `json:"treatment_entries"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

// FindVisit returns the index of the visit with the given id, or -1.
func (p *Patient) FindVisit(visitID string) int {
	for i := range p.TreatmentEntries {
		if p.TreatmentEntries[i].ID == visitID {
			return i
		}
	}
	return -1
}

// CreatePatientInput carries the fields accepted on creation. Prescription and advisory
// text, when present, seed the first visit.
type CreatePatientInput struct {
	Prefix                string `json:"prefix"`
	PatientName           string `json:"patient_name"`
	Age                   string `json:"age"`
	Gender                string `json:"gender"`
	Weight                string `json:"weight"`
	Height                string `json:"height"`
	BP                    string `json:"bp"`
	RBS                   string `json:"rbs"`
	Address               string `json:"address"`
	ReferenceNumber       string `json:"reference_number"`
	ReferencePerson       string `json:"reference_person"`
	ContactNumber         string `json:"contact_number"`
	PatientProblem        string `json:"patient_problem"`
	MedicinePrescriptions string `json:"medicine_prescriptions"`
	Advisories            string `json:"advisories"`
}

// PatientPatch is a partial update: nil means "leave unchanged".
type PatientPatch struct {
	Prefix           *string           `json:"prefix"`
	PatientName      *string           `json:"patient_name"`
	Age              *string           `json:"age"`
	Gender           *string           `json:"gender"`
	Weight           *string           `json:"weight"`
	Height           *string           `json:"height"`
	BP               *string           `json:"bp"`
	RBS              *string           `json:"rbs"`
	Address          *string           `json:"address"`
	ReferenceNumber  *string           `json:"reference_number"`
	ReferencePerson  *string           `json:"reference_person"`
	ContactNumber    *string           `json:"contact_number"`
	PatientProblem   *string           `json:"patient_problem"`
	TreatmentEntries *[]TreatmentVisit `json:"treatment_entries"`
}

// VisitInput adds a visit. Supplied vitals also overwrite the patient's current vitals.
type VisitInput struct {
	MedicinePrescriptions string  `json:"medicine_prescriptions"`
	Advisories            string  `json:"advisories"`
	Notes                 string  `json:"notes"`
	Weight                *string `json:"weight"`
	BP                    *string `json:"bp"`
	RBS                   *string `json:"rbs"`
}

type VisitPatch struct {
	MedicinePrescriptions *string `json:"medicine_prescriptions"`
	Advisories            *string `json:"advisories"`
	Notes                 *string `json:"notes"`
}

// PatientQuery narrows List results.
type PatientQuery struct {
	Search string
}
