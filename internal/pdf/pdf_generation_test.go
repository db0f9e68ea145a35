package pdf

import (
	"bytes"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medicare/internal/models"
)

func samplePatient(visits int) *models.Patient {
	p := &models.Patient{
		ID:              7,
		Prefix:          "Mr.",
		PatientName:     "José Alvarez",
		Age:             "54",
		ReferenceNumber: "ID-123456-042",
		ContactNumber:   "555-0100",
		Address:         "12 Harbour Road, Apt 3",
		PatientProblem:  "Recurring headaches",
		BP:              "130/85",
		CreatedAt:       time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC),
	}
	for i := 0; i < visits; i++ {
		p.TreatmentEntries = append(p.TreatmentEntries, models.TreatmentVisit{
			ID:                    fmt.Sprintf("v%d", i),
			Date:                  p.CreatedAt.AddDate(0, 0, i*7),
			MedicinePrescriptions: strings.Repeat("Paracetamol 500mg twice daily. ", 4),
			Advisories:            "Hydrate",
		})
	}
	return p
}

func TestGeneratePatientReport(t *testing.T) {
	g := NewDocumentGenerator("", "")
	p := samplePatient(2)

	out, err := g.GeneratePatientReport(ReportData{Patient: p, Visits: p.TreatmentEntries})
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF-")))
}

func TestGeneratePatientReport_ManyVisitsPaginate(t *testing.T) {
	g := NewDocumentGenerator("Harbour Clinic", "")
	p := samplePatient(30)

	short, err := g.GeneratePatientReport(ReportData{Patient: p, Visits: p.TreatmentEntries[:1]})
	require.NoError(t, err)
	long, err := g.GeneratePatientReport(ReportData{Patient: p, Visits: p.TreatmentEntries})
	require.NoError(t, err)
	assert.Greater(t, len(long), len(short))
}

func TestGeneratePatientReport_MissingFontFallsBack(t *testing.T) {
	g := NewDocumentGenerator("", "/nonexistent/DejaVuSans.ttf")
	_, err := g.GeneratePatientReport(ReportData{Patient: samplePatient(0)})
	require.NoError(t, err)
}

func TestGeneratePatientReport_NilPatient(t *testing.T) {
	_, err := NewDocumentGenerator("", "").GeneratePatientReport(ReportData{})
	require.Error(t, err)
}
