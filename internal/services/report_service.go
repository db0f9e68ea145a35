package services

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"medicare/internal/models"
	"medicare/internal/pdf"
)

// Report is a rendered patient record ready to be served as an attachment.
type Report struct {
	Filename string
	Content  []byte
}

type ReportService struct {
	patients *PatientService
	gen      pdf.Generator
	log      *zap.Logger
	now      func() time.Time
}

func NewReportService(patients *PatientService, gen pdf.Generator, log *zap.Logger) *ReportService {
	if log == nil {
		log = zap.NewNop()
	}
	return &ReportService{patients: patients, gen: gen, log: log, now: time.Now}
}

// PatientReport renders the patient's record. With visitIDs set, only those visits are included
// and an unknown id is ErrVisitNotFound.
func (s *ReportService) PatientReport(ctx context.Context, doctorID int, patientID int64, visitIDs []string) (*Report, error) {
	p, err := s.patients.Get(ctx, doctorID, patientID)
	if err != nil {
		return nil, err
	}

	visits := p.TreatmentEntries
	if len(visitIDs) > 0 {
		visits = make([]models.TreatmentVisit, 0, len(visitIDs))
		seen := make(map[string]bool, len(visitIDs))
		for _, id := range visitIDs {
			if seen[id] {
				continue
			}
			seen[id] = true
			i := p.FindVisit(id)
			if i < 0 {
				return nil, ErrVisitNotFound
			}
			visits = append(visits, p.TreatmentEntries[i])
		}
	}

	now := s.now()
	content, err := s.gen.GeneratePatientReport(pdf.ReportData{Patient: p, Visits: visits, GeneratedAt: now})
	if err != nil {
		s.log.Error("[reports][render] failed", zap.Int64("patient_id", patientID), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrDependency, err)
	}
	return &Report{Filename: ReportFilename(p, now), Content: content}, nil
}

var unsafeFilename = regexp.MustCompile(`[^A-Za-z0-9_\-]`)

// ReportFilename is MediCare_<Name>_<Ref>_<YYYY-MM-DD>.pdf with whitespace in the name
// collapsed to underscores.
func ReportFilename(p *models.Patient, at time.Time) string {
	name := strings.Join(strings.Fields(p.PatientName), "_")
	name = unsafeFilename.ReplaceAllString(name, "")
	ref := unsafeFilename.ReplaceAllString(p.ReferenceNumber, "")
	return fmt.Sprintf("MediCare_%s_%s_%s.pdf", name, ref, at.Format("2006-01-02"))
}
