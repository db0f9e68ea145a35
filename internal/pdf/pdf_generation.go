package pdf

import (
	"bytes"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"

	"medicare/internal/models"
)

// Generator renders a patient record into a PDF document.
type Generator interface {
	GeneratePatientReport(data ReportData) ([]byte, error)
}

// ReportData is what goes into one report. Visits is already narrowed to the selected entries.
type ReportData struct {
	Patient     *models.Patient
	Visits      []models.TreatmentVisit
	GeneratedAt time.Time
}

// DocumentGenerator uses a TTF font when FontPath points at one, otherwise the core Helvetica
// font with cp1252 translation.
type DocumentGenerator struct {
	ClinicName string
	FontPath   string
	fontName   string
}

var (
	primaryBlue = [3]int{44, 82, 130}
	lightBlue   = [3]int{59, 130, 246}
	darkGray    = [3]int{55, 65, 81}
	lightGray   = [3]int{156, 163, 175}
	accentGreen = [3]int{34, 197, 94}
)

const (
	pageWidth   = 210.0
	marginLeft  = 15.0
	contentW    = 180.0
	breakAtY    = 240.0
	footerSpace = 28.0
)

func NewDocumentGenerator(clinicName, fontPath string) *DocumentGenerator {
	if clinicName == "" {
		clinicName = "MediCare Clinic"
	}
	return &DocumentGenerator{ClinicName: clinicName, FontPath: fontPath}
}

func (g *DocumentGenerator) GeneratePatientReport(data ReportData) ([]byte, error) {
	if data.Patient == nil {
		return nil, fmt.Errorf("pdf: patient is required")
	}
	if data.GeneratedAt.IsZero() {
		data.GeneratedAt = time.Now()
	}
	p := data.Patient

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle(fmt.Sprintf("%s - %s", p.PatientName, p.ReferenceNumber), true)
	pdf.SetAuthor(g.ClinicName, true)
	pdf.SetMargins(marginLeft, 20, marginLeft)
	pdf.SetAutoPageBreak(true, footerSpace)

	font, tr := g.setupFont(pdf)
	r := &renderer{pdf: pdf, font: font, tr: tr}

	pdf.AliasNbPages("{nb}")
	pdf.SetFooterFunc(func() {
		h := 297.0
		pdf.SetFillColor(248, 250, 252)
		pdf.Rect(0, h-25, pageWidth, 25, "F")
		r.draw(lightGray)
		pdf.SetLineWidth(0.5)
		pdf.Line(marginLeft, h-25, pageWidth-marginLeft, h-25)
		r.text(lightGray)
		pdf.SetFont(font, "", 8)
		pdf.SetXY(20, h-19)
		pdf.CellFormat(120, 4, tr("Generated by "+g.ClinicName+" Patient Management System"), "", 0, "L", false, 0, "")
		pdf.SetXY(20, h-12)
		pdf.CellFormat(120, 4, tr("Generated on: "+data.GeneratedAt.Format("January 2, 2006")), "", 0, "L", false, 0, "")
		pdf.SetXY(150, h-12)
		pdf.CellFormat(45, 4, fmt.Sprintf("Page %d of {nb}", pdf.PageNo()), "", 0, "R", false, 0, "")
	})

	pdf.AddPage()
	r.header(g.ClinicName)
	r.patientInfo(p)
	r.longField("ADDRESS", p.Address)
	r.longField("CHIEF COMPLAINT", p.PatientProblem)
	r.history(data.Visits)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("pdf: render: %w", err)
	}
	return buf.Bytes(), nil
}

func (g *DocumentGenerator) setupFont(pdf *gofpdf.Fpdf) (string, func(string) string) {
	if g.FontPath != "" {
		if _, err := os.Stat(g.FontPath); err == nil {
			pdf.AddUTF8Font("DejaVu", "", g.FontPath)
			pdf.AddUTF8Font("DejaVu", "B", g.FontPath)
			if pdf.Ok() {
				return "DejaVu", func(s string) string { return s }
			}
			pdf.ClearError()
		}
	}
	return "Helvetica", pdf.UnicodeTranslatorFromDescriptor("")
}

type renderer struct {
	pdf  *gofpdf.Fpdf
	font string
	tr   func(string) string
}

func (r *renderer) fill(c [3]int) { r.pdf.SetFillColor(c[0], c[1], c[2]) }
func (r *renderer) draw(c [3]int) { r.pdf.SetDrawColor(c[0], c[1], c[2]) }
func (r *renderer) text(c [3]int) { r.pdf.SetTextColor(c[0], c[1], c[2]) }

func (r *renderer) header(clinic string) {
	pdf := r.pdf
	r.fill(primaryBlue)
	pdf.Rect(0, 0, pageWidth, 50, "F")
	r.fill(lightBlue)
	pdf.Rect(0, 40, pageWidth, 10, "F")

	// medical cross
	pdf.SetFillColor(255, 255, 255)
	pdf.Rect(15, 15, 20, 20, "F")
	r.draw(primaryBlue)
	pdf.SetLineWidth(2)
	pdf.Line(20, 25, 30, 25)
	pdf.Line(25, 20, 25, 30)

	pdf.SetTextColor(255, 255, 255)
	pdf.SetFont(r.font, "B", 24)
	pdf.SetXY(45, 16)
	pdf.CellFormat(0, 10, r.tr(clinic), "", 0, "L", false, 0, "")
	pdf.SetFont(r.font, "", 12)
	pdf.SetXY(45, 29)
	pdf.CellFormat(0, 6, r.tr("Advanced Patient Management System"), "", 0, "L", false, 0, "")

	r.text(primaryBlue)
	pdf.SetFont(r.font, "B", 18)
	pdf.SetXY(20, 58)
	pdf.CellFormat(0, 10, r.tr("PATIENT MEDICAL RECORD"), "", 1, "L", false, 0, "")
}

func (r *renderer) sectionBar(title string) {
	pdf := r.pdf
	y := pdf.GetY()
	r.fill(lightBlue)
	pdf.Rect(marginLeft, y, contentW, 12, "F")
	pdf.SetTextColor(255, 255, 255)
	pdf.SetFont(r.font, "B", 14)
	pdf.SetXY(20, y+2)
	pdf.CellFormat(0, 8, r.tr(title), "", 1, "L", false, 0, "")
	pdf.SetY(y + 16)
}

func (r *renderer) patientInfo(p *models.Patient) {
	pdf := r.pdf
	pdf.SetY(75)
	r.sectionBar("PATIENT INFORMATION")
	top := pdf.GetY()

	age := p.Age
	if age != "" {
		age += " years"
	}
	name := strings.TrimSpace(strings.TrimSpace(p.Prefix) + " " + p.PatientName)

	r.field("PATIENT NAME", name, 25, top, true)
	r.field("AGE", age, 25, top+18, false)
	r.field("PATIENT ID", p.ReferenceNumber, 25, top+36, false)
	r.field("REFERENCE PERSON", p.ReferencePerson, 110, top, false)
	r.field("CONTACT NUMBER", p.ContactNumber, 110, top+18, false)
	r.field("RECORD DATE", p.CreatedAt.Format("January 2, 2006"), 110, top+36, false)

	vitals := make([]string, 0, 4)
	for _, kv := range [][2]string{{"Weight", p.Weight}, {"Height", p.Height}, {"BP", p.BP}, {"RBS", p.RBS}} {
		if strings.TrimSpace(kv[1]) != "" {
			vitals = append(vitals, kv[0]+": "+kv[1])
		}
	}
	pdf.SetY(top + 54)
	if len(vitals) > 0 {
		r.field("CURRENT VITALS", strings.Join(vitals, "   "), 25, top+54, false)
		pdf.SetY(top + 72)
	}
}

func (r *renderer) field(label, value string, x, y float64, highlight bool) {
	pdf := r.pdf
	r.text(darkGray)
	pdf.SetFont(r.font, "B", 10)
	pdf.SetXY(x, y)
	pdf.CellFormat(80, 5, r.tr(label+":"), "", 0, "L", false, 0, "")

	if strings.TrimSpace(value) == "" {
		value = "Not provided"
	}
	if highlight {
		r.text(primaryBlue)
		pdf.SetFont(r.font, "B", 12)
	} else {
		pdf.SetTextColor(0, 0, 0)
		pdf.SetFont(r.font, "", 10)
	}
	pdf.SetXY(x, y+6)
	pdf.CellFormat(80, 6, r.tr(value), "", 0, "L", false, 0, "")
}

func (r *renderer) longField(label, value string) {
	if strings.TrimSpace(value) == "" {
		return
	}
	pdf := r.pdf
	r.text(darkGray)
	pdf.SetFont(r.font, "B", 10)
	pdf.SetX(25)
	pdf.CellFormat(0, 6, r.tr(label+":"), "", 1, "L", false, 0, "")
	pdf.SetTextColor(0, 0, 0)
	pdf.SetFont(r.font, "", 10)
	pdf.SetX(25)
	pdf.MultiCell(150, 6, r.tr(value), "", "L", false)
	pdf.Ln(4)
}

// history prints visits newest first; numbering counts down so the oldest visit is Visit 1.
func (r *renderer) history(visits []models.TreatmentVisit) {
	if len(visits) == 0 {
		return
	}
	pdf := r.pdf
	sorted := make([]models.TreatmentVisit, len(visits))
	copy(sorted, visits)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Date.After(sorted[j].Date) })

	if pdf.GetY() > 200 {
		pdf.AddPage()
	}
	r.sectionBar("TREATMENT HISTORY")

	for i, v := range sorted {
		if pdf.GetY() > breakAtY {
			pdf.AddPage()
		}
		start := pdf.GetY()

		r.text(primaryBlue)
		pdf.SetFont(r.font, "B", 12)
		pdf.SetX(25)
		pdf.CellFormat(0, 7, fmt.Sprintf("Visit %d", len(sorted)-i), "", 1, "L", false, 0, "")
		r.text(darkGray)
		pdf.SetFont(r.font, "", 10)
		pdf.SetX(25)
		pdf.CellFormat(0, 6, r.tr(v.Date.Format("January 2, 2006")), "", 1, "L", false, 0, "")
		pdf.Ln(2)

		r.visitField("PRESCRIBED MEDICATIONS", v.MedicinePrescriptions)
		r.visitField("MEDICAL ADVISORIES", v.Advisories)
		r.visitField("CLINICAL NOTES", v.Notes)

		// accent bar only when the card stayed on one page
		if end := pdf.GetY(); end > start {
			r.fill(accentGreen)
			pdf.Rect(marginLeft, start-2, 3, end-start+2, "F")
		}
		pdf.Ln(6)
	}
}

func (r *renderer) visitField(label, content string) {
	if strings.TrimSpace(content) == "" {
		return
	}
	pdf := r.pdf
	r.text(darkGray)
	pdf.SetFont(r.font, "B", 9)
	pdf.SetX(30)
	pdf.CellFormat(0, 5, r.tr(label+":"), "", 1, "L", false, 0, "")
	pdf.SetTextColor(0, 0, 0)
	pdf.SetFont(r.font, "", 10)
	pdf.SetX(30)
	pdf.MultiCell(150, 5, r.tr(content), "", "L", false)
	pdf.Ln(3)
}
