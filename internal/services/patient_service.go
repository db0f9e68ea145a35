package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"medicare/internal/metrics"
	"medicare/internal/models"
	"medicare/internal/repositories"
	"medicare/internal/utils"
)

var (
	ErrValidation         = errors.New("validation error")
	ErrPatientNotFound    = errors.New("patient not found")
	ErrVisitNotFound      = errors.New("treatment entry not found")
	ErrDuplicateReference = errors.New("reference number already in use")
)

const referenceAttempts = 3

// PatientService is CRUD over patient records and their visits. Every call is scoped to the
// owning doctor; a record owned by someone else is reported as not found.
type PatientService struct {
	repo    repositories.PatientRepository
	metrics *metrics.Metrics
	log     *zap.Logger

	now    func() time.Time
	newRef func(time.Time) (string, error)
}

func NewPatientService(repo repositories.PatientRepository, m *metrics.Metrics, log *zap.Logger) *PatientService {
	if log == nil {
		log = zap.NewNop()
	}
	return &PatientService{
		repo:    repo,
		metrics: m,
		log:     log,
		now:     time.Now,
		newRef:  utils.NewReferenceNumber,
	}
}

func (s *PatientService) List(ctx context.Context, doctorID int, q models.PatientQuery) ([]*models.Patient, error) {
	patients, err := s.repo.ListByDoctor(ctx, doctorID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDependency, err)
	}
	term := strings.ToLower(strings.TrimSpace(q.Search))
	if term == "" {
		return patients, nil
	}
	out := make([]*models.Patient, 0, len(patients))
	for _, p := range patients {
		if matchesSearch(p, term) {
			out = append(out, p)
		}
	}
	return out, nil
}

func matchesSearch(p *models.Patient, term string) bool {
	fields := []string{
		p.Prefix, p.PatientName, p.Age, p.Gender, p.Weight, p.Height, p.BP, p.RBS, p.Address,
		p.ReferenceNumber, p.ReferencePerson, p.ContactNumber, p.PatientProblem,
	}
	for _, v := range p.TreatmentEntries {
		fields = append(fields, v.MedicinePrescriptions, v.Advisories, v.Notes)
	}
	for _, f := range fields {
		if f != "" && strings.Contains(strings.ToLower(f), term) {
			return true
		}
	}
	return false
}

func (s *PatientService) Create(ctx context.Context, doctorID int, in models.CreatePatientInput) (*models.Patient, error) {
	p := &models.Patient{
		DoctorID:         doctorID,
		Prefix:           in.Prefix,
		PatientName:      strings.TrimSpace(in.PatientName),
		Age:              strings.TrimSpace(in.Age),
		Gender:           in.Gender,
		Weight:           strings.TrimSpace(in.Weight),
		Height:           strings.TrimSpace(in.Height),
		BP:               strings.TrimSpace(in.BP),
		RBS:              strings.TrimSpace(in.RBS),
		Address:          in.Address,
		ReferenceNumber:  strings.TrimSpace(in.ReferenceNumber),
		ReferencePerson:  in.ReferencePerson,
		ContactNumber:    strings.TrimSpace(in.ContactNumber),
		PatientProblem:   in.PatientProblem,
		TreatmentEntries: []models.TreatmentVisit{},
	}
	if p.PatientName == "" || p.Age == "" || p.ContactNumber == "" {
		return nil, fmt.Errorf("%w: patient_name, age and contact_number are required", ErrValidation)
	}

	if in.MedicinePrescriptions != "" || in.Advisories != "" {
		p.TreatmentEntries = append(p.TreatmentEntries, models.TreatmentVisit{
			ID:                    uuid.NewString(),
			Date:                  s.now(),
			MedicinePrescriptions: in.MedicinePrescriptions,
			Advisories:            in.Advisories,
		})
	}

	if p.ReferenceNumber != "" {
		if err := s.repo.Create(ctx, p); err != nil {
			return nil, s.mapWriteError(err)
		}
		s.count("create")
		return p, nil
	}

	// generated references can collide; retry with a fresh one
	for attempt := 1; ; attempt++ {
		ref, err := s.newRef(s.now())
		if err != nil {
			return nil, fmt.Errorf("%w: reference number: %v", ErrDependency, err)
		}
		p.ReferenceNumber = ref
		err = s.repo.Create(ctx, p)
		if err == nil {
			break
		}
		if errors.Is(err, repositories.ErrDuplicateReference) && attempt < referenceAttempts {
			s.log.Warn("[patients][create] generated reference collided", zap.String("reference", ref))
			continue
		}
		return nil, s.mapWriteError(err)
	}
	s.count("create")
	return p, nil
}

func (s *PatientService) Get(ctx context.Context, doctorID int, id int64) (*models.Patient, error) {
	p, err := s.repo.GetByID(ctx, id, doctorID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDependency, err)
	}
	if p == nil {
		return nil, ErrPatientNotFound
	}
	return p, nil
}

// Update applies only the fields present in patch. Required fields ignore empty values so they
// cannot be cleared; the optional ones accept "" as an explicit clear. A supplied visit list
// replaces the existing one.
func (s *PatientService) Update(ctx context.Context, doctorID int, id int64, patch models.PatientPatch) (*models.Patient, error) {
	p, err := s.Get(ctx, doctorID, id)
	if err != nil {
		return nil, err
	}

	setRequired(&p.PatientName, patch.PatientName)
	setRequired(&p.Age, patch.Age)
	setRequired(&p.ReferenceNumber, patch.ReferenceNumber)
	setRequired(&p.ContactNumber, patch.ContactNumber)

	setOptional(&p.Prefix, patch.Prefix)
	setOptional(&p.Gender, patch.Gender)
	setOptional(&p.Weight, patch.Weight)
	setOptional(&p.Height, patch.Height)
	setOptional(&p.BP, patch.BP)
	setOptional(&p.RBS, patch.RBS)
	setOptional(&p.Address, patch.Address)
	setOptional(&p.ReferencePerson, patch.ReferencePerson)
	setOptional(&p.PatientProblem, patch.PatientProblem)

	if patch.TreatmentEntries != nil {
		entries := make([]models.TreatmentVisit, 0, len(*patch.TreatmentEntries))
		for _, v := range *patch.TreatmentEntries {
			if v.ID == "" {
				v.ID = uuid.NewString()
			}
			if v.Date.IsZero() {
				v.Date = s.now()
			}
			entries = append(entries, v)
		}
		p.TreatmentEntries = entries
	}

	if err := s.save(ctx, p); err != nil {
		return nil, err
	}
	s.count("update")
	return p, nil
}

func (s *PatientService) Delete(ctx context.Context, doctorID int, id int64) error {
	ok, err := s.repo.Delete(ctx, id, doctorID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDependency, err)
	}
	if !ok {
		return ErrPatientNotFound
	}
	s.count("delete")
	return nil
}

// AddVisit appends a visit dated now. Supplied vitals are recorded on the visit and overwrite
// the patient's current ones.
func (s *PatientService) AddVisit(ctx context.Context, doctorID int, id int64, in models.VisitInput) (*models.Patient, error) {
	if strings.TrimSpace(in.MedicinePrescriptions) == "" {
		return nil, fmt.Errorf("%w: medicine_prescriptions is required", ErrValidation)
	}
	p, err := s.Get(ctx, doctorID, id)
	if err != nil {
		return nil, err
	}

	visit := models.TreatmentVisit{
		ID:                    uuid.NewString(),
		Date:                  s.now(),
		MedicinePrescriptions: in.MedicinePrescriptions,
		Advisories:            in.Advisories,
		Notes:                 in.Notes,
	}
	if in.Weight != nil {
		p.Weight = *in.Weight
		visit.Weight = *in.Weight
	}
	if in.BP != nil {
		p.BP = *in.BP
		visit.BP = *in.BP
	}
	if in.RBS != nil {
		p.RBS = *in.RBS
		visit.RBS = *in.RBS
	}
	p.TreatmentEntries = append(p.TreatmentEntries, visit)

	if err := s.save(ctx, p); err != nil {
		return nil, err
	}
	s.count("add_visit")
	return p, nil
}

func (s *PatientService) UpdateVisit(ctx context.Context, doctorID int, id int64, visitID string, patch models.VisitPatch) (*models.Patient, error) {
	p, err := s.Get(ctx, doctorID, id)
	if err != nil {
		return nil, err
	}
	i := p.FindVisit(visitID)
	if i < 0 {
		return nil, ErrVisitNotFound
	}
	v := &p.TreatmentEntries[i]
	setOptional(&v.MedicinePrescriptions, patch.MedicinePrescriptions)
	setOptional(&v.Advisories, patch.Advisories)
	setOptional(&v.Notes, patch.Notes)

	if err := s.save(ctx, p); err != nil {
		return nil, err
	}
	s.count("update_visit")
	return p, nil
}

func (s *PatientService) RemoveVisit(ctx context.Context, doctorID int, id int64, visitID string) (*models.Patient, error) {
	p, err := s.Get(ctx, doctorID, id)
	if err != nil {
		return nil, err
	}
	i := p.FindVisit(visitID)
	if i < 0 {
		return nil, ErrVisitNotFound
	}
	p.TreatmentEntries = append(p.TreatmentEntries[:i], p.TreatmentEntries[i+1:]...)

	if err := s.save(ctx, p); err != nil {
		return nil, err
	}
	s.count("remove_visit")
	return p, nil
}

// save writes the whole record back. Concurrent edits are last-writer-wins.
func (s *PatientService) save(ctx context.Context, p *models.Patient) error {
	ok, err := s.repo.Update(ctx, p)
	if err != nil {
		return s.mapWriteError(err)
	}
	if !ok {
		// deleted between read and write
		return ErrPatientNotFound
	}
	return nil
}

func (s *PatientService) mapWriteError(err error) error {
	if errors.Is(err, repositories.ErrDuplicateReference) {
		return ErrDuplicateReference
	}
	return fmt.Errorf("%w: %v", ErrDependency, err)
}

func (s *PatientService) count(op string) {
	if s.metrics != nil {
		s.metrics.PatientMutations.WithLabelValues(op).Inc()
	}
}

func setRequired(dst *string, v *string) {
	if v != nil && strings.TrimSpace(*v) != "" {
		*dst = strings.TrimSpace(*v)
	}
}

func setOptional(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}
