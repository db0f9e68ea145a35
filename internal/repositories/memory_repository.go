package repositories

import (
	"context"
	"sort"
	"sync"
	"time"

	"medicare/internal/models"
)

// MemoryAccountRepository backs accounts when no database is configured.
type MemoryAccountRepository struct {
	mu     sync.Mutex
	byMail map[string]*models.Account
	nextID int
}

func NewMemoryAccountRepository() *MemoryAccountRepository {
	return &MemoryAccountRepository{byMail: map[string]*models.Account{}}
}

func (r *MemoryAccountRepository) upsert(email, userType string) *models.Account {
	if a, ok := r.byMail[email]; ok {
		return a
	}
	r.nextID++
	a := &models.Account{ID: r.nextID, Email: email, UserType: userType, CreatedAt: time.Now()}
	r.byMail[email] = a
	return a
}

func (r *MemoryAccountRepository) Upsert(_ context.Context, email, userType string) (*models.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *r.upsert(email, userType)
	return &cp, nil
}

func (r *MemoryAccountRepository) RecordLogin(_ context.Context, email, userType string, at time.Time) (*models.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a := r.upsert(email, userType)
	a.LastLogin = &at
	cp := *a
	return &cp, nil
}

func (r *MemoryAccountRepository) GetByID(_ context.Context, id int) (*models.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.byMail {
		if a.ID == id {
			cp := *a
			return &cp, nil
		}
	}
	return nil, nil
}

// MemoryPatientRepository keeps patients in process with the same ownership and
// reference-number rules as the Postgres repository.
type MemoryPatientRepository struct {
	mu     sync.Mutex
	rows   map[int64]models.Patient
	nextID int64
}

func NewMemoryPatientRepository() *MemoryPatientRepository {
	return &MemoryPatientRepository{rows: map[int64]models.Patient{}}
}

func clonePatient(p models.Patient) *models.Patient {
	p.TreatmentEntries = append([]models.TreatmentVisit{}, p.TreatmentEntries...)
	return &p
}

func (r *MemoryPatientRepository) ListByDoctor(_ context.Context, doctorID int) ([]*models.Patient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []*models.Patient{}
	for _, p := range r.rows {
		if p.DoctorID == doctorID {
			out = append(out, clonePatient(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *MemoryPatientRepository) GetByID(_ context.Context, id int64, doctorID int) (*models.Patient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.rows[id]
	if !ok || p.DoctorID != doctorID {
		return nil, nil
	}
	return clonePatient(p), nil
}

func (r *MemoryPatientRepository) referenceTaken(ref string, except int64) bool {
	for id, p := range r.rows {
		if id != except && p.ReferenceNumber == ref {
			return true
		}
	}
	return false
}

func (r *MemoryPatientRepository) Create(_ context.Context, p *models.Patient) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.referenceTaken(p.ReferenceNumber, 0) {
		return ErrDuplicateReference
	}
	r.nextID++
	p.ID = r.nextID
	p.CreatedAt = time.Now()
	p.UpdatedAt = p.CreatedAt
	r.rows[p.ID] = *clonePatient(*p)
	return nil
}

func (r *MemoryPatientRepository) Update(_ context.Context, p *models.Patient) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.rows[p.ID]
	if !ok || cur.DoctorID != p.DoctorID {
		return false, nil
	}
	if r.referenceTaken(p.ReferenceNumber, p.ID) {
		return false, ErrDuplicateReference
	}
	p.CreatedAt = cur.CreatedAt
	p.UpdatedAt = time.Now()
	r.rows[p.ID] = *clonePatient(*p)
	return true, nil
}

func (r *MemoryPatientRepository) Delete(_ context.Context, id int64, doctorID int) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.rows[id]
	if !ok || p.DoctorID != doctorID {
		return false, nil
	}
	delete(r.rows, id)
	return true, nil
}
