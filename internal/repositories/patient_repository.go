package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"medicare/internal/models"
)

// ErrDuplicateReference is returned when reference_number collides with an existing patient.
var ErrDuplicateReference = errors.New("reference number already exists")

type PatientRepository interface {
	ListByDoctor(ctx context.Context, doctorID int) ([]*models.Patient, error)
	GetByID(ctx context.Context, id int64, doctorID int) (*models.Patient, error)
	Create(ctx context.Context, p *models.Patient) error
	Update(ctx context.Context, p *models.Patient) (bool, error)
	Delete(ctx context.Context, id int64, doctorID int) (bool, error)
}

type patientRepository struct {
	db *sql.DB
}

func NewPatientRepository(db *sql.DB) PatientRepository {
	return &patientRepository{db: db}
}

const patientColumns = `id, doctor_id, prefix, patient_name, age, gender, weight, height, bp, rbs,
		address, reference_number, reference_person, contact_number, patient_problem,
		treatment_entries, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPatient(row rowScanner) (*models.Patient, error) {
	var (
		p       models.Patient
		entries []byte
	)
	if err := row.Scan(
		&p.ID, &p.DoctorID, &p.Prefix, &p.PatientName, &p.Age, &p.Gender, &p.Weight, &p.Height,
		&p.BP, &p.RBS, &p.Address, &p.ReferenceNumber, &p.ReferencePerson, &p.ContactNumber,
		&p.PatientProblem, &entries, &p.CreatedAt, &p.UpdatedAt,
	); err != nil {
		return nil, err
	}
	p.TreatmentEntries = []models.TreatmentVisit{}
	if len(entries) > 0 {
		if err := json.Unmarshal(entries, &p.TreatmentEntries); err != nil {
			return nil, fmt.Errorf("decode treatment entries: %w", err)
		}
	}
	return &p, nil
}

func encodeEntries(entries []models.TreatmentVisit) ([]byte, error) {
	if entries == nil {
		entries = []models.TreatmentVisit{}
	}
	return json.Marshal(entries)
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

func (r *patientRepository) ListByDoctor(ctx context.Context, doctorID int) ([]*models.Patient, error) {
	q := `SELECT ` + patientColumns + ` FROM patients WHERE doctor_id = $1 ORDER BY id`
	rows, err := r.db.QueryContext(ctx, q, doctorID)
	if err != nil {
		return nil, fmt.Errorf("list patients: %w", err)
	}
	defer rows.Close()

	res := []*models.Patient{}
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, fmt.Errorf("scan patient: %w", err)
		}
		res = append(res, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list patients: %w", err)
	}
	return res, nil
}

// GetByID returns nil, nil when the patient is absent or owned by another doctor.
func (r *patientRepository) GetByID(ctx context.Context, id int64, doctorID int) (*models.Patient, error) {
	q := `SELECT ` + patientColumns + ` FROM patients WHERE id = $1 AND doctor_id = $2`
	p, err := scanPatient(r.db.QueryRowContext(ctx, q, id, doctorID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get patient: %w", err)
	}
	return p, nil
}

func (r *patientRepository) Create(ctx context.Context, p *models.Patient) error {
	entries, err := encodeEntries(p.TreatmentEntries)
	if err != nil {
		return fmt.Errorf("encode treatment entries: %w", err)
	}
	const q = `
		INSERT INTO patients (
			doctor_id, prefix, patient_name, age, gender, weight, height, bp, rbs,
			address, reference_number, reference_person, contact_number, patient_problem,
			treatment_entries
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
		RETURNING id, created_at, updated_at
	`
	err = r.db.QueryRowContext(ctx, q,
		p.DoctorID, p.Prefix, p.PatientName, p.Age, p.Gender, p.Weight, p.Height, p.BP, p.RBS,
		p.Address, p.ReferenceNumber, p.ReferencePerson, p.ContactNumber, p.PatientProblem,
		entries,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateReference
		}
		return fmt.Errorf("create patient: %w", err)
	}
	return nil
}

// Update overwrites the whole row. It reports false when no row matched id and owner.
func (r *patientRepository) Update(ctx context.Context, p *models.Patient) (bool, error) {
	entries, err := encodeEntries(p.TreatmentEntries)
	if err != nil {
		return false, fmt.Errorf("encode treatment entries: %w", err)
	}
	const q = `
		UPDATE patients
		SET prefix=$1, patient_name=$2, age=$3, gender=$4, weight=$5, height=$6, bp=$7, rbs=$8,
			address=$9, reference_number=$10, reference_person=$11, contact_number=$12,
			patient_problem=$13, treatment_entries=$14, updated_at=NOW()
		WHERE id=$15 AND doctor_id=$16
		RETURNING updated_at
	`
	err = r.db.QueryRowContext(ctx, q,
		p.Prefix, p.PatientName, p.Age, p.Gender, p.Weight, p.Height, p.BP, p.RBS,
		p.Address, p.ReferenceNumber, p.ReferencePerson, p.ContactNumber,
		p.PatientProblem, entries, p.ID, p.DoctorID,
	).Scan(&p.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		if isUniqueViolation(err) {
			return false, ErrDuplicateReference
		}
		return false, fmt.Errorf("update patient: %w", err)
	}
	return true, nil
}

func (r *patientRepository) Delete(ctx context.Context, id int64, doctorID int) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM patients WHERE id = $1 AND doctor_id = $2`, id, doctorID)
	if err != nil {
		return false, fmt.Errorf("delete patient: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete patient: %w", err)
	}
	return n > 0, nil
}
