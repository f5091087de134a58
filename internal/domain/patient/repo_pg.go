package patient

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medassist/medassist/internal/platform/db"
	"github.com/medassist/medassist/internal/platform/hipaa"
)

const conditionColumn = "medical_condition"

type repoPG struct {
	pool      *pgxpool.Pool
	encryptor *hipaa.PHIEncryptor
}

// NewRepo returns a PostgreSQL repository. When enc is non-nil the medical
// condition column is stored encrypted.
func NewRepo(pool *pgxpool.Pool, enc *hipaa.PHIEncryptor) Repository {
	return &repoPG{pool: pool, encryptor: enc}
}

func (r *repoPG) conn() db.Querier {
	return r.pool
}

const recordCols = `id, name, age, gender, blood_type, medical_condition, date_of_admission,
	doctor_name, hospital_name, insurance_provider, billing_amount, created_at`

func (r *repoPG) Create(ctx context.Context, rec *Record) error {
	condition, err := r.encryptor.Seal(conditionColumn, rec.MedicalCondition)
	if err != nil {
		return fmt.Errorf("patient create: %w", err)
	}

	rec.ID = uuid.New()
	err = r.conn().QueryRow(ctx, `
		INSERT INTO patient_records (
			id, name, age, gender, blood_type, medical_condition, date_of_admission,
			doctor_name, hospital_name, insurance_provider, billing_amount
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		RETURNING created_at`,
		rec.ID, rec.Name, rec.Age, string(rec.Gender), rec.BloodType, condition, rec.DateOfAdmission.Time,
		rec.DoctorName, rec.HospitalName, rec.InsuranceProvider, rec.BillingAmount,
	).Scan(&rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert patient record: %w", err)
	}
	return nil
}

// List returns every record in storage order. A failure part way through the
// result set discards what was read.
func (r *repoPG) List(ctx context.Context) ([]Record, error) {
	rows, err := r.conn().Query(ctx, `SELECT `+recordCols+` FROM patient_records`)
	if err != nil {
		return nil, fmt.Errorf("list patient records: %w", err)
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		rec, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list patient records: %w", err)
	}
	return records, nil
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Record, error) {
	rec, err := r.scan(r.conn().QueryRow(ctx,
		`SELECT `+recordCols+` FROM patient_records WHERE id = $1`, id))
	if err != nil {
		if db.IsNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return rec, nil
}

func (r *repoPG) scan(row pgx.Row) (*Record, error) {
	var (
		rec    Record
		gender string
	)
	err := row.Scan(
		&rec.ID, &rec.Name, &rec.Age, &gender, &rec.BloodType, &rec.MedicalCondition, &rec.DateOfAdmission.Time,
		&rec.DoctorName, &rec.HospitalName, &rec.InsuranceProvider, &rec.BillingAmount, &rec.CreatedAt,
	)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, err
		}
		return nil, fmt.Errorf("scan patient record: %w", err)
	}
	rec.Gender = Gender(gender)

	if rec.MedicalCondition, err = r.encryptor.Open(conditionColumn, rec.MedicalCondition); err != nil {
		return nil, fmt.Errorf("patient record %s: %w", rec.ID, err)
	}
	return &rec, nil
}
