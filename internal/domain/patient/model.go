package patient

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Gender string

const (
	GenderMale   Gender = "Male"
	GenderFemale Gender = "Female"
)

func (g Gender) Valid() bool {
	return g == GenderMale || g == GenderFemale
}

// dateLayout is the wire and storage form of Date.
const dateLayout = "2006-01-02"

// Date is a calendar day serialized as YYYY-MM-DD.
type Date struct {
	time.Time
}

func NewDate(y int, m time.Month, d int) Date {
	return Date{time.Date(y, m, d, 0, 0, 0, 0, time.UTC)}
}

func (d Date) String() string {
	return d.Format(dateLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	t, err := parseDate(s)
	if err != nil {
		return err
	}
	d.Time = t
	return nil
}

// parseDate accepts YYYY-MM-DD or an RFC 3339 timestamp and keeps only the
// UTC calendar day.
func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse(dateLayout, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%q is not a date (YYYY-MM-DD)", s)
	}
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
}

// Record is a stored patient record. Records are never updated or deleted.
type Record struct {
	ID                uuid.UUID `json:"_id"`
	Name              string    `json:"name"`
	Age               int       `json:"age"`
	Gender            Gender    `json:"gender"`
	BloodType         string    `json:"bloodType"`
	MedicalCondition  string    `json:"medicalCondition"`
	DateOfAdmission   Date      `json:"dateOfAdmission"`
	DoctorName        string    `json:"doctorName"`
	HospitalName      string    `json:"hospitalName"`
	InsuranceProvider string    `json:"insuranceProvider"`
	BillingAmount     float64   `json:"billingAmount"`
	CreatedAt         time.Time `json:"createdAt"`
}

// EHRSummary renders the one-line record summary sent to the recommendation
// service.
func (r *Record) EHRSummary() string {
	return fmt.Sprintf("Patient: %s, Age: %d, Gender: %s, Condition: %s, Doctor: %s, Hospital: %s",
		r.Name, r.Age, r.Gender, r.MedicalCondition, r.DoctorName, r.HospitalName)
}

type CreateResponse struct {
	Success bool    `json:"success"`
	Message string  `json:"message"`
	Patient *Record `json:"patient"`
}

type ListResponse struct {
	Success  bool     `json:"success"`
	Patients []Record `json:"patients"`
}

type ErrorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}
