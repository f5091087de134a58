package patient

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// CreateRequest is the body of POST /api/patients. Fields are kept raw so
// that numbers may arrive as JSON numbers or numeric strings.
type CreateRequest struct {
	Name              json.RawMessage `json:"name"`
	Age               json.RawMessage `json:"age"`
	Gender            json.RawMessage `json:"gender"`
	BloodType         json.RawMessage `json:"bloodType"`
	MedicalCondition  json.RawMessage `json:"medicalCondition"`
	DateOfAdmission   json.RawMessage `json:"dateOfAdmission"`
	DoctorName        json.RawMessage `json:"doctorName"`
	HospitalName      json.RawMessage `json:"hospitalName"`
	InsuranceProvider json.RawMessage `json:"insuranceProvider"`
	BillingAmount     json.RawMessage `json:"billingAmount"`
}

// Record validates every field and returns the record to store, or a
// *ValidationError naming all failing fields in declaration order.
func (req CreateRequest) Record() (*Record, error) {
	verr := &ValidationError{}
	r := &Record{}

	r.Name = req.text(verr, "name", req.Name)
	if age, ok := req.number(verr, "age", req.Age); ok {
		switch {
		case age != math.Trunc(age):
			verr.add("age", "must be a whole number")
		case age < 0:
			verr.add("age", "must not be negative")
		case age > math.MaxInt32:
			verr.add("age", "is out of range")
		default:
			r.Age = int(age)
		}
	}
	if g := req.text(verr, "gender", req.Gender); g != "" {
		r.Gender = Gender(g)
		if !r.Gender.Valid() {
			verr.add("gender", fmt.Sprintf("%q is not a valid value (%s, %s)", g, GenderMale, GenderFemale))
		}
	}
	r.BloodType = req.text(verr, "bloodType", req.BloodType)
	r.MedicalCondition = req.text(verr, "medicalCondition", req.MedicalCondition)
	if s := req.text(verr, "dateOfAdmission", req.DateOfAdmission); s != "" {
		t, err := parseDate(s)
		if err != nil {
			verr.add("dateOfAdmission", err.Error())
		} else {
			r.DateOfAdmission = Date{t}
		}
	}
	r.DoctorName = req.text(verr, "doctorName", req.DoctorName)
	r.HospitalName = req.text(verr, "hospitalName", req.HospitalName)
	r.InsuranceProvider = req.text(verr, "insuranceProvider", req.InsuranceProvider)
	if amount, ok := req.number(verr, "billingAmount", req.BillingAmount); ok {
		r.BillingAmount = amount
	}

	if len(verr.Fields) > 0 {
		return nil, verr
	}
	return r, nil
}

func missing(raw json.RawMessage) bool {
	v := bytes.TrimSpace(raw)
	return len(v) == 0 || bytes.Equal(v, []byte("null"))
}

func (CreateRequest) text(verr *ValidationError, field string, raw json.RawMessage) string {
	if missing(raw) {
		verr.add(field, "is required")
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		verr.add(field, "must be a string")
		return ""
	}
	s = strings.TrimSpace(s)
	if s == "" {
		verr.add(field, "is required")
	}
	return s
}

func (CreateRequest) number(verr *ValidationError, field string, raw json.RawMessage) (float64, bool) {
	if missing(raw) {
		verr.add(field, "is required")
		return 0, false
	}

	var n float64
	if err := json.Unmarshal(raw, &n); err != nil {
		var s string
		if json.Unmarshal(raw, &s) != nil {
			verr.add(field, "must be a number")
			return 0, false
		}
		s = strings.TrimSpace(s)
		if s == "" {
			verr.add(field, "is required")
			return 0, false
		}
		if n, err = strconv.ParseFloat(s, 64); err != nil {
			verr.add(field, fmt.Sprintf("%q is not a number", s))
			return 0, false
		}
	}
	if math.IsNaN(n) || math.IsInf(n, 0) {
		verr.add(field, "must be a finite number")
		return 0, false
	}
	return n, true
}
