package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medassist/medassist/internal/domain/patient"
)

type mockRecommender struct {
	fn func(ctx context.Context, ehr, question string) (string, error)

	gotEHR      string
	gotQuestion string
}

func (m *mockRecommender) Recommend(ctx context.Context, ehr, question string) (string, error) {
	m.gotEHR, m.gotQuestion = ehr, question
	return m.fn(ctx, ehr, question)
}

type mockRecords struct {
	records map[uuid.UUID]*patient.Record
	err     error
}

func (m *mockRecords) GetRecord(_ context.Context, id uuid.UUID) (*patient.Record, error) {
	if m.err != nil {
		return nil, m.err
	}
	r, ok := m.records[id]
	if !ok {
		return nil, patient.ErrNotFound
	}
	return r, nil
}

func okRecommender() *mockRecommender {
	return &mockRecommender{fn: func(context.Context, string, string) (string, error) {
		return "Rest and fluids.", nil
	}}
}

func postRecommend(t *testing.T, h *Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/recommendations", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	require.NoError(t, h.Recommend(e.NewContext(req, rec)))
	return rec
}

func messageOf(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body["message"]
}

func TestHandler_RecommendWithEHR(t *testing.T) {
	r := okRecommender()
	h := NewHandler(r, &mockRecords{}, zerolog.Nop())

	rec := postRecommend(t, h, `{"clinical_question":"Treatment?","patient_ehr":"Sample EHR Data"}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"recommendation":"Rest and fluids."}`, rec.Body.String())
	assert.Equal(t, "Sample EHR Data", r.gotEHR)
	assert.Equal(t, "Treatment?", r.gotQuestion)
}

func TestHandler_RecommendWithPatientID(t *testing.T) {
	id := uuid.New()
	records := &mockRecords{records: map[uuid.UUID]*patient.Record{
		id: {
			ID: id, Name: "Bob", Age: 40, Gender: patient.GenderMale, MedicalCondition: "Flu",
			DoctorName: "Dr. Smith", HospitalName: "General", DateOfAdmission: patient.NewDate(2024, time.January, 1),
		},
	}}
	r := okRecommender()
	h := NewHandler(r, records, zerolog.Nop())

	rec := postRecommend(t, h, `{"clinical_question":"Treatment?","patient_id":"`+id.String()+`"}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Patient: Bob, Age: 40, Gender: Male, Condition: Flu, Doctor: Dr. Smith, Hospital: General", r.gotEHR)
}

func TestHandler_RecommendBadInput(t *testing.T) {
	h := NewHandler(okRecommender(), &mockRecords{}, zerolog.Nop())

	tests := []struct {
		name string
		body string
		msg  string
	}{
		{"no question", `{"patient_ehr":"x"}`, "clinical_question is required"},
		{"no patient", `{"clinical_question":"q"}`, "exactly one of patient_ehr or patient_id is required"},
		{"both", `{"clinical_question":"q","patient_ehr":"x","patient_id":"` + uuid.NewString() + `"}`, "exactly one of patient_ehr or patient_id is required"},
		{"bad id", `{"clinical_question":"q","patient_id":"42"}`, "patient_id is not a valid id"},
		{"malformed", `{"clinical_question":`, "invalid request body"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := postRecommend(t, h, tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tt.msg, messageOf(t, rec))
		})
	}
}

func TestHandler_RecommendUnknownPatient(t *testing.T) {
	h := NewHandler(okRecommender(), &mockRecords{}, zerolog.Nop())

	rec := postRecommend(t, h, `{"clinical_question":"q","patient_id":"`+uuid.NewString()+`"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandler_RecommendRecordFault(t *testing.T) {
	h := NewHandler(okRecommender(), &mockRecords{err: patient.ErrServerFault}, zerolog.Nop())

	rec := postRecommend(t, h, `{"clinical_question":"q","patient_id":"`+uuid.NewString()+`"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Server error", messageOf(t, rec))
}

func TestHandler_RecommendUpstreamFailure(t *testing.T) {
	r := &mockRecommender{fn: func(context.Context, string, string) (string, error) {
		return "", errors.Join(ErrUpstream, errors.New("status 500: traceback"))
	}}
	h := NewHandler(r, &mockRecords{}, zerolog.Nop())

	rec := postRecommend(t, h, `{"clinical_question":"q","patient_ehr":"x"}`)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.NotContains(t, rec.Body.String(), "traceback")
}

func TestHandler_EndToEndWithClient(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req recommendRequest
		json.NewDecoder(r.Body).Decode(&req)
		json.NewEncoder(w).Encode(map[string]string{"recommendation": "echo: " + req.ClinicalQuestion})
	}))
	defer upstream.Close()

	h := NewHandler(NewClient(upstream.URL, time.Second), &mockRecords{}, zerolog.Nop())
	e := echo.New()
	h.RegisterRoutes(e.Group("/api/recommendations"))

	req := httptest.NewRequest(http.MethodPost, "/api/recommendations", strings.NewReader(`{"clinical_question":"dose?","patient_ehr":"x"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"recommendation":"echo: dose?"}`, rec.Body.String())
}
