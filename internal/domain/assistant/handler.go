package assistant

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/medassist/medassist/internal/domain/patient"
)

// Recommender is satisfied by *Client.
type Recommender interface {
	Recommend(ctx context.Context, patientEHR, question string) (string, error)
}

// RecordLookup is satisfied by *patient.Service.
type RecordLookup interface {
	GetRecord(ctx context.Context, id uuid.UUID) (*patient.Record, error)
}

type RecommendRequest struct {
	ClinicalQuestion string `json:"clinical_question"`
	PatientEHR       string `json:"patient_ehr"`
	PatientID        string `json:"patient_id"`
}

type RecommendResponse struct {
	Recommendation string `json:"recommendation"`
}

type messageResponse struct {
	Message string `json:"message"`
}

type Handler struct {
	recommender Recommender
	records     RecordLookup
	log         zerolog.Logger
}

func NewHandler(recommender Recommender, records RecordLookup, logger zerolog.Logger) *Handler {
	return &Handler{
		recommender: recommender,
		records:     records,
		log:         logger.With().Str("component", "assistant").Logger(),
	}
}

func (h *Handler) RegisterRoutes(g *echo.Group, mw ...echo.MiddlewareFunc) {
	g.POST("", h.Recommend, mw...)
}

// Recommend answers a clinical question about one patient. The patient is
// given either as free text or as a stored record id.
func (h *Handler) Recommend(c echo.Context) error {
	var req RecommendRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, messageResponse{Message: "invalid request body"})
	}

	question := strings.TrimSpace(req.ClinicalQuestion)
	ehr := strings.TrimSpace(req.PatientEHR)
	rawID := strings.TrimSpace(req.PatientID)

	if question == "" {
		return c.JSON(http.StatusBadRequest, messageResponse{Message: "clinical_question is required"})
	}
	if (ehr == "") == (rawID == "") {
		return c.JSON(http.StatusBadRequest, messageResponse{Message: "exactly one of patient_ehr or patient_id is required"})
	}

	ctx := c.Request().Context()
	if rawID != "" {
		id, err := uuid.Parse(rawID)
		if err != nil {
			return c.JSON(http.StatusBadRequest, messageResponse{Message: "patient_id is not a valid id"})
		}
		rec, err := h.records.GetRecord(ctx, id)
		if err != nil {
			if errors.Is(err, patient.ErrNotFound) {
				return c.JSON(http.StatusNotFound, messageResponse{Message: "patient not found"})
			}
			return c.JSON(http.StatusInternalServerError, messageResponse{Message: "Server error"})
		}
		ehr = rec.EHRSummary()
	}

	recommendation, err := h.recommender.Recommend(ctx, ehr, question)
	if err != nil {
		h.log.Error().Err(err).Msg("recommendation request failed")
		return c.JSON(http.StatusBadGateway, messageResponse{Message: "recommendation service unavailable"})
	}
	return c.JSON(http.StatusOK, RecommendResponse{Recommendation: recommendation})
}
