package patient

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
)

const (
	msgCreated     = "Patient created successfully"
	msgServerError = "Server error"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the record endpoints on g. mw guards both routes.
func (h *Handler) RegisterRoutes(g *echo.Group, mw ...echo.MiddlewareFunc) {
	g.POST("", h.CreateRecord, mw...)
	g.GET("", h.ListRecords, mw...)
}

func (h *Handler) CreateRecord(c echo.Context) error {
	var req CreateRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Message: "invalid request body"})
	}

	rec, err := h.svc.CreateRecord(c.Request().Context(), req)
	if err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) {
			return c.JSON(http.StatusBadRequest, ErrorResponse{Message: verr.Error()})
		}
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Message: msgServerError})
	}
	return c.JSON(http.StatusCreated, CreateResponse{Success: true, Message: msgCreated, Patient: rec})
}

func (h *Handler) ListRecords(c echo.Context) error {
	records, err := h.svc.ListRecords(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Message: msgServerError})
	}
	return c.JSON(http.StatusOK, ListResponse{Success: true, Patients: records})
}
