package account

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/medassist/medassist/internal/platform/auth"
)

const (
	msgRegistered     = "User registered successfully"
	msgLoggedIn       = "Login successful"
	msgUserExists     = "User already exists"
	msgInvalidCreds   = "Invalid credentials"
	msgInvalidRequest = "Invalid request body"
	msgNotFound       = "Account not found"
	msgServerError    = "Server error"
)

type Handler struct {
	svc       *Service
	requireMe echo.MiddlewareFunc
}

// NewHandler returns the auth endpoints. requireToken guards /me.
func NewHandler(svc *Service, requireToken echo.MiddlewareFunc) *Handler {
	return &Handler{svc: svc, requireMe: requireToken}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.POST("/register", h.Register)
	g.POST("/login", h.Login)
	g.GET("/me", h.Me, h.requireMe)
}

func (h *Handler) Register(c echo.Context) error {
	var req RegisterRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, MessageResponse{Message: msgInvalidRequest})
	}

	_, token, err := h.svc.Register(c.Request().Context(), req)
	if err != nil {
		var verr *ValidationError
		switch {
		case errors.Is(err, ErrDuplicateAccount):
			return c.JSON(http.StatusBadRequest, MessageResponse{Message: msgUserExists})
		case errors.As(err, &verr):
			return c.JSON(http.StatusBadRequest, MessageResponse{Message: verr.Error()})
		default:
			return c.JSON(http.StatusInternalServerError, MessageResponse{Message: msgServerError})
		}
	}
	return c.JSON(http.StatusCreated, TokenResponse{Message: msgRegistered, Token: token})
}

func (h *Handler) Login(c echo.Context) error {
	var req LoginRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, MessageResponse{Message: msgInvalidRequest})
	}

	_, token, err := h.svc.Login(c.Request().Context(), req)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			return c.JSON(http.StatusBadRequest, MessageResponse{Message: msgInvalidCreds})
		}
		return c.JSON(http.StatusInternalServerError, MessageResponse{Message: msgServerError})
	}
	return c.JSON(http.StatusOK, TokenResponse{Message: msgLoggedIn, Token: token})
}

func (h *Handler) Me(c echo.Context) error {
	a, err := h.svc.Me(c.Request().Context(), auth.UserIDFromContext(c.Request().Context()))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return c.JSON(http.StatusNotFound, MessageResponse{Message: msgNotFound})
		}
		return c.JSON(http.StatusInternalServerError, MessageResponse{Message: msgServerError})
	}
	return c.JSON(http.StatusOK, map[string]string{
		"id":    a.ID.String(),
		"name":  a.Name,
		"email": a.Email,
	})
}
