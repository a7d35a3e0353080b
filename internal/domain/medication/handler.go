package medication

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/ehr/records/internal/platform/apperr"
	"github.com/ehr/records/internal/platform/auth"
	"github.com/ehr/records/internal/platform/middleware"
	"github.com/ehr/records/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/medications")
	g.GET("", h.ListMedications, auth.RequirePermission(auth.PermRead))
	g.POST("", h.CreateMedication, auth.RequirePermission(auth.PermWrite))
	g.GET("/:id", h.GetMedication, auth.RequirePermission(auth.PermRead))
	g.PUT("/:id", h.UpdateMedication, auth.RequirePermission(auth.PermLimitedWrite))
	g.DELETE("/:id", h.DeleteMedication, auth.RequirePermission(auth.PermDelete))
}

func parseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, apperr.Invalid("id", "must be a valid UUID")
	}
	return id, nil
}

func (h *Handler) ListMedications(c echo.Context) error {
	pg, err := pagination.FromContext(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	page, err := h.svc.ListMedications(ctx, auth.PrincipalFromContext(ctx), c.QueryParam("patientId"), pg)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, page)
}

func (h *Handler) GetMedication(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	m, err := h.svc.GetMedication(ctx, auth.PrincipalFromContext(ctx), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, m)
}

func (h *Handler) CreateMedication(c echo.Context) error {
	var req CreateRequest
	if err := c.Bind(&req); err != nil {
		return middleware.BindError(err)
	}
	ctx := c.Request().Context()
	m, err := h.svc.CreateMedication(ctx, auth.PrincipalFromContext(ctx), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, m)
}

func (h *Handler) UpdateMedication(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req UpdateRequest
	if err := c.Bind(&req); err != nil {
		return middleware.BindError(err)
	}
	ctx := c.Request().Context()
	m, err := h.svc.UpdateMedication(ctx, auth.PrincipalFromContext(ctx), id, req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, m)
}

func (h *Handler) DeleteMedication(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	if err := h.svc.DeleteMedication(ctx, auth.PrincipalFromContext(ctx), id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}
