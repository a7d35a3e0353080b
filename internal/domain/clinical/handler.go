package clinical

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
	g := api.Group("/medical-records")
	g.GET("", h.ListMedicalRecords, auth.RequirePermission(auth.PermRead))
	g.POST("", h.CreateMedicalRecord, auth.RequirePermission(auth.PermWrite))
	g.GET("/:id", h.GetMedicalRecord, auth.RequirePermission(auth.PermRead))
	g.PUT("/:id", h.UpdateMedicalRecord, auth.RequirePermission(auth.PermLimitedWrite))
	g.DELETE("/:id", h.DeleteMedicalRecord, auth.RequirePermission(auth.PermDelete))
}

func parseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, apperr.Invalid("id", "must be a valid UUID")
	}
	return id, nil
}

func (h *Handler) ListMedicalRecords(c echo.Context) error {
	pg, err := pagination.FromContext(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	page, err := h.svc.ListMedicalRecords(ctx, auth.PrincipalFromContext(ctx), c.QueryParam("patientId"), pg)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, page)
}

func (h *Handler) GetMedicalRecord(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	rec, err := h.svc.GetMedicalRecord(ctx, auth.PrincipalFromContext(ctx), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, rec)
}

func (h *Handler) CreateMedicalRecord(c echo.Context) error {
	var req CreateRequest
	if err := c.Bind(&req); err != nil {
		return middleware.BindError(err)
	}
	ctx := c.Request().Context()
	rec, err := h.svc.CreateMedicalRecord(ctx, auth.PrincipalFromContext(ctx), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, rec)
}

func (h *Handler) UpdateMedicalRecord(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req UpdateRequest
	if err := c.Bind(&req); err != nil {
		return middleware.BindError(err)
	}
	ctx := c.Request().Context()
	rec, err := h.svc.UpdateMedicalRecord(ctx, auth.PrincipalFromContext(ctx), id, req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, rec)
}

func (h *Handler) DeleteMedicalRecord(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	if err := h.svc.DeleteMedicalRecord(ctx, auth.PrincipalFromContext(ctx), id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}
