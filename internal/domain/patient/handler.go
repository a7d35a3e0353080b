package patient

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
	g := api.Group("/patients")
	g.GET("", h.ListPatients, auth.RequirePermission(auth.PermRead))
	g.POST("", h.CreatePatient, auth.RequirePermission(auth.PermWrite))
	g.GET("/:id", h.GetPatient, auth.RequirePermission(auth.PermRead))
	// The service decides between write and limited_write from the payload.
	g.PUT("/:id", h.UpdatePatient, auth.RequirePermission(auth.PermLimitedWrite))
	g.DELETE("/:id", h.DeletePatient, auth.RequirePermission(auth.PermDelete))

	g.GET("/:id/images", h.ListImages, auth.RequirePermission(auth.PermRead))
	g.POST("/:id/images", h.AddImage, auth.RequirePermission(auth.PermWrite))
}

func parseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, apperr.Invalid("id", "must be a valid UUID")
	}
	return id, nil
}

func (h *Handler) ListPatients(c echo.Context) error {
	pg, err := pagination.FromContext(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	page, err := h.svc.ListPatients(ctx, auth.PrincipalFromContext(ctx), c.QueryParam("search"), pg)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, page)
}

func (h *Handler) GetPatient(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	p, err := h.svc.GetPatient(ctx, auth.PrincipalFromContext(ctx), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) CreatePatient(c echo.Context) error {
	var req CreateRequest
	if err := c.Bind(&req); err != nil {
		return middleware.BindError(err)
	}
	ctx := c.Request().Context()
	p, err := h.svc.CreatePatient(ctx, auth.PrincipalFromContext(ctx), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) UpdatePatient(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req UpdateRequest
	if err := c.Bind(&req); err != nil {
		return middleware.BindError(err)
	}
	ctx := c.Request().Context()
	p, err := h.svc.UpdatePatient(ctx, auth.PrincipalFromContext(ctx), id, req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) DeletePatient(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	if err := h.svc.DeletePatient(ctx, auth.PrincipalFromContext(ctx), id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) AddImage(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req ImageRequest
	if err := c.Bind(&req); err != nil {
		return middleware.BindError(err)
	}
	ctx := c.Request().Context()
	img, err := h.svc.AddImage(ctx, auth.PrincipalFromContext(ctx), id, req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, img)
}

func (h *Handler) ListImages(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	pg, err := pagination.FromContext(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	page, err := h.svc.ListImages(ctx, auth.PrincipalFromContext(ctx), id, pg)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, page)
}
