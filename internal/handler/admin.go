package handler

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"storefront-payments/internal/service"
)

type AdminHandler struct {
	adminService service.AdminService
}

func NewAdminHandler(adminService service.AdminService) *AdminHandler {
	return &AdminHandler{
		adminService: adminService,
	}
}

func (h *AdminHandler) ListOrders(c echo.Context) error {
	ctx := c.Request().Context()

	page, err := h.adminService.ListOrders(ctx, c.QueryParam("status"), queryInt(c, "limit"), queryInt(c, "offset"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, page)
}

func (h *AdminHandler) GetOrder(c echo.Context) error {
	order, err := h.adminService.GetOrder(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, order)
}

func (h *AdminHandler) ListDeadTasks(c echo.Context) error {
	tasks, err := h.adminService.ListDeadTasks(c.Request().Context(), queryInt(c, "limit"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"tasks": tasks})
}

func (h *AdminHandler) RetryTask(c echo.Context) error {
	if err := h.adminService.RetryTask(c.Request().Context(), c.Param("id")); err != nil {
		return err
	}
	return c.NoContent(http.StatusAccepted)
}

func (h *AdminHandler) ListMemberships(c echo.Context) error {
	members, err := h.adminService.ListMemberships(c.Request().Context(), c.QueryParam("status"), queryInt(c, "limit"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"memberships": members})
}

// queryInt returns 0 for a missing or malformed parameter.
func queryInt(c echo.Context, name string) int {
	n, err := strconv.Atoi(c.QueryParam(name))
	if err != nil {
		return 0
	}
	return n
}
