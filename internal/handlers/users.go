package handlers

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/grabbitapp/grabbit/internal/users"
)

// UsersHandler exposes the user-activity log.
type UsersHandler struct {
	logger  *slog.Logger
	service *users.Service
}

func NewUsersHandler(log *slog.Logger, service *users.Service) *UsersHandler {
	return &UsersHandler{
		logger:  log.With(slog.String("handler", "users")),
		service: service,
	}
}

func (h *UsersHandler) Register(e *echo.Echo) {
	e.GET("/users", h.List)
}

func (h *UsersHandler) List(c echo.Context) error {
	list, err := h.service.List(c.Request().Context())
	if err != nil {
		h.logger.Error("list users failed", slog.Any("error", err))
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
	if list == nil {
		list = []users.User{}
	}
	return c.JSON(http.StatusOK, list)
}
