package handlers

import (
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/labstack/echo/v4"
)

// VideoHandler serves temporary artifacts by filename until their deferred
// deletion fires, after which requests get a 404.
type VideoHandler struct {
	logger *slog.Logger
	dir    string
}

func NewVideoHandler(log *slog.Logger, dir string) *VideoHandler {
	return &VideoHandler{
		logger: log.With(slog.String("handler", "video")),
		dir:    dir,
	}
}

func (h *VideoHandler) Register(e *echo.Echo) {
	e.GET("/video/:file", h.Serve)
}

func (h *VideoHandler) Serve(c echo.Context) error {
	// Base strips any traversal; artifacts are flat files in one dir.
	name := filepath.Base(c.Param("file"))
	if name == "." || name == string(filepath.Separator) {
		return c.String(http.StatusNotFound, "File expired or deleted.")
	}
	path := filepath.Join(h.dir, name)
	if _, err := os.Stat(path); err != nil {
		return c.String(http.StatusNotFound, "File expired or deleted.")
	}
	return c.File(path)
}
