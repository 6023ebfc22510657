package copydesk

import (
	"net/http"

	"github.com/a-h/templ"
	"github.com/labstack/echo/v4"
)

// Render writes a templ component as an HTTP 200 HTML response. A nil
// component falls back to the given JSON value, so headless deployments
// work without templates.
func Render(c echo.Context, cmp templ.Component, fallback any) error {
	return RenderStatus(c, http.StatusOK, cmp, fallback)
}

// RenderStatus writes a templ component with a specific HTTP status code,
// or the JSON fallback when cmp is nil.
func RenderStatus(c echo.Context, code int, cmp templ.Component, fallback any) error {
	if cmp == nil {
		return c.JSON(code, fallback)
	}
	c.Response().Header().Set(echo.HeaderContentType, echo.MIMETextHTMLCharsetUTF8)
	c.Response().WriteHeader(code)
	return cmp.Render(c.Request().Context(), c.Response().Writer)
}
