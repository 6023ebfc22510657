package copydesk

import (
	"crypto/subtle"
	"net/http"

	"github.com/labstack/echo/v4"
)

func (a *App) handleAdmin(c echo.Context) error {
	if !IsAdmin(c) {
		if a.Views.Login == nil {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "authentication required"})
		}
		return Render(c, a.Views.Login(false, CsrfToken(c)), nil)
	}
	return a.renderDashboard(c)
}

func (a *App) handleAdminLogin(c echo.Context) error {
	if !a.loginLimiter.Allow(c.RealIP()) {
		return c.String(http.StatusTooManyRequests, "Too many login attempts. Try again later.")
	}
	pass := c.FormValue("password")
	if subtle.ConstantTimeCompare([]byte(pass), []byte(a.Config.AdminPassword)) == 1 {
		if err := setAdminSession(c); err != nil {
			return err
		}
		return c.Redirect(http.StatusSeeOther, "/admin/")
	}
	if a.Views.Login == nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid password"})
	}
	return Render(c, a.Views.Login(true, CsrfToken(c)), nil)
}

func handleAdminLogout(c echo.Context) error {
	if err := clearAdminSession(c); err != nil {
		return err
	}
	return c.Redirect(http.StatusSeeOther, "/admin/")
}

func (a *App) renderDashboard(c echo.Context) error {
	changes := a.Queue.List()
	counts := a.Queue.Counts()
	smartDeploy := a.Settings.SmartDeployEnabled()
	if a.Views.Dashboard == nil {
		return c.JSON(http.StatusOK, queueSnapshot{
			Changes:     changes,
			Counts:      counts,
			SmartDeploy: smartDeploy,
		})
	}
	return Render(c, a.Views.Dashboard(changes, counts, smartDeploy, CsrfToken(c)), nil)
}
