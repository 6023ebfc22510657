package copydesk

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
)

// queueSnapshot is the read-only view of pending changes polled by the UI.
type queueSnapshot struct {
	Changes     []ChangeRecord   `json:"changes"`
	Counts      map[Category]int `json:"counts"`
	SmartDeploy bool             `json:"smartDeploy"`
}

func (a *App) handleQueueSnapshot(c echo.Context) error {
	return c.JSON(http.StatusOK, queueSnapshot{
		Changes:     a.Queue.List(),
		Counts:      a.Queue.Counts(),
		SmartDeploy: a.Settings.SmartDeployEnabled(),
	})
}

// enqueueRequest is the body for POST /api/changes. The caller owns payload
// construction; the console only validates the kind and target.
type enqueueRequest struct {
	Kind      ChangeKind      `json:"kind"`
	TargetKey string          `json:"targetKey"`
	Payload   json.RawMessage `json:"payload"`
	Label     string          `json:"label"`
}

// handleEnqueue accepts a fully formed change. With smart deploy on, the
// change joins the queue; with it off, the change is committed and deployed
// immediately on its own.
func (a *App) handleEnqueue(c echo.Context) error {
	var req enqueueRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	record, err := NewChangeRecord(req.Kind, req.TargetKey, req.Payload, req.Label)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	if !a.Settings.SmartDeployEnabled() {
		result, err := a.Deployer.DeployOne(c.Request().Context(), record)
		if err != nil {
			return deployError(c, result, err)
		}
		return c.JSON(http.StatusOK, result)
	}

	a.Queue.Enqueue(record)
	return c.JSON(http.StatusAccepted, map[string]any{
		"id":      record.ID,
		"pending": a.Queue.Len(),
	})
}

func (a *App) handleDiscard(c echo.Context) error {
	id := c.Param("id")
	if _, ok := a.Queue.Get(id); !ok {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "no pending change with id " + id})
	}
	a.Queue.Remove([]string{id})
	return c.JSON(http.StatusOK, map[string]any{"pending": a.Queue.Len()})
}

func (a *App) handleDiscardAll(c echo.Context) error {
	a.Queue.Clear()
	return c.JSON(http.StatusOK, map[string]any{"pending": 0})
}

func (a *App) handleDeploy(c echo.Context) error {
	result, err := a.Deployer.Deploy(c.Request().Context())
	if err != nil {
		return deployError(c, result, err)
	}
	return c.JSON(http.StatusOK, result)
}

type smartDeployRequest struct {
	Enabled bool `json:"enabled"`
}

func (a *App) handleSmartDeployToggle(c echo.Context) error {
	var req smartDeployRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if err := a.Settings.SetSmartDeploy(req.Enabled); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]bool{"smartDeploy": req.Enabled})
}

// deployError maps coordinator failures onto API responses, preserving the
// commit-failed vs build-trigger-failed distinction.
func deployError(c echo.Context, result DeployResult, err error) error {
	var commitErr *CommitError
	var buildErr *BuildTriggerError
	switch {
	case errors.Is(err, ErrDeployInProgress):
		return c.JSON(http.StatusConflict, map[string]string{
			"error": "a deploy is already in progress; retry when it completes",
		})
	case errors.As(err, &commitErr):
		return c.JSON(http.StatusBadGateway, map[string]any{
			"error":   "commit failed; pending changes were kept",
			"detail":  commitErr.Error(),
			"skipped": result.Skipped,
		})
	case errors.As(err, &buildErr):
		// The commit landed, so this is a partial success: tell the caller
		// the content is in the repository but the build must be retriggered.
		return c.JSON(http.StatusOK, map[string]any{
			"result":  result,
			"warning": "commit succeeded but the build trigger failed; redeploy manually",
			"detail":  buildErr.Error(),
		})
	}
	return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
}
