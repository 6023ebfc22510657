package copydesk

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/eringen/copydesk/imaging"
)

const maxUploadSize = 10 << 20 // 10MB

var errUploadTooLarge = errors.New("upload exceeds size limit")

// readUpload reads the whole upload, rejecting bodies larger than limit
// instead of silently truncating them. The declared multipart size is only
// a fast pre-check; this is the authoritative bound on what was actually
// read.
func readUpload(src io.Reader, limit int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(src, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, errUploadTooLarge
	}
	return data, nil
}

// imageUploadResponse reports the optimization metrics alongside the queued
// (or committed) change.
type imageUploadResponse struct {
	Filename  string           `json:"filename"`
	Width     int              `json:"width"`
	Height    int              `json:"height"`
	Original  int              `json:"originalSizeBytes"`
	Optimized int              `json:"optimizedSizeBytes"`
	Ratio     int              `json:"compressionRatioPercent"`
	SizeBand  imaging.SizeBand `json:"sizeBand"`
	ChangeID  string           `json:"changeId,omitempty"`
	Deployed  *DeployResult    `json:"deployed,omitempty"`
}

// handleImageUpload optimizes an uploaded image and routes the result
// through the change queue (or directly to a single-file deploy when smart
// deploy is off). The optimized bytes travel in the change payload as
// base64, like any other queued edit.
func (a *App) handleImageUpload(c echo.Context) error {
	file, err := c.FormFile("image")
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "no image file provided"})
	}
	if file.Size > maxUploadSize {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "file too large (max 10MB)"})
	}

	src, err := file.Open()
	if err != nil {
		return err
	}
	defer src.Close()
	data, err := readUpload(src, maxUploadSize)
	if err != nil {
		if errors.Is(err, errUploadTooLarge) {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "file too large (max 10MB)"})
		}
		return err
	}

	opts, err := uploadOptions(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	optimized, err := imaging.Optimize(data, opts)
	if err != nil {
		var decodeErr *imaging.DecodeError
		var encodeErr *imaging.EncodeError
		if errors.As(err, &decodeErr) || errors.As(err, &encodeErr) {
			return c.JSON(http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
		}
		return err
	}

	filename := slugifyFilename(file.Filename) + extensionFor(opts.Format)
	payload, err := json.Marshal(filePayload{
		Content:  base64.StdEncoding.EncodeToString(optimized.Data),
		Encoding: "base64",
	})
	if err != nil {
		return err
	}
	record, err := NewChangeRecord(KindImageUpdate, filename, payload, "Update image "+filename)
	if err != nil {
		return err
	}

	resp := imageUploadResponse{
		Filename:  filename,
		Width:     optimized.Width,
		Height:    optimized.Height,
		Original:  optimized.OriginalSize,
		Optimized: optimized.OptimizedSize,
		Ratio:     optimized.Ratio,
		SizeBand:  imaging.ClassifySize(optimized.OptimizedSize),
	}

	if !a.Settings.SmartDeployEnabled() {
		result, err := a.Deployer.DeployOne(c.Request().Context(), record)
		if err != nil {
			return deployError(c, result, err)
		}
		resp.Deployed = &result
		return c.JSON(http.StatusOK, resp)
	}

	a.Queue.Enqueue(record)
	resp.ChangeID = record.ID
	return c.JSON(http.StatusAccepted, resp)
}

// uploadOptions resolves the optimization options from the request: a named
// preset, optionally overridden field by field for the custom preset.
func uploadOptions(c echo.Context) (imaging.Options, error) {
	preset := imaging.Preset(c.FormValue("preset"))
	if preset == "" {
		preset = imaging.PresetBalanced
	}
	opts := imaging.PresetOptions(preset)
	if preset != imaging.PresetCustom {
		return opts, nil
	}
	if v := c.FormValue("maxWidth"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return imaging.Options{}, fmt.Errorf("invalid maxWidth %q", v)
		}
		opts.MaxWidth = n
	}
	if v := c.FormValue("maxHeight"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return imaging.Options{}, fmt.Errorf("invalid maxHeight %q", v)
		}
		opts.MaxHeight = n
	}
	if v := c.FormValue("quality"); v != "" {
		q, err := strconv.ParseFloat(v, 64)
		if err != nil || q <= 0 || q > 1 {
			return imaging.Options{}, fmt.Errorf("invalid quality %q (expected 0-1)", v)
		}
		opts.Quality = q
	}
	if v := c.FormValue("format"); v != "" {
		opts.Format = imaging.Format(v)
	}
	return opts, nil
}

func extensionFor(f imaging.Format) string {
	switch f {
	case imaging.FormatPNG:
		return ".png"
	case imaging.FormatWebP:
		return ".webp"
	default:
		return ".jpg"
	}
}
