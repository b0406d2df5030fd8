package server

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/born-ml/vision/internal/skill"
	"github.com/born-ml/vision/internal/skills"
)

// APIError is the JSON body of every error response.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func newHTTPError(status int, code, message string) *echo.HTTPError {
	return echo.NewHTTPError(status, &APIError{Code: code, Message: message})
}

func badRequest(code, message string) *echo.HTTPError {
	return newHTTPError(http.StatusBadRequest, code, message)
}

func notFound(code, message string) *echo.HTTPError {
	return newHTTPError(http.StatusNotFound, code, message)
}

// httpError maps a skill error onto a status and error code.
func httpError(err error) *echo.HTTPError {
	switch {
	case errors.Is(err, skills.ErrNotInstalled):
		return notFound("skill_not_installed", err.Error())
	case errors.Is(err, skill.ErrInvalidFrame):
		return badRequest("invalid_frame", err.Error())
	case errors.Is(err, skill.ErrInvalidArgument),
		errors.Is(err, skill.ErrMissingFeature),
		errors.Is(err, skill.ErrUnknownFeature),
		errors.Is(err, skill.ErrFeatureKind),
		errors.Is(err, skill.ErrFeatureShape):
		return badRequest("invalid_argument", err.Error())
	case errors.Is(err, skill.ErrUnsupportedDevice), errors.Is(err, skill.ErrNoDevices):
		return newHTTPError(http.StatusServiceUnavailable, "no_device", err.Error())
	default:
		return newHTTPError(http.StatusInternalServerError, "evaluation_failed", err.Error())
	}
}
