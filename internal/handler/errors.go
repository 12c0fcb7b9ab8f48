package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/explanation-reservation/internal/service"
)

var errBadBody = errors.New("invalid request body")

type errorBody struct {
	Error  string            `json:"error"`
	Code   string            `json:"code"`
	Fields map[string]string `json:"fields,omitempty"`
}

// statusFor maps a taxonomy code to its HTTP status.
func statusFor(code string) int {
	switch code {
	case service.CodeNotFound:
		return http.StatusNotFound
	case service.CodeWindowNotOpen:
		return http.StatusUnprocessableEntity
	case service.CodeCapacityFull, service.CodeDuplicateReservation, service.CodeConflict:
		return http.StatusConflict
	case service.CodeForbidden:
		return http.StatusForbidden
	case service.CodeInvalidInput:
		return http.StatusBadRequest
	case service.CodeLockTimeout:
		return http.StatusServiceUnavailable
	case service.CodeCanceled:
		return 499
	}
	return http.StatusInternalServerError
}

// writeError renders err as {"error","code"}. Internal failures get a
// generic message and are logged; their detail never reaches the client.
func writeError(c echo.Context, log *logrus.Logger, err error) error {
	var ve *ValidationError
	switch {
	case errors.As(err, &ve):
		return c.JSON(http.StatusBadRequest, errorBody{Error: ve.Error(), Code: service.CodeInvalidInput, Fields: ve.Fields})
	case errors.Is(err, errBadBody):
		return c.JSON(http.StatusBadRequest, errorBody{Error: err.Error(), Code: service.CodeInvalidInput})
	}

	code := service.Code(err)
	status := statusFor(code)
	msg := err.Error()
	switch code {
	case service.CodeLockTimeout:
		c.Response().Header().Set("Retry-After", "1")
		msg = "the schedule is busy, please retry"
	case service.CodeConsistencyViolation, service.CodeInternal:
		log.WithError(err).WithFields(logrus.Fields{
			"path":   c.Path(),
			"method": c.Request().Method,
		}).Error("request failed")
		msg = "internal error"
	}
	return c.JSON(status, errorBody{Error: msg, Code: code})
}
