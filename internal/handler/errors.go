package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"storefront-payments/internal/apperr"
	"storefront-payments/internal/dto"
)

// NewErrorHandler renders every error returned by a handler as
// dto.ErrorResponse. Internal causes are attached as detail outside production.
func NewErrorHandler(production bool, logger *slog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status, resp := resolveError(err, production)
		if status >= http.StatusInternalServerError {
			logger.ErrorContext(c.Request().Context(), "request failed",
				"method", c.Request().Method,
				"path", c.Path(),
				"status", status,
				"err", err,
			)
		}

		if c.Request().Method == http.MethodHead {
			err = c.NoContent(status)
		} else {
			err = c.JSON(status, resp)
		}
		if err != nil {
			logger.ErrorContext(c.Request().Context(), "write error response failed", "err", err)
		}
	}
}

func resolveError(err error, production bool) (int, dto.ErrorResponse) {
	if ae, ok := apperr.As(err); ok {
		resp := dto.ErrorResponse{Error: apperr.PublicMessage(ae)}
		status := apperr.HTTPStatus(ae)
		if !production && status >= http.StatusInternalServerError && ae.Err != nil {
			resp.Detail = ae.Err.Error()
		}
		return status, resp
	}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		msg, ok := he.Message.(string)
		if !ok {
			msg = http.StatusText(he.Code)
		}
		return he.Code, dto.ErrorResponse{Error: msg}
	}

	resp := dto.ErrorResponse{Error: apperr.PublicMessage(err)}
	if !production {
		resp.Detail = err.Error()
	}
	return http.StatusInternalServerError, resp
}
