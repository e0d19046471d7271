package http

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"p2p-lending-engine/internal/domain/installment"
	"p2p-lending-engine/internal/domain/loan"
	"p2p-lending-engine/internal/domain/risk"
	"p2p-lending-engine/internal/domain/transfer"
	"p2p-lending-engine/internal/domain/trust"
	"p2p-lending-engine/pkg/logger"
)

// statusFor maps domain errors onto HTTP codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, loan.ErrInvalidTerms),
		errors.Is(err, trust.ErrSelfVouch):
		return http.StatusUnprocessableEntity
	case errors.Is(err, loan.ErrNotFound),
		errors.Is(err, installment.ErrNotFound),
		errors.Is(err, transfer.ErrNotFound),
		errors.Is(err, risk.ErrNotFound),
		errors.Is(err, trust.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, installment.ErrAlreadyPaid),
		errors.Is(err, installment.ErrInvalidTransition),
		errors.Is(err, installment.ErrConflict),
		errors.Is(err, installment.ErrReminderLimit),
		errors.Is(err, installment.ErrReminderTooSoon),
		errors.Is(err, loan.ErrInvalidTransition),
		errors.Is(err, loan.ErrPendingExists),
		errors.Is(err, risk.ErrBorrowerBlocked),
		errors.Is(err, risk.ErrNoActiveBlock),
		errors.Is(err, risk.ErrInvalidTransition),
		errors.Is(err, trust.ErrVouchExists),
		errors.Is(err, trust.ErrVouchInactive):
		return http.StatusConflict
	case errors.Is(err, transfer.ErrTransferFailed):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// writeError renders err. Internal errors are logged and never echoed back.
func writeError(c echo.Context, err error) error {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		logger.CtxError(c.Request().Context(), "request failed", err,
			slog.String("method", c.Request().Method),
			slog.String("path", c.Path()))
		return c.JSON(code, ErrorResponse{Error: "internal error"})
	}
	if code == http.StatusBadGateway {
		// rail detail stays in the transfer record
		return c.JSON(code, ErrorResponse{Error: transfer.ErrTransferFailed.Error()})
	}
	return c.JSON(code, ErrorResponse{Error: err.Error()})
}

// bindAndValidate reports false once it has written a 400 or 422.
func bindAndValidate(c echo.Context, req any) (bool, error) {
	if err := c.Bind(req); err != nil {
		return false, c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}
	if err := c.Validate(req); err != nil {
		return false, c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
			Error:   "validation failed",
			Details: ToFieldErrors(err),
		})
	}
	return true, nil
}
