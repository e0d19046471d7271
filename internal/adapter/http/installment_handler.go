package http

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"p2p-lending-engine/internal/adapter/middleware"
	"p2p-lending-engine/internal/usecase/payment"
)

type InstallmentHandler struct{ payments *payment.Usecase }

func NewInstallmentHandler(uc *payment.Usecase) *InstallmentHandler {
	return &InstallmentHandler{payments: uc}
}

// MarkPaid records an out-of-band payment. The caller is taken from the
// idempotency middleware.
func (h *InstallmentHandler) MarkPaid(c echo.Context) error {
	dto, err := h.payments.MarkPaid(c.Request().Context(), c.Param("installment_id"), middleware.Actor(c))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, dto)
}

func (h *InstallmentHandler) SendReminder(c echo.Context) error {
	if err := h.payments.SendManualReminder(c.Request().Context(), c.Param("installment_id")); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusAccepted, map[string]string{"status": "sent"})
}

// ListRetryLogs is admin facing and carries the rail's error text.
func (h *InstallmentHandler) ListRetryLogs(c echo.Context) error {
	logs, err := h.payments.ListRetryLogs(c.Request().Context(), c.Param("installment_id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"installment_id": c.Param("installment_id"), "retry_logs": logs})
}
