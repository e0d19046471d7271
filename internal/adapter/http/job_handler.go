package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"p2p-lending-engine/internal/usecase/events"
	"p2p-lending-engine/internal/usecase/payment"
	"p2p-lending-engine/internal/usecase/risk"
	"p2p-lending-engine/internal/usecase/transfer"
)

// JobHandler lets an external scheduler trigger the servicing drivers. Runs
// always use the server clock; replaying another day is a servicing CLI job.
type JobHandler struct {
	payments   *payment.Usecase
	transfers  *transfer.Usecase
	risk       *risk.Usecase
	dispatcher *events.Dispatcher
	now        func() time.Time
}

func NewJobHandler(p *payment.Usecase, t *transfer.Usecase, r *risk.Usecase, d *events.Dispatcher) *JobHandler {
	return &JobHandler{
		payments:   p,
		transfers:  t,
		risk:       r,
		dispatcher: d,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// runAt refuses a clock override over HTTP.
func (h *JobHandler) runAt(c echo.Context) (time.Time, bool) {
	if c.QueryParams().Has("at") {
		return time.Time{}, false
	}
	return h.now(), true
}

func badAt(c echo.Context) error {
	return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "at is only accepted by the servicing CLI"})
}

func (h *JobHandler) Daily(c echo.Context) error {
	at, ok := h.runAt(c)
	if !ok {
		return badAt(c)
	}
	rep, err := h.payments.RunDaily(c.Request().Context(), at)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, rep)
}

func (h *JobHandler) Retries(c echo.Context) error {
	at, ok := h.runAt(c)
	if !ok {
		return badAt(c)
	}
	rep, err := h.payments.RunRetries(c.Request().Context(), at)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, rep)
}

func (h *JobHandler) Reconcile(c echo.Context) error {
	rep, err := h.transfers.Reconcile(c.Request().Context())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, rep)
}

func (h *JobHandler) Restrictions(c echo.Context) error {
	at, ok := h.runAt(c)
	if !ok {
		return badAt(c)
	}
	rep, err := h.risk.SweepRestrictions(c.Request().Context(), at)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, rep)
}

func (h *JobHandler) Dispatch(c echo.Context) error {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	rep, err := h.dispatcher.Dispatch(c.Request().Context(), limit)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, rep)
}
