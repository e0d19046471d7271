package http

import (
	"encoding/json"
	"errors"
	"fmt"
	stdhttp "net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"

	"p2p-lending-engine/internal/domain/installment"
	"p2p-lending-engine/internal/domain/loan"
	"p2p-lending-engine/internal/domain/risk"
	"p2p-lending-engine/internal/domain/transfer"
	"p2p-lending-engine/internal/domain/trust"
)

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("%w: principal must be positive", loan.ErrInvalidTerms), stdhttp.StatusUnprocessableEntity},
		{trust.ErrSelfVouch, stdhttp.StatusUnprocessableEntity},
		{loan.ErrNotFound, stdhttp.StatusNotFound},
		{installment.ErrNotFound, stdhttp.StatusNotFound},
		{trust.ErrNotFound, stdhttp.StatusNotFound},
		{installment.ErrAlreadyPaid, stdhttp.StatusConflict},
		{installment.ErrReminderTooSoon, stdhttp.StatusConflict},
		{fmt.Errorf("%w: loan is defaulted", loan.ErrInvalidTransition), stdhttp.StatusConflict},
		{risk.ErrBorrowerBlocked, stdhttp.StatusConflict},
		{risk.ErrNoActiveBlock, stdhttp.StatusConflict},
		{fmt.Errorf("%w: insufficient funds", transfer.ErrTransferFailed), stdhttp.StatusBadGateway},
		{errors.New("boom"), stdhttp.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := statusFor(tc.err); got != tc.want {
			t.Errorf("statusFor(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}

func TestWriteError_HidesDetail(t *testing.T) {
	e := echo.New()
	cases := []struct {
		err  error
		want string
	}{
		{errors.New("dial tcp 10.0.0.1:3306: connection refused"), "internal error"},
		{fmt.Errorf("%w: NSF code 51", transfer.ErrTransferFailed), transfer.ErrTransferFailed.Error()},
		{fmt.Errorf("%w: loan is completed", loan.ErrInvalidTransition), "invalid loan state transition: loan is completed"},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		c := e.NewContext(httptest.NewRequest(stdhttp.MethodGet, "/", nil), rec)
		if err := writeError(c, tc.err); err != nil {
			t.Fatalf("writeError: %v", err)
		}
		var body ErrorResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("bad json: %v", err)
		}
		if body.Error != tc.want {
			t.Errorf("error = %q, want %q", body.Error, tc.want)
		}
	}
}
