package http

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	domainLoan "p2p-lending-engine/internal/domain/loan"
	"p2p-lending-engine/internal/usecase/loan"
	"p2p-lending-engine/internal/usecase/payment"
	"p2p-lending-engine/internal/usecase/schedule"
	"p2p-lending-engine/internal/usecase/transfer"
)

type LoanHandler struct {
	loans     *loan.Usecase
	schedules *schedule.Usecase
	payments  *payment.Usecase
	transfers *transfer.Usecase
}

func NewLoanHandler(loans *loan.Usecase, schedules *schedule.Usecase, payments *payment.Usecase, transfers *transfer.Usecase) *LoanHandler {
	return &LoanHandler{loans: loans, schedules: schedules, payments: payments, transfers: transfers}
}

type createLoanReq struct {
	BorrowerID            string `json:"borrower_id"             validate:"required,hex32"`
	LenderID              string `json:"lender_id"               validate:"required,hex32,nefield=BorrowerID"`
	Principal             string `json:"principal"               validate:"required,dec2,decpos"`
	InterestRate          string `json:"interest_rate"           validate:"required,rate"`
	TotalInstallments     int    `json:"total_installments"      validate:"gte=1,lte=520"`
	Frequency             string `json:"frequency"               validate:"required,frequency"`
	Currency              string `json:"currency"                validate:"omitempty,len=3,uppercase"`
	AutoPayEnabled        bool   `json:"auto_pay_enabled"`
	BorrowerFundingSource string `json:"borrower_funding_source" validate:"required,max=64"`
	LenderFundingSource   string `json:"lender_funding_source"   validate:"required,max=64"`
}

func (h *LoanHandler) CreateLoan(c echo.Context) error {
	var req createLoanReq
	if ok, err := bindAndValidate(c, &req); !ok {
		return err
	}
	dto, err := h.loans.Create(c.Request().Context(), loan.CreateLoanInput{
		BorrowerID:            req.BorrowerID,
		LenderID:              req.LenderID,
		Principal:             decimal.RequireFromString(req.Principal),
		InterestRate:          decimal.RequireFromString(req.InterestRate),
		TotalInstallments:     req.TotalInstallments,
		Frequency:             domainLoan.Frequency(req.Frequency),
		Currency:              req.Currency,
		AutoPayEnabled:        req.AutoPayEnabled,
		BorrowerFundingSource: req.BorrowerFundingSource,
		LenderFundingSource:   req.LenderFundingSource,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, dto)
}

func (h *LoanHandler) GetLoan(c echo.Context) error {
	dto, err := h.loans.Get(c.Request().Context(), c.Param("loan_id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, dto)
}

type previewReq struct {
	Principal         string `json:"principal"          validate:"required,dec2,decpos"`
	InterestRate      string `json:"interest_rate"      validate:"required,rate"`
	TotalInstallments int    `json:"total_installments" validate:"gte=1,lte=520"`
	Frequency         string `json:"frequency"          validate:"required,frequency"`
	StartDate         string `json:"start_date"         validate:"required,datetime=2006-01-02"`
}

func (h *LoanHandler) PreviewSchedule(c echo.Context) error {
	var req previewReq
	if ok, err := bindAndValidate(c, &req); !ok {
		return err
	}
	start, _ := time.Parse(time.DateOnly, req.StartDate)
	lines, totals, err := schedule.Preview(schedule.Terms{
		Principal:    decimal.RequireFromString(req.Principal),
		RatePercent:  decimal.RequireFromString(req.InterestRate),
		Frequency:    domainLoan.Frequency(req.Frequency),
		Installments: req.TotalInstallments,
		StartDate:    start,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"total_interest": totals.Interest,
		"total_amount":   totals.Amount,
		"schedule":       lines,
	})
}

type activateReq struct {
	StartDate string `json:"start_date" validate:"required,datetime=2006-01-02"`
}

// ActivateLoan disburses the principal and lays out the schedule. Calling it
// again after a failed disbursement retries the transfer.
func (h *LoanHandler) ActivateLoan(c echo.Context) error {
	var req activateReq
	if ok, err := bindAndValidate(c, &req); !ok {
		return err
	}
	start, _ := time.Parse(time.DateOnly, req.StartDate)
	dto, err := h.schedules.Activate(c.Request().Context(), schedule.ActivateInput{
		LoanID:    c.Param("loan_id"),
		StartDate: start,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, dto)
}

func (h *LoanHandler) GetSchedule(c echo.Context) error {
	lines, err := h.schedules.Schedule(c.Request().Context(), c.Param("loan_id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"loan_id": c.Param("loan_id"), "schedule": lines})
}

// ListTransfers returns the disbursement and repayment transfers of a loan.
func (h *LoanHandler) ListTransfers(c echo.Context) error {
	ctx := c.Request().Context()
	if _, err := h.loans.Get(ctx, c.Param("loan_id")); err != nil {
		return writeError(c, err)
	}
	list, err := h.transfers.ListByLoan(ctx, c.Param("loan_id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"loan_id": c.Param("loan_id"), "transfers": list})
}

type settlementReq struct {
	Amount string `json:"amount" validate:"required,dec2,decpos"`
}

func (h *LoanHandler) RecordSettlement(c echo.Context) error {
	var req settlementReq
	if ok, err := bindAndValidate(c, &req); !ok {
		return err
	}
	l, err := h.payments.RecordSettlement(c.Request().Context(), c.Param("loan_id"), decimal.RequireFromString(req.Amount))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, loan.ToDTO(l))
}
