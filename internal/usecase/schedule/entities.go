package schedule

import (
	"time"

	domainLoan "p2p-lending-engine/internal/domain/loan"
	"p2p-lending-engine/internal/usecase/payment"
)

type ActivateInput struct {
	LoanID    string
	StartDate time.Time // date-only; stored as 00:00 UTC
}

type ActivationDTO struct {
	Loan       domainLoan.Loan          `json:"loan"`
	TransferID string                   `json:"transfer_id"`
	Schedule   []payment.InstallmentDTO `json:"schedule"`
}
