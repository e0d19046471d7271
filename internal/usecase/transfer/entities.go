package transfer

import (
	"github.com/shopspring/decimal"

	domain "p2p-lending-engine/internal/domain/transfer"
)

// Request describes one logical money movement.
type Request struct {
	LoanID        string
	InstallmentID string
	Type          domain.Type
	Source        string
	Destination   string
	Amount        decimal.Decimal
	SkipFee       bool
}

// FeePolicy prices repayment transfers; disbursements never carry a fee.
type FeePolicy struct {
	Percent decimal.Decimal
	Fixed   decimal.Decimal
}

// Fee returns the platform fee for gross, capped at gross.
func (f FeePolicy) Fee(gross decimal.Decimal) decimal.Decimal {
	fee := gross.Mul(f.Percent).Div(decimal.NewFromInt(100)).Add(f.Fixed).Round(2)
	if fee.GreaterThan(gross) {
		return gross
	}
	if fee.IsNegative() {
		return decimal.Zero
	}
	return fee
}

type ReconcileReport struct {
	Checked   int `json:"checked"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Cancelled int `json:"cancelled"`
	Errors    int `json:"errors"`
}
