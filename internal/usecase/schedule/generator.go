package schedule

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"p2p-lending-engine/internal/domain/loan"
)

var (
	hundred = decimal.NewFromInt(100)
	cent    = decimal.New(1, -2)
)

// Terms are the inputs needed to lay out a flat-rate schedule.
type Terms struct {
	Principal    decimal.Decimal
	RatePercent  decimal.Decimal
	Frequency    loan.Frequency
	Installments int
	StartDate    time.Time
}

// Line is one generated installment before persistence.
type Line struct {
	Sequence  int
	DueDate   time.Time
	Amount    decimal.Decimal
	Principal decimal.Decimal
	Interest  decimal.Decimal
}

// Totals are the loan-level figures implied by a set of terms.
type Totals struct {
	Interest decimal.Decimal
	Amount   decimal.Decimal
}

// Validate rejects terms that cannot produce a schedule.
func (t Terms) Validate() error {
	switch {
	case !t.Principal.Round(2).IsPositive():
		return fmt.Errorf("%w: principal must be positive", loan.ErrInvalidTerms)
	case t.RatePercent.IsNegative():
		return fmt.Errorf("%w: interest rate must not be negative", loan.ErrInvalidTerms)
	case t.Installments < 1:
		return fmt.Errorf("%w: installment count must be at least 1", loan.ErrInvalidTerms)
	case t.StartDate.IsZero():
		return fmt.Errorf("%w: start date is required", loan.ErrInvalidTerms)
	}
	if _, ok := t.Frequency.Step(); !ok {
		return fmt.Errorf("%w: unknown frequency %q", loan.ErrInvalidTerms, t.Frequency)
	}
	// every installment must move at least one cent
	total := ComputeTotals(t.Principal, t.RatePercent).Amount
	if total.LessThan(cent.Mul(decimal.NewFromInt(int64(t.Installments)))) {
		return fmt.Errorf("%w: %s over %d installments is below 0.01 each",
			loan.ErrInvalidTerms, total.StringFixed(2), t.Installments)
	}
	return nil
}

// ComputeTotals applies the flat-rate formula: interest = principal × rate/100.
// There is no compounding or amortisation. The principal is taken to the cent
// first, as it is stored.
func ComputeTotals(principal, ratePercent decimal.Decimal) Totals {
	principal = principal.Round(2)
	interest := principal.Mul(ratePercent).Div(hundred).Round(2)
	return Totals{Interest: interest, Amount: principal.Add(interest)}
}

// Generate lays out the schedule. Each column (total, principal, interest) is
// floored to the cent per installment and the final installment absorbs the
// whole remainder, so every column sums exactly to its loan-level target.
func Generate(t Terms) ([]Line, Totals, error) {
	if err := t.Validate(); err != nil {
		return nil, Totals{}, err
	}
	step, _ := t.Frequency.Step()
	totals := ComputeTotals(t.Principal, t.RatePercent)
	n := decimal.NewFromInt(int64(t.Installments))

	baseAmount, lastAmount := split(totals.Amount, n)
	basePrincipal, lastPrincipal := split(t.Principal.Round(2), n)
	baseInterest, lastInterest := split(totals.Interest, n)

	start := truncateDay(t.StartDate)
	lines := make([]Line, t.Installments)
	for i := range lines {
		seq := i + 1
		lines[i] = Line{
			Sequence:  seq,
			DueDate:   start.Add(time.Duration(seq) * step),
			Amount:    baseAmount,
			Principal: basePrincipal,
			Interest:  baseInterest,
		}
	}
	last := &lines[len(lines)-1]
	last.Amount = lastAmount
	last.Principal = lastPrincipal
	last.Interest = lastInterest
	return lines, totals, nil
}

// split returns floor(target/n) to the cent and the final slice that carries
// target − base×n on top of the base.
func split(target, n decimal.Decimal) (base, last decimal.Decimal) {
	base = target.Div(n).RoundFloor(2)
	remainder := target.Sub(base.Mul(n)).Round(2)
	return base, base.Add(remainder)
}

func truncateDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}
