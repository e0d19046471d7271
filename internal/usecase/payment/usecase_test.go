package payment

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"p2p-lending-engine/internal/adapter/repository/mysql"
	"p2p-lending-engine/internal/domain/event"
	"p2p-lending-engine/internal/domain/installment"
	"p2p-lending-engine/internal/domain/loan"
	"p2p-lending-engine/internal/domain/notification"
	domainTransfer "p2p-lending-engine/internal/domain/transfer"
	"p2p-lending-engine/internal/infrastructure/cache"
	"p2p-lending-engine/internal/testutil/notifymock"
	"p2p-lending-engine/internal/testutil/railmock"
	"p2p-lending-engine/internal/testutil/testdb"
	"p2p-lending-engine/internal/usecase/transfer"
	"p2p-lending-engine/pkg/id"
)

var day0 = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

type fixture struct {
	db    *gorm.DB
	uc    *Usecase
	rail  *railmock.Rail
	notes *notifymock.Recorder
	loans *mysql.LoanRepository
	insts *mysql.InstallmentRepository
}

func testPolicy() Policy {
	p := DefaultPolicy()
	p.Backoff = FixedBackoff{Interval: 24 * time.Hour}
	return p
}

func newFixture(t *testing.T, rail *railmock.Rail) *fixture {
	t.Helper()
	db := testdb.Open(t)
	f := &fixture{
		db:    db,
		rail:  rail,
		notes: &notifymock.Recorder{},
		loans: mysql.NewLoanRepository(db),
		insts: mysql.NewInstallmentRepository(db),
	}
	transfers := transfer.NewUsecase(mysql.NewTransferRepository(db), rail, transfer.FeePolicy{}, time.Hour)
	f.uc = NewUsecase(mysql.NewGormUoW(db), f.loans, f.insts, transfers, f.notes, testPolicy())
	return f
}

// seedLoan stores an active loan of three 100.00 installments due weekly,
// the first on firstDue.
func (f *fixture) seedLoan(t *testing.T, autopay bool, firstDue time.Time) (*loan.Loan, []installment.Installment) {
	t.Helper()
	ctx := context.Background()
	activated := firstDue.AddDate(0, 0, -7)
	l := &loan.Loan{
		LoanID:                id.NewID32(),
		BorrowerID:            id.NewID32(),
		LenderID:              id.NewID32(),
		Principal:             decimal.RequireFromString("270.00"),
		Currency:              "IDR",
		InterestRate:          decimal.RequireFromString("11.1111"),
		InterestMethod:        loan.InterestFlat,
		TotalInstallments:     3,
		Frequency:             loan.FrequencyWeekly,
		StartDate:             &activated,
		TotalInterest:         decimal.RequireFromString("30.00"),
		TotalAmount:           decimal.RequireFromString("300.00"),
		AmountPaid:            decimal.Zero,
		AmountRemaining:       decimal.RequireFromString("300.00"),
		AutoPayEnabled:        autopay,
		BorrowerFundingSource: "va-borrower",
		LenderFundingSource:   "va-lender",
		Status:                loan.StatusActive,
		ActivatedAt:           &activated,
	}
	if err := f.loans.Create(ctx, l); err != nil {
		t.Fatalf("create loan: %v", err)
	}
	items := make([]installment.Installment, 3)
	for i := range items {
		items[i] = installment.Installment{
			InstallmentID:   id.NewID32(),
			Sequence:        i + 1,
			DueDate:         firstDue.AddDate(0, 0, 7*i),
			Amount:          decimal.RequireFromString("100.00"),
			PrincipalAmount: decimal.RequireFromString("90.00"),
			InterestAmount:  decimal.RequireFromString("10.00"),
			Status:          installment.StatusPending,
		}
	}
	if err := f.insts.ReplaceForLoan(ctx, l.ID, items); err != nil {
		t.Fatalf("seed schedule: %v", err)
	}
	got, err := f.insts.ListByLoan(ctx, l.ID)
	if err != nil {
		t.Fatal(err)
	}
	return l, got
}

func (f *fixture) reload(t *testing.T, l *loan.Loan, in installment.Installment) (*loan.Loan, *installment.Installment) {
	t.Helper()
	ctx := context.Background()
	gotLoan, err := f.loans.GetByLoanID(ctx, l.LoanID)
	if err != nil {
		t.Fatalf("reload loan: %v", err)
	}
	gotInst, err := f.insts.GetByID(ctx, in.ID)
	if err != nil {
		t.Fatalf("reload installment: %v", err)
	}
	return gotLoan, gotInst
}

func (f *fixture) countEvents(t *testing.T, typ event.Type) int64 {
	t.Helper()
	var n int64
	if err := f.db.Model(&event.Outbox{}).Where("type = ?", typ).Count(&n).Error; err != nil {
		t.Fatal(err)
	}
	return n
}

func TestRunDaily_CollectsInstallmentDueToday(t *testing.T) {
	f := newFixture(t, railmock.Accepting("ref"))
	l, items := f.seedLoan(t, true, day0)

	rep, err := f.uc.RunDaily(context.Background(), day0.Add(9*time.Hour))
	if err != nil {
		t.Fatalf("RunDaily: %v", err)
	}
	if rep.Candidates != 1 || rep.Collected != 1 || rep.Errors != 0 {
		t.Fatalf("report = %+v", rep)
	}
	gotLoan, gotInst := f.reload(t, l, items[0])
	if gotInst.Status != installment.StatusPaid || !gotInst.Paid || gotInst.PaidAt == nil {
		t.Fatalf("installment = %+v", gotInst)
	}
	if !gotLoan.AmountPaid.Equal(decimal.NewFromInt(100)) || !gotLoan.AmountRemaining.Equal(decimal.NewFromInt(200)) {
		t.Fatalf("balances paid=%s remaining=%s", gotLoan.AmountPaid, gotLoan.AmountRemaining)
	}
	if f.rail.CallCount() != 1 {
		t.Fatalf("rail calls = %d", f.rail.CallCount())
	}
	call := f.rail.Calls[0]
	if call.Source != "va-borrower" || call.Destination != "va-lender" || !call.Amount.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("instruction = %+v", call)
	}
	if n := f.countEvents(t, event.TypeInstallmentPaid); n != 1 {
		t.Fatalf("installment.paid events = %d", n)
	}

	// the paid installment is no longer a candidate
	rep, err = f.uc.RunDaily(context.Background(), day0.Add(10*time.Hour))
	if err != nil || rep.Candidates != 0 {
		t.Fatalf("second run: %+v %v", rep, err)
	}
	if f.rail.CallCount() != 1 {
		t.Fatalf("rail called again: %d", f.rail.CallCount())
	}
}

func TestRunDaily_WarningsAndReminders(t *testing.T) {
	f := newFixture(t, railmock.Accepting("ref"))
	f.seedLoan(t, true, day0.AddDate(0, 0, 1))  // auto-pay, due tomorrow
	f.seedLoan(t, false, day0.AddDate(0, 0, 2)) // manual, due in two days
	f.seedLoan(t, false, day0)                  // manual, due today

	rep, err := f.uc.RunDaily(context.Background(), day0.Add(8*time.Hour))
	if err != nil {
		t.Fatalf("RunDaily: %v", err)
	}
	if rep.Candidates != 3 || rep.Warnings != 1 || rep.Reminders != 2 || rep.Collected != 0 {
		t.Fatalf("report = %+v", rep)
	}
	if f.rail.CallCount() != 0 {
		t.Fatalf("manual loans must not be collected, rail calls = %d", f.rail.CallCount())
	}
	kinds := f.notes.Kinds()
	if kinds[notification.KindAutopayWarning] != 1 || kinds[notification.KindReminder] != 2 {
		t.Fatalf("notifications = %+v", kinds)
	}

	// reminders go out at most once per day
	rep, err = f.uc.RunDaily(context.Background(), day0.Add(15*time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if rep.Reminders != 0 {
		t.Fatalf("same-day reminders = %d", rep.Reminders)
	}
}

func TestRunDaily_SkipsWhenLockHeld(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	f := newFixture(t, railmock.Accepting("ref"))
	f.uc.WithRunLock(cache.NewDailyLock(rdb, time.Hour))
	f.seedLoan(t, false, day0)

	first, err := f.uc.RunDaily(context.Background(), day0.Add(time.Hour))
	if err != nil || first.Skipped {
		t.Fatalf("first run: %+v %v", first, err)
	}
	second, err := f.uc.RunDaily(context.Background(), day0.Add(2*time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if !second.Skipped || second.Candidates != 0 {
		t.Fatalf("second run should be a no-op: %+v", second)
	}
	next, err := f.uc.RunDaily(context.Background(), day0.AddDate(0, 0, 1).Add(time.Hour))
	if err != nil || next.Skipped {
		t.Fatalf("next day: %+v %v", next, err)
	}
}

func TestCollection_DefaultsAfterMaxRetries(t *testing.T) {
	f := newFixture(t, railmock.Failing(errors.New("insufficient funds")))
	l, items := f.seedLoan(t, true, day0)
	ctx := context.Background()

	rep, err := f.uc.RunDaily(ctx, day0.Add(9*time.Hour))
	if err != nil || rep.Failed != 1 {
		t.Fatalf("daily: %+v %v", rep, err)
	}
	_, in := f.reload(t, l, items[0])
	if in.Status != installment.StatusFailed || in.RetryCount != 1 || in.NextRetryAt == nil {
		t.Fatalf("after first failure: %+v", in)
	}
	if want := day0.Add(33 * time.Hour); !in.NextRetryAt.Equal(want) {
		t.Fatalf("next retry = %v, want %v", in.NextRetryAt, want)
	}

	// not due yet
	rep, err = f.uc.RunRetries(ctx, day0.Add(20*time.Hour))
	if err != nil || rep.Candidates != 0 {
		t.Fatalf("early retry sweep: %+v %v", rep, err)
	}

	rep, err = f.uc.RunRetries(ctx, day0.Add(34*time.Hour))
	if err != nil || rep.Failed != 1 {
		t.Fatalf("first retry: %+v %v", rep, err)
	}
	rep, err = f.uc.RunRetries(ctx, day0.Add(60*time.Hour))
	if err != nil || rep.Defaulted != 1 {
		t.Fatalf("final retry: %+v %v", rep, err)
	}

	gotLoan, in := f.reload(t, l, items[0])
	if in.Status != installment.StatusDefaulted || in.RetryCount != 3 || !in.CausedBlock || in.NextRetryAt != nil {
		t.Fatalf("defaulted installment = %+v", in)
	}
	if gotLoan.Status != loan.StatusDefaulted || gotLoan.DefaultedAt == nil {
		t.Fatalf("loan = %s", gotLoan.Status)
	}
	if !gotLoan.AmountRemaining.Equal(decimal.NewFromInt(300)) {
		t.Fatalf("remaining = %s", gotLoan.AmountRemaining)
	}
	if n := f.countEvents(t, event.TypeInstallmentDefaulted); n != 1 {
		t.Fatalf("installment.defaulted events = %d", n)
	}
	if f.rail.CallCount() != 3 {
		t.Fatalf("rail calls = %d", f.rail.CallCount())
	}

	logs, err := f.uc.ListRetryLogs(ctx, in.InstallmentID)
	if err != nil {
		t.Fatal(err)
	}
	if len(logs) != 2 || logs[0].AttemptNumber != 1 || logs[1].AttemptNumber != 2 {
		t.Fatalf("retry logs = %+v", logs)
	}
	if logs[0].IsFinalAttempt || !logs[1].IsFinalAttempt || logs[1].Success || logs[1].ErrorMessage == "" {
		t.Fatalf("retry log flags = %+v", logs)
	}
	if f.notes.Kinds()[notification.KindPaymentFailed] != 2 {
		t.Fatalf("notifications = %+v", f.notes.Kinds())
	}

	// a defaulted loan is not swept again
	rep, err = f.uc.RunRetries(ctx, day0.Add(200*time.Hour))
	if err != nil || rep.Candidates != 0 {
		t.Fatalf("after default: %+v %v", rep, err)
	}
}

func TestCollection_RetrySucceeds(t *testing.T) {
	attempts := 0
	rail := &railmock.Rail{ExecuteTransferFn: func(_ context.Context, in domainTransfer.Instruction) (domainTransfer.RailResult, error) {
		attempts++
		if attempts == 1 {
			return domainTransfer.RailResult{}, errors.New("rail timeout")
		}
		return domainTransfer.RailResult{ReferenceID: "ok-" + in.IdempotencyKey, Status: domainTransfer.StatusCompleted}, nil
	}}
	f := newFixture(t, rail)
	l, items := f.seedLoan(t, true, day0)
	ctx := context.Background()

	if _, err := f.uc.RunDaily(ctx, day0.Add(9*time.Hour)); err != nil {
		t.Fatal(err)
	}
	rep, err := f.uc.RunRetries(ctx, day0.Add(34*time.Hour))
	if err != nil || rep.Collected != 1 {
		t.Fatalf("retry: %+v %v", rep, err)
	}
	gotLoan, in := f.reload(t, l, items[0])
	if in.Status != installment.StatusPaid || in.RetryCount != 1 {
		t.Fatalf("installment = %+v", in)
	}
	if !gotLoan.AmountPaid.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("amount paid = %s", gotLoan.AmountPaid)
	}
	logs, _ := f.uc.ListRetryLogs(ctx, in.InstallmentID)
	if len(logs) != 1 || !logs[0].Success {
		t.Fatalf("retry logs = %+v", logs)
	}
}

func TestMarkPaid_SecondCallIsRejected(t *testing.T) {
	f := newFixture(t, railmock.Accepting("ref"))
	l, items := f.seedLoan(t, false, day0)
	f.uc.now = func() time.Time { return day0.Add(12 * time.Hour) }
	ctx := context.Background()

	dto, err := f.uc.MarkPaid(ctx, items[0].InstallmentID, "admin-1")
	if err != nil {
		t.Fatalf("MarkPaid: %v", err)
	}
	if dto.Status != installment.StatusPaid || !dto.Paid {
		t.Fatalf("dto = %+v", dto)
	}
	_, err = f.uc.MarkPaid(ctx, items[0].InstallmentID, "admin-1")
	if !errors.Is(err, installment.ErrAlreadyPaid) {
		t.Fatalf("want ErrAlreadyPaid, got %v", err)
	}
	gotLoan, _ := f.reload(t, l, items[0])
	if !gotLoan.AmountPaid.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("amount paid changed: %s", gotLoan.AmountPaid)
	}
	if n := f.countEvents(t, event.TypeInstallmentPaid); n != 1 {
		t.Fatalf("installment.paid events = %d", n)
	}
}

func TestMarkPaid_CompletesLoan(t *testing.T) {
	f := newFixture(t, railmock.Accepting("ref"))
	l, items := f.seedLoan(t, false, day0)
	f.uc.now = func() time.Time { return day0 }
	ctx := context.Background()

	for _, in := range items {
		if _, err := f.uc.MarkPaid(ctx, in.InstallmentID, "admin-1"); err != nil {
			t.Fatalf("MarkPaid %d: %v", in.Sequence, err)
		}
	}
	gotLoan, _ := f.reload(t, l, items[2])
	if gotLoan.Status != loan.StatusCompleted || gotLoan.CompletedAt == nil {
		t.Fatalf("loan = %s", gotLoan.Status)
	}
	if !gotLoan.AmountRemaining.IsZero() || !gotLoan.AmountPaid.Equal(gotLoan.TotalAmount) {
		t.Fatalf("balances paid=%s remaining=%s", gotLoan.AmountPaid, gotLoan.AmountRemaining)
	}
	if n := f.countEvents(t, event.TypeLoanCompleted); n != 1 {
		t.Fatalf("loan.completed events = %d", n)
	}
}

func TestMarkPaid_DefaultedInstallment(t *testing.T) {
	f := newFixture(t, railmock.Accepting("ref"))
	_, items := f.seedLoan(t, false, day0)
	if err := f.db.Model(&installment.Installment{}).Where("id = ?", items[0].ID).
		Update("status", installment.StatusDefaulted).Error; err != nil {
		t.Fatal(err)
	}
	_, err := f.uc.MarkPaid(context.Background(), items[0].InstallmentID, "admin-1")
	if !errors.Is(err, installment.ErrInvalidTransition) {
		t.Fatalf("want ErrInvalidTransition, got %v", err)
	}
}

func TestSendManualReminder_Limits(t *testing.T) {
	f := newFixture(t, railmock.Accepting("ref"))
	_, items := f.seedLoan(t, false, day0.AddDate(0, 0, 10))
	ctx := context.Background()
	instID := items[0].InstallmentID

	at := day0
	f.uc.now = func() time.Time { return at }
	if err := f.uc.SendManualReminder(ctx, instID); err != nil {
		t.Fatalf("first: %v", err)
	}
	at = day0.Add(2 * time.Hour)
	if err := f.uc.SendManualReminder(ctx, instID); !errors.Is(err, installment.ErrReminderTooSoon) {
		t.Fatalf("want ErrReminderTooSoon, got %v", err)
	}
	for i := 1; i <= 2; i++ {
		at = day0.Add(time.Duration(i) * 25 * time.Hour)
		if err := f.uc.SendManualReminder(ctx, instID); err != nil {
			t.Fatalf("reminder %d: %v", i+1, err)
		}
	}
	at = day0.Add(200 * time.Hour)
	if err := f.uc.SendManualReminder(ctx, instID); !errors.Is(err, installment.ErrReminderLimit) {
		t.Fatalf("want ErrReminderLimit, got %v", err)
	}
	if got := f.notes.Kinds()[notification.KindManualReminder]; got != 3 {
		t.Fatalf("manual reminders sent = %d", got)
	}
}

func TestRecordSettlement(t *testing.T) {
	f := newFixture(t, railmock.Accepting("ref"))
	l, _ := f.seedLoan(t, false, day0)
	ctx := context.Background()

	if _, err := f.uc.RecordSettlement(ctx, l.LoanID, decimal.NewFromInt(50)); !errors.Is(err, loan.ErrInvalidTransition) {
		t.Fatalf("active loan: want ErrInvalidTransition, got %v", err)
	}
	if err := f.db.Model(&loan.Loan{}).Where("id = ?", l.ID).Update("status", loan.StatusDefaulted).Error; err != nil {
		t.Fatal(err)
	}
	if _, err := f.uc.RecordSettlement(ctx, l.LoanID, decimal.Zero); !errors.Is(err, loan.ErrInvalidTerms) {
		t.Fatalf("zero amount: want ErrInvalidTerms, got %v", err)
	}
	got, err := f.uc.RecordSettlement(ctx, l.LoanID, decimal.RequireFromString("120.50"))
	if err != nil {
		t.Fatalf("RecordSettlement: %v", err)
	}
	if !got.AmountRemaining.Equal(decimal.RequireFromString("179.50")) || got.Status != loan.StatusDefaulted {
		t.Fatalf("loan after settlement = %s %s", got.AmountRemaining, got.Status)
	}
	if n := f.countEvents(t, event.TypeDebtSettled); n != 1 {
		t.Fatalf("debt.settled events = %d", n)
	}
}

func TestRunDaily_CollectsOverdueInstallment(t *testing.T) {
	f := newFixture(t, railmock.Accepting("ref"))
	l, items := f.seedLoan(t, true, day0)

	// no run on day0; the next day's sweep still picks the installment up
	rep, err := f.uc.RunDaily(context.Background(), day0.AddDate(0, 0, 1).Add(9*time.Hour))
	if err != nil {
		t.Fatalf("RunDaily: %v", err)
	}
	if rep.Candidates != 1 || rep.Collected != 1 {
		t.Fatalf("report = %+v", rep)
	}
	_, in := f.reload(t, l, items[0])
	if in.Status != installment.StatusPaid {
		t.Fatalf("overdue installment = %s", in.Status)
	}
	if f.rail.CallCount() != 1 {
		t.Fatalf("rail calls = %d", f.rail.CallCount())
	}
}

func TestRunRetries_EarlierHourOnRetryDay(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	f := newFixture(t, railmock.Failing(errors.New("insufficient funds")))
	f.uc.WithRunLock(cache.NewDailyLock(rdb, 48*time.Hour))
	l, items := f.seedLoan(t, true, day0)
	ctx := context.Background()

	if rep, err := f.uc.RunDaily(ctx, day0.Add(9*time.Hour)); err != nil || rep.Failed != 1 {
		t.Fatalf("daily: %+v %v", rep, err)
	}
	// next retry is day1 09:00; the day1 sweep runs at 08:00 and is the only one that day
	rep, err := f.uc.RunRetries(ctx, day0.AddDate(0, 0, 1).Add(8*time.Hour))
	if err != nil || rep.Candidates != 1 || rep.Failed != 1 {
		t.Fatalf("retry sweep: %+v %v", rep, err)
	}
	_, in := f.reload(t, l, items[0])
	if in.Status != installment.StatusFailed || in.RetryCount != 2 {
		t.Fatalf("installment = %s retry=%d", in.Status, in.RetryCount)
	}
}
