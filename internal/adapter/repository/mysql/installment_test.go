package mysql

import (
	"context"
	"errors"
	"testing"
	"time"

	instDomain "p2p-lending-engine/internal/domain/installment"
	"p2p-lending-engine/internal/testutil/testdb"
	"p2p-lending-engine/pkg/id"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

func seedSchedule(t *testing.T, db *gorm.DB, n int) (uint64, []instDomain.Installment) {
	t.Helper()
	ctx := context.Background()
	l := makeLoan(id.NewID32(), id.NewID32())
	if err := NewLoanRepository(db).Create(ctx, l); err != nil {
		t.Fatal(err)
	}
	items := make([]instDomain.Installment, n)
	for i := range items {
		items[i] = instDomain.Installment{
			InstallmentID:   id.NewID32(),
			Sequence:        i + 1,
			DueDate:         day0.AddDate(0, 0, 7*(i+1)),
			Amount:          decimal.RequireFromString("275000.00"),
			PrincipalAmount: decimal.RequireFromString("250000.00"),
			InterestAmount:  decimal.RequireFromString("25000.00"),
			Status:          instDomain.StatusPending,
		}
	}
	repo := NewInstallmentRepository(db)
	if err := repo.ReplaceForLoan(ctx, l.ID, items); err != nil {
		t.Fatalf("ReplaceForLoan: %v", err)
	}
	got, err := repo.ListByLoan(ctx, l.ID)
	if err != nil {
		t.Fatal(err)
	}
	return l.ID, got
}

func TestInstallment_ReplaceForLoan(t *testing.T) {
	db := testdb.Open(t)
	ctx := context.Background()
	repo := NewInstallmentRepository(db)

	loanID, first := seedSchedule(t, db, 4)
	if len(first) != 4 || first[0].Sequence != 1 || first[3].Sequence != 4 {
		t.Fatalf("unexpected schedule: %+v", first)
	}
	if err := repo.AppendRetryLog(ctx, &instDomain.RetryLog{InstallmentID: first[0].ID, AttemptNumber: 1, AttemptedAt: day0}); err != nil {
		t.Fatal(err)
	}

	// a second replace leaves exactly the new batch
	repl := []instDomain.Installment{{
		InstallmentID: id.NewID32(), Sequence: 1, DueDate: day0.AddDate(0, 0, 30),
		Amount: decimal.NewFromInt(1_100_000), PrincipalAmount: decimal.NewFromInt(1_000_000),
		InterestAmount: decimal.NewFromInt(100_000), Status: instDomain.StatusPending,
	}}
	if err := repo.ReplaceForLoan(ctx, loanID, repl); err != nil {
		t.Fatalf("second replace: %v", err)
	}
	got, _ := repo.ListByLoan(ctx, loanID)
	if len(got) != 1 || got[0].InstallmentID != repl[0].InstallmentID {
		t.Fatalf("replace kept old rows: %+v", got)
	}
	logs, _ := repo.ListRetryLogs(ctx, first[0].ID)
	if len(logs) != 0 {
		t.Fatalf("retry logs of replaced rows should go, got %d", len(logs))
	}
}

func TestInstallment_ListDueBefore(t *testing.T) {
	db := testdb.Open(t)
	ctx := context.Background()
	repo := NewInstallmentRepository(db)
	_, items := seedSchedule(t, db, 4) // due day0+7, +14, +21, +28

	got, err := repo.ListDueBefore(ctx, day0.AddDate(0, 0, 15))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].Sequence != 1 || got[1].Sequence != 2 {
		t.Fatalf("window returned %+v", got)
	}

	// paid rows drop out
	if ok, err := repo.MarkPaid(ctx, items[0].ID, []instDomain.Status{instDomain.StatusPending}, day0); err != nil || !ok {
		t.Fatalf("MarkPaid = %v, %v", ok, err)
	}
	got, _ = repo.ListDueBefore(ctx, day0.AddDate(0, 0, 15))
	if len(got) != 1 || got[0].Sequence != 2 {
		t.Fatalf("after payment window returned %+v", got)
	}

	// overdue rows stay listed until they leave pending
	got, _ = repo.ListDueBefore(ctx, day0.AddDate(0, 0, 40))
	if len(got) != 3 || got[0].Sequence != 2 {
		t.Fatalf("overdue window returned %+v", got)
	}
}

func TestInstallment_MarkPaidIsConditional(t *testing.T) {
	db := testdb.Open(t)
	ctx := context.Background()
	repo := NewInstallmentRepository(db)
	_, items := seedSchedule(t, db, 1)
	from := []instDomain.Status{instDomain.StatusPending, instDomain.StatusFailed}

	ok, err := repo.MarkPaid(ctx, items[0].ID, from, day0)
	if err != nil || !ok {
		t.Fatalf("first MarkPaid = %v, %v", ok, err)
	}
	ok, err = repo.MarkPaid(ctx, items[0].ID, from, day0.Add(time.Hour))
	if err != nil || ok {
		t.Fatalf("second MarkPaid = %v, %v; want false", ok, err)
	}
	got, _ := repo.GetByID(ctx, items[0].ID)
	if got.Status != instDomain.StatusPaid || !got.Paid || got.PaidAt == nil || !got.PaidAt.Equal(day0) {
		t.Fatalf("unexpected row: %+v", got)
	}
}

func TestInstallment_RecordFailureAndRetryable(t *testing.T) {
	db := testdb.Open(t)
	ctx := context.Background()
	repo := NewInstallmentRepository(db)
	_, items := seedSchedule(t, db, 1)
	next := day0.Add(24 * time.Hour)

	ok, err := repo.RecordFailure(ctx, items[0].ID, 0, instDomain.FailureUpdate{
		Status: instDomain.StatusFailed, RetryCount: 1, AttemptedAt: day0, NextRetryAt: &next, LastError: "insufficient funds",
	})
	if err != nil || !ok {
		t.Fatalf("RecordFailure = %v, %v", ok, err)
	}
	// stale expected count loses
	ok, err = repo.RecordFailure(ctx, items[0].ID, 0, instDomain.FailureUpdate{Status: instDomain.StatusFailed, RetryCount: 1, AttemptedAt: day0})
	if err != nil || ok {
		t.Fatalf("stale RecordFailure = %v, %v", ok, err)
	}

	if got, _ := repo.ListRetryable(ctx, next); len(got) != 0 {
		t.Fatalf("not yet retryable, got %d", len(got))
	}
	got, err := repo.ListRetryable(ctx, next.Add(time.Minute))
	if err != nil || len(got) != 1 || got[0].RetryCount != 1 {
		t.Fatalf("ListRetryable = %+v, %v", got, err)
	}
}

func TestInstallment_Reminders(t *testing.T) {
	db := testdb.Open(t)
	ctx := context.Background()
	repo := NewInstallmentRepository(db)
	_, items := seedSchedule(t, db, 1)
	iid := items[0].ID
	morning := day0.Add(8 * time.Hour)

	if ok, _ := repo.TouchReminder(ctx, iid, day0, morning); !ok {
		t.Fatal("first reminder of the day should pass")
	}
	if ok, _ := repo.TouchReminder(ctx, iid, day0, morning.Add(time.Hour)); ok {
		t.Fatal("second reminder the same day should be refused")
	}
	if ok, _ := repo.TouchReminder(ctx, iid, day0.AddDate(0, 0, 1), morning.AddDate(0, 0, 1)); !ok {
		t.Fatal("next day reminder should pass")
	}

	now := morning
	for i := 0; i < 3; i++ {
		ok, err := repo.TouchManualReminder(ctx, iid, 3, now.Add(-24*time.Hour), now)
		if err != nil || !ok {
			t.Fatalf("manual reminder %d = %v, %v", i+1, ok, err)
		}
		now = now.Add(25 * time.Hour)
	}
	if ok, _ := repo.TouchManualReminder(ctx, iid, 3, now.Add(-24*time.Hour), now); ok {
		t.Fatal("fourth manual reminder should be refused")
	}
	got, _ := repo.GetByID(ctx, iid)
	if got.ManualReminderCount != 3 {
		t.Fatalf("manual count = %d", got.ManualReminderCount)
	}
}

func TestInstallment_GetNotFound(t *testing.T) {
	repo := NewInstallmentRepository(testdb.Open(t))
	if _, err := repo.GetByInstallmentID(context.Background(), "ffffffffffffffffffffffffffffffff"); !errors.Is(err, instDomain.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}
