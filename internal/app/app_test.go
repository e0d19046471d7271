package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"p2p-lending-engine/internal/adapter/repository/mysql"
	"p2p-lending-engine/internal/config"
	"p2p-lending-engine/internal/domain/installment"
	"p2p-lending-engine/internal/domain/loan"
	riskdomain "p2p-lending-engine/internal/domain/risk"
	"p2p-lending-engine/internal/testutil/notifymock"
	"p2p-lending-engine/internal/testutil/railmock"
	"p2p-lending-engine/internal/testutil/testdb"
	"p2p-lending-engine/pkg/id"
)

func newTestApp(t *testing.T) *App {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	a, err := Wire(config.Load(), Deps{
		DB:       testdb.Open(t),
		Redis:    rdb,
		Rail:     railmock.Accepting("ref"),
		Notifier: &notifymock.Recorder{},
	})
	require.NoError(t, err)
	return a
}

func TestWire_RejectsUnknownBackoff(t *testing.T) {
	cfg := config.Load()
	cfg.Policy.Backoff = "linear"
	_, err := Wire(cfg, Deps{DB: testdb.Open(t), Rail: railmock.Accepting("ref"), Notifier: &notifymock.Recorder{}})
	assert.Error(t, err)
}

func TestEcho_Health(t *testing.T) {
	e := newTestApp(t).Echo()

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var body struct {
		Status string            `json:"status"`
		Deps   map[string]string `json:"deps"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, "ok", body.Deps["mysql"])
	assert.Equal(t, "ok", body.Deps["redis"])
}

func TestEcho_CreateLoan(t *testing.T) {
	e := newTestApp(t).Echo()

	body := `{"borrower_id":"` + strings.Repeat("b", 32) + `","lender_id":"` + strings.Repeat("c", 32) +
		`","principal":"1000","interest_rate":"10","total_installments":2,"frequency":"30day",` +
		`"borrower_funding_source":"va-b","lender_funding_source":"va-l"}`
	req := httptest.NewRequest(http.MethodPost, "/loans", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set("Ax-Request-Id", uuid.NewString())
	req.Header.Set("Ax-Request-At", time.Now().UTC().Format(time.RFC3339))
	req.Header.Set("Ax-Actor-Id", strings.Repeat("b", 32))
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"status":"pending"`)
}

func TestEcho_JobsRunWithoutIdempotencyHeaders(t *testing.T) {
	e := newTestApp(t).Echo()

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/jobs/dispatch", nil))

	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

// seedAutopayLoan stores an active auto-pay loan with one 100.00 installment.
func seedAutopayLoan(t *testing.T, a *App, borrowerID string, due time.Time) *installment.Installment {
	t.Helper()
	ctx := context.Background()
	activated := due.AddDate(0, 0, -7)
	l := &loan.Loan{
		LoanID:                id.NewID32(),
		BorrowerID:            borrowerID,
		LenderID:              id.NewID32(),
		Principal:             decimal.NewFromInt(90),
		Currency:              "IDR",
		InterestRate:          decimal.RequireFromString("11.1111"),
		InterestMethod:        loan.InterestFlat,
		TotalInstallments:     1,
		Frequency:             loan.FrequencyWeekly,
		StartDate:             &activated,
		TotalInterest:         decimal.NewFromInt(10),
		TotalAmount:           decimal.NewFromInt(100),
		AmountPaid:            decimal.Zero,
		AmountRemaining:       decimal.NewFromInt(100),
		AutoPayEnabled:        true,
		BorrowerFundingSource: "va-borrower",
		LenderFundingSource:   "va-lender",
		Status:                loan.StatusActive,
		ActivatedAt:           &activated,
	}
	require.NoError(t, mysql.NewLoanRepository(a.DB).Create(ctx, l))
	insts := mysql.NewInstallmentRepository(a.DB)
	require.NoError(t, insts.ReplaceForLoan(ctx, l.ID, []installment.Installment{{
		InstallmentID:   id.NewID32(),
		Sequence:        1,
		DueDate:         due,
		Amount:          decimal.NewFromInt(100),
		PrincipalAmount: decimal.NewFromInt(90),
		InterestAmount:  decimal.NewFromInt(10),
		Status:          installment.StatusPending,
	}}))
	got, err := insts.ListByLoan(ctx, l.ID)
	require.NoError(t, err)
	return &got[0]
}

func TestServicing_RepeatedDefaultsKeepOneActiveBlock(t *testing.T) {
	cfg := config.Load()
	cfg.Policy.MaxRetries = 3
	cfg.Policy.Backoff = "exponential"
	cfg.Policy.BackoffBase = 24 * time.Hour
	cfg.Policy.BackoffMax = 72 * time.Hour
	a, err := Wire(cfg, Deps{
		DB:       testdb.Open(t),
		Rail:     railmock.Failing(errors.New("insufficient funds")),
		Notifier: &notifymock.Recorder{},
	})
	require.NoError(t, err)
	ctx := context.Background()
	day0 := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	at := func(days, hour int) time.Time { return day0.AddDate(0, 0, days).Add(time.Duration(hour) * time.Hour) }

	borrower := id.NewID32()
	first := seedAutopayLoan(t, a, borrower, day0)
	second := seedAutopayLoan(t, a, borrower, day0.AddDate(0, 0, 1))

	activeBlocks := func() int64 {
		var n int64
		require.NoError(t, a.DB.Model(&riskdomain.Block{}).
			Where("borrower_id = ? AND status = ?", borrower, riskdomain.BlockActive).Count(&n).Error)
		return n
	}

	runs := []struct {
		name  string
		run   func() error
		check func()
	}{
		{"first attempt on loan one", func() error { _, err := a.Payments.RunDaily(ctx, at(0, 9)); return err }, nil},
		{"first attempt on loan two", func() error { _, err := a.Payments.RunDaily(ctx, at(1, 9)); return err }, nil},
		{"second attempt on loan one", func() error { _, err := a.Payments.RunRetries(ctx, at(1, 10)); return err }, nil},
		{"second attempt on loan two", func() error { _, err := a.Payments.RunRetries(ctx, at(2, 10)); return err }, func() {
			blocked, err := a.Risk.IsBlocked(ctx, borrower)
			require.NoError(t, err)
			assert.False(t, blocked, "no block before maxRetries failures")
		}},
		{"loan one defaults", func() error { _, err := a.Payments.RunRetries(ctx, at(3, 11)); return err }, func() {
			st, err := a.Risk.Status(ctx, borrower)
			require.NoError(t, err)
			assert.True(t, st.IsBlocked)
			assert.Equal(t, 1, st.DefaultCount)
			assert.Equal(t, int64(1), activeBlocks())
		}},
		{"loan two defaults", func() error { _, err := a.Payments.RunRetries(ctx, at(4, 11)); return err }, func() {
			st, err := a.Risk.Status(ctx, borrower)
			require.NoError(t, err)
			assert.True(t, st.IsBlocked)
			assert.Equal(t, 2, st.DefaultCount)
			assert.Len(t, st.Blocks, 1)
			assert.Equal(t, int64(1), activeBlocks())
		}},
	}
	for _, r := range runs {
		require.NoError(t, r.run(), r.name)
		if r.check != nil {
			r.check()
		}
	}

	insts := mysql.NewInstallmentRepository(a.DB)
	for _, in := range []*installment.Installment{first, second} {
		got, err := insts.GetByID(ctx, in.ID)
		require.NoError(t, err)
		assert.Equal(t, installment.StatusDefaulted, got.Status)
		assert.Equal(t, 3, got.RetryCount)
	}
}
