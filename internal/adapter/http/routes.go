package http

import (
	"github.com/labstack/echo/v4"
)

type Handlers struct {
	Health       *Handler
	Loans        *LoanHandler
	Installments *InstallmentHandler
	Risk         *RiskHandler
	Trust        *TrustHandler
	Jobs         *JobHandler
}

// RegisterRoutes mounts the API. Mutating business routes sit behind idem;
// job triggers are expected to be idempotent on their own.
func RegisterRoutes(e *echo.Echo, h Handlers, idem echo.MiddlewareFunc) {
	e.GET("/health", h.Health.Health)

	loans := e.Group("/loans", idem)
	loans.POST("", h.Loans.CreateLoan)
	loans.POST("/preview", h.Loans.PreviewSchedule)
	loans.GET("/:loan_id", h.Loans.GetLoan)
	loans.POST("/:loan_id/activate", h.Loans.ActivateLoan)
	loans.GET("/:loan_id/schedule", h.Loans.GetSchedule)
	loans.GET("/:loan_id/transfers", h.Loans.ListTransfers)
	loans.POST("/:loan_id/settlements", h.Loans.RecordSettlement)

	inst := e.Group("/installments", idem)
	inst.POST("/:installment_id/mark-paid", h.Installments.MarkPaid)
	inst.POST("/:installment_id/reminders", h.Installments.SendReminder)
	inst.GET("/:installment_id/retry-logs", h.Installments.ListRetryLogs)

	e.GET("/borrowers/:borrower_id/block-status", h.Risk.BlockStatus)
	e.POST("/admin/borrowers/:borrower_id/unblock", h.Risk.AdminUnblock, idem)

	e.GET("/users/:user_id/trust-score", h.Trust.GetScore)
	vouches := e.Group("/vouches", idem)
	vouches.POST("", h.Trust.CreateVouch)
	vouches.POST("/:vouch_id/revoke", h.Trust.RevokeVouch)

	jobs := e.Group("/jobs")
	jobs.POST("/daily", h.Jobs.Daily)
	jobs.POST("/retries", h.Jobs.Retries)
	jobs.POST("/reconcile", h.Jobs.Reconcile)
	jobs.POST("/restrictions", h.Jobs.Restrictions)
	jobs.POST("/dispatch", h.Jobs.Dispatch)
}
