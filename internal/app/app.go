package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	httpadp "p2p-lending-engine/internal/adapter/http"
	"p2p-lending-engine/internal/adapter/middleware"
	"p2p-lending-engine/internal/adapter/notify"
	"p2p-lending-engine/internal/adapter/rail"
	"p2p-lending-engine/internal/adapter/repository/mysql"
	"p2p-lending-engine/internal/config"
	"p2p-lending-engine/internal/domain/notification"
	"p2p-lending-engine/internal/domain/transfer"
	"p2p-lending-engine/internal/infrastructure/cache"
	"p2p-lending-engine/internal/infrastructure/db"
	"p2p-lending-engine/internal/infrastructure/migrate"
	"p2p-lending-engine/internal/usecase/events"
	"p2p-lending-engine/internal/usecase/loan"
	"p2p-lending-engine/internal/usecase/payment"
	"p2p-lending-engine/internal/usecase/risk"
	"p2p-lending-engine/internal/usecase/schedule"
	transferuc "p2p-lending-engine/internal/usecase/transfer"
	"p2p-lending-engine/internal/usecase/trust"
	"p2p-lending-engine/pkg/logger"
)

// Deps are the external resources the services are built on.
type Deps struct {
	DB       *gorm.DB
	Redis    *redis.Client
	Rail     transfer.Rail
	Notifier notification.Notifier
}

// App holds the wired services shared by the API server and the job CLI.
type App struct {
	Cfg   *config.Config
	DB    *gorm.DB
	Redis *redis.Client

	Loans      *loan.Usecase
	Schedules  *schedule.Usecase
	Payments   *payment.Usecase
	Transfers  *transferuc.Usecase
	Risk       *risk.Usecase
	Trust      *trust.Usecase
	Dispatcher *events.Dispatcher

	closers []func() error
}

// New connects to MySQL and Redis, applies migrations when migrateUp is set
// and wires every service.
func New(ctx context.Context, cfg *config.Config, migrateUp bool) (*App, error) {
	gdb, err := db.OpenGorm(cfg.MySQLDSN())
	if err != nil {
		logger.CtxError(ctx, "failed to connect to MySQL", err)
		return nil, fmt.Errorf("open mysql: %w", err)
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, err
	}
	if migrateUp {
		if err := migrate.Up(sqlDB); err != nil {
			logger.CtxError(ctx, "failed to apply migrations", err)
			_ = sqlDB.Close()
			return nil, err
		}
	}

	rdb, err := cache.OpenRedis(ctx, cfg.RedisAddr, cfg.RedisDB)
	if err != nil {
		logger.CtxError(ctx, "failed to connect to Redis", err, slog.String("addr", cfg.RedisAddr))
		_ = sqlDB.Close()
		return nil, fmt.Errorf("open redis: %w", err)
	}

	closers := []func() error{rdb.Close, sqlDB.Close}
	var notifier notification.Notifier = notify.LogNotifier{}
	if cfg.Kafka.Brokers != "" {
		kn, err := notify.NewKafkaNotifier(cfg.Kafka)
		if err != nil {
			logger.CtxError(ctx, "failed to create Kafka producer", err)
			_ = rdb.Close()
			_ = sqlDB.Close()
			return nil, err
		}
		notifier = kn
		closers = append([]func() error{func() error { kn.Close(); return nil }}, closers...)
	}

	a, err := Wire(cfg, Deps{DB: gdb, Redis: rdb, Rail: rail.New(cfg.Rail), Notifier: notifier})
	if err != nil {
		for _, c := range closers {
			_ = c()
		}
		return nil, err
	}
	a.closers = closers
	return a, nil
}

// Wire builds the services over already opened resources.
func Wire(cfg *config.Config, d Deps) (*App, error) {
	backoff, err := payment.NewBackoff(cfg.Policy.Backoff, cfg.Policy.BackoffBase, cfg.Policy.BackoffMax)
	if err != nil {
		return nil, err
	}
	policy := payment.DefaultPolicy()
	policy.MaxRetries = cfg.Policy.MaxRetries
	policy.Backoff = backoff
	policy.ReminderWindowDays = cfg.Policy.ReminderWindowDays

	tx := mysql.NewGormUoW(d.DB)
	loans := mysql.NewLoanRepository(d.DB)
	insts := mysql.NewInstallmentRepository(d.DB)
	dispatcher := events.NewDispatcher(tx, mysql.NewEventRepository(d.DB))

	transfers := transferuc.NewUsecase(mysql.NewTransferRepository(d.DB), d.Rail, transferuc.FeePolicy{
		Percent: decimal.NewFromFloat(cfg.Fees.RepaymentPercent),
		Fixed:   decimal.NewFromFloat(cfg.Fees.RepaymentFixed),
	}, cfg.Policy.StaleTransferAfter)

	riskUC := risk.NewUsecase(tx, mysql.NewBorrowerRepository(d.DB), mysql.NewBlockRepository(d.DB), cfg.Policy.RestrictionCooldown)
	trustUC := trust.NewUsecase(tx, mysql.NewScoreRepository(d.DB), mysql.NewVouchRepository(d.DB), trust.Points{
		Early:           cfg.Trust.EarlyPaymentPoints,
		Ontime:          cfg.Trust.OntimePaymentPoints,
		Late:            cfg.Trust.LatePaymentPoints,
		DefaultPenalty:  cfg.Trust.DefaultPenalty,
		VoucherPenalty:  cfg.Trust.VoucherPenalty,
		CompletionBonus: cfg.Trust.CompletionBonus,
	})
	riskUC.Register(dispatcher)
	trustUC.Register(dispatcher)
	notify.NewSubscriber(d.Notifier).Register(dispatcher)

	payments := payment.NewUsecase(tx, loans, insts, transfers, d.Notifier, policy).WithFlusher(dispatcher)
	if d.Redis != nil {
		payments = payments.WithRunLock(cache.NewDailyLock(d.Redis, cfg.SweepLockTTL))
	}

	return &App{
		Cfg:        cfg,
		DB:         d.DB,
		Redis:      d.Redis,
		Loans:      loan.NewUsecase(loans, riskUC),
		Schedules:  schedule.NewUsecase(loans, insts, transfers, tx).WithFlusher(dispatcher),
		Payments:   payments,
		Transfers:  transfers,
		Risk:       riskUC,
		Trust:      trustUC,
		Dispatcher: dispatcher,
	}, nil
}

// Echo returns the HTTP server with every route registered.
func (a *App) Echo() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Logger(), echomw.Recover())
	e.Validator = httpadp.NewValidator()

	checks := map[string]httpadp.Check{
		"mysql": func(ctx context.Context) error {
			sqlDB, err := a.DB.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
	}
	if a.Redis != nil {
		checks["redis"] = func(ctx context.Context) error { return a.Redis.Ping(ctx).Err() }
	}

	httpadp.RegisterRoutes(e, httpadp.Handlers{
		Health:       httpadp.NewHandler(checks),
		Loans:        httpadp.NewLoanHandler(a.Loans, a.Schedules, a.Payments, a.Transfers),
		Installments: httpadp.NewInstallmentHandler(a.Payments),
		Risk:         httpadp.NewRiskHandler(a.Risk),
		Trust:        httpadp.NewTrustHandler(a.Trust),
		Jobs:         httpadp.NewJobHandler(a.Payments, a.Transfers, a.Risk, a.Dispatcher),
	}, middleware.IdempotencyMiddleware(a.Redis, time.Duration(a.Cfg.IdempTTLSecs)*time.Second))
	return e
}

// Close releases the resources opened by New.
func (a *App) Close() {
	for _, c := range a.closers {
		if err := c(); err != nil {
			logger.Error("close failed", err)
		}
	}
}
