package db

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"p2p-lending-engine/pkg/logger"
)

const slowQuery = time.Second

// Pool sizes the connection pool behind a gorm handle.
type Pool struct {
	MaxOpen     int
	MaxIdle     int
	MaxLifetime time.Duration
	MaxIdleTime time.Duration
}

var DefaultPool = Pool{
	MaxOpen:     30,
	MaxIdle:     10,
	MaxLifetime: 30 * time.Minute,
	MaxIdleTime: 10 * time.Minute,
}

func nowUTC() time.Time { return time.Now().UTC() }

// slogWriter routes gorm's warnings, errors and slow queries into the service log.
type slogWriter struct{}

func (slogWriter) Printf(format string, args ...any) {
	logger.CtxWarn(context.Background(), "gorm", slog.String("detail", fmt.Sprintf(format, args...)))
}

func newGormLogger(w gormlogger.Writer) gormlogger.Interface {
	return gormlogger.New(w, gormlogger.Config{
		SlowThreshold:             slowQuery,
		LogLevel:                  gormlogger.Warn,
		IgnoreRecordNotFoundError: true,
	})
}

// Config returns the gorm settings shared by every connection. All timestamps
// are written in UTC.
func Config() *gorm.Config {
	return &gorm.Config{
		Logger:  newGormLogger(slogWriter{}),
		NowFunc: nowUTC,
	}
}

func OpenGorm(dsn string) (*gorm.DB, error) {
	return OpenGormWithDialector(mysql.Open(dsn))
}

func OpenGormWithDialector(dial gorm.Dialector) (*gorm.DB, error) {
	return OpenGormWithPool(dial, DefaultPool)
}

func OpenGormWithPool(dial gorm.Dialector, p Pool) (*gorm.DB, error) {
	db, err := gorm.Open(dial, Config())
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(p.MaxOpen)
	sqlDB.SetMaxIdleConns(p.MaxIdle)
	sqlDB.SetConnMaxLifetime(p.MaxLifetime)
	sqlDB.SetConnMaxIdleTime(p.MaxIdleTime)

	if err := sqlDB.Ping(); err != nil {
		return nil, err
	}
	logger.Info("gorm: connected", slog.String("dialect", dial.Name()), slog.Int("max_open", p.MaxOpen))
	return db, nil
}
