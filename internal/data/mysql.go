package data

import (
	"fmt"
	"time"

	"RelayGate/internal/conf"

	"github.com/go-kratos/kratos/v2/log"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewMySQLClient creates a new GORM MySQL client for the audit log store.
// The audit database is optional: without a DSN the returned client is nil
// and audit events are log-only.
func NewMySQLClient(c *conf.Data, l log.Logger) (*gorm.DB, func(), error) {
	helper := log.NewHelper(l)

	if c == nil || c.Database == nil || c.Database.Source == "" {
		helper.Info("audit database is not configured, audit events will be log-only")
		return nil, func() {}, nil
	}

	// Route GORM's own logging through the service logger
	gormLogger := logger.New(
		&gormLogAdapter{helper: helper},
		logger.Config{
			SlowThreshold:             200 * time.Millisecond, // Slow SQL threshold
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	db, err := gorm.Open(mysql.Open(c.Database.Source), &gorm.Config{
		Logger:                 gormLogger,
		SkipDefaultTransaction: true,
		PrepareStmt:            true,
	})
	if err != nil {
		helper.Errorf("failed to connect to MySQL: %v", err)
		return nil, nil, fmt.Errorf("failed to connect to MySQL: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		helper.Errorf("failed to get sql.DB: %v", err)
		return nil, nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}

	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(50)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(&AuditLog{}); err != nil {
		helper.Errorf("failed to migrate audit log table: %v", err)
		return nil, nil, fmt.Errorf("failed to migrate audit log table: %w", err)
	}

	helper.Info("Successfully connected to MySQL audit store")

	cleanup := func() {
		helper.Info("Closing MySQL client")
		if err := sqlDB.Close(); err != nil {
			helper.Errorf("Failed to close MySQL client: %v", err)
		}
	}

	return db, cleanup, nil
}

// gormLogAdapter adapts the Kratos log helper to GORM's logger.Writer.
type gormLogAdapter struct {
	helper *log.Helper
}

func (a *gormLogAdapter) Printf(format string, args ...interface{}) {
	a.helper.Warnf(format, args...)
}
