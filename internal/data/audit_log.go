package data

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-kratos/kratos/v2/log"
	"gorm.io/gorm"
)

// AuditLog is the GORM model for the key_audit_logs table. One row per key
// state transition: circuit opened/closed, key disabled, rate-limit denial,
// fallback served, administrative reset.
type AuditLog struct {
	ID        int64     `gorm:"primaryKey;column:id"`
	KeyID     string    `gorm:"column:key_id;type:varchar(32);not null;index"`
	EventType string    `gorm:"column:event_type;type:varchar(50);not null"`
	PrevState string    `gorm:"column:prev_state;type:varchar(16)"`
	NextState string    `gorm:"column:next_state;type:varchar(16)"`
	Details   string    `gorm:"column:details;type:json"` // JSON string
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime;index"`
}

// TableName specifies the table name for GORM
func (AuditLog) TableName() string {
	return "key_audit_logs"
}

// AuditLoggerImpl implements biz.AuditLogger. Events are written from a
// buffered channel by a background goroutine so the request path never
// blocks on the database; when no database is configured every event is
// still emitted as a structured log line.
type AuditLoggerImpl struct {
	db      *gorm.DB
	logChan chan *AuditLog
	logger  *log.Helper
}

// NewAuditLogger creates a new audit logger with async channel.
// db may be nil (no audit database configured); events are then log-only.
func NewAuditLogger(db *gorm.DB, logger log.Logger) *AuditLoggerImpl {
	al := &AuditLoggerImpl{
		db:      db,
		logChan: make(chan *AuditLog, 1000), // Buffer size 1000 to prevent blocking
		logger:  log.NewHelper(logger),
	}

	if db != nil {
		// Start background goroutine for async persistence
		go al.start()
	}

	return al
}

// start processes audit log events from the channel
func (a *AuditLoggerImpl) start() {
	for event := range a.logChan {
		ctx := context.Background()
		if err := a.db.WithContext(ctx).Create(event).Error; err != nil {
			a.logger.Errorw("failed to write audit log",
				"key_id", event.KeyID,
				"event_type", event.EventType,
				"error", err)
		}
	}
}

// Record emits one state-transition event. Never blocks: if the channel is
// full the event is dropped with a warning (audit is best-effort).
func (a *AuditLoggerImpl) Record(_ context.Context, keyID, eventType, prevState, nextState string, details map[string]interface{}) {
	detailJSON := ""
	if details != nil {
		if b, err := json.Marshal(details); err == nil {
			detailJSON = string(b)
		}
	}

	a.logger.Infow("msg", "key state transition",
		"key_id", keyID,
		"event_type", eventType,
		"prev_state", prevState,
		"next_state", nextState,
		"details", detailJSON)

	if a.db == nil {
		return
	}

	event := &AuditLog{
		KeyID:     keyID,
		EventType: eventType,
		PrevState: prevState,
		NextState: nextState,
		Details:   detailJSON,
	}

	select {
	case a.logChan <- event:
	default:
		a.logger.Warnw("audit log channel full, dropping event",
			"key_id", keyID,
			"event_type", eventType)
	}
}

// PurgeOlderThan deletes audit rows created before the cutoff. Called by the
// maintenance cron. Returns the number of deleted rows.
func (a *AuditLoggerImpl) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	if a.db == nil {
		return 0, nil
	}

	result := a.db.WithContext(ctx).Where("created_at < ?", cutoff).Delete(&AuditLog{})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}
