package log

import (
	"fmt"

	"github.com/go-kratos/kratos/v2/log"
)

// LogHelper extends the Kratos log.Helper with typed convenience methods for
// the gateway's recurring event shapes.
type LogHelper struct {
	*log.Helper
}

// NewLogHelper creates an enhanced log helper
func NewLogHelper(logger log.Logger) *LogHelper {
	return &LogHelper{
		Helper: log.NewHelper(logger),
	}
}

// Request logs one HTTP request with method, path, status and duration
func (h *LogHelper) Request(method, path string, status int, durationMs int64, kvs ...interface{}) {
	msg := fmt.Sprintf("%s %s - %d (%dms)", method, path, status, durationMs)
	allKvs := append([]interface{}{"msg", msg}, kvs...)
	allKvs = append(allKvs,
		"type", "request",
		"method", method,
		"path", path,
		"status", status,
		"duration_ms", durationMs,
	)
	h.Infow(allKvs...)
}

// SlowRequest logs a request that exceeded the slow threshold
func (h *LogHelper) SlowRequest(requestID, method, path string, durationMs int64) {
	h.Warnw(
		"msg", fmt.Sprintf("[%s] Slow request detected | %s %s | %dms", requestID, method, path, durationMs),
		"type", "slow_request",
		"request_id", requestID,
		"method", method,
		"path", path,
		"duration_ms", durationMs,
	)
}
