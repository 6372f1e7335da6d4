// Package middleware provides HTTP middleware for the gateway server.
package middleware

import (
	"context"
	"time"

	pkglog "RelayGate/pkg/log"

	kerrors "github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/middleware"
	"github.com/go-kratos/kratos/v2/transport"
	"github.com/go-kratos/kratos/v2/transport/http"
	"github.com/google/uuid"
)

// slowRequestThreshold flags requests that take longer than this.
const slowRequestThreshold = 10 * time.Second

// Logging returns a middleware that logs every HTTP request with a generated
// request ID, method, path and duration, and flags slow requests.
func Logging(logger *pkglog.LogHelper) middleware.Middleware {
	return func(handler middleware.Handler) middleware.Handler {
		return func(ctx context.Context, req interface{}) (interface{}, error) {
			startTime := time.Now()

			var (
				method string
				path   string
			)

			if tr, ok := transport.FromServerContext(ctx); ok {
				method = tr.Operation()
				path = tr.Operation()
				if ht, ok := tr.(http.Transporter); ok {
					httpReq := ht.Request()
					method = httpReq.Method
					path = httpReq.URL.Path
				}
			}

			requestID := uuid.NewString()[:8]

			reply, err := handler(ctx, req)

			durationMs := time.Since(startTime).Milliseconds()
			status := 200
			if err != nil {
				status = int(kerrors.FromError(err).Code)
			}
			logger.Request(method, path, status, durationMs, "request_id", requestID)

			if time.Since(startTime) > slowRequestThreshold {
				logger.SlowRequest(requestID, method, path, durationMs)
			}

			return reply, err
		}
	}
}
