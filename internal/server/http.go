// Package server assembles the transport servers.
package server

import (
	"RelayGate/internal/conf"
	"RelayGate/internal/server/middleware"
	"RelayGate/internal/service"
	pkglog "RelayGate/pkg/log"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-kratos/kratos/v2/middleware/recovery"
	"github.com/go-kratos/kratos/v2/transport/http"
	"github.com/google/wire"
)

// ProviderSet is server providers.
var ProviderSet = wire.NewSet(NewHTTPServer)

// NewHTTPServer new an HTTP server.
func NewHTTPServer(c *conf.Server, svc *service.GatewayService, logger log.Logger) *http.Server {
	logHelper := pkglog.NewLogHelper(logger)

	var opts = []http.ServerOption{
		http.Middleware(
			recovery.Recovery(),
			middleware.Logging(logHelper),
		),
	}
	if c.Http.Network != "" {
		opts = append(opts, http.Network(c.Http.Network))
	}
	if c.Http.Addr != "" {
		opts = append(opts, http.Address(c.Http.Addr))
	}
	if c.Http.Timeout != nil {
		opts = append(opts, http.Timeout(c.Http.Timeout.AsDuration()))
	}
	srv := http.NewServer(opts...)

	// Register HTTP routes
	route := srv.Route("/")
	route.POST("/v1/generate", svc.Generate)
	route.GET("/v1/status", svc.Status)
	route.POST("/v1/reset", svc.Reset)
	route.GET("/healthz", svc.Health)

	return srv
}
