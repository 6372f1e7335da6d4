//go:build wireinject
// +build wireinject

// The build tag makes sure the stub is not built in the final build.

package main

import (
	"RelayGate/internal/biz"
	"RelayGate/internal/conf"
	"RelayGate/internal/data"
	"RelayGate/internal/server"
	"RelayGate/internal/service"
	"RelayGate/pkg/gemini"

	"github.com/go-kratos/kratos/v2"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/wire"
)

// wireApp init kratos application.
func wireApp(*conf.Server, *conf.Data, *conf.Gateway, log.Logger) (*kratos.App, func(), error) {
	panic(wire.Build(
		data.ProviderSet,
		biz.ProviderSet,
		service.ProviderSet,
		server.ProviderSet,
		gemini.NewClient,
		StartMaintenanceCron,
		newApp,
	))
}
