//go:build wireinject

package app

import (
	"context"

	"github.com/google/wire"
	"github.com/gowvp/edgecam/internal/conf"
	"github.com/gowvp/edgecam/internal/core/telemetry"
	"github.com/gowvp/edgecam/internal/data"
	"github.com/gowvp/edgecam/internal/web/api"
)

func wireApp(ctx context.Context, bc *conf.Bootstrap, buf *telemetry.Buffer) (*App, func(), error) {
	panic(wire.Build(data.ProviderSet, api.ProviderSet, ProviderSet))
}
