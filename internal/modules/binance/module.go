package binance

import (
	"context"

	"perp_bot/internal/modules/binance/service"

	"go.uber.org/fx"
)

// Module поднимает шлюз биржи и прогревает метаданные инструментов.
func Module() fx.Option {
	return fx.Module("binance",
		fx.Provide(service.NewClient),
		fx.Invoke(func(lc fx.Lifecycle, c *service.Client) {
			lc.Append(fx.Hook{
				OnStart: func(ctx context.Context) error {
					return c.RefreshExchangeInfo(ctx)
				},
			})
		}),
	)
}
