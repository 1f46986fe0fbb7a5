package grid

import (
	"context"
	"fmt"

	"perp_bot/internal/journal"
	"perp_bot/internal/modules/binance/service"
	"perp_bot/internal/modules/config"
	healthsvc "perp_bot/internal/modules/health/service"
	"perp_bot/internal/notify"

	"go.uber.org/fx"
)

// Module поднимает сеточный режим.
func Module() fx.Option {
	return fx.Module("grid",
		fx.Provide(
			func(cfg *config.Config, grid *config.GridConfig, client *service.Client, n notify.Notifier, j *journal.Journal) *Manager {
				return NewManager(cfg, grid, client, n, j)
			},
		),
		fx.Invoke(func(lc fx.Lifecycle, sh fx.Shutdowner, cfg *config.Config, client *service.Client, m *Manager, state *healthsvc.State) {
			runCtx, cancel := context.WithCancel(context.Background())
			lc.Append(fx.Hook{
				OnStart: func(ctx context.Context) error {
					if !cfg.GridEnabled {
						return fmt.Errorf("grid: режим выключен (GRID_ENABLED=false)")
					}
					symbols := []string{cfg.Symbol}
					if cfg.UseHighVolumePairs {
						hv, err := client.HighVolumeSymbols(ctx, cfg.MinVolumeUSDT, cfg.MaxSymbols)
						if err != nil {
							return err
						}
						if len(hv) > 0 {
							symbols = hv
						}
					}
					state.SetReady(true)
					go func() {
						m.Run(runCtx, symbols)
						_ = sh.Shutdown()
					}()
					return nil
				},
				OnStop: func(ctx context.Context) error {
					state.SetReady(false)
					cancel()
					return nil
				},
			})
		}),
	)
}
