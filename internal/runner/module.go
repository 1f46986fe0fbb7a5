package runner

import (
	"context"

	"perp_bot/internal/journal"
	"perp_bot/internal/modules/binance/service"
	"perp_bot/internal/modules/config"
	healthsvc "perp_bot/internal/modules/health/service"
	"perp_bot/internal/notify"
	"perp_bot/internal/risk"
	"perp_bot/pkg/logger"

	"go.uber.org/fx"
)

// Module собирает торговый контур: риск, хедж, раннеры, надзор.
func Module() fx.Option {
	return fx.Module("runner",
		fx.Provide(
			func(cfg *config.Config, client *service.Client) *risk.Engine {
				return risk.NewEngine(cfg, client)
			},
			func(cfg *config.Config, client *service.Client) *risk.Controller {
				return risk.NewController(cfg, client)
			},
			func(cfg *config.Config, client *service.Client, engine *risk.Engine, hedge *risk.Controller, signal SignalFunc, n notify.Notifier, j *journal.Journal, state *healthsvc.State) *Manager {
				return NewManager(cfg, client, engine, hedge, signal, n, j, state)
			},
		),
		fx.Invoke(func(lc fx.Lifecycle, sh fx.Shutdowner, m *Manager) {
			runCtx, cancel := context.WithCancel(context.Background())
			lc.Append(fx.Hook{
				OnStart: func(ctx context.Context) error {
					go func() {
						if err := m.Run(runCtx); err != nil && runCtx.Err() == nil {
							logger.Error("торговый контур остановлен: %v", err)
							_ = sh.Shutdown()
						}
					}()
					return nil
				},
				OnStop: func(ctx context.Context) error {
					cancel()
					return nil
				},
			})
		}),
	)
}
