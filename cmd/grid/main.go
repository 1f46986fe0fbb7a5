package main

import (
	"log"

	"perp_bot/internal/grid"
	"perp_bot/internal/journal"
	"perp_bot/internal/modules/binance"
	"perp_bot/internal/modules/config"
	"perp_bot/internal/modules/health"
	"perp_bot/internal/modules/postgres"
	"perp_bot/internal/notify"
	"perp_bot/pkg/db"
	"perp_bot/pkg/logger"
	"perp_bot/pkg/tracing"

	"go.uber.org/fx"
)

const serviceName = "perp_bot_grid"

func main() {
	logger.SetServiceName(serviceName)
	tracing.SetServiceName(serviceName)
	if err := logger.Init(); err != nil {
		log.Fatal(err)
	}

	app := fx.New(
		fx.Provide(
			notify.New,
			func(manager *db.PgTxManager) *journal.Journal {
				return journal.New(manager)
			},
		),
		fx.Invoke(func(lc fx.Lifecycle, cfg *config.Config) error {
			if cfg.Service.JaegerHost == "" {
				return nil
			}
			_, closeTracer, err := tracing.InitTracer(tracing.Config{
				Host: cfg.Service.JaegerHost,
				Port: cfg.Service.JaegerPort,
			})
			if err != nil {
				return err
			}
			lc.Append(fx.StopHook(closeTracer))
			return nil
		}),
		config.Module(),
		postgres.Module(),
		binance.Module(),
		health.Module(),
		grid.Module(),
	)
	app.Run()
}
