package config

import "go.uber.org/fx"

// Module регистрируем как fx-провайдер.
func Module() fx.Option {
	return fx.Module("config",
		fx.Provide(
			NewConfig,
			NewGridConfig,
		),
	)
}
