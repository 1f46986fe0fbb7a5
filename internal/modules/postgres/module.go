package postgres

import (
	"context"
	"fmt"

	"perp_bot/internal/modules/config"
	"perp_bot/pkg/db"
	"perp_bot/pkg/logger"

	"go.uber.org/fx"
)

// Module отдаёт менеджер транзакций. Пустой DSN — журнал выключен,
// провайдер возвращает nil, потребители это учитывают.
func Module() fx.Option {
	return fx.Module("postgres",
		fx.Provide(
			func(lc fx.Lifecycle, cfg *config.Config) (*db.PgTxManager, error) {
				if cfg.DB == "" {
					logger.Info("[DB] DSN не задан, журнал сделок выключен")
					return nil, nil
				}

				ctx := context.Background()
				poolMaster, err := db.NewPool(ctx, db.PoolConfig{
					DSN: cfg.DB,
				})
				if err != nil {
					return nil, fmt.Errorf("failed to create poolMaster: %w", err)
				}

				if err = poolMaster.Ping(ctx); err != nil {
					return nil, err
				}

				manager := db.NewPgTxManager(poolMaster)
				lc.Append(fx.Hook{
					OnStop: func(ctx context.Context) error {
						manager.Close()
						return nil
					},
				})
				return manager, nil
			},
		),
	)
}
