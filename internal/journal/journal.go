package journal

import (
	"context"
	"time"

	"perp_bot/internal/models"
	"perp_bot/pkg/db"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

// Journal пишет сделки и дневные итоги в Postgres.
// При выключенном журнале (nil менеджер) все записи — no-op.
type Journal struct {
	tx db.TxManager
}

func New(manager *db.PgTxManager) *Journal {
	if manager == nil {
		return &Journal{}
	}
	return &Journal{tx: manager}
}

func (j *Journal) enabled() bool { return j != nil && j.tx != nil }

// RecordEntry — вход в позицию с уровнями TP/SL.
func (j *Journal) RecordEntry(ctx context.Context, order models.PlacedOrder, entryPrice, tpPrice, slPrice float64) error {
	if !j.enabled() {
		return nil
	}
	return j.tx.RunMaster(ctx, func(ctxTx context.Context, tx pgx.Tx) error {
		_, err := tx.Exec(ctxTx, `
			insert into trade_entries (order_id, symbol, side, position_side, quantity, entry_price, tp_price, sl_price, created_at)
			values ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			order.OrderID, order.Symbol, string(order.Side), string(order.PositionSide),
			order.Quantity, entryPrice, tpPrice, slPrice, time.Now().UTC(),
		)
		return errors.Wrap(err, "insert trade entry")
	})
}

// RecordGridFill — исполненная ступень сетки.
func (j *Journal) RecordGridFill(ctx context.Context, symbol string, level int, side models.OrderSide, price, qty float64) error {
	if !j.enabled() {
		return nil
	}
	return j.tx.RunMaster(ctx, func(ctxTx context.Context, tx pgx.Tx) error {
		_, err := tx.Exec(ctxTx, `
			insert into grid_fills (symbol, level, side, price, quantity, filled_at)
			values ($1, $2, $3, $4, $5, $6)`,
			symbol, level, string(side), price, qty, time.Now().UTC(),
		)
		return errors.Wrap(err, "insert grid fill")
	})
}

// RecordDailyPnL — агрегат за сутки.
func (j *Journal) RecordDailyPnL(ctx context.Context, day time.Time, s models.PnLSummary) error {
	if !j.enabled() {
		return nil
	}
	return j.tx.RunMaster(ctx, func(ctxTx context.Context, tx pgx.Tx) error {
		_, err := tx.Exec(ctxTx, `
			insert into daily_pnl (day, total_pnl, realized_pnl, funding_fee, commission, trades, winning, losing, pnl_percent)
			values ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			on conflict (day) do update set
				total_pnl = excluded.total_pnl,
				realized_pnl = excluded.realized_pnl,
				funding_fee = excluded.funding_fee,
				commission = excluded.commission,
				trades = excluded.trades,
				winning = excluded.winning,
				losing = excluded.losing,
				pnl_percent = excluded.pnl_percent`,
			day.UTC().Truncate(24*time.Hour), s.TotalPnL, s.RealizedPnL, s.FundingFee, s.Commission,
			s.TradesCount, s.WinningTrades, s.LosingTrades, s.PnLPercent,
		)
		return errors.Wrap(err, "upsert daily pnl")
	})
}
