package runner

import (
	"context"
	"fmt"
	"time"

	"perp_bot/internal/journal"
	"perp_bot/internal/models"
	"perp_bot/internal/modules/config"
	"perp_bot/internal/notify"
	"perp_bot/internal/risk"
	"perp_bot/pkg/logger"
)

// Gateway — что раннеру нужно от биржи.
type Gateway interface {
	Klines(ctx context.Context, symbol, interval string, limit int) ([]models.Kline, error)
	MarkPrice(ctx context.Context, symbol string) (float64, error)
	OpenPositions(ctx context.Context, symbol string) ([]models.Position, error)
	DailyPnL(ctx context.Context, symbol string) (models.PnLSummary, error)
	PlaceMarketOrder(ctx context.Context, symbol string, side models.OrderSide, posSide models.PositionSide, qty float64) (models.PlacedOrder, error)
	PlaceTakeProfitOrder(ctx context.Context, symbol string, posSide models.PositionSide, qty, stopPrice float64) (models.PlacedOrder, error)
	PlaceStopLossOrder(ctx context.Context, symbol string, posSide models.PositionSide, qty, stopPrice float64) (models.PlacedOrder, error)
}

// Runner — торговый цикл одного символа.
type Runner struct {
	symbol string
	cfg    *config.Config

	gw     Gateway
	engine *risk.Engine
	hedge  *risk.Controller
	signal SignalFunc
	n      notify.Notifier
	j      *journal.Journal

	// дневное состояние, живёт внутри горутины раннера
	day        time.Time // начало текущих суток UTC
	suspended  bool
	lastReport time.Time

	now func() time.Time
}

func New(symbol string, cfg *config.Config, gw Gateway, engine *risk.Engine, hedge *risk.Controller, signal SignalFunc, n notify.Notifier, j *journal.Journal) *Runner {
	if signal == nil {
		signal = NoSignal
	}
	return &Runner{
		symbol: symbol,
		cfg:    cfg,
		gw:     gw,
		engine: engine,
		hedge:  hedge,
		signal: signal,
		n:      n,
		j:      j,
		now:    time.Now,
	}
}

// Cycle — один проход: границы суток, лимиты, сигнал, вход.
// Ошибка завершает только проход, цикл продолжается.
func (r *Runner) Cycle(ctx context.Context) error {
	r.rollover(ctx)

	suspended, err := r.checkDailyLimits(ctx)
	if err != nil {
		return err
	}
	if suspended {
		return nil
	}

	side, hedged, ok, err := r.decideSide(ctx)
	if err != nil || !ok {
		return err
	}
	return r.enter(ctx, side, hedged)
}

// Suspended — торговля по символу приостановлена до следующих суток.
func (r *Runner) Suspended() bool { return r.suspended }

// rollover сбрасывает дневное состояние на границе суток UTC.
func (r *Runner) rollover(ctx context.Context) {
	today := r.now().UTC().Truncate(24 * time.Hour)
	if r.day.IsZero() {
		r.day = today
		return
	}
	if !today.After(r.day) {
		return
	}

	if summary, err := r.gw.DailyPnL(ctx, r.symbol); err == nil {
		r.notifyPnL(ctx, "🌅 Итоги дня", summary)
		if err := r.j.RecordDailyPnL(ctx, r.day, summary); err != nil {
			logger.Warn("[RUNNER] %s: журнал дневного PnL: %v", r.symbol, err)
		}
	}

	r.day = today
	if r.suspended {
		r.suspended = false
		r.n.Sendf(ctx, "▶️ %s: новые сутки, торговля возобновлена", r.symbol)
	}
}

// checkDailyLimits останавливает символ при достижении дневной цели
// или лимита потерь.
func (r *Runner) checkDailyLimits(ctx context.Context) (bool, error) {
	if r.suspended {
		return true, nil
	}

	summary, err := r.gw.DailyPnL(ctx, r.symbol)
	if err != nil {
		return false, fmt.Errorf("runner %s: daily pnl: %w", r.symbol, err)
	}

	if !r.lastReport.IsZero() && r.now().Sub(r.lastReport) >= r.cfg.PnLReportInterval {
		r.notifyPnL(ctx, "📊 PnL за сутки", summary)
		r.lastReport = r.now()
	}
	if r.lastReport.IsZero() {
		r.lastReport = r.now()
	}

	switch {
	case r.cfg.DailyProfitTarget > 0 && summary.PnLPercent >= r.cfg.DailyProfitTarget:
		r.suspended = true
		logger.Info("[RUNNER] %s: дневная цель %.2f%% достигнута (%.2f%%), пауза до завтра",
			r.symbol, r.cfg.DailyProfitTarget, summary.PnLPercent)
		r.n.Sendf(ctx, "🎯 %s: дневная цель достигнута (%.2f%%), торговля до завтра остановлена", r.symbol, summary.PnLPercent)
	case r.cfg.DailyLossLimit > 0 && summary.PnLPercent <= -r.cfg.DailyLossLimit:
		r.suspended = true
		logger.Info("[RUNNER] %s: дневной лимит потерь %.2f%% пробит (%.2f%%), пауза до завтра",
			r.symbol, r.cfg.DailyLossLimit, summary.PnLPercent)
		r.n.Sendf(ctx, "🛑 %s: дневной лимит потерь пробит (%.2f%%), торговля до завтра остановлена", r.symbol, summary.PnLPercent)
	}
	return r.suspended, nil
}

// decideSide — сигнал генератора, поверх которого хедж имеет приоритет.
// Для хеджа возвращает и PnL исходной позиции: от её объёма считается хедж.
func (r *Runner) decideSide(ctx context.Context) (models.PositionSide, *models.CombinedPnL, bool, error) {
	decision, err := r.hedge.Decide(ctx, r.symbol)
	if err != nil {
		return "", nil, false, err
	}
	if decision.Hedge {
		return decision.Side, decision.PnL, true, nil
	}

	klines, err := r.gw.Klines(ctx, r.symbol, r.cfg.KlineInterval, r.cfg.KlineLimit)
	if err != nil {
		return "", nil, false, fmt.Errorf("runner %s: klines: %w", r.symbol, err)
	}

	switch r.signal(klines) {
	case models.SignalLong:
		return models.SideLong, nil, true, nil
	case models.SignalShort:
		return models.SideShort, nil, true, nil
	default:
		return "", nil, false, nil
	}
}

// enter размещает вход, затем best-effort TP и SL: позиция без защитных
// заявок лучше, чем молча потерянный вход. Хедж считается от объёма
// исходной позиции, обычный вход — от баланса аккаунта.
func (r *Runner) enter(ctx context.Context, side models.PositionSide, hedged *models.CombinedPnL) error {
	allowed, reason, err := r.engine.CanEnter(ctx, r.symbol, side)
	if err != nil {
		return fmt.Errorf("runner %s: can enter: %w", r.symbol, err)
	}
	if !allowed {
		logger.Info("[RUNNER] %s: вход %s пропущен: %s", r.symbol, side, reason)
		return nil
	}

	price, err := r.gw.MarkPrice(ctx, r.symbol)
	if err != nil {
		return fmt.Errorf("runner %s: mark price: %w", r.symbol, err)
	}

	var qty float64
	if hedged != nil {
		qty = r.hedge.HedgeSize(r.symbol, hedgedOriginal(side, hedged), price)
	} else {
		qty, err = r.engine.PositionSize(ctx, r.symbol, price)
		if err != nil {
			return fmt.Errorf("runner %s: sizing: %w", r.symbol, err)
		}
	}
	if qty == 0 {
		return nil
	}

	orderSide := models.OrderBuy
	if side == models.SideShort {
		orderSide = models.OrderSell
	}

	entry, err := r.gw.PlaceMarketOrder(ctx, r.symbol, orderSide, side, qty)
	if err != nil {
		r.n.Sendf(ctx, "❗️ %s: вход %s не размещён: %v", r.symbol, side, err)
		return fmt.Errorf("runner %s: entry: %w", r.symbol, err)
	}

	levels := r.engine.ExitLevels(r.symbol, side, price)
	r.n.Sendf(ctx, "✅ %s: OPEN %s qty=%.6f @ %.6f | TP=%.6f SL=%.6f lev=%dx",
		r.symbol, side, qty, price, levels.TakeProfit, levels.StopLoss, r.cfg.Leverage)

	if _, err := r.gw.PlaceTakeProfitOrder(ctx, r.symbol, side, qty, levels.TakeProfit); err != nil {
		logger.Error("[RUNNER] %s: TP не размещён: %v", r.symbol, err)
		r.n.Sendf(ctx, "⚠️ %s: тейк-профит не выставлен: %v", r.symbol, err)
	}
	if _, err := r.gw.PlaceStopLossOrder(ctx, r.symbol, side, qty, levels.StopLoss); err != nil {
		logger.Error("[RUNNER] %s: SL не размещён: %v", r.symbol, err)
		r.n.Sendf(ctx, "⚠️ %s: стоп-лосс не выставлен: %v", r.symbol, err)
	}

	if err := r.j.RecordEntry(ctx, entry, price, levels.TakeProfit, levels.StopLoss); err != nil {
		logger.Warn("[RUNNER] %s: журнал входа: %v", r.symbol, err)
	}
	return nil
}

// hedgedOriginal — объём хеджируемой позиции: стороны противоположной входу.
func hedgedOriginal(side models.PositionSide, pnl *models.CombinedPnL) float64 {
	switch {
	case side == models.SideShort && pnl.Long != nil:
		return pnl.Long.Amount
	case side == models.SideLong && pnl.Short != nil:
		return pnl.Short.Amount
	default:
		return 0
	}
}

func (r *Runner) notifyPnL(ctx context.Context, title string, s models.PnLSummary) {
	r.n.Sendf(ctx, "%s %s\nPnL: %.2f USDT (%.2f%%)\nРеализовано: %.2f | Фандинг: %.2f | Комиссии: %.2f\nСделок: %d (win rate %.1f%%)",
		title, r.symbol, s.TotalPnL, s.PnLPercent, s.RealizedPnL, s.FundingFee, s.Commission, s.TradesCount, s.WinRate)
}
