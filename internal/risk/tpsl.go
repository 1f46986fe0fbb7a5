package risk

import "perp_bot/internal/models"

// ExitLevels — цены тейк-профита и стоп-лосса.
type ExitLevels struct {
	TakeProfit float64
	StopLoss   float64
}

// exitLevels — симметричные уровни от цены входа в процентах.
func exitLevels(side models.PositionSide, entry, tpPct, slPct float64) ExitLevels {
	if side == models.SideLong {
		return ExitLevels{
			TakeProfit: entry * (1 + tpPct/100),
			StopLoss:   entry * (1 - slPct/100),
		}
	}
	return ExitLevels{
		TakeProfit: entry * (1 - tpPct/100),
		StopLoss:   entry * (1 + slPct/100),
	}
}

// netProfitPct — чистый процент от сделки после комиссий тейкера
// на входе и выходе.
func netProfitPct(grossPct, takerFeeRate float64) float64 {
	return grossPct - 2*takerFeeRate*100
}

// ExitLevels считает TP/SL для входа. Если настроенный тейк-профит
// не окупает комиссии, уровень отодвигается так, чтобы чистая прибыль
// была не меньше минимума.
func (e *Engine) ExitLevels(symbol string, side models.PositionSide, entry float64) ExitLevels {
	tpPct := e.cfg.TakeProfitPct
	if netProfitPct(tpPct, e.cfg.TakerFeeRate) < e.cfg.MinProfitAfterFees {
		tpPct = e.cfg.TakeProfitPct + e.cfg.MinProfitAfterFees + 2*e.cfg.TakerFeeRate*100
	}

	levels := exitLevels(side, entry, tpPct, e.cfg.StopLossPct)
	levels.TakeProfit = e.gw.RoundPrice(symbol, levels.TakeProfit)
	levels.StopLoss = e.gw.RoundPrice(symbol, levels.StopLoss)
	return levels
}
