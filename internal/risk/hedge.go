package risk

import (
	"context"
	"fmt"

	"perp_bot/internal/models"
	"perp_bot/internal/modules/config"
	"perp_bot/pkg/logger"
)

// HedgeGateway — что хедж-контроллеру нужно от биржи.
type HedgeGateway interface {
	CombinedPnL(ctx context.Context, symbol string) (models.CombinedPnL, error)
	RoundQuantity(symbol string, qty float64) float64
	RoundQuantityUp(symbol string, qty float64) float64
}

// Controller решает, когда открывать хеджирующую позицию: одна сторона
// уже открыта, и её результат вышел за порог прибыли или убытка.
type Controller struct {
	cfg *config.Config
	gw  HedgeGateway
}

func NewController(cfg *config.Config, gw HedgeGateway) *Controller {
	return &Controller{cfg: cfg, gw: gw}
}

// Decide пересчитывается каждый цикл, решение не персистится.
func (c *Controller) Decide(ctx context.Context, symbol string) (models.HedgeDecision, error) {
	pnl, err := c.gw.CombinedPnL(ctx, symbol)
	if err != nil {
		return models.HedgeDecision{}, fmt.Errorf("hedge decide %s: %w", symbol, err)
	}

	decision := models.HedgeDecision{PnL: &pnl}
	if !c.cfg.AutoHedge || pnl.Hedged {
		return decision, nil
	}

	var open *models.PositionPnL
	switch {
	case pnl.Long != nil:
		open = pnl.Long
	case pnl.Short != nil:
		open = pnl.Short
	default:
		return decision, nil
	}

	switch {
	case open.UnrealizedPct >= c.cfg.HedgeProfitThreshold:
		logger.Info("[HEDGE] %s: %s в плюсе %.2f%%, фиксируем хеджем", symbol, open.Side, open.UnrealizedPct)
	case open.UnrealizedPct <= -c.cfg.HedgeLossThreshold:
		logger.Info("[HEDGE] %s: %s в минусе %.2f%%, страхуем хеджем", symbol, open.Side, open.UnrealizedPct)
	default:
		return decision, nil
	}

	decision.Hedge = true
	decision.Side = open.Side.Opposite()
	return decision, nil
}

// HedgeSize — объём хеджа: доля исходной позиции, подтянутая
// к минимальному нотионалу и никогда не больше исходной.
// Ноль — хедж невозможен (исходная позиция сама меньше минимума).
func (c *Controller) HedgeSize(symbol string, original, price float64) float64 {
	if original < 0 {
		original = -original
	}
	qty := c.gw.RoundQuantity(symbol, original*c.cfg.HedgeSizeRatio)
	if qty*price < c.cfg.MinNotional {
		qty = c.gw.RoundQuantityUp(symbol, c.cfg.MinNotional/price)
	}
	if qty > original {
		qty = original
	}
	if qty*price < c.cfg.MinNotional {
		return 0
	}
	return qty
}
