package risk

import (
	"context"
	"fmt"

	"perp_bot/internal/models"
	"perp_bot/internal/modules/config"
	"perp_bot/pkg/logger"
)

// Gateway — то, что движку нужно от биржи.
type Gateway interface {
	AccountSnapshot(ctx context.Context) (models.AccountSnapshot, error)
	OpenPositions(ctx context.Context, symbol string) ([]models.Position, error)
	MarkPrice(ctx context.Context, symbol string) (float64, error)
	RoundQuantity(symbol string, qty float64) float64
	RoundQuantityUp(symbol string, qty float64) float64
	RoundPrice(symbol string, price float64) float64
}

// Engine считает размер позиции и уровни выхода. Состояния не держит,
// каждый вызов работает от свежего снэпшота аккаунта.
type Engine struct {
	cfg *config.Config
	gw  Gateway
}

func NewEngine(cfg *config.Config, gw Gateway) *Engine {
	return &Engine{cfg: cfg, gw: gw}
}

// MarginPercentage — доля нотионала, обеспечиваемая маржой,
// ступенями по плечу: выше плечо — меньше маржи на сделку.
func MarginPercentage(leverage int) float64 {
	switch {
	case leverage <= 25:
		return 5.0
	case leverage <= 50:
		return 4.0
	case leverage <= 75:
		return 3.0
	case leverage <= 100:
		return 2.0
	default:
		return 1.0
	}
}

// accountUsagePct — суммарный нотионал открытых позиций в % от баланса.
func accountUsagePct(snap models.AccountSnapshot) float64 {
	if snap.TotalWalletBalance <= 0 {
		return 100
	}
	var notional float64
	for _, p := range snap.OpenPositions("") {
		notional += p.Notional()
	}
	return notional / snap.TotalWalletBalance * 100
}

// PositionSize считает количество для нового входа.
// Ноль — входить нельзя (лимит использования депозита или минимум биржи).
func (e *Engine) PositionSize(ctx context.Context, symbol string, price float64) (float64, error) {
	if price <= 0 {
		return 0, fmt.Errorf("position size %s: invalid price %f", symbol, price)
	}

	snap, err := e.gw.AccountSnapshot(ctx)
	if err != nil {
		return 0, fmt.Errorf("position size %s: %w", symbol, err)
	}
	if snap.TotalWalletBalance <= 0 {
		return 0, nil
	}

	used := accountUsagePct(snap)
	available := e.cfg.MaxAccountUsage - used
	if available < 0 {
		available = 0
	}

	sizePct := e.cfg.PositionSizePct
	if sizePct > available {
		sizePct = available
	}
	if sizePct <= 0 {
		logger.Info("[RISK] %s: депозит занят на %.1f%% из %.1f%%, вход пропущен", symbol, used, e.cfg.MaxAccountUsage)
		return 0, nil
	}

	marginPct := MarginPercentage(e.cfg.Leverage)
	notional := snap.TotalWalletBalance * sizePct / 100 * marginPct / 100 * float64(e.cfg.Leverage)

	qty := e.gw.RoundQuantity(symbol, notional/price)
	if qty*price < e.cfg.MinNotional {
		// подтягиваем к биржевому минимуму, если депозит позволяет
		qty = e.gw.RoundQuantityUp(symbol, e.cfg.MinNotional/price)
		margin := qty * price / float64(e.cfg.Leverage)
		if qty*price < e.cfg.MinNotional || margin > snap.AvailableBalance {
			logger.Info("[RISK] %s: минимальная заявка %.2f USDT не по карману, вход пропущен", symbol, e.cfg.MinNotional)
			return 0, nil
		}
		logger.Info("[RISK] %s: количество подтянуто к минимальному нотионалу %.2f USDT", symbol, e.cfg.MinNotional)
	}
	return qty, nil
}

// CanEnter проверяет, допустим ли вход на сторону side: лимит
// использования депозита и существующие позиции по символу.
func (e *Engine) CanEnter(ctx context.Context, symbol string, side models.PositionSide) (bool, string, error) {
	snap, err := e.gw.AccountSnapshot(ctx)
	if err != nil {
		return false, "", err
	}

	if used := accountUsagePct(snap); used >= e.cfg.MaxAccountUsage {
		return false, fmt.Sprintf("депозит занят на %.1f%%", used), nil
	}

	for _, p := range snap.OpenPositions(symbol) {
		if p.ResolvedSide() == side {
			return false, "позиция на этой стороне уже открыта", nil
		}
		if !e.cfg.AllowBothPositions {
			return false, "встречная позиция открыта, обе стороны запрещены", nil
		}
	}
	return true, "", nil
}
