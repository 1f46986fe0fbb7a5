package grid

import (
	"context"
	"fmt"
	"time"

	"perp_bot/internal/journal"
	"perp_bot/internal/models"
	"perp_bot/internal/modules/config"
	"perp_bot/internal/notify"
	"perp_bot/pkg/logger"
)

// допустимый дрейф цены от размещённой заявки
const staleDriftPct = 1.0

// Gateway — что сеточной машине нужно от биржи.
type Gateway interface {
	LastPrice(ctx context.Context, symbol string) (float64, error)
	OpenPositions(ctx context.Context, symbol string) ([]models.Position, error)
	PlaceStopLimitOrder(ctx context.Context, symbol string, side models.OrderSide, posSide models.PositionSide, qty, stopPrice, price float64) (models.PlacedOrder, error)
	CancelOrder(ctx context.Context, symbol string, orderID int64) error
	RecentTrades(ctx context.Context, symbol string, since time.Time, limit int) ([]models.Trade, error)
	RoundQuantity(symbol string, qty float64) float64
	RoundPrice(symbol string, price float64) float64
}

// Machine гоняет лестницу условных заявок по одному символу.
// Весь жизненный цикл — в одной горутине, состояние не разделяется.
type Machine struct {
	symbol string
	cfg    *config.Config
	grid   *config.GridConfig
	gw     Gateway
	n      notify.Notifier
	j      *journal.Journal

	state       State
	tradesSince time.Time

	now func() time.Time
}

func NewMachine(symbol string, cfg *config.Config, grid *config.GridConfig, gw Gateway, n notify.Notifier, j *journal.Journal) *Machine {
	return &Machine{
		symbol: symbol,
		cfg:    cfg,
		grid:   grid,
		gw:     gw,
		n:      n,
		j:      j,
		now:    time.Now,
	}
}

// State — снэпшот для отладки и тестов.
func (m *Machine) State() State { return m.state }

// Cycle — один проход машины. Ошибка размещения логируется и
// уведомляется, повторная попытка — только на следующем проходе.
func (m *Machine) Cycle(ctx context.Context) error {
	price, err := m.gw.LastPrice(ctx, m.symbol)
	if err != nil {
		return fmt.Errorf("grid %s: price: %w", m.symbol, err)
	}
	m.state.ObservePrice(price)

	held, err := m.heldQuantity(ctx)
	if err != nil {
		return fmt.Errorf("grid %s: positions: %w", m.symbol, err)
	}

	if err := m.detectFills(ctx, held); err != nil {
		return err
	}

	// пересчитываем остаток после возможных исполнений
	held, err = m.heldQuantity(ctx)
	if err != nil {
		return fmt.Errorf("grid %s: positions: %w", m.symbol, err)
	}

	if m.dustOrLiquidated(ctx, held, price) {
		return nil
	}

	m.buyStep(ctx, price, held)
	m.sellStep(ctx, price, held)
	return nil
}

// heldQuantity — сколько монеты держим (лонговая нога).
func (m *Machine) heldQuantity(ctx context.Context) (float64, error) {
	positions, err := m.gw.OpenPositions(ctx, m.symbol)
	if err != nil {
		return 0, err
	}
	for _, p := range positions {
		if p.ResolvedSide() == models.SideLong {
			return p.Amount, nil
		}
	}
	return 0, nil
}

// detectFills сверяет недавние сделки с активными заявками.
func (m *Machine) detectFills(ctx context.Context, heldBefore float64) error {
	if m.state.ActiveBuyID == 0 && m.state.ActiveSellID == 0 {
		return nil
	}
	if m.tradesSince.IsZero() {
		m.tradesSince = m.now().Add(-time.Hour)
	}

	trades, err := m.gw.RecentTrades(ctx, m.symbol, m.tradesSince, 100)
	if err != nil {
		return fmt.Errorf("grid %s: trades: %w", m.symbol, err)
	}

	for _, t := range trades {
		switch t.OrderID {
		case m.state.ActiveBuyID:
			prev := heldBefore - t.Quantity
			if prev < 0 {
				prev = 0
			}
			m.state.ApplyBuyFill(prev, t.Quantity, t.Price)
			m.state.AdvanceBuy(m.grid.BuyLevels())
			m.state.ActiveBuyID = 0
			m.state.ActiveBuyQty = 0
			m.state.ActiveBuyPrice = 0

			logger.Info("[GRID] %s: покупка исполнена qty=%.8f по %.8f, средняя %.8f, ступень %d",
				m.symbol, t.Quantity, t.Price, m.state.LastBuyPrice, m.state.BuyIndex)
			m.n.Sendf(ctx, "🟢 GRID %s: куплено %.6f по %.6f (средняя %.6f)", m.symbol, t.Quantity, t.Price, m.state.LastBuyPrice)
			if err := m.j.RecordGridFill(ctx, m.symbol, m.state.BuyIndex, models.OrderBuy, t.Price, t.Quantity); err != nil {
				logger.Warn("[GRID] %s: журнал: %v", m.symbol, err)
			}

		case m.state.ActiveSellID:
			m.state.AdvanceSell(m.grid.SellLevels())
			m.state.ActiveSellID = 0
			m.state.ActiveSellPrice = 0

			logger.Info("[GRID] %s: продажа исполнена qty=%.8f по %.8f, ступень %d",
				m.symbol, t.Quantity, t.Price, m.state.SellIndex)
			m.n.Sendf(ctx, "🔴 GRID %s: продано %.6f по %.6f", m.symbol, t.Quantity, t.Price)
			if err := m.j.RecordGridFill(ctx, m.symbol, m.state.SellIndex, models.OrderSell, t.Price, t.Quantity); err != nil {
				logger.Warn("[GRID] %s: журнал: %v", m.symbol, err)
			}
		}
		if t.Time > m.tradesSince.UnixMilli() {
			m.tradesSince = time.UnixMilli(t.Time)
		}
	}
	return nil
}

// dustOrLiquidated сбрасывает состояние при полной ликвидации или
// когда остаток стал пылью.
func (m *Machine) dustOrLiquidated(ctx context.Context, held, price float64) bool {
	if m.state.Idle() {
		return false
	}

	value := held * price
	if held <= 0 {
		logger.Info("[GRID] %s: позиция полностью закрыта, сетка в исходное", m.symbol)
		m.n.Sendf(ctx, "♻️ GRID %s: цикл завершён, сетка сброшена", m.symbol)
		m.state.Reset()
		return true
	}
	if value < m.grid.DustThresholdUSDT {
		logger.Info("[GRID] %s: остаток %.2f USDT ниже порога пыли %.2f, средняя цена забыта",
			m.symbol, value, m.grid.DustThresholdUSDT)
		m.state.Reset()
		return true
	}
	return false
}

// buyStep — триггеры покупки и контроль дрейфа активной заявки.
func (m *Machine) buyStep(ctx context.Context, price, held float64) {
	// заявка устарела: цена ушла вниз больше чем на 1%
	if m.state.ActiveBuyID != 0 {
		if price < m.state.ActiveBuyPrice*(1-staleDriftPct/100) {
			if err := m.gw.CancelOrder(ctx, m.symbol, m.state.ActiveBuyID); err != nil {
				logger.Warn("[GRID] %s: отмена устаревшей покупки: %v", m.symbol, err)
				return
			}
			m.state.ActiveBuyID = 0
			m.state.ActiveBuyQty = 0
			m.state.ActiveBuyPrice = 0
		} else {
			return
		}
	}

	idx := m.state.BuyIndex
	if idx >= m.grid.BuyLevels() {
		return
	}

	switch {
	case m.state.Idle():
		// первая ступень: от минимума цены
		if price > m.state.LowestObserved {
			return
		}
		if held*price >= m.grid.SkipFirstBuyAboveUSDT {
			return
		}
	default:
		if idx == 0 {
			// позиция есть (куплена вручную), стартуем со второй ступени
			m.state.BuyIndex = 1
			idx = 1
			if idx >= m.grid.BuyLevels() {
				return
			}
		}
		if price > m.state.LastBuyPrice*m.grid.BuyTriggers[idx] {
			return
		}
	}

	stop := m.gw.RoundPrice(m.symbol, price*m.grid.BuyStops[idx])
	limit := m.gw.RoundPrice(m.symbol, price*m.grid.BuyLimits[idx])
	qty := m.gw.RoundQuantity(m.symbol, m.grid.BuyBudgetUSDT[idx]/limit)
	if qty <= 0 || qty*limit < m.cfg.MinNotional {
		return
	}

	order, err := m.gw.PlaceStopLimitOrder(ctx, m.symbol, models.OrderBuy, models.SideLong, qty, stop, limit)
	if err != nil {
		logger.Error("[GRID] %s: покупка ступени %d: %v", m.symbol, idx, err)
		m.n.Sendf(ctx, "⚠️ GRID %s: не удалось разместить покупку ступени %d: %v", m.symbol, idx, err)
		return
	}
	m.state.ActiveBuyID = order.OrderID
	m.state.ActiveBuyQty = qty
	m.state.ActiveBuyPrice = price
	logger.Info("[GRID] %s: стоп-лимит на покупку ступени %d: stop=%.8f limit=%.8f qty=%.8f",
		m.symbol, idx, stop, limit, qty)
}

// sellStep — триггеры продажи.
func (m *Machine) sellStep(ctx context.Context, price, held float64) {
	if m.state.Idle() || held <= 0 {
		return
	}

	if m.state.ActiveSellID != 0 {
		if price > m.state.ActiveSellPrice*(1+staleDriftPct/100) {
			if err := m.gw.CancelOrder(ctx, m.symbol, m.state.ActiveSellID); err != nil {
				logger.Warn("[GRID] %s: отмена устаревшей продажи: %v", m.symbol, err)
				return
			}
			m.state.ActiveSellID = 0
			m.state.ActiveSellPrice = 0
		} else {
			return
		}
	}

	idx := m.state.SellIndex
	if idx >= m.grid.SellLevels() {
		return
	}
	if price < m.state.LastBuyPrice*m.grid.SellTriggers[idx] {
		return
	}

	stop := m.gw.RoundPrice(m.symbol, price*m.grid.SellStops[idx])
	limit := m.gw.RoundPrice(m.symbol, price*m.grid.SellLimits[idx])
	qty := m.gw.RoundQuantity(m.symbol, held*m.grid.SellFractions[idx])
	if qty <= 0 || qty*limit < m.cfg.MinNotional {
		return
	}

	order, err := m.gw.PlaceStopLimitOrder(ctx, m.symbol, models.OrderSell, models.SideLong, qty, stop, limit)
	if err != nil {
		logger.Error("[GRID] %s: продажа ступени %d: %v", m.symbol, idx, err)
		m.n.Sendf(ctx, "⚠️ GRID %s: не удалось разместить продажу ступени %d: %v", m.symbol, idx, err)
		return
	}
	m.state.ActiveSellID = order.OrderID
	m.state.ActiveSellPrice = price
	logger.Info("[GRID] %s: стоп-лимит на продажу ступени %d: stop=%.8f limit=%.8f qty=%.8f",
		m.symbol, idx, stop, limit, qty)
}
