package grid

import (
	"context"
	"math"
	"os"
	"testing"
	"time"

	"perp_bot/internal/journal"
	"perp_bot/internal/models"
	"perp_bot/internal/modules/config"
	"perp_bot/internal/notify"
	"perp_bot/pkg/logger"
)

func TestMain(m *testing.M) {
	if err := logger.Init(); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

type placedCall struct {
	side  models.OrderSide
	qty   float64
	stop  float64
	limit float64
}

// fakeGateway имитирует биржу для одной машины.
type fakeGateway struct {
	price  float64
	held   float64
	trades []models.Trade

	placed    []placedCall
	canceled  []int64
	nextID    int64
	failPlace error
}

func (f *fakeGateway) LastPrice(context.Context, string) (float64, error) { return f.price, nil }

func (f *fakeGateway) OpenPositions(context.Context, string) ([]models.Position, error) {
	if f.held == 0 {
		return nil, nil
	}
	return []models.Position{{Symbol: "TESTUSDT", Side: models.SideLong, Amount: f.held, EntryPrice: f.price}}, nil
}

func (f *fakeGateway) PlaceStopLimitOrder(_ context.Context, _ string, side models.OrderSide, _ models.PositionSide, qty, stop, limit float64) (models.PlacedOrder, error) {
	if f.failPlace != nil {
		return models.PlacedOrder{}, f.failPlace
	}
	f.nextID++
	f.placed = append(f.placed, placedCall{side: side, qty: qty, stop: stop, limit: limit})
	return models.PlacedOrder{OrderID: f.nextID, Status: "NEW"}, nil
}

func (f *fakeGateway) CancelOrder(_ context.Context, _ string, id int64) error {
	f.canceled = append(f.canceled, id)
	return nil
}

func (f *fakeGateway) RecentTrades(context.Context, string, time.Time, int) ([]models.Trade, error) {
	return f.trades, nil
}

func (f *fakeGateway) RoundQuantity(_ string, qty float64) float64 {
	return math.Floor(qty*1000) / 1000
}

func (f *fakeGateway) RoundPrice(_ string, price float64) float64 {
	return math.Round(price*100) / 100
}

func testGridConfig() *config.GridConfig {
	return &config.GridConfig{
		BuyTriggers:           []float64{1.0, 0.8},
		BuyStops:              []float64{1.05, 1.03},
		BuyLimits:             []float64{1.051, 1.031},
		BuyBudgetUSDT:         []float64{50, 100},
		SellTriggers:          []float64{1.05, 1.08},
		SellStops:             []float64{0.97, 0.95},
		SellLimits:            []float64{0.969, 0.949},
		SellFractions:         []float64{0.5, 1.0},
		DustThresholdUSDT:     10.0,
		SkipFirstBuyAboveUSDT: 10.0,
	}
}

func newTestMachine(gw *fakeGateway) *Machine {
	cfg := &config.Config{MinNotional: 5.0}
	return NewMachine("TESTUSDT", cfg, testGridConfig(), gw, notify.Stdout{}, journal.New(nil))
}

func TestFirstBuyAtLowestPrice(t *testing.T) {
	gw := &fakeGateway{price: 100}
	m := newTestMachine(gw)

	if err := m.Cycle(context.Background()); err != nil {
		t.Fatalf("cycle: %v", err)
	}

	if len(gw.placed) != 1 {
		t.Fatalf("placed: got %d want 1", len(gw.placed))
	}
	p := gw.placed[0]
	if p.side != models.OrderBuy {
		t.Fatalf("side: got %s", p.side)
	}
	if p.stop != 105 || p.limit != 105.1 {
		t.Fatalf("stop/limit: got %f/%f want 105/105.1", p.stop, p.limit)
	}
	// бюджет 50 USDT по лимиту 105.1
	if want := math.Floor(50/105.1*1000) / 1000; p.qty != want {
		t.Fatalf("qty: got %f want %f", p.qty, want)
	}
	if m.State().ActiveBuyID == 0 {
		t.Fatal("active buy id not recorded")
	}
}

func TestFirstBuySkippedWhenAlreadyHolding(t *testing.T) {
	// монеты уже на 20 USDT — grid 0 не размещается
	gw := &fakeGateway{price: 100, held: 0.2}
	m := newTestMachine(gw)

	if err := m.Cycle(context.Background()); err != nil {
		t.Fatalf("cycle: %v", err)
	}
	for _, p := range gw.placed {
		if p.side == models.OrderBuy {
			t.Fatalf("grid 0 buy must be skipped: %+v", p)
		}
	}
}

func TestBuyFillAdvancesAndAverages(t *testing.T) {
	gw := &fakeGateway{price: 100}
	m := newTestMachine(gw)

	// размещаем первую покупку
	if err := m.Cycle(context.Background()); err != nil {
		t.Fatalf("cycle: %v", err)
	}
	buyID := m.State().ActiveBuyID

	// исполнение по 105
	gw.held = 0.475
	gw.trades = []models.Trade{{Symbol: "TESTUSDT", OrderID: buyID, Price: 105, Quantity: 0.475, Side: models.OrderBuy, Time: time.Now().UnixMilli()}}
	if err := m.Cycle(context.Background()); err != nil {
		t.Fatalf("cycle: %v", err)
	}

	st := m.State()
	if st.LastBuyPrice != 105 {
		t.Fatalf("last buy: got %f want 105", st.LastBuyPrice)
	}
	if st.BuyIndex != 1 {
		t.Fatalf("buy index: got %d want 1", st.BuyIndex)
	}
	if st.ActiveBuyID != 0 {
		t.Fatal("active buy id must be cleared after fill")
	}
}

func TestSecondBuyTriggersBelowAverage(t *testing.T) {
	gw := &fakeGateway{price: 100}
	m := newTestMachine(gw)
	m.state.LastBuyPrice = 105
	m.state.BuyIndex = 1
	gw.held = 0.475
	gw.trades = nil

	// 100 > 105*0.8 = 84 — ступень 1 не срабатывает
	if err := m.Cycle(context.Background()); err != nil {
		t.Fatalf("cycle: %v", err)
	}
	for _, p := range gw.placed {
		if p.side == models.OrderBuy {
			t.Fatalf("buy above trigger must not fire: %+v", p)
		}
	}

	// падение до 84 — срабатывает
	gw.price = 84
	gw.placed = nil
	if err := m.Cycle(context.Background()); err != nil {
		t.Fatalf("cycle: %v", err)
	}
	var buys int
	for _, p := range gw.placed {
		if p.side == models.OrderBuy {
			buys++
		}
	}
	if buys != 1 {
		t.Fatalf("buys at trigger: got %d want 1", buys)
	}
}

func TestStaleBuyCanceledOnDrift(t *testing.T) {
	gw := &fakeGateway{price: 100}
	m := newTestMachine(gw)

	if err := m.Cycle(context.Background()); err != nil {
		t.Fatalf("cycle: %v", err)
	}
	buyID := m.State().ActiveBuyID

	// цена ушла вниз больше чем на 1% — заявка отменяется и
	// размещается заново от новой цены
	gw.price = 98
	if err := m.Cycle(context.Background()); err != nil {
		t.Fatalf("cycle: %v", err)
	}
	if len(gw.canceled) != 1 || gw.canceled[0] != buyID {
		t.Fatalf("canceled: got %v want [%d]", gw.canceled, buyID)
	}
	if m.State().ActiveBuyID == buyID {
		t.Fatal("stale order id must be replaced")
	}
}

func TestSellTriggerAndFraction(t *testing.T) {
	gw := &fakeGateway{price: 111, held: 0.5}
	m := newTestMachine(gw)
	m.state.LastBuyPrice = 105
	m.state.BuyIndex = 1
	m.state.ObservePrice(100)

	// 111 >= 105*1.05 = 110.25 — продаём половину остатка
	if err := m.Cycle(context.Background()); err != nil {
		t.Fatalf("cycle: %v", err)
	}

	var sell *placedCall
	for i := range gw.placed {
		if gw.placed[i].side == models.OrderSell {
			sell = &gw.placed[i]
		}
	}
	if sell == nil {
		t.Fatal("sell not placed")
	}
	if sell.qty != 0.25 {
		t.Fatalf("sell qty: got %f want 0.25", sell.qty)
	}
	if sell.stop != math.Round(111*0.97*100)/100 {
		t.Fatalf("sell stop: got %f", sell.stop)
	}
}

func TestFullLiquidationResets(t *testing.T) {
	gw := &fakeGateway{price: 120, held: 0}
	m := newTestMachine(gw)
	m.state.LastBuyPrice = 105
	m.state.BuyIndex = 1
	m.state.SellIndex = 1

	if err := m.Cycle(context.Background()); err != nil {
		t.Fatalf("cycle: %v", err)
	}
	st := m.State()
	if !st.Idle() || st.BuyIndex != 0 || st.SellIndex != 0 {
		t.Fatalf("state not reset: %+v", st)
	}
}

func TestDustRemoval(t *testing.T) {
	// остаток стоит 5 USDT при пороге 10 — средняя цена забывается
	gw := &fakeGateway{price: 100, held: 0.05}
	m := newTestMachine(gw)
	m.state.LastBuyPrice = 105
	m.state.SellIndex = 1

	if err := m.Cycle(context.Background()); err != nil {
		t.Fatalf("cycle: %v", err)
	}
	st := m.State()
	if !st.Idle() || st.SellIndex != 0 {
		t.Fatalf("dust not removed: %+v", st)
	}
}

func TestPlacementFailureDoesNotAdvance(t *testing.T) {
	gw := &fakeGateway{price: 100, failPlace: context.DeadlineExceeded}
	m := newTestMachine(gw)

	if err := m.Cycle(context.Background()); err != nil {
		t.Fatalf("cycle must swallow placement failure: %v", err)
	}
	if m.State().ActiveBuyID != 0 || m.State().BuyIndex != 0 {
		t.Fatalf("state mutated on failure: %+v", m.State())
	}
}
