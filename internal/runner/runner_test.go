package runner

import (
	"context"
	"errors"
	"math"
	"os"
	"sync"
	"testing"
	"time"

	"perp_bot/internal/journal"
	"perp_bot/internal/models"
	"perp_bot/internal/modules/config"
	"perp_bot/internal/risk"
	"perp_bot/pkg/logger"
)

func TestMain(m *testing.M) {
	if err := logger.Init(); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

// fakeExchange закрывает интерфейсы раннера, риск-движка и хеджа.
type fakeExchange struct {
	snap    models.AccountSnapshot
	mark    float64
	pnl     models.PnLSummary
	klines  []models.Kline
	combine models.CombinedPnL

	entries  int
	tps      int
	sls      int
	failTP   bool
	lastQty  float64
	lastSide models.PositionSide
}

func (f *fakeExchange) Klines(context.Context, string, string, int) ([]models.Kline, error) {
	return f.klines, nil
}

func (f *fakeExchange) MarkPrice(context.Context, string) (float64, error) { return f.mark, nil }

func (f *fakeExchange) OpenPositions(_ context.Context, symbol string) ([]models.Position, error) {
	return f.snap.OpenPositions(symbol), nil
}

func (f *fakeExchange) AccountSnapshot(context.Context) (models.AccountSnapshot, error) {
	return f.snap, nil
}

func (f *fakeExchange) DailyPnL(context.Context, string) (models.PnLSummary, error) {
	return f.pnl, nil
}

func (f *fakeExchange) CombinedPnL(context.Context, string) (models.CombinedPnL, error) {
	return f.combine, nil
}

func (f *fakeExchange) PlaceMarketOrder(_ context.Context, symbol string, side models.OrderSide, posSide models.PositionSide, qty float64) (models.PlacedOrder, error) {
	f.entries++
	f.lastQty = qty
	f.lastSide = posSide
	return models.PlacedOrder{OrderID: int64(f.entries), Symbol: symbol, Side: side, PositionSide: posSide, Quantity: qty, Status: "FILLED"}, nil
}

func (f *fakeExchange) PlaceTakeProfitOrder(context.Context, string, models.PositionSide, float64, float64) (models.PlacedOrder, error) {
	if f.failTP {
		return models.PlacedOrder{}, errors.New("rejected")
	}
	f.tps++
	return models.PlacedOrder{}, nil
}

func (f *fakeExchange) PlaceStopLossOrder(context.Context, string, models.PositionSide, float64, float64) (models.PlacedOrder, error) {
	f.sls++
	return models.PlacedOrder{}, nil
}

func (f *fakeExchange) RoundQuantity(_ string, qty float64) float64 {
	return math.Round(qty*1000) / 1000
}

func (f *fakeExchange) RoundQuantityUp(_ string, qty float64) float64 {
	return math.Ceil(qty*1000) / 1000
}

func (f *fakeExchange) RoundPrice(_ string, price float64) float64 {
	return math.Round(price*100) / 100
}

// fakeNotifier копит сообщения.
type fakeNotifier struct {
	mu   sync.Mutex
	msgs []string
}

func (n *fakeNotifier) Send(_ context.Context, msg string) {
	n.mu.Lock()
	n.msgs = append(n.msgs, msg)
	n.mu.Unlock()
}

func (n *fakeNotifier) Sendf(ctx context.Context, format string, args ...any) {
	n.Send(ctx, format)
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Leverage = 10
	cfg.PositionSizePct = 5.0
	cfg.MaxAccountUsage = 60.0
	cfg.MinNotional = 5.0
	cfg.TakeProfitPct = 0.6
	cfg.StopLossPct = 0.3
	cfg.TakerFeeRate = 0.0004
	cfg.MinProfitAfterFees = 0.05
	cfg.AllowBothPositions = true
	cfg.AutoHedge = false
	cfg.DailyProfitTarget = 10.0
	cfg.DailyLossLimit = 5.0
	cfg.PnLReportInterval = time.Hour
	cfg.KlineInterval = "1m"
	cfg.KlineLimit = 100
	return cfg
}

func newTestRunner(cfg *config.Config, gw *fakeExchange, signal SignalFunc) (*Runner, *fakeNotifier) {
	n := &fakeNotifier{}
	engine := risk.NewEngine(cfg, gw)
	hedge := risk.NewController(cfg, gw)
	r := New("BTCUSDT", cfg, gw, engine, hedge, signal, n, journal.New(nil))
	return r, n
}

func TestCycleEntryWithProtectiveOrders(t *testing.T) {
	gw := &fakeExchange{
		snap: models.AccountSnapshot{TotalWalletBalance: 10000, AvailableBalance: 10000},
		mark: 50000,
	}
	long := func([]models.Kline) models.Signal { return models.SignalLong }
	r, _ := newTestRunner(testConfig(), gw, long)

	if err := r.Cycle(context.Background()); err != nil {
		t.Fatalf("cycle: %v", err)
	}
	if gw.entries != 1 || gw.tps != 1 || gw.sls != 1 {
		t.Fatalf("orders: entries=%d tps=%d sls=%d, want 1/1/1", gw.entries, gw.tps, gw.sls)
	}
}

func TestCycleEntrySurvivesTPFailure(t *testing.T) {
	gw := &fakeExchange{
		snap:   models.AccountSnapshot{TotalWalletBalance: 10000, AvailableBalance: 10000},
		mark:   50000,
		failTP: true,
	}
	long := func([]models.Kline) models.Signal { return models.SignalLong }
	r, _ := newTestRunner(testConfig(), gw, long)

	// вход остаётся, стоп всё равно ставится
	if err := r.Cycle(context.Background()); err != nil {
		t.Fatalf("cycle must survive tp failure: %v", err)
	}
	if gw.entries != 1 || gw.sls != 1 {
		t.Fatalf("orders: entries=%d sls=%d, want 1/1", gw.entries, gw.sls)
	}
}

func TestCycleNoSignalNoOrders(t *testing.T) {
	gw := &fakeExchange{
		snap: models.AccountSnapshot{TotalWalletBalance: 10000, AvailableBalance: 10000},
		mark: 50000,
	}
	r, _ := newTestRunner(testConfig(), gw, NoSignal)

	if err := r.Cycle(context.Background()); err != nil {
		t.Fatalf("cycle: %v", err)
	}
	if gw.entries != 0 {
		t.Fatalf("entries without signal: got %d", gw.entries)
	}
}

func TestDailyLossLimitSuspends(t *testing.T) {
	gw := &fakeExchange{
		snap: models.AccountSnapshot{TotalWalletBalance: 10000, AvailableBalance: 10000},
		mark: 50000,
		pnl:  models.PnLSummary{TotalPnL: -600, PnLPercent: -6.0},
	}
	long := func([]models.Kline) models.Signal { return models.SignalLong }
	r, _ := newTestRunner(testConfig(), gw, long)

	if err := r.Cycle(context.Background()); err != nil {
		t.Fatalf("cycle: %v", err)
	}
	if !r.Suspended() {
		t.Fatal("loss limit must suspend trading")
	}
	if gw.entries != 0 {
		t.Fatalf("suspended symbol placed %d entries", gw.entries)
	}

	// следующий цикл тоже без сделок
	if err := r.Cycle(context.Background()); err != nil {
		t.Fatalf("cycle: %v", err)
	}
	if gw.entries != 0 {
		t.Fatal("suspension not sticky")
	}
}

func TestDailyProfitTargetSuspends(t *testing.T) {
	gw := &fakeExchange{
		snap: models.AccountSnapshot{TotalWalletBalance: 10000, AvailableBalance: 10000},
		mark: 50000,
		pnl:  models.PnLSummary{TotalPnL: 1100, PnLPercent: 11.0},
	}
	long := func([]models.Kline) models.Signal { return models.SignalLong }
	r, _ := newTestRunner(testConfig(), gw, long)

	_ = r.Cycle(context.Background())
	if !r.Suspended() {
		t.Fatal("profit target must suspend trading")
	}
}

func TestDayRolloverResumesTrading(t *testing.T) {
	gw := &fakeExchange{
		snap: models.AccountSnapshot{TotalWalletBalance: 10000, AvailableBalance: 10000},
		mark: 50000,
		pnl:  models.PnLSummary{PnLPercent: -6.0},
	}
	r, _ := newTestRunner(testConfig(), gw, NoSignal)

	now := time.Date(2024, 3, 10, 15, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return now }

	_ = r.Cycle(context.Background())
	if !r.Suspended() {
		t.Fatal("expected suspension")
	}

	// новые сутки: подвес снимается, дневной PnL обнулился
	now = now.Add(24 * time.Hour)
	gw.pnl = models.PnLSummary{}
	_ = r.Cycle(context.Background())
	if r.Suspended() {
		t.Fatal("rollover must lift suspension")
	}
}

func TestHedgeOverridesSignal(t *testing.T) {
	cfg := testConfig()
	cfg.AutoHedge = true
	cfg.HedgeProfitThreshold = 1.0
	cfg.HedgeLossThreshold = 1.0

	gw := &fakeExchange{
		snap: models.AccountSnapshot{TotalWalletBalance: 10000, AvailableBalance: 10000},
		mark: 50000,
		combine: models.CombinedPnL{
			Symbol: "BTCUSDT",
			Long:   &models.PositionPnL{Symbol: "BTCUSDT", Side: models.SideLong, Amount: 0.01, UnrealizedPct: -2.0},
		},
	}
	// сигнал зовёт в лонг, но хедж требует шорт
	long := func([]models.Kline) models.Signal { return models.SignalLong }
	r, _ := newTestRunner(cfg, gw, long)

	side, hedged, ok, err := r.decideSide(context.Background())
	if err != nil {
		t.Fatalf("decideSide: %v", err)
	}
	if !ok || side != models.SideShort {
		t.Fatalf("hedge must override: got %s, %v", side, ok)
	}
	if hedged == nil || hedged.Long == nil {
		t.Fatal("hedge decision must carry the original position pnl")
	}
}

func TestHedgeEntrySizedFromOriginalPosition(t *testing.T) {
	cfg := testConfig()
	cfg.AutoHedge = true
	cfg.HedgeProfitThreshold = 1.0
	cfg.HedgeLossThreshold = 1.0
	cfg.HedgeSizeRatio = 0.3

	gw := &fakeExchange{
		snap: models.AccountSnapshot{TotalWalletBalance: 10000, AvailableBalance: 10000},
		mark: 50000,
		combine: models.CombinedPnL{
			Symbol: "BTCUSDT",
			Long:   &models.PositionPnL{Symbol: "BTCUSDT", Side: models.SideLong, Amount: 0.01, UnrealizedPct: -2.0},
		},
	}
	r, _ := newTestRunner(cfg, gw, NoSignal)

	if err := r.Cycle(context.Background()); err != nil {
		t.Fatalf("cycle: %v", err)
	}
	if gw.entries != 1 || gw.lastSide != models.SideShort {
		t.Fatalf("hedge entry: entries=%d side=%s", gw.entries, gw.lastSide)
	}
	// объём — доля исходной позиции, а не расчёт от баланса (тот дал бы 0.005)
	if gw.lastQty != 0.003 {
		t.Fatalf("hedge qty: got %.6f want 0.003", gw.lastQty)
	}
	if gw.lastQty > 0.01 {
		t.Fatalf("hedge qty %.6f exceeds original position 0.01", gw.lastQty)
	}
}

func TestHedgeEntryCappedAtOriginal(t *testing.T) {
	cfg := testConfig()
	cfg.AutoHedge = true
	cfg.HedgeProfitThreshold = 1.0
	cfg.HedgeLossThreshold = 1.0
	cfg.HedgeSizeRatio = 0.5

	// исходная позиция крошечная: подтяжка к минимальному нотионалу
	// не должна перерасти её саму
	gw := &fakeExchange{
		snap: models.AccountSnapshot{TotalWalletBalance: 10000, AvailableBalance: 10000},
		mark: 50000,
		combine: models.CombinedPnL{
			Symbol: "BTCUSDT",
			Long:   &models.PositionPnL{Symbol: "BTCUSDT", Side: models.SideLong, Amount: 0.001, UnrealizedPct: -2.0},
		},
	}
	r, _ := newTestRunner(cfg, gw, NoSignal)

	if err := r.Cycle(context.Background()); err != nil {
		t.Fatalf("cycle: %v", err)
	}
	if gw.entries != 1 {
		t.Fatalf("entries: got %d want 1", gw.entries)
	}
	if gw.lastQty > 0.001 {
		t.Fatalf("hedge qty %.6f exceeds original position 0.001", gw.lastQty)
	}
}
