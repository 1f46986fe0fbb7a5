package runner

import (
	"context"
	"fmt"
	"sync"
	"time"

	"perp_bot/internal/journal"
	"perp_bot/internal/modules/binance/service"
	"perp_bot/internal/modules/config"
	healthsvc "perp_bot/internal/modules/health/service"
	"perp_bot/internal/notify"
	"perp_bot/internal/risk"
	"perp_bot/pkg/logger"
)

// ManagerGateway — Gateway плюс то, что нужно только надзору:
// подготовка аккаунта и пересборка списка символов.
type ManagerGateway interface {
	Gateway
	HighVolumeSymbols(ctx context.Context, minVolume float64, maxSymbols int) ([]string, error)
	SetPositionMode(ctx context.Context, dual bool) (service.ModeResult, error)
	SetLeverage(ctx context.Context, symbol string, leverage int) (int, error)
	RefreshExchangeInfo(ctx context.Context) error
	StreamMarkPrice(ctx context.Context, symbol string) <-chan float64
}

// Manager запускает по раннеру на символ, перезапускает умершие
// и периодически пересобирает торгуемый список по обороту.
type Manager struct {
	cfg    *config.Config
	gw     ManagerGateway
	engine *risk.Engine
	hedge  *risk.Controller
	signal SignalFunc
	n      notify.Notifier
	j      *journal.Journal
	state  *healthsvc.State

	mu       sync.Mutex
	cancels  map[string]context.CancelFunc
	lastBeat map[string]time.Time
}

func NewManager(cfg *config.Config, gw ManagerGateway, engine *risk.Engine, hedge *risk.Controller, signal SignalFunc, n notify.Notifier, j *journal.Journal, state *healthsvc.State) *Manager {
	return &Manager{
		cfg:      cfg,
		gw:       gw,
		engine:   engine,
		hedge:    hedge,
		signal:   signal,
		n:        n,
		j:        j,
		state:    state,
		cancels:  make(map[string]context.CancelFunc),
		lastBeat: make(map[string]time.Time),
	}
}

// Run готовит аккаунт, стартует раннеры и блокируется в цикле надзора.
func (m *Manager) Run(ctx context.Context) error {
	if err := m.prepareAccount(ctx); err != nil {
		return err
	}

	symbols, err := m.tradedSymbols(ctx)
	if err != nil {
		return err
	}
	if len(symbols) == 0 {
		return fmt.Errorf("manager: no symbols to trade")
	}

	for _, s := range symbols {
		m.startRunner(ctx, s)
	}
	m.state.SetReady(true)
	m.n.Sendf(ctx, "🚀 Бот запущен: %d символов, цикл %s, плечо %dx", len(symbols), m.cfg.CheckInterval, m.cfg.Leverage)

	supervise := time.NewTicker(m.cfg.CheckInterval * 3)
	refresh := time.NewTicker(m.cfg.RefreshInterval)
	defer supervise.Stop()
	defer refresh.Stop()

	for {
		select {
		case <-ctx.Done():
			m.state.SetReady(false)
			return ctx.Err()
		case <-supervise.C:
			m.reviveDead(ctx)
		case <-refresh.C:
			if m.cfg.UseHighVolumePairs {
				m.refreshSymbols(ctx)
			}
		}
	}
}

// prepareAccount — режим позиций и плечо до первого входа.
func (m *Manager) prepareAccount(ctx context.Context) error {
	if m.cfg.HedgeMode {
		result, err := m.gw.SetPositionMode(ctx, true)
		if err != nil {
			return fmt.Errorf("manager: position mode: %w", err)
		}
		if result == service.ModeAlreadySet {
			logger.Info("[RUNNER] hedge-режим уже включён")
		}
	}
	return nil
}

func (m *Manager) tradedSymbols(ctx context.Context) ([]string, error) {
	if !m.cfg.UseHighVolumePairs {
		return []string{m.cfg.Symbol}, nil
	}
	symbols, err := m.gw.HighVolumeSymbols(ctx, m.cfg.MinVolumeUSDT, m.cfg.MaxSymbols)
	if err != nil {
		return nil, fmt.Errorf("manager: volume ranking: %w", err)
	}
	if len(symbols) == 0 {
		logger.Warn("[RUNNER] ранжирование по объёму пустое, торгуем %s", m.cfg.Symbol)
		return []string{m.cfg.Symbol}, nil
	}
	return symbols, nil
}

func (m *Manager) startRunner(ctx context.Context, symbol string) {
	if _, err := m.gw.SetLeverage(ctx, symbol, m.cfg.Leverage); err != nil {
		logger.Warn("[RUNNER] %s: плечо не установлено, символ пропущен: %v", symbol, err)
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.mu.Lock()
	m.cancels[symbol] = cancel
	m.lastBeat[symbol] = time.Now()
	m.state.SetActiveRunners(len(m.cancels))
	m.mu.Unlock()

	// поток марк-цены греет кэш, сами тики раннеру не нужны
	go func() {
		for range m.gw.StreamMarkPrice(runCtx, symbol) {
		}
	}()

	r := New(symbol, m.cfg, m.gw, m.engine, m.hedge, m.signal, m.n, m.j)
	go m.loop(runCtx, symbol, r)
}

func (m *Manager) stopRunner(symbol string) {
	m.mu.Lock()
	if cancel, ok := m.cancels[symbol]; ok {
		cancel()
		delete(m.cancels, symbol)
		delete(m.lastBeat, symbol)
	}
	m.state.SetActiveRunners(len(m.cancels))
	m.mu.Unlock()
}

func (m *Manager) loop(ctx context.Context, symbol string, r *Runner) {
	defer func() {
		if p := recover(); p != nil {
			logger.Error("[RUNNER] %s: паника в цикле: %v", symbol, p)
		}
	}()

	ticker := time.NewTicker(m.cfg.CheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.Cycle(ctx); err != nil && ctx.Err() == nil {
				logger.Warn("[RUNNER] %s: цикл с ошибкой: %v", symbol, err)
			}
			m.mu.Lock()
			m.lastBeat[symbol] = time.Now()
			m.mu.Unlock()
			m.state.TouchCycle(time.Now())
			m.state.SetSuspended(r.Suspended())
		}
	}
}

// reviveDead перезапускает раннеры без сердцебиения.
func (m *Manager) reviveDead(ctx context.Context) {
	deadline := time.Now().Add(-m.cfg.CheckInterval * 5)

	m.mu.Lock()
	var dead []string
	for symbol, beat := range m.lastBeat {
		if beat.Before(deadline) {
			dead = append(dead, symbol)
		}
	}
	m.mu.Unlock()

	for _, symbol := range dead {
		logger.Warn("[RUNNER] %s: раннер молчит, перезапуск", symbol)
		m.n.Sendf(ctx, "🔁 %s: раннер перезапущен", symbol)
		m.stopRunner(symbol)
		m.startRunner(ctx, symbol)
	}
}

// refreshSymbols пересобирает список по обороту: новые символы
// стартуют, выбывшие останавливаются.
func (m *Manager) refreshSymbols(ctx context.Context) {
	fresh, err := m.gw.HighVolumeSymbols(ctx, m.cfg.MinVolumeUSDT, m.cfg.MaxSymbols)
	if err != nil || len(fresh) == 0 {
		logger.Warn("[RUNNER] пересборка символов не удалась: %v", err)
		return
	}
	if err := m.gw.RefreshExchangeInfo(ctx); err != nil {
		logger.Warn("[RUNNER] обновление exchangeInfo: %v", err)
	}

	want := make(map[string]struct{}, len(fresh))
	for _, s := range fresh {
		want[s] = struct{}{}
	}

	m.mu.Lock()
	var stale []string
	for symbol := range m.cancels {
		if _, ok := want[symbol]; !ok {
			stale = append(stale, symbol)
		}
	}
	running := make(map[string]struct{}, len(m.cancels))
	for symbol := range m.cancels {
		running[symbol] = struct{}{}
	}
	m.mu.Unlock()

	for _, symbol := range stale {
		logger.Info("[RUNNER] %s: выбыл из списка по объёму, останавливаем", symbol)
		m.stopRunner(symbol)
	}
	for _, symbol := range fresh {
		if _, ok := running[symbol]; !ok {
			logger.Info("[RUNNER] %s: новый символ в списке по объёму", symbol)
			m.startRunner(ctx, symbol)
		}
	}
}
