package grid

import (
	"context"
	"sync"
	"time"

	"perp_bot/internal/journal"
	"perp_bot/internal/modules/config"
	"perp_bot/internal/notify"
	"perp_bot/pkg/logger"
)

// Manager держит по машине на символ и следит, чтобы их горутины жили.
type Manager struct {
	cfg  *config.Config
	grid *config.GridConfig
	gw   Gateway
	n    notify.Notifier
	j    *journal.Journal

	mu       sync.Mutex
	lastBeat map[string]time.Time
	cancels  map[string]context.CancelFunc
}

func NewManager(cfg *config.Config, grid *config.GridConfig, gw Gateway, n notify.Notifier, j *journal.Journal) *Manager {
	return &Manager{
		cfg:      cfg,
		grid:     grid,
		gw:       gw,
		n:        n,
		j:        j,
		lastBeat: make(map[string]time.Time),
		cancels:  make(map[string]context.CancelFunc),
	}
}

// Run запускает машины и цикл надзора. Блокируется до отмены контекста.
func (m *Manager) Run(ctx context.Context, symbols []string) {
	for _, s := range symbols {
		m.startMachine(ctx, s)
	}
	m.n.Sendf(ctx, "📐 Сетка запущена: %d символов, интервал %s", len(symbols), m.cfg.CheckInterval)

	ticker := time.NewTicker(m.cfg.CheckInterval * 3)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.reviveDead(ctx)
		}
	}
}

func (m *Manager) startMachine(ctx context.Context, symbol string) {
	runCtx, cancel := context.WithCancel(ctx)
	m.mu.Lock()
	m.cancels[symbol] = cancel
	m.lastBeat[symbol] = time.Now()
	m.mu.Unlock()

	machine := NewMachine(symbol, m.cfg, m.grid, m.gw, m.n, m.j)
	go m.loop(runCtx, symbol, machine)
}

func (m *Manager) loop(ctx context.Context, symbol string, machine *Machine) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("[GRID] %s: паника в цикле: %v", symbol, r)
		}
	}()

	ticker := time.NewTicker(m.cfg.CheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := machine.Cycle(ctx); err != nil && ctx.Err() == nil {
				logger.Warn("[GRID] %s: цикл с ошибкой: %v", symbol, err)
			}
			m.mu.Lock()
			m.lastBeat[symbol] = time.Now()
			m.mu.Unlock()
		}
	}
}

// reviveDead перезапускает машины, не подававшие признаков жизни.
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
		logger.Warn("[GRID] %s: машина молчит, перезапуск", symbol)
		m.n.Sendf(ctx, "🔁 GRID %s: машина перезапущена", symbol)

		m.mu.Lock()
		if cancel, ok := m.cancels[symbol]; ok {
			cancel()
		}
		m.mu.Unlock()

		m.startMachine(ctx, symbol)
	}
}
