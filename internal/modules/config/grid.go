package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// GridConfig — параметры сеточной стратегии. Все массивы выровнены
// по уровням: i-й элемент каждого массива описывает i-й уровень.
type GridConfig struct {
	// Покупки: grid 0 триггерится от минимума цены, последующие —
	// от средней цены покупки * BuyTriggers[i].
	BuyTriggers   []float64 `mapstructure:"buy_triggers"`
	BuyStops      []float64 `mapstructure:"buy_stops"`      // stop = цена * BuyStops[i]
	BuyLimits     []float64 `mapstructure:"buy_limits"`     // limit = цена * BuyLimits[i]
	BuyBudgetUSDT []float64 `mapstructure:"buy_budget_usdt"` // бюджет уровня в USDT

	// Продажи: триггер = средняя цена покупки * SellTriggers[i].
	SellTriggers  []float64 `mapstructure:"sell_triggers"`
	SellStops     []float64 `mapstructure:"sell_stops"`
	SellLimits    []float64 `mapstructure:"sell_limits"`
	SellFractions []float64 `mapstructure:"sell_fractions"` // доля остатка монеты

	// Ниже этой стоимости монеты позиция считается пылью:
	// средняя цена покупки забывается, sell-индекс сбрасывается.
	DustThresholdUSDT float64 `mapstructure:"dust_threshold_usdt"`

	// Порог, выше которого grid 0 не размещается (монета уже куплена).
	SkipFirstBuyAboveUSDT float64 `mapstructure:"skip_first_buy_above_usdt"`
}

// BuyLevels — количество уровней покупки.
func (g *GridConfig) BuyLevels() int { return len(g.BuyTriggers) }

// SellLevels — количество уровней продажи.
func (g *GridConfig) SellLevels() int { return len(g.SellTriggers) }

// NewGridConfig читает файл сетки через viper. Файл отдельный от основного
// конфига: уровни правят чаще, чем ключи и лимиты.
func NewGridConfig(cfg *Config) (*GridConfig, error) {
	v := viper.New()
	base := filepath.Base(cfg.GridConfigFile)
	v.SetConfigName(strings.TrimSuffix(base, filepath.Ext(base)))
	v.SetConfigType("yaml")
	v.AddConfigPath(filepath.Dir(cfg.GridConfigFile))

	v.SetDefault("buy_triggers", []float64{1.0, 0.8})
	v.SetDefault("buy_stops", []float64{1.05, 1.03})
	v.SetDefault("buy_limits", []float64{1.051, 1.031})
	v.SetDefault("buy_budget_usdt", []float64{50, 100})
	v.SetDefault("sell_triggers", []float64{1.05, 1.08})
	v.SetDefault("sell_stops", []float64{0.97, 0.95})
	v.SetDefault("sell_limits", []float64{0.969, 0.949})
	v.SetDefault("sell_fractions", []float64{0.5, 1.0})
	v.SetDefault("dust_threshold_usdt", 10.0)
	v.SetDefault("skip_first_buy_above_usdt", 10.0)

	if err := v.ReadInConfig(); err != nil {
		// нет файла — работаем на дефолтах
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read grid config: %w", err)
		}
	}

	var g GridConfig
	if err := v.Unmarshal(&g); err != nil {
		return nil, fmt.Errorf("unmarshal grid config: %w", err)
	}
	return &g, g.validate()
}

func (g *GridConfig) validate() error {
	n := len(g.BuyTriggers)
	if n == 0 {
		return fmt.Errorf("grid: at least one buy level required")
	}
	if len(g.BuyStops) != n || len(g.BuyLimits) != n || len(g.BuyBudgetUSDT) != n {
		return fmt.Errorf("grid: buy arrays must have equal length (%d)", n)
	}
	m := len(g.SellTriggers)
	if m == 0 {
		return fmt.Errorf("grid: at least one sell level required")
	}
	if len(g.SellStops) != m || len(g.SellLimits) != m || len(g.SellFractions) != m {
		return fmt.Errorf("grid: sell arrays must have equal length (%d)", m)
	}
	for i, f := range g.SellFractions {
		if f <= 0 || f > 1 {
			return fmt.Errorf("grid: sell_fractions[%d]=%.4f out of (0, 1]", i, f)
		}
	}
	return nil
}
