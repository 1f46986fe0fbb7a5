package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

const (
	configFilePathENV = "CONFIG_FILE"
	apiKeyENV         = "BINANCE_API_KEY"
	apiSecretENV      = "BINANCE_API_SECRET"
	tokenTelegramENV  = "TELEGRAM_TOKEN"
	chatTelegramENV   = "TELEGRAM_CHAT_ID"
	databaseDSN       = "DATABASE_DSN"
)

// Config ...
type Config struct {
	Binance struct {
		APIKey    string   `yaml:"api_key"`
		APISecret string   `yaml:"api_secret"`
		BaseURL   string   `yaml:"base_url"`
		Fallbacks []string `yaml:"fallback_urls"`
	} `yaml:"binance"`

	Telegram struct {
		Token  string `yaml:"token"`
		ChatID int64  `yaml:"chat_id"`
	} `yaml:"telegram"`

	DB      string `yaml:"db_dsn"`
	Service struct {
		HealthAddr string `yaml:"health_addr"`
		JaegerHost string `yaml:"jaeger_host"`
		JaegerPort int    `yaml:"jaeger_port"`
	} `yaml:"service"`

	// Какой символ торгуем; при UseHighVolumePairs список строится по 24h объёму.
	Symbol             string  `yaml:"symbol"`
	UseHighVolumePairs bool    `yaml:"use_high_volume_pairs"`
	MinVolumeUSDT      float64 `yaml:"min_volume_usdt"`
	MaxSymbols         int     `yaml:"max_symbols"`

	// Риск и сайзинг
	Leverage        int     `yaml:"leverage"`
	PositionSizePct float64 `yaml:"position_size_pct"` // % депозита на одну сделку
	MaxAccountUsage float64 `yaml:"max_account_usage"` // потолок суммарного нотионала, % от депозита
	MinNotional     float64 `yaml:"min_notional"`      // биржевой минимум заявки в USDT

	// Hedge-режим
	HedgeMode            bool    `yaml:"hedge_mode"`
	AllowBothPositions   bool    `yaml:"allow_both_positions"`
	AutoHedge            bool    `yaml:"auto_hedge"`
	HedgeProfitThreshold float64 `yaml:"hedge_profit_threshold"` // %
	HedgeLossThreshold   float64 `yaml:"hedge_loss_threshold"`   // %
	HedgeSizeRatio       float64 `yaml:"hedge_size_ratio"`       // доля от исходной позиции

	// TP/SL и комиссии
	TakeProfitPct      float64 `yaml:"take_profit_pct"`
	StopLossPct        float64 `yaml:"stop_loss_pct"`
	MakerFeeRate       float64 `yaml:"maker_fee_rate"`
	TakerFeeRate       float64 `yaml:"taker_fee_rate"`
	MinProfitAfterFees float64 `yaml:"min_profit_after_fees"` // %

	// Дневные лимиты
	DailyProfitTarget float64       `yaml:"daily_profit_target"` // %
	DailyLossLimit    float64       `yaml:"daily_loss_limit"`    // %
	PnLReportInterval time.Duration `yaml:"pnl_report_interval"`

	// Циклы
	CheckInterval   time.Duration `yaml:"check_interval"`
	RefreshInterval time.Duration `yaml:"refresh_interval"` // пересборка списка символов
	KlineInterval   string        `yaml:"kline_interval"`
	KlineLimit      int           `yaml:"kline_limit"`

	// HTTP
	RetryCount     int           `yaml:"retry_count"`
	RecvWindow     int64         `yaml:"recv_window"` // миллисекунды
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`

	// Grid-режим
	GridEnabled    bool   `yaml:"grid_enabled"`
	GridConfigFile string `yaml:"grid_config_file"`
}

func NewConfig() (*Config, error) {
	_ = godotenv.Load()

	config := Config{
		Symbol:             "BTCUSDT",
		UseHighVolumePairs: true,
		MinVolumeUSDT:      1_000_000,
		MaxSymbols:         20,

		Leverage:        10,
		PositionSizePct: 5.0,
		MaxAccountUsage: 60.0,
		MinNotional:     5.0,

		HedgeMode:            true,
		AllowBothPositions:   true,
		AutoHedge:            false,
		HedgeProfitThreshold: 1.0,
		HedgeLossThreshold:   1.0,
		HedgeSizeRatio:       0.5,

		TakeProfitPct:      0.6,
		StopLossPct:        0.3,
		MakerFeeRate:       0.0002,
		TakerFeeRate:       0.0004,
		MinProfitAfterFees: 0.05,

		DailyProfitTarget: 10.0,
		DailyLossLimit:    5.0,
		PnLReportInterval: time.Hour,

		CheckInterval:   30 * time.Second,
		RefreshInterval: 30 * time.Minute,
		KlineInterval:   "1m",
		KlineLimit:      100,

		RetryCount:     3,
		RecvWindow:     60000,
		ConnectTimeout: 10 * time.Second,
		ReadTimeout:    30 * time.Second,

		GridEnabled:    false,
		GridConfigFile: "configs/grid.yaml",
	}

	// YAML поверх дефолтов, env поверх YAML.
	configFileName := os.Getenv(configFilePathENV)
	if configFileName == "" {
		configFileName = "values_local.yaml"
	}
	if file, err := os.Open("configs/" + configFileName); err == nil {
		err = yaml.NewDecoder(file).Decode(&config)
		_ = file.Close()
		if err != nil {
			return nil, fmt.Errorf("decode config file: %w", err)
		}
	}
	config.applyEnv()

	if config.Binance.BaseURL == "" {
		config.Binance.BaseURL = "https://fapi.binance.com"
	}
	if config.Binance.APIKey == "" || config.Binance.APISecret == "" {
		return nil, fmt.Errorf("binance api credentials are required")
	}
	if config.MaxAccountUsage <= 0 || config.MaxAccountUsage > 100 {
		return nil, fmt.Errorf("max_account_usage must be in (0, 100], got %.2f", config.MaxAccountUsage)
	}
	if config.RetryCount <= 0 {
		config.RetryCount = 3
	}

	return &config, nil
}

// applyEnv накатывает переменные окружения поверх текущих значений.
// Незаданная переменная ничего не трогает.
func (c *Config) applyEnv() {
	if v := os.Getenv(apiKeyENV); v != "" {
		c.Binance.APIKey = v
	}
	if v := os.Getenv(apiSecretENV); v != "" {
		c.Binance.APISecret = v
	}
	if v := os.Getenv(tokenTelegramENV); v != "" {
		c.Telegram.Token = v
	}
	if v := os.Getenv(chatTelegramENV); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.Telegram.ChatID = id
		}
	}
	if v := os.Getenv(databaseDSN); v != "" {
		c.DB = v
	}

	c.Symbol = getenvDefault("TRADING_SYMBOL", c.Symbol)
	c.UseHighVolumePairs = boolFromEnv("USE_HIGH_VOLUME_PAIRS", c.UseHighVolumePairs)
	c.MinVolumeUSDT = floatFromEnv("MIN_VOLUME_USDT", c.MinVolumeUSDT)
	c.MaxSymbols = intFromEnv("MAX_SYMBOLS", c.MaxSymbols)

	c.Leverage = intFromEnv("LEVERAGE", c.Leverage)
	c.PositionSizePct = floatFromEnv("POSITION_SIZE_PERCENT", c.PositionSizePct)
	c.MaxAccountUsage = floatFromEnv("MAX_ACCOUNT_USAGE", c.MaxAccountUsage)
	c.MinNotional = floatFromEnv("MIN_NOTIONAL", c.MinNotional)

	c.HedgeMode = boolFromEnv("HEDGE_MODE", c.HedgeMode)
	c.AllowBothPositions = boolFromEnv("ALLOW_BOTH_POSITIONS", c.AllowBothPositions)
	c.AutoHedge = boolFromEnv("AUTO_HEDGE", c.AutoHedge)
	c.HedgeProfitThreshold = floatFromEnv("AUTO_HEDGE_PROFIT_THRESHOLD", c.HedgeProfitThreshold)
	c.HedgeLossThreshold = floatFromEnv("AUTO_HEDGE_LOSS_THRESHOLD", c.HedgeLossThreshold)
	c.HedgeSizeRatio = floatFromEnv("HEDGE_POSITION_SIZE_RATIO", c.HedgeSizeRatio)

	c.TakeProfitPct = floatFromEnv("TAKE_PROFIT_PERCENT", c.TakeProfitPct)
	c.StopLossPct = floatFromEnv("STOP_LOSS_PERCENT", c.StopLossPct)
	c.MakerFeeRate = floatFromEnv("MAKER_FEE_RATE", c.MakerFeeRate)
	c.TakerFeeRate = floatFromEnv("TAKER_FEE_RATE", c.TakerFeeRate)
	c.MinProfitAfterFees = floatFromEnv("MIN_PROFIT_AFTER_FEES", c.MinProfitAfterFees)

	c.DailyProfitTarget = floatFromEnv("DAILY_PROFIT_TARGET", c.DailyProfitTarget)
	c.DailyLossLimit = floatFromEnv("DAILY_LOSS_LIMIT", c.DailyLossLimit)
	c.PnLReportInterval = durationFromEnv("PNL_REPORT_INTERVAL", c.PnLReportInterval)

	c.CheckInterval = durationFromEnv("CHECK_INTERVAL", c.CheckInterval)
	c.RefreshInterval = durationFromEnv("REFRESH_INTERVAL", c.RefreshInterval)
	c.KlineInterval = getenvDefault("KLINE_INTERVAL", c.KlineInterval)
	c.KlineLimit = intFromEnv("KLINE_LIMIT", c.KlineLimit)

	c.RetryCount = intFromEnv("API_RETRY_COUNT", c.RetryCount)
	c.RecvWindow = int64(intFromEnv("RECV_WINDOW", int(c.RecvWindow)))
	c.ConnectTimeout = durationFromEnv("API_CONNECT_TIMEOUT", c.ConnectTimeout)
	c.ReadTimeout = durationFromEnv("API_TIMEOUT", c.ReadTimeout)

	c.GridEnabled = boolFromEnv("GRID_TRADING_ENABLED", c.GridEnabled)
	c.GridConfigFile = getenvDefault("GRID_CONFIG_FILE", c.GridConfigFile)
}

func intFromEnv(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func floatFromEnv(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func boolFromEnv(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		switch strings.ToUpper(v) {
		case "1", "TRUE":
			return true
		case "0", "FALSE":
			return false
		}
	}
	return def
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func durationFromEnv(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
