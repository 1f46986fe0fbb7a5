package service

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"perp_bot/internal/models"
	"perp_bot/pkg/logger"

	"github.com/bytedance/sonic"
)

const (
	priceTTL   = 5 * time.Second
	accountTTL = 10 * time.Second
	volumeTTL  = 30 * time.Minute
)

// klineFallbacks — цепочка таймфреймов от мелкого к крупному.
// Если биржа не отдаёт запрошенный интервал, идём по цепочке дальше.
var klineFallbacks = []string{"1m", "3m", "5m", "15m", "30m", "1h", "2h", "4h", "6h", "8h", "12h", "1d"}

var intervalDurations = map[string]time.Duration{
	"1m":  time.Minute,
	"3m":  3 * time.Minute,
	"5m":  5 * time.Minute,
	"15m": 15 * time.Minute,
	"30m": 30 * time.Minute,
	"1h":  time.Hour,
	"2h":  2 * time.Hour,
	"4h":  4 * time.Hour,
	"6h":  6 * time.Hour,
	"8h":  8 * time.Hour,
	"12h": 12 * time.Hour,
	"1d":  24 * time.Hour,
}

// intervalTTL — свечи кэшируются на длину собственного интервала.
func intervalTTL(interval string) time.Duration {
	if d, ok := intervalDurations[interval]; ok {
		return d
	}
	return time.Minute
}

// RefreshExchangeInfo перечитывает метаданные точности всех инструментов.
func (c *Client) RefreshExchangeInfo(ctx context.Context) error {
	body, err := c.sendRequest(ctx, http.MethodGet, "/fapi/v1/exchangeInfo", nil, false)
	if err != nil {
		return err
	}

	var resp exchangeInfoResponse
	if err := sonic.Unmarshal(body, &resp); err != nil {
		return fmt.Errorf("decode exchangeInfo: %w", err)
	}

	infos := make(map[string]models.SymbolInfo, len(resp.Symbols))
	for _, s := range resp.Symbols {
		infos[s.Symbol] = models.SymbolInfo{
			Symbol:            s.Symbol,
			PricePrecision:    s.PricePrecision,
			QuantityPrecision: s.QuantityPrecision,
			Status:            s.Status,
		}
	}

	c.symMu.Lock()
	c.symbols = infos
	c.symMu.Unlock()

	logger.Info("[GATEWAY] exchangeInfo обновлён: %d инструментов", len(infos))
	return nil
}

// LastPrice — последняя цена сделки, кэш 5 секунд.
func (c *Client) LastPrice(ctx context.Context, symbol string) (float64, error) {
	key := "price:" + symbol
	if v, ok := c.cacheGet("price", key); ok {
		return v.(float64), nil
	}

	params := url.Values{}
	params.Set("symbol", symbol)
	body, err := c.sendRequest(ctx, http.MethodGet, "/fapi/v1/ticker/price", params, false)
	if err != nil {
		return 0, err
	}

	var resp tickerPriceResponse
	if err := sonic.Unmarshal(body, &resp); err != nil {
		return 0, fmt.Errorf("decode ticker price: %w", err)
	}
	price, err := strconv.ParseFloat(resp.Price, 64)
	if err != nil {
		return 0, fmt.Errorf("parse price %q: %w", resp.Price, err)
	}

	c.cache.set(key, price, priceTTL)
	return price, nil
}

// MarkPrice — марк-цена (premiumIndex). По ней считается uPnL и
// срабатывают стопы, поэтому не подменяется last price.
func (c *Client) MarkPrice(ctx context.Context, symbol string) (float64, error) {
	key := "mark:" + symbol
	if v, ok := c.cacheGet("price", key); ok {
		return v.(float64), nil
	}

	params := url.Values{}
	params.Set("symbol", symbol)
	body, err := c.sendRequest(ctx, http.MethodGet, "/fapi/v1/premiumIndex", params, false)
	if err != nil {
		return 0, err
	}

	var resp premiumIndexResponse
	if err := sonic.Unmarshal(body, &resp); err != nil {
		return 0, fmt.Errorf("decode premiumIndex: %w", err)
	}
	price, err := strconv.ParseFloat(resp.MarkPrice, 64)
	if err != nil {
		return 0, fmt.Errorf("parse mark price %q: %w", resp.MarkPrice, err)
	}

	c.cache.set(key, price, priceTTL)
	return price, nil
}

// setCachedPrice подкладывает цену из websocket-стрима в тот же кэш,
// из которого читает MarkPrice.
func (c *Client) setCachedPrice(symbol string, price float64) {
	c.cache.set("mark:"+symbol, price, priceTTL)
}

// Klines загружает свечи. Если интервал с нужным лимитом недоступен,
// пробует уменьшенный лимит, затем более крупные таймфреймы по цепочке.
func (c *Client) Klines(ctx context.Context, symbol, interval string, limit int) ([]models.Kline, error) {
	key := fmt.Sprintf("klines:%s:%s:%d", symbol, interval, limit)
	if v, ok := c.cacheGet("klines", key); ok {
		return v.([]models.Kline), nil
	}

	klines, err := c.fetchKlines(ctx, symbol, interval, limit)
	if err == nil && len(klines) > 0 {
		c.cache.set(key, klines, intervalTTL(interval))
		return klines, nil
	}

	// сначала тот же интервал с лимитом поменьше
	if limit > 100 {
		if klines, err2 := c.fetchKlines(ctx, symbol, interval, 100); err2 == nil && len(klines) > 0 {
			logger.Warn("[GATEWAY] %s %s: полный лимит %d недоступен, взяли 100 свечей", symbol, interval, limit)
			c.cache.set(key, klines, intervalTTL(interval))
			return klines, nil
		}
	}

	// затем более крупные таймфреймы
	for _, fb := range klineFallbacks {
		if intervalDurations[fb] <= intervalDurations[interval] {
			continue
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		klines, err2 := c.fetchKlines(ctx, symbol, fb, limit)
		if err2 == nil && len(klines) > 0 {
			logger.Warn("[GATEWAY] %s: интервал %s недоступен, используем %s", symbol, interval, fb)
			c.cache.set(key, klines, intervalTTL(fb))
			return klines, nil
		}
	}

	if err == nil {
		err = fmt.Errorf("klines %s %s: empty response", symbol, interval)
	}
	return nil, err
}

func (c *Client) fetchKlines(ctx context.Context, symbol, interval string, limit int) ([]models.Kline, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("interval", interval)
	params.Set("limit", strconv.Itoa(limit))

	body, err := c.sendRequest(ctx, http.MethodGet, "/fapi/v1/klines", params, false)
	if err != nil {
		return nil, err
	}

	// свечи приходят массивом массивов со смешанными типами
	var raw [][]interface{}
	if err := sonic.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode klines: %w", err)
	}

	klines := make([]models.Kline, 0, len(raw))
	for _, row := range raw {
		if len(row) < 7 {
			continue
		}
		k := models.Kline{
			OpenTime:  int64(asFloat(row[0])),
			Open:      asFloat(row[1]),
			High:      asFloat(row[2]),
			Low:       asFloat(row[3]),
			Close:     asFloat(row[4]),
			Volume:    asFloat(row[5]),
			CloseTime: int64(asFloat(row[6])),
		}
		klines = append(klines, k)
	}
	return klines, nil
}

func asFloat(v interface{}) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case string:
		f, _ := strconv.ParseFloat(t, 64)
		return f
	default:
		return 0
	}
}

// HighVolumeSymbols — торгуемые USDT-пары, отсортированные по суточному
// обороту, не ниже minVolume, не больше maxSymbols. Кэш 30 минут.
func (c *Client) HighVolumeSymbols(ctx context.Context, minVolume float64, maxSymbols int) ([]string, error) {
	key := fmt.Sprintf("volume:%.0f:%d", minVolume, maxSymbols)
	if v, ok := c.cacheGet("volume", key); ok {
		return v.([]string), nil
	}

	body, err := c.sendRequest(ctx, http.MethodGet, "/fapi/v1/ticker/24hr", nil, false)
	if err != nil {
		return nil, err
	}

	var tickers []ticker24hResponse
	if err := sonic.Unmarshal(body, &tickers); err != nil {
		return nil, fmt.Errorf("decode 24hr tickers: %w", err)
	}

	type symVolume struct {
		symbol string
		volume float64
	}
	candidates := make([]symVolume, 0, len(tickers))
	for _, t := range tickers {
		if len(t.Symbol) <= 4 || t.Symbol[len(t.Symbol)-4:] != "USDT" {
			continue
		}
		if info, ok := c.SymbolInfo(t.Symbol); ok && info.Status != "TRADING" {
			continue
		}
		vol, err := strconv.ParseFloat(t.QuoteVolume, 64)
		if err != nil || vol < minVolume {
			continue
		}
		candidates = append(candidates, symVolume{symbol: t.Symbol, volume: vol})
	}

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].volume > candidates[j].volume })
	if maxSymbols > 0 && len(candidates) > maxSymbols {
		candidates = candidates[:maxSymbols]
	}

	symbols := make([]string, len(candidates))
	for i, cand := range candidates {
		symbols[i] = cand.symbol
	}

	c.cache.set(key, symbols, volumeTTL)
	return symbols, nil
}
