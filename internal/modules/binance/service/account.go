package service

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"perp_bot/internal/models"

	"github.com/bytedance/sonic"
)

// AccountSnapshot — баланс и позиции, кэш 10 секунд.
func (c *Client) AccountSnapshot(ctx context.Context) (models.AccountSnapshot, error) {
	if v, ok := c.cacheGet("account", "account"); ok {
		return v.(models.AccountSnapshot), nil
	}

	body, err := c.sendRequest(ctx, http.MethodGet, "/fapi/v2/account", nil, true)
	if err != nil {
		return models.AccountSnapshot{}, err
	}

	var resp accountResponse
	if err := sonic.Unmarshal(body, &resp); err != nil {
		return models.AccountSnapshot{}, fmt.Errorf("decode account: %w", err)
	}

	snap := models.AccountSnapshot{
		TotalWalletBalance: parseFloat(resp.TotalWalletBalance),
		AvailableBalance:   parseFloat(resp.AvailableBalance),
	}
	for _, a := range resp.Assets {
		bal := parseFloat(a.WalletBalance)
		if bal == 0 {
			continue
		}
		snap.Assets = append(snap.Assets, models.AssetBalance{Asset: a.Asset, WalletBalance: bal})
	}
	for _, p := range resp.Positions {
		lev, _ := strconv.Atoi(p.Leverage)
		snap.Positions = append(snap.Positions, models.Position{
			Symbol:     p.Symbol,
			Side:       models.PositionSide(p.PositionSide),
			Amount:     parseFloat(p.PositionAmt),
			EntryPrice: parseFloat(p.EntryPrice),
			Leverage:   lev,
			MarginType: p.MarginType,
		})
	}

	c.cache.set("account", snap, accountTTL)
	return snap, nil
}

// OpenPositions — открытые позиции по символу (пустой — по всем).
func (c *Client) OpenPositions(ctx context.Context, symbol string) ([]models.Position, error) {
	snap, err := c.AccountSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	return snap.OpenPositions(symbol), nil
}

// PositionPnL считает нереализованный результат позиции по марк-цене.
// Процент — от маржи, то есть ценовое движение умножается на плечо.
func (c *Client) PositionPnL(ctx context.Context, pos models.Position) (models.PositionPnL, error) {
	mark, err := c.MarkPrice(ctx, pos.Symbol)
	if err != nil {
		return models.PositionPnL{}, err
	}
	return computePnL(pos, mark), nil
}

func computePnL(pos models.Position, mark float64) models.PositionPnL {
	amt := pos.Amount
	if amt < 0 {
		amt = -amt
	}

	pnl := models.PositionPnL{
		Symbol:     pos.Symbol,
		Side:       pos.ResolvedSide(),
		EntryPrice: pos.EntryPrice,
		MarkPrice:  mark,
		Amount:     pos.Amount,
		Leverage:   pos.Leverage,
		MarginType: pos.MarginType,
	}
	if pos.EntryPrice == 0 || amt == 0 {
		return pnl
	}

	lev := float64(pos.Leverage)
	if lev == 0 {
		lev = 1
	}

	if pnl.Side == models.SideLong {
		pnl.Unrealized = (mark - pos.EntryPrice) * amt
		pnl.UnrealizedPct = (mark/pos.EntryPrice - 1) * 100 * lev
	} else {
		pnl.Unrealized = (pos.EntryPrice - mark) * amt
		pnl.UnrealizedPct = (1 - mark/pos.EntryPrice) * 100 * lev
	}
	return pnl
}

// CombinedPnL — результат по обеим сторонам символа. Общий процент
// взвешивается по нотионалу сторон.
func (c *Client) CombinedPnL(ctx context.Context, symbol string) (models.CombinedPnL, error) {
	positions, err := c.OpenPositions(ctx, symbol)
	if err != nil {
		return models.CombinedPnL{}, err
	}

	combined := models.CombinedPnL{Symbol: symbol}
	if len(positions) == 0 {
		return combined, nil
	}

	mark, err := c.MarkPrice(ctx, symbol)
	if err != nil {
		return models.CombinedPnL{}, err
	}

	var totalNotional, weightedPct float64
	for _, pos := range positions {
		pnl := computePnL(pos, mark)
		combined.Unrealized += pnl.Unrealized

		notional := pos.Notional()
		totalNotional += notional
		weightedPct += pnl.UnrealizedPct * notional

		p := pnl
		if pnl.Side == models.SideLong {
			combined.Long = &p
		} else {
			combined.Short = &p
		}
	}
	if totalNotional > 0 {
		combined.UnrealizedPct = weightedPct / totalNotional
	}
	combined.Hedged = combined.Long != nil && combined.Short != nil
	return combined, nil
}

// IncomeHistory — записи доходов/расходов начиная с момента since.
func (c *Client) IncomeHistory(ctx context.Context, symbol string, since time.Time, limit int) ([]models.IncomeRecord, error) {
	params := url.Values{}
	if symbol != "" {
		params.Set("symbol", symbol)
	}
	params.Set("startTime", strconv.FormatInt(since.UnixMilli(), 10))
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}

	body, err := c.sendRequest(ctx, http.MethodGet, "/fapi/v1/income", params, true)
	if err != nil {
		return nil, err
	}

	var resp []incomeResponse
	if err := sonic.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode income: %w", err)
	}

	records := make([]models.IncomeRecord, 0, len(resp))
	for _, r := range resp {
		records = append(records, models.IncomeRecord{
			Symbol:     r.Symbol,
			IncomeType: r.IncomeType,
			Income:     parseFloat(r.Income),
			Time:       r.Time,
		})
	}
	return records, nil
}

// DailyPnL агрегирует income history с начала суток UTC:
// реализованный результат, фандинг, комиссии, win rate.
// Переводы между кошельками в результат не входят.
func (c *Client) DailyPnL(ctx context.Context, symbol string) (models.PnLSummary, error) {
	dayStart := c.now().UTC().Truncate(24 * time.Hour)
	records, err := c.IncomeHistory(ctx, symbol, dayStart, 1000)
	if err != nil {
		return models.PnLSummary{}, err
	}

	var s models.PnLSummary
	for _, r := range records {
		switch r.IncomeType {
		case "REALIZED_PNL":
			s.RealizedPnL += r.Income
			s.TradesCount++
			if r.Income > 0 {
				s.WinningTrades++
			} else if r.Income < 0 {
				s.LosingTrades++
			}
		case "FUNDING_FEE":
			s.FundingFee += r.Income
		case "COMMISSION":
			s.Commission += r.Income
		case "TRANSFER":
			// движение средств, не торговый результат
		default:
			s.Other += r.Income
		}
	}
	s.TotalPnL = s.RealizedPnL + s.FundingFee + s.Commission + s.Other

	if s.TradesCount > 0 {
		s.WinRate = float64(s.WinningTrades) / float64(s.TradesCount) * 100
	}

	snap, err := c.AccountSnapshot(ctx)
	if err == nil && snap.TotalWalletBalance > 0 {
		s.PnLPercent = s.TotalPnL / snap.TotalWalletBalance * 100
	}
	return s, nil
}

func parseFloat(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}
