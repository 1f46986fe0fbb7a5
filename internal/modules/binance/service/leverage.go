package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"perp_bot/internal/models"
	"perp_bot/pkg/logger"

	"github.com/bytedance/sonic"
)

// ModeResult — исход установки режима позиций.
type ModeResult int

const (
	ModeOk ModeResult = iota
	ModeAlreadySet
)

const codeNoNeedToChange = -4059

// PositionMode — включён ли hedge-режим (dual side).
func (c *Client) PositionMode(ctx context.Context) (bool, error) {
	body, err := c.sendRequest(ctx, http.MethodGet, "/fapi/v1/positionSide/dual", nil, true)
	if err != nil {
		return false, err
	}

	var resp positionModeResponse
	if err := sonic.Unmarshal(body, &resp); err != nil {
		return false, fmt.Errorf("decode position mode: %w", err)
	}
	return resp.DualSidePosition, nil
}

// SetPositionMode переключает hedge-режим. Ответ -4059 «менять нечего»
// ошибкой не считается.
func (c *Client) SetPositionMode(ctx context.Context, dual bool) (ModeResult, error) {
	params := url.Values{}
	params.Set("dualSidePosition", strconv.FormatBool(dual))

	_, err := c.sendRequest(ctx, http.MethodPost, "/fapi/v1/positionSide/dual", params, true)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Code == codeNoNeedToChange {
			return ModeAlreadySet, nil
		}
		return ModeOk, err
	}
	logger.Info("[GATEWAY] режим позиций: dualSide=%v", dual)
	return ModeOk, nil
}

// LeverageBrackets — ступени плеча инструмента.
func (c *Client) LeverageBrackets(ctx context.Context, symbol string) ([]models.LeverageBracket, error) {
	params := url.Values{}
	params.Set("symbol", symbol)

	body, err := c.sendRequest(ctx, http.MethodGet, "/fapi/v1/leverageBracket", params, true)
	if err != nil {
		return nil, err
	}

	var resp []leverageBracketResponse
	if err := sonic.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode leverage brackets: %w", err)
	}

	var brackets []models.LeverageBracket
	for _, r := range resp {
		if r.Symbol != symbol {
			continue
		}
		for _, b := range r.Brackets {
			brackets = append(brackets, models.LeverageBracket{
				Bracket:          b.Bracket,
				InitialLeverage:  b.InitialLeverage,
				NotionalCap:      b.NotionalCap,
				NotionalFloor:    b.NotionalFloor,
				MaintMarginRatio: b.MaintMarginRatio,
			})
		}
	}
	return brackets, nil
}

// MaxLeverage — максимально допустимое плечо инструмента.
// Если ступени недоступны, консервативные 20x.
func (c *Client) MaxLeverage(ctx context.Context, symbol string) int {
	brackets, err := c.LeverageBrackets(ctx, symbol)
	if err != nil || len(brackets) == 0 {
		logger.Warn("[GATEWAY] %s: ступени плеча недоступны, берём 20x", symbol)
		return 20
	}
	max := 0
	for _, b := range brackets {
		if b.InitialLeverage > max {
			max = b.InitialLeverage
		}
	}
	if max == 0 {
		return 20
	}
	return max
}

// SetLeverage выставляет плечо, предварительно обрезав его по максимуму
// инструмента. Если биржа всё равно отвергает значение, плечо делится
// пополам до первого принятого (минимум 1x). Возвращает фактическое плечо.
func (c *Client) SetLeverage(ctx context.Context, symbol string, leverage int) (int, error) {
	if leverage < 1 {
		leverage = 1
	}
	if max := c.MaxLeverage(ctx, symbol); leverage > max {
		logger.Warn("[GATEWAY] %s: плечо %dx выше максимума, обрезано до %dx", symbol, leverage, max)
		leverage = max
	}

	for {
		params := url.Values{}
		params.Set("symbol", symbol)
		params.Set("leverage", strconv.Itoa(leverage))

		body, err := c.sendRequest(ctx, http.MethodPost, "/fapi/v1/leverage", params, true)
		if err == nil {
			// биржа подтверждает фактическое плечо в ответе
			var resp leverageResponse
			if err := sonic.Unmarshal(body, &resp); err == nil && resp.Leverage > 0 {
				leverage = resp.Leverage
			}
			logger.Info("[GATEWAY] %s: плечо %dx", symbol, leverage)
			return leverage, nil
		}

		var apiErr *APIError
		if errors.As(err, &apiErr) && strings.Contains(apiErr.Message, "is not valid") && leverage > 1 {
			leverage /= 2
			if leverage < 1 {
				leverage = 1
			}
			logger.Warn("[GATEWAY] %s: плечо отвергнуто, пробуем %dx", symbol, leverage)
			continue
		}
		return 0, err
	}
}
