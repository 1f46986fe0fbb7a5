package service

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"perp_bot/internal/models"
	"perp_bot/internal/modules/metrics"
	"perp_bot/pkg/logger"

	"github.com/bytedance/sonic"
)

// PlaceMarketOrder — рыночная заявка.
func (c *Client) PlaceMarketOrder(ctx context.Context, symbol string, side models.OrderSide, posSide models.PositionSide, qty float64) (models.PlacedOrder, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("side", string(side))
	params.Set("positionSide", string(posSide))
	params.Set("type", string(models.OrderMarket))
	params.Set("quantity", c.formatQuantity(symbol, qty))
	return c.placeOrder(ctx, params)
}

// PlaceLimitOrder — лимитная заявка GTC.
func (c *Client) PlaceLimitOrder(ctx context.Context, symbol string, side models.OrderSide, posSide models.PositionSide, qty, price float64) (models.PlacedOrder, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("side", string(side))
	params.Set("positionSide", string(posSide))
	params.Set("type", string(models.OrderLimit))
	params.Set("timeInForce", "GTC")
	params.Set("quantity", c.formatQuantity(symbol, qty))
	params.Set("price", c.formatPrice(symbol, price))
	return c.placeOrder(ctx, params)
}

// PlaceStopLimitOrder — стоп-лимит по марк-цене: триггер stopPrice,
// исполнение лимиткой price.
func (c *Client) PlaceStopLimitOrder(ctx context.Context, symbol string, side models.OrderSide, posSide models.PositionSide, qty, stopPrice, price float64) (models.PlacedOrder, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("side", string(side))
	params.Set("positionSide", string(posSide))
	params.Set("type", string(models.OrderStopLimit))
	params.Set("timeInForce", "GTC")
	params.Set("quantity", c.formatQuantity(symbol, qty))
	params.Set("stopPrice", c.formatPrice(symbol, stopPrice))
	params.Set("price", c.formatPrice(symbol, price))
	params.Set("workingType", "MARK_PRICE")
	return c.placeOrder(ctx, params)
}

// PlaceTakeProfitOrder — TAKE_PROFIT_MARKET по марк-цене, закрывает
// указанное количество позиции posSide.
func (c *Client) PlaceTakeProfitOrder(ctx context.Context, symbol string, posSide models.PositionSide, qty, stopPrice float64) (models.PlacedOrder, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("side", string(closingSide(posSide)))
	params.Set("positionSide", string(posSide))
	params.Set("type", string(models.OrderTakeProfitMarket))
	params.Set("timeInForce", "GTC")
	params.Set("quantity", c.formatQuantity(symbol, qty))
	params.Set("stopPrice", c.formatPrice(symbol, stopPrice))
	params.Set("workingType", "MARK_PRICE")
	params.Set("priceProtect", "TRUE")
	return c.placeOrder(ctx, params)
}

// PlaceStopLossOrder — STOP_MARKET по марк-цене.
func (c *Client) PlaceStopLossOrder(ctx context.Context, symbol string, posSide models.PositionSide, qty, stopPrice float64) (models.PlacedOrder, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("side", string(closingSide(posSide)))
	params.Set("positionSide", string(posSide))
	params.Set("type", string(models.OrderStopMarket))
	params.Set("timeInForce", "GTC")
	params.Set("quantity", c.formatQuantity(symbol, qty))
	params.Set("stopPrice", c.formatPrice(symbol, stopPrice))
	params.Set("workingType", "MARK_PRICE")
	params.Set("priceProtect", "TRUE")
	return c.placeOrder(ctx, params)
}

// closingSide — сторона заявки, закрывающей позицию posSide.
func closingSide(posSide models.PositionSide) models.OrderSide {
	if posSide == models.SideLong {
		return models.OrderSell
	}
	return models.OrderBuy
}

func (c *Client) placeOrder(ctx context.Context, params url.Values) (models.PlacedOrder, error) {
	body, err := c.sendRequest(ctx, http.MethodPost, "/fapi/v1/order", params, true)
	if err != nil {
		return models.PlacedOrder{}, err
	}

	var resp orderResponse
	if err := sonic.Unmarshal(body, &resp); err != nil {
		return models.PlacedOrder{}, fmt.Errorf("decode order: %w", err)
	}
	order := toPlacedOrder(resp)

	metrics.OrdersPlaced.WithLabelValues(string(order.Type)).Inc()
	logger.Info("[ORDER] %s %s %s qty=%s id=%d", order.Symbol, order.Side, order.Type,
		c.formatQuantity(order.Symbol, order.Quantity), order.OrderID)
	return order, nil
}

// CancelOrder отменяет заявку по её бирживому ID.
func (c *Client) CancelOrder(ctx context.Context, symbol string, orderID int64) error {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("orderId", strconv.FormatInt(orderID, 10))
	_, err := c.sendRequest(ctx, http.MethodDelete, "/fapi/v1/order", params, true)
	if err != nil {
		return err
	}
	logger.Info("[ORDER] %s: заявка %d отменена", symbol, orderID)
	return nil
}

// GetOrder — текущее состояние заявки.
func (c *Client) GetOrder(ctx context.Context, symbol string, orderID int64) (models.PlacedOrder, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("orderId", strconv.FormatInt(orderID, 10))

	body, err := c.sendRequest(ctx, http.MethodGet, "/fapi/v1/order", params, true)
	if err != nil {
		return models.PlacedOrder{}, err
	}

	var resp orderResponse
	if err := sonic.Unmarshal(body, &resp); err != nil {
		return models.PlacedOrder{}, fmt.Errorf("decode order: %w", err)
	}
	return toPlacedOrder(resp), nil
}

// OpenOrders — открытые заявки по символу.
func (c *Client) OpenOrders(ctx context.Context, symbol string) ([]models.PlacedOrder, error) {
	params := url.Values{}
	params.Set("symbol", symbol)

	body, err := c.sendRequest(ctx, http.MethodGet, "/fapi/v1/openOrders", params, true)
	if err != nil {
		return nil, err
	}

	var resp []orderResponse
	if err := sonic.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode open orders: %w", err)
	}

	orders := make([]models.PlacedOrder, 0, len(resp))
	for _, r := range resp {
		orders = append(orders, toPlacedOrder(r))
	}
	return orders, nil
}

// RecentTrades — наши исполнения по символу начиная с since.
func (c *Client) RecentTrades(ctx context.Context, symbol string, since time.Time, limit int) ([]models.Trade, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	if !since.IsZero() {
		params.Set("startTime", strconv.FormatInt(since.UnixMilli(), 10))
	}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}

	body, err := c.sendRequest(ctx, http.MethodGet, "/fapi/v1/userTrades", params, true)
	if err != nil {
		return nil, err
	}

	var resp []userTradeResponse
	if err := sonic.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode user trades: %w", err)
	}

	trades := make([]models.Trade, 0, len(resp))
	for _, r := range resp {
		trades = append(trades, models.Trade{
			Symbol:   r.Symbol,
			OrderID:  r.OrderID,
			Price:    parseFloat(r.Price),
			Quantity: parseFloat(r.Qty),
			Side:     models.OrderSide(r.Side),
			Time:     r.Time,
		})
	}
	return trades, nil
}

func toPlacedOrder(r orderResponse) models.PlacedOrder {
	return models.PlacedOrder{
		OrderID:       r.OrderID,
		ClientOrderID: r.ClientOrderID,
		Symbol:        r.Symbol,
		Side:          models.OrderSide(r.Side),
		PositionSide:  models.PositionSide(r.PositionSide),
		Type:          models.OrderType(r.Type),
		Status:        r.Status,
		Quantity:      parseFloat(r.OrigQty),
		Price:         parseFloat(r.Price),
		StopPrice:     parseFloat(r.StopPrice),
	}
}
