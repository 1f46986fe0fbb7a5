package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"perp_bot/pkg/logger"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
)

const wsBase = "wss://fstream.binance.com/ws"

// StreamMarkPrice подписывается на поток марк-цены символа и кормит
// свежими значениями тот же кэш, из которого читает MarkPrice.
// Канал закрывается при отмене контекста или исчерпании реконнектов.
func (c *Client) StreamMarkPrice(ctx context.Context, symbol string) <-chan float64 {
	ch := make(chan float64)
	go func() {
		defer close(ch)

		dialer := &websocket.Dialer{HandshakeTimeout: 10 * time.Second}
		url := fmt.Sprintf("%s/%s@markPrice@1s", wsBase, strings.ToLower(symbol))
		retry := 0

		for {
			conn, _, err := dialer.DialContext(ctx, url, nil)
			if err != nil {
				retry++
				if retry > 8 {
					logger.Error("[WS] %s: реконнекты исчерпаны: %v", symbol, err)
					return
				}
				if err := c.sleep(ctx, time.Duration(300*retry)*time.Millisecond); err != nil {
					return
				}
				continue
			}
			retry = 0
			logger.Info("[WS] %s: поток марк-цены подключён", symbol)

			// сервер шлёт ping-фреймы, штатный хендлер отвечает pong;
			// дедлайн чтения ловит мёртвое соединение
			c.readMarkPrices(ctx, conn, symbol, ch)
			_ = conn.Close()

			select {
			case <-ctx.Done():
				return
			default:
				if err := c.sleep(ctx, time.Second); err != nil {
					return
				}
			}
		}
	}()
	return ch
}

func (c *Client) readMarkPrices(ctx context.Context, conn *websocket.Conn, symbol string, out chan<- float64) {
	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	for {
		_ = conn.SetReadDeadline(time.Now().Add(90 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				logger.Warn("[WS] %s: соединение потеряно: %v", symbol, err)
			}
			return
		}

		var frame struct {
			Event     string `json:"e"`
			MarkPrice string `json:"p"`
		}
		if err := sonic.Unmarshal(msg, &frame); err != nil || frame.Event != "markPriceUpdate" {
			continue
		}
		price, err := strconv.ParseFloat(frame.MarkPrice, 64)
		if err != nil || price == 0 {
			continue
		}

		c.setCachedPrice(symbol, price)
		select {
		case out <- price:
		case <-ctx.Done():
			return
		default:
			// потребитель не успевает — цена уже в кэше, тик можно терять
		}
	}
}
