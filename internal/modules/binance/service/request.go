package service

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"perp_bot/internal/modules/metrics"
	"perp_bot/pkg/logger"

	"github.com/bytedance/sonic"
	"github.com/opentracing/opentracing-go"
)

// APIError — структурированная ошибка биржи {code, msg}.
type APIError struct {
	Status  int
	Code    int64
	Message string
}

func (e *APIError) Error() string {
	if e.Code != 0 || e.Message != "" {
		return fmt.Sprintf("api error %d: %s (http %d)", e.Code, e.Message, e.Status)
	}
	return fmt.Sprintf("api error: http %d", e.Status)
}

func parseAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{Status: status}
	var payload struct {
		Code int64  `json:"code"`
		Msg  string `json:"msg"`
	}
	if err := sonic.Unmarshal(body, &payload); err == nil {
		apiErr.Code = payload.Code
		apiErr.Message = payload.Msg
	}
	if apiErr.Message == "" {
		apiErr.Message = string(body)
	}
	return apiErr
}

// backoffWait — пауза перед следующей попыткой. status == 0 означает
// сетевую ошибку. Для 429 учитывается Retry-After сервера.
func backoffWait(status, attempt int, retryAfter time.Duration) time.Duration {
	base := time.Duration(1<<uint(attempt)) * time.Second
	switch {
	case status == http.StatusTooManyRequests:
		w := base + 5*time.Second
		if retryAfter > w {
			w = retryAfter
		}
		return w
	case status >= 500 || status == 0:
		return base + 1*time.Second
	default:
		return base + 2*time.Second
	}
}

func retryAfterHeader(resp *http.Response) time.Duration {
	if v := resp.Header.Get("Retry-After"); v != "" {
		if sec, err := strconv.Atoi(v); err == nil && sec > 0 {
			return time.Duration(sec) * time.Second
		}
	}
	return 0
}

// sendRequest выполняет логическую операцию поверх текущего URL,
// при исчерпании ретраев уходит на резервные URL по очереди.
func (c *Client) sendRequest(ctx context.Context, method, endpoint string, params url.Values, signed bool) ([]byte, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "binance"+endpoint)
	defer span.Finish()

	for {
		body, err := c.tryEndpoint(ctx, method, endpoint, params, signed)
		if err == nil {
			metrics.APIRequests.WithLabelValues(endpoint, "ok").Inc()
			return body, nil
		}
		if ctx.Err() != nil {
			metrics.APIRequests.WithLabelValues(endpoint, "canceled").Inc()
			return nil, err
		}
		if !c.switchEndpoint() {
			metrics.APIRequests.WithLabelValues(endpoint, "error").Inc()
			return nil, err
		}
		metrics.APIFailovers.Inc()
		logger.Warn("[GATEWAY] %s %s: %v — переключение на резервный URL %s", method, endpoint, err, c.currentBase())
	}
}

// tryEndpoint — до retryCount попыток против текущего базового URL.
func (c *Client) tryEndpoint(ctx context.Context, method, endpoint string, params url.Values, signed bool) ([]byte, error) {
	var lastErr error

	for attempt := 0; attempt < c.retryCount; attempt++ {
		if attempt > 0 {
			metrics.APIRetries.Inc()
		}

		req, err := c.buildRequest(ctx, method, endpoint, params, signed)
		if err != nil {
			return nil, err
		}

		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("request %s %s: %w", method, endpoint, err)
			if attempt < c.retryCount-1 {
				wait := backoffWait(0, attempt, 0)
				logger.Warn("[GATEWAY] %s %s: сетевая ошибка, повтор через %s: %v", method, endpoint, wait, err)
				if err := c.sleep(ctx, wait); err != nil {
					return nil, err
				}
			}
			continue
		}

		body, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			lastErr = fmt.Errorf("read response %s: %w", endpoint, readErr)
			continue
		}

		if resp.StatusCode/100 == 2 {
			return body, nil
		}

		lastErr = parseAPIError(resp.StatusCode, body)

		if attempt < c.retryCount-1 {
			wait := backoffWait(resp.StatusCode, attempt, retryAfterHeader(resp))
			switch {
			case resp.StatusCode == http.StatusTooManyRequests:
				logger.Warn("[GATEWAY] rate limit на %s, ждём %s", endpoint, wait)
			case resp.StatusCode >= 500:
				logger.Warn("[GATEWAY] http %d на %s, ждём %s", resp.StatusCode, endpoint, wait)
			default:
				logger.Warn("[GATEWAY] %s: %v, повтор через %s (попытка %d/%d)", endpoint, lastErr, wait, attempt+1, c.retryCount)
			}
			if err := c.sleep(ctx, wait); err != nil {
				return nil, err
			}
		}
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("%s %s: retries exhausted", method, endpoint)
	}
	return nil, lastErr
}

// buildRequest собирает запрос; для подписанных — timestamp, recvWindow
// и HMAC-SHA256 подпись каноничной query-строки.
func (c *Client) buildRequest(ctx context.Context, method, endpoint string, params url.Values, signed bool) (*http.Request, error) {
	q := url.Values{}
	for k, vs := range params {
		for _, v := range vs {
			q.Add(k, v)
		}
	}

	query := q.Encode()
	if signed {
		q.Set("timestamp", strconv.FormatInt(c.timestamp(), 10))
		q.Set("recvWindow", strconv.FormatInt(c.recvWindow, 10))
		query = q.Encode() // Encode сортирует ключи — каноничная форма
		query += "&signature=" + c.sign(query)
	}

	u := c.currentBase() + endpoint
	if query != "" {
		u += "?" + query
	}

	req, err := http.NewRequestWithContext(ctx, method, u, nil)
	if err != nil {
		return nil, fmt.Errorf("build request %s: %w", endpoint, err)
	}
	req.Header.Set("X-MBX-APIKEY", c.apiKey)
	return req, nil
}

func dialContext(timeout time.Duration) func(ctx context.Context, network, addr string) (net.Conn, error) {
	d := &net.Dialer{Timeout: timeout}
	return d.DialContext
}
