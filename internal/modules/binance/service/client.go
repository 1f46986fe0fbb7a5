package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"sync"
	"time"

	"perp_bot/internal/models"
	"perp_bot/internal/modules/config"

	"github.com/shopspring/decimal"
)

// Client — шлюз к фьючерсному REST API: подпись, ретраи, failover,
// кэш идемпотентных GET. О стратегии ничего не знает.
type Client struct {
	apiKey    string
	apiSecret string

	http       *http.Client
	retryCount int
	recvWindow int64

	mu        sync.Mutex // baseURL + fallbacks
	baseURL   string
	fallbacks []string

	cache *ttlCache

	symMu   sync.RWMutex
	symbols map[string]models.SymbolInfo

	// подменяются в тестах
	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
}

func NewClient(cfg *config.Config) *Client {
	fallbacks := make([]string, len(cfg.Binance.Fallbacks))
	copy(fallbacks, cfg.Binance.Fallbacks)

	return &Client{
		apiKey:    cfg.Binance.APIKey,
		apiSecret: cfg.Binance.APISecret,
		http: &http.Client{
			Timeout: cfg.ReadTimeout,
			Transport: &http.Transport{
				// отдельный connect-таймаут: read-таймаут на клиенте выше
				DialContext:         dialContext(cfg.ConnectTimeout),
				TLSHandshakeTimeout: cfg.ConnectTimeout,
			},
		},
		retryCount: cfg.RetryCount,
		recvWindow: cfg.RecvWindow,
		baseURL:    cfg.Binance.BaseURL,
		fallbacks:  fallbacks,
		cache:      newTTLCache(time.Now),
		symbols:    make(map[string]models.SymbolInfo),
		sleep:      sleepCtx,
		now:        time.Now,
	}
}

func (c *Client) sign(query string) string {
	h := hmac.New(sha256.New, []byte(c.apiSecret))
	h.Write([]byte(query))
	return hex.EncodeToString(h.Sum(nil))
}

func (c *Client) timestamp() int64 {
	return c.now().UnixMilli()
}

func (c *Client) currentBase() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.baseURL
}

// switchEndpoint переключает клиента на следующий резервный URL.
// false — резервов больше нет.
func (c *Client) switchEndpoint() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.fallbacks) == 0 {
		return false
	}
	c.baseURL = c.fallbacks[0]
	c.fallbacks = c.fallbacks[1:]
	return true
}

// SymbolInfo — метаданные точности, загруженные RefreshExchangeInfo.
func (c *Client) SymbolInfo(symbol string) (models.SymbolInfo, bool) {
	c.symMu.RLock()
	defer c.symMu.RUnlock()
	info, ok := c.symbols[symbol]
	return info, ok
}

func (c *Client) pricePrecision(symbol string) int32 {
	if info, ok := c.SymbolInfo(symbol); ok {
		return info.PricePrecision
	}
	return 2
}

func (c *Client) quantityPrecision(symbol string) int32 {
	if info, ok := c.SymbolInfo(symbol); ok {
		return info.QuantityPrecision
	}
	return 3
}

// RoundPrice округляет цену до точности инструмента.
func (c *Client) RoundPrice(symbol string, price float64) float64 {
	f, _ := decimal.NewFromFloat(price).Round(c.pricePrecision(symbol)).Float64()
	return f
}

// RoundQuantity округляет количество до точности инструмента.
func (c *Client) RoundQuantity(symbol string, qty float64) float64 {
	f, _ := decimal.NewFromFloat(qty).Round(c.quantityPrecision(symbol)).Float64()
	return f
}

// RoundQuantityUp округляет количество вверх — для подтягивания
// заявки к биржевому минимальному нотионалу.
func (c *Client) RoundQuantityUp(symbol string, qty float64) float64 {
	f, _ := decimal.NewFromFloat(qty).RoundUp(c.quantityPrecision(symbol)).Float64()
	return f
}

func (c *Client) formatPrice(symbol string, price float64) string {
	return decimal.NewFromFloat(price).Round(c.pricePrecision(symbol)).String()
}

func (c *Client) formatQuantity(symbol string, qty float64) string {
	return decimal.NewFromFloat(qty).Round(c.quantityPrecision(symbol)).String()
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
