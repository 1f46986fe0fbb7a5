package service

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"testing"
	"time"

	"perp_bot/pkg/logger"
)

func TestMain(m *testing.M) {
	if err := logger.Init(); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

func TestBackoffWait(t *testing.T) {
	// 429: 2^attempt + 5, не меньше Retry-After
	if got := backoffWait(429, 0, 0); got != 6*time.Second {
		t.Fatalf("429 attempt 0: got %v want 6s", got)
	}
	if got := backoffWait(429, 1, 0); got != 7*time.Second {
		t.Fatalf("429 attempt 1: got %v want 7s", got)
	}
	if got := backoffWait(429, 0, 30*time.Second); got != 30*time.Second {
		t.Fatalf("429 retry-after: got %v want 30s", got)
	}

	// 5xx и сетевые (status 0): 2^attempt + 1
	if got := backoffWait(500, 0, 0); got != 2*time.Second {
		t.Fatalf("500 attempt 0: got %v want 2s", got)
	}
	if got := backoffWait(0, 1, 0); got != 3*time.Second {
		t.Fatalf("network attempt 1: got %v want 3s", got)
	}

	// остальные: 2^attempt + 2
	if got := backoffWait(400, 0, 0); got != 3*time.Second {
		t.Fatalf("400 attempt 0: got %v want 3s", got)
	}

	// пауза не убывает с номером попытки
	for _, status := range []int{0, 400, 429, 500} {
		prev := time.Duration(0)
		for attempt := 0; attempt < 5; attempt++ {
			w := backoffWait(status, attempt, 0)
			if w < prev {
				t.Fatalf("status %d: wait shrank at attempt %d: %v < %v", status, attempt, w, prev)
			}
			prev = w
		}
	}
}

// Вектор из документации биржи: подпись считается от сырой query-строки.
func TestSignKnownVector(t *testing.T) {
	c := &Client{apiSecret: "NhqPtmdSJYdKjVHjA7PZj4Mge3R5YNiP1e3UZjInClVN65XAbvqqM6A7H5fATj0j"}
	query := "symbol=LTCBTC&side=BUY&type=LIMIT&timeInForce=GTC&quantity=1&price=0.1&recvWindow=5000&timestamp=1499827319559"
	want := "c8db56825ae71d6d79447849e617115f4a920fa2acdcab2b053c4b2838bd6b71"
	if got := c.sign(query); got != want {
		t.Fatalf("signature mismatch:\n got %s\nwant %s", got, want)
	}
}

func TestBuildRequestSignedQuery(t *testing.T) {
	c := testClient("https://example.test", nil, 1)
	c.now = func() time.Time { return time.UnixMilli(1499827319559) }

	params := url.Values{}
	params.Set("symbol", "BTCUSDT")
	req, err := c.buildRequest(context.Background(), http.MethodGet, "/fapi/v2/account", params, true)
	if err != nil {
		t.Fatalf("buildRequest: %v", err)
	}

	q := req.URL.Query()
	if q.Get("timestamp") != "1499827319559" {
		t.Fatalf("timestamp: got %q", q.Get("timestamp"))
	}
	if q.Get("recvWindow") != "5000" {
		t.Fatalf("recvWindow: got %q", q.Get("recvWindow"))
	}
	if q.Get("signature") == "" {
		t.Fatal("signature missing")
	}
	if req.Header.Get("X-MBX-APIKEY") != "test-key" {
		t.Fatalf("api key header: got %q", req.Header.Get("X-MBX-APIKEY"))
	}
	// подпись должна соответствовать отправленной строке без самой подписи
	raw := req.URL.RawQuery
	idx := len(raw) - len("&signature=") - 64
	if raw[idx:idx+len("&signature=")] != "&signature=" {
		t.Fatalf("signature is not the last parameter: %s", raw)
	}
	if got := c.sign(raw[:idx]); got != raw[idx+len("&signature="):] {
		t.Fatal("signature does not match canonical query")
	}
}

func TestSendRequestFailover(t *testing.T) {
	primary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"code":-1000,"msg":"internal error"}`))
	}))
	defer primary.Close()

	var fallbackHits int
	fallback := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fallbackHits++
		_, _ = w.Write([]byte(`{"price":"123.45"}`))
	}))
	defer fallback.Close()

	c := testClient(primary.URL, []string{fallback.URL}, 2)

	body, err := c.sendRequest(context.Background(), http.MethodGet, "/fapi/v1/ticker/price", nil, false)
	if err != nil {
		t.Fatalf("sendRequest: %v", err)
	}
	if string(body) != `{"price":"123.45"}` {
		t.Fatalf("body: got %s", body)
	}
	if fallbackHits != 1 {
		t.Fatalf("fallback hits: got %d want 1", fallbackHits)
	}
}

func TestSendRequestRetriesThenAPIError(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":-1121,"msg":"Invalid symbol."}`))
	}))
	defer srv.Close()

	c := testClient(srv.URL, nil, 3)

	_, err := c.sendRequest(context.Background(), http.MethodGet, "/fapi/v1/ticker/price", nil, false)
	if err == nil {
		t.Fatal("expected error")
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %T: %v", err, err)
	}
	if apiErr.Code != -1121 || apiErr.Message != "Invalid symbol." {
		t.Fatalf("api error: %+v", apiErr)
	}
	if hits != 3 {
		t.Fatalf("attempts: got %d want 3", hits)
	}
}

func testClient(baseURL string, fallbacks []string, retryCount int) *Client {
	return &Client{
		apiKey:     "test-key",
		apiSecret:  "test-secret",
		http:       &http.Client{Timeout: 5 * time.Second},
		retryCount: retryCount,
		recvWindow: 5000,
		baseURL:    baseURL,
		fallbacks:  fallbacks,
		cache:      newTTLCache(time.Now),
		symbols:    nil,
		sleep:      func(context.Context, time.Duration) error { return nil },
		now:        time.Now,
	}
}
