package exchange

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bytedance/sonic"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"signal_bot/internal/models"
	"signal_bot/internal/modules/config"
)

// Observer получает длительность и результат каждого вызова API.
type Observer func(endpoint string, took time.Duration, err error)

// Client — REST клиент WhiteBit API v4.
type Client struct {
	http    *http.Client
	baseURL string
	apiKey  string
	secret  string
	log     *zap.Logger
	observe Observer

	nonce atomic.Int64

	requests    atomic.Int64
	failures    atomic.Int64
	lastRequest atomic.Int64

	marketsMu  sync.Mutex
	markets    map[string]models.Market
	marketsAt  time.Time
	marketsTTL time.Duration
}

func NewClient(cfg config.WhiteBitConfig, log *zap.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		http:       &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		secret:     cfg.Secret,
		log:        log.Named("whitebit"),
		marketsTTL: cfg.MarketsTTL,
	}
}

func (c *Client) SetObserver(o Observer) { c.observe = o }

func (c *Client) Stats() APIStats {
	return APIStats{
		Requests:    c.requests.Load(),
		Errors:      c.failures.Load(),
		LastRequest: c.lastRequest.Load(),
	}
}

// wrap помечает сбой как ErrExchange, сохраняя причину со стеком.
func wrap(err error, format string, args ...any) error {
	return fmt.Errorf("%w: %w", models.ErrExchange, errors.Wrapf(err, format, args...))
}

// nextNonce строго возрастает даже при нескольких запросах в одну миллисекунду.
func (c *Client) nextNonce() int64 {
	for {
		now := time.Now().UnixMilli()
		last := c.nonce.Load()
		if now <= last {
			now = last + 1
		}
		if c.nonce.CompareAndSwap(last, now) {
			return now
		}
	}
}

func (c *Client) sign(payload string) string {
	h := hmac.New(sha512.New, []byte(c.secret))
	h.Write([]byte(payload))
	return hex.EncodeToString(h.Sum(nil))
}

func (c *Client) privateRequest(ctx context.Context, path string, params map[string]any, out any) error {
	if c.apiKey == "" || c.secret == "" {
		return fmt.Errorf("%w: api credentials are not configured", models.ErrExchange)
	}

	body := make(map[string]any, len(params)+2)
	for k, v := range params {
		body[k] = v
	}
	body["request"] = path
	body["nonce"] = c.nextNonce()

	raw, err := sonic.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", path, err)
	}
	payload := base64.StdEncoding.EncodeToString(raw)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("new request %s: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-TXC-APIKEY", c.apiKey)
	req.Header.Set("X-TXC-PAYLOAD", payload)
	req.Header.Set("X-TXC-SIGNATURE", c.sign(payload))

	return c.do(req, path, out)
}

func (c *Client) publicRequest(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v4/public"+path, nil)
	if err != nil {
		return fmt.Errorf("new request %s: %w", path, err)
	}
	return c.do(req, path, out)
}

func (c *Client) do(req *http.Request, endpoint string, out any) (err error) {
	start := time.Now()
	c.requests.Add(1)
	c.lastRequest.Store(start.UnixMilli())
	defer func() {
		if err != nil {
			c.failures.Add(1)
			c.log.Warn("api call failed", zap.String("endpoint", endpoint), zap.Error(err))
		}
		if c.observe != nil {
			c.observe(endpoint, time.Since(start), err)
		}
	}()

	resp, err := c.http.Do(req)
	if err != nil {
		return wrap(err, "%s %s", req.Method, endpoint)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return wrap(err, "read %s", endpoint)
	}

	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("%w: %s http %d: %s", models.ErrExchange, endpoint, resp.StatusCode, describeError(data))
	}

	if out == nil {
		return nil
	}
	if err := sonic.Unmarshal(data, out); err != nil {
		return wrap(err, "decode %s: body=%s", endpoint, truncate(data, 256))
	}
	return nil
}

func describeError(data []byte) string {
	var e errorDTO
	if err := sonic.Unmarshal(data, &e); err != nil || (e.Message == "" && len(e.Errors) == 0) {
		return truncate(data, 256)
	}

	parts := []string{}
	if e.Message != "" {
		parts = append(parts, e.Message)
	}
	fields := make([]string, 0, len(e.Errors))
	for f := range e.Errors {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	for _, f := range fields {
		parts = append(parts, fmt.Sprintf("%s: %s", f, strings.Join(e.Errors[f], ", ")))
	}
	if e.Code != 0 {
		return fmt.Sprintf("code=%d %s", e.Code, strings.Join(parts, "; "))
	}
	return strings.Join(parts, "; ")
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
