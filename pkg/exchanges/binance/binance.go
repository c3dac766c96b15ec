// Package binance implements the exchange adapter contract against the
// Binance spot REST API. All numeric wire values arrive as strings and are
// parsed with shopspring/decimal before leaving this package.
package binance

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"execution-core/pkg/exchanges/common"
)

// Config holds Binance credentials and environment selection.
type Config struct {
	APIKey     string
	APISecret  string
	Testnet    bool
	RecvWindow int64 // ms
}

// Adapter is a Binance spot adapter satisfying common.Adapter.
type Adapter struct {
	cfg        Config
	baseURL    string
	httpClient *http.Client
	weights    *common.WeightTracker
	limiter    *common.RequestLimiter

	symMu   sync.RWMutex
	symbols map[string]*symbolInfo // canonical "BASE/QUOTE" -> info
	loaded  time.Time
}

type symbolInfo struct {
	venue  string // concatenated venue form, e.g. BTCUSDT
	base   string
	quote  string
	limits common.SymbolLimits
}

// New builds an adapter; Testnet switches base URLs and marks the venue
// simulated.
func New(cfg Config) *Adapter {
	base := "https://api.binance.com"
	if cfg.Testnet {
		base = "https://testnet.binance.vision"
	}
	if cfg.RecvWindow == 0 {
		cfg.RecvWindow = 5000
	}
	return &Adapter{
		cfg:        cfg,
		baseURL:    base,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		weights:    common.NewWeightTracker(1200, time.Minute),
		limiter:    common.NewRequestLimiter(10, 20),
		symbols:    make(map[string]*symbolInfo),
	}
}

func (a *Adapter) Name() string { return "binance" }

// IsSimulated reports true on the testnet; the production venue trades real
// funds.
func (a *Adapter) IsSimulated() bool { return a.cfg.Testnet }

// Ping checks venue reachability.
func (a *Adapter) Ping(ctx context.Context) error {
	_, err := a.doPublic(ctx, "/api/v3/ping", nil)
	return err
}

// --- HTTP plumbing ---

func (a *Adapter) doPublic(ctx context.Context, path string, params url.Values) ([]byte, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	endpoint := a.baseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	return a.send(req)
}

// doSigned signs the query with HMAC-SHA256 and performs the request.
func (a *Adapter) doSigned(ctx context.Context, method, path string, params url.Values) ([]byte, error) {
	if a.cfg.APIKey == "" || a.cfg.APISecret == "" {
		return nil, errors.New("binance: API key/secret required")
	}
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	if params == nil {
		params = url.Values{}
	}
	params.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))
	params.Set("recvWindow", strconv.FormatInt(a.cfg.RecvWindow, 10))
	params.Set("signature", sign(params.Encode(), a.cfg.APISecret))

	endpoint := a.baseURL + path
	encoded := params.Encode()

	var (
		req *http.Request
		err error
	)
	switch method {
	case http.MethodPost:
		req, err = http.NewRequestWithContext(ctx, method, endpoint, strings.NewReader(encoded))
		if err == nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	default:
		// GET/DELETE expect signed params in the query string.
		req, err = http.NewRequestWithContext(ctx, method, endpoint+"?"+encoded, nil)
	}
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-MBX-APIKEY", a.cfg.APIKey)
	return a.send(req)
}

func (a *Adapter) send(req *http.Request) ([]byte, error) {
	res, err := a.httpClient.Do(req)
	if err != nil {
		return nil, &common.VenueError{Venue: "binance", Message: "request failed", Err: err}
	}
	defer res.Body.Close()

	a.weights.Observe(res.Header.Get("X-MBX-USED-WEIGHT-1M"))

	body, _ := io.ReadAll(res.Body)
	if res.StatusCode >= 300 {
		return nil, &common.VenueError{
			Venue:   "binance",
			Code:    strconv.Itoa(res.StatusCode),
			Message: strings.TrimSpace(string(body)),
		}
	}
	return body, nil
}

func sign(data, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(data))
	return hex.EncodeToString(h.Sum(nil))
}

// parseNumeric converts a wire-format numeric string into a float64 through
// decimal so venue serialization quirks never reach callers.
func parseNumeric(s string) (float64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("parse numeric %q: %w", s, err)
	}
	return d.InexactFloat64(), nil
}

// avgFromCumulative derives the average fill price from the venue's
// cumulative quote and executed base quantities.
func avgFromCumulative(cumQuote, execQty string) float64 {
	q, err1 := decimal.NewFromString(cumQuote)
	e, err2 := decimal.NewFromString(execQty)
	if err1 != nil || err2 != nil || e.IsZero() {
		return 0
	}
	return q.Div(e).InexactFloat64()
}
