package marketdata

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// APIError represents an API error with status code and response body.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error %d: %s", e.Status, e.Body)
}

// TradierProvider implements Provider against the Tradier market data API.
type TradierProvider struct {
	client  *http.Client
	apiKey  string
	baseURL string
	sandbox bool
	timeout time.Duration
}

// Ensure TradierProvider implements Provider at compile time.
var _ Provider = (*TradierProvider)(nil)

// NewTradierProvider creates a Tradier-backed provider with default settings.
func NewTradierProvider(apiKey string, sandbox bool) *TradierProvider {
	return NewTradierProviderWithBaseURL(apiKey, sandbox, "")
}

// NewTradierProviderWithBaseURL creates a provider with an optional custom
// base URL (tests point this at an httptest server).
func NewTradierProviderWithBaseURL(apiKey string, sandbox bool, baseURL string) *TradierProvider {
	if baseURL == "" {
		if sandbox {
			baseURL = "https://sandbox.tradier.com/v1"
		} else {
			baseURL = "https://api.tradier.com/v1"
		}
	}
	// Normalize once
	baseURL = strings.TrimRight(baseURL, "/")

	timeout := 10 * time.Second
	return &TradierProvider{
		apiKey:  apiKey,
		baseURL: baseURL,
		sandbox: sandbox,
		client:  &http.Client{Timeout: timeout},
		timeout: timeout,
	}
}

// WithHTTPClient allows overriding the HTTP client (tests, custom transport).
func (t *TradierProvider) WithHTTPClient(c *http.Client) *TradierProvider {
	if c != nil {
		t.client = c
	}
	return t
}

// WithTimeout sets the HTTP client timeout duration.
func (t *TradierProvider) WithTimeout(timeout time.Duration) *TradierProvider {
	t.timeout = timeout
	if t.client != nil {
		t.client.Timeout = timeout
	}
	return t
}

// ============ API Response Structures ============

// Handle single-object vs array responses from Tradier
type singleOrArray[T any] []T

func (s *singleOrArray[T]) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	if b[0] == '[' {
		return json.Unmarshal(b, (*[]T)(s))
	}
	var one T
	if err := json.Unmarshal(b, &one); err != nil {
		return err
	}
	*s = append(*s, one)
	return nil
}

type quotesResponse struct {
	Quotes struct {
		Quote singleOrArray[quoteItem] `json:"quote"`
	} `json:"quotes"`
}

type quoteItem struct {
	Symbol string  `json:"symbol"`
	Last   float64 `json:"last"`
	Bid    float64 `json:"bid"`
	Ask    float64 `json:"ask"`
}

type expirationsResponse struct {
	Expirations struct {
		Date []string `json:"date"`
	} `json:"expirations"`
}

type chainResponse struct {
	Options struct {
		Option singleOrArray[chainOption] `json:"option"`
	} `json:"options"`
}

type chainOption struct {
	Greeks *struct {
		MidIV float64 `json:"mid_iv"`
	} `json:"greeks,omitempty"`
	Symbol       string  `json:"symbol"`
	OptionType   string  `json:"option_type"`
	Strike       float64 `json:"strike"`
	Bid          float64 `json:"bid"`
	Ask          float64 `json:"ask"`
	Last         float64 `json:"last"`
	OpenInterest int64   `json:"open_interest"`
}

type historyResponse struct {
	History struct {
		Day []struct {
			Date  string  `json:"date"`
			Close float64 `json:"close"`
		} `json:"day"`
	} `json:"history"`
}

// ============ API Methods ============

// GetCurrentPrice retrieves the last traded price for a symbol.
func (t *TradierProvider) GetCurrentPrice(symbol string) (float64, error) {
	params := url.Values{}
	params.Set("symbols", symbol)
	params.Set("greeks", "false")
	endpoint := t.baseURL + "/markets/quotes?" + params.Encode()

	var response quotesResponse
	if err := t.makeRequest("GET", endpoint, nil, &response); err != nil {
		return 0, err
	}

	quotes := response.Quotes.Quote
	if len(quotes) == 0 {
		return 0, &DataUnavailableError{Symbol: symbol, Cause: fmt.Errorf("no quote returned")}
	}
	return quotes[0].Last, nil
}

// GetHistoricalCloses retrieves daily closing prices for the trailing
// lookbackDays calendar days, oldest first.
func (t *TradierProvider) GetHistoricalCloses(symbol string, lookbackDays int) ([]float64, error) {
	end := time.Now().UTC()
	start := end.AddDate(0, 0, -lookbackDays)

	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("interval", "daily")
	params.Set("start", start.Format("2006-01-02"))
	params.Set("end", end.Format("2006-01-02"))
	endpoint := t.baseURL + "/markets/history?" + params.Encode()

	var response historyResponse
	if err := t.makeRequest("GET", endpoint, nil, &response); err != nil {
		return nil, fmt.Errorf("fetching history for %s: %w", symbol, err)
	}

	days := response.History.Day
	if len(days) == 0 {
		return nil, &DataUnavailableError{Symbol: symbol, Cause: fmt.Errorf("no history returned")}
	}

	closes := make([]float64, 0, len(days))
	for _, day := range days {
		closes = append(closes, day.Close)
	}
	return closes, nil
}

// GetOptionChain retrieves the option chain for a symbol and expiration date.
func (t *TradierProvider) GetOptionChain(symbol, expiration string) (*Chain, error) {
	return t.GetOptionChainCtx(context.Background(), symbol, expiration)
}

// GetOptionChainCtx retrieves the option chain with context support.
func (t *TradierProvider) GetOptionChainCtx(ctx context.Context, symbol, expiration string) (*Chain, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("expiration", expiration)
	params.Set("greeks", "true")
	endpoint := t.baseURL + "/markets/options/chains?" + params.Encode()

	var response chainResponse
	if err := t.makeRequestCtx(ctx, "GET", endpoint, nil, &response); err != nil {
		return nil, err
	}

	options := response.Options.Option
	if len(options) == 0 {
		return nil, &DataUnavailableError{
			Symbol:     symbol,
			Expiration: expiration,
			Cause:      fmt.Errorf("empty chain"),
		}
	}

	chain := &Chain{Symbol: symbol, Expiration: expiration}
	for _, opt := range options {
		quote := OptionQuote{
			Symbol:       opt.Symbol,
			Strike:       opt.Strike,
			Bid:          opt.Bid,
			Ask:          opt.Ask,
			Last:         opt.Last,
			OpenInterest: opt.OpenInterest,
		}
		if opt.Greeks != nil {
			quote.ImpliedVolatility = opt.Greeks.MidIV
		}
		switch opt.OptionType {
		case "put":
			chain.Puts = append(chain.Puts, quote)
		case "call":
			chain.Calls = append(chain.Calls, quote)
		}
	}
	return chain, nil
}

// GetAvailableExpirations retrieves option expiration dates for a symbol,
// ascending.
func (t *TradierProvider) GetAvailableExpirations(symbol string) ([]string, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("includeAllRoots", "true")
	params.Set("strikes", "false")
	endpoint := t.baseURL + "/markets/options/expirations?" + params.Encode()

	var response expirationsResponse
	if err := t.makeRequest("GET", endpoint, nil, &response); err != nil {
		return nil, err
	}

	dates := response.Expirations.Date
	if len(dates) == 0 {
		return nil, &DataUnavailableError{Symbol: symbol, Cause: fmt.Errorf("no listed expirations")}
	}
	return dates, nil
}

// Helper method for making HTTP requests
func (t *TradierProvider) makeRequest(method, endpoint string, params url.Values, response interface{}) error {
	return t.makeRequestCtx(context.Background(), method, endpoint, params, response)
}

// makeRequestCtx makes an HTTP request with context support for timeout/cancellation
func (t *TradierProvider) makeRequestCtx(ctx context.Context, method, endpoint string,
	params url.Values, response interface{}) error {
	var req *http.Request
	var err error

	if method == "POST" && params != nil {
		req, err = http.NewRequestWithContext(ctx, method, endpoint, strings.NewReader(params.Encode()))
		if err != nil {
			return err
		}
		req.Header.Add("Content-Type", "application/x-www-form-urlencoded")
	} else {
		req, err = http.NewRequestWithContext(ctx, method, endpoint, http.NoBody)
		if err != nil {
			return err
		}
	}

	req.Header.Add("Authorization", "Bearer "+t.apiKey)
	req.Header.Add("Accept", "application/json")
	req.Header.Add("User-Agent", "wheelhouse/1.0 (+tradier)")

	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			// Log error but don't fail the operation
			log.Printf("Failed to close response body: %v", err)
		}
	}()

	// Check rate limit headers
	remaining := resp.Header.Get("X-Ratelimit-Available")
	if remaining == "" {
		remaining = resp.Header.Get("X-RateLimit-Remaining")
	}
	if remaining != "" && t.sandbox {
		log.Printf("Rate limit remaining: %s", remaining)
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10)) // 64KB cap to avoid huge payloads
		if err != nil {
			return &APIError{Status: resp.StatusCode, Body: fmt.Sprintf("%s %s -> failed to read error body", method, endpoint)}
		}
		return &APIError{Status: resp.StatusCode, Body: fmt.Sprintf("%s %s -> %s", method, endpoint, string(body))}
	}

	if resp.StatusCode == http.StatusNoContent {
		return nil
	}
	dec := json.NewDecoder(resp.Body)
	if err := dec.Decode(response); err != nil && err != io.EOF {
		return err
	}
	return nil
}
