package upstox

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// Option instrument types on the exchange: CE is a call, PE a put.
const (
	InstrumentTypeCall = "CE"
	InstrumentTypePut  = "PE"
)

// ErrInstrumentNotFound is returned when no option contract matches the
// requested (strike, type) for the nearest expiry.
var ErrInstrumentNotFound = errors.New("instrument not found")

type Client struct {
	baseURL       string
	orderBaseURL  string
	instrumentKey string
	accessToken   string
	httpClient    *http.Client
}

type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("upstox API error (%d): %s", e.Status, e.Body)
}

type ClientOptions struct {
	BaseURL       string
	OrderBaseURL  string
	InstrumentKey string
	AccessToken   string
	HTTPClient    *http.Client
}

func NewClient(opts ClientOptions) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = "https://api.upstox.com/v2"
	}
	if opts.OrderBaseURL == "" {
		opts.OrderBaseURL = "https://api-hft.upstox.com/v2"
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}
	return &Client{
		baseURL:       strings.TrimRight(opts.BaseURL, "/"),
		orderBaseURL:  strings.TrimRight(opts.OrderBaseURL, "/"),
		instrumentKey: opts.InstrumentKey,
		accessToken:   opts.AccessToken,
		httpClient:    opts.HTTPClient,
	}
}

// SetAccessToken replaces the bearer token after an OAuth exchange.
func (c *Client) SetAccessToken(token string) {
	if c == nil {
		return
	}
	c.accessToken = token
}

func (c *Client) doGet(ctx context.Context, path string, query url.Values) ([]byte, error) {
	fullURL := c.baseURL + path
	if len(query) > 0 {
		fullURL = fullURL + "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{Status: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}

func (c *Client) doPost(ctx context.Context, base, path string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+path, bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{Status: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}

// --- Market quote -----------------------------------------------------------

type ltpResponse struct {
	Data map[string]struct {
		LastPrice float64 `json:"last_price"`
	} `json:"data"`
}

// LastTradedPrice fetches the current underlying index price over REST. The
// streaming feed is the risk path; this is only used for the day's reference
// price at entry time.
func (c *Client) LastTradedPrice(ctx context.Context) (decimal.Decimal, error) {
	query := url.Values{}
	query.Set("instrument_key", c.instrumentKey)
	body, err := c.doGet(ctx, "/market-quote/ltp", query)
	if err != nil {
		return decimal.Zero, err
	}
	var parsed ltpResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return decimal.Zero, fmt.Errorf("failed to decode ltp response: %w", err)
	}
	for _, quote := range parsed.Data {
		return decimal.NewFromFloat(quote.LastPrice), nil
	}
	return decimal.Zero, fmt.Errorf("ltp response had no quotes")
}

// --- Option contracts -------------------------------------------------------

type optionContract struct {
	InstrumentKey  string  `json:"instrument_key"`
	StrikePrice    float64 `json:"strike_price"`
	InstrumentType string  `json:"instrument_type"`
	Expiry         string  `json:"expiry"`
}

type optionContractResponse struct {
	Data []optionContract `json:"data"`
}

// NearestExpiry returns the closest upcoming expiry date for the configured
// underlying, as the exchange formats it (YYYY-MM-DD).
func (c *Client) NearestExpiry(ctx context.Context) (string, error) {
	query := url.Values{}
	query.Set("instrument_key", c.instrumentKey)
	body, err := c.doGet(ctx, "/option/contract", query)
	if err != nil {
		return "", err
	}
	var parsed optionContractResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("failed to decode option contracts: %w", err)
	}
	seen := map[string]struct{}{}
	expiries := make([]string, 0, 8)
	for _, contract := range parsed.Data {
		if _, ok := seen[contract.Expiry]; ok {
			continue
		}
		seen[contract.Expiry] = struct{}{}
		expiries = append(expiries, contract.Expiry)
	}
	if len(expiries) == 0 {
		return "", fmt.Errorf("no expiries available")
	}
	sort.Strings(expiries)
	return expiries[0], nil
}

// ResolveInstrument maps a (strike, option type) pair onto the tradable
// instrument key for the nearest expiry.
func (c *Client) ResolveInstrument(ctx context.Context, strike int, instrumentType string) (string, error) {
	expiry, err := c.NearestExpiry(ctx)
	if err != nil {
		return "", fmt.Errorf("resolve expiry: %w", err)
	}
	query := url.Values{}
	query.Set("instrument_key", c.instrumentKey)
	query.Set("expiry_date", expiry)
	body, err := c.doGet(ctx, "/option/contract", query)
	if err != nil {
		return "", err
	}
	var parsed optionContractResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("failed to decode option contracts: %w", err)
	}
	for _, contract := range parsed.Data {
		if int(contract.StrikePrice) == strike && contract.InstrumentType == instrumentType {
			return contract.InstrumentKey, nil
		}
	}
	return "", ErrInstrumentNotFound
}

// --- Orders -----------------------------------------------------------------

type placeOrderRequest struct {
	Quantity          int     `json:"quantity"`
	Product           string  `json:"product"`
	Validity          string  `json:"validity"`
	Price             float64 `json:"price"`
	Tag               string  `json:"tag"`
	InstrumentToken   string  `json:"instrument_token"`
	OrderType         string  `json:"order_type"`
	TransactionType   string  `json:"transaction_type"`
	DisclosedQuantity int     `json:"disclosed_quantity"`
	TriggerPrice      float64 `json:"trigger_price"`
	IsAMO             bool    `json:"is_amo"`
}

type placeOrderResponse struct {
	Data struct {
		OrderID string `json:"order_id"`
	} `json:"data"`
}

// PlaceMarketOrder submits an intraday market buy for the instrument and
// returns the broker order id.
func (c *Client) PlaceMarketOrder(ctx context.Context, instrumentToken string, quantity int) (string, error) {
	payload := placeOrderRequest{
		Quantity:        quantity,
		Product:         "D",
		Validity:        "DAY",
		InstrumentToken: instrumentToken,
		OrderType:       "MARKET",
		TransactionType: "BUY",
	}
	body, err := c.doPost(ctx, c.orderBaseURL, "/order/place", payload)
	if err != nil {
		return "", err
	}
	var parsed placeOrderResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("failed to decode order response: %w", err)
	}
	return parsed.Data.OrderID, nil
}

// --- Positions --------------------------------------------------------------

type Position struct {
	InstrumentToken string `json:"instrument_token"`
	Quantity        int    `json:"quantity"`
}

type positionsResponse struct {
	Data []Position `json:"data"`
}

func (c *Client) Positions(ctx context.Context) ([]Position, error) {
	body, err := c.doGet(ctx, "/portfolio/short-term-positions", nil)
	if err != nil {
		return nil, err
	}
	var parsed positionsResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to decode positions: %w", err)
	}
	return parsed.Data, nil
}

// SquareOff closes the open position for the instrument with an offsetting
// market order. Holding no position for the instrument is not an error.
func (c *Client) SquareOff(ctx context.Context, instrumentToken string) error {
	positions, err := c.Positions(ctx)
	if err != nil {
		return fmt.Errorf("fetch positions: %w", err)
	}
	for _, position := range positions {
		if position.InstrumentToken != instrumentToken || position.Quantity == 0 {
			continue
		}
		quantity := position.Quantity
		transaction := "SELL"
		if quantity < 0 {
			quantity = -quantity
			transaction = "BUY"
		}
		payload := placeOrderRequest{
			Quantity:        quantity,
			Product:         "D",
			Validity:        "DAY",
			InstrumentToken: instrumentToken,
			OrderType:       "MARKET",
			TransactionType: transaction,
		}
		if _, err := c.doPost(ctx, c.orderBaseURL, "/order/place", payload); err != nil {
			return fmt.Errorf("square off order: %w", err)
		}
	}
	return nil
}

// CancelAllOrders cancels every pending order for the session.
func (c *Client) CancelAllOrders(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.orderBaseURL+"/order/multi/cancel", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return &APIError{Status: resp.StatusCode, Body: string(body)}
	}
	return nil
}
