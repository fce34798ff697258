package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"polywhales/internal/model"
)

const tradesPath = "/trades"

// DataAPIOptions parameterise the Data API fetcher.
type DataAPIOptions struct {
	BaseURL    string
	MinFillUSD float64
	TakerOnly  bool
	Timeout    time.Duration
	UserAgent  string
}

// DataAPI fetches recent fills from the public Data API.
type DataAPI struct {
	opts    DataAPIOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// NewDataAPI constructs a Data API fetcher.
func NewDataAPI(opts DataAPIOptions, logger zerolog.Logger) *DataAPI {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://data-api.polymarket.com"
	}

	return &DataAPI{
		opts:    opts,
		logger:  logger.With().Str("component", "trade_fetcher").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

// Fetch retrieves one page of fills. Server-side filters keep the payload
// down to fills that can plausibly sum into an alert.
func (d *DataAPI) Fetch(ctx context.Context, limit, offset int) ([]model.RawTrade, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	q.Set("offset", strconv.Itoa(offset))
	if d.opts.TakerOnly {
		q.Set("takerOnly", "true")
	}
	if d.opts.MinFillUSD > 0 {
		q.Set("filterType", "CASH")
		q.Set("filterAmount", strconv.FormatFloat(d.opts.MinFillUSD, 'f', -1, 64))
	}

	endpoint := d.baseURL + tradesPath + "?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(d.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	} else {
		req.Header.Set("User-Agent", "polywhales/1.0")
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		return nil, parseHTTPError(resp.StatusCode, payload)
	}

	var wire []wireTrade
	if err := json.Unmarshal(payload, &wire); err != nil {
		return nil, fmt.Errorf("decode trades payload: %w", err)
	}

	trades := make([]model.RawTrade, 0, len(wire))
	for _, w := range wire {
		trades = append(trades, d.normalize(w))
	}
	return trades, nil
}

// wireTrade mirrors the upstream JSON. Numeric fields arrive as strings or
// numbers depending on the source revision, so they stay raw until
// normalization.
type wireTrade struct {
	Price           json.RawMessage `json:"price"`
	Size            json.RawMessage `json:"size"`
	Timestamp       json.RawMessage `json:"timestamp"`
	ProxyWallet     string          `json:"proxyWallet"`
	Maker           string          `json:"maker"`
	ConditionID     string          `json:"conditionId"`
	Side            string          `json:"side"`
	OutcomeIndex    json.RawMessage `json:"outcomeIndex"`
	Outcome         string          `json:"outcome"`
	TransactionHash string          `json:"transactionHash"`
	Title           string          `json:"title"`
	EventSlug       string          `json:"eventSlug"`
	Name            string          `json:"name"`
	Pseudonym       string          `json:"pseudonym"`
}

// normalize converts a wire record into the canonical RawTrade. Malformed
// numeric fields default to zero so that one bad field never drops the
// adjacent good ones; the renderer downstream is best-effort anyway.
func (d *DataAPI) normalize(w wireTrade) model.RawTrade {
	trader := w.ProxyWallet
	if trader == "" {
		trader = w.Maker
	}
	if common.IsHexAddress(trader) {
		trader = common.HexToAddress(trader).Hex()
	}

	txHash := w.TransactionHash
	if len(txHash) == 2+2*common.HashLength && strings.HasPrefix(txHash, "0x") {
		txHash = common.HexToHash(txHash).Hex()
	}

	name := w.Name
	if name == "" {
		name = w.Pseudonym
	}

	price, ok := parseDecimal(w.Price)
	if !ok {
		d.logger.Debug().Str("tx", txHash).Msg("unparseable price, defaulting to zero")
	}
	size, ok := parseDecimal(w.Size)
	if !ok {
		d.logger.Debug().Str("tx", txHash).Msg("unparseable size, defaulting to zero")
	}

	return model.RawTrade{
		Trader:     trader,
		TraderName: name,
		Market:     w.ConditionID,
		Side:       strings.ToUpper(w.Side),
		Outcome:    parseOutcomeIndex(w.OutcomeIndex),
		OutcomeStr: w.Outcome,
		Price:      price,
		Size:       size,
		Timestamp:  normalizeTimestamp(w.Timestamp),
		TxHash:     txHash,
		Title:      w.Title,
		EventSlug:  w.EventSlug,
	}
}

func parseDecimal(raw json.RawMessage) (decimal.Decimal, bool) {
	s := strings.Trim(strings.TrimSpace(string(raw)), `"`)
	if s == "" || s == "null" {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

func parseOutcomeIndex(raw json.RawMessage) int {
	s := strings.Trim(strings.TrimSpace(string(raw)), `"`)
	if s == "" || s == "null" {
		return 0
	}
	// outcomeIndex has been observed both as an integer and as "1.0".
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return int(f)
}

// normalizeTimestamp converts the source timestamp to unix seconds. The
// source has reported both seconds and milliseconds across revisions, so
// anything past year 33658 in seconds is treated as milliseconds.
func normalizeTimestamp(raw json.RawMessage) int64 {
	s := strings.Trim(strings.TrimSpace(string(raw)), `"`)
	if s == "" || s == "null" {
		return 0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	ts := int64(f)
	if ts > 1_000_000_000_000 {
		ts /= 1000
	}
	return ts
}

type errorResponse struct {
	ErrorType   string `json:"errorType"`
	Description string `json:"description"`
	Message     string `json:"message"`
}

func parseHTTPError(status int, payload []byte) error {
	var apiErr errorResponse
	if err := json.Unmarshal(payload, &apiErr); err == nil {
		if apiErr.Description != "" {
			return fmt.Errorf("data api error (%d): %s", status, apiErr.Description)
		}
		if apiErr.Message != "" {
			return fmt.Errorf("data api error (%d): %s", status, apiErr.Message)
		}
		if apiErr.ErrorType != "" {
			return fmt.Errorf("data api error (%d): %s", status, apiErr.ErrorType)
		}
	}
	if len(payload) > 0 {
		return fmt.Errorf("data api error (%d): %s", status, strings.TrimSpace(string(payload)))
	}
	return fmt.Errorf("data api error (%d)", status)
}

var _ TradeFetcher = (*DataAPI)(nil)
