package binanceclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"cryptoScreener/internal/domain"
	"cryptoScreener/internal/ports"

	"github.com/adshao/go-binance/v2/common"
	"github.com/adshao/go-binance/v2/futures"
	"github.com/jpillora/backoff"
)

const (
	// Base URLs
	baseURLProduction = "https://fapi.binance.com"
	baseURLTestnet    = "https://testnet.binancefuture.com"

	openInterestHistPath = "/futures/data/openInterestHist"
)

// Client implements the ports.ExchangeClient interface using the go-binance library.
type Client struct {
	futuresClient        *futures.Client
	httpClient           *http.Client
	baseURL              string
	logger               ports.Logger
	reconnectDelay       time.Duration
	maxReconnectAttempts int
}

// Config holds configuration specific to the Binance client adapter.
type Config struct {
	APIKey     string // Optional: every endpoint used is public
	SecretKey  string
	BaseURL    string // Overrides the production/testnet URL when set
	UseTestnet bool
	Logger     ports.Logger

	RequestsPerSecond float64       // Outbound REST budget (0 disables throttling)
	Burst             int           // Burst allowance for the limiter
	Timeout           time.Duration // Per-request HTTP timeout
	Transport         http.RoundTripper

	ReconnectDelay       time.Duration // Reconnect delay (e.g., 1 * time.Second)
	MaxReconnectAttempts int           // Max attempts before giving up
}

// New creates a new Binance client adapter.
func New(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for Binance client: %w", ports.ErrConfigurationError)
	}

	baseURL := cfg.BaseURL
	switch {
	case baseURL != "":
	case cfg.UseTestnet:
		baseURL = baseURLTestnet
		futures.UseTestnet = true // Only affects websocket endpoints
	default:
		baseURL = baseURLProduction
	}
	baseURL = strings.TrimRight(baseURL, "/")

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	httpClient := &http.Client{
		Transport: newLimitedTransport(cfg.Transport, cfg.RequestsPerSecond, cfg.Burst),
		Timeout:   timeout,
	}

	client := futures.NewClient(cfg.APIKey, cfg.SecretKey)
	client.BaseURL = baseURL
	client.HTTPClient = httpClient
	cfg.Logger.Info(context.Background(), "Binance client configured", map[string]interface{}{
		"baseURL":           baseURL,
		"requestsPerSecond": cfg.RequestsPerSecond,
		"timeout":           timeout.String(),
	})

	// Default reconnect settings if not provided
	reconnectDelay := cfg.ReconnectDelay
	if reconnectDelay <= 0 {
		reconnectDelay = 1 * time.Second
	}
	maxAttempts := cfg.MaxReconnectAttempts
	if maxAttempts <= 0 {
		maxAttempts = 10
	}

	return &Client{
		futuresClient:        client,
		httpClient:           httpClient,
		baseURL:              baseURL,
		logger:               cfg.Logger,
		reconnectDelay:       reconnectDelay,
		maxReconnectAttempts: maxAttempts,
	}, nil
}

// handleError translates Binance API and transport errors into standardized ports errors.
func (c *Client) handleError(ctx context.Context, err error, operation string, meta *responseMeta) error {
	if err == nil {
		return nil
	}

	fields := map[string]interface{}{"operation": operation, "originalError": err.Error()}
	status := 0
	if meta != nil {
		status = meta.status
		if status != 0 {
			fields["httpStatus"] = status
		}
	}

	if isRateLimitStatus(status) {
		return c.rateLimited(ctx, err, operation, meta, fields)
	}

	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		fields["apiErrorCode"] = apiErr.Code
		fields["apiErrorMessage"] = apiErr.Message

		var mappedErr error
		switch apiErr.Code {
		case -1003: // Too many requests
			return c.rateLimited(ctx, err, operation, meta, fields)
		case -1000, -1001, -1006, -1007: // Unknown / disconnected / unexpected response / backend timeout
			mappedErr = ports.ErrUpstreamUnavailable
		case -1021: // Timestamp for this request is outside of the recvWindow
			mappedErr = ports.ErrTimeout
		case -1100, -1101, -1102, -1103, -1104, -1105, -1106, -1111, -1115, -1116, -1117, -1120, -1121, -1125, -1127, -1128, -1130: // Parameter/Request format errors
			mappedErr = ports.ErrInvalidRequest
		default:
			switch {
			case status >= http.StatusInternalServerError:
				mappedErr = ports.ErrUpstreamUnavailable
			case status >= http.StatusBadRequest:
				mappedErr = ports.ErrInvalidRequest
			default:
				mappedErr = ports.ErrUnknown
			}
		}
		finalErr := fmt.Errorf("%s failed: %w: %w", operation, mappedErr, err)
		c.logger.Error(ctx, err, fmt.Sprintf("%s failed with API error", operation), fields)
		return finalErr
	}

	// Handle non-API errors (network, context cancellation, payload decoding, etc.)
	var (
		finalErr   error
		netErr     net.Error
		syntaxErr  *json.SyntaxError
		typeErr    *json.UnmarshalTypeError
		numErr     *strconv.NumError
		isNetError = errors.As(err, &netErr)
	)
	switch {
	case errors.Is(err, context.DeadlineExceeded), isNetError && netErr.Timeout():
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrTimeout, err)
	case errors.Is(err, context.Canceled):
		finalErr = fmt.Errorf("%s operation canceled: %w: %w", operation, ports.ErrContextCanceled, err)
	case status >= http.StatusInternalServerError:
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrUpstreamUnavailable, err)
	case errors.As(err, &syntaxErr), errors.As(err, &typeErr), errors.As(err, &numErr), errors.Is(err, ports.ErrMalformedData):
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrMalformedData, err)
	case isNetError,
		strings.Contains(err.Error(), "use of closed network connection"),
		strings.Contains(err.Error(), "connection refused"),
		strings.Contains(err.Error(), "connection reset by peer"):
		finalErr = fmt.Errorf("%s failed: %w: %w: %w", operation, ports.ErrUpstreamUnavailable, ports.ErrConnectionFailed, err)
	default:
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrUnknown, err)
	}

	c.logger.Error(ctx, err, fmt.Sprintf("%s failed", operation), fields)
	return finalErr
}

func (c *Client) rateLimited(ctx context.Context, err error, operation string, meta *responseMeta, fields map[string]interface{}) error {
	rl := &ports.RateLimitError{Err: err}
	if meta != nil {
		rl.RetryAfter = meta.retryAfter
	}
	fields["retryAfter"] = rl.RetryAfter.String()
	c.logger.Warn(ctx, operation+" rate limited", fields)
	return fmt.Errorf("%s failed: %w", operation, rl)
}

// Ping checks the connectivity to the exchange API.
func (c *Client) Ping(ctx context.Context) error {
	op := "Ping"
	ctx, meta := withResponseMeta(ctx)
	if err := c.futuresClient.NewPingService().Do(ctx); err != nil {
		return c.handleError(ctx, fmt.Errorf("ping failed: %w", err), op, meta)
	}
	c.logger.Debug(ctx, op+" successful")
	return nil
}

// GetExchangeInfo retrieves symbol metadata for all futures symbols.
func (c *Client) GetExchangeInfo(ctx context.Context) ([]domain.SymbolInfo, error) {
	op := "GetExchangeInfo"
	ctx, meta := withResponseMeta(ctx)
	info, err := c.futuresClient.NewExchangeInfoService().Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op, meta)
	}
	if info == nil {
		return nil, c.handleError(ctx, fmt.Errorf("empty exchange info: %w", ports.ErrMalformedData), op, meta)
	}

	symbols := make([]domain.SymbolInfo, 0, len(info.Symbols))
	for _, s := range info.Symbols {
		symbols = append(symbols, domain.SymbolInfo{
			Symbol:       s.Symbol,
			Status:       s.Status,
			ContractType: string(s.ContractType),
			QuoteAsset:   s.QuoteAsset,
			MarginAsset:  s.MarginAsset,
		})
	}
	return symbols, nil
}

// Get24hTickers retrieves rolling 24h statistics for all symbols.
// Rows whose numbers cannot be parsed are skipped.
func (c *Client) Get24hTickers(ctx context.Context) ([]domain.Ticker24h, error) {
	op := "Get24hTickers"
	ctx, meta := withResponseMeta(ctx)
	stats, err := c.futuresClient.NewListPriceChangeStatsService().Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op, meta)
	}

	tickers := make([]domain.Ticker24h, 0, len(stats))
	skipped := 0
	for _, s := range stats {
		if s == nil {
			continue
		}
		last, err1 := parseFloat(s.LastPrice)
		quoteVol, err2 := parseFloat(s.QuoteVolume)
		if err1 != nil || err2 != nil {
			skipped++
			continue
		}
		tickers = append(tickers, domain.Ticker24h{Symbol: s.Symbol, LastPrice: last, QuoteVolume: quoteVol})
	}
	if skipped > 0 {
		c.logger.Debug(ctx, op+": skipped unparseable ticker rows", map[string]interface{}{"skipped": skipped})
	}
	return tickers, nil
}

// GetKlines retrieves historical klines/candlestick data for the given symbol.
func (c *Client) GetKlines(ctx context.Context, symbol string, interval string, limit int) ([]*domain.Kline, error) {
	op := "GetKlines"
	ctx, meta := withResponseMeta(ctx)
	binanceKlines, err := c.futuresClient.NewKlinesService().Symbol(symbol).Interval(interval).Limit(limit).Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op, meta)
	}

	domainKlines := make([]*domain.Kline, 0, len(binanceKlines))
	for _, bk := range binanceKlines {
		dk, err := translateBinanceKline(bk, symbol, interval)
		if err != nil {
			return nil, c.handleError(ctx, fmt.Errorf("failed to translate historical kline: %w: %w", ports.ErrMalformedData, err), op, meta)
		}
		if n := len(domainKlines); n > 0 && !dk.OpenTime.After(domainKlines[n-1].OpenTime) {
			return nil, c.handleError(ctx, fmt.Errorf("klines not strictly increasing at %s: %w", dk.OpenTime, ports.ErrMalformedData), op, meta)
		}
		domainKlines = append(domainKlines, dk)
	}

	return domainKlines, nil
}

// GetOpenInterest retrieves the current open interest for a symbol.
func (c *Client) GetOpenInterest(ctx context.Context, symbol string) (*domain.OpenInterestPoint, error) {
	op := "GetOpenInterest"
	ctx, meta := withResponseMeta(ctx)
	res, err := c.futuresClient.NewGetOpenInterestService().Symbol(symbol).Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op, meta)
	}
	if res == nil {
		return nil, c.handleError(ctx, fmt.Errorf("empty open interest response: %w", ports.ErrMalformedData), op, meta)
	}

	value, err := parsePositive(res.OpenInterest)
	if err != nil {
		return nil, c.handleError(ctx, fmt.Errorf("open interest '%s': %w: %w", res.OpenInterest, ports.ErrMalformedData, err), op, meta)
	}
	return &domain.OpenInterestPoint{Time: time.UnixMilli(res.Time), Value: value}, nil
}

type openInterestHistRow struct {
	Symbol               string `json:"symbol"`
	SumOpenInterest      string `json:"sumOpenInterest"`
	SumOpenInterestValue string `json:"sumOpenInterestValue"`
	Timestamp            int64  `json:"timestamp"` // ms
}

// GetOpenInterestHistory retrieves open-interest statistics at the given period.
// The endpoint lives outside /fapi, so it is called directly over the shared
// (rate-limited) HTTP client.
func (c *Client) GetOpenInterestHistory(ctx context.Context, symbol, period string, limit int) ([]domain.OpenInterestPoint, error) {
	op := "GetOpenInterestHistory"
	ctx, meta := withResponseMeta(ctx)

	endpoint := fmt.Sprintf("%s%s?symbol=%s&period=%s&limit=%d", c.baseURL, openInterestHistPath, symbol, period, limit)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, c.handleError(ctx, fmt.Errorf("%w: %w", ports.ErrInvalidRequest, err), op, meta)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, c.handleError(ctx, err, op, meta)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var apiErr common.APIError
		if decodeErr := json.NewDecoder(resp.Body).Decode(&apiErr); decodeErr == nil && apiErr.Code != 0 {
			return nil, c.handleError(ctx, &apiErr, op, meta)
		}
		return nil, c.handleError(ctx, fmt.Errorf("unexpected status %s", resp.Status), op, meta)
	}

	var rows []openInterestHistRow
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return nil, c.handleError(ctx, fmt.Errorf("decode open interest history: %w: %w", ports.ErrMalformedData, err), op, meta)
	}

	points := make([]domain.OpenInterestPoint, 0, len(rows))
	for _, row := range rows {
		value, err := parsePositive(row.SumOpenInterest)
		if err != nil || row.Timestamp <= 0 {
			return nil, c.handleError(ctx, fmt.Errorf("open interest history row %+v: %w", row, ports.ErrMalformedData), op, meta)
		}
		points = append(points, domain.OpenInterestPoint{Time: time.UnixMilli(row.Timestamp), Value: value})
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Time.Before(points[j].Time) })
	return points, nil
}

// StreamTickers starts a WebSocket stream of all-market 24h tickers.
func (c *Client) StreamTickers(ctx context.Context, handler func(ticks []domain.Tick), errHandler func(err error)) (doneCh chan struct{}, stopCh chan struct{}, err error) {
	op := "StreamTickers"

	binanceHandler := func(event futures.WsAllMarketTickerEvent) {
		ticks := translateTickerEvent(event)
		if len(ticks) > 0 {
			handler(ticks)
		}
	}

	binanceErrHandler := func(err error) {
		translatedErr := c.handleError(ctx, err, op+" WebSocket", nil)
		c.logger.Warn(ctx, op+": WebSocket error reported", map[string]interface{}{"error": translatedErr})
		errHandler(translatedErr)
	}

	connect := func() (chan struct{}, chan struct{}, error) {
		return futures.WsAllMarketTickerServe(binanceHandler, binanceErrHandler)
	}
	doneCh, stopCh = c.serveWithReconnect(ctx, op, connect)
	return doneCh, stopCh, nil
}

// serveWithReconnect keeps a websocket stream alive until ctx is cancelled,
// stopCh is signalled or the reconnect budget is exhausted.
func (c *Client) serveWithReconnect(ctx context.Context, op string, connect func() (chan struct{}, chan struct{}, error)) (doneCh chan struct{}, stopCh chan struct{}) {
	wsCtx, cancelWs := context.WithCancel(ctx)
	b := &backoff.Backoff{Min: c.reconnectDelay, Max: time.Minute, Factor: 2, Jitter: true}

	// Reconnection loop
	go func() {
		defer cancelWs()

		attempt := 0
		for {
			select {
			case <-wsCtx.Done():
				c.logger.Info(wsCtx, op+": Context cancelled, stopping connection attempts.")
				return
			default:
			}

			c.logger.Info(wsCtx, op+": Attempting WebSocket connection...", map[string]interface{}{"attempt": attempt + 1})
			innerDoneCh, innerStopCh, connectErr := connect()
			if connectErr != nil {
				c.handleError(wsCtx, connectErr, op+" connection attempt", nil)
				attempt++
				if attempt >= c.maxReconnectAttempts {
					c.logger.Error(wsCtx, connectErr, op+": Max reconnection attempts exceeded, giving up.", map[string]interface{}{"maxAttempts": c.maxReconnectAttempts})
					return
				}

				delay := b.Duration()
				c.logger.Info(wsCtx, op+": Connection failed, retrying...", map[string]interface{}{"attempt": attempt + 1, "delay": delay.String()})
				select {
				case <-time.After(delay):
					continue
				case <-wsCtx.Done():
					return
				}
			}

			c.logger.Info(wsCtx, op+": WebSocket connection established.")
			attempt = 0
			b.Reset()

			select {
			case <-innerDoneCh:
				c.logger.Warn(wsCtx, op+": WebSocket connection closed unexpectedly. Reconnecting...")
			case <-wsCtx.Done():
				select {
				case innerStopCh <- struct{}{}:
					c.logger.Debug(wsCtx, op+": Stop signal sent to inner WebSocket.")
				default:
					c.logger.Warn(wsCtx, op+": Failed to send stop signal to inner WebSocket (already closed?).")
				}
				return
			}
		}
	}()

	doneCh = make(chan struct{})
	stopCh = make(chan struct{})

	// Link the external stopCh to the internal context cancellation
	go func() {
		select {
		case <-stopCh:
			c.logger.Info(ctx, op+": Received external stop signal, cancelling WebSocket context.")
			cancelWs()
		case <-wsCtx.Done():
		}
	}()

	go func() {
		<-wsCtx.Done()
		close(doneCh)
	}()

	return doneCh, stopCh
}

// --- Translation Helpers ---

func parseFloat(s string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("non-finite value '%s'", s)
	}
	return v, nil
}

func parsePositive(s string) (float64, error) {
	v, err := parseFloat(s)
	if err != nil {
		return 0, err
	}
	if v <= 0 {
		return 0, fmt.Errorf("non-positive value '%s'", s)
	}
	return v, nil
}

func translateBinanceKline(bk *futures.Kline, symbol, interval string) (*domain.Kline, error) {
	if bk == nil {
		return nil, errors.New("received nil historical kline")
	}
	open, err := parseFloat(bk.Open)
	if err != nil {
		return nil, fmt.Errorf("parsing open price '%s': %w", bk.Open, err)
	}
	high, err := parseFloat(bk.High)
	if err != nil {
		return nil, fmt.Errorf("parsing high price '%s': %w", bk.High, err)
	}
	low, err := parseFloat(bk.Low)
	if err != nil {
		return nil, fmt.Errorf("parsing low price '%s': %w", bk.Low, err)
	}
	cls, err := parseFloat(bk.Close)
	if err != nil {
		return nil, fmt.Errorf("parsing close price '%s': %w", bk.Close, err)
	}
	vol, err := parseFloat(bk.Volume)
	if err != nil {
		return nil, fmt.Errorf("parsing volume '%s': %w", bk.Volume, err)
	}
	// Quote volume is informational; an unparseable value is not fatal.
	quoteVol, _ := parseFloat(bk.QuoteAssetVolume)

	return &domain.Kline{
		OpenTime:    time.UnixMilli(bk.OpenTime),
		CloseTime:   time.UnixMilli(bk.CloseTime),
		Symbol:      symbol,   // Use passed symbol as it's not in futures.Kline
		Interval:    interval, // Use passed interval
		Open:        open,
		High:        high,
		Low:         low,
		Close:       cls,
		Volume:      vol,
		QuoteVolume: quoteVol,
	}, nil
}

func translateTickerEvent(event futures.WsAllMarketTickerEvent) []domain.Tick {
	ticks := make([]domain.Tick, 0, len(event))
	for _, e := range event {
		if e == nil || e.Symbol == "" {
			continue
		}
		t := domain.Tick{Symbol: e.Symbol, EventTime: time.UnixMilli(e.Time)}
		if p, err := parsePositive(e.ClosePrice); err == nil {
			t.Price = domain.Float(p)
		}
		if v, err := parsePositive(e.QuoteVolume); err == nil {
			t.Volume = domain.Float(v)
		}
		if t.Price == nil && t.Volume == nil {
			continue
		}
		ticks = append(ticks, t)
	}
	return ticks
}
