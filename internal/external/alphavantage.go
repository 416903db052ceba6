package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/kjannette/stocksync/internal/httputil"
	"github.com/kjannette/stocksync/internal/models"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	alphaVantageURL       = "https://www.alphavantage.co"
	alphaVantageSeriesKey = "Time Series (Daily)"
)

// AlphaVantageClient is the primary daily-bar source.
type AlphaVantageClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	retry      httputil.RetryConfig
	limiter    *rate.Limiter
	logger     *zap.Logger
}

func NewAlphaVantageClient(apiKey string, opts ClientOptions) *AlphaVantageClient {
	opts = opts.withDefaults(alphaVantageURL)
	c := &AlphaVantageClient{
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		httpClient: &http.Client{Timeout: opts.Timeout},
		retry: httputil.RetryConfig{
			MaxAttempts: opts.MaxAttempts,
			BaseDelay:   2 * time.Second,
			MaxDelay:    10 * time.Second,
			Logger:      opts.Logger,
		},
		logger: opts.Logger.Named("alphavantage"),
	}
	if opts.RequestsPerMinute > 0 {
		c.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(opts.RequestsPerMinute)), 1)
	}
	return c
}

func (c *AlphaVantageClient) Provider() models.Provider { return models.AlphaVantage }

func (c *AlphaVantageClient) FetchRaw(ctx context.Context, symbol string) (*models.RawSeries, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("alphavantage API key not configured")
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}
	}

	params := url.Values{}
	params.Set("function", "TIME_SERIES_DAILY")
	params.Set("symbol", symbol)
	params.Set("outputsize", "full")
	params.Set("datatype", "json")
	params.Set("apikey", c.apiKey)
	reqURL := c.baseURL + "/query?" + params.Encode()

	c.logger.Debug("requesting daily series", zap.String("symbol", symbol))

	resp, err := httputil.Do(ctx, c.httpClient, c.retry, func() (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	})
	if err != nil {
		return nil, fmt.Errorf("alphavantage fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("alphavantage returned status %d", resp.StatusCode)
	}

	var payload map[string]json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}

	// Errors and throttling notices arrive with HTTP 200.
	for _, key := range []string{"Error Message", "Note", "Information"} {
		if msg, ok := payload[key]; ok {
			var text string
			_ = json.Unmarshal(msg, &text)
			return nil, fmt.Errorf("alphavantage %s: %s", strings.ToLower(key), text)
		}
	}

	rawSeries, ok := payload[alphaVantageSeriesKey]
	if !ok {
		return nil, fmt.Errorf("alphavantage response has no %q", alphaVantageSeriesKey)
	}

	var byDate map[string]map[string]any
	dec := json.NewDecoder(bytes.NewReader(rawSeries))
	dec.UseNumber()
	if err := dec.Decode(&byDate); err != nil {
		return nil, fmt.Errorf("decode series: %w", err)
	}

	out := &models.RawSeries{Provider: models.AlphaVantage, Symbol: symbol}
	for day, values := range byDate {
		d, err := models.ParseDay(day)
		if err != nil {
			c.logger.Warn("skipping row with unparseable date",
				zap.String("symbol", symbol), zap.String("date", day))
			continue
		}
		out.Rows = append(out.Rows, models.RawRow{Date: d, Values: values})
	}
	sort.Slice(out.Rows, func(i, j int) bool { return out.Rows[i].Date.Before(out.Rows[j].Date) })

	return out, nil
}
