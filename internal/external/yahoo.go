package external

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kjannette/stocksync/internal/httputil"
	"github.com/kjannette/stocksync/internal/models"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	yahooURL       = "https://query1.finance.yahoo.com"
	yahooUserAgent = "Mozilla/5.0 (compatible; stocksync/1.0)"
)

// YahooClient is the fallback daily-bar source (v8 chart API).
type YahooClient struct {
	baseURL    string
	httpClient *http.Client
	retry      httputil.RetryConfig
	limiter    *rate.Limiter
	logger     *zap.Logger
}

func NewYahooClient(opts ClientOptions) *YahooClient {
	opts = opts.withDefaults(yahooURL)
	c := &YahooClient{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		httpClient: &http.Client{Timeout: opts.Timeout},
		retry: httputil.RetryConfig{
			MaxAttempts: opts.MaxAttempts,
			BaseDelay:   1 * time.Second,
			MaxDelay:    5 * time.Second,
			Logger:      opts.Logger,
		},
		logger: opts.Logger.Named("yahoo"),
	}
	if opts.RequestsPerMinute > 0 {
		c.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(opts.RequestsPerMinute)), 1)
	}
	return c
}

func (c *YahooClient) Provider() models.Provider { return models.Yahoo }

type yahooChart struct {
	Chart struct {
		Result []yahooResult `json:"result"`
		Error  *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

type yahooResult struct {
	Meta struct {
		GMTOffset int64 `json:"gmtoffset"`
	} `json:"meta"`
	Timestamp  []int64 `json:"timestamp"`
	Indicators struct {
		Quote []struct {
			Open   []*float64 `json:"open"`
			High   []*float64 `json:"high"`
			Low    []*float64 `json:"low"`
			Close  []*float64 `json:"close"`
			Volume []*float64 `json:"volume"`
		} `json:"quote"`
		AdjClose []struct {
			AdjClose []*float64 `json:"adjclose"`
		} `json:"adjclose"`
	} `json:"indicators"`
}

func (c *YahooClient) FetchRaw(ctx context.Context, symbol string) (*models.RawSeries, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}
	}

	params := url.Values{}
	params.Set("range", "max")
	params.Set("interval", "1d")
	params.Set("includeAdjustedClose", "true")
	reqURL := fmt.Sprintf("%s/v8/finance/chart/%s?%s", c.baseURL, url.PathEscape(symbol), params.Encode())

	c.logger.Debug("requesting daily series", zap.String("symbol", symbol))

	resp, err := httputil.Do(ctx, c.httpClient, c.retry, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("User-Agent", yahooUserAgent)
		return req, nil
	})
	if err != nil {
		return nil, fmt.Errorf("yahoo fetch: %w", err)
	}
	defer resp.Body.Close()

	var data yahooChart
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, fmt.Errorf("decode (status %d): %w", resp.StatusCode, err)
	}
	if data.Chart.Error != nil {
		return nil, fmt.Errorf("yahoo %s: %s", data.Chart.Error.Code, data.Chart.Error.Description)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("yahoo returned status %d", resp.StatusCode)
	}
	if len(data.Chart.Result) == 0 {
		return nil, fmt.Errorf("yahoo returned no result for %s", symbol)
	}

	return yahooRows(symbol, data.Chart.Result[0]), nil
}

// yahooRows flattens the columnar chart payload into rows, applying the
// adjusted-close ratio to every price so splits and dividends are smoothed.
func yahooRows(symbol string, res yahooResult) *models.RawSeries {
	out := &models.RawSeries{Provider: models.Yahoo, Symbol: symbol}
	if len(res.Indicators.Quote) == 0 {
		return out
	}
	q := res.Indicators.Quote[0]
	var adj []*float64
	if len(res.Indicators.AdjClose) > 0 {
		adj = res.Indicators.AdjClose[0].AdjClose
	}

	for i, ts := range res.Timestamp {
		open, high, low, cls := at(q.Open, i), at(q.High, i), at(q.Low, i), at(q.Close, i)
		if a := at(adj, i); a != nil && cls != nil && *cls != 0 {
			ratio := *a / *cls
			open, high, low, cls = scale(open, ratio), scale(high, ratio), scale(low, ratio), a
		}
		day := models.TradingDay(time.Unix(ts+res.Meta.GMTOffset, 0).UTC())
		out.Rows = append(out.Rows, models.RawRow{
			Date: day,
			Values: map[string]any{
				"Open":   deref(open),
				"High":   deref(high),
				"Low":    deref(low),
				"Close":  deref(cls),
				"Volume": deref(at(q.Volume, i)),
			},
		})
	}
	return out
}

func at(xs []*float64, i int) *float64 {
	if i < len(xs) {
		return xs[i]
	}
	return nil
}

func scale(v *float64, ratio float64) *float64 {
	if v == nil {
		return nil
	}
	s := *v * ratio
	return &s
}

// deref keeps missing cells as nil so coercion can reject them per row.
func deref(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}
