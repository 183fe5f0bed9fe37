package datafetcher

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"
)

// TransientError marks a fetch failure as retryable: the upstream data
// source was unreachable or answered badly, and a later attempt may
// succeed.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// IsTransient reports whether err is a retryable fetch failure
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// CandleRecord is one OHLCV bar returned by the market-data API
type CandleRecord struct {
	Ts     time.Time
	Open   decimal.Decimal
	High   decimal.Decimal
	Low    decimal.Decimal
	Close  decimal.Decimal
	Volume int64
}

// candleAPIResponse represents the market-data API response structure
type candleAPIResponse struct {
	Data []struct {
		Code      string  `json:"code"`
		Timestamp int64   `json:"timestamp"`
		Open      float64 `json:"open"`
		High      float64 `json:"high"`
		Low       float64 `json:"low"`
		Close     float64 `json:"close"`
		Volume    int64   `json:"volume"`
	} `json:"data"`
}

// DataFetcher fetches OHLCV candles from the upstream market-data API
type DataFetcher struct {
	baseURL    string
	httpClient *http.Client
}

// NewDataFetcher creates a new data fetcher instance
func NewDataFetcher(baseURL string) *DataFetcher {
	return &DataFetcher{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Fetch returns the ordered candles for one symbol and timeframe within
// [from, to]. Network and upstream failures come back as TransientError.
func (df *DataFetcher) Fetch(symbol, timeframe string, from, to time.Time) ([]CandleRecord, error) {
	query := url.Values{}
	query.Set("symbol", symbol)
	query.Set("resolution", timeframe)
	query.Set("from", fmt.Sprintf("%d", from.Unix()))
	query.Set("to", fmt.Sprintf("%d", to.Unix()))

	resp, err := df.httpClient.Get(df.baseURL + "?" + query.Encode())
	if err != nil {
		return nil, &TransientError{Err: fmt.Errorf("failed to fetch candles for %s: %w", symbol, err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &TransientError{Err: fmt.Errorf("candle API returned %d for %s", resp.StatusCode, symbol)}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransientError{Err: fmt.Errorf("failed to read candle response for %s: %w", symbol, err)}
	}

	var apiResp candleAPIResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return nil, &TransientError{Err: fmt.Errorf("failed to parse candle response for %s: %w", symbol, err)}
	}

	records := make([]CandleRecord, 0, len(apiResp.Data))
	for _, row := range apiResp.Data {
		records = append(records, CandleRecord{
			Ts:     time.Unix(row.Timestamp, 0).UTC(),
			Open:   decimal.NewFromFloat(row.Open),
			High:   decimal.NewFromFloat(row.High),
			Low:    decimal.NewFromFloat(row.Low),
			Close:  decimal.NewFromFloat(row.Close),
			Volume: row.Volume,
		})
	}
	return records, nil
}

// LookbackWindow returns how far back to fetch for a timeframe so a
// collection run covers recent gaps without refetching deep history.
func LookbackWindow(timeframe string) time.Duration {
	switch timeframe {
	case "1m":
		return 2 * time.Hour
	case "5m":
		return 6 * time.Hour
	case "15m":
		return 24 * time.Hour
	case "1h":
		return 3 * 24 * time.Hour
	case "1d":
		return 30 * 24 * time.Hour
	default:
		return 24 * time.Hour
	}
}
