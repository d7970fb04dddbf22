package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"stocksync/internal/domain"
	"stocksync/internal/util"
)

const yahooBaseURL = "https://query1.finance.yahoo.com"

// Yahoo fetches daily bars from the Yahoo Finance v8 chart API. It is the
// last-resort provider: volume comes back in shares already, but amount,
// amplitude, percent change, change, and turnover rate are not served, so
// change-related fields are derived from the previous close and the rest
// stay zero.
type Yahoo struct {
	BaseURL string
	Client  *http.Client
}

// NewYahoo creates a Yahoo provider against the public endpoint.
func NewYahoo() *Yahoo {
	return &Yahoo{BaseURL: yahooBaseURL, Client: newHTTPClient()}
}

// Name implements Provider.
func (p *Yahoo) Name() string { return NameYahoo }

type yahooChartResponse struct {
	Chart struct {
		Result []struct {
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []*float64 `json:"open"`
					High   []*float64 `json:"high"`
					Low    []*float64 `json:"low"`
					Close  []*float64 `json:"close"`
					Volume []*int64   `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// Fetch implements Provider. The adjust parameter is ignored: the chart
// endpoint serves raw prices, with adjustment factors in a separate series.
func (p *Yahoo) Fetch(ctx context.Context, code string, window domain.DateRange, _ domain.Adjust) ([]domain.DailyRecord, error) {
	symbol := code + ".SZ"
	if isShanghai(code) {
		symbol = code + ".SS"
	}

	q := url.Values{}
	q.Set("period1", strconv.FormatInt(window.Start.Unix(), 10))
	// period2 is exclusive; push it past the end of the last requested day.
	q.Set("period2", strconv.FormatInt(util.NextDay(window.End).Unix(), 10))
	q.Set("interval", "1d")
	q.Set("events", "history")

	u := p.BaseURL + "/v8/finance/chart/" + url.PathEscape(symbol) + "?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; stocksync/1.0)")

	resp, err := p.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("yahoo request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("yahoo read body: %w", err)
	}
	if resp.StatusCode == http.StatusNotFound {
		// Unknown symbol: authoritative absence rather than a failure.
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("yahoo: status %d", resp.StatusCode)
	}

	var payload yahooChartResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("yahoo decode: %w", err)
	}
	if payload.Chart.Error != nil {
		return nil, fmt.Errorf("yahoo api error %s: %s", payload.Chart.Error.Code, payload.Chart.Error.Description)
	}
	if len(payload.Chart.Result) == 0 {
		return nil, nil
	}
	result := payload.Chart.Result[0]
	if len(result.Timestamp) == 0 || len(result.Indicators.Quote) == 0 {
		return nil, nil
	}
	quote := result.Indicators.Quote[0]

	records := make([]domain.DailyRecord, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		// Null quote entries mark sessions with no trade; skip them the
		// same way the suspended-day filter would.
		if i >= len(quote.Close) || quote.Close[i] == nil || quote.Open[i] == nil ||
			quote.High[i] == nil || quote.Low[i] == nil {
			continue
		}
		var volume int64
		if i < len(quote.Volume) && quote.Volume[i] != nil {
			volume = *quote.Volume[i]
		}
		records = append(records, domain.DailyRecord{
			Date:   util.Day(time.Unix(ts, 0).UTC()),
			Code:   code,
			Open:   util.Round2(*quote.Open[i]),
			Close:  util.Round2(*quote.Close[i]),
			High:   util.Round2(*quote.High[i]),
			Low:    util.Round2(*quote.Low[i]),
			Volume: volume,
		})
	}
	if len(records) == 0 {
		return nil, nil
	}
	fillDerived(records)
	return records, nil
}
