package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"stocksync/internal/domain"
	"stocksync/internal/util"
)

const eastmoneyBaseURL = "https://push2his.eastmoney.com"

// Eastmoney fetches daily klines from the Eastmoney push2his endpoint. Its
// raw schema is already the canonical column set; only the volume unit
// (lots) needs conversion.
type Eastmoney struct {
	BaseURL string
	Client  *http.Client
}

// NewEastmoney creates an Eastmoney provider against the public endpoint.
func NewEastmoney() *Eastmoney {
	return &Eastmoney{BaseURL: eastmoneyBaseURL, Client: newHTTPClient()}
}

// Name implements Provider.
func (p *Eastmoney) Name() string { return NameEastmoney }

// emKlineResponse mirrors the push2his kline payload. data is null when the
// instrument has no rows in the window.
type emKlineResponse struct {
	Data *struct {
		Code   string   `json:"code"`
		Name   string   `json:"name"`
		Klines []string `json:"klines"`
	} `json:"data"`
}

// Fetch implements Provider.
func (p *Eastmoney) Fetch(ctx context.Context, code string, window domain.DateRange, adjust domain.Adjust) ([]domain.DailyRecord, error) {
	secid := "0." + code
	if isShanghai(code) {
		secid = "1." + code
	}

	fqt := "0"
	switch adjust {
	case domain.AdjustForward:
		fqt = "1"
	case domain.AdjustBackward:
		fqt = "2"
	}

	q := url.Values{}
	q.Set("secid", secid)
	q.Set("klt", "101") // daily bars
	q.Set("fqt", fqt)
	q.Set("beg", util.Compact(window.Start))
	q.Set("end", util.Compact(window.End))
	q.Set("fields1", "f1,f2,f3,f4,f5,f6")
	// f51..f61: date, open, close, high, low, volume, amount, amplitude,
	// pct change, change, turnover rate.
	q.Set("fields2", "f51,f52,f53,f54,f55,f56,f57,f58,f59,f60,f61")

	u := p.BaseURL + "/api/qt/stock/kline/get?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}

	resp, err := p.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("eastmoney request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("eastmoney read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("eastmoney: status %d", resp.StatusCode)
	}

	var payload emKlineResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("eastmoney decode: %w", err)
	}
	if payload.Data == nil || len(payload.Data.Klines) == 0 {
		return nil, nil
	}

	records := make([]domain.DailyRecord, 0, len(payload.Data.Klines))
	for _, line := range payload.Data.Klines {
		rec, err := parseEastmoneyKline(line, code, payload.Data.Name)
		if err != nil {
			return nil, fmt.Errorf("eastmoney kline %q: %w", line, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

func parseEastmoneyKline(line, code, name string) (domain.DailyRecord, error) {
	fields := strings.Split(line, ",")
	if len(fields) != 11 {
		return domain.DailyRecord{}, fmt.Errorf("want 11 fields, got %d", len(fields))
	}

	date, err := util.ParseISO(fields[0])
	if err != nil {
		return domain.DailyRecord{}, err
	}

	nums := make([]float64, 10)
	for i, f := range fields[1:] {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return domain.DailyRecord{}, fmt.Errorf("field %d: %w", i+1, err)
		}
		nums[i] = v
	}

	return domain.DailyRecord{
		Date:         date,
		Code:         code,
		Name:         name,
		Open:         util.Round2(nums[0]),
		Close:        util.Round2(nums[1]),
		High:         util.Round2(nums[2]),
		Low:          util.Round2(nums[3]),
		Volume:       int64(nums[4]) * 100, // lots to shares
		Amount:       util.Round2(nums[5]),
		Amplitude:    util.Round2(nums[6]),
		PctChange:    util.Round2(nums[7]),
		Change:       util.Round2(nums[8]),
		TurnoverRate: util.Round2(nums[9]),
	}, nil
}
