package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"sort"

	"stocksync/internal/domain"
	"stocksync/internal/util"
)

const tushareBaseURL = "https://api.tushare.pro"

// Tushare fetches daily bars from the TuShare Pro HTTP API. TuShare reports
// volume in lots and amount in thousand CNY; both are converted to the
// canonical units. The daily endpoint carries no instrument name or turnover
// rate, so those fields are zero-filled, and amplitude is derived from the
// previous close it does return.
type Tushare struct {
	BaseURL string
	Token   string
	Client  *http.Client
}

// NewTushare creates a Tushare provider with the given API token.
func NewTushare(token string) *Tushare {
	return &Tushare{BaseURL: tushareBaseURL, Token: token, Client: newHTTPClient()}
}

// Name implements Provider.
func (p *Tushare) Name() string { return NameTushare }

type tushareRequest struct {
	APIName string            `json:"api_name"`
	Token   string            `json:"token"`
	Params  map[string]string `json:"params"`
	Fields  string            `json:"fields"`
}

type tushareResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data *struct {
		Fields []string          `json:"fields"`
		Items  [][]json.RawMessage `json:"items"`
	} `json:"data"`
}

// Fetch implements Provider. The adjust parameter is ignored: the daily
// endpoint serves unadjusted prices only.
func (p *Tushare) Fetch(ctx context.Context, code string, window domain.DateRange, _ domain.Adjust) ([]domain.DailyRecord, error) {
	if p.Token == "" {
		return nil, fmt.Errorf("tushare: no token configured")
	}

	tsCode := code + ".SZ"
	if isShanghai(code) {
		tsCode = code + ".SH"
	}

	reqBody, err := json.Marshal(tushareRequest{
		APIName: "daily",
		Token:   p.Token,
		Params: map[string]string{
			"ts_code":    tsCode,
			"start_date": util.Compact(window.Start),
			"end_date":   util.Compact(window.End),
		},
		Fields: "trade_date,open,high,low,close,pre_close,change,pct_chg,vol,amount",
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.BaseURL, bytes.NewReader(reqBody))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tushare request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("tushare read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tushare: status %d", resp.StatusCode)
	}

	var payload tushareResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("tushare decode: %w", err)
	}
	if payload.Code != 0 {
		return nil, fmt.Errorf("tushare api error %d: %s", payload.Code, payload.Msg)
	}
	if payload.Data == nil || len(payload.Data.Items) == 0 {
		return nil, nil
	}

	idx := make(map[string]int, len(payload.Data.Fields))
	for i, f := range payload.Data.Fields {
		idx[f] = i
	}

	records := make([]domain.DailyRecord, 0, len(payload.Data.Items))
	for _, item := range payload.Data.Items {
		rec, err := parseTushareItem(item, idx, code)
		if err != nil {
			return nil, fmt.Errorf("tushare item: %w", err)
		}
		records = append(records, rec)
	}
	// TuShare returns newest first.
	sort.Slice(records, func(i, j int) bool { return records[i].Date.Before(records[j].Date) })
	return records, nil
}

func parseTushareItem(item []json.RawMessage, idx map[string]int, code string) (domain.DailyRecord, error) {
	str := func(name string) (string, error) {
		i, ok := idx[name]
		if !ok || i >= len(item) {
			return "", fmt.Errorf("missing field %s", name)
		}
		var s string
		if err := json.Unmarshal(item[i], &s); err != nil {
			return "", fmt.Errorf("field %s: %w", name, err)
		}
		return s, nil
	}
	num := func(name string) (float64, error) {
		i, ok := idx[name]
		if !ok || i >= len(item) {
			return 0, fmt.Errorf("missing field %s", name)
		}
		if bytes.Equal(item[i], []byte("null")) {
			return 0, nil
		}
		var v float64
		if err := json.Unmarshal(item[i], &v); err != nil {
			return 0, fmt.Errorf("field %s: %w", name, err)
		}
		return v, nil
	}

	tradeDate, err := str("trade_date")
	if err != nil {
		return domain.DailyRecord{}, err
	}
	date, err := util.ParseCompact(tradeDate)
	if err != nil {
		return domain.DailyRecord{}, err
	}

	var open, high, low, closePx, preClose, change, pctChg, vol, amount float64
	for name, dst := range map[string]*float64{
		"open": &open, "high": &high, "low": &low, "close": &closePx,
		"pre_close": &preClose, "change": &change, "pct_chg": &pctChg,
		"vol": &vol, "amount": &amount,
	} {
		v, err := num(name)
		if err != nil {
			return domain.DailyRecord{}, err
		}
		*dst = v
	}

	amplitude := 0.0
	if preClose != 0 {
		amplitude = (high - low) / preClose * 100
	}

	return domain.DailyRecord{
		Date:      date,
		Code:      code,
		Name:      "", // daily endpoint carries no instrument name
		Open:      util.Round2(open),
		Close:     util.Round2(closePx),
		High:      util.Round2(high),
		Low:       util.Round2(low),
		Volume:    int64(math.Round(vol * 100)),   // lots to shares
		Amount:    util.Round2(amount * 1000),     // thousand CNY to CNY
		Amplitude: util.Round2(amplitude),
		PctChange: util.Round2(pctChg),
		Change:    util.Round2(change),
		// Turnover rate is not served by the daily endpoint.
		TurnoverRate: 0,
	}, nil
}
