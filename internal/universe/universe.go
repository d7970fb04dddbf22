// Package universe maintains the instrument list the sync iterates over: a
// local CSV snapshot plus a refresh path from the Eastmoney listing endpoint.
package universe

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"stocksync/internal/domain"
)

// FileName is the universe snapshot kept next to the series files.
const FileName = "stock_list.csv"

const (
	listBaseURL  = "https://82.push2.eastmoney.com"
	listPageSize = 1000
	listTimeout  = 30 * time.Second
)

// Load reads the instrument list from dir/stock_list.csv. Codes are
// normalized to six digits so lists written by tools that strip leading
// zeros still resolve to the right instruments.
func Load(dir string) ([]domain.Instrument, error) {
	path := filepath.Join(dir, FileName)
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening universe: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	var instruments []domain.Instrument
	for line := 0; ; line++ {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("universe line %d: %w", line+1, err)
		}
		if line == 0 && strings.EqualFold(rec[0], "code") {
			continue // header
		}
		if len(rec) < 2 || rec[0] == "" {
			continue
		}
		instruments = append(instruments, domain.Instrument{
			Code: padCode(rec[0]),
			Name: rec[1],
		})
	}
	return instruments, nil
}

// Save writes the instrument list to dir/stock_list.csv with a header row.
func Save(dir string, instruments []domain.Instrument) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating universe dir: %w", err)
	}
	f, err := os.Create(filepath.Join(dir, FileName))
	if err != nil {
		return fmt.Errorf("creating universe: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"code", "name"}); err != nil {
		return err
	}
	for _, inst := range instruments {
		if err := w.Write([]string{inst.Code, inst.Name}); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// Fetcher retrieves the current A-share listing from the Eastmoney clist
// endpoint, page by page.
type Fetcher struct {
	BaseURL string
	Client  *http.Client
}

// NewFetcher creates a Fetcher against the public endpoint.
func NewFetcher() *Fetcher {
	return &Fetcher{BaseURL: listBaseURL, Client: &http.Client{Timeout: listTimeout}}
}

type listResponse struct {
	Data *struct {
		Total int `json:"total"`
		Diff  []struct {
			Code string `json:"f12"`
			Name string `json:"f14"`
		} `json:"diff"`
	} `json:"data"`
}

// Fetch pages through the listing until every instrument is collected. The
// result is sorted by code.
func (f *Fetcher) Fetch(ctx context.Context) ([]domain.Instrument, error) {
	var instruments []domain.Instrument
	total := -1

	for page := 1; total < 0 || len(instruments) < total; page++ {
		q := url.Values{}
		q.Set("pn", strconv.Itoa(page))
		q.Set("pz", strconv.Itoa(listPageSize))
		// Shanghai and Shenzhen A-share boards.
		q.Set("fs", "m:0 t:6,m:0 t:80,m:1 t:2,m:1 t:23")
		q.Set("fields", "f12,f14")

		u := f.BaseURL + "/api/qt/clist/get?" + q.Encode()
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return nil, err
		}

		resp, err := f.Client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("universe request page %d: %w", page, err)
		}
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("universe read page %d: %w", page, err)
		}
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("universe page %d: status %d", page, resp.StatusCode)
		}

		var payload listResponse
		if err := json.Unmarshal(body, &payload); err != nil {
			return nil, fmt.Errorf("universe decode page %d: %w", page, err)
		}
		if payload.Data == nil || len(payload.Data.Diff) == 0 {
			break
		}
		total = payload.Data.Total
		for _, d := range payload.Data.Diff {
			instruments = append(instruments, domain.Instrument{Code: padCode(d.Code), Name: d.Name})
		}
	}

	if len(instruments) == 0 {
		return nil, fmt.Errorf("universe: listing endpoint returned no instruments")
	}
	sort.Slice(instruments, func(i, j int) bool { return instruments[i].Code < instruments[j].Code })
	return instruments, nil
}

// padCode left-pads a numeric code to six digits.
func padCode(code string) string {
	code = strings.TrimSpace(code)
	for len(code) < 6 {
		code = "0" + code
	}
	return code
}
