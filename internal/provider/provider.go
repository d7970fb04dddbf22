// Package provider contains the upstream data-source bindings. Every
// provider conforms to the same contract: fetch daily records for one
// instrument and an inclusive date window, already normalized into the
// canonical schema. A nil slice with a nil error is an authoritative empty
// answer: the provider is healthy and reports that no data exists for the
// window (non-trading days, pre-listing, or a fully suspended range).
package provider

import (
	"context"
	"net/http"
	"time"

	"stocksync/internal/domain"
	"stocksync/internal/util"
)

// Provider is the uniform contract the failover fetcher depends on.
type Provider interface {
	// Name returns the provider identifier used in configuration, logs,
	// and usage statistics.
	Name() string

	// Fetch returns normalized daily records for code over the inclusive
	// window, a nil slice when the window is authoritatively empty, or an
	// error on transport/auth/decoding failure.
	Fetch(ctx context.Context, code string, window domain.DateRange, adjust domain.Adjust) ([]domain.DailyRecord, error)
}

// SessionProvider is implemented by providers that require an authenticated
// session. The failover fetcher establishes the session lazily on first use
// and releases it when the fetcher closes.
type SessionProvider interface {
	Provider
	Login(ctx context.Context) error
	Logout() error
}

// Order is the fixed enumeration order in which providers are tried after
// the configured preferred provider.
var Order = []string{NameBaostock, NameEastmoney, NameTushare, NameYahoo}

// Provider identifiers.
const (
	NameBaostock  = "baostock"
	NameEastmoney = "eastmoney"
	NameTushare   = "tushare"
	NameYahoo     = "yahoo"
)

const defaultTimeout = 30 * time.Second

func newHTTPClient() *http.Client {
	return &http.Client{Timeout: defaultTimeout}
}

// exchangePrefix maps a 6-digit code to its exchange: Shanghai for 6xxxxx,
// Shenzhen otherwise.
func isShanghai(code string) bool {
	return len(code) > 0 && code[0] == '6'
}

// fillDerived computes change, percent change, and amplitude from the
// previous close for providers whose raw schema lacks them. Records must be
// sorted ascending by date. The first record of a window has no previous
// close inside the window; its derived fields stay zero, matching the
// upstream schemas that zero-fill unknowable head values.
func fillDerived(records []domain.DailyRecord) {
	for i := range records {
		if i == 0 {
			continue
		}
		prev := records[i-1].Close
		if prev == 0 {
			continue
		}
		r := &records[i]
		r.Change = util.Round2(r.Close - prev)
		r.PctChange = util.Round2((r.Close - prev) / prev * 100)
		r.Amplitude = util.Round2((r.High - r.Low) / prev * 100)
	}
}
