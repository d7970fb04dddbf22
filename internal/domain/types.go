// Package domain defines the canonical data types shared across the
// synchronization engine: daily records, update modes, and adjustment types.
package domain

import (
	"fmt"
	"time"
)

// Market identifies a market segment in the data directory layout.
type Market string

const (
	// MarketCN is the China A-share market.
	MarketCN Market = "CN"
)

// DailyRecord is one observation of the canonical daily schema. Every
// provider's output is normalized into this shape before merging: prices
// rounded to 2 decimals, volume in shares (integral), amount in CNY.
type DailyRecord struct {
	Date         time.Time // calendar day, unique within one series
	Code         string    // 6-digit, zero-padded
	Name         string    // instrument name as of Date; never rewritten
	Open         float64
	Close        float64
	High         float64
	Low          float64
	Volume       int64
	Amount       float64
	Amplitude    float64
	PctChange    float64
	Change       float64
	TurnoverRate float64
}

// UpdateMode selects how the range resolver treats gaps inside an existing
// series.
type UpdateMode string

const (
	// ModeTail only appends trailing data; interior gaps are assumed to be
	// trading halts and left alone. This is the default.
	ModeTail UpdateMode = "tail"
	// ModeFull re-fetches the whole window whenever an interior gap exists.
	ModeFull UpdateMode = "full"
	// ModeHeadTail fills head and tail gaps but ignores interior ones.
	ModeHeadTail UpdateMode = "head_tail"
)

// ParseUpdateMode validates a configuration string as an UpdateMode.
func ParseUpdateMode(s string) (UpdateMode, error) {
	switch UpdateMode(s) {
	case ModeTail, ModeFull, ModeHeadTail:
		return UpdateMode(s), nil
	case "":
		return ModeTail, nil
	}
	return "", fmt.Errorf("unknown update mode %q", s)
}

// Adjust is the price adjustment applied by providers that support it.
type Adjust string

const (
	// AdjustForward is forward-adjusted pricing (qfq).
	AdjustForward Adjust = "qfq"
	// AdjustBackward is backward-adjusted pricing (hfq).
	AdjustBackward Adjust = "hfq"
	// AdjustNone is unadjusted pricing.
	AdjustNone Adjust = ""
)

// DateRange is an inclusive calendar-day range.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// Instrument is one entry of the tradable universe.
type Instrument struct {
	Code string
	Name string
}
