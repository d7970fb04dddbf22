// Package fetcher turns the individual providers into one resilient fetch
// operation: try the preferred provider first, fall through the remaining
// ones in a fixed order, and report which source answered.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/time/rate"

	"stocksync/internal/domain"
	"stocksync/internal/provider"
)

// Kind classifies a fetch outcome.
type Kind int

const (
	// KindSuccess means a provider returned at least one record.
	KindSuccess Kind = iota
	// KindNoData means a healthy provider authoritatively reported an
	// empty window. Remaining providers are not consulted.
	KindNoData
	// KindFailure means every provider errored.
	KindFailure
)

func (k Kind) String() string {
	switch k {
	case KindSuccess:
		return "success"
	case KindNoData:
		return "no_data"
	default:
		return "failure"
	}
}

// ProviderError records which provider failed and how.
type ProviderError struct {
	Provider string
	Err      error
}

func (e ProviderError) Error() string {
	return fmt.Sprintf("%s: %v", e.Provider, e.Err)
}

// Outcome is the tri-state result of a failover fetch. Records is populated
// only for KindSuccess; Source names the provider that answered for both
// KindSuccess and KindNoData; Errors accumulates every provider failure seen
// along the way regardless of the final kind.
type Outcome struct {
	Kind    Kind
	Records []domain.DailyRecord
	Source  string
	Errors  []ProviderError
}

// Failover tries providers in order until one answers. The order is the
// configured preferred provider first, then the fixed enumeration order with
// the preferred one deduplicated.
type Failover struct {
	providers map[string]provider.Provider
	order     []string
	limiter   *rate.Limiter
	log       *slog.Logger

	mu    sync.Mutex
	usage map[string]int
}

// New builds a Failover over the given providers. preferred may be empty or
// name a provider that is not registered; either way the fixed order is used
// for the rest. limiter is optional and, when set, gates every upstream
// request across all providers.
func New(providers []provider.Provider, preferred string, limiter *rate.Limiter, logger *slog.Logger) *Failover {
	if logger == nil {
		logger = slog.Default()
	}

	byName := make(map[string]provider.Provider, len(providers))
	for _, p := range providers {
		byName[p.Name()] = p
	}

	var order []string
	if _, ok := byName[preferred]; ok {
		order = append(order, preferred)
	}
	for _, name := range provider.Order {
		if name == preferred {
			continue
		}
		if _, ok := byName[name]; ok {
			order = append(order, name)
		}
	}

	return &Failover{
		providers: byName,
		order:     order,
		limiter:   limiter,
		log:       logger,
		usage:     make(map[string]int),
	}
}

// Fetch runs the failover chain for one instrument. Records from providers
// that carry no instrument name are stamped with the universe name so every
// successful batch is uniformly attributed.
func (f *Failover) Fetch(ctx context.Context, inst domain.Instrument, window domain.DateRange, adjust domain.Adjust) Outcome {
	out := Outcome{Kind: KindFailure}

	for _, name := range f.order {
		p := f.providers[name]

		if f.limiter != nil {
			if err := f.limiter.Wait(ctx); err != nil {
				out.Errors = append(out.Errors, ProviderError{Provider: name, Err: err})
				return out
			}
		}
		if err := ctx.Err(); err != nil {
			out.Errors = append(out.Errors, ProviderError{Provider: name, Err: err})
			return out
		}

		records, err := p.Fetch(ctx, inst.Code, window, adjust)
		if err != nil {
			f.log.Warn("provider fetch failed",
				"provider", name, "code", inst.Code, "error", err)
			out.Errors = append(out.Errors, ProviderError{Provider: name, Err: err})
			continue
		}

		out.Source = name
		if len(records) == 0 {
			out.Kind = KindNoData
			return out
		}
		f.count(name)

		for i := range records {
			if records[i].Name == "" {
				records[i].Name = inst.Name
			}
		}
		out.Kind = KindSuccess
		out.Records = records
		return out
	}
	return out
}

func (f *Failover) count(name string) {
	f.mu.Lock()
	f.usage[name]++
	f.mu.Unlock()
}

// Stats returns a copy of the per-provider usage counters. Only answers that
// carried records count; authoritative-empty answers do not.
func (f *Failover) Stats() map[string]int {
	f.mu.Lock()
	defer f.mu.Unlock()
	stats := make(map[string]int, len(f.usage))
	for k, v := range f.usage {
		stats[k] = v
	}
	return stats
}

// Close logs out every session-based provider.
func (f *Failover) Close() error {
	var errs []error
	for _, name := range f.order {
		if sp, ok := f.providers[name].(provider.SessionProvider); ok {
			if err := sp.Logout(); err != nil {
				errs = append(errs, fmt.Errorf("%s logout: %w", name, err))
			}
		}
	}
	return errors.Join(errs...)
}
