// Package devicesync is the device memory synchronization engine: paginated retrieval of a
// terminal's onboard directory, reconciliation against the central identity store, and
// import/export runs with progress and per-item failure accounting.
package devicesync

import (
	"context"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/gatewarden/gatewarden/internal/terminal"
)

// DefaultSafetyCap bounds the number of records a single listing may accumulate.
const DefaultSafetyCap = 15000

// ProgressFunc receives listing progress after every page.
type ProgressFunc func(processed, total, percent int)

// Fetcher drives an adapter's paginated listing to completion.
type Fetcher struct {
	// SafetyCap forces termination once this many records were processed.
	SafetyCap int

	Metrics *Metrics
	Logger  zerolog.Logger
}

// NewFetcher creates a Fetcher with the given safety cap; zero or less selects DefaultSafetyCap.
func NewFetcher(safetyCap int, metrics *Metrics, logger zerolog.Logger) *Fetcher {
	if safetyCap <= 0 {
		safetyCap = DefaultSafetyCap
	}
	return &Fetcher{SafetyCap: safetyCap, Metrics: metrics, Logger: logger}
}

// FetchAll lists the whole directory of the adapter's device, deduplicated by record key
// in listing order. Records without a key are skipped. Any page error discards what was
// accumulated and is returned as is.
func (f *Fetcher) FetchAll(ctx context.Context, adapter terminal.Adapter, progress ProgressFunc) ([]terminal.IdentityRecord, error) {
	start := time.Now()
	cursor := uuid.New().String()
	dev := adapter.Device()

	seen := make(map[string]struct{})
	var records []terminal.IdentityRecord
	processed, offset, pages := 0, 0, 0

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		page, err := adapter.ListIdentitiesPage(ctx, cursor, offset)
		if err != nil {
			f.Metrics.recordFetch(ctx, adapter.Brand(), time.Since(start), false)
			return nil, err
		}
		pages++

		batch := len(page.Records)
		for _, rec := range page.Records {
			key := rec.Key()
			if key == "" {
				continue
			}
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			records = append(records, rec)
		}

		processed += batch
		offset += batch

		if progress != nil {
			progress(processed, page.Total, Percent(processed, page.Total))
		}

		if stop, reason := f.done(page, batch, processed, offset); stop {
			f.Logger.Debug().
				Str("device", dev.Name).
				Int("pages", pages).
				Int("records", len(records)).
				Int("claimed_total", page.Total).
				Str("reason", reason).
				Msg("Directory listing finished")
			break
		}
	}

	f.Metrics.recordFetch(ctx, adapter.Brand(), time.Since(start), true)
	return records, nil
}

// done evaluates the termination conditions in order; the first match wins.
func (f *Fetcher) done(page *terminal.Page, batch, processed, offset int) (bool, string) {
	switch {
	case page.IsLastPage:
		return true, "last_page"
	case processed >= page.Total:
		return true, "total_reached"
	case offset > page.Total:
		return true, "offset_past_total"
	case batch == 0:
		return true, "empty_page"
	case processed >= f.SafetyCap:
		f.Logger.Warn().Int("cap", f.SafetyCap).Msg("Listing hit the safety cap")
		return true, "safety_cap"
	default:
		return false, ""
	}
}

// Percent returns min(100, round(processed/total*100)), or 0 when total is unknown.
func Percent(processed, total int) int {
	if total <= 0 {
		return 0
	}
	p := int(math.Round(float64(processed) / float64(total) * 100))
	if p > 100 {
		return 100
	}
	return p
}
