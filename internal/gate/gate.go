// Package gate is the admission control in front of the import pipeline: a
// versioned consent check and a sliding-window rate limiter. Nothing reaches
// the extraction model without passing both.
package gate

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/lvicentin/grana/internal/domain"
	"github.com/lvicentin/grana/internal/store"
)

// Gate bundles both admission checks.
type Gate struct {
	store         store.Store
	noticeVersion string
	limit         int
	window        time.Duration

	// now is swappable for tests.
	now func() time.Time
}

// New builds a gate enforcing the given notice version and rate limit.
func New(st store.Store, noticeVersion string, limit int, window time.Duration) *Gate {
	return &Gate{
		store:         st,
		noticeVersion: noticeVersion,
		limit:         limit,
		window:        window,
		now:           time.Now,
	}
}

// WithClock replaces the time source. Tests only.
func (g *Gate) WithClock(now func() time.Time) *Gate {
	g.now = now
	return g
}

// ConsentStatus is the outcome of the consent check.
type ConsentStatus struct {
	// Granted is true only when an accepted record exists for the current
	// notice version.
	Granted bool
	// RequiredVersion is the version the user must accept.
	RequiredVersion string
}

// CheckConsent verifies that an accepted consent record exists and matches
// the current notice version. A missing record, a declined record, and an
// accepted record for an older notice all fail.
func (g *Gate) CheckConsent(ctx context.Context, userID string) (ConsentStatus, error) {
	status := ConsentStatus{RequiredVersion: g.noticeVersion}
	rec, err := g.store.GetConsent(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return status, nil
	}
	if err != nil {
		return status, fmt.Errorf("gate: consent lookup: %w", err)
	}
	status.Granted = rec.Accepted && rec.Version == g.noticeVersion
	return status, nil
}

// RecordConsent stores the user's explicit decision for the current notice
// version, overwriting any previous decision.
func (g *Gate) RecordConsent(ctx context.Context, userID string, accepted bool) error {
	rec := domain.ConsentRecord{
		Accepted:  accepted,
		Timestamp: g.now(),
		Version:   g.noticeVersion,
	}
	if err := g.store.PutConsent(ctx, userID, rec); err != nil {
		return fmt.Errorf("gate: record consent: %w", err)
	}
	return nil
}

// RateStatus is the outcome of the rate check.
type RateStatus struct {
	Allowed bool
	// RetryAfterSeconds is how long until the oldest timestamp leaves the
	// window. Only meaningful when Allowed is false, and then always > 0.
	RetryAfterSeconds int
	// Used is the number of imports currently inside the window.
	Used int
}

// CheckRate prunes the user's window to the trailing period and compares the
// remaining count to the cap. The prune is persisted so the stored window
// stays bounded. It does not append; call RecordImport after a successful
// run. Check and append are therefore two atomic regions, not one:
// concurrent submissions racing at the cap can briefly overshoot it by the
// number of in-flight extractions. The window itself never loses an update,
// and the overshoot self-corrects on the next check.
func (g *Gate) CheckRate(ctx context.Context, userID string) (RateStatus, error) {
	now := g.now()
	cutoff := now.Add(-g.window)

	window, err := g.store.UpdateRateWindow(ctx, userID, func(w domain.RateWindow) domain.RateWindow {
		return w.Pruned(cutoff)
	})
	if err != nil {
		return RateStatus{}, fmt.Errorf("gate: rate window: %w", err)
	}

	status := RateStatus{Used: len(window.Timestamps)}
	if len(window.Timestamps) < g.limit {
		status.Allowed = true
		return status, nil
	}

	oldest := window.Timestamps[0]
	for _, ts := range window.Timestamps[1:] {
		if ts.Before(oldest) {
			oldest = ts
		}
	}
	retry := int(math.Ceil(oldest.Add(g.window).Sub(now).Seconds()))
	if retry < 1 {
		retry = 1
	}
	status.RetryAfterSeconds = retry
	return status, nil
}

// RecordImport appends exactly one timestamp to the user's window. Called
// once per successful pipeline run.
func (g *Gate) RecordImport(ctx context.Context, userID string) error {
	now := g.now()
	cutoff := now.Add(-g.window)
	_, err := g.store.UpdateRateWindow(ctx, userID, func(w domain.RateWindow) domain.RateWindow {
		pruned := w.Pruned(cutoff)
		pruned.Timestamps = append(pruned.Timestamps, now)
		return pruned
	})
	if err != nil {
		return fmt.Errorf("gate: record import: %w", err)
	}
	return nil
}
