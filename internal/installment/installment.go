// Package installment expands one detected installment line into the full
// series of past, current and future ledger entries.
package installment

import (
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"

	"github.com/lvicentin/grana/internal/domain"
)

// suffix like "(3/12)" the model often leaves on installment descriptions.
var installmentSuffix = regexp.MustCompile(`\s*\(\d+\s*/\s*\d+\)\s*$`)

// Expand turns a single installment entry (position current of total, with
// base.PaymentDate being the payment date of the detected installment) into
// the full series of total entries:
//
//   - entries before the detected one get payment dates shifted back one
//     calendar month each,
//   - entries after it get payment dates shifted forward,
//   - every entry keeps the purchase date and per-unit amount of base and
//     receives a fresh id and an "(i/n)" description suffix.
//
// total <= 1 passes the entry through unchanged.
func Expand(base domain.LedgerEntry, current, total int) []domain.LedgerEntry {
	if total <= 1 {
		return []domain.LedgerEntry{base}
	}
	if current < 1 {
		current = 1
	}

	stem := installmentSuffix.ReplaceAllString(base.Description, "")

	series := make([]domain.LedgerEntry, 0, total)
	for i := 1; i <= total; i++ {
		e := base
		e.ID = uuid.NewString()
		e.Description = fmt.Sprintf("%s (%d/%d)", stem, i, total)
		e.PaymentDate = AddMonths(base.PaymentDate, i-current)
		series = append(series, e)
	}
	return series
}

// AddMonths shifts t by the given number of calendar months. When the
// day-of-month does not exist in the target month it is clamped to the last
// valid day: Jan 31 + 1 month = Feb 28 (29 in leap years). This is the fixed
// overflow rule for the whole ledger; time.AddDate is deliberately not used
// because it normalizes Jan 31 + 1 month into March 2/3.
func AddMonths(t time.Time, months int) time.Time {
	y, m, d := t.Date()
	total := int(m) - 1 + months
	y += total / 12
	total %= 12
	if total < 0 {
		total += 12
		y--
	}
	month := time.Month(total + 1)
	if last := daysIn(y, month); d > last {
		d = last
	}
	hh, mm, ss := t.Clock()
	return time.Date(y, month, d, hh, mm, ss, t.Nanosecond(), t.Location())
}

// daysIn returns the number of days in the given month.
func daysIn(year int, month time.Month) int {
	// Day 0 of the next month is the last day of this one.
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
