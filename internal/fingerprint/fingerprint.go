// Package fingerprint computes the idempotency key for whole-document
// invoice imports: a stable hash over the due date and the multiset of
// {description, amount} pairs, independent of line-item order.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strconv"
	"strings"

	"github.com/lvicentin/grana/internal/dedup"
	"github.com/lvicentin/grana/internal/domain"
)

// Compute hashes dueDate (empty means domain.NoDueDate) together with the
// normalized {description, amount} pairs of the surviving entries. Two
// imports of the same invoice with reordered line items collide.
func Compute(dueDate string, entries []domain.LedgerEntry) string {
	if strings.TrimSpace(dueDate) == "" {
		dueDate = domain.NoDueDate
	}

	pairs := make([]string, 0, len(entries))
	for _, e := range entries {
		// Fixed-point formatting so float representation noise cannot split
		// fingerprints of identical amounts.
		amount := strconv.FormatFloat(e.Amount, 'f', 2, 64)
		pairs = append(pairs, dedup.Normalize(e.Description)+"|"+amount)
	}
	sort.Strings(pairs)

	h := sha256.New()
	h.Write([]byte(dueDate))
	for _, p := range pairs {
		h.Write([]byte{0})
		h.Write([]byte(p))
	}
	return hex.EncodeToString(h.Sum(nil))
}
