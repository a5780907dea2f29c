// Package store defines the persistence collaborator the ingestion core
// depends on. The core only sees this interface; the sqlite implementation
// in the sqlite subpackage is the shipped collaborator, and the in-memory
// implementation backs tests and lightweight setups.
package store

import (
	"context"
	"errors"

	"github.com/lvicentin/grana/internal/domain"
)

var (
	// ErrNotFound is returned by lookups that found nothing.
	ErrNotFound = errors.New("store: not found")
	// ErrFingerprintExists is returned by CommitImport when another import
	// already committed the same invoice fingerprint. It is the losing side
	// of the compare-and-set.
	ErrFingerprintExists = errors.New("store: invoice fingerprint already committed")
)

// Store is the persistence boundary of the ingestion core.
//
// CommitImport, UpdateRateWindow and EncryptionSalt carry the three
// atomicity obligations of the system: the fingerprint check-then-commit is
// a single compare-and-set region, the rate window read-prune-append is
// atomic per user, and at most one salt is ever persisted.
type Store interface {
	// GetInvoiceByFingerprint returns the invoice record committed under the
	// fingerprint, or ErrNotFound.
	GetInvoiceByFingerprint(ctx context.Context, fingerprint string) (*domain.InvoiceRecord, error)

	// CommitImport atomically persists the entry batch and, when invoice is
	// non-nil, the invoice record keyed by its fingerprint. If that
	// fingerprint is already present nothing is written and
	// ErrFingerprintExists is returned.
	CommitImport(ctx context.Context, userID string, entries []domain.LedgerEntry, invoice *domain.InvoiceRecord) error

	// RecurringDescriptions lists the descriptions of entries flagged
	// recurring, for the duplicate matcher and the extraction prompt.
	RecurringDescriptions(ctx context.Context, userID string) ([]string, error)

	// MonthlyExpenseTotals returns expense totals by payment month for the
	// trailing months, ordered oldest to newest. Months without expenses are
	// omitted.
	MonthlyExpenseTotals(ctx context.Context, userID string, months int) ([]float64, error)

	// RecurringExpenseTotal sums the amounts of recurring-flagged expenses.
	RecurringExpenseTotal(ctx context.Context, userID string) (float64, error)

	// CountEntries reports how many ledger entries the user has.
	CountEntries(ctx context.Context, userID string) (int, error)

	// GetConsent returns the user's consent record, or ErrNotFound when the
	// user never decided.
	GetConsent(ctx context.Context, userID string) (*domain.ConsentRecord, error)

	// PutConsent overwrites the user's consent record.
	PutConsent(ctx context.Context, userID string, rec domain.ConsentRecord) error

	// UpdateRateWindow applies fn to the user's rate window and persists the
	// result, all under one lock, returning the updated window.
	UpdateRateWindow(ctx context.Context, userID string, fn func(domain.RateWindow) domain.RateWindow) (domain.RateWindow, error)

	// EncryptionSalt returns the per-installation salt, generating and
	// persisting it on first use. Concurrent first use observes one salt.
	EncryptionSalt(ctx context.Context) ([]byte, error)

	Close() error
}
