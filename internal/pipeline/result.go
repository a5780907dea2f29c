package pipeline

import (
	"github.com/lvicentin/grana/internal/domain"
)

// Result is the typed outcome of one Submit call. Terminal outcomes are
// always explicit variants, never an ambiguous empty entry list.
type Result interface {
	isResult()
}

// Committed reports a successful import. Invoice is nil for bank
// statements.
type Committed struct {
	Entries []domain.LedgerEntry
	Invoice *domain.InvoiceRecord
	// Dropped counts line items that did not enter the ledger (noise plus
	// invalid records), for observability.
	Dropped int
}

// DuplicateDetected reports that the same invoice was already imported.
// Nothing was committed; Prior carries the earlier record's due date and
// import time.
type DuplicateDetected struct {
	Prior *domain.InvoiceRecord
}

// RateLimited reports an exhausted import window.
type RateLimited struct {
	RetryAfterSeconds int
}

// ConsentRequired reports that no valid consent exists for the current
// notice version.
type ConsentRequired struct {
	RequiredVersion string
}

// NoTransactionsFound reports a document from which nothing importable
// survived: the model found no line items, or every one was dropped.
type NoTransactionsFound struct {
	Extracted int
	Dropped   int
}

func (Committed) isResult()           {}
func (DuplicateDetected) isResult()   {}
func (RateLimited) isResult()         {}
func (ConsentRequired) isResult()     {}
func (NoTransactionsFound) isResult() {}
