// Package domain defines the core data model shared by the ingestion
// pipeline: raw records as extracted by the model, committed ledger entries,
// invoice import records, and the consent/rate-limit bookkeeping types.
package domain

import (
	"time"
)

// DocumentType identifies the kind of financial document being imported.
type DocumentType string

const (
	DocumentInvoice       DocumentType = "INVOICE"
	DocumentBankStatement DocumentType = "BANK_STATEMENT"
)

// EntryType is the direction of a ledger entry.
type EntryType string

const (
	EntryIncome  EntryType = "INCOME"
	EntryExpense EntryType = "EXPENSE"
)

// NoDueDate is the sentinel stored when an invoice carries no due date.
const NoDueDate = "no-date"

// RawRecord is one line item as returned by the extraction model. It is
// untrusted input: every field may be wrong or missing, and Validate must be
// called before a record enters the pipeline proper.
type RawRecord struct {
	Description string
	Amount      float64
	Date        time.Time // purchase date
	PaymentDate *time.Time
	Category    string
	Type        EntryType

	IsRecurring bool

	// Installment position as reported by the model, 1-based. Zero when the
	// line is not part of an installment plan.
	CurrentInstallment int
	TotalInstallments  int

	// ShouldIgnore is the model's own opinion that this line is noise. The
	// classifier honors it but always re-evaluates the line itself.
	ShouldIgnore bool
	IgnoreReason string

	Debtor       string
	ReimbursedBy string
	Tags         []string
}

// LedgerEntry is one committed financial transaction.
type LedgerEntry struct {
	ID          string
	Description string
	Amount      float64 // always > 0; Type carries the direction
	Category    string
	Type        EntryType
	Date        time.Time // purchase date
	PaymentDate time.Time // settlement/due date; defaults to Date
	Issuer      string

	IsRecurring   bool
	IsAIGenerated bool

	LinkedInvoiceID string
	Debtor          string
	Tags            []string

	CreatedAt time.Time
}

// InvoiceRecord is the idempotency record for one committed invoice import.
// Exactly one exists per successfully committed invoice-type document.
type InvoiceRecord struct {
	ID               string
	DueDate          string // "YYYY-MM-DD" or NoDueDate
	TotalAmount      float64
	TransactionCount int
	ImportedAt       time.Time
	Fingerprint      string
	TransactionIDs   []string
	Issuer           string
}

// ConsentRecord is the versioned record of the user's data-processing
// decision. It is overwritten on each explicit accept or decline.
type ConsentRecord struct {
	Accepted  bool
	Timestamp time.Time
	Version   string
}

// RateWindow is the bounded list of import timestamps backing the sliding
// rate limit. Callers prune it to the trailing hour on each check.
type RateWindow struct {
	Timestamps []time.Time
}

// Pruned returns a copy of the window with every timestamp older than
// cutoff removed.
func (w RateWindow) Pruned(cutoff time.Time) RateWindow {
	kept := make([]time.Time, 0, len(w.Timestamps))
	for _, ts := range w.Timestamps {
		if !ts.Before(cutoff) {
			kept = append(kept, ts)
		}
	}
	return RateWindow{Timestamps: kept}
}
