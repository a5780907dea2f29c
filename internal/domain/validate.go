package domain

import (
	"fmt"
	"strings"
	"time"
)

// ValidationError reports a malformed raw record. The record is dropped with
// a diagnostic; the rest of the document keeps processing.
type ValidationError struct {
	Field  string
	Detail string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid record: field %q: %s", e.Field, e.Detail)
}

// Validate checks the fields a record must carry before it can become a
// ledger entry. It returns a *ValidationError describing the first problem
// found, or nil.
func (r RawRecord) Validate() error {
	if strings.TrimSpace(r.Description) == "" {
		return &ValidationError{Field: "description", Detail: "missing"}
	}
	if r.Amount <= 0 {
		return &ValidationError{Field: "amount", Detail: fmt.Sprintf("must be positive, got %v", r.Amount)}
	}
	if r.Date.IsZero() {
		return &ValidationError{Field: "date", Detail: "missing"}
	}
	switch r.Type {
	case EntryIncome, EntryExpense:
	default:
		return &ValidationError{Field: "type", Detail: fmt.Sprintf("must be INCOME or EXPENSE, got %q", r.Type)}
	}
	if r.CurrentInstallment < 0 || r.TotalInstallments < 0 {
		return &ValidationError{Field: "installments", Detail: "negative installment position"}
	}
	if r.TotalInstallments > 0 && r.CurrentInstallment > r.TotalInstallments {
		return &ValidationError{
			Field:  "installments",
			Detail: fmt.Sprintf("current %d exceeds total %d", r.CurrentInstallment, r.TotalInstallments),
		}
	}
	return nil
}

// SettlementDate returns the record's payment date, falling back to the
// purchase date when the model did not report one.
func (r RawRecord) SettlementDate() time.Time {
	if r.PaymentDate != nil && !r.PaymentDate.IsZero() {
		return *r.PaymentDate
	}
	return r.Date
}
