// Package oracle wraps the document-extraction model. The model is an
// untrusted black box: it receives document bytes and returns structured
// guesses, which are decoded at this boundary into a strict schema. Unknown
// shapes fail closed instead of silently defaulting.
package oracle

import (
	"context"

	"github.com/lvicentin/grana/internal/domain"
)

// Document is one submission to the extraction model.
type Document struct {
	Data     []byte
	MIMEType string
	// Guidance is optional free-text steering from the caller.
	Guidance string
	// KnownRecurring lists recurring descriptions already in the ledger so
	// the model can flag re-occurrences.
	KnownRecurring []string
}

// RejectedRecord is a line item the decoder refused, with the position it
// held in the model output.
type RejectedRecord struct {
	Index  int
	Reason string
}

// Extraction is the decoded model output.
type Extraction struct {
	DocumentType   domain.DocumentType
	Issuer         string
	InvoiceDueDate string // "YYYY-MM-DD", empty when absent
	Transactions   []domain.RawRecord
	// Rejected lists line items that failed per-record decoding. The rest
	// of the document keeps processing.
	Rejected []RejectedRecord
}

// Extractor is the capability injected into the pipeline. Credential
// rotation is "construct a new client and swap the reference" at the
// composition root; there is no global client.
type Extractor interface {
	Extract(ctx context.Context, doc Document) (*Extraction, error)
}
