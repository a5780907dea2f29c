// Package pipeline orchestrates one document import end to end: admission
// control, model extraction, per-record sifting, installment expansion, and
// the idempotent commit. It owns no state beyond its collaborators and is
// safe for concurrent Submit calls; the atomicity the flow needs lives at
// the store boundary.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/lvicentin/grana/internal/classify"
	"github.com/lvicentin/grana/internal/dedup"
	"github.com/lvicentin/grana/internal/domain"
	"github.com/lvicentin/grana/internal/estimate"
	"github.com/lvicentin/grana/internal/fingerprint"
	"github.com/lvicentin/grana/internal/gate"
	"github.com/lvicentin/grana/internal/installment"
	"github.com/lvicentin/grana/internal/oracle"
	"github.com/lvicentin/grana/internal/store"
)

// trailingMonths is how much expense history feeds the estimator.
const trailingMonths = 6

// Pipeline wires the import flow together.
type Pipeline struct {
	store   store.Store
	oracle  oracle.Extractor
	gate    *gate.Gate
	matcher *dedup.Matcher
	log     zerolog.Logger
	now     func() time.Time
}

func New(st store.Store, ex oracle.Extractor, g *gate.Gate, matcher *dedup.Matcher, log zerolog.Logger) *Pipeline {
	return &Pipeline{
		store:   st,
		oracle:  ex,
		gate:    g,
		matcher: matcher,
		log:     log,
		now:     time.Now,
	}
}

// WithClock overrides the time source. Tests only.
func (p *Pipeline) WithClock(now func() time.Time) *Pipeline {
	p.now = now
	return p
}

// Submission is one document handed to the pipeline.
type Submission struct {
	UserID string
	// OwnerName is the account holder's name as printed on statements, used
	// to recognize same-owner transfers.
	OwnerName string

	Data     []byte
	MIMEType string
	// Guidance is optional free-text steering forwarded to the model.
	Guidance string
}

// Submit runs one document through the whole import flow and returns a
// typed outcome. A non-nil error means infrastructure failure (store or
// model); every business outcome, including rejections, is a Result.
func (p *Pipeline) Submit(ctx context.Context, sub Submission) (Result, error) {
	log := p.log.With().Str("user_id", sub.UserID).Logger()

	// 1. A valid consent record for the current notice version must exist
	// before any bytes reach the model.
	consent, err := p.gate.CheckConsent(ctx, sub.UserID)
	if err != nil {
		return nil, err
	}
	if !consent.Granted {
		log.Info().Str("required_version", consent.RequiredVersion).Msg("import blocked: consent required")
		return ConsentRequired{RequiredVersion: consent.RequiredVersion}, nil
	}

	// 2. Sliding rate window.
	rate, err := p.gate.CheckRate(ctx, sub.UserID)
	if err != nil {
		return nil, err
	}
	if !rate.Allowed {
		importsRateLimited.Inc()
		log.Info().Int("used", rate.Used).Int("retry_after_s", rate.RetryAfterSeconds).Msg("import blocked: rate limited")
		return RateLimited{RetryAfterSeconds: rate.RetryAfterSeconds}, nil
	}

	// 3. Known recurring descriptions steer the model and feed the
	// duplicate matcher.
	recurring, err := p.store.RecurringDescriptions(ctx, sub.UserID)
	if err != nil {
		return nil, fmt.Errorf("pipeline: recurring descriptions: %w", err)
	}

	// 4. Extraction.
	ext, err := p.oracle.Extract(ctx, oracle.Document{
		Data:           sub.Data,
		MIMEType:       sub.MIMEType,
		Guidance:       sub.Guidance,
		KnownRecurring: recurring,
	})
	if err != nil {
		return nil, fmt.Errorf("pipeline: extraction: %w", err)
	}
	recordsExtracted.Add(float64(len(ext.Transactions)))
	for _, rej := range ext.Rejected {
		recordsDropped.WithLabelValues("schema").Inc()
		log.Warn().Int("index", rej.Index).Str("reason", rej.Reason).Msg("record rejected by decoder")
	}

	// 5. One window slot per successful extraction, whatever survives the
	// sifting below.
	if err := p.gate.RecordImport(ctx, sub.UserID); err != nil {
		return nil, err
	}

	// 6. Validate, classify, match, and expand each record.
	entries, dropped := p.sift(ext, sub.OwnerName, recurring, log)
	dropped += len(ext.Rejected)
	if len(entries) == 0 {
		log.Info().Int("extracted", len(ext.Transactions)).Int("dropped", dropped).Msg("no importable transactions")
		return NoTransactionsFound{Extracted: len(ext.Transactions), Dropped: dropped}, nil
	}

	// 7. Invoice imports are idempotent by fingerprint; statements commit
	// directly.
	if ext.DocumentType == domain.DocumentInvoice {
		return p.commitInvoice(ctx, sub.UserID, ext, entries, dropped, log)
	}
	if err := p.store.CommitImport(ctx, sub.UserID, entries, nil); err != nil {
		return nil, fmt.Errorf("pipeline: commit statement: %w", err)
	}
	entriesCommitted.Add(float64(len(entries)))
	log.Info().Int("entries", len(entries)).Int("dropped", dropped).Msg("statement committed")
	return Committed{Entries: entries, Dropped: dropped}, nil
}

// sift runs the per-record stages: validation, noise classification,
// duplicate-subscription matching, mapping to ledger entries, and
// installment expansion. Drops never abort the document.
func (p *Pipeline) sift(ext *oracle.Extraction, ownerName string, knownRecurring []string, log zerolog.Logger) ([]domain.LedgerEntry, int) {
	var entries []domain.LedgerEntry
	dropped := 0

	for _, raw := range ext.Transactions {
		if err := raw.Validate(); err != nil {
			dropped++
			recordsDropped.WithLabelValues("validation").Inc()
			log.Warn().Str("description", raw.Description).Err(err).Msg("record dropped: validation")
			continue
		}

		cls := classify.Classify(raw, ext.DocumentType, ownerName)
		if !cls.Keep() {
			dropped++
			recordsDropped.WithLabelValues(string(cls.Verdict)).Inc()
			log.Debug().Str("description", raw.Description).Str("verdict", string(cls.Verdict)).Str("reason", cls.Reason).Msg("record dropped: noise")
			continue
		}

		if raw.IsRecurring {
			if kind, matched := p.matcher.Match(raw.Description, knownRecurring); kind != dedup.MatchNone {
				dropped++
				recordsDropped.WithLabelValues("duplicate_recurring").Inc()
				log.Info().Str("description", raw.Description).Str("existing", matched).Str("rule", string(kind)).Msg("record dropped: recurring duplicate")
				continue
			}
		}

		entry := p.toEntry(raw, ext.Issuer)
		entries = append(entries, installment.Expand(entry, raw.CurrentInstallment, raw.TotalInstallments)...)
	}
	return entries, dropped
}

func (p *Pipeline) toEntry(raw domain.RawRecord, issuer string) domain.LedgerEntry {
	return domain.LedgerEntry{
		ID:            uuid.NewString(),
		Description:   raw.Description,
		Amount:        raw.Amount,
		Category:      raw.Category,
		Type:          raw.Type,
		Date:          raw.Date,
		PaymentDate:   raw.SettlementDate(),
		Issuer:        issuer,
		IsRecurring:   raw.IsRecurring,
		IsAIGenerated: true,
		Debtor:        raw.Debtor,
		Tags:          raw.Tags,
		CreatedAt:     p.now(),
	}
}

// commitInvoice performs the fingerprint check-then-commit. The pre-check
// gives the common duplicate a cheap answer; the store's compare-and-set is
// what actually guarantees a single winner when two imports of the same
// document race.
func (p *Pipeline) commitInvoice(ctx context.Context, userID string, ext *oracle.Extraction, entries []domain.LedgerEntry, dropped int, log zerolog.Logger) (Result, error) {
	dueDate := ext.InvoiceDueDate
	if dueDate == "" {
		dueDate = domain.NoDueDate
	}
	fp := fingerprint.Compute(dueDate, entries)

	prior, err := p.store.GetInvoiceByFingerprint(ctx, fp)
	if err == nil {
		importsDuplicate.Inc()
		log.Info().Str("fingerprint", fp).Time("first_imported_at", prior.ImportedAt).Msg("duplicate invoice")
		return DuplicateDetected{Prior: prior}, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("pipeline: fingerprint lookup: %w", err)
	}

	invoice := &domain.InvoiceRecord{
		ID:               uuid.NewString(),
		DueDate:          dueDate,
		TotalAmount:      totalAmount(entries),
		TransactionCount: len(entries),
		ImportedAt:       p.now(),
		Fingerprint:      fp,
		TransactionIDs:   entryIDs(entries),
		Issuer:           ext.Issuer,
	}
	for i := range entries {
		entries[i].LinkedInvoiceID = invoice.ID
	}

	err = p.store.CommitImport(ctx, userID, entries, invoice)
	if errors.Is(err, store.ErrFingerprintExists) {
		// Lost the compare-and-set to a concurrent import. Surface the
		// winner's record instead.
		prior, perr := p.store.GetInvoiceByFingerprint(ctx, fp)
		if perr != nil {
			return nil, fmt.Errorf("pipeline: prior invoice lookup: %w", perr)
		}
		importsDuplicate.Inc()
		return DuplicateDetected{Prior: prior}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("pipeline: commit invoice: %w", err)
	}

	entriesCommitted.Add(float64(len(entries)))
	log.Info().Str("fingerprint", fp).Int("entries", len(entries)).Int("dropped", dropped).Msg("invoice committed")
	return Committed{Entries: entries, Invoice: invoice, Dropped: dropped}, nil
}

// Estimate assembles the read-side projection from committed history. It
// never touches the model or the gates.
func (p *Pipeline) Estimate(ctx context.Context, userID string, monthlyIncome float64) (estimate.Projection, error) {
	months, err := p.store.MonthlyExpenseTotals(ctx, userID, trailingMonths)
	if err != nil {
		return estimate.Projection{}, fmt.Errorf("pipeline: expense history: %w", err)
	}
	recurringTotal, err := p.store.RecurringExpenseTotal(ctx, userID)
	if err != nil {
		return estimate.Projection{}, fmt.Errorf("pipeline: recurring total: %w", err)
	}
	count, err := p.store.CountEntries(ctx, userID)
	if err != nil {
		return estimate.Projection{}, fmt.Errorf("pipeline: entry count: %w", err)
	}
	return estimate.Project(estimate.Input{
		MonthlyExpenses:  months,
		RecurringTotal:   recurringTotal,
		MonthlyIncome:    monthlyIncome,
		IncomeConfigured: monthlyIncome > 0,
		TransactionCount: count,
	}), nil
}

func totalAmount(entries []domain.LedgerEntry) float64 {
	var sum float64
	for _, e := range entries {
		sum += e.Amount
	}
	return sum
}

func entryIDs(entries []domain.LedgerEntry) []string {
	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.ID
	}
	return ids
}
