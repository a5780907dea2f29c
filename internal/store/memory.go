package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/lvicentin/grana/internal/domain"
	"github.com/lvicentin/grana/internal/fieldcrypt"
)

// Memory is a mutex-guarded in-memory Store. It backs tests and ephemeral
// setups; durability is explicitly not its job.
type Memory struct {
	mu       sync.Mutex
	invoices map[string]domain.InvoiceRecord // by fingerprint
	entries  map[string][]domain.LedgerEntry // by user
	consents map[string]domain.ConsentRecord // by user
	windows  map[string]domain.RateWindow    // by user
	salt     []byte
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		invoices: make(map[string]domain.InvoiceRecord),
		entries:  make(map[string][]domain.LedgerEntry),
		consents: make(map[string]domain.ConsentRecord),
		windows:  make(map[string]domain.RateWindow),
	}
}

var _ Store = (*Memory)(nil)

func (m *Memory) GetInvoiceByFingerprint(ctx context.Context, fingerprint string) (*domain.InvoiceRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.invoices[fingerprint]
	if !ok {
		return nil, ErrNotFound
	}
	out := rec
	return &out, nil
}

func (m *Memory) CommitImport(ctx context.Context, userID string, entries []domain.LedgerEntry, invoice *domain.InvoiceRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if invoice != nil {
		if _, exists := m.invoices[invoice.Fingerprint]; exists {
			return ErrFingerprintExists
		}
		m.invoices[invoice.Fingerprint] = *invoice
	}
	m.entries[userID] = append(m.entries[userID], entries...)
	return nil
}

func (m *Memory) RecurringDescriptions(ctx context.Context, userID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := map[string]bool{}
	var out []string
	for _, e := range m.entries[userID] {
		if e.IsRecurring && !seen[e.Description] {
			seen[e.Description] = true
			out = append(out, e.Description)
		}
	}
	return out, nil
}

func (m *Memory) MonthlyExpenseTotals(ctx context.Context, userID string, months int) ([]float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	cutoff := now.AddDate(0, -months, 0)
	// Expanded installment series carry payment dates months into the
	// future; anything past the current month must stay out of the trailing
	// window.
	bound := time.Date(now.Year(), now.Month()+1, 1, 0, 0, 0, 0, now.Location())
	byMonth := map[string]float64{}
	for _, e := range m.entries[userID] {
		if e.Type != domain.EntryExpense || e.PaymentDate.Before(cutoff) || !e.PaymentDate.Before(bound) {
			continue
		}
		byMonth[e.PaymentDate.Format("2006-01")] += e.Amount
	}

	keys := make([]string, 0, len(byMonth))
	for k := range byMonth {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	totals := make([]float64, 0, len(keys))
	for _, k := range keys {
		totals = append(totals, byMonth[k])
	}
	// The partial month at the cutoff boundary can add one extra bucket.
	if len(totals) > months {
		totals = totals[len(totals)-months:]
	}
	return totals, nil
}

func (m *Memory) RecurringExpenseTotal(ctx context.Context, userID string) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var total float64
	for _, e := range m.entries[userID] {
		if e.IsRecurring && e.Type == domain.EntryExpense {
			total += e.Amount
		}
	}
	return total, nil
}

func (m *Memory) CountEntries(ctx context.Context, userID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries[userID]), nil
}

func (m *Memory) GetConsent(ctx context.Context, userID string) (*domain.ConsentRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.consents[userID]
	if !ok {
		return nil, ErrNotFound
	}
	out := rec
	return &out, nil
}

func (m *Memory) PutConsent(ctx context.Context, userID string, rec domain.ConsentRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.consents[userID] = rec
	return nil
}

func (m *Memory) UpdateRateWindow(ctx context.Context, userID string, fn func(domain.RateWindow) domain.RateWindow) (domain.RateWindow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	updated := fn(m.windows[userID])
	m.windows[userID] = updated
	return updated, nil
}

func (m *Memory) EncryptionSalt(ctx context.Context) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.salt == nil {
		salt, err := fieldcrypt.NewSalt()
		if err != nil {
			return nil, err
		}
		m.salt = salt
	}
	out := make([]byte, len(m.salt))
	copy(out, m.salt)
	return out, nil
}

func (m *Memory) Close() error { return nil }
