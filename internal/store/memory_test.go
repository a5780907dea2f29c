package store

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/lvicentin/grana/internal/domain"
	"github.com/lvicentin/grana/internal/installment"
)

func TestMemoryCommitImportCAS(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	inv := &domain.InvoiceRecord{
		ID:          "inv-1",
		Fingerprint: "fp-1",
		DueDate:     "2025-10-10",
		ImportedAt:  time.Now(),
	}
	entries := []domain.LedgerEntry{{ID: "e1", Type: domain.EntryExpense, Amount: 10}}

	if err := m.CommitImport(ctx, "u1", entries, inv); err != nil {
		t.Fatalf("first commit: %v", err)
	}
	err := m.CommitImport(ctx, "u1", entries, inv)
	if !errors.Is(err, ErrFingerprintExists) {
		t.Fatalf("second commit = %v, want ErrFingerprintExists", err)
	}

	// The losing commit must not have written its entries.
	if n, _ := m.CountEntries(ctx, "u1"); n != 1 {
		t.Errorf("CountEntries = %d, want 1 (no partial commit)", n)
	}

	got, err := m.GetInvoiceByFingerprint(ctx, "fp-1")
	if err != nil {
		t.Fatalf("GetInvoiceByFingerprint: %v", err)
	}
	if got.ID != "inv-1" {
		t.Errorf("invoice id = %q, want inv-1", got.ID)
	}
}

func TestMemoryCommitConcurrentSameFingerprint(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	const n = 16
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			inv := &domain.InvoiceRecord{ID: "inv", Fingerprint: "same"}
			errs[i] = m.CommitImport(ctx, "u1", []domain.LedgerEntry{{ID: string(rune('a' + i))}}, inv)
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, err := range errs {
		if err == nil {
			winners++
		} else if !errors.Is(err, ErrFingerprintExists) {
			t.Errorf("unexpected error: %v", err)
		}
	}
	if winners != 1 {
		t.Errorf("got %d winning commits, want exactly 1", winners)
	}
	if count, _ := m.CountEntries(ctx, "u1"); count != 1 {
		t.Errorf("CountEntries = %d, want 1", count)
	}
}

func TestMemoryRecurringDescriptions(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	entries := []domain.LedgerEntry{
		{ID: "1", Description: "Netflix", IsRecurring: true, Type: domain.EntryExpense, Amount: 55.90},
		{ID: "2", Description: "Netflix", IsRecurring: true, Type: domain.EntryExpense, Amount: 55.90},
		{ID: "3", Description: "iFood", Type: domain.EntryExpense, Amount: 40},
		{ID: "4", Description: "Spotify", IsRecurring: true, Type: domain.EntryExpense, Amount: 21.90},
	}
	if err := m.CommitImport(ctx, "u1", entries, nil); err != nil {
		t.Fatal(err)
	}

	descs, err := m.RecurringDescriptions(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if len(descs) != 2 {
		t.Errorf("RecurringDescriptions = %v, want 2 distinct", descs)
	}

	total, err := m.RecurringExpenseTotal(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if want := 55.90 + 55.90 + 21.90; total != want {
		t.Errorf("RecurringExpenseTotal = %v, want %v", total, want)
	}
}

func TestMemoryMonthlyTotalsStopAtCurrentMonth(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	now := time.Now()

	var entries []domain.LedgerEntry
	// Four settled past months.
	for i := 1; i <= 4; i++ {
		pay := time.Date(now.Year(), now.Month()-time.Month(i), 10, 0, 0, 0, 0, time.UTC)
		entries = append(entries, domain.LedgerEntry{
			ID: "p" + string(rune('0'+i)), Description: "Mercado", Amount: 1000,
			Type: domain.EntryExpense, Date: pay, PaymentDate: pay, CreatedAt: now,
		})
	}
	// An expanded installment series whose payments start next month.
	base := domain.LedgerEntry{
		ID: "base", Description: "Notebook Dell", Amount: 50, Type: domain.EntryExpense,
		Date: now, PaymentDate: time.Date(now.Year(), now.Month()+1, 10, 0, 0, 0, 0, time.UTC),
		CreatedAt: now,
	}
	entries = append(entries, installment.Expand(base, 1, 3)...)

	if err := m.CommitImport(ctx, "u1", entries, nil); err != nil {
		t.Fatal(err)
	}

	totals, err := m.MonthlyExpenseTotals(ctx, "u1", 6)
	if err != nil {
		t.Fatal(err)
	}
	if len(totals) != 4 {
		t.Fatalf("MonthlyExpenseTotals = %v, want the 4 settled months only", totals)
	}
	for _, total := range totals {
		if total != 1000 {
			t.Errorf("month total = %v, want 1000 (future installments leaked in)", total)
		}
	}
}

func TestMemoryConsent(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	if _, err := m.GetConsent(ctx, "u1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetConsent before decision = %v, want ErrNotFound", err)
	}

	rec := domain.ConsentRecord{Accepted: true, Timestamp: time.Now(), Version: "2025-09"}
	if err := m.PutConsent(ctx, "u1", rec); err != nil {
		t.Fatal(err)
	}
	got, err := m.GetConsent(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if !got.Accepted || got.Version != "2025-09" {
		t.Errorf("GetConsent = %+v", got)
	}

	// A new decision overwrites the old one.
	rec.Accepted = false
	rec.Version = "2026-01"
	if err := m.PutConsent(ctx, "u1", rec); err != nil {
		t.Fatal(err)
	}
	got, _ = m.GetConsent(ctx, "u1")
	if got.Accepted || got.Version != "2026-01" {
		t.Errorf("overwritten consent = %+v", got)
	}
}

func TestMemorySaltStable(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	const n = 8
	salts := make([][]byte, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			salts[i], _ = m.EncryptionSalt(ctx)
		}(i)
	}
	wg.Wait()

	for i := 1; i < n; i++ {
		if !bytes.Equal(salts[0], salts[i]) {
			t.Fatal("concurrent first use produced more than one salt")
		}
	}
	if len(salts[0]) == 0 {
		t.Fatal("empty salt")
	}
}

func TestMemoryUpdateRateWindow(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	now := time.Now()

	w, err := m.UpdateRateWindow(ctx, "u1", func(w domain.RateWindow) domain.RateWindow {
		w.Timestamps = append(w.Timestamps, now)
		return w
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(w.Timestamps) != 1 {
		t.Fatalf("window size = %d, want 1", len(w.Timestamps))
	}

	w, _ = m.UpdateRateWindow(ctx, "u1", func(w domain.RateWindow) domain.RateWindow { return w })
	if len(w.Timestamps) != 1 {
		t.Errorf("window should persist between updates, got %d", len(w.Timestamps))
	}
}
