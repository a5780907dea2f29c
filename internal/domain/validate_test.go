package domain

import (
	"testing"
	"time"
)

func validRecord() RawRecord {
	return RawRecord{
		Description: "Mercado Pão de Açúcar",
		Amount:      152.30,
		Date:        time.Date(2025, 10, 3, 0, 0, 0, 0, time.UTC),
		Category:    "Groceries",
		Type:        EntryExpense,
	}
}

func TestRawRecordValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*RawRecord)
		wantErr string // expected ValidationError field, "" for valid
	}{
		{"valid", func(r *RawRecord) {}, ""},
		{"missing description", func(r *RawRecord) { r.Description = "  " }, "description"},
		{"zero amount", func(r *RawRecord) { r.Amount = 0 }, "amount"},
		{"negative amount", func(r *RawRecord) { r.Amount = -10 }, "amount"},
		{"missing date", func(r *RawRecord) { r.Date = time.Time{} }, "date"},
		{"missing type", func(r *RawRecord) { r.Type = "" }, "type"},
		{"bogus type", func(r *RawRecord) { r.Type = "TRANSFER" }, "type"},
		{"current beyond total", func(r *RawRecord) { r.CurrentInstallment = 7; r.TotalInstallments = 6 }, "installments"},
		{"installments ok", func(r *RawRecord) { r.CurrentInstallment = 2; r.TotalInstallments = 6 }, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := validRecord()
			tt.mutate(&rec)
			err := rec.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			verr, ok := err.(*ValidationError)
			if !ok {
				t.Fatalf("Validate() = %v (%T), want *ValidationError", err, err)
			}
			if verr.Field != tt.wantErr {
				t.Errorf("Validate() field = %q, want %q", verr.Field, tt.wantErr)
			}
		})
	}
}

func TestSettlementDateDefaultsToPurchaseDate(t *testing.T) {
	rec := validRecord()
	if got := rec.SettlementDate(); !got.Equal(rec.Date) {
		t.Errorf("SettlementDate() = %v, want purchase date %v", got, rec.Date)
	}

	due := time.Date(2025, 11, 10, 0, 0, 0, 0, time.UTC)
	rec.PaymentDate = &due
	if got := rec.SettlementDate(); !got.Equal(due) {
		t.Errorf("SettlementDate() = %v, want %v", got, due)
	}
}

func TestRateWindowPruned(t *testing.T) {
	now := time.Date(2025, 10, 3, 12, 0, 0, 0, time.UTC)
	w := RateWindow{Timestamps: []time.Time{
		now.Add(-2 * time.Hour),
		now.Add(-61 * time.Minute),
		now.Add(-59 * time.Minute),
		now.Add(-time.Minute),
	}}

	pruned := w.Pruned(now.Add(-time.Hour))
	if len(pruned.Timestamps) != 2 {
		t.Fatalf("Pruned() kept %d timestamps, want 2", len(pruned.Timestamps))
	}
	if len(w.Timestamps) != 4 {
		t.Errorf("Pruned() mutated the original window")
	}
}
