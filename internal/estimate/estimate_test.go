package estimate

import (
	"math"
	"strings"
	"testing"
)

func TestProjectExcludesIQROutlier(t *testing.T) {
	in := Input{
		MonthlyExpenses:  []float64{1000, 1050, 980, 1100, 9000, 1020},
		MonthlyIncome:    5000,
		IncomeConfigured: true,
		TransactionCount: 120,
	}
	p := Project(in)

	if p.OutlierMonths != 1 {
		t.Fatalf("OutlierMonths = %d, want 1 (the 9000 month)", p.OutlierMonths)
	}
	if p.CleanMonths != 5 {
		t.Fatalf("CleanMonths = %d, want 5", p.CleanMonths)
	}

	// Survivors in order: 1000 1050 980 1100 1020; the most recent three
	// are 980, 1100, 1020.
	want := (980.0 + 1100.0 + 1020.0) / 3.0
	if math.Abs(p.TypicalMonthlyExpense-want) > 1e-9 {
		t.Errorf("TypicalMonthlyExpense = %v, want %v", p.TypicalMonthlyExpense, want)
	}
	if math.Abs(p.SavingsPotential-(5000-want)) > 1e-9 {
		t.Errorf("SavingsPotential = %v, want %v", p.SavingsPotential, 5000-want)
	}
}

func TestProjectSkipsRemovalOnThinHistory(t *testing.T) {
	in := Input{MonthlyExpenses: []float64{1000, 50000}}
	p := Project(in)

	if p.OutlierMonths != 0 {
		t.Errorf("OutlierMonths = %d, want 0 with fewer than 3 months", p.OutlierMonths)
	}
	want := (1000.0 + 50000.0) / 2.0
	if p.TypicalMonthlyExpense != want {
		t.Errorf("TypicalMonthlyExpense = %v, want plain average %v", p.TypicalMonthlyExpense, want)
	}
	if !hasCaveat(p.Quality, "outlier removal skipped") {
		t.Errorf("missing thin-history caveat, got %v", p.Quality.Caveats)
	}
}

func TestProjectRecurringFloor(t *testing.T) {
	in := Input{
		MonthlyExpenses: []float64{800, 820, 790},
		RecurringTotal:  1500, // subscriptions alone exceed the average
	}
	p := Project(in)
	if p.TypicalMonthlyExpense != 1500 {
		t.Errorf("TypicalMonthlyExpense = %v, want recurring floor 1500", p.TypicalMonthlyExpense)
	}
}

func TestProjectNegativeSavings(t *testing.T) {
	in := Input{
		MonthlyExpenses:  []float64{3000, 3100, 2900},
		MonthlyIncome:    2500,
		IncomeConfigured: true,
	}
	p := Project(in)
	if p.SavingsPotential >= 0 {
		t.Errorf("SavingsPotential = %v, want negative", p.SavingsPotential)
	}
}

func TestProjectEmptyInput(t *testing.T) {
	p := Project(Input{})
	if p.TypicalMonthlyExpense != 0 || p.SavingsPotential != 0 {
		t.Errorf("empty input should project zeros, got %+v", p)
	}
	if p.Quality.Confidence != ConfidenceLow {
		t.Errorf("Confidence = %q, want low", p.Quality.Confidence)
	}
}

func TestQualityScore(t *testing.T) {
	tests := []struct {
		name           string
		in             Input
		wantConfidence string
	}{
		{
			"rich data",
			Input{
				MonthlyExpenses:  []float64{1000, 1010, 990, 1005, 1020, 995},
				IncomeConfigured: true,
				TransactionCount: 150,
			},
			ConfidenceHigh,
		},
		{
			"medium data",
			Input{
				MonthlyExpenses:  []float64{1000, 1010, 990},
				IncomeConfigured: true,
				TransactionCount: 20,
			},
			ConfidenceMedium,
		},
		{
			"thin data",
			Input{MonthlyExpenses: []float64{1000}, TransactionCount: 4},
			ConfidenceLow,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Project(tt.in)
			if p.Quality.Confidence != tt.wantConfidence {
				t.Errorf("Confidence = %q (score %d), want %q", p.Quality.Confidence, p.Quality.Score, tt.wantConfidence)
			}
			if p.Quality.Score < 0 || p.Quality.Score > 100 {
				t.Errorf("Score = %d, want within 0-100", p.Quality.Score)
			}
		})
	}
}

func TestQualityCaveats(t *testing.T) {
	p := Project(Input{MonthlyExpenses: []float64{500}, TransactionCount: 3})
	for _, want := range []string{"outlier removal skipped", "income not configured", "low transaction volume"} {
		if !hasCaveat(p.Quality, want) {
			t.Errorf("missing caveat containing %q, got %v", want, p.Quality.Caveats)
		}
	}
}

func hasCaveat(q Quality, substr string) bool {
	for _, c := range q.Caveats {
		if strings.Contains(c, substr) {
			return true
		}
	}
	return false
}
