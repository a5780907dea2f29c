// Package estimate produces stable monthly-expense figures for projections:
// IQR outlier removal over the trailing months, a deliberately conservative
// typical-expense estimate, and a data-quality score annotating how much the
// numbers can be trusted.
package estimate

import (
	"fmt"
	"math"
	"sort"
)

// Input is the read-side view the estimator consumes. MonthlyExpenses is
// ordered oldest to newest and covers at most the trailing six months.
type Input struct {
	MonthlyExpenses  []float64
	RecurringTotal   float64 // sum of amounts flagged recurring
	MonthlyIncome    float64
	IncomeConfigured bool
	TransactionCount int
}

// Confidence buckets for the data-quality score.
const (
	ConfidenceHigh   = "high"
	ConfidenceMedium = "medium"
	ConfidenceLow    = "low"
)

// Projection is the estimator's output.
type Projection struct {
	// TypicalMonthlyExpense is max(average of recent clean months, recurring
	// total): a conservative upper estimate.
	TypicalMonthlyExpense float64
	// SavingsPotential is income minus typical expense; negative when the
	// user spends more than they earn.
	SavingsPotential float64
	// CleanMonths is how many months survived outlier removal.
	CleanMonths int
	// OutlierMonths is how many months were excluded.
	OutlierMonths int

	Quality Quality
}

// Quality annotates a projection with a 0-100 score, a confidence bucket and
// human-readable caveats when data is thin.
type Quality struct {
	Score      int
	Confidence string
	Caveats    []string
}

// minMonthsForIQR is the minimum sample size before outlier removal runs.
const minMonthsForIQR = 3

// Project computes the projection for one user.
func Project(in Input) Projection {
	clean := in.MonthlyExpenses
	outliers := 0
	if len(in.MonthlyExpenses) >= minMonthsForIQR {
		clean, outliers = removeOutliers(in.MonthlyExpenses)
	}

	// Average the most recent up to 3 surviving months.
	recent := clean
	if len(recent) > 3 {
		recent = recent[len(recent)-3:]
	}
	avg := 0.0
	if len(recent) > 0 {
		for _, v := range recent {
			avg += v
		}
		avg /= float64(len(recent))
	}

	typical := math.Max(avg, in.RecurringTotal)

	p := Projection{
		TypicalMonthlyExpense: typical,
		SavingsPotential:      in.MonthlyIncome - typical,
		CleanMonths:           len(clean),
		OutlierMonths:         outliers,
	}
	p.Quality = scoreQuality(in, p)
	return p
}

// removeOutliers drops values outside [Q1 - 1.5*IQR, Q3 + 1.5*IQR],
// preserving the original order of the survivors.
func removeOutliers(values []float64) (clean []float64, removed int) {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	q1 := quantile(sorted, 0.25)
	q3 := quantile(sorted, 0.75)
	iqr := q3 - q1
	lo := q1 - 1.5*iqr
	hi := q3 + 1.5*iqr

	clean = make([]float64, 0, len(values))
	for _, v := range values {
		if v < lo || v > hi {
			removed++
			continue
		}
		clean = append(clean, v)
	}
	return clean, removed
}

// quantile interpolates linearly between the closest ranks of a sorted
// sample.
func quantile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	pos := p * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo])
}

// scoreQuality derives the 0-100 score from transaction volume, number of
// clean months and whether income is configured.
func scoreQuality(in Input, p Projection) Quality {
	// Volume: up to 40 points, saturating at 100 transactions.
	volume := in.TransactionCount
	if volume > 100 {
		volume = 100
	}
	score := volume * 40 / 100

	// History: up to 40 points, saturating at 6 clean months.
	months := p.CleanMonths
	if months > 6 {
		months = 6
	}
	score += months * 40 / 6

	if in.IncomeConfigured {
		score += 20
	}

	q := Quality{Score: score}
	switch {
	case score >= 75:
		q.Confidence = ConfidenceHigh
	case score >= 45:
		q.Confidence = ConfidenceMedium
	default:
		q.Confidence = ConfidenceLow
	}

	if len(in.MonthlyExpenses) < minMonthsForIQR {
		q.Caveats = append(q.Caveats, fmt.Sprintf("only %d months of history; outlier removal skipped", len(in.MonthlyExpenses)))
	}
	if p.OutlierMonths > 0 {
		q.Caveats = append(q.Caveats, fmt.Sprintf("%d atypical month(s) excluded from the average", p.OutlierMonths))
	}
	if !in.IncomeConfigured {
		q.Caveats = append(q.Caveats, "income not configured; savings potential assumes zero income")
	}
	if in.TransactionCount < 30 {
		q.Caveats = append(q.Caveats, "low transaction volume")
	}
	return q
}
