package analytics

import (
	"math"

	"github.com/shopspring/decimal"
)

// computeForecast projects the next bucket's spend from the trailing trend
// using a linearly weighted moving average, with a confidence band
// proportional to observed volatility. Volatility is the coefficient of
// variation of bucket totals mapped onto 0-100; predictability is its
// complement, so a flat series scores 100 and an erratic one approaches 0.
func (e *Engine) computeForecast(points []TrendPoint) ForecastResult {
	result := ForecastResult{
		ProjectedSpend:      decimal.Zero,
		LowerBound:          decimal.Zero,
		UpperBound:          decimal.Zero,
		Confidence:          ConfidenceNone,
		PredictabilityScore: 0,
		VolatilityScore:     0,
	}
	if len(points) == 0 {
		return result
	}

	mean, stddev := meanAndStdDev(points)

	volatility := 0.0
	if mean > 0 {
		volatility = stddev / mean * 100
	}
	volatility = clampScore(volatility)
	result.VolatilityScore = volatility
	result.PredictabilityScore = clampScore(100 - volatility)

	// Linearly weighted moving average: recent buckets dominate the
	// projection so a drifting trend is followed, not averaged away.
	weightSum := 0.0
	weighted := 0.0
	for i, point := range points {
		w := float64(i + 1)
		weightSum += w
		weighted += point.CurrentTotal.InexactFloat64() * w
	}
	projected := weighted / weightSum
	if projected < 0 {
		projected = 0
	}

	band := stddev
	lower := projected - band
	if lower < 0 {
		lower = 0
	}

	result.ProjectedSpend = decimal.NewFromFloat(round2(projected))
	result.LowerBound = decimal.NewFromFloat(round2(lower))
	result.UpperBound = decimal.NewFromFloat(round2(projected + band))
	result.Confidence = e.forecastConfidence(len(points), volatility)

	return result
}

// forecastConfidence downgrades as volatility rises or as the observed
// history shrinks below the configured minimum.
func (e *Engine) forecastConfidence(historyLen int, volatility float64) ForecastConfidence {
	if historyLen < e.cfg.ForecastMinHistory {
		return ConfidenceNone
	}
	switch {
	case volatility < 20:
		return ConfidenceHigh
	case volatility < 50:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

func clampScore(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
