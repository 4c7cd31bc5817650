package usecase

import (
	"fmt"
	"math"
	"strconv"

	"github.com/NasaVasa/pricewatch/internal/domain"
	"github.com/shopspring/decimal"
)

const (
	zScoreHigh   = 2.5
	zScoreMedium = 1.96
	zScoreLow    = 1.645
)

var minPercentageChange = decimal.NewFromInt(5)

// EvaluatePriceChange classifies newPrice against the previous price and the pair's history
// (newest first, without the new observation). It returns nil when the change does not qualify.
func EvaluatePriceChange(pair domain.Pair, previous *decimal.Decimal, newPrice decimal.Decimal, history []decimal.Decimal) *domain.Alert {
	if previous == nil {
		return nil
	}

	change := percentageChange(*previous, newPrice)
	mean, stdDev := historyStats(history)

	var zScore float64
	if len(history) > 0 {
		zScore = math.Abs(newPrice.InexactFloat64()-mean) / math.Max(stdDev, 1)
	}

	var significance domain.Significance
	switch {
	case zScore >= zScoreHigh:
		significance = domain.SignificanceHigh
	case zScore >= zScoreMedium:
		significance = domain.SignificanceMedium
	case zScore >= zScoreLow:
		significance = domain.SignificanceLow
	case change.Abs().GreaterThanOrEqual(minPercentageChange):
		significance = domain.SignificanceLow
	default:
		return nil
	}

	return &domain.Alert{
		ProductID:        pair.ProductID,
		CompetitorID:     pair.CompetitorID,
		ProductName:      pair.ProductName,
		CompetitorName:   pair.CompetitorName,
		OldPrice:         *previous,
		NewPrice:         newPrice,
		PercentageChange: change.Round(4).InexactFloat64(),
		Significance:     significance,
		Reason:           alertReason(pair, change, significance, newPrice, mean, len(history) > 0),
	}
}

// percentageChange is signed; a non-positive previous price yields zero.
func percentageChange(previous, current decimal.Decimal) decimal.Decimal {
	if !previous.IsPositive() {
		return decimal.Zero
	}
	return current.Sub(previous).Div(previous).Mul(decimal.NewFromInt(100))
}

// historyStats returns the mean and population standard deviation of prices.
func historyStats(prices []decimal.Decimal) (float64, float64) {
	if len(prices) == 0 {
		return 0, 0
	}
	var sum float64
	for _, price := range prices {
		sum += price.InexactFloat64()
	}
	mean := sum / float64(len(prices))

	var variance float64
	for _, price := range prices {
		diff := price.InexactFloat64() - mean
		variance += diff * diff
	}
	variance /= float64(len(prices))
	return mean, math.Sqrt(variance)
}

func alertReason(pair domain.Pair, change decimal.Decimal, significance domain.Significance, newPrice decimal.Decimal, mean float64, hasHistory bool) string {
	var reason string
	switch change.Sign() {
	case 1:
		reason = fmt.Sprintf("%s has increased their price for %s by %s%%. ", pair.CompetitorName, pair.ProductName, formatPercent(change.Abs().InexactFloat64()))
	case -1:
		reason = fmt.Sprintf("%s has decreased their price for %s by %s%%. ", pair.CompetitorName, pair.ProductName, formatPercent(change.Abs().InexactFloat64()))
	default:
		reason = fmt.Sprintf("%s kept their price for %s unchanged. ", pair.CompetitorName, pair.ProductName)
	}
	reason += fmt.Sprintf("This is a %s significance change. ", lowerTier(significance))

	if !hasHistory || mean == 0 {
		return reason + "There is no historical average yet."
	}
	diff := (newPrice.InexactFloat64() - mean) / mean * 100
	switch {
	case diff > 0:
		reason += fmt.Sprintf("The new price is %s%% above the historical average.", formatPercent(diff))
	case diff < 0:
		reason += fmt.Sprintf("The new price is %s%% below the historical average.", formatPercent(-diff))
	default:
		reason += "The new price matches the historical average."
	}
	return reason
}

func formatPercent(value float64) string {
	return strconv.FormatFloat(value, 'f', 1, 64)
}

func lowerTier(significance domain.Significance) string {
	switch significance {
	case domain.SignificanceHigh:
		return "high"
	case domain.SignificanceMedium:
		return "medium"
	default:
		return "low"
	}
}
