// Package indicators provides the technical indicators used for ranking.
package indicators

import (
	"math"

	"github.com/markcheno/go-talib"
	"gonum.org/v1/gonum/stat"
)

// TotalReturn calculates the simple return over a price series
//
// Formula:
//   Return = (Last / First) - 1
//
// Returns nil if there are fewer than 2 prices or the first price is zero.
func TotalReturn(closes []float64) *float64 {
	if len(closes) < 2 {
		return nil
	}
	first := closes[0]
	if first == 0 {
		return nil
	}
	result := closes[len(closes)-1]/first - 1
	if !isFinite(result) {
		return nil
	}
	return &result
}

// RSI calculates the Relative Strength Index
//
// RSI Formula:
//   RSI = 100 - (100 / (1 + RS))
//   where RS = Average Gain / Average Loss over N periods
//
// Returns the current RSI value (0-100) or nil if insufficient data.
func RSI(closes []float64, length int) *float64 {
	if length < 2 || len(closes) < length+1 {
		return nil
	}

	rsi := talib.Rsi(closes, length)

	if len(rsi) > 0 && isFinite(rsi[len(rsi)-1]) {
		result := rsi[len(rsi)-1]
		return &result
	}

	return nil
}

// SMASeries returns the simple moving average series for the given window.
// Only the valid portion is returned; the talib warmup values are dropped.
// Returns nil if the series is shorter than the window.
func SMASeries(closes []float64, window int) []float64 {
	if window < 1 || len(closes) < window {
		return nil
	}
	full := talib.Sma(closes, window)
	return full[window-1:]
}

// EMASeries returns the exponential moving average series for the given window.
// Only the valid portion is returned; the talib warmup values are dropped.
// Returns nil if the series is shorter than the window.
func EMASeries(closes []float64, window int) []float64 {
	if window < 1 || len(closes) < window {
		return nil
	}
	full := talib.Ema(closes, window)
	return full[window-1:]
}

// NormalizedSlope fits a least-squares line through the series and returns
// the slope per bar as a fraction of the series mean. This makes slopes
// comparable across symbols with very different price levels.
//
// Returns nil if the series has fewer than 2 points or a zero mean.
func NormalizedSlope(series []float64) *float64 {
	if len(series) < 2 {
		return nil
	}

	xs := make([]float64, len(series))
	for i := range xs {
		xs[i] = float64(i)
	}

	_, slope := stat.LinearRegression(xs, series, nil, false)

	mean := stat.Mean(series, nil)
	if mean == 0 {
		return nil
	}

	result := slope / mean
	if !isFinite(result) {
		return nil
	}
	return &result
}

// isFinite reports whether f is neither NaN nor infinite
func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
