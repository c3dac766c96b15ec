// Package indicators provides the small set of price statistics swarm agents
// consult when forming proposals.
package indicators

import "sync"

// SMA is the simple moving average over the last period values. It returns
// 0 when fewer than period values are available.
func SMA(values []float64, period int) float64 {
	if period <= 0 || len(values) < period {
		return 0
	}
	sum := 0.0
	for i := len(values) - period; i < len(values); i++ {
		sum += values[i]
	}
	return sum / float64(period)
}

// RSI is an unsmoothed Relative Strength Index over the last period changes.
// It needs period+1 values; with no losses in the window it reports 100.
func RSI(values []float64, period int) float64 {
	if period <= 0 || len(values) < period+1 {
		return 0
	}

	gain, loss := 0.0, 0.0
	for i := len(values) - period; i < len(values); i++ {
		change := values[i] - values[i-1]
		if change > 0 {
			gain += change
		} else {
			loss -= change
		}
	}

	if loss == 0 {
		return 100
	}
	rs := gain / loss
	return 100 - (100 / (1 + rs))
}

// Window accumulates per-symbol price history bounded to a fixed size.
type Window struct {
	mu     sync.Mutex
	size   int
	prices map[string][]float64
}

// NewWindow creates a window keeping up to size prices per symbol.
func NewWindow(size int) *Window {
	if size < 2 {
		size = 2
	}
	return &Window{size: size, prices: make(map[string][]float64)}
}

// Observe appends a price and returns a copy of the symbol's current series.
func (w *Window) Observe(symbol string, price float64) []float64 {
	w.mu.Lock()
	defer w.mu.Unlock()

	series := append(w.prices[symbol], price)
	if len(series) > w.size {
		series = series[len(series)-w.size:]
	}
	w.prices[symbol] = series

	out := make([]float64, len(series))
	copy(out, series)
	return out
}

// Series returns a copy of the accumulated prices for a symbol.
func (w *Window) Series(symbol string) []float64 {
	w.mu.Lock()
	defer w.mu.Unlock()

	series := w.prices[symbol]
	out := make([]float64, len(series))
	copy(out, series)
	return out
}
