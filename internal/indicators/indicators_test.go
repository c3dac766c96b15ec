package indicators

import (
	"math"
	"testing"
)

func TestSMA(t *testing.T) {
	values := []float64{1, 2, 3, 4, 5}

	if got := SMA(values, 3); math.Abs(got-4) > 1e-9 {
		t.Errorf("SMA(.., 3) = %v, want 4", got)
	}
	if got := SMA(values, 5); math.Abs(got-3) > 1e-9 {
		t.Errorf("SMA(.., 5) = %v, want 3", got)
	}
	// Not enough data or bad period yields 0.
	if got := SMA(values, 6); got != 0 {
		t.Errorf("short series SMA = %v", got)
	}
	if got := SMA(values, 0); got != 0 {
		t.Errorf("zero period SMA = %v", got)
	}
}

func TestRSI(t *testing.T) {
	up := []float64{1, 2, 3, 4, 5}
	if got := RSI(up, 4); got != 100 {
		t.Errorf("all-gains RSI = %v, want 100", got)
	}

	down := []float64{5, 4, 3, 2, 1}
	if got := RSI(down, 4); got != 0 {
		t.Errorf("all-losses RSI = %v, want 0", got)
	}

	// Equal gains and losses sit at the midpoint.
	flat := []float64{10, 11, 10, 11, 10}
	if got := RSI(flat, 4); math.Abs(got-50) > 1e-9 {
		t.Errorf("balanced RSI = %v, want 50", got)
	}

	if got := RSI(up, 5); got != 0 {
		t.Errorf("short series RSI = %v, want 0", got)
	}
}

func TestWindowBoundsHistory(t *testing.T) {
	w := NewWindow(3)
	for i := 1; i <= 5; i++ {
		w.Observe("BTC/USDT", float64(i))
	}

	series := w.Series("BTC/USDT")
	if len(series) != 3 || series[0] != 3 || series[2] != 5 {
		t.Errorf("series = %v, want [3 4 5]", series)
	}

	// Symbols do not share windows.
	if got := w.Series("ETH/USDT"); len(got) != 0 {
		t.Errorf("unrelated symbol series = %v", got)
	}

	// The returned slice is a copy.
	series[0] = 999
	if again := w.Series("BTC/USDT"); again[0] == 999 {
		t.Errorf("Series exposed internal storage")
	}
}
