package risk

import (
	"math"
	"sort"
)

// madEpsilon: a MAD below this means the reference window is flat and the
// current value carries no anomaly signal.
const madEpsilon = 1e-9

// madScale makes the MAD a consistent estimator of the standard deviation
// for normal data.
const madScale = 1.4826

func sigmoid(x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-x))
}

func clamp01(x float64) float64 {
	return math.Min(1.0, math.Max(0.0, x))
}

func median(xs []float64) float64 {
	n := len(xs)
	s := append([]float64(nil), xs...)
	sort.Float64s(s)
	if n%2 == 1 {
		return s[n/2]
	}
	return (s[n/2-1] + s[n/2]) / 2
}

// RobustZ computes (x - median) / (1.4826 * MAD) over the history window.
// An empty window, a flat window (MAD below epsilon), or a NaN input yields
// ok=false: no anomaly evidence.
func RobustZ(now float64, history []float64) (z float64, ok bool) {
	if math.IsNaN(now) {
		return 0, false
	}
	// Persisted windows can carry NaN for readings that never arrived; they
	// contribute no evidence.
	ref := history[:0:0]
	for _, v := range history {
		if !math.IsNaN(v) {
			ref = append(ref, v)
		}
	}
	if len(ref) == 0 {
		return 0, false
	}
	med := median(ref)
	dev := make([]float64, len(ref))
	for i, v := range ref {
		dev[i] = math.Abs(v - med)
	}
	mad := median(dev)
	if mad < madEpsilon {
		return 0, false
	}
	return (now - med) / (madScale * mad), true
}

// anomalyScore maps a robust z-score onto [0,1) via a shifted sigmoid.
// Without anomaly evidence the score is exactly 0.
func anomalyScore(now float64, history []float64, zStart, zScale float64) float64 {
	z, ok := RobustZ(now, history)
	if !ok {
		return 0
	}
	if zScale <= 0 {
		zScale = 1
	}
	return sigmoid((z - zStart) / zScale)
}
