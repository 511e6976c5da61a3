// Package peakfind detects chromatographic peaks in an extracted-ion
// chromatogram given as parallel (time, intensity) arrays.
package peakfind

// Peak is one detected chromatographic peak.
type Peak struct {
	// TimeIndex is the index of the peak apex in the input arrays.
	TimeIndex int
	// Height is the intensity at the apex.
	Height float64
	// FWHM is the full width at half maximum, in the time unit of the
	// input array.
	FWHM float64
}

// minRelHeight is the apex height, relative to the chromatogram maximum,
// below which a local maximum is treated as noise.
const minRelHeight = 0.05

// smooth applies a 1-2-3-2-1 weighted moving average, shrinking the window
// at the edges.
func smooth(in []float64) []float64 {
	weights := [5]float64{1, 2, 3, 2, 1}
	out := make([]float64, len(in))
	for i := range in {
		var sum, wsum float64
		for k := -2; k <= 2; k++ {
			j := i + k
			if j < 0 || j >= len(in) {
				continue
			}
			w := weights[k+2]
			sum += w * in[j]
			wsum += w
		}
		out[i] = sum / wsum
	}
	return out
}

// halfCrossing returns the time at which the smoothed trace crosses half,
// walking from the apex in direction step (±1). If the trace never drops
// below half before the array ends, the edge time is returned.
func halfCrossing(rt, sm []float64, apex int, half float64, step int) float64 {
	i := apex
	for {
		j := i + step
		if j < 0 || j >= len(sm) {
			return rt[i]
		}
		if sm[j] < half {
			// Linear interpolation between i and j.
			frac := (sm[i] - half) / (sm[i] - sm[j])
			return rt[i] + frac*(rt[j]-rt[i])
		}
		i = j
	}
}

// Find detects peaks in the chromatogram. rt must be sorted ascending and
// parallel to intensity. An empty or all-zero chromatogram yields no peaks.
func Find(rt, intensity []float64) []Peak {
	if len(rt) == 0 || len(rt) != len(intensity) {
		return nil
	}
	sm := smooth(intensity)
	max := sm[0]
	for _, v := range sm[1:] {
		if v > max {
			max = v
		}
	}
	if max <= 0 {
		return nil
	}
	floor := max * minRelHeight
	var peaks []Peak
	for i := range sm {
		if sm[i] < floor {
			continue
		}
		left := i == 0 || sm[i] > sm[i-1]
		right := i == len(sm)-1 || sm[i] >= sm[i+1]
		if !left || !right {
			continue
		}
		half := sm[i] / 2
		lo := halfCrossing(rt, sm, i, half, -1)
		hi := halfCrossing(rt, sm, i, half, +1)
		peaks = append(peaks, Peak{
			TimeIndex: i,
			Height:    intensity[i],
			FWHM:      hi - lo,
		})
	}
	return peaks
}
