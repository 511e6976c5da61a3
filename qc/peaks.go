package qc

import (
	"math"

	"github.com/grailbio/msqc/peakfind"
)

// PeakPick is the single chromatographic peak selected for a window. OK is
// false when the peak finder returned nothing for the window; such windows
// simply drop out of the metrics that average over picked peaks.
type PeakPick struct {
	RT        float64
	Intensity float64
	FWHM      float64
	OK        bool
}

// pickClosest reduces one window to the peak whose apex time is closest to
// the window anchor, first-encountered winning ties.
func pickClosest(w *Window) PeakPick {
	peaks := peakfind.Find(w.RTs, w.Intensities)
	if len(peaks) == 0 {
		return PeakPick{}
	}
	best := PeakPick{
		RT:        w.RTs[peaks[0].TimeIndex],
		Intensity: peaks[0].Height,
		FWHM:      peaks[0].FWHM,
		OK:        true,
	}
	for _, p := range peaks[1:] {
		rt := w.RTs[p.TimeIndex]
		if math.Abs(rt-w.AnchorRT) < math.Abs(best.RT-w.AnchorRT) {
			best = PeakPick{RT: rt, Intensity: p.Height, FWHM: p.FWHM, OK: true}
		}
	}
	return best
}

// PickPeaks reduces every window of the set to at most one peak. The
// returned slices are index-aligned with the set's window slices (and so,
// for Identified/Unidentified, with the ScanIndex MS2 lists).
func PickPeaks(set *XICSet) (peptide, identified, unidentified []PeakPick) {
	pickAll := func(windows []Window) []PeakPick {
		picks := make([]PeakPick, len(windows))
		for i := range windows {
			picks[i] = pickClosest(&windows[i])
		}
		return picks
	}
	return pickAll(set.Peptide), pickAll(set.Identified), pickAll(set.Unidentified)
}
