package qc

import (
	"sort"

	"github.com/grailbio/msqc/idpdb"
	"github.com/grailbio/msqc/interval"
	"github.com/grailbio/msqc/msdata"
	"github.com/grailbio/msqc/stats"
)

// precursorRTPad is the half width, in seconds, of the retention-time
// window extracted around each precursor scan.
const precursorRTPad = 300

// precursorMZLow and precursorMZHigh bound the m/z window extracted around
// a precursor: [mz-0.5, mz+1.0] covers the monoisotopic peak and the first
// isotope.
const (
	precursorMZLow  = 0.5
	precursorMZHigh = 1.0
)

// Window is one extracted-ion chromatogram under construction: the
// retention-time and m/z intervals to integrate over, and the (time, summed
// intensity) series collected from the MS1 scans that fall inside them.
type Window struct {
	RT interval.Interval
	MZ interval.Union
	// AnchorRT is the retention time peak selection measures distance
	// from.
	AnchorRT float64

	RTs         []float64
	Intensities []float64
}

// XICSet holds the three window populations of one run. Identified and
// Unidentified are index-aligned with the same-named ScanIndex lists.
type XICSet struct {
	Peptide      []Window
	Identified   []Window
	Unidentified []Window
}

// BuildWindows constructs the three window sets: one window per identified
// peptide (anchored at its first identified scan, covering all of its
// observed precursor m/z values), and one window per identified and per
// unidentified MS2 scan, centered on the precursor MS1's scan time.
func BuildWindows(idx *ScanIndex, peptides []idpdb.PeptideIDs) *XICSet {
	set := &XICSet{}
	for _, pep := range peptides {
		var rts []float64
		anchor := -1
		for _, nid := range pep.NativeIDs {
			i, ok := idx.IdentifiedIndex[nid]
			if !ok {
				continue
			}
			rts = append(rts, idx.Identified[i].RT)
			if anchor < 0 || i < anchor {
				anchor = i
			}
		}
		if len(rts) == 0 {
			continue
		}
		sort.Float64s(rts)
		w := Window{
			RT:       interval.New(rts[0]-precursorRTPad, rts[len(rts)-1]+precursorRTPad),
			AnchorRT: idx.Identified[anchor].RT,
		}
		for _, mz := range pep.PrecursorMZs {
			w.MZ.Add(interval.New(mz-precursorMZLow, mz+precursorMZHigh))
		}
		set.Peptide = append(set.Peptide, w)
	}
	// Keep the peptide windows in elution order; the peak-width decile
	// metrics read them as an RT-sorted series. Ties resolve on the window
	// intervals so the result does not depend on peptide enumeration
	// order.
	sort.SliceStable(set.Peptide, func(i, j int) bool {
		wi, wj := &set.Peptide[i], &set.Peptide[j]
		if wi.AnchorRT != wj.AnchorRT {
			return wi.AnchorRT < wj.AnchorRT
		}
		if wi.RT.Min != wj.RT.Min {
			return wi.RT.Min < wj.RT.Min
		}
		bi, _ := wi.MZ.Bounds()
		bj, _ := wj.MZ.Bounds()
		return bi.Min < bj.Min
	})

	scanWindow := func(info MS2ScanInfo) Window {
		w := Window{
			RT:       interval.New(info.PrecursorRT-precursorRTPad, info.PrecursorRT+precursorRTPad),
			AnchorRT: info.RT,
		}
		w.MZ.Add(interval.New(info.PrecursorMZ-precursorMZLow, info.PrecursorMZ+precursorMZHigh))
		return w
	}
	for _, info := range idx.Identified {
		set.Identified = append(set.Identified, scanWindow(info))
	}
	for _, info := range idx.Unidentified {
		set.Unidentified = append(set.Unidentified, scanWindow(info))
	}
	return set
}

// sweep visits the windows of one set whose RT interval can still contain
// the (non-decreasing) scan times fed to it, avoiding the full window scan
// per MS1 spectrum. Windows are visited through an order sorted by
// interval start; the window arrays themselves are never reordered, so the
// collected series do not depend on set ordering.
type sweep struct {
	windows  []Window
	order    []int
	starts   []float64
	frontier int
	active   []int
}

func newSweep(windows []Window) *sweep {
	s := &sweep{windows: windows}
	s.order = make([]int, len(windows))
	for i := range s.order {
		s.order[i] = i
	}
	sort.SliceStable(s.order, func(i, j int) bool {
		return windows[s.order[i]].RT.Min < windows[s.order[j]].RT.Min
	})
	s.starts = make([]float64, len(windows))
	for i, w := range s.order {
		s.starts[i] = windows[w].RT.Min
	}
	return s
}

// visit calls fn for every window whose RT interval contains t.
func (s *sweep) visit(t float64, fn func(w *Window)) {
	newFrontier := interval.ExpsearchStarts(s.starts, t, s.frontier)
	for _, w := range s.order[s.frontier:newFrontier] {
		s.active = append(s.active, w)
	}
	s.frontier = newFrontier
	kept := s.active[:0]
	for _, w := range s.active {
		if s.windows[w].RT.Max < t {
			continue
		}
		kept = append(kept, w)
		if s.windows[w].RT.Contains(t) {
			fn(&s.windows[w])
		}
	}
	s.active = kept
}

// SignalNoise accumulates the per-scan max/median intensity ratios of the
// two MS levels.
type SignalNoise struct {
	MS1, MS2 stats.Accumulator
}

// addSN contributes one spectrum's max/median intensity ratio. Scans whose
// median intensity is zero are skipped: the ratio is ill-defined there.
func addSN(acc *stats.Accumulator, intensities []float64) {
	if len(intensities) == 0 {
		return
	}
	tmp := make([]float64, len(intensities))
	copy(tmp, intensities)
	sort.Float64s(tmp)
	med, _ := stats.Q2(tmp)
	if med == 0 {
		return
	}
	acc.Add(tmp[len(tmp)-1] / med)
}

// BuildXICs is the second streaming pass. Every MS1 spectrum contributes
// its in-window intensity sums to each window whose RT interval contains
// the scan time, and its signal-to-noise ratio while the scan time is at
// or below the third identification-time quartile. Identified MS2 spectra
// contribute their signal-to-noise ratios.
func BuildXICs(list msdata.List, identified map[string]struct{}, set *XICSet, thirdQuartileIDTime float64) (*SignalNoise, error) {
	sn := &SignalNoise{}
	sweeps := [3]*sweep{newSweep(set.Peptide), newSweep(set.Identified), newSweep(set.Unidentified)}
	for i := 0; i < list.Len(); i++ {
		s, err := list.Spectrum(i, true)
		if err != nil {
			return nil, err
		}
		if s.MSLevel != 1 && s.MSLevel != 2 {
			continue
		}
		if !s.HasRT {
			continue
		}
		if s.MSLevel == 2 {
			if _, ok := identified[s.NativeID]; ok {
				addSN(&sn.MS2, s.Intensity)
			}
			continue
		}
		if len(s.MZ) == 0 {
			continue
		}
		if s.RT <= thirdQuartileIDTime {
			addSN(&sn.MS1, s.Intensity)
		}
		mzMin, mzMax := s.MZ[0], s.MZ[0]
		for _, mz := range s.MZ[1:] {
			if mz < mzMin {
				mzMin = mz
			}
			if mz > mzMax {
				mzMax = mz
			}
		}
		for _, sw := range sweeps {
			sw.visit(s.RT, func(w *Window) {
				bounds, ok := w.MZ.Bounds()
				if !ok || bounds.Max < mzMin || bounds.Min > mzMax {
					return
				}
				var sum float64
				for k, mz := range s.MZ {
					if w.MZ.Contains(mz) {
						sum += s.Intensity[k]
					}
				}
				if sum > 0 {
					w.RTs = append(w.RTs, s.RT)
					w.Intensities = append(w.Intensities, sum)
				}
			})
		}
	}
	return sn, nil
}
