package qc

import (
	"math"
	"sort"

	"github.com/grailbio/msqc/idpdb"
	"github.com/grailbio/msqc/stats"
)

// repeatIDDriftLimit is the retention-time distance, in seconds, between a
// repeat identification and its picked chromatographic peak beyond which
// the identification counts as peak tailing or bleeding.
const repeatIDDriftLimit = 240

// Metrics is the fixed QA panel of one run. Missing values are NaN and are
// rendered as the literal "NaN".
type Metrics struct {
	Filename string

	// Chromatographic stability.
	PeakTailingRatio   float64 // C-1A
	BleedRatio         float64 // C-1B
	IQIDTime           float64 // C-2A, minutes
	IQIDRate           float64 // C-2B, peptides/min
	MedianFwhm         float64 // C-3A, seconds
	IQFwhm             float64 // C-3B, seconds
	FwhmLastRTDecile   float64 // C-4A
	FwhmFirstRTDecile  float64 // C-4B
	FwhmMedianRTDecile float64 // C-4C

	// Sampling.
	OnceTwiceRatio          float64 // DS-1A
	TwiceThriceRatio        float64 // DS-1B
	IQMS1Scans              int     // DS-2A
	IQMS2Scans              int     // DS-2B
	MedianSamplingRatio     float64 // DS-3A
	BottomHalfSamplingRatio float64 // DS-3B

	// Ion source.
	TICDrops          int     // IS-1A
	TICJumps          int     // IS-1B
	MedianPrecursorMZ float64 // IS-2
	Charge1Ratio      float64 // IS-3A
	Charge3Ratio      float64 // IS-3B
	Charge4Ratio      float64 // IS-3C

	// MS1.
	MedianMS1InjectionTime float64 // MS1-1, ms
	MedianSigNoiseMS1      float64 // MS1-2A
	MedianTIC              float64 // MS1-2B, thousands
	DynamicRange           float64 // MS1-3A
	MedianMS1Peak          float64 // MS1-3B
	MassError              idpdb.MassErrorStats

	// MS2.
	MedianMS2InjectionTime float64 // MS2-1, ms
	MedianSigNoiseMS2      float64 // MS2-2
	MedianMS2PeakCount     float64 // MS2-3
	IDRatioQ1              float64 // MS2-4A
	IDRatioQ2              float64 // MS2-4B
	IDRatioQ3              float64 // MS2-4C
	IDRatioQ4              float64 // MS2-4D

	// Peptide identifications.
	MedianIDScore           float64 // P-1
	TrypticMS2Spectra       int     // P-2A
	TrypticPeptideIons      int     // P-2B
	FullyTrypticPeptides    int     // P-2C
	SemiToFullyTrypticRatio float64 // P-3

	// Non-metric extras for the descriptive report.
	MS1Count, MS2Count                         int
	MeanMS1InjectionTime, MeanMS2InjectionTime float64
}

// ratio divides, surfacing division by zero as NaN instead of ±Inf.
func ratio(num, den float64) float64 {
	if den == 0 {
		return math.NaN()
	}
	return num / den
}

// orNaN unwraps an optional statistic.
func orNaN(v float64, ok bool) float64 {
	if !ok {
		return math.NaN()
	}
	return v
}

// medianPositional applies the median index rule to a series in its given
// order, without sorting. Used for the peak-width-by-elution metrics where
// the series order is the elution order.
func medianPositional(xs []float64) float64 {
	n := len(xs)
	if n == 0 {
		return math.NaN()
	}
	if n%2 == 0 {
		return (xs[n/2-1] + xs[n/2]) / 2
	}
	return xs[n/2]
}

// Derive computes the full panel from the pass results and the
// identification statistics.
//
// REQUIRES: len(idx.Identified) > 0 (callers reject runs with no
// identifications before the second pass).
func Derive(idx *ScanIndex, quart idTimeQuartiles, ids *idpdb.SourceStats,
	pepPicks, identPicks, unidentPicks []PeakPick, sn *SignalNoise) *Metrics {
	m := &Metrics{}

	m.IQIDTime = (quart.Q3Time - quart.Q1Time) / 60
	m.IQIDRate = ratio(float64(quart.Q3Index-quart.Q1Index), m.IQIDTime)

	m.deriveRepeatIDs(idx, ids, identPicks)
	m.deriveFwhm(pepPicks)
	m.deriveSampling(idx, ids, identPicks, quart)
	m.deriveTICWalk(idx, quart.Q3Time)
	m.derivePeptidePeaks(pepPicks)
	m.deriveMS2Buckets(identPicks, unidentPicks)

	m.OnceTwiceRatio = ratio(float64(ids.IdentifiedOnce), float64(ids.IdentifiedTwice))
	m.TwiceThriceRatio = ratio(float64(ids.IdentifiedTwice), float64(ids.IdentifiedThrice))
	m.MedianPrecursorMZ = ids.MedianPrecursorMZ
	m.Charge1Ratio = ratio(float64(ids.ChargeOne), float64(ids.ChargeTwo))
	m.Charge3Ratio = ratio(float64(ids.ChargeThree), float64(ids.ChargeTwo))
	m.Charge4Ratio = ratio(float64(ids.ChargeFour), float64(ids.ChargeTwo))

	m.MedianMS1InjectionTime = orNaN(idx.InjectionTimeMS1.Median())
	m.MedianSigNoiseMS1 = orNaN(sn.MS1.Median())
	m.deriveMedianTIC(idx, quart.Q3Index)
	m.MassError = ids.MassError

	m.MedianMS2InjectionTime = orNaN(idx.InjectionTimeMS2.Median())
	m.MedianSigNoiseMS2 = orNaN(sn.MS2.Median())
	m.MedianMS2PeakCount = orNaN(idx.MS2PeakCounts.Median())

	m.MedianIDScore = ids.MedianIDScore
	m.TrypticMS2Spectra = ids.TrypticMS2Spectra
	m.TrypticPeptideIons = ids.TrypticPeptideIons
	m.FullyTrypticPeptides = ids.FullyTrypticPeptides
	m.SemiToFullyTrypticRatio = ratio(float64(ids.SemiTrypticPeptides), float64(ids.FullyTrypticPeptides))

	m.MS1Count = idx.MS1Count
	m.MS2Count = idx.MS2Count
	m.MeanMS1InjectionTime = orNaN(idx.InjectionTimeMS1.Mean())
	m.MeanMS2InjectionTime = orNaN(idx.InjectionTimeMS2.Mean())
	return m
}

// deriveRepeatIDs computes C-1A/C-1B: among peptides identified more than
// once, the fraction of identifications whose MS2 scan time drifted more
// than repeatIDDriftLimit from the picked chromatogram peak, in either
// direction. The denominator is the total identification count of the
// repeat peptides; with no repeats both metrics are 0/0, reported as NaN.
func (m *Metrics) deriveRepeatIDs(idx *ScanIndex, ids *idpdb.SourceStats, identPicks []PeakPick) {
	var entries, tailing, bleed int
	for _, pep := range ids.Peptides {
		if len(pep.NativeIDs) < 2 {
			continue
		}
		entries += len(pep.NativeIDs)
		for _, nid := range pep.NativeIDs {
			i, ok := idx.IdentifiedIndex[nid]
			if !ok || !identPicks[i].OK {
				continue
			}
			switch {
			case idx.Identified[i].RT-identPicks[i].RT > repeatIDDriftLimit:
				tailing++
			case identPicks[i].RT-idx.Identified[i].RT > repeatIDDriftLimit:
				bleed++
			}
		}
	}
	m.PeakTailingRatio = ratio(float64(tailing), float64(entries))
	m.BleedRatio = ratio(float64(bleed), float64(entries))
}

// deriveFwhm computes the peak-width metrics C-3A/B and C-4A/B/C. The
// pick slice is in elution order; C-4A/B read deciles of that order while
// C-3A/B use the width-sorted series.
func (m *Metrics) deriveFwhm(pepPicks []PeakPick) {
	var byRT []float64
	for _, p := range pepPicks {
		if p.OK {
			byRT = append(byRT, p.FWHM)
		}
	}
	n := len(byRT)
	if n == 0 {
		m.FwhmLastRTDecile = math.NaN()
		m.FwhmFirstRTDecile = math.NaN()
		m.FwhmMedianRTDecile = math.NaN()
		m.MedianFwhm = math.NaN()
		m.IQFwhm = math.NaN()
		return
	}

	lastDecileStart := (n + 1) * 9 / 10
	lastDecile := n - lastDecileStart
	switch {
	case n < 10:
		m.FwhmLastRTDecile = byRT[n-1]
	case lastDecile%2 == 0:
		m.FwhmLastRTDecile = (byRT[lastDecile/2-1+lastDecileStart] + byRT[lastDecile/2+lastDecileStart]) / 2
	default:
		m.FwhmLastRTDecile = byRT[lastDecile/2+lastDecileStart]
	}

	firstDecile := (n + 1) / 10
	switch {
	case n < 10:
		m.FwhmFirstRTDecile = byRT[0]
	case firstDecile%2 == 0:
		m.FwhmFirstRTDecile = (byRT[firstDecile/2-1] + byRT[firstDecile/2]) / 2
	default:
		m.FwhmFirstRTDecile = byRT[firstDecile/2]
	}

	m.FwhmMedianRTDecile = medianPositional(byRT)

	sorted := make([]float64, n)
	copy(sorted, byRT)
	sort.Float64s(sorted)
	m.MedianFwhm = orNaN(stats.Q2(sorted))
	q1 := orNaN(stats.Q1(sorted))
	q3 := orNaN(stats.Q3(sorted))
	m.IQFwhm = q3 - q1
}

// deriveSampling computes DS-2A/B (scan counts over the interquartile
// identification period) and DS-3A/B (picked peak over sampled precursor
// intensity, at the median and lower-quartile positions of the
// peak-intensity order).
func (m *Metrics) deriveSampling(idx *ScanIndex, ids *idpdb.SourceStats, identPicks []PeakPick, quart idTimeQuartiles) {
	for _, rt := range idx.MS1RTs {
		if rt >= quart.Q1Time && rt <= quart.Q3Time {
			m.IQMS1Scans++
		}
	}
	for _, rt := range idx.MS2RTs {
		if rt >= quart.Q1Time && rt <= quart.Q3Time {
			m.IQMS2Scans++
		}
	}

	type pair struct{ precursor, peak float64 }
	var pairs []pair
	for i, p := range identPicks {
		if p.OK {
			pairs = append(pairs, pair{precursor: idx.Identified[i].PrecursorIntensity, peak: p.Intensity})
		}
	}
	sort.SliceStable(pairs, func(i, j int) bool { return pairs[i].peak < pairs[j].peak })
	sampling := func(i int) float64 { return ratio(pairs[i].peak, pairs[i].precursor) }
	n := len(pairs)
	switch {
	case n == 0:
		m.MedianSamplingRatio = math.NaN()
		m.BottomHalfSamplingRatio = math.NaN()
		return
	case n%2 == 0:
		m.MedianSamplingRatio = (sampling(n/2-1) + sampling(n/2)) / 2
	default:
		m.MedianSamplingRatio = sampling(n / 2)
	}
	if n%4 == 0 {
		m.BottomHalfSamplingRatio = (sampling(n/4-1) + sampling(n/4)) / 2
	} else {
		m.BottomHalfSamplingRatio = sampling(n / 4)
	}
}

// deriveTICWalk computes IS-1A/IS-1B: order-of-magnitude drops and jumps
// in total ion current between consecutive MS1 scans up to the third
// identification-time quartile.
func (m *Metrics) deriveTICWalk(idx *ScanIndex, q3Time float64) {
	lastTIC := -1.0
	for i, nid := range idx.MS1NativeIDs {
		if idx.MS1RTs[i] > q3Time {
			continue
		}
		tic := idx.TIC[nid]
		if lastTIC != -1 {
			if 10*tic < lastTIC {
				m.TICDrops++
			} else if tic > 10*lastTIC {
				m.TICJumps++
			}
		}
		lastTIC = tic
	}
}

// deriveMedianTIC computes MS1-2B: the median precursor-scan TIC of the
// identified MS2s before the third quartile index, in thousands.
func (m *Metrics) deriveMedianTIC(idx *ScanIndex, q3Index int) {
	var tics stats.Accumulator
	for i := 0; i < q3Index && i < len(idx.Identified); i++ {
		tics.Add(idx.TIC[idx.Identified[i].PrecursorNativeID])
	}
	med, ok := tics.Median()
	if !ok {
		m.MedianTIC = math.NaN()
		return
	}
	m.MedianTIC = med / 1000
}

// derivePeptidePeaks computes MS1-3A/MS1-3B from the picked peptide peak
// heights: the 95th/5th percentile dynamic range and the median height.
func (m *Metrics) derivePeptidePeaks(pepPicks []PeakPick) {
	var peaks []float64
	for _, p := range pepPicks {
		if p.OK {
			peaks = append(peaks, p.Intensity)
		}
	}
	if len(peaks) == 0 {
		m.DynamicRange = math.NaN()
		m.MedianMS1Peak = math.NaN()
		return
	}
	sort.Float64s(peaks)
	p95 := peaks[stats.PercentileIndex(0.95, len(peaks))]
	p5 := peaks[stats.PercentileIndex(0.05, len(peaks))]
	m.DynamicRange = ratio(p95, p5)
	m.MedianMS1Peak = orNaN(stats.Q2(peaks))
}

// deriveMS2Buckets computes MS2-4A..D: the identified fraction of MS2
// picked peaks per quartile bucket of all picked peak heights. Ties land
// in the lower bucket.
func (m *Metrics) deriveMS2Buckets(identPicks, unidentPicks []PeakPick) {
	var idPeaks, all []float64
	for _, p := range identPicks {
		if p.OK {
			idPeaks = append(idPeaks, p.Intensity)
			all = append(all, p.Intensity)
		}
	}
	var unidPeaks []float64
	for _, p := range unidentPicks {
		if p.OK {
			unidPeaks = append(unidPeaks, p.Intensity)
			all = append(all, p.Intensity)
		}
	}
	sort.Float64s(all)
	if len(all) == 0 {
		m.IDRatioQ1 = math.NaN()
		m.IDRatioQ2 = math.NaN()
		m.IDRatioQ3 = math.NaN()
		m.IDRatioQ4 = math.NaN()
		return
	}
	q1, _ := stats.Q1(all)
	q2, _ := stats.Q2(all)
	q3, _ := stats.Q3(all)
	bucket := func(v float64) int {
		switch {
		case v <= q1:
			return 0
		case v <= q2:
			return 1
		case v <= q3:
			return 2
		}
		return 3
	}
	var id, total [4]int
	for _, v := range idPeaks {
		id[bucket(v)]++
		total[bucket(v)]++
	}
	for _, v := range unidPeaks {
		total[bucket(v)]++
	}
	m.IDRatioQ1 = ratio(float64(id[0]), float64(total[0]))
	m.IDRatioQ2 = ratio(float64(id[1]), float64(total[1]))
	m.IDRatioQ3 = ratio(float64(id[2]), float64(total[2]))
	m.IDRatioQ4 = ratio(float64(id[3]), float64(total[3]))
}
