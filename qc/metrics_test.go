package qc

import (
	"math"
	"reflect"
	"testing"

	"github.com/grailbio/testutil/expect"

	"github.com/grailbio/msqc/idpdb"
	"github.com/grailbio/msqc/msdata"
)

func near(t *testing.T, got, want, tol float64) {
	t.Helper()
	if math.Abs(got-want) > tol {
		t.Errorf("got %v, want %v (±%v)", got, want, tol)
	}
}

// runPipeline drives the full per-run flow on an in-memory spectrum list.
func runPipeline(t *testing.T, list msdata.List, ids *idpdb.SourceStats) *Metrics {
	t.Helper()
	idx, err := BuildScanIndex(list, ids.NativeIDs)
	expect.NoError(t, err)
	if len(idx.Identified) == 0 {
		t.Fatal("no identified spectra in test input")
	}
	quart := identifiedRTQuartiles(idx.Identified)
	set := BuildWindows(idx, ids.Peptides)
	sn, err := BuildXICs(list, ids.NativeIDs, set, quart.Q3Time)
	expect.NoError(t, err)
	pep, ident, unident := PickPeaks(set)
	return Derive(idx, quart, ids, pep, ident, unident, sn)
}

func minimalIDs() *idpdb.SourceStats {
	return &idpdb.SourceStats{
		NativeIDs: idSet("scan=2", "scan=3", "scan=5", "scan=6"),
		Peptides: []idpdb.PeptideIDs{{
			Peptide:      1,
			NativeIDs:    []string{"scan=2", "scan=3", "scan=5", "scan=6"},
			PrecursorMZs: []float64{500},
		}},
		ChargeTwo:         1,
		MedianIDScore:     0.01,
		MedianPrecursorMZ: 500,
		MassError:         idpdb.MassErrorStats{MedianError: 0.001, MeanAbsError: 0.002, MedianPPMError: 1, PPMErrorIQR: 2},
	}
}

func TestDeriveMinimalRun(t *testing.T) {
	list, _ := minimalRun()
	m := runPipeline(t, list, minimalIDs())

	// Identification times 11,12,21,22: quartile times 11.5 and 21.5.
	near(t, m.IQIDTime, 10.0/60, 1e-12)
	near(t, m.IQIDRate, 2/(10.0/60), 1e-12)

	// One repeat peptide, no drift beyond 240s.
	expect.EQ(t, m.PeakTailingRatio, 0.0)
	expect.EQ(t, m.BleedRatio, 0.0)

	// One MS1 (at 20s) and two MS2s (12, 21) inside the quartile span.
	expect.EQ(t, m.IQMS1Scans, 1)
	expect.EQ(t, m.IQMS2Scans, 2)

	// TIC 100 -> 2000 is a >10x jump; no drop.
	expect.EQ(t, m.TICDrops, 0)
	expect.EQ(t, m.TICJumps, 1)

	// Every XIC has points (10,55),(20,55): one picked peak at 10s of
	// height 55.
	near(t, m.MedianSamplingRatio, 5.5, 1e-12)
	near(t, m.BottomHalfSamplingRatio, 5.5, 1e-12)
	expect.EQ(t, m.MedianMS1Peak, 55.0)
	expect.EQ(t, m.DynamicRange, 1.0)

	// Precursor TICs of the first two identifications are both 100.
	near(t, m.MedianTIC, 0.1, 1e-12)

	near(t, m.MedianSigNoiseMS1, 5.0, 1e-12)
	near(t, m.MedianSigNoiseMS2, 1.5, 1e-12)
	expect.EQ(t, m.MedianMS2PeakCount, 3.0)

	// All picked peaks share one height: everything lands in the lowest
	// quartile bucket, fully identified; the other buckets are empty.
	expect.EQ(t, m.IDRatioQ1, 1.0)
	expect.True(t, math.IsNaN(m.IDRatioQ2))
	expect.True(t, math.IsNaN(m.IDRatioQ3))
	expect.True(t, math.IsNaN(m.IDRatioQ4))

	// Sampling-rate histogram was all zero in the fake id stats.
	expect.True(t, math.IsNaN(m.OnceTwiceRatio))
	expect.True(t, math.IsNaN(m.TwiceThriceRatio))
	expect.EQ(t, m.Charge1Ratio, 0.0)

	expect.EQ(t, m.MS1Count, 2)
	expect.EQ(t, m.MS2Count, 4)
}

// No injection times anywhere: the two injection-time cells are missing.
func TestDeriveNoInjectionTimes(t *testing.T) {
	list, _ := minimalRun()
	m := runPipeline(t, list, minimalIDs())
	expect.True(t, math.IsNaN(m.MedianMS1InjectionTime))
	expect.True(t, math.IsNaN(m.MedianMS2InjectionTime))
}

func TestDeriveInjectionTimes(t *testing.T) {
	list, _ := minimalRun()
	for _, s := range list.Spectra {
		if s.MSLevel == 1 {
			s.InjectionTime, s.HasInjectionTime = 25, true
		}
	}
	m := runPipeline(t, list, minimalIDs())
	expect.EQ(t, m.MedianMS1InjectionTime, 25.0)
	expect.True(t, math.IsNaN(m.MedianMS2InjectionTime))
}

// No repeat identifications: the tailing/bleed denominators are empty.
func TestDeriveNoRepeats(t *testing.T) {
	list, _ := minimalRun()
	ids := minimalIDs()
	ids.Peptides = []idpdb.PeptideIDs{
		{Peptide: 1, NativeIDs: []string{"scan=2"}, PrecursorMZs: []float64{500}},
		{Peptide: 2, NativeIDs: []string{"scan=3"}, PrecursorMZs: []float64{500}},
		{Peptide: 3, NativeIDs: []string{"scan=5"}, PrecursorMZs: []float64{500}},
		{Peptide: 4, NativeIDs: []string{"scan=6"}, PrecursorMZs: []float64{500}},
	}
	m := runPipeline(t, list, ids)
	expect.True(t, math.IsNaN(m.PeakTailingRatio))
	expect.True(t, math.IsNaN(m.BleedRatio))
}

// The peak finder finds nothing when no MS1 intensity falls inside any
// window: the peak-derived metrics are all missing.
func TestDeriveNoPeaks(t *testing.T) {
	mz := []float64{100, 110, 120} // far from every precursor window
	intensity := []float64{5, 50, 10}
	list := &msdata.SimpleList{Spectra: []*msdata.Spectrum{
		ms1("scan=1", 10, 100, mz, intensity),
		ms2("scan=2", "scan=1", 11, 500, 10, []float64{1, 2, 3}),
		ms1("scan=3", 20, 2000, mz, intensity),
		ms2("scan=4", "scan=3", 21, 500, 10, []float64{1, 2, 3}),
	}}
	ids := &idpdb.SourceStats{
		NativeIDs: idSet("scan=2", "scan=4"),
		Peptides: []idpdb.PeptideIDs{{
			Peptide: 1, NativeIDs: []string{"scan=2", "scan=4"}, PrecursorMZs: []float64{500},
		}},
	}
	m := runPipeline(t, list, ids)
	expect.True(t, math.IsNaN(m.MedianFwhm))
	expect.True(t, math.IsNaN(m.DynamicRange))
	expect.True(t, math.IsNaN(m.MedianMS1Peak))
	expect.True(t, math.IsNaN(m.MedianSamplingRatio))
	expect.True(t, math.IsNaN(m.BottomHalfSamplingRatio))
	expect.True(t, math.IsNaN(m.IDRatioQ1))
	// The repeat peptide exists but none of its picks produced a peak.
	expect.EQ(t, m.PeakTailingRatio, 0.0)
}

// The bucket counts of MS2-4 conserve the picked-peak populations.
func TestDeriveBucketConservation(t *testing.T) {
	var identPicks, unidentPicks []PeakPick
	heights := []float64{10, 20, 30, 40, 55, 70, 85, 100}
	for i, h := range heights {
		pick := PeakPick{RT: float64(i), Intensity: h, OK: true}
		if i%2 == 0 {
			identPicks = append(identPicks, pick)
		} else {
			unidentPicks = append(unidentPicks, pick)
		}
	}
	// One pick without a peak on each side must not be counted.
	identPicks = append(identPicks, PeakPick{})
	unidentPicks = append(unidentPicks, PeakPick{})

	var m Metrics
	m.deriveMS2Buckets(identPicks, unidentPicks)
	// Quartiles of the 8 heights: 25, 47.5, 77.5. Identified heights
	// 10,30,55,85 put one in each bucket; each bucket holds two total.
	expect.EQ(t, m.IDRatioQ1, 0.5)
	expect.EQ(t, m.IDRatioQ2, 0.5)
	expect.EQ(t, m.IDRatioQ3, 0.5)
	expect.EQ(t, m.IDRatioQ4, 0.5)
}

// Rerunning the pipeline on identical input reproduces every metric.
func TestDeriveIdempotent(t *testing.T) {
	listA, _ := minimalRun()
	listB, _ := minimalRun()
	a := runPipeline(t, listA, minimalIDs())
	b := runPipeline(t, listB, minimalIDs())
	if !reflect.DeepEqual(a, b) {
		t.Errorf("metric panels differ between identical runs:\n%+v\n%+v", a, b)
	}
}
