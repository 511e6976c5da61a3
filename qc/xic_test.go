package qc

import (
	"testing"

	"github.com/grailbio/testutil/expect"

	"github.com/grailbio/msqc/idpdb"
	"github.com/grailbio/msqc/msdata"
)

func TestBuildWindows(t *testing.T) {
	list, identified := minimalRun()
	idx, err := BuildScanIndex(list, identified)
	expect.NoError(t, err)
	peptides := []idpdb.PeptideIDs{{
		Peptide:      1,
		NativeIDs:    []string{"scan=2", "scan=3", "scan=5", "scan=6"},
		PrecursorMZs: []float64{500},
	}}
	set := BuildWindows(idx, peptides)
	expect.EQ(t, len(set.Peptide), 1)
	expect.EQ(t, len(set.Identified), 4)
	expect.EQ(t, len(set.Unidentified), 0)

	pep := set.Peptide[0]
	expect.EQ(t, pep.RT.Min, 11.0-300)
	expect.EQ(t, pep.RT.Max, 22.0+300)
	expect.EQ(t, pep.AnchorRT, 11.0) // first identified scan
	expect.True(t, pep.MZ.Contains(499.5))
	expect.True(t, pep.MZ.Contains(501))
	expect.False(t, pep.MZ.Contains(502))

	// Scan windows center on the precursor MS1 time but anchor on the
	// MS2's own scan time.
	w := set.Identified[0]
	expect.EQ(t, w.RT.Min, 10.0-300)
	expect.EQ(t, w.RT.Max, 10.0+300)
	expect.EQ(t, w.AnchorRT, 11.0)
}

func TestBuildWindowsSkipsUnknownIDs(t *testing.T) {
	list, identified := minimalRun()
	idx, err := BuildScanIndex(list, identified)
	expect.NoError(t, err)
	peptides := []idpdb.PeptideIDs{
		{Peptide: 1, NativeIDs: []string{"scan=999"}, PrecursorMZs: []float64{500}},
		{Peptide: 2, NativeIDs: []string{"scan=2"}, PrecursorMZs: []float64{500}},
	}
	set := BuildWindows(idx, peptides)
	expect.EQ(t, len(set.Peptide), 1)
}

func TestBuildXICs(t *testing.T) {
	list, identified := minimalRun()
	idx, err := BuildScanIndex(list, identified)
	expect.NoError(t, err)
	peptides := []idpdb.PeptideIDs{{
		Peptide:      1,
		NativeIDs:    []string{"scan=2", "scan=3", "scan=5", "scan=6"},
		PrecursorMZs: []float64{500},
	}}
	set := BuildWindows(idx, peptides)
	quart := identifiedRTQuartiles(idx.Identified)
	sn, err := BuildXICs(list, identified, set, quart.Q3Time)
	expect.NoError(t, err)

	// Both MS1 scans land in every window: m/z 499.9 and 500.2 fall in
	// [499.5, 501], 501.5 does not, so each point sums to 55.
	pep := set.Peptide[0]
	expect.EQ(t, pep.RTs, []float64{10, 20})
	expect.EQ(t, pep.Intensities, []float64{55, 55})
	for _, w := range set.Identified {
		expect.EQ(t, w.RTs, []float64{10, 20})
		expect.EQ(t, w.Intensities, []float64{55, 55})
	}

	// MS1 S/N: scans at 10s and 20s are both at or below the third
	// quartile time; each contributes max/median = 50/10.
	expect.EQ(t, sn.MS1.Count(), 2)
	v, ok := sn.MS1.Median()
	expect.True(t, ok)
	expect.EQ(t, v, 5.0)
	// MS2 S/N: all four identified, max/median = 3/2.
	expect.EQ(t, sn.MS2.Count(), 4)
	v, _ = sn.MS2.Median()
	expect.EQ(t, v, 1.5)
}

func TestBuildXICsZeroMedianSkipped(t *testing.T) {
	list := &msdata.SimpleList{Spectra: []*msdata.Spectrum{
		ms1("scan=1", 10, 100, []float64{100, 200, 300}, []float64{0, 0, 9}),
		ms2("scan=2", "scan=1", 11, 500, 10, []float64{0, 0, 4}),
	}}
	idx, err := BuildScanIndex(list, idSet("scan=2"))
	expect.NoError(t, err)
	set := BuildWindows(idx, nil)
	sn, err := BuildXICs(list, idSet("scan=2"), set, 1e9)
	expect.NoError(t, err)
	// Median intensity is zero in both spectra: no S/N contribution.
	expect.EQ(t, sn.MS1.Count(), 0)
	expect.EQ(t, sn.MS2.Count(), 0)
}

func TestBuildXICsOutOfWindow(t *testing.T) {
	// An MS1 whose m/z range lies entirely outside the window m/z bounds
	// contributes nothing; neither does a zero in-window sum.
	list := &msdata.SimpleList{Spectra: []*msdata.Spectrum{
		ms1("scan=1", 10, 100, []float64{100, 110}, []float64{1, 2}),
		ms2("scan=2", "scan=1", 11, 500, 10, []float64{1, 2}),
		ms1("scan=3", 12, 100, []float64{400, 500.2}, []float64{3, 0}),
	}}
	idx, err := BuildScanIndex(list, idSet("scan=2"))
	expect.NoError(t, err)
	set := BuildWindows(idx, nil)
	_, err = BuildXICs(list, idSet("scan=2"), set, 1e9)
	expect.NoError(t, err)
	w := set.Identified[0]
	expect.EQ(t, len(w.RTs), 0)
}

// Reordering the peptide input must not change the extracted series.
func TestBuildXICsPermutationInvariant(t *testing.T) {
	list, identified := minimalRun()
	idx, err := BuildScanIndex(list, identified)
	expect.NoError(t, err)
	peptides := []idpdb.PeptideIDs{
		{Peptide: 1, NativeIDs: []string{"scan=2", "scan=3"}, PrecursorMZs: []float64{500}},
		{Peptide: 2, NativeIDs: []string{"scan=5", "scan=6"}, PrecursorMZs: []float64{500.3}},
	}
	reversed := []idpdb.PeptideIDs{peptides[1], peptides[0]}

	quart := identifiedRTQuartiles(idx.Identified)
	setA := BuildWindows(idx, peptides)
	setB := BuildWindows(idx, reversed)
	_, err = BuildXICs(list, identified, setA, quart.Q3Time)
	expect.NoError(t, err)
	_, err = BuildXICs(list, identified, setB, quart.Q3Time)
	expect.NoError(t, err)

	expect.EQ(t, len(setA.Peptide), len(setB.Peptide))
	for i := range setA.Peptide {
		expect.EQ(t, setA.Peptide[i].AnchorRT, setB.Peptide[i].AnchorRT)
		expect.EQ(t, setA.Peptide[i].RTs, setB.Peptide[i].RTs)
		expect.EQ(t, setA.Peptide[i].Intensities, setB.Peptide[i].Intensities)
	}
}
