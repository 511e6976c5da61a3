package filter

import (
	"testing"

	"github.com/grailbio/testutil/expect"

	"github.com/grailbio/msqc/msdata"
)

func TestParseIntSet(t *testing.T) {
	set, err := ParseIntSet("1-3 5 9-")
	expect.NoError(t, err)
	for _, x := range []int{1, 2, 3, 5, 9, 100} {
		expect.True(t, set.Contains(x))
	}
	for _, x := range []int{0, 4, 6, 8} {
		expect.False(t, set.Contains(x))
	}

	open, err := ParseIntSet("-3")
	expect.NoError(t, err)
	expect.True(t, open.Contains(0))
	expect.True(t, open.Contains(3))
	expect.False(t, open.Contains(4))

	for _, bad := range []string{"", "x", "5-3", "1-x"} {
		if _, err := ParseIntSet(bad); err == nil {
			t.Errorf("ParseIntSet(%q) did not fail", bad)
		}
	}
}

func TestParse(t *testing.T) {
	cfg, err := Parse("msLevel 2")
	expect.NoError(t, err)
	expect.EQ(t, cfg.Kind, KindMSLevel)

	cfg, err = Parse("scanTime [600,1800]")
	expect.NoError(t, err)
	expect.EQ(t, cfg.Kind, KindScanTime)
	expect.EQ(t, cfg.Window.Min, 600.0)
	expect.EQ(t, cfg.Window.Max, 1800.0)

	for _, bad := range []string{"msLevel", "bogus 1", "scanTime 600,1800", "scanTime [1800,600]", "mzWindow [a,b]"} {
		if _, err := Parse(bad); err == nil {
			t.Errorf("Parse(%q) did not fail", bad)
		}
	}
}

func TestApply(t *testing.T) {
	list := &msdata.SimpleList{Spectra: []*msdata.Spectrum{
		{NativeID: "scan=1", MSLevel: 1, RT: 10, HasRT: true,
			MZ: []float64{400, 500}, Intensity: []float64{1, 2}, PeakCount: 2},
		{NativeID: "scan=2", MSLevel: 2, RT: 11, HasRT: true,
			MZ: []float64{150, 160}, Intensity: []float64{1, 2}, PeakCount: 2},
		{NativeID: "scan=3", MSLevel: 2, RT: 2000, HasRT: true,
			MZ: []float64{450, 470}, Intensity: []float64{1, 2}, PeakCount: 2},
	}}

	ms2, err := Parse("msLevel 2")
	expect.NoError(t, err)
	out, err := Apply(list, []Config{ms2})
	expect.NoError(t, err)
	expect.EQ(t, len(out.Spectra), 2)
	expect.EQ(t, out.Spectra[0].NativeID, "scan=2")

	// mzWindow cannot decide from metadata: it reloads the arrays.
	mzWin, err := Parse("mzWindow [440,480]")
	expect.NoError(t, err)
	out, err = Apply(list, []Config{mzWin})
	expect.NoError(t, err)
	expect.EQ(t, len(out.Spectra), 1)
	expect.EQ(t, out.Spectra[0].NativeID, "scan=3")
	expect.EQ(t, len(out.Spectra[0].MZ), 2)
}

func TestEvalNeedArrays(t *testing.T) {
	cfg, err := Parse("mzWindow [440,480]")
	expect.NoError(t, err)
	s := &msdata.Spectrum{NativeID: "scan=1", MSLevel: 1}
	expect.EQ(t, cfg.Eval(0, s), NeedArrays)
	s.MZ = []float64{100}
	expect.EQ(t, cfg.Eval(0, s), Reject)
	s.MZ = []float64{100, 450}
	expect.EQ(t, cfg.Eval(0, s), Accept)
}
