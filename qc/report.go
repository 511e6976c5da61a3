package qc

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/grailbio/base/file"
	"github.com/grailbio/base/tsv"
)

// missingValue is written for any metric whose population was empty or
// whose denominator was zero.
const missingValue = "NaN"

// panelColumns is the fixed column order of the tabular report.
var panelColumns = []string{
	"Filename",
	"C-1A", "C-1B", "C-2A", "C-2B", "C-3A", "C-3B", "C-4A", "C-4B", "C-4C",
	"DS-1A", "DS-1B", "DS-2A", "DS-2B", "DS-3A", "DS-3B",
	"IS-1A", "IS1-B", "IS-2", "IS-3A", "IS-3B", "IS-3C",
	"MS1-1", "MS1-2A", "MS1-2B", "MS1-3A", "MS1-3B", "MS1-5A", "MS1-5B", "MS1-5C", "MS1-5D",
	"MS2-1", "MS2-2", "MS2-3", "MS2-4A", "MS2-4B", "MS2-4C", "MS2-4D",
	"P-1", "P-2A", "P-2B", "P-2C", "P-3",
}

func formatMetric(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return missingValue
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// panelValues returns the metric values in panelColumns order, already
// formatted.
func (m *Metrics) panelValues() []string {
	floats := []float64{
		m.PeakTailingRatio, m.BleedRatio, m.IQIDTime, m.IQIDRate,
		m.MedianFwhm, m.IQFwhm, m.FwhmLastRTDecile, m.FwhmFirstRTDecile, m.FwhmMedianRTDecile,
		m.OnceTwiceRatio, m.TwiceThriceRatio,
	}
	out := []string{m.Filename}
	for _, v := range floats {
		out = append(out, formatMetric(v))
	}
	out = append(out, strconv.Itoa(m.IQMS1Scans), strconv.Itoa(m.IQMS2Scans),
		formatMetric(m.MedianSamplingRatio), formatMetric(m.BottomHalfSamplingRatio),
		strconv.Itoa(m.TICDrops), strconv.Itoa(m.TICJumps),
		formatMetric(m.MedianPrecursorMZ),
		formatMetric(m.Charge1Ratio), formatMetric(m.Charge3Ratio), formatMetric(m.Charge4Ratio),
		formatMetric(m.MedianMS1InjectionTime),
		formatMetric(m.MedianSigNoiseMS1), formatMetric(m.MedianTIC),
		formatMetric(m.DynamicRange), formatMetric(m.MedianMS1Peak),
		formatMetric(m.MassError.MedianError), formatMetric(m.MassError.MeanAbsError),
		formatMetric(m.MassError.MedianPPMError), formatMetric(m.MassError.PPMErrorIQR),
		formatMetric(m.MedianMS2InjectionTime),
		formatMetric(m.MedianSigNoiseMS2), formatMetric(m.MedianMS2PeakCount),
		formatMetric(m.IDRatioQ1), formatMetric(m.IDRatioQ2),
		formatMetric(m.IDRatioQ3), formatMetric(m.IDRatioQ4),
		formatMetric(m.MedianIDScore),
		strconv.Itoa(m.TrypticMS2Spectra), strconv.Itoa(m.TrypticPeptideIons),
		strconv.Itoa(m.FullyTrypticPeptides),
		formatMetric(m.SemiToFullyTrypticRatio),
	)
	return out
}

func writeTabular(w io.Writer, m *Metrics) error {
	tw := tsv.NewWriter(w)
	for _, col := range panelColumns {
		tw.WriteString(col)
	}
	if err := tw.EndLine(); err != nil {
		return err
	}
	for _, v := range m.panelValues() {
		tw.WriteString(v)
	}
	if err := tw.EndLine(); err != nil {
		return err
	}
	return tw.Flush()
}

func writeDescriptive(w io.Writer, m *Metrics) error {
	bw := bufio.NewWriter(w)
	p := func(format string, args ...interface{}) {
		fmt.Fprintf(bw, format, args...) // nolint: errcheck
	}
	p("%s\n\nMetrics:\n--------\n", m.Filename)
	p("C-1A: Chromatographic peak tailing: %s\n", formatMetric(m.PeakTailingRatio))
	p("C-1B: Chromatographic bleeding: %s\n", formatMetric(m.BleedRatio))
	p("C-2A: Time period over which middle 50%% of peptides were identified: %s minutes\n", formatMetric(m.IQIDTime))
	p("C-2B: Peptide identification rate during the interquartile range: %s peptides/min\n", formatMetric(m.IQIDRate))
	p("C-3A: Median peak width for identified peptides: %s seconds\n", formatMetric(m.MedianFwhm))
	p("C-3B: Interquartile peak width for identified peptides: %s seconds\n", formatMetric(m.IQFwhm))
	p("C-4A: Median peak width for identified peptides in the last RT decile: %s seconds\n", formatMetric(m.FwhmLastRTDecile))
	p("C-4B: Median peak width for identified peptides in the first RT decile: %s seconds\n", formatMetric(m.FwhmFirstRTDecile))
	p("C-4C: Median peak width for identified peptides in median RT decile: %s seconds\n", formatMetric(m.FwhmMedianRTDecile))
	p("DS-1A: Ratio of peptides identified once over those identified twice: %s\n", formatMetric(m.OnceTwiceRatio))
	p("DS-1B: Ratio of peptides identified twice over those identified thrice: %s\n", formatMetric(m.TwiceThriceRatio))
	p("DS-2A: Number of MS1 scans taken over the interquartile range: %d scans\n", m.IQMS1Scans)
	p("DS-2B: Number of MS2 scans taken over the interquartile range: %d scans\n", m.IQMS2Scans)
	p("DS-3A: MS1 peak intensity over MS1 sampled intensity at median sorted by max intensity: %s\n", formatMetric(m.MedianSamplingRatio))
	p("DS-3B: MS1 peak intensity over MS1 sampled intensity at median sorted by max intensity of bottom 50%%: %s\n", formatMetric(m.BottomHalfSamplingRatio))
	p("IS-1A: Number of big drops in total ion current value: %d\n", m.TICDrops)
	p("IS-1B: Number of big jumps in total ion current value: %d\n", m.TICJumps)
	p("IS-2: Median m/z value for all unique ions of identified peptides: %s\n", formatMetric(m.MedianPrecursorMZ))
	p("IS-3A: +1 charge / +2 charge: %s\n", formatMetric(m.Charge1Ratio))
	p("IS-3B: +3 charge / +2 charge: %s\n", formatMetric(m.Charge3Ratio))
	p("IS-3C: +4 charge / +2 charge: %s\n", formatMetric(m.Charge4Ratio))
	p("MS1-1: Median MS1 ion injection time: %s ms\n", formatMetric(m.MedianMS1InjectionTime))
	p("MS1-2A: Median signal-to-noise ratio (max/median peak height) for MS1 up to and including C-2A: %s\n", formatMetric(m.MedianSigNoiseMS1))
	p("MS1-2B: Median TIC value of identified peptides before the third quartile: %s\n", formatMetric(m.MedianTIC))
	p("MS1-3A: Ratio of 95th over 5th percentile MS1 max intensities of identified peptides: %s\n", formatMetric(m.DynamicRange))
	p("MS1-3B: Median maximum MS1 value for identified peptides: %s\n", formatMetric(m.MedianMS1Peak))
	p("MS1-5A: Median real value of precursor errors: %s\n", formatMetric(m.MassError.MedianError))
	p("MS1-5B: Mean of the absolute precursor errors: %s\n", formatMetric(m.MassError.MeanAbsError))
	p("MS1-5C: Median real value of precursor errors in ppm: %s\n", formatMetric(m.MassError.MedianPPMError))
	p("MS1-5D: Interquartile range in ppm of the precursor errors: %s\n", formatMetric(m.MassError.PPMErrorIQR))
	p("MS2-1: Median MS2 ion injection time: %s ms\n", formatMetric(m.MedianMS2InjectionTime))
	p("MS2-2: Median S/N ratio (max/median peak height) for identified MS2 spectra: %s\n", formatMetric(m.MedianSigNoiseMS2))
	p("MS2-3: Median number of peaks in an MS2 scan: %s\n", formatMetric(m.MedianMS2PeakCount))
	p("MS2-4A: Fraction of MS2 scans identified in the first quartile of peptides sorted by MS1 max intensity: %s\n", formatMetric(m.IDRatioQ1))
	p("MS2-4B: Fraction of MS2 scans identified in the second quartile of peptides sorted by MS1 max intensity: %s\n", formatMetric(m.IDRatioQ2))
	p("MS2-4C: Fraction of MS2 scans identified in the third quartile of peptides sorted by MS1 max intensity: %s\n", formatMetric(m.IDRatioQ3))
	p("MS2-4D: Fraction of MS2 scans identified in the fourth quartile of peptides sorted by MS1 max intensity: %s\n", formatMetric(m.IDRatioQ4))
	p("P-1: Median peptide identification score: %s\n", formatMetric(m.MedianIDScore))
	p("P-2A: Number of MS2 spectra identifying tryptic peptide ions: %d\n", m.TrypticMS2Spectra)
	p("P-2B: Number of tryptic peptide ions identified: %d\n", m.TrypticPeptideIons)
	p("P-2C: Number of unique tryptic peptide sequences identified: %d\n", m.FullyTrypticPeptides)
	p("P-3: Ratio of semi/fully tryptic peptides: %s\n", formatMetric(m.SemiToFullyTrypticRatio))
	p("\nNot metrics:\n------------\n")
	if !math.IsNaN(m.MeanMS1InjectionTime) && !math.IsNaN(m.MeanMS2InjectionTime) {
		p("MS1 mean ion injection time: %s\n", formatMetric(m.MeanMS1InjectionTime))
		p("MS2 mean ion injection time: %s\n", formatMetric(m.MeanMS2InjectionTime))
	}
	p("Total number of MS1 scans: %d\n", m.MS1Count)
	p("Total number of MS2 scans: %d\n\n", m.MS2Count)
	return bw.Flush()
}

// WriteReport writes the panel to path in the configured form.
func WriteReport(ctx context.Context, path string, m *Metrics, tabbed bool) (err error) {
	out, err := file.Create(ctx, path)
	if err != nil {
		return err
	}
	defer file.CloseAndReport(ctx, out, &err)
	if tabbed {
		return writeTabular(out.Writer(ctx), m)
	}
	return writeDescriptive(out.Writer(ctx), m)
}
