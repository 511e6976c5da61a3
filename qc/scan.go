package qc

import (
	"github.com/grailbio/base/log"

	"github.com/grailbio/msqc/msdata"
	"github.com/grailbio/msqc/stats"
)

// MS2ScanInfo carries the precursor description of one MS2 spectrum,
// resolved against the MS1 scan that preceded it in file order.
type MS2ScanInfo struct {
	NativeID           string
	RT                 float64
	PrecursorNativeID  string
	PrecursorMZ        float64
	PrecursorIntensity float64
	// PrecursorRT is the scan start time of the preceding MS1.
	PrecursorRT float64
}

// ScanIndex is the result of the first pass over a run: spectra classified
// by MS level, with the per-scan values every downstream metric reads.
type ScanIndex struct {
	MS1Count, MS2Count int

	// MS1NativeIDs and MS1RTs are parallel, in file order.
	MS1NativeIDs []string
	MS1RTs       []float64
	// MS2RTs holds the scan times of every MS2, including ones with no
	// preceding MS1.
	MS2RTs []float64

	// TIC and PrecursorRT are keyed by MS1 native ID.
	TIC         map[string]float64
	PrecursorRT map[string]float64

	InjectionTimeMS1 stats.Accumulator
	InjectionTimeMS2 stats.Accumulator
	MS2PeakCounts    stats.Accumulator

	// Identified and Unidentified split the MS2 scans by membership in
	// the identification database, preserving file order.
	Identified   []MS2ScanInfo
	Unidentified []MS2ScanInfo
	// IdentifiedIndex maps an identified MS2 native ID to its position in
	// Identified.
	IdentifiedIndex map[string]int
}

// BuildScanIndex streams the spectrum list once in native file order.
// Spectra that are neither MS1 nor MS2 are skipped; spectra without a scan
// start time are skipped with a warning. An MS2 seen before any MS1 is
// counted but excluded from the identified/unidentified lists, since it
// has no precursor scan to anchor a chromatogram window on.
func BuildScanIndex(list msdata.List, identified map[string]struct{}) (*ScanIndex, error) {
	idx := &ScanIndex{
		TIC:             make(map[string]float64),
		PrecursorRT:     make(map[string]float64),
		IdentifiedIndex: make(map[string]int),
	}
	var lastMS1 string
	var lastMS1RT float64
	for i := 0; i < list.Len(); i++ {
		s, err := list.Spectrum(i, false)
		if err != nil {
			return nil, err
		}
		if s.MSLevel != 1 && s.MSLevel != 2 {
			continue
		}
		if !s.HasRT {
			log.Error.Printf("no scan start time for spectrum %s, skipping", s.NativeID)
			continue
		}
		switch s.MSLevel {
		case 1:
			idx.MS1NativeIDs = append(idx.MS1NativeIDs, s.NativeID)
			idx.MS1RTs = append(idx.MS1RTs, s.RT)
			idx.TIC[s.NativeID] = s.TIC
			idx.PrecursorRT[s.NativeID] = s.RT
			if s.HasInjectionTime {
				idx.InjectionTimeMS1.Add(s.InjectionTime)
			}
			lastMS1, lastMS1RT = s.NativeID, s.RT
			idx.MS1Count++
		case 2:
			idx.MS2RTs = append(idx.MS2RTs, s.RT)
			if s.HasInjectionTime {
				idx.InjectionTimeMS2.Add(s.InjectionTime)
			}
			idx.MS2PeakCounts.Add(float64(s.PeakCount))
			idx.MS2Count++
			if lastMS1 == "" {
				log.Error.Printf("MS2 spectrum %s has no preceding MS1, excluding from chromatogram extraction", s.NativeID)
				continue
			}
			info := MS2ScanInfo{
				NativeID:           s.NativeID,
				RT:                 s.RT,
				PrecursorNativeID:  lastMS1,
				PrecursorMZ:        s.PrecursorMZ,
				PrecursorIntensity: s.PrecursorIntensity,
				PrecursorRT:        lastMS1RT,
			}
			if _, ok := identified[s.NativeID]; ok {
				idx.IdentifiedIndex[s.NativeID] = len(idx.Identified)
				idx.Identified = append(idx.Identified, info)
			} else {
				idx.Unidentified = append(idx.Unidentified, info)
			}
		}
	}
	return idx, nil
}

// identifiedRTQuartiles locates the first and third quartiles of the
// identified MS2 scan times, both as times and as element indices.
type idTimeQuartiles struct {
	Q1Time, Q3Time   float64
	Q1Index, Q3Index int
}

// REQUIRES: len(identified) > 0. Scan times are already ascending because
// the list preserves file order and scan times are monotonic.
func identifiedRTQuartiles(identified []MS2ScanInfo) idTimeQuartiles {
	n := len(identified)
	var q idTimeQuartiles
	if n%4 == 0 {
		q.Q1Time = (identified[n/4-1].RT + identified[n/4].RT) / 2
		q.Q3Time = (identified[3*n/4-1].RT + identified[3*n/4].RT) / 2
	} else {
		q.Q1Time = identified[n/4].RT
		q.Q3Time = identified[3*n/4].RT
	}
	q.Q1Index = stats.Q1Index(n)
	q.Q3Index = stats.Q3Index(n)
	return q
}
