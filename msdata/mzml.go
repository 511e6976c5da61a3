package msdata

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"encoding/xml"
	"fmt"
	"io"
	"io/ioutil"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
)

// PSI-MS and unit-ontology accessions recognized by the mzML backend.
const (
	accMS1Spectrum      = "MS:1000579"
	accMSnSpectrum      = "MS:1000580"
	accMSLevel          = "MS:1000511"
	accScanStartTime    = "MS:1000016"
	accTotalIonCurrent  = "MS:1000285"
	accIonInjectionTime = "MS:1000927"
	accSelectedIonMZ    = "MS:1000744"
	accLegacyMZ         = "MS:1000040"
	accPeakIntensity    = "MS:1000042"
	accMZArray          = "MS:1000514"
	accIntensityArray   = "MS:1000515"
	accFloat64          = "MS:1000523"
	accFloat32          = "MS:1000521"
	accZlib             = "MS:1000574"
	accUnitMinute       = "UO:0000031"
)

type xmlCVParam struct {
	Accession     string `xml:"accession,attr"`
	Value         string `xml:"value,attr"`
	UnitAccession string `xml:"unitAccession,attr"`
}

type xmlScan struct {
	CVParams []xmlCVParam `xml:"cvParam"`
}

type xmlSelectedIon struct {
	CVParams []xmlCVParam `xml:"cvParam"`
}

type xmlPrecursor struct {
	SpectrumRef  string           `xml:"spectrumRef,attr"`
	SelectedIons []xmlSelectedIon `xml:"selectedIonList>selectedIon"`
}

type xmlBinaryArray struct {
	CVParams []xmlCVParam `xml:"cvParam"`
	Binary   string       `xml:"binary"`
}

type xmlSpectrum struct {
	ID                 string           `xml:"id,attr"`
	DefaultArrayLength int              `xml:"defaultArrayLength,attr"`
	CVParams           []xmlCVParam     `xml:"cvParam"`
	Scans              []xmlScan        `xml:"scanList>scan"`
	Precursors         []xmlPrecursor   `xml:"precursorList>precursor"`
	Arrays             []xmlBinaryArray `xml:"binaryDataArrayList>binaryDataArray"`
}

func findParam(params []xmlCVParam, accession string) (xmlCVParam, bool) {
	for _, p := range params {
		if p.Accession == accession {
			return p, true
		}
	}
	return xmlCVParam{}, false
}

func paramFloat(params []xmlCVParam, accession string) (float64, bool) {
	p, ok := findParam(params, accession)
	if !ok {
		return 0, false
	}
	v, err := strconv.ParseFloat(p.Value, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func decodeBinaryArray(ba xmlBinaryArray) ([]float64, error) {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(ba.Binary))
	if err != nil {
		return nil, fmt.Errorf("mzml: bad base64 binary data: %v", err)
	}
	if _, zipped := findParam(ba.CVParams, accZlib); zipped {
		zr, err := zlib.NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("mzml: bad zlib binary data: %v", err)
		}
		if raw, err = ioutil.ReadAll(zr); err != nil {
			return nil, fmt.Errorf("mzml: bad zlib binary data: %v", err)
		}
		if err = zr.Close(); err != nil {
			return nil, err
		}
	}
	if _, is32 := findParam(ba.CVParams, accFloat32); is32 {
		if len(raw)%4 != 0 {
			return nil, fmt.Errorf("mzml: 32-bit array length %d not divisible by 4", len(raw))
		}
		out := make([]float64, len(raw)/4)
		for i := range out {
			out[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:])))
		}
		return out, nil
	}
	if len(raw)%8 != 0 {
		return nil, fmt.Errorf("mzml: 64-bit array length %d not divisible by 8", len(raw))
	}
	out := make([]float64, len(raw)/8)
	for i := range out {
		out[i] = math.Float64frombits(binary.LittleEndian.Uint64(raw[i*8:]))
	}
	return out, nil
}

func convertSpectrum(xs *xmlSpectrum) (*Spectrum, error) {
	s := &Spectrum{
		NativeID:  xs.ID,
		PeakCount: xs.DefaultArrayLength,
	}
	_, isMS1 := findParam(xs.CVParams, accMS1Spectrum)
	_, isMSn := findParam(xs.CVParams, accMSnSpectrum)
	if isMS1 || isMSn {
		if level, ok := paramFloat(xs.CVParams, accMSLevel); ok {
			s.MSLevel = int(level)
		}
	}
	if tic, ok := paramFloat(xs.CVParams, accTotalIonCurrent); ok {
		s.TIC = tic
	}
	if len(xs.Scans) > 0 {
		scan := xs.Scans[0]
		if p, ok := findParam(scan.CVParams, accScanStartTime); ok {
			if v, err := strconv.ParseFloat(p.Value, 64); err == nil {
				if p.UnitAccession == accUnitMinute {
					v *= 60
				}
				s.RT = v
				s.HasRT = true
			}
		}
		if v, ok := paramFloat(scan.CVParams, accIonInjectionTime); ok {
			s.InjectionTime = v
			s.HasInjectionTime = true
		}
	}
	if len(xs.Precursors) > 0 {
		prec := xs.Precursors[0]
		s.PrecursorNativeID = prec.SpectrumRef
		if len(prec.SelectedIons) > 0 {
			si := prec.SelectedIons[0]
			if v, ok := paramFloat(si.CVParams, accSelectedIonMZ); ok {
				s.PrecursorMZ = v
			} else if v, ok := paramFloat(si.CVParams, accLegacyMZ); ok {
				s.PrecursorMZ = v
			}
			if v, ok := paramFloat(si.CVParams, accPeakIntensity); ok {
				s.PrecursorIntensity = v
			}
		}
	}
	for _, ba := range xs.Arrays {
		data, err := decodeBinaryArray(ba)
		if err != nil {
			return nil, err
		}
		if _, isMZ := findParam(ba.CVParams, accMZArray); isMZ {
			s.MZ = data
		} else if _, isIntens := findParam(ba.CVParams, accIntensityArray); isIntens {
			s.Intensity = data
		}
	}
	if s.MZ != nil && s.Intensity != nil && len(s.MZ) != len(s.Intensity) {
		return nil, fmt.Errorf("mzml: spectrum %s has %d m/z values but %d intensities",
			s.NativeID, len(s.MZ), len(s.Intensity))
	}
	return s, nil
}

// Open reads an mzML (or .gz-compressed mzML) file into a List. Peak arrays
// are decoded up front so that both metric passes read from memory; a run's
// arrays are needed again on the second pass anyway.
//
// Open is not safe for concurrent use; see the reader-open serialization in
// the qc package. The returned List is safe for concurrent reads.
func Open(path string) (List, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close() // nolint: errcheck
	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("mzml: open %s: %v", path, err)
		}
		defer gz.Close() // nolint: errcheck
		r = gz
	}
	return Decode(r)
}

// Decode parses mzML from r. Exposed separately so callers holding
// already-decompressed data can avoid the filesystem.
func Decode(r io.Reader) (List, error) {
	dec := xml.NewDecoder(r)
	list := &SimpleList{}
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("mzml: %v", err)
		}
		se, ok := tok.(xml.StartElement)
		if !ok || se.Name.Local != "spectrum" {
			continue
		}
		var xs xmlSpectrum
		if err := dec.DecodeElement(&xs, &se); err != nil {
			return nil, fmt.Errorf("mzml: spectrum %d: %v", len(list.Spectra), err)
		}
		s, err := convertSpectrum(&xs)
		if err != nil {
			return nil, err
		}
		list.Spectra = append(list.Spectra, s)
	}
	if len(list.Spectra) == 0 {
		return nil, fmt.Errorf("mzml: no spectra")
	}
	return list, nil
}
