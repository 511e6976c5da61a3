package qc

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"encoding/xml"
	"fmt"
	"math"

	"github.com/grailbio/base/file"
)

// mzML chromatogram output for inspection in standard viewers. The three
// window populations are written in order: per-peptide windows first, then
// identified-MS2 windows, then unidentified-MS2 windows.

type chromCVParam struct {
	XMLName       xml.Name `xml:"cvParam"`
	CVRef         string   `xml:"cvRef,attr"`
	Accession     string   `xml:"accession,attr"`
	Name          string   `xml:"name,attr"`
	Value         string   `xml:"value,attr,omitempty"`
	UnitAccession string   `xml:"unitAccession,attr,omitempty"`
	UnitName      string   `xml:"unitName,attr,omitempty"`
}

type chromBinaryArray struct {
	XMLName       xml.Name `xml:"binaryDataArray"`
	EncodedLength int      `xml:"encodedLength,attr"`
	CVParams      []chromCVParam
	Binary        string `xml:"binary"`
}

type chromatogram struct {
	XMLName            xml.Name `xml:"chromatogram"`
	Index              int      `xml:"index,attr"`
	ID                 string   `xml:"id,attr"`
	DefaultArrayLength int      `xml:"defaultArrayLength,attr"`
	ArrayList          struct {
		Count  int `xml:"count,attr"`
		Arrays []chromBinaryArray
	} `xml:"binaryDataArrayList"`
}

type chromatogramList struct {
	XMLName       xml.Name `xml:"chromatogramList"`
	Count         int      `xml:"count,attr"`
	Chromatograms []chromatogram
}

type chromRun struct {
	XMLName   xml.Name `xml:"run"`
	ID        string   `xml:"id,attr"`
	ChromList chromatogramList
}

type chromMzML struct {
	XMLName xml.Name `xml:"mzML"`
	XMLNS   string   `xml:"xmlns,attr"`
	Version string   `xml:"version,attr"`
	Run     chromRun
}

func encodeFloat64Array(vals []float64) (string, int) {
	raw := make([]byte, 8*len(vals))
	for i, v := range vals {
		binary.LittleEndian.PutUint64(raw[i*8:], math.Float64bits(v))
	}
	enc := base64.StdEncoding.EncodeToString(raw)
	return enc, len(enc)
}

func newChromatogram(index int, id string, w *Window) chromatogram {
	c := chromatogram{Index: index, ID: id, DefaultArrayLength: len(w.RTs)}
	timeData, timeLen := encodeFloat64Array(w.RTs)
	intensityData, intensityLen := encodeFloat64Array(w.Intensities)
	c.ArrayList.Count = 2
	c.ArrayList.Arrays = []chromBinaryArray{
		{
			EncodedLength: timeLen,
			CVParams: []chromCVParam{
				{CVRef: "MS", Accession: "MS:1000523", Name: "64-bit float"},
				{CVRef: "MS", Accession: "MS:1000576", Name: "no compression"},
				{CVRef: "MS", Accession: "MS:1000595", Name: "time array",
					UnitAccession: "UO:0000010", UnitName: "second"},
			},
			Binary: timeData,
		},
		{
			EncodedLength: intensityLen,
			CVParams: []chromCVParam{
				{CVRef: "MS", Accession: "MS:1000523", Name: "64-bit float"},
				{CVRef: "MS", Accession: "MS:1000576", Name: "no compression"},
				{CVRef: "MS", Accession: "MS:1000515", Name: "intensity array",
					UnitAccession: "MS:1000131", UnitName: "number of detector counts"},
			},
			Binary: intensityData,
		},
	}
	return c
}

// WriteChromatograms writes every extracted chromatogram of the run to an
// mzML file at path.
func WriteChromatograms(ctx context.Context, path, runID string, set *XICSet) (err error) {
	doc := chromMzML{
		XMLNS:   "http://psi.hupo.org/ms/mzml",
		Version: "1.1.0",
	}
	doc.Run.ID = runID
	index := 0
	add := func(id string, windows []Window) {
		for i := range windows {
			doc.Run.ChromList.Chromatograms = append(doc.Run.ChromList.Chromatograms,
				newChromatogram(index, id, &windows[i]))
			index++
		}
	}
	add("unique identified peptide", set.Peptide)
	add("identified MS2 scan", set.Identified)
	add("unidentified MS2 scan", set.Unidentified)
	doc.Run.ChromList.Count = index

	out, err := file.Create(ctx, path)
	if err != nil {
		return err
	}
	defer file.CloseAndReport(ctx, out, &err)
	w := out.Writer(ctx)
	if _, err := fmt.Fprint(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(&doc); err != nil {
		return err
	}
	_, err = fmt.Fprintln(w)
	return err
}
