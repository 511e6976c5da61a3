// Package idpdb reads IDPicker peptide-identification databases (idpDB,
// a SQLite schema). It serves the per-source identification statistics the
// QC metric pipeline joins against the raw spectrum stream.
package idpdb

import (
	"database/sql"
	"math"
	"sort"

	// idpDB files are SQLite databases.
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"github.com/grailbio/msqc/stats"
)

// DB is an open idpDB file. It is safe for concurrent readers.
type DB struct {
	db     *sql.DB
	maxFDR float64
}

// Source is one row of the SpectrumSource table. Name is the raw-file stem
// the source was derived from.
type Source struct {
	ID   int64
	Name string
}

// PeptideIDs lists the identified MS2 spectra of one peptide in a source,
// in native file order, together with the distinct precursor m/z values
// observed for it.
type PeptideIDs struct {
	Peptide      int64
	NativeIDs    []string
	PrecursorMZs []float64
}

// MassErrorStats summarizes the precursor mass errors of a source.
type MassErrorStats struct {
	MedianError    float64
	MeanAbsError   float64
	MedianPPMError float64
	PPMErrorIQR    float64
}

// SourceStats aggregates everything the metric pipeline needs from the
// identification database for one source. All medians are NaN when the
// underlying population is empty.
type SourceStats struct {
	// NativeIDs is the set of identified MS2 native IDs.
	NativeIDs map[string]struct{}
	// Peptides lists every identified peptide with its spectra; peptides
	// with a single spectrum are included (consumers of the repeat-ID
	// metrics skip them).
	Peptides []PeptideIDs
	// Peptide sampling-rate histogram.
	IdentifiedOnce, IdentifiedTwice, IdentifiedThrice int
	// Distinct (peptide, charge) counts per precursor charge state.
	ChargeOne, ChargeTwo, ChargeThree, ChargeFour int
	MassError                                     MassErrorStats
	MedianIDScore                                 float64
	MedianPrecursorMZ                             float64
	// Tryptic digestion statistics.
	TrypticMS2Spectra    int
	TrypticPeptideIons   int
	FullyTrypticPeptides int
	SemiTrypticPeptides  int
}

// DefaultMaxFDR is the Q-value cutoff below which a peptide-spectrum match
// counts as an identification.
const DefaultMaxFDR = 0.05

// Open opens an idpDB file read-only.
func Open(path string, maxFDR float64) (*DB, error) {
	db, err := sql.Open("sqlite3", "file:"+path+"?mode=ro")
	if err != nil {
		return nil, errors.Wrapf(err, "idpdb: open %s", path)
	}
	return &DB{db: db, maxFDR: maxFDR}, nil
}

// Close releases the database handle.
func (d *DB) Close() error { return d.db.Close() }

// Sources returns every spectrum source recorded in the database.
func (d *DB) Sources() ([]Source, error) {
	rows, err := d.db.Query(`SELECT Id, Name FROM SpectrumSource ORDER BY Id`)
	if err != nil {
		return nil, errors.Wrap(err, "idpdb: query sources")
	}
	defer rows.Close() // nolint: errcheck
	var srcs []Source
	for rows.Next() {
		var s Source
		if err := rows.Scan(&s.ID, &s.Name); err != nil {
			return nil, errors.Wrap(err, "idpdb: scan source")
		}
		srcs = append(srcs, s)
	}
	return srcs, rows.Err()
}

// psmFilter is the identification cut applied to every query: best-rank
// matches below the FDR threshold.
const psmFilter = `psm.Rank = 1 AND psm.QValue <= ?`

// NativeIDs returns the set of identified MS2 native IDs for the source.
func (d *DB) NativeIDs(sourceID int64) (map[string]struct{}, error) {
	rows, err := d.db.Query(`
		SELECT DISTINCT s.NativeID
		FROM Spectrum s
		JOIN PeptideSpectrumMatch psm ON psm.Spectrum = s.Id
		WHERE s.Source = ? AND `+psmFilter, sourceID, d.maxFDR)
	if err != nil {
		return nil, errors.Wrap(err, "idpdb: query native IDs")
	}
	defer rows.Close() // nolint: errcheck
	ids := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Wrap(err, "idpdb: scan native ID")
		}
		ids[id] = struct{}{}
	}
	return ids, rows.Err()
}

// Peptides returns the identified peptides of the source, each with its
// MS2 native IDs in file order and its distinct precursor m/z values.
func (d *DB) Peptides(sourceID int64) ([]PeptideIDs, error) {
	rows, err := d.db.Query(`
		SELECT psm.Peptide, s.NativeID, s.PrecursorMZ
		FROM Spectrum s
		JOIN PeptideSpectrumMatch psm ON psm.Spectrum = s.Id
		WHERE s.Source = ? AND `+psmFilter+`
		GROUP BY psm.Peptide, s.Id
		ORDER BY psm.Peptide, s.Index_`, sourceID, d.maxFDR)
	if err != nil {
		return nil, errors.Wrap(err, "idpdb: query peptides")
	}
	defer rows.Close() // nolint: errcheck
	var peps []PeptideIDs
	for rows.Next() {
		var pep int64
		var nativeID string
		var mz float64
		if err := rows.Scan(&pep, &nativeID, &mz); err != nil {
			return nil, errors.Wrap(err, "idpdb: scan peptide spectrum")
		}
		if len(peps) == 0 || peps[len(peps)-1].Peptide != pep {
			peps = append(peps, PeptideIDs{Peptide: pep})
		}
		cur := &peps[len(peps)-1]
		cur.NativeIDs = append(cur.NativeIDs, nativeID)
		seen := false
		for _, v := range cur.PrecursorMZs {
			if v == mz {
				seen = true
				break
			}
		}
		if !seen {
			cur.PrecursorMZs = append(cur.PrecursorMZs, mz)
		}
	}
	return peps, rows.Err()
}

// Stats runs every per-source aggregate and returns them as one value.
func (d *DB) Stats(sourceID int64) (*SourceStats, error) {
	st := &SourceStats{
		MedianIDScore:     math.NaN(),
		MedianPrecursorMZ: math.NaN(),
	}
	var err error
	if st.NativeIDs, err = d.NativeIDs(sourceID); err != nil {
		return nil, err
	}
	if st.Peptides, err = d.Peptides(sourceID); err != nil {
		return nil, err
	}
	for _, p := range st.Peptides {
		switch len(p.NativeIDs) {
		case 1:
			st.IdentifiedOnce++
		case 2:
			st.IdentifiedTwice++
		case 3:
			st.IdentifiedThrice++
		}
	}
	if err = d.charges(sourceID, st); err != nil {
		return nil, err
	}
	if err = d.massErrors(sourceID, st); err != nil {
		return nil, err
	}
	if err = d.scoreAndMZ(sourceID, st); err != nil {
		return nil, err
	}
	if err = d.tryptic(sourceID, st); err != nil {
		return nil, err
	}
	return st, nil
}

func (d *DB) charges(sourceID int64, st *SourceStats) error {
	rows, err := d.db.Query(`
		SELECT Charge, COUNT(*) FROM (
			SELECT DISTINCT psm.Peptide, psm.Charge AS Charge
			FROM Spectrum s
			JOIN PeptideSpectrumMatch psm ON psm.Spectrum = s.Id
			WHERE s.Source = ? AND `+psmFilter+`
		) GROUP BY Charge`, sourceID, d.maxFDR)
	if err != nil {
		return errors.Wrap(err, "idpdb: query charges")
	}
	defer rows.Close() // nolint: errcheck
	for rows.Next() {
		var charge, n int
		if err := rows.Scan(&charge, &n); err != nil {
			return errors.Wrap(err, "idpdb: scan charge")
		}
		switch charge {
		case 1:
			st.ChargeOne = n
		case 2:
			st.ChargeTwo = n
		case 3:
			st.ChargeThree = n
		case 4:
			st.ChargeFour = n
		}
	}
	return rows.Err()
}

func (d *DB) massErrors(sourceID int64, st *SourceStats) error {
	rows, err := d.db.Query(`
		SELECT psm.MonoisotopicMassError, psm.ObservedNeutralMass
		FROM Spectrum s
		JOIN PeptideSpectrumMatch psm ON psm.Spectrum = s.Id
		WHERE s.Source = ? AND `+psmFilter, sourceID, d.maxFDR)
	if err != nil {
		return errors.Wrap(err, "idpdb: query mass errors")
	}
	defer rows.Close() // nolint: errcheck
	var errsDa, errsPPM []float64
	var absSum float64
	for rows.Next() {
		var massErr, mass float64
		if err := rows.Scan(&massErr, &mass); err != nil {
			return errors.Wrap(err, "idpdb: scan mass error")
		}
		errsDa = append(errsDa, massErr)
		absSum += math.Abs(massErr)
		if mass != 0 {
			errsPPM = append(errsPPM, massErr/mass*1e6)
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}
	st.MassError = MassErrorStats{
		MedianError:    math.NaN(),
		MeanAbsError:   math.NaN(),
		MedianPPMError: math.NaN(),
		PPMErrorIQR:    math.NaN(),
	}
	if len(errsDa) > 0 {
		sort.Float64s(errsDa)
		if v, ok := stats.Q2(errsDa); ok {
			st.MassError.MedianError = v
		}
		st.MassError.MeanAbsError = absSum / float64(len(errsDa))
	}
	if len(errsPPM) > 0 {
		sort.Float64s(errsPPM)
		if v, ok := stats.Q2(errsPPM); ok {
			st.MassError.MedianPPMError = v
		}
		q1, ok1 := stats.Q1(errsPPM)
		q3, ok3 := stats.Q3(errsPPM)
		if ok1 && ok3 {
			st.MassError.PPMErrorIQR = q3 - q1
		}
	}
	return nil
}

func (d *DB) scoreAndMZ(sourceID int64, st *SourceStats) error {
	var scores []float64
	rows, err := d.db.Query(`
		SELECT psm.QValue
		FROM Spectrum s
		JOIN PeptideSpectrumMatch psm ON psm.Spectrum = s.Id
		WHERE s.Source = ? AND `+psmFilter, sourceID, d.maxFDR)
	if err != nil {
		return errors.Wrap(err, "idpdb: query scores")
	}
	defer rows.Close() // nolint: errcheck
	for rows.Next() {
		var v float64
		if err := rows.Scan(&v); err != nil {
			return errors.Wrap(err, "idpdb: scan score")
		}
		scores = append(scores, v)
	}
	if err := rows.Err(); err != nil {
		return err
	}
	if len(scores) > 0 {
		sort.Float64s(scores)
		if v, ok := stats.Q2(scores); ok {
			st.MedianIDScore = v
		}
	}

	var mzs []float64
	mzRows, err := d.db.Query(`
		SELECT AVG(s.PrecursorMZ)
		FROM Spectrum s
		JOIN PeptideSpectrumMatch psm ON psm.Spectrum = s.Id
		WHERE s.Source = ? AND `+psmFilter+`
		GROUP BY psm.Peptide, psm.Charge`, sourceID, d.maxFDR)
	if err != nil {
		return errors.Wrap(err, "idpdb: query precursor m/z")
	}
	defer mzRows.Close() // nolint: errcheck
	for mzRows.Next() {
		var v float64
		if err := mzRows.Scan(&v); err != nil {
			return errors.Wrap(err, "idpdb: scan precursor m/z")
		}
		mzs = append(mzs, v)
	}
	if err := mzRows.Err(); err != nil {
		return err
	}
	if len(mzs) > 0 {
		sort.Float64s(mzs)
		if v, ok := stats.Q2(mzs); ok {
			st.MedianPrecursorMZ = v
		}
	}
	return nil
}

// tryptic classifies each identified peptide by its best terminal
// specificity over all protein instances: 2 is fully tryptic, 1 is
// semi-tryptic.
func (d *DB) tryptic(sourceID int64, st *SourceStats) error {
	rows, err := d.db.Query(`
		SELECT spec.Specificity, COUNT(*), SUM(spec.Spectra), SUM(spec.Ions) FROM (
			SELECT ids.Peptide,
			       MAX(pi.NTerminusIsSpecific + pi.CTerminusIsSpecific) AS Specificity,
			       ids.Spectra AS Spectra,
			       ids.Ions AS Ions
			FROM PeptideInstance pi
			JOIN (
				SELECT psm.Peptide AS Peptide,
				       COUNT(DISTINCT psm.Spectrum) AS Spectra,
				       COUNT(DISTINCT psm.Charge) AS Ions
				FROM Spectrum s
				JOIN PeptideSpectrumMatch psm ON psm.Spectrum = s.Id
				WHERE s.Source = ? AND `+psmFilter+`
				GROUP BY psm.Peptide
			) ids ON ids.Peptide = pi.Peptide
			GROUP BY ids.Peptide
		) spec GROUP BY spec.Specificity`, sourceID, d.maxFDR)
	if err != nil {
		return errors.Wrap(err, "idpdb: query tryptic counts")
	}
	defer rows.Close() // nolint: errcheck
	for rows.Next() {
		var specificity, peptides, spectra, ions int
		if err := rows.Scan(&specificity, &peptides, &spectra, &ions); err != nil {
			return errors.Wrap(err, "idpdb: scan tryptic counts")
		}
		switch specificity {
		case 2:
			st.FullyTrypticPeptides = peptides
			st.TrypticMS2Spectra = spectra
			st.TrypticPeptideIons = ions
		case 1:
			st.SemiTrypticPeptides = peptides
		}
	}
	return rows.Err()
}
