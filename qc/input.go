package qc

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/grailbio/base/log"

	"github.com/grailbio/msqc/idpdb"
)

// InputType says which metric family a discovered input belongs to.
type InputType int

const (
	// NISTMS is an idpDB source paired with its raw file.
	NISTMS InputType = iota
	// ScanRanker is a ScanRanker tag-quality report paired with its raw
	// file.
	ScanRanker
	// Pepitome inputs are discovered but not processed.
	Pepitome
)

// RunInput is one unit of work for the metric workers.
type RunInput struct {
	Type InputType
	// RawPath is the raw data file of the run.
	RawPath string
	// DBPath, SourceID and SourceName are set for NISTMS inputs.
	DBPath     string
	SourceID   int64
	SourceName string
	// ScanRankerPath is set for ScanRanker inputs.
	ScanRankerPath string
}

// rawFileFor resolves the raw file belonging to stem: next to ref, or
// under RawDataPath when configured. Returns "" when the file does not
// exist.
func rawFileFor(cfg *Config, ref, stem string) string {
	dir := filepath.Dir(ref)
	if cfg.RawDataPath != "" {
		dir = cfg.RawDataPath
	}
	path := filepath.Join(dir, stem+"."+cfg.RawDataFormat)
	if _, err := os.Stat(path); err != nil {
		return ""
	}
	return path
}

func stemOf(path string) string {
	base := filepath.Base(path)
	if ext := filepath.Ext(base); ext != "" {
		base = base[:len(base)-len(ext)]
	}
	return base
}

// DiscoverSources expands the file masks and pairs each matched
// identification input with its raw file. Inputs without a raw file are
// skipped with a warning.
func DiscoverSources(cfg *Config, masks []string) ([]RunInput, error) {
	var files []string
	for _, mask := range masks {
		matched, err := filepath.Glob(mask)
		if err != nil {
			return nil, fmt.Errorf("bad file mask %q: %v", mask, err)
		}
		files = append(files, matched...)
	}
	var inputs []RunInput
	for _, f := range files {
		switch {
		case cfg.MetricsType == "nistms" && strings.HasSuffix(f, "idpDB"):
			dbInputs, err := discoverIDPSources(cfg, f)
			if err != nil {
				return nil, err
			}
			inputs = append(inputs, dbInputs...)
		case cfg.MetricsType == "scanranker" && strings.HasSuffix(f, ".txt"):
			raw := rawFileFor(cfg, f, stemOf(f))
			if raw == "" {
				log.Printf("skipping %s: no %s raw file found", f, cfg.RawDataFormat)
				continue
			}
			inputs = append(inputs, RunInput{Type: ScanRanker, RawPath: raw, ScanRankerPath: f})
		case cfg.MetricsType == "pepitome" && strings.HasSuffix(f, "pepXML"):
			raw := rawFileFor(cfg, f, stemOf(f))
			if raw == "" {
				log.Printf("skipping %s: no %s raw file found", f, cfg.RawDataFormat)
				continue
			}
			inputs = append(inputs, RunInput{Type: Pepitome, RawPath: raw})
		}
	}
	return inputs, nil
}

// discoverIDPSources enumerates the spectrum sources of one idpDB and
// resolves each source's raw file by its recorded name.
func discoverIDPSources(cfg *Config, dbPath string) ([]RunInput, error) {
	db, err := idpdb.Open(dbPath, cfg.MaxFDR)
	if err != nil {
		return nil, err
	}
	defer db.Close() // nolint: errcheck
	sources, err := db.Sources()
	if err != nil {
		return nil, err
	}
	var inputs []RunInput
	for _, src := range sources {
		raw := rawFileFor(cfg, dbPath, src.Name)
		if raw == "" {
			log.Printf("skipping source %s of %s: no %s raw file found", src.Name, dbPath, cfg.RawDataFormat)
			continue
		}
		inputs = append(inputs, RunInput{
			Type:       NISTMS,
			RawPath:    raw,
			DBPath:     dbPath,
			SourceID:   src.ID,
			SourceName: src.Name,
		})
	}
	return inputs, nil
}
