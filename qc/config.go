// Package qc computes quality-assurance metric panels for mass-spectrometry
// proteomics runs. Each run pairs a raw data file with the matching source
// of a peptide-identification database; the pipeline streams the spectrum
// list twice, extracts ion chromatograms around identified and unidentified
// precursors, reduces each to a chromatographic peak, and derives the
// fixed metric panel written as <raw-stem>.qual.txt.
package qc

import (
	"fmt"
	"io"
	"io/ioutil"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config is the runtime configuration. Every field can be set from a YAML
// file (-cfg) or overridden on the command line as -<FieldName> <value>.
type Config struct {
	// MetricsType selects the metric family: nistms (identification-based
	// NIST metrics), scanranker (tag-quality summaries) or pepitome
	// (recognized, not implemented).
	MetricsType string `yaml:"MetricsType"`
	// RawDataFormat is the file extension used to locate the raw file next
	// to its identification database.
	RawDataFormat string `yaml:"RawDataFormat"`
	// RawDataPath, when set, is the directory raw files are looked up in
	// instead of the database's directory.
	RawDataPath string `yaml:"RawDataPath"`
	// ChromatogramOutput additionally writes the extracted chromatograms
	// as <raw-stem>-quameter_chromatograms.mzML.
	ChromatogramOutput bool `yaml:"ChromatogramOutput"`
	// TabbedOutput writes the panel as one tab-separated header/value row
	// pair; when false a labelled multi-line form is written instead.
	TabbedOutput bool `yaml:"TabbedOutput"`
	// MaxFDR is the Q-value cutoff for counting a peptide-spectrum match
	// as an identification.
	MaxFDR float64 `yaml:"MaxFDR"`
}

// DefaultConfig is the configuration used when no file or override is
// given.
var DefaultConfig = Config{
	MetricsType:   "nistms",
	RawDataFormat: "mzML",
	TabbedOutput:  true,
	MaxFDR:        0.05,
}

// LoadFile merges the YAML file at path into the config.
func (c *Config) LoadFile(path string) error {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("config %s: %v", path, err)
	}
	return c.Validate()
}

// Dump writes the effective configuration as YAML.
func (c *Config) Dump(w io.Writer) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

// ErrUnknownKey is returned by Set for configuration keys this build does
// not recognize. Callers warn and continue.
var ErrUnknownKey = fmt.Errorf("unknown configuration key")

// Set applies one command-line override.
func (c *Config) Set(key, value string) error {
	switch key {
	case "MetricsType":
		c.MetricsType = value
		return c.Validate()
	case "RawDataFormat":
		c.RawDataFormat = value
	case "RawDataPath":
		c.RawDataPath = value
	case "ChromatogramOutput", "TabbedOutput":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("config: %s must be a bool, got %q", key, value)
		}
		if key == "ChromatogramOutput" {
			c.ChromatogramOutput = b
		} else {
			c.TabbedOutput = b
		}
	case "MaxFDR":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("config: MaxFDR must be a float, got %q", value)
		}
		c.MaxFDR = f
	default:
		return ErrUnknownKey
	}
	return nil
}

// Validate rejects unrecognized metric types.
func (c *Config) Validate() error {
	switch c.MetricsType {
	case "nistms", "scanranker", "pepitome":
		return nil
	}
	return fmt.Errorf("config: unknown MetricsType %q", c.MetricsType)
}
