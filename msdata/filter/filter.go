// Package filter implements spectrum-list filtering. A filter is parsed
// from a textual description ("msLevel 2", "scanTime [600,1800]") into a
// validated configuration, then evaluated against spectra as a three-valued
// predicate: a spectrum can be accepted or rejected from its metadata
// alone, or the filter can demand the peak arrays and be asked again.
package filter

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/grailbio/msqc/interval"
	"github.com/grailbio/msqc/msdata"
)

// Tribool is the result of evaluating a filter against one spectrum.
type Tribool int

const (
	// Reject drops the spectrum.
	Reject Tribool = iota
	// Accept keeps the spectrum.
	Accept
	// NeedArrays means the filter cannot decide from metadata alone; the
	// caller must reload the spectrum with its peak arrays and ask again.
	NeedArrays
)

// Kind enumerates the supported filter types.
type Kind int

const (
	// KindIndex keeps spectra whose list index is in an int set.
	KindIndex Kind = iota
	// KindMSLevel keeps spectra whose MS level is in an int set.
	KindMSLevel
	// KindScanTime keeps spectra whose scan start time lies in a closed
	// interval of seconds.
	KindScanTime
	// KindMZWindow keeps spectra having at least one peak inside a closed
	// m/z interval.
	KindMZWindow
	// KindPeakCount keeps spectra whose peak count is in an int set.
	KindPeakCount
)

// IntSet is a union of inclusive int ranges, e.g. "1-3 5 9-".
type IntSet struct {
	ranges [][2]int
}

const intSetOpen = int(^uint(0) >> 1)

// ParseIntSet parses a space-separated list of ints and int ranges. An
// omitted range end ("9-") is unbounded; an omitted start ("-3") starts
// at zero.
func ParseIntSet(s string) (IntSet, error) {
	var set IntSet
	for _, tok := range strings.Fields(s) {
		lo, hi := 0, intSetOpen
		var err error
		switch dash := strings.IndexByte(tok, '-'); {
		case dash < 0:
			if lo, err = strconv.Atoi(tok); err != nil {
				return IntSet{}, fmt.Errorf("filter: bad int %q", tok)
			}
			hi = lo
		case dash == 0:
			if hi, err = strconv.Atoi(tok[1:]); err != nil {
				return IntSet{}, fmt.Errorf("filter: bad range %q", tok)
			}
		case dash == len(tok)-1:
			if lo, err = strconv.Atoi(tok[:dash]); err != nil {
				return IntSet{}, fmt.Errorf("filter: bad range %q", tok)
			}
		default:
			if lo, err = strconv.Atoi(tok[:dash]); err != nil {
				return IntSet{}, fmt.Errorf("filter: bad range %q", tok)
			}
			if hi, err = strconv.Atoi(tok[dash+1:]); err != nil {
				return IntSet{}, fmt.Errorf("filter: bad range %q", tok)
			}
		}
		if lo > hi {
			return IntSet{}, fmt.Errorf("filter: empty range %q", tok)
		}
		set.ranges = append(set.ranges, [2]int{lo, hi})
	}
	if len(set.ranges) == 0 {
		return IntSet{}, fmt.Errorf("filter: empty int set")
	}
	return set, nil
}

// Contains returns whether x is in the set.
func (s IntSet) Contains(x int) bool {
	for _, r := range s.ranges {
		if x >= r[0] && x <= r[1] {
			return true
		}
	}
	return false
}

// Config is one validated filter configuration.
type Config struct {
	Kind   Kind
	Ints   IntSet            // KindIndex, KindMSLevel, KindPeakCount
	Window interval.Interval // KindScanTime (seconds), KindMZWindow
}

// Parse validates a filter description of the form "<name> <args>".
func Parse(desc string) (Config, error) {
	desc = strings.TrimSpace(desc)
	sp := strings.IndexByte(desc, ' ')
	if sp < 0 {
		return Config{}, fmt.Errorf("filter: %q has no arguments", desc)
	}
	name, args := desc[:sp], strings.TrimSpace(desc[sp+1:])
	switch name {
	case "index", "msLevel", "defaultArrayLength":
		set, err := ParseIntSet(args)
		if err != nil {
			return Config{}, err
		}
		kind := KindIndex
		if name == "msLevel" {
			kind = KindMSLevel
		} else if name == "defaultArrayLength" {
			kind = KindPeakCount
		}
		return Config{Kind: kind, Ints: set}, nil
	case "scanTime", "mzWindow":
		iv, err := parseWindow(args)
		if err != nil {
			return Config{}, err
		}
		kind := KindScanTime
		if name == "mzWindow" {
			kind = KindMZWindow
		}
		return Config{Kind: kind, Window: iv}, nil
	}
	return Config{}, fmt.Errorf("filter: unknown filter %q", name)
}

func parseWindow(args string) (interval.Interval, error) {
	if !strings.HasPrefix(args, "[") || !strings.HasSuffix(args, "]") {
		return interval.Interval{}, fmt.Errorf("filter: window %q must be [low,high]", args)
	}
	parts := strings.Split(args[1:len(args)-1], ",")
	if len(parts) != 2 {
		return interval.Interval{}, fmt.Errorf("filter: window %q must be [low,high]", args)
	}
	lo, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return interval.Interval{}, fmt.Errorf("filter: bad window bound %q", parts[0])
	}
	hi, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return interval.Interval{}, fmt.Errorf("filter: bad window bound %q", parts[1])
	}
	iv := interval.New(lo, hi)
	if iv.Empty() {
		return interval.Interval{}, fmt.Errorf("filter: empty window %q", args)
	}
	return iv, nil
}

// Eval evaluates the filter against the spectrum at list index idx.
func (c Config) Eval(idx int, s *msdata.Spectrum) Tribool {
	switch c.Kind {
	case KindIndex:
		if c.Ints.Contains(idx) {
			return Accept
		}
	case KindMSLevel:
		if c.Ints.Contains(s.MSLevel) {
			return Accept
		}
	case KindPeakCount:
		if c.Ints.Contains(s.PeakCount) {
			return Accept
		}
	case KindScanTime:
		if s.HasRT && c.Window.Contains(s.RT) {
			return Accept
		}
	case KindMZWindow:
		if s.MZ == nil {
			return NeedArrays
		}
		for _, mz := range s.MZ {
			if c.Window.Contains(mz) {
				return Accept
			}
		}
	}
	return Reject
}

// Apply evaluates every config against every spectrum of list and returns
// an in-memory list of the accepted spectra, reloading a spectrum with its
// arrays when any filter answers NeedArrays.
func Apply(list msdata.List, cfgs []Config) (*msdata.SimpleList, error) {
	out := &msdata.SimpleList{}
	for i := 0; i < list.Len(); i++ {
		s, err := list.Spectrum(i, false)
		if err != nil {
			return nil, err
		}
		accepted := true
		for _, c := range cfgs {
			verdict := c.Eval(i, s)
			if verdict == NeedArrays {
				if s, err = list.Spectrum(i, true); err != nil {
					return nil, err
				}
				verdict = c.Eval(i, s)
			}
			if verdict != Accept {
				accepted = false
				break
			}
		}
		if accepted {
			out.Spectra = append(out.Spectra, s)
		}
	}
	return out, nil
}
