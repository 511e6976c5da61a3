/*Package interval implements closed-interval and interval-union operations
  over floating-point coordinates (retention times in seconds, m/z values).
  (Note the 'union'.  Overlapping intervals are merged, not tracked
  separately; the extraction windows this package serves never need the
  individual constituents back.)*/
package interval

import (
	"sort"
)

// Interval is a closed interval [Min, Max].
type Interval struct {
	Min, Max float64
}

// New returns the closed interval [min, max].
func New(min, max float64) Interval { return Interval{Min: min, Max: max} }

// Contains returns whether x lies in the closed interval.
func (iv Interval) Contains(x float64) bool { return iv.Min <= x && x <= iv.Max }

// Empty returns whether the interval contains no points.
func (iv Interval) Empty() bool { return iv.Min > iv.Max }

// Union is a set of disjoint closed intervals, sorted by ascending Min.
// Overlapping or touching intervals are merged on Add.
//
// The zero value is an empty union ready for use.
type Union struct {
	ivs []Interval
}

// Add inserts iv into the union, merging it with any intervals it overlaps.
func (u *Union) Add(iv Interval) {
	if iv.Empty() {
		return
	}
	i := sort.Search(len(u.ivs), func(i int) bool { return u.ivs[i].Max >= iv.Min })
	j := sort.Search(len(u.ivs), func(i int) bool { return u.ivs[i].Min > iv.Max })
	if i == j {
		u.ivs = append(u.ivs, Interval{})
		copy(u.ivs[i+1:], u.ivs[i:])
		u.ivs[i] = iv
		return
	}
	// [i, j) all overlap iv; collapse them into one.
	if u.ivs[i].Min < iv.Min {
		iv.Min = u.ivs[i].Min
	}
	if u.ivs[j-1].Max > iv.Max {
		iv.Max = u.ivs[j-1].Max
	}
	u.ivs[i] = iv
	u.ivs = append(u.ivs[:i+1], u.ivs[j:]...)
}

// Contains returns whether x lies in any interval of the union.
func (u *Union) Contains(x float64) bool {
	i := sort.Search(len(u.ivs), func(i int) bool { return u.ivs[i].Max >= x })
	return i < len(u.ivs) && u.ivs[i].Min <= x
}

// Bounds returns the overall [min, max] envelope of the union.
func (u *Union) Bounds() (Interval, bool) {
	if len(u.ivs) == 0 {
		return Interval{}, false
	}
	return Interval{Min: u.ivs[0].Min, Max: u.ivs[len(u.ivs)-1].Max}, true
}

// Intervals returns the disjoint intervals in ascending order. The returned
// slice is owned by the union and must not be mutated.
func (u *Union) Intervals() []Interval { return u.ivs }

// SearchStarts returns the index of the first element of starts (sorted
// ascending) that is strictly greater than x, i.e. the count of intervals
// whose start does not exceed x.
func SearchStarts(starts []float64, x float64) int {
	return sort.Search(len(starts), func(i int) bool { return starts[i] > x })
}

// ExpsearchStarts performs exponential search (checking starts[idx], then
// idx+1, idx+3, idx+7, ..., finishing with binary search), returning the
// same result as SearchStarts. It is the better choice when x grows slowly
// across successive calls, as a scan's retention time does.
func ExpsearchStarts(starts []float64, x float64, idx int) int {
	nextIncr := 1
	startIdx := idx
	endIdx := len(starts)
	for idx < endIdx {
		if starts[idx] > x {
			endIdx = idx
			break
		}
		startIdx = idx + 1
		idx += nextIncr
		nextIncr *= 2
	}
	for startIdx < endIdx {
		midIdx := int(uint(startIdx+endIdx) >> 1)
		if starts[midIdx] > x {
			endIdx = midIdx
		} else {
			startIdx = midIdx + 1
		}
	}
	return startIdx
}
