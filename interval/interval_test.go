package interval

import (
	"testing"

	"github.com/grailbio/testutil/expect"
)

func TestIntervalContains(t *testing.T) {
	iv := New(499.5, 501)
	expect.True(t, iv.Contains(499.5))
	expect.True(t, iv.Contains(501))
	expect.True(t, iv.Contains(500.3))
	expect.False(t, iv.Contains(499.4999))
	expect.False(t, iv.Contains(501.0001))
	expect.True(t, New(5, 4).Empty())
	expect.False(t, New(5, 5).Empty())
}

func TestUnionMerge(t *testing.T) {
	var u Union
	u.Add(New(10, 20))
	u.Add(New(40, 50))
	u.Add(New(15, 25)) // overlaps the first
	expect.EQ(t, len(u.Intervals()), 2)
	expect.EQ(t, u.Intervals()[0], New(10, 25))
	expect.EQ(t, u.Intervals()[1], New(40, 50))

	u.Add(New(25, 40)) // bridges both
	expect.EQ(t, len(u.Intervals()), 1)
	expect.EQ(t, u.Intervals()[0], New(10, 50))
}

func TestUnionContains(t *testing.T) {
	var u Union
	u.Add(New(499.5, 501))
	u.Add(New(749.8, 751.3))
	expect.True(t, u.Contains(500))
	expect.True(t, u.Contains(751.3))
	expect.False(t, u.Contains(600))
	expect.False(t, u.Contains(0))

	bounds, ok := u.Bounds()
	expect.True(t, ok)
	expect.EQ(t, bounds, New(499.5, 751.3))

	var empty Union
	expect.False(t, empty.Contains(1))
	if _, ok := empty.Bounds(); ok {
		t.Error("empty union has bounds")
	}
}

func TestUnionAddOrderIndependent(t *testing.T) {
	ivs := []Interval{New(1, 2), New(5, 6), New(1.5, 5.5), New(10, 11)}
	var fwd, rev Union
	for _, iv := range ivs {
		fwd.Add(iv)
	}
	for i := len(ivs) - 1; i >= 0; i-- {
		rev.Add(ivs[i])
	}
	expect.EQ(t, fwd.Intervals(), rev.Intervals())
}

func TestSearchStarts(t *testing.T) {
	starts := []float64{5, 17, 20, 25}
	expect.EQ(t, SearchStarts(starts, 4), 0)
	expect.EQ(t, SearchStarts(starts, 5), 1)
	expect.EQ(t, SearchStarts(starts, 22), 3)
	expect.EQ(t, SearchStarts(starts, 30), 4)

	// Exponential search agrees with binary search from any prior index.
	for _, x := range []float64{0, 5, 6, 17, 19, 25, 100} {
		want := SearchStarts(starts, x)
		for idx := 0; idx <= want; idx++ {
			expect.EQ(t, ExpsearchStarts(starts, x, idx), want)
		}
	}
}
