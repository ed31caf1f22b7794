// Package histogram supplies the two insertable, queryable collaborators
// behind the percentile and apercentile operators: an exact sorted-order
// structure for percentile, and a bounded-bin approximate structure for
// apercentile. Only the in-memory Insert/Merge/Query contract the
// operators drive lives here; disk-backed bucketization is a storage-layer
// concern outside this module.
package histogram

import (
	"flag"
	"sort"

	"github.com/alecthomas/units"
)

// MaxHistogramBin is the highest bin index an Approx histogram built from a
// Config uses: MaxBins allows at most MaxHistogramBin+1 bins.
const MaxHistogramBin = 1023

// bytesPerBin is the estimated memory footprint of one bin, used to derive
// a bin budget from a configured memory budget.
const bytesPerBin = 24

// Config bounds apercentile's histogram memory footprint.
type Config struct {
	MemoryBudgetBytes uint64 `yaml:"memory_budget_bytes"`
}

// RegisterFlags registers the histogram memory-budget flag.
func (c *Config) RegisterFlags(f *flag.FlagSet) {
	f.Uint64Var(&c.MemoryBudgetBytes, "aggregation.apercentile-memory-budget-bytes", uint64(24*units.KiB),
		"Max size - in bytes - of one apercentile histogram. Bounds how many bins it keeps, up to MaxHistogramBin+1.")
}

// DefaultConfig returns a Config carrying the same default memory budget
// RegisterFlags installs, for callers that never parse flags (e.g. the
// apercentile operator's fixed-size construction path).
func DefaultConfig() Config {
	return Config{MemoryBudgetBytes: uint64(24 * units.KiB)}
}

// MaxBins derives a bin count from the configured memory budget, clamped to
// [1, MaxHistogramBin+1].
func (c Config) MaxBins() int {
	n := int(c.MemoryBudgetBytes / bytesPerBin)
	if n < 1 {
		n = 1
	}
	if n > MaxHistogramBin+1 {
		n = MaxHistogramBin + 1
	}
	return n
}

// Exact is an insertable, sorted-order structure backing the (non-super-
// table) percentile operator: insert every non-null value, then query an
// exact percentile.
type Exact struct {
	values []float64
	sorted bool
}

// Insert adds v to the structure.
func (e *Exact) Insert(v float64) {
	e.values = append(e.values, v)
	e.sorted = false
}

// Len reports how many values have been inserted.
func (e *Exact) Len() int { return len(e.values) }

// Percentile returns the value at the given ratio (0..1) using linear
// interpolation between the two nearest ranks. Panics if Len() == 0; callers must check
// Len() first (percentile has no defined result over zero rows).
func (e *Exact) Percentile(ratio float64) float64 {
	if !e.sorted {
		sort.Float64s(e.values)
		e.sorted = true
	}
	n := len(e.values)
	if n == 1 {
		return e.values[0]
	}
	pos := ratio * float64(n-1)
	lo := int(pos)
	if lo >= n-1 {
		return e.values[n-1]
	}
	frac := pos - float64(lo)
	return e.values[lo]*(1-frac) + e.values[lo+1]*frac
}

// Bin is one bucket of an Approx histogram.
type Bin struct {
	Lower, Upper float64
	Count        int64
}

// Approx is a bounded-bin histogram backing the apercentile operator. Bins
// are kept sorted by Lower and merged by adjacent-range union when the bin
// budget is exceeded, approximating a uniform-bucket layout without
// requiring an a-priori value range.
type Approx struct {
	bins    []Bin
	maxBins int
}

// NewApprox creates an Approx histogram with the given bin budget.
func NewApprox(maxBins int) *Approx {
	if maxBins < 1 {
		maxBins = 1
	}
	return &Approx{maxBins: maxBins}
}

// Empty reports whether no value has been inserted yet.
func (a *Approx) Empty() bool { return len(a.bins) == 0 }

// Bins returns the histogram's current bins, ordered by Lower. Callers must
// not mutate the returned slice.
func (a *Approx) Bins() []Bin { return a.bins }

// FromBins reconstructs an Approx histogram from a previously serialized bin
// set, the reconstitution half of the serialize/deserialize pair the
// apercentile operator uses to transport histogram state between nodes.
func FromBins(bins []Bin, maxBins int) *Approx {
	if maxBins < 1 {
		maxBins = 1
	}
	a := &Approx{bins: bins, maxBins: maxBins}
	a.collapse()
	return a
}

// Insert adds v as a fresh zero-width bin [v, v], then collapses the histogram
// back under its bin budget if needed.
func (a *Approx) Insert(v float64) {
	i := sort.Search(len(a.bins), func(i int) bool { return a.bins[i].Lower >= v })
	a.bins = append(a.bins, Bin{})
	copy(a.bins[i+1:], a.bins[i:])
	a.bins[i] = Bin{Lower: v, Upper: v, Count: 1}
	a.collapse()
}

// Merge folds other's bins into a, then collapses under the bin budget.
// On an empty target, this is equivalent to a copy.
func (a *Approx) Merge(other *Approx) {
	if other == nil || other.Empty() {
		return
	}
	if a.Empty() {
		a.bins = append(a.bins[:0], other.bins...)
		a.collapse()
		return
	}
	merged := make([]Bin, 0, len(a.bins)+len(other.bins))
	i, j := 0, 0
	for i < len(a.bins) && j < len(other.bins) {
		if a.bins[i].Lower <= other.bins[j].Lower {
			merged = append(merged, a.bins[i])
			i++
		} else {
			merged = append(merged, other.bins[j])
			j++
		}
	}
	merged = append(merged, a.bins[i:]...)
	merged = append(merged, other.bins[j:]...)
	a.bins = merged
	a.collapse()
}

// collapse merges adjacent bins (cheapest pair by combined width) until
// the histogram fits within maxBins, trading bin count for precision.
func (a *Approx) collapse() {
	for len(a.bins) > a.maxBins {
		best := 0
		bestWidth := -1.0
		for i := 0; i+1 < len(a.bins); i++ {
			width := a.bins[i+1].Upper - a.bins[i].Lower
			if bestWidth < 0 || width < bestWidth {
				bestWidth = width
				best = i
			}
		}
		merged := Bin{
			Lower: a.bins[best].Lower,
			Upper: a.bins[best+1].Upper,
			Count: a.bins[best].Count + a.bins[best+1].Count,
		}
		a.bins = append(a.bins[:best], append([]Bin{merged}, a.bins[best+2:]...)...)
	}
}

// Uniform returns the approximate value at the given ratio (0..1), treating
// each bin's count as uniformly distributed across [Lower, Upper].
func (a *Approx) Uniform(ratio float64) float64 {
	var total int64
	for _, b := range a.bins {
		total += b.Count
	}
	if total == 0 {
		return 0
	}
	target := ratio * float64(total)
	var cum float64
	for _, b := range a.bins {
		if cum+float64(b.Count) >= target {
			frac := (target - cum) / float64(b.Count)
			return b.Lower + frac*(b.Upper-b.Lower)
		}
		cum += float64(b.Count)
	}
	return a.bins[len(a.bins)-1].Upper
}
