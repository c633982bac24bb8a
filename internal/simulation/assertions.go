package simulation

import (
	"slices"
	"testing"
)

// AssertSeriesLength asserts that the run recorded exactly MaxIter entries in
// its series, cumulative totals and observer callbacks.
func AssertSeriesLength(t *testing.T, result SimulationResult) {
	t.Helper()
	want := result.Result.Config().MaxIter
	if got := len(result.Result.TimeSeries()); got != want {
		t.Errorf("AssertSeriesLength: series has %d entries, want %d", got, want)
	}
	if got := len(result.Result.Cumulative()); got != want {
		t.Errorf("AssertSeriesLength: cumulative has %d entries, want %d", got, want)
	}
	if got := len(result.Iterations); got != want {
		t.Errorf("AssertSeriesLength: observed %d iterations, want %d", got, want)
	}
}

// AssertFramesMonotonic asserts that no cell count ever decreases between
// consecutive frames.
func AssertFramesMonotonic(t *testing.T, result SimulationResult) {
	t.Helper()
	res := result.Result
	for it := 1; it < res.Iterations(); it++ {
		prev, cur := res.Frame(it-1), res.Frame(it)
		for i := range cur {
			if cur[i] < prev[i] {
				t.Errorf("AssertFramesMonotonic: cell %d decreased from %d to %d at iteration %d", i, prev[i], cur[i], it)
				return
			}
		}
	}
}

// AssertCumulativeConsistent asserts that cumulative[t] equals one seed plus
// every adoption up to t, and equals the sum of frame t.
func AssertCumulativeConsistent(t *testing.T, result SimulationResult) {
	t.Helper()
	res := result.Result
	series := res.TimeSeries()
	cumulative := res.Cumulative()
	running := 1
	for it := range series {
		running += series[it]
		if cumulative[it] != running {
			t.Errorf("AssertCumulativeConsistent: iteration %d: cumulative %d, want 1+sum(series) = %d", it, cumulative[it], running)
		}
		sum := 0
		for _, v := range res.Frame(it) {
			sum += int(v)
		}
		if sum != cumulative[it] {
			t.Errorf("AssertCumulativeConsistent: iteration %d: frame sum %d, cumulative %d", it, sum, cumulative[it])
		}
	}
}

// AssertCapacityRespected asserts that no cell ever holds more adopters than
// its capacity.
func AssertCapacityRespected(t *testing.T, result SimulationResult) {
	t.Helper()
	res := result.Result
	capacity := int32(res.Config().Capacity)
	for it := 0; it < res.Iterations(); it++ {
		for i, v := range res.Frame(it) {
			if v < 0 || v > capacity {
				t.Errorf("AssertCapacityRespected: iteration %d cell %d holds %d (capacity %d)", it, i, v, capacity)
				return
			}
		}
	}
}

// AssertFrontierIsSnapshot asserts that each sweep propagated from exactly
// the adopters that existed before it began.
func AssertFrontierIsSnapshot(t *testing.T, result SimulationResult) {
	t.Helper()
	before := 1
	for _, it := range result.Iterations {
		if it.Frontier != before {
			t.Errorf("AssertFrontierIsSnapshot: iteration %d frontier %d, want %d", it.Index, it.Frontier, before)
		}
		before = it.Total
	}
}

// AssertWithinReach asserts that after iteration t no adopter lies further
// from the seed than (t+1) kernel radii.
func AssertWithinReach(t *testing.T, result SimulationResult) {
	t.Helper()
	res := result.Result
	radius := res.Config().KernelSize / 2
	for it := 0; it < res.Iterations(); it++ {
		if spread := MaxSpread(res, it); spread > (it+1)*radius {
			t.Errorf("AssertWithinReach: iteration %d spread %d exceeds %d", it, spread, (it+1)*radius)
		}
	}
}

// AssertDeterministic asserts that two results carry identical frames and
// series.
func AssertDeterministic(t *testing.T, a, b SimulationResult) {
	t.Helper()
	if !slices.Equal(a.Result.TimeSeries(), b.Result.TimeSeries()) {
		t.Errorf("AssertDeterministic: series differ: %v vs %v", a.Result.TimeSeries(), b.Result.TimeSeries())
	}
	if !slices.Equal(a.Result.Frames(), b.Result.Frames()) {
		t.Error("AssertDeterministic: frames differ")
	}
}

// AssertSaturated asserts that every slot of the grid was adopted by the end
// of the run.
func AssertSaturated(t *testing.T, result SimulationResult) {
	t.Helper()
	cfg := result.Result.Config()
	want := cfg.Rows * cfg.Cols * cfg.Capacity
	if got := result.Result.Total(); got != want {
		t.Errorf("AssertSaturated: total %d, want %d", got, want)
	}
}

// AssertStatsAccounted asserts that per-iteration contact outcomes add up to
// the frontier: every propagating adopter made one contact that either
// reached the grid or was skipped, and reached contacts either adopted or
// were wasted.
func AssertStatsAccounted(t *testing.T, result SimulationResult) {
	t.Helper()
	for _, it := range result.Iterations {
		if it.Contacts+it.Skipped != it.Frontier {
			t.Errorf("AssertStatsAccounted: iteration %d: contacts %d + skipped %d != frontier %d", it.Index, it.Contacts, it.Skipped, it.Frontier)
		}
		if it.NewAdopted+it.Wasted != it.Contacts {
			t.Errorf("AssertStatsAccounted: iteration %d: new %d + wasted %d != contacts %d", it.Index, it.NewAdopted, it.Wasted, it.Contacts)
		}
	}
}
