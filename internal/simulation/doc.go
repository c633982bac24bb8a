// Package simulation provides a scenario harness for validating the emergent
// behavior of diffusion runs.
//
// The harness exercises the real Engine, kernel and SQLiteRunStore, no mocks.
// Scenarios are Go values describing a grid configuration and a propagation
// mode; the Runner executes them, captures every Iteration through the
// engine observer and optionally persists the run and reads it back before
// handing the result to property-based assertions.
//
// Each test gets an isolated SQLite database via t.TempDir() and a sandboxed
// HOME to prevent touching user data.
//
// Usage:
//
//	func TestSpatialSpreadIsLocal(t *testing.T) {
//	    r := simulation.NewRunner(t)
//	    result := r.Run(simulation.Scenario{
//	        Name:   "local-spread",
//	        Config: simulation.GridConfig(41, 41, 5),
//	        Mode:   diffusion.ModeSpatial,
//	    })
//	    simulation.AssertWithinReach(t, result)
//	}
package simulation
