// Package autotune enumerates candidate tuning-point configurations,
// measures each against a Backend, and selects a winner.
package autotune

import (
	dedisp "github.com/TRASAL/dedisp"
)

// Enumerate walks every combination of the tuning-bound axes in a fixed,
// deterministic nested order (local-mem outer, then unroll, threads_d0,
// threads_d1, items_d0, items_d1), returning only the configurations that
// pass Legal for the given observation/mode/type plan. split_batches is
// always false.
func Enumerate(bounds dedisp.TuningBounds, obs dedisp.Observation, mode dedisp.Mode, tp dedisp.TypePlan, baseLive int) []dedisp.TuningPointConfig {
	var candidates []dedisp.TuningPointConfig

	for _, localMem := range []bool{false, true} {
		for unroll := 1; unroll <= bounds.MaxUnroll; unroll++ {
			for threadsD0 := bounds.MinThreads; threadsD0 <= bounds.MaxColumns; threadsD0 *= 2 {
				for threadsD1 := 1; threadsD1 <= bounds.MaxRows; threadsD1++ {
					for itemsD0 := 1; itemsD0 <= bounds.MaxSampleItems; itemsD0++ {
						for itemsD1 := 1; itemsD1 <= bounds.MaxDMItems; itemsD1++ {
							cfg := dedisp.TuningPointConfig{
								LocalMem: localMem,
								Unroll: unroll,
								ThreadsD0: threadsD0,
								ThreadsD1: threadsD1,
								ThreadsD2: 1,
								ItemsD0: itemsD0,
								ItemsD1: itemsD1,
								ItemsD2: 1,
							}
							if err := cfg.Legal(obs, mode, tp, bounds, baseLive); err != nil {
								continue
							}
							candidates = append(candidates, cfg)
						}
					}
				}
			}
		}
	}

	return candidates
}
