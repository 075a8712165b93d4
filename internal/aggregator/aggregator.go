// Package aggregator implements the rate aggregator (C2): the
// double-median policy that reduces per-source histories to a single
// rational EUR-per-CCD value. A single source that is persistently
// wrong, or briefly spammed by one outlier, is downweighted first by
// its own median, then by the cross-source median.
package aggregator

import (
	"sort"

	"github.com/concordium/eur2ccd-service/internal/history"
	"github.com/concordium/eur2ccd-service/internal/ratio"
)

// Aggregate computes the double median over the given histories, keyed
// by source identifier. Sources with an empty history are skipped. If
// every history is empty, it returns (Rate{}, false) and the caller
// must skip the update cycle.
func Aggregate(histories map[string]*history.SourceHistory) (ratio.Rate, bool) {
	names := make([]string, 0, len(histories))
	for name := range histories {
		names = append(names, name)
	}
	// Deterministic order by source identifier, per §4.2 step 2.
	sort.Strings(names)

	medians := make([]ratio.Rate, 0, len(names))
	for _, name := range names {
		snap := histories[name].Snapshot()
		if len(snap) == 0 {
			continue
		}
		m, ok := ratio.Median(snap)
		if !ok {
			continue
		}
		medians = append(medians, m)
	}

	if len(medians) == 0 {
		return ratio.Rate{}, false
	}

	return ratio.Median(medians)
}
