// Package governor implements the safety governor (C3): it classifies
// a candidate rate against the previously on-chain rate using four
// configured percentage thresholds, and owns the one-way halt lockfile
// that forces the whole service into dry-run once a Halt classification
// fires in live mode.
//
// The deviation check is grounded on the Chainlink flux-monitor
// OutsideDeviation idiom (signed percentage difference against a
// threshold), generalized here to two-sided asymmetric thresholds and
// computed in exact rationals rather than floats.
package governor

import (
	"fmt"
	"math/big"
	"os"
	"sync/atomic"

	"github.com/concordium/eur2ccd-service/internal/config"
	"github.com/concordium/eur2ccd-service/internal/metrics"
	"github.com/concordium/eur2ccd-service/internal/ratio"
)

// Classification is the governor's verdict on a candidate update.
type Classification int

const (
	OK Classification = iota
	Warn
	Halt
)

func (c Classification) String() string {
	switch c {
	case OK:
		return "OK"
	case Warn:
		return "Warn"
	case Halt:
		return "Halt"
	default:
		return "Unknown"
	}
}

// Thresholds holds the four percent thresholds from §4.3/§6.
type Thresholds struct {
	WarnUp   *big.Rat
	HaltUp   *big.Rat
	WarnDown *big.Rat
	HaltDown *big.Rat
}

// ThresholdsFromConfig builds Thresholds from the resolved config's
// float64 percentages.
func ThresholdsFromConfig(c *config.Config) Thresholds {
	return Thresholds{
		WarnUp:   big.NewRat(0, 1).SetFloat64(c.WarningIncreaseThresholdPct),
		HaltUp:   big.NewRat(0, 1).SetFloat64(c.HaltIncreaseThresholdPct),
		WarnDown: big.NewRat(0, 1).SetFloat64(c.WarningDecreaseThresholdPct),
		HaltDown: big.NewRat(0, 1).SetFloat64(c.HaltDecreaseThresholdPct),
	}
}

// Governor holds the thresholds, the lockfile path, and the one-way
// forced-dry-run flag described in §3/§9. Transitions from false to
// true are permanent for the process lifetime; the flag can only start
// true (lockfile already present at boot) or flip true at runtime on a
// Halt classification in live mode.
type Governor struct {
	thresholds   Thresholds
	lockFilePath string
	configDryRun bool

	forcedDryRun atomic.Bool
}

// New builds a Governor. configDryRun is the operator-configured
// dry-run flag from §6; it is independent of, and never reset by, the
// lockfile-driven forcedDryRun flag.
func New(thresholds Thresholds, lockFilePath string, configDryRun bool) *Governor {
	g := &Governor{
		thresholds:   thresholds,
		lockFilePath: lockFilePath,
		configDryRun: configDryRun,
	}
	if g.lockFileExists() {
		g.forcedDryRun.Store(true)
	}
	metrics.SetDryRunActive(g.DryRun())
	return g
}

func (g *Governor) lockFileExists() bool {
	_, err := os.Stat(g.lockFilePath)
	return err == nil
}

// DryRun reports whether the service is currently in dry-run mode,
// for any reason: operator configuration or a prior Halt.
func (g *Governor) DryRun() bool {
	return g.configDryRun || g.forcedDryRun.Load()
}

// Classify computes the signed percent deviation of candidate from
// previous and returns the classification. A zero previous rate (the
// bootstrap condition, not expected on a live chain per §4.3) is
// treated as Halt.
func (g *Governor) Classify(candidate, previous ratio.Rate) Classification {
	if previous.Zero() {
		return Halt
	}

	delta, err := candidate.DeviationPercent(previous)
	if err != nil {
		return Halt
	}

	switch {
	case delta.Cmp(g.thresholds.HaltUp) >= 0:
		return Halt
	case new(big.Rat).Neg(delta).Cmp(g.thresholds.HaltDown) >= 0:
		return Halt
	case delta.Cmp(g.thresholds.WarnUp) >= 0:
		return Warn
	case new(big.Rat).Neg(delta).Cmp(g.thresholds.WarnDown) >= 0:
		return Warn
	default:
		return OK
	}
}

// Evaluate classifies the candidate and applies side effects: counting
// Warn/Halt metrics and, for a Halt in live mode, persisting the
// lockfile and flipping the one-way forced-dry-run flag. It returns
// the classification and whether the tick should actually submit.
func (g *Governor) Evaluate(candidate, previous ratio.Rate) (Classification, bool, error) {
	class := g.Classify(candidate, previous)

	switch class {
	case Warn:
		metrics.RecordWarn()
	case Halt:
		metrics.RecordHalt()
		if !g.DryRun() {
			if err := g.persistLockFile(); err != nil {
				return class, false, fmt.Errorf("governor: persisting lockfile: %w", err)
			}
			g.forcedDryRun.Store(true)
			metrics.SetDryRunActive(true)
		}
		return class, false, nil
	}

	if g.DryRun() {
		return class, false, nil
	}
	return class, true, nil
}

func (g *Governor) persistLockFile() error {
	f, err := os.OpenFile(g.lockFilePath, os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	return f.Close()
}
