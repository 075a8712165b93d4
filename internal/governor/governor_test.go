package governor

import (
	"math/big"
	"os"
	"path/filepath"
	"testing"

	"github.com/concordium/eur2ccd-service/internal/ratio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func thresholds() Thresholds {
	return Thresholds{
		WarnUp:   big.NewRat(30, 1),
		HaltUp:   big.NewRat(100, 1),
		WarnDown: big.NewRat(15, 1),
		HaltDown: big.NewRat(50, 1),
	}
}

func rate(t *testing.T, n, d int64) ratio.Rate {
	t.Helper()
	r, err := ratio.New(n, d)
	require.NoError(t, err)
	return r
}

// S3 from spec.md §8: prev=1.0, candidate=1.35, warn_up=30, halt_up=100.
func TestClassifyWarn(t *testing.T) {
	lockPath := filepath.Join(t.TempDir(), "update.lockfile")
	g := New(thresholds(), lockPath, false)

	class := g.Classify(rate(t, 135, 100), rate(t, 1, 1))
	assert.Equal(t, Warn, class)
}

// S4 from spec.md §8: prev=1.0, candidate=2.5, halt_up=100.
func TestClassifyHaltAndOneWay(t *testing.T) {
	lockPath := filepath.Join(t.TempDir(), "update.lockfile")
	g := New(thresholds(), lockPath, false)

	class, submit, err := g.Evaluate(rate(t, 25, 10), rate(t, 1, 1))
	require.NoError(t, err)
	assert.Equal(t, Halt, class)
	assert.False(t, submit)
	assert.True(t, g.DryRun())

	_, err = os.Stat(lockPath)
	assert.NoError(t, err)

	// Subsequent tick, even with a candidate that would otherwise be OK,
	// still produces no submission: halt is one-way.
	class2, submit2, err := g.Evaluate(rate(t, 101, 100), rate(t, 1, 1))
	require.NoError(t, err)
	assert.False(t, submit2)
	_ = class2
}

func TestClassifyOK(t *testing.T) {
	lockPath := filepath.Join(t.TempDir(), "update.lockfile")
	g := New(thresholds(), lockPath, false)
	class, submit, err := g.Evaluate(rate(t, 101, 100), rate(t, 1, 1))
	require.NoError(t, err)
	assert.Equal(t, OK, class)
	assert.True(t, submit)
}

func TestZeroPreviousIsHalt(t *testing.T) {
	lockPath := filepath.Join(t.TempDir(), "update.lockfile")
	g := New(thresholds(), lockPath, false)
	class := g.Classify(rate(t, 1, 1), ratio.Rate{})
	assert.Equal(t, Halt, class)
}

func TestDryRunSkipsSubmissionButStillClassifies(t *testing.T) {
	lockPath := filepath.Join(t.TempDir(), "update.lockfile")
	g := New(thresholds(), lockPath, true)
	class, submit, err := g.Evaluate(rate(t, 101, 100), rate(t, 1, 1))
	require.NoError(t, err)
	assert.Equal(t, OK, class)
	assert.False(t, submit)
}

func TestExistingLockFileForcesDryRunAtStartup(t *testing.T) {
	lockPath := filepath.Join(t.TempDir(), "update.lockfile")
	require.NoError(t, os.WriteFile(lockPath, nil, 0o644))

	g := New(thresholds(), lockPath, false)
	assert.True(t, g.DryRun())
}

func TestNegativeDeviationHalt(t *testing.T) {
	lockPath := filepath.Join(t.TempDir(), "update.lockfile")
	g := New(thresholds(), lockPath, false)
	// 50% drop from 1.0 -> 0.5 hits halt_down exactly.
	class := g.Classify(rate(t, 1, 2), rate(t, 1, 1))
	assert.Equal(t, Halt, class)
}
