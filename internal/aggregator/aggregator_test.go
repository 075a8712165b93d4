package aggregator

import (
	"testing"
	"time"

	"github.com/concordium/eur2ccd-service/internal/history"
	"github.com/concordium/eur2ccd-service/internal/ratio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rate(t *testing.T, n int64) ratio.Rate {
	t.Helper()
	r, err := ratio.New(n, 1)
	require.NoError(t, err)
	return r
}

func histWith(t *testing.T, name string, vals ...int64) *history.SourceHistory {
	h := history.New(name, 10)
	for _, v := range vals {
		h.Push(rate(t, v), time.Now())
	}
	return h
}

func TestAggregateEmptyReturnsNone(t *testing.T) {
	_, ok := Aggregate(map[string]*history.SourceHistory{
		"a": history.New("a", 10),
	})
	assert.False(t, ok)
}

// S2 from spec.md §8: three sources each with history
// [1,1,1,1,1,5]; per-source medians are 1; aggregate = 1.
func TestAggregateOutlierAbsorption(t *testing.T) {
	histories := map[string]*history.SourceHistory{
		"a": histWith(t, "a", 1, 1, 1, 1, 1, 5),
		"b": histWith(t, "b", 1, 1, 1, 1, 1, 5),
		"c": histWith(t, "c", 1, 1, 1, 1, 1, 5),
	}
	got, ok := Aggregate(histories)
	require.True(t, ok)
	assert.Equal(t, 0, got.Cmp(rate(t, 1)))
}

func TestAggregateSkipsEmptySources(t *testing.T) {
	histories := map[string]*history.SourceHistory{
		"a": histWith(t, "a", 2),
		"b": history.New("b", 10),
	}
	got, ok := Aggregate(histories)
	require.True(t, ok)
	assert.Equal(t, 0, got.Cmp(rate(t, 2)))
}

// S1 from spec.md §8: one source returning 0.5 ten times.
func TestAggregateSingleSourceNoDrift(t *testing.T) {
	vals := make([]int64, 10)
	h := history.New("a", 10)
	for range vals {
		r, err := ratio.New(1, 2)
		require.NoError(t, err)
		h.Push(r, time.Now())
	}
	got, ok := Aggregate(map[string]*history.SourceHistory{"a": h})
	require.True(t, ok)
	half, _ := ratio.New(1, 2)
	assert.Equal(t, 0, got.Cmp(half))
}

func TestAggregateIdempotentWithoutNewReadings(t *testing.T) {
	histories := map[string]*history.SourceHistory{
		"a": histWith(t, "a", 1, 2, 3),
	}
	first, _ := Aggregate(histories)
	second, _ := Aggregate(histories)
	assert.Equal(t, 0, first.Cmp(second))
}
