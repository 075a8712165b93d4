package ratio

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	r, err := New(1, 2)
	require.NoError(t, err)
	assert.Equal(t, "1/2", r.String())

	_, err = New(1, 0)
	assert.Error(t, err)

	_, err = New(-1, 2)
	assert.Error(t, err)
}

func TestFromFloat(t *testing.T) {
	r, err := FromFloat(0.5)
	require.NoError(t, err)
	assert.Equal(t, 0, r.Cmp(mustRate(t, 1, 2)))

	_, err = FromFloat(-1.0)
	assert.Error(t, err)
}

func TestMedianOdd(t *testing.T) {
	rates := []Rate{
		mustRate(t, 3, 1),
		mustRate(t, 1, 1),
		mustRate(t, 2, 1),
	}
	m, ok := Median(rates)
	require.True(t, ok)
	assert.Equal(t, 0, m.Cmp(mustRate(t, 2, 1)))
}

func TestMedianEvenAveragesExactly(t *testing.T) {
	rates := []Rate{
		mustRate(t, 1, 1),
		mustRate(t, 2, 1),
	}
	m, ok := Median(rates)
	require.True(t, ok)
	// (1+2)/2 = 3/2, exactly — not 1.5 rounded through float64.
	assert.Equal(t, 0, m.Cmp(mustRate(t, 3, 2)))
}

func TestMedianEmpty(t *testing.T) {
	_, ok := Median(nil)
	assert.False(t, ok)
}

func TestOnChainPairRoundTrip(t *testing.T) {
	r := mustRate(t, 355, 113)
	n, d, err := r.OnChainPair()
	require.NoError(t, err)
	assert.Equal(t, uint64(355), n)
	assert.Equal(t, uint64(113), d)

	back, err := FromOnChainPair(n, d)
	require.NoError(t, err)
	assert.Equal(t, 0, r.Cmp(back))
}

func TestOnChainPairZero(t *testing.T) {
	n, d, err := Rate{}.OnChainPair()
	require.NoError(t, err)
	assert.Equal(t, uint64(0), n)
	assert.Equal(t, uint64(1), d)
}

func TestOnChainPairOversizedIsHalvedIntoRange(t *testing.T) {
	huge := new(big.Int).Lsh(big.NewInt(1), 70)
	r := Rate{r: new(big.Rat).SetFrac(huge, big.NewInt(1))}
	n, d, err := r.OnChainPair()
	require.NoError(t, err)
	assert.LessOrEqual(t, d, uint64(1)<<63)
	_ = n
}

func TestDeviationPercent(t *testing.T) {
	base := mustRate(t, 100, 1)
	next := mustRate(t, 105, 1)
	pct, err := next.DeviationPercent(base)
	require.NoError(t, err)
	assert.Equal(t, big.NewRat(5, 1).RatString(), pct.RatString())
}

func TestDeviationPercentZeroBase(t *testing.T) {
	_, err := mustRate(t, 1, 1).DeviationPercent(Rate{})
	assert.Error(t, err)
}

func mustRate(t *testing.T, n, d int64) Rate {
	t.Helper()
	r, err := New(n, d)
	require.NoError(t, err)
	return r
}
