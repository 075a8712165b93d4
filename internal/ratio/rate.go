// Package ratio implements the exact-rational Rate type used throughout
// the oracle pipeline. All rate arithmetic — medians, deviation checks,
// and the on-chain numerator/denominator encoding — is performed with
// big.Rat rather than floating point, since a 100% halt threshold must
// compare exactly.
package ratio

import (
	"fmt"
	"math/big"
	"sort"
)

// maxUint64 is the largest value either component of the on-chain pair
// may take.
var maxUint64 = new(big.Int).SetUint64(^uint64(0))

// Rate is a non-negative exact rational, EUR per 1 CCD.
type Rate struct {
	r *big.Rat
}

// New constructs a Rate from an integer numerator/denominator pair.
// Returns an error if the value would be negative or the denominator
// is zero.
func New(numerator, denominator int64) (Rate, error) {
	if denominator == 0 {
		return Rate{}, fmt.Errorf("ratio: zero denominator")
	}
	if (numerator < 0) != (denominator < 0) && numerator != 0 {
		return Rate{}, fmt.Errorf("ratio: negative rate")
	}
	return Rate{r: new(big.Rat).SetFrac64(numerator, denominator)}, nil
}

// FromFloat constructs a Rate from a decimal reading reported by an
// external source. Non-finite or negative values are rejected at
// ingress, per spec.
func FromFloat(v float64) (Rate, error) {
	// Must run before formatFloat/big.NewFloat: big.NewFloat(NaN) panics
	// with ErrNaN, and NaN fails both v < 0 and v > 0 so a negativity
	// check alone would not catch it.
	if !isFinite(v) {
		return Rate{}, fmt.Errorf("ratio: non-finite reading %v", v)
	}
	if v < 0 {
		return Rate{}, fmt.Errorf("ratio: negative reading %v", v)
	}
	r := new(big.Rat)
	if _, ok := r.SetString(formatFloat(v)); !ok {
		// SetString on a plain float-to-string round trip should never
		// fail for a finite float64; guard anyway since callers pass
		// arbitrary external input upstream of this constructor.
		return Rate{}, fmt.Errorf("ratio: unparseable reading %v", v)
	}
	return Rate{r: r}, nil
}

func isFinite(v float64) bool {
	return v == v && v < maxFloat && v > -maxFloat
}

const maxFloat = 1.7976931348623157e+308

func formatFloat(v float64) string {
	return big.NewFloat(v).Text('f', -1)
}

// Zero reports whether the rate is exactly zero.
func (r Rate) Zero() bool {
	return r.r == nil || r.r.Sign() == 0
}

// Rat exposes the underlying big.Rat for callers that need arithmetic
// this package does not provide directly (e.g. the governor's deviation
// computation).
func (r Rate) Rat() *big.Rat {
	if r.r == nil {
		return new(big.Rat)
	}
	return new(big.Rat).Set(r.r)
}

// String renders the reduced fraction, e.g. "1/2".
func (r Rate) String() string {
	if r.r == nil {
		return "0/1"
	}
	return r.r.RatString()
}

// FloatString renders the rate to the given decimal precision, for
// logging only — never for comparisons.
func (r Rate) FloatString(prec int) string {
	if r.r == nil {
		return "0"
	}
	return r.r.FloatString(prec)
}

// Cmp compares two rates, per big.Rat.Cmp semantics.
func (r Rate) Cmp(o Rate) int {
	return r.Rat().Cmp(o.Rat())
}

// Median computes the median of a non-empty slice of rates. For an even
// count, the two middle values are averaged in exact rationals (per
// spec.md §4.2). The input is sorted ascending; the caller's slice is
// not mutated in place (a copy is sorted internally).
func Median(rates []Rate) (Rate, bool) {
	if len(rates) == 0 {
		return Rate{}, false
	}
	sorted := make([]Rate, len(rates))
	copy(sorted, rates)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Cmp(sorted[j]) < 0
	})

	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2], true
	}
	a := sorted[n/2-1].Rat()
	b := sorted[n/2].Rat()
	sum := new(big.Rat).Add(a, b)
	half := new(big.Rat).Quo(sum, big.NewRat(2, 1))
	return Rate{r: half}, true
}

// OnChainPair reduces the rate to a pair of unsigned 64-bit integers
// suitable for the chain's numerator/denominator wire format. If either
// component would overflow 2^64-1 after reduction to lowest terms, both
// are repeatedly halved (losing precision) until they fit.
//
// This is the documented resolution of spec.md §9's open tie-break
// question: halving is a cheap, deterministic, and symmetric way to
// bring an oversized fraction into range without needing arbitrary
// long division against the uint64 ceiling. The halving itself uses
// big.Int.Rsh (round toward zero, i.e. truncation), not round-to-even;
// ties are therefore resolved toward the smaller representable value.
func (r Rate) OnChainPair() (numerator, denominator uint64, err error) {
	if r.r == nil || r.r.Sign() == 0 {
		return 0, 1, nil
	}
	if r.r.Sign() < 0 {
		return 0, 0, fmt.Errorf("ratio: cannot encode negative rate")
	}

	n := new(big.Int).Set(r.r.Num())
	d := new(big.Int).Set(r.r.Denom())

	for n.Cmp(maxUint64) > 0 || d.Cmp(maxUint64) > 0 {
		if n.Sign() == 0 || d.Sign() == 0 {
			break
		}
		n.Rsh(n, 1)
		d.Rsh(d, 1)
		if n.Sign() == 0 {
			n.SetInt64(1)
		}
		if d.Sign() == 0 {
			d.SetInt64(1)
		}
	}

	if n.Cmp(maxUint64) > 0 || d.Cmp(maxUint64) > 0 {
		return 0, 0, fmt.Errorf("ratio: rate %s cannot be represented in 64 bits", r.String())
	}

	return n.Uint64(), d.Uint64(), nil
}

// FromOnChainPair reconstructs a Rate from the chain's numerator/
// denominator representation.
func FromOnChainPair(numerator, denominator uint64) (Rate, error) {
	if denominator == 0 {
		return Rate{}, fmt.Errorf("ratio: zero on-chain denominator")
	}
	n := new(big.Int).SetUint64(numerator)
	d := new(big.Int).SetUint64(denominator)
	return Rate{r: new(big.Rat).SetFrac(n, d)}, nil
}

// DeviationPercent computes the signed percent deviation of r relative
// to base: (r - base) / base * 100, in exact rationals. Returns an
// error if base is zero (the caller — the safety governor — treats a
// zero previous rate as an unconditional Halt rather than dividing by
// it).
func (r Rate) DeviationPercent(base Rate) (*big.Rat, error) {
	if base.Zero() {
		return nil, fmt.Errorf("ratio: cannot compute deviation against a zero base rate")
	}
	diff := new(big.Rat).Sub(r.Rat(), base.Rat())
	pct := new(big.Rat).Quo(diff, base.Rat())
	pct.Mul(pct, big.NewRat(100, 1))
	return pct, nil
}
