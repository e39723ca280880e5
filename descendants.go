package nitree

import (
	"math/bits"
)

// IsAncestorOrSelf reports whether the node whose left bound is a is an
// ancestor of, or the same node as, the node whose left bound is b.  The
// test is exact: a.Left <= b.Left < a.Right.
func IsAncestorOrSelf(a, b Fraction) (bool, error) {
	if err := b.validate(); err != nil {
		return false, err
	}
	if a == b {
		return true, nil
	}

	iv, err := IntervalOf(a)
	if err != nil {
		return false, err
	}
	return iv.Contains(b), nil
}

// DescendantNumRange returns the inclusive window of numerators p for which
// p/den is a strict descendant candidate of iv:
//
//	floor(den*L) + 1 <= p <= floor(den*R)
//
// A candidate equal to iv.Right must still be excluded by the caller.  This
// is the integer form of the containment filter that a store can evaluate
// per row without floating point.  ok is false when the window is empty.
func DescendantNumRange(iv Interval, den int64) (lo, hi int64, ok bool) {
	if den <= 0 {
		return 0, 0, false
	}
	lo = floorMulDiv(den, iv.Left.Num, iv.Left.Den) + 1
	hi = floorMulDiv(den, iv.Right.Num, iv.Right.Den)
	return lo, hi, lo <= hi
}

// floorMulDiv returns floor(a*b/c) for non-negative a, b and positive c with
// a 128-bit intermediate product.  The result fits whenever b <= c.
func floorMulDiv(a, b, c int64) int64 {
	hi, lo := bits.Mul64(uint64(a), uint64(b))
	q, _ := bits.Div64(hi, lo, uint64(c))
	return int64(q)
}

// IsDescendant is the strict form of IsAncestorOrSelf used when a and b are
// known to be different nodes: the descendant's left bound lies strictly
// inside the ancestor's interval.
func (iv Interval) IsDescendant(left Fraction) bool {
	return iv.Left.Cmp(left) < 0 && left.Cmp(iv.Right) < 0
}
