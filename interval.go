package nitree

import "fmt"

// The functions below give the interval calculus for nested intervals laid
// over the Stern-Brocot tree.  Every node owns a half-open interval
// [left, right) of rationals in [0, 1).  Only the left bound is stored; the
// right bound is the nearest Stern-Brocot ancestor boundary above it and is
// recovered with a modular inverse.  For a tree built by appending children
// the layout looks like this:
//
//	[0/1 ................................................ 1/1)  root
//	         [1/3 ...... 1/2)  [1/2 ..................... 1/1)  children
//	             [2/5 .. 1/2)       [3/5 .. 2/3)  [2/3 .. 1/1)  grandchildren
//
// A child is always allocated at the mediant of its parent's left bound and
// the previous rightmost bound, so each new sibling sits to the left of the
// last one and strictly inside the parent.

// An Interval is the half-open range [Left, Right) owned by a node.
type Interval struct {
	Left  Fraction
	Right Fraction
}

// VirtualRoot is the synthetic interval above every real root when a tree
// runs in VirtualRoot mode.
var VirtualRoot = Interval{Left: zeroBound, Right: oneBound}

// RightBound derives the right end of the interval whose left end is left.
func RightBound(left Fraction) (Fraction, error) {
	if err := left.validate(); err != nil {
		return Fraction{}, err
	}

	switch left.Num {
	case 0:
		return oneBound, nil
	case 1:
		return Fraction{1, left.Den - 1}, nil
	}

	rp, ok := ModInverse(left.Den, left.Num)
	if !ok {
		return Fraction{}, fmt.Errorf("%w: no inverse of %d mod %d", ErrInvariant, left.Den, left.Num)
	}

	return Fraction{rp, mulDecDiv(rp, left.Den, left.Num)}, nil
}

// IntervalOf returns the full interval owned by a node with the given left
// bound.
func IntervalOf(left Fraction) (Interval, error) {
	right, err := RightBound(left)
	if err != nil {
		return Interval{}, err
	}
	return Interval{Left: left, Right: right}, nil
}

// Contains reports whether f lies in [iv.Left, iv.Right).
func (iv Interval) Contains(f Fraction) bool {
	return iv.Left.Cmp(f) <= 0 && f.Cmp(iv.Right) < 0
}

// Covers reports whether other is nested in iv, including iv == other.
func (iv Interval) Covers(other Interval) bool {
	return iv.Contains(other.Left) && other.Right.Cmp(iv.Right) <= 0
}

func (iv Interval) String() string {
	return fmt.Sprintf("[%v, %v)", iv.Left, iv.Right)
}
