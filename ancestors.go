package nitree

import "fmt"

// parentStep maps a non-zero left bound p/q to the left bound of its parent
// by stripping the last term of its continued fraction:
//
//	x = p^-1 mod q,  p/q -> ((x*p - 1)/q) / x
func parentStep(f Fraction) (Fraction, error) {
	x, ok := ModInverse(f.Num, f.Den)
	if !ok {
		return Fraction{}, fmt.Errorf("%w: no inverse of %d mod %d", ErrInvariant, f.Num, f.Den)
	}

	return Fraction{mulDecDiv(x, f.Num, f.Den), x}, nil
}

// AncestorChain returns the left bounds of every ancestor of the node whose
// left bound is left, from the immediate parent up to the 0/1 sentinel.
// A root in SingleRoot mode (0/1 itself) has an empty chain; a root in
// VirtualRootMode has the chain [0/1].
func AncestorChain(left Fraction) ([]Fraction, error) {
	if err := left.validate(); err != nil {
		return nil, err
	}

	chain := []Fraction{}
	f := left
	for !f.IsZero() {
		p, err := parentStep(f)
		if err != nil {
			return nil, err
		}
		chain = append(chain, p)
		f = p
	}
	return chain, nil
}

// ParentBound returns the left bound of the immediate parent of left.  The
// second result is false for 0/1, which has no parent.
func ParentBound(left Fraction) (Fraction, bool, error) {
	if err := left.validate(); err != nil {
		return Fraction{}, false, err
	}
	if left.IsZero() {
		return Fraction{}, false, nil
	}

	p, err := parentStep(left)
	if err != nil {
		return Fraction{}, false, err
	}
	return p, true, nil
}

// Depth counts the steps from left up to 0/1.  In VirtualRootMode the count
// includes the step from a root to the virtual root.
func Depth(left Fraction) (int, error) {
	if err := left.validate(); err != nil {
		return 0, err
	}

	n := 0
	for f := left; !f.IsZero(); n += 1 {
		var err error
		f, err = parentStep(f)
		if err != nil {
			return 0, err
		}
	}
	return n, nil
}
