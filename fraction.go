package nitree

import (
	"fmt"
	"math/bits"
)

// A Fraction is a non-negative rational p/q kept as two int64 components.
// Bounds produced by the allocator are always in lowest terms; callers that
// build a Fraction from stored values should go through NewFraction so that
// corrupted rows are surfaced instead of silently used.
type Fraction struct {
	Num int64 `json:"num" yaml:"num"`
	Den int64 `json:"den" yaml:"den"`
}

var (
	zeroBound = Fraction{0, 1}
	oneBound  = Fraction{1, 1}
)

// NewFraction validates a stored left bound.  The bound must have a
// positive denominator, be in lowest terms and lie in [0, 1).
func NewFraction(num, den int64) (Fraction, error) {
	f := Fraction{num, den}
	if err := f.validate(); err != nil {
		return Fraction{}, err
	}
	return f, nil
}

func (f Fraction) validate() error {
	switch {
	case f.Den <= 0:
		return fmt.Errorf("%w: %v has non-positive denominator", ErrInvariant, f)
	case f.Num < 0:
		return fmt.Errorf("%w: %v is negative", ErrInvariant, f)
	case f.Num >= f.Den && f != zeroBound:
		return fmt.Errorf("%w: %v is outside [0, 1)", ErrInvariant, f)
	case gcd(f.Num, f.Den) != 1:
		return fmt.Errorf("%w: %v is not in lowest terms", ErrInvariant, f)
	}
	return nil
}

func (f Fraction) IsZero() bool {
	return f.Num == 0
}

// Cmp compares f and g exactly.  Both denominators must be positive and both
// numerators non-negative, which holds for every bound in a tree.  The cross
// products are computed in 128 bits, so Cmp cannot overflow.
func (f Fraction) Cmp(g Fraction) int {
	// f.Num/f.Den <=> g.Num/g.Den  <=>  f.Num*g.Den <=> g.Num*f.Den
	lh, ll := bits.Mul64(uint64(f.Num), uint64(g.Den))
	rh, rl := bits.Mul64(uint64(g.Num), uint64(f.Den))
	switch {
	case lh < rh:
		return -1
	case lh > rh:
		return 1
	case ll < rl:
		return -1
	case ll > rl:
		return 1
	}
	return 0
}

func (f Fraction) Less(g Fraction) bool {
	return f.Cmp(g) < 0
}

// Mediant returns (f.Num+g.Num)/(f.Den+g.Den).  For neighbours in the
// Stern-Brocot tree the mediant is already in lowest terms.
func (f Fraction) Mediant(g Fraction) (Fraction, error) {
	num, err := addInt64(f.Num, g.Num)
	if err != nil {
		return Fraction{}, err
	}
	den, err := addInt64(f.Den, g.Den)
	if err != nil {
		return Fraction{}, err
	}
	return Fraction{num, den}, nil
}

// Float64 is the approximation written to float cache columns.  It must never
// be used to decide containment.
func (f Fraction) Float64() float64 {
	return float64(f.Num) / float64(f.Den)
}

func (f Fraction) String() string {
	return fmt.Sprintf("%d/%d", f.Num, f.Den)
}

// ModInverse returns the x in [0, m) with a*x = 1 (mod m), computed with the
// extended Euclidean algorithm.  The second result is false when the inverse
// does not exist, i.e. when gcd(a, m) != 1.
func ModInverse(a, m int64) (int64, bool) {
	if m <= 0 {
		return 0, false
	}
	if m == 1 {
		return 0, true
	}

	u, v := m, a%m
	if v < 0 {
		v += m
	}
	x, y := int64(0), int64(1)
	for v != 0 {
		q, r := u/v, u%v
		x, y = y, x-q*y
		u, v = v, r
	}
	if u != 1 {
		return 0, false
	}
	if x < 0 {
		x += m
	}
	return x, true
}

func gcd(a, b int64) int64 {
	if a < 0 {
		a = -a
	}
	if b < 0 {
		b = -b
	}
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

// Checked int64 arithmetic.  Bounds grow with depth and sibling count; when
// they no longer fit, the operation fails with ErrLimitExceeded instead of
// wrapping around.

func addInt64(a, b int64) (int64, error) {
	s := a + b
	if (s > a) != (b > 0) {
		return 0, fmt.Errorf("%w: %d + %d", ErrLimitExceeded, a, b)
	}
	return s, nil
}

func subInt64(a, b int64) (int64, error) {
	d := a - b
	if (d < a) != (b > 0) {
		return 0, fmt.Errorf("%w: %d - %d", ErrLimitExceeded, a, b)
	}
	return d, nil
}

func mulInt64(a, b int64) (int64, error) {
	if a == 0 || b == 0 {
		return 0, nil
	}
	neg := (a < 0) != (b < 0)
	hi, lo := bits.Mul64(absUint64(a), absUint64(b))
	limit := uint64(1<<63 - 1)
	if neg {
		limit++
	}
	if hi != 0 || lo > limit {
		return 0, fmt.Errorf("%w: %d * %d", ErrLimitExceeded, a, b)
	}
	if neg {
		return int64(-lo), nil
	}
	return int64(lo), nil
}

// mulSub returns a*b - c*d.
func mulSub(a, b, c, d int64) (int64, error) {
	l, err := mulInt64(a, b)
	if err != nil {
		return 0, err
	}
	r, err := mulInt64(c, d)
	if err != nil {
		return 0, err
	}
	return subInt64(l, r)
}

// mulAdd returns a*b + c*d.
func mulAdd(a, b, c, d int64) (int64, error) {
	l, err := mulInt64(a, b)
	if err != nil {
		return 0, err
	}
	r, err := mulInt64(c, d)
	if err != nil {
		return 0, err
	}
	return addInt64(l, r)
}

// mul128 returns a*b as a two's-complement 128-bit value.
func mul128(a, b int64) (hi, lo uint64) {
	hi, lo = bits.Mul64(absUint64(a), absUint64(b))
	if (a < 0) != (b < 0) {
		var borrow uint64
		lo, borrow = bits.Sub64(0, lo, 0)
		hi, _ = bits.Sub64(0, hi, borrow)
	}
	return hi, lo
}

// mulDecDiv returns (a*b - 1) / c for positive a, b and c with a < c, using a
// 128-bit intermediate.  a < c keeps the quotient below b.
func mulDecDiv(a, b, c int64) int64 {
	hi, lo := bits.Mul64(uint64(a), uint64(b))
	lo, borrow := bits.Sub64(lo, 1, 0)
	hi -= borrow
	q, _ := bits.Div64(hi, lo, uint64(c))
	return int64(q)
}

func absUint64(x int64) uint64 {
	if x < 0 {
		return uint64(-x)
	}
	return uint64(x)
}
