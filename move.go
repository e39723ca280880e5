package nitree

import (
	"fmt"
	"math/bits"
)

// A Matrix is the integer linear-fractional map
//
//	p/q -> (PP*p + PQ*q) / (QP*p + QQ*q)
//
// that carries a node's old interval onto its new one.  The same map sends
// every descendant of the old interval to the matching position below the
// new one, so a move rewrites the whole subtree with one pass.
type Matrix struct {
	PP int64 `json:"pp"`
	PQ int64 `json:"pq"`
	QP int64 `json:"qp"`
	QQ int64 `json:"qq"`
}

// Identity leaves every bound unchanged.
var Identity = Matrix{PP: 1, QQ: 1}

// NewMoveMatrix builds the transform with T(old.Left) = new.Left and
// T(old.Right) = new.Right.
func NewMoveMatrix(old, new Interval) (Matrix, error) {
	lp, lq := old.Left.Num, old.Left.Den
	rp, rq := old.Right.Num, old.Right.Den
	nlp, nlq := new.Left.Num, new.Left.Den
	nrp, nrq := new.Right.Num, new.Right.Den

	var m Matrix
	var err error
	if m.PP, err = mulSub(lq, nrp, rq, nlp); err != nil {
		return Matrix{}, err
	}
	if m.PQ, err = mulSub(rp, nlp, lp, nrp); err != nil {
		return Matrix{}, err
	}
	if m.QP, err = mulSub(lq, nrq, rq, nlq); err != nil {
		return Matrix{}, err
	}
	if m.QQ, err = mulSub(rp, nlq, lp, nrq); err != nil {
		return Matrix{}, err
	}

	// Sibling order and lowest terms survive only a unimodular map.
	if !m.Unimodular() {
		return Matrix{}, fmt.Errorf("%w: move %v -> %v gives %v", ErrInvariant, old, new, m)
	}
	return m, nil
}

// Apply maps f through m.  The result is not reduced: m is unimodular, so
// lowest terms are preserved.  f may be a left or a right bound; a result
// outside [0, 1] is reported as ErrInvariant.
func (m Matrix) Apply(f Fraction) (Fraction, error) {
	num, err := mulAdd(m.PP, f.Num, m.PQ, f.Den)
	if err != nil {
		return Fraction{}, err
	}
	den, err := mulAdd(m.QP, f.Num, m.QQ, f.Den)
	if err != nil {
		return Fraction{}, err
	}

	if den <= 0 || num < 0 || num > den {
		return Fraction{}, fmt.Errorf("%w: transform of %v by %v gives %d/%d", ErrInvariant, f, m, num, den)
	}
	return Fraction{num, den}, nil
}

// Unimodular reports whether PP*QQ - PQ*QP is exactly 1, which holds for
// every matrix that maps one Stern-Brocot interval onto another.  The
// products are compared in 128 bits.
func (m Matrix) Unimodular() bool {
	lh, ll := mul128(m.PP, m.QQ)
	rh, rl := mul128(m.PQ, m.QP)
	rl, carry := bits.Add64(rl, 1, 0)
	return lh == rh+carry && ll == rl
}

func (m Matrix) IsIdentity() bool {
	return m == Identity
}

func (m Matrix) String() string {
	return fmt.Sprintf("[[%d %d] [%d %d]]", m.PP, m.PQ, m.QP, m.QQ)
}

// A MovePlan describes the re-parenting of one node: its interval before and
// after, and the matrix to apply to each of its descendants.
type MovePlan struct {
	Old    Interval
	New    Interval
	Matrix Matrix
}

// Noop reports whether the node keeps its interval, so that nothing below
// it needs rewriting.
func (p MovePlan) Noop() bool {
	return p.Matrix.IsIdentity()
}

// PlanMove computes the new interval of a node currently at left when it is
// appended under the node whose left bound is parent (nil for a move to the
// top level).  last is the newest child already under the destination, as
// for AllocateChild and AllocateRoot.  The caller must already have checked
// for cycles with IsAncestorOrSelf.
func PlanMove(left Fraction, parent *Fraction, last *Fraction, mode RootMode) (MovePlan, error) {
	old, err := IntervalOf(left)
	if err != nil {
		return MovePlan{}, err
	}

	var newLeft Fraction
	if parent == nil {
		newLeft, err = AllocateRoot(mode, last)
	} else {
		newLeft, err = AllocateChild(*parent, last)
	}
	if err != nil {
		return MovePlan{}, err
	}

	next, err := IntervalOf(newLeft)
	if err != nil {
		return MovePlan{}, err
	}

	if old == next {
		return MovePlan{Old: old, New: next, Matrix: Identity}, nil
	}

	m, err := NewMoveMatrix(old, next)
	if err != nil {
		return MovePlan{}, err
	}
	return MovePlan{Old: old, New: next, Matrix: m}, nil
}

// ApplyMoveTransform rewrites a batch of descendant bounds with m.  It either
// transforms every input or returns the first failure and no output.
func ApplyMoveTransform(m Matrix, coords []Fraction) ([]Fraction, error) {
	out := make([]Fraction, len(coords))
	for i, c := range coords {
		t, err := m.Apply(c)
		if err != nil {
			return nil, err
		}
		out[i] = t
	}
	return out, nil
}
