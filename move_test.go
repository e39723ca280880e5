package nitree

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPlanMoveOceania(t *testing.T) {
	plan, err := PlanMove(oceania, &pacific, nil, SingleRoot)
	require.Nil(t, err)
	require.Equal(t, Interval{oceania, frac(1, 1)}, plan.Old)
	require.Equal(t, Interval{frac(2, 5), frac(1, 2)}, plan.New)
	require.Equal(t, Matrix{PP: 0, PQ: 1, QP: -1, QQ: 3}, plan.Matrix)
	require.False(t, plan.Noop())

	require.True(t, plan.Matrix.Unimodular())

	// Both ends of the old interval land on the new one.
	l, err := plan.Matrix.Apply(plan.Old.Left)
	require.Nil(t, err)
	require.Equal(t, plan.New.Left, l)
	r, err := plan.Matrix.Apply(plan.Old.Right)
	require.Nil(t, err)
	require.Equal(t, plan.New.Right, r)

	moved, err := ApplyMoveTransform(plan.Matrix, []Fraction{australia, newZealand})
	require.Nil(t, err)
	require.Equal(t, []Fraction{frac(3, 7), frac(5, 12)}, moved)

	for _, m := range moved {
		require.True(t, plan.New.IsDescendant(m))
		chain, err := AncestorChain(m)
		require.Nil(t, err)
		require.Equal(t, frac(2, 5), chain[0])
	}
}

func TestPlanMoveAfterSiblings(t *testing.T) {
	last := frac(2, 5)
	plan, err := PlanMove(newZealand, &pacific, &last, SingleRoot)
	require.Nil(t, err)
	require.Equal(t, frac(3, 8), plan.New.Left)

	require.True(t, plan.Matrix.Unimodular())
}

func TestPlanMoveToTop(t *testing.T) {
	last := frac(1, 3)
	plan, err := PlanMove(australia, nil, &last, VirtualRootMode)
	require.Nil(t, err)
	require.Equal(t, Interval{frac(1, 4), frac(1, 3)}, plan.New)
	require.Equal(t, Matrix{PP: 2, PQ: -1, QP: 5, QQ: -2}, plan.Matrix)

	moved, err := ApplyMoveTransform(plan.Matrix, []Fraction{frac(3, 4), frac(5, 7)})
	require.Nil(t, err)
	for _, m := range moved {
		require.True(t, plan.New.IsDescendant(m), "%v", m)
	}
	require.Equal(t, frac(2, 7), moved[0])

	plan, err = PlanMove(australia, nil, nil, SingleRoot)
	require.Nil(t, err)
	require.Equal(t, VirtualRoot, plan.New)
}

func TestPlanMoveNoop(t *testing.T) {
	last := oceania
	plan, err := PlanMove(pacific, &earth, &last, SingleRoot)
	require.Nil(t, err)
	require.True(t, plan.Noop())
	require.True(t, plan.Matrix.IsIdentity())

	f, err := Identity.Apply(frac(5, 12))
	require.Nil(t, err)
	require.Equal(t, frac(5, 12), f)
}

func TestMatrixApplyErrors(t *testing.T) {
	flip := Matrix{PP: 1, QQ: -1}
	_, err := flip.Apply(oceania)
	require.ErrorIs(t, err, ErrInvariant)

	huge := Matrix{PP: math.MaxInt64, QQ: math.MaxInt64}
	_, err = huge.Apply(frac(2, 3))
	require.ErrorIs(t, err, ErrLimitExceeded)

	// A failure anywhere in the batch yields no output.
	out, err := ApplyMoveTransform(flip, []Fraction{earth, oceania})
	require.Error(t, err)
	require.Nil(t, out)
}

func TestNewMoveMatrix(t *testing.T) {
	m, err := NewMoveMatrix(Interval{oceania, frac(1, 1)}, Interval{frac(2, 5), frac(1, 2)})
	require.Nil(t, err)
	require.Equal(t, "[[0 1] [-1 3]]", m.String())
	require.False(t, m.IsIdentity())
	require.True(t, Identity.Unimodular())

	// Products beyond int64 still compare exactly.
	wide := Matrix{PP: math.MaxInt64, PQ: math.MaxInt64 - 1, QP: 1, QQ: 1}
	require.True(t, wide.Unimodular())
	require.False(t, Matrix{PP: math.MaxInt64, PQ: math.MaxInt64, QP: math.MaxInt64, QQ: math.MaxInt64}.Unimodular())
	require.False(t, Matrix{PP: -1, QQ: -1, PQ: 1, QP: -2}.Unimodular())

	// Endpoints that are not Stern-Brocot neighbours give no unimodular map.
	_, err = NewMoveMatrix(Interval{oceania, frac(1, 1)}, Interval{frac(1, 3), frac(1, 1)})
	require.ErrorIs(t, err, ErrInvariant)
}
