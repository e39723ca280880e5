package nitree

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRootMode(t *testing.T) {
	for _, m := range []RootMode{SingleRoot, VirtualRootMode} {
		parsed, err := ParseRootMode(m.String())
		require.Nil(t, err)
		require.Equal(t, m, parsed)
	}

	m, err := ParseRootMode("")
	require.Nil(t, err)
	require.Equal(t, SingleRoot, m)

	_, err = ParseRootMode("forest")
	require.Error(t, err)
	require.Equal(t, "RootMode(7)", RootMode(7).String())
}

func TestAllocateChild(t *testing.T) {
	first, err := AllocateChild(earth, nil)
	require.Nil(t, err)
	require.Equal(t, oceania, first)

	second, err := AllocateChild(earth, &first)
	require.Nil(t, err)
	require.Equal(t, pacific, second)

	third, err := AllocateChild(earth, &second)
	require.Nil(t, err)
	require.Equal(t, frac(1, 4), third)

	a, err := AllocateChild(oceania, nil)
	require.Nil(t, err)
	require.Equal(t, australia, a)

	nz, err := AllocateChild(oceania, &a)
	require.Nil(t, err)
	require.Equal(t, newZealand, nz)

	// Each new sibling lies left of the previous one, inside the parent.
	parent, err := IntervalOf(oceania)
	require.Nil(t, err)
	prev := oceania
	var last *Fraction
	for i := 0; i < 50; i++ {
		c, err := AllocateChild(oceania, last)
		require.Nil(t, err)
		require.True(t, parent.IsDescendant(c))
		if last != nil {
			require.True(t, c.Less(*last))
		}
		_, err = NewFraction(c.Num, c.Den)
		require.Nil(t, err)
		prev = c
		last = &prev
	}

	_, err = AllocateChild(frac(2, 4), nil)
	require.ErrorIs(t, err, ErrInvariant)
}

func TestAllocateRoot(t *testing.T) {
	r, err := AllocateRoot(SingleRoot, nil)
	require.Nil(t, err)
	require.Equal(t, earth, r)

	var last *Fraction
	for _, want := range []Fraction{frac(1, 2), frac(1, 3), frac(1, 4), frac(1, 5)} {
		r, err := AllocateRoot(VirtualRootMode, last)
		require.Nil(t, err)
		require.Equal(t, want, r)
		last = &r
	}

	_, err = AllocateRoot(RootMode(9), nil)
	require.Error(t, err)
}

func TestAllocateDeepLimit(t *testing.T) {
	// Descend through second children, the fastest way to grow the
	// denominators, until the bounds no longer fit.
	parent := earth
	depth := 0
	for ; depth < 200; depth++ {
		first, err := AllocateChild(parent, nil)
		if err != nil {
			require.ErrorIs(t, err, ErrLimitExceeded)
			break
		}
		second, err := AllocateChild(parent, &first)
		if err != nil {
			require.ErrorIs(t, err, ErrLimitExceeded)
			break
		}

		chain, err := AncestorChain(second)
		require.Nil(t, err)
		require.Len(t, chain, depth+1)
		require.Equal(t, parent, chain[0])

		parent = second
	}

	require.Greater(t, depth, 22)
	require.Less(t, depth, 200)
}
