package nitree

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// randomTree draws a parent index for each node (-1 for a root), each
// parent preceding its children, and allocates the nodes in order.
func randomTree(t *rapid.T, mode RootMode) ([]int, []Fraction) {
	n := rapid.IntRange(1, 12).Draw(t, "nodes")
	parents := []int{-1}
	for i := 1; i < n; i++ {
		lo := 0
		if mode == VirtualRootMode {
			lo = -1
		}
		parents = append(parents, rapid.IntRange(lo, i-1).Draw(t, "parent"))
	}
	return parents, allocateParents(t, mode, parents)
}

func allocateParents(t require.TestingT, mode RootMode, parents []int) []Fraction {
	lefts := make([]Fraction, len(parents))
	last := map[int]*Fraction{}
	for i, p := range parents {
		var err error
		if p < 0 {
			lefts[i], err = AllocateRoot(mode, last[-1])
		} else {
			lefts[i], err = AllocateChild(lefts[p], last[p])
		}
		require.Nil(t, err)
		last[p] = &lefts[i]
	}
	return lefts
}

func isAncestorIndex(parents []int, a, b int) bool {
	for b >= 0 {
		if a == b {
			return true
		}
		b = parents[b]
	}
	return false
}

func TestPropertyContainment(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		mode := RootMode(rapid.IntRange(0, 1).Draw(t, "mode"))
		parents, lefts := randomTree(t, mode)

		for i := range lefts {
			_, err := NewFraction(lefts[i].Num, lefts[i].Den)
			require.Nil(t, err)

			for j := range lefts {
				related, err := IsAncestorOrSelf(lefts[i], lefts[j])
				require.Nil(t, err)
				require.Equal(t, isAncestorIndex(parents, i, j), related, "%d above %d", i, j)
				if i != j {
					require.NotEqual(t, lefts[i], lefts[j])
				}
			}
		}
	})
}

func TestPropertyAncestorChain(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		mode := RootMode(rapid.IntRange(0, 1).Draw(t, "mode"))
		parents, lefts := randomTree(t, mode)

		for i := range lefts {
			var want []Fraction
			for p := parents[i]; p >= 0; p = parents[p] {
				want = append(want, lefts[p])
			}
			if mode == VirtualRootMode {
				want = append(want, zeroBound)
			}

			chain, err := AncestorChain(lefts[i])
			require.Nil(t, err)
			if len(want) == 0 {
				require.Empty(t, chain)
			} else {
				require.Equal(t, want, chain)
			}
		}
	})
}

func TestPropertyRebuild(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		mode := RootMode(rapid.IntRange(0, 1).Draw(t, "mode"))
		parents, lefts := randomTree(t, mode)

		links := make([]Link, len(parents))
		for i, p := range parents {
			links[i] = Link{ID: NodeID(i + 1)}
			if p >= 0 {
				links[i].Parent = id(NodeID(p + 1))
			}
		}

		plan, err := RebuildPlan(links, mode)
		require.Nil(t, err)
		got := planByID(plan)
		for i := range lefts {
			require.Equal(t, lefts[i], got[NodeID(i+1)])
		}
	})
}

// After a move every node's bound still points at its parent's bound and
// containment follows the new parent links.
func TestPropertyMove(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		mode := RootMode(rapid.IntRange(0, 1).Draw(t, "mode"))
		parents, lefts := randomTree(t, mode)
		if len(parents) < 2 {
			return
		}

		node := rapid.IntRange(1, len(parents)-1).Draw(t, "node")
		var targets []int
		for i := range parents {
			if !isAncestorIndex(parents, node, i) && parents[node] != i {
				targets = append(targets, i)
			}
		}
		if mode == VirtualRootMode && parents[node] >= 0 {
			targets = append(targets, -1)
		}
		if len(targets) == 0 {
			return
		}
		target := rapid.SampledFrom(targets).Draw(t, "target")

		var parentLeft, last *Fraction
		if target >= 0 {
			parentLeft = &lefts[target]
		}
		for i, p := range parents {
			if p == target && (last == nil || lefts[i].Den > last.Den) {
				last = &lefts[i]
			}
		}

		plan, err := PlanMove(lefts[node], parentLeft, last, mode)
		if errors.Is(err, ErrLimitExceeded) {
			return
		}
		require.Nil(t, err)

		moved := append([]Fraction{}, lefts...)
		for i := range lefts {
			if i == node || !isAncestorIndex(parents, node, i) {
				continue
			}
			require.True(t, plan.Old.IsDescendant(lefts[i]))
			moved[i], err = plan.Matrix.Apply(lefts[i])
			if errors.Is(err, ErrLimitExceeded) {
				return
			}
			require.Nil(t, err)
		}
		moved[node] = plan.New.Left

		reparented := append([]int{}, parents...)
		reparented[node] = target

		for i := range moved {
			parent, ok, err := ParentBound(moved[i])
			require.Nil(t, err)
			switch {
			case reparented[i] >= 0:
				require.True(t, ok)
				require.Equal(t, moved[reparented[i]], parent, "node %d", i)
			case mode == VirtualRootMode:
				require.True(t, ok)
				require.Equal(t, zeroBound, parent, "node %d", i)
			default:
				require.False(t, ok, "node %d", i)
			}

			for j := range moved {
				related, err := IsAncestorOrSelf(moved[i], moved[j])
				require.Nil(t, err)
				require.Equal(t, isAncestorIndex(reparented, i, j), related, "%d above %d", i, j)
			}
		}
	})
}
