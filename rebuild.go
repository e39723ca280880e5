package nitree

import (
	"errors"
	"fmt"
	"sort"

	"github.com/hashicorp/go-multierror"
)

// A Link is the part of a node a rebuild needs: its identity, its parent
// pointer and its current left bound, which only decides sibling order.
type Link struct {
	ID     NodeID
	Parent *NodeID
	Scope  string
	Left   Fraction
}

// An Assignment is the left bound a rebuild gives to one node.
type Assignment struct {
	ID    NodeID
	Scope string
	Left  Fraction
}

// siblingOrder keeps siblings in their current order: allocated siblings by
// increasing denominator, then nodes without coordinates by ID.
func siblingOrder(s []Link) {
	sort.SliceStable(s, func(i, j int) bool {
		a, b := s[i], s[j]
		switch {
		case a.Left.Den == 0 && b.Left.Den == 0:
			return a.ID < b.ID
		case a.Left.Den == 0:
			return false
		case b.Left.Den == 0:
			return true
		case a.Left.Den != b.Left.Den:
			return a.Left.Den < b.Left.Den
		}
		return a.ID < b.ID
	})
}

// RebuildPlan recomputes the left bound of every node from the parent links
// alone.  Roots are placed first, scope by scope, and then each level of
// children, so every parent is assigned before its children.
//
// The plan is best-effort: a node that cannot be placed (unknown parent,
// parent in another scope, parent cycle, a second root in SingleRoot mode,
// or a bound beyond int64) is reported in the returned error together with
// its subtree, and every other node is still assigned.
func RebuildPlan(links []Link, mode RootMode) ([]Assignment, error) {
	if err := validateEnum(mode, SingleRoot, VirtualRootMode); err != nil {
		return nil, err
	}

	var failures *multierror.Error

	byID := make(map[NodeID]Link, len(links))
	for _, l := range links {
		byID[l.ID] = l
	}

	roots := map[string][]Link{}
	children := map[NodeID][]Link{}
	for _, l := range links {
		if l.Parent == nil {
			roots[l.Scope] = append(roots[l.Scope], l)
			continue
		}

		p, ok := byID[*l.Parent]
		switch {
		case !ok:
			failures = multierror.Append(failures,
				fmt.Errorf("node %d: parent %d: %w", l.ID, *l.Parent, ErrNotFound))
		case p.Scope != l.Scope:
			failures = multierror.Append(failures,
				fmt.Errorf("node %d: parent %d: %w", l.ID, *l.Parent, ErrScopeMismatch))
		default:
			children[p.ID] = append(children[p.ID], l)
		}
	}

	scopes := make([]string, 0, len(roots))
	for s := range roots {
		scopes = append(scopes, s)
	}
	sort.Strings(scopes)

	type entry struct {
		id   NodeID
		left Fraction
	}
	queue := []entry{}
	plan := make([]Assignment, 0, len(links))
	placed := make(map[NodeID]bool, len(links))

	place := func(l Link, left Fraction) {
		plan = append(plan, Assignment{ID: l.ID, Scope: l.Scope, Left: left})
		placed[l.ID] = true
		queue = append(queue, entry{l.ID, left})
	}

	for _, s := range scopes {
		rs := roots[s]
		siblingOrder(rs)

		var last *Fraction
		for i, r := range rs {
			if mode == SingleRoot && i > 0 {
				failures = multierror.Append(failures,
					fmt.Errorf("node %d: scope %q: %w", r.ID, s, ErrScopeOccupied))
				continue
			}

			left, err := AllocateRoot(mode, last)
			if err != nil {
				failures = multierror.Append(failures, fmt.Errorf("node %d: %w", r.ID, err))
				continue
			}
			place(r, left)
			last = &left
		}
	}

	for len(queue) > 0 {
		e := queue[0]
		queue = queue[1:]

		cs := children[e.id]
		siblingOrder(cs)

		var last *Fraction
		for _, c := range cs {
			left, err := AllocateChild(e.left, last)
			if err != nil {
				failures = multierror.Append(failures, fmt.Errorf("node %d: %w", c.ID, err))
				continue
			}
			place(c, left)
			last = &left
		}
	}

	// Anything left over hangs off a parent cycle or off a node that failed.
	for _, l := range links {
		if placed[l.ID] || l.Parent == nil {
			continue
		}
		if _, ok := byID[*l.Parent]; !ok {
			continue
		}
		if byID[*l.Parent].Scope != l.Scope {
			continue
		}
		failures = multierror.Append(failures,
			fmt.Errorf("node %d: not reachable from a root: %w", l.ID, unreachableCause(l, byID)))
	}

	return plan, failures.ErrorOrNil()
}

var errAncestorSkipped = errors.New("an ancestor was not placed")

// unreachableCause tells a parent cycle apart from a subtree whose ancestor
// could not be placed.
func unreachableCause(l Link, byID map[NodeID]Link) error {
	seen := map[NodeID]bool{l.ID: true}
	cur := l
	for cur.Parent != nil {
		next, ok := byID[*cur.Parent]
		if !ok {
			return errAncestorSkipped
		}
		if seen[next.ID] {
			return ErrCycle
		}
		seen[next.ID] = true
		cur = next
	}
	return errAncestorSkipped
}
