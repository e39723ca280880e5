package nitree

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Config controls a Tree.  Which derived columns are kept is a property of
// the Store, not of the Tree.
type Config struct {
	RootMode RootMode

	// LockTimeout bounds every lock acquisition.  Zero waits as long as the
	// caller's context allows.
	LockTimeout time.Duration

	// VerifyParallelism caps the number of nodes Verify checks at once.
	VerifyParallelism int

	Logger zerolog.Logger

	// Locker overrides the in-process SemaphoreLocker, for example to share
	// one locker between several Trees over the same store.
	Locker Locker
}

func DefaultConfig() Config {
	return Config{
		RootMode:          SingleRoot,
		LockTimeout:       5 * time.Second,
		VerifyParallelism: 8,
		Logger:            zerolog.Nop(),
	}
}

// A Tree maintains nested-interval coordinates for the nodes of a Store.
// Every write goes through a Tree, which allocates bounds, takes the locks
// the write needs and runs it in a single store transaction.
type Tree struct {
	store       Store
	mode        RootMode
	locker      Locker
	parallelism int
	log         zerolog.Logger
}

func New(store Store, cfg Config) (*Tree, error) {
	if err := validateEnum(cfg.RootMode, SingleRoot, VirtualRootMode); err != nil {
		return nil, fmt.Errorf("nitree.tree: %v", err)
	}

	locker := cfg.Locker
	if locker == nil {
		locker = NewLocker(cfg.LockTimeout)
	}

	parallelism := cfg.VerifyParallelism
	if parallelism <= 0 {
		parallelism = 1
	}

	return &Tree{
		store:       store,
		mode:        cfg.RootMode,
		locker:      locker,
		parallelism: parallelism,
		log: cfg.Logger.With().
			Str("component", "nitree").
			Str("root_mode", cfg.RootMode.String()).
			Logger(),
	}, nil
}

func (t *Tree) Mode() RootMode {
	return t.mode
}

func (t *Tree) opLogger(op string) zerolog.Logger {
	return t.log.With().Str("op", op).Str("op_id", uuid.NewString()).Logger()
}

///
/// Writes
///

// Insert appends a new node under parent, or a new root of scope when parent
// is nil.  The new node is placed after all of its existing siblings.
func (t *Tree) Insert(ctx context.Context, scope string, parent *NodeID) (n Node, err error) {
	defer observe("insert", time.Now(), &err)
	log := t.opLogger("insert")

	unlockShared, err := t.locker.LockShared(ctx)
	if err != nil {
		return Node{}, err
	}
	defer unlockShared()

	slot := NodeID(0)
	if parent != nil {
		slot = *parent
	}
	unlockSlot, err := t.locker.LockNode(ctx, scope, slot)
	if err != nil {
		return Node{}, err
	}
	defer unlockSlot()

	err = t.store.Update(ctx, func(tx Txn) error {
		left, err := t.allocate(tx, scope, parent)
		if err != nil {
			return err
		}

		n = Node{Parent: dupID(parent), Scope: scope}
		if err := n.SetLeft(left); err != nil {
			return err
		}
		return tx.Insert(&n)
	})
	if err != nil {
		return Node{}, fmt.Errorf("nitree.tree: insert into scope %q: %w", scope, err)
	}

	observeDenominator(n.Left)
	log.Debug().Int64("node", int64(n.ID)).Str("left", n.Left.String()).Msg("inserted node")
	return n, nil
}

// allocate picks the next free slot under parent, or among the roots of
// scope when parent is nil.
func (t *Tree) allocate(tx Txn, scope string, parent *NodeID) (Fraction, error) {
	last, ok, err := tx.LastChild(scope, parent)
	if err != nil {
		return Fraction{}, err
	}
	var lastLeft *Fraction
	if ok {
		lastLeft = &last.Left
	}

	if parent == nil {
		if t.mode == SingleRoot && ok {
			return Fraction{}, fmt.Errorf("%w: root %d", ErrScopeOccupied, last.ID)
		}
		return AllocateRoot(t.mode, lastLeft)
	}

	p, err := tx.Get(*parent)
	if err != nil {
		return Fraction{}, err
	}
	if p.Scope != scope {
		return Fraction{}, fmt.Errorf("%w: parent %d is in scope %q", ErrScopeMismatch, p.ID, p.Scope)
	}
	return AllocateChild(p.Left, lastLeft)
}

// Move re-parents id under newParent (nil makes it a root) together with its
// whole subtree.  The node becomes the last child of its new parent.  Moving
// a node under itself or one of its descendants fails with ErrCycle, and
// moving it to its current parent changes nothing.
func (t *Tree) Move(ctx context.Context, id NodeID, newParent *NodeID) (n Node, err error) {
	defer observe("move", time.Now(), &err)
	log := t.opLogger("move")

	unlock, err := t.locker.LockCollection(ctx)
	if err != nil {
		return Node{}, err
	}
	defer unlock()

	var plan MovePlan
	var rewritten int
	err = t.store.Update(ctx, func(tx Txn) error {
		var err error
		n, err = tx.Get(id)
		if err != nil {
			return err
		}
		if sameParent(n.Parent, newParent) {
			plan = MovePlan{Old: n.Interval(), New: n.Interval(), Matrix: Identity}
			return nil
		}

		var parentLeft *Fraction
		if newParent != nil {
			p, err := tx.Get(*newParent)
			if err != nil {
				return err
			}
			if p.Scope != n.Scope {
				return fmt.Errorf("%w: parent %d is in scope %q", ErrScopeMismatch, p.ID, p.Scope)
			}
			cycle, err := IsAncestorOrSelf(n.Left, p.Left)
			if err != nil {
				return err
			}
			if cycle {
				return fmt.Errorf("%w: %d is %d or one of its descendants", ErrCycle, p.ID, n.ID)
			}
			parentLeft = &p.Left
		}

		last, ok, err := tx.LastChild(n.Scope, newParent)
		if err != nil {
			return err
		}
		var lastLeft *Fraction
		if ok {
			if newParent == nil && t.mode == SingleRoot {
				return fmt.Errorf("%w: root %d", ErrScopeOccupied, last.ID)
			}
			lastLeft = &last.Left
		}

		plan, err = PlanMove(n.Left, parentLeft, lastLeft, t.mode)
		if err != nil {
			return err
		}

		if !plan.Noop() {
			rewritten, err = tx.Rewrite(n.Scope, plan.Old, plan.Matrix)
			if err != nil {
				return err
			}
		}

		n.Parent = dupID(newParent)
		if err := n.SetLeft(plan.New.Left); err != nil {
			return err
		}
		return tx.Put(n)
	})
	if err != nil {
		return Node{}, fmt.Errorf("nitree.tree: move %d: %w", id, err)
	}

	moveRewriteSize.Observe(float64(rewritten))
	observeDenominator(n.Left)
	log.Info().
		Int64("node", int64(id)).
		Str("from", plan.Old.String()).
		Str("to", plan.New.String()).
		Str("matrix", plan.Matrix.String()).
		Int("descendants", rewritten).
		Msg("moved subtree")
	return n, nil
}

// Delete removes a node without children.
func (t *Tree) Delete(ctx context.Context, id NodeID) (err error) {
	defer observe("delete", time.Now(), &err)
	log := t.opLogger("delete")

	n, err := t.Get(ctx, id)
	if err != nil {
		return err
	}

	unlockShared, err := t.locker.LockShared(ctx)
	if err != nil {
		return err
	}
	defer unlockShared()

	slot := NodeID(0)
	if n.Parent != nil {
		slot = *n.Parent
	}
	unlockSlot, err := t.locker.LockNode(ctx, n.Scope, slot)
	if err != nil {
		return err
	}
	defer unlockSlot()

	// Parent slot first, then the node's own slot, so concurrent deletes
	// along one path always lock top-down.
	unlockSelf, err := t.locker.LockNode(ctx, n.Scope, id)
	if err != nil {
		return err
	}
	defer unlockSelf()

	err = t.store.Update(ctx, func(tx Txn) error {
		cur, err := tx.Get(id)
		if err != nil {
			return err
		}
		if !sameParent(cur.Parent, n.Parent) {
			return fmt.Errorf("%w: node %d was moved", ErrConflict, id)
		}

		children, err := tx.Children(cur.Scope, &id)
		if err != nil {
			return err
		}
		if len(children) > 0 {
			return fmt.Errorf("%w: %d children", ErrHasChildren, len(children))
		}
		return tx.Delete(id)
	})
	if err != nil {
		return fmt.Errorf("nitree.tree: delete %d: %w", id, err)
	}

	log.Debug().Int64("node", int64(id)).Msg("deleted node")
	return nil
}

// A RebuildReport summarizes a Rebuild.  Before and After fingerprint the
// parent links and left bounds of the whole collection, so equal values mean
// the rebuild changed nothing.
type RebuildReport struct {
	Assigned int
	Failures error
	Before   Fingerprint
	After    Fingerprint
}

func (r RebuildReport) Changed() bool {
	return r.Before != r.After
}

// Rebuild recomputes every node's coordinates from parent links alone, for
// example after rows were imported or edited outside of a Tree.  Nodes that
// cannot be placed keep cleared coordinates and are listed in the report;
// they do not stop the rest of the rebuild.
func (t *Tree) Rebuild(ctx context.Context) (report RebuildReport, err error) {
	defer observe("rebuild", time.Now(), &err)
	log := t.opLogger("rebuild")

	unlock, err := t.locker.LockCollection(ctx)
	if err != nil {
		return RebuildReport{}, err
	}
	defer unlock()

	err = t.store.Update(ctx, func(tx Txn) error {
		nodes, err := tx.All()
		if err != nil {
			return err
		}
		report = RebuildReport{}
		if report.Before, err = FingerprintOf(nodes); err != nil {
			return err
		}

		plan, failures := RebuildPlan(Links(nodes), t.mode)
		report.Failures = failures

		if err := tx.ClearCoordinates(); err != nil {
			return err
		}

		index := make(map[NodeID]int, len(nodes))
		for i := range nodes {
			index[nodes[i].ID] = i
			nodes[i].Left = Fraction{}
		}

		for _, a := range plan {
			n := &nodes[index[a.ID]]
			if err := n.SetLeft(a.Left); err != nil {
				return err
			}
			if err := tx.Put(*n); err != nil {
				return err
			}
			observeDenominator(a.Left)
		}
		report.Assigned = len(plan)

		report.After, err = FingerprintOf(nodes)
		return err
	})
	if err != nil {
		return RebuildReport{}, fmt.Errorf("nitree.tree: rebuild: %w", err)
	}

	if merr, ok := report.Failures.(*multierror.Error); ok {
		rebuildFailures.Add(float64(len(merr.Errors)))
		for _, e := range merr.Errors {
			log.Warn().Err(e).Msg("node not placed")
		}
	}
	log.Info().
		Int("assigned", report.Assigned).
		Bool("changed", report.Changed()).
		Str("fingerprint", report.After.String()).
		Msg("rebuilt tree")
	return report, nil
}

///
/// Reads
///

func (t *Tree) Get(ctx context.Context, id NodeID) (n Node, err error) {
	err = t.store.View(ctx, func(tx Txn) error {
		n, err = tx.Get(id)
		return err
	})
	return n, err
}

// Children returns the children of id in insertion order.
func (t *Tree) Children(ctx context.Context, id NodeID) (nodes []Node, err error) {
	err = t.store.View(ctx, func(tx Txn) error {
		n, err := tx.Get(id)
		if err != nil {
			return err
		}
		nodes, err = tx.Children(n.Scope, &id)
		return err
	})
	return nodes, err
}

// Roots returns the roots of scope in insertion order.
func (t *Tree) Roots(ctx context.Context, scope string) (nodes []Node, err error) {
	err = t.store.View(ctx, func(tx Txn) error {
		nodes, err = tx.Children(scope, nil)
		return err
	})
	return nodes, err
}

// Ancestors returns the ancestors of id from its parent up to its root.  The
// chain is computed from the node's left bound alone and then resolved
// against the store by exact bounds.
func (t *Tree) Ancestors(ctx context.Context, id NodeID) (nodes []Node, err error) {
	defer observe("ancestors", time.Now(), &err)

	err = t.store.View(ctx, func(tx Txn) error {
		n, err := tx.Get(id)
		if err != nil {
			return err
		}
		chain, err := AncestorChain(n.Left)
		if err != nil {
			return err
		}

		nodes = make([]Node, 0, len(chain))
		for _, f := range chain {
			if f.IsZero() && t.mode == VirtualRootMode {
				break
			}
			a, ok, err := tx.FindByBounds(n.Scope, f)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("%w: ancestor %v of node %d is not stored", ErrInvariant, f, id)
			}
			nodes = append(nodes, a)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("nitree.tree: ancestors of %d: %w", id, err)
	}
	return nodes, nil
}

// Descendants returns every node below id, in preorder.
func (t *Tree) Descendants(ctx context.Context, id NodeID) (nodes []Node, err error) {
	defer observe("descendants", time.Now(), &err)

	err = t.store.View(ctx, func(tx Txn) error {
		n, err := tx.Get(id)
		if err != nil {
			return err
		}
		nodes, err = tx.Descendants(n.Scope, n.Interval())
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("nitree.tree: descendants of %d: %w", id, err)
	}
	SortPreorder(nodes)
	return nodes, nil
}

// Depth is the number of edges between id and its root.
func (t *Tree) Depth(ctx context.Context, id NodeID) (int, error) {
	n, err := t.Get(ctx, id)
	if err != nil {
		return 0, err
	}

	d, err := Depth(n.Left)
	if err != nil {
		return 0, err
	}
	if t.mode == VirtualRootMode {
		d -= 1
	}
	return d, nil
}

// IsAncestorOrSelf reports whether a is b or one of b's ancestors.  Nodes of
// different scopes are never related.
func (t *Tree) IsAncestorOrSelf(ctx context.Context, a, b NodeID) (related bool, err error) {
	err = t.store.View(ctx, func(tx Txn) error {
		na, err := tx.Get(a)
		if err != nil {
			return err
		}
		nb, err := tx.Get(b)
		if err != nil {
			return err
		}
		if na.Scope != nb.Scope {
			return nil
		}
		related, err = IsAncestorOrSelf(na.Left, nb.Left)
		return err
	})
	return related, err
}

// Preorder returns every node of scope in depth-first order, parents before
// children and siblings in insertion order.
func (t *Tree) Preorder(ctx context.Context, scope string) (nodes []Node, err error) {
	defer observe("preorder", time.Now(), &err)

	err = t.store.View(ctx, func(tx Txn) error {
		roots, err := tx.Children(scope, nil)
		if err != nil {
			return err
		}
		below, err := tx.Descendants(scope, VirtualRoot)
		if err != nil {
			return err
		}

		seen := make(map[NodeID]bool, len(below))
		for _, n := range below {
			seen[n.ID] = true
		}
		nodes = below
		for _, r := range roots {
			if !seen[r.ID] {
				nodes = append(nodes, r)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("nitree.tree: preorder of scope %q: %w", scope, err)
	}
	SortPreorder(nodes)
	return nodes, nil
}

// SortPreorder orders nodes by decreasing right bound and then increasing
// left bound, which for nested intervals is depth-first order.
func SortPreorder(nodes []Node) {
	sort.SliceStable(nodes, func(i, j int) bool {
		if c := nodes[i].Right.Cmp(nodes[j].Right); c != 0 {
			return c > 0
		}
		return nodes[i].Left.Less(nodes[j].Left)
	})
}

// Snapshot encodes the whole collection as stored.
func (t *Tree) Snapshot(ctx context.Context) (data []byte, err error) {
	err = t.store.View(ctx, func(tx Txn) error {
		nodes, err := tx.All()
		if err != nil {
			return err
		}
		data, err = WriteSnapshot(nodes, t.store.Columns())
		return err
	})
	return data, err
}

// Fingerprint digests the parent links and left bounds of the collection.
func (t *Tree) Fingerprint(ctx context.Context) (fp Fingerprint, err error) {
	err = t.store.View(ctx, func(tx Txn) error {
		nodes, err := tx.All()
		if err != nil {
			return err
		}
		fp, err = FingerprintOf(nodes)
		return err
	})
	return fp, err
}

///
/// Verify
///

// Verify checks every stored node against the interval invariants: a valid
// left bound, cached columns that match it, a parent in the same scope whose
// interval is the immediate enclosing one, and no two nodes of a scope on
// the same bound.  All violations are reported together.
func (t *Tree) Verify(ctx context.Context) (err error) {
	defer observe("verify", time.Now(), &err)
	log := t.opLogger("verify")

	var nodes []Node
	err = t.store.View(ctx, func(tx Txn) error {
		var err error
		nodes, err = tx.All()
		return err
	})
	if err != nil {
		return fmt.Errorf("nitree.tree: verify: %w", err)
	}

	byID := make(map[NodeID]Node, len(nodes))
	for _, n := range nodes {
		byID[n.ID] = n
	}

	var mu sync.Mutex
	var problems *multierror.Error
	report := func(err error) {
		mu.Lock()
		defer mu.Unlock()
		problems = multierror.Append(problems, err)
	}

	type boundKey struct {
		scope string
		left  Fraction
	}
	taken := make(map[boundKey]NodeID, len(nodes))
	for _, n := range nodes {
		k := boundKey{n.Scope, n.Left}
		if other, ok := taken[k]; ok {
			report(fmt.Errorf("%w: nodes %d and %d share bound %v", ErrInvariant, other, n.ID, n.Left))
			continue
		}
		taken[k] = n.ID
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(t.parallelism)
	cols := t.store.Columns()
	for _, n := range nodes {
		n := n
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if err := t.verifyNode(n, byID, cols); err != nil {
				report(fmt.Errorf("node %d: %w", n.ID, err))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("nitree.tree: verify: %w", err)
	}

	if err := problems.ErrorOrNil(); err != nil {
		log.Warn().Int("problems", len(problems.Errors)).Int("nodes", len(nodes)).Msg("verify failed")
		return err
	}
	log.Debug().Int("nodes", len(nodes)).Msg("verified tree")
	return nil
}

func (t *Tree) verifyNode(n Node, byID map[NodeID]Node, cols Columns) error {
	if _, err := NewFraction(n.Left.Num, n.Left.Den); err != nil {
		return err
	}

	stored := n
	if err := n.SetLeft(n.Left); err != nil {
		return err
	}
	if cols.Right && stored.Right != n.Right {
		return fmt.Errorf("%w: cached right bound %v, derived %v", ErrInvariant, stored.Right, n.Right)
	}
	if cols.Floats && (stored.LeftFloat != n.LeftFloat || stored.RightFloat != n.RightFloat) {
		return fmt.Errorf("%w: cached floats [%g, %g) do not match %v",
			ErrInvariant, stored.LeftFloat, stored.RightFloat, n.Interval())
	}

	expected, hasParent, err := ParentBound(n.Left)
	if err != nil {
		return err
	}

	if n.Parent == nil {
		switch t.mode {
		case SingleRoot:
			if !n.Left.IsZero() {
				return fmt.Errorf("%w: root at %v, want 0/1", ErrInvariant, n.Left)
			}
		case VirtualRootMode:
			if !hasParent || !expected.IsZero() {
				return fmt.Errorf("%w: root at %v is not a child of the virtual root", ErrInvariant, n.Left)
			}
		}
		return nil
	}

	p, ok := byID[*n.Parent]
	switch {
	case !ok:
		return fmt.Errorf("%w: parent %d", ErrNotFound, *n.Parent)
	case p.Scope != n.Scope:
		return fmt.Errorf("%w: parent %d is in scope %q", ErrScopeMismatch, p.ID, p.Scope)
	case !p.Interval().Covers(n.Interval()):
		return fmt.Errorf("%w: interval %v is not nested in parent %d at %v",
			ErrInvariant, n.Interval(), p.ID, p.Interval())
	case !hasParent || expected != p.Left:
		return fmt.Errorf("%w: left bound %v belongs under %v, parent %d is at %v",
			ErrInvariant, n.Left, expected, p.ID, p.Left)
	}
	return nil
}
