package nitree

import "context"

// A Store is the storage collaborator behind a Tree.  It owns the node
// records and their parent relation and gives the tree transactions over
// them.  A Store does not allocate intervals or check invariants; it only
// reads and writes what it is given.
//
// Implementations live in storage/badger and storage/sqlite.
type Store interface {
	// View runs fn in a read-only transaction with a consistent snapshot.
	View(ctx context.Context, fn func(Txn) error) error

	// Update runs fn in a read-write transaction.  All writes made through
	// the Txn are committed together when fn returns nil and discarded
	// otherwise.  A commit that loses to a concurrent writer fails with an
	// error wrapping ErrConflict.
	Update(ctx context.Context, fn func(Txn) error) error

	// Columns reports which derived fields the store materializes.
	Columns() Columns

	Close() error
}

// A Txn is a single store transaction.  Nodes returned by a Txn have their
// derived fields filled in (see Node.Derive).  Nodes whose coordinates were
// cleared by ClearCoordinates are skipped by LastChild, FindByBounds and
// Descendants.
type Txn interface {
	// Get returns the node with the given ID, or an error wrapping
	// ErrNotFound.
	Get(id NodeID) (Node, error)

	// LastChild returns the child of parent (nil for the roots of scope)
	// with the greatest left denominator, which is the most recently
	// allocated one.  ok is false when there is none.
	LastChild(scope string, parent *NodeID) (n Node, ok bool, err error)

	// Children returns the children of parent (nil for the roots of scope)
	// ordered by increasing left denominator.
	Children(scope string, parent *NodeID) ([]Node, error)

	// FindByBounds returns the node of scope whose left bound is exactly f.
	FindByBounds(scope string, f Fraction) (n Node, ok bool, err error)

	// Descendants returns every node of scope whose left bound lies strictly
	// inside iv, in no particular order.  Stores may prefilter with float
	// columns but must re-check candidates with Interval.IsDescendant.
	Descendants(scope string, iv Interval) ([]Node, error)

	// Rewrite applies m to the stored bounds of every node of scope that
	// Descendants(scope, iv) would return, as one bulk write.  It must fail
	// before writing anything if m would overflow any affected row.  It
	// returns the number of rewritten nodes.
	Rewrite(scope string, iv Interval, m Matrix) (int, error)

	// All returns every node, in every scope, ordered by ID, exactly as
	// stored: derived fields the store does not keep are left zero and no
	// validation is done, so that Verify and rebuilds can see corrupt rows.
	All() ([]Node, error)

	// Insert stores a new node and sets n.ID.
	Insert(n *Node) error

	// Put overwrites an existing node's parent and coordinates.
	Put(n Node) error

	// Delete removes a node.  Stores may refuse to delete a node that still
	// has children.
	Delete(id NodeID) error

	// ClearCoordinates resets the coordinates of every node to 0/0 ahead of
	// a rebuild.
	ClearCoordinates() error
}

// Links projects nodes onto the fields a rebuild needs.
func Links(nodes []Node) []Link {
	links := make([]Link, len(nodes))
	for i, n := range nodes {
		links[i] = Link{ID: n.ID, Parent: dupID(n.Parent), Scope: n.Scope, Left: n.Left}
	}
	return links
}
