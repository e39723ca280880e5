package nitree

import "fmt"

// NodeID identifies a stored node.  IDs are assigned by the store and are
// always positive; 0 is never a valid ID.
type NodeID int64

// Columns describes which derived fields a store materializes alongside the
// left bound.  The left bound is always stored.
type Columns struct {
	// Right stores rgtp/rgtq.
	Right bool `yaml:"right"`

	// Floats stores lft/rgt as float approximations for index-friendly
	// range filters.
	Floats bool `yaml:"floats"`
}

// AllColumns materializes every optional field.
var AllColumns = Columns{Right: true, Floats: true}

// A Node is one stored tree record.
type Node struct {
	ID     NodeID
	Parent *NodeID
	Scope  string

	// Left is the canonical position of the node.
	Left Fraction

	// Right, LeftFloat and RightFloat are derived from Left.  They are set
	// by SetLeft and by Derive; stores persist them only when the matching
	// Columns flag is on.
	Right      Fraction
	LeftFloat  float64
	RightFloat float64
}

// SetLeft is the single write path for a node's coordinates: it stores left
// and recomputes every derived field from it.
func (n *Node) SetLeft(left Fraction) error {
	right, err := RightBound(left)
	if err != nil {
		return fmt.Errorf("node %d: %w", n.ID, err)
	}

	n.Left = left
	n.Right = right
	n.LeftFloat = left.Float64()
	n.RightFloat = right.Float64()
	return nil
}

// Derive validates a node loaded from a store and fills any derived field
// the store did not keep.  A node whose stored right bound disagrees with the
// derivation is reported as ErrInvariant.
func (n *Node) Derive(cols Columns) error {
	if n.Left.Den == 0 {
		// Cleared by a rebuild in progress.
		return nil
	}

	stored := n.Right
	if err := n.SetLeft(n.Left); err != nil {
		return err
	}
	if cols.Right && stored != n.Right {
		return fmt.Errorf("%w: node %d caches right bound %v, derived %v",
			ErrInvariant, n.ID, stored, n.Right)
	}
	return nil
}

// Assigned reports whether the node currently has coordinates.
func (n Node) Assigned() bool {
	return n.Left.Den != 0
}

func (n Node) IsRoot() bool {
	return n.Parent == nil
}

func (n Node) Interval() Interval {
	return Interval{Left: n.Left, Right: n.Right}
}

func (n Node) Clone() Node {
	cloned := n
	cloned.Parent = dupID(n.Parent)
	return cloned
}

func (n Node) String() string {
	if n.Parent == nil {
		return fmt.Sprintf("node %d %v", n.ID, n.Interval())
	}
	return fmt.Sprintf("node %d %v parent %d", n.ID, n.Interval(), *n.Parent)
}
