package vectors

import (
	"fmt"
	"reflect"

	"github.com/suhasHere/nitree"
)

func checkDeepEqual(label string, actual, expected interface{}) error {
	if !reflect.DeepEqual(actual, expected) {
		return fmt.Errorf("%s : %v != %v", label, actual, expected)
	}
	return nil
}

///
/// ModInverse
///

type ModInverse struct {
	Modulus  int64    `json:"modulus"`
	Inverses []*int64 `json:"inverses"`
}

func NewModInverse(modulus int64) (ModInverse, error) {
	if modulus <= 0 {
		return ModInverse{}, fmt.Errorf("modulus %d is not positive", modulus)
	}

	vec := ModInverse{
		Modulus:  modulus,
		Inverses: make([]*int64, modulus),
	}
	for k := range vec.Inverses {
		vec.Inverses[k] = modInverse(int64(k), modulus)
	}
	return vec, nil
}

func modInverse(a, m int64) *int64 {
	x, ok := nitree.ModInverse(a, m)
	if !ok {
		return nil
	}
	return &x
}

func (vec ModInverse) Verify() error {
	for k, x := range vec.Inverses {
		label := fmt.Sprintf("Inverse[%d]", k)
		err := checkDeepEqual(label, x, modInverse(int64(k), vec.Modulus))
		if err != nil {
			return err
		}
	}
	return nil
}

///
/// Allocation
///

// Allocation describes a tree by the parent index of each node (-1 for a
// root); every parent precedes its children.  Nodes are allocated in order.
type Allocation struct {
	Mode    string            `json:"mode"`
	Parents []int             `json:"parents"`
	Lefts   []nitree.Fraction `json:"lefts"`
	Rights  []nitree.Fraction `json:"rights"`
	Depths  []int             `json:"depths"`
}

func allocateAll(mode nitree.RootMode, parents []int) ([]nitree.Fraction, error) {
	lefts := make([]nitree.Fraction, len(parents))
	last := map[int]*nitree.Fraction{}
	for i, p := range parents {
		var left nitree.Fraction
		var err error
		switch {
		case p < 0:
			left, err = nitree.AllocateRoot(mode, last[-1])
		case p >= i:
			return nil, fmt.Errorf("node %d: parent %d does not precede it", i, p)
		default:
			left, err = nitree.AllocateChild(lefts[p], last[p])
		}
		if err != nil {
			return nil, fmt.Errorf("node %d: %w", i, err)
		}

		lefts[i] = left
		if p < 0 {
			p = -1
		}
		last[p] = &lefts[i]
	}
	return lefts, nil
}

func NewAllocation(mode nitree.RootMode, parents []int) (Allocation, error) {
	lefts, err := allocateAll(mode, parents)
	if err != nil {
		return Allocation{}, err
	}

	vec := Allocation{
		Mode:    mode.String(),
		Parents: parents,
		Lefts:   lefts,
		Rights:  make([]nitree.Fraction, len(lefts)),
		Depths:  make([]int, len(lefts)),
	}
	for i, l := range lefts {
		if vec.Rights[i], err = nitree.RightBound(l); err != nil {
			return Allocation{}, err
		}
		if vec.Depths[i], err = nitree.Depth(l); err != nil {
			return Allocation{}, err
		}
	}
	return vec, nil
}

func (vec Allocation) Verify() error {
	mode, err := nitree.ParseRootMode(vec.Mode)
	if err != nil {
		return err
	}
	lefts, err := allocateAll(mode, vec.Parents)
	if err != nil {
		return err
	}

	for i := range vec.Parents {
		label := fmt.Sprintf("Left[%d]", i)
		if err := checkDeepEqual(label, vec.Lefts[i], lefts[i]); err != nil {
			return err
		}

		right, err := nitree.RightBound(lefts[i])
		if err != nil {
			return err
		}
		label = fmt.Sprintf("Right[%d]", i)
		if err := checkDeepEqual(label, vec.Rights[i], right); err != nil {
			return err
		}

		depth, err := nitree.Depth(lefts[i])
		if err != nil {
			return err
		}
		label = fmt.Sprintf("Depth[%d]", i)
		if err := checkDeepEqual(label, vec.Depths[i], depth); err != nil {
			return err
		}
	}
	return nil
}

///
/// Ancestry
///

type Ancestry struct {
	Lefts  []nitree.Fraction   `json:"lefts"`
	Chains [][]nitree.Fraction `json:"chains"`
}

func NewAncestry(lefts []nitree.Fraction) (Ancestry, error) {
	vec := Ancestry{
		Lefts:  lefts,
		Chains: make([][]nitree.Fraction, len(lefts)),
	}
	for i, l := range lefts {
		chain, err := nitree.AncestorChain(l)
		if err != nil {
			return Ancestry{}, err
		}
		vec.Chains[i] = chain
	}
	return vec, nil
}

func (vec Ancestry) Verify() error {
	for i, l := range vec.Lefts {
		chain, err := nitree.AncestorChain(l)
		if err != nil {
			return err
		}
		label := fmt.Sprintf("Chain[%d]", i)
		if err := checkDeepEqual(label, vec.Chains[i], chain); err != nil {
			return err
		}

		// Every ancestor must contain the node.
		for j, a := range chain {
			ok, err := nitree.IsAncestorOrSelf(a, l)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("Chain[%d][%d] : %v does not contain %v", i, j, a, l)
			}
		}
	}
	return nil
}

///
/// Move
///

// Move records the transform of a subtree rooted at Left to a new parent
// and the resulting left bounds of the listed descendants.
type Move struct {
	Mode        string            `json:"mode"`
	Left        nitree.Fraction   `json:"left"`
	Parent      *nitree.Fraction  `json:"parent"`
	LastChild   *nitree.Fraction  `json:"last_child"`
	Matrix      nitree.Matrix     `json:"matrix"`
	NewLeft     nitree.Fraction   `json:"new_left"`
	Descendants []nitree.Fraction `json:"descendants"`
	Moved       []nitree.Fraction `json:"moved"`
}

func NewMove(mode nitree.RootMode, left nitree.Fraction, parent, last *nitree.Fraction, descendants []nitree.Fraction) (Move, error) {
	plan, err := nitree.PlanMove(left, parent, last, mode)
	if err != nil {
		return Move{}, err
	}
	moved, err := nitree.ApplyMoveTransform(plan.Matrix, descendants)
	if err != nil {
		return Move{}, err
	}

	return Move{
		Mode:        mode.String(),
		Left:        left,
		Parent:      parent,
		LastChild:   last,
		Matrix:      plan.Matrix,
		NewLeft:     plan.New.Left,
		Descendants: descendants,
		Moved:       moved,
	}, nil
}

func (vec Move) Verify() error {
	mode, err := nitree.ParseRootMode(vec.Mode)
	if err != nil {
		return err
	}
	plan, err := nitree.PlanMove(vec.Left, vec.Parent, vec.LastChild, mode)
	if err != nil {
		return err
	}
	if err := checkDeepEqual("Matrix", vec.Matrix, plan.Matrix); err != nil {
		return err
	}
	if err := checkDeepEqual("NewLeft", vec.NewLeft, plan.New.Left); err != nil {
		return err
	}

	moved, err := nitree.ApplyMoveTransform(plan.Matrix, vec.Descendants)
	if err != nil {
		return err
	}
	for i := range moved {
		label := fmt.Sprintf("Moved[%d]", i)
		if err := checkDeepEqual(label, vec.Moved[i], moved[i]); err != nil {
			return err
		}
		if !plan.New.IsDescendant(moved[i]) {
			return fmt.Errorf("%s : %v is outside %v", label, moved[i], plan.New)
		}
	}
	return nil
}
