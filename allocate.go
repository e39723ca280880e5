package nitree

import "fmt"

// RootMode selects how top-level nodes are placed.
type RootMode uint8

const (
	// SingleRoot gives every root the whole unit interval [0/1, 1/1), so a
	// scope can hold one root at a time.
	SingleRoot RootMode = iota

	// VirtualRootMode allocates roots as successive children of the
	// synthetic interval [0/1, 1/1), so any number of roots can share a
	// scope.
	VirtualRootMode
)

func (m RootMode) String() string {
	switch m {
	case SingleRoot:
		return "single"
	case VirtualRootMode:
		return "virtual"
	}
	return fmt.Sprintf("RootMode(%d)", uint8(m))
}

// ParseRootMode is the inverse of RootMode.String.
func ParseRootMode(s string) (RootMode, error) {
	switch s {
	case "single", "":
		return SingleRoot, nil
	case "virtual":
		return VirtualRootMode, nil
	}
	return 0, fmt.Errorf("unknown root mode %q", s)
}

// AllocateChild returns the left bound of a new child appended under a
// parent whose left bound is parent.  last is the left bound of the
// existing child with the greatest denominator, or nil if the parent has no
// children yet.
func AllocateChild(parent Fraction, last *Fraction) (Fraction, error) {
	if last != nil {
		return parent.Mediant(*last)
	}

	right, err := RightBound(parent)
	if err != nil {
		return Fraction{}, err
	}
	return parent.Mediant(right)
}

// AllocateRoot returns the left bound of a new root.  last is the current
// root with the greatest denominator in the scope, or nil if there is none.
// In SingleRoot mode the result is always 0/1; the caller is responsible for
// refusing a second root.
func AllocateRoot(mode RootMode, last *Fraction) (Fraction, error) {
	if err := validateEnum(mode, SingleRoot, VirtualRootMode); err != nil {
		return Fraction{}, err
	}

	if mode == SingleRoot {
		return zeroBound, nil
	}
	return AllocateChild(VirtualRoot.Left, last)
}
