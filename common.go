package nitree

import (
	"fmt"
)

func validateEnum(v interface{}, known ...interface{}) error {
	for _, kv := range known {
		if v == kv {
			return nil
		}
	}
	return fmt.Errorf("Unknown enum value: %v", v)
}

func dupID(in *NodeID) *NodeID {
	if in == nil {
		return nil
	}
	out := *in
	return &out
}

func sameParent(a, b *NodeID) bool {
	switch {
	case a == nil || b == nil:
		return a == nil && b == nil
	default:
		return *a == *b
	}
}
