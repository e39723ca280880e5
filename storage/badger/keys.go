package badger

import (
	"encoding/binary"
	"math"

	"github.com/suhasHere/nitree"
)

// Key layout.  Every key starts with a one-byte code; scoped keys continue
// with a two-byte scope length and the scope, and every integer is
// big-endian so that byte order matches numeric order.
//
//	codeNode   | id                             -> record
//	codeChild  | scope | parent | den | id      -> nil
//	codeBounds | scope | den | num              -> id
//	codeFloat  | scope | float64 bits(lft) | id -> nil
//
// Roots are indexed under parent 0.  Nodes cleared by a rebuild keep their
// child entry with den 0 and have no bounds or float entry.
const (
	codeNode   byte = 1
	codeChild  byte = 2
	codeBounds byte = 3
	codeFloat  byte = 4
	codeMeta   byte = 0xff
)

var sequenceKey = []byte{codeMeta, 's', 'e', 'q'}

func makePrefix(code byte, scope string) []byte {
	key := make([]byte, 0, 3+len(scope)+24)
	key = append(key, code)
	key = binary.BigEndian.AppendUint16(key, uint16(len(scope)))
	return append(key, scope...)
}

func appendUint64(key []byte, vs ...uint64) []byte {
	for _, v := range vs {
		key = binary.BigEndian.AppendUint64(key, v)
	}
	return key
}

func parentValue(parent *nitree.NodeID) uint64 {
	if parent == nil {
		return 0
	}
	return uint64(*parent)
}

func nodeKey(id nitree.NodeID) []byte {
	return appendUint64([]byte{codeNode}, uint64(id))
}

func childPrefix(scope string, parent *nitree.NodeID) []byte {
	return appendUint64(makePrefix(codeChild, scope), parentValue(parent))
}

func childKey(n nitree.Node) []byte {
	return appendUint64(childPrefix(n.Scope, n.Parent), uint64(n.Left.Den), uint64(n.ID))
}

func boundsPrefix(scope string) []byte {
	return makePrefix(codeBounds, scope)
}

func boundsKey(scope string, f nitree.Fraction) []byte {
	return appendUint64(boundsPrefix(scope), uint64(f.Den), uint64(f.Num))
}

func floatPrefix(scope string) []byte {
	return makePrefix(codeFloat, scope)
}

// The float index only holds values in [0, 1), whose IEEE bit patterns sort
// like the values themselves.
func floatKey(scope string, v float64, id nitree.NodeID) []byte {
	return appendUint64(floatPrefix(scope), math.Float64bits(v), uint64(id))
}

// lastUint64 decodes the trailing n-th integer of a key, counting from 1.
func lastUint64(key []byte, n int) uint64 {
	end := len(key) - 8*(n-1)
	return binary.BigEndian.Uint64(key[end-8 : end])
}

// maxSuffix is larger than any suffix of integers following a prefix.
var maxSuffix = []byte{
	0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff,
	0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff,
	0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff,
}

func seekLast(prefix []byte) []byte {
	key := make([]byte, 0, len(prefix)+len(maxSuffix))
	key = append(key, prefix...)
	return append(key, maxSuffix...)
}
