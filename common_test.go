package nitree

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidateEnum(t *testing.T) {
	err := validateEnum(SingleRoot, SingleRoot, VirtualRootMode)
	require.Nil(t, err)

	err = validateEnum(RootMode(0xFF), SingleRoot, VirtualRootMode)
	require.Error(t, err)
}

func TestDupID(t *testing.T) {
	require.Nil(t, dupID(nil))

	id := NodeID(7)
	dup := dupID(&id)
	require.Equal(t, id, *dup)

	*dup = 8
	require.Equal(t, NodeID(7), id)
}

func TestSameParent(t *testing.T) {
	a, b, c := NodeID(1), NodeID(1), NodeID(2)
	require.True(t, sameParent(nil, nil))
	require.True(t, sameParent(&a, &b))
	require.False(t, sameParent(&a, &c))
	require.False(t, sameParent(&a, nil))
	require.False(t, sameParent(nil, &c))
}

//////////

func unhex(h string) []byte {
	b, err := hex.DecodeString(h)
	if err != nil {
		panic(err)
	}
	return b
}

func frac(num, den int64) Fraction {
	return Fraction{num, den}
}
