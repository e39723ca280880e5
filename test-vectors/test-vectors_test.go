package vectors

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/suhasHere/nitree"
)

func jsonRoundTrip(t *testing.T, original, decoded interface{}) {
	encoded, err := json.Marshal(original)
	require.NoError(t, err)

	err = json.Unmarshal(encoded, decoded)
	require.NoError(t, err)
}

func ptr(num, den int64) *nitree.Fraction {
	return &nitree.Fraction{Num: num, Den: den}
}

func TestModInverse(t *testing.T) {
	vec, err := NewModInverse(9)
	require.NoError(t, err)

	var vec2 ModInverse
	jsonRoundTrip(t, vec, &vec2)
	require.NoError(t, vec2.Verify())

	want := []int64{-1, 1, 5, -1, 7, 2, -1, 4, 8}
	for k, x := range vec2.Inverses {
		if want[k] < 0 {
			require.Nil(t, x, "k=%d", k)
			continue
		}
		require.NotNil(t, x, "k=%d", k)
		require.Equal(t, want[k], *x)
	}

	_, err = NewModInverse(0)
	require.Error(t, err)
}

func TestAllocation(t *testing.T) {
	// earth, oceania, australia, new_zealand, pacific
	vec, err := NewAllocation(nitree.SingleRoot, []int{-1, 0, 1, 1, 0})
	require.NoError(t, err)
	require.Equal(t, []nitree.Fraction{{Num: 0, Den: 1}, {Num: 1, Den: 2}, {Num: 2, Den: 3}, {Num: 3, Den: 5}, {Num: 1, Den: 3}}, vec.Lefts)
	require.Equal(t, []nitree.Fraction{{Num: 1, Den: 1}, {Num: 1, Den: 1}, {Num: 1, Den: 1}, {Num: 2, Den: 3}, {Num: 1, Den: 2}}, vec.Rights)
	require.Equal(t, []int{0, 1, 2, 2, 1}, vec.Depths)

	var vec2 Allocation
	jsonRoundTrip(t, vec, &vec2)
	require.NoError(t, vec2.Verify())

	vec2.Lefts[3] = nitree.Fraction{Num: 4, Den: 7}
	require.Error(t, vec2.Verify())
}

func TestAllocationVirtualRoot(t *testing.T) {
	// europe, romania, asia, america
	vec, err := NewAllocation(nitree.VirtualRootMode, []int{-1, 0, -1, -1})
	require.NoError(t, err)
	require.Equal(t, []nitree.Fraction{{Num: 1, Den: 2}, {Num: 2, Den: 3}, {Num: 1, Den: 3}, {Num: 1, Den: 4}}, vec.Lefts)

	var vec2 Allocation
	jsonRoundTrip(t, vec, &vec2)
	require.NoError(t, vec2.Verify())
}

func TestAllocationRejectsForwardParent(t *testing.T) {
	_, err := NewAllocation(nitree.SingleRoot, []int{-1, 2, 0})
	require.Error(t, err)
}

func TestAncestry(t *testing.T) {
	vec, err := NewAncestry([]nitree.Fraction{{Num: 0, Den: 1}, {Num: 1, Den: 2}, {Num: 3, Den: 5}, {Num: 5, Den: 12}})
	require.NoError(t, err)
	require.Empty(t, vec.Chains[0])
	require.Equal(t, []nitree.Fraction{{Num: 1, Den: 2}, {Num: 0, Den: 1}}, vec.Chains[2])
	require.Equal(t, []nitree.Fraction{{Num: 2, Den: 5}, {Num: 1, Den: 3}, {Num: 0, Den: 1}}, vec.Chains[3])

	var vec2 Ancestry
	jsonRoundTrip(t, vec, &vec2)
	require.NoError(t, vec2.Verify())
}

func TestMove(t *testing.T) {
	// oceania 1/2 under pacific 1/3, which has no children yet
	vec, err := NewMove(nitree.SingleRoot, nitree.Fraction{Num: 1, Den: 2}, ptr(1, 3), nil,
		[]nitree.Fraction{{Num: 2, Den: 3}, {Num: 3, Den: 5}})
	require.NoError(t, err)
	require.Equal(t, nitree.Fraction{Num: 2, Den: 5}, vec.NewLeft)
	require.Equal(t, []nitree.Fraction{{Num: 3, Den: 7}, {Num: 5, Den: 12}}, vec.Moved)

	var vec2 Move
	jsonRoundTrip(t, vec, &vec2)
	require.NoError(t, vec2.Verify())

	vec2.Moved[0] = nitree.Fraction{Num: 4, Den: 9}
	require.Error(t, vec2.Verify())
}
