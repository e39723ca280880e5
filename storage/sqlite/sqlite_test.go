package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/suhasHere/nitree"
)

func ref(id nitree.NodeID) *nitree.NodeID {
	return &id
}

func openTree(t *testing.T, cols nitree.Columns) (*Store, *nitree.Tree) {
	store, err := OpenInMemory(cols)
	require.Nil(t, err)
	t.Cleanup(func() { store.Close() })

	tree, err := nitree.New(store, nitree.DefaultConfig())
	require.Nil(t, err)
	return store, tree
}

func TestSchemaColumns(t *testing.T) {
	require.Equal(t, []string{"id", "parent_id", "scope", "lftp", "lftq"}, columnNames(nitree.Columns{}))
	require.Equal(t, []string{"id", "parent_id", "scope", "lftp", "lftq", "rgtp", "rgtq", "lft", "rgt"},
		columnNames(nitree.AllColumns))
	require.Len(t, schema(nitree.Columns{}), 3)
	require.Len(t, schema(nitree.AllColumns), 4)
}

func TestSchemaMismatch(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Path = filepath.Join(t.TempDir(), "tree.db")
	cfg.Columns = nitree.Columns{}

	store, err := Open(cfg)
	require.Nil(t, err)
	require.Nil(t, store.Close())

	cfg.Columns = nitree.AllColumns
	_, err = Open(cfg)
	require.Error(t, err)

	_, err = Open(DefaultConfig())
	require.Error(t, err)
}

func TestConstraints(t *testing.T) {
	store, tree := openTree(t, nitree.AllColumns)
	ctx := context.Background()

	root, err := tree.Insert(ctx, "", nil)
	require.Nil(t, err)
	child, err := tree.Insert(ctx, "", &root.ID)
	require.Nil(t, err)

	// A parent that does not exist
	err = store.Update(ctx, func(tx nitree.Txn) error {
		n := nitree.Node{Parent: ref(999)}
		if err := n.SetLeft(nitree.Fraction{Num: 1, Den: 7}); err != nil {
			return err
		}
		return tx.Insert(&n)
	})
	require.ErrorIs(t, err, nitree.ErrNotFound)

	// A bound that is already taken
	err = store.Update(ctx, func(tx nitree.Txn) error {
		n := nitree.Node{Parent: ref(root.ID)}
		if err := n.SetLeft(child.Left); err != nil {
			return err
		}
		return tx.Insert(&n)
	})
	require.ErrorIs(t, err, nitree.ErrInvariant)

	// Removing a node that still has children
	err = store.Update(ctx, func(tx nitree.Txn) error {
		return tx.Delete(root.ID)
	})
	require.ErrorIs(t, err, nitree.ErrHasChildren)

	err = store.Update(ctx, func(tx nitree.Txn) error {
		return tx.Put(nitree.Node{ID: 999, Left: nitree.Fraction{Num: 1, Den: 9}})
	})
	require.ErrorIs(t, err, nitree.ErrNotFound)

	require.Nil(t, tree.Verify(ctx))
}

func TestCorruptRow(t *testing.T) {
	store, tree := openTree(t, nitree.Columns{})
	ctx := context.Background()

	root, err := tree.Insert(ctx, "", nil)
	require.Nil(t, err)
	child, err := tree.Insert(ctx, "", &root.ID)
	require.Nil(t, err)

	_, err = store.DB().Exec("UPDATE nodes SET lftp = 2, lftq = 4 WHERE id = ?", int64(child.ID))
	require.Nil(t, err)

	_, err = tree.Get(ctx, child.ID)
	require.ErrorIs(t, err, nitree.ErrInvariant)

	err = tree.Verify(ctx)
	require.ErrorIs(t, err, nitree.ErrInvariant)

	report, err := tree.Rebuild(ctx)
	require.Nil(t, err)
	require.Nil(t, report.Failures)
	require.Nil(t, tree.Verify(ctx))

	n, err := tree.Get(ctx, child.ID)
	require.Nil(t, err)
	require.Equal(t, nitree.Fraction{Num: 1, Den: 2}, n.Left)
}

func TestRewrite(t *testing.T) {
	for _, cols := range []nitree.Columns{{}, {Floats: true}, {Right: true}, nitree.AllColumns} {
		store, tree := openTree(t, cols)
		ctx := context.Background()

		earth, err := tree.Insert(ctx, "", nil)
		require.Nil(t, err)
		oceania, err := tree.Insert(ctx, "", &earth.ID)
		require.Nil(t, err)
		australia, err := tree.Insert(ctx, "", &oceania.ID)
		require.Nil(t, err)
		nz, err := tree.Insert(ctx, "", &oceania.ID)
		require.Nil(t, err)

		m := nitree.Matrix{PP: 0, PQ: 1, QP: -1, QQ: 3}
		err = store.Update(ctx, func(tx nitree.Txn) error {
			count, err := tx.Rewrite("", oceania.Interval(), m)
			require.Equal(t, 2, count)
			return err
		})
		require.Nil(t, err)

		err = store.View(ctx, func(tx nitree.Txn) error {
			a, err := tx.Get(australia.ID)
			require.Nil(t, err)
			require.Equal(t, nitree.Fraction{Num: 3, Den: 7}, a.Left)
			require.Equal(t, nitree.Fraction{Num: 1, Den: 2}, a.Right)

			n, err := tx.Get(nz.ID)
			require.Nil(t, err)
			require.Equal(t, nitree.Fraction{Num: 5, Den: 12}, n.Left)

			raw, err := tx.All()
			require.Nil(t, err)
			for _, r := range raw {
				if cols.Floats && r.ID == nz.ID {
					require.InDelta(t, 5.0/12, r.LeftFloat, 1e-15)
					require.InDelta(t, 3.0/7, r.RightFloat, 1e-15)
				}
			}
			return nil
		})
		require.Nil(t, err)

		huge := nitree.Matrix{PP: 1 << 62, QQ: 1 << 62}
		err = store.Update(ctx, func(tx nitree.Txn) error {
			_, err := tx.Rewrite("", earth.Interval(), huge)
			return err
		})
		require.ErrorIs(t, err, nitree.ErrLimitExceeded)
	}
}

// A subtree with small numerators and wide denominators rewrites as long as
// each row fits, whatever the column maxima are.
func TestRewriteWideDenominators(t *testing.T) {
	for _, cols := range []nitree.Columns{{}, {Right: true}, nitree.AllColumns} {
		store, _ := openTree(t, cols)
		ctx := context.Background()

		parent := nitree.Node{}
		require.Nil(t, parent.SetLeft(nitree.Fraction{Num: 1, Den: 1 << 40}))
		child := nitree.Node{}
		require.Nil(t, child.SetLeft(nitree.Fraction{Num: 2, Den: 1<<41 - 1}))

		err := store.Update(ctx, func(tx nitree.Txn) error {
			if err := tx.Insert(&parent); err != nil {
				return err
			}
			child.Parent = ref(parent.ID)
			return tx.Insert(&child)
		})
		require.Nil(t, err)

		m := nitree.Matrix{PP: 1, PQ: 0, QP: 1 << 23, QQ: 1}
		err = store.Update(ctx, func(tx nitree.Txn) error {
			count, err := tx.Rewrite("", parent.Interval(), m)
			require.Equal(t, 1, count)
			return err
		})
		require.Nil(t, err)

		err = store.View(ctx, func(tx nitree.Txn) error {
			raw, err := tx.All()
			require.Nil(t, err)
			require.Len(t, raw, 2)
			require.Equal(t, nitree.Fraction{Num: 2, Den: 1<<41 - 1 + 1<<24}, raw[1].Left)
			if cols.Right {
				require.Equal(t, nitree.Fraction{Num: 1, Den: 1<<40 - 1 + 1<<23}, raw[1].Right)
			}
			return nil
		})
		require.Nil(t, err)
	}
}
