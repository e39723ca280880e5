package badger

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/dgraph-io/badger/v4"
	"github.com/hashicorp/go-multierror"

	"github.com/suhasHere/nitree"
)

// floatSlack widens float range scans to cover the rounding of both the
// stored approximations and the query bounds.
const floatSlack = 0x1p-50

// Store implements nitree.Store on a BadgerDB.
type Store struct {
	db       *badger.DB
	seq      *badger.Sequence
	cols     nitree.Columns
	gcRunner *GCRunner
}

var _ nitree.Store = (*Store)(nil)

func newStore(db *badger.DB, cols nitree.Columns) (*Store, error) {
	seq, err := db.GetSequence(sequenceKey, 128)
	if err != nil {
		return nil, fmt.Errorf("open id sequence: %w", err)
	}
	return &Store{db: db, seq: seq, cols: cols}, nil
}

func (s *Store) Columns() nitree.Columns {
	return s.cols
}

// DB exposes the underlying database, for backups and inspection.
func (s *Store) DB() *badger.DB {
	return s.db
}

func (s *Store) View(ctx context.Context, fn func(nitree.Txn) error) error {
	return withReadTxn(ctx, s.db, func(tx *badger.Txn) error {
		return fn(&txn{store: s, tx: tx})
	})
}

func (s *Store) Update(ctx context.Context, fn func(nitree.Txn) error) error {
	return withTxn(ctx, s.db, func(tx *badger.Txn) error {
		return fn(&txn{store: s, tx: tx})
	})
}

// Close releases the ID sequence, stops GC and closes the database.
func (s *Store) Close() error {
	var result *multierror.Error
	if err := s.seq.Release(); err != nil {
		result = multierror.Append(result, fmt.Errorf("release id sequence: %w", err))
	}
	if s.gcRunner != nil {
		s.gcRunner.Stop()
	}
	if err := s.db.Close(); err != nil {
		result = multierror.Append(result, err)
	}
	return result.ErrorOrNil()
}

type txn struct {
	store *Store
	tx    *badger.Txn
}

func (t *txn) cols() nitree.Columns {
	return t.store.cols
}

func (t *txn) Get(id nitree.NodeID) (nitree.Node, error) {
	var n nitree.Node
	if err := retrieveNode(id, &n)(t.tx); err != nil {
		return nitree.Node{}, err
	}
	if err := n.Derive(t.cols()); err != nil {
		return nitree.Node{}, err
	}
	return n, nil
}

func (t *txn) getAll(ids []nitree.NodeID) ([]nitree.Node, error) {
	nodes := make([]nitree.Node, 0, len(ids))
	for _, id := range ids {
		n, err := t.Get(id)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}
	return nodes, nil
}

func (t *txn) LastChild(scope string, parent *nitree.NodeID) (nitree.Node, bool, error) {
	var id nitree.NodeID
	found := false
	err := iterateKeys(childPrefix(scope, parent), nil, true, func(key []byte) (bool, error) {
		if lastUint64(key, 2) == 0 {
			// Only cleared nodes are left.
			return false, nil
		}
		id = nitree.NodeID(lastUint64(key, 1))
		found = true
		return false, nil
	})(t.tx)
	if err != nil || !found {
		return nitree.Node{}, false, err
	}

	n, err := t.Get(id)
	if err != nil {
		return nitree.Node{}, false, err
	}
	return n, true, nil
}

func (t *txn) Children(scope string, parent *nitree.NodeID) ([]nitree.Node, error) {
	var ids []nitree.NodeID
	if err := collectIDs(childPrefix(scope, parent), &ids)(t.tx); err != nil {
		return nil, err
	}
	return t.getAll(ids)
}

func (t *txn) FindByBounds(scope string, f nitree.Fraction) (nitree.Node, bool, error) {
	var id nitree.NodeID
	var found bool
	if err := retrieveBounds(scope, f, &id, &found)(t.tx); err != nil || !found {
		return nitree.Node{}, false, err
	}

	n, err := t.Get(id)
	if err != nil {
		return nitree.Node{}, false, err
	}
	return n, true, nil
}

func (t *txn) Descendants(scope string, iv nitree.Interval) ([]nitree.Node, error) {
	var ids []nitree.NodeID
	var err error
	if t.cols().Floats {
		ids, err = t.scanFloats(scope, iv)
	} else {
		ids, err = t.scanBounds(scope, iv)
	}
	if err != nil {
		return nil, err
	}

	candidates, err := t.getAll(ids)
	if err != nil {
		return nil, err
	}

	nodes := candidates[:0]
	for _, n := range candidates {
		if n.Assigned() && iv.IsDescendant(n.Left) {
			nodes = append(nodes, n)
		}
	}
	return nodes, nil
}

// scanFloats collects the IDs whose float left bound falls in the widened
// range of iv.  Candidates still need the exact check.
func (t *txn) scanFloats(scope string, iv nitree.Interval) ([]nitree.NodeID, error) {
	lo := math.Max(0, iv.Left.Float64()-floatSlack)
	hi := iv.Right.Float64() + floatSlack
	limit := floatKey(scope, hi, math.MaxInt64)

	var ids []nitree.NodeID
	err := iterateKeys(floatPrefix(scope), floatKey(scope, lo, 0), false, func(key []byte) (bool, error) {
		if string(key) > string(limit) {
			return false, nil
		}
		ids = append(ids, nitree.NodeID(lastUint64(key, 1)))
		return true, nil
	})(t.tx)
	return ids, err
}

// scanBounds walks the bounds index one denominator at a time, seeking
// straight to the window of numerators that can lie inside iv.  Strict
// descendants of [a/b, c/d) have a denominator of at least b+d.
func (t *txn) scanBounds(scope string, iv nitree.Interval) ([]nitree.NodeID, error) {
	minDen := iv.Left.Den + iv.Right.Den
	if minDen < 0 {
		return nil, nil
	}

	prefix := boundsPrefix(scope)
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = prefix

	it := t.tx.NewIterator(opts)
	defer it.Close()

	var ids []nitree.NodeID
	it.Seek(appendUint64(prefix, uint64(minDen), 0))
	for it.ValidForPrefix(prefix) {
		item := it.Item()
		key := item.Key()
		den := int64(lastUint64(key, 2))
		num := int64(lastUint64(key, 1))

		lo, hi, ok := nitree.DescendantNumRange(iv, den)
		switch {
		case !ok || num > hi:
			if den == math.MaxInt64 {
				return ids, nil
			}
			it.Seek(appendUint64(prefix, uint64(den+1), 0))
			continue
		case num < lo:
			it.Seek(appendUint64(prefix, uint64(den), uint64(lo)))
			continue
		}

		if iv.IsDescendant(nitree.Fraction{Num: num, Den: den}) {
			val, err := item.ValueCopy(nil)
			if err != nil {
				return nil, fmt.Errorf("could not load bounds: %w", err)
			}
			ids = append(ids, nitree.NodeID(lastUint64(val, 1)))
		}
		it.Next()
	}
	return ids, nil
}

func (t *txn) Rewrite(scope string, iv nitree.Interval, m nitree.Matrix) (int, error) {
	nodes, err := t.Descendants(scope, iv)
	if err != nil {
		return 0, err
	}

	lefts := make([]nitree.Fraction, len(nodes))
	for i, n := range nodes {
		lefts[i] = n.Left
	}
	moved, err := nitree.ApplyMoveTransform(m, lefts)
	if err != nil {
		return 0, err
	}

	// Every new bound is computed before the first write.
	updated := make([]nitree.Node, len(nodes))
	for i, n := range nodes {
		updated[i] = n.Clone()
		if err := updated[i].SetLeft(moved[i]); err != nil {
			return 0, err
		}
	}

	for i := range nodes {
		if err := replaceNode(nodes[i], updated[i], t.cols())(t.tx); err != nil {
			if errors.Is(err, badger.ErrTxnTooBig) {
				return 0, fmt.Errorf("%w: subtree of %d nodes does not fit one transaction",
					nitree.ErrLimitExceeded, len(nodes))
			}
			return 0, err
		}
	}
	return len(nodes), nil
}

func (t *txn) All() ([]nitree.Node, error) {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = []byte{codeNode}

	it := t.tx.NewIterator(opts)
	defer it.Close()

	var nodes []nitree.Node
	for it.Rewind(); it.ValidForPrefix(opts.Prefix); it.Next() {
		var n nitree.Node
		err := it.Item().Value(func(val []byte) error {
			var err error
			n, err = nitree.UnmarshalRecord(val)
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("could not decode node: %w", err)
		}
		nodes = append(nodes, n)
	}
	return nodes, nil
}

func (t *txn) Insert(n *nitree.Node) error {
	next, err := t.store.seq.Next()
	if err != nil {
		return fmt.Errorf("could not allocate id: %w", err)
	}
	n.ID = nitree.NodeID(next + 1)
	return insertNode(*n, t.cols())(t.tx)
}

func (t *txn) Put(n nitree.Node) error {
	var old nitree.Node
	if err := retrieveNode(n.ID, &old)(t.tx); err != nil {
		return err
	}
	return replaceNode(old, n, t.cols())(t.tx)
}

func (t *txn) Delete(id nitree.NodeID) error {
	var n nitree.Node
	if err := retrieveNode(id, &n)(t.tx); err != nil {
		return err
	}
	return removeNode(n, t.cols())(t.tx)
}

func (t *txn) ClearCoordinates() error {
	nodes, err := t.All()
	if err != nil {
		return err
	}

	for _, old := range nodes {
		cleared := old.Clone()
		cleared.Left = nitree.Fraction{}
		cleared.Right = nitree.Fraction{}
		cleared.LeftFloat = 0
		cleared.RightFloat = 0
		if err := replaceNode(old, cleared, t.cols())(t.tx); err != nil {
			return err
		}
	}
	return nil
}
