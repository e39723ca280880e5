package badger

import (
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/suhasHere/nitree"
)

// The functions below follow one pattern: each returns a closure over a
// *badger.Txn so that callers can compose them inside a single transaction.

// insertNode writes the record and every index entry of a new node.  It
// fails if the node's bound is already taken in its scope.
func insertNode(n nitree.Node, cols nitree.Columns) func(*badger.Txn) error {
	return func(tx *badger.Txn) error {
		_, err := tx.Get(nodeKey(n.ID))
		if err == nil {
			return fmt.Errorf("node %d already exists: %w", n.ID, nitree.ErrInvariant)
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("could not check key: %w", err)
		}

		if err := checkBoundFree(n)(tx); err != nil {
			return err
		}
		return writeNode(n, cols)(tx)
	}
}

func checkBoundFree(n nitree.Node) func(*badger.Txn) error {
	return func(tx *badger.Txn) error {
		if !n.Assigned() {
			return nil
		}
		_, err := tx.Get(boundsKey(n.Scope, n.Left))
		if err == nil {
			return fmt.Errorf("bound %v in scope %q is taken: %w", n.Left, n.Scope, nitree.ErrInvariant)
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("could not check bound: %w", err)
		}
		return nil
	}
}

// writeNode stores the record of n and its index entries.  It does not
// remove entries of a previous version of the node; see replaceNode.
func writeNode(n nitree.Node, cols nitree.Columns) func(*badger.Txn) error {
	return func(tx *badger.Txn) error {
		val, err := nitree.MarshalRecord(n, cols)
		if err != nil {
			return fmt.Errorf("could not encode node: %w", err)
		}

		if err := tx.Set(nodeKey(n.ID), val); err != nil {
			return fmt.Errorf("could not store node: %w", err)
		}
		if err := tx.Set(childKey(n), nil); err != nil {
			return fmt.Errorf("could not index child: %w", err)
		}

		if !n.Assigned() {
			return nil
		}
		if err := tx.Set(boundsKey(n.Scope, n.Left), appendUint64(nil, uint64(n.ID))); err != nil {
			return fmt.Errorf("could not index bounds: %w", err)
		}
		if cols.Floats {
			if err := tx.Set(floatKey(n.Scope, n.Left.Float64(), n.ID), nil); err != nil {
				return fmt.Errorf("could not index float: %w", err)
			}
		}
		return nil
	}
}

// removeIndex deletes every index entry of n, leaving its record.
func removeIndex(n nitree.Node, cols nitree.Columns) func(*badger.Txn) error {
	return func(tx *badger.Txn) error {
		if err := tx.Delete(childKey(n)); err != nil {
			return err
		}
		if !n.Assigned() {
			return nil
		}
		if err := tx.Delete(boundsKey(n.Scope, n.Left)); err != nil {
			return err
		}
		if cols.Floats {
			return tx.Delete(floatKey(n.Scope, n.Left.Float64(), n.ID))
		}
		return nil
	}
}

// replaceNode swaps the stored version old of a node for n.
func replaceNode(old, n nitree.Node, cols nitree.Columns) func(*badger.Txn) error {
	return func(tx *badger.Txn) error {
		if err := removeIndex(old, cols)(tx); err != nil {
			return fmt.Errorf("could not remove index of node %d: %w", old.ID, err)
		}
		if old.Left != n.Left || old.Scope != n.Scope {
			if err := checkBoundFree(n)(tx); err != nil {
				return err
			}
		}
		return writeNode(n, cols)(tx)
	}
}

// removeNode deletes the record and index entries of n.
func removeNode(n nitree.Node, cols nitree.Columns) func(*badger.Txn) error {
	return func(tx *badger.Txn) error {
		if err := removeIndex(n, cols)(tx); err != nil {
			return fmt.Errorf("could not remove index of node %d: %w", n.ID, err)
		}
		return tx.Delete(nodeKey(n.ID))
	}
}

// retrieveNode loads the raw stored record of id.
func retrieveNode(id nitree.NodeID, n *nitree.Node) func(*badger.Txn) error {
	return func(tx *badger.Txn) error {
		item, err := tx.Get(nodeKey(id))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("node %d: %w", id, nitree.ErrNotFound)
			}
			return fmt.Errorf("could not load node: %w", err)
		}

		err = item.Value(func(val []byte) error {
			*n, err = nitree.UnmarshalRecord(val)
			return err
		})
		if err != nil {
			return fmt.Errorf("could not decode node %d: %w", id, err)
		}
		return nil
	}
}

// retrieveBounds looks up the ID of the node of scope at f.
func retrieveBounds(scope string, f nitree.Fraction, id *nitree.NodeID, found *bool) func(*badger.Txn) error {
	return func(tx *badger.Txn) error {
		item, err := tx.Get(boundsKey(scope, f))
		if errors.Is(err, badger.ErrKeyNotFound) {
			*found = false
			return nil
		}
		if err != nil {
			return fmt.Errorf("could not load bounds: %w", err)
		}

		val, err := item.ValueCopy(nil)
		if err != nil {
			return fmt.Errorf("could not load bounds: %w", err)
		}
		*id = nitree.NodeID(lastUint64(val, 1))
		*found = true
		return nil
	}
}

// handleFunc processes one key of an iteration and reports whether to go
// on.  The key is only valid for the duration of the call.
type handleFunc func(key []byte) (bool, error)

// iterateKeys walks the keys under prefix without loading values, starting
// at seek (or the first key of the prefix when seek is nil).  Only one
// iterator may be open in a read-write transaction, so handlers must not
// start another iteration.
func iterateKeys(prefix, seek []byte, reverse bool, handle handleFunc) func(*badger.Txn) error {
	return func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix
		opts.Reverse = reverse

		it := tx.NewIterator(opts)
		defer it.Close()

		start := seek
		if start == nil {
			start = prefix
			if reverse {
				start = seekLast(prefix)
			}
		}

		for it.Seek(start); it.ValidForPrefix(prefix); it.Next() {
			more, err := handle(it.Item().Key())
			if err != nil {
				return err
			}
			if !more {
				return nil
			}
		}
		return nil
	}
}

// collectIDs gathers the trailing node ID of every key under prefix.
func collectIDs(prefix []byte, ids *[]nitree.NodeID) func(*badger.Txn) error {
	*ids = (*ids)[:0]
	return iterateKeys(prefix, nil, false, func(key []byte) (bool, error) {
		*ids = append(*ids, nitree.NodeID(lastUint64(key, 1)))
		return true, nil
	})
}
