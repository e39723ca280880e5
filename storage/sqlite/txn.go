package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	sqlite3 "modernc.org/sqlite/lib"

	"github.com/suhasHere/nitree"
)

// floatSlack widens ratio filters so that rounding never drops a true
// descendant; every candidate is re-checked exactly.
const floatSlack = 0x1p-50

type txn struct {
	store *Store
	ctx   context.Context
	tx    *sql.Tx
}

type scanner interface {
	Scan(dest ...any) error
}

func (t *txn) cols() nitree.Columns {
	return t.store.cols
}

// scanNode reads one row in columnNames order without deriving anything.
func (t *txn) scanNode(row scanner) (nitree.Node, error) {
	var n nitree.Node
	var parent sql.NullInt64
	dest := []any{&n.ID, &parent, &n.Scope, &n.Left.Num, &n.Left.Den}
	if t.cols().Right {
		dest = append(dest, &n.Right.Num, &n.Right.Den)
	}
	if t.cols().Floats {
		dest = append(dest, &n.LeftFloat, &n.RightFloat)
	}

	if err := row.Scan(dest...); err != nil {
		return nitree.Node{}, err
	}
	if parent.Valid {
		p := nitree.NodeID(parent.Int64)
		n.Parent = &p
	}
	return n, nil
}

// query runs a SELECT over the node columns and returns the rows, derived.
func (t *txn) query(where string, args ...any) ([]nitree.Node, error) {
	nodes, err := t.queryRaw(where, args...)
	if err != nil {
		return nil, err
	}
	for i := range nodes {
		if err := nodes[i].Derive(t.cols()); err != nil {
			return nil, err
		}
	}
	return nodes, nil
}

func (t *txn) queryRaw(where string, args ...any) ([]nitree.Node, error) {
	rows, err := t.tx.QueryContext(t.ctx, "SELECT "+t.store.selectList+" FROM nodes "+where, args...)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var nodes []nitree.Node
	for rows.Next() {
		n, err := t.scanNode(rows)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}
	return nodes, mapError(rows.Err())
}

func (t *txn) first(where string, args ...any) (nitree.Node, bool, error) {
	nodes, err := t.query(where+" LIMIT 1", args...)
	if err != nil || len(nodes) == 0 {
		return nitree.Node{}, false, err
	}
	return nodes[0], true, nil
}

func parentArg(parent *nitree.NodeID) sql.NullInt64 {
	if parent == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*parent), Valid: true}
}

func (t *txn) Get(id nitree.NodeID) (nitree.Node, error) {
	n, ok, err := t.first("WHERE id = ?", int64(id))
	if err != nil {
		return nitree.Node{}, err
	}
	if !ok {
		return nitree.Node{}, fmt.Errorf("node %d: %w", id, nitree.ErrNotFound)
	}
	return n, nil
}

func (t *txn) LastChild(scope string, parent *nitree.NodeID) (nitree.Node, bool, error) {
	return t.first("WHERE scope = ? AND parent_id IS ? AND lftq > 0 ORDER BY lftq DESC",
		scope, parentArg(parent))
}

func (t *txn) Children(scope string, parent *nitree.NodeID) ([]nitree.Node, error) {
	return t.query("WHERE scope = ? AND parent_id IS ? ORDER BY lftq, id", scope, parentArg(parent))
}

func (t *txn) FindByBounds(scope string, f nitree.Fraction) (nitree.Node, bool, error) {
	return t.first("WHERE scope = ? AND lftq = ? AND lftp = ?", scope, f.Den, f.Num)
}

// Descendants filters rows on the ratio of their left bound, through the
// lft index when it exists, and then applies the exact test.  Strict
// descendants of [a/b, c/d) have a denominator of at least b+d.
func (t *txn) Descendants(scope string, iv nitree.Interval) ([]nitree.Node, error) {
	lo := math.Max(0, iv.Left.Float64()-floatSlack)
	hi := iv.Right.Float64() + floatSlack

	var candidates []nitree.Node
	var err error
	if t.cols().Floats {
		candidates, err = t.query("WHERE scope = ? AND lftq > 0 AND lft BETWEEN ? AND ?", scope, lo, hi)
	} else {
		minDen := iv.Left.Den + iv.Right.Den
		if minDen < 0 {
			return nil, nil
		}
		candidates, err = t.query(
			"WHERE scope = ? AND lftq >= ? AND CAST(lftp AS REAL) / lftq BETWEEN ? AND ?",
			scope, minDen, lo, hi)
	}
	if err != nil {
		return nil, err
	}

	nodes := candidates[:0]
	for _, n := range candidates {
		if iv.IsDescendant(n.Left) {
			nodes = append(nodes, n)
		}
	}
	return nodes, nil
}

// Rewrite finds the subtree exactly, checks that m keeps every stored bound
// within int64, and then rewrites all of it with a single UPDATE.
// SQLite evaluates every SET expression against the old row, so the
// numerator and denominator are transformed together.
func (t *txn) Rewrite(scope string, iv nitree.Interval, m nitree.Matrix) (int, error) {
	nodes, err := t.Descendants(scope, iv)
	if err != nil || len(nodes) == 0 {
		return 0, err
	}

	ids := make([]int64, len(nodes))
	for i, n := range nodes {
		ids[i] = int64(n.ID)
	}
	idList, err := json.Marshal(ids)
	if err != nil {
		return 0, err
	}

	// Validate every row in Go before writing anything.  Apply checks each
	// product and sum, so the same expressions cannot overflow in SQL.
	for _, n := range nodes {
		if _, err := m.Apply(n.Left); err != nil {
			return 0, fmt.Errorf("rewrite of node %d: %w", n.ID, err)
		}
		if t.cols().Right {
			if _, err := m.Apply(n.Right); err != nil {
				return 0, fmt.Errorf("rewrite of node %d: %w", n.ID, err)
			}
		}
	}

	num := "(?1 * lftp + ?2 * lftq)"
	den := "(?3 * lftp + ?4 * lftq)"
	sets := []string{"lftp = " + num, "lftq = " + den}
	if t.cols().Right {
		rnum := "(?1 * rgtp + ?2 * rgtq)"
		rden := "(?3 * rgtp + ?4 * rgtq)"
		sets = append(sets, "rgtp = "+rnum, "rgtq = "+rden)
		if t.cols().Floats {
			sets = append(sets, "rgt = CAST("+rnum+" AS REAL) / "+rden)
		}
	} else if t.cols().Floats {
		// Without stored right bounds, rgt is refreshed below.
		sets = append(sets, "rgt = 0")
	}
	if t.cols().Floats {
		sets = append(sets, "lft = CAST("+num+" AS REAL) / "+den)
	}

	stmt := "UPDATE nodes SET " + strings.Join(sets, ", ") +
		" WHERE id IN (SELECT value FROM json_each(?5))"
	res, err := t.tx.ExecContext(t.ctx, stmt, m.PP, m.PQ, m.QP, m.QQ, string(idList))
	if err != nil {
		return 0, mapError(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}

	if t.cols().Floats && !t.cols().Right {
		if err := t.refreshRightFloats(ids); err != nil {
			return 0, err
		}
	}
	return int(affected), nil
}

// refreshRightFloats recomputes rgt for rows whose right bound is not
// stored and so cannot be transformed in SQL.
func (t *txn) refreshRightFloats(ids []int64) error {
	for _, id := range ids {
		n, err := t.Get(nitree.NodeID(id))
		if err != nil {
			return err
		}
		if _, err := t.tx.ExecContext(t.ctx, "UPDATE nodes SET rgt = ? WHERE id = ?", n.RightFloat, id); err != nil {
			return mapError(err)
		}
	}
	return nil
}

func (t *txn) All() ([]nitree.Node, error) {
	return t.queryRaw("ORDER BY id")
}

// values lists the stored columns of n after id, in columnNames order.
func (t *txn) values(n nitree.Node) []any {
	vals := []any{parentArg(n.Parent), n.Scope, n.Left.Num, n.Left.Den}
	if t.cols().Right {
		vals = append(vals, n.Right.Num, n.Right.Den)
	}
	if t.cols().Floats {
		vals = append(vals, n.LeftFloat, n.RightFloat)
	}
	return vals
}

func (t *txn) Insert(n *nitree.Node) error {
	names := columnNames(t.cols())[1:]
	marks := strings.TrimSuffix(strings.Repeat("?, ", len(names)), ", ")
	stmt := fmt.Sprintf("INSERT INTO nodes (%s) VALUES (%s)", strings.Join(names, ", "), marks)

	res, err := t.tx.ExecContext(t.ctx, stmt, t.values(*n)...)
	if err != nil {
		return mapError(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	n.ID = nitree.NodeID(id)
	return nil
}

func (t *txn) Put(n nitree.Node) error {
	names := columnNames(t.cols())[1:]
	sets := make([]string, len(names))
	for i, name := range names {
		sets[i] = name + " = ?"
	}
	stmt := "UPDATE nodes SET " + strings.Join(sets, ", ") + " WHERE id = ?"

	res, err := t.tx.ExecContext(t.ctx, stmt, append(t.values(n), int64(n.ID))...)
	if err != nil {
		return mapError(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("node %d: %w", n.ID, nitree.ErrNotFound)
	}
	return nil
}

func (t *txn) Delete(id nitree.NodeID) error {
	res, err := t.tx.ExecContext(t.ctx, "DELETE FROM nodes WHERE id = ?", int64(id))
	if code, ok := resultCode(err); ok && code == sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY {
		return fmt.Errorf("node %d: %w", id, nitree.ErrHasChildren)
	}
	if err != nil {
		return mapError(err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("node %d: %w", id, nitree.ErrNotFound)
	}
	return nil
}

func (t *txn) ClearCoordinates() error {
	sets := []string{"lftp = 0", "lftq = 0"}
	if t.cols().Right {
		sets = append(sets, "rgtp = 0", "rgtq = 0")
	}
	if t.cols().Floats {
		sets = append(sets, "lft = 0", "rgt = 0")
	}

	_, err := t.tx.ExecContext(t.ctx, "UPDATE nodes SET "+strings.Join(sets, ", "))
	return mapError(err)
}
