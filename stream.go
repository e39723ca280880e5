package nitree

import (
	"fmt"
	"math"

	syntax "github.com/cisco/go-tls-syntax"
)

///
/// Write Stream
///

type WriteStream struct {
	buffer []byte
}

func NewWriteStream() *WriteStream {
	return &WriteStream{}
}

func (s *WriteStream) Data() []byte {
	return s.buffer
}

func (s *WriteStream) Write(val interface{}) error {
	enc, err := syntax.Marshal(val)
	if err != nil {
		return err
	}
	s.buffer = append(s.buffer, enc...)
	return nil
}

func (s *WriteStream) WriteAll(vals ...interface{}) error {
	for _, val := range vals {
		err := s.Write(val)
		if err != nil {
			return err
		}
	}
	return nil
}

///
/// ReadStream
///

type ReadStream struct {
	buffer []byte
	cursor int
}

func NewReadStream(data []byte) *ReadStream {
	return &ReadStream{data, 0}
}

func (s *ReadStream) Read(val interface{}) (int, error) {
	read, err := syntax.Unmarshal(s.buffer[s.cursor:], val)
	if err != nil {
		return 0, err
	}

	s.cursor += read
	return read, nil
}

func (s *ReadStream) ReadAll(vals ...interface{}) (int, error) {
	totalRead := 0
	for _, val := range vals {
		read, err := s.Read(val)
		if err != nil {
			return 0, err
		}
		totalRead += read
	}
	return totalRead, nil
}

func (s *ReadStream) Consumed() int {
	return s.cursor
}

func (s *ReadStream) Done() bool {
	return s.cursor >= len(s.buffer)
}

///
/// Record
///

type parentRef struct {
	ID uint64
}

// A Record is the binary form of a Node: the TLS presentation-language
// encoding of its fields.  Derived fields are only carried when the
// matching column is enabled; otherwise they are zero.
type Record struct {
	ID         uint64
	Parent     *parentRef `tls:"optional"`
	Scope      []byte     `tls:"head=2"`
	LeftNum    uint64
	LeftDen    uint64
	RightNum   uint64
	RightDen   uint64
	LeftFloat  uint64
	RightFloat uint64
}

func NewRecord(n Node, cols Columns) Record {
	r := Record{
		ID:      uint64(n.ID),
		Scope:   []byte(n.Scope),
		LeftNum: uint64(n.Left.Num),
		LeftDen: uint64(n.Left.Den),
	}
	if n.Parent != nil {
		r.Parent = &parentRef{ID: uint64(*n.Parent)}
	}
	if cols.Right {
		r.RightNum = uint64(n.Right.Num)
		r.RightDen = uint64(n.Right.Den)
	}
	if cols.Floats {
		r.LeftFloat = math.Float64bits(n.LeftFloat)
		r.RightFloat = math.Float64bits(n.RightFloat)
	}
	return r
}

// Node returns the stored fields as a Node without deriving anything.
func (r Record) Node() Node {
	n := Node{
		ID:         NodeID(r.ID),
		Scope:      string(r.Scope),
		Left:       Fraction{int64(r.LeftNum), int64(r.LeftDen)},
		Right:      Fraction{int64(r.RightNum), int64(r.RightDen)},
		LeftFloat:  math.Float64frombits(r.LeftFloat),
		RightFloat: math.Float64frombits(r.RightFloat),
	}
	if r.Parent != nil {
		p := NodeID(r.Parent.ID)
		n.Parent = &p
	}
	return n
}

func MarshalRecord(n Node, cols Columns) ([]byte, error) {
	data, err := syntax.Marshal(NewRecord(n, cols))
	if err != nil {
		return nil, fmt.Errorf("nitree.record: Marshal failed: %v", err)
	}
	return data, nil
}

func UnmarshalRecord(data []byte) (Node, error) {
	var r Record
	if _, err := syntax.Unmarshal(data, &r); err != nil {
		return Node{}, fmt.Errorf("nitree.record: Unmarshal failed: %v", err)
	}
	return r.Node(), nil
}

///
/// Snapshot
///

type snapshotHeader struct {
	Count uint32
}

// WriteSnapshot encodes nodes as a count followed by one Record per node.
func WriteSnapshot(nodes []Node, cols Columns) ([]byte, error) {
	vals := make([]interface{}, 0, len(nodes)+1)
	vals = append(vals, snapshotHeader{Count: uint32(len(nodes))})
	for _, n := range nodes {
		vals = append(vals, NewRecord(n, cols))
	}

	w := NewWriteStream()
	if err := w.WriteAll(vals...); err != nil {
		return nil, fmt.Errorf("nitree.snapshot: %v", err)
	}
	return w.Data(), nil
}

// ReadSnapshot decodes the output of WriteSnapshot.
func ReadSnapshot(data []byte) ([]Node, error) {
	r := NewReadStream(data)

	var hdr snapshotHeader
	if _, err := r.Read(&hdr); err != nil {
		return nil, fmt.Errorf("nitree.snapshot: header: %v", err)
	}
	// Every record takes at least one byte per fixed field.
	if int(hdr.Count) > len(data) {
		return nil, fmt.Errorf("nitree.snapshot: %d records cannot fit in %d bytes", hdr.Count, len(data))
	}

	recs := make([]Record, hdr.Count)
	ptrs := make([]interface{}, len(recs))
	for i := range recs {
		ptrs[i] = &recs[i]
	}
	if _, err := r.ReadAll(ptrs...); err != nil {
		return nil, fmt.Errorf("nitree.snapshot: records: %v", err)
	}
	if !r.Done() {
		return nil, fmt.Errorf("nitree.snapshot: %d trailing bytes", len(data)-r.Consumed())
	}

	nodes := make([]Node, len(recs))
	for i, rec := range recs {
		nodes[i] = rec.Node()
	}
	return nodes, nil
}
