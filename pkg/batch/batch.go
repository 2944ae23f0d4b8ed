// Package batch defines the ordered write set accepted by a commit and its
// binary encoding, shared by journal eras and virtual commits.
//
// Encoding, little endian, one record per operation:
//
//	kind u8 | keylen u32 | [vallen u32] | key | [value]
//
// kind 0 is a put and carries a value, kind 1 is a delete and does not.
package batch

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"slices"
)

const (
	// MaxKeySize is the largest accepted key.
	MaxKeySize = 64 << 10

	// MaxValueSize is the largest accepted value.
	MaxValueSize = 64 << 20
)

// Kind identifies the operation of a record.
type Kind uint8

const (
	KindPut    Kind = 0
	KindDelete Kind = 1
)

func (k Kind) String() string {
	switch k {
	case KindPut:
		return "put"
	case KindDelete:
		return "delete"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Op is a single write. A delete carries a nil Value.
type Op struct {
	Kind  Kind
	Key   []byte
	Value []byte
}

// IsDelete reports whether the op is a tombstone.
func (o Op) IsDelete() bool {
	return o.Kind == KindDelete
}

// EncodedLen returns the number of bytes Encode writes for o.
func (o Op) EncodedLen() int {
	if o.Kind == KindDelete {
		return 1 + 4 + len(o.Key)
	}
	return 1 + 4 + 4 + len(o.Key) + len(o.Value)
}

// Batch is an ordered list of writes. Later ops on the same key override
// earlier ones. The zero value is an empty batch ready to use.
type Batch struct {
	ops  []Op
	size int
}

// New returns an empty batch.
func New() *Batch {
	return &Batch{}
}

// Put appends a put. Key and value are copied.
func (b *Batch) Put(key, value []byte) *Batch {
	if value == nil {
		value = []byte{}
	}
	b.append(Op{Kind: KindPut, Key: bytes.Clone(key), Value: bytes.Clone(value)})
	return b
}

// Delete appends a tombstone for key.
func (b *Batch) Delete(key []byte) *Batch {
	b.append(Op{Kind: KindDelete, Key: bytes.Clone(key)})
	return b
}

func (b *Batch) append(op Op) {
	b.ops = append(b.ops, op)
	b.size += op.EncodedLen()
}

// Len returns the number of ops.
func (b *Batch) Len() int {
	return len(b.ops)
}

// Ops returns the ops in insertion order. The slice must not be modified.
func (b *Batch) Ops() []Op {
	return b.ops
}

// EncodedSize returns the size of Encode's output.
func (b *Batch) EncodedSize() int {
	return b.size
}

// Keys returns the distinct keys touched by the batch.
func (b *Batch) Keys() [][]byte {
	seen := make(map[string]struct{}, len(b.ops))
	keys := make([][]byte, 0, len(b.ops))
	for _, op := range b.ops {
		if _, ok := seen[string(op.Key)]; ok {
			continue
		}
		seen[string(op.Key)] = struct{}{}
		keys = append(keys, op.Key)
	}
	return keys
}

// Validate checks every op against the key and value limits.
func (b *Batch) Validate() error {
	for i, op := range b.ops {
		if err := ValidateOp(op); err != nil {
			return fmt.Errorf("op %d: %w", i, err)
		}
	}
	return nil
}

// ValidateOp checks a single op against the key and value limits.
func ValidateOp(op Op) error {
	switch {
	case len(op.Key) == 0:
		return ErrEmptyKey
	case len(op.Key) > MaxKeySize:
		return fmt.Errorf("%w: %d bytes", ErrKeyTooLarge, len(op.Key))
	case op.Kind == KindPut && len(op.Value) > MaxValueSize:
		return fmt.Errorf("%w: %d bytes", ErrValueTooLarge, len(op.Value))
	case op.Kind != KindPut && op.Kind != KindDelete:
		return fmt.Errorf("%w: unknown kind %d", ErrCorrupt, op.Kind)
	}
	return nil
}

// Encode writes the batch encoding into dst, which must be at least
// EncodedSize bytes, and returns the number of bytes written.
func (b *Batch) Encode(dst []byte) int {
	return EncodeOps(dst, b.ops)
}

// EncodeOps writes the encoding of ops into dst and returns the bytes written.
func EncodeOps(dst []byte, ops []Op) int {
	off := 0
	for _, op := range ops {
		dst[off] = byte(op.Kind)
		binary.LittleEndian.PutUint32(dst[off+1:], uint32(len(op.Key)))
		off += 5
		if op.Kind == KindPut {
			binary.LittleEndian.PutUint32(dst[off:], uint32(len(op.Value)))
			off += 4
		}
		off += copy(dst[off:], op.Key)
		if op.Kind == KindPut {
			off += copy(dst[off:], op.Value)
		}
	}
	return off
}

// EncodedLen returns the encoded size of ops.
func EncodedLen(ops []Op) int {
	n := 0
	for _, op := range ops {
		n += op.EncodedLen()
	}
	return n
}

// Decode parses an encoded payload. Returned keys and values alias buf.
func Decode(buf []byte) ([]Op, error) {
	var ops []Op
	for off := 0; off < len(buf); {
		op, n, err := decodeOne(buf[off:])
		if err != nil {
			return nil, fmt.Errorf("at offset %d: %w", off, err)
		}
		ops = append(ops, op)
		off += n
	}
	return ops, nil
}

func decodeOne(buf []byte) (Op, int, error) {
	if len(buf) < 5 {
		return Op{}, 0, ErrCorrupt
	}
	kind := Kind(buf[0])
	if kind != KindPut && kind != KindDelete {
		return Op{}, 0, fmt.Errorf("%w: unknown kind %d", ErrCorrupt, buf[0])
	}
	keyLen := int(binary.LittleEndian.Uint32(buf[1:5]))
	off := 5

	valLen := 0
	if kind == KindPut {
		if len(buf) < off+4 {
			return Op{}, 0, ErrCorrupt
		}
		valLen = int(binary.LittleEndian.Uint32(buf[off:]))
		off += 4
	}
	if keyLen > MaxKeySize || valLen > MaxValueSize || len(buf)-off < keyLen+valLen {
		return Op{}, 0, ErrCorrupt
	}

	op := Op{Kind: kind, Key: buf[off : off+keyLen : off+keyLen]}
	off += keyLen
	if kind == KindPut {
		op.Value = buf[off : off+valLen : off+valLen]
		off += valLen
	}
	return op, off, nil
}

// Merge folds several op lists, oldest first, into one op per key where the
// last write wins. The result is sorted by key so that identical inputs always
// produce identical output.
func Merge(lists ...[]Op) []Op {
	latest := make(map[string]Op)
	for _, ops := range lists {
		for _, op := range ops {
			latest[string(op.Key)] = op
		}
	}

	merged := make([]Op, 0, len(latest))
	for _, op := range latest {
		merged = append(merged, op)
	}
	slices.SortFunc(merged, func(a, b Op) int {
		return bytes.Compare(a.Key, b.Key)
	})
	return merged
}
