package batch

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBatch_EncodeDecode(t *testing.T) {
	b := New().
		Put([]byte("alpha"), []byte("1")).
		Delete([]byte("beta")).
		Put([]byte("gamma"), nil)

	buf := make([]byte, b.EncodedSize())
	n := b.Encode(buf)
	require.Equal(t, len(buf), n)

	ops, err := Decode(buf)
	require.NoError(t, err)
	require.Len(t, ops, 3)

	assert.Equal(t, KindPut, ops[0].Kind)
	assert.Equal(t, "alpha", string(ops[0].Key))
	assert.Equal(t, "1", string(ops[0].Value))

	assert.True(t, ops[1].IsDelete())
	assert.Equal(t, "beta", string(ops[1].Key))
	assert.Nil(t, ops[1].Value)

	assert.Equal(t, "gamma", string(ops[2].Key))
	assert.NotNil(t, ops[2].Value)
	assert.Empty(t, ops[2].Value)
}

func TestBatch_CopiesInput(t *testing.T) {
	key := []byte("k")
	val := []byte("v")
	b := New().Put(key, val)

	key[0] = 'x'
	val[0] = 'y'

	assert.Equal(t, "k", string(b.Ops()[0].Key))
	assert.Equal(t, "v", string(b.Ops()[0].Value))
}

func TestDecode_Truncated(t *testing.T) {
	b := New().Put([]byte("key"), []byte("value"))
	buf := make([]byte, b.EncodedSize())
	b.Encode(buf)

	for cut := 1; cut < len(buf); cut++ {
		_, err := Decode(buf[:cut])
		assert.ErrorIs(t, err, ErrCorrupt, "cut at %d", cut)
	}
}

func TestDecode_UnknownKind(t *testing.T) {
	_, err := Decode([]byte{7, 0, 0, 0, 0})
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestDecode_Empty(t *testing.T) {
	ops, err := Decode(nil)
	require.NoError(t, err)
	assert.Empty(t, ops)
}

func TestBatch_Validate(t *testing.T) {
	tests := []struct {
		name string
		b    *Batch
		want error
	}{
		{"ok", New().Put([]byte("k"), []byte("v")), nil},
		{"empty key", New().Put(nil, []byte("v")), ErrEmptyKey},
		{"empty delete key", New().Delete([]byte{}), ErrEmptyKey},
		{"key too large", New().Put(bytes.Repeat([]byte("k"), MaxKeySize+1), nil), ErrKeyTooLarge},
		{"max key", New().Delete(bytes.Repeat([]byte("k"), MaxKeySize)), nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.b.Validate()
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}

func TestValidateOp_ValueTooLarge(t *testing.T) {
	op := Op{Kind: KindPut, Key: []byte("k"), Value: make([]byte, MaxValueSize+1)}
	assert.ErrorIs(t, ValidateOp(op), ErrValueTooLarge)
}

func TestBatch_Keys(t *testing.T) {
	b := New().Put([]byte("a"), nil).Put([]byte("b"), nil).Delete([]byte("a"))

	keys := b.Keys()
	require.Len(t, keys, 2)
	assert.Equal(t, "a", string(keys[0]))
	assert.Equal(t, "b", string(keys[1]))
}

func TestMerge_LastWriteWins(t *testing.T) {
	older := []Op{
		{Kind: KindPut, Key: []byte("k1"), Value: []byte("old")},
		{Kind: KindPut, Key: []byte("k2"), Value: []byte("keep")},
	}
	newer := []Op{
		{Kind: KindPut, Key: []byte("k1"), Value: []byte("new")},
		{Kind: KindDelete, Key: []byte("k3")},
	}

	merged := Merge(older, newer)
	require.Len(t, merged, 3)

	assert.Equal(t, "k1", string(merged[0].Key))
	assert.Equal(t, "new", string(merged[0].Value))
	assert.Equal(t, "k2", string(merged[1].Key))
	assert.Equal(t, "keep", string(merged[1].Value))
	assert.Equal(t, "k3", string(merged[2].Key))
	assert.True(t, merged[2].IsDelete())
}

func TestMerge_TombstoneOverridesPut(t *testing.T) {
	merged := Merge(
		[]Op{{Kind: KindPut, Key: []byte("k"), Value: []byte("v")}},
		[]Op{{Kind: KindDelete, Key: []byte("k")}},
	)
	require.Len(t, merged, 1)
	assert.True(t, merged[0].IsDelete())
}

func TestMerge_Deterministic(t *testing.T) {
	ops := []Op{
		{Kind: KindPut, Key: []byte("z"), Value: []byte("1")},
		{Kind: KindPut, Key: []byte("a"), Value: []byte("2")},
		{Kind: KindPut, Key: []byte("m"), Value: []byte("3")},
	}

	first := Merge(ops)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, Merge(ops))
	}
	assert.Equal(t, 33, EncodedLen(first))
}
