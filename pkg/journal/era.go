package journal

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/crypto/sha3"

	"github.com/marmos91/eradb/internal/bufpool"
	"github.com/marmos91/eradb/internal/fsutil"
	"github.com/marmos91/eradb/pkg/batch"
)

// Era file layout:
//
//	magic "ERAJ" (4) | format u16 | reserved u16 | sequence u64 |
//	payload length u64 | sha3-256(sequence || payload) (32) | payload
const (
	eraMagic      = "ERAJ"
	eraFormat     = uint16(1)
	eraHeaderSize = 4 + 2 + 2 + 8 + 8 + 32
	eraExt        = ".era"
)

// Era is an immutable batch of writes tagged with its sequence number.
type Era struct {
	Sequence uint64
	Ops      []batch.Op
	Checksum [32]byte

	// key -> position of the last op on that key
	index map[string]int
	size  int64
}

func newEra(seq uint64, ops []batch.Op, sum [32]byte, size int64) *Era {
	e := &Era{
		Sequence: seq,
		Ops:      ops,
		Checksum: sum,
		index:    make(map[string]int, len(ops)),
		size:     size,
	}
	for i, op := range ops {
		e.index[string(op.Key)] = i
	}
	return e
}

// Lookup returns the last op on key within the era.
func (e *Era) Lookup(key []byte) (batch.Op, bool) {
	i, ok := e.index[string(key)]
	if !ok {
		return batch.Op{}, false
	}
	return e.Ops[i], true
}

// Keys returns the distinct keys written by the era.
func (e *Era) Keys() [][]byte {
	keys := make([][]byte, 0, len(e.index))
	for k := range e.index {
		keys = append(keys, []byte(k))
	}
	return keys
}

// Size is the on-disk size of the era file.
func (e *Era) Size() int64 {
	return e.size
}

func eraFileName(seq uint64) string {
	return fmt.Sprintf("%020d%s", seq, eraExt)
}

func parseEraFileName(name string) (uint64, bool) {
	if !strings.HasSuffix(name, eraExt) {
		return 0, false
	}
	seq, err := strconv.ParseUint(strings.TrimSuffix(name, eraExt), 10, 64)
	if err != nil {
		return 0, false
	}
	return seq, true
}

func checksum(seq uint64, payload []byte) [32]byte {
	var seqBuf [8]byte
	binary.LittleEndian.PutUint64(seqBuf[:], seq)

	h := sha3.New256()
	h.Write(seqBuf[:])
	h.Write(payload)

	var sum [32]byte
	h.Sum(sum[:0])
	return sum
}

// writeEra encodes b as era seq and writes it durably into dir.
func writeEra(dir string, seq uint64, b *batch.Batch) (*Era, error) {
	size := eraHeaderSize + b.EncodedSize()
	buf := bufpool.Get(size)
	defer bufpool.Put(buf)

	payload := buf[eraHeaderSize:]
	b.Encode(payload)
	sum := checksum(seq, payload)

	copy(buf[0:4], eraMagic)
	binary.LittleEndian.PutUint16(buf[4:6], eraFormat)
	binary.LittleEndian.PutUint16(buf[6:8], 0)
	binary.LittleEndian.PutUint64(buf[8:16], seq)
	binary.LittleEndian.PutUint64(buf[16:24], uint64(len(payload)))
	copy(buf[24:56], sum[:])

	path := filepath.Join(dir, eraFileName(seq))
	if err := fsutil.CreateExclusive(path, 0o644, buf); err != nil {
		return nil, fmt.Errorf("write era %d: %w", seq, err)
	}

	// the batch already holds private copies of its keys and values
	ops := append([]batch.Op(nil), b.Ops()...)
	return newEra(seq, ops, sum, int64(size)), nil
}

// readEra loads and validates the era file at path.
func readEra(path string, wantSeq uint64) (*Era, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(data) < eraHeaderSize {
		return nil, fmt.Errorf("%w: short header (%d bytes)", ErrCorruptEra, len(data))
	}
	if string(data[0:4]) != eraMagic {
		return nil, fmt.Errorf("%w: bad magic", ErrCorruptEra)
	}
	if f := binary.LittleEndian.Uint16(data[4:6]); f != eraFormat {
		return nil, fmt.Errorf("%w: unsupported format %d", ErrCorruptEra, f)
	}

	seq := binary.LittleEndian.Uint64(data[8:16])
	if seq != wantSeq {
		return nil, fmt.Errorf("%w: sequence %d does not match file name %d", ErrCorruptEra, seq, wantSeq)
	}

	payloadLen := binary.LittleEndian.Uint64(data[16:24])
	if payloadLen != uint64(len(data)-eraHeaderSize) {
		return nil, fmt.Errorf("%w: payload length %d, file holds %d", ErrCorruptEra, payloadLen, len(data)-eraHeaderSize)
	}

	payload := data[eraHeaderSize:]
	var stored [32]byte
	copy(stored[:], data[24:56])
	if checksum(seq, payload) != stored {
		return nil, fmt.Errorf("%w: checksum mismatch", ErrCorruptEra)
	}

	ops, err := batch.Decode(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptEra, err)
	}
	return newEra(seq, ops, stored, int64(len(data))), nil
}
