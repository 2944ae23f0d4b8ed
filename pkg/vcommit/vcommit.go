// Package vcommit implements the virtual commit: the deterministic merge of
// all pending journal eras, staged durably on disk as the single unit a
// flush applies to the mapped store.
//
// File layout:
//
//	header (64):  magic "ERVC" | format u16 | reserved u16 | flush id (16) |
//	              first seq u64 | last seq u64 | entry count u32 | payload len u64
//	payload:      batch encoding of the merged ops, sorted by key
//	marker (40):  magic "MARK" | reserved u32 | sha3-256(header || payload)
//
// Header and payload are written and fsynced first; the marker is appended
// and fsynced last. Only a file whose marker validates is a virtual commit.
package vcommit

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"slices"

	"github.com/google/uuid"
	"golang.org/x/crypto/sha3"

	"github.com/marmos91/eradb/internal/bufpool"
	"github.com/marmos91/eradb/internal/fsutil"
	"github.com/marmos91/eradb/pkg/batch"
	"github.com/marmos91/eradb/pkg/journal"
)

const (
	// FileName is the name of the staged virtual commit in the database dir.
	FileName = "flush.vc"

	headerMagic = "ERVC"
	markerMagic = "MARK"
	format      = uint16(1)
	headerSize  = 64
	markerSize  = 40
)

// VirtualCommit is the merged content of a contiguous range of eras.
type VirtualCommit struct {
	ID       uuid.UUID
	FirstSeq uint64
	LastSeq  uint64

	// Ops holds one op per key, sorted by key.
	Ops []batch.Op

	digest [32]byte
}

// Build merges eras, oldest first, into a virtual commit. For every key the
// op from the era with the highest sequence wins.
func Build(eras []*journal.Era) *VirtualCommit {
	vc := &VirtualCommit{ID: uuid.New()}
	if len(eras) == 0 {
		return vc
	}

	lists := make([][]batch.Op, len(eras))
	for i, e := range eras {
		lists[i] = e.Ops
	}
	vc.FirstSeq = eras[0].Sequence
	vc.LastSeq = eras[len(eras)-1].Sequence
	vc.Ops = batch.Merge(lists...)
	return vc
}

// Empty reports whether the virtual commit carries no ops.
func (vc *VirtualCommit) Empty() bool {
	return len(vc.Ops) == 0
}

// Lookup returns the merged op for key.
func (vc *VirtualCommit) Lookup(key []byte) (batch.Op, bool) {
	i, ok := slices.BinarySearchFunc(vc.Ops, key, func(op batch.Op, k []byte) int {
		return bytes.Compare(op.Key, k)
	})
	if !ok {
		return batch.Op{}, false
	}
	return vc.Ops[i], true
}

// Digest returns the sha3-256 of header and payload. It is set once the
// content has been written or loaded.
func (vc *VirtualCommit) Digest() [32]byte {
	return vc.digest
}

func (vc *VirtualCommit) encodeHeader(dst []byte, payloadLen int) {
	clear(dst[:headerSize])
	copy(dst[0:4], headerMagic)
	binary.LittleEndian.PutUint16(dst[4:6], format)
	copy(dst[8:24], vc.ID[:])
	binary.LittleEndian.PutUint64(dst[24:32], vc.FirstSeq)
	binary.LittleEndian.PutUint64(dst[32:40], vc.LastSeq)
	binary.LittleEndian.PutUint32(dst[40:44], uint32(len(vc.Ops)))
	binary.LittleEndian.PutUint64(dst[44:52], uint64(payloadLen))
}

func digest(content []byte) [32]byte {
	return sha3.Sum256(content)
}

// WriteContent creates the virtual commit file at path holding header and
// payload, fsyncs it and its directory. It fails with ErrExists if a file is
// already staged.
func WriteContent(path string, vc *VirtualCommit) error {
	payloadLen := batch.EncodedLen(vc.Ops)
	buf := bufpool.Get(headerSize + payloadLen)
	defer bufpool.Put(buf)

	vc.encodeHeader(buf, payloadLen)
	batch.EncodeOps(buf[headerSize:], vc.Ops)

	if err := fsutil.CreateExclusive(path, 0o644, buf); err != nil {
		if errors.Is(err, os.ErrExist) {
			return ErrExists
		}
		return fmt.Errorf("stage virtual commit: %w", err)
	}
	vc.digest = digest(buf)
	return nil
}

// WriteMarker appends the completion marker to a staged file and fsyncs it.
// After WriteMarker returns the virtual commit is durable.
func WriteMarker(path string, vc *VirtualCommit) error {
	var marker [markerSize]byte
	copy(marker[0:4], markerMagic)
	copy(marker[8:40], vc.digest[:])

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0)
	if err != nil {
		return fmt.Errorf("open virtual commit: %w", err)
	}
	if _, err := f.Write(marker[:]); err != nil {
		_ = f.Close()
		return fmt.Errorf("write marker: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("sync marker: %w", err)
	}
	return f.Close()
}

// Load reads and validates the virtual commit at path. A missing file returns
// an error satisfying os.IsNotExist; anything short of a fully marked, valid
// file returns ErrCorruptVirtualCommit.
func Load(path string) (*VirtualCommit, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(data) < headerSize+markerSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrCorruptVirtualCommit, len(data))
	}
	if string(data[0:4]) != headerMagic {
		return nil, fmt.Errorf("%w: bad header magic", ErrCorruptVirtualCommit)
	}
	if f := binary.LittleEndian.Uint16(data[4:6]); f != format {
		return nil, fmt.Errorf("%w: unsupported format %d", ErrCorruptVirtualCommit, f)
	}

	payloadLen := binary.LittleEndian.Uint64(data[44:52])
	if uint64(len(data)) != headerSize+payloadLen+markerSize {
		return nil, fmt.Errorf("%w: size %d does not match payload length %d", ErrCorruptVirtualCommit, len(data), payloadLen)
	}

	contentLen := headerSize + int(payloadLen)
	marker := data[contentLen:]
	if string(marker[0:4]) != markerMagic {
		return nil, fmt.Errorf("%w: marker not set", ErrCorruptVirtualCommit)
	}
	sum := digest(data[:contentLen])
	if !bytes.Equal(sum[:], marker[8:40]) {
		return nil, fmt.Errorf("%w: digest mismatch", ErrCorruptVirtualCommit)
	}

	vc := &VirtualCommit{
		FirstSeq: binary.LittleEndian.Uint64(data[24:32]),
		LastSeq:  binary.LittleEndian.Uint64(data[32:40]),
		digest:   sum,
	}
	copy(vc.ID[:], data[8:24])

	ops, err := batch.Decode(data[headerSize:contentLen])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptVirtualCommit, err)
	}
	if count := binary.LittleEndian.Uint32(data[40:44]); int(count) != len(ops) {
		return nil, fmt.Errorf("%w: entry count %d, decoded %d", ErrCorruptVirtualCommit, count, len(ops))
	}
	for i := 1; i < len(ops); i++ {
		if bytes.Compare(ops[i-1].Key, ops[i].Key) >= 0 {
			return nil, fmt.Errorf("%w: entries out of order", ErrCorruptVirtualCommit)
		}
	}
	if vc.FirstSeq > vc.LastSeq {
		return nil, fmt.Errorf("%w: sequence range %d..%d", ErrCorruptVirtualCommit, vc.FirstSeq, vc.LastSeq)
	}
	vc.Ops = ops
	return vc, nil
}

// Exists reports whether a file, valid or not, is staged at path.
func Exists(path string) (bool, error) {
	_, err := os.Stat(path)
	switch {
	case err == nil:
		return true, nil
	case os.IsNotExist(err):
		return false, nil
	default:
		return false, err
	}
}

// Remove deletes the staged file and fsyncs its directory.
func Remove(path string) error {
	if err := fsutil.Remove(path); err != nil {
		return fmt.Errorf("remove virtual commit: %w", err)
	}
	return nil
}
