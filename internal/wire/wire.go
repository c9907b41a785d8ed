package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	version   byte = 1
	kindEntry byte = 1
	kindIndex byte = 2
)

var (
	ErrCorrupt = errors.New("precache: corrupt entry")
	magic4     = [...]byte{'P', 'R', 'C', 'H'}
)

const header = 4 + 1 + 1 + 8 + 4 // magic | ver | kind | epoch | n

func hasMagic(b []byte) bool {
	return len(b) >= 4 && bytes.Equal(b[:4], magic4[:])
}

func writeHeader(buf *bytes.Buffer, kind byte, epoch uint64, n int) {
	buf.Write(magic4[:])
	buf.WriteByte(version)
	buf.WriteByte(kind)

	var u8 [8]byte
	var u4 [4]byte
	binary.BigEndian.PutUint64(u8[:], epoch)
	buf.Write(u8[:])
	binary.BigEndian.PutUint32(u4[:], uint32(n))
	buf.Write(u4[:])
}

func readHeader(b []byte, kind byte) (epoch uint64, n int, off int, err error) {
	if len(b) < header || !hasMagic(b) || b[4] != version || b[5] != kind {
		return 0, 0, 0, ErrCorrupt
	}
	epoch = binary.BigEndian.Uint64(b[6:14])
	n = int(binary.BigEndian.Uint32(b[14:18]))
	if n < 0 {
		return 0, 0, 0, ErrCorrupt
	}
	return epoch, n, header, nil
}

// Entry: magic(4) | ver(1) | kind(1=entry) | epoch(u64 be) | n(u32 be)
//
//	vlen(u32 be) | payload(vlen) * n
//
// An entry holds every stored variant of one URL within a generation.
func EncodeEntry(epoch uint64, payloads [][]byte) []byte {
	total := header
	for _, p := range payloads {
		total += 4 + len(p)
	}

	var buf bytes.Buffer
	buf.Grow(total)
	writeHeader(&buf, kindEntry, epoch, len(payloads))

	var u4 [4]byte
	for _, p := range payloads {
		binary.BigEndian.PutUint32(u4[:], uint32(len(p)))
		buf.Write(u4[:])
		buf.Write(p)
	}
	return buf.Bytes()
}

// DecodeEntry returns the epoch and payload sub-slices of b (zero-copy).
// Trailing bytes are treated as corruption.
func DecodeEntry(b []byte) (epoch uint64, payloads [][]byte, err error) {
	epoch, n, off, err := readHeader(b, kindEntry)
	if err != nil {
		return 0, nil, err
	}
	// every payload needs at least its length prefix
	if n > (len(b)-off)/4 {
		return 0, nil, ErrCorrupt
	}

	payloads = make([][]byte, 0, n)
	for i := 0; i < n; i++ {
		if off+4 > len(b) {
			return 0, nil, ErrCorrupt
		}
		vlen := int(binary.BigEndian.Uint32(b[off : off+4]))
		off += 4
		if vlen < 0 || vlen > len(b)-off {
			return 0, nil, ErrCorrupt
		}
		payloads = append(payloads, b[off:off+vlen])
		off += vlen
	}
	if off != len(b) {
		return 0, nil, ErrCorrupt
	}
	return epoch, payloads, nil
}

// Index: magic(4) | ver(1) | kind(2=index) | epoch(u64 be) | n(u32 be)
//
//	keyLen(u16 be) | key(keyLen) * n
//
// The index is the commit point of a generation: entries written under
// an epoch become visible only once an index carrying that epoch is stored.
type Index struct {
	Epoch uint64
	Keys  []string
}

func EncodeIndex(idx Index) ([]byte, error) {
	total := header
	for _, k := range idx.Keys {
		total += 2 + len(k)
	}

	var buf bytes.Buffer
	buf.Grow(total)
	writeHeader(&buf, kindIndex, idx.Epoch, len(idx.Keys))

	var u2 [2]byte
	for _, k := range idx.Keys {
		if l := len(k); l == 0 || l > 0xFFFF {
			return nil, fmt.Errorf("precache: invalid index key length %d", l)
		}
		binary.BigEndian.PutUint16(u2[:], uint16(len(k)))
		buf.Write(u2[:])
		buf.WriteString(k)
	}
	return buf.Bytes(), nil
}

func DecodeIndex(b []byte) (Index, error) {
	epoch, n, off, err := readHeader(b, kindIndex)
	if err != nil {
		return Index{}, err
	}
	if n > (len(b)-off)/2 {
		return Index{}, ErrCorrupt
	}

	keys := make([]string, 0, n)
	for i := 0; i < n; i++ {
		if off+2 > len(b) {
			return Index{}, ErrCorrupt
		}
		klen := int(binary.BigEndian.Uint16(b[off : off+2]))
		off += 2
		if klen <= 0 || klen > len(b)-off {
			return Index{}, ErrCorrupt
		}
		keys = append(keys, string(b[off:off+klen]))
		off += klen
	}
	if off != len(b) {
		return Index{}, ErrCorrupt
	}
	return Index{Epoch: epoch, Keys: keys}, nil
}
