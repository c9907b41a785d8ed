package wire

import (
	"bytes"
	"encoding/binary"
	"math"
	"strings"
	"testing"
)

func mustDecodeEntry(t *testing.T, b []byte) (uint64, [][]byte) {
	t.Helper()
	epoch, p, err := DecodeEntry(b)
	if err != nil {
		t.Fatalf("DecodeEntry error: %v", err)
	}
	return epoch, p
}

func TestEntryEmptyAndNonEmpty(t *testing.T) {
	cases := []struct {
		epoch    uint64
		payloads [][]byte
	}{
		{0, nil},
		{42, [][]byte{[]byte("hello")}},
		{math.MaxUint64, [][]byte{{0, 1, 2}, nil, []byte("variant")}},
	}
	for _, tc := range cases {
		enc := EncodeEntry(tc.epoch, tc.payloads)
		epoch, got := mustDecodeEntry(t, enc)
		if epoch != tc.epoch {
			t.Fatalf("epoch mismatch: got %d want %d", epoch, tc.epoch)
		}
		if len(got) != len(tc.payloads) {
			t.Fatalf("payload count: got %d want %d", len(got), len(tc.payloads))
		}
		for i := range got {
			if !bytes.Equal(got[i], tc.payloads[i]) {
				t.Fatalf("payload %d mismatch: got %x want %x", i, got[i], tc.payloads[i])
			}
		}
	}
}

func TestEntryRejectsTrailingBytes(t *testing.T) {
	enc := EncodeEntry(7, [][]byte{[]byte("x")})
	enc = append(enc, 0xDE, 0xAD)
	if _, _, err := DecodeEntry(enc); err == nil {
		t.Fatalf("expected error on trailing bytes")
	}
}

func TestEntryCorruptHeadersAndLengths(t *testing.T) {
	enc := EncodeEntry(1, [][]byte{[]byte("abc")})

	badMagic := append([]byte(nil), enc...)
	badMagic[0] = 'X'
	if _, _, err := DecodeEntry(badMagic); err == nil {
		t.Fatalf("expected error on bad magic")
	}

	badVer := append([]byte(nil), enc...)
	badVer[4] = version + 1
	if _, _, err := DecodeEntry(badVer); err == nil {
		t.Fatalf("expected error on bad version")
	}

	badKind := append([]byte(nil), enc...)
	badKind[5] = kindIndex
	if _, _, err := DecodeEntry(badKind); err == nil {
		t.Fatalf("expected error on bad kind")
	}

	// vlen of the first payload sits right after the header
	tooLong := append([]byte(nil), enc...)
	binary.BigEndian.PutUint32(tooLong[header:header+4], uint32(len("abc")+1))
	if _, _, err := DecodeEntry(tooLong); err == nil {
		t.Fatalf("expected error on vlen beyond buffer")
	}

	if _, _, err := DecodeEntry(enc[:len(enc)-1]); err == nil {
		t.Fatalf("expected error on truncated buffer")
	}

	bogusN := append([]byte(nil), enc[:header]...)
	binary.BigEndian.PutUint32(bogusN[14:18], ^uint32(0))
	if _, _, err := DecodeEntry(bogusN); err == nil {
		t.Fatalf("expected error on bogus n")
	}
}

func TestEntryZeroCopyPayload(t *testing.T) {
	enc := EncodeEntry(1, [][]byte{[]byte("Z")})
	_, p := mustDecodeEntry(t, enc)
	p[0][0] = 'Q'
	_, p2 := mustDecodeEntry(t, enc)
	if p2[0][0] != 'Q' {
		t.Fatalf("expected zero-copy slice into enc buffer")
	}
}

func TestIndexRoundTrip(t *testing.T) {
	cases := []Index{
		{Epoch: 0},
		{Epoch: 3, Keys: []string{"https://example.com/"}},
		{Epoch: 9, Keys: []string{"a", "b", "c"}},
	}
	for _, idx := range cases {
		enc, err := EncodeIndex(idx)
		if err != nil {
			t.Fatalf("EncodeIndex: %v", err)
		}
		got, err := DecodeIndex(enc)
		if err != nil {
			t.Fatalf("DecodeIndex: %v", err)
		}
		if got.Epoch != idx.Epoch || len(got.Keys) != len(idx.Keys) {
			t.Fatalf("got=%+v want=%+v", got, idx)
		}
		for i := range idx.Keys {
			if got.Keys[i] != idx.Keys[i] {
				t.Fatalf("key %d: got %q want %q", i, got.Keys[i], idx.Keys[i])
			}
		}
	}
}

func TestIndexKeyLengthValidation(t *testing.T) {
	if _, err := EncodeIndex(Index{Keys: []string{""}}); err == nil {
		t.Fatalf("expected error on empty key")
	}
	if _, err := EncodeIndex(Index{Keys: []string{strings.Repeat("a", 0x10000)}}); err == nil {
		t.Fatalf("expected error on key length > 0xFFFF")
	}
	if _, err := EncodeIndex(Index{Keys: []string{strings.Repeat("b", 0xFFFF)}}); err != nil {
		t.Fatalf("boundary key length should succeed: %v", err)
	}
}

func TestIndexCorrupt(t *testing.T) {
	enc, err := EncodeIndex(Index{Epoch: 1, Keys: []string{"k"}})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := DecodeIndex(append(append([]byte(nil), enc...), 0x00)); err == nil {
		t.Fatalf("expected error on trailing bytes")
	}

	badKind := append([]byte(nil), enc...)
	badKind[5] = kindEntry
	if _, err := DecodeIndex(badKind); err == nil {
		t.Fatalf("expected error on bad kind")
	}

	badKlen := append([]byte(nil), enc...)
	binary.BigEndian.PutUint16(badKlen[header:header+2], 5)
	if _, err := DecodeIndex(badKlen); err == nil {
		t.Fatalf("expected error on klen beyond buffer")
	}
}
