package codec

import (
	"bytes"
	"net/http"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/unkn0wn-root/precache/record"
)

func sampleRecord() record.Record {
	return record.Record{
		Method:        http.MethodGet,
		URL:           "https://example.com/static/styles.css?v=3",
		RequestHeader: http.Header{"Accept": {"text/css"}},
		Status:        http.StatusOK,
		Header: http.Header{
			"Content-Type": {"text/css"},
			"Vary":         {"Accept", "Accept-Encoding"},
		},
		Body:     []byte("body{margin:0}"),
		StoredAt: time.Unix(1700000000, 123456789),
	}
}

func assertSameRecord(t *testing.T, name string, got, want record.Record) {
	t.Helper()
	if got.Method != want.Method || got.URL != want.URL || got.Status != want.Status {
		t.Fatalf("%s: scalar mismatch: got=%+v want=%+v", name, got, want)
	}
	if !reflect.DeepEqual(got.RequestHeader, want.RequestHeader) || !reflect.DeepEqual(got.Header, want.Header) {
		t.Fatalf("%s: header mismatch: got=%v/%v want=%v/%v", name, got.RequestHeader, got.Header, want.RequestHeader, want.Header)
	}
	if !bytes.Equal(got.Body, want.Body) {
		t.Fatalf("%s: body mismatch", name)
	}
	if !got.StoredAt.Equal(want.StoredAt) {
		t.Fatalf("%s: stored_at %v want %v", name, got.StoredAt, want.StoredAt)
	}
}

func TestRecordCodecs(t *testing.T) {
	codecs := map[string]Codec[record.Record]{
		"json":     JSON[record.Record]{},
		"cbor":     MustCBOR[record.Record](CBOROptions{}),
		"cbor-det": MustCBOR[record.Record](CBOROptions{Deterministic: true}),
		"msgpack":  Msgpack[record.Record]{},
		"proto":    Proto{},
	}
	want := sampleRecord()
	for name, c := range codecs {
		b, err := c.Encode(want)
		if err != nil {
			t.Fatalf("%s encode: %v", name, err)
		}
		got, err := c.Decode(b)
		if err != nil {
			t.Fatalf("%s decode: %v", name, err)
		}
		assertSameRecord(t, name, got, want)
	}
}

func TestProtoRejectsGarbage(t *testing.T) {
	if _, err := (Proto{}).Decode([]byte{0x0a, 0xff}); err == nil {
		t.Fatalf("expected error on truncated bytes field")
	}
	// field 4 (status) sent as bytes
	if _, err := (Proto{}).Decode([]byte{0x22, 0x00}); err == nil {
		t.Fatalf("expected wire type error")
	}
}

func TestProtoSkipsUnknownFields(t *testing.T) {
	b, _ := (Proto{}).Encode(record.Record{URL: "/x", Status: 200})
	// field 15, varint 1
	b = append(b, 0x78, 0x01)
	got, err := (Proto{}).Decode(b)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.URL != "/x" || got.Status != 200 {
		t.Fatalf("got %+v", got)
	}
}

func TestLimit(t *testing.T) {
	c := Limit[record.Record]{Inner: Proto{}, MaxDecode: 8}
	b, err := c.Encode(sampleRecord())
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if _, err := c.Decode(b); err == nil || !strings.Contains(err.Error(), "too large") {
		t.Fatalf("expected size error, got %v", err)
	}

	enc := Limit[record.Record]{Inner: Proto{}, MaxEncode: 8}
	if _, err := enc.Encode(sampleRecord()); err == nil {
		t.Fatalf("expected encode size error")
	}

	open := Limit[record.Record]{Inner: Proto{}}
	b, _ = open.Encode(sampleRecord())
	if _, err := open.Decode(b); err != nil {
		t.Fatalf("unlimited decode: %v", err)
	}
}

func TestCBORBodiesAreBoundedByLimit(t *testing.T) {
	rec := sampleRecord()
	rec.Body = bytes.Repeat([]byte("a"), 4096)

	c := Limit[record.Record]{Inner: MustCBOR[record.Record](CBOROptions{}), MaxDecode: 1024}
	b, err := c.Encode(rec)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if _, err := c.Decode(b); err == nil || !strings.Contains(err.Error(), "too large") {
		t.Fatalf("expected size error, got %v", err)
	}

	c.MaxDecode = len(b)
	got, err := c.Decode(b)
	if err != nil {
		t.Fatalf("decode at limit: %v", err)
	}
	assertSameRecord(t, "cbor", got, rec)
}
