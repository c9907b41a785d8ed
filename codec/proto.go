package codec

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/unkn0wn-root/precache/record"
)

// Proto encodes record.Record in protobuf wire format without generated code:
//
//	message Header { string name = 1; repeated string values = 2; }
//	message Record {
//	  string method = 1;
//	  string url = 2;
//	  repeated Header request_header = 3;
//	  int32 status = 4;
//	  repeated Header header = 5;
//	  bytes body = 6;
//	  int64 stored_at_unix_nano = 7;
//	}
//
// Unknown fields are skipped on decode. The zero value is ready to use.
type Proto struct{}

var _ Codec[record.Record] = Proto{}

const (
	fieldMethod        protowire.Number = 1
	fieldURL           protowire.Number = 2
	fieldRequestHeader protowire.Number = 3
	fieldStatus        protowire.Number = 4
	fieldHeader        protowire.Number = 5
	fieldBody          protowire.Number = 6
	fieldStoredAt      protowire.Number = 7

	fieldHeaderName  protowire.Number = 1
	fieldHeaderValue protowire.Number = 2
)

var errProtoType = errors.New("codec: unexpected protobuf wire type")

func (Proto) Encode(r record.Record) ([]byte, error) {
	var b []byte
	if r.Method != "" {
		b = protowire.AppendTag(b, fieldMethod, protowire.BytesType)
		b = protowire.AppendString(b, r.Method)
	}
	if r.URL != "" {
		b = protowire.AppendTag(b, fieldURL, protowire.BytesType)
		b = protowire.AppendString(b, r.URL)
	}
	b = appendHeader(b, fieldRequestHeader, r.RequestHeader)
	if r.Status != 0 {
		b = protowire.AppendTag(b, fieldStatus, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(int64(r.Status)))
	}
	b = appendHeader(b, fieldHeader, r.Header)
	if len(r.Body) > 0 {
		b = protowire.AppendTag(b, fieldBody, protowire.BytesType)
		b = protowire.AppendBytes(b, r.Body)
	}
	if !r.StoredAt.IsZero() {
		b = protowire.AppendTag(b, fieldStoredAt, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(r.StoredAt.UnixNano()))
	}
	return b, nil
}

// appendHeader writes one embedded Header message per name, names sorted.
func appendHeader(b []byte, num protowire.Number, h http.Header) []byte {
	names := make([]string, 0, len(h))
	for k := range h {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, name := range names {
		var m []byte
		m = protowire.AppendTag(m, fieldHeaderName, protowire.BytesType)
		m = protowire.AppendString(m, name)
		for _, v := range h[name] {
			m = protowire.AppendTag(m, fieldHeaderValue, protowire.BytesType)
			m = protowire.AppendString(m, v)
		}
		b = protowire.AppendTag(b, num, protowire.BytesType)
		b = protowire.AppendBytes(b, m)
	}
	return b
}

func (Proto) Decode(b []byte) (record.Record, error) {
	var r record.Record
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return record.Record{}, protowire.ParseError(n)
		}
		b = b[n:]

		switch num {
		case fieldMethod, fieldURL, fieldBody:
			if typ != protowire.BytesType {
				return record.Record{}, fmt.Errorf("%w: field %d", errProtoType, num)
			}
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return record.Record{}, protowire.ParseError(n)
			}
			b = b[n:]
			switch num {
			case fieldMethod:
				r.Method = string(v)
			case fieldURL:
				r.URL = string(v)
			default:
				r.Body = append([]byte(nil), v...)
			}
		case fieldRequestHeader, fieldHeader:
			if typ != protowire.BytesType {
				return record.Record{}, fmt.Errorf("%w: field %d", errProtoType, num)
			}
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return record.Record{}, protowire.ParseError(n)
			}
			b = b[n:]
			if num == fieldRequestHeader {
				if r.RequestHeader == nil {
					r.RequestHeader = http.Header{}
				}
				if err := decodeHeader(v, r.RequestHeader); err != nil {
					return record.Record{}, err
				}
			} else {
				if r.Header == nil {
					r.Header = http.Header{}
				}
				if err := decodeHeader(v, r.Header); err != nil {
					return record.Record{}, err
				}
			}
		case fieldStatus, fieldStoredAt:
			if typ != protowire.VarintType {
				return record.Record{}, fmt.Errorf("%w: field %d", errProtoType, num)
			}
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return record.Record{}, protowire.ParseError(n)
			}
			b = b[n:]
			if num == fieldStatus {
				r.Status = int(int32(v))
			} else {
				r.StoredAt = time.Unix(0, int64(v))
			}
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return record.Record{}, protowire.ParseError(n)
			}
			b = b[n:]
		}
	}
	return r, nil
}

func decodeHeader(b []byte, h http.Header) error {
	var name string
	var values []string
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
		if typ != protowire.BytesType {
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			b = b[n:]
			continue
		}
		v, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
		switch num {
		case fieldHeaderName:
			name = string(v)
		case fieldHeaderValue:
			values = append(values, string(v))
		}
	}
	if name == "" {
		return fmt.Errorf("codec: header without name")
	}
	// names are stored canonical already; keep them verbatim
	h[name] = append(h[name], values...)
	return nil
}
