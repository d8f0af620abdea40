package storage

import (
	"errors"
	"net/http"

	"google.golang.org/protobuf/encoding/protowire"
)

// ProtoCodec encodes entries in protobuf wire format without generated code:
//
//	message Entry {
//	  int64  status = 1;
//	  repeated Header header = 2; // one record per value, order preserved
//	  bytes  body   = 3;
//	}
//	message Header { string name = 1; string value = 2; }
//
// Unknown fields are skipped so newer writers stay readable.
type ProtoCodec struct{}

const (
	fieldStatus protowire.Number = 1
	fieldHeader protowire.Number = 2
	fieldBody   protowire.Number = 3

	fieldHeaderName  protowire.Number = 1
	fieldHeaderValue protowire.Number = 2
)

var errProtoType = errors.New("storage: unexpected protobuf wire type")

func (ProtoCodec) Encode(e Entry) ([]byte, error) {
	b := make([]byte, 0, len(e.Body)+64)
	b = protowire.AppendTag(b, fieldStatus, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(e.Status))
	for name, values := range e.Header {
		for _, v := range values {
			var h []byte
			h = protowire.AppendTag(h, fieldHeaderName, protowire.BytesType)
			h = protowire.AppendString(h, name)
			h = protowire.AppendTag(h, fieldHeaderValue, protowire.BytesType)
			h = protowire.AppendString(h, v)
			b = protowire.AppendTag(b, fieldHeader, protowire.BytesType)
			b = protowire.AppendBytes(b, h)
		}
	}
	if len(e.Body) > 0 {
		b = protowire.AppendTag(b, fieldBody, protowire.BytesType)
		b = protowire.AppendBytes(b, e.Body)
	}
	return b, nil
}

func (ProtoCodec) Decode(b []byte) (Entry, error) {
	var e Entry
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return Entry{}, protowire.ParseError(n)
		}
		b = b[n:]
		switch num {
		case fieldStatus:
			if typ != protowire.VarintType {
				return Entry{}, errProtoType
			}
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return Entry{}, protowire.ParseError(n)
			}
			e.Status = int(v)
			b = b[n:]
		case fieldHeader:
			if typ != protowire.BytesType {
				return Entry{}, errProtoType
			}
			raw, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return Entry{}, protowire.ParseError(n)
			}
			name, value, err := decodeHeader(raw)
			if err != nil {
				return Entry{}, err
			}
			if e.Header == nil {
				e.Header = make(http.Header)
			}
			e.Header[name] = append(e.Header[name], value)
			b = b[n:]
		case fieldBody:
			if typ != protowire.BytesType {
				return Entry{}, errProtoType
			}
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return Entry{}, protowire.ParseError(n)
			}
			e.Body = append([]byte(nil), v...)
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return Entry{}, protowire.ParseError(n)
			}
			b = b[n:]
		}
	}
	return e, nil
}

func decodeHeader(b []byte) (name, value string, err error) {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return "", "", protowire.ParseError(n)
		}
		b = b[n:]
		if typ != protowire.BytesType {
			n = protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return "", "", protowire.ParseError(n)
			}
			b = b[n:]
			continue
		}
		v, n := protowire.ConsumeString(b)
		if n < 0 {
			return "", "", protowire.ParseError(n)
		}
		switch num {
		case fieldHeaderName:
			name = v
		case fieldHeaderValue:
			value = v
		}
		b = b[n:]
	}
	return name, value, nil
}
