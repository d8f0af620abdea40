package storage

import (
	"net/http"
	"time"
)

// Entry is a stored response. URL and StoredAt come from the wire frame and
// are not part of the codec payload.
type Entry struct {
	URL      string    `json:"-" cbor:"-" msgpack:"-"`
	StoredAt time.Time `json:"-" cbor:"-" msgpack:"-"`

	Status int         `json:"status" cbor:"status" msgpack:"status"`
	Header http.Header `json:"header,omitempty" cbor:"header,omitempty" msgpack:"header,omitempty"`
	Body   []byte      `json:"body,omitempty" cbor:"body,omitempty" msgpack:"body,omitempty"`
}

// OK reports whether the stored status is 2xx.
func (e Entry) OK() bool { return e.Status >= 200 && e.Status < 300 }
