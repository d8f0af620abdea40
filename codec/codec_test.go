package codec

import (
	"bytes"
	"strings"
	"testing"
)

type sample struct {
	Status int
	Header map[string][]string
	Body   []byte
}

func sampleValue() sample {
	return sample{
		Status: 200,
		Header: map[string][]string{"Content-Type": {"text/css"}},
		Body:   []byte(strings.Repeat("body{margin:0}", 64)),
	}
}

func equalSample(a, b sample) bool {
	if a.Status != b.Status || !bytes.Equal(a.Body, b.Body) || len(a.Header) != len(b.Header) {
		return false
	}
	for k, v := range a.Header {
		if strings.Join(b.Header[k], ",") != strings.Join(v, ",") {
			return false
		}
	}
	return true
}

func TestCodecsPreserveValue(t *testing.T) {
	cb, err := NewCBOR[sample](true)
	if err != nil {
		t.Fatalf("NewCBOR: %v", err)
	}
	z, err := NewZstd[sample](Msgpack[sample]{}, 0)
	if err != nil {
		t.Fatalf("NewZstd: %v", err)
	}
	t.Cleanup(z.Close)

	codecs := map[string]Codec[sample]{
		"json":         JSON[sample]{},
		"cbor":         cb,
		"msgpack":      Msgpack[sample]{},
		"zstd+msgpack": z,
	}
	in := sampleValue()
	for name, c := range codecs {
		b, err := c.Encode(in)
		if err != nil {
			t.Fatalf("%s: Encode: %v", name, err)
		}
		out, err := c.Decode(b)
		if err != nil {
			t.Fatalf("%s: Decode: %v", name, err)
		}
		if !equalSample(in, out) {
			t.Fatalf("%s: value changed: %+v", name, out)
		}
	}
}

func TestZstdShrinksRepetitiveBodies(t *testing.T) {
	z, err := NewZstd[sample](Msgpack[sample]{}, 0)
	if err != nil {
		t.Fatal(err)
	}
	defer z.Close()

	plain, _ := Msgpack[sample]{}.Encode(sampleValue())
	packed, err := z.Encode(sampleValue())
	if err != nil {
		t.Fatal(err)
	}
	if len(packed) >= len(plain) {
		t.Fatalf("compressed %d >= plain %d", len(packed), len(plain))
	}
}

func TestLimitRejectsOversizedPayload(t *testing.T) {
	c := Limit[sample]{Inner: JSON[sample]{}, MaxDecode: 8}
	b, err := c.Encode(sampleValue())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.Decode(b); err == nil {
		t.Fatalf("expected size error")
	}

	open := Limit[sample]{Inner: JSON[sample]{}}
	if _, err := open.Decode(b); err != nil {
		t.Fatalf("MaxDecode=0 should not limit: %v", err)
	}
}
