package codec

import (
	"github.com/klauspost/compress/zstd"
)

// Zstd compresses the output of an inner codec. Text assets (HTML, JSON, JS,
// CSS) shrink a lot; already-compressed images barely change, so keep it off
// for image-only stores.
//
// Encoder and decoder are safe for concurrent EncodeAll/DecodeAll use.
type Zstd[V any] struct {
	inner Codec[V]
	enc   *zstd.Encoder
	dec   *zstd.Decoder
}

func NewZstd[V any](inner Codec[V], level zstd.EncoderLevel) (*Zstd[V], error) {
	if level == 0 {
		level = zstd.SpeedDefault
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(level))
	if err != nil {
		return nil, err
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		_ = enc.Close()
		return nil, err
	}
	return &Zstd[V]{inner: inner, enc: enc, dec: dec}, nil
}

func (z *Zstd[V]) Encode(v V) ([]byte, error) {
	raw, err := z.inner.Encode(v)
	if err != nil {
		return nil, err
	}
	return z.enc.EncodeAll(raw, make([]byte, 0, len(raw)/2)), nil
}

func (z *Zstd[V]) Decode(b []byte) (V, error) {
	raw, err := z.dec.DecodeAll(b, nil)
	if err != nil {
		var zero V
		return zero, err
	}
	return z.inner.Decode(raw)
}

// Close releases the decoder's background goroutines.
func (z *Zstd[V]) Close() {
	z.dec.Close()
	_ = z.enc.Close()
}
