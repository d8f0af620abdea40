package ristretto

import (
	"bytes"
	"context"
	"testing"
)

func TestConfigValidation(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatalf("expected error for empty config")
	}
}

func TestReadYourWrite(t *testing.T) {
	ctx := context.Background()
	p, err := New(Config{NumCounters: 1000, MaxCost: 1 << 20, BufferItems: 64})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = p.Close(ctx) })

	frame := []byte("frame")
	if ok, err := p.Set(ctx, "k", frame, 0, 0); !ok || err != nil {
		t.Fatalf("Set: ok=%v err=%v", ok, err)
	}
	got, ok, err := p.Get(ctx, "k")
	if err != nil || !ok || !bytes.Equal(got, frame) {
		t.Fatalf("Get right after Set: ok=%v err=%v got=%q", ok, err, got)
	}
	if err := p.Del(ctx, "k"); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := p.Get(ctx, "k"); ok {
		t.Fatalf("expected miss after Del")
	}
}
