package ec

import (
	"bytes"
	"testing"
)

func roundTrip(t *testing.T, codec Codec, data []byte, drop []int) {
	t.Helper()
	fragments, err := codec.Encode(data)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if len(fragments) != codec.K()+codec.M() {
		t.Fatalf("Encode produced %d fragments, want %d", len(fragments), codec.K()+codec.M())
	}
	for _, i := range drop {
		fragments[i] = nil
	}
	segment, err := codec.Decode(fragments)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(segment) < len(data) || !bytes.Equal(segment[:len(data)], data) {
		t.Fatalf("round trip mismatch: got %d bytes, want prefix matching %d input bytes", len(segment), len(data))
	}
}

func TestReedSolomonRoundTrip(t *testing.T) {
	codec, err := NewCodec(IsaLRSVand, 6, 3)
	if err != nil {
		t.Fatal(err)
	}
	data := make([]byte, int(codec.FragmentSize(1<<20))*6)
	for i := range data {
		data[i] = byte(i % 251)
	}

	for _, drop := range [][]int{nil, {0}, {8}, {0, 8}, {0, 1, 2}} {
		roundTrip(t, codec, data, drop)
	}
}

func TestReedSolomonRejectsUnsupportedAlgo(t *testing.T) {
	if _, err := NewCodec("not-a-real-algo", 6, 3); err == nil {
		t.Fatal("expected error for unsupported algorithm")
	}
}

func TestXORCodecRoundTrip(t *testing.T) {
	codec, err := NewXORCodec(4)
	if err != nil {
		t.Fatal(err)
	}
	data := []byte("the quick brown fox jumps over the lazy dog hello world 01234")

	roundTrip(t, codec, data, nil)
	roundTrip(t, codec, data, []int{2})

	fragments, _ := codec.Encode(data)
	fragments[0] = nil
	fragments[1] = nil
	if _, err := codec.Decode(fragments); err == nil {
		t.Fatal("expected error when two fragments are missing from a single-parity codec")
	}
}

func TestXORCodecMinParityNeeded(t *testing.T) {
	codec, _ := NewXORCodec(4)
	if codec.MinParityNeeded() != 1 {
		t.Fatalf("MinParityNeeded() = %d, want 1", codec.MinParityNeeded())
	}
}
