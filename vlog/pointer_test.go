package vlog

import (
	"bytes"
	"testing"
)

func TestPointerEncodeFieldOrder(t *testing.T) {
	p := ValuePointer{Fid: 1, Offset: 2, Len: 3}
	var buf bytes.Buffer
	if err := p.Encode(&buf); err != nil {
		t.Fatal(err)
	}
	if buf.Len() != PointerSize {
		t.Fatalf("encoded size = %d, want %d", buf.Len(), PointerSize)
	}
	// fid(4) len(4) offset(4), big-endian — len precedes offset on the wire.
	want := []byte{0, 0, 0, 1, 0, 0, 0, 3, 0, 0, 0, 2}
	if !bytes.Equal(buf.Bytes(), want) {
		t.Fatalf("wire bytes = %v, want %v", buf.Bytes(), want)
	}
}

func TestPointerRoundTrip(t *testing.T) {
	p := ValuePointer{Fid: 42, Offset: 1000, Len: 17}
	var buf bytes.Buffer
	if err := p.Encode(&buf); err != nil {
		t.Fatal(err)
	}
	got, err := DecodePointer(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatal(err)
	}
	if got != p {
		t.Fatalf("got %+v, want %+v", got, p)
	}
}
