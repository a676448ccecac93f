package vlog

import (
	"bytes"
	"errors"
	"testing"

	"github.com/wisckeydb/storage/kverrors"
)

func TestRecordRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		v    Value
	}{
		{"small", Value{Key: []byte("k"), Value: []byte("v")}},
		{"empty value", Value{Key: []byte("key"), Value: []byte{}}},
		{"empty key", Value{Key: []byte{}, Value: []byte("value")}},
		{"binary", Value{Key: []byte{0, 1, 2, 3}, Value: []byte{9, 8, 7}}},
		{"large", Value{Key: bytes.Repeat([]byte("k"), 1024), Value: bytes.Repeat([]byte("v"), 4096)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			n, err := tt.v.Encode(&buf)
			if err != nil {
				t.Fatalf("encode: %v", err)
			}
			want := 8 + len(tt.v.Key) + len(tt.v.Value) + 4
			if n != want {
				t.Fatalf("encoded length = %d, want %d", n, want)
			}
			if buf.Len() != want {
				t.Fatalf("buffer length = %d, want %d", buf.Len(), want)
			}

			got, err := Decode(bytes.NewReader(buf.Bytes()))
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if !bytes.Equal(got.Key, tt.v.Key) || !bytes.Equal(got.Value, tt.v.Value) {
				t.Fatalf("round trip mismatch: got %+v, want %+v", got, tt.v)
			}
		})
	}
}

func TestRecordEncodePayloadBytes(t *testing.T) {
	v := Value{Key: []byte{1, 2, 3, 4}, Value: []byte{5, 6, 7, 8, 9, 10}}
	var buf bytes.Buffer
	if _, err := v.Encode(&buf); err != nil {
		t.Fatal(err)
	}
	b := buf.Bytes()
	payload := b[8 : len(b)-4]
	if !bytes.Equal(payload, []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}) {
		t.Fatalf("unexpected payload bytes: %v", payload)
	}
}

func TestDecodeDetectsCorruption(t *testing.T) {
	v := Value{Key: []byte("key"), Value: []byte("value")}
	var buf bytes.Buffer
	if _, err := v.Encode(&buf); err != nil {
		t.Fatal(err)
	}

	corrupted := buf.Bytes()
	corrupted[len(corrupted)-1] ^= 0xFF // flip every bit of the CRC field's last byte

	_, err := Decode(bytes.NewReader(corrupted))
	if !errors.Is(err, kverrors.ErrCorruptRecord) {
		t.Fatalf("expected ErrCorruptRecord, got %v", err)
	}
}

func TestDecodeDetectsPayloadCorruption(t *testing.T) {
	v := Value{Key: []byte("key"), Value: []byte("value")}
	var buf bytes.Buffer
	if _, err := v.Encode(&buf); err != nil {
		t.Fatal(err)
	}

	corrupted := buf.Bytes()
	corrupted[10] ^= 0x01 // flip a bit inside the key

	_, err := Decode(bytes.NewReader(corrupted))
	if !errors.Is(err, kverrors.ErrCorruptRecord) {
		t.Fatalf("expected ErrCorruptRecord, got %v", err)
	}
}

func TestDecodeShortRead(t *testing.T) {
	_, err := Decode(bytes.NewReader([]byte{0, 0, 0, 1}))
	if err == nil {
		t.Fatal("expected error on truncated header")
	}
}
