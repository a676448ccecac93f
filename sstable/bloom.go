package sstable

import (
	"bytes"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/pkg/errors"
)

// bloomEstimatedKeys sizes the builder's bloom filter. A table holds at most
// one memtable flush's worth of keys; this bound keeps the false-positive
// rate low without the builder needing to know the key count up front.
const bloomEstimatedKeys = 100000

// MayContain reports whether key could be present in the table. A false
// result is definitive; a true result may be a false positive.
func (t *Table) MayContain(key []byte) (bool, error) {
	f, err := t.bloomFilter()
	if err != nil {
		return false, err
	}
	return f.Test(key), nil
}

// bloomFilter lazily decodes the trailer's bloom payload. Parsed once per
// Table since the mapping is immutable for the Table's lifetime.
func (t *Table) bloomFilter() (*bloom.BloomFilter, error) {
	if t.bloom != nil {
		return t.bloom, nil
	}
	f := &bloom.BloomFilter{}
	if _, err := f.ReadFrom(bytes.NewReader(t.bloomPayload)); err != nil {
		return nil, errors.Wrap(err, "sstable: decode bloom filter payload")
	}
	t.bloom = f
	return t.bloom, nil
}
