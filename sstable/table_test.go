package sstable

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

func buildTestTable(t *testing.T, records [][2]string, blockSize int) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "000001.sst")

	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	var opts []BuilderOption
	if blockSize > 0 {
		opts = append(opts, WithBlockSize(blockSize))
	}
	b := NewBuilder(f, opts...)
	for _, rec := range records {
		if err := b.Add([]byte(rec[0]), []byte(rec[1])); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := b.Finish(); err != nil {
		t.Fatal(err)
	}
	return path
}

func openTestTable(t *testing.T, path string, mode LoadMode) *Table {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	tbl, err := Open(1, f, mode)
	if err != nil {
		t.Fatal(err)
	}
	return tbl
}

func sortedRecords(n int) [][2]string {
	records := make([][2]string, n)
	for i := 0; i < n; i++ {
		records[i] = [2]string{fmt.Sprintf("key-%05d", i), fmt.Sprintf("value-%d", i)}
	}
	return records
}

func TestBuilderReaderRoundTrip(t *testing.T) {
	records := sortedRecords(500)

	for _, mode := range []LoadMode{MemoryMap, LoadToRAM} {
		path := buildTestTable(t, records, 256)
		tbl := openTestTable(t, path, mode)
		defer tbl.Close()

		it := tbl.Iter()
		i := 0
		for it.Next() {
			if string(it.Key()) != records[i][0] || string(it.Value()) != records[i][1] {
				t.Fatalf("mode %v: record %d: got (%q,%q) want (%q,%q)", mode, i, it.Key(), it.Value(), records[i][0], records[i][1])
			}
			i++
		}
		if err := it.Err(); err != nil {
			t.Fatalf("mode %v: iteration error: %v", mode, err)
		}
		if i != len(records) {
			t.Fatalf("mode %v: got %d records, want %d", mode, i, len(records))
		}
	}
}

func TestTableBlockOrdering(t *testing.T) {
	records := sortedRecords(200)
	path := buildTestTable(t, records, 128)
	tbl := openTestTable(t, path, MemoryMap)
	defer tbl.Close()

	if tbl.NumBlocks() < 2 {
		t.Fatalf("expected multiple blocks, got %d", tbl.NumBlocks())
	}

	var prevPrefix []byte
	for i := 0; i < tbl.NumBlocks(); i++ {
		b, err := tbl.Block(i)
		if err != nil {
			t.Fatal(err)
		}
		it := NewBlockIterator(b)
		if !it.Next() {
			t.Fatalf("block %d: empty", i)
		}
		if prevPrefix != nil && string(it.Key()) <= string(prevPrefix) {
			t.Fatalf("block %d: first key %q does not exceed previous block's first key %q", i, it.Key(), prevPrefix)
		}
		prevPrefix = append([]byte(nil), it.Key()...)
	}
}

func TestTableBloomNoFalseNegatives(t *testing.T) {
	records := sortedRecords(100)
	path := buildTestTable(t, records, 0)
	tbl := openTestTable(t, path, MemoryMap)
	defer tbl.Close()

	for _, rec := range records {
		ok, err := tbl.MayContain([]byte(rec[0]))
		if err != nil {
			t.Fatal(err)
		}
		if !ok {
			t.Fatalf("bloom filter false negative for key %q", rec[0])
		}
	}
}

func TestTableBloomMostlyRejectsAbsentKeys(t *testing.T) {
	records := sortedRecords(20)
	path := buildTestTable(t, records, 0)
	tbl := openTestTable(t, path, MemoryMap)
	defer tbl.Close()

	falsePositives := 0
	trials := 200
	for i := 0; i < trials; i++ {
		absent := fmt.Sprintf("absent-key-%d", i)
		ok, err := tbl.MayContain([]byte(absent))
		if err != nil {
			t.Fatal(err)
		}
		if ok {
			falsePositives++
		}
	}
	// 1% target FPR; allow generous slack since this is a small, statistical check.
	if falsePositives > trials/4 {
		t.Fatalf("unexpectedly high false-positive rate: %d/%d", falsePositives, trials)
	}
}

func TestTableReverseIteration(t *testing.T) {
	records := sortedRecords(50)
	path := buildTestTable(t, records, 0) // single block
	tbl := openTestTable(t, path, MemoryMap)
	defer tbl.Close()

	if tbl.NumBlocks() != 1 {
		t.Fatalf("expected a single block, got %d", tbl.NumBlocks())
	}
	b, err := tbl.Block(0)
	if err != nil {
		t.Fatal(err)
	}

	it := NewBlockIterator(b)
	for it.Next() {
	}
	if it.Err() != nil {
		t.Fatal(it.Err())
	}

	i := len(records) - 1
	if string(it.Key()) != records[i][0] {
		t.Fatalf("got %q, want %q", it.Key(), records[i][0])
	}
	i--
	for it.Prev() {
		if string(it.Key()) != records[i][0] || string(it.Value()) != records[i][1] {
			t.Fatalf("record %d: got (%q,%q) want (%q,%q)", i, it.Key(), it.Value(), records[i][0], records[i][1])
		}
		i--
	}
	if i != -1 {
		t.Fatalf("reverse iteration stopped early at index %d", i)
	}
}
