// Package archive wraps the indexed BAM and FASTA readers each worker owns.
// Handles are cheap to query but expensive to open, and their random-access
// cursors are not re-entrant, so one handle is created per worker and never
// shared.
package archive

import (
	"fmt"
	"os"

	"github.com/biogo/hts/bam"
	"github.com/biogo/hts/sam"
)

// BamReader is a per-worker handle over an indexed BAM file.
type BamReader struct {
	f    *os.File
	r    *bam.Reader
	idx  *bam.Index
	refs map[string]*sam.Reference
}

// OpenBam opens path and its .bai index. Any failure to open the file, read
// the header, or load the index is returned as an error; callers treat this
// as fatal.
func OpenBam(path string) (*BamReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open bam %s: %w", path, err)
	}
	r, err := bam.NewReader(f, 1)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("read bam header %s: %w", path, err)
	}

	idxFile, err := os.Open(path + ".bai")
	if err != nil {
		r.Close()
		f.Close()
		return nil, fmt.Errorf("open bam index %s.bai: %w", path, err)
	}
	defer idxFile.Close()
	idx, err := bam.ReadIndex(idxFile)
	if err != nil {
		r.Close()
		f.Close()
		return nil, fmt.Errorf("read bam index %s.bai: %w", path, err)
	}

	refs := make(map[string]*sam.Reference, len(r.Header().Refs()))
	for _, ref := range r.Header().Refs() {
		refs[ref.Name()] = ref
	}

	return &BamReader{f: f, r: r, idx: idx, refs: refs}, nil
}

// Fetch returns the reads whose alignment overlaps [start0, end0) on the named
// chromosome, in archive order. An unknown chromosome yields an empty slice.
func (b *BamReader) Fetch(chrName string, start0, end0 int) ([]*sam.Record, error) {
	ref, ok := b.refs[chrName]
	if !ok {
		return nil, nil
	}

	chunks, err := b.idx.Chunks(ref, start0, end0)
	if err != nil {
		// No index entries for the interval means no reads, not a failure.
		return nil, nil
	}

	it, err := bam.NewIterator(b.r, chunks)
	if err != nil {
		return nil, fmt.Errorf("bam iterator %s:%d-%d: %w", chrName, start0, end0, err)
	}

	var records []*sam.Record
	for it.Next() {
		rec := it.Record()
		if rec.Start() < end0 && rec.End() > start0 {
			records = append(records, rec)
		}
	}
	if err := it.Close(); err != nil {
		return nil, fmt.Errorf("bam fetch %s:%d-%d: %w", chrName, start0, end0, err)
	}
	return records, nil
}

// HasChr reports whether the BAM header declares the chromosome.
func (b *BamReader) HasChr(chrName string) bool {
	_, ok := b.refs[chrName]
	return ok
}

// Close releases the handle.
func (b *BamReader) Close() error {
	if err := b.r.Close(); err != nil {
		b.f.Close()
		return err
	}
	return b.f.Close()
}
