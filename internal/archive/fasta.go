package archive

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/biogo/hts/fai"
)

// FastaReader is a per-worker handle over an indexed reference FASTA.
type FastaReader struct {
	raw *os.File
	f   *fai.File
	idx fai.Index
}

// OpenFasta opens path and its .fai index. The sequence data is read through
// the open file handle, seeking to the indexed offset of each requested range.
func OpenFasta(path string) (*FastaReader, error) {
	idxFile, err := os.Open(path + ".fai")
	if err != nil {
		return nil, fmt.Errorf("open fasta index %s.fai: %w", path, err)
	}
	defer idxFile.Close()

	idx, err := fai.ReadFrom(idxFile)
	if err != nil {
		return nil, fmt.Errorf("read fasta index %s.fai: %w", path, err)
	}

	raw, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open fasta %s: %w", path, err)
	}

	f := fai.NewFile(raw, idx)

	return &FastaReader{raw: raw, f: f, idx: idx}, nil
}

// Fetch returns the uppercase reference substring for [start0, end0) on the
// named chromosome. An unknown chromosome or invalid range yields "".
func (r *FastaReader) Fetch(chrName string, start0, end0 int) (string, error) {
	rec, ok := r.idx[chrName]
	if !ok {
		return "", nil
	}
	if start0 < 0 || end0 <= start0 || end0 > rec.Length {
		return "", nil
	}

	seq, err := r.f.SeqRange(chrName, start0, end0)
	if err != nil {
		return "", nil
	}

	buf, err := io.ReadAll(seq)
	if err != nil {
		return "", fmt.Errorf("read fasta %s:%d-%d: %w", chrName, start0, end0, err)
	}
	return strings.ToUpper(string(buf)), nil
}

// ChrLength returns the chromosome length, or -1 when the name is unknown.
func (r *FastaReader) ChrLength(chrName string) int64 {
	rec, ok := r.idx[chrName]
	if !ok {
		return -1
	}
	return int64(rec.Length)
}

// Close releases the handle.
func (r *FastaReader) Close() error {
	return r.raw.Close()
}
