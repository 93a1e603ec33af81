package snv

import (
	"strings"

	"github.com/methclust/methclust/internal/genome"
)

// Load reads a variant source, dispatching on the file name: .vcf and .vcf.gz
// are parsed as VCF, anything else as a tab-separated table.
func Load(path string, idx *genome.ChromIndex) ([]Variant, error) {
	lower := strings.ToLower(path)
	if strings.HasSuffix(lower, ".vcf") || strings.HasSuffix(lower, ".vcf.gz") {
		return LoadVCF(path, idx)
	}
	return LoadTSV(path, idx)
}

// Stem returns the variant file name without directory and without the .vcf,
// .vcf.gz, .tsv or .txt extension; it keys the first level of the output
// layout.
func Stem(path string) string {
	base := path
	if i := strings.LastIndexByte(base, '/'); i >= 0 {
		base = base[i+1:]
	}
	for _, ext := range []string{".gz", ".vcf", ".tsv", ".txt"} {
		base = strings.TrimSuffix(base, ext)
	}
	return base
}
