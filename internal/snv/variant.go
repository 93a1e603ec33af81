// Package snv loads the somatic SNV table that drives region processing.
package snv

import "fmt"

// Variant is a single biallelic somatic SNV.
type Variant struct {
	ID          int     // index into the loaded table
	ChrID       int     // id from the shared genome.ChromIndex
	Pos         int64   // 1-based genomic position
	Ref         byte    // reference base, one of A/C/G/T
	Alt         byte    // alternate base, one of A/C/G/T
	Qual        float64 // variant quality score
	PassFilter  bool
	SomaticConf float64 // tumor allele fraction when available
}

// Pos0 returns the 0-based position.
func (v *Variant) Pos0() int64 {
	return v.Pos - 1
}

// String formats the variant as chrID:pos ref>alt for log messages.
func (v *Variant) String() string {
	return fmt.Sprintf("%d:%d %c>%c", v.ChrID, v.Pos, v.Ref, v.Alt)
}

func isBase(b byte) bool {
	switch b {
	case 'A', 'C', 'G', 'T':
		return true
	}
	return false
}

// validSNV reports whether ref/alt describe a biallelic SNV.
func validSNV(ref, alt string) bool {
	if len(ref) != 1 || len(alt) != 1 {
		return false
	}
	if ref == alt {
		return false
	}
	return isBase(ref[0]) && isBase(alt[0])
}
