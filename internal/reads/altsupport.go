package reads

import (
	"github.com/biogo/hts/sam"

	"github.com/methclust/methclust/internal/snv"
)

// AltSupport determines whether the read supports the REF or ALT allele of the
// anchor variant. The CIGAR walk locates the query offset covering the variant
// position; deletions and reference skips spanning it mean the read carries
// neither allele.
func (f *Filter) AltSupport(rec *sam.Record, v *snv.Variant) (AltSupport, FilterReason) {
	pos0 := v.Pos0()

	if pos0 < int64(rec.Start()) || pos0 >= int64(rec.End()) {
		return SupportUnknown, FilterSNVNotCovered
	}

	refPos := int64(rec.Start())
	seqPos := 0
	queryOffset := -1

walk:
	for _, op := range rec.Cigar {
		n := int64(op.Len())
		switch op.Type() {
		case sam.CigarMatch, sam.CigarEqual, sam.CigarMismatch:
			if refPos <= pos0 && pos0 < refPos+n {
				queryOffset = seqPos + int(pos0-refPos)
				break walk
			}
			refPos += n
			seqPos += int(n)
		case sam.CigarInsertion, sam.CigarSoftClipped:
			seqPos += int(n)
		case sam.CigarDeletion, sam.CigarSkipped:
			if refPos <= pos0 && pos0 < refPos+n {
				return SupportUnknown, FilterSNVInDeletion
			}
			refPos += n
		case sam.CigarHardClipped:
			// Consumes nothing.
		}
	}

	if queryOffset < 0 || queryOffset >= rec.Seq.Length {
		return SupportUnknown, FilterSNVNotCovered
	}

	if queryOffset < len(rec.Qual) && rec.Qual[queryOffset] < f.cfg.MinBaseQuality {
		return SupportUnknown, FilterLowBaseQuality
	}

	base := rec.Seq.Expand()[queryOffset]
	switch base {
	case v.Alt:
		return SupportAlt, FilterNone
	case v.Ref:
		return SupportRef, FilterNone
	}
	return SupportUnknown, FilterNotRefOrAlt
}

// SeqToRefMap maps each query offset of the stored sequence to its 0-based
// reference position, or -1 for insertions and clipped bases.
func SeqToRefMap(rec *sam.Record) []int64 {
	m := make([]int64, rec.Seq.Length)
	refPos := int64(rec.Start())
	seqPos := 0

	for i := range m {
		m[i] = -1
	}

	for _, op := range rec.Cigar {
		n := op.Len()
		switch op.Type() {
		case sam.CigarMatch, sam.CigarEqual, sam.CigarMismatch:
			for j := 0; j < n; j++ {
				if seqPos < len(m) {
					m[seqPos] = refPos
				}
				seqPos++
				refPos++
			}
		case sam.CigarInsertion, sam.CigarSoftClipped:
			seqPos += n
		case sam.CigarDeletion, sam.CigarSkipped:
			refPos += int64(n)
		case sam.CigarHardClipped:
			// Not present in the stored sequence.
		}
	}

	return m
}
