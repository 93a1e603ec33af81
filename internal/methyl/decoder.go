// Package methyl decodes per-read modification tags into CpG methylation
// calls and assembles them into the region's read × CpG matrix.
package methyl

import (
	"strconv"
	"strings"

	"github.com/biogo/hts/sam"

	"github.com/methclust/methclust/internal/reads"
)

// Call is one methylation observation. Pos is the 1-based reference position
// of the C in the CpG dinucleotide on the forward strand, regardless of the
// strand the read mapped to.
type Call struct {
	Pos  int64
	Prob float64
}

var (
	tagMM = sam.NewTag("MM")
	tagMm = sam.NewTag("Mm")
	tagML = sam.NewTag("ML")
	tagMl = sam.NewTag("Ml")
)

// modEntry is one modification-type entry of the MM tag.
type modEntry struct {
	prefix string
	deltas []int
}

// Decode extracts 5mC calls at CpG sites from the record's MM/ML tags.
// refSeq is the uppercase reference substring starting at refStart0 (0-based).
// Malformed or truncated tags yield no calls; they are never an error.
func Decode(rec *sam.Record, refSeq string, refStart0 int64) []Call {
	mm, ok := modTag(rec)
	if !ok {
		return nil
	}
	probs, ok := probTag(rec)
	if !ok {
		return nil
	}

	entries, ok := parseModTag(mm)
	if !ok {
		return nil
	}

	// The ML array holds probabilities for all modification types in tag
	// order; the offset for 5mC is the delta count of every prior entry.
	offset := -1
	var deltas []int
	acc := 0
	for _, e := range entries {
		if offset < 0 && isFiveMC(e.prefix) {
			offset = acc
			deltas = e.deltas
		}
		acc += len(e.deltas)
	}
	if offset < 0 || len(deltas) == 0 {
		return nil
	}
	if offset+len(deltas) > len(probs) {
		return nil
	}

	seqToRef := reads.SeqToRefMap(rec)
	seq := rec.Seq.Expand()
	reverse := rec.Flags&sam.Reverse != 0

	// The stored sequence is reverse-complemented for reverse-strand reads,
	// but the deltas index the original 5'→3' read, so the traversal runs
	// right-to-left there and the target base is G (the original C).
	target := byte('C')
	step := 1
	start := 0
	if reverse {
		target = 'G'
		step = -1
		start = len(seq) - 1
	}

	var calls []Call
	baseCount := 0
	deltaIdx := 0
	nextTarget := deltas[0]

	for i := start; i >= 0 && i < len(seq); i += step {
		if seq[i] != target {
			continue
		}
		if baseCount == nextTarget {
			if pos, ok := cpgPosition(seqToRef[i], refSeq, refStart0, reverse); ok {
				calls = append(calls, Call{
					Pos:  pos,
					Prob: float64(probs[offset+deltaIdx]) / 255.0,
				})
			}
			deltaIdx++
			if deltaIdx < len(deltas) {
				nextTarget += deltas[deltaIdx] + 1
			} else {
				nextTarget = -1
			}
		}
		baseCount++
	}

	return calls
}

// cpgPosition validates the CpG context around a modified base and returns the
// 1-based forward-strand C position. On the reverse strand the modified base
// sits on the G, so the dinucleotide check looks at the preceding reference
// base and the reported position shifts onto the C.
func cpgPosition(refPos0 int64, refSeq string, refStart0 int64, reverse bool) (int64, bool) {
	if refPos0 < 0 {
		return 0, false // insertion or clipped base
	}
	off := refPos0 - refStart0
	if off < 0 || off >= int64(len(refSeq)) {
		return 0, false
	}

	if reverse {
		if refSeq[off] != 'G' || off == 0 || refSeq[off-1] != 'C' {
			return 0, false
		}
		// The C is at refPos0-1 (0-based), i.e. refPos0 in 1-based terms.
		return refPos0, true
	}

	if refSeq[off] != 'C' || off+1 >= int64(len(refSeq)) || refSeq[off+1] != 'G' {
		return 0, false
	}
	return refPos0 + 1, true
}

// isFiveMC reports whether an MM entry prefix names 5-methylcytosine on the
// top strand: "C+m" with an optional skip-undetermined marker.
func isFiveMC(prefix string) bool {
	code := strings.TrimRight(prefix, "?.")
	return code == "C+m"
}

func parseModTag(mm string) ([]modEntry, bool) {
	var entries []modEntry
	for _, chunk := range strings.Split(mm, ";") {
		if chunk == "" {
			continue
		}
		parts := strings.Split(chunk, ",")
		e := modEntry{prefix: parts[0]}
		for _, d := range parts[1:] {
			if d == "" {
				continue
			}
			n, err := strconv.Atoi(d)
			if err != nil || n < 0 {
				return nil, false
			}
			e.deltas = append(e.deltas, n)
		}
		entries = append(entries, e)
	}
	return entries, true
}

func modTag(rec *sam.Record) (string, bool) {
	aux := rec.AuxFields.Get(tagMM)
	if aux == nil {
		aux = rec.AuxFields.Get(tagMm)
	}
	if aux == nil {
		return "", false
	}
	s, ok := aux.Value().(string)
	return s, ok
}

func probTag(rec *sam.Record) ([]uint8, bool) {
	aux := rec.AuxFields.Get(tagML)
	if aux == nil {
		aux = rec.AuxFields.Get(tagMl)
	}
	if aux == nil {
		return nil, false
	}
	b, ok := aux.Value().([]uint8)
	return b, ok
}
