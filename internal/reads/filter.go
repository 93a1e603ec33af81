package reads

import (
	"strconv"

	"github.com/biogo/hts/sam"

	"github.com/methclust/methclust/internal/snv"
)

// FilterConfig holds the read-level thresholds.
type FilterConfig struct {
	MinMapQ        byte
	MinReadLength  int
	MinBaseQuality byte
	RequireModTags bool
}

// Filter classifies and parses alignment records against a FilterConfig.
type Filter struct {
	cfg FilterConfig
}

// NewFilter returns a Filter with the given thresholds.
func NewFilter(cfg FilterConfig) *Filter {
	return &Filter{cfg: cfg}
}

var (
	tagMM = sam.NewTag("MM")
	tagMl = sam.NewTag("Ml")
	tagML = sam.NewTag("ML")
	tagMm = sam.NewTag("Mm")
	tagHP = sam.NewTag("HP")
)

// hasTag reports whether the record carries the tag under its current or
// legacy (lowercase second letter) name.
func hasTag(rec *sam.Record, current, legacy sam.Tag) bool {
	if rec.AuxFields.Get(current) != nil {
		return true
	}
	return rec.AuxFields.Get(legacy) != nil
}

// Classify decides whether a read survives the flag, quality, length, and
// modification-tag checks. All applicable drop reasons are accumulated.
func (f *Filter) Classify(rec *sam.Record) (bool, FilterReason) {
	reasons := FilterNone

	if rec.Flags&sam.Secondary != 0 {
		reasons |= FilterSecondary
	}
	if rec.Flags&sam.Supplementary != 0 {
		reasons |= FilterSupplementary
	}
	if rec.Flags&sam.Duplicate != 0 {
		reasons |= FilterDuplicate
	}
	if rec.Flags&sam.Unmapped != 0 {
		reasons |= FilterUnmapped
	}

	if rec.MapQ < f.cfg.MinMapQ {
		reasons |= FilterLowMapQ
	}

	if _, read := rec.Cigar.Lengths(); read < f.cfg.MinReadLength {
		reasons |= FilterShortRead
	}

	if f.cfg.RequireModTags {
		if !hasTag(rec, tagMM, tagMm) {
			reasons |= FilterMissingModTag
		}
		if !hasTag(rec, tagML, tagMl) {
			reasons |= FilterMissingProbTag
		}
	}

	return reasons == FilterNone, reasons
}

// StrandOf maps the reverse flag to a strand.
func StrandOf(rec *sam.Record) Strand {
	if rec.Flags&sam.Reverse != 0 {
		return StrandReverse
	}
	return StrandForward
}

// ReadName returns the record name, suffixed with /1 or /2 for paired reads so
// mates stay distinct under the at-most-once rule.
func ReadName(rec *sam.Record) string {
	if rec.Flags&sam.Paired == 0 {
		return rec.Name
	}
	switch {
	case rec.Flags&sam.Read1 != 0:
		return rec.Name + "/1"
	case rec.Flags&sam.Read2 != 0:
		return rec.Name + "/2"
	}
	return rec.Name
}

// HaplotypeTag returns the HP tag as a string, "0" when absent or untyped.
func HaplotypeTag(rec *sam.Record) string {
	aux := rec.AuxFields.Get(tagHP)
	if aux == nil {
		return "0"
	}
	switch v := aux.Value().(type) {
	case string:
		return v
	case int8:
		return strconv.FormatInt(int64(v), 10)
	case uint8:
		return strconv.FormatInt(int64(v), 10)
	case int16:
		return strconv.FormatInt(int64(v), 10)
	case uint16:
		return strconv.FormatInt(int64(v), 10)
	case int32:
		return strconv.FormatInt(int64(v), 10)
	case uint32:
		return strconv.FormatInt(int64(v), 10)
	}
	return "0"
}

// Parse populates the per-read record, including strand, haplotype, and
// REF/ALT support at the anchor variant. The returned reason is non-zero when
// the support is UNKNOWN and names why.
func (f *Filter) Parse(rec *sam.Record, readID int, isTumor bool, v *snv.Variant) (ParsedRead, FilterReason) {
	support, reason := f.AltSupport(rec, v)
	return ParsedRead{
		ReadID:     readID,
		Name:       ReadName(rec),
		ChrID:      v.ChrID,
		Start:      int64(rec.Start()),
		End:        int64(rec.End()),
		MapQ:       rec.MapQ,
		Strand:     StrandOf(rec),
		Haplotype:  HaplotypeTag(rec),
		IsTumor:    isTumor,
		AltSupport: support,
	}, reason
}

// Filtered builds the debug-channel record for a dropped read.
func Filtered(rec *sam.Record, isTumor bool, reasons FilterReason) FilteredRead {
	return FilteredRead{
		Name:    ReadName(rec),
		Start:   int64(rec.Start()),
		End:     int64(rec.End()),
		MapQ:    rec.MapQ,
		Strand:  StrandOf(rec),
		IsTumor: isTumor,
		Reasons: reasons,
	}
}
