package snv

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/methclust/methclust/internal/genome"
)

// LoadTSV reads SNVs from a tab-separated table with columns
// chr, pos, ref, alt and an optional qual column. A header line is detected by
// the presence of "chr" or "pos" in the first line and skipped.
func LoadTSV(path string, idx *genome.ChromIndex) ([]Variant, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open snv table: %w", err)
	}
	defer f.Close()

	var variants []Variant
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	lineNum := 0
	for sc.Scan() {
		lineNum++
		line := strings.TrimRight(sc.Text(), "\r")
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if lineNum == 1 && isTSVHeader(line) {
			continue
		}

		v, ok, perr := parseTSVLine(line, lineNum, idx)
		if perr != nil {
			return nil, perr
		}
		if ok {
			v.ID = len(variants)
			variants = append(variants, v)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read snv table: %w", err)
	}
	return variants, nil
}

func isTSVHeader(line string) bool {
	lower := strings.ToLower(line)
	return strings.Contains(lower, "chr") || strings.Contains(lower, "pos")
}

func parseTSVLine(line string, lineNum int, idx *genome.ChromIndex) (Variant, bool, error) {
	fields := strings.Fields(line)
	if len(fields) < 4 {
		return Variant{}, false, &ParseError{
			Line:    lineNum,
			Message: fmt.Sprintf("expected at least 4 columns, found %d", len(fields)),
		}
	}

	if !validSNV(fields[2], fields[3]) {
		return Variant{}, false, nil
	}

	pos, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil || pos < 1 {
		return Variant{}, false, &ParseError{
			Line:    lineNum,
			Message: fmt.Sprintf("invalid position: %s", fields[1]),
		}
	}

	qual := 0.0
	if len(fields) >= 5 {
		qual, _ = strconv.ParseFloat(fields[4], 64)
	}

	return Variant{
		ChrID:      idx.GetOrCreateID(fields[0]),
		Pos:        pos,
		Ref:        fields[2][0],
		Alt:        fields[3][0],
		Qual:       qual,
		PassFilter: true,
	}, true, nil
}

// SaveTSV dumps the loaded table next to the output root for provenance.
func SaveTSV(path string, variants []Variant, idx *genome.ChromIndex) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create snv table: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	fmt.Fprintln(w, "snv_id\tchr\tpos\tref\talt\tqual\tfilter\tsomatic_conf")
	for _, v := range variants {
		filter := "FAIL"
		if v.PassFilter {
			filter = "PASS"
		}
		fmt.Fprintf(w, "%d\t%s\t%d\t%c\t%c\t%g\t%s\t%g\n",
			v.ID, idx.Name(v.ChrID), v.Pos, v.Ref, v.Alt, v.Qual, filter, v.SomaticConf)
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("write snv table: %w", err)
	}
	return nil
}
