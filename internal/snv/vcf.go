package snv

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/klauspost/pgzip"

	"github.com/methclust/methclust/internal/genome"
)

// ParseError represents an error during variant-table parsing with line context.
type ParseError struct {
	Line    int
	Message string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("snv parse error at line %d: %s", e.Line, e.Message)
}

// vcfReader streams data lines from a plain or gzipped VCF file.
type vcfReader struct {
	reader     *bufio.Reader
	file       *os.File
	gzipReader *pgzip.Reader
	lineNumber int
}

func openVCF(path string) (*vcfReader, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open vcf file: %w", err)
	}

	r := &vcfReader{file: file}

	// Check for gzip magic bytes, then rewind.
	buf := make([]byte, 2)
	if _, err = io.ReadFull(file, buf); err != nil {
		file.Close()
		return nil, fmt.Errorf("read vcf header: %w", err)
	}
	if _, err = file.Seek(0, io.SeekStart); err != nil {
		file.Close()
		return nil, fmt.Errorf("seek vcf file: %w", err)
	}

	if buf[0] == 0x1f && buf[1] == 0x8b {
		r.gzipReader, err = pgzip.NewReader(file)
		if err != nil {
			file.Close()
			return nil, fmt.Errorf("create gzip reader: %w", err)
		}
		r.reader = bufio.NewReader(r.gzipReader)
	} else {
		r.reader = bufio.NewReader(file)
	}

	return r, nil
}

func (r *vcfReader) Close() error {
	if r.gzipReader != nil {
		r.gzipReader.Close()
	}
	if r.file != nil {
		return r.file.Close()
	}
	return nil
}

// LoadVCF reads biallelic PASS SNVs from a VCF file (plain or gzipped) into a
// table. Contigs declared in the header are registered in the chromosome index
// first so that ids follow header order.
func LoadVCF(path string, idx *genome.ChromIndex) ([]Variant, error) {
	r, err := openVCF(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	var (
		variants   []Variant
		sawColumns bool
	)

	for {
		line, err := r.reader.ReadString('\n')
		if err != nil && err != io.EOF {
			return nil, fmt.Errorf("read vcf line: %w", err)
		}
		if line == "" && err == io.EOF {
			break
		}
		r.lineNumber++

		line = strings.TrimRight(line, "\r\n")
		switch {
		case line == "":
		case strings.HasPrefix(line, "##"):
			if name, ok := contigName(line); ok {
				idx.GetOrCreateID(name)
			}
		case strings.HasPrefix(line, "#CHROM"):
			sawColumns = true
		default:
			if !sawColumns {
				return nil, &ParseError{Line: r.lineNumber, Message: "data line before #CHROM header"}
			}
			v, ok, perr := parseVCFLine(line, r.lineNumber, idx)
			if perr != nil {
				return nil, perr
			}
			if ok {
				v.ID = len(variants)
				variants = append(variants, v)
			}
		}

		if err == io.EOF {
			break
		}
	}

	if !sawColumns {
		return nil, &ParseError{Line: r.lineNumber, Message: "no #CHROM header line found"}
	}
	return variants, nil
}

// contigName extracts the ID from a ##contig header line.
func contigName(line string) (string, bool) {
	const prefix = "##contig=<"
	if !strings.HasPrefix(line, prefix) {
		return "", false
	}
	body := strings.TrimSuffix(line[len(prefix):], ">")
	for _, kv := range strings.Split(body, ",") {
		if name, ok := strings.CutPrefix(kv, "ID="); ok {
			return name, true
		}
	}
	return "", false
}

// parseVCFLine parses one data line. Records that are not biallelic PASS SNVs
// are skipped (ok=false) rather than treated as errors.
func parseVCFLine(line string, lineNum int, idx *genome.ChromIndex) (Variant, bool, error) {
	fields := strings.Split(line, "\t")
	if len(fields) < 8 {
		return Variant{}, false, &ParseError{
			Line:    lineNum,
			Message: fmt.Sprintf("expected at least 8 columns, found %d", len(fields)),
		}
	}

	if fields[6] != "PASS" {
		return Variant{}, false, nil
	}
	if !validSNV(fields[3], fields[4]) {
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
	if fields[5] != "." {
		qual, _ = strconv.ParseFloat(fields[5], 64)
	}

	v := Variant{
		ChrID:      idx.GetOrCreateID(fields[0]),
		Pos:        pos,
		Ref:        fields[3][0],
		Alt:        fields[4][0],
		Qual:       qual,
		PassFilter: true,
	}

	// Tumor allele fraction from the AF FORMAT value of the first sample.
	if len(fields) >= 10 {
		v.SomaticConf = formatFloat(fields[8], fields[9], "AF")
	}

	return v, true, nil
}

// formatFloat looks up key in the FORMAT column and returns the corresponding
// value from the sample column as a float, or 0 when absent or unparsable.
func formatFloat(format, sample, key string) float64 {
	keys := strings.Split(format, ":")
	vals := strings.Split(sample, ":")
	for i, k := range keys {
		if k != key || i >= len(vals) {
			continue
		}
		f, err := strconv.ParseFloat(vals[i], 64)
		if err != nil {
			return 0
		}
		return f
	}
	return 0
}
