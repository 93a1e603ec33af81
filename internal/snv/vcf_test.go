package snv

import (
	"compress/gzip"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/methclust/methclust/internal/genome"
)

const testVCF = `##fileformat=VCFv4.2
##contig=<ID=chr1,length=248956422>
##contig=<ID=chr2,length=242193529>
##FILTER=<ID=PASS,Description="All filters passed">
#CHROM	POS	ID	REF	ALT	QUAL	FILTER	INFO	FORMAT	TUMOR
chr1	100	.	A	T	52.1	PASS	.	GT:AF	0/1:0.31
chr1	200	.	C	G	10.0	LowQual	.	GT:AF	0/1:0.05
chr1	300	.	G	A	44.0	PASS	.	GT:AF	0/1:0.22
chr2	400	.	T	TA	33.0	PASS	.	GT:AF	0/1:0.15
chr2	500	.	C	G,T	20.0	PASS	.	GT:AF	0/1:0.4
chr2	600	.	A	C	.	PASS	.	GT	0/1
`

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadVCF_FiltersAndParses(t *testing.T) {
	path := writeTemp(t, "somatic.vcf", testVCF)
	idx := genome.NewChromIndex()

	variants, err := LoadVCF(path, idx)
	require.NoError(t, err)

	// Only biallelic PASS SNVs survive: the indel, the multi-allelic record,
	// and the LowQual record are skipped.
	require.Len(t, variants, 3)

	assert.Equal(t, 0, variants[0].ID)
	assert.Equal(t, int64(100), variants[0].Pos)
	assert.Equal(t, byte('A'), variants[0].Ref)
	assert.Equal(t, byte('T'), variants[0].Alt)
	assert.InDelta(t, 52.1, variants[0].Qual, 1e-9)
	assert.InDelta(t, 0.31, variants[0].SomaticConf, 1e-9)
	assert.True(t, variants[0].PassFilter)

	assert.Equal(t, int64(300), variants[1].Pos)
	assert.Equal(t, int64(600), variants[2].Pos)
	assert.Equal(t, 0.0, variants[2].SomaticConf, "record without AF")

	// Contig header order fixes chromosome ids.
	assert.Equal(t, 0, idx.FindID("chr1"))
	assert.Equal(t, 1, idx.FindID("chr2"))
}

func TestLoadVCF_Gzipped(t *testing.T) {
	path := filepath.Join(t.TempDir(), "somatic.vcf.gz")
	f, err := os.Create(path)
	require.NoError(t, err)
	gz := gzip.NewWriter(f)
	_, err = gz.Write([]byte(testVCF))
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	require.NoError(t, f.Close())

	idx := genome.NewChromIndex()
	variants, err := LoadVCF(path, idx)
	require.NoError(t, err)
	assert.Len(t, variants, 3)
}

func TestLoadVCF_MissingColumnsHeader(t *testing.T) {
	path := writeTemp(t, "bad.vcf", "##fileformat=VCFv4.2\nchr1\t100\t.\tA\tT\t50\tPASS\t.\n")
	_, err := LoadVCF(path, genome.NewChromIndex())
	require.Error(t, err)
	assert.IsType(t, &ParseError{}, err)
}

func TestLoadVCF_MissingFile(t *testing.T) {
	_, err := LoadVCF(filepath.Join(t.TempDir(), "nope.vcf"), genome.NewChromIndex())
	require.Error(t, err)
}

func TestContigName(t *testing.T) {
	name, ok := contigName("##contig=<ID=chr7,length=159345973>")
	require.True(t, ok)
	assert.Equal(t, "chr7", name)

	_, ok = contigName("##FILTER=<ID=PASS,Description=\"x\">")
	assert.False(t, ok)
}
