package snv

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/methclust/methclust/internal/genome"
)

func TestLoadTSV_WithHeader(t *testing.T) {
	path := writeTemp(t, "snvs.tsv", "chr\tpos\tref\talt\tqual\nchr1\t100\tA\tT\t50\nchr1\t200\tC\tG\t30\n")
	idx := genome.NewChromIndex()

	variants, err := LoadTSV(path, idx)
	require.NoError(t, err)
	require.Len(t, variants, 2)
	assert.Equal(t, int64(100), variants[0].Pos)
	assert.Equal(t, byte('T'), variants[0].Alt)
	assert.Equal(t, 50.0, variants[0].Qual)
	assert.True(t, variants[0].PassFilter)
}

func TestLoadTSV_NoHeader(t *testing.T) {
	path := writeTemp(t, "snvs.tsv", "1\t100\tA\tT\n1\t200\tC\tG\t12.5\n")
	idx := genome.NewChromIndex()

	variants, err := LoadTSV(path, idx)
	require.NoError(t, err)
	require.Len(t, variants, 2)
	assert.Equal(t, 0.0, variants[0].Qual, "qual column is optional")
	assert.Equal(t, 12.5, variants[1].Qual)
}

func TestLoadTSV_SkipsNonSNVs(t *testing.T) {
	path := writeTemp(t, "snvs.tsv", strings.Join([]string{
		"chr\tpos\tref\talt",
		"chr1\t100\tA\tT",
		"chr1\t150\tAT\tA",  // indel
		"chr1\t160\tC\tC",   // ref == alt
		"chr1\t170\tN\tA",   // ambiguous base
		"# comment line",
		"chr1\t200\tG\tC",
	}, "\n") + "\n")
	idx := genome.NewChromIndex()

	variants, err := LoadTSV(path, idx)
	require.NoError(t, err)
	require.Len(t, variants, 2)
	assert.Equal(t, int64(100), variants[0].Pos)
	assert.Equal(t, int64(200), variants[1].Pos)
	assert.Equal(t, 1, variants[1].ID, "ids are dense over retained records")
}

func TestLoadTSV_BadColumnCount(t *testing.T) {
	path := writeTemp(t, "snvs.tsv", "chr\tpos\tref\talt\nchr1\t100\n")
	_, err := LoadTSV(path, genome.NewChromIndex())
	require.Error(t, err)
}

func TestSaveTSV_RoundTrip(t *testing.T) {
	idx := genome.NewChromIndex()
	variants := []Variant{
		{ID: 0, ChrID: idx.GetOrCreateID("chr1"), Pos: 100, Ref: 'A', Alt: 'T', Qual: 50, PassFilter: true, SomaticConf: 0.25},
	}

	path := filepath.Join(t.TempDir(), "out_snvs.tsv")
	require.NoError(t, SaveTSV(path, variants, idx))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "snv_id\tchr\tpos\tref\talt\tqual\tfilter\tsomatic_conf", lines[0])
	assert.Equal(t, "0\tchr1\t100\tA\tT\t50\tPASS\t0.25", lines[1])
}

func TestLoadDispatch(t *testing.T) {
	idx := genome.NewChromIndex()

	vcfPath := writeTemp(t, "x.vcf", testVCF)
	variants, err := Load(vcfPath, idx)
	require.NoError(t, err)
	assert.Len(t, variants, 3)

	tsvPath := writeTemp(t, "y.txt", "chr\tpos\tref\talt\nchr1\t10\tA\tC\n")
	variants, err = Load(tsvPath, idx)
	require.NoError(t, err)
	assert.Len(t, variants, 1)
}

func TestStem(t *testing.T) {
	assert.Equal(t, "somatic", Stem("/data/somatic.vcf.gz"))
	assert.Equal(t, "somatic", Stem("somatic.vcf"))
	assert.Equal(t, "snvs", Stem("dir/snvs.tsv"))
	assert.Equal(t, "mutations", Stem("mutations.txt"))
}
