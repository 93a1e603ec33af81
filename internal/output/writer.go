// Package output writes the per-region result files: metadata, read table,
// methylation matrices, distance matrices, and clustering trees.
package output

import (
	"bufio"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/methclust/methclust/internal/cluster"
	"github.com/methclust/methclust/internal/distance"
	"github.com/methclust/methclust/internal/genome"
	"github.com/methclust/methclust/internal/methyl"
	"github.com/methclust/methclust/internal/reads"
	"github.com/methclust/methclust/internal/snv"
)

// RegionWriter lays out the nested per-region output directories under
// <output>/<variant-file-stem>/.
type RegionWriter struct {
	root     string
	debugDir string
}

// NewRegionWriter returns a writer rooted at outputDir/stem. debugDir may be
// empty when the debug channel is disabled.
func NewRegionWriter(outputDir, stem, debugDir string) *RegionWriter {
	return &RegionWriter{
		root:     filepath.Join(outputDir, stem),
		debugDir: debugDir,
	}
}

// RegionDir creates and returns the directory for one region:
// <root>/<chr>_<pos>/<chr>_<start>_<end>/.
func (w *RegionWriter) RegionDir(chrName string, snvPos int64, region genome.Region) (string, error) {
	dir := filepath.Join(
		w.root,
		fmt.Sprintf("%s_%d", chrName, snvPos),
		fmt.Sprintf("%s_%d_%d", chrName, region.Start, region.End),
	)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create region dir: %w", err)
	}
	return dir, nil
}

// WriteRegion writes metadata, the read table, the CpG site table, and the
// full methylation matrix.
func (w *RegionWriter) WriteRegion(dir string, v *snv.Variant, chrName string, region genome.Region, m *methyl.Matrix, elapsed time.Duration) error {
	if err := w.writeMetadata(dir, v, chrName, region, m, elapsed); err != nil {
		return err
	}
	if err := w.writeReads(dir, chrName, m.Reads); err != nil {
		return err
	}
	if err := w.writeCpGSites(dir, chrName, m.Positions); err != nil {
		return err
	}
	return w.writeMatrixCSV(dir, m)
}

func (w *RegionWriter) writeMetadata(dir string, v *snv.Variant, chrName string, region genome.Region, m *methyl.Matrix, elapsed time.Duration) error {
	return writeFile(filepath.Join(dir, "metadata.txt"), func(out *bufio.Writer) error {
		fmt.Fprintf(out, "Region ID: %d\n", region.ID)
		fmt.Fprintf(out, "Region: %s:%d-%d\n", chrName, region.Start, region.End)
		fmt.Fprintf(out, "Region Size: %d bp\n", region.Size())
		fmt.Fprintln(out)
		fmt.Fprintf(out, "SNV ID: %d\n", v.ID)
		fmt.Fprintf(out, "SNV Position: %s:%d\n", chrName, v.Pos)
		fmt.Fprintf(out, "SNV: %c -> %c\n", v.Ref, v.Alt)
		fmt.Fprintf(out, "SNV Quality: %g\n", v.Qual)
		fmt.Fprintf(out, "Somatic Confidence: %g\n", v.SomaticConf)
		fmt.Fprintln(out)
		fmt.Fprintf(out, "Num Reads: %d\n", m.NumReads())
		fmt.Fprintf(out, "Num CpG Sites: %d\n", m.NumCpGs())
		fmt.Fprintf(out, "Matrix Dimensions: %d x %d\n", m.NumReads(), m.NumCpGs())
		fmt.Fprintln(out)
		fmt.Fprintf(out, "Processing Time: %.2f ms\n", float64(elapsed.Microseconds())/1000)
		return nil
	})
}

func (w *RegionWriter) writeReads(dir, chrName string, rs []reads.ParsedRead) error {
	sub := filepath.Join(dir, "reads")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		return fmt.Errorf("create reads dir: %w", err)
	}
	return writeFile(filepath.Join(sub, "reads.tsv"), func(out *bufio.Writer) error {
		fmt.Fprintln(out, "read_id\tread_name\tchr\tstart\tend\tmapq\thp\talt_support\tis_tumor\tstrand")
		for _, r := range rs {
			fmt.Fprintf(out, "%d\t%s\t%s\t%d\t%d\t%d\t%s\t%s\t%d\t%s\n",
				r.ReadID, r.Name, chrName, r.Start, r.End, r.MapQ, r.Haplotype,
				r.AltSupport, boolToInt(r.IsTumor), r.Strand.Symbol())
		}
		return nil
	})
}

func (w *RegionWriter) writeCpGSites(dir, chrName string, positions []int64) error {
	sub := filepath.Join(dir, "methylation")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		return fmt.Errorf("create methylation dir: %w", err)
	}
	return writeFile(filepath.Join(sub, "cpg_sites.tsv"), func(out *bufio.Writer) error {
		fmt.Fprintln(out, "cpg_id\tchr\tposition")
		for i, pos := range positions {
			fmt.Fprintf(out, "%d\t%s\t%d\n", i, chrName, pos)
		}
		return nil
	})
}

func (w *RegionWriter) writeMatrixCSV(dir string, m *methyl.Matrix) error {
	return writeFile(filepath.Join(dir, "methylation", "methylation.csv"), func(out *bufio.Writer) error {
		out.WriteString("read_id")
		for _, pos := range m.Positions {
			fmt.Fprintf(out, ",%d", pos)
		}
		out.WriteByte('\n')
		for i := 0; i < m.NumReads(); i++ {
			fmt.Fprintf(out, "%d", m.Reads[i].ReadID)
			writeRawRow(out, m, i)
			out.WriteByte('\n')
		}
		return nil
	})
}

// WriteStrandMatrices writes the forward- and reverse-restricted methylation
// matrices with strand-local row ids plus the original read id.
func (w *RegionWriter) WriteStrandMatrices(dir string, m *methyl.Matrix) error {
	for _, s := range []struct {
		strand reads.Strand
		name   string
	}{
		{reads.StrandForward, "methylation_forward.csv"},
		{reads.StrandReverse, "methylation_reverse.csv"},
	} {
		err := writeFile(filepath.Join(dir, "methylation", s.name), func(out *bufio.Writer) error {
			out.WriteString("read_id,original_read_id")
			for _, pos := range m.Positions {
				fmt.Fprintf(out, ",%d", pos)
			}
			out.WriteByte('\n')
			local := 0
			for i := 0; i < m.NumReads(); i++ {
				if m.Reads[i].Strand != s.strand {
					continue
				}
				fmt.Fprintf(out, "%d,%d", local, m.Reads[i].ReadID)
				writeRawRow(out, m, i)
				out.WriteByte('\n')
				local++
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func writeRawRow(out *bufio.Writer, m *methyl.Matrix, row int) {
	for c := 0; c < m.NumCpGs(); c++ {
		v := m.Raw.At(row, c)
		if math.IsNaN(v) {
			out.WriteString(",NA")
		} else {
			fmt.Fprintf(out, ",%.4f", v)
		}
	}
}

// WriteDistance writes distance_<metric>.csv and its stats file; when strand
// matrices are enabled the per-strand variants follow the same naming with a
// _forward/_reverse suffix.
func (w *RegionWriter) WriteDistance(dir string, d, forward, reverse *distance.Matrix, strandEnabled bool) error {
	name := metricFileName(d.Metric)
	if err := w.writeDistanceCSV(filepath.Join(dir, fmt.Sprintf("distance_%s.csv", name)), d); err != nil {
		return err
	}
	if err := w.writeDistanceStats(filepath.Join(dir, fmt.Sprintf("distance_%s_stats.txt", name)), d); err != nil {
		return err
	}
	if !strandEnabled {
		return nil
	}
	if forward != nil && forward.Size() >= 2 {
		if err := w.writeDistanceCSV(filepath.Join(dir, fmt.Sprintf("distance_%s_forward.csv", name)), forward); err != nil {
			return err
		}
	}
	if reverse != nil && reverse.Size() >= 2 {
		if err := w.writeDistanceCSV(filepath.Join(dir, fmt.Sprintf("distance_%s_reverse.csv", name)), reverse); err != nil {
			return err
		}
	}
	return nil
}

func metricFileName(m distance.Metric) string {
	// File names keep the lowercase convention of the rest of the layout.
	switch m {
	case distance.NHD:
		return "nhd"
	case distance.L1:
		return "l1"
	case distance.L2:
		return "l2"
	case distance.Correlation:
		return "corr"
	case distance.Jaccard:
		return "jaccard"
	case distance.Bernoulli:
		return "bernoulli"
	}
	return "unknown"
}

func (w *RegionWriter) writeDistanceCSV(path string, d *distance.Matrix) error {
	return writeFile(path, func(out *bufio.Writer) error {
		out.WriteString("read_id")
		for _, id := range d.ReadIDs {
			fmt.Fprintf(out, ",%d", id)
		}
		out.WriteByte('\n')
		n := d.Size()
		for i := 0; i < n; i++ {
			fmt.Fprintf(out, "%d", d.ReadIDs[i])
			for j := 0; j < n; j++ {
				v := d.At(i, j)
				if math.IsNaN(v) {
					out.WriteString(",NA")
				} else {
					fmt.Fprintf(out, ",%.6f", v)
				}
			}
			out.WriteByte('\n')
		}
		return nil
	})
}

func (w *RegionWriter) writeDistanceStats(path string, d *distance.Matrix) error {
	return writeFile(path, func(out *bufio.Writer) error {
		fmt.Fprintln(out, "Distance Matrix Statistics")
		fmt.Fprintln(out, "==========================")
		fmt.Fprintln(out)
		fmt.Fprintf(out, "Number of reads: %d\n", d.Size())
		fmt.Fprintf(out, "Metric: %s\n", d.Metric)
		fmt.Fprintf(out, "NaN strategy: %s\n", d.Strategy)
		fmt.Fprintf(out, "Min common coverage (C_min): %d\n", d.MinCommonCoverage)
		fmt.Fprintln(out)
		fmt.Fprintf(out, "Valid pairs: %d\n", d.ValidPairs)
		fmt.Fprintf(out, "Invalid pairs (insufficient overlap): %d\n", d.InvalidPairs)
		if total := d.ValidPairs + d.InvalidPairs; total > 0 {
			fmt.Fprintf(out, "Valid pair ratio: %.1f%%\n", 100*float64(d.ValidPairs)/float64(total))
		}
		fmt.Fprintf(out, "Average common coverage: %.2f\n", d.MeanCommonCoverage)

		if stats, ok := d.SummaryStats(); ok {
			fmt.Fprintln(out)
			fmt.Fprintln(out, "Distance Statistics:")
			fmt.Fprintf(out, "  Min: %.4f\n", stats.Min)
			fmt.Fprintf(out, "  Max: %.4f\n", stats.Max)
			fmt.Fprintf(out, "  Mean: %.4f\n", stats.Mean)
			fmt.Fprintf(out, "  Std Dev: %.4f\n", stats.Std)
			fmt.Fprintf(out, "  25th percentile: %.4f\n", stats.P25)
			fmt.Fprintf(out, "  Median: %.4f\n", stats.Median)
			fmt.Fprintf(out, "  75th percentile: %.4f\n", stats.P75)
		}
		return nil
	})
}

// WriteClustering writes tree.nwk, linkage_matrix.csv, leaf_order.txt, and
// tree_stats.txt; strand trees are written when non-empty.
func (w *RegionWriter) WriteClustering(dir string, tree, fwdTree, revTree *cluster.Tree) error {
	sub := filepath.Join(dir, "clustering")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		return fmt.Errorf("create clustering dir: %w", err)
	}

	if err := writeString(filepath.Join(sub, "tree.nwk"), cluster.WriteNewick(tree, 6)+"\n"); err != nil {
		return err
	}

	if err := writeFile(filepath.Join(sub, "linkage_matrix.csv"), func(out *bufio.Writer) error {
		fmt.Fprintln(out, "cluster_i,cluster_j,distance,new_cluster_id,size")
		for _, rec := range tree.Merges {
			fmt.Fprintf(out, "%d,%d,%.6f,%d,%d\n",
				rec.ClusterI, rec.ClusterJ, rec.Distance, rec.NewClusterID, rec.Size)
		}
		return nil
	}); err != nil {
		return err
	}

	if err := writeFile(filepath.Join(sub, "leaf_order.txt"), func(out *bufio.Writer) error {
		for _, label := range tree.LeafOrder() {
			fmt.Fprintln(out, label)
		}
		return nil
	}); err != nil {
		return err
	}

	if err := w.writeTreeStats(filepath.Join(sub, "tree_stats.txt"), tree); err != nil {
		return err
	}

	if !fwdTree.Empty() {
		if err := writeString(filepath.Join(sub, "tree_forward.nwk"), cluster.WriteNewick(fwdTree, 6)+"\n"); err != nil {
			return err
		}
	}
	if !revTree.Empty() {
		if err := writeString(filepath.Join(sub, "tree_reverse.nwk"), cluster.WriteNewick(revTree, 6)+"\n"); err != nil {
			return err
		}
	}
	return nil
}

func (w *RegionWriter) writeTreeStats(path string, t *cluster.Tree) error {
	return writeFile(path, func(out *bufio.Writer) error {
		fmt.Fprintln(out, "Tree Statistics")
		fmt.Fprintln(out, "===============")
		fmt.Fprintln(out)
		if t.Empty() {
			fmt.Fprintln(out, "Tree is empty.")
			return nil
		}

		leaves := t.Leaves()
		internal := t.InternalNodes()
		fmt.Fprintf(out, "Number of leaves (taxa): %d\n", len(leaves))
		fmt.Fprintf(out, "Number of internal nodes: %d\n", len(internal))
		fmt.Fprintf(out, "Total nodes: %d\n", len(leaves)+len(internal))
		fmt.Fprintf(out, "Tree height (root): %.6f\n", t.Root.Height)

		var lengths []float64
		for _, n := range append(append([]*cluster.Node{}, leaves...), internal...) {
			if n.BranchLength > 0 {
				lengths = append(lengths, n.BranchLength)
			}
		}
		if len(lengths) > 0 {
			min, max, sum := lengths[0], lengths[0], 0.0
			for _, l := range lengths {
				if l < min {
					min = l
				}
				if l > max {
					max = l
				}
				sum += l
			}
			fmt.Fprintln(out)
			fmt.Fprintln(out, "Branch Length Statistics:")
			fmt.Fprintf(out, "  Min: %.6f\n", min)
			fmt.Fprintf(out, "  Max: %.6f\n", max)
			fmt.Fprintf(out, "  Mean: %.6f\n", sum/float64(len(lengths)))
			fmt.Fprintf(out, "  Total tree length: %.6f\n", sum)
		}

		if !t.Root.IsLeaf() {
			half := t.Root.MergeDistance / 2
			atHalf := cluster.CutByDistance(t, half)
			fmt.Fprintln(out)
			fmt.Fprintln(out, "Cluster Composition:")
			fmt.Fprintf(out, "  Clusters at half max merge distance (%.6f): %d\n", half, countClusters(atHalf))
			fmt.Fprintf(out, "  Two-way split sizes: %s\n", splitSizes(cluster.CutByNumClusters(t, 2)))
		}
		return nil
	})
}

func countClusters(labels []int) int {
	max := -1
	for _, l := range labels {
		if l > max {
			max = l
		}
	}
	return max + 1
}

// splitSizes renders the per-cluster leaf counts, largest first.
func splitSizes(labels []int) string {
	counts := make(map[int]int)
	for _, l := range labels {
		counts[l]++
	}
	sizes := make([]int, 0, len(counts))
	for _, c := range counts {
		sizes = append(sizes, c)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(sizes)))
	parts := make([]string, len(sizes))
	for i, s := range sizes {
		parts[i] = strconv.Itoa(s)
	}
	return strings.Join(parts, "/")
}

// WriteFilteredReads writes the debug channel file for one region, replacing
// any file already at <debugDir>/<chr>_<pos>/filtered_reads.tsv.
func (w *RegionWriter) WriteFilteredReads(chrName string, snvPos int64, filtered []reads.FilteredRead) error {
	if w.debugDir == "" || len(filtered) == 0 {
		return nil
	}
	dir := filepath.Join(w.debugDir, fmt.Sprintf("%s_%d", chrName, snvPos))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create debug dir: %w", err)
	}
	return writeFile(filepath.Join(dir, "filtered_reads.tsv"), func(out *bufio.Writer) error {
		fmt.Fprintln(out, "read_name\tchr\tstart\tend\tmapq\tstrand\tis_tumor\tfilter_reasons")
		for _, f := range filtered {
			fmt.Fprintf(out, "%s\t%s\t%d\t%d\t%d\t%s\t%d\t%s\n",
				f.Name, chrName, f.Start, f.End, f.MapQ, f.Strand.Symbol(),
				boolToInt(f.IsTumor), f.Reasons)
		}
		return nil
	})
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func writeFile(path string, fn func(*bufio.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	out := bufio.NewWriter(f)
	if err := fn(out); err != nil {
		f.Close()
		return err
	}
	if err := out.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	return nil
}

func writeString(path, s string) error {
	return writeFile(path, func(out *bufio.Writer) error {
		_, err := out.WriteString(s)
		return err
	})
}
