package output

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/kshedden/gonpy"

	"github.com/methclust/methclust/internal/methyl"
)

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }

// WriteNpy dumps the raw methylation matrix as a float64 .npy array for
// downstream Python plotting. Missing cells stay NaN. Empty matrices write
// nothing.
func (w *RegionWriter) WriteNpy(dir string, m *methyl.Matrix) error {
	n, p := m.NumReads(), m.NumCpGs()
	if n == 0 || p == 0 {
		return nil
	}

	path := filepath.Join(dir, "methylation", "methylation.npy")
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	bufw := bufio.NewWriter(f)
	npw, err := gonpy.NewWriter(nopCloser{bufw})
	if err != nil {
		return fmt.Errorf("npy writer %s: %w", path, err)
	}
	npw.Shape = []int{n, p}

	data := make([]float64, 0, n*p)
	for i := 0; i < n; i++ {
		data = append(data, m.RawRow(i)...)
	}
	if err := npw.WriteFloat64(data); err != nil {
		return fmt.Errorf("write npy %s: %w", path, err)
	}
	if err := bufw.Flush(); err != nil {
		return fmt.Errorf("flush npy %s: %w", path, err)
	}
	return nil
}
