// Package region drives the per-SNV pipeline across a fixed pool of workers.
package region

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/methclust/methclust/internal/cluster"
	"github.com/methclust/methclust/internal/distance"
)

// Config holds every runtime parameter of a processing run.
type Config struct {
	TumorBam  string
	NormalBam string // optional
	Reference string
	SNVPath   string
	OutputDir string
	DebugDir  string // defaults to OutputDir/debug

	WindowSize     int64 // window radius around each SNV, in bases
	MinMapQ        int
	MinReadLength  int
	MinBaseQuality int

	MethylHigh float64 // raw >= high → methylated
	MethylLow  float64 // raw <= low → unmethylated

	MinCommonCoverage    int
	Metrics              []distance.Metric
	Strategy             distance.NaNStrategy
	MaxDistanceValue     float64
	JaccardIncludeUnmeth bool

	Linkage            cluster.Linkage
	ClusteringMinReads int

	Threads int
	MaxSNVs int // 0 means all

	OutputFilteredReads bool
	NoFilter            bool // emit all reads without filtering, for verification
	StrandMatrices      bool
	WriteNpy            bool
}

// DefaultConfig returns the default thresholds used by the CLI.
func DefaultConfig() Config {
	return Config{
		OutputDir:          "output",
		WindowSize:         1000,
		MinMapQ:            20,
		MinReadLength:      1000,
		MinBaseQuality:     20,
		MethylHigh:         0.8,
		MethylLow:          0.2,
		MinCommonCoverage:  3,
		Metrics:            []distance.Metric{distance.NHD},
		Strategy:           distance.MaxDist,
		MaxDistanceValue:   1.0,
		Linkage:            cluster.UPGMA,
		ClusteringMinReads: 10,
		Threads:            1,
		StrandMatrices:     true,
	}
}

// Validate checks the configuration logic that flag parsing cannot: required
// paths, threshold ordering, and positive bounds. Configuration errors are
// fatal at startup.
func (c *Config) Validate() error {
	if c.TumorBam == "" {
		return fmt.Errorf("tumor BAM path is required")
	}
	if c.Reference == "" {
		return fmt.Errorf("reference FASTA path is required")
	}
	if c.SNVPath == "" {
		return fmt.Errorf("SNV file path is required")
	}
	for _, path := range []string{c.TumorBam, c.Reference, c.SNVPath} {
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("input not readable: %w", err)
		}
	}
	if c.NormalBam != "" {
		if _, err := os.Stat(c.NormalBam); err != nil {
			return fmt.Errorf("normal BAM not readable: %w", err)
		}
	}

	if c.WindowSize < 1 {
		return fmt.Errorf("window size must be >= 1, got %d", c.WindowSize)
	}
	if c.MethylHigh <= c.MethylLow {
		return fmt.Errorf("methylation thresholds inverted: high %.3f <= low %.3f", c.MethylHigh, c.MethylLow)
	}
	if c.MethylHigh > 1 || c.MethylLow < 0 {
		return fmt.Errorf("methylation thresholds must lie in [0,1]")
	}
	if c.MinCommonCoverage < 1 {
		return fmt.Errorf("min common coverage must be >= 1, got %d", c.MinCommonCoverage)
	}
	if c.MaxDistanceValue <= 0 {
		return fmt.Errorf("max distance value must be > 0, got %g", c.MaxDistanceValue)
	}
	if len(c.Metrics) == 0 {
		return fmt.Errorf("at least one distance metric is required")
	}
	if c.Threads < 1 {
		return fmt.Errorf("thread count must be >= 1, got %d", c.Threads)
	}
	if c.ClusteringMinReads < 2 {
		return fmt.Errorf("clustering min reads must be >= 2, got %d", c.ClusteringMinReads)
	}
	return nil
}

// EffectiveDebugDir returns the configured debug directory, defaulting to
// a debug/ subdirectory of the output root.
func (c *Config) EffectiveDebugDir() string {
	if c.DebugDir != "" {
		return c.DebugDir
	}
	return filepath.Join(c.OutputDir, "debug")
}
