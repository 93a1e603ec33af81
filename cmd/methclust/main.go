// Package main provides the methclust command-line tool.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/methclust/methclust/internal/cluster"
	"github.com/methclust/methclust/internal/distance"
	"github.com/methclust/methclust/internal/genome"
	"github.com/methclust/methclust/internal/region"
	"github.com/methclust/methclust/internal/snv"
)

// Exit codes
const (
	ExitSuccess = 0
	ExitError   = 1
	ExitUsage   = 2
)

// Version information (set at build time)
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	var showVersion bool
	flag.BoolVar(&showVersion, "version", false, "Show version information")
	flag.Parse()

	if showVersion {
		fmt.Printf("methclust version %s (%s) built %s\n", version, commit, date)
		return ExitSuccess
	}

	args := flag.Args()
	if len(args) < 1 {
		printUsage()
		return ExitUsage
	}

	switch args[0] {
	case "run":
		return runAnalysis(args[1:])
	case "config":
		return runConfig(args[1:])
	case "help":
		printUsage()
		return ExitSuccess
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown command %q\n\n", args[0])
		printUsage()
		return ExitUsage
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `methclust - per-molecule methylation clustering around somatic SNVs

Usage:
  methclust [options] <command> [arguments]

Commands:
  run         Process every SNV region of a variant file
  config      Manage methclust configuration
  help        Show this help message

Global Options:
  --version   Show version information

Examples:
  # Cluster reads around each PASS somatic SNV
  methclust run --tumor-bam tumor.bam --reference ref.fa --snv somatic.vcf.gz

  # Use multiple distance metrics and Ward linkage
  methclust run --tumor-bam tumor.bam --reference ref.fa --snv snvs.tsv \
      --metrics NHD,L1,CORR --linkage WARD

For more information on a command, use:
  methclust <command> --help
`)
}

func runAnalysis(args []string) int {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	cfg := region.DefaultConfig()

	// Persistent defaults from ~/.methclust.yaml seed the flag defaults;
	// explicit flags still win.
	initViper()
	metricsDefault, linkageDefault := applyConfigDefaults(&cfg)

	var (
		metricsFlag  string
		strategyFlag string
		linkageFlag  string
		logLevelFlag string
	)

	fs.StringVar(&cfg.TumorBam, "tumor-bam", "", "Tumor BAM file (indexed, required)")
	fs.StringVar(&cfg.NormalBam, "normal-bam", "", "Normal BAM file (indexed, optional)")
	fs.StringVar(&cfg.Reference, "reference", "", "Reference FASTA (with .fai index, required)")
	fs.StringVar(&cfg.SNVPath, "snv", "", "Somatic SNV file: VCF, VCF.gz, or TSV (required)")
	fs.StringVar(&cfg.OutputDir, "output", cfg.OutputDir, "Output directory")
	fs.Int64Var(&cfg.WindowSize, "window", cfg.WindowSize, "Window radius around each SNV (bp)")
	fs.IntVar(&cfg.MinMapQ, "min-mapq", cfg.MinMapQ, "Minimum mapping quality")
	fs.IntVar(&cfg.MinReadLength, "min-read-length", cfg.MinReadLength, "Minimum aligned read length (bp)")
	fs.IntVar(&cfg.MinBaseQuality, "min-base-quality", cfg.MinBaseQuality, "Minimum base quality at the SNV site")
	fs.Float64Var(&cfg.MethylHigh, "methyl-high", cfg.MethylHigh, "Probability threshold for a methylated call")
	fs.Float64Var(&cfg.MethylLow, "methyl-low", cfg.MethylLow, "Probability threshold for an unmethylated call")
	fs.IntVar(&cfg.MinCommonCoverage, "min-common-coverage", cfg.MinCommonCoverage, "Minimum common CpG sites per read pair (C_min)")
	fs.StringVar(&metricsFlag, "metrics", metricsDefault, "Comma-separated distance metrics: NHD,L1,L2,CORR,JACCARD,BERNOULLI")
	fs.StringVar(&strategyFlag, "nan-strategy", "max_dist", "Invalid-pair strategy: max_dist or skip")
	fs.Float64Var(&cfg.MaxDistanceValue, "max-distance", cfg.MaxDistanceValue, "Distance substituted for invalid pairs under max_dist")
	fs.BoolVar(&cfg.JaccardIncludeUnmeth, "jaccard-include-unmeth", false, "Include unmethylated sites in the Jaccard sets")
	fs.StringVar(&linkageFlag, "linkage", linkageDefault, "Linkage method: UPGMA, WARD, SINGLE, COMPLETE")
	fs.IntVar(&cfg.ClusteringMinReads, "clustering-min-reads", cfg.ClusteringMinReads, "Minimum reads required for clustering")
	fs.IntVar(&cfg.Threads, "threads", cfg.Threads, "Worker count")
	fs.IntVar(&cfg.MaxSNVs, "max-snvs", 0, "Process only the first N SNVs (0 = all)")
	fs.StringVar(&logLevelFlag, "log-level", "info", "Log level: debug, info, warn, error")
	fs.StringVar(&cfg.DebugDir, "debug-dir", "", "Directory for debug outputs (default <output>/debug)")
	fs.BoolVar(&cfg.OutputFilteredReads, "output-filtered-reads", false, "Write filtered reads with their reasons")
	fs.BoolVar(&cfg.NoFilter, "no-filter", false, "Emit all reads without filtering, for verification")
	fs.BoolVar(&cfg.StrandMatrices, "strand-matrices", cfg.StrandMatrices, "Write strand-specific matrices and trees")
	fs.BoolVar(&cfg.WriteNpy, "npy", false, "Also write the raw methylation matrix as .npy")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Process every SNV region of a variant file.

Usage:
  methclust run [options]

Options:
`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return ExitUsage
	}

	var err error
	if cfg.Metrics, err = distance.ParseMetrics(metricsFlag); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitError
	}
	if cfg.Strategy, err = distance.ParseNaNStrategy(strategyFlag); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitError
	}
	if cfg.Linkage, err = cluster.ParseLinkage(linkageFlag); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitError
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitError
	}

	logger, err := buildLogger(logLevelFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitError
	}
	defer logger.Sync()

	chroms := genome.NewChromIndex()
	variants, err := snv.Load(cfg.SNVPath, chroms)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading SNVs: %v\n", err)
		return ExitError
	}
	if len(variants) == 0 {
		fmt.Fprintln(os.Stderr, "Error: no biallelic PASS SNVs loaded")
		return ExitError
	}
	logger.Info("loaded SNVs", zap.Int("count", len(variants)), zap.String("source", cfg.SNVPath))

	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "Error creating output directory: %v\n", err)
		return ExitError
	}
	snvTablePath := filepath.Join(cfg.OutputDir, snv.Stem(cfg.SNVPath)+"_snvs.tsv")
	if err := snv.SaveTSV(snvTablePath, variants, chroms); err != nil {
		logger.Warn("could not write SNV table", zap.Error(err))
	}

	proc := region.NewProcessor(cfg, chroms, variants, region.ArchiveHandleFactory(&cfg))
	proc.SetLogger(logger)

	results, err := proc.Run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitError
	}

	summary := region.Summarize(results)
	fmt.Fprintln(os.Stderr, "=== Processing Summary ===")
	fmt.Fprintln(os.Stderr, summary.String())
	for _, f := range region.Failures(results) {
		fmt.Fprintf(os.Stderr, "region %d failed: %s\n", f.RegionID, f.Err)
	}
	logger.Info("done",
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("failed", summary.Failed),
		zap.String("output", cfg.OutputDir))

	return ExitSuccess
}

func buildLogger(level string) (*zap.Logger, error) {
	var lvl zapcore.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = zapcore.DebugLevel
	case "info":
		lvl = zapcore.InfoLevel
	case "warn", "warning":
		lvl = zapcore.WarnLevel
	case "error":
		lvl = zapcore.ErrorLevel
	default:
		return nil, fmt.Errorf("unknown log level %q", level)
	}

	zcfg := zap.NewDevelopmentConfig()
	zcfg.Level = zap.NewAtomicLevelAt(lvl)
	zcfg.DisableStacktrace = true
	return zcfg.Build()
}
