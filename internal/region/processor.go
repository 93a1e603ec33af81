package region

import (
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/biogo/hts/sam"
	"go.uber.org/zap"

	"github.com/methclust/methclust/internal/archive"
	"github.com/methclust/methclust/internal/cluster"
	"github.com/methclust/methclust/internal/distance"
	"github.com/methclust/methclust/internal/genome"
	"github.com/methclust/methclust/internal/methyl"
	"github.com/methclust/methclust/internal/output"
	"github.com/methclust/methclust/internal/reads"
	"github.com/methclust/methclust/internal/snv"
)

// ReadFetcher is the read-archive handle each worker owns exclusively.
type ReadFetcher interface {
	Fetch(chrName string, start0, end0 int) ([]*sam.Record, error)
	Close() error
}

// RefFetcher is the reference handle each worker owns exclusively.
type RefFetcher interface {
	Fetch(chrName string, start0, end0 int) (string, error)
	ChrLength(chrName string) int64
	Close() error
}

// Handles bundles the per-worker reader handles. Normal is nil when no normal
// archive is configured.
type Handles struct {
	Tumor  ReadFetcher
	Normal ReadFetcher
	Ref    RefFetcher
}

// Close releases every handle.
func (h *Handles) Close() {
	if h.Tumor != nil {
		h.Tumor.Close()
	}
	if h.Normal != nil {
		h.Normal.Close()
	}
	if h.Ref != nil {
		h.Ref.Close()
	}
}

// HandleFactory opens a fresh handle set for one worker. Opening is expensive
// and the handles' random-access cursors are not re-entrant, so the factory
// is invoked once per worker and the handles are never shared.
type HandleFactory func() (*Handles, error)

// ArchiveHandleFactory builds a factory over the BAM and FASTA archives named
// in the config.
func ArchiveHandleFactory(cfg *Config) HandleFactory {
	return func() (*Handles, error) {
		tumor, err := archive.OpenBam(cfg.TumorBam)
		if err != nil {
			return nil, err
		}
		h := &Handles{Tumor: tumor}

		if cfg.NormalBam != "" {
			normal, err := archive.OpenBam(cfg.NormalBam)
			if err != nil {
				h.Close()
				return nil, err
			}
			h.Normal = normal
		}

		ref, err := archive.OpenFasta(cfg.Reference)
		if err != nil {
			h.Close()
			return nil, err
		}
		h.Ref = ref
		return h, nil
	}
}

// Processor schedules one region per worker at a time over the variant table.
type Processor struct {
	cfg      Config
	chroms   *genome.ChromIndex
	variants []snv.Variant
	factory  HandleFactory
	writer   *output.RegionWriter
	logger   *zap.Logger
}

// NewProcessor wires a processor over an already-loaded chromosome index and
// variant table.
func NewProcessor(cfg Config, chroms *genome.ChromIndex, variants []snv.Variant, factory HandleFactory) *Processor {
	debugDir := ""
	if cfg.OutputFilteredReads {
		debugDir = cfg.EffectiveDebugDir()
	}
	return &Processor{
		cfg:      cfg,
		chroms:   chroms,
		variants: variants,
		factory:  factory,
		writer:   output.NewRegionWriter(cfg.OutputDir, snv.Stem(cfg.SNVPath), debugDir),
		logger:   zap.NewNop(),
	}
}

// SetLogger sets the logger for progress and failure messages.
func (p *Processor) SetLogger(l *zap.Logger) {
	p.logger = l
}

// Run processes every region across a fixed worker pool and returns results
// in variant-table order. Worker handle construction happens up-front so a
// bad archive fails the run before any region starts; a failure inside one
// region only marks that region's result.
func (p *Processor) Run() ([]Result, error) {
	n := len(p.variants)
	if p.cfg.MaxSNVs > 0 && p.cfg.MaxSNVs < n {
		n = p.cfg.MaxSNVs
	}

	workers := p.cfg.Threads
	if workers < 1 {
		workers = 1
	}
	if workers > n && n > 0 {
		workers = n
	}

	handles := make([]*Handles, workers)
	for i := range handles {
		h, err := p.factory()
		if err != nil {
			for _, open := range handles[:i] {
				open.Close()
			}
			return nil, fmt.Errorf("open worker handles: %w", err)
		}
		handles[i] = h
	}
	defer func() {
		for _, h := range handles {
			h.Close()
		}
	}()

	p.logger.Info("processing regions",
		zap.Int("regions", n),
		zap.Int("workers", workers))

	// Each worker writes only to its own result slots, so the slice needs no
	// locking.
	results := make([]Result, n)
	jobs := make(chan int)

	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func(h *Handles) {
			defer wg.Done()
			for idx := range jobs {
				results[idx] = p.processRegion(&p.variants[idx], idx, h)
				r := &results[idx]
				if r.Success {
					p.logger.Info("region done",
						zap.Int("region", idx),
						zap.Int("reads", r.NumReads),
						zap.Int("cpgs", r.NumCpGs),
						zap.Duration("elapsed", r.Elapsed))
				} else {
					p.logger.Error("region failed",
						zap.Int("region", idx),
						zap.String("error", r.Err))
				}
			}
		}(handles[w])
	}

	for i := 0; i < n; i++ {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	return results, nil
}

// innerWorkers sizes the per-region distance pair loop: when the outer pool
// already saturates the machine each region stays on one core, otherwise the
// pair loop fans out.
func (p *Processor) innerWorkers() int {
	if p.cfg.Threads > 1 {
		return 1
	}
	return runtime.GOMAXPROCS(0)
}

func (p *Processor) processRegion(v *snv.Variant, regionID int, h *Handles) Result {
	start := time.Now()
	result := Result{RegionID: regionID, SNVID: v.ID}

	fail := func(err error) Result {
		result.Success = false
		result.Err = err.Error()
		result.Elapsed = time.Since(start)
		return result
	}

	chrName := p.chroms.Name(v.ChrID)
	chrLen := h.Ref.ChrLength(chrName)
	region := genome.Window(regionID, v.ChrID, v.Pos, p.cfg.WindowSize, chrLen)

	start0 := int(region.Start - 1)
	end0 := int(region.End)

	refSeq, err := h.Ref.Fetch(chrName, start0, end0)
	if err != nil {
		return fail(err)
	}
	if refSeq == "" {
		return fail(fmt.Errorf("reference sequence unavailable for %s:%d-%d", chrName, region.Start, region.End))
	}

	tumorReads, err := h.Tumor.Fetch(chrName, start0, end0)
	if err != nil {
		return fail(err)
	}
	var normalReads []*sam.Record
	if h.Normal != nil {
		normalReads, err = h.Normal.Fetch(chrName, start0, end0)
		if err != nil {
			return fail(err)
		}
	}

	filter := reads.NewFilter(reads.FilterConfig{
		MinMapQ:        byte(p.cfg.MinMapQ),
		MinReadLength:  p.cfg.MinReadLength,
		MinBaseQuality: byte(p.cfg.MinBaseQuality),
		RequireModTags: true,
	})
	builder := methyl.NewBuilder(methyl.Thresholds{High: p.cfg.MethylHigh, Low: p.cfg.MethylLow})

	seen := make(map[string]struct{})
	var filtered []reads.FilteredRead

	consume := func(recs []*sam.Record, isTumor bool) {
		for _, rec := range recs {
			keep, reasons := filter.Classify(rec)
			if !keep && !p.cfg.NoFilter {
				if p.cfg.OutputFilteredReads {
					filtered = append(filtered, reads.Filtered(rec, isTumor, reasons))
				}
				continue
			}

			pr, supportReason := filter.Parse(rec, builder.NumReads(), isTumor, v)
			if pr.AltSupport == reads.SupportUnknown && !p.cfg.NoFilter {
				if p.cfg.OutputFilteredReads {
					filtered = append(filtered, reads.Filtered(rec, isTumor, supportReason))
				}
				continue
			}

			// At-most-once per read name; the first occurrence wins.
			if _, dup := seen[pr.Name]; dup {
				continue
			}
			seen[pr.Name] = struct{}{}

			calls := methyl.Decode(rec, refSeq, int64(start0))
			if _, err := builder.AddRead(pr, calls); err != nil {
				continue
			}
			switch pr.Strand {
			case reads.StrandForward:
				result.NumForward++
			case reads.StrandReverse:
				result.NumReverse++
			}
		}
	}

	consume(tumorReads, true)
	consume(normalReads, false)

	m := builder.Finalize()
	result.NumReads = m.NumReads()
	result.NumCpGs = m.NumCpGs()
	result.NumFiltered = len(filtered)

	dir, err := p.writer.RegionDir(chrName, v.Pos, region)
	if err != nil {
		return fail(err)
	}
	if err := p.writer.WriteRegion(dir, v, chrName, region, m, time.Since(start)); err != nil {
		return fail(err)
	}
	if p.cfg.OutputFilteredReads {
		if err := p.writer.WriteFilteredReads(chrName, v.Pos, filtered); err != nil {
			return fail(err)
		}
	}
	if p.cfg.StrandMatrices && m.NumReads() > 0 && m.NumCpGs() > 0 {
		if err := p.writer.WriteStrandMatrices(dir, m); err != nil {
			return fail(err)
		}
	}
	if p.cfg.WriteNpy {
		if err := p.writer.WriteNpy(dir, m); err != nil {
			return fail(err)
		}
	}

	if m.NumReads() >= 2 && m.NumCpGs() >= 1 {
		if err := p.computeDistances(dir, m, &result); err != nil {
			return fail(err)
		}
	}

	result.Success = true
	result.Elapsed = time.Since(start)
	return result
}

// computeDistances runs every configured metric; clustering runs for the
// first metric only.
func (p *Processor) computeDistances(dir string, m *methyl.Matrix, result *Result) error {
	for mi, metric := range p.cfg.Metrics {
		dcfg := distance.Config{
			Metric:               metric,
			MinCommonCoverage:    p.cfg.MinCommonCoverage,
			Strategy:             p.cfg.Strategy,
			MaxDistanceValue:     p.cfg.MaxDistanceValue,
			JaccardIncludeUnmeth: p.cfg.JaccardIncludeUnmeth,
			Workers:              p.innerWorkers(),
		}

		d := distance.Compute(m, dcfg)

		var fwd, rev *distance.Matrix
		if p.cfg.StrandMatrices {
			fwd, rev = distance.ComputeStrandSpecific(m, dcfg)
		}

		if err := p.writer.WriteDistance(dir, d, fwd, rev, p.cfg.StrandMatrices); err != nil {
			return err
		}

		if mi == 0 {
			result.ValidPairs = d.ValidPairs
			result.InvalidPairs = d.InvalidPairs
			result.MeanCommonCoverage = d.MeanCommonCoverage

			if m.NumReads() >= p.cfg.ClusteringMinReads {
				if err := p.clusterAndWrite(dir, m, d, fwd, rev); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func (p *Processor) clusterAndWrite(dir string, m *methyl.Matrix, d, fwd, rev *distance.Matrix) error {
	ccfg := cluster.Config{Linkage: p.cfg.Linkage}

	labels := make([]string, m.NumReads())
	for i, r := range m.Reads {
		labels[i] = r.Name
	}
	tree := cluster.Build(d.D, labels, ccfg)

	var fwdTree, revTree *cluster.Tree
	if p.cfg.StrandMatrices {
		fwdTree = p.strandTree(m, fwd, reads.StrandForward, ccfg)
		revTree = p.strandTree(m, rev, reads.StrandReverse, ccfg)
	}

	return p.writer.WriteClustering(dir, tree, fwdTree, revTree)
}

func (p *Processor) strandTree(m *methyl.Matrix, d *distance.Matrix, s reads.Strand, ccfg cluster.Config) *cluster.Tree {
	if d == nil || d.Size() < 2 {
		return &cluster.Tree{}
	}
	var labels []string
	for _, r := range m.Reads {
		if r.Strand == s {
			labels = append(labels, r.Name)
		}
	}
	if len(labels) != d.Size() {
		return &cluster.Tree{}
	}
	return cluster.Build(d.D, labels, ccfg)
}
