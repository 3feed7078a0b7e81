// Package workerpool drives a Master's job queue with a bounded pool of
// concurrent workers, dispatching each Job to the registry/fetcher/builder
// collaborator that performs its I/O and reporting the outcome back via
// Master.RegisterResult. Ported from downloader.Manager.Download's
// errgroup-bounded concurrency, generalized from one stage to four.
package workerpool

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bilusteknoloji/cpm/internal/builder"
	"github.com/bilusteknoloji/cpm/internal/cpmlog"
	"github.com/bilusteknoloji/cpm/internal/fetcher"
	"github.com/bilusteknoloji/cpm/internal/job"
	"github.com/bilusteknoloji/cpm/internal/master"
	"github.com/bilusteknoloji/cpm/internal/registry"
)

// Option configures a Pool.
type Option func(*Pool)

// WithMaxWorkers bounds per-batch concurrency. Defaults to runtime.GOMAXPROCS(0).
func WithMaxWorkers(n int) Option {
	return func(p *Pool) {
		if n > 0 {
			p.maxWorkers = n
		}
	}
}

// WithLogger sets the sink each dispatched job's outcome is recorded to.
func WithLogger(l cpmlog.Sink) Option {
	return func(p *Pool) {
		if l != nil {
			p.logger = l
		}
	}
}

// Pool drives m's job queue to completion, dispatching jobs to reg, fetch,
// and build.
type Pool struct {
	master *master.Master
	reg    registry.Client
	fetch  fetcher.Fetcher
	build  builder.Builder

	maxWorkers int
	logger     cpmlog.Sink

	mu             sync.Mutex
	fetchedDirs    map[string]string // distfile -> directory, populated by fetch
	configuredDirs map[string]string // distfile -> directory, populated by configure
}

// New creates a Pool over m's job queue.
func New(m *master.Master, reg registry.Client, fetch fetcher.Fetcher, build builder.Builder, opts ...Option) *Pool {
	p := &Pool{
		master:         m,
		reg:            reg,
		fetch:          fetch,
		build:          build,
		maxWorkers:     runtime.GOMAXPROCS(0),
		fetchedDirs:    make(map[string]string),
		configuredDirs: make(map[string]string),
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Run repeatedly pulls ready batches from the Master and dispatches them
// until the Master reports quiescence (GetJob returns no jobs).
func (p *Pool) Run(ctx context.Context) error {
	for {
		jobs := p.master.GetJob()
		if len(jobs) == 0 {
			return nil
		}

		if err := p.runBatch(ctx, jobs); err != nil {
			return err
		}
	}
}

// runBatch dispatches every job in the batch concurrently, bounded by
// maxWorkers, and registers each result as soon as it's ready.
// RegisterResult is safe for concurrent use, so results are fed back to the
// Master without waiting for the rest of the batch.
func (p *Pool) runBatch(ctx context.Context, jobs []job.Job) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(p.maxWorkers)

	for _, j := range jobs {
		g.Go(func() error {
			result := p.dispatch(ctx, j)

			if err := p.master.RegisterResult(result); err != nil {
				return fmt.Errorf("registering result for %s: %w", j.Type(), err)
			}

			return nil
		})
	}

	return g.Wait()
}

// dispatch runs one job's worker and converts its outcome (success or
// failure) into a JobResult; a failing job never aborts the batch, it only
// reports OK=false so the Master can apply its sticky-failure policy.
func (p *Pool) dispatch(ctx context.Context, j job.Job) master.JobResult {
	start := time.Now()

	var result master.JobResult

	switch j.Type() {
	case job.Resolve:
		result = p.resolveJob(ctx, j)
	case job.Fetch:
		result = p.fetchJob(ctx, j)
	case job.Configure:
		result = p.configureJob(ctx, j)
	case job.Install:
		result = p.installJob(ctx, j)
	}

	result.UID = j.UID()
	result.Pid = os.Getpid()
	result.Elapsed = time.Since(start)

	p.logResult(j, result)

	return result
}

func (p *Pool) logResult(j job.Job, result master.JobResult) {
	if p.logger == nil {
		return
	}

	verb := cpmlog.Done
	if !result.OK {
		verb = cpmlog.Fail
	}

	msg := cpmlog.FormatJobResult(verb, j.Type().String(), result.Elapsed, result.Pid, result.Message, "")
	if result.OK {
		p.logger.Log(msg)
	} else {
		p.logger.LogFail(msg)
	}
}

func (p *Pool) resolveJob(ctx context.Context, j job.Job) master.JobResult {
	if j.Source == job.SourceGit {
		return master.JobResult{
			OK:       true,
			Distfile: gitDistfile(j),
		}
	}

	release, err := p.reg.Resolve(ctx, j.Package, j.VersionRange)
	if err != nil {
		return failResult(err)
	}

	return master.JobResult{
		OK:       true,
		Distfile: release.Distfile,
		Version:  release.Version,
	}
}

func (p *Pool) fetchJob(ctx context.Context, j job.Job) master.JobResult {
	results, err := p.fetch.Fetch(ctx, []fetcher.Request{{
		Distfile: j.Distfile,
		Source:   j.Source,
		URI:      j.URI,
		Ref:      j.Ref,
	}})
	if err != nil {
		return failResult(err)
	}

	r := results[0]

	p.mu.Lock()
	p.fetchedDirs[j.Distfile] = r.Directory
	p.mu.Unlock()

	return master.JobResult{
		OK:        true,
		Directory: r.Directory,
		Rev:       r.Rev,
	}
}

func (p *Pool) configureJob(ctx context.Context, j job.Job) master.JobResult {
	dir, ok := p.fetchedDir(j.Distfile)
	if !ok {
		return failResult(fmt.Errorf("no fetched directory recorded for %s", j.Distfile))
	}

	result, err := p.build.Configure(ctx, builder.ConfigureRequest{
		Distfile:  j.Distfile,
		Directory: dir,
	})
	if err != nil {
		return failResult(err)
	}

	p.mu.Lock()
	p.configuredDirs[j.Distfile] = result.Directory
	p.mu.Unlock()

	return master.JobResult{
		OK:            true,
		Requirements:  result.Requirements,
		Provides:      result.Provides,
		StaticBuilder: result.StaticBuilder,
		Distdata:      result.Distdata,
	}
}

func (p *Pool) installJob(ctx context.Context, j job.Job) master.JobResult {
	dir, ok := p.configuredDir(j.Distfile)
	if !ok {
		dir, ok = p.fetchedDir(j.Distfile)
	}

	if !ok {
		return failResult(fmt.Errorf("no configured or fetched directory recorded for %s", j.Distfile))
	}

	if _, err := p.build.Install(ctx, builder.InstallRequest{Distfile: j.Distfile, Directory: dir}); err != nil {
		return failResult(err)
	}

	return master.JobResult{OK: true}
}

func (p *Pool) fetchedDir(distfile string) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	dir, ok := p.fetchedDirs[distfile]

	return dir, ok
}

func (p *Pool) configuredDir(distfile string) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	dir, ok := p.configuredDirs[distfile]

	return dir, ok
}

func failResult(err error) master.JobResult {
	return master.JobResult{OK: false, Message: err.Error()}
}

// gitDistfile synthesizes a stable distfile identifier for a git-sourced
// resolve job: git sources carry no registry-assigned name, so the
// identifier is derived from the job's own identity instead.
func gitDistfile(j job.Job) string {
	return fmt.Sprintf("%s-git-%s", j.Package, j.UID()[:12])
}
