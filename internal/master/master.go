// Package master implements the Master state machine: the scheduler that
// owns every Distribution and Job under consideration, advances them
// through the resolve/fetch/configure/install pipeline, and decides when a
// run has finished (successfully or not). It is a pure decision engine —
// all I/O happens in workers outside this package.
package master

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bilusteknoloji/cpm/internal/corelist"
	"github.com/bilusteknoloji/cpm/internal/cpmlog"
	"github.com/bilusteknoloji/cpm/internal/cycle"
	"github.com/bilusteknoloji/cpm/internal/distribution"
	"github.com/bilusteknoloji/cpm/internal/job"
	"github.com/bilusteknoloji/cpm/internal/requirement"
	"github.com/bilusteknoloji/cpm/internal/version"
)

// perlDistfile matches a resolver-returned distfile naming a perl core
// release itself; such a result can never be installed as a dependency.
var perlDistfile = regexp.MustCompile(`^perl-5`)

// InstalledInfo is what the installed-module oracle reports for a package
// already present in the target environment.
type InstalledInfo struct {
	Name    string
	Version version.Version
	Rev     string
}

// Oracle probes the filesystem (search_inc) for an already-installed module.
// The core never touches the filesystem itself; it consumes this interface.
type Oracle interface {
	Probe(pkg string, searchInc []string) (InstalledInfo, bool)
}

// Config carries the options the core recognizes.
type Config struct {
	TargetPerl   string // hypothetical runtime version for core-list consultation; empty = unset
	RunningPerl  version.Version
	Global       bool
	Reinstall    bool
	SearchInc    []string
	CoreInc      []string
	ShowProgress bool
	Logger       cpmlog.Sink
	Core         corelist.Table
}

// Status is the outcome of evaluating a flat requirements list against the
// current state of the world.
type Status int

const (
	StatusSatisfied Status = iota
	StatusUnsatisfied
	StatusPerlVersionFail
)

func (s Status) String() string {
	switch s {
	case StatusSatisfied:
		return "satisfied"
	case StatusUnsatisfied:
		return "unsatisfied"
	case StatusPerlVersionFail:
		return "perl_version_fail"
	default:
		return "unknown"
	}
}

// JobResult is the worker's report for one completed Job, looked up by UID
// and dispatched by the original job's type: this is a separate value, not
// a mutation of the stored Job.
type JobResult struct {
	UID     string
	OK      bool
	Pid     int
	Elapsed time.Duration
	Message string

	// resolve
	Distfile string
	Version  string
	Rev      string
	Provides []distribution.Provide
	Features []string

	// fetch
	Directory    string
	Meta         map[string]string
	Requirements map[distribution.Phase]*requirement.Collection
	Prebuilt     bool

	// configure (Provides above doubles as the post-configure authoritative
	// list when set; distdata.provides in the source maps onto it here)
	Distdata      map[string]string
	StaticBuilder string
	Distvname     string
}

// FailureReport is returned by Fail at the end of a drive when the run did
// not fully succeed.
type FailureReport struct {
	ResolveFailures []string
	InstallFailures []string
	Cycles          map[string][]string
}

// Master is a single-threaded cooperative coordinator: all mutation
// happens under mu, GetJob is the only operation that may block, and
// RegisterResult never blocks.
type Master struct {
	mu   sync.Mutex
	cond *sync.Cond

	cfg    Config
	oracle Oracle

	jobs          map[string]job.Job
	distributions map[string]*distribution.Distribution
	packageIndex  map[string]string // package -> providing distfile

	failResolve      map[string]bool
	failInstall      map[string]bool
	isInstalledCache map[string]InstalledInfo
	reinstalled      map[string]bool // "at most once per run" latch under Reinstall mode
	removedCore      map[string]bool

	installedCount int
}

// New constructs a Master. cfg.Core is the injected read-only core-module
// table; a nil table is replaced by corelist.Empty().
func New(cfg Config, oracle Oracle) *Master {
	m := &Master{
		cfg:              cfg,
		oracle:           oracle,
		jobs:             make(map[string]job.Job),
		distributions:    make(map[string]*distribution.Distribution),
		packageIndex:     make(map[string]string),
		failResolve:      make(map[string]bool),
		failInstall:      make(map[string]bool),
		isInstalledCache: make(map[string]InstalledInfo),
		reinstalled:      make(map[string]bool),
		removedCore:      make(map[string]bool),
	}
	m.cond = sync.NewCond(&m.mu)

	if m.cfg.Core == nil {
		m.cfg.Core = corelist.Empty()
	}

	return m
}

// AddJob enqueues j if no equal job is already pending, returning whether it
// was added.
func (m *Master) AddJob(j job.Job) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.addJobLocked(j)
}

func (m *Master) addJobLocked(j job.Job) bool {
	uid := j.UID()
	if _, ok := m.jobs[uid]; ok {
		return false
	}

	m.jobs[uid] = j
	m.cond.Broadcast()

	return true
}

// SeedRequirements is the entry point a driver uses to start a run from a
// root set of requirements: it evaluates them exactly like a distribution's
// phase requirements and registers resolve jobs only for the
// entries that are not already satisfied by what is installed.
func (m *Master) SeedRequirements(entries []requirement.Entry) (Status, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	status, conflict, needResolve := m.isSatisfiedLocked(entries)
	m.registerResolveJobsLocked(needResolve)

	return status, conflict
}

// GetJob returns every job not currently in_charge. If none exist, it runs
// calculateJobs to try to advance distributions, then tries again. If jobs
// remain in flight but none are ready, it blocks until RegisterResult wakes
// it. An empty, non-nil-impossible-to-distinguish return with no jobs in
// flight signals the drive is quiescent.
func (m *Master) GetJob() []job.Job {
	m.mu.Lock()
	defer m.mu.Unlock()

	for {
		if ready := m.takeReadyLocked(); len(ready) > 0 {
			return ready
		}

		m.calculateJobsLocked()

		if ready := m.takeReadyLocked(); len(ready) > 0 {
			return ready
		}

		if len(m.jobs) == 0 {
			return nil
		}

		m.cond.Wait()
	}
}

func (m *Master) takeReadyLocked() []job.Job {
	ready := m.readyJobsLocked()
	for i, j := range ready {
		j = j.WithInCharge(true)
		m.jobs[j.UID()] = j
		ready[i] = j
	}

	return ready
}

func (m *Master) readyJobsLocked() []job.Job {
	var uids []string

	for uid, j := range m.jobs {
		if !j.InCharge() {
			uids = append(uids, uid)
		}
	}

	sort.Strings(uids)

	ready := make([]job.Job, 0, len(uids))
	for _, uid := range uids {
		ready = append(ready, m.jobs[uid])
	}

	return ready
}

// RegisterResult looks up the job by result.UID, dispatches on its type to
// the appropriate stage handler, then removes it from the pending set.
func (m *Master) RegisterResult(result JobResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.jobs[result.UID]
	if !ok {
		return fmt.Errorf("master: no pending job with uid %s", result.UID)
	}

	switch j.Type() {
	case job.Resolve:
		m.handleResolveResultLocked(j, result)
	case job.Fetch:
		m.handleFetchResultLocked(j, result)
	case job.Configure:
		m.handleConfigureResultLocked(j, result)
	case job.Install:
		m.handleInstallResultLocked(j, result)
	}

	delete(m.jobs, result.UID)
	m.cond.Broadcast()

	return nil
}

// AddDistribution inserts dist if its distfile is new; otherwise merges its
// Provides entries into the existing record. Returns whether it was a new
// insertion.
func (m *Master) AddDistribution(dist *distribution.Distribution) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.addDistributionLocked(dist)
}

func (m *Master) addDistributionLocked(d *distribution.Distribution) bool {
	existing, ok := m.distributions[d.Distfile]
	if ok {
		m.mergeProvidesLocked(existing, d.Provides)

		return false
	}

	m.distributions[d.Distfile] = d
	m.indexProvidesLocked(d)

	return true
}

func (m *Master) mergeProvidesLocked(d *distribution.Distribution, provides []distribution.Provide) {
	for _, p := range provides {
		found := false

		for _, existing := range d.Provides {
			if existing.Package == p.Package {
				found = true

				break
			}
		}

		if !found {
			d.Provides = append(d.Provides, p)
		}
	}

	m.indexProvidesLocked(d)
}

func (m *Master) indexProvidesLocked(d *distribution.Distribution) {
	for _, p := range d.Provides {
		m.packageIndex[p.Package] = d.Distfile
	}
}

// IsInstalled queries the installed-module oracle (caching the result),
// applies reinstall policy, and reports whether pkg at rng/ref is already
// present.
func (m *Master) IsInstalled(pkg string, rng version.Range, ref string) (bool, version.Version, string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.isInstalledLocked(pkg, rng, ref)
}

func (m *Master) isInstalledLocked(pkg string, rng version.Range, ref string) (bool, version.Version, string) {
	info, cached := m.isInstalledCache[pkg]
	if !cached {
		probed, ok := m.oracle.Probe(pkg, m.cfg.SearchInc)
		if !ok {
			return false, version.Version{}, ""
		}

		info = probed
		m.isInstalledCache[pkg] = info
	}

	if !info.Version.Satisfies(rng) {
		return false, version.Version{}, ""
	}

	if m.cfg.Reinstall && !m.reinstalled[pkg] {
		m.reinstalled[pkg] = true

		return false, info.Version, info.Rev
	}

	return true, info.Version, info.Rev
}

// IsSatisfied evaluates a flat requirements list and returns the
// overall status, whether a source conflict was found, and the entries that
// still need a resolve job.
func (m *Master) IsSatisfied(reqs []requirement.Entry) (Status, bool, []requirement.Entry) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.isSatisfiedLocked(reqs)
}

func (m *Master) isSatisfiedLocked(reqs []requirement.Entry) (Status, bool, []requirement.Entry) {
	status := StatusSatisfied
	conflict := false

	var needResolve []requirement.Entry

	downgrade := func() {
		if status == StatusSatisfied {
			status = StatusUnsatisfied
		}
	}

	for _, e := range reqs {
		if e.Package == "perl" {
			if !m.runtimeVersionLocked().Satisfies(e.Range) {
				status = StatusPerlVersionFail
			}

			continue
		}

		if m.coreSatisfiesLocked(e) {
			continue
		}

		provider, found := m.findProviderLocked(e.Package, e.Range, e.Options.Ref)
		if found {
			if sourceConflictsWithProvider(provider, e.Options) {
				conflict = true
				downgrade()
				m.logFail(fmt.Sprintf("source conflict for package %s", e.Package))

				continue
			}

			if m.cfg.Reinstall {
				installed, _, _ := m.isInstalledLocked(e.Package, e.Range, e.Options.Ref)
				if !installed {
					needResolve = append(needResolve, e)
					downgrade()
				}

				continue
			}

			if provider.Installed() {
				continue
			}

			// Still in flight toward install; neither satisfied nor in
			// need of a fresh resolve this round.
			downgrade()

			continue
		}

		if installed, _, _ := m.isInstalledLocked(e.Package, e.Range, e.Options.Ref); installed {
			continue
		}

		needResolve = append(needResolve, e)
		downgrade()
	}

	return status, conflict, needResolve
}

// coreSatisfiesLocked reports whether e is satisfied by the target runtime's
// core-module table, emitting the one-shot "used to be core" warning when
// the package has since been dropped from the running runtime's own table.
func (m *Master) coreSatisfiesLocked(e requirement.Entry) bool {
	if m.cfg.TargetPerl == "" || m.cfg.Global {
		return false
	}

	coreVersion, ok := m.cfg.Core.Lookup(m.cfg.TargetPerl, e.Package)
	if !ok || !coreVersion.Satisfies(e.Range) {
		return false
	}

	if running := m.cfg.RunningPerl; !running.IsZero() {
		if _, stillCore := m.cfg.Core.Lookup(running.String(), e.Package); !stillCore && !m.removedCore[e.Package] {
			m.removedCore[e.Package] = true
			m.log(fmt.Sprintf("%s: used to be a core module under %s, now requires separate installation", e.Package, m.cfg.TargetPerl))
		}
	}

	return true
}

func (m *Master) runtimeVersionLocked() version.Version {
	if m.cfg.TargetPerl != "" {
		if v, err := version.Parse(m.cfg.TargetPerl); err == nil {
			return v
		}
	}

	return m.cfg.RunningPerl
}

func (m *Master) findProviderLocked(pkg string, rng version.Range, ref string) (*distribution.Distribution, bool) {
	distfile, ok := m.packageIndex[pkg]
	if !ok {
		return nil, false
	}

	d, ok := m.distributions[distfile]
	if !ok || !d.Providing(pkg, rng, ref) {
		return nil, false
	}

	return d, true
}

func sourceConflictsWithProvider(d *distribution.Distribution, opts requirement.Options) bool {
	if opts.IsGit() != (d.Source == job.SourceGit) {
		return true
	}

	return opts.IsGit() && opts.Git != d.URI
}

// calculateJobsLocked runs the three independent advancement sweeps.
// Each sweep reads only flags set before the pass began or
// earlier in the same pass, so a distribution promoted in the fetch sweep
// is not re-examined for configure dependencies until the next call.
func (m *Master) calculateJobsLocked() {
	distfiles := m.sortedDistfilesLocked()

	for _, key := range distfiles {
		d := m.distributions[key]
		if m.failInstall[key] {
			continue
		}

		if d.Resolved() && !d.Fetched() && !d.FetchRegistered {
			d.FetchRegistered = true
			m.addJobLocked(m.newStageJob(job.Fetch, d))
		}
	}

	for _, key := range distfiles {
		d := m.distributions[key]
		if m.failInstall[key] {
			continue
		}

		if d.Fetched() && !d.Configured() && !d.ConfigureRegistered {
			m.advanceLocked(d, distribution.PhaseConfigure, job.Configure, &d.ConfigureRegistered, &d.ConfigureDepsRegistered)
		}
	}

	for _, key := range distfiles {
		d := m.distributions[key]
		if m.failInstall[key] {
			continue
		}

		if d.Configured() && !d.Installed() && !d.InstallRegistered {
			m.advanceLocked(d, distribution.PhaseBuild, job.Install, &d.InstallRegistered, &d.InstallDepsRegistered)
		}
	}
}

// advanceLocked evaluates the requirements gating stage (configure or
// install) for d and either emits the stage's job, registers discovered
// dependency resolve jobs, or marks d failed, per the four-branch logic
// shared by the configure and install sweeps.
func (m *Master) advanceLocked(d *distribution.Distribution, stage distribution.Phase, stageJob job.Type, registered, depsRegistered *bool) {
	phases := []distribution.Phase{distribution.PhaseBuild, distribution.PhaseTest, distribution.PhaseRuntime}
	if stage == distribution.PhaseConfigure {
		phases = []distribution.Phase{distribution.PhaseConfigure}
	} else if d.Prebuilt() {
		phases = append([]distribution.Phase{distribution.PhaseConfigure}, phases...)
	}

	reqs, err := d.RequirementsAcross(phases)
	if err != nil {
		m.failInstall[d.Distfile] = true

		return
	}

	status, conflict, needResolve := m.isSatisfiedLocked(reqs)

	switch {
	case conflict:
		*depsRegistered = true
		m.failInstall[d.Distfile] = true
	case status == StatusPerlVersionFail:
		m.logFail(fmt.Sprintf("%s: perl version requirement not satisfiable", distvname(d)))
		m.failInstall[d.Distfile] = true
	case status == StatusSatisfied:
		*registered = true
		m.addJobLocked(m.newStageJob(stageJob, d))
	case len(needResolve) > 0 && !*depsRegistered:
		*depsRegistered = true

		names := make([]string, 0, len(needResolve))
		for _, e := range needResolve {
			names = append(names, e.Package)
		}

		m.log(fmt.Sprintf("%s: discovered dependencies %s", distvname(d), strings.Join(names, ", ")))

		if !m.registerResolveJobsLocked(needResolve) {
			m.failInstall[d.Distfile] = true
		}
	}
}

func (m *Master) newStageJob(typ job.Type, d *distribution.Distribution) job.Job {
	j := job.New(typ)
	j.Distfile = d.Distfile
	j.Source = d.Source
	j.URI = d.URI
	j.Ref = d.Ref
	j.Features = d.Features

	return j
}

func (m *Master) sortedDistfilesLocked() []string {
	keys := make([]string, 0, len(m.distributions))
	for k := range m.distributions {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}

// registerResolveJobsLocked enqueues a resolve job per entry, skipping (and
// recording as overall failure) any package already known to fail resolving
// or whose providing distfile already failed.
func (m *Master) registerResolveJobsLocked(entries []requirement.Entry) bool {
	allOK := true

	for _, e := range entries {
		if m.failResolve[e.Package] {
			allOK = false

			continue
		}

		if distfile, ok := m.packageIndex[e.Package]; ok && m.failInstall[distfile] {
			allOK = false

			continue
		}

		j := job.New(job.Resolve)
		j.Package = e.Package
		j.VersionRange = e.Range.String()
		j.Reinstall = m.cfg.Reinstall
		j.Features = e.Options.Features

		if e.Options.IsGit() {
			j.Source = job.SourceGit
			j.URI = e.Options.Git
			j.Ref = e.Options.Ref
		}

		m.addJobLocked(j)
	}

	return allOK
}

func (m *Master) handleResolveResultLocked(j job.Job, result JobResult) {
	pkg := j.Package

	if !result.OK {
		m.failResolve[pkg] = true
		m.logFail(fmt.Sprintf("resolve %s: %s", pkg, result.Message))

		return
	}

	if perlDistfile.MatchString(result.Distfile) {
		m.logFail(fmt.Sprintf("%s: cannot upgrade core module", result.Distfile))
		m.failInstall[result.Distfile] = true

		return
	}

	rng, rngErr := version.ParseRange(j.VersionRange)

	if !j.Reinstall && rngErr == nil {
		if installed, v, _ := m.isInstalledLocked(pkg, rng, j.Ref); installed {
			m.log(cpmlog.FormatJobResult(cpmlog.Done, "install", result.Elapsed, result.Pid,
				fmt.Sprintf("%s %s already installed", pkg, v), "using installed"))

			return
		}
	}

	provides := result.Provides
	if len(provides) == 0 {
		v, _ := version.Parse(result.Version)
		provides = []distribution.Provide{{Package: pkg, Version: v, Ref: j.Ref}}
	}

	d := distribution.New(result.Distfile, j.Source, j.URI, result.Rev, j.Ref)
	d.Provides = provides
	d.Features = result.Features
	d.SetResolved()

	m.addDistributionLocked(d)
}

func (m *Master) handleFetchResultLocked(j job.Job, result JobResult) {
	d, ok := m.distributions[j.Distfile]
	if !ok {
		return
	}

	if !result.OK {
		m.failInstall[j.Distfile] = true
		m.logFail(fmt.Sprintf("%s: fetch failed: %s", distvname(d), result.Message))

		return
	}

	d.Directory = result.Directory
	d.Meta = result.Meta

	if len(result.Provides) > 0 {
		d.Provides = result.Provides
		m.indexProvidesLocked(d)
	}

	if j.Source == job.SourceGit {
		d.Rev = result.Rev
		d.Distvname = deriveDistvname(result.Meta, d.Distfile)
	}

	if result.Prebuilt {
		for phase, reqs := range result.Requirements {
			d.SetRequirements(phase, reqs)
		}

		d.SetPrebuilt()
		d.SetConfigured()

		return
	}

	d.SetFetched()
}

func (m *Master) handleConfigureResultLocked(j job.Job, result JobResult) {
	d, ok := m.distributions[j.Distfile]
	if !ok {
		return
	}

	if !result.OK {
		m.failInstall[j.Distfile] = true
		m.logFail(fmt.Sprintf("%s: configure failed: %s", distvname(d), result.Message))

		return
	}

	for phase, reqs := range result.Requirements {
		d.SetRequirements(phase, reqs)
	}

	d.StaticBuilder = result.StaticBuilder
	d.Distdata = result.Distdata

	if j.Source == job.SourceGit && result.Distvname != "" {
		d.Distvname = result.Distvname
	}

	if !d.Prebuilt() && len(result.Provides) > 0 {
		sorted := append([]distribution.Provide(nil), result.Provides...)
		sort.Slice(sorted, func(i, k int) bool { return sorted[i].Package < sorted[k].Package })

		for i := range sorted {
			if sorted[i].Ref == "" {
				sorted[i].Ref = d.Ref
			}
		}

		d.Provides = sorted
		m.indexProvidesLocked(d)
	}

	d.SetConfigured()

	names := make([]string, 0, len(d.Provides))
	for _, p := range d.Provides {
		names = append(names, p.Package)
	}

	m.log(fmt.Sprintf("%s: provides %s", distvname(d), strings.Join(names, ", ")))
}

func (m *Master) handleInstallResultLocked(j job.Job, result JobResult) {
	d, ok := m.distributions[j.Distfile]
	if !ok {
		return
	}

	if !result.OK {
		m.failInstall[j.Distfile] = true
		m.logFail(fmt.Sprintf("%s: install failed: %s", distvname(d), result.Message))

		return
	}

	d.SetInstalled()
	m.installedCount++

	if m.cfg.ShowProgress {
		m.log(fmt.Sprintf("%d/%d installed", m.installedCount, len(m.distributions)))
	}
}

// Fail computes the terminal report. It returns nil when every distribution
// reached installed and no resolve/install failure was ever recorded
// (invariant 5).
func (m *Master) Fail() *FailureReport {
	m.mu.Lock()
	defer m.mu.Unlock()

	resolveFailures := sortedKeys(m.failResolve)
	installFailures := sortedKeys(m.failInstall)

	allInstalled := true

	var survivors []string

	for distfile, d := range m.distributions {
		if d.Installed() {
			continue
		}

		allInstalled = false

		if m.failInstall[distfile] {
			continue
		}

		survivors = append(survivors, distfile)
	}

	if len(resolveFailures) == 0 && len(installFailures) == 0 && allInstalled {
		return nil
	}

	sort.Strings(survivors)

	detector := cycle.New()

	for _, distfile := range survivors {
		d := m.distributions[distfile]

		reqs, _ := d.RequirementsAcross([]distribution.Phase{
			distribution.PhaseConfigure, distribution.PhaseBuild, distribution.PhaseTest, distribution.PhaseRuntime,
		})

		required := make([]string, 0, len(reqs))
		for _, e := range reqs {
			required = append(required, e.Package)
		}

		provides := make([]string, 0, len(d.Provides))
		for _, p := range d.Provides {
			provides = append(provides, p.Package)
		}

		detector.Add(cycle.Node{Distfile: distfile, Distvname: distvname(d), Provides: provides, Required: required})
	}

	detector.Finalize()
	cycles := detector.Detect()

	reported := make(map[string]bool)

	for _, distfile := range survivors {
		path, ok := cycles[distfile]
		if !ok {
			continue
		}

		key := strings.Join(path, " -> ")
		if !reported[key] {
			reported[key] = true

			m.logFail(key)
		}
	}

	for _, distfile := range survivors {
		if _, inCycle := cycles[distfile]; inCycle {
			continue
		}

		m.logFail(fmt.Sprintf("%s: failed because of dependencies", distvname(m.distributions[distfile])))
	}

	return &FailureReport{
		ResolveFailures: resolveFailures,
		InstallFailures: installFailures,
		Cycles:          cycles,
	}
}

// InstalledCount returns the number of distributions installed so far.
func (m *Master) InstalledCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.installedCount
}

func (m *Master) log(msg string) {
	if m.cfg.Logger != nil {
		m.cfg.Logger.Log(msg)
	}
}

func (m *Master) logFail(msg string) {
	if m.cfg.Logger != nil {
		m.cfg.Logger.LogFail(msg)
	}
}

func distvname(d *distribution.Distribution) string {
	if d.Distvname != "" {
		return d.Distvname
	}

	// Registry distfiles carry no separate display name; derive the
	// "name-version" form by dropping the directory and archive extension.
	for _, ext := range []string{".tar.gz", ".tgz", ".tar.bz2", ".zip"} {
		if strings.HasSuffix(d.Distfile, ext) {
			return strings.TrimSuffix(d.Distfile[strings.LastIndex(d.Distfile, "/")+1:], ext)
		}
	}

	return d.Distfile
}

func deriveDistvname(meta map[string]string, fallback string) string {
	name, hasName := meta["name"]
	ver, hasVersion := meta["version"]

	if hasName && hasVersion {
		return name + "-" + ver
	}

	return fallback
}

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}
