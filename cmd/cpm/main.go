package main

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/bilusteknoloji/cpm/internal/builder"
	"github.com/bilusteknoloji/cpm/internal/cache"
	"github.com/bilusteknoloji/cpm/internal/cpmlog"
	"github.com/bilusteknoloji/cpm/internal/fetcher"
	"github.com/bilusteknoloji/cpm/internal/master"
	"github.com/bilusteknoloji/cpm/internal/oracle"
	"github.com/bilusteknoloji/cpm/internal/registry"
	"github.com/bilusteknoloji/cpm/internal/requirement"
	"github.com/bilusteknoloji/cpm/internal/version"
	"github.com/bilusteknoloji/cpm/internal/workerpool"
)

var cpmVersion = "0.0.0"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	rootCmd := &cobra.Command{
		Use:           "cpm",
		Short:         "A concurrent module installer for a CPAN-like ecosystem",
		Long:          "cpm resolves, fetches, configures, and installs modules and their dependencies concurrently.",
		Version:       cpmVersion,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	installCmd := &cobra.Command{
		Use:   "install [modules...]",
		Short: "Install modules",
		Args:  cobra.MinimumNArgs(0),
		RunE:  runInstall,
	}

	installCmd.Flags().StringP("file", "r", "", "Install requirements from a cpmfile")
	installCmd.Flags().IntP("jobs", "j", 0, "Max concurrent workers (default: GOMAXPROCS)")
	installCmd.Flags().String("target-perl", "", "Hypothetical runtime version to consult the core-module table against")
	installCmd.Flags().Bool("global", false, "Install into the global module path, bypassing the core-module table")
	installCmd.Flags().Bool("reinstall", false, "Reinstall modules even if already satisfied")
	installCmd.Flags().StringSlice("search-inc", nil, "Directories to search for already-installed modules")
	installCmd.Flags().StringSlice("core-inc", nil, "Directories holding core-module data")
	installCmd.Flags().Bool("show-progress", false, "Print an n/total line after every install")
	installCmd.Flags().Bool("dry-run", false, "Print the resolved requirement set without installing")
	installCmd.Flags().BoolP("verbose", "v", false, "Verbose logging")

	rootCmd.AddCommand(installCmd)

	return rootCmd.Execute()
}

// installFlags holds parsed CLI flags for the install command.
type installFlags struct {
	file         string
	jobs         int
	targetPerl   string
	global       bool
	reinstall    bool
	searchInc    []string
	coreInc      []string
	showProgress bool
	dryRun       bool
	verbose      bool
}

func parseInstallFlags(cmd *cobra.Command) installFlags {
	file, _ := cmd.Flags().GetString("file")
	jobs, _ := cmd.Flags().GetInt("jobs")
	targetPerl, _ := cmd.Flags().GetString("target-perl")
	global, _ := cmd.Flags().GetBool("global")
	reinstall, _ := cmd.Flags().GetBool("reinstall")
	searchInc, _ := cmd.Flags().GetStringSlice("search-inc")
	coreInc, _ := cmd.Flags().GetStringSlice("core-inc")
	showProgress, _ := cmd.Flags().GetBool("show-progress")
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	verbose, _ := cmd.Flags().GetBool("verbose")

	return installFlags{file, jobs, targetPerl, global, reinstall, searchInc, coreInc, showProgress, dryRun, verbose}
}

func runInstall(cmd *cobra.Command, args []string) error {
	start := time.Now()
	flags := parseInstallFlags(cmd)

	lines, err := collectRequirementLines(args, flags.file)
	if err != nil {
		return err
	}

	if len(lines) == 0 {
		return fmt.Errorf("no modules specified; use 'cpm install <module>' or 'cpm install -r cpmfile'")
	}

	entries, err := parseRequirements(lines)
	if err != nil {
		return err
	}

	logger := cpmlog.New(flags.verbose)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if flags.dryRun {
		printDryRun(entries)

		return nil
	}

	oracleSvc := oracle.New()

	runningPerl, err := oracleSvc.RuntimeVersion(ctx)
	if err != nil {
		logger.LogFail(fmt.Sprintf("detecting running perl version: %v", err))
	}

	cfg := master.Config{
		TargetPerl:   flags.targetPerl,
		RunningPerl:  runningPerl,
		Global:       flags.global,
		Reinstall:    flags.reinstall,
		SearchInc:    flags.searchInc,
		CoreInc:      flags.coreInc,
		ShowProgress: flags.showProgress,
		Logger:       logger,
	}

	m := master.New(cfg, oracleSvc)

	status, conflict := m.SeedRequirements(entries)
	if conflict {
		return fmt.Errorf("conflicting sources among the requested modules")
	}

	fmt.Printf("Resolving %d requirement(s) (%s)...\n", len(entries), status)

	pool, err := buildWorkerPool(m, flags, logger)
	if err != nil {
		return err
	}

	if err := pool.Run(ctx); err != nil {
		return fmt.Errorf("installing: %w", err)
	}

	if report := m.Fail(); report != nil {
		return fmt.Errorf("installation incomplete: %d resolve failure(s), %d install failure(s), %d cycle(s)",
			len(report.ResolveFailures), len(report.InstallFailures), len(report.Cycles))
	}

	fmt.Printf("  %d module(s) installed\n", m.InstalledCount())
	fmt.Printf("Done in %.1fs\n", time.Since(start).Seconds())

	return nil
}

func buildWorkerPool(m *master.Master, flags installFlags, logger cpmlog.Sink) (*workerpool.Pool, error) {
	httpClient := &http.Client{Timeout: 30 * time.Second}

	reg := registry.New(registry.WithHTTPClient(httpClient))

	distCache, err := cache.New()
	if err != nil {
		return nil, fmt.Errorf("creating distfile cache: %w", err)
	}

	fetchDir, err := os.MkdirTemp("", "cpm-fetch-*")
	if err != nil {
		return nil, fmt.Errorf("creating fetch directory: %w", err)
	}

	fetchOpts := []fetcher.Option{fetcher.WithHTTPClient(httpClient), fetcher.WithCache(distCache)}

	installRoot := defaultInstallRoot(flags.global)

	buildSvc := builder.New(builder.WithInstallRoot(installRoot))
	fetchSvc := fetcher.New(fetchDir, fetchOpts...)

	poolOpts := []workerpool.Option{workerpool.WithLogger(logger)}
	if flags.jobs > 0 {
		poolOpts = append(poolOpts, workerpool.WithMaxWorkers(flags.jobs))
	} else {
		poolOpts = append(poolOpts, workerpool.WithMaxWorkers(runtime.GOMAXPROCS(0)))
	}

	return workerpool.New(m, reg, fetchSvc, buildSvc, poolOpts...), nil
}

func defaultInstallRoot(global bool) string {
	if global {
		return "/usr/local/lib/perl5/site_perl"
	}

	return "local"
}

// collectRequirementLines merges CLI module args and cpmfile entries.
func collectRequirementLines(args []string, file string) ([]string, error) {
	var lines []string

	lines = append(lines, args...)

	if file != "" {
		fileLines, err := parseCpmfile(file)
		if err != nil {
			return nil, err
		}

		lines = append(lines, fileLines...)
	}

	return lines, nil
}

// parseCpmfile reads a cpmfile: one requirement per line, "#" starts an
// inline comment, blank lines and lines starting with "-" (options) are
// skipped. Ported from parseRequirementsFile.
func parseCpmfile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening cpmfile %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	var lines []string

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		if idx := strings.Index(line, "#"); idx >= 0 {
			line = strings.TrimSpace(line[:idx])
		}

		if line == "" || strings.HasPrefix(line, "-") {
			continue
		}

		lines = append(lines, line)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading cpmfile %s: %w", path, err)
	}

	return lines, nil
}

// parseRequirements converts "Module::Name" or "Module::Name RANGE" lines
// into requirement entries. RANGE follows the comma-clause grammar
// (e.g. ">=1.2, <2.0"); a bare module name means Any().
func parseRequirements(lines []string) ([]requirement.Entry, error) {
	entries := make([]requirement.Entry, 0, len(lines))

	for _, line := range lines {
		fields := strings.SplitN(line, " ", 2)

		pkg := fields[0]

		rng := version.Any()

		if len(fields) == 2 {
			rangeStr := strings.TrimSpace(fields[1])
			if rangeStr != "" {
				parsed, err := version.ParseRange(rangeStr)
				if err != nil {
					return nil, fmt.Errorf("parsing range for %s: %w", pkg, err)
				}

				rng = parsed
			}
		}

		entries = append(entries, requirement.Entry{Package: pkg, Range: rng})
	}

	return entries, nil
}

func printDryRun(entries []requirement.Entry) {
	fmt.Printf("Would resolve %d requirement(s):\n", len(entries))

	for _, e := range entries {
		rangeStr := e.Range.String()
		if rangeStr == "" {
			rangeStr = "any"
		}

		fmt.Printf("  %s %s\n", e.Package, rangeStr)
	}

	fmt.Println("\nDry run, no changes made.")
}
