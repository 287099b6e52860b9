package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/northcutted/drvscan/pkg/analysis"
	"github.com/northcutted/drvscan/pkg/config"
	"github.com/northcutted/drvscan/pkg/peimage"
	"github.com/northcutted/drvscan/pkg/report"
	"github.com/northcutted/drvscan/pkg/watchlist"
)

// settings is the effective configuration after merging flags over the
// config file over built-in defaults.
type settings struct {
	watchlist *watchlist.ImportSet
	workers   int
	format    string
	output    string
	cacheSize int
	log       config.LogConfig
}

func runScan(ctx context.Context, cmd *cobra.Command, target string) error {
	cfg, cfgPath, err := loadConfig()
	if err != nil {
		return err
	}
	s, err := resolveSettings(cmd.Flags(), cfg)
	if err != nil {
		return err
	}

	logger, closeLog, err := setupLogger(s.log, verbose)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeLog(); err != nil {
			fmt.Fprintf(stderr, "failed to close log file: %v\n", err)
		}
	}()
	slog.SetDefault(logger)
	if cfgPath != "" {
		logger.Debug("loaded config", "path", cfgPath)
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	analyzer := &report.Analyzer{Watchlist: s.watchlist, Logger: logger}

	// Anything that is not a directory, including a missing path, goes through
	// the single-file path so open failures carry the FileOpenError kind.
	info, statErr := os.Stat(target)
	if statErr != nil || !info.IsDir() {
		logger.Info("analyzing driver", "path", target, "watchlist", s.watchlist.Len())
		rep, err := analyzer.FromDriver(target)
		if err != nil {
			logger.Error("failed to analyze driver", "path", target, "kind", peimage.Kind(err), "error", err)
			return fmt.Errorf("failed to analyze %s: %w", target, err)
		}
		logger.Info("analysis complete", "path", target,
			"found", len(rep.FoundImports), "matching", len(rep.MatchingImports))
		return writeReports(s, []*report.Report{rep}, true)
	}

	logger.Info("scanning directory", "path", target, "workers", s.workers, "watchlist", s.watchlist.Len())
	analyzer.Cache = analysis.NewCache(s.cacheSize)
	batch, err := analysis.AnalyzeDirectory(ctx, target, analyzer, analysis.Options{
		Workers: s.workers,
		Logger:  logger,
	})
	if err != nil {
		return err
	}
	stats := analysis.Summarize(batch)
	logger.Info("scan complete",
		"files", stats.Files,
		"analyzed", stats.Analyzed,
		"failed", stats.Failed,
		"with_matches", stats.WithMatches)
	for kind, n := range stats.FailuresByKind {
		logger.Debug("failures by kind", "kind", kind, "count", n)
	}

	if err := writeReports(s, batch.Reports, false); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("scan timed out after %s: %d files skipped", timeout, stats.FailuresByKind["Cancelled"])
		}
		return fmt.Errorf("scan interrupted: %w", err)
	}
	return nil
}

// loadConfig reads --config, or drvscan.yaml from the working directory when
// present. Without either it returns the default configuration.
func loadConfig() (*config.Config, string, error) {
	path := configFile
	if path == "" {
		if _, err := os.Stat(config.DefaultFile); err == nil {
			path = config.DefaultFile
		}
	}
	if path == "" {
		cfg, err := config.Parse(nil)
		return cfg, "", err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

// resolveSettings merges explicitly set flags over cfg.
func resolveSettings(flags *pflag.FlagSet, cfg *config.Config) (*settings, error) {
	s := &settings{
		workers:   cfg.Workers,
		format:    cfg.Format,
		output:    cfg.Output,
		cacheSize: analysis.DefaultCacheSize,
		log:       cfg.Log,
	}
	if cfg.CacheSize != nil {
		s.cacheSize = *cfg.CacheSize
	}

	if flags.Changed("workers") {
		if workers < 0 {
			return nil, fmt.Errorf("--workers must not be negative, got %d", workers)
		}
		s.workers = workers
	}
	if flags.Changed("format") {
		if !config.ValidFormat(outputFormat) {
			return nil, fmt.Errorf("unknown format %q (want json, markdown or text)", outputFormat)
		}
		s.format = outputFormat
	}
	if flags.Changed("output") {
		s.output = outputFile
	}
	if flags.Changed("cache-size") {
		s.cacheSize = cacheSize
	}
	if flags.Changed("log-file") {
		s.log.File = logFile
	}

	var err error
	switch {
	case importsFile != "":
		s.watchlist, err = watchlist.Load(importsFile)
	default:
		s.watchlist, err = cfg.ResolveWatchlist()
	}
	if err != nil {
		return nil, err
	}
	if s.watchlist == nil {
		s.watchlist = watchlist.Default()
	}
	return s, nil
}
