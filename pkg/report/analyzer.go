package report

import (
	"log/slog"

	"github.com/northcutted/drvscan/pkg/peimage"
	"github.com/northcutted/drvscan/pkg/watchlist"
)

// Classified is the content-dependent part of a report, keyed by file hash.
type Classified struct {
	Found    []Import
	Matching []Import
	Err      error
}

// ResultCache memoises Classified results of byte-identical files.
// Implementations must be safe for concurrent use.
type ResultCache interface {
	Get(hash string) (Classified, bool)
	Add(hash string, c Classified)
}

// Analyzer runs the load, validate, walk, classify, hash pipeline. The zero
// value uses the default watchlist and logger. An Analyzer is safe to share
// across goroutines as long as its fields are not modified.
type Analyzer struct {
	Watchlist *watchlist.ImportSet
	Logger    *slog.Logger
	Cache     ResultCache
}

// FromDriver analyses the driver at path with the given watchlist.
func FromDriver(path string, set *watchlist.ImportSet) (*Report, error) {
	a := &Analyzer{Watchlist: set}
	return a.FromDriver(path)
}

// FromDriver loads path and analyses it. The mapping is released before
// returning.
func (a *Analyzer) FromDriver(path string) (*Report, error) {
	img, err := peimage.Load(path)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := img.Close(); err != nil {
			a.logger().Warn("failed to release image", "path", path, "error", err)
		}
	}()
	return a.FromImage(img)
}

// FromImage analyses an already loaded image.
func (a *Analyzer) FromImage(img *peimage.Image) (*Report, error) {
	logger := a.logger().With("path", img.Name())

	if a.Cache == nil {
		found, matching, err := a.classify(img, logger)
		if err != nil {
			return nil, err
		}
		hash, err := hashImage(img)
		if err != nil {
			return nil, err
		}
		return New(img.Name(), hash, found, matching), nil
	}

	hash, err := hashImage(img)
	if err != nil {
		return nil, err
	}
	c, ok := a.Cache.Get(hash)
	if ok {
		logger.Debug("content cache hit", "hash", hash)
	} else {
		c.Found, c.Matching, c.Err = a.classify(img, logger)
		a.Cache.Add(hash, c)
	}
	if c.Err != nil {
		return nil, c.Err
	}
	return New(img.Name(), hash, c.Found, c.Matching), nil
}

func (a *Analyzer) classify(img *peimage.Image, logger *slog.Logger) (found, matching []Import, err error) {
	headers, err := peimage.Parse(img)
	if err != nil {
		return nil, nil, err
	}
	imports, err := headers.KernelImports(logger)
	if err != nil {
		return nil, nil, err
	}
	set := a.Watchlist
	if set == nil {
		set = watchlist.Default()
	}
	found, matching = Classify(imports, set)
	logger.Debug("classified kernel imports", "found", len(found), "matching", len(matching))
	return found, matching, nil
}

func (a *Analyzer) logger() *slog.Logger {
	if a.Logger != nil {
		return a.Logger
	}
	return slog.Default()
}
