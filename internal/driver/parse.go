package driver

import (
	"context"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"ferment/internal/buildpipeline"
	"ferment/internal/cache"
	"ferment/internal/diag"
	"ferment/internal/rustsrc"
	"ferment/internal/source"
	"ferment/internal/syntax"
)

type parsed struct {
	crate        *syntax.Crate
	bag          *diag.Bag
	hits, misses int
}

// parse reads every package in parallel, one reader per goroutine, and
// joins the results in configuration order.
func (r *run) parse(ctx context.Context) error {
	var disk *cache.Disk
	if r.opts.CacheDir != "" {
		d, err := cache.Open(r.opts.CacheDir)
		if err != nil {
			diag.ReportWarning(r.reporter, diag.IOCacheCorrupt, source.Generated,
				"parse cache disabled: "+err.Error()).Emit()
		} else {
			disk = d
		}
	}

	type unit struct {
		name, dir string
		primary   bool
	}
	units := []unit{{r.opts.Crate, r.opts.CrateDir, true}}
	for _, e := range r.opts.External {
		units = append(units, unit{e.Name, e.Dir, false})
	}

	jobs := r.opts.Jobs
	if jobs <= 0 {
		jobs = runtime.GOMAXPROCS(0)
	}
	results := make([]parsed, len(units))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(min(jobs, len(units)))
	for i, u := range units {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			start := time.Now()
			buildpipeline.Emit(r.opts.Progress, u.name, buildpipeline.StageParse, buildpipeline.StatusWorking, nil, 0)

			bag := diag.NewBag(r.opts.MaxDiagnostics)
			reader := rustsrc.NewReader(r.res.Files, disk, &diag.BagReporter{Bag: bag})
			defer reader.Close()
			reader.SkipModule(r.opts.modName())
			crate, err := reader.ReadCrate(gctx, u.name, u.dir, u.primary)
			hits, misses := reader.CacheStats()
			results[i] = parsed{crate: crate, bag: bag, hits: hits, misses: misses}

			status := buildpipeline.StatusDone
			if err != nil || bag.HasErrors() {
				status = buildpipeline.StatusError
			}
			buildpipeline.Emit(r.opts.Progress, u.name, buildpipeline.StageParse, status, err, time.Since(start))
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	r.res.Syntax = &syntax.Forest{}
	for _, p := range results {
		r.res.Bag.Merge(p.bag)
		r.res.CacheHits += p.hits
		r.res.CacheMisses += p.misses
		r.res.Syntax.Crates = append(r.res.Syntax.Crates, p.crate)
	}
	return nil
}
