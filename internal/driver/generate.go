package driver

import (
	"context"
	"fmt"
	"time"

	"ferment/internal/buildpipeline"
	"ferment/internal/classify"
	"ferment/internal/compose"
	"ferment/internal/diag"
	"ferment/internal/ferr"
	"ferment/internal/header"
	"ferment/internal/observ"
	"ferment/internal/project"
	"ferment/internal/resolve"
	"ferment/internal/scope"
	"ferment/internal/source"
	"ferment/internal/syntax"
	"ferment/internal/trace"
	"ferment/internal/writer"
)

// Mode selects what happens after composition.
type Mode uint8

const (
	// ModeGenerate writes the fermentate and runs header and front-ends.
	ModeGenerate Mode = iota
	// ModeCheck renders in memory and compares with what is on disk.
	ModeCheck
	// ModeAnalyze stops after composition.
	ModeAnalyze
)

// Result carries every artefact of a run. It is returned together with the
// error so callers can still render diagnostics of a failed run.
type Result struct {
	Files      *source.FileSet
	Bag        *diag.Bag
	Syntax     *syntax.Forest
	Context    *resolve.Context
	Fermentate *compose.Fermentate
	// Output is the rendered fermentate tree.
	Output []writer.File
	// Stale lists out-of-date files in check mode, keyed under their
	// output directory name.
	Stale   []writer.Stale
	Timings buildpipeline.Timings
	Timer   *observ.Timer

	CacheHits, CacheMisses int
}

// Generate runs the whole pipeline and writes the fermentate to disk.
func (b *Builder) Generate(ctx context.Context) (*Result, error) {
	return Run(ctx, b.Options(), ModeGenerate)
}

// Check runs the pipeline without writing and reports stale output.
func (b *Builder) Check(ctx context.Context) (*Result, error) {
	return Run(ctx, b.Options(), ModeCheck)
}

// Analyze runs the pipeline up to composition.
func (b *Builder) Analyze(ctx context.Context) (*Result, error) {
	return Run(ctx, b.Options(), ModeAnalyze)
}

type run struct {
	opts     Options
	res      *Result
	reporter diag.Reporter
}

// Run executes the pipeline in the given mode. Every stage stops the run
// at its first error diagnostic, which is returned as a typed error.
func Run(ctx context.Context, opts Options, mode Mode) (res *Result, err error) {
	res = &Result{
		Files: source.NewFileSet(),
		Bag:   diag.NewBag(opts.MaxDiagnostics),
		Timer: observ.NewTimer(),
	}
	if err := validate(&opts); err != nil {
		return res, err
	}
	ctx, sp := trace.Start(ctx, trace.ScopeDriver, "generate "+opts.Crate)
	defer func() {
		if err != nil {
			sp.End(err.Error())
			return
		}
		sp.End("")
	}()

	r := &run{opts: opts, res: res, reporter: &diag.BagReporter{Bag: res.Bag}}
	buildpipeline.EmitQueued(opts.Progress, opts.Units())

	var trees []*scope.Tree
	var cls *classify.Classifier
	steps := []struct {
		stage buildpipeline.Stage
		fn    func(ctx context.Context) error
	}{
		{buildpipeline.StageParse, r.parse},
		{buildpipeline.StageScope, func(ctx context.Context) error {
			for _, c := range res.Syntax.Crates {
				trees = append(trees, scope.Build(ctx, c, r.reporter))
			}
			return nil
		}},
		{buildpipeline.StageResolve, func(ctx context.Context) error {
			res.Context = resolve.New(ctx, scope.NewForest(trees...), r.reporter)
			return nil
		}},
		{buildpipeline.StageClassify, func(ctx context.Context) error {
			cls = classify.New(res.Context)
			if err := res.Context.Refine(ctx, cls.IsUnknown); err != nil {
				return err
			}
			res.Context.Seal()
			return nil
		}},
		{buildpipeline.StageCompose, func(ctx context.Context) error {
			cfg := compose.Config{Crate: opts.Crate, ModName: opts.modName(), Jobs: opts.Jobs}
			f, err := compose.New(cfg, res.Context, cls, r.reporter).Compose(ctx)
			if err != nil {
				return err
			}
			res.Fermentate = f
			res.Output = writer.Layout(f)
			return nil
		}},
	}
	for _, st := range steps {
		if err := r.stage(ctx, st.stage, st.fn); err != nil {
			return res, err
		}
	}

	switch mode {
	case ModeAnalyze:
		return res, nil
	case ModeCheck:
		return res, r.check(ctx)
	}
	if err := r.stage(ctx, buildpipeline.StageWrite, r.write); err != nil {
		return res, err
	}
	if opts.Header == nil {
		r.skip(buildpipeline.StageHeader)
	} else if err := r.stage(ctx, buildpipeline.StageHeader, r.header); err != nil {
		return res, err
	}
	if len(opts.Frontends) == 0 {
		r.skip(buildpipeline.StageFrontend)
		return res, nil
	}
	return res, r.stage(ctx, buildpipeline.StageFrontend, r.frontends)
}

func validate(o *Options) error {
	if !project.IsValidIdent(o.Crate) {
		return ferr.Newf(ferr.KindIO, "crate name %q is not a valid identifier", o.Crate)
	}
	if o.CrateDir == "" {
		return ferr.Newf(ferr.KindIO, "crate %s has no source directory", o.Crate)
	}
	if !project.IsValidIdent(o.modName()) {
		return ferr.Newf(ferr.KindEmission, "module name %q is not a valid identifier", o.ModName)
	}
	if o.OutDir == "" {
		o.OutDir = o.CrateDir
	}
	seen := map[string]bool{o.Crate: true}
	for _, e := range o.External {
		if seen[e.Name] {
			return ferr.Newf(ferr.KindIO, "package %s is configured twice", e.Name)
		}
		seen[e.Name] = true
	}
	return nil
}

// stage times fn, reports progress and turns the first error diagnostic
// into the stage's error.
func (r *run) stage(ctx context.Context, st buildpipeline.Stage, fn func(context.Context) error) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}
	idx := r.res.Timer.Begin(string(st))
	sctx, sp := trace.Start(ctx, trace.ScopeStage, string(st))
	buildpipeline.Emit(r.opts.Progress, "", st, buildpipeline.StatusWorking, nil, 0)
	start := time.Now()

	err = fn(sctx)
	if err == nil {
		err = ferr.FromBag(r.res.Bag, r.res.Files)
	}

	elapsed := time.Since(start)
	r.res.Timings.Set(st, elapsed)
	status := buildpipeline.StatusDone
	note := ""
	if err != nil {
		status = buildpipeline.StatusError
		note = "failed"
	}
	r.res.Timer.End(idx, note)
	sp.End(note)
	buildpipeline.Emit(r.opts.Progress, "", st, status, err, elapsed)
	return err
}

func (r *run) skip(st buildpipeline.Stage) {
	buildpipeline.Emit(r.opts.Progress, "", st, buildpipeline.StatusSkipped, nil, 0)
}

func (r *run) write(ctx context.Context) error {
	if err := writer.Write(ctx, r.opts.OutDir, r.opts.modName(), r.res.Output); err != nil {
		diag.ReportError(r.reporter, diag.EmtWriteFailed, source.Generated, err.Error()).
			WithHint("check that the output directory is writable").
			Emit()
		return err
	}
	return nil
}

func (r *run) header(ctx context.Context) error {
	runner := r.opts.Runner
	if runner == nil {
		runner = header.ExecRunner
	}
	if err := header.Generate(ctx, *r.opts.Header, runner); err != nil {
		diag.ReportError(r.reporter, diag.EmtHeaderFailed, source.Generated, err.Error()).Emit()
		return err
	}
	return nil
}

func (r *run) frontends(ctx context.Context) error {
	for _, fe := range r.opts.Frontends {
		if err := ctx.Err(); err != nil {
			return err
		}
		files, err := fe.Render(r.res.Fermentate)
		if err == nil {
			err = writer.Write(ctx, r.opts.OutDir, fe.Lang(), files)
		}
		if err != nil {
			diag.ReportError(r.reporter, diag.EmtFrontendFailed, source.Generated,
				fmt.Sprintf("%s front-end: %v", fe.Lang(), err)).Emit()
			return ferr.Wrapf(ferr.KindEmission, err, "%s front-end", fe.Lang())
		}
	}
	return nil
}

type outputTree struct {
	name  string
	files []writer.File
}

// check compares the fermentate and every front-end tree with the disk.
// Each stale file is an error diagnostic carrying its diff.
func (r *run) check(ctx context.Context) error {
	return r.stage(ctx, buildpipeline.StageWrite, func(ctx context.Context) error {
		trees := []outputTree{{r.opts.modName(), r.res.Output}}
		for _, fe := range r.opts.Frontends {
			files, err := fe.Render(r.res.Fermentate)
			if err != nil {
				diag.ReportError(r.reporter, diag.EmtFrontendFailed, source.Generated,
					fmt.Sprintf("%s front-end: %v", fe.Lang(), err)).Emit()
				return nil
			}
			trees = append(trees, outputTree{fe.Lang(), files})
		}
		for _, t := range trees {
			stale, err := writer.Check(ctx, r.opts.OutDir, t.name, t.files)
			if err != nil {
				return err
			}
			for _, st := range stale {
				st.Path = t.name + "/" + st.Path
				r.res.Stale = append(r.res.Stale, st)
				diag.ReportError(r.reporter, diag.EmtStaleOutput, source.Generated, st.Path+" is out of date").
					WithNote(source.Generated, st.Diff).
					WithHint("run `ferment generate` to refresh the output").
					Emit()
			}
		}
		return nil
	})
}
