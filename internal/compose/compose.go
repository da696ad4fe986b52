package compose

import (
	"context"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"

	"ferment/internal/classify"
	"ferment/internal/diag"
	"ferment/internal/resolve"
	"ferment/internal/scope"
	"ferment/internal/source"
	"ferment/internal/syntax"
	"ferment/internal/trace"
	"ferment/internal/typeref"
)

// maxWaves bounds generic instantiation; polymorphic recursion never closes.
const maxWaves = 64

// Config names the fermentate.
type Config struct {
	// Crate is the primary crate; its paths are emitted as `crate::`.
	Crate string
	// ModName is the module the fermentate is written to.
	ModName string
	// Jobs limits parallel composition; zero means GOMAXPROCS.
	Jobs int
}

// Composer assembles ComposerInfos from a sealed context.
type Composer struct {
	cfg      Config
	ctx      *resolve.Context
	cls      *classify.Classifier
	reporter diag.Reporter
}

// New returns a composer. The context must be sealed.
func New(cfg Config, rctx *resolve.Context, cls *classify.Classifier, reporter diag.Reporter) *Composer {
	if reporter == nil {
		reporter = diag.NopReporter{}
	}
	if cfg.ModName == "" {
		cfg.ModName = "fermented"
	}
	if cfg.Jobs <= 0 {
		cfg.Jobs = runtime.GOMAXPROCS(0)
	}
	return &Composer{cfg: cfg, ctx: rctx, cls: cls, reporter: reporter}
}

type request struct {
	ty   typeref.TypeRef
	span source.Span
}

// task is one unit of parallel composition. Diagnostics are buffered so
// the join can replay them in a fixed order.
type task struct {
	c        *Composer
	bag      *diag.Bag
	reporter diag.Reporter
	requests map[string]request
	deps     map[string]bool
	site     source.Span

	infos []*Info
	funcs []FunctionBinding
}

func (c *Composer) newTask() *task {
	bag := diag.NewBag(0)
	return &task{c: c, bag: bag, reporter: &diag.BagReporter{Bag: bag}, requests: make(map[string]request)}
}

func (t *task) dep(key string) {
	if t.deps != nil {
		t.deps[key] = true
	}
}

func (t *task) begin() { t.deps = make(map[string]bool) }

func (t *task) finish(info *Info) {
	delete(t.deps, info.Key)
	for k := range t.deps {
		info.Deps = append(info.Deps, k)
	}
	sort.Strings(info.Deps)
	t.deps = nil
	t.infos = append(t.infos, info)
}

func (t *task) classify(ref typeref.TypeRef, sc scope.Chain) classify.Model {
	return t.c.cls.Classify(ref, sc)
}

// Compose builds the fermentate. Diagnostics go to the reporter; the error
// is reserved for cancellation.
func (c *Composer) Compose(ctx context.Context) (*Fermentate, error) {
	ctx, sp := trace.Start(ctx, trace.ScopeStage, "compose")
	defer sp.End("")

	if !c.ctx.Sealed() {
		panic("compose: context is not sealed")
	}

	units := c.units()
	tasks, err := c.run(ctx, len(units), func(t *task, i int) { units[i](t) })
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var generics []*task
	pending := collectRequests(tasks, seen)
	for wave := 0; len(pending) > 0; wave++ {
		if wave == maxWaves {
			for _, r := range pending {
				diag.ReportError(c.reporter, diag.ClsUnsupportedType, r.span,
					"instantiating `"+r.ty.String()+"` does not terminate").Emit()
			}
			break
		}
		batch := pending
		done, err := c.run(ctx, len(batch), func(t *task, i int) { t.instantiate(batch[i]) })
		if err != nil {
			return nil, err
		}
		generics = append(generics, done...)
		pending = collectRequests(done, seen)
	}

	f := &Fermentate{Crate: c.cfg.Crate, ModName: c.cfg.ModName, Support: supportSource}
	var links []linkable
	for _, t := range append(tasks, generics...) {
		c.replay(t)
		for _, info := range t.infos {
			switch {
			case info.Strategy == StrategyCustom:
				f.Items = append(f.Items, info)
				continue
			case info.Generic():
				f.Generics = append(f.Generics, info)
			default:
				f.Items = append(f.Items, info)
			}
			links = append(links, linkable{key: info.Key, base: typeref.Mangle(info.Type), module: info.Module, span: c.spanOf(info)})
		}
		for _, fb := range t.funcs {
			links = append(links, linkable{key: fnKey(fb.Path), base: typeref.Mangle(typeref.Path(fb.Path...)), fn: true})
			f.Functions = append(f.Functions, fb)
		}
	}

	l := c.link(links, c.reporter)
	for _, info := range f.Items {
		l.info(info)
	}
	for _, info := range f.Generics {
		l.info(info)
	}
	for i := range f.Functions {
		l.binding(&f.Functions[i].Binding)
	}

	sort.SliceStable(f.Items, func(i, j int) bool {
		a, b := f.Items[i], f.Items[j]
		if !a.Module.Equal(b.Module) {
			return a.Module.Less(b.Module)
		}
		return a.Key < b.Key
	})
	sort.SliceStable(f.Generics, func(i, j int) bool { return f.Generics[i].Name < f.Generics[j].Name })
	sort.SliceStable(f.Functions, func(i, j int) bool { return f.Functions[i].Binding.Name < f.Functions[j].Binding.Name })
	return f, nil
}

// run fans n jobs out over an errgroup and returns their tasks in job order.
func (c *Composer) run(ctx context.Context, n int, job func(t *task, i int)) ([]*task, error) {
	tasks := make([]*task, n)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, min(c.cfg.Jobs, n)))
	for i := range n {
		g.Go(func(i int) func() error {
			return func() error {
				select {
				case <-gctx.Done():
					return gctx.Err()
				default:
				}
				t := c.newTask()
				job(t, i)
				tasks[i] = t
				return nil
			}
		}(i))
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return tasks, nil
}

func (c *Composer) replay(t *task) {
	for _, d := range t.bag.Items() {
		c.reporter.Report(d)
	}
}

// collectRequests returns the unseen instantiation requests of tasks in
// key order; the first requesting site wins.
func collectRequests(tasks []*task, seen map[string]bool) []request {
	fresh := make(map[string]request)
	for _, t := range tasks {
		for key, r := range t.requests {
			if seen[key] {
				continue
			}
			if _, ok := fresh[key]; !ok {
				fresh[key] = r
			}
		}
	}
	keys := make([]string, 0, len(fresh))
	for k := range fresh {
		keys = append(keys, k)
		seen[k] = true
	}
	sort.Strings(keys)
	out := make([]request, len(keys))
	for i, k := range keys {
		out[i] = fresh[k]
	}
	return out
}

// units lists the item-level jobs: every reachable declaration in path
// order, then every registered conversion.
func (c *Composer) units() []func(*task) {
	var entries []*resolve.Entry
	for _, e := range c.ctx.Entries() {
		if !e.Reachable {
			continue
		}
		switch e.Kind() {
		case syntax.ItemStruct, syntax.ItemUnion, syntax.ItemEnum, syntax.ItemTrait, syntax.ItemFunction:
			entries = append(entries, e)
		}
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Path.Less(entries[j].Path) })

	var units []func(*task)
	seen := make(map[*resolve.Entry]bool)
	for _, e := range entries {
		if seen[e] {
			continue
		}
		seen[e] = true
		units = append(units, func(t *task) { t.entry(e) })
	}
	for _, reg := range c.ctx.Registry().All() {
		units = append(units, func(t *task) { t.custom(reg) })
	}
	return units
}

func (c *Composer) spanOf(info *Info) source.Span {
	if e := c.ctx.Item(info.Type.PathString()); e != nil {
		return e.Item().Span
	}
	return source.Span{}
}

// opaqueEntry reports whether values of e cross as handles: opaque items,
// unions, and structs the fermentate cannot rebuild field by field.
func (c *Composer) opaqueEntry(e *resolve.Entry) bool {
	if e == nil {
		return false
	}
	if e.Ann().Opaque || e.Kind() == syntax.ItemUnion {
		return true
	}
	if e.Kind() == syntax.ItemStruct {
		return len(privateFields(e.Item())) > 0
	}
	return false
}

func privateFields(it *syntax.Item) []string {
	var out []string
	for i, f := range it.Fields {
		if !f.Public {
			out = append(out, identOrPositional(f.Name, i))
		}
	}
	return out
}

// entry composes one reachable declaration.
func (t *task) entry(e *resolve.Entry) {
	it := e.Item()
	t.site = it.Span
	switch e.Kind() {
	case syntax.ItemFunction:
		t.function(e)
		return
	case syntax.ItemTrait:
		t.trait(e)
		return
	}
	if len(e.Generics) > 0 {
		// emitted per instantiation
		return
	}
	if t.c.opaqueEntry(e) {
		if !e.Ann().Opaque {
			why := "union"
			if e.Kind() == syntax.ItemStruct {
				why = "struct with private fields"
			}
			diag.ReportWarning(t.reporter, diag.ClsUnsupportedType, it.Span,
				"`"+e.Path.String()+"` is a "+why+" and crosses the boundary as an opaque handle").
				InScope(e.Path.String()).Emit()
		}
		t.opaque(e)
		return
	}
	info := &Info{
		Key:    e.Path.String(),
		Type:   typeref.Path(e.Path...),
		Module: e.Path.Parent(),
	}
	t.begin()
	var ok bool
	if e.Kind() == syntax.ItemEnum {
		ok = t.enumMirror(e, info, nil)
	} else {
		ok = t.structMirror(e, info, nil)
	}
	if !ok {
		t.deps = nil
		return
	}
	t.methods(e, info)
	t.finish(info)
}

// report emits a classification problem at the current site.
func (t *task) report(err error, sp source.Span, owner scope.Chain, soft bool) {
	if sp == (source.Span{}) {
		sp = t.site
	}
	sev, msg := diag.SevError, err.Error()
	if soft {
		sev, msg = diag.SevWarning, msg+"; binding skipped"
	}
	diag.NewReportBuilder(t.reporter, sev, diag.ClsUnsupportedType, sp, msg).
		InScope(owner.String()).
		WithHint("mark the type opaque or register a mirror for it").
		Emit()
}
