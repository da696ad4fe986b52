package classify

import (
	"sync"

	"ferment/internal/resolve"
	"ferment/internal/scope"
	"ferment/internal/syntax"
	"ferment/internal/typeref"
)

// Classifier maps type references to models. Classification reads the
// context only; results are cached once the context is sealed.
type Classifier struct {
	ctx *resolve.Context

	mu    sync.RWMutex
	cache map[string]Model
}

// New returns a classifier over ctx.
func New(ctx *resolve.Context) *Classifier {
	return &Classifier{ctx: ctx, cache: make(map[string]Model)}
}

// IsUnknown is the refinement predicate.
func (c *Classifier) IsUnknown(t typeref.TypeRef, sc scope.Chain) bool {
	return !c.Classify(t, sc).Resolved()
}

// Classify returns the model of t as seen from scope sc.
func (c *Classifier) Classify(t typeref.TypeRef, sc scope.Chain) Model {
	if !c.ctx.Sealed() {
		return c.classify(t, sc)
	}
	key := sc.String() + "|" + t.String()
	c.mu.RLock()
	m, ok := c.cache[key]
	c.mu.RUnlock()
	if ok {
		return m
	}
	m = c.classify(t, sc)
	c.mu.Lock()
	c.cache[key] = m
	c.mu.Unlock()
	return m
}

func (c *Classifier) classify(t typeref.TypeRef, sc scope.Chain) Model {
	inner, wrappers := t.Peel()
	m := c.peeled(inner, sc)
	m.Wrappers = wrappers
	return m
}

var markerTraits = map[string]bool{
	"Send": true, "Sync": true, "Unpin": true, "Sized": true, "Copy": true, "Clone": true,
	"Debug": true, "Eq": true, "PartialEq": true, "Hash": true, "Default": true,
}

func (c *Classifier) peeled(t typeref.TypeRef, sc scope.Chain) Model {
	m := Model{Type: t}
	switch t.Kind {
	case typeref.KindUnit:
		m.Kind, m.Dict = KindDictionary, DictUnit
		return m
	case typeref.KindArray:
		return c.generic(m, Model{Kind: KindDictionary, Dict: DictArray, Type: t}, []typeref.TypeRef{*t.Elem}, sc)
	case typeref.KindSlice:
		return c.generic(m, Model{Kind: KindDictionary, Dict: DictSlice, Type: t}, []typeref.TypeRef{*t.Elem}, sc)
	case typeref.KindTuple:
		return c.generic(m, Model{Kind: KindDictionary, Dict: DictTuple, Type: t}, t.Elems, sc)
	case typeref.KindFn:
		m.Kind = KindFnPointer
		m.Inputs, m.Output = c.shape(t.Elems, t.Ret, sc)
		return m
	case typeref.KindTraitObject, typeref.KindImplTrait:
		return c.traitObject(m, t, sc)
	case typeref.KindNever:
		m.Unsupported = "the never type has no C representation"
		return m
	case typeref.KindPath:
	default:
		m.Unsupported = "`" + t.String() + "` has no C representation"
		return m
	}

	names := t.Names()
	key := t.PathString()

	if reg := c.ctx.Registry().Lookup(key); reg != nil {
		m.Kind, m.Custom = KindCustom, reg
		return m
	}
	if len(names) == 1 && resolve.IsPrimitive(names[0]) {
		m.Kind, m.Prim = KindPrimitive, names[0]
		return m
	}
	if prim, ok := resolve.RawCType(names); ok {
		m.Kind, m.Prim = KindPrimitive, prim
		return m
	}
	if cb, ok := c.callback(m, t, sc); ok {
		return cb
	}
	if d, ok := lookupDict(names); ok {
		head := Model{Kind: KindDictionary, Dict: d, Type: t}
		args := t.GenericArgs()
		if len(args) == 0 {
			if d == DictString || d == DictStr || d == DictDuration {
				return head
			}
			m.Unsupported = "`" + key + "` needs type arguments"
			return m
		}
		return c.generic(m, head, args, sc)
	}
	if e := c.ctx.Item(key); e != nil {
		head := Model{Type: t, Entry: e}
		switch e.Kind() {
		case syntax.ItemTypeAlias:
			// expanded by refinement
			return m
		case syntax.ItemTrait:
			// a bare trait path in type position is a trait object
			head.Kind = KindTrait
			return head
		}
		head.Kind = KindComplex
		if e.Ann().Opaque {
			head.Kind = KindOpaque
		}
		if args := t.GenericArgs(); len(args) > 0 && head.Kind == KindComplex {
			return c.generic(m, head, args, sc)
		}
		return head
	}
	if len(names) == 1 {
		if bounds, ok := c.ctx.Bounds(sc, names[0]); ok {
			m.Kind, m.Bounds = KindTraitBounded, bounds
			return m
		}
		if names[0] == "Self" {
			m.Unsupported = "`Self` cannot cross the boundary of a trait object"
		}
	}
	return m
}

func (c *Classifier) generic(m, head Model, args []typeref.TypeRef, sc scope.Chain) Model {
	m.Kind = KindGeneric
	h := head
	m.Head = &h
	for _, a := range args {
		m.Args = append(m.Args, c.classify(a, sc))
	}
	return m
}

func (c *Classifier) shape(inputs []typeref.TypeRef, output *typeref.TypeRef, sc scope.Chain) ([]Model, *Model) {
	var ins []Model
	for _, in := range inputs {
		ins = append(ins, c.classify(in, sc))
	}
	if output == nil {
		return ins, nil
	}
	out := c.classify(*output, sc)
	return ins, &out
}

// callback recognises boxed, shared and borrowed closures:
// Box<dyn Fn(A) -> B>, Arc<dyn Fn(..) + Send>, and `impl Fn(..)`.
func (c *Classifier) callback(m Model, t typeref.TypeRef, sc scope.Chain) (Model, bool) {
	names := t.Names()
	if d, ok := lookupDict(names); !ok || (d != DictBox && d != DictShared) {
		return m, false
	}
	args := t.GenericArgs()
	if len(args) != 1 {
		return m, false
	}
	obj := args[0]
	if obj.Kind != typeref.KindTraitObject && obj.Kind != typeref.KindImplTrait {
		return m, false
	}
	if fn, ok := fnBound(obj.Bounds); ok {
		m.Kind = KindCallback
		seg := fn.Last()
		m.Inputs, m.Output = c.shape(seg.Inputs, seg.Output, sc)
		return m, true
	}
	return m, false
}

func fnBound(bounds []typeref.TypeRef) (typeref.TypeRef, bool) {
	for _, b := range bounds {
		seg := b.Last()
		if seg == nil || !seg.Paren {
			continue
		}
		switch seg.Name {
		case "Fn", "FnMut", "FnOnce":
			return b, true
		}
	}
	return typeref.TypeRef{}, false
}

func (c *Classifier) traitObject(m Model, t typeref.TypeRef, sc scope.Chain) Model {
	if fn, ok := fnBound(t.Bounds); ok {
		m.Kind = KindCallback
		seg := fn.Last()
		m.Inputs, m.Output = c.shape(seg.Inputs, seg.Output, sc)
		return m
	}
	for _, b := range t.Bounds {
		if markerTraits[b.PathString()] {
			continue
		}
		if e := c.ctx.Trait(b.PathString()); e != nil {
			m.Kind, m.Entry = KindTrait, e
			return m
		}
		return m
	}
	m.Unsupported = "trait object `" + t.String() + "` has no callable trait"
	return m
}
