package classify

// dictionary is the closed catalogue of built-in strategies, keyed by the
// last path segment.
var dictionary = map[string]Dict{
	"String":     DictString,
	"str":        DictStr,
	"Vec":        DictVec,
	"VecDeque":   DictVec,
	"BTreeMap":   DictMap,
	"HashMap":    DictMap,
	"IndexMap":   DictMap,
	"BTreeSet":   DictSet,
	"HashSet":    DictSet,
	"IndexSet":   DictSet,
	"Option":     DictOption,
	"Result":     DictResult,
	"Duration":   DictDuration,
	"Box":        DictBox,
	"Rc":         DictShared,
	"Arc":        DictShared,
	"Cell":       DictCell,
	"RefCell":    DictCell,
	"Mutex":      DictCell,
	"RwLock":     DictCell,
	"OnceCell":   DictCell,
	"OnceLock":   DictCell,
	"UnsafeCell": DictCell,
}

// dictCrates are the path roots dictionary names may be qualified with.
var dictCrates = map[string]bool{
	"std":         true,
	"indexmap":    true,
	"once_cell":   true,
	"parking_lot": true,
}

func lookupDict(names []string) (Dict, bool) {
	if len(names) == 0 {
		return DictNone, false
	}
	if len(names) > 1 && !dictCrates[names[0]] {
		return DictNone, false
	}
	d, ok := dictionary[names[len(names)-1]]
	return d, ok
}
