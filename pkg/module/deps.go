package module

import (
	"reflect"
	"sort"
)

var futureType = reflect.TypeOf(Future{})

// ExtractDependencies returns the sorted, de-duplicated ids of every action
// the parameters depend on. Futures are found anywhere inside the values:
// in slices, arrays, maps, pointers and exported struct fields. Explicit
// ordering hints from after are added as-is.
func ExtractDependencies(params []Param, after []Dependency) []string {
	seen := make(map[string]struct{})
	w := &walker{seen: seen, ptrs: make(map[uintptr]struct{})}
	for _, p := range params {
		w.walk(reflect.ValueOf(p.Value))
	}
	for _, d := range after {
		if d == nil {
			continue
		}
		if id := d.dependencyID(); id != "" {
			seen[id] = struct{}{}
		}
	}

	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// unboundFutures returns the Futures inside params that name no producing
// action, such as the zero Future a failed primitive returns.
func unboundFutures(params []Param) []Future {
	w := &walker{seen: make(map[string]struct{}), ptrs: make(map[uintptr]struct{})}
	for _, p := range params {
		w.walk(reflect.ValueOf(p.Value))
	}
	return w.unbound
}

type walker struct {
	seen    map[string]struct{}
	ptrs    map[uintptr]struct{}
	unbound []Future
}

func (w *walker) walk(v reflect.Value) {
	if !v.IsValid() {
		return
	}
	if v.Type() == futureType {
		id := v.FieldByName("ID").String()
		actionID := v.FieldByName("ActionID").String()
		if id == "" || actionID == "" {
			w.unbound = append(w.unbound, Future{ID: id, ActionID: actionID})
			return
		}
		w.seen[actionID] = struct{}{}
		return
	}

	switch v.Kind() {
	case reflect.Interface:
		if !v.IsNil() {
			w.walk(v.Elem())
		}
	case reflect.Pointer:
		if v.IsNil() {
			return
		}
		// Guard self-referential values.
		if _, ok := w.ptrs[v.Pointer()]; ok {
			return
		}
		w.ptrs[v.Pointer()] = struct{}{}
		w.walk(v.Elem())
	case reflect.Slice, reflect.Array:
		for i := 0; i < v.Len(); i++ {
			w.walk(v.Index(i))
		}
	case reflect.Map:
		iter := v.MapRange()
		for iter.Next() {
			w.walk(iter.Value())
		}
	case reflect.Struct:
		t := v.Type()
		for i := 0; i < v.NumField(); i++ {
			if t.Field(i).IsExported() {
				w.walk(v.Field(i))
			}
		}
	}
}
