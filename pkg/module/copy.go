package module

import (
	"math/big"
	"reflect"
)

var bigIntType = reflect.TypeOf((*big.Int)(nil))

// cloneParams deep-copies parameter values. A registered action shares no
// slice, map or pointer with the caller.
func cloneParams(params []Param) []Param {
	if params == nil {
		return nil
	}
	c := copier{ptrs: make(map[uintptr]reflect.Value)}
	out := make([]Param, len(params))
	for i, p := range params {
		out[i] = Param{Name: p.Name, Value: c.value(p.Value)}
	}
	return out
}

type copier struct {
	ptrs map[uintptr]reflect.Value
}

func (c copier) value(v any) any {
	if v == nil {
		return nil
	}
	return c.copy(reflect.ValueOf(v)).Interface()
}

// copy returns a copy of v sharing no slice, map or pointer with it.
// Unexported struct fields are copied shallowly.
func (c copier) copy(v reflect.Value) reflect.Value {
	switch v.Kind() {
	case reflect.Interface:
		if v.IsNil() {
			return v
		}
		out := reflect.New(v.Type()).Elem()
		out.Set(c.copy(v.Elem()))
		return out
	case reflect.Pointer:
		if v.IsNil() {
			return v
		}
		if v.Type() == bigIntType {
			return reflect.ValueOf(new(big.Int).Set(v.Interface().(*big.Int)))
		}
		if p, ok := c.ptrs[v.Pointer()]; ok {
			return p
		}
		out := reflect.New(v.Type().Elem())
		c.ptrs[v.Pointer()] = out
		out.Elem().Set(c.copy(v.Elem()))
		return out
	case reflect.Slice:
		if v.IsNil() {
			return v
		}
		out := reflect.MakeSlice(v.Type(), v.Len(), v.Len())
		for i := 0; i < v.Len(); i++ {
			out.Index(i).Set(c.copy(v.Index(i)))
		}
		return out
	case reflect.Array:
		out := reflect.New(v.Type()).Elem()
		for i := 0; i < v.Len(); i++ {
			out.Index(i).Set(c.copy(v.Index(i)))
		}
		return out
	case reflect.Map:
		if v.IsNil() {
			return v
		}
		out := reflect.MakeMapWithSize(v.Type(), v.Len())
		iter := v.MapRange()
		for iter.Next() {
			out.SetMapIndex(iter.Key(), c.copy(iter.Value()))
		}
		return out
	case reflect.Struct:
		out := reflect.New(v.Type()).Elem()
		out.Set(v)
		t := v.Type()
		for i := 0; i < v.NumField(); i++ {
			if t.Field(i).IsExported() {
				out.Field(i).Set(c.copy(v.Field(i)))
			}
		}
		return out
	default:
		return v
	}
}
