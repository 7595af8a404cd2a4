package util

import "reflect"

// CycleDetectionContext maps the address of an original map, slice or
// pointer to its copy, so cyclic values are copied once and the cycle is
// reproduced instead of recursing forever.
type CycleDetectionContext map[uintptr]interface{}

// CloneTree returns a structurally independent copy of a state tree. Nested
// maps, slices and pointers are copied as well. A nil tree clones to an
// empty, non-nil tree.
func CloneTree(tree map[string]interface{}) map[string]interface{} {
	if tree == nil {
		return make(map[string]interface{})
	}
	ctx := make(CycleDetectionContext)
	return copyTree(tree, ctx)
}

// DeepCopy creates a deep copy of an arbitrary state value. It is safe for
// cyclic data structures.
func DeepCopy(src interface{}) interface{} {
	if src == nil {
		return nil
	}
	ctx := make(CycleDetectionContext)
	return deepCopyRecursive(src, ctx)
}

func copyTree(tree map[string]interface{}, ctx CycleDetectionContext) map[string]interface{} {
	cpy := make(map[string]interface{}, len(tree))
	ctx[reflect.ValueOf(tree).Pointer()] = cpy
	for key, value := range tree {
		cpy[key] = deepCopyRecursive(value, ctx)
	}
	return cpy
}

func deepCopyRecursive(src interface{}, ctx CycleDetectionContext) interface{} {
	if src == nil {
		return nil
	}

	original := reflect.ValueOf(src)
	kind := original.Kind()

	// Only maps, slices, and pointers can close a cycle.
	if (kind == reflect.Map || kind == reflect.Slice || kind == reflect.Ptr) && !original.IsNil() {
		if cpy, exists := ctx[original.Pointer()]; exists {
			return cpy
		}
	}

	switch v := src.(type) {
	case map[string]interface{}:
		if v == nil {
			return v
		}
		return copyTree(v, ctx)

	case []interface{}:
		if v == nil {
			return v
		}
		cpy := make([]interface{}, len(v), cap(v))
		ctx[reflect.ValueOf(v).Pointer()] = cpy
		for i, value := range v {
			cpy[i] = deepCopyRecursive(value, ctx)
		}
		return cpy

	case []string:
		if v == nil {
			return v
		}
		return append([]string(nil), v...)

	case map[string]string:
		if v == nil {
			return v
		}
		cpy := make(map[string]string, len(v))
		for key, value := range v {
			cpy[key] = value
		}
		return cpy

	case string, int, int64, int32, int16, int8, uint, uint64, uint32, uint16, uint8, float64, float32, bool, complex64, complex128:
		return v

	default:
		return deepCopyReflection(original, ctx)
	}
}

// deepCopyReflection handles every type the fast path does not know,
// including structs, arrays and typed maps or slices.
func deepCopyReflection(original reflect.Value, ctx CycleDetectionContext) interface{} {
	if !original.IsValid() {
		return nil
	}

	cpy := reflect.New(original.Type()).Elem()

	switch original.Kind() {
	case reflect.Ptr:
		if original.IsNil() {
			return original.Interface()
		}
		newPtr := reflect.New(original.Type().Elem())
		ctx[original.Pointer()] = newPtr.Interface()
		copiedElem := deepCopyRecursive(original.Elem().Interface(), ctx)
		if copiedElem != nil {
			newPtr.Elem().Set(reflect.ValueOf(copiedElem))
		}
		return newPtr.Interface()

	case reflect.Interface:
		if original.IsNil() {
			return nil
		}
		return deepCopyRecursive(original.Elem().Interface(), ctx)

	case reflect.Slice:
		if original.IsNil() {
			return original.Interface()
		}
		cpy.Set(reflect.MakeSlice(original.Type(), original.Len(), original.Cap()))
		ctx[original.Pointer()] = cpy.Interface()
		for i := 0; i < original.Len(); i++ {
			setCopied(cpy.Index(i), original.Index(i), ctx)
		}

	case reflect.Map:
		if original.IsNil() {
			return original.Interface()
		}
		cpy.Set(reflect.MakeMap(original.Type()))
		ctx[original.Pointer()] = cpy.Interface()
		iter := original.MapRange()
		for iter.Next() {
			key := reflect.New(original.Type().Key()).Elem()
			setCopied(key, iter.Key(), ctx)
			value := reflect.New(original.Type().Elem()).Elem()
			setCopied(value, iter.Value(), ctx)
			cpy.SetMapIndex(key, value)
		}

	case reflect.Struct:
		cpy.Set(original)
		for i := 0; i < original.NumField(); i++ {
			if cpy.Field(i).CanSet() {
				setCopied(cpy.Field(i), original.Field(i), ctx)
			}
		}

	case reflect.Array:
		for i := 0; i < original.Len(); i++ {
			setCopied(cpy.Index(i), original.Index(i), ctx)
		}

	default:
		cpy.Set(original)
	}

	return cpy.Interface()
}

// setCopied deep-copies src into dst, leaving dst at its zero value when the
// copy is nil.
func setCopied(dst, src reflect.Value, ctx CycleDetectionContext) {
	if !src.CanInterface() {
		return
	}
	copied := deepCopyRecursive(src.Interface(), ctx)
	if copied == nil {
		return
	}
	dst.Set(reflect.ValueOf(copied))
}
