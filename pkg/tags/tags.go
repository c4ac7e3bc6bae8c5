// Package tags reads and writes provider tag collections regardless of their shape.
// Supported shapes are slices of structs (or struct pointers) with Key/Value fields of
// type string or *string, and map[string]string / map[string]*string.
package tags

import (
	"reflect"

	"github.com/aws/aws-sdk-go-v2/aws"
)

// Lookup returns the value for key, or "" when absent. Exact match.
func Lookup(coll any, key string) string {
	if coll == nil {
		return ""
	}

	v := reflect.ValueOf(coll)
	switch v.Kind() {
	case reflect.Slice:
		for i := 0; i < v.Len(); i++ {
			k, val := extractTagKeyValue(v.Index(i))
			if k == key {
				return val
			}
		}
	case reflect.Map:
		if v.Type().Key().Kind() != reflect.String {
			return ""
		}
		mapValue := v.MapIndex(reflect.ValueOf(key).Convert(v.Type().Key()))
		if mapValue.IsValid() {
			return extractStringValue(mapValue)
		}
	}
	return ""
}

// ToMap flattens any supported collection into a plain map
func ToMap(coll any) map[string]string {
	result := map[string]string{}
	if coll == nil {
		return result
	}

	v := reflect.ValueOf(coll)
	switch v.Kind() {
	case reflect.Slice:
		for i := 0; i < v.Len(); i++ {
			k, val := extractTagKeyValue(v.Index(i))
			if k != "" {
				result[k] = val
			}
		}
	case reflect.Map:
		iter := v.MapRange()
		for iter.Next() {
			result[iter.Key().String()] = extractStringValue(iter.Value())
		}
	}
	return result
}

// Set returns a copy of coll with key set to value. The input is never mutated.
// In slices the first occurrence of key is replaced and later ones are dropped.
// Unsupported shapes are returned unchanged.
func Set[T any](coll T, key, value string) T {
	typ := reflect.TypeOf(&coll).Elem()
	v := reflect.ValueOf(&coll).Elem()

	switch typ.Kind() {
	case reflect.Slice:
		out, ok := setInSlice(v, typ, key, value)
		if !ok {
			return coll
		}
		return out.Interface().(T)
	case reflect.Map:
		if typ.Key().Kind() != reflect.String {
			return coll
		}
		out := reflect.MakeMapWithSize(typ, v.Len()+1)
		iter := v.MapRange()
		for iter.Next() {
			out.SetMapIndex(iter.Key(), iter.Value())
		}
		elem, ok := stringValueOf(typ.Elem(), value)
		if !ok {
			return coll
		}
		out.SetMapIndex(reflect.ValueOf(key).Convert(typ.Key()), elem)
		return out.Interface().(T)
	}
	return coll
}

func setInSlice(v reflect.Value, typ reflect.Type, key, value string) (reflect.Value, bool) {
	elemType := typ.Elem()
	structType := elemType
	if structType.Kind() == reflect.Ptr {
		structType = structType.Elem()
	}
	if structType.Kind() != reflect.Struct {
		return reflect.Value{}, false
	}

	out := reflect.MakeSlice(typ, 0, v.Len()+1)
	found := false
	for i := 0; i < v.Len(); i++ {
		item := v.Index(i)
		if k, _ := extractTagKeyValue(item); k == key {
			if found {
				continue
			}
			replaced, ok := newTag(elemType, structType, item, key, value)
			if !ok {
				return reflect.Value{}, false
			}
			out = reflect.Append(out, replaced)
			found = true
			continue
		}
		out = reflect.Append(out, item)
	}

	if !found {
		added, ok := newTag(elemType, structType, reflect.Value{}, key, value)
		if !ok {
			return reflect.Value{}, false
		}
		out = reflect.Append(out, added)
	}
	return out, true
}

// newTag builds a fresh tag element, copying other fields from base when given
func newTag(elemType, structType reflect.Type, base reflect.Value, key, value string) (reflect.Value, bool) {
	ptr := reflect.New(structType)
	s := ptr.Elem()
	if base.IsValid() {
		if base.Kind() == reflect.Ptr {
			base = base.Elem()
		}
		if base.IsValid() {
			s.Set(base)
		}
	}

	keyField := s.FieldByName("Key")
	valueField := s.FieldByName("Value")
	if !keyField.IsValid() || !valueField.IsValid() {
		return reflect.Value{}, false
	}

	k, ok := stringValueOf(keyField.Type(), key)
	if !ok {
		return reflect.Value{}, false
	}
	val, ok := stringValueOf(valueField.Type(), value)
	if !ok {
		return reflect.Value{}, false
	}
	keyField.Set(k)
	valueField.Set(val)

	if elemType.Kind() == reflect.Ptr {
		return ptr, true
	}
	return s, true
}

// stringValueOf builds a string or *string value of type t
func stringValueOf(t reflect.Type, s string) (reflect.Value, bool) {
	switch {
	case t.Kind() == reflect.String:
		return reflect.ValueOf(s).Convert(t), true
	case t.Kind() == reflect.Ptr && t.Elem().Kind() == reflect.String:
		p := reflect.New(t.Elem())
		p.Elem().Set(reflect.ValueOf(s).Convert(t.Elem()))
		return p, true
	}
	return reflect.Value{}, false
}

// extractTagKeyValue extracts Key and Value fields from any tag struct
func extractTagKeyValue(tag reflect.Value) (string, string) {
	if tag.Kind() == reflect.Interface {
		tag = tag.Elem()
	}
	if tag.Kind() == reflect.Ptr {
		if tag.IsNil() {
			return "", ""
		}
		tag = tag.Elem()
	}
	if tag.Kind() != reflect.Struct {
		return "", ""
	}

	var key, value string
	if keyField := tag.FieldByName("Key"); keyField.IsValid() {
		key = extractStringValue(keyField)
	}
	if valueField := tag.FieldByName("Value"); valueField.IsValid() {
		value = extractStringValue(valueField)
	}
	return key, value
}

// extractStringValue handles *string and string types
func extractStringValue(v reflect.Value) string {
	if v.Kind() == reflect.Interface {
		v = v.Elem()
	}
	if !v.IsValid() || !v.CanInterface() {
		return ""
	}
	switch val := v.Interface().(type) {
	case string:
		return val
	case *string:
		return aws.ToString(val)
	}
	if v.Kind() == reflect.String {
		return v.String()
	}
	return ""
}
