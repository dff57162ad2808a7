package cfg

import (
	"fmt"
	"reflect"
	"time"
)

// ToMap 把配置结构体转换为以 cfg 名称为键的 map，可以直接交给 yaml、json 编码
// duration 输出为字符串，nil 指针和 cfg:"-" 的字段被省略
func ToMap(object any) map[string]any {
	m, _ := toPlain(reflect.ValueOf(object)).(map[string]any)
	return m
}

func toPlain(rv reflect.Value) any {
	if !rv.IsValid() {
		return nil
	}
	if rv.Type() == durationType {
		return time.Duration(rv.Int()).String()
	}

	switch rv.Kind() {
	case reflect.Ptr, reflect.Interface:
		if rv.IsNil() {
			return nil
		}
		return toPlain(rv.Elem())
	case reflect.Struct:
		if t, ok := rv.Interface().(time.Time); ok {
			return t.Format(time.RFC3339)
		}
		m := map[string]any{}
		rt := rv.Type()
		for i := 0; i < rt.NumField(); i++ {
			field := rt.Field(i)
			if !field.IsExported() {
				continue
			}
			name := fieldName(field)
			if name == "-" {
				continue
			}
			if v := toPlain(rv.Field(i)); v != nil {
				m[name] = v
			}
		}
		return m
	case reflect.Map:
		if rv.IsNil() {
			return nil
		}
		m := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			m[fmt.Sprint(iter.Key().Interface())] = toPlain(iter.Value())
		}
		return m
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return nil
		}
		items := make([]any, rv.Len())
		for i := range items {
			items[i] = toPlain(rv.Index(i))
		}
		return items
	}
	return rv.Interface()
}
