package cfg

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"
)

// Field 一个配置项的说明
type Field struct {
	// 点分隔的配置路径，如 engine.bulk.stepDelay
	Path string
	Type string
	// 为空表示只能通过配置文件设置
	Env      string
	Default  string
	Required bool
	// validate tag 中 oneof 的可选值
	Choices []string
}

var durationType = reflect.TypeOf(time.Duration(0))

// Fields 列出 object 的所有叶子配置项，按路径排序
// 环境变量名与 ApplyEnv 的规则一致，map、slice 和 interface 类型的字段没有环境变量
// 指针类型的配置段只有在配置文件中出现时，其中的环境变量才生效
func Fields(object any, envPrefix string) []Field {
	rt := reflect.TypeOf(object)
	for rt != nil && rt.Kind() == reflect.Ptr {
		rt = rt.Elem()
	}
	if rt == nil || rt.Kind() != reflect.Struct {
		return nil
	}

	var fields []Field
	collectFields(rt, "", strings.ToUpper(envPrefix), &fields)
	sort.Slice(fields, func(i, j int) bool { return fields[i].Path < fields[j].Path })
	return fields
}

func collectFields(rt reflect.Type, path string, env string, fields *[]Field) {
	for i := 0; i < rt.NumField(); i++ {
		field := rt.Field(i)
		if !field.IsExported() {
			continue
		}
		name := fieldName(field)
		if name == "-" {
			continue
		}

		fieldPath := name
		if path != "" {
			fieldPath = path + "." + name
		}
		fieldEnv := ""
		if env != "" {
			fieldEnv = env + "_" + strings.ToUpper(name)
		}

		ft := field.Type
		for ft.Kind() == reflect.Ptr {
			ft = ft.Elem()
		}
		if ft.Kind() == reflect.Struct && ft != reflect.TypeOf(time.Time{}) {
			collectFields(ft, fieldPath, fieldEnv, fields)
			continue
		}

		switch ft.Kind() {
		case reflect.Map, reflect.Slice, reflect.Interface:
			fieldEnv = ""
		}
		validate := field.Tag.Get("validate")
		*fields = append(*fields, Field{
			Path:     fieldPath,
			Type:     typeName(field.Type),
			Env:      fieldEnv,
			Default:  field.Tag.Get("def"),
			Required: hasRule(validate, "required"),
			Choices:  oneOf(validate),
		})
	}
}

func typeName(t reflect.Type) string {
	if t == durationType {
		return "duration"
	}
	switch t.Kind() {
	case reflect.Ptr:
		return typeName(t.Elem())
	case reflect.Slice:
		return "[]" + typeName(t.Elem())
	case reflect.Map:
		return "map[" + typeName(t.Key()) + "]" + typeName(t.Elem())
	case reflect.Interface:
		return "any"
	case reflect.Struct:
		return "object"
	}
	return t.Kind().String()
}

func hasRule(validate string, rule string) bool {
	for _, r := range strings.Split(validate, ",") {
		if r == rule {
			return true
		}
	}
	return false
}

func oneOf(validate string) []string {
	for _, r := range strings.Split(validate, ",") {
		if strings.HasPrefix(r, "oneof=") {
			return strings.Fields(strings.TrimPrefix(r, "oneof="))
		}
	}
	return nil
}

// Help 生成配置项说明文本，每项一行
func Help(object any, envPrefix string) string {
	var sb strings.Builder
	for _, f := range Fields(object, envPrefix) {
		fmt.Fprintf(&sb, "%s (%s)", f.Path, f.Type)
		if f.Required {
			sb.WriteString(" required")
		}
		if f.Default != "" {
			fmt.Fprintf(&sb, " default=%s", f.Default)
		}
		if len(f.Choices) > 0 {
			fmt.Fprintf(&sb, " one of [%s]", strings.Join(f.Choices, " "))
		}
		if f.Env != "" {
			fmt.Fprintf(&sb, " env=%s", f.Env)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}
