package cfg

import (
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// SetDefaults 为结构体设置默认值，基于 def tag
// 只有字段为零值时才会被设置
func SetDefaults(object any) error {
	if object == nil {
		return errors.New("object cannot be nil")
	}

	rv := reflect.ValueOf(object)
	if rv.Kind() != reflect.Ptr {
		return errors.New("object must be a pointer")
	}
	if rv.IsNil() {
		return errors.New("object cannot be nil")
	}

	return setDefaults(rv.Elem())
}

// setDefaults 递归地为结构体字段设置默认值
func setDefaults(rv reflect.Value) error {
	if rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return nil
		}
		return setDefaults(rv.Elem())
	}
	if rv.Kind() != reflect.Struct || rv.Type() == reflect.TypeOf(time.Time{}) {
		return nil
	}

	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		field := rt.Field(i)
		fieldValue := rv.Field(i)
		if !fieldValue.CanSet() {
			continue
		}

		// 嵌套结构体，指针为 nil 时不分配，避免把可选配置块变成必填
		switch {
		case fieldValue.Kind() == reflect.Struct:
			if err := setDefaults(fieldValue); err != nil {
				return errors.WithMessagef(err, "field %s", field.Name)
			}
		case fieldValue.Kind() == reflect.Ptr && !fieldValue.IsNil():
			if err := setDefaults(fieldValue.Elem()); err != nil {
				return errors.WithMessagef(err, "field %s", field.Name)
			}
		}

		defTag, ok := field.Tag.Lookup("def")
		if !ok || defTag == "" || !fieldValue.IsZero() {
			continue
		}

		if err := setValue(fieldValue, defTag); err != nil {
			return errors.WithMessagef(err, "set default value for field %s failed", field.Name)
		}
	}

	return nil
}

// setValue 将字符串形式的值写入字段，def tag 和环境变量共用
func setValue(rv reflect.Value, value string) error {
	if rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			rv.Set(reflect.New(rv.Type().Elem()))
		}
		return setValue(rv.Elem(), value)
	}

	switch rv.Kind() {
	case reflect.String:
		rv.SetString(value)
		return nil

	case reflect.Bool:
		val, err := strconv.ParseBool(value)
		if err != nil {
			return errors.Errorf("invalid bool value %q", value)
		}
		rv.SetBool(val)
		return nil

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		// 特殊处理 time.Duration
		if rv.Type() == reflect.TypeOf(time.Duration(0)) {
			duration, err := time.ParseDuration(value)
			if err != nil {
				return errors.Errorf("invalid duration value %q", value)
			}
			rv.SetInt(int64(duration))
			return nil
		}
		val, err := strconv.ParseInt(value, 0, rv.Type().Bits())
		if err != nil {
			return errors.Errorf("invalid int value %q", value)
		}
		rv.SetInt(val)
		return nil

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		val, err := strconv.ParseUint(value, 0, rv.Type().Bits())
		if err != nil {
			return errors.Errorf("invalid uint value %q", value)
		}
		rv.SetUint(val)
		return nil

	case reflect.Float32, reflect.Float64:
		val, err := strconv.ParseFloat(value, rv.Type().Bits())
		if err != nil {
			return errors.Errorf("invalid float value %q", value)
		}
		rv.SetFloat(val)
		return nil

	case reflect.Slice:
		// 逗号分隔的列表
		parts := strings.Split(value, ",")
		slice := reflect.MakeSlice(rv.Type(), len(parts), len(parts))
		for i, part := range parts {
			if err := setValue(slice.Index(i), strings.TrimSpace(part)); err != nil {
				return errors.WithMessagef(err, "slice element %d", i)
			}
		}
		rv.Set(slice)
		return nil
	}

	return errors.Errorf("unsupported type %v", rv.Type())
}
