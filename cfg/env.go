package cfg

import (
	"os"
	"reflect"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cast"
)

// ApplyEnv 使用环境变量覆盖配置
// 变量名由前缀和 cfg tag 路径组成，全部大写，以 "_" 连接
// 例如 prefix 为 TABLEX 时，字段路径 engine.pageSize 对应 TABLEX_ENGINE_PAGESIZE
func ApplyEnv(prefix string, object any) error {
	rv := reflect.ValueOf(object)
	if rv.Kind() != reflect.Ptr || rv.IsNil() {
		return errors.New("object must be a non-nil pointer")
	}
	return applyEnv(strings.ToUpper(prefix), rv.Elem())
}

func applyEnv(prefix string, rv reflect.Value) error {
	if rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return nil
	}

	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		field := rt.Field(i)
		fieldValue := rv.Field(i)
		if !fieldValue.CanSet() {
			continue
		}

		name := fieldName(field)
		if name == "-" {
			continue
		}
		key := prefix + "_" + strings.ToUpper(name)

		if isNestedStruct(fieldValue) {
			if err := applyEnv(key, fieldValue); err != nil {
				return err
			}
			continue
		}

		value, ok := os.LookupEnv(key)
		if !ok {
			continue
		}
		if err := setEnvValue(fieldValue, value); err != nil {
			return errors.WithMessagef(err, "apply env %s failed", key)
		}
	}
	return nil
}

func setEnvValue(rv reflect.Value, value string) error {
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32:
		val, err := cast.ToInt64E(value)
		if err != nil {
			return errors.Errorf("invalid int value %q", value)
		}
		rv.SetInt(val)
		return nil
	case reflect.Bool:
		val, err := cast.ToBoolE(value)
		if err != nil {
			return errors.Errorf("invalid bool value %q", value)
		}
		rv.SetBool(val)
		return nil
	}
	// int64 需要兼容 time.Duration，其余类型与 def tag 的处理一致
	return setValue(rv, value)
}

func fieldName(field reflect.StructField) string {
	tag := field.Tag.Get("cfg")
	if tag == "" {
		return field.Name
	}
	if idx := strings.Index(tag, ","); idx >= 0 {
		tag = tag[:idx]
	}
	if tag == "" {
		return field.Name
	}
	return tag
}

func isNestedStruct(rv reflect.Value) bool {
	switch rv.Kind() {
	case reflect.Struct:
		return rv.Type().PkgPath() != "time"
	case reflect.Ptr:
		return !rv.IsNil() && rv.Elem().Kind() == reflect.Struct && rv.Elem().Type().PkgPath() != "time"
	}
	return false
}
