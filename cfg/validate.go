package cfg

import (
	"reflect"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// Validator 返回共享的校验器实例
func Validator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
	})
	return validate
}

// Validate 使用 validate tag 校验结构体，非结构体或 nil 指针直接通过
func Validate(object any) error {
	if object == nil {
		return nil
	}

	rv := reflect.ValueOf(object)
	for rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return nil
	}
	// 跳过 time.Time
	if rv.Type().PkgPath() == "time" {
		return nil
	}

	if err := Validator().Struct(rv.Interface()); err != nil {
		return errors.Wrap(err, "validate config failed")
	}
	return nil
}
