package ref

import (
	"reflect"
	"sync"

	"github.com/hatlonely/tablex/cfg"
	"github.com/pkg/errors"
)

// TypeOptions 配置文件中的构造描述
// Namespace + Type 定位注册的构造函数，Options 为构造参数（通常是配置文件解码出的 map）
type TypeOptions struct {
	Namespace string `cfg:"namespace"`
	Type      string `cfg:"type" validate:"required"`
	Options   any    `cfg:"options"`
}

type constructor struct {
	originalFunc any
	new          func(options any) (any, error)
}

var nameConstructorMap sync.Map

func isSameFunc(func1, func2 any) bool {
	return reflect.ValueOf(func1).Pointer() == reflect.ValueOf(func2).Pointer()
}

// Register 注册构造函数
// 同一个 key 重复注册相同函数时直接跳过，注册不同函数返回错误
func Register[O any, T any](namespace string, type_ string, newFunc func(*O) (T, error)) error {
	if newFunc == nil {
		return errors.New("newFunc cannot be nil")
	}
	key := namespace + ":" + type_

	if existingValue, ok := nameConstructorMap.Load(key); ok {
		if isSameFunc(existingValue.(*constructor).originalFunc, newFunc) {
			return nil
		}
		return errors.Errorf("constructor for %s already registered with different function", key)
	}

	nameConstructorMap.Store(key, &constructor{
		originalFunc: newFunc,
		new: func(options any) (any, error) {
			var o O
			switch v := options.(type) {
			case *O:
				if v != nil {
					o = *v
				}
				if err := cfg.SetDefaults(&o); err != nil {
					return nil, err
				}
			case O:
				o = v
				if err := cfg.SetDefaults(&o); err != nil {
					return nil, err
				}
			default:
				// 配置文件解码出的通用数据，绑定到 options 结构体并填充默认值
				if err := cfg.Decode(options, &o); err != nil {
					return nil, errors.WithMessagef(err, "decode options for %s failed", key)
				}
			}
			if err := cfg.Validate(&o); err != nil {
				return nil, errors.WithMessagef(err, "invalid options for %s", key)
			}
			return newFunc(&o)
		},
	})
	return nil
}

// MustRegister 注册失败时 panic，用于包的 init 函数
func MustRegister[O any, T any](namespace string, type_ string, newFunc func(*O) (T, error)) {
	if err := Register(namespace, type_, newFunc); err != nil {
		panic(err)
	}
}

// New 根据 TypeOptions 创建对象，结果必须可以转换为 T
func New[T any](options *TypeOptions) (T, error) {
	var t T
	if options == nil {
		return t, errors.New("type options cannot be nil")
	}

	key := options.Namespace + ":" + options.Type
	value, ok := nameConstructorMap.Load(key)
	if !ok {
		return t, errors.Errorf("constructor not found for %s", key)
	}

	obj, err := value.(*constructor).new(options.Options)
	if err != nil {
		return t, err
	}

	result, ok := obj.(T)
	if !ok {
		return t, errors.Errorf("created object for %s is not of type %T", key, t)
	}
	return result, nil
}

// Registered 判断构造函数是否已注册
func Registered(namespace string, type_ string) bool {
	_, ok := nameConstructorMap.Load(namespace + ":" + type_)
	return ok
}
