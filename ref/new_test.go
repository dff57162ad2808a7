package ref

import (
	"testing"
	"time"

	"github.com/pkg/errors"
	. "github.com/smartystreets/goconvey/convey"
)

type Value struct {
	Name    string
	Timeout time.Duration
}

type Options struct {
	Name    string        `cfg:"name" validate:"required"`
	Timeout time.Duration `cfg:"timeout" def:"5s"`
}

func NewValueWithOptions(options *Options) (*Value, error) {
	if options.Name == "forbidden" {
		return nil, errors.New("forbidden name")
	}
	return &Value{Name: options.Name, Timeout: options.Timeout}, nil
}

func NewOtherValueWithOptions(options *Options) (*Value, error) {
	return &Value{Name: "other"}, nil
}

type Namer interface {
	GetName() string
}

func (v *Value) GetName() string { return v.Name }

func TestRegisterAndNew(t *testing.T) {
	Convey("注册并创建对象", t, func() {
		So(Register("ref.test", "Value", NewValueWithOptions), ShouldBeNil)
		So(Registered("ref.test", "Value"), ShouldBeTrue)

		Convey("通用 map 配置会被解码并填充默认值", func() {
			value, err := New[*Value](&TypeOptions{
				Namespace: "ref.test",
				Type:      "Value",
				Options:   map[string]any{"name": "alice"},
			})
			So(err, ShouldBeNil)
			So(value.Name, ShouldEqual, "alice")
			So(value.Timeout, ShouldEqual, 5*time.Second)
		})

		Convey("直接传入 options 结构体", func() {
			value, err := New[*Value](&TypeOptions{
				Namespace: "ref.test",
				Type:      "Value",
				Options:   &Options{Name: "bob", Timeout: time.Second},
			})
			So(err, ShouldBeNil)
			So(value.Name, ShouldEqual, "bob")
			So(value.Timeout, ShouldEqual, time.Second)
		})

		Convey("返回接口类型", func() {
			namer, err := New[Namer](&TypeOptions{
				Namespace: "ref.test",
				Type:      "Value",
				Options:   Options{Name: "carol"},
			})
			So(err, ShouldBeNil)
			So(namer.GetName(), ShouldEqual, "carol")
		})

		Convey("校验失败", func() {
			_, err := New[*Value](&TypeOptions{Namespace: "ref.test", Type: "Value", Options: map[string]any{}})
			So(err, ShouldNotBeNil)
		})

		Convey("构造函数返回错误", func() {
			_, err := New[*Value](&TypeOptions{Namespace: "ref.test", Type: "Value", Options: map[string]any{"name": "forbidden"}})
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "forbidden name")
		})

		Convey("类型不匹配", func() {
			_, err := New[string](&TypeOptions{Namespace: "ref.test", Type: "Value", Options: map[string]any{"name": "x"}})
			So(err, ShouldNotBeNil)
		})

		Convey("未注册的类型", func() {
			_, err := New[*Value](&TypeOptions{Namespace: "ref.test", Type: "Missing"})
			So(err, ShouldNotBeNil)
			_, err = New[*Value](nil)
			So(err, ShouldNotBeNil)
		})

		Convey("重复注册", func() {
			So(Register("ref.test", "Value", NewValueWithOptions), ShouldBeNil)
			So(Register("ref.test", "Value", NewOtherValueWithOptions), ShouldNotBeNil)
			So(func() { MustRegister("ref.test", "Value", NewOtherValueWithOptions) }, ShouldPanic)
		})
	})
}
