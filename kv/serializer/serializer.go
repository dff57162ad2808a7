package serializer

import (
	"strings"

	"github.com/pkg/errors"
)

// Serializer 在 F 和 T 之间互相转换，缓存值和导出文件都通过它编码
type Serializer[F, T any] interface {
	Serialize(from F) (T, error)
	Deserialize(to T) (F, error)
}

// New 按名称创建字节序列化器，支持 json、msgpack、bson，名称为空时使用 msgpack
func New[T any](name string) (Serializer[T, []byte], error) {
	switch strings.ToLower(name) {
	case "", "msgpack":
		return NewMsgPackSerializer[T](), nil
	case "json":
		return NewJSONSerializer[T](), nil
	case "bson":
		return NewBSONSerializer[T](), nil
	}
	return nil, errors.Errorf("unsupported serializer: %s", name)
}
