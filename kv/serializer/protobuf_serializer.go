package serializer

import (
	"github.com/pkg/errors"
	"google.golang.org/protobuf/proto"
)

// ProtobufSerializer T 为消息指针类型，如 *structpb.ListValue
type ProtobufSerializer[T proto.Message] struct{}

func NewProtobufSerializer[T proto.Message]() *ProtobufSerializer[T] {
	return &ProtobufSerializer[T]{}
}

// Serialize 确定性编码，map 字段顺序固定
func (s *ProtobufSerializer[T]) Serialize(from T) ([]byte, error) {
	data, err := proto.MarshalOptions{Deterministic: true}.Marshal(from)
	return data, errors.Wrap(err, "protobuf marshal failed")
}

func (s *ProtobufSerializer[T]) Deserialize(to []byte) (T, error) {
	var zero T
	result := zero.ProtoReflect().New().Interface().(T)
	if err := proto.Unmarshal(to, result); err != nil {
		return zero, errors.Wrap(err, "protobuf unmarshal failed")
	}
	return result, nil
}
