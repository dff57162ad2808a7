package serializer

import (
	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
)

// BSONSerializer bson 的顶层必须是文档
// key 不为空时把值包装为 {key: value}，数组、标量也可以编码
type BSONSerializer[T any] struct {
	key string
}

func NewBSONSerializer[T any]() *BSONSerializer[T] {
	return &BSONSerializer[T]{}
}

// NewBSONSerializerWithKey 导出记录列表时使用，如 {"records": [...]}
func NewBSONSerializerWithKey[T any](key string) *BSONSerializer[T] {
	return &BSONSerializer[T]{key: key}
}

func (s *BSONSerializer[T]) Serialize(from T) ([]byte, error) {
	var data []byte
	var err error
	if s.key == "" {
		data, err = bson.Marshal(from)
	} else {
		data, err = bson.Marshal(bson.D{{Key: s.key, Value: from}})
	}
	return data, errors.Wrap(err, "bson marshal failed")
}

func (s *BSONSerializer[T]) Deserialize(to []byte) (T, error) {
	var result T
	if s.key == "" {
		err := bson.Unmarshal(to, &result)
		return result, errors.Wrap(err, "bson unmarshal failed")
	}

	raw, err := bson.Raw(to).LookupErr(s.key)
	if err != nil {
		return result, errors.Wrapf(err, "bson field %s not found", s.key)
	}
	return result, errors.Wrap(raw.Unmarshal(&result), "bson unmarshal failed")
}
