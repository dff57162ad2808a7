package serializer

import (
	"bytes"

	"github.com/pkg/errors"
	"github.com/vmihailenco/msgpack/v5"
)

// MsgPackSerializer 缓存记录的默认编码
type MsgPackSerializer[T any] struct{}

func NewMsgPackSerializer[T any]() *MsgPackSerializer[T] {
	return &MsgPackSerializer[T]{}
}

// Serialize map 按 key 排序编码，相同的记录得到相同的字节
func (s *MsgPackSerializer[T]) Serialize(from T) ([]byte, error) {
	var buf bytes.Buffer
	encoder := msgpack.NewEncoder(&buf)
	encoder.SetSortMapKeys(true)
	if err := encoder.Encode(from); err != nil {
		return nil, errors.Wrap(err, "msgpack marshal failed")
	}
	return buf.Bytes(), nil
}

// Deserialize 解码到 any 的整数统一为 int64/uint64，浮点统一为 float64
func (s *MsgPackSerializer[T]) Deserialize(to []byte) (T, error) {
	var result T
	decoder := msgpack.NewDecoder(bytes.NewReader(to))
	decoder.UseLooseInterfaceDecoding(true)
	err := decoder.Decode(&result)
	return result, errors.Wrap(err, "msgpack unmarshal failed")
}
