package serializer

import (
	"bytes"
	"encoding/json"

	"github.com/pkg/errors"
)

// JSONSerializer 输出不转义 <、>、&，导出的记录里 URL 和 HTML 片段保持原样
type JSONSerializer[T any] struct {
	indent      string
	floatNumber bool
}

func NewJSONSerializer[T any]() *JSONSerializer[T] {
	return &JSONSerializer[T]{}
}

// NewFloatJSONSerializer 数字解码为 float64，用于转换为 structpb 等只接受基本类型的场景
func NewFloatJSONSerializer[T any]() *JSONSerializer[T] {
	return &JSONSerializer[T]{floatNumber: true}
}

// NewIndentJSONSerializer 输出带缩进的 JSON，用于导出文件和命令行
func NewIndentJSONSerializer[T any](indent string) *JSONSerializer[T] {
	return &JSONSerializer[T]{indent: indent}
}

func (s *JSONSerializer[T]) Serialize(from T) ([]byte, error) {
	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	encoder.SetEscapeHTML(false)
	if s.indent != "" {
		encoder.SetIndent("", s.indent)
	}
	if err := encoder.Encode(from); err != nil {
		return nil, errors.Wrap(err, "json marshal failed")
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// Deserialize 数字默认解码为 json.Number，大整数 id 不丢精度
// 第一个值之后还有内容时返回错误
func (s *JSONSerializer[T]) Deserialize(to []byte) (T, error) {
	var result T
	decoder := json.NewDecoder(bytes.NewReader(to))
	if !s.floatNumber {
		decoder.UseNumber()
	}
	if err := decoder.Decode(&result); err != nil {
		return result, errors.Wrap(err, "json unmarshal failed")
	}
	if decoder.More() {
		return result, errors.New("json unmarshal failed: unexpected data after top-level value")
	}
	return result, nil
}
