package workset

import (
	"fmt"
	"time"

	"github.com/hatlonely/tablex/kv/serializer"
	"github.com/pkg/errors"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	FormatJSON     = "json"
	FormatMsgPack  = "msgpack"
	FormatBSON     = "bson"
	FormatProtobuf = "protobuf"
)

// Artifact 导出的文件
type Artifact struct {
	Name        string `json:"name"`
	ContentType string `json:"contentType"`
	Data        []byte `json:"data"`
}

var exportFormats = map[string]struct {
	ext         string
	contentType string
}{
	FormatJSON:     {"json", "application/json"},
	FormatMsgPack:  {"msgpack", "application/msgpack"},
	FormatBSON:     {"bson", "application/bson"},
	FormatProtobuf: {"pb", "application/x-protobuf"},
}

// ExportName 导出文件名 <table>_export_<YYYY-MM-DD>.<ext>
func ExportName(table string, format string, now time.Time) string {
	ext := FormatJSON
	if f, ok := exportFormats[format]; ok {
		ext = f.ext
	}
	return fmt.Sprintf("%s_export_%s.%s", table, now.UTC().Format("2006-01-02"), ext)
}

// Export 按表内顺序导出选中的记录，不修改工作集
func Export(t *Table, keys []string, format string, now time.Time) (*Artifact, error) {
	if format == "" {
		format = FormatJSON
	}
	f, ok := exportFormats[format]
	if !ok {
		return nil, errors.Errorf("unsupported export format %s", format)
	}

	indexes := selected(t, keys)
	records := make([]Record, 0, len(indexes))
	for i, record := range t.Records {
		if indexes[i] {
			records = append(records, record)
		}
	}

	data, err := encodeRecords(records, format)
	if err != nil {
		return nil, errors.WithMessagef(err, "export %s as %s", t.Name, format)
	}
	return &Artifact{Name: ExportName(t.Name, format, now), ContentType: f.contentType, Data: data}, nil
}

func encodeRecords(records []Record, format string) ([]byte, error) {
	switch format {
	case FormatMsgPack:
		return serializer.NewMsgPackSerializer[[]Record]().Serialize(records)
	case FormatBSON:
		return serializer.NewBSONSerializerWithKey[[]Record]("records").Serialize(records)
	case FormatProtobuf:
		values, err := jsonValues(records)
		if err != nil {
			return nil, err
		}
		list, err := structpb.NewList(values)
		if err != nil {
			return nil, errors.Wrap(err, "convert records to protobuf")
		}
		return serializer.NewProtobufSerializer[*structpb.ListValue]().Serialize(list)
	}
	return serializer.NewIndentJSONSerializer[[]Record]("  ").Serialize(records)
}

// jsonValues 转换为 structpb 支持的类型，时间和 json.Number 经过一次 JSON 编解码变为字符串和 float64
func jsonValues(records []Record) ([]any, error) {
	data, err := serializer.NewJSONSerializer[[]Record]().Serialize(records)
	if err != nil {
		return nil, errors.Wrap(err, "encode records")
	}
	values, err := serializer.NewFloatJSONSerializer[[]any]().Deserialize(data)
	if err != nil {
		return nil, errors.Wrap(err, "decode records")
	}
	return values, nil
}
