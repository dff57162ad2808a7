package cfg

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/go-viper/mapstructure/v2"
	"github.com/pkg/errors"
	"gopkg.in/ini.v1"
	"gopkg.in/yaml.v3"
)

// Format 配置文件格式
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
	FormatTOML Format = "toml"
	FormatINI  Format = "ini"
)

// FormatOf 根据文件扩展名推断配置格式，无法识别时返回空字符串
func FormatOf(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	case ".json":
		return FormatJSON
	case ".toml":
		return FormatTOML
	case ".ini", ".conf":
		return FormatINI
	}
	return ""
}

// Load 读取配置文件并绑定到 object
// 处理顺序：解码文件 -> 绑定结构体 -> def 默认值 -> 环境变量覆盖 -> validate 校验
// path 为空时只应用默认值、环境变量和校验
func Load(path string, envPrefix string, object any) error {
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return errors.Wrapf(err, "read config file %s failed", path)
		}
		format := FormatOf(path)
		if format == "" {
			return errors.Errorf("unsupported config file extension: %s", filepath.Ext(path))
		}
		if err := Unmarshal(data, format, object); err != nil {
			return errors.WithMessagef(err, "load config file %s failed", path)
		}
	} else if err := SetDefaults(object); err != nil {
		return err
	}

	if envPrefix != "" {
		if err := ApplyEnv(envPrefix, object); err != nil {
			return err
		}
	}

	return Validate(object)
}

// Unmarshal 按指定格式解码数据，并绑定、填充默认值
func Unmarshal(data []byte, format Format, object any) error {
	raw, err := decode(data, format)
	if err != nil {
		return err
	}
	return Decode(raw, object)
}

// Decode 将通用数据（通常是 map[string]any）绑定到 object
// 使用 cfg tag 作为字段名，支持弱类型转换和 time.Duration 字符串
func Decode(input any, object any) error {
	if input != nil {
		decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			TagName:          "cfg",
			WeaklyTypedInput: true,
			Result:           object,
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
				mapstructure.StringToSliceHookFunc(","),
			),
		})
		if err != nil {
			return errors.Wrap(err, "create decoder failed")
		}
		if err := decoder.Decode(input); err != nil {
			return errors.Wrap(err, "bind config failed")
		}
	}
	return SetDefaults(object)
}

func decode(data []byte, format Format) (map[string]any, error) {
	result := map[string]any{}
	switch format {
	case FormatYAML:
		if err := yaml.Unmarshal(data, &result); err != nil {
			return nil, errors.Wrap(err, "decode yaml failed")
		}
	case FormatJSON:
		decoder := json.NewDecoder(bytes.NewReader(data))
		decoder.UseNumber()
		if err := decoder.Decode(&result); err != nil {
			return nil, errors.Wrap(err, "decode json failed")
		}
	case FormatTOML:
		if _, err := toml.Decode(string(data), &result); err != nil {
			return nil, errors.Wrap(err, "decode toml failed")
		}
	case FormatINI:
		file, err := ini.Load(data)
		if err != nil {
			return nil, errors.Wrap(err, "decode ini failed")
		}
		result = iniToMap(file)
	default:
		return nil, errors.Errorf("unsupported config format: %s", format)
	}
	return result, nil
}

// iniToMap 将 ini 文件展开为嵌套 map
// section 名中的 "." 表示层级，例如 [rdb.cache] 对应 rdb -> cache
func iniToMap(file *ini.File) map[string]any {
	result := map[string]any{}
	for _, section := range file.Sections() {
		target := result
		if name := section.Name(); name != ini.DefaultSection {
			for _, part := range strings.Split(name, ".") {
				next, ok := target[part].(map[string]any)
				if !ok {
					next = map[string]any{}
					target[part] = next
				}
				target = next
			}
		}
		for _, key := range section.Keys() {
			target[key.Name()] = key.Value()
		}
	}
	return result
}
