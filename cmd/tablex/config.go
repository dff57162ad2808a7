package main

import (
	"github.com/hatlonely/tablex/cfg"
	"github.com/hatlonely/tablex/log/logger"
	"github.com/hatlonely/tablex/rdb"
	"github.com/hatlonely/tablex/ref"
	"github.com/hatlonely/tablex/server"
	"github.com/hatlonely/tablex/workset"
	"github.com/pkg/errors"
)

const envPrefix = "TABLEX"

// Config 命令行和服务共用的配置文件结构
type Config struct {
	Log    logger.SLogOptions    `cfg:"log"`
	Engine workset.EngineOptions `cfg:"engine"`
	RDB    rdb.ManagerOptions    `cfg:"rdb"`
	Server server.Options        `cfg:"server"`
}

// loadConfig 读取配置文件，path 为空时使用默认值
// 没有配置任何连接时提供一个名为 local 的内存演示连接
func loadConfig(path string) (*Config, error) {
	config := &Config{}
	if err := cfg.Load(path, envPrefix, config); err != nil {
		return nil, errors.WithMessage(err, "load config failed")
	}
	if len(config.RDB.Connections) == 0 {
		config.RDB.Connections = map[string]*ref.TypeOptions{"local": demoConnection()}
	}
	return config, nil
}

func demoConnection() *ref.TypeOptions {
	return &ref.TypeOptions{
		Type: "Memory",
		Options: map[string]any{
			"tables": []any{
				map[string]any{
					"name": "users",
					"columns": []any{
						map[string]any{"name": "id", "type": "INTEGER", "primaryKey": true},
						map[string]any{"name": "email", "type": "TEXT", "unique": true},
						map[string]any{"name": "name", "type": "TEXT", "nullable": true},
						map[string]any{"name": "created_at", "type": "DATETIME", "nullable": true},
					},
					"records": []any{
						map[string]any{"id": 1, "email": "alice@example.com", "name": "Alice", "created_at": "2024-05-01T08:30:00Z"},
						map[string]any{"id": 2, "email": "bob@example.com", "name": "Bob", "created_at": "2024-05-02T09:00:00Z"},
						map[string]any{"id": 3, "email": "carol@example.com", "name": "Carol", "created_at": "2024-05-03T10:15:00Z"},
					},
				},
				map[string]any{
					"name": "events",
					"kind": "collection",
					"records": []any{
						map[string]any{"type": "login", "user": "alice"},
						map[string]any{"type": "logout", "user": "alice"},
					},
				},
			},
		},
	}
}
