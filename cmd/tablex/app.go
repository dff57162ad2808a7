package main

import (
	"context"
	"io"

	"github.com/hatlonely/tablex/log"
	"github.com/hatlonely/tablex/log/logger"
	"github.com/hatlonely/tablex/rdb"
	"github.com/hatlonely/tablex/workset"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

// app 一次命令执行用到的组件，指标注册到独立的 registry
type app struct {
	config   *Config
	log      logger.Logger
	registry *prometheus.Registry
	manager  *rdb.Manager
	engine   *workset.Engine
}

func newApp(configPath string) (*app, error) {
	config, err := loadConfig(configPath)
	if err != nil {
		return nil, err
	}

	l, err := log.NewWithOptions(&config.Log)
	if err != nil {
		return nil, errors.WithMessage(err, "create logger failed")
	}
	log.SetDefault(l)

	registry := prometheus.NewRegistry()
	manager, err := rdb.NewManagerWithOptions(&config.RDB, rdb.WithLogger(l), rdb.WithRegisterer(registry))
	if err != nil {
		return nil, err
	}
	metrics, err := workset.NewMetrics(registry)
	if err != nil {
		return nil, err
	}
	engine, err := workset.NewEngineWithOptions(&config.Engine,
		workset.WithDataSource(manager),
		workset.WithPersister(manager),
		workset.WithLogger(l),
		workset.WithMetrics(metrics),
	)
	if err != nil {
		return nil, err
	}

	return &app{
		config:   config,
		log:      l,
		registry: registry,
		manager:  manager,
		engine:   engine,
	}, nil
}

// load 把连接加载到工作集，table 非空时切换到该表
func (a *app) load(ctx context.Context, connection string, table string) error {
	if err := a.engine.LoadConnection(ctx, connection); err != nil {
		return err
	}
	if table != "" {
		return a.engine.SelectTable(table)
	}
	return nil
}

func (a *app) Close() error {
	err := a.manager.Close()
	if closer, ok := a.log.(io.Closer); ok {
		if cerr := closer.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}
