package rdb

import (
	"context"
	"fmt"
	"time"

	"github.com/hatlonely/tablex/log/logger"
	"github.com/hatlonely/tablex/rdb/database"
	"github.com/hatlonely/tablex/rdb/query"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type ObservableOptions struct {
	// EnableMetrics 是否启用指标收集
	EnableMetrics bool `cfg:"enableMetrics" def:"true"`

	// EnableLogging 是否启用日志记录
	EnableLogging bool `cfg:"enableLogging" def:"true"`

	// EnableTracing 是否启用分布式追踪
	EnableTracing bool `cfg:"enableTracing" def:"false"`

	// Name 组件名称标识，用于所有观测维度
	// - Metrics: 作为指标名前缀
	// - Logging: 作为 component 字段值
	// - Tracing: 作为 span 的 component 属性
	Name string `cfg:"name" def:"tablex_rdb"`
}

// ObservableMetrics 封装 prometheus 指标，所有连接共用，通过 connection 标签区分
type ObservableMetrics struct {
	operationCounter   *prometheus.CounterVec
	operationDuration  *prometheus.HistogramVec
	activeOperations   *prometheus.GaugeVec
	batchSizeHistogram *prometheus.HistogramVec
}

// NewObservableMetrics 创建指标收集器，registerer 为 nil 时不注册
func NewObservableMetrics(name string, registerer prometheus.Registerer) (*ObservableMetrics, error) {
	metrics := &ObservableMetrics{}
	var err error
	if metrics.operationCounter, err = register(registerer, prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: name + "_operations_total",
			Help: "Total number of database operations",
		},
		[]string{"connection", "operation", "status"},
	)); err != nil {
		return nil, err
	}
	if metrics.operationDuration, err = register(registerer, prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    name + "_operation_duration_seconds",
			Help:    "Duration of database operations in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0},
		},
		[]string{"connection", "operation"},
	)); err != nil {
		return nil, err
	}
	if metrics.activeOperations, err = register(registerer, prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: name + "_active_operations",
			Help: "Number of active database operations",
		},
		[]string{"connection", "operation"},
	)); err != nil {
		return nil, err
	}
	if metrics.batchSizeHistogram, err = register(registerer, prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    name + "_batch_size",
			Help:    "Number of records touched by batch operations",
			Buckets: []float64{1, 5, 10, 50, 100, 500, 1000},
		},
		[]string{"connection", "operation"},
	)); err != nil {
		return nil, err
	}
	return metrics, nil
}

// Observable 装饰器，为任何 Driver 添加观测能力
type Observable struct {
	driver     database.Driver
	connection string

	logger        logger.Logger
	metrics       *ObservableMetrics
	tracer        trace.Tracer
	name          string
	enableLogging bool
}

func NewObservable(driver database.Driver, connection string, options *ObservableOptions, metrics *ObservableMetrics, l logger.Logger) *Observable {
	if options == nil {
		options = &ObservableOptions{Name: "tablex_rdb"}
	}
	obs := &Observable{
		driver:        driver,
		connection:    connection,
		name:          options.Name,
		enableLogging: options.EnableLogging && l != nil,
	}
	if obs.enableLogging {
		obs.logger = l.WithGroup("observable")
	}
	if options.EnableMetrics {
		obs.metrics = metrics
	}
	if options.EnableTracing {
		obs.tracer = otel.Tracer(fmt.Sprintf("rdb.%s", options.Name))
	}
	return obs
}

// observe 统一的操作观测逻辑，batchSize 小于 0 表示不是批量操作
func (obs *Observable) observe(ctx context.Context, operation string, table string, batchSize int, fn func(context.Context) error) error {
	start := time.Now()

	var span trace.Span
	if obs.tracer != nil {
		ctx, span = obs.tracer.Start(ctx, fmt.Sprintf("rdb.%s", operation),
			trace.WithAttributes(
				attribute.String("component", obs.name),
				attribute.String("connection", obs.connection),
				attribute.String("operation", operation),
				attribute.String("table", table),
			),
		)
		defer span.End()
	}

	if obs.metrics != nil {
		obs.metrics.activeOperations.WithLabelValues(obs.connection, operation).Inc()
		defer obs.metrics.activeOperations.WithLabelValues(obs.connection, operation).Dec()
		if batchSize >= 0 {
			obs.metrics.batchSizeHistogram.WithLabelValues(obs.connection, operation).Observe(float64(batchSize))
		}
	}

	err := fn(ctx)
	duration := time.Since(start)

	if span != nil {
		span.SetAttributes(attribute.Int64("duration_ms", duration.Milliseconds()))
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
			span.RecordError(err)
		} else {
			span.SetStatus(codes.Ok, "")
		}
	}

	if obs.metrics != nil {
		status := "success"
		if err != nil {
			status = "error"
		}
		obs.metrics.operationCounter.WithLabelValues(obs.connection, operation, status).Inc()
		obs.metrics.operationDuration.WithLabelValues(obs.connection, operation).Observe(duration.Seconds())
	}

	if obs.enableLogging {
		if err != nil {
			obs.logger.ErrorContext(ctx, "database operation failed",
				"component", obs.name,
				"connection", obs.connection,
				"operation", operation,
				"table", table,
				"duration_ms", duration.Milliseconds(),
				"error", err.Error(),
			)
		} else {
			obs.logger.DebugContext(ctx, "database operation completed",
				"component", obs.name,
				"connection", obs.connection,
				"operation", operation,
				"table", table,
				"duration_ms", duration.Milliseconds(),
			)
		}
	}
	return err
}

func (obs *Observable) ListTables(ctx context.Context) ([]database.TableInfo, error) {
	var tables []database.TableInfo
	err := obs.observe(ctx, "ListTables", "", -1, func(ctx context.Context) error {
		var err error
		tables, err = obs.driver.ListTables(ctx)
		return err
	})
	return tables, err
}

func (obs *Observable) Find(ctx context.Context, table string, q query.Query, opts ...database.QueryOption) ([]database.Record, error) {
	var records []database.Record
	err := obs.observe(ctx, "Find", table, -1, func(ctx context.Context) error {
		var err error
		records, err = obs.driver.Find(ctx, table, q, opts...)
		return err
	})
	return records, err
}

func (obs *Observable) Search(ctx context.Context, table string, term string, opts ...database.QueryOption) ([]database.Record, error) {
	var records []database.Record
	err := obs.observe(ctx, "Search", table, -1, func(ctx context.Context) error {
		var err error
		records, err = obs.driver.Search(ctx, table, term, opts...)
		return err
	})
	return records, err
}

func (obs *Observable) Create(ctx context.Context, table string, record database.Record) error {
	return obs.observe(ctx, "Create", table, -1, func(ctx context.Context) error {
		return obs.driver.Create(ctx, table, record)
	})
}

func (obs *Observable) Update(ctx context.Context, table string, pk database.Record, fields database.Record) error {
	return obs.observe(ctx, "Update", table, -1, func(ctx context.Context) error {
		return obs.driver.Update(ctx, table, pk, fields)
	})
}

func (obs *Observable) Delete(ctx context.Context, table string, pk database.Record) error {
	return obs.observe(ctx, "Delete", table, -1, func(ctx context.Context) error {
		return obs.driver.Delete(ctx, table, pk)
	})
}

func (obs *Observable) BatchUpdate(ctx context.Context, table string, pks []database.Record, fields database.Record) error {
	return obs.observe(ctx, "BatchUpdate", table, len(pks), func(ctx context.Context) error {
		return obs.driver.BatchUpdate(ctx, table, pks, fields)
	})
}

func (obs *Observable) BatchDelete(ctx context.Context, table string, pks []database.Record) error {
	return obs.observe(ctx, "BatchDelete", table, len(pks), func(ctx context.Context) error {
		return obs.driver.BatchDelete(ctx, table, pks)
	})
}

func (obs *Observable) Close() error {
	return obs.driver.Close()
}
