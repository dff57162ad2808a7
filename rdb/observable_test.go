package rdb

import (
	"context"
	"testing"

	"github.com/hatlonely/tablex/log/logger"
	"github.com/hatlonely/tablex/rdb/database"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

func TestNewObservableMetrics(t *testing.T) {
	Convey("测试 NewObservableMetrics", t, func() {
		registry := prometheus.NewRegistry()
		m1, err := NewObservableMetrics("test_rdb", registry)
		So(err, ShouldBeNil)
		m2, err := NewObservableMetrics("test_rdb", registry)
		So(err, ShouldBeNil)
		So(m2.operationCounter, ShouldEqual, m1.operationCounter)

		_, err = NewObservableMetrics("test_rdb", nil)
		So(err, ShouldBeNil)
	})
}

func TestObservable(t *testing.T) {
	Convey("测试 Observable", t, func() {
		ctx := context.Background()
		metrics, err := NewObservableMetrics("test_rdb", prometheus.NewRegistry())
		So(err, ShouldBeNil)
		driver := newCountingDriver()
		obs := NewObservable(driver, "local", &ObservableOptions{
			Name:          "test_rdb",
			EnableMetrics: true,
			EnableLogging: true,
			EnableTracing: true,
		}, metrics, logger.Nop{})

		tables, err := obs.ListTables(ctx)
		So(err, ShouldBeNil)
		So(tables, ShouldHaveLength, 1)

		records, err := obs.Search(ctx, "users", "ali")
		So(err, ShouldBeNil)
		So(records, ShouldHaveLength, 1)

		_, err = obs.Find(ctx, "missing", nil)
		So(err, ShouldNotBeNil)

		So(obs.Create(ctx, "users", database.Record{"id": 3}), ShouldBeNil)
		So(obs.Update(ctx, "users", database.Record{"id": 3}, database.Record{"name": "Carol"}), ShouldBeNil)
		So(obs.BatchUpdate(ctx, "users", []database.Record{{"id": 1}, {"id": 2}}, database.Record{"name": "x"}), ShouldBeNil)
		So(obs.BatchDelete(ctx, "users", []database.Record{{"id": 1}, {"id": 2}}), ShouldBeNil)
		So(obs.Delete(ctx, "users", database.Record{"id": 3}), ShouldBeNil)

		So(testutil.ToFloat64(metrics.operationCounter.WithLabelValues("local", "ListTables", "success")), ShouldEqual, 1)
		So(testutil.ToFloat64(metrics.operationCounter.WithLabelValues("local", "Find", "error")), ShouldEqual, 1)
		So(testutil.ToFloat64(metrics.operationCounter.WithLabelValues("local", "Delete", "success")), ShouldEqual, 1)
		So(testutil.ToFloat64(metrics.activeOperations.WithLabelValues("local", "Create")), ShouldEqual, 0)
		So(testutil.CollectAndCount(metrics.batchSizeHistogram), ShouldEqual, 2)
		So(driver.lists.Load(), ShouldEqual, 1)

		Convey("关闭指标", func() {
			obs := NewObservable(driver, "local", &ObservableOptions{Name: "test_rdb"}, metrics, nil)
			_, err := obs.ListTables(ctx)
			So(err, ShouldBeNil)
			So(testutil.ToFloat64(metrics.operationCounter.WithLabelValues("local", "ListTables", "success")), ShouldEqual, 1)
			So(obs.Close(), ShouldBeNil)
		})
	})
}
