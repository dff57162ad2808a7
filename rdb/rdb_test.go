package rdb

import (
	"context"
	"testing"
	"time"

	"github.com/hatlonely/tablex/log/logger"
	"github.com/hatlonely/tablex/rdb/database"
	"github.com/hatlonely/tablex/ref"
	"github.com/hatlonely/tablex/workset"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

func usersConnection() *ref.TypeOptions {
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
					},
					"records": []any{
						map[string]any{"id": 1, "email": "a@x.com", "name": "Alice"},
						map[string]any{"id": 2, "email": "b@x.com", "name": "Bob"},
					},
				},
				map[string]any{
					"name": "logs",
					"kind": "collection",
				},
			},
		},
	}
}

func newTestManager(options *ManagerOptions) *Manager {
	if options.FetchLimit == 0 {
		options.FetchLimit = 100
	}
	if options.Connections == nil {
		options.Connections = map[string]*ref.TypeOptions{"local": usersConnection()}
	}
	m, err := NewManagerWithOptions(options, WithLogger(logger.Nop{}), WithRegisterer(prometheus.NewRegistry()))
	So(err, ShouldBeNil)
	return m
}

func TestNewManagerWithOptions(t *testing.T) {
	Convey("测试 NewManagerWithOptions", t, func() {
		m, err := NewManagerWithOptions(nil)
		So(err, ShouldBeNil)
		So(m.options.FetchLimit, ShouldEqual, 100)
		So(m.Connections(), ShouldBeEmpty)

		_, err = NewManagerWithOptions(&ManagerOptions{FetchLimit: 0})
		So(err, ShouldNotBeNil)

		_, err = NewManagerWithOptions(&ManagerOptions{FetchLimit: 1, Cache: &CachedOptions{
			Store: &ref.TypeOptions{Type: "UnknownStore"},
		}})
		So(err, ShouldNotBeNil)

		memory, err := database.NewMemoryWithOptions(&database.MemoryOptions{})
		So(err, ShouldBeNil)
		m = newTestManager(&ManagerOptions{})
		m, err = NewManagerWithOptions(m.options, WithDriver("injected", memory))
		So(err, ShouldBeNil)
		So(m.Connections(), ShouldResemble, []string{"injected", "local"})
	})
}

func TestManager(t *testing.T) {
	Convey("测试 Manager", t, func() {
		ctx := context.Background()
		m := newTestManager(&ManagerOptions{})
		defer m.Close()

		Convey("未知连接", func() {
			_, err := m.ListTables(ctx, "remote")
			So(errors.Is(err, ErrConnectionNotFound), ShouldBeTrue)
			So(errors.Is(m.CreateRecord(ctx, "remote", "users", workset.Record{}), ErrConnectionNotFound), ShouldBeTrue)
		})

		Convey("驱动只创建一次", func() {
			d1, err := m.Driver("local")
			So(err, ShouldBeNil)
			d2, err := m.Driver("local")
			So(err, ShouldBeNil)
			So(d1, ShouldEqual, d2)
		})

		Convey("列出表和记录", func() {
			tables, err := m.ListTables(ctx, "local")
			So(err, ShouldBeNil)
			So(tables, ShouldHaveLength, 2)
			So(tables[0].Name, ShouldEqual, "users")
			So(tables[0].Columns[0], ShouldResemble, workset.Column{Name: "id", Type: "INTEGER", PrimaryKey: true})
			So(tables[0].Columns[1].Unique, ShouldBeTrue)
			So(tables[1].Kind, ShouldEqual, workset.KindCollection)
			So(tables[1].Columns, ShouldBeNil)

			records, err := m.ListRecords(ctx, "local", "users")
			So(err, ShouldBeNil)
			So(records, ShouldHaveLength, 2)

			records, err = m.SearchRecords(ctx, "local", "users", "BOB", 0, 10)
			So(err, ShouldBeNil)
			So(records, ShouldHaveLength, 1)
			So(records[0]["email"], ShouldEqual, "b@x.com")

			records, err = m.SearchRecords(ctx, "local", "users", "", 1, 10)
			So(err, ShouldBeNil)
			So(records, ShouldHaveLength, 1)

			_, err = m.ListRecords(ctx, "local", "missing")
			So(errors.Is(err, workset.ErrTableNotFound), ShouldBeTrue)
		})

		Convey("写入", func() {
			So(m.CreateRecord(ctx, "local", "users", workset.Record{"id": 3, "email": "c@x.com"}), ShouldBeNil)
			err := m.CreateRecord(ctx, "local", "users", workset.Record{"id": 3, "email": "c@x.com"})
			So(errors.Is(err, workset.ErrUniqueConstraint), ShouldBeTrue)

			So(m.UpdateRecord(ctx, "local", "users", workset.Record{"id": 3}, workset.Record{"name": "Carol"}), ShouldBeNil)
			err = m.UpdateRecord(ctx, "local", "users", workset.Record{"id": 9}, workset.Record{"name": "x"})
			So(errors.Is(err, workset.ErrRecordNotFound), ShouldBeTrue)
			err = m.DeleteRecord(ctx, "local", "users", workset.Record{})
			So(errors.Is(err, workset.ErrNoPrimaryKey), ShouldBeTrue)

			So(m.BulkUpdate(ctx, "local", "users", []workset.Record{{"id": 1}, {"id": 2}}, workset.Record{"name": "same"}), ShouldBeNil)
			So(m.BulkDelete(ctx, "local", "users", []workset.Record{{"id": 1}}), ShouldBeNil)
			So(m.DeleteRecord(ctx, "local", "users", workset.Record{"id": 3}), ShouldBeNil)

			records, err := m.ListRecords(ctx, "local", "users")
			So(err, ShouldBeNil)
			So(records, ShouldHaveLength, 1)
			So(records[0]["name"], ShouldEqual, "same")
		})

		Convey("ListRecords 受 FetchLimit 限制", func() {
			m := newTestManager(&ManagerOptions{FetchLimit: 1})
			records, err := m.ListRecords(ctx, "local", "users")
			So(err, ShouldBeNil)
			So(records, ShouldHaveLength, 1)
		})
	})
}

func TestManagerWithEngine(t *testing.T) {
	Convey("测试 Manager 作为引擎的数据源", t, func() {
		ctx := context.Background()
		m := newTestManager(&ManagerOptions{})
		defer m.Close()

		e, err := workset.NewEngineWithOptions(nil, workset.WithDataSource(m), workset.WithPersister(m), workset.WithLogger(logger.Nop{}))
		So(err, ShouldBeNil)
		So(e.LoadConnection(ctx, "local"), ShouldBeNil)
		So(e.ActiveTable(), ShouldEqual, "users")

		Convey("编辑写回数据库", func() {
			So(e.StartEdit("2", "name", "Bob"), ShouldBeNil)
			So(e.UpdateDraft("Bobby"), ShouldBeNil)
			_, err := e.CommitEdit(ctx)
			So(err, ShouldBeNil)

			records, err := m.SearchRecords(ctx, "local", "users", "bobby", 0, 0)
			So(err, ShouldBeNil)
			So(records, ShouldHaveLength, 1)
		})

		Convey("批量删除写回数据库", func() {
			_, err := e.ToggleSelection("1")
			So(err, ShouldBeNil)
			task, err := e.BulkDelete(ctx)
			So(err, ShouldBeNil)
			_, err = task.Wait(ctx)
			So(err, ShouldBeNil)

			records, err := m.ListRecords(ctx, "local", "users")
			So(err, ShouldBeNil)
			So(records, ShouldHaveLength, 1)
		})

		Convey("远端拒绝时本地不变", func() {
			So(m.DeleteRecord(ctx, "local", "users", workset.Record{"id": 2}), ShouldBeNil)
			err := e.DeleteRecord(ctx, "users", "2")
			So(errors.Is(err, workset.ErrRecordNotFound), ShouldBeTrue)
			users, err := e.Table("users")
			So(err, ShouldBeNil)
			So(users.RowCount(), ShouldEqual, 2)
		})
	})
}

func TestManagerDecorators(t *testing.T) {
	Convey("测试 Manager 按配置装饰驱动", t, func() {
		ctx := context.Background()
		registry := prometheus.NewRegistry()
		m, err := NewManagerWithOptions(&ManagerOptions{
			Connections: map[string]*ref.TypeOptions{"local": usersConnection()},
			FetchLimit:  100,
			Cache: &CachedOptions{
				Store:      &ref.TypeOptions{Type: "MapStore"},
				TTL:        time.Minute,
				Serializer: "msgpack",
				Name:       "test_cache",
			},
			Observe: &ObservableOptions{Name: "test_rdb", EnableMetrics: true},
		}, WithLogger(logger.Nop{}), WithRegisterer(registry))
		So(err, ShouldBeNil)
		defer m.Close()

		driver, err := m.Driver("local")
		So(err, ShouldBeNil)
		observable, ok := driver.(*Observable)
		So(ok, ShouldBeTrue)
		_, ok = observable.driver.(*Cached)
		So(ok, ShouldBeTrue)

		_, err = m.ListRecords(ctx, "local", "users")
		So(err, ShouldBeNil)
		_, err = m.ListRecords(ctx, "local", "users")
		So(err, ShouldBeNil)

		So(testutil.ToFloat64(m.cacheMetrics.requests.WithLabelValues("local", "hit")), ShouldEqual, 1)
		So(testutil.ToFloat64(m.metrics.operationCounter.WithLabelValues("local", "Find", "success")), ShouldEqual, 2)
	})
}
