package database

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/hatlonely/tablex/rdb/query"
	"github.com/pkg/errors"
	. "github.com/smartystreets/goconvey/convey"
)

func testMemoryOptions() *MemoryOptions {
	return &MemoryOptions{
		Tables: []MemoryTableOptions{
			{
				Name: "users",
				Columns: []Column{
					{Name: "id", Type: "INTEGER", PrimaryKey: true},
					{Name: "email", Type: "TEXT", Unique: true},
					{Name: "name", Type: "TEXT", Nullable: true},
				},
				Records: []map[string]any{
					{"id": 1, "email": "a@x.com", "name": "Alice"},
					{"id": 2, "email": "b@x.com", "name": "Bob"},
					{"id": 3, "email": "c@y.com", "name": nil},
				},
			},
			{Name: "active_users", Kind: KindView},
		},
	}
}

func TestNewMemoryWithOptions(t *testing.T) {
	Convey("测试 NewMemoryWithOptions", t, func() {
		Convey("重复的表名", func() {
			_, err := NewMemoryWithOptions(&MemoryOptions{Tables: []MemoryTableOptions{{Name: "a"}, {Name: "a"}}})
			So(err, ShouldNotBeNil)
		})

		Convey("从种子文件加载", func() {
			path := filepath.Join(t.TempDir(), "seed.json")
			So(os.WriteFile(path, []byte(`[{"name":"orders","columns":[{"name":"id","type":"INTEGER","primaryKey":true}],"records":[{"id":1},{"id":2}]}]`), 0644), ShouldBeNil)

			m, err := NewMemoryWithOptions(&MemoryOptions{SeedFile: path})
			So(err, ShouldBeNil)
			tables, err := m.ListTables(context.Background())
			So(err, ShouldBeNil)
			So(tables, ShouldHaveLength, 1)
			So(tables[0].Name, ShouldEqual, "orders")
			So(tables[0].Kind, ShouldEqual, KindTable)
			So(tables[0].Columns[0].PrimaryKey, ShouldBeTrue)

			records, err := m.Find(context.Background(), "orders", nil)
			So(err, ShouldBeNil)
			So(records, ShouldHaveLength, 2)
		})

		Convey("种子文件不存在", func() {
			_, err := NewMemoryWithOptions(&MemoryOptions{SeedFile: filepath.Join(t.TempDir(), "missing.json")})
			So(err, ShouldNotBeNil)
		})
	})
}

func TestMemory(t *testing.T) {
	Convey("测试 Memory 驱动", t, func() {
		m, err := NewMemoryWithOptions(testMemoryOptions())
		So(err, ShouldBeNil)
		defer m.Close()
		ctx := context.Background()

		Convey("ListTables 保持声明顺序", func() {
			tables, err := m.ListTables(ctx)
			So(err, ShouldBeNil)
			So(tables, ShouldHaveLength, 2)
			So(tables[0].Name, ShouldEqual, "users")
			So(tables[1].Kind, ShouldEqual, KindView)
		})

		Convey("Find", func() {
			records, err := m.Find(ctx, "users", nil, WithOffset(1), WithLimit(1))
			So(err, ShouldBeNil)
			So(records, ShouldHaveLength, 1)
			So(records[0]["name"], ShouldEqual, "Bob")

			records, err = m.Find(ctx, "users", &query.TermQuery{Field: "id", Value: int64(3)})
			So(err, ShouldBeNil)
			So(records, ShouldHaveLength, 1)
			So(records[0]["email"], ShouldEqual, "c@y.com")

			records, err = m.Find(ctx, "users", &query.TermQuery{Field: "name", Value: nil})
			So(err, ShouldBeNil)
			So(records, ShouldHaveLength, 1)

			records, err = m.Find(ctx, "users", query.Key(Record{"id": 3, "email": "c@y.com"}))
			So(err, ShouldBeNil)
			So(records, ShouldHaveLength, 1)

			records, err = m.Find(ctx, "users", query.Key(Record{"id": 3, "email": "a@y.com"}))
			So(err, ShouldBeNil)
			So(records, ShouldBeEmpty)

			_, err = m.Find(ctx, "users", &query.MatchQuery{Field: "name", Value: "a"})
			So(err, ShouldNotBeNil)

			_, err = m.Find(ctx, "missing", nil)
			So(errors.Is(err, ErrTableNotFound), ShouldBeTrue)
		})

		Convey("返回的记录是副本", func() {
			records, err := m.Find(ctx, "users", nil)
			So(err, ShouldBeNil)
			records[0]["name"] = "changed"

			records, err = m.Find(ctx, "users", nil)
			So(err, ShouldBeNil)
			So(records[0]["name"], ShouldEqual, "Alice")
		})

		Convey("Search", func() {
			records, err := m.Search(ctx, "users", "X.COM")
			So(err, ShouldBeNil)
			So(records, ShouldHaveLength, 2)

			records, err = m.Search(ctx, "users", "")
			So(err, ShouldBeNil)
			So(records, ShouldHaveLength, 3)

			records, err = m.Search(ctx, "users", "3")
			So(err, ShouldBeNil)
			So(records, ShouldHaveLength, 1)
		})

		Convey("Create", func() {
			So(m.Create(ctx, "users", Record{"id": 4, "email": "d@x.com"}), ShouldBeNil)
			err := m.Create(ctx, "users", Record{"id": int64(4), "email": "e@x.com"})
			So(errors.Is(err, ErrDuplicateKey), ShouldBeTrue)
		})

		Convey("Update 和 Delete", func() {
			So(m.Update(ctx, "users", Record{"id": 2}, Record{"name": "Robert"}), ShouldBeNil)
			records, err := m.Find(ctx, "users", &query.TermQuery{Field: "id", Value: 2})
			So(err, ShouldBeNil)
			So(records[0]["name"], ShouldEqual, "Robert")

			So(m.Delete(ctx, "users", Record{"id": 2}), ShouldBeNil)
			So(m.Delete(ctx, "users", Record{"id": 2}), ShouldEqual, ErrRecordNotFound)
			So(m.Delete(ctx, "users", Record{}), ShouldEqual, ErrEmptyPrimary)
		})

		Convey("批量操作要么全部成功要么不生效", func() {
			So(m.BatchUpdate(ctx, "users", []Record{{"id": 1}, {"id": 9}}, Record{"name": "x"}), ShouldEqual, ErrRecordNotFound)
			So(m.BatchDelete(ctx, "users", []Record{{"id": 1}, {"id": 9}}), ShouldEqual, ErrRecordNotFound)
			records, err := m.Search(ctx, "users", "")
			So(err, ShouldBeNil)
			So(records, ShouldHaveLength, 3)
			So(records[0]["name"], ShouldEqual, "Alice")

			So(m.BatchUpdate(ctx, "users", []Record{{"id": 1}, {"id": 3}}, Record{"name": "x"}), ShouldBeNil)
			So(m.BatchDelete(ctx, "users", []Record{{"id": 1}, {"id": 2}}), ShouldBeNil)
			records, err = m.Search(ctx, "users", "")
			So(err, ShouldBeNil)
			So(records, ShouldHaveLength, 1)
			So(records[0]["name"], ShouldEqual, "x")
		})
	})
}
