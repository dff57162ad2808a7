package workset

import (
	"testing"
	"time"

	"github.com/pkg/errors"
	. "github.com/smartystreets/goconvey/convey"
)

var fixedNow = time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

func usersColumns() []Column {
	return []Column{
		{Name: "id", Type: "INTEGER", PrimaryKey: true},
		{Name: "email", Type: "TEXT", Unique: true},
		{Name: "name", Type: "TEXT", Nullable: true},
	}
}

func usersRecords() []Record {
	return []Record{
		{"id": 1, "email": "a@x.com", "name": "A"},
		{"id": 2, "email": "b@x.com", "name": "B"},
	}
}

func newUsersStore() (*Store, *Lifecycle) {
	store := NewStore()
	l := NewLifecycle(store, func() time.Time { return fixedNow })
	_, err := l.CreateTable("users", KindTable, usersColumns())
	So(err, ShouldBeNil)
	t, _ := store.Table("users")
	t.Records = usersRecords()
	return store, l
}

func TestLifecycleTables(t *testing.T) {
	Convey("测试表的创建和删除", t, func() {
		store, l := newUsersStore()

		Convey("表名重复", func() {
			_, err := l.CreateTable("users", "", nil)
			So(errors.Is(err, ErrDuplicateTableName), ShouldBeTrue)
			So(store.Len(), ShouldEqual, 1)
		})

		Convey("表名为空", func() {
			_, err := l.CreateTable("  ", "", nil)
			So(errors.Is(err, ErrInvalidName), ShouldBeTrue)
		})

		Convey("列定义非法", func() {
			_, err := l.CreateTable("orders", "", []Column{{Name: "id"}, {Name: "id"}})
			So(errors.Is(err, ErrDuplicateColumnName), ShouldBeTrue)
			_, err = l.CreateTable("orders", "", []Column{{Name: ""}})
			So(errors.Is(err, ErrInvalidName), ShouldBeTrue)
			So(store.Has("orders"), ShouldBeFalse)
		})

		Convey("新表没有记录，类型默认为 table", func() {
			created, err := l.CreateTable("orders", "", []Column{{Name: "id", Type: "integer", PrimaryKey: true}, {Name: "note"}})
			So(err, ShouldBeNil)
			So(created.Kind, ShouldEqual, KindTable)
			So(created.RowCount(), ShouldEqual, 0)
			So(created.Columns[0].Type, ShouldEqual, "INTEGER")
			So(created.Columns[1].Type, ShouldEqual, "TEXT")
			So(store.Names(), ShouldResemble, []string{"users", "orders"})
		})

		Convey("删除表", func() {
			So(l.DeleteTable("users"), ShouldBeNil)
			So(store.Len(), ShouldEqual, 0)
			So(errors.Is(l.DeleteTable("users"), ErrTableNotFound), ShouldBeTrue)
		})
	})
}

func TestLifecycleColumns(t *testing.T) {
	Convey("测试列的修改", t, func() {
		store, l := newUsersStore()
		users, _ := store.Table("users")

		Convey("AddColumn 不修改已有记录", func() {
			So(l.AddColumn("users", Column{Name: "age", Type: "INTEGER"}), ShouldBeNil)
			So(users.Columns, ShouldHaveLength, 4)
			So(users.Records[0], ShouldNotContainKey, "age")

			err := l.AddColumn("users", Column{Name: "age"})
			So(errors.Is(err, ErrDuplicateColumnName), ShouldBeTrue)
		})

		Convey("UpdateColumn", func() {
			So(l.UpdateColumn("users", 2, Column{Name: "full_name", Type: "TEXT"}), ShouldBeNil)
			So(users.Columns[2].Name, ShouldEqual, "full_name")
			So(users.Records[0]["name"], ShouldEqual, "A")

			So(errors.Is(l.UpdateColumn("users", 3, Column{Name: "x"}), ErrColumnIndex), ShouldBeTrue)
			So(errors.Is(l.UpdateColumn("users", 2, Column{Name: "email"}), ErrDuplicateColumnName), ShouldBeTrue)
		})

		Convey("RemoveColumn", func() {
			So(l.RemoveColumn("users", 1), ShouldBeNil)
			So(users.Columns, ShouldHaveLength, 2)
			So(users.Columns[1].Name, ShouldEqual, "name")
			So(users.Records[0]["email"], ShouldEqual, "a@x.com")
			So(errors.Is(l.RemoveColumn("users", -1), ErrColumnIndex), ShouldBeTrue)
		})

		Convey("表不存在", func() {
			So(errors.Is(l.AddColumn("missing", Column{Name: "x"}), ErrTableNotFound), ShouldBeTrue)
		})
	})
}

func TestLifecycleRecords(t *testing.T) {
	Convey("测试单条记录的增删改", t, func() {
		store, l := newUsersStore()
		users, _ := store.Table("users")

		Convey("CreateRecord 合成 id 并写入创建时间", func() {
			record, err := l.CreateRecord("users", Record{"email": "c@x.com", "name": "C"})
			So(err, ShouldBeNil)
			So(record["id"], ShouldEqual, int64(3))
			So(record[CreatedAtField], ShouldEqual, "2024-05-01T08:00:00Z")
			So(users.RowCount(), ShouldEqual, 3)
			So(users.RowCount(), ShouldEqual, len(users.Records))
		})

		Convey("CreateRecord 可以指定 id", func() {
			record, err := l.CreateRecord("users", Record{"id": 10, "email": "c@x.com"})
			So(err, ShouldBeNil)
			So(record["id"], ShouldEqual, 10)

			record, err = l.CreateRecord("users", Record{"email": "d@x.com"})
			So(err, ShouldBeNil)
			So(record["id"], ShouldEqual, int64(11))
		})

		Convey("CreateRecord 主键或唯一列冲突", func() {
			_, err := l.CreateRecord("users", Record{"id": 1, "email": "z@x.com"})
			So(errors.Is(err, ErrUniqueConstraint), ShouldBeTrue)
			_, err = l.CreateRecord("users", Record{"email": "a@x.com"})
			So(errors.Is(err, ErrUniqueConstraint), ShouldBeTrue)
			So(users.RowCount(), ShouldEqual, 2)
		})

		Convey("多列主键只有整体相同才冲突", func() {
			items, err := l.CreateTable("order_items", "", []Column{
				{Name: "order_id", Type: "INTEGER", PrimaryKey: true},
				{Name: "product_id", Type: "INTEGER", PrimaryKey: true},
				{Name: "qty", Type: "INTEGER"},
			})
			So(err, ShouldBeNil)

			_, err = l.CreateRecord("order_items", Record{"order_id": 1, "product_id": 1, "qty": 2})
			So(err, ShouldBeNil)
			_, err = l.CreateRecord("order_items", Record{"order_id": 1, "product_id": 2, "qty": 1})
			So(err, ShouldBeNil)
			_, err = l.CreateRecord("order_items", Record{"order_id": 2, "product_id": 1})
			So(err, ShouldBeNil)
			So(items.RowCount(), ShouldEqual, 3)

			_, err = l.CreateRecord("order_items", Record{"order_id": 1, "product_id": int64(2)})
			So(errors.Is(err, ErrUniqueConstraint), ShouldBeTrue)
			So(items.RowCount(), ShouldEqual, 3)
		})

		Convey("文本唯一列按原值比较", func() {
			codes, err := l.CreateTable("codes", "", []Column{
				{Name: "id", Type: "INTEGER", PrimaryKey: true},
				{Name: "code", Type: "TEXT", Unique: true},
			})
			So(err, ShouldBeNil)

			_, err = l.CreateRecord("codes", Record{"code": "1.0"})
			So(err, ShouldBeNil)
			_, err = l.CreateRecord("codes", Record{"code": "01"})
			So(err, ShouldBeNil)
			_, err = l.CreateRecord("codes", Record{"code": "01"})
			So(errors.Is(err, ErrUniqueConstraint), ShouldBeTrue)
			So(codes.RowCount(), ShouldEqual, 2)
		})

		Convey("UpdateRecord", func() {
			record, err := l.UpdateRecord("users", "2", Record{"name": "Bee"})
			So(err, ShouldBeNil)
			So(record["name"], ShouldEqual, "Bee")
			So(users.Records[1]["name"], ShouldEqual, "Bee")

			_, err = l.UpdateRecord("users", "2", Record{"id": 5})
			So(errors.Is(err, ErrImmutableColumn), ShouldBeTrue)

			_, err = l.UpdateRecord("users", "2", Record{"id": 2, "name": "same id"})
			So(err, ShouldBeNil)

			_, err = l.UpdateRecord("users", "2", Record{"email": "a@x.com"})
			So(errors.Is(err, ErrUniqueConstraint), ShouldBeTrue)
			So(users.Records[1]["email"], ShouldEqual, "b@x.com")

			_, err = l.UpdateRecord("users", "9", Record{"name": "x"})
			So(errors.Is(err, ErrRecordNotFound), ShouldBeTrue)
		})

		Convey("DeleteRecord", func() {
			So(l.DeleteRecord("users", "1"), ShouldBeNil)
			So(users.RowCount(), ShouldEqual, 1)
			So(errors.Is(l.DeleteRecord("users", "1"), ErrRecordNotFound), ShouldBeTrue)
		})

		Convey("没有主键的表不能单条删除", func() {
			logs, err := l.CreateTable("logs", "", []Column{{Name: "msg"}})
			So(err, ShouldBeNil)
			logs.Records = []Record{{"msg": "hello"}}
			err = l.DeleteRecord("logs", `{"msg":"hello"}`)
			So(errors.Is(err, ErrNoPrimaryKey), ShouldBeTrue)
			So(logs.RowCount(), ShouldEqual, 1)
		})
	})
}

func TestMaterialize(t *testing.T) {
	Convey("测试 Materialize", t, func() {
		store, l := newUsersStore()

		err := l.Materialize([]*Table{
			{Name: "events", Records: []Record{{"b": 1, "a": "x"}}},
			{Name: "orders", Kind: KindView, Columns: []Column{{Name: "id", PrimaryKey: true}}},
		})
		So(err, ShouldBeNil)
		So(store.Names(), ShouldResemble, []string{"events", "orders"})

		events, _ := store.Table("events")
		So(events.Kind, ShouldEqual, KindTable)
		So(events.Columns, ShouldResemble, []Column{
			{Name: "a", Type: "TEXT", Nullable: true},
			{Name: "b", Type: "TEXT", Nullable: true},
		})

		orders, _ := store.Table("orders")
		So(orders.Records, ShouldNotBeNil)
		So(orders.RowCount(), ShouldEqual, 0)

		Convey("表名重复时不修改", func() {
			err := l.Materialize([]*Table{{Name: "a"}, {Name: "a"}})
			So(errors.Is(err, ErrDuplicateTableName), ShouldBeTrue)
			So(store.Names(), ShouldResemble, []string{"events", "orders"})
		})
	})
}
