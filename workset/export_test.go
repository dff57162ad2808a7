package workset

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/hatlonely/tablex/kv/serializer"
	. "github.com/smartystreets/goconvey/convey"
	"go.mongodb.org/mongo-driver/bson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

func TestExport(t *testing.T) {
	Convey("测试 Export", t, func() {
		users := newUsersTable()
		before := copyRecords(users.Records)
		now := time.Date(2024, 5, 1, 23, 0, 0, 0, time.UTC)

		Convey("JSON 按表内顺序导出选中的记录", func() {
			artifact, err := Export(users, []string{"2", "1"}, "", now)
			So(err, ShouldBeNil)
			So(artifact.Name, ShouldEqual, "users_export_2024-05-01.json")
			So(artifact.ContentType, ShouldEqual, "application/json")

			var exported []map[string]any
			So(json.Unmarshal(artifact.Data, &exported), ShouldBeNil)
			So(exported, ShouldHaveLength, 2)
			So(exported[0]["email"], ShouldEqual, "a@x.com")
			So(users.Records, ShouldResemble, before)
		})

		Convey("空选择导出空数组", func() {
			artifact, err := Export(users, nil, FormatJSON, now)
			So(err, ShouldBeNil)
			So(string(artifact.Data), ShouldEqual, "[]")
		})

		Convey("msgpack", func() {
			artifact, err := Export(users, []string{"1"}, FormatMsgPack, now)
			So(err, ShouldBeNil)
			So(artifact.Name, ShouldEqual, "users_export_2024-05-01.msgpack")
			records, err := serializer.NewMsgPackSerializer[[]map[string]any]().Deserialize(artifact.Data)
			So(err, ShouldBeNil)
			So(records, ShouldHaveLength, 1)
			So(records[0]["name"], ShouldEqual, "A")
		})

		Convey("bson", func() {
			artifact, err := Export(users, []string{"1", "2"}, FormatBSON, now)
			So(err, ShouldBeNil)
			So(artifact.Name, ShouldEqual, "users_export_2024-05-01.bson")
			var doc struct {
				Records []bson.M `bson:"records"`
			}
			So(bson.Unmarshal(artifact.Data, &doc), ShouldBeNil)
			So(doc.Records, ShouldHaveLength, 2)
			So(doc.Records[1]["email"], ShouldEqual, "b@x.com")
		})

		Convey("protobuf", func() {
			users.Records[0]["joined"] = now
			users.Records[0]["score"] = json.Number("1.5")
			artifact, err := Export(users, []string{"1"}, FormatProtobuf, now)
			So(err, ShouldBeNil)
			So(artifact.Name, ShouldEqual, "users_export_2024-05-01.pb")

			list := &structpb.ListValue{}
			So(proto.Unmarshal(artifact.Data, list), ShouldBeNil)
			So(list.Values, ShouldHaveLength, 1)
			fields := list.Values[0].GetStructValue().AsMap()
			So(fields["email"], ShouldEqual, "a@x.com")
			So(fields["joined"], ShouldEqual, "2024-05-01T23:00:00Z")
			So(fields["score"], ShouldEqual, 1.5)
		})

		Convey("不支持的格式", func() {
			_, err := Export(users, nil, "xml", now)
			So(err, ShouldNotBeNil)
		})
	})
}
