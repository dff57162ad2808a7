package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	. "github.com/bytedance/mockey"
	"github.com/hatlonely/tablex/ref"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	. "github.com/smartystreets/goconvey/convey"
)

type cachedTable struct {
	Name    string           `msgpack:"name" json:"name"`
	Records []map[string]any `msgpack:"records" json:"records"`
}

func testStoreBehavior(store Store[string, cachedTable]) {
	ctx := context.Background()
	table := cachedTable{Name: "users", Records: []map[string]any{{"id": int64(1), "email": "a@x.com"}}}

	_, err := store.Get(ctx, "users")
	So(errors.Is(err, ErrKeyNotFound), ShouldBeTrue)

	So(store.Set(ctx, "users", table), ShouldBeNil)
	value, err := store.Get(ctx, "users")
	So(err, ShouldBeNil)
	So(value.Name, ShouldEqual, "users")
	So(value.Records, ShouldHaveLength, 1)
	So(value.Records[0]["email"], ShouldEqual, "a@x.com")

	So(store.Set(ctx, "users", table, WithIfNotExist()), ShouldEqual, ErrConditionFailed)

	So(store.Del(ctx, "users"), ShouldBeNil)
	So(store.Del(ctx, "users"), ShouldBeNil)
	_, err = store.Get(ctx, "users")
	So(errors.Is(err, ErrKeyNotFound), ShouldBeTrue)
}

func TestMapStore(t *testing.T) {
	Convey("MapStore", t, func() {
		store, err := NewMapStoreWithOptions[string, cachedTable](nil)
		So(err, ShouldBeNil)
		testStoreBehavior(store)

		Convey("过期的键读取不到", func() {
			now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
			store.now = func() time.Time { return now }
			So(store.Set(context.Background(), "users", cachedTable{Name: "users"}, WithExpiration(time.Minute)), ShouldBeNil)

			_, err := store.Get(context.Background(), "users")
			So(err, ShouldBeNil)

			now = now.Add(time.Minute)
			_, err = store.Get(context.Background(), "users")
			So(err, ShouldEqual, ErrKeyNotFound)

			// 过期后可以重新 SetNX
			So(store.Set(context.Background(), "users", cachedTable{Name: "users"}, WithIfNotExist()), ShouldBeNil)
		})
	})
}

func TestFreeCacheStore(t *testing.T) {
	Convey("FreeCacheStore", t, func() {
		store, err := NewFreeCacheStoreWithOptions[string, cachedTable](&FreeCacheStoreOptions{
			Size:          1024 * 1024,
			KeySerializer: "msgpack",
			ValSerializer: "msgpack",
		})
		So(err, ShouldBeNil)
		testStoreBehavior(store)
		So(store.Close(), ShouldBeNil)

		Convey("非法的序列化器", func() {
			_, err := NewFreeCacheStoreWithOptions[string, cachedTable](&FreeCacheStoreOptions{Size: 1024 * 1024, ValSerializer: "xml"})
			So(err, ShouldNotBeNil)
		})
	})
}

func TestRedisStore(t *testing.T) {
	Convey("RedisStore", t, func() {
		server := miniredis.RunT(t)

		store, err := NewRedisStoreWithOptions[string, cachedTable](&RedisStoreOptions{
			Endpoint:      server.Addr(),
			Prefix:        "tablex:",
			ValSerializer: "json",
		})
		So(err, ShouldBeNil)
		testStoreBehavior(store)

		Convey("键带前缀并支持过期", func() {
			So(store.Set(context.Background(), "orders", cachedTable{Name: "orders"}, WithExpiration(time.Minute)), ShouldBeNil)
			So(server.Exists("tablex:orders"), ShouldBeTrue)
			server.FastForward(2 * time.Minute)
			_, err := store.Get(context.Background(), "orders")
			So(err, ShouldEqual, ErrKeyNotFound)
		})

		So(store.Close(), ShouldBeNil)
	})

	Convey("缺少地址", t, func() {
		_, err := NewRedisStoreWithOptions[string, cachedTable](&RedisStoreOptions{})
		So(err, ShouldNotBeNil)
	})

	PatchConvey("Ping 失败", t, func() {
		statusCmd := redis.NewStatusCmd(context.Background())
		statusCmd.SetErr(errors.New("connection refused"))
		Mock((*redis.Client).Ping).Return(statusCmd).Build()

		_, err := NewRedisStoreWithOptions[string, cachedTable](&RedisStoreOptions{Endpoint: "localhost:6379"})
		So(err, ShouldNotBeNil)
		So(err.Error(), ShouldContainSubstring, "Ping failed")
	})
}

func TestNewStoreWithOptions(t *testing.T) {
	Convey("根据配置创建存储", t, func() {
		store, err := NewStoreWithOptions[string, cachedTable](&ref.TypeOptions{
			Type:    "MapStore",
			Options: map[string]any{"defaultTTL": "1m"},
		})
		So(err, ShouldBeNil)
		_, ok := store.(*MapStore[string, cachedTable])
		So(ok, ShouldBeTrue)

		store, err = NewStoreWithOptions[string, cachedTable](&ref.TypeOptions{
			Type:    "FreeCacheStore",
			Options: map[string]any{"size": 1048576},
		})
		So(err, ShouldBeNil)
		testStoreBehavior(store)

		// 不同的 K、V 组合可以共存
		other, err := NewStoreWithOptions[string, []byte](&ref.TypeOptions{Type: "MapStore"})
		So(err, ShouldBeNil)
		So(other, ShouldNotBeNil)

		_, err = NewStoreWithOptions[string, cachedTable](&ref.TypeOptions{Type: "PebbleStore"})
		So(err, ShouldNotBeNil)

		_, err = NewStoreWithOptions[string, cachedTable](nil)
		So(err, ShouldNotBeNil)
	})
}
