package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/hatlonely/tablex/ref"
	"github.com/pkg/errors"
	. "github.com/smartystreets/goconvey/convey"
)

type failingStore[K comparable, V any] struct {
	Store[K, V]
	err error
}

func (s *failingStore[K, V]) Get(ctx context.Context, key K) (V, error) {
	var zero V
	return zero, s.err
}

func (s *failingStore[K, V]) Set(ctx context.Context, key K, value V, opts ...SetOption) error {
	return s.err
}

func newMapTiers(n int) []Store[string, cachedTable] {
	tiers := make([]Store[string, cachedTable], n)
	for i := range tiers {
		tier, err := NewMapStoreWithOptions[string, cachedTable](nil)
		So(err, ShouldBeNil)
		tiers[i] = tier
	}
	return tiers
}

func TestTieredStore(t *testing.T) {
	Convey("TieredStore", t, func() {
		ctx := context.Background()
		options := &TieredStoreOptions{WritePolicy: WriteThrough, Promote: true, PromoteTTL: time.Minute}

		Convey("基本行为", func() {
			testStoreBehavior(newTieredStore(newMapTiers(2), options))
		})

		Convey("写穿写入所有层", func() {
			tiers := newMapTiers(2)
			store := newTieredStore(tiers, options)
			So(store.Set(ctx, "users", cachedTable{Name: "users"}), ShouldBeNil)
			for _, tier := range tiers {
				value, err := tier.Get(ctx, "users")
				So(err, ShouldBeNil)
				So(value.Name, ShouldEqual, "users")
			}
		})

		Convey("下层命中时回填上层", func() {
			tiers := newMapTiers(2)
			store := newTieredStore(tiers, options)
			So(tiers[1].Set(ctx, "users", cachedTable{Name: "users"}), ShouldBeNil)

			_, err := tiers[0].Get(ctx, "users")
			So(err, ShouldEqual, ErrKeyNotFound)
			value, err := store.Get(ctx, "users")
			So(err, ShouldBeNil)
			So(value.Name, ShouldEqual, "users")
			_, err = tiers[0].Get(ctx, "users")
			So(err, ShouldBeNil)
		})

		Convey("关闭回填", func() {
			tiers := newMapTiers(2)
			store := newTieredStore(tiers, &TieredStoreOptions{WritePolicy: WriteThrough})
			So(tiers[1].Set(ctx, "users", cachedTable{Name: "users"}), ShouldBeNil)
			_, err := store.Get(ctx, "users")
			So(err, ShouldBeNil)
			_, err = tiers[0].Get(ctx, "users")
			So(err, ShouldEqual, ErrKeyNotFound)
		})

		Convey("写回在关闭前完成下层写入", func() {
			tiers := newMapTiers(3)
			store := newTieredStore(tiers, &TieredStoreOptions{WritePolicy: WriteBack})
			So(store.Set(ctx, "users", cachedTable{Name: "users"}), ShouldBeNil)
			_, err := tiers[0].Get(ctx, "users")
			So(err, ShouldBeNil)

			store.wg.Wait()
			for _, tier := range tiers[1:] {
				_, err := tier.Get(ctx, "users")
				So(err, ShouldBeNil)
			}
			So(store.Close(), ShouldBeNil)
		})

		Convey("条件写入由最后一层判断", func() {
			tiers := newMapTiers(2)
			store := newTieredStore(tiers, options)
			So(tiers[1].Set(ctx, "users", cachedTable{Name: "shared"}), ShouldBeNil)

			So(store.Set(ctx, "users", cachedTable{Name: "mine"}, WithIfNotExist()), ShouldEqual, ErrConditionFailed)
			_, err := tiers[0].Get(ctx, "users")
			So(err, ShouldEqual, ErrKeyNotFound)

			So(store.Set(ctx, "orders", cachedTable{Name: "orders"}, WithIfNotExist()), ShouldBeNil)
			_, err = tiers[0].Get(ctx, "orders")
			So(err, ShouldBeNil)
		})

		Convey("某一层出错时读取下一层", func() {
			tiers := newMapTiers(2)
			broken := &failingStore[string, cachedTable]{Store: tiers[0], err: errors.New("connection reset")}
			store := newTieredStore([]Store[string, cachedTable]{broken, tiers[1]}, options)

			So(tiers[1].Set(ctx, "users", cachedTable{Name: "users"}), ShouldBeNil)
			value, err := store.Get(ctx, "users")
			So(err, ShouldBeNil)
			So(value.Name, ShouldEqual, "users")

			_, err = store.Get(ctx, "missing")
			So(err.Error(), ShouldContainSubstring, "connection reset")

			err = store.Set(ctx, "users", cachedTable{})
			So(err.Error(), ShouldContainSubstring, "set tier 0 failed")
		})

		Convey("通过配置创建 freecache 加 redis", func() {
			server := miniredis.RunT(t)
			store, err := NewStoreWithOptions[string, cachedTable](&ref.TypeOptions{
				Type: "TieredStore",
				Options: map[string]any{
					"tiers": []any{
						map[string]any{"type": "FreeCacheStore", "options": map[string]any{"size": 1048576}},
						map[string]any{"type": "RedisStore", "options": map[string]any{"endpoint": server.Addr()}},
					},
				},
			})
			So(err, ShouldBeNil)
			tiered, ok := store.(*TieredStore[string, cachedTable])
			So(ok, ShouldBeTrue)
			So(tiered.tiers, ShouldHaveLength, 2)
			So(tiered.writePolicy, ShouldEqual, WriteThrough)
			So(tiered.promote, ShouldBeTrue)

			testStoreBehavior(store)
			So(store.Set(ctx, "users", cachedTable{Name: "users"}), ShouldBeNil)
			So(server.Exists("tablex:users"), ShouldBeTrue)
			So(store.Close(), ShouldBeNil)
		})

		Convey("非法配置", func() {
			_, err := NewTieredStoreWithOptions[string, cachedTable](nil)
			So(err, ShouldNotBeNil)
			_, err = NewTieredStoreWithOptions[string, cachedTable](&TieredStoreOptions{
				Tiers:       []*ref.TypeOptions{{Type: "MapStore"}},
				WritePolicy: "writeAround",
			})
			So(err, ShouldNotBeNil)
			_, err = NewTieredStoreWithOptions[string, cachedTable](&TieredStoreOptions{
				Tiers:       []*ref.TypeOptions{{Type: "MapStore"}, {Type: "PebbleStore"}},
				WritePolicy: WriteThrough,
			})
			So(err, ShouldNotBeNil)
		})
	})
}
