package cache

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/variantgroup/dashboard/internal/adapters/objectstore"
	"github.com/variantgroup/dashboard/pkg/logger"
)

func init() {
	_ = logger.Init()
}

type params struct {
	From  string   `json:"from"`
	Plans []string `json:"plans"`
}

type failingStore struct {
	objectstore.Store
}

func (failingStore) Get(context.Context, string) ([]byte, error) {
	return nil, errors.New("unavailable")
}

func (failingStore) Put(context.Context, string, []byte, string) error {
	return errors.New("unavailable")
}

func TestKey(t *testing.T) {
	Convey("Given request parameters", t, func() {
		a, err := Key("pivot", params{From: "2024-01-01", Plans: []string{"p1"}})
		So(err, ShouldBeNil)
		b, _ := Key("pivot", params{From: "2024-01-01", Plans: []string{"p1"}})
		c, _ := Key("chart", params{From: "2024-01-01", Plans: []string{"p1"}})
		d, _ := Key("pivot", params{From: "2024-01-02", Plans: []string{"p1"}})

		So(len(a), ShouldEqual, 64)
		So(a, ShouldEqual, b)
		So(a, ShouldNotEqual, c)
		So(a, ShouldNotEqual, d)

		_, err = Key("pivot", make(chan int))
		So(errors.Is(err, ErrEncode), ShouldBeTrue)
	})
}

func TestCache(t *testing.T) {
	Convey("Given a cache over a memory store", t, func() {
		ctx := context.Background()
		now := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
		store := objectstore.NewMemory()
		c := New(store, WithPrefix("dashboard-cache"), WithTTL(time.Hour), WithClock(func() time.Time { return now }))
		p := params{From: "2024-01-01", Plans: []string{"p1", "p2"}}

		Convey("A miss reports false", func() {
			var out []int
			hit, err := c.Get(ctx, "pivot", p, &out)
			So(err, ShouldBeNil)
			So(hit, ShouldBeFalse)
		})

		Convey("A stored value is returned and laid out under results/", func() {
			So(c.Put(ctx, "pivot", p, []int{1, 2, 3}), ShouldBeNil)

			var out []int
			hit, err := c.Get(ctx, "pivot", p, &out)
			So(err, ShouldBeNil)
			So(hit, ShouldBeTrue)
			So(out, ShouldResemble, []int{1, 2, 3})

			names, _ := store.List(ctx, "")
			So(len(names), ShouldEqual, 1)
			So(strings.HasPrefix(names[0], "dashboard-cache/results/pivot/"), ShouldBeTrue)
			So(strings.HasSuffix(names[0], ".json"), ShouldBeTrue)

			Convey("And expires after the TTL", func() {
				now = now.Add(2 * time.Hour)
				hit, err := c.Get(ctx, "pivot", p, &out)
				So(err, ShouldBeNil)
				So(hit, ShouldBeFalse)
			})
		})

		Convey("GetOrLoad loads once then serves from the cache", func() {
			calls := 0
			load := func(context.Context) ([]string, error) {
				calls++
				return []string{"x"}, nil
			}
			v1, err := GetOrLoad(ctx, c, "plans", "Active", load)
			So(err, ShouldBeNil)
			v2, err := GetOrLoad(ctx, c, "plans", "Active", load)
			So(err, ShouldBeNil)
			So(v1, ShouldResemble, v2)
			So(calls, ShouldEqual, 1)
		})

		Convey("GetOrLoad passes load errors through without caching", func() {
			_, err := GetOrLoad(ctx, c, "plans", "Active", func(context.Context) ([]string, error) {
				return nil, errors.New("warehouse down")
			})
			So(err, ShouldNotBeNil)
			names, _ := store.List(ctx, "")
			So(names, ShouldBeEmpty)
		})

		Convey("Invalidate removes results but keeps metadata", func() {
			So(c.Put(ctx, "pivot", p, 1), ShouldBeNil)
			So(c.Put(ctx, "chart", p, 2), ShouldBeNil)
			So(c.StampGCS(ctx, now), ShouldBeNil)

			n, err := c.Invalidate(ctx)
			So(err, ShouldBeNil)
			So(n, ShouldEqual, 2)

			names, _ := store.List(ctx, "")
			So(names, ShouldResemble, []string{"dashboard-cache/meta/cache_info.json"})
		})

		Convey("Refresh stamps are merged into the metadata", func() {
			info, err := c.Info(ctx)
			So(err, ShouldBeNil)
			So(info.LastBQRefresh, ShouldBeNil)

			So(c.StampBigQuery(ctx, now), ShouldBeNil)
			So(c.StampGCS(ctx, now.Add(time.Minute)), ShouldBeNil)

			info, err = c.Info(ctx)
			So(err, ShouldBeNil)
			So(info.LastBQRefresh.Equal(now), ShouldBeTrue)
			So(info.LastGCSRefresh.Equal(now.Add(time.Minute)), ShouldBeTrue)
		})

		Convey("Corrupt metadata is replaced on the next stamp", func() {
			So(store.Put(ctx, "dashboard-cache/meta/cache_info.json", []byte("{"), ""), ShouldBeNil)
			_, err := c.Info(ctx)
			So(errors.Is(err, ErrDecode), ShouldBeTrue)

			So(c.StampGCS(ctx, now), ShouldBeNil)
			info, err := c.Info(ctx)
			So(err, ShouldBeNil)
			So(info.LastGCSRefresh, ShouldNotBeNil)
		})
	})

	Convey("Given an unavailable store", t, func() {
		c := New(failingStore{Store: objectstore.NewMemory()})
		v, err := GetOrLoad(context.Background(), c, "plans", nil, func(context.Context) (int, error) { return 7, nil })
		So(err, ShouldBeNil)
		So(v, ShouldEqual, 7)
	})
}
