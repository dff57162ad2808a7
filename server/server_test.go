package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hatlonely/tablex/log/logger"
	"github.com/hatlonely/tablex/rdb"
	"github.com/hatlonely/tablex/rdb/database"
	"github.com/prometheus/client_golang/prometheus"
	. "github.com/smartystreets/goconvey/convey"
)

func newTestServer(registry *prometheus.Registry) *Server {
	memory, err := database.NewMemoryWithOptions(&database.MemoryOptions{
		Tables: []database.MemoryTableOptions{{
			Name: "users",
			Kind: database.KindTable,
			Columns: []database.Column{
				{Name: "id", Type: "INTEGER", PrimaryKey: true},
				{Name: "email", Type: "TEXT", Unique: true},
				{Name: "name", Type: "TEXT", Nullable: true},
			},
			Records: []map[string]any{
				{"id": 1, "email": "a@x.com", "name": "Alice"},
				{"id": 2, "email": "b@x.com", "name": "Bob"},
			},
		}},
	})
	So(err, ShouldBeNil)

	manager, err := rdb.NewManagerWithOptions(&rdb.ManagerOptions{FetchLimit: 100},
		rdb.WithLogger(logger.Nop{}),
		rdb.WithRegisterer(registry),
		rdb.WithDriver("local", memory),
	)
	So(err, ShouldBeNil)

	s, err := NewServerWithOptions(manager, nil, WithLogger(logger.Nop{}), WithGatherer(registry))
	So(err, ShouldBeNil)
	return s
}

func do(s *Server, method string, path string, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func decode(w *httptest.ResponseRecorder) map[string]any {
	var v map[string]any
	So(json.Unmarshal(w.Body.Bytes(), &v), ShouldBeNil)
	return v
}

func listNames(s *Server, query string) []string {
	w := do(s, http.MethodGet, "/api/db/local/table/users/records"+query, "")
	So(w.Code, ShouldEqual, http.StatusOK)
	var names []string
	for _, record := range decode(w)["records"].([]any) {
		names = append(names, record.(map[string]any)["name"].(string))
	}
	return names
}

func TestNewServerWithOptions(t *testing.T) {
	Convey("测试 NewServerWithOptions", t, func() {
		_, err := NewServerWithOptions(nil, nil)
		So(err, ShouldNotBeNil)

		s := newTestServer(prometheus.NewRegistry())
		So(s.options.Addr, ShouldEqual, ":8080")
		So(s.options.MaxLimit, ShouldEqual, 1000)

		manager, err := rdb.NewManagerWithOptions(nil, rdb.WithRegisterer(prometheus.NewRegistry()))
		So(err, ShouldBeNil)
		_, err = NewServerWithOptions(manager, &Options{MaxBodyBytes: 1, MaxLimit: 0})
		So(err, ShouldNotBeNil)
	})
}

func TestServerRead(t *testing.T) {
	Convey("读取接口", t, func() {
		registry := prometheus.NewRegistry()
		s := newTestServer(registry)

		Convey("健康检查", func() {
			w := do(s, http.MethodGet, "/healthz", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(decode(w)["status"], ShouldEqual, "ok")
		})

		Convey("指标", func() {
			counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "tablex_test_total", Help: "test"})
			registry.MustRegister(counter)
			counter.Inc()
			w := do(s, http.MethodGet, "/metrics", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, "tablex_test_total 1")
		})

		Convey("列出表", func() {
			w := do(s, http.MethodGet, "/api/db/local/tables", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			var body struct {
				Tables []map[string]any `json:"tables"`
			}
			So(json.Unmarshal(w.Body.Bytes(), &body), ShouldBeNil)
			So(body.Tables, ShouldHaveLength, 1)
			So(body.Tables[0]["name"], ShouldEqual, "users")
			So(body.Tables[0]["type"], ShouldEqual, "table")
			So(body.Tables[0], ShouldNotContainKey, "kind")
			So(body.Tables[0]["columns"], ShouldHaveLength, 3)
			column := body.Tables[0]["columns"].([]any)[0].(map[string]any)
			So(column["primaryKey"], ShouldEqual, true)
			So(column["foreignKey"], ShouldEqual, false)
		})

		Convey("未知连接返回 404", func() {
			w := do(s, http.MethodGet, "/api/db/missing/tables", "")
			So(w.Code, ShouldEqual, http.StatusNotFound)
			So(decode(w)["message"], ShouldContainSubstring, "missing")
			So(w.Header().Get("Content-Type"), ShouldEqual, "application/json")
		})

		Convey("未知表返回 404", func() {
			w := do(s, http.MethodGet, "/api/db/local/table/missing/records", "")
			So(w.Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("分页和搜索", func() {
			So(listNames(s, ""), ShouldResemble, []string{"Alice", "Bob"})
			So(listNames(s, "?offset=1&limit=1"), ShouldResemble, []string{"Bob"})
			So(listNames(s, "?search=BOB"), ShouldResemble, []string{"Bob"})
			So(listNames(s, "?search=nobody"), ShouldBeEmpty)

			w := do(s, http.MethodGet, "/api/db/local/table/users/records?limit=5000", "")
			So(decode(w)["limit"], ShouldEqual, float64(1000))
		})

		Convey("非法分页参数", func() {
			w := do(s, http.MethodGet, "/api/db/local/table/users/records?limit=abc", "")
			So(w.Code, ShouldEqual, http.StatusBadRequest)
			w = do(s, http.MethodGet, "/api/db/local/table/users/records?offset=-1", "")
			So(w.Code, ShouldEqual, http.StatusBadRequest)
		})
	})
}

func TestServerWrite(t *testing.T) {
	Convey("写入接口", t, func() {
		s := newTestServer(prometheus.NewRegistry())
		path := "/api/db/local/table/users/records"

		Convey("创建记录", func() {
			w := do(s, http.MethodPost, path, `{"id": 3, "email": "c@x.com", "name": "Carol"}`)
			So(w.Code, ShouldEqual, http.StatusCreated)
			So(listNames(s, ""), ShouldResemble, []string{"Alice", "Bob", "Carol"})

			w = do(s, http.MethodPost, path, `{"id": 3, "email": "d@x.com", "name": "Dup"}`)
			So(w.Code, ShouldEqual, http.StatusConflict)
			So(decode(w)["error"], ShouldEqual, "Duplicate value")

			w = do(s, http.MethodPost, path, `{}`)
			So(w.Code, ShouldEqual, http.StatusBadRequest)

			w = do(s, http.MethodPost, path, `not json`)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("更新记录", func() {
			w := do(s, http.MethodPut, path, `{"pk": {"id": 1}, "fields": {"name": "Alicia"}}`)
			So(w.Code, ShouldEqual, http.StatusOK)
			So(listNames(s, ""), ShouldResemble, []string{"Alicia", "Bob"})

			w = do(s, http.MethodPut, path, `{"pk": {"id": 99}, "fields": {"name": "Nobody"}}`)
			So(w.Code, ShouldEqual, http.StatusNotFound)

			w = do(s, http.MethodPut, path, `{"pk": {"id": 1}, "fields": {"id": 5}}`)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
			So(decode(w)["error"], ShouldEqual, "Cannot edit")

			w = do(s, http.MethodPut, path, `{"pk": {"id": 1}, "fields": {"id": 1, "name": "Al"}}`)
			So(w.Code, ShouldEqual, http.StatusOK)

			w = do(s, http.MethodPut, path, `{"pk": {"id": 1}, "fields": {}}`)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
			So(decode(w)["message"], ShouldEqual, "Invalid JSON for update data.")

			w = do(s, http.MethodPut, path, `{"fields": {"name": "x"}}`)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("删除记录", func() {
			w := do(s, http.MethodDelete, path, `{"pk": {"id": 2}}`)
			So(w.Code, ShouldEqual, http.StatusOK)
			So(listNames(s, ""), ShouldResemble, []string{"Alice"})

			w = do(s, http.MethodDelete, path, `{"pk": {"id": 2}}`)
			So(w.Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("批量更新", func() {
			w := do(s, http.MethodPost, path+"/bulk-update", `{"pks": [{"id": 1}, {"id": 2}], "patch": {"name": "Same"}}`)
			So(w.Code, ShouldEqual, http.StatusOK)
			So(decode(w)["count"], ShouldEqual, float64(2))
			So(listNames(s, ""), ShouldResemble, []string{"Same", "Same"})

			w = do(s, http.MethodPost, path+"/bulk-update", `{"pks": [{"id": 1}], "patch": {"id": 9}}`)
			So(w.Code, ShouldEqual, http.StatusBadRequest)

			w = do(s, http.MethodPost, path+"/bulk-update", `{"pks": [], "patch": {"name": "x"}}`)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("批量删除", func() {
			w := do(s, http.MethodPost, path+"/bulk-delete", `{"pks": [{"id": 1}, {"id": 2}]}`)
			So(w.Code, ShouldEqual, http.StatusOK)
			So(listNames(s, ""), ShouldBeEmpty)

			w = do(s, http.MethodPost, path+"/bulk-delete", `{"pks": [{"id": 1}]}`)
			So(w.Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("请求体超过上限", func() {
			s.options.MaxBodyBytes = 8
			w := do(s, http.MethodPost, path, `{"id": 3, "email": "c@x.com"}`)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
		})
	})
}

func TestStatusOf(t *testing.T) {
	Convey("错误到状态码", t, func() {
		So(statusOf(errBadRequest), ShouldEqual, http.StatusBadRequest)
		So(statusOf(rdb.ErrConnectionNotFound), ShouldEqual, http.StatusNotFound)
		So(statusOf(http.ErrHandlerTimeout), ShouldEqual, http.StatusInternalServerError)
	})
}
