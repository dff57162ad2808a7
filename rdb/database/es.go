package database

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"github.com/hatlonely/tablex/kv/serializer"
	"github.com/hatlonely/tablex/rdb/query"
	"github.com/pkg/errors"
	"github.com/spf13/cast"
)

// esBody 请求体编码，响应和 bulk 请求按流处理，仍直接使用 encoding/json
var esBody = serializer.NewJSONSerializer[map[string]any]()

// ESOptions Elasticsearch连接选项
type ESOptions struct {
	Addresses  []string      `cfg:"addresses" def:"http://localhost:9200"`
	Username   string        `cfg:"username"`
	Password   string        `cfg:"password"`
	APIKey     string        `cfg:"apiKey"`
	Timeout    time.Duration `cfg:"timeout" def:"30s"`
	MaxRetries int           `cfg:"maxRetries" def:"3"`
	// 写操作的刷新策略：true、false、wait_for
	Refresh string `cfg:"refresh" def:"wait_for"`
	// 列表查询的默认条数
	DefaultLimit int `cfg:"defaultLimit" def:"100"`
}

// ES Elasticsearch 驱动，索引以 collection 类型的表暴露，_id 为主键
type ES struct {
	client       *elasticsearch.Client
	refresh      string
	defaultLimit int
}

// NewESWithOptions 创建Elasticsearch实例
func NewESWithOptions(opts *ESOptions) (*ES, error) {
	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: opts.Addresses,
		Username:  opts.Username,
		Password:  opts.Password,
		APIKey:    opts.APIKey,
		Transport: &http.Transport{
			MaxIdleConnsPerHost:   10,
			ResponseHeaderTimeout: opts.Timeout,
		},
		MaxRetries: opts.MaxRetries,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create elasticsearch client")
	}

	res, err := client.Info()
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to elasticsearch")
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, errors.Errorf("elasticsearch connection error: %s", res.String())
	}

	return &ES{
		client:       client,
		refresh:      opts.Refresh,
		defaultLimit: opts.DefaultLimit,
	}, nil
}

// do 执行请求并解码响应，404 转换为 notFound
func (es *ES) do(ctx context.Context, req esapi.Request, notFound error, out any) error {
	res, err := req.Do(ctx, es.client)
	if err != nil {
		return errors.Wrap(err, "elasticsearch request failed")
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound && notFound != nil {
		return notFound
	}
	if res.IsError() {
		return errors.Errorf("elasticsearch error: %s", res.String())
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, res.Body)
		return nil
	}
	decoder := json.NewDecoder(res.Body)
	decoder.UseNumber()
	if err := decoder.Decode(out); err != nil {
		return errors.Wrap(err, "failed to decode response")
	}
	return nil
}

func (es *ES) ListTables(ctx context.Context) ([]TableInfo, error) {
	var indices []struct {
		Index string `json:"index"`
	}
	if err := es.do(ctx, esapi.CatIndicesRequest{Format: "json"}, nil, &indices); err != nil {
		return nil, err
	}

	var tables []TableInfo
	for _, index := range indices {
		// 跳过系统索引
		if strings.HasPrefix(index.Index, ".") {
			continue
		}
		columns, err := es.columns(ctx, index.Index)
		if err != nil {
			return nil, err
		}
		tables = append(tables, TableInfo{Name: index.Index, Kind: KindCollection, Columns: columns})
	}
	sort.Slice(tables, func(i, j int) bool { return tables[i].Name < tables[j].Name })
	return tables, nil
}

type esMapping map[string]struct {
	Mappings struct {
		Properties map[string]struct {
			Type string `json:"type"`
		} `json:"properties"`
	} `json:"mappings"`
}

func (es *ES) columns(ctx context.Context, index string) ([]Column, error) {
	var mapping esMapping
	if err := es.do(ctx, esapi.IndicesGetMappingRequest{Index: []string{index}}, ErrTableNotFound, &mapping); err != nil {
		return nil, err
	}

	columns := []Column{{Name: "_id", Type: "KEYWORD", PrimaryKey: true}}
	properties := mapping[index].Mappings.Properties
	names := make([]string, 0, len(properties))
	for name := range properties {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		typ := properties[name].Type
		if typ == "" {
			typ = "object"
		}
		columns = append(columns, Column{Name: name, Type: strings.ToUpper(typ), Nullable: true})
	}
	return columns, nil
}

func (es *ES) Find(ctx context.Context, table string, q query.Query, opts ...QueryOption) ([]Record, error) {
	queryOpts := applyQueryOptions(es.defaultLimit, opts)

	searchBody := map[string]any{}
	if q != nil {
		searchBody["query"] = q.ToES()
	} else {
		searchBody["query"] = map[string]any{"match_all": map[string]any{}}
	}
	if queryOpts.Limit > 0 {
		searchBody["size"] = queryOpts.Limit
	}
	if queryOpts.Offset > 0 {
		searchBody["from"] = queryOpts.Offset
	}

	body, err := esBody.Serialize(searchBody)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal search body")
	}

	var result struct {
		Hits struct {
			Hits []struct {
				ID     string         `json:"_id"`
				Source map[string]any `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	req := esapi.SearchRequest{Index: []string{table}, Body: bytes.NewReader(body)}
	if err := es.do(ctx, req, ErrTableNotFound, &result); err != nil {
		return nil, err
	}

	records := make([]Record, 0, len(result.Hits.Hits))
	for _, hit := range result.Hits.Hits {
		record := Record{}
		for k, v := range hit.Source {
			record[k] = v
		}
		record["_id"] = hit.ID
		records = append(records, record)
	}
	return records, nil
}

// Search 在 text 和 keyword 字段上做 wildcard 匹配
func (es *ES) Search(ctx context.Context, table string, term string, opts ...QueryOption) ([]Record, error) {
	columns, err := es.columns(ctx, table)
	if err != nil {
		return nil, err
	}
	var fields []string
	for _, column := range columns {
		if column.Type == "TEXT" || column.Type == "KEYWORD" {
			fields = append(fields, column.Name)
		}
	}
	return es.Find(ctx, table, query.Search(term, fields), opts...)
}

func docID(pk Record) (string, error) {
	if id, ok := pk["_id"]; ok && id != nil {
		return cast.ToString(id), nil
	}
	if id, ok := pk["id"]; ok && id != nil {
		return cast.ToString(id), nil
	}
	return "", errors.WithMessage(ErrEmptyPrimary, "document id not found in primary key")
}

func withoutID(record Record) Record {
	doc := make(Record, len(record))
	for k, v := range record {
		if k != "_id" {
			doc[k] = v
		}
	}
	return doc
}

func (es *ES) Create(ctx context.Context, table string, record Record) error {
	body, err := esBody.Serialize(withoutID(record))
	if err != nil {
		return errors.Wrap(err, "failed to marshal document")
	}

	req := esapi.IndexRequest{Index: table, Body: bytes.NewReader(body), Refresh: es.refresh}
	if id, ok := record["_id"]; ok && id != nil {
		req.DocumentID = cast.ToString(id)
		req.OpType = "create"
	}

	res, err := req.Do(ctx, es.client)
	if err != nil {
		return errors.Wrap(err, "failed to index document")
	}
	defer res.Body.Close()
	if res.StatusCode == http.StatusConflict {
		return errors.WithMessagef(ErrDuplicateKey, "index %s", table)
	}
	if res.IsError() {
		return errors.Errorf("failed to index document: %s", res.String())
	}
	return nil
}

func (es *ES) Update(ctx context.Context, table string, pk Record, fields Record) error {
	id, err := docID(pk)
	if err != nil {
		return err
	}
	body, err := esBody.Serialize(map[string]any{"doc": withoutID(fields)})
	if err != nil {
		return errors.Wrap(err, "failed to marshal update document")
	}
	req := esapi.UpdateRequest{Index: table, DocumentID: id, Body: bytes.NewReader(body), Refresh: es.refresh}
	return es.do(ctx, req, ErrRecordNotFound, nil)
}

func (es *ES) Delete(ctx context.Context, table string, pk Record) error {
	id, err := docID(pk)
	if err != nil {
		return err
	}
	req := esapi.DeleteRequest{Index: table, DocumentID: id, Refresh: es.refresh}
	return es.do(ctx, req, ErrRecordNotFound, nil)
}

// bulk 使用 _bulk 接口批量执行，任意一条失败返回错误
func (es *ES) bulk(ctx context.Context, table string, pks []Record, action string, doc Record) error {
	if len(pks) == 0 {
		return nil
	}

	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	for _, pk := range pks {
		id, err := docID(pk)
		if err != nil {
			return err
		}
		if err := encoder.Encode(map[string]any{action: map[string]any{"_index": table, "_id": id}}); err != nil {
			return errors.Wrap(err, "failed to encode bulk action")
		}
		if doc != nil {
			if err := encoder.Encode(map[string]any{"doc": withoutID(doc)}); err != nil {
				return errors.Wrap(err, "failed to encode bulk document")
			}
		}
	}

	var result struct {
		Errors bool `json:"errors"`
		Items  []map[string]struct {
			Status int `json:"status"`
			Error  any `json:"error"`
		} `json:"items"`
	}
	req := esapi.BulkRequest{Index: table, Body: &buf, Refresh: es.refresh}
	if err := es.do(ctx, req, nil, &result); err != nil {
		return err
	}
	if result.Errors {
		for _, item := range result.Items {
			for _, status := range item {
				if status.Error != nil {
					return errors.Errorf("bulk %s failed: %v", action, status.Error)
				}
			}
		}
		return errors.Errorf("bulk %s failed", action)
	}
	return nil
}

func (es *ES) BatchUpdate(ctx context.Context, table string, pks []Record, fields Record) error {
	return es.bulk(ctx, table, pks, "update", fields)
}

func (es *ES) BatchDelete(ctx context.Context, table string, pks []Record) error {
	return es.bulk(ctx, table, pks, "delete", nil)
}

func (es *ES) Close() error {
	return nil
}
