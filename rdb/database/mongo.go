package database

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/hatlonely/tablex/rdb/query"
	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// MongoOptions MongoDB连接选项
type MongoOptions struct {
	URI         string        `cfg:"uri"`
	Host        string        `cfg:"host" def:"localhost"`
	Port        int           `cfg:"port" def:"27017"`
	Database    string        `cfg:"database" validate:"required"`
	Username    string        `cfg:"username"`
	Password    string        `cfg:"password"`
	AuthSource  string        `cfg:"authSource" def:"admin"`
	Timeout     time.Duration `cfg:"timeout" def:"30s"`
	MaxPoolSize uint64        `cfg:"maxPoolSize" def:"100"`
	MinPoolSize uint64        `cfg:"minPoolSize" def:"0"`
	// 列表查询的默认条数
	DefaultLimit int `cfg:"defaultLimit" def:"100"`
}

// Mongo MongoDB 驱动，集合以 collection 类型的表暴露，_id 为主键
type Mongo struct {
	client       *mongo.Client
	database     *mongo.Database
	defaultLimit int
}

// NewMongoWithOptions 创建MongoDB实例
func NewMongoWithOptions(opts *MongoOptions) (*Mongo, error) {
	uri := opts.URI
	if uri == "" {
		if opts.Username != "" && opts.Password != "" {
			uri = fmt.Sprintf("mongodb://%s:%s@%s:%d/%s?authSource=%s",
				opts.Username, opts.Password, opts.Host, opts.Port,
				opts.Database, opts.AuthSource)
		} else {
			uri = fmt.Sprintf("mongodb://%s:%d/%s", opts.Host, opts.Port, opts.Database)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), opts.Timeout)
	defer cancel()

	clientOptions := options.Client().ApplyURI(uri)
	clientOptions.SetMaxPoolSize(opts.MaxPoolSize)
	clientOptions.SetMinPoolSize(opts.MinPoolSize)

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to mongodb")
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		return nil, errors.Wrap(err, "failed to ping mongodb")
	}

	return &Mongo{
		client:       client,
		database:     client.Database(opts.Database),
		defaultLimit: opts.DefaultLimit,
	}, nil
}

func (m *Mongo) ListTables(ctx context.Context) ([]TableInfo, error) {
	names, err := m.database.ListCollectionNames(ctx, bson.D{})
	if err != nil {
		return nil, errors.Wrap(err, "failed to list collections")
	}
	sort.Strings(names)

	tables := make([]TableInfo, 0, len(names))
	for _, name := range names {
		// 集合没有 schema，从第一个文档推断列
		sample, err := m.Find(ctx, name, nil, WithLimit(1))
		if err != nil {
			return nil, err
		}
		tables = append(tables, TableInfo{
			Name:    name,
			Kind:    KindCollection,
			Columns: inferColumns(sample, "_id"),
		})
	}
	return tables, nil
}

func (m *Mongo) Find(ctx context.Context, table string, q query.Query, opts ...QueryOption) ([]Record, error) {
	queryOpts := applyQueryOptions(m.defaultLimit, opts)

	filter := bson.M{}
	if q != nil {
		condition, err := q.ToMongo()
		if err != nil {
			return nil, errors.WithMessage(err, "failed to convert query to mongo")
		}
		filter = bson.M(condition)
	}

	findOptions := options.Find()
	if queryOpts.Limit > 0 {
		findOptions.SetLimit(int64(queryOpts.Limit))
	}
	if queryOpts.Offset > 0 {
		findOptions.SetSkip(int64(queryOpts.Offset))
	}

	cursor, err := m.database.Collection(table).Find(ctx, filter, findOptions)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to find documents in %s", table)
	}
	defer cursor.Close(ctx)

	var records []Record
	for cursor.Next(ctx) {
		var doc bson.M
		if err := cursor.Decode(&doc); err != nil {
			return nil, errors.Wrap(err, "failed to decode document")
		}
		records = append(records, fromBSON(doc))
	}
	if err := cursor.Err(); err != nil {
		return nil, errors.Wrap(err, "cursor error")
	}
	return records, nil
}

// Search 在样本文档出现过的字段上做正则匹配
func (m *Mongo) Search(ctx context.Context, table string, term string, opts ...QueryOption) ([]Record, error) {
	sample, err := m.Find(ctx, table, nil, WithLimit(m.defaultLimit))
	if err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	var fields []string
	for _, record := range sample {
		for _, key := range sortedKeys(record) {
			if !seen[key] {
				seen[key] = true
				fields = append(fields, key)
			}
		}
	}
	return m.Find(ctx, table, query.Search(term, fields), opts...)
}

func (m *Mongo) Create(ctx context.Context, table string, record Record) error {
	doc := toBSON(record)
	if _, ok := doc["_id"]; !ok {
		doc["_id"] = primitive.NewObjectID()
	}
	if _, err := m.database.Collection(table).InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return errors.WithMessagef(ErrDuplicateKey, "collection %s", table)
		}
		return errors.Wrapf(err, "failed to insert document into %s", table)
	}
	return nil
}

func (m *Mongo) Update(ctx context.Context, table string, pk Record, fields Record) error {
	filter, err := pkFilter(pk)
	if err != nil {
		return err
	}
	update := toBSON(fields)
	delete(update, "_id")
	if len(update) == 0 {
		return nil
	}

	result, err := m.database.Collection(table).UpdateOne(ctx, filter, bson.M{"$set": update})
	if err != nil {
		return errors.Wrapf(err, "failed to update document in %s", table)
	}
	if result.MatchedCount == 0 {
		return ErrRecordNotFound
	}
	return nil
}

func (m *Mongo) Delete(ctx context.Context, table string, pk Record) error {
	filter, err := pkFilter(pk)
	if err != nil {
		return err
	}
	result, err := m.database.Collection(table).DeleteOne(ctx, filter)
	if err != nil {
		return errors.Wrapf(err, "failed to delete document in %s", table)
	}
	if result.DeletedCount == 0 {
		return ErrRecordNotFound
	}
	return nil
}

func pkFilters(pks []Record) ([]any, error) {
	filters := make([]any, 0, len(pks))
	for _, pk := range pks {
		filter, err := pkFilter(pk)
		if err != nil {
			return nil, err
		}
		filters = append(filters, filter)
	}
	return filters, nil
}

func (m *Mongo) BatchUpdate(ctx context.Context, table string, pks []Record, fields Record) error {
	if len(pks) == 0 {
		return nil
	}
	filters, err := pkFilters(pks)
	if err != nil {
		return err
	}
	update := toBSON(fields)
	delete(update, "_id")
	if len(update) == 0 {
		return nil
	}
	if _, err := m.database.Collection(table).UpdateMany(ctx, bson.M{"$or": filters}, bson.M{"$set": update}); err != nil {
		return errors.Wrapf(err, "failed to update documents in %s", table)
	}
	return nil
}

func (m *Mongo) BatchDelete(ctx context.Context, table string, pks []Record) error {
	if len(pks) == 0 {
		return nil
	}
	filters, err := pkFilters(pks)
	if err != nil {
		return err
	}
	if _, err := m.database.Collection(table).DeleteMany(ctx, bson.M{"$or": filters}); err != nil {
		return errors.Wrapf(err, "failed to delete documents in %s", table)
	}
	return nil
}

func (m *Mongo) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return m.client.Disconnect(ctx)
}

// pkFilter 主键条件，十六进制字符串形式的 _id 还原为 ObjectID
func pkFilter(pk Record) (bson.M, error) {
	if len(pk) == 0 {
		return nil, ErrEmptyPrimary
	}
	filter := bson.M{}
	for k, v := range pk {
		if k == "_id" {
			if hex, ok := v.(string); ok {
				if oid, err := primitive.ObjectIDFromHex(hex); err == nil {
					filter[k] = oid
					continue
				}
			}
		}
		filter[k] = v
	}
	return filter, nil
}

func toBSON(record Record) bson.M {
	doc := make(bson.M, len(record))
	for k, v := range record {
		doc[k] = v
	}
	return doc
}

// fromBSON 将 bson 类型转换为普通的 Go 值
func fromBSON(doc bson.M) Record {
	record := make(Record, len(doc))
	for k, v := range doc {
		record[k] = fromBSONValue(v)
	}
	return record
}

func fromBSONValue(value any) any {
	switch v := value.(type) {
	case primitive.ObjectID:
		return v.Hex()
	case primitive.DateTime:
		return v.Time().UTC()
	case primitive.Timestamp:
		return time.Unix(int64(v.T), 0).UTC()
	case primitive.Decimal128:
		return v.String()
	case primitive.Binary:
		return v.Data
	case bson.M:
		return map[string]any(fromBSON(v))
	case bson.D:
		return map[string]any(fromBSON(v.Map()))
	case bson.A:
		result := make([]any, len(v))
		for i, item := range v {
			result[i] = fromBSONValue(item)
		}
		return result
	}
	return value
}
