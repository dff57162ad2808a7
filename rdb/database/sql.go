package database

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/hatlonely/tablex/rdb/query"
	"github.com/pkg/errors"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/driver/sqlserver"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

type SQLOptions struct {
	// 方言：mysql、sqlite3、postgres、sqlserver
	Driver   string `cfg:"driver" def:"mysql" validate:"oneof=mysql sqlite3 sqlite postgres sqlserver"`
	DSN      string `cfg:"dsn"`
	Host     string `cfg:"host" def:"localhost"`
	Port     int    `cfg:"port"`
	Database string `cfg:"database"`
	Username string `cfg:"username"`
	Password string `cfg:"password"`
	Charset  string `cfg:"charset" def:"utf8mb4"`
	SSLMode  string `cfg:"sslMode" def:"disable"`

	MaxConns        int           `cfg:"maxConns" def:"10"`
	MaxIdle         int           `cfg:"maxIdle" def:"5"`
	ConnMaxLifetime time.Duration `cfg:"connMaxLifetime" def:"1h"`

	// 列表查询的默认条数，与前端一次拉取的数量一致
	DefaultLimit int `cfg:"defaultLimit" def:"100"`
	// gorm 日志级别：silent、error、warn、info
	LogLevel string `cfg:"logLevel" def:"silent"`
}

// SQL 基于 gorm 的关系型数据库驱动
type SQL struct {
	db           *gorm.DB
	driver       string
	defaultLimit int
}

var defaultPorts = map[string]int{
	"mysql":     3306,
	"postgres":  5432,
	"sqlserver": 1433,
}

// buildDSN 未指定 DSN 时按方言拼接连接串
func buildDSN(options *SQLOptions) (string, error) {
	if options.DSN != "" {
		return options.DSN, nil
	}

	port := options.Port
	if port == 0 {
		port = defaultPorts[options.Driver]
	}
	addr := net.JoinHostPort(options.Host, strconv.Itoa(port))

	switch options.Driver {
	case "mysql":
		config := mysqldriver.NewConfig()
		config.User = options.Username
		config.Passwd = options.Password
		config.Net = "tcp"
		config.Addr = addr
		config.DBName = options.Database
		config.ParseTime = true
		config.Loc = time.Local
		config.Params = map[string]string{"charset": options.Charset}
		return config.FormatDSN(), nil
	case "postgres":
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			options.Host, port, options.Username, options.Password, options.Database, options.SSLMode), nil
	case "sqlserver":
		u := &url.URL{
			Scheme:   "sqlserver",
			User:     url.UserPassword(options.Username, options.Password),
			Host:     addr,
			RawQuery: url.Values{"database": []string{options.Database}}.Encode(),
		}
		return u.String(), nil
	case "sqlite3", "sqlite":
		if options.Database == "" {
			return "", errors.New("database file is required for sqlite")
		}
		return options.Database, nil
	}
	return "", errors.Errorf("unsupported driver: %s", options.Driver)
}

func dialector(driver string, dsn string) (gorm.Dialector, error) {
	switch driver {
	case "mysql":
		return mysql.Open(dsn), nil
	case "postgres":
		return postgres.Open(dsn), nil
	case "sqlserver":
		return sqlserver.Open(dsn), nil
	case "sqlite3", "sqlite":
		return sqlite.Open(dsn), nil
	}
	return nil, errors.Errorf("unsupported driver: %s", driver)
}

func parseLogLevel(level string) logger.LogLevel {
	switch strings.ToLower(level) {
	case "error":
		return logger.Error
	case "warn":
		return logger.Warn
	case "info":
		return logger.Info
	}
	return logger.Silent
}

func NewSQLWithOptions(options *SQLOptions) (*SQL, error) {
	dsn, err := buildDSN(options)
	if err != nil {
		return nil, err
	}
	dialect, err := dialector(options.Driver, dsn)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialect, &gorm.Config{
		Logger:         logger.Default.LogMode(parseLogLevel(options.LogLevel)),
		TranslateError: true,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to connect %s", options.Driver)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, errors.Wrap(err, "failed to get sql.DB")
	}
	maxConns := options.MaxConns
	// 内存数据库每个连接都是独立的库，只能使用一个连接
	if strings.Contains(dsn, ":memory:") {
		maxConns = 1
	}
	sqlDB.SetMaxOpenConns(maxConns)
	sqlDB.SetMaxIdleConns(min(options.MaxIdle, maxConns))
	sqlDB.SetConnMaxLifetime(options.ConnMaxLifetime)

	if err := sqlDB.Ping(); err != nil {
		return nil, errors.Wrapf(err, "failed to ping %s", options.Driver)
	}

	return &SQL{
		db:           db,
		driver:       options.Driver,
		defaultLimit: options.DefaultLimit,
	}, nil
}

// DB 返回底层 gorm.DB，测试中用来准备数据
func (s *SQL) DB() *gorm.DB {
	return s.db
}

func (s *SQL) ListTables(ctx context.Context) ([]TableInfo, error) {
	migrator := s.db.WithContext(ctx).Migrator()
	names, err := migrator.GetTables()
	if err != nil {
		return nil, errors.Wrap(err, "failed to list tables")
	}

	tables := make([]TableInfo, 0, len(names))
	for _, name := range names {
		columns, err := s.columns(ctx, name)
		if err != nil {
			return nil, err
		}
		tables = append(tables, TableInfo{Name: name, Kind: KindTable, Columns: columns})
	}
	return tables, nil
}

func (s *SQL) columns(ctx context.Context, table string) ([]Column, error) {
	columnTypes, err := s.db.WithContext(ctx).Migrator().ColumnTypes(table)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get columns of %s", table)
	}

	columns := make([]Column, 0, len(columnTypes))
	for _, ct := range columnTypes {
		column := Column{
			Name: ct.Name(),
			Type: strings.ToUpper(ct.DatabaseTypeName()),
		}
		if nullable, ok := ct.Nullable(); ok {
			column.Nullable = nullable
		}
		if pk, ok := ct.PrimaryKey(); ok {
			column.PrimaryKey = pk
		}
		if unique, ok := ct.Unique(); ok {
			column.Unique = unique && !column.PrimaryKey
		}
		if def, ok := ct.DefaultValue(); ok {
			column.DefaultValue = &def
		}
		columns = append(columns, column)
	}
	return columns, nil
}

func (s *SQL) Find(ctx context.Context, table string, q query.Query, opts ...QueryOption) ([]Record, error) {
	options := applyQueryOptions(s.defaultLimit, opts)

	tx := s.db.WithContext(ctx).Table(table)
	if q != nil {
		where, args, err := q.ToSQL()
		if err != nil {
			return nil, errors.WithMessage(err, "failed to convert query to sql")
		}
		tx = tx.Where(where, args...)
	}
	if options.Limit > 0 {
		tx = tx.Limit(options.Limit)
	}
	if options.Offset > 0 {
		tx = tx.Offset(options.Offset)
	}

	var rows []map[string]any
	if err := tx.Find(&rows).Error; err != nil {
		return nil, errors.Wrapf(err, "failed to find records in %s", table)
	}

	records := make([]Record, 0, len(rows))
	for _, row := range rows {
		records = append(records, normalizeRecord(row))
	}
	return records, nil
}

// searchField 非文本列需要先转换成字符串再比较
func (s *SQL) searchField(column Column) string {
	quoted := s.db.Statement.Quote(column.Name)
	switch s.driver {
	case "postgres":
		return fmt.Sprintf("CAST(%s AS TEXT)", quoted)
	case "sqlserver":
		return fmt.Sprintf("CAST(%s AS NVARCHAR(MAX))", quoted)
	}
	return quoted
}

func (s *SQL) Search(ctx context.Context, table string, term string, opts ...QueryOption) ([]Record, error) {
	columns, err := s.columns(ctx, table)
	if err != nil {
		return nil, err
	}
	fields := make([]string, 0, len(columns))
	for _, column := range columns {
		fields = append(fields, s.searchField(column))
	}
	return s.Find(ctx, table, query.Search(term, fields), opts...)
}

func (s *SQL) Create(ctx context.Context, table string, record Record) error {
	if err := s.db.WithContext(ctx).Table(table).Create(map[string]any(record)).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return errors.WithMessagef(ErrDuplicateKey, "table %s", table)
		}
		return errors.Wrapf(err, "failed to create record in %s", table)
	}
	return nil
}

func pkWhere(pk Record) (clause.Where, error) {
	if len(pk) == 0 {
		return clause.Where{}, ErrEmptyPrimary
	}
	exprs := make([]clause.Expression, 0, len(pk))
	for _, key := range sortedKeys(pk) {
		exprs = append(exprs, clause.Eq{Column: clause.Column{Name: key}, Value: pk[key]})
	}
	return clause.Where{Exprs: exprs}, nil
}

func (s *SQL) update(tx *gorm.DB, table string, pk Record, fields Record) error {
	where, err := pkWhere(pk)
	if err != nil {
		return err
	}
	if len(fields) == 0 {
		return nil
	}
	if err := tx.Table(table).Clauses(where).Updates(map[string]any(fields)).Error; err != nil {
		return errors.Wrapf(err, "failed to update record in %s", table)
	}
	return nil
}

func (s *SQL) delete(tx *gorm.DB, table string, pk Record) error {
	where, err := pkWhere(pk)
	if err != nil {
		return err
	}

	// DELETE FROM ? WHERE ? = ? AND ...，表名和列名由 gorm 负责引用
	sql := strings.Builder{}
	sql.WriteString("DELETE FROM ? WHERE ")
	vars := []any{clause.Table{Name: table}}
	for i, expr := range where.Exprs {
		eq := expr.(clause.Eq)
		if i > 0 {
			sql.WriteString(" AND ")
		}
		sql.WriteString("? = ?")
		vars = append(vars, eq.Column, eq.Value)
	}

	result := tx.Exec(sql.String(), vars...)
	if result.Error != nil {
		return errors.Wrapf(result.Error, "failed to delete record in %s", table)
	}
	if result.RowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

func (s *SQL) Update(ctx context.Context, table string, pk Record, fields Record) error {
	return s.update(s.db.WithContext(ctx), table, pk, fields)
}

func (s *SQL) Delete(ctx context.Context, table string, pk Record) error {
	return s.delete(s.db.WithContext(ctx), table, pk)
}

// BatchUpdate 在一个事务中逐条更新，任意一条失败则全部回滚
func (s *SQL) BatchUpdate(ctx context.Context, table string, pks []Record, fields Record) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, pk := range pks {
			if err := s.update(tx, table, pk, fields); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *SQL) BatchDelete(ctx context.Context, table string, pks []Record) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, pk := range pks {
			if err := s.delete(tx, table, pk); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *SQL) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
