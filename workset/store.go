package workset

import (
	"github.com/pkg/errors"
)

// Store 按名字索引的有序表集合，是引擎唯一的可变状态
type Store struct {
	tables []*Table
	index  map[string]int
}

func NewStore() *Store {
	return &Store{index: map[string]int{}}
}

func (s *Store) Len() int {
	return len(s.tables)
}

func (s *Store) Names() []string {
	names := make([]string, len(s.tables))
	for i, t := range s.tables {
		names[i] = t.Name
	}
	return names
}

func (s *Store) Has(name string) bool {
	_, ok := s.index[name]
	return ok
}

// Table 返回表的引用，调用方需要持有引擎的锁
func (s *Store) Table(name string) (*Table, error) {
	i, ok := s.index[name]
	if !ok {
		return nil, errors.WithMessagef(ErrTableNotFound, "table %s", name)
	}
	return s.tables[i], nil
}

func (s *Store) First() (*Table, bool) {
	if len(s.tables) == 0 {
		return nil, false
	}
	return s.tables[0], true
}

func (s *Store) Add(t *Table) error {
	if _, ok := s.index[t.Name]; ok {
		return errors.WithMessagef(ErrDuplicateTableName, "table %s", t.Name)
	}
	s.index[t.Name] = len(s.tables)
	s.tables = append(s.tables, t)
	return nil
}

func (s *Store) Remove(name string) error {
	i, ok := s.index[name]
	if !ok {
		return errors.WithMessagef(ErrTableNotFound, "table %s", name)
	}
	s.tables = append(s.tables[:i], s.tables[i+1:]...)
	s.reindex()
	return nil
}

// Replace 用新的表集合替换全部内容，表名重复时返回错误且不做修改
func (s *Store) Replace(tables []*Table) error {
	index := make(map[string]int, len(tables))
	for i, t := range tables {
		if _, ok := index[t.Name]; ok {
			return errors.WithMessagef(ErrDuplicateTableName, "table %s", t.Name)
		}
		index[t.Name] = i
	}
	s.tables = tables
	s.index = index
	return nil
}

func (s *Store) reindex() {
	s.index = make(map[string]int, len(s.tables))
	for i, t := range s.tables {
		s.index[t.Name] = i
	}
}

// Snapshot 深拷贝全部表
func (s *Store) Snapshot() []*Table {
	tables := make([]*Table, len(s.tables))
	for i, t := range s.tables {
		tables[i] = t.Clone()
	}
	return tables
}
