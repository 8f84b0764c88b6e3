package memory

import (
	"context"
	"fmt"
	"maps"
	"sort"
	"sync"

	"github.com/riskibarqy/waterpolo-stats/internal/domain/matchstats"
)

// TableSink keeps the latest dataset written under each table name.
type TableSink struct {
	mu     sync.RWMutex
	tables map[string]matchstats.Dataset
}

func NewTableSink() *TableSink {
	return &TableSink{tables: make(map[string]matchstats.Dataset)}
}

func (s *TableSink) ReplaceTables(ctx context.Context, tables []matchstats.NamedDataset) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	staged := make(map[string]matchstats.Dataset, len(tables))
	for _, table := range tables {
		if table.Table == "" {
			return fmt.Errorf("table name is required")
		}
		if len(table.Dataset.Columns) == 0 {
			return fmt.Errorf("table %s has no columns", table.Table)
		}
		staged[table.Table] = cloneDataset(table.Dataset)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	maps.Copy(s.tables, staged)
	return nil
}

// Table returns a copy of the stored dataset.
func (s *TableSink) Table(name string) (matchstats.Dataset, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	dataset, ok := s.tables[name]
	if !ok {
		return matchstats.Dataset{}, false
	}
	return cloneDataset(dataset), true
}

func (s *TableSink) TableNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, len(s.tables))
	for name := range s.tables {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func cloneDataset(dataset matchstats.Dataset) matchstats.Dataset {
	out := matchstats.Dataset{
		Columns: append([]string(nil), dataset.Columns...),
		Rows:    make([]matchstats.Row, len(dataset.Rows)),
	}
	for i, row := range dataset.Rows {
		out.Rows[i] = maps.Clone(row)
	}
	return out
}
