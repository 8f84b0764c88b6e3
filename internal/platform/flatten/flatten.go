// Package flatten turns nested JSON documents into tabular rows keyed by dotted paths
// and restricts those rows to an enumerated column set.
package flatten

import (
	"sort"
	"strings"

	crerr "github.com/cockroachdb/errors"
)

const Separator = "."

// Unlimited disables the depth bound of Document and Records.
const Unlimited = -1

var (
	ErrRecordPathMissing = crerr.New("record path not found")
	ErrRecordPathNotList = crerr.New("record path is not a list")
)

type Row = map[string]any

// Table is a tabular batch. Columns is the union of keys over Rows.
type Table struct {
	Columns []string
	Rows    []Row
}

// NewTable derives the column union from rows: keys ordered by first appearance,
// keys first seen in the same row ordered lexically.
func NewTable(rows []Row) Table {
	seen := make(map[string]struct{}, 64)
	columns := make([]string, 0, 64)
	for _, row := range rows {
		fresh := make([]string, 0, len(row))
		for key := range row {
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			fresh = append(fresh, key)
		}
		sort.Strings(fresh)
		columns = append(columns, fresh...)
	}
	if rows == nil {
		rows = []Row{}
	}
	return Table{Columns: columns, Rows: rows}
}

// Document flattens doc into a single row. Nested objects are walked while their depth
// below the root is under maxDepth; deeper objects are kept as values. Empty nested
// objects contribute no column.
func Document(doc map[string]any, maxDepth int) Row {
	out := make(Row, len(doc))
	walk(out, "", doc, 0, maxDepth)
	return out
}

func walk(out Row, prefix string, node map[string]any, depth, maxDepth int) {
	for key, value := range node {
		path := key
		if prefix != "" {
			path = prefix + Separator + key
		}

		child, ok := value.(map[string]any)
		if ok && (maxDepth < 0 || depth < maxDepth) {
			walk(out, path, child, depth+1, maxDepth)
			continue
		}
		out[path] = value
	}
}

// Records extracts one row per object in doc[path]. Every row inherits the scalar
// fields of doc; the child's own fields win on collision.
func Records(doc map[string]any, path string, maxDepth int) ([]Row, error) {
	raw, ok := doc[path]
	if !ok {
		return nil, crerr.Wrapf(ErrRecordPathMissing, "key %q", path)
	}
	items, ok := raw.([]any)
	if !ok {
		return nil, crerr.Wrapf(ErrRecordPathNotList, "key %q holds %T", path, raw)
	}

	parent := make(Row, len(doc))
	for key, value := range doc {
		if key == path || !isScalar(value) {
			continue
		}
		parent[key] = value
	}

	rows := make([]Row, 0, len(items))
	for _, item := range items {
		child, ok := item.(map[string]any)
		if !ok {
			continue
		}
		row := Document(child, maxDepth)
		for key, value := range parent {
			if _, exists := row[key]; !exists {
				row[key] = value
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func isScalar(value any) bool {
	switch value.(type) {
	case map[string]any, []any:
		return false
	default:
		return true
	}
}

// Project keeps the enumerated columns present in t, in enumerated order, renamed with
// SanitizeColumn. A column already stored under its sanitized name also counts as present,
// so projecting a projected table again changes nothing. Enumerated columns absent from t
// are returned as missing and left out of the result; they are never filled with nulls.
func Project(t Table, enumerated []string) (Table, []string) {
	present := make(map[string]struct{}, len(t.Columns))
	for _, column := range t.Columns {
		present[column] = struct{}{}
	}

	type mapping struct{ from, to string }
	kept := make([]mapping, 0, len(enumerated))
	taken := make(map[string]struct{}, len(enumerated))
	var missing []string
	for _, column := range enumerated {
		target := SanitizeColumn(column)
		if _, dup := taken[target]; dup {
			continue
		}
		switch {
		case has(present, column):
			kept = append(kept, mapping{from: column, to: target})
		case has(present, target):
			kept = append(kept, mapping{from: target, to: target})
		default:
			missing = append(missing, column)
			continue
		}
		taken[target] = struct{}{}
	}

	out := Table{
		Columns: make([]string, 0, len(kept)),
		Rows:    make([]Row, 0, len(t.Rows)),
	}
	for _, m := range kept {
		out.Columns = append(out.Columns, m.to)
	}
	for _, row := range t.Rows {
		projected := make(Row, len(kept))
		for _, m := range kept {
			if value, ok := row[m.from]; ok {
				projected[m.to] = value
			}
		}
		out.Rows = append(out.Rows, projected)
	}
	return out, missing
}

func has(set map[string]struct{}, key string) bool {
	_, ok := set[key]
	return ok
}

// SanitizeColumn rewrites dotted paths into identifiers the sink accepts.
func SanitizeColumn(name string) string {
	return strings.ReplaceAll(name, Separator, "_")
}

func (t Table) Len() int {
	return len(t.Rows)
}

func (t Table) HasColumn(name string) bool {
	for _, column := range t.Columns {
		if column == name {
			return true
		}
	}
	return false
}

// Value returns row idx's value for column, nil when absent.
func (t Table) Value(idx int, column string) any {
	if idx < 0 || idx >= len(t.Rows) {
		return nil
	}
	return t.Rows[idx][column]
}
