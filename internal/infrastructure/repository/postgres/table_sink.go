package postgres

import (
	"context"
	"fmt"
	"math"
	"strconv"

	"github.com/bytedance/sonic"
	"github.com/jmoiron/sqlx"
	"github.com/riskibarqy/waterpolo-stats/internal/domain/matchstats"
	qb "github.com/riskibarqy/waterpolo-stats/internal/platform/querybuilder"
	"github.com/valyala/bytebufferpool"
)

type columnType string

const (
	columnBoolean columnType = "BOOLEAN"
	columnBigInt  columnType = "BIGINT"
	columnDouble  columnType = "DOUBLE PRECISION"
	columnText    columnType = "TEXT"
	columnJSONB   columnType = "JSONB"
)

// TableSink writes projected datasets as whole tables. Every call runs in one
// transaction, so the tables of a competition are replaced together.
type TableSink struct {
	db *sqlx.DB
}

func NewTableSink(db *sqlx.DB) *TableSink {
	return &TableSink{db: db}
}

func (s *TableSink) ReplaceTables(ctx context.Context, tables []matchstats.NamedDataset) error {
	if len(tables) == 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx replace tables: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for _, table := range tables {
		if err := replaceTable(ctx, tx, table); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit replace tables tx: %w", err)
	}
	return nil
}

func replaceTable(ctx context.Context, tx *sqlx.Tx, table matchstats.NamedDataset) error {
	if len(table.Dataset.Columns) == 0 {
		return fmt.Errorf("table %s has no columns", table.Table)
	}

	types := inferColumnTypes(table.Dataset)

	if _, err := tx.ExecContext(ctx, dropTableSQL(table.Table)); err != nil {
		return fmt.Errorf("drop table %s: %w", table.Table, err)
	}
	if _, err := tx.ExecContext(ctx, createTableSQL(table.Table, table.Dataset.Columns, types)); err != nil {
		return fmt.Errorf("create table %s: %w", table.Table, err)
	}

	quotedColumns := make([]string, len(table.Dataset.Columns))
	for i, column := range table.Dataset.Columns {
		quotedColumns[i] = quoteIdent(column)
	}

	chunkSize := qb.RowsPerStatement(len(table.Dataset.Columns))
	rows := table.Dataset.Rows
	for start := 0; start < len(rows); start += chunkSize {
		end := min(start+chunkSize, len(rows))

		values := make([][]any, 0, end-start)
		for _, row := range rows[start:end] {
			converted, err := rowValues(row, table.Dataset.Columns, types)
			if err != nil {
				return fmt.Errorf("encode row for table %s: %w", table.Table, err)
			}
			values = append(values, converted)
		}

		query, args, err := qb.InsertInto(quoteIdent(table.Table)).
			Columns(quotedColumns...).
			Rows(values).
			ToSQL()
		if err != nil {
			return fmt.Errorf("build insert table %s query: %w", table.Table, err)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("insert into table %s rows=%d..%d: %w", table.Table, start, end, err)
		}
	}
	return nil
}

func dropTableSQL(table string) string {
	return "DROP TABLE IF EXISTS " + quoteIdent(table)
}

func createTableSQL(table string, columns []string, types map[string]columnType) string {
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	_, _ = buf.WriteString("CREATE TABLE ")
	_, _ = buf.WriteString(quoteIdent(table))
	_, _ = buf.WriteString(" (")
	for i, column := range columns {
		if i > 0 {
			_, _ = buf.WriteString(", ")
		}
		_, _ = buf.WriteString(quoteIdent(column))
		_ = buf.WriteByte(' ')
		_, _ = buf.WriteString(string(types[column]))
	}
	_, _ = buf.WriteString(")")
	return buf.String()
}

// inferColumnTypes picks the narrowest type that holds every non-null value of
// a column. Columns with only nulls, or mixed scalar kinds, become TEXT.
func inferColumnTypes(dataset matchstats.Dataset) map[string]columnType {
	out := make(map[string]columnType, len(dataset.Columns))
	for _, column := range dataset.Columns {
		var (
			seen                                    bool
			allBool, allInt, allNumeric, anyComplex = true, true, true, false
		)
		for _, row := range dataset.Rows {
			value, ok := row[column]
			if !ok || value == nil {
				continue
			}
			seen = true
			switch v := value.(type) {
			case bool:
				allInt, allNumeric = false, false
			case int64, int, int32:
				allBool = false
			case float64:
				allBool = false
				if v != math.Trunc(v) {
					allInt = false
				}
			case map[string]any, []any:
				anyComplex = true
				allBool, allInt, allNumeric = false, false, false
			default:
				allBool, allInt, allNumeric = false, false, false
			}
		}

		switch {
		case !seen:
			out[column] = columnText
		case anyComplex:
			out[column] = columnJSONB
		case allBool:
			out[column] = columnBoolean
		case allInt:
			out[column] = columnBigInt
		case allNumeric:
			out[column] = columnDouble
		default:
			out[column] = columnText
		}
	}
	return out
}

func rowValues(row matchstats.Row, columns []string, types map[string]columnType) ([]any, error) {
	out := make([]any, len(columns))
	for i, column := range columns {
		value, err := columnValue(row[column], types[column])
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", column, err)
		}
		out[i] = value
	}
	return out, nil
}

func columnValue(value any, typ columnType) (any, error) {
	if value == nil {
		return nil, nil
	}

	switch typ {
	case columnBigInt:
		switch v := value.(type) {
		case int64:
			return v, nil
		case int:
			return int64(v), nil
		case int32:
			return int64(v), nil
		case float64:
			return int64(v), nil
		}
	case columnDouble:
		switch v := value.(type) {
		case float64:
			return v, nil
		case int64:
			return float64(v), nil
		case int:
			return float64(v), nil
		case int32:
			return float64(v), nil
		}
	case columnBoolean:
		if v, ok := value.(bool); ok {
			return v, nil
		}
	case columnJSONB:
		encoded, err := sonic.MarshalString(value)
		if err != nil {
			return nil, err
		}
		return encoded, nil
	}

	return textValue(value)
}

func textValue(value any) (any, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case bool:
		return strconv.FormatBool(v), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case int:
		return strconv.Itoa(v), nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	default:
		encoded, err := sonic.MarshalString(v)
		if err != nil {
			return nil, err
		}
		return encoded, nil
	}
}
