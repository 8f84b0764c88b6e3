package querybuilder

import (
	"fmt"
	"reflect"
	"strings"
)

// ModelColumns lists the db-tagged exported fields of model in declaration order.
func ModelColumns(model any) ([]string, error) {
	cols, _, err := columnsAndValuesFromModel(model)
	return cols, err
}

// ModelRows turns a batch of db-tagged structs into one value row per model,
// ready for Builder.Rows. Every model shares the returned column list.
func ModelRows[T any](models []T) ([]string, [][]any, error) {
	if len(models) == 0 {
		return nil, nil, fmt.Errorf("models cannot be empty")
	}

	var columns []string
	rows := make([][]any, 0, len(models))
	for i := range models {
		cols, vals, err := columnsAndValuesFromModel(models[i])
		if err != nil {
			return nil, nil, fmt.Errorf("model %d: %w", i, err)
		}
		if columns == nil {
			columns = cols
		}
		rows = append(rows, vals)
	}
	return columns, rows, nil
}

func columnsAndValuesFromModel(model any) ([]string, []any, error) {
	value := reflect.ValueOf(model)
	for value.Kind() == reflect.Pointer {
		if value.IsNil() {
			return nil, nil, fmt.Errorf("model cannot be nil")
		}
		value = value.Elem()
	}
	if value.Kind() != reflect.Struct {
		return nil, nil, fmt.Errorf("model must be struct, got %s", value.Kind())
	}

	typ := value.Type()
	cols := make([]string, 0, typ.NumField())
	vals := make([]any, 0, typ.NumField())
	for i := range typ.NumField() {
		field := typ.Field(i)
		if !field.IsExported() {
			continue
		}
		col, _, _ := strings.Cut(strings.TrimSpace(field.Tag.Get("db")), ",")
		col = strings.TrimSpace(col)
		if col == "" || col == "-" {
			continue
		}
		cols = append(cols, col)
		vals = append(vals, value.Field(i).Interface())
	}

	if len(cols) == 0 {
		return nil, nil, fmt.Errorf("model has no db columns")
	}
	return cols, vals, nil
}
