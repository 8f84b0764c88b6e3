package postgres

import "github.com/lib/pq"

func quoteIdent(name string) string {
	return pq.QuoteIdentifier(name)
}

func nullableInt64(value *int64) *int64 {
	if value == nil || *value <= 0 {
		return nil
	}
	v := *value
	return &v
}
