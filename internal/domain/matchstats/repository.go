package matchstats

import "context"

// TableSink persists projected datasets with replace-on-write semantics.
// All tables in one call are replaced together or not at all.
type TableSink interface {
	ReplaceTables(ctx context.Context, tables []NamedDataset) error
}
