package memory

import (
	"context"
	"testing"

	"github.com/riskibarqy/waterpolo-stats/internal/domain/matchstats"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTableSink_ReplacesWholeTable(t *testing.T) {
	t.Parallel()

	sink := NewTableSink()
	ctx := context.Background()

	first := matchstats.Dataset{Columns: []string{"period"}, Rows: []matchstats.Row{{"period": int64(1)}, {"period": int64(2)}}}
	require.NoError(t, sink.ReplaceTables(ctx, []matchstats.NamedDataset{{Table: "events100", Dataset: first}}))

	second := matchstats.Dataset{Columns: []string{"minute"}, Rows: []matchstats.Row{{"minute": int64(7)}}}
	require.NoError(t, sink.ReplaceTables(ctx, []matchstats.NamedDataset{{Table: "events100", Dataset: second}}))

	got, ok := sink.Table("events100")
	require.True(t, ok)
	assert.Equal(t, second, got)
	assert.Equal(t, []string{"events100"}, sink.TableNames())
}

func TestTableSink_RejectsBatchAtomically(t *testing.T) {
	t.Parallel()

	sink := NewTableSink()
	err := sink.ReplaceTables(context.Background(), []matchstats.NamedDataset{
		{Table: "events100", Dataset: matchstats.Dataset{Columns: []string{"period"}, Rows: []matchstats.Row{}}},
		{Table: "dates100", Dataset: matchstats.Dataset{}},
	})
	require.Error(t, err)

	_, ok := sink.Table("events100")
	assert.False(t, ok)
}

func TestTableSink_StoresCopies(t *testing.T) {
	t.Parallel()

	sink := NewTableSink()
	row := matchstats.Row{"period": int64(1)}
	require.NoError(t, sink.ReplaceTables(context.Background(), []matchstats.NamedDataset{
		{Table: "events1", Dataset: matchstats.Dataset{Columns: []string{"period"}, Rows: []matchstats.Row{row}}},
	}))
	row["period"] = int64(9)

	got, _ := sink.Table("events1")
	assert.Equal(t, int64(1), got.Rows[0]["period"])
}
