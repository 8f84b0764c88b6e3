package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/riskibarqy/waterpolo-stats/internal/domain/matchstats"
	matchstatsmock "github.com/riskibarqy/waterpolo-stats/internal/mocks/domain/matchstats"
	"github.com/riskibarqy/waterpolo-stats/internal/platform/logging"
	"github.com/stretchr/testify/mock"
)

func TestSaveService_ReplacesBothTablesInOneCall(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	sink := matchstatsmock.NewTableSink(t)
	service := NewSaveService(sink, logging.NewNop())

	projected := matchstats.ProjectedResult{
		CompetitionID: 100,
		Events:        matchstats.Dataset{Columns: []string{"period"}, Rows: []matchstats.Row{{"period": int64(1)}}},
		Dates:         matchstats.Dataset{Columns: []string{"player_id"}, Rows: []matchstats.Row{{"player_id": int64(10)}}},
	}

	sink.
		On("ReplaceTables", mock.MatchedBy(func(v context.Context) bool { return v != nil }), mock.MatchedBy(func(tables []matchstats.NamedDataset) bool {
			return len(tables) == 2 && tables[0].Table == "events100" && tables[1].Table == "dates100" &&
				tables[0].Dataset.Len() == 1 && tables[1].Dataset.Len() == 1
		})).
		Return(nil).
		Once()

	if err := service.Save(ctx, projected); err != nil {
		t.Fatalf("save: %v", err)
	}
}

func TestSaveService_SkipsDatasetsWithoutColumns(t *testing.T) {
	t.Parallel()

	sink := matchstatsmock.NewTableSink(t)
	service := NewSaveService(sink, logging.NewNop())

	sink.
		On("ReplaceTables", mock.Anything, mock.MatchedBy(func(tables []matchstats.NamedDataset) bool {
			return len(tables) == 1 && tables[0].Table == "dates100"
		})).
		Return(nil).
		Once()

	err := service.Save(context.Background(), matchstats.ProjectedResult{
		CompetitionID: 100,
		Events:        matchstats.Dataset{Columns: []string{}, Rows: []matchstats.Row{}},
		Dates:         matchstats.Dataset{Columns: []string{"id"}, Rows: []matchstats.Row{{"id": int64(1)}}},
	})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
}

func TestSaveService_NothingToWrite(t *testing.T) {
	t.Parallel()

	sink := matchstatsmock.NewTableSink(t)
	service := NewSaveService(sink, logging.NewNop())

	if err := service.Save(context.Background(), matchstats.ProjectedResult{CompetitionID: 100}); err != nil {
		t.Fatalf("save: %v", err)
	}
	sink.AssertNotCalled(t, "ReplaceTables", mock.Anything, mock.Anything)
}

func TestSaveService_PropagatesSinkError(t *testing.T) {
	t.Parallel()

	sink := matchstatsmock.NewTableSink(t)
	service := NewSaveService(sink, logging.NewNop())
	sinkErr := errors.New("deadlock detected")

	sink.On("ReplaceTables", mock.Anything, mock.Anything).Return(sinkErr).Once()

	err := service.Save(context.Background(), matchstats.ProjectedResult{
		CompetitionID: 100,
		Events:        matchstats.Dataset{Columns: []string{"period"}, Rows: []matchstats.Row{}},
	})
	if !errors.Is(err, sinkErr) {
		t.Fatalf("expected sink error, got %v", err)
	}
}
